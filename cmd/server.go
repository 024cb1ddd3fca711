/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fintrack/apiserver/config"
	"github.com/fintrack/apiserver/internal/db"
	"github.com/fintrack/apiserver/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serverMigrate bool

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Starts the fintrack API server",
	Long: `Starts the fintrack API server. Usage:

	fintrack server [--migrate]
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		if serverMigrate {
			if err := db.MigrateUp(cfg.Database); err != nil {
				return err
			}
		}

		srv, err := server.New(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}

		errCh := make(chan error, 1)
		go func() {
			log.Printf("listening on %s", srv.Addr())
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		case <-cmd.Context().Done():
			log.Printf("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().BoolVar(&serverMigrate, "migrate", false, "Apply pending migrations before starting")
}
