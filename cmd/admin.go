/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fintrack/apiserver/config"
	"github.com/fintrack/apiserver/internal/auth"
	"github.com/fintrack/apiserver/internal/db"
	"github.com/fintrack/apiserver/internal/services"
	"github.com/fintrack/apiserver/internal/store"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func init() {
	rootCmd.AddCommand(newAdminCmd())
}

// newAdminCmd builds the admin command tree. Flags live on the returned
// commands so each call yields an independent tree.
func newAdminCmd() *cobra.Command {
	adminCmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage administrator accounts",
	}

	var (
		email    string
		fullName string
		password string
	)
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create an administrator, or promote the user with that email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(email) == "" {
				return fmt.Errorf("missing required flag: --email")
			}

			out := cmd.OutOrStdout()
			if password == "" {
				fmt.Fprint(out, "Password: ")
				var err error
				password, err = readPassword(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read password: %w", err)
				}
				fmt.Fprintln(out)
			}
			if strings.TrimSpace(password) == "" {
				return fmt.Errorf("password cannot be empty")
			}

			return withUserService(cmd.Context(), func(users *services.UserService) error {
				user, created, err := users.EnsureAdmin(cmd.Context(), fullName, email, password)
				if err != nil {
					return err
				}
				if created {
					fmt.Fprintf(out, "Admin %s created with ID %d\n", user.Email, user.ID)
				} else {
					fmt.Fprintf(out, "User %s (ID %d) is an admin\n", user.Email, user.ID)
				}
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&email, "email", "", "Admin email")
	createCmd.Flags().StringVar(&fullName, "name", "", "Full name")
	createCmd.Flags().StringVar(&password, "password", "", "Password (optional, will prompt if omitted)")

	adminCmd.AddCommand(
		createCmd,
		newSetAdminCmd("promote <email>", "Grant the admin role to a user", true),
		newSetAdminCmd("demote <email>", "Revoke the admin role from a user", false),
		&cobra.Command{
			Use:   "users",
			Short: "List users and their roles",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withUserService(cmd.Context(), func(users *services.UserService) error {
					items, err := users.List(cmd.Context())
					if err != nil {
						return err
					}

					table := tablewriter.NewWriter(cmd.OutOrStdout())
					table.SetHeader([]string{"ID", "Email", "Name", "Role", "Created"})
					for _, user := range items {
						table.Append([]string{
							strconv.FormatInt(user.ID, 10),
							user.Email,
							user.FullName,
							user.Role(),
							user.CreatedAt.UTC().Format(time.RFC3339),
						})
					}
					table.Render()
					return nil
				})
			},
		},
	)
	return adminCmd
}

func newSetAdminCmd(use, short string, isAdmin bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withUserService(cmd.Context(), func(users *services.UserService) error {
				user, err := users.SetAdminByEmail(cmd.Context(), args[0], isAdmin)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "User %s is now %s\n", user.Email, user.Role())
				return nil
			})
		},
	}
}

func withUserService(ctx context.Context, fn func(users *services.UserService) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := config.LoadConfig()

	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer conn.Close()

	users := services.NewUserService(store.NewUserRepository(conn), auth.NewTokenService(cfg.JWT), nil)
	return fn(users)
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(bytePassword), nil
	}

	// Non-terminal input such as pipes and tests.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
