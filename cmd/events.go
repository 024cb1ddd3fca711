/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fintrack/apiserver/config"
	"github.com/fintrack/apiserver/internal/mq"
	"github.com/fintrack/apiserver/types"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events on the message broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail [channel...]",
	Short: "Print events as they arrive",
	Long: `Subscribes to the given channels and prints one line per event until
interrupted. Without arguments every fintrack channel is followed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		queue, err := mq.NewFromConfig(cmd.Context(), cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer queue.Close()

		channels := args
		if len(channels) == 0 {
			channels = []string{types.ChannelUserRegistered, types.ChannelTransactionPosted}
		}
		err = tailEvents(cmd.Context(), queue, channels, cmd.OutOrStdout())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}

type subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

func tailEvents(ctx context.Context, queue subscriber, channels []string, out io.Writer) error {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, channel := range channels {
		g.Go(func() error {
			return queue.Subscribe(ctx, channel, func(_ context.Context, msg mq.Message) error {
				mu.Lock()
				defer mu.Unlock()
				_, err := fmt.Fprintf(out, "%s %s %s\n", channel, msg.Attributes["event_id"], msg.Data)
				return err
			})
		})
	}
	return g.Wait()
}
