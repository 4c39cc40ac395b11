package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"digest/internal/config"
	"digest/internal/dispatcher"
	"digest/internal/logging"
	"digest/internal/subscriptions"
	"digest/internal/tasks"
)

func newDispatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "dispatch",
		Short: "Run a dispatch pass now, enqueuing one task per topic for this week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSubscriptions(func(cfg *config.Config, subs *subscriptions.Store) error {
				queue, err := tasks.Open(cfg)
				if err != nil {
					return err
				}
				defer queue.Close()

				logger, err := logging.NewFromConfig(cfg)
				if err != nil {
					return err
				}

				result, err := dispatcher.New(subs, queue, logger).Run(cmd.Context())
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Dispatch run: %s\n", result.RunID)
				fmt.Fprintf(out, "Subscriptions: %d, topics: %d, enqueued: %d, already queued: %d\n",
					result.SubscriptionsSeen, result.TopicsDispatched, result.TasksEnqueued, result.Duplicates)
				for _, skipped := range result.Skipped {
					fmt.Fprintf(out, "Skipped %s (%s): %s\n", skipped.SubscriptionID, skipped.Email, skipped.Reason)
				}
				return nil
			})
		},
	}
}
