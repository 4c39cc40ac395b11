package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"digest/internal/config"
	"digest/internal/subscriptions"
)

func newSubscribeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <email> <topic>",
		Short: "Add a subscription for a topic",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSubscriptions(func(_ *config.Config, store *subscriptions.Store) error {
				sub, err := store.Add(cmd.Context(), args[0], args[1])
				if err != nil {
					if errors.Is(err, subscriptions.ErrDuplicate) {
						return fmt.Errorf("subscription already exists for %s on %q", args[0], args[1])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s to %q (id %s)\n", sub.Email, sub.Topic, sub.ID)
				return nil
			})
		},
	}
}

func newSubscriptionsCommand(ctx *commandContext) *cobra.Command {
	subsCmd := &cobra.Command{
		Use:   "subscriptions",
		Short: "Manage subscriptions",
	}
	subsCmd.AddCommand(newSubscriptionsListCommand(ctx))
	subsCmd.AddCommand(newSubscriptionsDeactivateCommand(ctx))
	return subsCmd
}

func newSubscriptionsListCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List subscriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSubscriptions(func(_ *config.Config, store *subscriptions.Store) error {
				subs, err := store.List(cmd.Context())
				if err != nil {
					return err
				}

				rows := make([][]string, 0, len(subs))
				for _, sub := range subs {
					if !all && !sub.IsActive {
						continue
					}
					lastSent := "never"
					if sub.LastSent != nil {
						lastSent = sub.LastSent.UTC().Format(time.RFC3339)
					}
					rows = append(rows, []string{
						sub.ID,
						sub.Email,
						sub.Topic,
						yesNo(sub.IsActive),
						lastSent,
					})
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No subscriptions found")
					return nil
				}

				out := renderTable(
					[]string{"ID", "Email", "Topic", "Active", "Last Sent"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include deactivated subscriptions")
	return cmd
}

func newSubscriptionsDeactivateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a subscription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSubscriptions(func(_ *config.Config, store *subscriptions.Store) error {
				removed, err := store.Deactivate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no active subscription with id %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deactivated subscription %s\n", args[0])
				return nil
			})
		},
	}
}
