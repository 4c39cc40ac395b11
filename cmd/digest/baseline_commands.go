package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"digest/internal/baseline"
	"digest/internal/config"
	"digest/internal/topic"
)

func newBaselinesCommand(ctx *commandContext) *cobra.Command {
	baselinesCmd := &cobra.Command{
		Use:   "baselines",
		Short: "Inspect stored content fingerprints",
	}
	baselinesCmd.AddCommand(newBaselinesListCommand(ctx))
	baselinesCmd.AddCommand(newBaselinesResetCommand(ctx))
	return baselinesCmd
}

func newBaselinesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List per-topic baselines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBaselines(func(_ *config.Config, store *baseline.Store) error {
				items, err := store.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No baselines recorded")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, bl := range items {
					fingerprint := bl.Fingerprint
					if len(fingerprint) > 16 {
						fingerprint = fingerprint[:16] + "..."
					}
					rows = append(rows, []string{
						bl.Topic,
						fingerprint,
						bl.RecordedAt.UTC().Format(time.RFC3339),
					})
				}
				out := renderTable(
					[]string{"Topic", "Fingerprint", "Recorded"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newBaselinesResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <topic>",
		Short: "Delete a topic's baseline so the next digest always sends",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withBaselines(func(_ *config.Config, store *baseline.Store) error {
				key, err := topic.Normalize(args[0])
				if err != nil {
					return fmt.Errorf("unusable topic %q: %w", args[0], err)
				}
				removed, err := store.Delete(cmd.Context(), key)
				if err != nil {
					return err
				}
				if !removed {
					fmt.Fprintf(cmd.OutOrStdout(), "No baseline recorded for %q\n", key)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Baseline for %q removed\n", key)
				return nil
			})
		},
	}
}
