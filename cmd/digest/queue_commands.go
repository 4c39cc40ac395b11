package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"digest/internal/config"
	"digest/internal/tasks"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the task queue",
	}
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued topic tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(func(_ *config.Config, store *tasks.Store) error {
				var statuses []tasks.Status
				for _, raw := range strings.Split(statusFilter, ",") {
					raw = strings.TrimSpace(raw)
					if raw == "" {
						continue
					}
					status, ok := tasks.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q (valid: %v)", raw, tasks.AllStatuses())
					}
					statuses = append(statuses, status)
				}

				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(items))
				for _, task := range items {
					errMsg := task.ErrorMessage
					if len(errMsg) > 60 {
						errMsg = errMsg[:57] + "..."
					}
					rows = append(rows, []string{
						strconv.FormatInt(task.ID, 10),
						task.RunID,
						task.Topic,
						renderStatus(task.Status, colorize),
						strconv.Itoa(task.Attempts),
						strconv.Itoa(len(task.Recipients)),
						errMsg,
					})
				}
				out := renderTable(
					[]string{"ID", "Run", "Topic", "Status", "Attempts", "Recipients", "Error"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFilter, "status", "", "Comma-separated status filter (e.g. pending,failed)")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show aggregate queue health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(func(_ *config.Config, store *tasks.Store) error {
				health, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Total", strconv.Itoa(health.Total)},
					{"Pending", strconv.Itoa(health.Pending)},
					{"Processing", strconv.Itoa(health.Processing)},
					{"Completed", strconv.Itoa(health.Completed)},
					{"Unchanged", strconv.Itoa(health.Unchanged)},
					{"Failed", strconv.Itoa(health.Failed)},
				}
				out := renderTable(
					[]string{"State", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), out)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Return dead-lettered tasks to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(func(_ *config.Config, store *tasks.Store) error {
				ids := make([]int64, 0, len(args))
				for _, arg := range args {
					id, err := strconv.ParseInt(arg, 10, 64)
					if err != nil {
						return fmt.Errorf("invalid task id %q", arg)
					}
					ids = append(ids, id)
				}

				count, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d failed task(s)\n", count)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var all bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks from the queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withTasks(func(_ *config.Config, store *tasks.Store) error {
				var (
					count int64
					err   error
					label string
				)
				switch {
				case all:
					count, err = store.Clear(cmd.Context())
					label = "task(s)"
				case failedOnly:
					count, err = store.ClearFailed(cmd.Context())
					label = "failed task(s)"
				default:
					count, err = store.ClearTerminal(cmd.Context())
					label = "finished task(s)"
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d %s\n", count, label)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Remove only dead-lettered tasks")
	cmd.Flags().BoolVar(&all, "all", false, "Remove every task regardless of state")
	return cmd
}
