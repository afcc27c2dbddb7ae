package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"clipforge/internal/jobs"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the production queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))

	return queueCmd
}

var statusTitler = cases.Title(language.Und)

func statusLabel(status jobs.Status) string {
	return statusTitler.String(string(status))
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				counts, err := eng.store.Counts(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(counts))
				for _, status := range jobs.AllStatuses() {
					if count := counts[status]; count > 0 {
						rows = append(rows, []string{statusLabel(status), strconv.Itoa(count)})
					}
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"Status", "Count"}, rows,
					[]columnAlignment{alignLeft, alignRight})
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				var statuses []jobs.Status
				for _, raw := range listStatuses {
					status, ok := jobs.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q", raw)
					}
					statuses = append(statuses, status)
				}

				items, err := eng.store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, job := range items {
					scenes, _ := job.Scenes()
					detail := job.FinalFile
					if job.Status == jobs.StatusFailed {
						detail = job.ErrorMessage
						if job.Retryable {
							detail += " (retryable)"
						}
					}
					rows = append(rows, []string{
						shortID(job.ID),
						job.Title,
						statusLabel(job.Status),
						strconv.Itoa(len(scenes)),
						job.CreatedAt.Local().Format(time.DateTime),
						detail,
					})
				}
				writeTable(cmd.OutOrStdout(),
					[]string{"ID", "Title", "Status", "Scenes", "Created", "Detail"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft})
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by job status (repeatable)")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [job-id ...]",
		Short: "Re-enqueue retryable failed jobs",
		Long: `Retry moves failed jobs whose failure was transient back into the queue.
Jobs that already finished assembly resume at the finalize stage; the rest
start over. Without arguments all retryable failures are re-enqueued.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				count, err := eng.store.RetryFailed(cmd.Context(), args...)
				if err != nil {
					return err
				}
				if count == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No retryable failed jobs")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Re-enqueued %d job(s); process them with `clipforge run`\n", count)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearStatuses []string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished jobs from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine) error {
				statuses := []jobs.Status{jobs.StatusCompleted, jobs.StatusFailed}
				if len(clearStatuses) > 0 {
					statuses = statuses[:0]
					for _, raw := range clearStatuses {
						status, ok := jobs.ParseStatus(raw)
						if !ok {
							return fmt.Errorf("unknown status %q", raw)
						}
						statuses = append(statuses, status)
					}
				}
				count, err := eng.store.Clear(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d job(s)\n", count)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&clearStatuses, "status", "s", nil, "Statuses to clear (default: completed, failed)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
