package cmd

import (
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"creatorguard/internal/bootstrap"
	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
	"creatorguard/internal/usecase/moderation"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and manage the moderation job queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job queue and scan status counts",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		worker, err := app.NewWorker("")
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		queue, err := worker.GetQueueStats(ctx)
		if err != nil {
			logging.Error(ctx, "get queue stats failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "get queue stats")
		}
		scans, err := svc.GetModerationStats(ctx)
		if err != nil {
			logging.Error(ctx, "get moderation stats failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "get moderation stats")
		}

		jobCounts := make(map[string]int64, len(queue.ByStatus))
		for status, count := range queue.ByStatus {
			jobCounts[string(status)] = count
		}
		if yamlOutput() {
			return writeYAML(cmd.OutOrStdout(), map[string]any{
				"jobs": map[string]any{
					"by_status":                 jobCounts,
					"oldest_queued_at":          queue.OldestQueuedAt,
					"oldest_queued_age_seconds": queue.OldestQueuedAgeSeconds,
				},
				"scans": map[string]any{
					"total":          scans.Total,
					"by_status":      scans.ByStatus,
					"by_target_type": scans.ByTargetType,
					"by_flag":        scans.ByFlag,
					"pending_review": scans.PendingReview,
				},
			})
		}

		if err := renderTable(cmd.OutOrStdout(), []string{"job status", "count"}, countRows(jobCounts)); err != nil {
			return err
		}
		if err := renderTable(cmd.OutOrStdout(), []string{"scan status", "count"}, countRows(scans.ByStatus)); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "oldest queued: %s (%ds), pending review: %d\n",
			orDash(queue.OldestQueuedAt), queue.OldestQueuedAgeSeconds, scans.PendingReview); err != nil {
			return errs.Wrap(err, "write queue stats summary")
		}
		return nil
	}),
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scan jobs",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *moderation.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		statuses, _ := cmd.Flags().GetStringSlice("status")
		scanID, _ := cmd.Flags().GetString("scan")
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")

		jobs, err := svc.ListJobs(ctx, moderation.JobListFilter{
			Statuses: statuses,
			ScanID:   scanID,
			Page:     page,
			PerPage:  perPage,
		})
		if err != nil {
			logging.Error(ctx, "list jobs failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "list jobs")
		}

		if yamlOutput() {
			items := make([]jobOutput, 0, len(jobs.Items))
			for _, job := range jobs.Items {
				items = append(items, toJobOutput(job))
			}
			return writeYAML(cmd.OutOrStdout(), map[string]any{
				"items":    items,
				"total":    jobs.Total,
				"page":     jobs.Page,
				"per_page": jobs.PerPage,
			})
		}

		rows := make([][]string, 0, len(jobs.Items))
		for _, job := range jobs.Items {
			rows = append(rows, []string{
				job.JobID,
				string(job.JobType),
				string(job.Status),
				strconv.Itoa(job.Priority),
				fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts),
				strconv.Itoa(len(jobScans(job))),
				orDash(job.WorkerID),
				job.CreatedAt,
			})
		}
		if err := renderTable(cmd.OutOrStdout(), []string{"job", "type", "status", "priority", "attempts", "scans", "worker", "created_at"}, rows); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "page %d, %d of %d jobs\n", jobs.Page, len(jobs.Items), jobs.Total); err != nil {
			return errs.Wrap(err, "write job list footer")
		}
		return nil
	}),
}

var queueCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a queued job",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *moderation.Service) error {
		worker, err := app.NewWorker("")
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		if err := worker.CancelJob(cmd.Context(), cmd.Flags().Arg(0)); err != nil {
			return errs.Wrap(err, "cancel job")
		}
		return showJob(cmd, svc, cmd.Flags().Arg(0))
	}),
}

var queueRetryCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a failed job",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *moderation.Service) error {
		worker, err := app.NewWorker("")
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		if err := worker.RetryJob(cmd.Context(), cmd.Flags().Arg(0)); err != nil {
			return errs.Wrap(err, "retry job")
		}
		return showJob(cmd, svc, cmd.Flags().Arg(0))
	}),
}

var queuePrioritizeCmd = &cobra.Command{
	Use:   "prioritize <job-id>",
	Short: "Change the priority of a queued job (1 is highest)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *moderation.Service) error {
		priority, _ := cmd.Flags().GetInt("priority")
		worker, err := app.NewWorker("")
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		if err := worker.PrioritizeJob(cmd.Context(), cmd.Flags().Arg(0), priority); err != nil {
			return errs.Wrap(err, "prioritize job")
		}
		return showJob(cmd, svc, cmd.Flags().Arg(0))
	}),
}

func showJob(cmd *cobra.Command, svc *moderation.Service, jobID string) error {
	job, err := svc.GetJob(cmd.Context(), jobID)
	if err != nil {
		return errs.Wrap(err, "get job")
	}
	if yamlOutput() {
		return writeYAML(cmd.OutOrStdout(), toJobOutput(job))
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "job %s: status=%s priority=%d attempts=%d/%d\n",
		job.JobID, job.Status, job.Priority, job.Attempts, job.MaxAttempts); err != nil {
		return errs.Wrap(err, "write job output")
	}
	return nil
}

func countRows(counts map[string]int64) [][]string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, strconv.FormatInt(counts[key], 10)})
	}
	return rows
}

func init() {
	rootCmd.AddCommand(queueCmd)
	queueCmd.AddCommand(queueStatsCmd, queueListCmd, queueCancelCmd, queueRetryCmd, queuePrioritizeCmd)

	queueListCmd.Flags().StringSlice("status", nil, "Filter by job status (repeatable)")
	queueListCmd.Flags().String("scan", "", "Only jobs covering this scan id")
	queueListCmd.Flags().Int("page", 1, "Page number")
	queueListCmd.Flags().Int("per-page", 20, "Jobs per page")

	queuePrioritizeCmd.Flags().Int("priority", 0, "New priority, 1..10")
	_ = queuePrioritizeCmd.MarkFlagRequired("priority")
}
