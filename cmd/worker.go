package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"creatorguard/internal/bootstrap"
	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
	"creatorguard/internal/usecase/jobworker"
	"creatorguard/internal/usecase/moderation"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the moderation job worker by hand",
}

var workerRunOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Recover stale jobs, then process queued jobs once",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *moderation.Service) error {
		workerID, _ := cmd.Flags().GetString("worker-id")
		worker, err := app.NewWorker(workerID)
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()), slog.String("worker_id", worker.ID()))

		summary, err := worker.RunCycle(ctx)
		if err != nil {
			logging.Error(ctx, "moderation cycle failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "run moderation cycle")
		}
		return writeCycle(cmd, summary)
	}),
}

var workerProcessCmd = &cobra.Command{
	Use:   "process",
	Short: "Process queued jobs without stale recovery",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *moderation.Service) error {
		workerID, _ := cmd.Flags().GetString("worker-id")
		maxJobs, _ := cmd.Flags().GetInt("max-jobs")
		timeout, _ := cmd.Flags().GetDuration("job-timeout")

		worker, err := app.NewWorker(workerID)
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()), slog.String("worker_id", worker.ID()))

		summary, err := worker.ProcessJobQueue(ctx, jobworker.ProcessOptions{MaxJobs: maxJobs, JobTimeout: timeout})
		if err != nil {
			logging.Error(ctx, "process job queue failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "process job queue")
		}
		return writeProcess(cmd, summary)
	}),
}

var workerRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Requeue or fail jobs whose worker stopped heartbeating",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *moderation.Service) error {
		staleAfter, _ := cmd.Flags().GetDuration("stale-after")

		worker, err := app.NewWorker("")
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		summary, err := worker.RecoverStaleJobs(ctx, staleAfter)
		if err != nil {
			logging.Error(ctx, "recover stale jobs failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "recover stale jobs")
		}
		if yamlOutput() {
			return writeYAML(cmd.OutOrStdout(), map[string]int{
				"recovered": summary.Recovered,
				"exhausted": summary.Exhausted,
			})
		}
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "recovered: %d, exhausted: %d\n", summary.Recovered, summary.Exhausted); err != nil {
			return errs.Wrap(err, "write recover output")
		}
		return nil
	}),
}

var workerLastCycleCmd = &cobra.Command{
	Use:   "last-cycle",
	Short: "Show the summary of the most recent worker cycle",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, _ *moderation.Service) error {
		worker, err := app.NewWorker("")
		if err != nil {
			return errs.Wrap(err, "create worker")
		}
		summary, ok, err := worker.LastCycle(cmd.Context())
		if err != nil {
			return errs.Wrap(err, "read last cycle")
		}
		if !ok {
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), "no worker cycle recorded"); err != nil {
				return errs.Wrap(err, "write last-cycle output")
			}
			return nil
		}
		return writeCycle(cmd, summary)
	}),
}

type cycleOutput struct {
	WorkerID   string `yaml:"worker_id"`
	StartedAt  string `yaml:"started_at"`
	Recovered  int    `yaml:"recovered"`
	Exhausted  int    `yaml:"exhausted"`
	Claimed    int    `yaml:"claimed"`
	Processed  int    `yaml:"processed"`
	Failed     int    `yaml:"failed"`
	Remaining  int64  `yaml:"remaining"`
	Queued     int64  `yaml:"queued"`
	Processing int64  `yaml:"processing"`
	DurationMS int64  `yaml:"duration_ms"`
}

func writeCycle(cmd *cobra.Command, summary jobworker.CycleSummary) error {
	out := cycleOutput{
		WorkerID:   summary.WorkerID,
		StartedAt:  summary.StartedAt,
		Recovered:  summary.Recovery.Recovered,
		Exhausted:  summary.Recovery.Exhausted,
		Claimed:    summary.Process.Claimed,
		Processed:  summary.Process.Processed,
		Failed:     summary.Process.Failed,
		Remaining:  summary.Process.Remaining,
		Queued:     summary.Stats.Queued,
		Processing: summary.Stats.Processing,
		DurationMS: summary.DurationMS,
	}
	if yamlOutput() {
		return writeYAML(cmd.OutOrStdout(), out)
	}
	return renderTable(cmd.OutOrStdout(), []string{"metric", "value"}, [][]string{
		{"worker_id", out.WorkerID},
		{"started_at", out.StartedAt},
		{"recovered", strconv.Itoa(out.Recovered)},
		{"exhausted", strconv.Itoa(out.Exhausted)},
		{"claimed", strconv.Itoa(out.Claimed)},
		{"processed", strconv.Itoa(out.Processed)},
		{"failed", strconv.Itoa(out.Failed)},
		{"remaining", strconv.FormatInt(out.Remaining, 10)},
		{"queued", strconv.FormatInt(out.Queued, 10)},
		{"processing", strconv.FormatInt(out.Processing, 10)},
		{"duration_ms", strconv.FormatInt(out.DurationMS, 10)},
	})
}

type outcomeOutput struct {
	JobID    string `yaml:"job_id"`
	Status   string `yaml:"status"`
	TimedOut bool   `yaml:"timed_out,omitempty"`
	Error    string `yaml:"error,omitempty"`
}

func writeProcess(cmd *cobra.Command, summary jobworker.ProcessSummary) error {
	outcomes := make([]outcomeOutput, 0, len(summary.Results))
	for _, result := range summary.Results {
		outcomes = append(outcomes, outcomeOutput{
			JobID:    result.JobID,
			Status:   string(result.Status),
			TimedOut: result.TimedOut,
			Error:    result.Error,
		})
	}
	if yamlOutput() {
		return writeYAML(cmd.OutOrStdout(), map[string]any{
			"claimed":   summary.Claimed,
			"processed": summary.Processed,
			"failed":    summary.Failed,
			"remaining": summary.Remaining,
			"results":   outcomes,
		})
	}

	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		rows = append(rows, []string{o.JobID, o.Status, strconv.FormatBool(o.TimedOut), orDash(o.Error)})
	}
	if err := renderTable(cmd.OutOrStdout(), []string{"job", "status", "timed_out", "error"}, rows); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "claimed: %d, processed: %d, failed: %d, remaining: %d\n",
		summary.Claimed, summary.Processed, summary.Failed, summary.Remaining); err != nil {
		return errs.Wrap(err, "write process summary")
	}
	return nil
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.AddCommand(workerRunOnceCmd, workerProcessCmd, workerRecoverCmd, workerLastCycleCmd)

	workerRunOnceCmd.Flags().String("worker-id", "", "Worker id (default: a fresh UUID)")
	workerProcessCmd.Flags().String("worker-id", "", "Worker id (default: a fresh UUID)")
	workerProcessCmd.Flags().Int("max-jobs", 0, "Max jobs to claim (default: worker.max_jobs)")
	workerProcessCmd.Flags().Duration("job-timeout", 0, "Per-job timeout (default: worker.job_timeout)")
	workerRecoverCmd.Flags().Duration("stale-after", 0, "Heartbeat age that marks a job stale (default: job_timeout x stale_multiplier)")
}
