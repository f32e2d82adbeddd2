package jobworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
)

type RecoverySummary struct {
	Recovered int `json:"recovered"`
	Exhausted int `json:"exhausted"`
}

// RecoverStaleJobs requeues processing jobs whose heartbeat is older than
// staleAfter, or fails them once they have used up their attempts. A zero
// staleAfter means JobTimeout times the stale multiplier.
func (w *Worker) RecoverStaleJobs(ctx context.Context, staleAfter time.Duration) (RecoverySummary, error) {
	if err := checkContext(ctx); err != nil {
		return RecoverySummary{}, err
	}
	ctx = w.withComponent(ctx)

	if staleAfter <= 0 {
		staleAfter = w.opts.JobTimeout * time.Duration(w.opts.StaleMultiplier)
	}
	now := w.now()
	cutoff := domain.FormatTimestamp(now.Add(-staleAfter))

	stale, err := w.jobs.ListStaleJobs(ctx, cutoff)
	if err != nil {
		return RecoverySummary{}, err
	}

	summary := RecoverySummary{}
	for _, job := range stale {
		exhausted, recovered, err := w.recoverJob(ctx, job, staleAfter)
		if err != nil {
			return summary, err
		}
		if !recovered {
			continue
		}
		if exhausted {
			summary.Exhausted++
		} else {
			summary.Recovered++
		}
	}

	if summary.Recovered > 0 || summary.Exhausted > 0 {
		logging.Warn(ctx, "stale jobs recovered",
			slog.Int("recovered", summary.Recovered),
			slog.Int("exhausted", summary.Exhausted),
		)
	}
	return summary, nil
}

func (w *Worker) recoverJob(ctx context.Context, job ports.JobRecord, staleAfter time.Duration) (bool, bool, error) {
	ctx = logging.WithAttrs(ctx,
		slog.String("job_id", job.JobID),
		slog.String("stale_worker_id", job.WorkerID),
	)

	exhausted := job.Attempts+1 >= job.MaxAttempts
	target := domain.JobQueued
	message := fmt.Sprintf("worker %s stopped responding (no heartbeat for %s)", job.WorkerID, staleAfter)
	if exhausted {
		target = domain.JobFailed
		message = fmt.Sprintf("%s; giving up after %d attempts", message, job.Attempts+1)
	}

	recoveredAt := w.nowString()
	ok, err := w.jobs.RecoverJob(ctx, ports.JobRecovery{
		JobID:       job.JobID,
		WorkerID:    job.WorkerID,
		HeartbeatAt: job.HeartbeatAt,
		To:          target,
		Message:     message,
		RecoveredAt: recoveredAt,
	})
	if err != nil {
		return false, false, err
	}
	if !ok {
		logging.Info(ctx, "stale job changed before recovery, skipped")
		return false, false, nil
	}

	for _, scanID := range scanIDsOf(job) {
		var changed bool
		if exhausted {
			changed, err = w.scans.FailScan(ctx, scanID, job.WorkerID, message, recoveredAt)
		} else {
			changed, err = w.scans.ReleaseScan(ctx, scanID, job.WorkerID, recoveredAt)
		}
		if err != nil {
			logging.Error(ctx, "recover scan of stale job",
				slog.String("scan_id", scanID),
				slog.Any("err", errs.Loggable(err)),
			)
			continue
		}
		if changed {
			logging.Info(ctx, "scan of stale job recovered", slog.String("scan_id", scanID))
		}
	}
	return exhausted, true, nil
}

func scanIDsOf(job ports.JobRecord) []string {
	if len(job.ScanIDs) > 0 {
		return job.ScanIDs
	}
	if job.ScanID == "" {
		return nil
	}
	return []string{job.ScanID}
}
