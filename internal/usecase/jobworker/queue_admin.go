package jobworker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
)

type QueueStats struct {
	ByStatus               map[domain.JobStatus]int64 `json:"by_status"`
	Queued                 int64                      `json:"queued"`
	Processing             int64                      `json:"processing"`
	Failed                 int64                      `json:"failed"`
	OldestQueuedAt         string                     `json:"oldest_queued_at,omitempty"`
	OldestQueuedAgeSeconds int64                      `json:"oldest_queued_age_seconds"`
}

func (w *Worker) GetQueueStats(ctx context.Context) (QueueStats, error) {
	if err := checkContext(ctx); err != nil {
		return QueueStats{}, err
	}

	counts, err := w.jobs.CountJobsByStatus(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{ByStatus: make(map[domain.JobStatus]int64, len(domain.AllJobStatuses()))}
	for _, status := range domain.AllJobStatuses() {
		stats.ByStatus[status] = counts[status]
	}
	stats.Queued = counts[domain.JobQueued]
	stats.Processing = counts[domain.JobProcessing]
	stats.Failed = counts[domain.JobFailed]

	oldest, err := w.jobs.OldestQueuedCreatedAt(ctx)
	if err != nil {
		return QueueStats{}, err
	}
	if oldest != "" {
		stats.OldestQueuedAt = oldest
		if at, err := domain.ParseTimestamp(oldest); err == nil {
			if age := w.now().Sub(at); age > 0 {
				stats.OldestQueuedAgeSeconds = int64(age / time.Second)
			}
		}
	}
	return stats, nil
}

func (w *Worker) CancelJob(ctx context.Context, jobID string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	ctx = logging.WithJob(w.withComponent(ctx), jobID)

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if err := domain.ValidateJobTransition(job.Status, domain.JobCancelled); err != nil {
		return err
	}
	ok, err := w.jobs.CancelJob(ctx, jobID, w.nowString())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s is no longer queued", domain.ErrInvalidState, jobID)
	}
	logging.Info(ctx, "job cancelled")
	return nil
}

// RetryJob requeues a failed job with its attempt count kept. Its failed scans
// go back to pending_scan first so the requeued job finds them scannable.
func (w *Worker) RetryJob(ctx context.Context, jobID string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	ctx = logging.WithJob(w.withComponent(ctx), jobID)

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobFailed {
		return fmt.Errorf("%w: job %s is %s", domain.ErrInvalidState, jobID, job.Status)
	}

	at := w.nowString()
	for _, scanID := range scanIDsOf(job) {
		if _, err := w.scans.ResetScan(ctx, scanID, []domain.ScanStatus{domain.ScanFailed}, nil, at); err != nil {
			return errs.Wrapf(err, "reset scan %s", scanID)
		}
	}

	ok, err := w.jobs.RetryJob(ctx, jobID, at)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s is no longer failed", domain.ErrInvalidState, jobID)
	}
	logging.Info(ctx, "job requeued", slog.Int("attempts", job.Attempts))
	return nil
}

func (w *Worker) PrioritizeJob(ctx context.Context, jobID string, priority int) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := domain.ValidatePriority(priority); err != nil {
		return err
	}
	ctx = logging.WithJob(w.withComponent(ctx), jobID)

	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != domain.JobQueued {
		return fmt.Errorf("%w: job %s is %s, only queued jobs can be reprioritized", domain.ErrInvalidState, jobID, job.Status)
	}
	ok, err := w.jobs.UpdateJobPriority(ctx, jobID, priority, w.nowString())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: job %s is no longer queued", domain.ErrInvalidState, jobID)
	}
	logging.Info(ctx, "job reprioritized", slog.Int("priority", priority))
	return nil
}

// TriggerImmediateScan processes a scan now, bypassing the queue order. When
// the scan is a member of an open bulk job, that job is claimed and run whole.
func (w *Worker) TriggerImmediateScan(ctx context.Context, scanID string, requestedBy string) (JobOutcome, error) {
	if err := checkContext(ctx); err != nil {
		return JobOutcome{}, err
	}
	ctx = logging.WithScan(w.withComponent(ctx), scanID)

	job, err := w.processor.EnsureScanJob(ctx, scanID, requestedBy)
	if err != nil {
		return JobOutcome{}, err
	}
	if job.Status != domain.JobQueued {
		return JobOutcome{}, fmt.Errorf("%w: job %s for scan %s is %s by worker %q", domain.ErrInvalidState, job.JobID, scanID, job.Status, job.WorkerID)
	}
	claimed, err := w.jobs.ClaimJob(ctx, job.JobID, w.id, w.nowString())
	if err != nil {
		return JobOutcome{}, err
	}
	if !claimed {
		return JobOutcome{}, fmt.Errorf("%w: job %s was claimed by another worker", domain.ErrInvalidState, job.JobID)
	}

	logging.Info(ctx, "immediate scan started", slog.String("job_id", job.JobID))
	return w.runJob(ctx, job.JobID, w.opts.JobTimeout), nil
}
