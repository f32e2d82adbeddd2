package jobworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
	"creatorguard/internal/usecase/moderation"
)

// candidateSlack widens each candidate listing so jobs lost to other workers
// do not end a batch early.
const candidateSlack = 5

type ProcessOptions struct {
	MaxJobs    int
	JobTimeout time.Duration
}

type JobOutcome struct {
	JobID    string                  `json:"job_id"`
	Status   domain.JobStatus        `json:"status"`
	TimedOut bool                    `json:"timed_out,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Scans    []moderation.ScanResult `json:"-"`
}

type ProcessSummary struct {
	Claimed   int          `json:"claimed"`
	Processed int          `json:"processed"`
	Failed    int          `json:"failed"`
	Remaining int64        `json:"remaining"`
	Results   []JobOutcome `json:"results,omitempty"`
}

// ProcessJobQueue claims queued jobs in queue order and runs them one at a
// time, each bounded by the job timeout. Failed or timed out jobs are counted
// and the batch moves on.
func (w *Worker) ProcessJobQueue(ctx context.Context, opts ProcessOptions) (ProcessSummary, error) {
	if err := checkContext(ctx); err != nil {
		return ProcessSummary{}, err
	}
	ctx = w.withComponent(ctx)

	maxJobs := opts.MaxJobs
	if maxJobs <= 0 {
		maxJobs = w.opts.MaxJobs
	}
	timeout := opts.JobTimeout
	if timeout <= 0 {
		timeout = w.opts.JobTimeout
	}

	summary := ProcessSummary{}
	for summary.Claimed < maxJobs {
		if ctx.Err() != nil {
			break
		}
		candidates, err := w.jobs.ListQueuedJobs(ctx, maxJobs-summary.Claimed+candidateSlack)
		if err != nil {
			return summary, err
		}
		if len(candidates) == 0 {
			break
		}

		claimedThisRound := 0
		for _, candidate := range candidates {
			if summary.Claimed >= maxJobs || ctx.Err() != nil {
				break
			}
			claimed, err := w.jobs.ClaimJob(ctx, candidate.JobID, w.id, w.nowString())
			if err != nil {
				return summary, err
			}
			if !claimed {
				logging.Info(ctx, "job claimed by another worker", slog.String("job_id", candidate.JobID))
				continue
			}
			summary.Claimed++
			claimedThisRound++

			outcome := w.runJob(ctx, candidate.JobID, timeout)
			if outcome.Status == domain.JobCompleted {
				summary.Processed++
			} else {
				summary.Failed++
			}
			summary.Results = append(summary.Results, outcome)
		}
		if claimedThisRound == 0 {
			break
		}
	}

	remaining, err := w.jobs.CountJobs(context.WithoutCancel(ctx), ports.JobFilter{
		Statuses: []domain.JobStatus{domain.JobQueued},
	})
	if err != nil {
		return summary, err
	}
	summary.Remaining = remaining

	logging.Info(ctx, "job queue processed",
		slog.Int("claimed", summary.Claimed),
		slog.Int("processed", summary.Processed),
		slog.Int("failed", summary.Failed),
		slog.Int64("remaining", summary.Remaining),
	)
	return summary, nil
}

type jobRun struct {
	result   moderation.ProcessResult
	err      error
	panicked bool
}

// runJob processes a claimed job in its own goroutine. If the timeout fires
// first the job is abandoned and the goroutine is left to observe its
// cancelled context; its late writes no longer hold the claim.
func (w *Worker) runJob(ctx context.Context, jobID string, timeout time.Duration) JobOutcome {
	ctx = logging.WithJob(ctx, jobID)
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stopHeartbeat := w.startHeartbeat(jobCtx, jobID, timeout/3)
	defer stopHeartbeat()

	done := make(chan jobRun, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- jobRun{err: errs.Recovered(rec), panicked: true}
			}
		}()
		result, err := w.processor.ProcessScanJob(jobCtx, jobID, w.id)
		done <- jobRun{result: result, err: err}
	}()

	select {
	case run := <-done:
		if run.panicked {
			return w.fail(ctx, jobID, run.err)
		}
		if run.err != nil && jobCtx.Err() != nil {
			return w.abandon(ctx, jobID, timeout)
		}
		outcome := JobOutcome{JobID: jobID, Status: domain.JobCompleted, Scans: run.result.Scans}
		if run.err != nil {
			outcome.Status = domain.JobFailed
			outcome.Error = run.err.Error()
			logging.Warn(ctx, "job processing failed", slog.Any("err", errs.Loggable(run.err)))
		}
		return outcome
	case <-jobCtx.Done():
		return w.abandon(ctx, jobID, timeout)
	}
}

// fail releases a job whose processing panicked, marking it and its
// in-flight scans failed.
func (w *Worker) fail(ctx context.Context, jobID string, cause error) JobOutcome {
	logging.Error(ctx, "job processing panicked", slog.Any("err", errs.Loggable(cause)))
	if err := w.processor.AbandonJob(context.WithoutCancel(ctx), jobID, w.id, cause); err != nil {
		logging.Error(ctx, "abandon job", slog.Any("err", errs.Loggable(err)))
	}
	return JobOutcome{JobID: jobID, Status: domain.JobFailed, Error: cause.Error()}
}

func (w *Worker) abandon(ctx context.Context, jobID string, timeout time.Duration) JobOutcome {
	cause := fmt.Errorf("%w: job %s exceeded %s", domain.ErrTimeout, jobID, timeout)
	if ctx.Err() != nil {
		cause = errs.Wrap(ctx.Err(), "worker stopped")
	}
	if err := w.processor.AbandonJob(ctx, jobID, w.id, cause); err != nil {
		logging.Error(ctx, "abandon job", slog.Any("err", errs.Loggable(err)))
	}
	logging.Warn(ctx, "job timed out", slog.Duration("timeout", timeout))
	return JobOutcome{JobID: jobID, Status: domain.JobFailed, TimedOut: true, Error: cause.Error()}
}

// startHeartbeat refreshes heartbeat_at until ctx ends or the returned stop
// func is called.
func (w *Worker) startHeartbeat(ctx context.Context, jobID string, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	stop := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				alive, err := w.jobs.Heartbeat(ctx, jobID, w.id, w.nowString())
				if err != nil {
					if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
						logging.Warn(ctx, "job heartbeat failed", slog.Any("err", errs.Loggable(err)))
					}
					continue
				}
				if !alive {
					return
				}
			}
		}
	}()
	return func() {
		close(stop)
		<-finished
	}
}
