package jobworker

import (
	"context"
	"encoding/json"
	"log/slog"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
)

type CycleSummary struct {
	WorkerID   string          `json:"worker_id"`
	StartedAt  string          `json:"started_at"`
	Recovery   RecoverySummary `json:"recovery"`
	Process    ProcessSummary  `json:"process"`
	Stats      QueueStats      `json:"stats"`
	DurationMS int64           `json:"duration_ms"`
}

// RunCycle is one scheduler tick: stale jobs are recovered before the queue is
// processed, so their scans can be picked up in the same cycle.
func (w *Worker) RunCycle(ctx context.Context) (CycleSummary, error) {
	if err := checkContext(ctx); err != nil {
		return CycleSummary{}, err
	}
	ctx = w.withComponent(ctx)

	started := w.now()
	summary := CycleSummary{
		WorkerID:  w.id,
		StartedAt: domain.FormatTimestamp(started),
	}

	recovery, err := w.RecoverStaleJobs(ctx, 0)
	if err != nil {
		return summary, errs.Wrap(err, "recover stale jobs")
	}
	summary.Recovery = recovery

	process, err := w.ProcessJobQueue(ctx, ProcessOptions{})
	summary.Process = process
	if err != nil {
		return summary, errs.Wrap(err, "process job queue")
	}

	stats, err := w.GetQueueStats(context.WithoutCancel(ctx))
	if err != nil {
		return summary, errs.Wrap(err, "queue stats")
	}
	summary.Stats = stats
	summary.DurationMS = w.now().Sub(started).Milliseconds()

	w.storeLastCycle(ctx, summary)
	return summary, nil
}

// LastCycle returns the summary the most recent cycle left in the cache.
func (w *Worker) LastCycle(ctx context.Context) (CycleSummary, bool, error) {
	if err := checkContext(ctx); err != nil {
		return CycleSummary{}, false, err
	}
	if w.cache == nil {
		return CycleSummary{}, false, nil
	}
	raw, ok, err := w.cache.Get(ctx, cacheKeyLastCycle)
	if err != nil || !ok {
		return CycleSummary{}, false, err
	}
	var summary CycleSummary
	if err := json.Unmarshal([]byte(raw), &summary); err != nil {
		return CycleSummary{}, false, errs.Wrap(err, "decode last cycle")
	}
	return summary, true, nil
}

func (w *Worker) storeLastCycle(ctx context.Context, summary CycleSummary) {
	if w.cache == nil {
		return
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		logging.Warn(ctx, "encode cycle summary", slog.Any("err", errs.Loggable(err)))
		return
	}
	if err := w.cache.Set(context.WithoutCancel(ctx), cacheKeyLastCycle, string(raw), defaultCycleTTL); err != nil {
		logging.Warn(ctx, "store cycle summary", slog.Any("err", errs.Loggable(err)))
	}
}
