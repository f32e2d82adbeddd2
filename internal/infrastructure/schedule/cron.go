package schedule

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"creatorguard/internal/bootstrap/logging"
	"creatorguard/internal/errs"
)

// Task is one scheduled unit of work. It receives a context that is cancelled
// when the scheduler stops.
type Task func(ctx context.Context) error

// Scheduler runs the moderation worker cycle in-process. Overlapping runs of
// the same task are skipped rather than queued.
type Scheduler struct {
	cron    *cron.Cron
	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Int32
}

func NewScheduler(ctx context.Context) *Scheduler {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(logging.WithAttrs(ctx, slog.String("component", "schedule.cron")))
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add registers task under a cron expression such as "@every 1m" or "0 */5 * * * *".
func (s *Scheduler) Add(name string, spec string, task Task) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return errs.Wrapf(errEmptySpec, "schedule %s", name)
	}

	var busy atomic.Bool
	_, err := s.cron.AddFunc(spec, func() {
		if !busy.CompareAndSwap(false, true) {
			logging.Warn(s.ctx, "previous run still in progress, skipping", slog.String("task", name))
			return
		}
		defer busy.Store(false)

		s.running.Add(1)
		defer s.running.Add(-1)

		started := time.Now()
		if err := task(s.ctx); err != nil {
			logging.Error(s.ctx, "scheduled task failed",
				slog.String("task", name),
				slog.Any("err", errs.Loggable(err)),
			)
			return
		}
		logging.Info(s.ctx, "scheduled task finished",
			slog.String("task", name),
			slog.Duration("elapsed", time.Since(started)),
		)
	})
	if err != nil {
		return errs.Wrapf(err, "schedule %s", name)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels in-flight tasks and waits for them up to the context deadline.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return errs.Wrap(ctx.Err(), "wait for scheduled tasks")
	}
}

// Running reports how many task invocations are in flight.
func (s *Scheduler) Running() int {
	return int(s.running.Load())
}

type scheduleError string

func (e scheduleError) Error() string { return string(e) }

const errEmptySpec = scheduleError("cron spec is required")
