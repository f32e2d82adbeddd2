package jobworker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
	"creatorguard/internal/usecase/moderation"
)

const (
	defaultMaxJobs         = 5
	defaultJobTimeout      = 30 * time.Second
	defaultStaleMultiplier = 4
	defaultCycleTTL        = 24 * time.Hour

	cacheKeyLastCycle = "worker:last_cycle"
)

// Processor is the part of the moderation service a worker drives.
type Processor interface {
	ProcessScanJob(ctx context.Context, jobID string, workerID string) (moderation.ProcessResult, error)
	AbandonJob(ctx context.Context, jobID string, workerID string, cause error) error
	EnsureScanJob(ctx context.Context, scanID string, requestedBy string) (ports.JobRecord, error)
}

type Dependencies struct {
	Processor Processor
	Scans     ports.ScanRepository
	Jobs      ports.JobRepository
	Cache     ports.Cache
}

type Options struct {
	MaxJobs         int
	JobTimeout      time.Duration
	StaleMultiplier int
}

func (o Options) withDefaults() Options {
	if o.MaxJobs <= 0 {
		o.MaxJobs = defaultMaxJobs
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = defaultJobTimeout
	}
	if o.StaleMultiplier <= 0 {
		o.StaleMultiplier = defaultStaleMultiplier
	}
	return o
}

// Factory builds one Worker per invocation.
type Factory struct {
	deps Dependencies
	opts Options
}

func NewFactory(deps Dependencies, opts Options) *Factory {
	return &Factory{deps: deps, opts: opts.withDefaults()}
}

// New returns a worker running as workerID, or under a fresh UUID when workerID is empty.
func (f *Factory) New(workerID string) (*Worker, error) {
	return New(f.deps, f.opts, workerID)
}

type Worker struct {
	id        string
	processor Processor
	scans     ports.ScanRepository
	jobs      ports.JobRepository
	cache     ports.Cache
	opts      Options

	now func() time.Time
}

func New(deps Dependencies, opts Options, workerID string) (*Worker, error) {
	if deps.Processor == nil {
		return nil, errors.New("job processor is required")
	}
	if deps.Scans == nil {
		return nil, errors.New("scan repository is required")
	}
	if deps.Jobs == nil {
		return nil, errors.New("job repository is required")
	}

	workerID = strings.TrimSpace(workerID)
	if workerID == "" {
		id, err := uuid.NewRandom()
		if err != nil {
			return nil, errs.Wrap(err, "generate worker id")
		}
		workerID = id.String()
	}

	return &Worker{
		id:        workerID,
		processor: deps.Processor,
		scans:     deps.Scans,
		jobs:      deps.Jobs,
		cache:     deps.Cache,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}, nil
}

func (w *Worker) ID() string {
	return w.id
}

func (w *Worker) nowString() string {
	return domain.FormatTimestamp(w.now())
}

func (w *Worker) withComponent(ctx context.Context) context.Context {
	return logging.WithAttrs(ctx,
		slog.String("component", "usecase.jobworker"),
		slog.String("worker_id", w.id),
	)
}

func checkContext(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	return nil
}
