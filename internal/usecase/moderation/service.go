package moderation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
)

const (
	defaultMaxAttempts = 3
	defaultStatsTTL    = 30 * time.Second
	persistTimeout     = 5 * time.Second

	cacheKeyStats = "moderation:stats"
)

// Dependencies are the ports the moderation use cases run against. Vision is
// only needed by processing; Events, Assets and Cache fall back to no-ops.
type Dependencies struct {
	Scans   ports.ScanRepository
	Anchors ports.AnchorRepository
	Jobs    ports.JobRepository
	Vision  ports.VisionScanner
	Assets  ports.AssetURLResolver
	Events  ports.EventPublisher
	Cache   ports.Cache
	Policy  *PolicyHolder
}

type Options struct {
	MaxAttempts int
	StatsTTL    time.Duration
}

type Service struct {
	scans   ports.ScanRepository
	anchors ports.AnchorRepository
	jobs    ports.JobRepository
	vision  ports.VisionScanner
	assets  ports.AssetURLResolver
	events  ports.EventPublisher
	cache   ports.Cache
	policy  *PolicyHolder

	maxAttempts int
	statsTTL    time.Duration

	now   func() time.Time
	newID func() (string, error)
}

func NewService(deps Dependencies, opts Options) *Service {
	svc := &Service{
		scans:       deps.Scans,
		anchors:     deps.Anchors,
		jobs:        deps.Jobs,
		vision:      deps.Vision,
		assets:      deps.Assets,
		events:      deps.Events,
		cache:       deps.Cache,
		policy:      deps.Policy,
		maxAttempts: opts.MaxAttempts,
		statsTTL:    opts.StatsTTL,
		now:         time.Now,
		newID:       newUUIDv7,
	}
	if svc.assets == nil {
		svc.assets = storedURLResolver{}
	}
	if svc.events == nil {
		svc.events = discardEvents{}
	}
	if svc.policy == nil {
		svc.policy = NewPolicyHolder(domain.DefaultPolicy())
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.statsTTL <= 0 {
		svc.statsTTL = defaultStatsTTL
	}
	return svc
}

// Policy returns the decision policy currently in effect.
func (s *Service) Policy() domain.Policy {
	return s.policy.Load()
}

func (s *Service) checkStores(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}
	return s.requireStores()
}

func (s *Service) requireStores() error {
	if s.scans == nil {
		return errors.New("scan repository is required")
	}
	if s.anchors == nil {
		return errors.New("anchor repository is required")
	}
	if s.jobs == nil {
		return errors.New("job repository is required")
	}
	return nil
}

func (s *Service) nowString() string {
	return domain.FormatTimestamp(s.now())
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", errs.Wrap(err, "generate id")
	}
	return id.String(), nil
}

func withComponent(ctx context.Context) context.Context {
	return logging.WithAttrs(ctx, slog.String("component", "usecase.moderation"))
}

// persistContext outlives a cancelled or timed out caller so failure states
// still get written.
func persistContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
}

func (s *Service) publishBestEffort(ctx context.Context, event ports.ModerationEvent) {
	if event.OccurredAt == "" {
		event.OccurredAt = s.nowString()
	}
	if err := s.events.Publish(ctx, event); err != nil {
		logging.Warn(ctx, "publish moderation event failed",
			slog.String("event_type", event.Type),
			slog.String("scan_id", event.ScanID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}

func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyStats); err != nil {
		logging.Warn(ctx, "invalidate stats cache failed", slog.Any("err", errs.Loggable(err)))
	}
}

type storedURLResolver struct{}

func (storedURLResolver) ResolveURL(_ context.Context, _ string, fallbackURL string) (string, error) {
	if fallbackURL == "" {
		return "", errors.New("no storage url to resolve")
	}
	return fallbackURL, nil
}

type discardEvents struct{}

func (discardEvents) Publish(context.Context, ports.ModerationEvent) error { return nil }
