package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"creatorguard/internal/ports"
	"creatorguard/internal/usecase/jobworker"
	"creatorguard/internal/usecase/moderation"
)

const defaultStreamInterval = 5 * time.Second

type ModerationService interface {
	QueueUploadForModeration(ctx context.Context, input moderation.UploadInput) (string, error)
	GetScan(ctx context.Context, scanID string) (ports.ScanRecord, error)
	ListQueue(ctx context.Context, filter moderation.ListFilter) (moderation.QueuePage, error)
	ListJobs(ctx context.Context, filter moderation.JobListFilter) (moderation.JobPage, error)
	GetJob(ctx context.Context, jobID string) (ports.JobRecord, error)
	ReviewScan(ctx context.Context, input moderation.ReviewInput) (moderation.ReviewResult, error)
	RequestRescan(ctx context.Context, input moderation.RescanInput) (string, error)
	BulkRescan(ctx context.Context, input moderation.BulkRescanInput) (moderation.BulkRescanResult, error)
	GetModerationStats(ctx context.Context) (moderation.Stats, error)
	GetModelAnchors(ctx context.Context, modelID string) ([]ports.AnchorRecord, error)
	AddModelAnchor(ctx context.Context, input moderation.AddAnchorInput) (ports.AnchorRecord, error)
	RemoveModelAnchor(ctx context.Context, modelID string, anchorID string, removedBy string) error
}

type QueueWorker interface {
	RunCycle(ctx context.Context) (jobworker.CycleSummary, error)
	TriggerImmediateScan(ctx context.Context, scanID string, requestedBy string) (jobworker.JobOutcome, error)
	CancelJob(ctx context.Context, jobID string) error
	RetryJob(ctx context.Context, jobID string) error
	PrioritizeJob(ctx context.Context, jobID string, priority int) error
	GetQueueStats(ctx context.Context) (jobworker.QueueStats, error)
}

// WorkerFactory returns a worker for one request; an empty id asks for a fresh one.
type WorkerFactory func(workerID string) (QueueWorker, error)

type AuthConfig struct {
	JWTSecret      string
	AdminRoles     []string
	CronSecret     string
	InternalSecret string
}

type Options struct {
	Auth           AuthConfig
	StreamInterval time.Duration
	Health         func(ctx context.Context) error
}

type handler struct {
	svc       ModerationService
	newWorker WorkerFactory
	opts      Options
}

// NewRouter mounts the internal, cron and admin moderation APIs.
func NewRouter(svc ModerationService, newWorker WorkerFactory, opts Options) http.Handler {
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = defaultStreamInterval
	}
	h := &handler{svc: svc, newWorker: newWorker, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(recoverer)

	r.Get("/healthz", h.health)

	r.Route("/api/internal/moderation", func(r chi.Router) {
		secret := opts.Auth.InternalSecret
		if secret == "" {
			secret = opts.Auth.CronSecret
		}
		r.Use(requireBearerSecret(secret))
		r.Post("/scans", h.enqueueScan)
	})

	r.Route("/api/cron/moderation", func(r chi.Router) {
		r.Use(requireBearerSecret(opts.Auth.CronSecret))
		r.Get("/", h.runCron)
		r.Post("/", h.runCron)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(requireAdmin(opts.Auth.JWTSecret, opts.Auth.AdminRoles))

		r.Route("/moderation", func(r chi.Router) {
			r.Get("/queue", h.listQueue)
			r.Get("/stats", h.stats)
			r.Get("/stream", h.stream)
			r.Post("/rescan", h.bulkRescan)

			r.Route("/scans/{scanID}", func(r chi.Router) {
				r.Get("/", h.getScan)
				r.Post("/review", h.reviewScan)
				r.Post("/scan-now", h.scanNow)
				r.Post("/rescan", h.rescanScan)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", h.listJobs)
				r.Post("/{jobID}/cancel", h.cancelJob)
				r.Post("/{jobID}/retry", h.retryJob)
				r.Post("/{jobID}/prioritize", h.prioritizeJob)
			})
		})

		r.Route("/models/{modelID}/anchors", func(r chi.Router) {
			r.Get("/", h.listAnchors)
			r.Post("/", h.addAnchor)
			r.Delete("/{anchorID}", h.removeAnchor)
		})
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
