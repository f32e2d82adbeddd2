package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
)

type CreateScanInput struct {
	TargetType string
	TargetID   string
	ModelID    string
	CreatorID  string
	StorageKey string
	StorageURL string
	// Priority defaults to 5 when nil. Values outside 1..10 are rejected.
	Priority *int
}

// UploadInput is what the upload-complete hook hands over. A nil priority is
// derived from the target type.
type UploadInput struct {
	TargetType string
	TargetID   string
	ModelID    string
	CreatorID  string
	StorageKey string
	StorageURL string
	Priority   *int
}

// CreateScan records a pending_scan scan and queues the job that will scan it.
func (s *Service) CreateScan(ctx context.Context, input CreateScanInput) (string, error) {
	if err := s.checkStores(ctx); err != nil {
		return "", err
	}
	ctx = withComponent(ctx)

	scan, err := s.buildScan(input)
	if err != nil {
		return "", err
	}

	if _, err := s.scans.CreateScan(ctx, scan); err != nil {
		return "", err
	}

	job, err := s.enqueueJob(ctx, scan.TargetType.JobType(), []string{scan.ScanID}, scan.Priority)
	if err != nil {
		s.failOrphanScan(ctx, scan.ScanID, err)
		return "", err
	}

	logging.Info(ctx, "scan queued",
		slog.String("scan_id", scan.ScanID),
		slog.String("job_id", job.JobID),
		slog.String("target_type", string(scan.TargetType)),
		slog.Int("priority", scan.Priority),
	)
	s.invalidateStats(ctx)
	return scan.ScanID, nil
}

func (s *Service) QueueUploadForModeration(ctx context.Context, input UploadInput) (string, error) {
	priority := input.Priority
	if priority == nil {
		target, err := domain.ParseTargetType(input.TargetType)
		if err != nil {
			return "", err
		}
		derived := target.DefaultPriority()
		priority = &derived
	}

	return s.CreateScan(ctx, CreateScanInput{
		TargetType: input.TargetType,
		TargetID:   input.TargetID,
		ModelID:    input.ModelID,
		CreatorID:  input.CreatorID,
		StorageKey: input.StorageKey,
		StorageURL: input.StorageURL,
		Priority:   priority,
	})
}

func (s *Service) buildScan(input CreateScanInput) (ports.ScanRecord, error) {
	target, err := domain.ParseTargetType(input.TargetType)
	if err != nil {
		return ports.ScanRecord{}, err
	}

	required := map[string]string{
		"target_id":   input.TargetID,
		"creator_id":  input.CreatorID,
		"storage_key": input.StorageKey,
		"storage_url": input.StorageURL,
	}
	for _, field := range []string{"target_id", "creator_id", "storage_key", "storage_url"} {
		if strings.TrimSpace(required[field]) == "" {
			return ports.ScanRecord{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, field)
		}
	}

	priority := domain.DefaultPriority
	if input.Priority != nil {
		priority = *input.Priority
	}
	if err := domain.ValidatePriority(priority); err != nil {
		return ports.ScanRecord{}, err
	}

	scanID, err := s.newID()
	if err != nil {
		return ports.ScanRecord{}, err
	}
	now := s.nowString()

	return ports.ScanRecord{
		ScanID:     scanID,
		TargetType: target,
		TargetID:   strings.TrimSpace(input.TargetID),
		ModelID:    strings.TrimSpace(input.ModelID),
		CreatorID:  strings.TrimSpace(input.CreatorID),
		StorageKey: strings.TrimSpace(input.StorageKey),
		StorageURL: strings.TrimSpace(input.StorageURL),
		Priority:   priority,
		Status:     domain.ScanPendingScan,
		Flags:      []domain.Flag{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (s *Service) enqueueJob(ctx context.Context, jobType domain.JobType, scanIDs []string, priority int) (ports.JobRecord, error) {
	if len(scanIDs) == 0 {
		return ports.JobRecord{}, fmt.Errorf("%w: a job needs at least one scan", domain.ErrValidation)
	}
	jobID, err := s.newID()
	if err != nil {
		return ports.JobRecord{}, err
	}
	now := s.nowString()

	job, err := s.jobs.CreateJob(ctx, ports.JobRecord{
		JobID:       jobID,
		JobType:     jobType,
		ScanID:      scanIDs[0],
		ScanIDs:     scanIDs,
		Status:      domain.JobQueued,
		Priority:    priority,
		MaxAttempts: s.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return ports.JobRecord{}, errs.Wrap(err, "queue moderation job")
	}
	return job, nil
}

// failOrphanScan marks a scan failed when its job could not be written, so it
// shows up as retryable instead of waiting forever.
func (s *Service) failOrphanScan(ctx context.Context, scanID string, cause error) {
	persistCtx, cancel := persistContext(ctx)
	defer cancel()

	if _, err := s.scans.FailScan(persistCtx, scanID, "", "enqueue failed: "+cause.Error(), s.nowString()); err != nil {
		logging.Error(ctx, "mark orphan scan failed",
			slog.String("scan_id", scanID),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}
