package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/ports"
)

// rescannable are the states an explicit re-scan request may leave.
var rescannable = []domain.ScanStatus{domain.ScanApproved, domain.ScanRejected, domain.ScanFailed}

type RescanInput struct {
	ScanID      string
	RequestedBy string
	Priority    *int
}

type BulkRescanInput struct {
	ModelID     string
	ScanIDs     []string
	RequestedBy string
	Priority    *int
}

type BulkRescanResult struct {
	JobID   string
	ScanIDs []string
	Skipped []string
}

// RequestRescan returns a decided or failed scan to pending_scan and queues a
// new job for it.
func (s *Service) RequestRescan(ctx context.Context, input RescanInput) (string, error) {
	if err := s.checkStores(ctx); err != nil {
		return "", err
	}
	ctx = withComponent(ctx)

	scanID := strings.TrimSpace(input.ScanID)
	if scanID == "" {
		return "", fmt.Errorf("%w: scan_id is required", domain.ErrValidation)
	}
	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return "", err
	}
	if !lo.Contains(rescannable, scan.Status) {
		return "", fmt.Errorf("%w: scan %s is %s and cannot be re-scanned", domain.ErrInvalidState, scanID, scan.Status)
	}

	priority := scan.Priority
	if input.Priority != nil {
		priority = *input.Priority
	}
	if err := domain.ValidatePriority(priority); err != nil {
		return "", err
	}

	reset, err := s.scans.ResetScan(ctx, scanID, rescannable, &priority, s.nowString())
	if err != nil {
		return "", err
	}
	if !reset {
		return "", fmt.Errorf("%w: scan %s changed state before the re-scan", domain.ErrInvalidState, scanID)
	}

	job, err := s.enqueueJob(ctx, scan.TargetType.JobType(), []string{scanID}, priority)
	if err != nil {
		s.failOrphanScan(ctx, scanID, err)
		return "", err
	}

	logging.Info(ctx, "re-scan queued",
		slog.String("scan_id", scanID),
		slog.String("job_id", job.JobID),
		slog.String("requested_by", input.RequestedBy),
		slog.String("previous_status", string(scan.Status)),
	)
	s.invalidateStats(ctx)
	return job.JobID, nil
}

// BulkRescan queues one bulk_rescan job covering every re-scannable scan of a
// model, or of an explicit id list. Scans that are in flight or awaiting review
// are skipped.
func (s *Service) BulkRescan(ctx context.Context, input BulkRescanInput) (BulkRescanResult, error) {
	if err := s.checkStores(ctx); err != nil {
		return BulkRescanResult{}, err
	}
	ctx = withComponent(ctx)

	modelID := strings.TrimSpace(input.ModelID)
	requested := lo.Uniq(lo.Compact(lo.Map(input.ScanIDs, func(id string, _ int) string {
		return strings.TrimSpace(id)
	})))
	if modelID == "" && len(requested) == 0 {
		return BulkRescanResult{}, fmt.Errorf("%w: model_id or scan_ids is required", domain.ErrValidation)
	}

	priority := domain.DefaultPriority
	if input.Priority != nil {
		priority = *input.Priority
	}
	if err := domain.ValidatePriority(priority); err != nil {
		return BulkRescanResult{}, err
	}

	candidates, err := s.scans.ListScans(ctx, ports.ScanFilter{
		ModelID:  modelID,
		ScanIDs:  requested,
		Statuses: rescannable,
	})
	if err != nil {
		return BulkRescanResult{}, err
	}

	now := s.nowString()
	result := BulkRescanResult{}
	for _, scan := range candidates {
		reset, err := s.scans.ResetScan(ctx, scan.ScanID, rescannable, &priority, now)
		if err != nil {
			return BulkRescanResult{}, err
		}
		if reset {
			result.ScanIDs = append(result.ScanIDs, scan.ScanID)
		}
	}
	result.Skipped = lo.Without(requested, result.ScanIDs...)

	if len(result.ScanIDs) == 0 {
		return result, fmt.Errorf("%w: no scans eligible for re-scan", domain.ErrInvalidState)
	}

	job, err := s.enqueueJob(ctx, domain.JobBulkRescan, result.ScanIDs, priority)
	if err != nil {
		for _, scanID := range result.ScanIDs {
			s.failOrphanScan(ctx, scanID, err)
		}
		return BulkRescanResult{}, err
	}
	result.JobID = job.JobID

	logging.Info(ctx, "bulk re-scan queued",
		slog.String("job_id", job.JobID),
		slog.String("model_id", modelID),
		slog.Int("scans", len(result.ScanIDs)),
		slog.Int("skipped", len(result.Skipped)),
		slog.String("requested_by", input.RequestedBy),
	)
	s.invalidateStats(ctx)
	return result, nil
}

// EnsureScanJob returns the open job of a scan, queueing one when the scan has
// none: pending scans get a fresh job, decided or failed scans are re-scanned.
// Scans being scanned or awaiting human review are refused.
func (s *Service) EnsureScanJob(ctx context.Context, scanID string, requestedBy string) (ports.JobRecord, error) {
	if err := s.checkStores(ctx); err != nil {
		return ports.JobRecord{}, err
	}
	ctx = withComponent(ctx)

	scan, err := s.GetScan(ctx, scanID)
	if err != nil {
		return ports.JobRecord{}, err
	}
	switch scan.Status {
	case domain.ScanScanning:
		return ports.JobRecord{}, fmt.Errorf("%w: scan %s is already being scanned by %q", domain.ErrInvalidState, scan.ScanID, scan.ScannedBy)
	case domain.ScanPendingReview:
		return ports.JobRecord{}, fmt.Errorf("%w: scan %s is awaiting human review", domain.ErrInvalidState, scan.ScanID)
	}

	job, err := s.jobs.FindOpenJobForScan(ctx, scan.ScanID)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return ports.JobRecord{}, err
	}

	if scan.Status == domain.ScanPendingScan {
		return s.enqueueJob(ctx, scan.TargetType.JobType(), []string{scan.ScanID}, scan.Priority)
	}
	jobID, err := s.RequestRescan(ctx, RescanInput{ScanID: scan.ScanID, RequestedBy: requestedBy})
	if err != nil {
		return ports.JobRecord{}, err
	}
	return s.jobs.GetJob(ctx, jobID)
}
