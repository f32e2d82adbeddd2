package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
)

type ScanResult struct {
	ScanID  string
	Status  domain.ScanStatus
	Flags   []domain.Flag
	Skipped bool
	Error   string
}

type ProcessResult struct {
	JobID string
	Scans []ScanResult
}

// ProcessScanJob runs one claimed job: every referenced scan is moved to
// scanning, analyzed, decided and persisted, then the job is completed. The
// caller must hold the job as workerID. Writes that find the claim gone are
// no-ops and surface as domain.ErrClaimLost.
func (s *Service) ProcessScanJob(ctx context.Context, jobID string, workerID string) (ProcessResult, error) {
	if err := s.checkStores(ctx); err != nil {
		return ProcessResult{}, err
	}
	ctx = logging.WithAttrs(withComponent(ctx),
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return ProcessResult{}, err
	}
	if job.Status != domain.JobProcessing || job.WorkerID != workerID {
		return ProcessResult{}, fmt.Errorf("%w: job %s is %s held by %q", domain.ErrClaimLost, jobID, job.Status, job.WorkerID)
	}

	result := ProcessResult{JobID: jobID}
	var failures []error
	for _, scanID := range jobScanIDs(job) {
		if err := ctx.Err(); err != nil {
			failures = append(failures, errs.Wrap(err, "process scans"))
			break
		}

		scanResult, err := s.processScan(ctx, scanID, workerID)
		if err != nil {
			scanResult.Error = err.Error()
			failures = append(failures, fmt.Errorf("scan %s: %w", scanID, err))
		}
		result.Scans = append(result.Scans, scanResult)
	}
	s.invalidateStats(ctx)

	if len(failures) > 0 {
		cause := errors.Join(failures...)
		s.failJob(ctx, jobID, workerID, cause)
		return result, cause
	}

	persistCtx, cancel := persistContext(ctx)
	defer cancel()
	completed, err := s.jobs.CompleteJob(persistCtx, jobID, workerID, s.nowString())
	if err != nil {
		return result, err
	}
	if !completed {
		return result, fmt.Errorf("%w: job %s", domain.ErrClaimLost, jobID)
	}

	logging.Info(ctx, "job completed", slog.Int("scans", len(result.Scans)))
	return result, nil
}

func (s *Service) processScan(ctx context.Context, scanID string, workerID string) (ScanResult, error) {
	out := ScanResult{ScanID: scanID}

	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return out, err
	}
	out.Status = scan.Status
	if scan.Status.Decided() {
		out.Skipped = true
		out.Flags = scan.Flags
		logging.Info(ctx, "scan already decided, skipping", slog.String("scan_id", scanID), slog.String("status", string(scan.Status)))
		return out, nil
	}
	if scan.Status == domain.ScanScanning && scan.ScannedBy != workerID {
		out.Skipped = true
		logging.Info(ctx, "scan held by another worker, skipping",
			slog.String("scan_id", scanID),
			slog.String("scanned_by", scan.ScannedBy),
		)
		return out, nil
	}
	if scan.Status != domain.ScanPendingScan {
		return out, fmt.Errorf("%w: scan %s is %s", domain.ErrInvalidState, scanID, scan.Status)
	}

	scan, err = s.scans.BeginScan(ctx, scanID, workerID, s.nowString())
	if err != nil {
		return out, err
	}
	out.Status = scan.Status

	vision, anchorCount, err := s.runVisionScan(ctx, scan)
	if err != nil {
		s.failScan(ctx, scanID, workerID, err)
		out.Status = domain.ScanFailed
		return out, err
	}

	flags, unknown := domain.NormalizeFlags(vision.Flags)
	if len(unknown) > 0 {
		logging.Warn(ctx, "vision returned unknown flags", slog.String("scan_id", scanID), slog.Any("flags", unknown))
	}
	decision := s.policy.Load().Decide(domain.Assessment{
		Flags:         flags,
		Confidence:    vision.Confidence,
		DetectedFaces: vision.DetectedFaces,
	}, anchorCount)

	confidence := vision.Confidence
	faces := vision.DetectedFaces
	persistCtx, cancel := persistContext(ctx)
	defer cancel()
	if err := s.scans.RecordScanOutcome(persistCtx, ports.ScanOutcome{
		ScanID:        scanID,
		ClaimToken:    workerID,
		Status:        decision.Status,
		Flags:         decision.Flags,
		Confidence:    &confidence,
		DetectedFaces: &faces,
		CompletedAt:   s.nowString(),
	}); err != nil {
		return out, err
	}

	out.Status = decision.Status
	out.Flags = decision.Flags
	logging.Info(ctx, "scan decided",
		slog.String("scan_id", scanID),
		slog.String("status", string(decision.Status)),
		slog.String("reason", decision.Reason),
		slog.Float64("confidence", confidence),
		slog.Int("anchors", anchorCount),
	)
	s.publishBestEffort(ctx, ports.ModerationEvent{
		Type:   ports.EventScanDecided,
		ScanID: scanID,
		Status: string(decision.Status),
		Actor:  workerID,
		Attributes: map[string]any{
			"flags":      domain.FlagStrings(decision.Flags),
			"confidence": confidence,
			"reason":     decision.Reason,
		},
	})
	return out, nil
}

// AbandonJob fails a job the caller gave up on, together with every scan of
// the job that has not been decided yet. Scans held by another worker are left alone.
func (s *Service) AbandonJob(ctx context.Context, jobID string, workerID string, cause error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := s.requireStores(); err != nil {
		return err
	}
	persistCtx, cancel := persistContext(ctx)
	defer cancel()
	persistCtx = logging.WithAttrs(withComponent(persistCtx),
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	job, err := s.jobs.GetJob(persistCtx, jobID)
	if err != nil {
		return err
	}
	for _, scanID := range jobScanIDs(job) {
		s.failScan(persistCtx, scanID, workerID, cause)
	}
	s.failJob(persistCtx, jobID, workerID, cause)
	s.invalidateStats(persistCtx)
	return nil
}

func (s *Service) failScan(ctx context.Context, scanID string, workerID string, cause error) {
	persistCtx, cancel := persistContext(ctx)
	defer cancel()

	changed, err := s.scans.FailScan(persistCtx, scanID, workerID, cause.Error(), s.nowString())
	if err != nil {
		logging.Error(ctx, "mark scan failed",
			slog.String("scan_id", scanID),
			slog.Any("err", errs.Loggable(err)),
		)
		return
	}
	if changed {
		logging.Warn(ctx, "scan failed",
			slog.String("scan_id", scanID),
			slog.Any("err", errs.Loggable(cause)),
		)
	}
}

func (s *Service) failJob(ctx context.Context, jobID string, workerID string, cause error) {
	persistCtx, cancel := persistContext(ctx)
	defer cancel()

	changed, err := s.jobs.FailJob(persistCtx, jobID, workerID, cause.Error(), s.nowString())
	if err != nil {
		logging.Error(ctx, "mark job failed", slog.Any("err", errs.Loggable(err)))
		return
	}
	if !changed {
		logging.Warn(ctx, "job no longer held, failure not recorded")
		return
	}

	logging.Warn(ctx, "job failed", slog.Any("err", errs.Loggable(cause)))
	s.publishBestEffort(ctx, ports.ModerationEvent{
		Type:   ports.EventJobFailed,
		JobID:  jobID,
		Status: string(domain.JobFailed),
		Actor:  workerID,
		Attributes: map[string]any{
			"error": cause.Error(),
		},
	})
}

func jobScanIDs(job ports.JobRecord) []string {
	if len(job.ScanIDs) > 0 {
		return job.ScanIDs
	}
	if strings.TrimSpace(job.ScanID) == "" {
		return nil
	}
	return []string{job.ScanID}
}
