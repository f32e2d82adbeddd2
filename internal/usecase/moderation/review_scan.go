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

type ReviewInput struct {
	ScanID      string
	ReviewerID  string
	Action      string
	Notes       string
	AddAsAnchor bool
}

type ReviewResult struct {
	Scan   ports.ScanRecord
	Anchor *ports.AnchorRecord
}

// ReviewScan records a human decision on a pending_review scan. Escalation
// keeps the scan in pending_review at the highest priority. AddAsAnchor is
// honored only for approvals. If the approval is recorded but the anchor
// cannot be created, the approved scan is returned together with the error.
func (s *Service) ReviewScan(ctx context.Context, input ReviewInput) (ReviewResult, error) {
	if err := s.checkStores(ctx); err != nil {
		return ReviewResult{}, err
	}
	ctx = withComponent(ctx)

	scanID := strings.TrimSpace(input.ScanID)
	if scanID == "" {
		return ReviewResult{}, fmt.Errorf("%w: scan_id is required", domain.ErrValidation)
	}
	reviewerID := strings.TrimSpace(input.ReviewerID)
	if reviewerID == "" {
		return ReviewResult{}, fmt.Errorf("%w: reviewer_id is required", domain.ErrValidation)
	}
	action, err := domain.ParseReviewAction(input.Action)
	if err != nil {
		return ReviewResult{}, err
	}

	scan, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return ReviewResult{}, err
	}
	if scan.Status != domain.ScanPendingReview {
		return ReviewResult{}, fmt.Errorf("%w: scan %s is %s, only %s scans can be reviewed",
			domain.ErrInvalidState, scanID, scan.Status, domain.ScanPendingReview)
	}
	addAnchor := input.AddAsAnchor && action == domain.ReviewApproved
	if addAnchor && strings.TrimSpace(scan.ModelID) == "" {
		return ReviewResult{}, fmt.Errorf("%w: scan %s has no model to anchor", domain.ErrValidation, scanID)
	}

	review := ports.ScanReview{
		ScanID:     scanID,
		Action:     action,
		ReviewerID: reviewerID,
		Notes:      strings.TrimSpace(input.Notes),
		ReviewedAt: s.nowString(),
	}
	if action == domain.ReviewEscalated {
		highest := domain.HighestPriority
		review.Priority = &highest
	}
	if err := s.scans.RecordReview(ctx, review); err != nil {
		return ReviewResult{}, err
	}

	result := ReviewResult{}
	var anchorErr error
	if addAnchor {
		anchor, err := s.AddModelAnchor(ctx, AddAnchorInput{
			ModelID:      scan.ModelID,
			StorageKey:   scan.StorageKey,
			StorageURL:   scan.StorageURL,
			AddedBy:      reviewerID,
			Note:         review.Notes,
			SourceScanID: scanID,
		})
		if err != nil {
			anchorErr = fmt.Errorf("scan %s approved but anchor not created: %w", scanID, err)
			logging.Warn(ctx, "review anchor not created", slog.Any("err", errs.Loggable(anchorErr)))
		} else {
			result.Anchor = &anchor
		}
	}

	updated, err := s.scans.GetScan(ctx, scanID)
	if err != nil {
		return ReviewResult{}, errors.Join(err, anchorErr)
	}
	result.Scan = updated

	logging.Info(ctx, "scan reviewed",
		slog.String("scan_id", scanID),
		slog.String("action", string(action)),
		slog.String("reviewer_id", reviewerID),
		slog.Bool("anchor_added", result.Anchor != nil),
	)
	s.publishBestEffort(ctx, ports.ModerationEvent{
		Type:   ports.EventScanReviewed,
		ScanID: scanID,
		Status: string(updated.Status),
		Actor:  reviewerID,
		Attributes: map[string]any{
			"action":       string(action),
			"anchor_added": result.Anchor != nil,
		},
	})
	s.invalidateStats(ctx)
	return result, anchorErr
}
