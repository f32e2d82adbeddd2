package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/infrastructure/persistence/gormdb/model"
	"creatorguard/internal/ports"
)

func (r *ModerationRepository) CreateScan(ctx context.Context, scan ports.ScanRecord) (ports.ScanRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ScanRecord{}, err
	}

	row := model.ModerationScan{
		ScanID:        scan.ScanID,
		TargetType:    string(scan.TargetType),
		TargetID:      scan.TargetID,
		ModelID:       optionalString(scan.ModelID),
		CreatorID:     scan.CreatorID,
		StorageKey:    scan.StorageKey,
		StorageURL:    scan.StorageURL,
		Priority:      scan.Priority,
		Status:        string(scan.Status),
		Flags:         nonNilStrings(domain.FlagStrings(scan.Flags)),
		Confidence:    scan.Confidence,
		DetectedFaces: scan.DetectedFaces,
		CreatedAt:     scan.CreatedAt,
		UpdatedAt:     scan.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.ScanRecord{}, errs.Wrap(err, "insert moderation scan")
	}
	return mapScan(row), nil
}

func (r *ModerationRepository) GetScan(ctx context.Context, scanID string) (ports.ScanRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ScanRecord{}, err
	}
	return getScanByID(db, scanID)
}

func (r *ModerationRepository) ListScans(ctx context.Context, filter ports.ScanFilter) ([]ports.ScanRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := pageQuery(applyScanFilter(db.Model(&model.ModerationScan{}), filter), filter.Limit, filter.Offset)

	var rows []model.ModerationScan
	if err := query.Order("priority asc").Order("created_at asc").Order("scan_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query moderation scans")
	}

	items := make([]ports.ScanRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapScan(row))
	}
	return items, nil
}

func (r *ModerationRepository) CountScans(ctx context.Context, filter ports.ScanFilter) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := applyScanFilter(db.Model(&model.ModerationScan{}), filter).Count(&total).Error; err != nil {
		return 0, errs.Wrap(err, "count moderation scans")
	}
	return total, nil
}

// BeginScan moves a pending scan to scanning under claimToken.
func (r *ModerationRepository) BeginScan(ctx context.Context, scanID string, claimToken string, startedAt string) (ports.ScanRecord, error) {
	if strings.TrimSpace(claimToken) == "" {
		return ports.ScanRecord{}, errors.New("claim token is required")
	}
	if err := domain.ValidateScanTransition(domain.ScanPendingScan, domain.ScanScanning); err != nil {
		return ports.ScanRecord{}, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ScanRecord{}, err
	}

	result := db.Model(&model.ModerationScan{}).
		Where("scan_id = ? AND status = ?", scanID, string(domain.ScanPendingScan)).
		Updates(map[string]any{
			"status":            string(domain.ScanScanning),
			"scanned_by":        claimToken,
			"scan_started_at":   startedAt,
			"scan_completed_at": nil,
			"error_message":     nil,
			"scan_count":        gorm.Expr("scan_count + 1"),
			"updated_at":        startedAt,
		})
	if result.Error != nil {
		return ports.ScanRecord{}, errs.Wrap(result.Error, "begin moderation scan")
	}
	if result.RowsAffected == 0 {
		current, err := getScanByID(db, scanID)
		if err != nil {
			return ports.ScanRecord{}, err
		}
		return ports.ScanRecord{}, fmt.Errorf("%w: scan %s is %s", domain.ErrClaimLost, scanID, current.Status)
	}
	return getScanByID(db, scanID)
}

func (r *ModerationRepository) RecordScanOutcome(ctx context.Context, outcome ports.ScanOutcome) error {
	if err := domain.ValidateScanTransition(domain.ScanScanning, outcome.Status); err != nil {
		return err
	}
	if outcome.Status == domain.ScanPendingScan {
		return fmt.Errorf("%w: scan outcome cannot be %s", domain.ErrInvalidState, outcome.Status)
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	flags, err := encodeStrings(domain.FlagStrings(outcome.Flags))
	if err != nil {
		return err
	}

	result := db.Model(&model.ModerationScan{}).
		Where("scan_id = ? AND status = ? AND scanned_by = ?", outcome.ScanID, string(domain.ScanScanning), outcome.ClaimToken).
		Updates(map[string]any{
			"status":            string(outcome.Status),
			"flags":             flags,
			"confidence":        outcome.Confidence,
			"detected_faces":    outcome.DetectedFaces,
			"error_message":     optionalString(outcome.ErrorMessage),
			"scan_completed_at": outcome.CompletedAt,
			"updated_at":        outcome.CompletedAt,
		})
	if result.Error != nil {
		return errs.Wrap(result.Error, "record moderation scan outcome")
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: scan %s", domain.ErrClaimLost, outcome.ScanID)
	}
	return nil
}

// FailScan marks a scan failed when it is still pending or still scanning under claimToken.
func (r *ModerationRepository) FailScan(ctx context.Context, scanID string, claimToken string, message string, failedAt string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	query := db.Model(&model.ModerationScan{}).Where("scan_id = ?", scanID)
	if strings.TrimSpace(claimToken) != "" {
		query = query.Where("((status = ? AND scanned_by = ?) OR status = ?)",
			string(domain.ScanScanning), claimToken, string(domain.ScanPendingScan))
	} else {
		query = query.Where("status IN ?", scanStatusStrings(domain.ScanSourcesFor(domain.ScanFailed)))
	}

	result := query.Updates(map[string]any{
		"status":            string(domain.ScanFailed),
		"error_message":     optionalString(message),
		"scan_completed_at": failedAt,
		"updated_at":        failedAt,
	})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "fail moderation scan")
	}
	return result.RowsAffected > 0, nil
}

// ResetScan returns a scan to pending_scan from one of the given statuses.
func (r *ModerationRepository) ResetScan(ctx context.Context, scanID string, from []domain.ScanStatus, priority *int, resetAt string) (bool, error) {
	if len(from) == 0 {
		return false, errors.New("reset requires at least one source status")
	}
	for _, status := range from {
		if err := domain.ValidateScanTransition(status, domain.ScanPendingScan); err != nil {
			return false, err
		}
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	updates := map[string]any{
		"status":     string(domain.ScanPendingScan),
		"scanned_by": nil,
		"updated_at": resetAt,
	}
	if priority != nil {
		updates["priority"] = *priority
	}

	result := db.Model(&model.ModerationScan{}).
		Where("scan_id = ? AND status IN ?", scanID, scanStatusStrings(from)).
		Updates(updates)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "reset moderation scan")
	}
	return result.RowsAffected > 0, nil
}

// ReleaseScan hands a scan abandoned mid-scan back to pending_scan, but only
// while it is still held by claimToken.
func (r *ModerationRepository) ReleaseScan(ctx context.Context, scanID string, claimToken string, releasedAt string) (bool, error) {
	if err := domain.ValidateScanTransition(domain.ScanScanning, domain.ScanPendingScan); err != nil {
		return false, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModerationScan{}).
		Where("scan_id = ? AND status = ? AND scanned_by = ?", scanID, string(domain.ScanScanning), claimToken).
		Updates(map[string]any{
			"status":     string(domain.ScanPendingScan),
			"scanned_by": nil,
			"updated_at": releasedAt,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "release moderation scan")
	}
	return result.RowsAffected > 0, nil
}

func (r *ModerationRepository) RecordReview(ctx context.Context, review ports.ScanReview) error {
	target := review.Action.ResultingStatus()
	if err := domain.ValidateScanTransition(domain.ScanPendingReview, target); err != nil {
		return err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	updates := map[string]any{
		"status":        string(target),
		"reviewer_id":   review.ReviewerID,
		"review_action": string(review.Action),
		"review_notes":  optionalString(review.Notes),
		"reviewed_at":   review.ReviewedAt,
		"updated_at":    review.ReviewedAt,
	}
	if review.Priority != nil {
		updates["priority"] = *review.Priority
	}

	result := db.Model(&model.ModerationScan{}).
		Where("scan_id = ? AND status = ?", review.ScanID, string(domain.ScanPendingReview)).
		Updates(updates)
	if result.Error != nil {
		return errs.Wrap(result.Error, "record moderation review")
	}
	if result.RowsAffected == 0 {
		current, err := getScanByID(db, review.ScanID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: scan %s is %s, not %s", domain.ErrInvalidState, review.ScanID, current.Status, domain.ScanPendingReview)
	}
	return nil
}

func (r *ModerationRepository) CountScansByStatus(ctx context.Context) (map[domain.ScanStatus]int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []statusCount
	if err := db.Model(&model.ModerationScan{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count scans by status")
	}

	out := make(map[domain.ScanStatus]int64, len(rows))
	for _, row := range rows {
		out[domain.ScanStatus(row.Status)] = row.Total
	}
	return out, nil
}

func (r *ModerationRepository) CountScansByTargetType(ctx context.Context) (map[domain.TargetType]int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		TargetType string
		Total      int64
	}
	if err := db.Model(&model.ModerationScan{}).
		Select("target_type, count(*) as total").
		Group("target_type").
		Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count scans by target type")
	}

	out := make(map[domain.TargetType]int64, len(rows))
	for _, row := range rows {
		out[domain.TargetType(row.TargetType)] = row.Total
	}
	return out, nil
}

func (r *ModerationRepository) CountFlags(ctx context.Context) (map[domain.Flag]int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Flag]int64)
	var batch []model.ModerationScan
	result := db.Model(&model.ModerationScan{}).
		Select("scan_id", "flags").
		Where("flags <> ?", "[]").
		FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
			for _, row := range batch {
				for _, raw := range row.Flags {
					if flag, ok := domain.ParseFlag(raw); ok {
						out[flag]++
					}
				}
			}
			return nil
		})
	if result.Error != nil {
		return nil, errs.Wrap(result.Error, "count scan flags")
	}
	return out, nil
}

func (r *ModerationRepository) OldestScanCreatedAt(ctx context.Context, status domain.ScanStatus) (string, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return "", err
	}

	var row model.ModerationScan
	err = db.Select("scan_id", "created_at").
		Where("status = ?", string(status)).
		Order("created_at asc").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", errs.Wrap(err, "query oldest scan")
	}
	return row.CreatedAt, nil
}

func applyScanFilter(query *gorm.DB, filter ports.ScanFilter) *gorm.DB {
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", scanStatusStrings(filter.Statuses))
	}
	if len(filter.TargetTypes) > 0 {
		targets := make([]string, 0, len(filter.TargetTypes))
		for _, t := range filter.TargetTypes {
			targets = append(targets, string(t))
		}
		query = query.Where("target_type IN ?", targets)
	}
	if modelID := strings.TrimSpace(filter.ModelID); modelID != "" {
		query = query.Where("model_id = ?", modelID)
	}
	if len(filter.ScanIDs) > 0 {
		query = query.Where("scan_id IN ?", filter.ScanIDs)
	}
	return query
}

func getScanByID(db *gorm.DB, scanID string) (ports.ScanRecord, error) {
	var row model.ModerationScan
	if err := db.Where("scan_id = ?", scanID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ScanRecord{}, fmt.Errorf("%w: %s", domain.ErrScanNotFound, scanID)
		}
		return ports.ScanRecord{}, errs.Wrap(err, "query moderation scan")
	}
	return mapScan(row), nil
}

func mapScan(row model.ModerationScan) ports.ScanRecord {
	flags, _ := domain.NormalizeFlags(row.Flags)
	return ports.ScanRecord{
		ScanID:          row.ScanID,
		TargetType:      domain.TargetType(row.TargetType),
		TargetID:        row.TargetID,
		ModelID:         derefString(row.ModelID),
		CreatorID:       row.CreatorID,
		StorageKey:      row.StorageKey,
		StorageURL:      row.StorageURL,
		Priority:        row.Priority,
		Status:          domain.ScanStatus(row.Status),
		Flags:           flags,
		Confidence:      row.Confidence,
		DetectedFaces:   row.DetectedFaces,
		ReviewerID:      derefString(row.ReviewerID),
		ReviewAction:    derefString(row.ReviewAction),
		ReviewNotes:     derefString(row.ReviewNotes),
		ErrorMessage:    derefString(row.ErrorMessage),
		ScannedBy:       derefString(row.ScannedBy),
		ScanCount:       row.ScanCount,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
		ScanStartedAt:   derefString(row.ScanStartedAt),
		ScanCompletedAt: derefString(row.ScanCompletedAt),
		ReviewedAt:      derefString(row.ReviewedAt),
	}
}
