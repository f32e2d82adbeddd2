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

func (r *ModerationRepository) CreateAnchor(ctx context.Context, anchor ports.AnchorRecord) (ports.AnchorRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AnchorRecord{}, err
	}

	row := model.ModelAnchor{
		AnchorID:     anchor.AnchorID,
		ModelID:      anchor.ModelID,
		StorageKey:   anchor.StorageKey,
		StorageURL:   anchor.StorageURL,
		IsActive:     true,
		AddedBy:      anchor.AddedBy,
		Note:         optionalString(anchor.Note),
		SourceScanID: optionalString(anchor.SourceScanID),
		CreatedAt:    anchor.CreatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.AnchorRecord{}, errs.Wrap(err, "insert model anchor")
	}
	return mapAnchor(row), nil
}

func (r *ModerationRepository) GetAnchor(ctx context.Context, anchorID string) (ports.AnchorRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.AnchorRecord{}, err
	}

	var row model.ModelAnchor
	if err := db.Where("anchor_id = ?", anchorID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.AnchorRecord{}, fmt.Errorf("%w: %s", domain.ErrAnchorNotFound, anchorID)
		}
		return ports.AnchorRecord{}, errs.Wrap(err, "query model anchor")
	}
	return mapAnchor(row), nil
}

func (r *ModerationRepository) ListActiveAnchors(ctx context.Context, modelID string) ([]ports.AnchorRecord, error) {
	return r.ListActiveAnchorsByModels(ctx, []string{modelID})
}

// ListActiveAnchorsByModels loads the anchors of several models in one query,
// ordered by model then creation time.
func (r *ModerationRepository) ListActiveAnchorsByModels(ctx context.Context, modelIDs []string) ([]ports.AnchorRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(modelIDs))
	for _, id := range modelIDs {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		return []ports.AnchorRecord{}, nil
	}

	var rows []model.ModelAnchor
	if err := db.Where("model_id IN ? AND is_active = ?", ids, true).
		Order("model_id asc").
		Order("created_at asc").
		Order("anchor_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query model anchors")
	}

	items := make([]ports.AnchorRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapAnchor(row))
	}
	return items, nil
}

func (r *ModerationRepository) CountActiveAnchors(ctx context.Context, modelID string) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := db.Model(&model.ModelAnchor{}).
		Where("model_id = ? AND is_active = ?", modelID, true).
		Count(&total).Error; err != nil {
		return 0, errs.Wrap(err, "count model anchors")
	}
	return total, nil
}

// DeactivateAnchor soft-deletes an anchor. It reports false when the anchor was
// already inactive.
func (r *ModerationRepository) DeactivateAnchor(ctx context.Context, anchorID string, deactivatedBy string, deactivatedAt string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModelAnchor{}).
		Where("anchor_id = ? AND is_active = ?", anchorID, true).
		Updates(map[string]any{
			"is_active":      false,
			"deactivated_at": deactivatedAt,
			"deactivated_by": optionalString(deactivatedBy),
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "deactivate model anchor")
	}
	return result.RowsAffected > 0, nil
}

func mapAnchor(row model.ModelAnchor) ports.AnchorRecord {
	return ports.AnchorRecord{
		AnchorID:      row.AnchorID,
		ModelID:       row.ModelID,
		StorageKey:    row.StorageKey,
		StorageURL:    row.StorageURL,
		IsActive:      row.IsActive,
		AddedBy:       row.AddedBy,
		Note:          derefString(row.Note),
		SourceScanID:  derefString(row.SourceScanID),
		CreatedAt:     row.CreatedAt,
		DeactivatedAt: derefString(row.DeactivatedAt),
		DeactivatedBy: derefString(row.DeactivatedBy),
	}
}
