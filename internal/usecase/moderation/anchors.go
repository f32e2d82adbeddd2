package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/ports"
)

type AddAnchorInput struct {
	ModelID      string
	StorageKey   string
	StorageURL   string
	AddedBy      string
	Note         string
	SourceScanID string
}

func (s *Service) GetModelAnchors(ctx context.Context, modelID string) ([]ports.AnchorRecord, error) {
	if err := s.checkStores(ctx); err != nil {
		return nil, err
	}
	modelID = strings.TrimSpace(modelID)
	if modelID == "" {
		return nil, fmt.Errorf("%w: model_id is required", domain.ErrValidation)
	}
	return s.anchors.ListActiveAnchors(ctx, modelID)
}

func (s *Service) AddModelAnchor(ctx context.Context, input AddAnchorInput) (ports.AnchorRecord, error) {
	if err := s.checkStores(ctx); err != nil {
		return ports.AnchorRecord{}, err
	}
	ctx = withComponent(ctx)

	for _, field := range []struct{ name, value string }{
		{"model_id", input.ModelID},
		{"storage_key", input.StorageKey},
		{"storage_url", input.StorageURL},
		{"added_by", input.AddedBy},
	} {
		if strings.TrimSpace(field.value) == "" {
			return ports.AnchorRecord{}, fmt.Errorf("%w: %s is required", domain.ErrValidation, field.name)
		}
	}

	anchorID, err := s.newID()
	if err != nil {
		return ports.AnchorRecord{}, err
	}

	anchor, err := s.anchors.CreateAnchor(ctx, ports.AnchorRecord{
		AnchorID:     anchorID,
		ModelID:      strings.TrimSpace(input.ModelID),
		StorageKey:   strings.TrimSpace(input.StorageKey),
		StorageURL:   strings.TrimSpace(input.StorageURL),
		IsActive:     true,
		AddedBy:      strings.TrimSpace(input.AddedBy),
		Note:         strings.TrimSpace(input.Note),
		SourceScanID: strings.TrimSpace(input.SourceScanID),
		CreatedAt:    s.nowString(),
	})
	if err != nil {
		return ports.AnchorRecord{}, err
	}

	logging.Info(ctx, "anchor added",
		slog.String("anchor_id", anchor.AnchorID),
		slog.String("model_id", anchor.ModelID),
		slog.String("added_by", anchor.AddedBy),
	)
	return anchor, nil
}

// RemoveModelAnchor deactivates an anchor. Removing an inactive anchor is a
// no-op. A non-empty modelID must match the anchor's model.
func (s *Service) RemoveModelAnchor(ctx context.Context, modelID string, anchorID string, removedBy string) error {
	if err := s.checkStores(ctx); err != nil {
		return err
	}
	ctx = withComponent(ctx)

	anchorID = strings.TrimSpace(anchorID)
	if anchorID == "" {
		return fmt.Errorf("%w: anchor_id is required", domain.ErrValidation)
	}

	anchor, err := s.anchors.GetAnchor(ctx, anchorID)
	if err != nil {
		return err
	}
	if modelID = strings.TrimSpace(modelID); modelID != "" && anchor.ModelID != modelID {
		return fmt.Errorf("%w: anchor %s does not belong to model %s", domain.ErrAnchorNotFound, anchorID, modelID)
	}
	if !anchor.IsActive {
		return nil
	}

	changed, err := s.anchors.DeactivateAnchor(ctx, anchorID, strings.TrimSpace(removedBy), s.nowString())
	if err != nil {
		return err
	}
	if changed {
		logging.Info(ctx, "anchor removed",
			slog.String("anchor_id", anchorID),
			slog.String("model_id", anchor.ModelID),
			slog.String("removed_by", removedBy),
		)
	}
	return nil
}
