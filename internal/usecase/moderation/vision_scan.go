package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/ports"
)

// RunVisionScan analyzes the scan's asset against the model's active anchors.
// It does not persist anything.
func (s *Service) RunVisionScan(ctx context.Context, scan ports.ScanRecord) (ports.VisionResult, error) {
	result, _, err := s.runVisionScan(ctx, scan)
	return result, err
}

func (s *Service) runVisionScan(ctx context.Context, scan ports.ScanRecord) (ports.VisionResult, int, error) {
	if err := s.checkStores(ctx); err != nil {
		return ports.VisionResult{}, 0, err
	}
	if s.vision == nil {
		return ports.VisionResult{}, 0, errors.New("vision scanner is required")
	}

	assetURL, err := s.assets.ResolveURL(ctx, scan.StorageKey, scan.StorageURL)
	if err != nil {
		return ports.VisionResult{}, 0, fmt.Errorf("%w: resolve asset url: %v", domain.ErrExternalService, err)
	}

	var anchors []ports.AnchorRecord
	if modelID := strings.TrimSpace(scan.ModelID); modelID != "" {
		anchors, err = s.anchors.ListActiveAnchors(ctx, modelID)
		if err != nil {
			return ports.VisionResult{}, 0, err
		}
	}

	anchorURLs := make([]string, 0, len(anchors))
	for _, anchor := range anchors {
		anchorURL, err := s.assets.ResolveURL(ctx, anchor.StorageKey, anchor.StorageURL)
		if err != nil {
			return ports.VisionResult{}, 0, fmt.Errorf("%w: resolve anchor url: %v", domain.ErrExternalService, err)
		}
		anchorURLs = append(anchorURLs, anchorURL)
	}

	result, err := s.vision.Scan(ctx, ports.VisionRequest{
		AssetURL:   assetURL,
		AnchorURLs: anchorURLs,
	})
	if err != nil {
		return ports.VisionResult{}, 0, err
	}
	return result, len(anchors), nil
}
