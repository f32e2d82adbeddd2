package moderation

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"creatorguard/internal/bootstrap/logging"
	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
)

type Stats struct {
	Total                   int64            `json:"total"`
	ByStatus                map[string]int64 `json:"by_status"`
	ByTargetType            map[string]int64 `json:"by_target_type"`
	ByFlag                  map[string]int64 `json:"by_flag"`
	PendingReview           int64            `json:"pending_review"`
	OldestPendingReviewAt   string           `json:"oldest_pending_review_at,omitempty"`
	OldestPendingReviewAgeS int64            `json:"oldest_pending_review_age_seconds"`
	GeneratedAt             string           `json:"generated_at"`
}

// GetModerationStats aggregates scan counts for dashboards. Results are cached
// briefly; every write path invalidates the cached copy.
func (s *Service) GetModerationStats(ctx context.Context) (Stats, error) {
	if err := s.checkStores(ctx); err != nil {
		return Stats{}, err
	}
	ctx = withComponent(ctx)

	if cached, ok := s.cachedStats(ctx); ok {
		return cached, nil
	}

	byStatus, err := s.scans.CountScansByStatus(ctx)
	if err != nil {
		return Stats{}, err
	}
	byTarget, err := s.scans.CountScansByTargetType(ctx)
	if err != nil {
		return Stats{}, err
	}
	byFlag, err := s.scans.CountFlags(ctx)
	if err != nil {
		return Stats{}, err
	}
	oldest, err := s.scans.OldestScanCreatedAt(ctx, domain.ScanPendingReview)
	if err != nil {
		return Stats{}, err
	}

	now := s.now()
	stats := Stats{
		ByStatus:              make(map[string]int64, len(domain.AllScanStatuses())),
		ByTargetType:          make(map[string]int64, len(byTarget)),
		ByFlag:                make(map[string]int64, len(byFlag)),
		OldestPendingReviewAt: oldest,
		GeneratedAt:           domain.FormatTimestamp(now),
	}
	for _, status := range domain.AllScanStatuses() {
		stats.ByStatus[string(status)] = byStatus[status]
		stats.Total += byStatus[status]
	}
	for target, count := range byTarget {
		stats.ByTargetType[string(target)] = count
	}
	for flag, count := range byFlag {
		stats.ByFlag[string(flag)] = count
	}
	stats.PendingReview = byStatus[domain.ScanPendingReview]
	if oldest != "" {
		if at, err := domain.ParseTimestamp(oldest); err == nil {
			stats.OldestPendingReviewAgeS = int64(now.Sub(at) / time.Second)
		}
	}

	s.storeStats(ctx, stats)
	return stats, nil
}

func (s *Service) cachedStats(ctx context.Context) (Stats, bool) {
	if s.cache == nil {
		return Stats{}, false
	}
	raw, found, err := s.cache.Get(ctx, cacheKeyStats)
	if err != nil {
		logging.Warn(ctx, "read stats cache failed", slog.Any("err", errs.Loggable(err)))
		return Stats{}, false
	}
	if !found {
		return Stats{}, false
	}

	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		logging.Warn(ctx, "decode cached stats failed", slog.Any("err", errs.Loggable(err)))
		return Stats{}, false
	}
	return stats, true
}

func (s *Service) storeStats(ctx context.Context, stats Stats) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, cacheKeyStats, string(raw), s.statsTTL); err != nil {
		logging.Warn(ctx, "write stats cache failed", slog.Any("err", errs.Loggable(err)))
	}
}
