package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/ports"
)

// ModerationRepository is the gorm-backed store for scans, anchors and jobs.
// Every state change is a single-row conditional update; there are no
// transactions spanning entities.
type ModerationRepository struct {
	db *gorm.DB
}

var (
	_ ports.ScanRepository   = (*ModerationRepository)(nil)
	_ ports.AnchorRepository = (*ModerationRepository)(nil)
	_ ports.JobRepository    = (*ModerationRepository)(nil)
)

func NewModerationRepository(db *gorm.DB) *ModerationRepository {
	return &ModerationRepository{db: db}
}

func (r *ModerationRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if r.db == nil {
		return nil, errors.New("database is required")
	}
	return r.db.WithContext(ctx), nil
}

type statusCount struct {
	Status string
	Total  int64
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", errs.Wrap(err, "encode json list")
	}
	return string(raw), nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func pageQuery(query *gorm.DB, limit int, offset int) *gorm.DB {
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

func scanStatusStrings(statuses []domain.ScanStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func jobStatusStrings(statuses []domain.JobStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
