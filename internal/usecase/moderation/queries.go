package moderation

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/ports"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

type ListFilter struct {
	Statuses    []string
	TargetTypes []string
	ModelID     string
	Page        int
	PerPage     int
}

type ScanPage struct {
	Items   []ports.ScanRecord
	Total   int64
	Page    int
	PerPage int
}

type ModelSummary struct {
	ModelID           string
	CreatorID         string
	ActiveAnchorCount int
}

type QueueItem struct {
	Scan    ports.ScanRecord
	Model   *ModelSummary
	Anchors []ports.AnchorRecord
}

type QueuePage struct {
	Items   []QueueItem
	Total   int64
	Page    int
	PerPage int
}

func (s *Service) GetScan(ctx context.Context, scanID string) (ports.ScanRecord, error) {
	if err := s.checkStores(ctx); err != nil {
		return ports.ScanRecord{}, err
	}
	scanID = strings.TrimSpace(scanID)
	if scanID == "" {
		return ports.ScanRecord{}, fmt.Errorf("%w: scan_id is required", domain.ErrValidation)
	}
	return s.scans.GetScan(ctx, scanID)
}

func (s *Service) ListScans(ctx context.Context, filter ListFilter) (ScanPage, error) {
	if err := s.checkStores(ctx); err != nil {
		return ScanPage{}, err
	}

	query, page, perPage, err := toScanFilter(filter)
	if err != nil {
		return ScanPage{}, err
	}

	total, err := s.scans.CountScans(ctx, query)
	if err != nil {
		return ScanPage{}, err
	}
	items, err := s.scans.ListScans(ctx, query)
	if err != nil {
		return ScanPage{}, err
	}
	return ScanPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

// ListQueue is the admin review queue: scans with their model summary and the
// model's active anchors. With no status filter it lists pending_review scans.
func (s *Service) ListQueue(ctx context.Context, filter ListFilter) (QueuePage, error) {
	if len(filter.Statuses) == 0 {
		filter.Statuses = []string{string(domain.ScanPendingReview)}
	}

	scans, err := s.ListScans(ctx, filter)
	if err != nil {
		return QueuePage{}, err
	}

	modelIDs := lo.Uniq(lo.Compact(lo.Map(scans.Items, func(scan ports.ScanRecord, _ int) string {
		return scan.ModelID
	})))
	anchors, err := s.anchors.ListActiveAnchorsByModels(ctx, modelIDs)
	if err != nil {
		return QueuePage{}, err
	}
	byModel := lo.GroupBy(anchors, func(anchor ports.AnchorRecord) string { return anchor.ModelID })

	items := make([]QueueItem, 0, len(scans.Items))
	for _, scan := range scans.Items {
		item := QueueItem{Scan: scan, Anchors: []ports.AnchorRecord{}}
		if scan.ModelID != "" {
			modelAnchors := byModel[scan.ModelID]
			if modelAnchors != nil {
				item.Anchors = modelAnchors
			}
			item.Model = &ModelSummary{
				ModelID:           scan.ModelID,
				CreatorID:         scan.CreatorID,
				ActiveAnchorCount: len(modelAnchors),
			}
		}
		items = append(items, item)
	}

	return QueuePage{Items: items, Total: scans.Total, Page: scans.Page, PerPage: scans.PerPage}, nil
}

type JobListFilter struct {
	Statuses []string
	ScanID   string
	Page     int
	PerPage  int
}

type JobPage struct {
	Items   []ports.JobRecord
	Total   int64
	Page    int
	PerPage int
}

func (s *Service) GetJob(ctx context.Context, jobID string) (ports.JobRecord, error) {
	if err := s.checkStores(ctx); err != nil {
		return ports.JobRecord{}, err
	}
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return ports.JobRecord{}, fmt.Errorf("%w: job_id is required", domain.ErrValidation)
	}
	return s.jobs.GetJob(ctx, jobID)
}

// ListJobs pages through jobs in queue order.
func (s *Service) ListJobs(ctx context.Context, filter JobListFilter) (JobPage, error) {
	if err := s.checkStores(ctx); err != nil {
		return JobPage{}, err
	}

	query := ports.JobFilter{ScanID: strings.TrimSpace(filter.ScanID)}
	for _, raw := range filter.Statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, err := domain.ParseJobStatus(raw)
		if err != nil {
			return JobPage{}, err
		}
		query.Statuses = append(query.Statuses, status)
	}
	page, perPage := normalizePage(filter.Page, filter.PerPage)
	query.Limit = perPage
	query.Offset = (page - 1) * perPage

	total, err := s.jobs.CountJobs(ctx, query)
	if err != nil {
		return JobPage{}, err
	}
	items, err := s.jobs.ListJobs(ctx, query)
	if err != nil {
		return JobPage{}, err
	}
	return JobPage{Items: items, Total: total, Page: page, PerPage: perPage}, nil
}

func toScanFilter(filter ListFilter) (ports.ScanFilter, int, int, error) {
	out := ports.ScanFilter{ModelID: strings.TrimSpace(filter.ModelID)}

	for _, raw := range filter.Statuses {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		status, err := domain.ParseScanStatus(raw)
		if err != nil {
			return ports.ScanFilter{}, 0, 0, err
		}
		out.Statuses = append(out.Statuses, status)
	}
	for _, raw := range filter.TargetTypes {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		target, err := domain.ParseTargetType(raw)
		if err != nil {
			return ports.ScanFilter{}, 0, 0, err
		}
		out.TargetTypes = append(out.TargetTypes, target)
	}

	page, perPage := normalizePage(filter.Page, filter.PerPage)
	out.Limit = perPage
	out.Offset = (page - 1) * perPage
	return out, page, perPage, nil
}

func normalizePage(page int, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
