package httpapi

import (
	"github.com/samber/lo"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/ports"
	"creatorguard/internal/usecase/moderation"
)

type scanView struct {
	ScanID          string   `json:"scan_id"`
	TargetType      string   `json:"target_type"`
	TargetID        string   `json:"target_id"`
	ModelID         string   `json:"model_id,omitempty"`
	CreatorID       string   `json:"creator_id"`
	StorageKey      string   `json:"storage_key"`
	StorageURL      string   `json:"storage_url"`
	Priority        int      `json:"priority"`
	Status          string   `json:"status"`
	Flags           []string `json:"flags"`
	Confidence      *float64 `json:"confidence"`
	DetectedFaces   *int     `json:"detected_faces"`
	ReviewerID      string   `json:"reviewer_id,omitempty"`
	ReviewAction    string   `json:"review_action,omitempty"`
	ReviewNotes     string   `json:"review_notes,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
	ScanCount       int      `json:"scan_count"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
	ScanStartedAt   string   `json:"scan_started_at,omitempty"`
	ScanCompletedAt string   `json:"scan_completed_at,omitempty"`
	ReviewedAt      string   `json:"reviewed_at,omitempty"`
}

func toScanView(scan ports.ScanRecord) scanView {
	return scanView{
		ScanID:          scan.ScanID,
		TargetType:      string(scan.TargetType),
		TargetID:        scan.TargetID,
		ModelID:         scan.ModelID,
		CreatorID:       scan.CreatorID,
		StorageKey:      scan.StorageKey,
		StorageURL:      scan.StorageURL,
		Priority:        scan.Priority,
		Status:          string(scan.Status),
		Flags:           domain.FlagStrings(scan.Flags),
		Confidence:      scan.Confidence,
		DetectedFaces:   scan.DetectedFaces,
		ReviewerID:      scan.ReviewerID,
		ReviewAction:    scan.ReviewAction,
		ReviewNotes:     scan.ReviewNotes,
		ErrorMessage:    scan.ErrorMessage,
		ScanCount:       scan.ScanCount,
		CreatedAt:       scan.CreatedAt,
		UpdatedAt:       scan.UpdatedAt,
		ScanStartedAt:   scan.ScanStartedAt,
		ScanCompletedAt: scan.ScanCompletedAt,
		ReviewedAt:      scan.ReviewedAt,
	}
}

type anchorView struct {
	AnchorID     string `json:"anchor_id"`
	ModelID      string `json:"model_id"`
	StorageKey   string `json:"storage_key"`
	StorageURL   string `json:"storage_url"`
	IsActive     bool   `json:"is_active"`
	AddedBy      string `json:"added_by"`
	Note         string `json:"note,omitempty"`
	SourceScanID string `json:"source_scan_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toAnchorView(anchor ports.AnchorRecord) anchorView {
	return anchorView{
		AnchorID:     anchor.AnchorID,
		ModelID:      anchor.ModelID,
		StorageKey:   anchor.StorageKey,
		StorageURL:   anchor.StorageURL,
		IsActive:     anchor.IsActive,
		AddedBy:      anchor.AddedBy,
		Note:         anchor.Note,
		SourceScanID: anchor.SourceScanID,
		CreatedAt:    anchor.CreatedAt,
	}
}

func toAnchorViews(anchors []ports.AnchorRecord) []anchorView {
	return lo.Map(anchors, func(anchor ports.AnchorRecord, _ int) anchorView { return toAnchorView(anchor) })
}

type jobView struct {
	JobID        string   `json:"job_id"`
	JobType      string   `json:"job_type"`
	ScanIDs      []string `json:"scan_ids"`
	Status       string   `json:"status"`
	WorkerID     string   `json:"worker_id,omitempty"`
	Priority     int      `json:"priority"`
	Attempts     int      `json:"attempts"`
	MaxAttempts  int      `json:"max_attempts"`
	ClaimedAt    string   `json:"claimed_at,omitempty"`
	HeartbeatAt  string   `json:"heartbeat_at,omitempty"`
	CompletedAt  string   `json:"completed_at,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func toJobView(job ports.JobRecord) jobView {
	scanIDs := job.ScanIDs
	if len(scanIDs) == 0 && job.ScanID != "" {
		scanIDs = []string{job.ScanID}
	}
	if scanIDs == nil {
		scanIDs = []string{}
	}
	return jobView{
		JobID:        job.JobID,
		JobType:      string(job.JobType),
		ScanIDs:      scanIDs,
		Status:       string(job.Status),
		WorkerID:     job.WorkerID,
		Priority:     job.Priority,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
		ClaimedAt:    job.ClaimedAt,
		HeartbeatAt:  job.HeartbeatAt,
		CompletedAt:  job.CompletedAt,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
	}
}

type modelView struct {
	ModelID           string `json:"model_id"`
	CreatorID         string `json:"creator_id"`
	ActiveAnchorCount int    `json:"active_anchor_count"`
}

type queueItemView struct {
	Scan    scanView     `json:"scan"`
	Model   *modelView   `json:"model"`
	Anchors []anchorView `json:"anchors"`
}

type pageView[T any] struct {
	Items   []T   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"per_page"`
}

func toQueueView(page moderation.QueuePage) pageView[queueItemView] {
	items := lo.Map(page.Items, func(item moderation.QueueItem, _ int) queueItemView {
		view := queueItemView{Scan: toScanView(item.Scan), Anchors: toAnchorViews(item.Anchors)}
		if item.Model != nil {
			view.Model = &modelView{
				ModelID:           item.Model.ModelID,
				CreatorID:         item.Model.CreatorID,
				ActiveAnchorCount: item.Model.ActiveAnchorCount,
			}
		}
		return view
	})
	return pageView[queueItemView]{Items: items, Total: page.Total, Page: page.Page, PerPage: page.PerPage}
}

func toJobPageView(page moderation.JobPage) pageView[jobView] {
	items := lo.Map(page.Items, func(job ports.JobRecord, _ int) jobView { return toJobView(job) })
	return pageView[jobView]{Items: items, Total: page.Total, Page: page.Page, PerPage: page.PerPage}
}
