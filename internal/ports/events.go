package ports

import "context"

type ModerationEvent struct {
	Type       string         `json:"type"`
	ScanID     string         `json:"scan_id,omitempty"`
	JobID      string         `json:"job_id,omitempty"`
	Status     string         `json:"status,omitempty"`
	Actor      string         `json:"actor,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	OccurredAt string         `json:"occurred_at"`
}

const (
	EventScanDecided  = "scan.decided"
	EventScanReviewed = "scan.reviewed"
	EventJobFailed    = "job.failed"
)

// EventPublisher fans moderation events out to other services. Publishing is
// best effort: callers log failures and never roll back state for them.
type EventPublisher interface {
	Publish(ctx context.Context, event ModerationEvent) error
}
