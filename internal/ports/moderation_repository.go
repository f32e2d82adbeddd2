package ports

import (
	"context"

	domain "creatorguard/internal/domain/moderation"
)

type ScanRecord struct {
	ScanID          string
	TargetType      domain.TargetType
	TargetID        string
	ModelID         string
	CreatorID       string
	StorageKey      string
	StorageURL      string
	Priority        int
	Status          domain.ScanStatus
	Flags           []domain.Flag
	Confidence      *float64
	DetectedFaces   *int
	ReviewerID      string
	ReviewAction    string
	ReviewNotes     string
	ErrorMessage    string
	ScannedBy       string
	ScanCount       int
	CreatedAt       string
	UpdatedAt       string
	ScanStartedAt   string
	ScanCompletedAt string
	ReviewedAt      string
}

type ScanFilter struct {
	Statuses    []domain.ScanStatus
	TargetTypes []domain.TargetType
	ModelID     string
	ScanIDs     []string
	Limit       int
	Offset      int
}

// ScanOutcome is written only while the scan is still scanning under ClaimToken.
type ScanOutcome struct {
	ScanID        string
	ClaimToken    string
	Status        domain.ScanStatus
	Flags         []domain.Flag
	Confidence    *float64
	DetectedFaces *int
	ErrorMessage  string
	CompletedAt   string
}

type ScanReview struct {
	ScanID     string
	Action     domain.ReviewAction
	ReviewerID string
	Notes      string
	Priority   *int
	ReviewedAt string
}

type ScanRepository interface {
	CreateScan(ctx context.Context, scan ScanRecord) (ScanRecord, error)
	GetScan(ctx context.Context, scanID string) (ScanRecord, error)
	ListScans(ctx context.Context, filter ScanFilter) ([]ScanRecord, error)
	CountScans(ctx context.Context, filter ScanFilter) (int64, error)
	BeginScan(ctx context.Context, scanID string, claimToken string, startedAt string) (ScanRecord, error)
	RecordScanOutcome(ctx context.Context, outcome ScanOutcome) error
	FailScan(ctx context.Context, scanID string, claimToken string, message string, failedAt string) (bool, error)
	ResetScan(ctx context.Context, scanID string, from []domain.ScanStatus, priority *int, resetAt string) (bool, error)
	ReleaseScan(ctx context.Context, scanID string, claimToken string, releasedAt string) (bool, error)
	RecordReview(ctx context.Context, review ScanReview) error
	CountScansByStatus(ctx context.Context) (map[domain.ScanStatus]int64, error)
	CountScansByTargetType(ctx context.Context) (map[domain.TargetType]int64, error)
	CountFlags(ctx context.Context) (map[domain.Flag]int64, error)
	OldestScanCreatedAt(ctx context.Context, status domain.ScanStatus) (string, error)
}

type AnchorRecord struct {
	AnchorID      string
	ModelID       string
	StorageKey    string
	StorageURL    string
	IsActive      bool
	AddedBy       string
	Note          string
	SourceScanID  string
	CreatedAt     string
	DeactivatedAt string
	DeactivatedBy string
}

type AnchorRepository interface {
	CreateAnchor(ctx context.Context, anchor AnchorRecord) (AnchorRecord, error)
	GetAnchor(ctx context.Context, anchorID string) (AnchorRecord, error)
	ListActiveAnchors(ctx context.Context, modelID string) ([]AnchorRecord, error)
	ListActiveAnchorsByModels(ctx context.Context, modelIDs []string) ([]AnchorRecord, error)
	CountActiveAnchors(ctx context.Context, modelID string) (int64, error)
	DeactivateAnchor(ctx context.Context, anchorID string, deactivatedBy string, deactivatedAt string) (bool, error)
}

type JobRecord struct {
	JobID        string
	JobType      domain.JobType
	ScanID       string
	ScanIDs      []string
	Status       domain.JobStatus
	WorkerID     string
	Priority     int
	Attempts     int
	MaxAttempts  int
	ClaimedAt    string
	HeartbeatAt  string
	CompletedAt  string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}

type JobFilter struct {
	Statuses []domain.JobStatus
	ScanID   string
	Limit    int
	Offset   int
}

// JobRecovery resets a stale job only if it is still held by WorkerID with the
// same HeartbeatAt observed when it was listed.
type JobRecovery struct {
	JobID       string
	WorkerID    string
	HeartbeatAt string
	To          domain.JobStatus
	Message     string
	RecoveredAt string
}

type JobRepository interface {
	CreateJob(ctx context.Context, job JobRecord) (JobRecord, error)
	GetJob(ctx context.Context, jobID string) (JobRecord, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]JobRecord, error)
	CountJobs(ctx context.Context, filter JobFilter) (int64, error)
	FindOpenJobForScan(ctx context.Context, scanID string) (JobRecord, error)
	ListQueuedJobs(ctx context.Context, limit int) ([]JobRecord, error)
	ClaimJob(ctx context.Context, jobID string, workerID string, claimedAt string) (bool, error)
	Heartbeat(ctx context.Context, jobID string, workerID string, at string) (bool, error)
	CompleteJob(ctx context.Context, jobID string, workerID string, completedAt string) (bool, error)
	FailJob(ctx context.Context, jobID string, workerID string, message string, failedAt string) (bool, error)
	ListStaleJobs(ctx context.Context, heartbeatBefore string) ([]JobRecord, error)
	RecoverJob(ctx context.Context, recovery JobRecovery) (bool, error)
	CancelJob(ctx context.Context, jobID string, cancelledAt string) (bool, error)
	RetryJob(ctx context.Context, jobID string, retriedAt string) (bool, error)
	UpdateJobPriority(ctx context.Context, jobID string, priority int, updatedAt string) (bool, error)
	CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error)
	OldestQueuedCreatedAt(ctx context.Context) (string, error)
}
