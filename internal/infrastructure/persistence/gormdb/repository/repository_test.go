package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/infrastructure/persistence/gormdb/model"
	"creatorguard/internal/ports"
)

func setupModerationRepository(t *testing.T) *ModerationRepository {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "moderation.sqlite") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return NewModerationRepository(db)
}

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func stamp(offset time.Duration) string {
	return domain.FormatTimestamp(testClock.Add(offset))
}

func seedScan(t *testing.T, repo *ModerationRepository, scanID string, priority int, createdAt string) ports.ScanRecord {
	t.Helper()

	scan, err := repo.CreateScan(context.Background(), ports.ScanRecord{
		ScanID:     scanID,
		TargetType: domain.TargetModelGalleryItem,
		TargetID:   "target-" + scanID,
		ModelID:    "model-1",
		CreatorID:  "creator-1",
		StorageKey: "uploads/" + scanID + ".jpg",
		StorageURL: "https://cdn.example.test/" + scanID + ".jpg",
		Priority:   priority,
		Status:     domain.ScanPendingScan,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	})
	if err != nil {
		t.Fatalf("create scan %s: %v", scanID, err)
	}
	return scan
}

func seedJob(t *testing.T, repo *ModerationRepository, jobID string, scanID string, priority int, createdAt string) ports.JobRecord {
	t.Helper()

	job, err := repo.CreateJob(context.Background(), ports.JobRecord{
		JobID:     jobID,
		JobType:   domain.JobContentUpload,
		ScanID:    scanID,
		Status:    domain.JobQueued,
		Priority:  priority,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("create job %s: %v", jobID, err)
	}
	return job
}

func TestGetScanNotFound(t *testing.T) {
	repo := setupModerationRepository(t)

	_, err := repo.GetScan(context.Background(), "missing")
	if !errors.Is(err, domain.ErrScanNotFound) || !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetScan() error = %v, want ErrScanNotFound", err)
	}
}

func TestScanLifecycleWithClaimToken(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedScan(t, repo, "scan-1", 5, stamp(0))

	started, err := repo.BeginScan(ctx, "scan-1", "job-1", stamp(time.Second))
	if err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	if started.Status != domain.ScanScanning || started.ScannedBy != "job-1" || started.ScanCount != 1 {
		t.Fatalf("BeginScan() = %+v", started)
	}

	if _, err := repo.BeginScan(ctx, "scan-1", "job-2", stamp(2*time.Second)); !errors.Is(err, domain.ErrClaimLost) {
		t.Fatalf("second BeginScan() error = %v, want ErrClaimLost", err)
	}

	confidence := 0.93
	faces := 1
	err = repo.RecordScanOutcome(ctx, ports.ScanOutcome{
		ScanID:        "scan-1",
		ClaimToken:    "job-2",
		Status:        domain.ScanApproved,
		Confidence:    &confidence,
		DetectedFaces: &faces,
		CompletedAt:   stamp(3 * time.Second),
	})
	if !errors.Is(err, domain.ErrClaimLost) {
		t.Fatalf("RecordScanOutcome() with foreign token error = %v", err)
	}

	err = repo.RecordScanOutcome(ctx, ports.ScanOutcome{
		ScanID:        "scan-1",
		ClaimToken:    "job-1",
		Status:        domain.ScanPendingReview,
		Flags:         []domain.Flag{domain.FlagIdentityDrift},
		Confidence:    &confidence,
		DetectedFaces: &faces,
		CompletedAt:   stamp(3 * time.Second),
	})
	if err != nil {
		t.Fatalf("RecordScanOutcome() error = %v", err)
	}

	got, err := repo.GetScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("GetScan() error = %v", err)
	}
	if got.Status != domain.ScanPendingReview {
		t.Fatalf("status = %s", got.Status)
	}
	if len(got.Flags) != 1 || got.Flags[0] != domain.FlagIdentityDrift {
		t.Fatalf("flags = %v", got.Flags)
	}
	if got.Confidence == nil || *got.Confidence != confidence {
		t.Fatalf("confidence = %v", got.Confidence)
	}
	if got.ScanCompletedAt != stamp(3*time.Second) {
		t.Fatalf("scan_completed_at = %q", got.ScanCompletedAt)
	}

	// A late outcome after the scan was decided is a no-op.
	err = repo.RecordScanOutcome(ctx, ports.ScanOutcome{
		ScanID:      "scan-1",
		ClaimToken:  "job-1",
		Status:      domain.ScanFailed,
		CompletedAt: stamp(4 * time.Second),
	})
	if !errors.Is(err, domain.ErrClaimLost) {
		t.Fatalf("late RecordScanOutcome() error = %v", err)
	}
}

func TestRecordScanOutcomeRejectsPendingScanTarget(t *testing.T) {
	repo := setupModerationRepository(t)
	seedScan(t, repo, "scan-1", 5, stamp(0))

	err := repo.RecordScanOutcome(context.Background(), ports.ScanOutcome{
		ScanID:     "scan-1",
		ClaimToken: "job-1",
		Status:     domain.ScanPendingScan,
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("RecordScanOutcome() error = %v, want ErrInvalidState", err)
	}
}

func TestFailScanRespectsClaimToken(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedScan(t, repo, "scan-1", 5, stamp(0))
	if _, err := repo.BeginScan(ctx, "scan-1", "job-1", stamp(time.Second)); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}

	ok, err := repo.FailScan(ctx, "scan-1", "job-other", "boom", stamp(2*time.Second))
	if err != nil {
		t.Fatalf("FailScan() error = %v", err)
	}
	if ok {
		t.Fatalf("FailScan() with foreign token should not update")
	}

	ok, err = repo.FailScan(ctx, "scan-1", "job-1", "boom", stamp(2*time.Second))
	if err != nil || !ok {
		t.Fatalf("FailScan() = %v, %v", ok, err)
	}
	got, _ := repo.GetScan(ctx, "scan-1")
	if got.Status != domain.ScanFailed || got.ErrorMessage != "boom" {
		t.Fatalf("scan after fail = %+v", got)
	}
}

func TestResetScanAndReview(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedScan(t, repo, "scan-1", 5, stamp(0))
	if _, err := repo.BeginScan(ctx, "scan-1", "job-1", stamp(time.Second)); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	if err := repo.RecordScanOutcome(ctx, ports.ScanOutcome{
		ScanID:      "scan-1",
		ClaimToken:  "job-1",
		Status:      domain.ScanPendingReview,
		CompletedAt: stamp(2 * time.Second),
	}); err != nil {
		t.Fatalf("RecordScanOutcome() error = %v", err)
	}

	highest := domain.HighestPriority
	if err := repo.RecordReview(ctx, ports.ScanReview{
		ScanID:     "scan-1",
		Action:     domain.ReviewEscalated,
		ReviewerID: "admin-1",
		Notes:      "needs a second look",
		Priority:   &highest,
		ReviewedAt: stamp(3 * time.Second),
	}); err != nil {
		t.Fatalf("escalate RecordReview() error = %v", err)
	}
	escalated, _ := repo.GetScan(ctx, "scan-1")
	if escalated.Status != domain.ScanPendingReview || escalated.Priority != 1 || escalated.ReviewAction != "escalated" {
		t.Fatalf("escalated scan = %+v", escalated)
	}

	if err := repo.RecordReview(ctx, ports.ScanReview{
		ScanID:     "scan-1",
		Action:     domain.ReviewRejected,
		ReviewerID: "admin-2",
		ReviewedAt: stamp(4 * time.Second),
	}); err != nil {
		t.Fatalf("reject RecordReview() error = %v", err)
	}

	err := repo.RecordReview(ctx, ports.ScanReview{
		ScanID:     "scan-1",
		Action:     domain.ReviewApproved,
		ReviewerID: "admin-3",
		ReviewedAt: stamp(5 * time.Second),
	})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("second review error = %v, want ErrInvalidState", err)
	}

	ok, err := repo.ResetScan(ctx, "scan-1", []domain.ScanStatus{domain.ScanRejected, domain.ScanApproved}, &highest, stamp(6*time.Second))
	if err != nil || !ok {
		t.Fatalf("ResetScan() = %v, %v", ok, err)
	}
	reset, _ := repo.GetScan(ctx, "scan-1")
	if reset.Status != domain.ScanPendingScan || reset.ScannedBy != "" {
		t.Fatalf("reset scan = %+v", reset)
	}
}

func TestResetScanRejectsIllegalSource(t *testing.T) {
	repo := setupModerationRepository(t)

	_, err := repo.ResetScan(context.Background(), "scan-1", []domain.ScanStatus{domain.ScanPendingScan}, nil, stamp(0))
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("ResetScan() error = %v, want ErrInvalidState", err)
	}
}

func TestListQueuedJobsOrdersByPriorityThenAge(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()

	seedJob(t, repo, "job-c", "scan-c", 5, stamp(0))
	seedJob(t, repo, "job-a", "scan-a", 1, stamp(2*time.Second))
	seedJob(t, repo, "job-b", "scan-b", 5, stamp(-time.Second))
	seedJob(t, repo, "job-d", "scan-d", 3, stamp(time.Second))

	jobs, err := repo.ListQueuedJobs(ctx, 10)
	if err != nil {
		t.Fatalf("ListQueuedJobs() error = %v", err)
	}
	want := []string{"job-a", "job-d", "job-b", "job-c"}
	if len(jobs) != len(want) {
		t.Fatalf("ListQueuedJobs() len = %d", len(jobs))
	}
	for i, id := range want {
		if jobs[i].JobID != id {
			t.Fatalf("jobs[%d] = %s, want %s", i, jobs[i].JobID, id)
		}
	}

	limited, err := repo.ListQueuedJobs(ctx, 2)
	if err != nil {
		t.Fatalf("ListQueuedJobs(limit) error = %v", err)
	}
	if len(limited) != 2 || limited[0].JobID != "job-a" {
		t.Fatalf("limited = %+v", limited)
	}
}

func TestClaimJobExactlyOneWinner(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedJob(t, repo, "job-1", "scan-1", 5, stamp(0))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			ok, err := repo.ClaimJob(ctx, "job-1", fmt.Sprintf("worker-%d", worker), stamp(time.Second))
			if err != nil {
				t.Errorf("ClaimJob() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("claim winners = %d, want 1", wins)
	}
	job, err := repo.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if job.Status != domain.JobProcessing || job.WorkerID == "" || job.HeartbeatAt == "" {
		t.Fatalf("claimed job = %+v", job)
	}
	if job.Attempts != 0 {
		t.Fatalf("claim should not count attempts, got %d", job.Attempts)
	}
}

func TestFinishJobRequiresOwner(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedJob(t, repo, "job-1", "scan-1", 5, stamp(0))
	if ok, err := repo.ClaimJob(ctx, "job-1", "worker-a", stamp(time.Second)); err != nil || !ok {
		t.Fatalf("ClaimJob() = %v, %v", ok, err)
	}

	ok, err := repo.CompleteJob(ctx, "job-1", "worker-b", stamp(2*time.Second))
	if err != nil || ok {
		t.Fatalf("CompleteJob() by other worker = %v, %v", ok, err)
	}
	ok, err = repo.FailJob(ctx, "job-1", "worker-a", "vision down", stamp(2*time.Second))
	if err != nil || !ok {
		t.Fatalf("FailJob() = %v, %v", ok, err)
	}
	ok, err = repo.CompleteJob(ctx, "job-1", "worker-a", stamp(3*time.Second))
	if err != nil || ok {
		t.Fatalf("CompleteJob() after fail = %v, %v", ok, err)
	}

	job, _ := repo.GetJob(ctx, "job-1")
	if job.Status != domain.JobFailed || job.ErrorMessage != "vision down" {
		t.Fatalf("failed job = %+v", job)
	}

	ok, err = repo.RetryJob(ctx, "job-1", stamp(4*time.Second))
	if err != nil || !ok {
		t.Fatalf("RetryJob() = %v, %v", ok, err)
	}
	job, _ = repo.GetJob(ctx, "job-1")
	if job.Status != domain.JobQueued || job.WorkerID != "" || job.ErrorMessage != "" || job.Attempts != 0 {
		t.Fatalf("retried job = %+v", job)
	}
}

func TestStaleRecoveryCountsAttempts(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedJob(t, repo, "job-1", "scan-1", 5, stamp(0))
	if ok, err := repo.ClaimJob(ctx, "job-1", "worker-a", stamp(time.Second)); err != nil || !ok {
		t.Fatalf("ClaimJob() = %v, %v", ok, err)
	}

	fresh, err := repo.ListStaleJobs(ctx, stamp(0))
	if err != nil {
		t.Fatalf("ListStaleJobs() error = %v", err)
	}
	if len(fresh) != 0 {
		t.Fatalf("fresh job listed as stale: %+v", fresh)
	}

	stale, err := repo.ListStaleJobs(ctx, stamp(10*time.Minute))
	if err != nil {
		t.Fatalf("ListStaleJobs() error = %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("ListStaleJobs() len = %d", len(stale))
	}

	// A heartbeat after listing makes the recovery a no-op.
	if ok, err := repo.Heartbeat(ctx, "job-1", "worker-a", stamp(2*time.Second)); err != nil || !ok {
		t.Fatalf("Heartbeat() = %v, %v", ok, err)
	}
	ok, err := repo.RecoverJob(ctx, ports.JobRecovery{
		JobID:       "job-1",
		WorkerID:    stale[0].WorkerID,
		HeartbeatAt: stale[0].HeartbeatAt,
		To:          domain.JobQueued,
		RecoveredAt: stamp(10 * time.Minute),
	})
	if err != nil || ok {
		t.Fatalf("RecoverJob() after heartbeat = %v, %v", ok, err)
	}

	ok, err = repo.RecoverJob(ctx, ports.JobRecovery{
		JobID:       "job-1",
		WorkerID:    "worker-a",
		HeartbeatAt: stamp(2 * time.Second),
		To:          domain.JobQueued,
		Message:     "stale heartbeat",
		RecoveredAt: stamp(10 * time.Minute),
	})
	if err != nil || !ok {
		t.Fatalf("RecoverJob() = %v, %v", ok, err)
	}
	job, _ := repo.GetJob(ctx, "job-1")
	if job.Status != domain.JobQueued || job.Attempts != 1 || job.WorkerID != "" || job.HeartbeatAt != "" {
		t.Fatalf("recovered job = %+v", job)
	}
}

func TestCancelAndPrioritizeOnlyQueued(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedJob(t, repo, "job-1", "scan-1", 5, stamp(0))
	seedJob(t, repo, "job-2", "scan-2", 5, stamp(0))

	if ok, err := repo.UpdateJobPriority(ctx, "job-1", 1, stamp(time.Second)); err != nil || !ok {
		t.Fatalf("UpdateJobPriority() = %v, %v", ok, err)
	}
	if _, err := repo.UpdateJobPriority(ctx, "job-1", 11, stamp(time.Second)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("UpdateJobPriority(11) error = %v", err)
	}

	if ok, err := repo.CancelJob(ctx, "job-2", stamp(time.Second)); err != nil || !ok {
		t.Fatalf("CancelJob() = %v, %v", ok, err)
	}
	if ok, err := repo.CancelJob(ctx, "job-2", stamp(2*time.Second)); err != nil || ok {
		t.Fatalf("second CancelJob() = %v, %v", ok, err)
	}
	if ok, err := repo.UpdateJobPriority(ctx, "job-2", 2, stamp(2*time.Second)); err != nil || ok {
		t.Fatalf("UpdateJobPriority() on cancelled = %v, %v", ok, err)
	}

	counts, err := repo.CountJobsByStatus(ctx)
	if err != nil {
		t.Fatalf("CountJobsByStatus() error = %v", err)
	}
	if counts[domain.JobQueued] != 1 || counts[domain.JobCancelled] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestFindOpenJobForScan(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()

	if _, err := repo.FindOpenJobForScan(ctx, "scan-1"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("FindOpenJobForScan() error = %v", err)
	}
	seedJob(t, repo, "job-1", "scan-1", 5, stamp(0))
	job, err := repo.FindOpenJobForScan(ctx, "scan-1")
	if err != nil {
		t.Fatalf("FindOpenJobForScan() error = %v", err)
	}
	if job.JobID != "job-1" {
		t.Fatalf("job = %+v", job)
	}
}

func TestFindOpenJobForScanMatchesBulkMembers(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()

	if _, err := repo.CreateJob(ctx, ports.JobRecord{
		JobID:     "job-bulk",
		JobType:   domain.JobBulkRescan,
		ScanID:    "scan-1",
		ScanIDs:   []string{"scan-1", "scan-2"},
		Status:    domain.JobQueued,
		Priority:  5,
		CreatedAt: stamp(0),
		UpdatedAt: stamp(0),
	}); err != nil {
		t.Fatalf("create bulk job: %v", err)
	}

	job, err := repo.FindOpenJobForScan(ctx, "scan-2")
	if err != nil {
		t.Fatalf("FindOpenJobForScan(scan-2) error = %v", err)
	}
	if job.JobID != "job-bulk" {
		t.Fatalf("job = %+v, want job-bulk", job)
	}
	for _, id := range []string{"scan-", "scan-22", "scan_2"} {
		if _, err := repo.FindOpenJobForScan(ctx, id); !errors.Is(err, domain.ErrJobNotFound) {
			t.Fatalf("FindOpenJobForScan(%s) error = %v, want ErrJobNotFound", id, err)
		}
	}
}

func TestAnchorsSoftDelete(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()

	for i, id := range []string{"anchor-2", "anchor-1"} {
		if _, err := repo.CreateAnchor(ctx, ports.AnchorRecord{
			AnchorID:   id,
			ModelID:    "model-1",
			StorageKey: "anchors/" + id,
			StorageURL: "https://cdn.example.test/" + id,
			AddedBy:    "admin-1",
			CreatedAt:  stamp(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatalf("CreateAnchor(%s) error = %v", id, err)
		}
	}
	if _, err := repo.CreateAnchor(ctx, ports.AnchorRecord{
		AnchorID:   "anchor-x",
		ModelID:    "model-2",
		StorageKey: "anchors/x",
		StorageURL: "https://cdn.example.test/x",
		AddedBy:    "admin-1",
		CreatedAt:  stamp(0),
	}); err != nil {
		t.Fatalf("CreateAnchor(anchor-x) error = %v", err)
	}

	anchors, err := repo.ListActiveAnchors(ctx, "model-1")
	if err != nil {
		t.Fatalf("ListActiveAnchors() error = %v", err)
	}
	if len(anchors) != 2 || anchors[0].AnchorID != "anchor-2" {
		t.Fatalf("anchors = %+v", anchors)
	}

	ok, err := repo.DeactivateAnchor(ctx, "anchor-2", "admin-2", stamp(time.Minute))
	if err != nil || !ok {
		t.Fatalf("DeactivateAnchor() = %v, %v", ok, err)
	}
	ok, err = repo.DeactivateAnchor(ctx, "anchor-2", "admin-2", stamp(time.Minute))
	if err != nil || ok {
		t.Fatalf("second DeactivateAnchor() = %v, %v", ok, err)
	}

	total, err := repo.CountActiveAnchors(ctx, "model-1")
	if err != nil || total != 1 {
		t.Fatalf("CountActiveAnchors() = %d, %v", total, err)
	}

	kept, err := repo.GetAnchor(ctx, "anchor-2")
	if err != nil {
		t.Fatalf("GetAnchor() error = %v", err)
	}
	if kept.IsActive || kept.DeactivatedBy != "admin-2" {
		t.Fatalf("deactivated anchor = %+v", kept)
	}

	byModel, err := repo.ListActiveAnchorsByModels(ctx, []string{"model-1", "model-2", " "})
	if err != nil {
		t.Fatalf("ListActiveAnchorsByModels() error = %v", err)
	}
	if len(byModel) != 2 {
		t.Fatalf("ListActiveAnchorsByModels() len = %d", len(byModel))
	}
}

func TestScanStatistics(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedScan(t, repo, "scan-1", 5, stamp(0))
	seedScan(t, repo, "scan-2", 5, stamp(time.Second))

	if _, err := repo.BeginScan(ctx, "scan-2", "job-2", stamp(2*time.Second)); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}
	if err := repo.RecordScanOutcome(ctx, ports.ScanOutcome{
		ScanID:      "scan-2",
		ClaimToken:  "job-2",
		Status:      domain.ScanPendingReview,
		Flags:       []domain.Flag{domain.FlagDeepfakeDetected, domain.FlagMultipleFaces},
		CompletedAt: stamp(3 * time.Second),
	}); err != nil {
		t.Fatalf("RecordScanOutcome() error = %v", err)
	}

	byStatus, err := repo.CountScansByStatus(ctx)
	if err != nil {
		t.Fatalf("CountScansByStatus() error = %v", err)
	}
	if byStatus[domain.ScanPendingScan] != 1 || byStatus[domain.ScanPendingReview] != 1 {
		t.Fatalf("byStatus = %v", byStatus)
	}

	flags, err := repo.CountFlags(ctx)
	if err != nil {
		t.Fatalf("CountFlags() error = %v", err)
	}
	if flags[domain.FlagDeepfakeDetected] != 1 || flags[domain.FlagMultipleFaces] != 1 {
		t.Fatalf("flags = %v", flags)
	}

	oldest, err := repo.OldestScanCreatedAt(ctx, domain.ScanPendingScan)
	if err != nil || oldest != stamp(0) {
		t.Fatalf("OldestScanCreatedAt() = %q, %v", oldest, err)
	}
	none, err := repo.OldestScanCreatedAt(ctx, domain.ScanRejected)
	if err != nil || none != "" {
		t.Fatalf("OldestScanCreatedAt(rejected) = %q, %v", none, err)
	}

	total, err := repo.CountScans(ctx, ports.ScanFilter{Statuses: []domain.ScanStatus{domain.ScanPendingReview}})
	if err != nil || total != 1 {
		t.Fatalf("CountScans() = %d, %v", total, err)
	}
}

func TestReleaseScanOnlyForHolder(t *testing.T) {
	repo := setupModerationRepository(t)
	ctx := context.Background()
	seedScan(t, repo, "scan-1", 5, stamp(0))
	if _, err := repo.BeginScan(ctx, "scan-1", "worker-a", stamp(time.Second)); err != nil {
		t.Fatalf("BeginScan() error = %v", err)
	}

	ok, err := repo.ReleaseScan(ctx, "scan-1", "worker-b", stamp(2*time.Second))
	if err != nil || ok {
		t.Fatalf("ReleaseScan() by other holder = %v, %v", ok, err)
	}
	ok, err = repo.ReleaseScan(ctx, "scan-1", "worker-a", stamp(2*time.Second))
	if err != nil || !ok {
		t.Fatalf("ReleaseScan() = %v, %v", ok, err)
	}

	got, _ := repo.GetScan(ctx, "scan-1")
	if got.Status != domain.ScanPendingScan || got.ScannedBy != "" {
		t.Fatalf("released scan = %+v", got)
	}
}
