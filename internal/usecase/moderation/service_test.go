package moderation

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/infrastructure/persistence/gormdb/model"
	"creatorguard/internal/infrastructure/persistence/gormdb/repository"
	"creatorguard/internal/ports"
)

type stubVision struct {
	mu       sync.Mutex
	result   ports.VisionResult
	err      error
	requests []ports.VisionRequest
	started  chan struct{}
	release  chan struct{}
}

func (v *stubVision) Scan(ctx context.Context, req ports.VisionRequest) (ports.VisionResult, error) {
	v.mu.Lock()
	v.requests = append(v.requests, req)
	started, release := v.started, v.release
	result, err := v.result, v.err
	v.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return ports.VisionResult{}, ctx.Err()
		}
	}
	return result, err
}

func (v *stubVision) calls() []ports.VisionRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]ports.VisionRequest(nil), v.requests...)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []ports.ModerationEvent
}

func (r *recordingEvents) Publish(_ context.Context, event ports.ModerationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingEvents) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type memCache struct {
	mu     sync.Mutex
	values map[string]string
	sets   int
}

func (c *memCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = map[string]string{}
	}
	c.values[key] = value
	c.sets++
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *repository.ModerationRepository
	vision *stubVision
	events *recordingEvents
	cache  *memCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "moderation.sqlite") + "?_pragma=busy_timeout(5000)"
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))

	repo := repository.NewModerationRepository(db)
	f := &fixture{
		repo:   repo,
		vision: &stubVision{result: ports.VisionResult{Flags: []string{}, Confidence: 0.95, DetectedFaces: 1}},
		events: &recordingEvents{},
		cache:  &memCache{},
	}
	f.svc = NewService(Dependencies{
		Scans:   repo,
		Anchors: repo,
		Jobs:    repo,
		Vision:  f.vision,
		Events:  f.events,
		Cache:   f.cache,
	}, Options{})
	return f
}

func intPtr(v int) *int { return &v }

func (f *fixture) createScan(t *testing.T, target domain.TargetType, modelID string, priority int) string {
	t.Helper()
	scanID, err := f.svc.CreateScan(context.Background(), CreateScanInput{
		TargetType: string(target),
		TargetID:   "upload-1",
		ModelID:    modelID,
		CreatorID:  "creator-1",
		StorageKey: "uploads/upload-1.jpg",
		StorageURL: "https://cdn.example.test/upload-1.jpg",
		Priority:   intPtr(priority),
	})
	require.NoError(t, err)
	return scanID
}

func (f *fixture) addAnchors(t *testing.T, modelID string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := f.svc.AddModelAnchor(context.Background(), AddAnchorInput{
			ModelID:    modelID,
			StorageKey: "anchors/" + modelID + ".jpg",
			StorageURL: "https://cdn.example.test/anchors/" + modelID + ".jpg",
			AddedBy:    "admin-1",
		})
		require.NoError(t, err)
	}
}

// claimJobFor claims the open job of scanID as workerID and returns its id.
func (f *fixture) claimJobFor(t *testing.T, scanID string, workerID string) string {
	t.Helper()
	ctx := context.Background()
	job, err := f.repo.FindOpenJobForScan(ctx, scanID)
	require.NoError(t, err)
	ok, err := f.repo.ClaimJob(ctx, job.JobID, workerID, domain.FormatTimestamp(time.Now()))
	require.NoError(t, err)
	require.True(t, ok)
	return job.JobID
}

func (f *fixture) process(t *testing.T, scanID string) (string, ProcessResult, error) {
	t.Helper()
	jobID := f.claimJobFor(t, scanID, "worker-1")
	result, err := f.svc.ProcessScanJob(context.Background(), jobID, "worker-1")
	return jobID, result, err
}

func TestCreateScanStartsPendingWithQueuedJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scanID := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 4)

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanPendingScan, scan.Status)
	assert.Equal(t, 4, scan.Priority)
	assert.Empty(t, scan.Flags)

	job, err := f.repo.FindOpenJobForScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Equal(t, domain.JobContentUpload, job.JobType)
	assert.Equal(t, []string{scanID}, job.ScanIDs)
	assert.Equal(t, 4, job.Priority)
	assert.Equal(t, 3, job.MaxAttempts)
	assert.Empty(t, f.vision.calls(), "creating a scan must not call vision")
}

func TestCreateScanValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	valid := CreateScanInput{
		TargetType: string(domain.TargetChatMedia),
		TargetID:   "t",
		CreatorID:  "c",
		StorageKey: "k",
		StorageURL: "https://cdn.example.test/k",
	}

	cases := map[string]func(in *CreateScanInput){
		"unknown target":   func(in *CreateScanInput) { in.TargetType = "banner" },
		"missing target":   func(in *CreateScanInput) { in.TargetID = " " },
		"missing creator":  func(in *CreateScanInput) { in.CreatorID = "" },
		"missing key":      func(in *CreateScanInput) { in.StorageKey = "" },
		"missing url":      func(in *CreateScanInput) { in.StorageURL = "" },
		"priority too low": func(in *CreateScanInput) { in.Priority = intPtr(0) },
		"priority too big": func(in *CreateScanInput) { in.Priority = intPtr(11) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := valid
			mutate(&in)
			_, err := f.svc.CreateScan(ctx, in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
		})
	}

	total, err := f.repo.CountScans(ctx, ports.ScanFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)

	scanID, err := f.svc.CreateScan(ctx, valid)
	require.NoError(t, err)
	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultPriority, scan.Priority)
}

func TestQueueUploadDerivesPriorityFromTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	scanID, err := f.svc.QueueUploadForModeration(ctx, UploadInput{
		TargetType: string(domain.TargetOnboardingImage),
		TargetID:   "onboarding-1",
		ModelID:    "model-1",
		CreatorID:  "creator-1",
		StorageKey: "k",
		StorageURL: "https://cdn.example.test/k",
	})
	require.NoError(t, err)

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, 2, scan.Priority)

	job, err := f.repo.FindOpenJobForScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobModelOnboarding, job.JobType)
}

func TestScenarioAApprovedWithAnchor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAnchors(t, "model-1", 1)
	scanID := f.createScan(t, domain.TargetModelProfilePhoto, "model-1", 3)

	jobID, result, err := f.process(t, scanID)
	require.NoError(t, err)
	require.Len(t, result.Scans, 1)

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanApproved, scan.Status)
	assert.Contains(t, scan.Flags, domain.FlagInsufficientAnchors)
	require.NotNil(t, scan.Confidence)
	assert.InDelta(t, 0.95, *scan.Confidence, 1e-9)
	assert.Equal(t, "worker-1", scan.ScannedBy)
	assert.Equal(t, 1, scan.ScanCount)

	job, err := f.repo.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)

	calls := f.vision.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "https://cdn.example.test/upload-1.jpg", calls[0].AssetURL)
	assert.Len(t, calls[0].AnchorURLs, 1)
	assert.Contains(t, f.events.types(), ports.EventScanDecided)
}

func TestScenarioBNoAnchorsNeedsReview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.vision.result = ports.VisionResult{Confidence: 0.99, DetectedFaces: 1}
	scanID := f.createScan(t, domain.TargetModelProfilePhoto, "model-1", 3)

	_, _, err := f.process(t, scanID)
	require.NoError(t, err)

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanPendingReview, scan.Status)
	assert.Contains(t, scan.Flags, domain.FlagNoAnchors)
}

func TestScenarioCVisionErrorFailsScanAndJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.vision.err = errors.New("dial tcp: connection refused")
	scanID := f.createScan(t, domain.TargetPPVContent, "model-1", 4)

	jobID, result, err := f.process(t, scanID)
	require.Error(t, err)
	require.Len(t, result.Scans, 1)
	assert.Equal(t, domain.ScanFailed, result.Scans[0].Status)

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanFailed, scan.Status)
	assert.Contains(t, scan.ErrorMessage, "connection refused")

	job, err := f.repo.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Contains(t, job.ErrorMessage, "connection refused")
	assert.Contains(t, f.events.types(), ports.EventJobFailed)
}

func TestHighRiskFlagsNeverAutoApproved(t *testing.T) {
	for _, flag := range []domain.Flag{domain.FlagDeepfakeDetected, domain.FlagMinorAppearanceRisk} {
		t.Run(string(flag), func(t *testing.T) {
			f := newFixture(t)
			f.addAnchors(t, "model-1", 3)
			f.vision.result = ports.VisionResult{Flags: []string{string(flag)}, Confidence: 1, DetectedFaces: 1}
			scanID := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)

			_, _, err := f.process(t, scanID)
			require.NoError(t, err)

			scan, err := f.svc.GetScan(context.Background(), scanID)
			require.NoError(t, err)
			assert.Equal(t, domain.ScanPendingReview, scan.Status)
			assert.Contains(t, scan.Flags, flag)
		})
	}
}

func TestProcessScanJobDropsUnknownFlags(t *testing.T) {
	f := newFixture(t)
	f.addAnchors(t, "model-1", 3)
	f.vision.result = ports.VisionResult{Flags: []string{"sparkly", "LOW_QUALITY_IMAGE"}, Confidence: 0.9, DetectedFaces: 1}
	scanID := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)

	_, _, err := f.process(t, scanID)
	require.NoError(t, err)

	scan, err := f.svc.GetScan(context.Background(), scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanApproved, scan.Status)
	assert.Equal(t, []domain.Flag{domain.FlagLowQualityImage}, scan.Flags)
}

func TestProcessScanJobRequiresClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanID := f.createScan(t, domain.TargetChatMedia, "", 6)
	job, err := f.repo.FindOpenJobForScan(ctx, scanID)
	require.NoError(t, err)

	_, err = f.svc.ProcessScanJob(ctx, job.JobID, "worker-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrClaimLost))
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanPendingScan, scan.Status)
	assert.Empty(t, f.vision.calls())
}

func TestProcessScanJobSkipsDecidedScans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAnchors(t, "model-1", 3)
	scanID := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	_, _, err := f.process(t, scanID)
	require.NoError(t, err)

	// A second job pointing at the already approved scan completes without scanning again.
	job, err := f.repo.CreateJob(ctx, ports.JobRecord{
		JobID:     "job-duplicate",
		JobType:   domain.JobContentUpload,
		ScanID:    scanID,
		ScanIDs:   []string{scanID},
		Status:    domain.JobQueued,
		Priority:  5,
		CreatedAt: domain.FormatTimestamp(time.Now()),
		UpdatedAt: domain.FormatTimestamp(time.Now()),
	})
	require.NoError(t, err)
	ok, err := f.repo.ClaimJob(ctx, job.JobID, "worker-2", domain.FormatTimestamp(time.Now()))
	require.NoError(t, err)
	require.True(t, ok)

	result, err := f.svc.ProcessScanJob(ctx, job.JobID, "worker-2")
	require.NoError(t, err)
	require.Len(t, result.Scans, 1)
	assert.True(t, result.Scans[0].Skipped)
	assert.Len(t, f.vision.calls(), 1)
}

func TestLateCompletionAfterAbandonIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAnchors(t, "model-1", 3)
	f.vision.started = make(chan struct{}, 1)
	f.vision.release = make(chan struct{})
	scanID := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	jobID := f.claimJobFor(t, scanID, "worker-1")

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.ProcessScanJob(ctx, jobID, "worker-1")
		done <- err
	}()

	select {
	case <-f.vision.started:
	case <-time.After(5 * time.Second):
		t.Fatal("vision never called")
	}

	require.NoError(t, f.svc.AbandonJob(ctx, jobID, "worker-1", domain.ErrTimeout))
	close(f.vision.release)

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrClaimLost), "got %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("ProcessScanJob did not return")
	}

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanFailed, scan.Status)
	assert.Contains(t, scan.ErrorMessage, domain.ErrTimeout.Error())

	job, err := f.repo.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobFailed, job.Status)
}

func TestReviewScenarioDApproveAddsAnchor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanID := f.createScan(t, domain.TargetModelProfilePhoto, "model-1", 3)
	_, _, err := f.process(t, scanID)
	require.NoError(t, err)

	result, err := f.svc.ReviewScan(ctx, ReviewInput{
		ScanID:      scanID,
		ReviewerID:  "admin-1",
		Action:      "approved",
		Notes:       "matches onboarding photos",
		AddAsAnchor: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ScanApproved, result.Scan.Status)
	assert.Equal(t, "admin-1", result.Scan.ReviewerID)
	assert.NotEmpty(t, result.Scan.ReviewedAt)
	require.NotNil(t, result.Anchor)
	assert.Equal(t, scanID, result.Anchor.SourceScanID)
	assert.Equal(t, "uploads/upload-1.jpg", result.Anchor.StorageKey)

	anchors, err := f.svc.GetModelAnchors(ctx, "model-1")
	require.NoError(t, err)
	require.Len(t, anchors, 1)
	assert.True(t, anchors[0].IsActive)
	assert.Contains(t, f.events.types(), ports.EventScanReviewed)
}

type failingAnchors struct {
	ports.AnchorRepository
}

func (failingAnchors) CreateAnchor(context.Context, ports.AnchorRecord) (ports.AnchorRecord, error) {
	return ports.AnchorRecord{}, errors.New("anchor store unavailable")
}

func TestReviewApprovalKeptWhenAnchorFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanID := f.createScan(t, domain.TargetModelProfilePhoto, "model-1", 3)
	_, _, err := f.process(t, scanID)
	require.NoError(t, err)

	svc := NewService(Dependencies{
		Scans:   f.repo,
		Anchors: failingAnchors{AnchorRepository: f.repo},
		Jobs:    f.repo,
		Vision:  f.vision,
		Events:  f.events,
		Cache:   f.cache,
	}, Options{})
	result, err := svc.ReviewScan(ctx, ReviewInput{
		ScanID:      scanID,
		ReviewerID:  "admin-1",
		Action:      "approved",
		AddAsAnchor: true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anchor not created")
	assert.Equal(t, scanID, result.Scan.ScanID)
	assert.Equal(t, domain.ScanApproved, result.Scan.Status)
	assert.Nil(t, result.Anchor)

	stored, err := f.repo.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanApproved, stored.Status)
}

func TestReviewTwiceFailsWithInvalidState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanID := f.createScan(t, domain.TargetModelCover, "model-1", 3)
	_, _, err := f.process(t, scanID)
	require.NoError(t, err)

	_, err = f.svc.ReviewScan(ctx, ReviewInput{ScanID: scanID, ReviewerID: "admin-1", Action: "rejected"})
	require.NoError(t, err)

	_, err = f.svc.ReviewScan(ctx, ReviewInput{ScanID: scanID, ReviewerID: "admin-2", Action: "approved"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanRejected, scan.Status)
	assert.Equal(t, "admin-1", scan.ReviewerID)
}

func TestReviewEscalationStaysReviewable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	scanID := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	_, _, err := f.process(t, scanID)
	require.NoError(t, err)

	result, err := f.svc.ReviewScan(ctx, ReviewInput{ScanID: scanID, ReviewerID: "mod-1", Action: "escalated", Notes: "looks like a real person"})
	require.NoError(t, err)
	assert.Equal(t, domain.ScanPendingReview, result.Scan.Status)
	assert.Equal(t, domain.HighestPriority, result.Scan.Priority)
	assert.Equal(t, "escalated", result.Scan.ReviewAction)

	result, err = f.svc.ReviewScan(ctx, ReviewInput{ScanID: scanID, ReviewerID: "admin-1", Action: "approved", AddAsAnchor: false})
	require.NoError(t, err)
	assert.Equal(t, domain.ScanApproved, result.Scan.Status)
	assert.Nil(t, result.Anchor)
}

func TestReviewValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReviewScan(ctx, ReviewInput{ScanID: "missing", ReviewerID: "a", Action: "approved"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = f.svc.ReviewScan(ctx, ReviewInput{ScanID: "x", ReviewerID: "a", Action: "maybe"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	scanID := f.createScan(t, domain.TargetChatMedia, "", 6)
	_, err = f.svc.ReviewScan(ctx, ReviewInput{ScanID: scanID, ReviewerID: "a", Action: "approved"})
	assert.True(t, errors.Is(err, domain.ErrInvalidState), "pending_scan is not reviewable")

	_, _, err = f.process(t, scanID)
	require.NoError(t, err)
	_, err = f.svc.ReviewScan(ctx, ReviewInput{ScanID: scanID, ReviewerID: "a", Action: "approved", AddAsAnchor: true})
	assert.True(t, errors.Is(err, domain.ErrValidation), "anchor without model")

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanPendingReview, scan.Status)
}

func TestRequestRescan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAnchors(t, "model-1", 3)
	scanID := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)

	_, err := f.svc.RequestRescan(ctx, RescanInput{ScanID: scanID, RequestedBy: "admin-1"})
	assert.True(t, errors.Is(err, domain.ErrInvalidState), "pending scan cannot be re-scanned")

	_, _, err = f.process(t, scanID)
	require.NoError(t, err)

	jobID, err := f.svc.RequestRescan(ctx, RescanInput{ScanID: scanID, RequestedBy: "admin-1", Priority: intPtr(2)})
	require.NoError(t, err)

	scan, err := f.svc.GetScan(ctx, scanID)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanPendingScan, scan.Status)
	assert.Equal(t, 2, scan.Priority)

	job, err := f.repo.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobQueued, job.Status)
	assert.Equal(t, 2, job.Priority)
}

func TestBulkRescanByModel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addAnchors(t, "model-1", 3)

	first := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	second := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	pending := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	for _, id := range []string{first, second} {
		_, _, err := f.process(t, id)
		require.NoError(t, err)
	}

	result, err := f.svc.BulkRescan(ctx, BulkRescanInput{ModelID: "model-1", RequestedBy: "admin-1"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first, second}, result.ScanIDs)
	assert.NotContains(t, result.ScanIDs, pending)

	job, err := f.repo.GetJob(ctx, result.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobBulkRescan, job.JobType)
	assert.ElementsMatch(t, result.ScanIDs, job.ScanIDs)

	ok, err := f.repo.ClaimJob(ctx, job.JobID, "worker-9", domain.FormatTimestamp(time.Now()))
	require.NoError(t, err)
	require.True(t, ok)
	processed, err := f.svc.ProcessScanJob(ctx, job.JobID, "worker-9")
	require.NoError(t, err)
	assert.Len(t, processed.Scans, 2)

	_, err = f.svc.BulkRescan(ctx, BulkRescanInput{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	skipped, err := f.svc.BulkRescan(ctx, BulkRescanInput{ScanIDs: []string{pending, "nope"}})
	assert.True(t, errors.Is(err, domain.ErrInvalidState))
	assert.ElementsMatch(t, []string{pending, "nope"}, skipped.Skipped)
}

// bulkRescanTwo decides two scans of model-1 and bulk re-scans them.
func bulkRescanTwo(t *testing.T, f *fixture) (string, string, string) {
	t.Helper()
	f.addAnchors(t, "model-1", 3)
	first := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	second := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	for _, id := range []string{first, second} {
		_, _, err := f.process(t, id)
		require.NoError(t, err)
	}
	result, err := f.svc.BulkRescan(context.Background(), BulkRescanInput{ModelID: "model-1", RequestedBy: "admin-1"})
	require.NoError(t, err)
	return result.JobID, first, second
}

func TestEnsureScanJobReusesOpenBulkJob(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bulkID, first, second := bulkRescanTwo(t, f)

	for _, id := range []string{first, second} {
		job, err := f.svc.EnsureScanJob(ctx, id, "admin-1")
		require.NoError(t, err)
		assert.Equal(t, bulkID, job.JobID, "scan %s", id)
	}

	queued, err := f.repo.CountJobs(ctx, ports.JobFilter{Statuses: []domain.JobStatus{domain.JobQueued}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), queued)
}

func TestBulkJobSkipsScanHeldByAnotherWorker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bulkID, first, second := bulkRescanTwo(t, f)

	_, err := f.repo.BeginScan(ctx, second, "worker-other", domain.FormatTimestamp(time.Now()))
	require.NoError(t, err)

	ok, err := f.repo.ClaimJob(ctx, bulkID, "worker-9", domain.FormatTimestamp(time.Now()))
	require.NoError(t, err)
	require.True(t, ok)
	result, err := f.svc.ProcessScanJob(ctx, bulkID, "worker-9")
	require.NoError(t, err)

	byID := map[string]ScanResult{}
	for _, scan := range result.Scans {
		byID[scan.ScanID] = scan
	}
	assert.True(t, byID[second].Skipped)
	assert.False(t, byID[first].Skipped)

	held, err := f.repo.GetScan(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, domain.ScanScanning, held.Status)
	assert.Equal(t, "worker-other", held.ScannedBy)

	job, err := f.repo.GetJob(ctx, bulkID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobCompleted, job.Status)
}

func TestAnchorManagement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.AddModelAnchor(ctx, AddAnchorInput{ModelID: "model-1", StorageURL: "https://x", AddedBy: "a"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	anchor, err := f.svc.AddModelAnchor(ctx, AddAnchorInput{
		ModelID:    "model-1",
		StorageKey: "anchors/a.jpg",
		StorageURL: "https://cdn.example.test/anchors/a.jpg",
		AddedBy:    "admin-1",
		Note:       "front facing",
	})
	require.NoError(t, err)
	assert.True(t, anchor.IsActive)

	err = f.svc.RemoveModelAnchor(ctx, "model-2", anchor.AnchorID, "admin-2")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "anchor of another model")

	require.NoError(t, f.svc.RemoveModelAnchor(ctx, "model-1", anchor.AnchorID, "admin-2"))
	require.NoError(t, f.svc.RemoveModelAnchor(ctx, "", anchor.AnchorID, "admin-2"), "second removal is a no-op")

	err = f.svc.RemoveModelAnchor(ctx, "", "missing", "admin-2")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	anchors, err := f.svc.GetModelAnchors(ctx, "model-1")
	require.NoError(t, err)
	assert.Empty(t, anchors)
}

func TestListQueueJoinsAnchors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.vision.result = ports.VisionResult{Flags: []string{"identity_drift"}, Confidence: 0.5, DetectedFaces: 1}
	f.addAnchors(t, "model-1", 2)

	withModel := f.createScan(t, domain.TargetModelGalleryItem, "model-1", 5)
	withoutModel := f.createScan(t, domain.TargetChatMedia, "", 6)
	for _, id := range []string{withModel, withoutModel} {
		_, _, err := f.process(t, id)
		require.NoError(t, err)
	}

	page, err := f.svc.ListQueue(ctx, ListFilter{PerPage: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.Items, 2)

	byScan := map[string]QueueItem{}
	for _, item := range page.Items {
		byScan[item.Scan.ScanID] = item
	}
	require.NotNil(t, byScan[withModel].Model)
	assert.Equal(t, 2, byScan[withModel].Model.ActiveAnchorCount)
	assert.Len(t, byScan[withModel].Anchors, 2)
	assert.Nil(t, byScan[withoutModel].Model)
	assert.Empty(t, byScan[withoutModel].Anchors)

	_, err = f.svc.ListQueue(ctx, ListFilter{Statuses: []string{"sideways"}})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestModerationStatsAreCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.vision.result = ports.VisionResult{Flags: []string{"deepfake_detected"}, Confidence: 0.9, DetectedFaces: 1}
	scanID := f.createScan(t, domain.TargetPPVContent, "model-1", 4)
	_, _, err := f.process(t, scanID)
	require.NoError(t, err)
	f.createScan(t, domain.TargetChatMedia, "", 6)

	stats, err := f.svc.GetModerationStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.Total)
	assert.EqualValues(t, 1, stats.PendingReview)
	assert.EqualValues(t, 1, stats.ByStatus["pending_scan"])
	assert.EqualValues(t, 1, stats.ByTargetType["ppv_content"])
	assert.EqualValues(t, 1, stats.ByFlag["deepfake_detected"])
	assert.EqualValues(t, 1, stats.ByFlag["no_anchors"])
	assert.NotEmpty(t, stats.OldestPendingReviewAt)
	assert.Equal(t, 1, f.cache.sets)

	// Writes that bypass the service are not visible until the cache is invalidated.
	_, err = f.repo.CreateScan(ctx, ports.ScanRecord{
		ScanID: "direct", TargetType: domain.TargetChatMedia, TargetID: "t", CreatorID: "c",
		StorageKey: "k", StorageURL: "u", Priority: 5, Status: domain.ScanPendingScan,
		CreatedAt: domain.FormatTimestamp(time.Now()), UpdatedAt: domain.FormatTimestamp(time.Now()),
	})
	require.NoError(t, err)
	cached, err := f.svc.GetModerationStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cached.Total)

	f.createScan(t, domain.TargetChatMedia, "", 6)
	fresh, err := f.svc.GetModerationStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, fresh.Total)
}
