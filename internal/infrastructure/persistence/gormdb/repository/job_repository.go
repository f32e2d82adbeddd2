package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	domain "creatorguard/internal/domain/moderation"
	"creatorguard/internal/errs"
	"creatorguard/internal/infrastructure/persistence/gormdb/model"
	"creatorguard/internal/ports"
)

func (r *ModerationRepository) CreateJob(ctx context.Context, job ports.JobRecord) (ports.JobRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.JobRecord{}, err
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	row := model.ModerationJob{
		JobID:       job.JobID,
		JobType:     string(job.JobType),
		ScanID:      job.ScanID,
		ScanIDs:     nonNilStrings(job.ScanIDs),
		Status:      string(job.Status),
		Priority:    job.Priority,
		Attempts:    job.Attempts,
		MaxAttempts: maxAttempts,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.JobRecord{}, errs.Wrap(err, "insert moderation job")
	}
	return mapJob(row), nil
}

func (r *ModerationRepository) GetJob(ctx context.Context, jobID string) (ports.JobRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.JobRecord{}, err
	}
	return getJobByID(db, jobID)
}

func (r *ModerationRepository) ListJobs(ctx context.Context, filter ports.JobFilter) ([]ports.JobRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := pageQuery(applyJobFilter(db.Model(&model.ModerationJob{}), filter), filter.Limit, filter.Offset)

	var rows []model.ModerationJob
	if err := queueOrder(query).Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query moderation jobs")
	}
	return mapJobs(rows), nil
}

func (r *ModerationRepository) CountJobs(ctx context.Context, filter ports.JobFilter) (int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var total int64
	if err := applyJobFilter(db.Model(&model.ModerationJob{}), filter).Count(&total).Error; err != nil {
		return 0, errs.Wrap(err, "count moderation jobs")
	}
	return total, nil
}

// FindOpenJobForScan returns the queued or processing job that covers scanID,
// either as its primary scan or as a member of scan_ids.
func (r *ModerationRepository) FindOpenJobForScan(ctx context.Context, scanID string) (ports.JobRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.JobRecord{}, err
	}

	member, err := json.Marshal(scanID)
	if err != nil {
		return ports.JobRecord{}, errs.Wrap(err, "encode scan id")
	}

	var row model.ModerationJob
	err = db.Where("(scan_id = ? OR scan_ids LIKE ? ESCAPE '\\') AND status IN ?",
		scanID, "%"+escapeLike(string(member))+"%",
		jobStatusStrings([]domain.JobStatus{domain.JobQueued, domain.JobProcessing})).
		Order("created_at desc").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.JobRecord{}, fmt.Errorf("%w: no open job for scan %s", domain.ErrJobNotFound, scanID)
		}
		return ports.JobRecord{}, errs.Wrap(err, "query open moderation job")
	}
	return mapJob(row), nil
}

func (r *ModerationRepository) ListQueuedJobs(ctx context.Context, limit int) ([]ports.JobRecord, error) {
	return r.ListJobs(ctx, ports.JobFilter{
		Statuses: []domain.JobStatus{domain.JobQueued},
		Limit:    limit,
	})
}

// ClaimJob moves a queued job to processing for workerID. Exactly one caller
// wins a race for the same job.
func (r *ModerationRepository) ClaimJob(ctx context.Context, jobID string, workerID string, claimedAt string) (bool, error) {
	if strings.TrimSpace(workerID) == "" {
		return false, errors.New("worker id is required")
	}
	if err := domain.ValidateJobTransition(domain.JobQueued, domain.JobProcessing); err != nil {
		return false, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModerationJob{}).
		Where("job_id = ? AND status = ?", jobID, string(domain.JobQueued)).
		Updates(map[string]any{
			"status":        string(domain.JobProcessing),
			"worker_id":     workerID,
			"claimed_at":    claimedAt,
			"heartbeat_at":  claimedAt,
			"completed_at":  nil,
			"error_message": nil,
			"updated_at":    claimedAt,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "claim moderation job")
	}
	return result.RowsAffected > 0, nil
}

func (r *ModerationRepository) Heartbeat(ctx context.Context, jobID string, workerID string, at string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModerationJob{}).
		Where("job_id = ? AND status = ? AND worker_id = ?", jobID, string(domain.JobProcessing), workerID).
		Updates(map[string]any{
			"heartbeat_at": at,
			"updated_at":   at,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "heartbeat moderation job")
	}
	return result.RowsAffected > 0, nil
}

func (r *ModerationRepository) CompleteJob(ctx context.Context, jobID string, workerID string, completedAt string) (bool, error) {
	return r.finishJob(ctx, jobID, workerID, domain.JobCompleted, "", completedAt)
}

func (r *ModerationRepository) FailJob(ctx context.Context, jobID string, workerID string, message string, failedAt string) (bool, error) {
	return r.finishJob(ctx, jobID, workerID, domain.JobFailed, message, failedAt)
}

func (r *ModerationRepository) finishJob(ctx context.Context, jobID string, workerID string, to domain.JobStatus, message string, at string) (bool, error) {
	if err := domain.ValidateJobTransition(domain.JobProcessing, to); err != nil {
		return false, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModerationJob{}).
		Where("job_id = ? AND status = ? AND worker_id = ?", jobID, string(domain.JobProcessing), workerID).
		Updates(map[string]any{
			"status":        string(to),
			"completed_at":  at,
			"error_message": optionalString(message),
			"updated_at":    at,
		})
	if result.Error != nil {
		return false, errs.Wrapf(result.Error, "mark moderation job %s", to)
	}
	return result.RowsAffected > 0, nil
}

// ListStaleJobs lists processing jobs whose last heartbeat is older than heartbeatBefore.
func (r *ModerationRepository) ListStaleJobs(ctx context.Context, heartbeatBefore string) ([]ports.JobRecord, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.ModerationJob
	if err := db.Where("status = ? AND (heartbeat_at IS NULL OR heartbeat_at < ?)", string(domain.JobProcessing), heartbeatBefore).
		Order("heartbeat_at asc").
		Order("job_id asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query stale moderation jobs")
	}
	return mapJobs(rows), nil
}

// RecoverJob releases a stale job back to queued, or to failed once its
// attempts are exhausted. Each recovery counts as one attempt.
func (r *ModerationRepository) RecoverJob(ctx context.Context, recovery ports.JobRecovery) (bool, error) {
	if err := domain.ValidateJobTransition(domain.JobProcessing, recovery.To); err != nil {
		return false, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	updates := map[string]any{
		"status":        string(recovery.To),
		"worker_id":     nil,
		"attempts":      gorm.Expr("attempts + 1"),
		"error_message": optionalString(recovery.Message),
		"updated_at":    recovery.RecoveredAt,
	}
	if recovery.To == domain.JobQueued {
		updates["claimed_at"] = nil
		updates["heartbeat_at"] = nil
	} else {
		updates["completed_at"] = recovery.RecoveredAt
	}

	query := db.Model(&model.ModerationJob{}).
		Where("job_id = ? AND status = ? AND worker_id = ?", recovery.JobID, string(domain.JobProcessing), recovery.WorkerID)
	if recovery.HeartbeatAt != "" {
		query = query.Where("heartbeat_at = ?", recovery.HeartbeatAt)
	} else {
		query = query.Where("heartbeat_at IS NULL")
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "recover moderation job")
	}
	return result.RowsAffected > 0, nil
}

func (r *ModerationRepository) CancelJob(ctx context.Context, jobID string, cancelledAt string) (bool, error) {
	if err := domain.ValidateJobTransition(domain.JobQueued, domain.JobCancelled); err != nil {
		return false, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModerationJob{}).
		Where("job_id = ? AND status = ?", jobID, string(domain.JobQueued)).
		Updates(map[string]any{
			"status":       string(domain.JobCancelled),
			"completed_at": cancelledAt,
			"updated_at":   cancelledAt,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "cancel moderation job")
	}
	return result.RowsAffected > 0, nil
}

// RetryJob requeues a failed job. Attempts are kept.
func (r *ModerationRepository) RetryJob(ctx context.Context, jobID string, retriedAt string) (bool, error) {
	if err := domain.ValidateJobTransition(domain.JobFailed, domain.JobQueued); err != nil {
		return false, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModerationJob{}).
		Where("job_id = ? AND status = ?", jobID, string(domain.JobFailed)).
		Updates(map[string]any{
			"status":        string(domain.JobQueued),
			"worker_id":     nil,
			"claimed_at":    nil,
			"heartbeat_at":  nil,
			"completed_at":  nil,
			"error_message": nil,
			"updated_at":    retriedAt,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "retry moderation job")
	}
	return result.RowsAffected > 0, nil
}

// UpdateJobPriority changes the priority of a job that is still queued.
func (r *ModerationRepository) UpdateJobPriority(ctx context.Context, jobID string, priority int, updatedAt string) (bool, error) {
	if err := domain.ValidatePriority(priority); err != nil {
		return false, err
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ModerationJob{}).
		Where("job_id = ? AND status = ?", jobID, string(domain.JobQueued)).
		Updates(map[string]any{
			"priority":   priority,
			"updated_at": updatedAt,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "update moderation job priority")
	}
	return result.RowsAffected > 0, nil
}

func (r *ModerationRepository) CountJobsByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []statusCount
	if err := db.Model(&model.ModerationJob{}).
		Select("status, count(*) as total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "count jobs by status")
	}

	out := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		out[domain.JobStatus(row.Status)] = row.Total
	}
	return out, nil
}

func (r *ModerationRepository) OldestQueuedCreatedAt(ctx context.Context) (string, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return "", err
	}

	var row model.ModerationJob
	err = db.Select("job_id", "created_at").
		Where("status = ?", string(domain.JobQueued)).
		Order("created_at asc").
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", errs.Wrap(err, "query oldest queued job")
	}
	return row.CreatedAt, nil
}

func applyJobFilter(query *gorm.DB, filter ports.JobFilter) *gorm.DB {
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", jobStatusStrings(filter.Statuses))
	}
	if scanID := strings.TrimSpace(filter.ScanID); scanID != "" {
		query = query.Where("scan_id = ?", scanID)
	}
	return query
}

func queueOrder(query *gorm.DB) *gorm.DB {
	return query.Order("priority asc").Order("created_at asc").Order("job_id asc")
}

func getJobByID(db *gorm.DB, jobID string) (ports.JobRecord, error) {
	var row model.ModerationJob
	if err := db.Where("job_id = ?", jobID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.JobRecord{}, fmt.Errorf("%w: %s", domain.ErrJobNotFound, jobID)
		}
		return ports.JobRecord{}, errs.Wrap(err, "query moderation job")
	}
	return mapJob(row), nil
}

func mapJobs(rows []model.ModerationJob) []ports.JobRecord {
	items := make([]ports.JobRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapJob(row))
	}
	return items
}

func mapJob(row model.ModerationJob) ports.JobRecord {
	return ports.JobRecord{
		JobID:        row.JobID,
		JobType:      domain.JobType(row.JobType),
		ScanID:       row.ScanID,
		ScanIDs:      nonNilStrings(row.ScanIDs),
		Status:       domain.JobStatus(row.Status),
		WorkerID:     derefString(row.WorkerID),
		Priority:     row.Priority,
		Attempts:     row.Attempts,
		MaxAttempts:  row.MaxAttempts,
		ClaimedAt:    derefString(row.ClaimedAt),
		HeartbeatAt:  derefString(row.HeartbeatAt),
		CompletedAt:  derefString(row.CompletedAt),
		ErrorMessage: derefString(row.ErrorMessage),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(value string) string {
	return likeEscaper.Replace(value)
}
