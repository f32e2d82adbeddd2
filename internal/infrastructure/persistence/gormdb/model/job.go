package model

type ModerationJob struct {
	JobID        string   `gorm:"column:job_id;type:text;primaryKey"`
	JobType      string   `gorm:"column:job_type;type:text;not null"`
	ScanID       string   `gorm:"column:scan_id;type:text;not null;index"`
	ScanIDs      []string `gorm:"column:scan_ids;type:text;not null;serializer:json"`
	Status       string   `gorm:"column:status;type:text;not null;index:idx_moderation_jobs_queue,priority:1"`
	WorkerID     *string  `gorm:"column:worker_id;type:text"`
	Priority     int      `gorm:"column:priority;not null;default:5;index:idx_moderation_jobs_queue,priority:2"`
	Attempts     int      `gorm:"column:attempts;not null;default:0"`
	MaxAttempts  int      `gorm:"column:max_attempts;not null;default:3"`
	ClaimedAt    *string  `gorm:"column:claimed_at;type:text"`
	HeartbeatAt  *string  `gorm:"column:heartbeat_at;type:text;index"`
	CompletedAt  *string  `gorm:"column:completed_at;type:text"`
	ErrorMessage *string  `gorm:"column:error_message;type:text"`
	CreatedAt    string   `gorm:"column:created_at;type:text;not null;index:idx_moderation_jobs_queue,priority:3"`
	UpdatedAt    string   `gorm:"column:updated_at;type:text;not null"`
}

func (ModerationJob) TableName() string {
	return "moderation_jobs"
}
