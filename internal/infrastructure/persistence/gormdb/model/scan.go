package model

type ModerationScan struct {
	ScanID          string   `gorm:"column:scan_id;type:text;primaryKey"`
	TargetType      string   `gorm:"column:target_type;type:text;not null;index"`
	TargetID        string   `gorm:"column:target_id;type:text;not null;index"`
	ModelID         *string  `gorm:"column:model_id;type:text;index"`
	CreatorID       string   `gorm:"column:creator_id;type:text;not null"`
	StorageKey      string   `gorm:"column:storage_key;type:text;not null"`
	StorageURL      string   `gorm:"column:storage_url;type:text;not null"`
	Priority        int      `gorm:"column:priority;not null;default:5"`
	Status          string   `gorm:"column:status;type:text;not null;index"`
	Flags           []string `gorm:"column:flags;type:text;not null;serializer:json"`
	Confidence      *float64 `gorm:"column:confidence"`
	DetectedFaces   *int     `gorm:"column:detected_faces"`
	ReviewerID      *string  `gorm:"column:reviewer_id;type:text"`
	ReviewAction    *string  `gorm:"column:review_action;type:text"`
	ReviewNotes     *string  `gorm:"column:review_notes;type:text"`
	ErrorMessage    *string  `gorm:"column:error_message;type:text"`
	ScannedBy       *string  `gorm:"column:scanned_by;type:text"`
	ScanCount       int      `gorm:"column:scan_count;not null;default:0"`
	CreatedAt       string   `gorm:"column:created_at;type:text;not null;index"`
	UpdatedAt       string   `gorm:"column:updated_at;type:text;not null"`
	ScanStartedAt   *string  `gorm:"column:scan_started_at;type:text"`
	ScanCompletedAt *string  `gorm:"column:scan_completed_at;type:text"`
	ReviewedAt      *string  `gorm:"column:reviewed_at;type:text"`
}

func (ModerationScan) TableName() string {
	return "moderation_scans"
}
