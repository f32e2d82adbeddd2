package model

type ModelAnchor struct {
	AnchorID      string  `gorm:"column:anchor_id;type:text;primaryKey"`
	ModelID       string  `gorm:"column:model_id;type:text;not null;index:idx_model_anchors_model_active"`
	StorageKey    string  `gorm:"column:storage_key;type:text;not null"`
	StorageURL    string  `gorm:"column:storage_url;type:text;not null"`
	IsActive      bool    `gorm:"column:is_active;not null;default:true;index:idx_model_anchors_model_active"`
	AddedBy       string  `gorm:"column:added_by;type:text;not null"`
	Note          *string `gorm:"column:note;type:text"`
	SourceScanID  *string `gorm:"column:source_scan_id;type:text"`
	CreatedAt     string  `gorm:"column:created_at;type:text;not null"`
	DeactivatedAt *string `gorm:"column:deactivated_at;type:text"`
	DeactivatedBy *string `gorm:"column:deactivated_by;type:text"`
}

func (ModelAnchor) TableName() string {
	return "model_anchors"
}
