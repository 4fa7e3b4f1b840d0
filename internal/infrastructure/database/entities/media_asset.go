package entities

import "time"

// TableName specifies the table name for MediaAsset.
func (MediaAsset) TableName() string {
	return "media_assets"
}

// MediaAsset represents the persisted media asset record. FileID is the
// content-derived identifier, so identical uploads collapse to one row.
type MediaAsset struct {
	FileID      string `gorm:"primaryKey;size:16"`
	OwnerID     string `gorm:"size:64;index:idx_media_owner"`
	Category    string `gorm:"size:16"`
	Extension   string `gorm:"size:16"`
	ContentType string `gorm:"size:128"`
	ByteSize    int64  `gorm:"default:0"`
	StorageTier string `gorm:"size:32;default:primary_only"`
	Gated       bool   `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
