package entities

import (
	"time"

	"github.com/lib/pq"
)

// TableName specifies the table name for MigrationJob.
func (MigrationJob) TableName() string {
	return "migration_jobs"
}

// MigrationJob represents a persisted tier-migration batch. Rows abandoned
// mid-flight by a crash are marked failed by the maintenance schedule so
// pollers still reach a terminal status.
type MigrationJob struct {
	ID             string         `gorm:"primaryKey;size:64"`
	OwnerID        string         `gorm:"size:64;index:idx_job_owner"`
	TargetTier     string         `gorm:"size:32"`
	AssetIDs       pq.StringArray `gorm:"type:text[]"`
	Status         string         `gorm:"size:16;index:idx_job_status"`
	ProcessedCount int            `gorm:"default:0"`
	TotalCount     int            `gorm:"default:0"`
	MigratedCount  int            `gorm:"default:0"`
	SkippedCount   int            `gorm:"default:0"`
	FailedCount    int            `gorm:"default:0"`
	FailedIDs      pq.StringArray `gorm:"type:text[]"`
	Message        string         `gorm:"size:512"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
}
