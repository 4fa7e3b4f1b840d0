package migration

import (
	"time"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
)

// Status is the lifecycle state of a migration job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further progress events will follow.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Outcome classifies a single item inside a batch.
type Outcome string

const (
	OutcomeMigrated Outcome = "migrated"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Job is one bulk tier-transition batch over an owner's assets. A batch
// finishing with item failures still ends `completed`; `failed` is reserved
// for jobs that could not run to the end of their asset list.
type Job struct {
	ID             string     `json:"job_id"`
	OwnerID        string     `json:"owner_id"`
	TargetTier     tier.Tier  `json:"target_tier"`
	AssetIDs       []string   `json:"asset_ids"`
	Status         Status     `json:"status"`
	ProcessedCount int        `json:"processed_count"`
	TotalCount     int        `json:"total_count"`
	MigratedCount  int        `json:"migrated_count"`
	SkippedCount   int        `json:"skipped_count"`
	FailedCount    int        `json:"failed_count"`
	FailedIDs      []string   `json:"failed_ids,omitempty"`
	Message        string     `json:"message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// Progress is one push event on a job's progress stream.
type Progress struct {
	JobID          string `json:"job_id"`
	Status         Status `json:"status"`
	ProcessedCount int    `json:"processed_count"`
	TotalCount     int    `json:"total_count"`
	MigratedCount  int    `json:"migrated_count"`
	SkippedCount   int    `json:"skipped_count"`
	FailedCount    int    `json:"failed_count"`
	CurrentAssetID string `json:"current_asset_id,omitempty"`
	Message        string `json:"message,omitempty"`
}
