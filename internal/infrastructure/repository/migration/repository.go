package migration

import (
	"context"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm"

	domain "github.com/zzstoatzz/plyr.fm-sub000/internal/domain/migration"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/database/entities"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// Repository handles migration job persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, job *domain.Job) error {
	entity := entities.MigrationJob{
		ID:         job.ID,
		OwnerID:    job.OwnerID,
		TargetTier: string(job.TargetTier),
		AssetIDs:   pq.StringArray(job.AssetIDs),
		Status:     string(job.Status),
		TotalCount: job.TotalCount,
		CreatedAt:  job.CreatedAt,
	}
	err := r.db.WithContext(ctx).Create(&entity).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create migration job",
			err,
			"9e4b7d2f-6a1c-4e8b-a5d3-0f9c6b4e8d27",
		)
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Job, error) {
	var entity entities.MigrationJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find migration job",
			err,
			"3c8a5e1d-9b4f-4c7a-8e2d-6f0b9a3c5e71",
		)
	}
	job := mapEntity(entity)
	return &job, nil
}

func (r *Repository) MarkProcessing(ctx context.Context, id string, startedAt time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&entities.MigrationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(domain.StatusProcessing),
			"started_at": startedAt,
		}).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to mark job processing",
			err,
			"7f2d9b5a-1e6c-4f3d-b8a0-4c7e2d9f5b18",
		)
	}
	return nil
}

func (r *Repository) UpdateProgress(ctx context.Context, id string, processed, migrated, skipped, failed int, failedIDs []string) error {
	err := r.db.WithContext(ctx).
		Model(&entities.MigrationJob{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_count": processed,
			"migrated_count":  migrated,
			"skipped_count":   skipped,
			"failed_count":    failed,
			"failed_ids":      pq.StringArray(failedIDs),
		}).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update job progress",
			err,
			"5b9f3e7c-2d8a-4b1e-9c6f-8a0d4e7b3f52",
		)
	}
	return nil
}

func (r *Repository) MarkTerminal(ctx context.Context, job *domain.Job) error {
	updates := map[string]any{
		"status":          string(job.Status),
		"processed_count": job.ProcessedCount,
		"migrated_count":  job.MigratedCount,
		"skipped_count":   job.SkippedCount,
		"failed_count":    job.FailedCount,
		"failed_ids":      pq.StringArray(job.FailedIDs),
		"message":         job.Message,
	}
	if job.FinishedAt != nil {
		updates["finished_at"] = *job.FinishedAt
	}
	err := r.db.WithContext(ctx).
		Model(&entities.MigrationJob{}).
		Where("id = ?", job.ID).
		Updates(updates).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to mark job terminal",
			err,
			"1d6a8f4b-7c3e-4d9a-b0e5-2f8c5a1d7e94",
		)
	}
	return nil
}

// FailStale marks non-terminal jobs whose rows stopped updating before
// the cutoff as failed, which happens when a process dies mid-batch. The
// rows stay queryable so pollers still reach a terminal status. Returns
// how many rows were marked.
func (r *Repository) FailStale(ctx context.Context, olderThan time.Time) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&entities.MigrationJob{}).
		Where("status IN ? AND updated_at < ?",
			[]string{string(domain.StatusPending), string(domain.StatusProcessing)}, olderThan).
		Updates(map[string]any{
			"status":      string(domain.StatusFailed),
			"message":     "job abandoned without progress",
			"finished_at": now,
		})
	if result.Error != nil {
		return 0, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to sweep stale jobs",
			result.Error,
			"8a4e2c9f-5b7d-4a0e-8f3c-6d1b9e4a2c85",
		)
	}
	return result.RowsAffected, nil
}

func mapEntity(entity entities.MigrationJob) domain.Job {
	return domain.Job{
		ID:             entity.ID,
		OwnerID:        entity.OwnerID,
		TargetTier:     tier.Tier(entity.TargetTier),
		AssetIDs:       []string(entity.AssetIDs),
		Status:         domain.Status(entity.Status),
		ProcessedCount: entity.ProcessedCount,
		TotalCount:     entity.TotalCount,
		MigratedCount:  entity.MigratedCount,
		SkippedCount:   entity.SkippedCount,
		FailedCount:    entity.FailedCount,
		FailedIDs:      []string(entity.FailedIDs),
		Message:        entity.Message,
		CreatedAt:      entity.CreatedAt,
		StartedAt:      entity.StartedAt,
		FinishedAt:     entity.FinishedAt,
	}
}
