package media

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/database/entities"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// Repository handles media asset persistence.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindByID(ctx context.Context, fileID string) (*domain.Asset, error) {
	var entity entities.MediaAsset
	err := r.db.WithContext(ctx).Where("file_id = ?", fileID).First(&entity).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to find media asset",
			err,
			"4f2a8c6e-1d9b-4e3a-8c7f-5b0d2e9a4c61",
		)
	}
	asset := mapEntity(entity)
	return &asset, nil
}

// Create inserts the asset row. A conflicting insert for the same file id
// is not an error: identical content raced us, and the caller re-reads the
// winner. Returns false when the row already existed.
func (r *Repository) Create(ctx context.Context, asset *domain.Asset) (bool, error) {
	entity := entities.MediaAsset{
		FileID:      asset.FileID,
		OwnerID:     asset.OwnerID,
		Category:    string(asset.Category),
		Extension:   asset.Extension,
		ContentType: asset.ContentType,
		ByteSize:    asset.ByteSize,
		StorageTier: string(asset.Tier),
		Gated:       asset.Gated,
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&entity)
	if result.Error != nil {
		return false, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create media asset",
			result.Error,
			"8d5b1f9c-3a7e-4d2b-9f6a-0c4e8b2d7a93",
		)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	asset.CreatedAt = entity.CreatedAt
	asset.UpdatedAt = entity.UpdatedAt
	return true, nil
}

func (r *Repository) UpdateTier(ctx context.Context, fileID string, t tier.Tier) error {
	err := r.db.WithContext(ctx).
		Model(&entities.MediaAsset{}).
		Where("file_id = ?", fileID).
		Update("storage_tier", string(t)).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update storage tier",
			err,
			"2e9c5a7d-8f1b-4c6e-a3d9-7b0f4c8e2a56",
		)
	}
	return nil
}

func (r *Repository) SetGated(ctx context.Context, fileID string, gated bool) error {
	err := r.db.WithContext(ctx).
		Model(&entities.MediaAsset{}).
		Where("file_id = ?", fileID).
		Update("gated", gated).Error
	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update gated flag",
			err,
			"6a3f9d1b-5c8e-4a7d-b2f0-9e6c3a8d5b14",
		)
	}
	return nil
}

func (r *Repository) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Asset, error) {
	var rows []entities.MediaAsset
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list media assets",
			err,
			"0b7e3c9a-4d6f-4b8e-9a2c-5f1d8e0b4a37",
		)
	}
	assets := make([]*domain.Asset, 0, len(rows))
	for _, row := range rows {
		asset := mapEntity(row)
		assets = append(assets, &asset)
	}
	return assets, nil
}

func mapEntity(entity entities.MediaAsset) domain.Asset {
	return domain.Asset{
		FileID:      entity.FileID,
		OwnerID:     entity.OwnerID,
		Category:    domain.Category(entity.Category),
		Extension:   entity.Extension,
		ContentType: entity.ContentType,
		ByteSize:    entity.ByteSize,
		Tier:        tier.Tier(entity.StorageTier),
		Gated:       entity.Gated,
		CreatedAt:   entity.CreatedAt,
		UpdatedAt:   entity.UpdatedAt,
	}
}
