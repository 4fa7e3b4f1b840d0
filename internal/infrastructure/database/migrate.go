package database

import (
	"context"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/database/entities"
)

// AutoMigrate applies database schema changes for the media domain.
func AutoMigrate(ctx context.Context, db *gorm.DB, log zerolog.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(
		&entities.MediaAsset{},
		&entities.MigrationJob{},
	); err != nil {
		return err
	}

	log.Info().Msg("database schema up to date")
	return nil
}
