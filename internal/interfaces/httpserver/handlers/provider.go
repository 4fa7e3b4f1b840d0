package handlers

import (
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/access"
	domain "github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/migration"
)

// Provider wires HTTP handlers.
type Provider struct {
	Media     *MediaHandler
	Migration *MigrationHandler
}

func NewProvider(
	cfg *config.Config,
	mediaService *domain.Service,
	accessService *access.Service,
	migrationService *migration.Service,
	tracker *migration.Tracker,
	log zerolog.Logger,
) *Provider {
	return &Provider{
		Media:     NewMediaHandler(cfg, mediaService, accessService, log),
		Migration: NewMigrationHandler(migrationService, tracker, log),
	}
}
