//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/access"
	domain "github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/migration"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/auth"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/crontab"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/database"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/gate"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/logger"
	mediarepo "github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/repository/media"
	migrationrepo "github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/repository/migration"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver"
)

// The two tier backends share the domain.Storage interface, so Wire
// needs distinct types to keep them apart.
type primaryBackend domain.Storage

type secondaryBackend domain.Storage

var storageSet = wire.NewSet(
	providePrimaryBackend,
	provideSecondaryBackend,
)

var mediaSet = wire.NewSet(
	mediarepo.NewRepository,
	wire.Bind(new(domain.Repository), new(*mediarepo.Repository)),
	provideMediaService,
)

var migrationSet = wire.NewSet(
	migrationrepo.NewRepository,
	wire.Bind(new(migration.JobStore), new(*migrationrepo.Repository)),
	wire.Bind(new(crontab.JobStore), new(*migrationrepo.Repository)),
	migration.NewTracker,
	provideMigrationService,
)

var accessSet = wire.NewSet(
	provideEntitlements,
	wire.Bind(new(access.EntitlementValidator), new(*gate.Client)),
	provideAccessService,
)

// BuildApplication assembles the media engine with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newDatabaseConfig,
		newGormDB,
		storageSet,
		mediaSet,
		migrationSet,
		accessSet,
		crontab.NewCrontab,
		provideHTTPServer,
		NewApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func providePrimaryBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (primaryBackend, error) {
	return newPrimaryStorage(ctx, cfg, log)
}

func provideSecondaryBackend(ctx context.Context, cfg *config.Config, log zerolog.Logger) (secondaryBackend, error) {
	return newSecondaryStorage(ctx, cfg, log)
}

func provideMediaService(cfg *config.Config, repo domain.Repository, primary primaryBackend, log zerolog.Logger) *domain.Service {
	return domain.NewService(cfg, repo, primary, log)
}

func provideMigrationService(
	cfg *config.Config,
	jobs migration.JobStore,
	assets domain.Repository,
	primary primaryBackend,
	secondary secondaryBackend,
	tracker *migration.Tracker,
	log zerolog.Logger,
) *migration.Service {
	return migration.NewService(cfg, jobs, assets, primary, secondary, tracker, log)
}

func provideAccessService(
	cfg *config.Config,
	repo domain.Repository,
	primary primaryBackend,
	secondary secondaryBackend,
	entitlements access.EntitlementValidator,
	log zerolog.Logger,
) *access.Service {
	return access.NewService(cfg, repo, primary, secondary, entitlements, log)
}

func provideHTTPServer(
	cfg *config.Config,
	log zerolog.Logger,
	db *gorm.DB,
	primary primaryBackend,
	mediaService *domain.Service,
	accessService *access.Service,
	migrationService *migration.Service,
	tracker *migration.Tracker,
	authValidator *auth.Validator,
) *httpserver.HttpServer {
	return httpserver.New(cfg, log, db, primary, mediaService, accessService, migrationService, tracker, authValidator)
}

func provideEntitlements(cfg *config.Config) *gate.Client {
	return gate.NewClient(cfg.EntitlementAPIURL, cfg.EntitlementTimeout)
}
