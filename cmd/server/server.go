package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
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
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/observability"
	mediarepo "github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/repository/media"
	migrationrepo "github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/repository/migration"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/storage"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver"
)

// @title Media Engine API
// @version 1.0
// @description Content-addressed media storage with tiered backends and supporter-gated delivery
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
type Application struct {
	httpServer *httpserver.HttpServer
	migrations *migration.Service
	cron       *crontab.Crontab
	log        zerolog.Logger
}

func NewApplication(
	httpServer *httpserver.HttpServer,
	migrations *migration.Service,
	cron *crontab.Crontab,
	log zerolog.Logger,
) *Application {
	return &Application{
		httpServer: httpServer,
		migrations: migrations,
		cron:       cron,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	go func() {
		if err := a.cron.Run(ctx); err != nil {
			a.log.Error().Err(err).Msg("crontab stopped with error")
		}
	}()

	err := a.httpServer.Run(ctx)

	// Let in-flight migration batches drain before the process exits.
	a.migrations.Stop()
	return err
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := database.Connect(database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	if err := database.AutoMigrate(ctx, db, log); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	primary, err := newPrimaryStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize primary storage")
	}
	secondary, err := newSecondaryStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize secondary storage")
	}

	authValidator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth validator")
	}

	assetRepository := mediarepo.NewRepository(db)
	jobRepository := migrationrepo.NewRepository(db)
	tracker := migration.NewTracker()

	mediaService := domain.NewService(cfg, assetRepository, primary, log)
	migrationService := migration.NewService(cfg, jobRepository, assetRepository, primary, secondary, tracker, log)
	entitlements := gate.NewClient(cfg.EntitlementAPIURL, cfg.EntitlementTimeout)
	accessService := access.NewService(cfg, assetRepository, primary, secondary, entitlements, log)

	httpServer := httpserver.New(cfg, log, db, primary, mediaService, accessService, migrationService, tracker, authValidator)
	cron := crontab.NewCrontab(cfg, tracker, jobRepository, log)
	app := NewApplication(httpServer, migrationService, cron, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

// newPrimaryStorage creates the primary tier backend based on configuration.
func newPrimaryStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.Storage, error) {
	if cfg.IsLocalStorage() {
		return storage.NewLocalStorage(storage.LocalConfig{
			Name:          "primary",
			BasePath:      cfg.LocalStoragePath,
			PublicBaseURL: cfg.LocalStorageBaseURL,
		}, log)
	}

	return storage.NewS3Storage(ctx, storage.S3Config{
		Name:               "primary",
		Endpoint:           cfg.S3Endpoint,
		Region:             cfg.S3Region,
		AccessKeyID:        cfg.S3AccessKeyID,
		SecretKey:          cfg.S3SecretKey,
		PublicBucket:       cfg.S3PublicBucket,
		PrivateBucket:      cfg.S3PrivateBucket,
		PublicBaseURL:      cfg.S3PublicBaseURL,
		UsePathStyle:       cfg.S3UsePathStyle,
		MultipartThreshold: cfg.MultipartThresholdBytes,
	}, log)
}

// newSecondaryStorage creates the secondary tier backend based on configuration.
func newSecondaryStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (domain.Storage, error) {
	if cfg.IsSecondaryLocal() {
		return storage.NewLocalStorage(storage.LocalConfig{
			Name:          "secondary",
			BasePath:      cfg.SecondaryLocalPath,
			PublicBaseURL: cfg.SecondaryLocalBaseURL,
		}, log)
	}

	return storage.NewS3Storage(ctx, storage.S3Config{
		Name:               "secondary",
		Endpoint:           cfg.S3Endpoint,
		Region:             cfg.S3Region,
		AccessKeyID:        cfg.S3AccessKeyID,
		SecretKey:          cfg.S3SecretKey,
		PublicBucket:       cfg.S3SecondaryBucket,
		PrivateBucket:      cfg.S3SecondaryPrivateBucket,
		PublicBaseURL:      cfg.S3SecondaryBaseURL,
		UsePathStyle:       cfg.S3UsePathStyle,
		MultipartThreshold: cfg.MultipartThresholdBytes,
	}, log)
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
