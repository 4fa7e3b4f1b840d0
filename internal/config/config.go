package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the media service.
type Config struct {
	// Service Configuration
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"plyr-media"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"MEDIA_API_PORT" envDefault:"8090"`
	LogLevel        string        `env:"MEDIA_LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Database
	DatabaseURL    string        `env:"DB_POSTGRESQL_DSN,notEmpty"`
	DBMaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`

	// Storage Backend Selection
	StorageBackend   string `env:"MEDIA_STORAGE_BACKEND" envDefault:"s3"`      // Options: "s3" or "local"
	SecondaryBackend string `env:"MEDIA_SECONDARY_BACKEND" envDefault:"local"` // Options: "s3" or "local"

	// S3 Storage Configuration (primary tier; gated bytes live in the private bucket)
	S3Endpoint               string `env:"MEDIA_S3_ENDPOINT"`
	S3Region                 string `env:"MEDIA_S3_REGION" envDefault:"auto"`
	S3AccessKeyID            string `env:"MEDIA_S3_ACCESS_KEY_ID"`
	S3SecretKey              string `env:"MEDIA_S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle           bool   `env:"MEDIA_S3_USE_PATH_STYLE" envDefault:"true"`
	S3PublicBucket           string `env:"MEDIA_S3_PUBLIC_BUCKET"`
	S3PrivateBucket          string `env:"MEDIA_S3_PRIVATE_BUCKET"`
	S3PublicBaseURL          string `env:"MEDIA_S3_PUBLIC_BASE_URL"`
	S3SecondaryBucket        string `env:"MEDIA_S3_SECONDARY_BUCKET"`
	S3SecondaryPrivateBucket string `env:"MEDIA_S3_SECONDARY_PRIVATE_BUCKET"`
	S3SecondaryBaseURL       string `env:"MEDIA_S3_SECONDARY_BASE_URL"`

	// Local Storage Configuration
	LocalStoragePath      string `env:"MEDIA_LOCAL_STORAGE_PATH"`
	LocalStorageBaseURL   string `env:"MEDIA_LOCAL_STORAGE_BASE_URL"`
	SecondaryLocalPath    string `env:"MEDIA_SECONDARY_LOCAL_PATH"`
	SecondaryLocalBaseURL string `env:"MEDIA_SECONDARY_LOCAL_BASE_URL"`

	// Ingest Configuration
	MaxUploadBytes          int64 `env:"MEDIA_MAX_UPLOAD_BYTES" envDefault:"524288000"`
	HashWindowBytes         int   `env:"MEDIA_HASH_WINDOW_BYTES" envDefault:"8388608"`
	SpillThresholdBytes     int64 `env:"MEDIA_SPILL_THRESHOLD_BYTES" envDefault:"8388608"`
	MultipartThresholdBytes int64 `env:"MEDIA_MULTIPART_THRESHOLD_BYTES" envDefault:"16777216"`

	// Delivery
	DeliveryURLTTL time.Duration `env:"MEDIA_DELIVERY_URL_TTL" envDefault:"15m"`

	// Entitlement Validation
	EntitlementAPIURL  string        `env:"ENTITLEMENT_API_URL"`
	EntitlementTimeout time.Duration `env:"ENTITLEMENT_TIMEOUT" envDefault:"5s"`

	// Migration
	MigrationWorkers    int           `env:"MEDIA_MIGRATION_WORKERS" envDefault:"4"`
	MigrationMaxBatch   int           `env:"MEDIA_MIGRATION_MAX_BATCH" envDefault:"500"`
	MigrationTargetTier string        `env:"MEDIA_MIGRATION_TARGET_TIER" envDefault:"primary_and_secondary"`
	ProgressRetainFor   time.Duration `env:"MEDIA_PROGRESS_RETAIN_FOR" envDefault:"1h"`
	JobStaleAfter       time.Duration `env:"MEDIA_JOB_STALE_AFTER" envDefault:"24h"`

	// Authentication
	AuthEnabled bool   `env:"AUTH_ENABLED" envDefault:"false"`
	AuthIssuer  string `env:"AUTH_ISSUER"`
	AuthJWKSURL string `env:"AUTH_JWKS_URL"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	cfg.S3Endpoint = strings.TrimSpace(cfg.S3Endpoint)
	cfg.S3AccessKeyID = strings.TrimSpace(cfg.S3AccessKeyID)
	cfg.S3SecretKey = strings.TrimSpace(cfg.S3SecretKey)
	cfg.S3PublicBucket = strings.TrimSpace(cfg.S3PublicBucket)
	cfg.S3PrivateBucket = strings.TrimSpace(cfg.S3PrivateBucket)
	cfg.S3PublicBaseURL = strings.TrimSpace(cfg.S3PublicBaseURL)
	cfg.S3SecondaryBucket = strings.TrimSpace(cfg.S3SecondaryBucket)
	cfg.EntitlementAPIURL = strings.TrimSpace(cfg.EntitlementAPIURL)

	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 500 * 1024 * 1024
	}
	if cfg.HashWindowBytes <= 0 {
		cfg.HashWindowBytes = 8 * 1024 * 1024
	}
	if cfg.SpillThresholdBytes <= 0 {
		cfg.SpillThresholdBytes = 8 * 1024 * 1024
	}
	if cfg.MigrationWorkers <= 0 {
		cfg.MigrationWorkers = 4
	}
	if cfg.DeliveryURLTTL <= 0 {
		return nil, fmt.Errorf("MEDIA_DELIVERY_URL_TTL must be positive")
	}
	if cfg.EntitlementTimeout <= 0 {
		return nil, fmt.Errorf("ENTITLEMENT_TIMEOUT must be positive")
	}
	if cfg.AuthEnabled {
		if strings.TrimSpace(cfg.AuthIssuer) == "" {
			return nil, fmt.Errorf("AUTH_ISSUER is required when AUTH_ENABLED is true")
		}
		if strings.TrimSpace(cfg.AuthJWKSURL) == "" {
			return nil, fmt.Errorf("AUTH_JWKS_URL is required when AUTH_ENABLED is true")
		}
	}
	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// IsLocalStorage returns true if the primary backend is the local filesystem.
func (c *Config) IsLocalStorage() bool {
	return strings.ToLower(strings.TrimSpace(c.StorageBackend)) == "local"
}

// IsS3Storage returns true if the primary backend is S3-compatible storage.
func (c *Config) IsS3Storage() bool {
	backend := strings.ToLower(strings.TrimSpace(c.StorageBackend))
	return backend == "" || backend == "s3"
}

// IsSecondaryLocal returns true if the secondary tier is the local filesystem.
func (c *Config) IsSecondaryLocal() bool {
	backend := strings.ToLower(strings.TrimSpace(c.SecondaryBackend))
	return backend == "" || backend == "local"
}
