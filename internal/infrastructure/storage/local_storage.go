package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/metrics"
)

var errLocalStorageDisabled = errors.New("local storage is not configured; set MEDIA_LOCAL_STORAGE_PATH to enable")

const (
	publicNamespace  = "public"
	privateNamespace = "private"
)

// LocalConfig configures one filesystem backend. Objects live under
// public/ and private/ subdirectories of BasePath.
type LocalConfig struct {
	Name          string
	BasePath      string
	PublicBaseURL string
}

// LocalStorage handles uploads and downloads on the local filesystem.
type LocalStorage struct {
	cfg      LocalConfig
	log      zerolog.Logger
	disabled bool
}

// NewLocalStorage creates a new local filesystem storage backend.
func NewLocalStorage(cfg LocalConfig, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Str("backend", cfg.Name).Logger()

	cfg.BasePath = strings.TrimSpace(cfg.BasePath)
	if cfg.BasePath == "" {
		logger.Warn().Msg("storage path is not set; this backend will be disabled until configured")
		return &LocalStorage{
			cfg:      cfg,
			log:      logger,
			disabled: true,
		}, nil
	}

	for _, ns := range []string{publicNamespace, privateNamespace} {
		if err := os.MkdirAll(filepath.Join(cfg.BasePath, ns), 0755); err != nil {
			return nil, fmt.Errorf("failed to create local storage directory: %w", err)
		}
	}

	storage := &LocalStorage{
		cfg: cfg,
		log: logger,
	}

	logger.Info().
		Str("path", cfg.BasePath).
		Str("base_url", cfg.PublicBaseURL).
		Msg("local storage initialized")

	return storage, nil
}

func (l *LocalStorage) ensureEnabled() error {
	if l.disabled {
		return errLocalStorageDisabled
	}
	return nil
}

func namespace(gated bool) string {
	if gated {
		return privateNamespace
	}
	return publicNamespace
}

func (l *LocalStorage) pathFor(key string, gated bool) string {
	return filepath.Join(l.cfg.BasePath, namespace(gated), filepath.FromSlash(key))
}

func (l *LocalStorage) observe(op string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.RecordStorageOp(l.cfg.Name, op, status, time.Since(start).Seconds())
}

// Upload writes the body to a temp file in the target directory and
// renames it into place, so a cancelled transfer never leaves a partial
// object under the final key.
func (l *LocalStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) (err error) {
	if err := l.ensureEnabled(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { l.observe("upload", start, err) }()

	fullPath := l.pathFor(key, gated)
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	written, err := io.Copy(tmp, body)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err = os.Rename(tmp.Name(), fullPath); err != nil {
		return fmt.Errorf("failed to finalize file: %w", err)
	}

	l.log.Debug().
		Str("key", key).
		Int64("bytes", written).
		Bool("gated", gated).
		Msg("file uploaded to local storage")

	return nil
}

// Download reads a file from the local filesystem.
func (l *LocalStorage) Download(ctx context.Context, key string, gated bool) (body io.ReadCloser, contentType string, err error) {
	if err := l.ensureEnabled(); err != nil {
		return nil, "", err
	}
	start := time.Now()
	defer func() { l.observe("download", start, err) }()

	fullPath := l.pathFor(key, gated)
	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("file not found: %s", key)
		}
		return nil, "", fmt.Errorf("failed to open file: %w", err)
	}

	mime := "application/octet-stream"
	if mtype, derr := mimetype.DetectFile(fullPath); derr == nil {
		mime = mtype.String()
	}

	return file, mime, nil
}

// Delete removes a file; a missing file is not an error.
func (l *LocalStorage) Delete(ctx context.Context, key string, gated bool) (err error) {
	if err := l.ensureEnabled(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { l.observe("delete", start, err) }()

	err = os.Remove(l.pathFor(key, gated))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Relocate moves a file between the public and private namespaces. An
// absent source with the destination already present is treated as done,
// so retries converge.
func (l *LocalStorage) Relocate(ctx context.Context, key string, toGated bool) (err error) {
	if err := l.ensureEnabled(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { l.observe("relocate", start, err) }()

	src := l.pathFor(key, !toGated)
	dst := l.pathFor(key, toGated)

	if _, err = os.Stat(src); os.IsNotExist(err) {
		if _, dstErr := os.Stat(dst); dstErr == nil {
			return nil
		}
		return fmt.Errorf("file not found: %s", key)
	}

	if err = os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return os.Rename(src, dst)
}

func (l *LocalStorage) Exists(ctx context.Context, key string, gated bool) (ok bool, err error) {
	if err := l.ensureEnabled(); err != nil {
		return false, err
	}
	start := time.Now()
	defer func() { l.observe("exists", start, err) }()

	if _, err = os.Stat(l.pathFor(key, gated)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PublicURL returns the serving URL for an object in the public namespace,
// falling back to a file:// URL when no base URL is configured.
func (l *LocalStorage) PublicURL(key string) (string, error) {
	if l.disabled {
		return "", errLocalStorageDisabled
	}
	urlKey := filepath.ToSlash(key)
	if base := strings.TrimSuffix(strings.TrimSpace(l.cfg.PublicBaseURL), "/"); base != "" {
		return fmt.Sprintf("%s/%s/%s", base, publicNamespace, urlKey), nil
	}
	return fmt.Sprintf("file://%s", l.pathFor(key, false)), nil
}

// PresignGet returns a direct URL to the file. Local storage cannot
// enforce the expiry; it is carried as a query parameter for parity with
// the object-store backend.
func (l *LocalStorage) PresignGet(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error) {
	if err := l.ensureEnabled(); err != nil {
		return "", err
	}

	fullPath := l.pathFor(key, gated)
	if _, err := os.Stat(fullPath); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found: %s", key)
	}

	expires := time.Now().Add(ttl).Unix()
	urlKey := filepath.ToSlash(key)
	if base := strings.TrimSuffix(strings.TrimSpace(l.cfg.PublicBaseURL), "/"); base != "" {
		return fmt.Sprintf("%s/%s/%s?expires=%d", base, namespace(gated), urlKey, expires), nil
	}
	return fmt.Sprintf("file://%s?expires=%d", fullPath, expires), nil
}

// Health checks if the storage directory is writable.
func (l *LocalStorage) Health(ctx context.Context) error {
	if l.disabled {
		return nil
	}

	testFile := filepath.Join(l.cfg.BasePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)

	return nil
}
