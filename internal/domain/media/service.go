package media

import (
	"context"
	"io"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/metrics"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/hashing"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/mediaid"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// Repository defines persistence operations needed by the service.
type Repository interface {
	FindByID(ctx context.Context, fileID string) (*Asset, error)
	// Create persists the asset. It returns false without error when a
	// concurrent writer already created the same file id.
	Create(ctx context.Context, asset *Asset) (bool, error)
	UpdateTier(ctx context.Context, fileID string, t tier.Tier) error
	SetGated(ctx context.Context, fileID string, gated bool) error
	ListByOwner(ctx context.Context, ownerID string) ([]*Asset, error)
}

// Storage defines tiered media storage operations. The gated flag selects
// the private namespace; delivery of gated content goes through PresignGet
// while public content is served from PublicURL.
type Storage interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) error
	Download(ctx context.Context, key string, gated bool) (io.ReadCloser, string, error)
	Delete(ctx context.Context, key string, gated bool) error
	Relocate(ctx context.Context, key string, toGated bool) error
	Exists(ctx context.Context, key string, gated bool) (bool, error)
	PublicURL(key string) (string, error)
	PresignGet(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error)
	Health(ctx context.Context) error
}

// Service orchestrates media ingestion: hash, dedup lookup, streamed
// write, asset record.
type Service struct {
	cfg     *config.Config
	repo    Repository
	storage Storage
	log     zerolog.Logger
}

func NewService(cfg *config.Config, repo Repository, storage Storage, log zerolog.Logger) *Service {
	return &Service{
		cfg:     cfg,
		repo:    repo,
		storage: storage,
		log:     log.With().Str("component", "media-service").Logger(),
	}
}

// Ingest stores media and returns the asset. bool reports whether content
// was deduplicated against an existing asset.
func (s *Service) Ingest(ctx context.Context, in IngestInput) (*Asset, bool, error) {
	category, err := ParseCategory(in.Category)
	if err != nil {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, err.Error(), nil,
			"3f1c7a9e-52d4-4b8a-9e6f-0d2c8b7a4e15")
	}

	// First pass: hash while teeing into a bounded spill buffer so the
	// write pass can replay the same bytes.
	spill := hashing.NewSpillBuffer(s.cfg.SpillThresholdBytes)
	defer spill.Close()

	limited := io.LimitReader(in.Source, s.cfg.MaxUploadBytes+1)
	size, digest, err := hashing.Copy(spill, limited, s.cfg.HashWindowBytes)
	if err != nil {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "failed to read upload stream", err,
			"8b4d2f6a-1e3c-47d9-a5b8-6f9e0c2d7a31")
	}
	if size == 0 {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "file is empty", nil,
			"5e9a3c1d-7f2b-4e6a-8c0d-4b1f9a6e2d58")
	}
	if size > s.cfg.MaxUploadBytes {
		metrics.RecordIngest(string(category), "rejected", 0)
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "file exceeds maximum upload size", nil,
			"2c6f8e4b-9a1d-4c3e-b7f0-5d8a2e6c9b14")
	}

	fileID := mediaid.FromDigest(digest)

	// Dedup short-circuit: an existing asset means the bytes are already
	// stored; the backend is never touched again.
	if existing, err := s.repo.FindByID(ctx, fileID); err != nil {
		return nil, false, err
	} else if existing != nil {
		metrics.RecordIngest(string(category), "deduplicated", 0)
		s.log.Debug().Str("file_id", fileID).Msg("ingest deduplicated")
		return existing, true, nil
	}

	reader, err := spill.Reader()
	if err != nil {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInternal, "failed to rewind upload buffer", err,
			"9d3b5f7c-2a8e-4d1b-9c6a-7e0f4b8d2a96")
	}

	mtype, err := mimetype.DetectReader(reader)
	if err != nil {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "failed to detect content type", err,
			"6a2e8c4f-0b9d-4a7e-8d5c-3f1b6e9a0c47")
	}
	contentType := mtype.String()

	ext := NormalizeExtension(in.Filename)
	if ext == "" {
		ext = mtype.Extension()
	}

	if _, err := reader.Seek(0, io.SeekStart); err != nil {
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInternal, "failed to rewind upload buffer", err,
			"4e7a1d9c-6b3f-4e8a-a2d5-8c0b5f3e7d19")
	}

	key := ObjectKey(category, fileID, ext)

	// Second pass: streamed write. Failures leave no asset row behind.
	if err := s.storage.Upload(ctx, key, reader, size, contentType, in.Gated); err != nil {
		metrics.RecordIngest(string(category), "failed", 0)
		return nil, false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStorageError, "failed to write media to storage", err,
			"7c5e9a3b-4d1f-4b6c-8e2a-9f7d0b4c6e83")
	}

	asset := &Asset{
		FileID:      fileID,
		OwnerID:     in.OwnerID,
		Category:    category,
		Extension:   ext,
		ContentType: contentType,
		ByteSize:    size,
		Tier:        tier.PrimaryOnly,
		Gated:       in.Gated,
	}

	created, err := s.repo.Create(ctx, asset)
	if err != nil {
		// The uploaded object must not become dedup-eligible without a
		// row, so remove it on record failure.
		if delErr := s.storage.Delete(ctx, key, in.Gated); delErr != nil {
			s.log.Error().Err(delErr).Str("key", key).Msg("orphan cleanup failed after create error")
		}
		metrics.RecordIngest(string(category), "failed", 0)
		return nil, false, err
	}
	if !created {
		// Raced an identical upload; bytes are identical so the winner's
		// object stands.
		existing, err := s.repo.FindByID(ctx, fileID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			metrics.RecordIngest(string(category), "deduplicated", 0)
			return existing, true, nil
		}
	}

	metrics.RecordIngest(string(category), "stored", size)
	s.log.Info().
		Str("file_id", fileID).
		Str("category", string(category)).
		Int64("bytes", size).
		Bool("gated", in.Gated).
		Msg("media ingested")

	return asset, false, nil
}

// Get returns asset metadata by file id.
func (s *Service) Get(ctx context.Context, fileID string) (*Asset, error) {
	if !mediaid.IsValid(fileID) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "malformed file id", nil,
			"1b8d4f6e-3c9a-4d2b-8f7e-0a5c9e1d3b62")
	}
	asset, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "media asset not found", nil,
			"0f6c2a8d-5e1b-4a9c-b3d7-6e4f8a0c2d95")
	}
	return asset, nil
}

// ListByOwner returns the owner's assets, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]*Asset, error) {
	if ownerID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeUnauthorized, "owner is required", nil,
			"8e2d6b4a-0c7f-4b1e-9a3d-5f8c2e6a0d73")
	}
	return s.repo.ListByOwner(ctx, ownerID)
}
