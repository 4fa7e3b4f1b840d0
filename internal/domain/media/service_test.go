package media_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// MockRepository is a mock implementation of media.Repository for testing.
type MockRepository struct {
	FindByIDFunc    func(ctx context.Context, fileID string) (*media.Asset, error)
	CreateFunc      func(ctx context.Context, asset *media.Asset) (bool, error)
	UpdateTierFunc  func(ctx context.Context, fileID string, t tier.Tier) error
	SetGatedFunc    func(ctx context.Context, fileID string, gated bool) error
	ListByOwnerFunc func(ctx context.Context, ownerID string) ([]*media.Asset, error)
}

func (m *MockRepository) FindByID(ctx context.Context, fileID string) (*media.Asset, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, fileID)
	}
	return nil, nil
}

func (m *MockRepository) Create(ctx context.Context, asset *media.Asset) (bool, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, asset)
	}
	return true, nil
}

func (m *MockRepository) UpdateTier(ctx context.Context, fileID string, t tier.Tier) error {
	if m.UpdateTierFunc != nil {
		return m.UpdateTierFunc(ctx, fileID, t)
	}
	return nil
}

func (m *MockRepository) SetGated(ctx context.Context, fileID string, gated bool) error {
	if m.SetGatedFunc != nil {
		return m.SetGatedFunc(ctx, fileID, gated)
	}
	return nil
}

func (m *MockRepository) ListByOwner(ctx context.Context, ownerID string) ([]*media.Asset, error) {
	if m.ListByOwnerFunc != nil {
		return m.ListByOwnerFunc(ctx, ownerID)
	}
	return nil, nil
}

// MockStorage is a mock implementation of media.Storage for testing.
type MockStorage struct {
	UploadFunc     func(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) error
	DownloadFunc   func(ctx context.Context, key string, gated bool) (io.ReadCloser, string, error)
	DeleteFunc     func(ctx context.Context, key string, gated bool) error
	RelocateFunc   func(ctx context.Context, key string, toGated bool) error
	ExistsFunc     func(ctx context.Context, key string, gated bool) (bool, error)
	PublicURLFunc  func(key string) (string, error)
	PresignGetFunc func(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error)
	HealthFunc     func(ctx context.Context) error
}

func (m *MockStorage) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) error {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, key, body, size, contentType, gated)
	}
	return nil
}

func (m *MockStorage) Download(ctx context.Context, key string, gated bool) (io.ReadCloser, string, error) {
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, key, gated)
	}
	return io.NopCloser(strings.NewReader("")), "application/octet-stream", nil
}

func (m *MockStorage) Delete(ctx context.Context, key string, gated bool) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, key, gated)
	}
	return nil
}

func (m *MockStorage) Relocate(ctx context.Context, key string, toGated bool) error {
	if m.RelocateFunc != nil {
		return m.RelocateFunc(ctx, key, toGated)
	}
	return nil
}

func (m *MockStorage) Exists(ctx context.Context, key string, gated bool) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, key, gated)
	}
	return true, nil
}

func (m *MockStorage) PublicURL(key string) (string, error) {
	if m.PublicURLFunc != nil {
		return m.PublicURLFunc(key)
	}
	return "https://cdn.example.com/" + key, nil
}

func (m *MockStorage) PresignGet(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error) {
	if m.PresignGetFunc != nil {
		return m.PresignGetFunc(ctx, key, gated, ttl)
	}
	return "https://signed.example.com/" + key, nil
}

func (m *MockStorage) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		MaxUploadBytes:      1 << 20,
		HashWindowBytes:     32 * 1024,
		SpillThresholdBytes: 64 * 1024,
	}
}

func expectedFileID(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

func TestIngest_StoresNewAsset(t *testing.T) {
	payload := []byte("RIFF....WAVEfmt not really audio but bytes")
	wantID := expectedFileID(payload)

	var uploadedKey string
	var uploadedBytes []byte
	var created *media.Asset

	repo := &MockRepository{
		CreateFunc: func(ctx context.Context, asset *media.Asset) (bool, error) {
			created = asset
			return true, nil
		},
	}
	storage := &MockStorage{
		UploadFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) error {
			uploadedKey = key
			data, err := io.ReadAll(body)
			if err != nil {
				return err
			}
			uploadedBytes = data
			return nil
		},
	}

	svc := media.NewService(testConfig(), repo, storage, zerolog.Nop())
	asset, deduped, err := svc.Ingest(context.Background(), media.IngestInput{
		Source:   bytes.NewReader(payload),
		Filename: "take-one.WAV",
		Category: "audio",
		OwnerID:  "owner-1",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if deduped {
		t.Errorf("Ingest() deduplicated = true, want false")
	}
	if asset.FileID != wantID {
		t.Errorf("Ingest() file id = %q, want %q", asset.FileID, wantID)
	}
	if asset.Extension != ".wav" {
		t.Errorf("Ingest() extension = %q, want %q", asset.Extension, ".wav")
	}
	if asset.Tier != tier.PrimaryOnly {
		t.Errorf("Ingest() tier = %q, want %q", asset.Tier, tier.PrimaryOnly)
	}
	if asset.ByteSize != int64(len(payload)) {
		t.Errorf("Ingest() byte size = %d, want %d", asset.ByteSize, len(payload))
	}
	if uploadedKey != "audio/"+wantID+".wav" {
		t.Errorf("Upload key = %q, want %q", uploadedKey, "audio/"+wantID+".wav")
	}
	if !bytes.Equal(uploadedBytes, payload) {
		t.Errorf("Upload wrote %d bytes, want the original %d-byte payload", len(uploadedBytes), len(payload))
	}
	if created == nil {
		t.Fatalf("Create was not called")
	}
	if created.OwnerID != "owner-1" {
		t.Errorf("Create owner = %q, want %q", created.OwnerID, "owner-1")
	}
}

func TestIngest_DeduplicatesExisting(t *testing.T) {
	payload := []byte("same bytes as before")
	wantID := expectedFileID(payload)

	existing := &media.Asset{
		FileID:   wantID,
		OwnerID:  "original-owner",
		Category: media.CategoryAudio,
		Tier:     tier.PrimaryAndSecondary,
	}

	uploadCalled := false
	repo := &MockRepository{
		FindByIDFunc: func(ctx context.Context, fileID string) (*media.Asset, error) {
			if fileID != wantID {
				t.Errorf("FindByID id = %q, want %q", fileID, wantID)
			}
			return existing, nil
		},
	}
	storage := &MockStorage{
		UploadFunc: func(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) error {
			uploadCalled = true
			return nil
		},
	}

	svc := media.NewService(testConfig(), repo, storage, zerolog.Nop())
	asset, deduped, err := svc.Ingest(context.Background(), media.IngestInput{
		Source:   bytes.NewReader(payload),
		Filename: "duplicate.wav",
		Category: "audio",
		OwnerID:  "second-owner",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !deduped {
		t.Errorf("Ingest() deduplicated = false, want true")
	}
	if asset != existing {
		t.Errorf("Ingest() returned a new asset, want the existing record")
	}
	if uploadCalled {
		t.Errorf("Upload was called for deduplicated content")
	}
}

func TestIngest_ValidationFailures(t *testing.T) {
	tests := []struct {
		name     string
		input    media.IngestInput
		maxBytes int64
	}{
		{
			name: "unknown category",
			input: media.IngestInput{
				Source:   strings.NewReader("data"),
				Filename: "clip.mp4",
				Category: "video",
			},
			maxBytes: 1 << 20,
		},
		{
			name: "empty file",
			input: media.IngestInput{
				Source:   strings.NewReader(""),
				Filename: "empty.wav",
				Category: "audio",
			},
			maxBytes: 1 << 20,
		},
		{
			name: "oversize file",
			input: media.IngestInput{
				Source:   strings.NewReader(strings.Repeat("x", 128)),
				Filename: "big.wav",
				Category: "audio",
			},
			maxBytes: 64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxUploadBytes = tt.maxBytes
			svc := media.NewService(cfg, &MockRepository{}, &MockStorage{}, zerolog.Nop())

			_, _, err := svc.Ingest(context.Background(), tt.input)
			if err == nil {
				t.Fatalf("Ingest() error = nil, want validation error")
			}
			if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeValidation) {
				t.Errorf("Ingest() error type = %v, want %v", err, platformerrors.ErrorTypeValidation)
			}
		})
	}
}

func TestIngest_ExtensionFallsBackToSniffedType(t *testing.T) {
	// PNG magic bytes so detection lands on a concrete type.
	payload := []byte("\x89PNG\r\n\x1a\n0000000000000000")

	repo := &MockRepository{}
	svc := media.NewService(testConfig(), repo, &MockStorage{}, zerolog.Nop())

	asset, _, err := svc.Ingest(context.Background(), media.IngestInput{
		Source:   bytes.NewReader(payload),
		Filename: "upload",
		Category: "image",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if asset.Extension != ".png" {
		t.Errorf("Ingest() extension = %q, want %q", asset.Extension, ".png")
	}
	if asset.ContentType != "image/png" {
		t.Errorf("Ingest() content type = %q, want %q", asset.ContentType, "image/png")
	}
}

func TestIngest_CleansUpObjectWhenCreateFails(t *testing.T) {
	payload := []byte("bytes that will be orphaned")

	deleted := false
	repo := &MockRepository{
		CreateFunc: func(ctx context.Context, asset *media.Asset) (bool, error) {
			return false, errors.New("connection reset")
		},
	}
	storage := &MockStorage{
		DeleteFunc: func(ctx context.Context, key string, gated bool) error {
			deleted = true
			return nil
		},
	}

	svc := media.NewService(testConfig(), repo, storage, zerolog.Nop())
	_, _, err := svc.Ingest(context.Background(), media.IngestInput{
		Source:   bytes.NewReader(payload),
		Filename: "orphan.wav",
		Category: "audio",
	})
	if err == nil {
		t.Fatalf("Ingest() error = nil, want create error")
	}
	if !deleted {
		t.Errorf("stored object was not deleted after create failure")
	}
}

func TestIngest_RacedCreateReturnsWinner(t *testing.T) {
	payload := []byte("two uploaders, same bytes")
	wantID := expectedFileID(payload)

	winner := &media.Asset{FileID: wantID, OwnerID: "first-uploader"}
	calls := 0
	repo := &MockRepository{
		FindByIDFunc: func(ctx context.Context, fileID string) (*media.Asset, error) {
			calls++
			if calls == 1 {
				return nil, nil
			}
			return winner, nil
		},
		CreateFunc: func(ctx context.Context, asset *media.Asset) (bool, error) {
			return false, nil
		},
	}

	svc := media.NewService(testConfig(), repo, &MockStorage{}, zerolog.Nop())
	asset, deduped, err := svc.Ingest(context.Background(), media.IngestInput{
		Source:   bytes.NewReader(payload),
		Filename: "raced.wav",
		Category: "audio",
		OwnerID:  "second-uploader",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if !deduped {
		t.Errorf("Ingest() deduplicated = false, want true after losing the insert race")
	}
	if asset != winner {
		t.Errorf("Ingest() returned loser's asset, want winner's record")
	}
}

func TestGet(t *testing.T) {
	stored := &media.Asset{FileID: "0123456789abcdef", OwnerID: "owner-1"}

	tests := []struct {
		name     string
		fileID   string
		found    *media.Asset
		wantType platformerrors.ErrorType
	}{
		{name: "malformed id", fileID: "not-hex!", wantType: platformerrors.ErrorTypeValidation},
		{name: "missing asset", fileID: "ffffffffffffffff", wantType: platformerrors.ErrorTypeNotFound},
		{name: "existing asset", fileID: stored.FileID, found: stored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &MockRepository{
				FindByIDFunc: func(ctx context.Context, fileID string) (*media.Asset, error) {
					return tt.found, nil
				},
			}
			svc := media.NewService(testConfig(), repo, &MockStorage{}, zerolog.Nop())

			asset, err := svc.Get(context.Background(), tt.fileID)
			if tt.wantType != "" {
				if err == nil {
					t.Fatalf("Get() error = nil, want %v", tt.wantType)
				}
				if !platformerrors.IsErrorType(err, tt.wantType) {
					t.Errorf("Get() error = %v, want type %v", err, tt.wantType)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if asset != stored {
				t.Errorf("Get() = %v, want stored asset", asset)
			}
		})
	}
}

func TestListByOwner(t *testing.T) {
	owned := []*media.Asset{
		{FileID: "aaaaaaaaaaaaaaaa", OwnerID: "owner-1"},
		{FileID: "bbbbbbbbbbbbbbbb", OwnerID: "owner-1"},
	}

	var gotOwner string
	repo := &MockRepository{
		ListByOwnerFunc: func(ctx context.Context, ownerID string) ([]*media.Asset, error) {
			gotOwner = ownerID
			return owned, nil
		},
	}
	svc := media.NewService(testConfig(), repo, &MockStorage{}, zerolog.Nop())

	if _, err := svc.ListByOwner(context.Background(), ""); !platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnauthorized) {
		t.Errorf("ListByOwner(\"\") error = %v, want type %v", err, platformerrors.ErrorTypeUnauthorized)
	}

	assets, err := svc.ListByOwner(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}
	if gotOwner != "owner-1" {
		t.Errorf("ListByOwner() queried owner %q, want owner-1", gotOwner)
	}
	if len(assets) != 2 {
		t.Fatalf("ListByOwner() returned %d assets, want 2", len(assets))
	}
}
