package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/metrics"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/mediaid"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// relocateTimeout bounds the background byte move after a gate toggle.
const relocateTimeout = 5 * time.Minute

// Outcome is the result class of an access resolution.
type Outcome string

const (
	OutcomePublicRedirect Outcome = "public_redirect"
	OutcomeSignedURL      Outcome = "signed_url"
	OutcomeDenied         Outcome = "denied"
)

// Decision is the per-request access resolution. It is computed fresh on
// every read and never persisted.
type Decision struct {
	FileID    string
	OwnerID   string
	Outcome   Outcome
	URL       string
	ExpiresIn time.Duration
}

// EntitlementValidator answers whether a viewer may access an owner's
// gated content. Implementations are expected to be remote.
type EntitlementValidator interface {
	Validate(ctx context.Context, viewerID, ownerID string) (bool, error)
}

// Service resolves read access for media assets and manages the gated
// flag. Validator failures always deny; they are never treated as a grant.
type Service struct {
	cfg       *config.Config
	repo      media.Repository
	primary   media.Storage
	secondary media.Storage
	validator EntitlementValidator
	log       zerolog.Logger
}

func NewService(
	cfg *config.Config,
	repo media.Repository,
	primary media.Storage,
	secondary media.Storage,
	validator EntitlementValidator,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		repo:      repo,
		primary:   primary,
		secondary: secondary,
		validator: validator,
		log:       log.With().Str("component", "access-service").Logger(),
	}
}

// Resolve decides how the viewer may read the asset. Ungated assets
// resolve to a public URL without any entitlement call. Gated assets
// require an authenticated viewer who is either the owner or entitled.
func (s *Service) Resolve(ctx context.Context, fileID, viewerID string) (*Decision, error) {
	asset, err := s.lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if !asset.Gated {
		url, err := s.publicURL(asset)
		if err != nil {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
				platformerrors.ErrorTypeStorageError, "failed to resolve public location", err,
				"3d7f1b9e-5a2c-4e8b-9d6f-2c0a8e4b7d13")
		}
		metrics.RecordDeliveryURL("public")
		return &Decision{
			FileID:  asset.FileID,
			OwnerID: asset.OwnerID,
			Outcome: OutcomePublicRedirect,
			URL:     url,
		}, nil
	}

	if viewerID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeUnauthorized, "authentication required for gated media", nil,
			"8e2a6c4d-0f7b-4a9e-b1d8-5c3f9a7e0b46")
	}

	if viewerID != asset.OwnerID {
		entitled, err := s.checkEntitlement(ctx, viewerID, asset.OwnerID)
		if err != nil {
			return nil, err
		}
		if !entitled {
			metrics.RecordDeliveryURL("denied")
			return &Decision{
				FileID:  asset.FileID,
				OwnerID: asset.OwnerID,
				Outcome: OutcomeDenied,
			}, nil
		}
	}

	url, err := s.mintSignedURL(ctx, asset)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeStorageError, "failed to mint delivery url", err,
			"6b0d4f8a-2e9c-4d7b-8a1f-9e5c3b0d6a72")
	}
	metrics.RecordDeliveryURL("signed")
	return &Decision{
		FileID:    asset.FileID,
		OwnerID:   asset.OwnerID,
		Outcome:   OutcomeSignedURL,
		URL:       url,
		ExpiresIn: s.cfg.DeliveryURLTTL,
	}, nil
}

// SetGate flips the gated flag. The flag takes effect immediately; the
// underlying bytes are relocated between the public and private namespaces
// asynchronously and best effort.
func (s *Service) SetGate(ctx context.Context, fileID, viewerID string, gated bool) (*media.Asset, error) {
	asset, err := s.lookup(ctx, fileID)
	if err != nil {
		return nil, err
	}

	if viewerID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeUnauthorized, "authentication required", nil,
			"b5f9d3a7-1c8e-4b2d-a6f0-7e4c9b3d8a51")
	}
	if asset.OwnerID != viewerID {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeForbidden, "only the owner can change gating", nil,
			"9c3e7a1f-6d0b-4c8a-9f2e-4b8d1a5c7e39")
	}

	if asset.Gated == gated {
		return asset, nil
	}

	if err := s.repo.SetGated(ctx, fileID, gated); err != nil {
		return nil, err
	}
	asset.Gated = gated

	go s.relocate(*asset)

	s.log.Info().
		Str("file_id", fileID).
		Bool("gated", gated).
		Msg("gate flag updated, relocation scheduled")

	return asset, nil
}

func (s *Service) lookup(ctx context.Context, fileID string) (*media.Asset, error) {
	if !mediaid.IsValid(fileID) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "malformed file id", nil,
			"e1a5c9d3-8f4b-4e7a-b0d6-3c9f5a1e8b27")
	}
	asset, err := s.repo.FindByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if asset == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "media asset not found", nil,
			"7f3b9e5a-4c1d-4f8e-a9b2-6d0c4e8a1f53")
	}
	return asset, nil
}

func (s *Service) checkEntitlement(ctx context.Context, viewerID, ownerID string) (bool, error) {
	checkCtx, cancel := context.WithTimeout(ctx, s.cfg.EntitlementTimeout)
	defer cancel()

	start := time.Now()
	entitled, err := s.validator.Validate(checkCtx, viewerID, ownerID)
	elapsed := time.Since(start).Seconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.RecordEntitlementCheck("timeout", elapsed)
			return false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
				platformerrors.ErrorTypeTimeout, "entitlement validation timed out", err,
				"a7d1f5b9-3e8c-4a6d-b2f7-0c5e9a3d7b81")
		}
		metrics.RecordEntitlementCheck("error", elapsed)
		return false, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeExternal, "entitlement validation failed", err,
			"4b8f2d6a-9c3e-4b0f-8d5a-1e7c4f9b2d68")
	}

	if entitled {
		metrics.RecordEntitlementCheck("allowed", elapsed)
	} else {
		metrics.RecordEntitlementCheck("denied", elapsed)
	}
	return entitled, nil
}

func (s *Service) publicURL(asset *media.Asset) (string, error) {
	if !asset.Tier.HasPrimary() {
		return s.secondary.PublicURL(asset.StorageKey())
	}
	return s.primary.PublicURL(asset.StorageKey())
}

// mintSignedURL issues a short-TTL URL from the backend holding a copy.
// A fresh gate toggle flips the flag before the bytes move, so the object
// may momentarily still sit in the public namespace; both are checked
// rather than returning a transient 404.
func (s *Service) mintSignedURL(ctx context.Context, asset *media.Asset) (string, error) {
	key := asset.StorageKey()

	backend := s.primary
	if !asset.Tier.HasPrimary() {
		backend = s.secondary
	}

	gated := true
	ok, err := backend.Exists(ctx, key, true)
	if err != nil {
		return "", err
	}
	if !ok {
		inPublic, err := backend.Exists(ctx, key, false)
		if err != nil {
			return "", err
		}
		if !inPublic {
			return "", fmt.Errorf("object %s missing from both namespaces", key)
		}
		gated = false
	}

	return backend.PresignGet(ctx, key, gated, s.cfg.DeliveryURLTTL)
}

// relocate moves the bytes of a toggled asset on every backend that holds
// a copy. Failures are logged and counted; the flag has already flipped.
func (s *Service) relocate(asset media.Asset) {
	ctx, cancel := context.WithTimeout(context.Background(), relocateTimeout)
	defer cancel()

	key := asset.StorageKey()
	if asset.Tier.HasPrimary() {
		s.relocateOn(ctx, s.primary, "primary", key, asset.Gated)
	}
	if asset.Tier.HasSecondary() {
		s.relocateOn(ctx, s.secondary, "secondary", key, asset.Gated)
	}
}

func (s *Service) relocateOn(ctx context.Context, backend media.Storage, name, key string, gated bool) {
	if err := backend.Relocate(ctx, key, gated); err != nil {
		metrics.RecordRelocation("failed")
		s.log.Error().Err(err).
			Str("backend", name).
			Str("key", key).
			Bool("gated", gated).
			Msg("relocation failed")
		return
	}
	metrics.RecordRelocation("ok")
}
