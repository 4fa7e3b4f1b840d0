package access_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/access"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// MockRepo is a mock implementation of media.Repository for testing.
type MockRepo struct {
	FindByIDFunc func(ctx context.Context, fileID string) (*media.Asset, error)
	SetGatedFunc func(ctx context.Context, fileID string, gated bool) error
}

func (m *MockRepo) FindByID(ctx context.Context, fileID string) (*media.Asset, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, fileID)
	}
	return nil, nil
}

func (m *MockRepo) Create(ctx context.Context, asset *media.Asset) (bool, error) {
	return true, nil
}

func (m *MockRepo) UpdateTier(ctx context.Context, fileID string, t tier.Tier) error {
	return nil
}

func (m *MockRepo) SetGated(ctx context.Context, fileID string, gated bool) error {
	if m.SetGatedFunc != nil {
		return m.SetGatedFunc(ctx, fileID, gated)
	}
	return nil
}

func (m *MockRepo) ListByOwner(ctx context.Context, ownerID string) ([]*media.Asset, error) {
	return nil, nil
}

// MockStore is a mock implementation of media.Storage for testing.
type MockStore struct {
	ExistsFunc     func(ctx context.Context, key string, gated bool) (bool, error)
	PublicURLFunc  func(key string) (string, error)
	PresignGetFunc func(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error)
	RelocateFunc   func(ctx context.Context, key string, toGated bool) error
}

func (m *MockStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string, gated bool) error {
	return nil
}

func (m *MockStore) Download(ctx context.Context, key string, gated bool) (io.ReadCloser, string, error) {
	return io.NopCloser(strings.NewReader("")), "application/octet-stream", nil
}

func (m *MockStore) Delete(ctx context.Context, key string, gated bool) error {
	return nil
}

func (m *MockStore) Relocate(ctx context.Context, key string, toGated bool) error {
	if m.RelocateFunc != nil {
		return m.RelocateFunc(ctx, key, toGated)
	}
	return nil
}

func (m *MockStore) Exists(ctx context.Context, key string, gated bool) (bool, error) {
	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, key, gated)
	}
	return true, nil
}

func (m *MockStore) PublicURL(key string) (string, error) {
	if m.PublicURLFunc != nil {
		return m.PublicURLFunc(key)
	}
	return "https://cdn.example.com/" + key, nil
}

func (m *MockStore) PresignGet(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error) {
	if m.PresignGetFunc != nil {
		return m.PresignGetFunc(ctx, key, gated, ttl)
	}
	return "https://signed.example.com/" + key, nil
}

func (m *MockStore) Health(ctx context.Context) error {
	return nil
}

// MockValidator is a mock implementation of access.EntitlementValidator.
type MockValidator struct {
	mu           sync.Mutex
	calls        int
	ValidateFunc func(ctx context.Context, viewerID, ownerID string) (bool, error)
}

func (m *MockValidator) Validate(ctx context.Context, viewerID, ownerID string) (bool, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, viewerID, ownerID)
	}
	return false, nil
}

func (m *MockValidator) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func accessConfig() *config.Config {
	return &config.Config{
		DeliveryURLTTL:     15 * time.Minute,
		EntitlementTimeout: 100 * time.Millisecond,
	}
}

func publicTrack(id string) *media.Asset {
	return &media.Asset{
		FileID:    id,
		OwnerID:   "owner-1",
		Category:  media.CategoryAudio,
		Extension: ".mp3",
		Tier:      tier.PrimaryOnly,
	}
}

func gatedTrack(id string) *media.Asset {
	a := publicTrack(id)
	a.Gated = true
	return a
}

func repoWith(asset *media.Asset) *MockRepo {
	return &MockRepo{
		FindByIDFunc: func(ctx context.Context, fileID string) (*media.Asset, error) {
			if asset != nil && fileID == asset.FileID {
				cp := *asset
				return &cp, nil
			}
			return nil, nil
		},
	}
}

func TestResolve_UngatedNeverCallsValidator(t *testing.T) {
	asset := publicTrack("aaaaaaaaaaaaaaaa")
	validator := &MockValidator{}
	svc := access.NewService(accessConfig(), repoWith(asset), &MockStore{}, &MockStore{}, validator, zerolog.Nop())

	dec, err := svc.Resolve(context.Background(), asset.FileID, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if dec.Outcome != access.OutcomePublicRedirect {
		t.Errorf("Resolve() outcome = %q, want %q", dec.Outcome, access.OutcomePublicRedirect)
	}
	if dec.URL != "https://cdn.example.com/audio/aaaaaaaaaaaaaaaa.mp3" {
		t.Errorf("Resolve() url = %q, want primary public url", dec.URL)
	}
	if validator.Calls() != 0 {
		t.Errorf("validator called %d times for an ungated asset, want 0", validator.Calls())
	}
}

func TestResolve_UngatedSecondaryOnlyServesSecondary(t *testing.T) {
	asset := publicTrack("bbbbbbbbbbbbbbbb")
	asset.Tier = tier.SecondaryOnly
	secondary := &MockStore{
		PublicURLFunc: func(key string) (string, error) {
			return "https://archive.example.com/" + key, nil
		},
	}
	svc := access.NewService(accessConfig(), repoWith(asset), &MockStore{}, secondary, &MockValidator{}, zerolog.Nop())

	dec, err := svc.Resolve(context.Background(), asset.FileID, "")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if dec.URL != "https://archive.example.com/audio/bbbbbbbbbbbbbbbb.mp3" {
		t.Errorf("Resolve() url = %q, want secondary public url", dec.URL)
	}
}

func TestResolve_GatedRequiresAuthentication(t *testing.T) {
	asset := gatedTrack("cccccccccccccccc")
	validator := &MockValidator{}
	svc := access.NewService(accessConfig(), repoWith(asset), &MockStore{}, &MockStore{}, validator, zerolog.Nop())

	_, err := svc.Resolve(context.Background(), asset.FileID, "")
	if err == nil {
		t.Fatalf("Resolve() error = nil, want unauthorized")
	}
	if !platformerrors.IsErrorType(err, platformerrors.ErrorTypeUnauthorized) {
		t.Errorf("Resolve() error = %v, want unauthorized", err)
	}
	if validator.Calls() != 0 {
		t.Errorf("validator called for an anonymous viewer, want the check skipped")
	}
}

func TestResolve_GatedEntitledViewerGetsSignedURL(t *testing.T) {
	asset := gatedTrack("dddddddddddddddd")
	validator := &MockValidator{
		ValidateFunc: func(ctx context.Context, viewerID, ownerID string) (bool, error) {
			if viewerID != "viewer-9" || ownerID != "owner-1" {
				t.Errorf("Validate(%q, %q), want (viewer-9, owner-1)", viewerID, ownerID)
			}
			return true, nil
		},
	}
	var presignGated *bool
	primary := &MockStore{
		PresignGetFunc: func(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error) {
			presignGated = &gated
			if ttl != 15*time.Minute {
				t.Errorf("PresignGet ttl = %v, want 15m", ttl)
			}
			return "https://signed.example.com/" + key, nil
		},
	}
	svc := access.NewService(accessConfig(), repoWith(asset), primary, &MockStore{}, validator, zerolog.Nop())

	dec, err := svc.Resolve(context.Background(), asset.FileID, "viewer-9")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if dec.Outcome != access.OutcomeSignedURL {
		t.Errorf("Resolve() outcome = %q, want %q", dec.Outcome, access.OutcomeSignedURL)
	}
	if dec.ExpiresIn != 15*time.Minute {
		t.Errorf("Resolve() expires in = %v, want 15m", dec.ExpiresIn)
	}
	if presignGated == nil || !*presignGated {
		t.Errorf("PresignGet called with gated = false, want the private namespace")
	}
}

func TestResolve_GatedNonEntitledViewerDenied(t *testing.T) {
	asset := gatedTrack("eeeeeeeeeeeeeeee")
	presigned := false
	primary := &MockStore{
		PresignGetFunc: func(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error) {
			presigned = true
			return "", nil
		},
	}
	validator := &MockValidator{
		ValidateFunc: func(ctx context.Context, viewerID, ownerID string) (bool, error) {
			return false, nil
		},
	}
	svc := access.NewService(accessConfig(), repoWith(asset), primary, &MockStore{}, validator, zerolog.Nop())

	dec, err := svc.Resolve(context.Background(), asset.FileID, "viewer-9")
	if err != nil {
		t.Fatalf("Resolve() error = %v, denial must not be an error", err)
	}
	if dec.Outcome != access.OutcomeDenied {
		t.Errorf("Resolve() outcome = %q, want %q", dec.Outcome, access.OutcomeDenied)
	}
	if dec.OwnerID != "owner-1" {
		t.Errorf("Resolve() owner = %q, want owner-1 for the support hint", dec.OwnerID)
	}
	if dec.URL != "" {
		t.Errorf("Resolve() url = %q, want empty on denial", dec.URL)
	}
	if presigned {
		t.Errorf("a URL was presigned for a denied viewer")
	}
}

func TestResolve_ValidatorFailuresFailClosed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType platformerrors.ErrorType
	}{
		{name: "timeout", err: context.DeadlineExceeded, wantType: platformerrors.ErrorTypeTimeout},
		{name: "upstream error", err: errors.New("boom"), wantType: platformerrors.ErrorTypeExternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			asset := gatedTrack("ffffffffffffffff")
			presigned := false
			primary := &MockStore{
				PresignGetFunc: func(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error) {
					presigned = true
					return "", nil
				},
			}
			validator := &MockValidator{
				ValidateFunc: func(ctx context.Context, viewerID, ownerID string) (bool, error) {
					return false, tt.err
				},
			}
			svc := access.NewService(accessConfig(), repoWith(asset), primary, &MockStore{}, validator, zerolog.Nop())

			_, err := svc.Resolve(context.Background(), asset.FileID, "viewer-9")
			if err == nil {
				t.Fatalf("Resolve() error = nil, want fail-closed %v", tt.wantType)
			}
			if !platformerrors.IsErrorType(err, tt.wantType) {
				t.Errorf("Resolve() error = %v, want type %v", err, tt.wantType)
			}
			if presigned {
				t.Errorf("a URL was presigned despite a validator failure")
			}
		})
	}
}

func TestResolve_OwnerBypassesValidator(t *testing.T) {
	asset := gatedTrack("1111111111111111")
	validator := &MockValidator{
		ValidateFunc: func(ctx context.Context, viewerID, ownerID string) (bool, error) {
			return false, errors.New("should not be consulted")
		},
	}
	svc := access.NewService(accessConfig(), repoWith(asset), &MockStore{}, &MockStore{}, validator, zerolog.Nop())

	dec, err := svc.Resolve(context.Background(), asset.FileID, "owner-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if dec.Outcome != access.OutcomeSignedURL {
		t.Errorf("Resolve() outcome = %q, want %q for the owner", dec.Outcome, access.OutcomeSignedURL)
	}
	if validator.Calls() != 0 {
		t.Errorf("validator called %d times for the owner, want 0", validator.Calls())
	}
}

func TestResolve_ToggleWindowFallsBackToPublicNamespace(t *testing.T) {
	asset := gatedTrack("2222222222222222")
	var presignGated *bool
	primary := &MockStore{
		ExistsFunc: func(ctx context.Context, key string, gated bool) (bool, error) {
			// Bytes have not been relocated to the private namespace yet.
			return !gated, nil
		},
		PresignGetFunc: func(ctx context.Context, key string, gated bool, ttl time.Duration) (string, error) {
			presignGated = &gated
			return "https://signed.example.com/" + key, nil
		},
	}
	svc := access.NewService(accessConfig(), repoWith(asset), primary, &MockStore{}, &MockValidator{}, zerolog.Nop())

	dec, err := svc.Resolve(context.Background(), asset.FileID, "owner-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v, the toggle window must not surface a 404", err)
	}
	if dec.Outcome != access.OutcomeSignedURL {
		t.Errorf("Resolve() outcome = %q, want %q", dec.Outcome, access.OutcomeSignedURL)
	}
	if presignGated == nil || *presignGated {
		t.Errorf("PresignGet used the private namespace, want fallback to the public one")
	}
}

func TestSetGate_OnlyOwnerMayToggle(t *testing.T) {
	asset := publicTrack("3333333333333333")

	tests := []struct {
		name     string
		viewerID string
		wantType platformerrors.ErrorType
	}{
		{name: "anonymous", viewerID: "", wantType: platformerrors.ErrorTypeUnauthorized},
		{name: "non-owner", viewerID: "someone-else", wantType: platformerrors.ErrorTypeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := access.NewService(accessConfig(), repoWith(asset), &MockStore{}, &MockStore{}, &MockValidator{}, zerolog.Nop())
			_, err := svc.SetGate(context.Background(), asset.FileID, tt.viewerID, true)
			if err == nil {
				t.Fatalf("SetGate() error = nil, want %v", tt.wantType)
			}
			if !platformerrors.IsErrorType(err, tt.wantType) {
				t.Errorf("SetGate() error = %v, want type %v", err, tt.wantType)
			}
		})
	}
}

func TestSetGate_IdempotentWhenUnchanged(t *testing.T) {
	asset := publicTrack("4444444444444444")
	flagWrites := 0
	repo := repoWith(asset)
	repo.SetGatedFunc = func(ctx context.Context, fileID string, gated bool) error {
		flagWrites++
		return nil
	}
	relocated := make(chan string, 2)
	primary := &MockStore{
		RelocateFunc: func(ctx context.Context, key string, toGated bool) error {
			relocated <- key
			return nil
		},
	}
	svc := access.NewService(accessConfig(), repo, primary, &MockStore{}, &MockValidator{}, zerolog.Nop())

	got, err := svc.SetGate(context.Background(), asset.FileID, "owner-1", false)
	if err != nil {
		t.Fatalf("SetGate() error = %v", err)
	}
	if got.Gated {
		t.Errorf("SetGate() gated = true, want unchanged false")
	}
	if flagWrites != 0 {
		t.Errorf("flag written %d times for a no-op toggle, want 0", flagWrites)
	}
	select {
	case key := <-relocated:
		t.Errorf("relocation of %q scheduled for a no-op toggle", key)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSetGate_FlipsFlagAndRelocatesBothCopies(t *testing.T) {
	asset := publicTrack("5555555555555555")
	asset.Tier = tier.PrimaryAndSecondary

	var mu sync.Mutex
	var flagged *bool
	repo := repoWith(asset)
	repo.SetGatedFunc = func(ctx context.Context, fileID string, gated bool) error {
		mu.Lock()
		defer mu.Unlock()
		flagged = &gated
		return nil
	}

	relocated := make(chan string, 2)
	relocateFn := func(name string) func(ctx context.Context, key string, toGated bool) error {
		return func(ctx context.Context, key string, toGated bool) error {
			if !toGated {
				t.Errorf("%s relocation toGated = false, want true", name)
			}
			relocated <- name
			return nil
		}
	}
	primary := &MockStore{RelocateFunc: relocateFn("primary")}
	secondary := &MockStore{RelocateFunc: relocateFn("secondary")}

	svc := access.NewService(accessConfig(), repo, primary, secondary, &MockValidator{}, zerolog.Nop())

	got, err := svc.SetGate(context.Background(), asset.FileID, "owner-1", true)
	if err != nil {
		t.Fatalf("SetGate() error = %v", err)
	}
	if !got.Gated {
		t.Errorf("SetGate() gated = false, want true immediately after the call")
	}
	mu.Lock()
	if flagged == nil || !*flagged {
		t.Errorf("gated flag was not persisted as true")
	}
	mu.Unlock()

	backends := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case name := <-relocated:
			backends[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("relocation did not reach both backends, got %v", backends)
		}
	}
	if !backends["primary"] || !backends["secondary"] {
		t.Errorf("relocated backends = %v, want primary and secondary", backends)
	}
}
