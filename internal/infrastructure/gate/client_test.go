package gate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/gate"
)

func TestValidate_Entitled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/entitlements/check" {
			t.Errorf("request path = %q, want /v1/entitlements/check", r.URL.Path)
		}
		var body struct {
			ViewerID string `json:"viewer_id"`
			OwnerID  string `json:"owner_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding request body: %v", err)
		}
		if body.ViewerID != "viewer-1" || body.OwnerID != "owner-2" {
			t.Errorf("request body = %+v, want viewer-1/owner-2", body)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"entitled": true})
	}))
	defer server.Close()

	client := gate.NewClient(server.URL, time.Second)
	entitled, err := client.Validate(context.Background(), "viewer-1", "owner-2")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !entitled {
		t.Errorf("Validate() = false, want true")
	}
}

func TestValidate_NotEntitled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"entitled": false})
	}))
	defer server.Close()

	client := gate.NewClient(server.URL, time.Second)
	entitled, err := client.Validate(context.Background(), "viewer-1", "owner-2")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if entitled {
		t.Errorf("Validate() = true, want false")
	}
}

func TestValidate_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := gate.NewClient(server.URL, time.Second)
	entitled, err := client.Validate(context.Background(), "viewer-1", "owner-2")
	if err == nil {
		t.Fatalf("Validate() error = nil, want upstream error")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Validate() error = %v, want a non-timeout error", err)
	}
	if entitled {
		t.Errorf("Validate() = true on upstream error, must never grant")
	}
}

func TestValidate_TimeoutNormalized(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := gate.NewClient(server.URL, 50*time.Millisecond)
	entitled, err := client.Validate(context.Background(), "viewer-1", "owner-2")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Validate() error = %v, want context.DeadlineExceeded", err)
	}
	if entitled {
		t.Errorf("Validate() = true on timeout, must never grant")
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("request never reached the server")
	}
}
