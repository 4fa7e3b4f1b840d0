package storage_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/storage"
)

type failingReader struct{}

func (failingReader) Read(p []byte) (int, error) {
	return 0, errors.New("stream reset")
}

func newLocal(t *testing.T, baseURL string) (*storage.LocalStorage, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := storage.NewLocalStorage(storage.LocalConfig{
		Name:          "test",
		BasePath:      dir,
		PublicBaseURL: baseURL,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}
	return s, dir
}

func TestLocalStorage_UploadDownloadRoundTrip(t *testing.T) {
	s, dir := newLocal(t, "")
	ctx := context.Background()

	payload := "\x89PNG\r\n\x1a\ncover art bytes"
	if err := s.Upload(ctx, "image/0123456789abcdef.png", strings.NewReader(payload), int64(len(payload)), "image/png", false); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "public", "image", "0123456789abcdef.png")); err != nil {
		t.Errorf("object not under the public namespace: %v", err)
	}

	body, contentType, err := s.Download(ctx, "image/0123456789abcdef.png", false)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("reading downloaded body: %v", err)
	}
	if string(data) != payload {
		t.Errorf("Download() returned %d bytes, want the uploaded payload", len(data))
	}
	if contentType != "image/png" {
		t.Errorf("Download() content type = %q, want %q", contentType, "image/png")
	}
}

func TestLocalStorage_GatedUploadsLandInPrivateNamespace(t *testing.T) {
	s, dir := newLocal(t, "")
	ctx := context.Background()

	if err := s.Upload(ctx, "audio/aaaabbbbccccdddd.mp3", strings.NewReader("secret"), 6, "audio/mpeg", true); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "private", "audio", "aaaabbbbccccdddd.mp3")); err != nil {
		t.Errorf("gated object not under the private namespace: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "public", "audio", "aaaabbbbccccdddd.mp3")); !os.IsNotExist(err) {
		t.Errorf("gated object leaked into the public namespace")
	}
}

func TestLocalStorage_FailedUploadLeavesNoObject(t *testing.T) {
	s, dir := newLocal(t, "")
	ctx := context.Background()

	err := s.Upload(ctx, "audio/feedfacefeedface.wav", failingReader{}, 1024, "audio/wav", false)
	if err == nil {
		t.Fatalf("Upload() error = nil, want the source error propagated")
	}

	if _, statErr := os.Stat(filepath.Join(dir, "public", "audio", "feedfacefeedface.wav")); !os.IsNotExist(statErr) {
		t.Errorf("partial object visible under the final key after a failed upload")
	}

	entries, globErr := filepath.Glob(filepath.Join(dir, "public", "audio", ".upload-*"))
	if globErr != nil {
		t.Fatalf("glob: %v", globErr)
	}
	if len(entries) != 0 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestLocalStorage_DeleteIsIdempotent(t *testing.T) {
	s, _ := newLocal(t, "")
	ctx := context.Background()

	if err := s.Upload(ctx, "audio/1111222233334444.ogg", strings.NewReader("x"), 1, "audio/ogg", false); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if err := s.Delete(ctx, "audio/1111222233334444.ogg", false); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, "audio/1111222233334444.ogg", false); err != nil {
		t.Errorf("Delete() of a missing object = %v, want nil", err)
	}
}

func TestLocalStorage_RelocateMovesBetweenNamespaces(t *testing.T) {
	s, _ := newLocal(t, "")
	ctx := context.Background()

	key := "audio/5555666677778888.mp3"
	if err := s.Upload(ctx, key, strings.NewReader("tune"), 4, "audio/mpeg", false); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if err := s.Relocate(ctx, key, true); err != nil {
		t.Fatalf("Relocate() error = %v", err)
	}

	if ok, _ := s.Exists(ctx, key, true); !ok {
		t.Errorf("object missing from the private namespace after relocation")
	}
	if ok, _ := s.Exists(ctx, key, false); ok {
		t.Errorf("object still present in the public namespace after relocation")
	}

	// A retry after the move already happened must converge, not fail.
	if err := s.Relocate(ctx, key, true); err != nil {
		t.Errorf("Relocate() retry error = %v, want nil", err)
	}
}

func TestLocalStorage_PublicURL(t *testing.T) {
	withBase, _ := newLocal(t, "http://localhost:9000/media/")
	url, err := withBase.PublicURL("image/9999aaaabbbbcccc.png")
	if err != nil {
		t.Fatalf("PublicURL() error = %v", err)
	}
	if url != "http://localhost:9000/media/public/image/9999aaaabbbbcccc.png" {
		t.Errorf("PublicURL() = %q, want base-joined public namespace url", url)
	}

	withoutBase, dir := newLocal(t, "")
	url, err = withoutBase.PublicURL("image/9999aaaabbbbcccc.png")
	if err != nil {
		t.Fatalf("PublicURL() error = %v", err)
	}
	want := "file://" + filepath.Join(dir, "public", "image", "9999aaaabbbbcccc.png")
	if url != want {
		t.Errorf("PublicURL() = %q, want %q", url, want)
	}
}

func TestLocalStorage_PresignGet(t *testing.T) {
	s, _ := newLocal(t, "http://localhost:9000/media")
	ctx := context.Background()

	key := "audio/ddddeeeeffff0000.mp3"
	if _, err := s.PresignGet(ctx, key, true, time.Minute); err == nil {
		t.Errorf("PresignGet() of a missing object succeeded, want error")
	}

	if err := s.Upload(ctx, key, strings.NewReader("gated tune"), 10, "audio/mpeg", true); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	url, err := s.PresignGet(ctx, key, true, time.Minute)
	if err != nil {
		t.Fatalf("PresignGet() error = %v", err)
	}
	if !strings.HasPrefix(url, "http://localhost:9000/media/private/audio/ddddeeeeffff0000.mp3?expires=") {
		t.Errorf("PresignGet() = %q, want private namespace url with expiry", url)
	}
}

func TestLocalStorage_DisabledWithoutPath(t *testing.T) {
	s, err := storage.NewLocalStorage(storage.LocalConfig{Name: "test"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewLocalStorage() error = %v", err)
	}

	if err := s.Upload(context.Background(), "audio/a.mp3", strings.NewReader("x"), 1, "audio/mpeg", false); err == nil {
		t.Errorf("Upload() on a disabled backend succeeded, want error")
	}
	if err := s.Health(context.Background()); err != nil {
		t.Errorf("Health() on a disabled backend = %v, want nil", err)
	}
}
