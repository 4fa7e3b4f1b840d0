package media

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
)

// Category partitions the storage key space by media kind.
type Category string

const (
	CategoryAudio Category = "audio"
	CategoryImage Category = "image"
)

// ParseCategory validates a raw category value.
func ParseCategory(raw string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryAudio:
		return CategoryAudio, nil
	case CategoryImage:
		return CategoryImage, nil
	default:
		return "", fmt.Errorf("unknown category %q", raw)
	}
}

// Asset represents stored media metadata. FileID is derived from content
// bytes, so identical uploads always resolve to the same asset.
type Asset struct {
	FileID      string    `json:"file_id"`
	OwnerID     string    `json:"owner_id"`
	Category    Category  `json:"category"`
	Extension   string    `json:"original_extension"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	Tier        tier.Tier `json:"storage_tier"`
	Gated       bool      `json:"gated"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StorageKey returns the deterministic object key for the asset.
func (a *Asset) StorageKey() string {
	return ObjectKey(a.Category, a.FileID, a.Extension)
}

// ObjectKey builds the canonical {category}/{file_id}{extension} key.
// extension carries its leading dot or is empty.
func ObjectKey(category Category, fileID, extension string) string {
	return fmt.Sprintf("%s/%s%s", category, fileID, extension)
}

// IngestInput carries one upload through the ingest pipeline.
type IngestInput struct {
	Source   io.Reader
	Filename string
	Category string
	OwnerID  string
	Gated    bool
}

// NormalizeExtension lowercases a filename extension and keeps only a
// sane shape; anything else is discarded so sniffing can fill in.
func NormalizeExtension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	ext := strings.ToLower(filename[idx:])
	if len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
