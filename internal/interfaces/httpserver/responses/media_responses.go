package responses

import (
	"time"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/migration"
)

// IngestResponse represents successful media ingestion
type IngestResponse struct {
	FileID       string `json:"file_id"`
	ContentType  string `json:"content_type"`
	ByteSize     int64  `json:"byte_size"`
	StorageTier  string `json:"storage_tier"`
	Gated        bool   `json:"gated"`
	Deduplicated bool   `json:"deduplicated"`
}

// BuildIngestResponse creates response from domain asset
func BuildIngestResponse(asset *media.Asset, deduplicated bool) *IngestResponse {
	return &IngestResponse{
		FileID:       asset.FileID,
		ContentType:  asset.ContentType,
		ByteSize:     asset.ByteSize,
		StorageTier:  string(asset.Tier),
		Gated:        asset.Gated,
		Deduplicated: deduplicated,
	}
}

// GateResponse reports the gated flag after a toggle
type GateResponse struct {
	FileID string `json:"file_id"`
	Gated  bool   `json:"gated"`
}

// AssetSummary describes one asset in an owner listing
type AssetSummary struct {
	FileID      string    `json:"file_id"`
	Category    string    `json:"category"`
	ContentType string    `json:"content_type"`
	ByteSize    int64     `json:"byte_size"`
	StorageTier string    `json:"storage_tier"`
	Gated       bool      `json:"gated"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListResponse wraps an owner's asset listing
type ListResponse struct {
	Assets []AssetSummary `json:"assets"`
	Total  int            `json:"total"`
}

// BuildListResponse creates the listing body from domain assets
func BuildListResponse(assets []*media.Asset) *ListResponse {
	out := make([]AssetSummary, 0, len(assets))
	for _, asset := range assets {
		out = append(out, AssetSummary{
			FileID:      asset.FileID,
			Category:    string(asset.Category),
			ContentType: asset.ContentType,
			ByteSize:    asset.ByteSize,
			StorageTier: string(asset.Tier),
			Gated:       asset.Gated,
			CreatedAt:   asset.CreatedAt,
		})
	}
	return &ListResponse{Assets: out, Total: len(out)}
}

// MigrateAcceptedResponse acknowledges a queued migration batch
type MigrateAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Total  int    `json:"total_count"`
}

// BuildMigrateAcceptedResponse creates the 202 body from a queued job
func BuildMigrateAcceptedResponse(job *migration.Job) *MigrateAcceptedResponse {
	return &MigrateAcceptedResponse{
		JobID:  job.ID,
		Status: string(job.Status),
		Total:  job.TotalCount,
	}
}
