package requests

// GateRequest toggles the gated flag on an asset.
type GateRequest struct {
	Gated *bool `json:"gated" binding:"required"`
}

// MigrateRequest starts a bulk tier migration over the caller's assets.
type MigrateRequest struct {
	AssetIDs []string `json:"asset_ids" binding:"required,min=1"`
}
