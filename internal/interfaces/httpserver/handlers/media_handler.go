package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/access"
	domain "github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/auth"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver/requests"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver/responses"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// SupportRequiredHeader names the owner whose support unlocks a gated asset.
const SupportRequiredHeader = "X-Support-Required"

// MediaHandler exposes media ingest and delivery endpoints.
type MediaHandler struct {
	cfg     *config.Config
	service *domain.Service
	access  *access.Service
	log     zerolog.Logger
}

func NewMediaHandler(cfg *config.Config, service *domain.Service, accessService *access.Service, log zerolog.Logger) *MediaHandler {
	return &MediaHandler{
		cfg:     cfg,
		service: service,
		access:  accessService,
		log:     log.With().Str("component", "media-handler").Logger(),
	}
}

// Ingest godoc
// @Summary      Upload media
// @Description  Accepts a multipart upload, deduplicates by content hash and stores the bytes on the primary tier.
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Param        file      formData  file    true   "File to upload"
// @Param        category  formData  string  true   "Media category (audio or image)"
// @Param        gated     formData  boolean false  "Restrict delivery to entitled supporters"
// @Success      201       {object}  responses.IngestResponse
// @Failure      400       {object}  responses.ErrorResponse
// @Failure      500       {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/media [post]
func (h *MediaHandler) Ingest(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "file is required",
			"2f8c5a1d-9e4b-4c7a-b3d6-0a8e5f2c9b47")
		return
	}
	defer file.Close()

	gated := false
	if raw := c.PostForm("gated"); raw != "" {
		gated, err = strconv.ParseBool(raw)
		if err != nil {
			responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "gated must be a boolean",
				"6d1b9e4a-3c8f-4d2b-a7e0-5f9c2b6d8a31")
			return
		}
	}

	asset, deduplicated, err := h.service.Ingest(c.Request.Context(), domain.IngestInput{
		Source:   file,
		Filename: header.Filename,
		Category: c.PostForm("category"),
		OwnerID:  ownerFromContext(c),
		Gated:    gated,
	})
	if err != nil {
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("ingest failed")
		responses.HandleError(c, err, "failed to ingest media")
		return
	}

	c.JSON(http.StatusCreated, responses.BuildIngestResponse(asset, deduplicated))
}

// List godoc
// @Summary      List owned media
// @Description  Returns every asset the authenticated owner has ingested, newest first.
// @Tags         media
// @Produce      json
// @Success      200  {object}  responses.ListResponse
// @Failure      500  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/media [get]
func (h *MediaHandler) List(c *gin.Context) {
	assets, err := h.service.ListByOwner(c.Request.Context(), ownerFromContext(c))
	if err != nil {
		responses.HandleError(c, err, "failed to list media")
		return
	}

	c.JSON(http.StatusOK, responses.BuildListResponse(assets))
}

// Fetch godoc
// @Summary      Resolve media for delivery
// @Description  Redirects to a public URL for ungated media or a short-lived signed URL for gated media the viewer may access.
// @Tags         media
// @Produce      json
// @Param        file_id  path  string  true  "Media file id"
// @Success      307  "redirect to the delivery URL"
// @Failure      401  {object}  responses.ErrorResponse
// @Failure      402  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Failure      502  {object}  responses.ErrorResponse
// @Failure      504  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/media/{file_id} [get]
func (h *MediaHandler) Fetch(c *gin.Context) {
	fileID := c.Param("file_id")
	viewerID := c.GetString(auth.UserIDKey)

	decision, err := h.access.Resolve(c.Request.Context(), fileID, viewerID)
	if err != nil {
		responses.HandleError(c, err, "failed to resolve media access")
		return
	}

	if decision.Outcome == access.OutcomeDenied {
		c.Header(SupportRequiredHeader, decision.OwnerID)
		responses.HandleNewError(c, platformerrors.ErrorTypePaymentRequired, "supporting the owner unlocks this media",
			"4b7e1d8c-6a2f-4e9b-8d0a-3c5f7b9e1d64")
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, decision.URL)
}

// ToggleGate godoc
// @Summary      Toggle gated delivery
// @Description  Owner-only switch between public and supporter-gated delivery. Bytes relocate in the background.
// @Tags         media
// @Accept       json
// @Produce      json
// @Param        file_id  path  string                 true  "Media file id"
// @Param        request  body  requests.GateRequest   true  "Gate toggle"
// @Success      200  {object}  responses.GateResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      403  {object}  responses.ErrorResponse
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/media/{file_id}/gate [post]
func (h *MediaHandler) ToggleGate(c *gin.Context) {
	var req requests.GateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "gated is required",
			"9c4f6b2e-8d1a-4f3c-b5e7-2a0d8c4f6b19")
		return
	}

	asset, err := h.access.SetGate(c.Request.Context(), c.Param("file_id"), ownerFromContext(c), *req.Gated)
	if err != nil {
		responses.HandleError(c, err, "failed to toggle gate")
		return
	}

	c.JSON(http.StatusOK, responses.GateResponse{
		FileID: asset.FileID,
		Gated:  asset.Gated,
	})
}

// ownerFromContext returns the authenticated subject, falling back to the
// anonymous identity when auth is disabled.
func ownerFromContext(c *gin.Context) string {
	if owner := c.GetString(auth.UserIDKey); owner != "" {
		return owner
	}
	return "anonymous"
}
