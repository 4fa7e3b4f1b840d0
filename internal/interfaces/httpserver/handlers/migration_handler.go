package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/migration"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver/middlewares"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver/requests"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/interfaces/httpserver/responses"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

const (
	progressEventName    = "progress"
	progressPollInterval = time.Second
)

// MigrationHandler exposes bulk tier-migration endpoints.
type MigrationHandler struct {
	service *migration.Service
	tracker *migration.Tracker
	log     zerolog.Logger
}

func NewMigrationHandler(service *migration.Service, tracker *migration.Tracker, log zerolog.Logger) *MigrationHandler {
	return &MigrationHandler{
		service: service,
		tracker: tracker,
		log:     log.With().Str("component", "migration-handler").Logger(),
	}
}

// Start godoc
// @Summary      Start a tier migration batch
// @Description  Queues the caller's assets for background migration to the configured target tier.
// @Tags         migration
// @Accept       json
// @Produce      json
// @Param        request  body  requests.MigrateRequest  true  "Asset ids to migrate"
// @Success      202  {object}  responses.MigrateAcceptedResponse
// @Failure      400  {object}  responses.ErrorResponse
// @Failure      401  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/media/migrate [post]
func (h *MigrationHandler) Start(c *gin.Context) {
	var req requests.MigrateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.HandleNewError(c, platformerrors.ErrorTypeValidation, "asset_ids is required",
			"7e3a9c5f-1b8d-4e6a-9f2c-8d0b4e7a3c56")
		return
	}

	job, err := h.service.Start(c.Request.Context(), ownerFromContext(c), req.AssetIDs)
	if err != nil {
		responses.HandleError(c, err, "failed to start migration")
		return
	}

	c.JSON(http.StatusAccepted, responses.BuildMigrateAcceptedResponse(job))
}

// Get godoc
// @Summary      Get a migration job
// @Description  Returns the persisted job snapshot including per-item counts.
// @Tags         migration
// @Produce      json
// @Param        job_id  path  string  true  "Migration job id"
// @Success      200  {object}  migration.Job
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/media/migrate/{job_id} [get]
func (h *MigrationHandler) Get(c *gin.Context) {
	job, err := h.service.Get(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		responses.HandleError(c, err, "failed to load migration job")
		return
	}
	c.JSON(http.StatusOK, job)
}

// Progress godoc
// @Summary      Stream migration progress
// @Description  Server-sent events. Replays the current snapshot immediately, then streams progress until the job reaches a terminal status.
// @Tags         migration
// @Produce      text/event-stream
// @Param        job_id  path  string  true  "Migration job id"
// @Success      200  {string}  string  "SSE stream of progress events"
// @Failure      404  {object}  responses.ErrorResponse
// @Security     BearerAuth
// @Router       /v1/media/migrate/{job_id}/progress [get]
func (h *MigrationHandler) Progress(c *gin.Context) {
	jobID := c.Param("job_id")

	ch, cancel, ok := h.tracker.Subscribe(jobID)
	if !ok {
		// Not in the live tracker: either an unknown id or a job from a
		// previous process. Fall back to the persisted row.
		h.streamFromStore(c, jobID)
		return
	}
	defer cancel()

	flusher, supported := middlewares.PrepareSSE(c)
	if !supported {
		responses.HandleNewError(c, platformerrors.ErrorTypeInternal, "streaming not supported",
			"0d6f2b8a-4e9c-4a1d-b7f3-5c8e0a2d6f94")
		return
	}

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case p, open := <-ch:
			if !open {
				// The tracker closed us out; a slow consumer may have
				// missed the terminal event so replay the snapshot.
				if snap, found := h.tracker.Snapshot(jobID); found {
					h.sendEvent(c, flusher, snap)
				}
				return
			}
			h.sendEvent(c, flusher, p)
			if p.Status.IsTerminal() {
				return
			}
		}
	}
}

// streamFromStore serves the progress stream by polling the job row. It
// keeps the endpoint usable after a restart, when the in-memory tracker
// no longer knows the job.
func (h *MigrationHandler) streamFromStore(c *gin.Context, jobID string) {
	job, err := h.service.Get(c.Request.Context(), jobID)
	if err != nil {
		responses.HandleError(c, err, "failed to load migration job")
		return
	}

	flusher, supported := middlewares.PrepareSSE(c)
	if !supported {
		responses.HandleNewError(c, platformerrors.ErrorTypeInternal, "streaming not supported",
			"3f9b5d1e-7a4c-4e8b-9d2f-6c0a8e4b7d35")
		return
	}

	last := progressFromJob(job)
	h.sendEvent(c, flusher, last)
	if last.Status.IsTerminal() {
		return
	}

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()
	ctx := c.Request.Context()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := h.service.Get(ctx, jobID)
			if err != nil {
				h.log.Warn().Err(err).Str("job_id", jobID).Msg("progress poll failed, ending stream")
				return
			}
			p := progressFromJob(job)
			if p != last {
				h.sendEvent(c, flusher, p)
				last = p
			}
			if p.Status.IsTerminal() {
				return
			}
		}
	}
}

func (h *MigrationHandler) sendEvent(c *gin.Context, flusher http.Flusher, p migration.Progress) {
	data, err := json.Marshal(p)
	if err != nil {
		h.log.Error().Err(err).Msg("marshal progress event")
		return
	}

	fmt.Fprintf(c.Writer, "event: %s\n", progressEventName)
	fmt.Fprintf(c.Writer, "data: %s\n\n", data)
	flusher.Flush()
}

func progressFromJob(job *migration.Job) migration.Progress {
	return migration.Progress{
		JobID:          job.ID,
		Status:         job.Status,
		ProcessedCount: job.ProcessedCount,
		TotalCount:     job.TotalCount,
		MigratedCount:  job.MigratedCount,
		SkippedCount:   job.SkippedCount,
		FailedCount:    job.FailedCount,
		Message:        job.Message,
	}
}
