package migration

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/media"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/tier"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/infrastructure/metrics"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/mediaid"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

// itemTimeout bounds a single asset copy so one wedged transfer cannot
// hold a worker slot forever.
const itemTimeout = 10 * time.Minute

// JobStore persists migration jobs for polling consumers.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	FindByID(ctx context.Context, id string) (*Job, error)
	MarkProcessing(ctx context.Context, id string, startedAt time.Time) error
	UpdateProgress(ctx context.Context, id string, processed, migrated, skipped, failed int, failedIDs []string) error
	MarkTerminal(ctx context.Context, job *Job) error
}

// Service runs bulk tier-transition jobs as detached background batches.
// Tier state only ever advances through this service.
type Service struct {
	cfg       *config.Config
	jobs      JobStore
	assets    media.Repository
	primary   media.Storage
	secondary media.Storage
	tracker   *Tracker
	log       zerolog.Logger

	locks    keyedLocks
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewService(
	cfg *config.Config,
	jobs JobStore,
	assets media.Repository,
	primary media.Storage,
	secondary media.Storage,
	tracker *Tracker,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		jobs:      jobs,
		assets:    assets,
		primary:   primary,
		secondary: secondary,
		tracker:   tracker,
		log:       log.With().Str("component", "migration-service").Logger(),
		locks:     keyedLocks{entries: make(map[string]*lockEntry)},
		stopChan:  make(chan struct{}),
	}
}

// Start validates the batch, records the job, and launches it as a
// background task detached from the caller's request lifetime.
func (s *Service) Start(ctx context.Context, ownerID string, assetIDs []string) (*Job, error) {
	select {
	case <-s.stopChan:
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInternal, "migration service is shutting down", nil,
			"d4a8f2c6-1b7e-4d9a-8c3f-5e2b9d6a0f47")
	default:
	}

	if ownerID == "" {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeUnauthorized, "migration requires an authenticated owner", nil,
			"a1c5e9b3-7d2f-4a8c-9e6b-0f4d8a2c6e91")
	}
	if len(assetIDs) == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "asset_ids must not be empty", nil,
			"e7b3d9f1-4c8a-4e2d-b6f9-8a0c5e3d7b24")
	}
	if len(assetIDs) > s.cfg.MigrationMaxBatch {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation,
			fmt.Sprintf("batch exceeds the maximum of %d assets", s.cfg.MigrationMaxBatch), nil,
			"b9e5a1d7-3f6c-4b0e-a8d2-7c4f9b1e5a68")
	}

	target, err := tier.Parse(s.cfg.MigrationTargetTier)
	if err != nil || target == tier.PrimaryOnly {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeInternal, "migration target tier is not configured", err,
			"f2d6b8a4-9c1e-4f7b-8a5d-3e0c6f9b2d81")
	}

	job := &Job{
		ID:         mediaid.NewJobID(),
		OwnerID:    ownerID,
		TargetTier: target,
		AssetIDs:   dedupeIDs(assetIDs),
		Status:     StatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	job.TotalCount = len(job.AssetIDs)

	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}

	s.tracker.Register(Progress{
		JobID:      job.ID,
		Status:     StatusPending,
		TotalCount: job.TotalCount,
	})

	metrics.MigrationJobsActive.Inc()
	s.wg.Add(1)

	// run mutates the job as the batch progresses; callers get a
	// detached snapshot of the accepted state.
	accepted := *job
	go s.run(job)

	s.log.Info().
		Str("job_id", accepted.ID).
		Str("owner_id", ownerID).
		Int("total", accepted.TotalCount).
		Str("target_tier", string(target)).
		Msg("migration job started")

	return &accepted, nil
}

// Get returns a job by id.
func (s *Service) Get(ctx context.Context, jobID string) (*Job, error) {
	if !mediaid.IsValidJobID(jobID) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeValidation, "malformed job id", nil,
			"c8f4a2e6-0d9b-4c1f-a7e3-6b5d8f0a4c29")
	}
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain,
			platformerrors.ErrorTypeNotFound, "migration job not found", nil,
			"5a9d3e7b-2c6f-4a8d-9b1e-4f7c0a3d6e85")
	}
	return job, nil
}

// Stop blocks new jobs and stops scheduling further items; copies already
// in flight run to completion.
func (s *Service) Stop() {
	s.log.Info().Msg("stopping migration service")
	close(s.stopChan)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info().Msg("all migration jobs drained")
	case <-time.After(30 * time.Second):
		s.log.Warn().Msg("migration shutdown timed out")
	}
}

func (s *Service) run(job *Job) {
	defer s.wg.Done()
	defer metrics.MigrationJobsActive.Dec()

	// The batch outlives the triggering request.
	ctx := context.Background()

	startedAt := time.Now().UTC()
	if err := s.jobs.MarkProcessing(ctx, job.ID, startedAt); err != nil {
		s.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to mark job processing")
	}
	job.Status = StatusProcessing
	job.StartedAt = &startedAt

	state := &batchState{total: job.TotalCount}
	s.publish(job, state, StatusProcessing, "", "")

	g := new(errgroup.Group)
	g.SetLimit(s.cfg.MigrationWorkers)

	interrupted := false
scheduling:
	for _, assetID := range job.AssetIDs {
		select {
		case <-s.stopChan:
			interrupted = true
			break scheduling
		default:
		}

		id := assetID
		g.Go(func() error {
			outcome, err := s.migrateOne(job, id)
			if err != nil {
				s.log.Warn().Err(err).
					Str("job_id", job.ID).
					Str("file_id", id).
					Msg("migration item failed")
			}
			state.record(id, outcome)
			s.persistProgress(ctx, job.ID, state)
			s.publish(job, state, StatusProcessing, id, "")
			return nil
		})
	}
	g.Wait()

	status := StatusCompleted
	message := ""
	if interrupted {
		status = StatusFailed
		message = "job interrupted before all items were scheduled"
	}

	finishedAt := time.Now().UTC()
	processed, migrated, skipped, failed, failedIDs := state.counts()
	job.Status = status
	job.ProcessedCount = processed
	job.MigratedCount = migrated
	job.SkippedCount = skipped
	job.FailedCount = failed
	job.FailedIDs = failedIDs
	job.Message = message
	job.FinishedAt = &finishedAt

	if err := s.jobs.MarkTerminal(ctx, job); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("failed to persist terminal job state")
	}
	s.publish(job, state, status, "", message)

	s.log.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("migrated", migrated).
		Int("skipped", skipped).
		Int("failed", failed).
		Msg("migration job finished")
}

// migrateOne advances one asset toward the job's target tier. The per-asset
// lock guarantees an asset is never migrated by two concurrent items.
func (s *Service) migrateOne(job *Job, assetID string) (Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), itemTimeout)
	defer cancel()

	unlock := s.locks.lock(assetID)
	defer unlock()

	asset, err := s.assets.FindByID(ctx, assetID)
	if err != nil {
		return OutcomeFailed, err
	}
	if asset == nil || asset.OwnerID != job.OwnerID {
		return OutcomeFailed, fmt.Errorf("asset %s not found for owner", assetID)
	}
	if asset.Gated {
		// Gated bytes stay where access control can enforce entitlement.
		return OutcomeSkipped, nil
	}
	if asset.Tier.AtOrPast(job.TargetTier) {
		return OutcomeSkipped, nil
	}

	for !asset.Tier.AtOrPast(job.TargetTier) {
		next, ok := asset.Tier.Next()
		if !ok {
			break
		}
		if err := s.advance(ctx, asset, next); err != nil {
			metrics.RecordTierTransition("failed")
			return OutcomeFailed, err
		}
		metrics.RecordTierTransition("ok")
		asset.Tier = next
	}
	return OutcomeMigrated, nil
}

// advance performs the byte movement for a single forward transition and
// flips the tier row only after the movement is confirmed.
func (s *Service) advance(ctx context.Context, asset *media.Asset, next tier.Tier) error {
	key := asset.StorageKey()

	switch next {
	case tier.PrimaryAndSecondary:
		body, contentType, err := s.primary.Download(ctx, key, asset.Gated)
		if err != nil {
			return fmt.Errorf("read primary copy: %w", err)
		}
		defer body.Close()
		if err := s.secondary.Upload(ctx, key, body, asset.ByteSize, contentType, asset.Gated); err != nil {
			return fmt.Errorf("write secondary copy: %w", err)
		}
	case tier.SecondaryOnly:
		// The row flips only once the primary object is gone; a failure
		// between the two leaves the asset reporting both copies, and a
		// rerun of the prune is a no-op on the backend.
		if err := s.primary.Delete(ctx, key, asset.Gated); err != nil {
			return fmt.Errorf("prune primary copy: %w", err)
		}
	default:
		return fmt.Errorf("no byte movement defined for transition to %q", next)
	}

	return s.assets.UpdateTier(ctx, asset.FileID, next)
}

func (s *Service) persistProgress(ctx context.Context, jobID string, state *batchState) {
	processed, migrated, skipped, failed, failedIDs := state.counts()
	if err := s.jobs.UpdateProgress(ctx, jobID, processed, migrated, skipped, failed, failedIDs); err != nil {
		s.log.Warn().Err(err).Str("job_id", jobID).Msg("failed to persist job progress")
	}
}

func (s *Service) publish(job *Job, state *batchState, status Status, currentID, message string) {
	processed, migrated, skipped, failed, _ := state.counts()
	s.tracker.Publish(Progress{
		JobID:          job.ID,
		Status:         status,
		ProcessedCount: processed,
		TotalCount:     job.TotalCount,
		MigratedCount:  migrated,
		SkippedCount:   skipped,
		FailedCount:    failed,
		CurrentAssetID: currentID,
		Message:        message,
	})
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

type batchState struct {
	mu        sync.Mutex
	total     int
	processed int
	migrated  int
	skipped   int
	failed    int
	failedIDs []string
}

func (b *batchState) record(id string, o Outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed++
	switch o {
	case OutcomeMigrated:
		b.migrated++
	case OutcomeSkipped:
		b.skipped++
	case OutcomeFailed:
		b.failed++
		b.failedIDs = append(b.failedIDs, id)
	}
}

func (b *batchState) counts() (processed, migrated, skipped, failed int, failedIDs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, len(b.failedIDs))
	copy(ids, b.failedIDs)
	return b.processed, b.migrated, b.skipped, b.failed, ids
}

// keyedLocks hands out one mutex per asset id, dropped when unused.
type keyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedLocks) lock(key string) func() {
	k.mu.Lock()
	e, ok := k.entries[key]
	if !ok {
		e = &lockEntry{}
		k.entries[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.entries, key)
		}
		k.mu.Unlock()
	}
}
