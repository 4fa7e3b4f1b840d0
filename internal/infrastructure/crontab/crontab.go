package crontab

import (
	"context"
	"time"

	"github.com/mileusna/crontab"
	"github.com/rs/zerolog"

	"github.com/zzstoatzz/plyr.fm-sub000/internal/config"
	"github.com/zzstoatzz/plyr.fm-sub000/internal/domain/migration"
	"github.com/zzstoatzz/plyr.fm-sub000/utils/platformerrors"
)

const (
	// SweepSchedule runs the retention sweeps every ten minutes.
	SweepSchedule = "*/10 * * * *"
	// CronJobTimeout bounds each scheduled job execution.
	CronJobTimeout = 2 * time.Minute
)

// JobStore is the subset of the migration job repository the sweeper needs.
type JobStore interface {
	FailStale(ctx context.Context, olderThan time.Time) (int64, error)
}

type Crontab struct {
	ctab    *crontab.Crontab
	cfg     *config.Config
	tracker *migration.Tracker
	jobs    JobStore
	log     zerolog.Logger
}

func NewCrontab(
	cfg *config.Config,
	tracker *migration.Tracker,
	jobs JobStore,
	log zerolog.Logger,
) *Crontab {
	return &Crontab{
		ctab:    crontab.New(),
		cfg:     cfg,
		tracker: tracker,
		jobs:    jobs,
		log:     log,
	}
}

func (c *Crontab) Run(ctx context.Context) error {
	// execute once on server start
	c.sweep(ctx)

	if err := c.ctab.AddJob(SweepSchedule, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), CronJobTimeout)
		defer cancel()
		c.sweep(jobCtx)
	}); err != nil {
		return platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to add retention sweep job")
	}
	c.log.Info().
		Str("schedule", SweepSchedule).
		Dur("progress_retain", c.cfg.ProgressRetainFor).
		Dur("job_stale_after", c.cfg.JobStaleAfter).
		Msg("retention sweeps scheduled")

	<-ctx.Done()
	c.ctab.Shutdown()
	return nil
}

// sweep drops finished progress entries past their retention window and
// marks abandoned migration jobs failed so pollers still reach a
// terminal status after a crash.
func (c *Crontab) sweep(ctx context.Context) {
	if dropped := c.tracker.Sweep(c.cfg.ProgressRetainFor); dropped > 0 {
		c.log.Debug().Int("entries", dropped).Msg("swept finished progress entries")
	}

	cutoff := time.Now().Add(-c.cfg.JobStaleAfter)
	marked, err := c.jobs.FailStale(ctx, cutoff)
	if err != nil {
		c.log.Error().Err(err).Msg("failed to sweep stale migration jobs")
		return
	}
	if marked > 0 {
		c.log.Warn().Int64("jobs", marked).Msg("marked abandoned migration jobs failed")
	}
}
