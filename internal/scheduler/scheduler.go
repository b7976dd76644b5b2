package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"animerank/ingestion/internal/config"
	"animerank/ingestion/internal/ingest"
	"animerank/ingestion/internal/season"
)

// Scheduler runs the nightly sync of the current season. Nightly works well
// for this source: episode scores settle over the day and the upstream API
// rate limits make continuous polling pointless.
type Scheduler struct {
	cfg      *config.Config
	runner   *ingest.Runner
	cron     *cron.Cron
	stopChan chan struct{}

	// running prevents a slow sync from overlapping the next trigger.
	running sync.Mutex
}

// NewScheduler creates a new scheduler instance
func NewScheduler(cfg *config.Config, runner *ingest.Runner) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		runner:   runner,
		cron:     cron.New(),
		stopChan: make(chan struct{}),
	}
}

// Start registers the nightly sync job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	log.Info().Msg("Scheduler starting...")

	if _, err := s.cron.AddFunc(s.cfg.NightlySyncCron, func() {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		default:
		}
		if err := s.SyncCurrentSeason(ctx); err != nil {
			log.Error().Err(err).Msg("Nightly season sync failed")
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule nightly sync: %w", err)
	}

	s.cron.Start()
	log.Info().
		Str("schedule", s.cfg.NightlySyncCron).
		Msg("Nightly season sync scheduled")

	return nil
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler...")

	if s.cron != nil {
		ctx := s.cron.Stop()
		// Let an in-flight job finish before returning.
		select {
		case <-ctx.Done():
		case <-time.After(30 * time.Second):
			log.Warn().Msg("Timed out waiting for running sync job")
		}
	}

	close(s.stopChan)
	log.Info().Msg("Scheduler stopped")
}

// SyncCurrentSeason resolves the season containing the current date and runs
// a full sync for it. Also used for the optional sync on startup.
func (s *Scheduler) SyncCurrentSeason(ctx context.Context) error {
	if !s.running.TryLock() {
		log.Warn().Msg("Previous sync still running, skipping this trigger")
		return nil
	}
	defer s.running.Unlock()

	name, year := season.Current(time.Now())
	log.Info().
		Str("season", name).
		Int("year", year).
		Msg("Running scheduled season sync")

	report, err := s.runner.Run(ctx, ingest.Params{
		Season:        name,
		Year:          year,
		MaxPages:      s.cfg.MaxPages,
		MinPopularity: s.cfg.MinPopularity,
	})
	if err != nil {
		return err
	}
	if report.Empty() && len(report.Errors) > 0 {
		return fmt.Errorf("season sync produced nothing: %s", report.Errors[0])
	}

	return nil
}
