// -----------------------------------------------------------------------
// Sweeper - startup recovery and periodic stale-job sweep
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/lukisan/renderwatch/internal/common"
	"github.com/lukisan/renderwatch/internal/interfaces"
)

// Sweeper restarts monitors for in-flight jobs that lost theirs: once at
// startup for everything in flight, then periodically for jobs whose record
// has gone stale. StartMonitoring is idempotent, so sweeping a job that is
// already monitored is harmless.
type Sweeper struct {
	jobs   interfaces.JobService
	engine interfaces.ReconciliationEngine
	config *common.SweeperConfig
	cron   *cron.Cron
	logger arbor.ILogger
}

// NewSweeper creates a sweeper. Nothing runs until Start.
func NewSweeper(jobs interfaces.JobService, engine interfaces.ReconciliationEngine, config *common.SweeperConfig, logger arbor.ILogger) *Sweeper {
	return &Sweeper{
		jobs:   jobs,
		engine: engine,
		config: config,
		cron:   cron.New(),
		logger: logger,
	}
}

// RecoverInFlight restarts a monitor for every persisted in-flight job.
// Called once at startup so a process restart never strands jobs.
func (s *Sweeper) RecoverInFlight(ctx context.Context) error {
	jobs, err := s.jobs.GetInFlightJobs(ctx)
	if err != nil {
		return fmt.Errorf("failed to load in-flight jobs: %w", err)
	}

	for _, job := range jobs {
		s.engine.StartMonitoring(job.ID, job.ExternalTaskID, job.OwnerID)
	}

	s.logger.Info().
		Int("count", len(jobs)).
		Msg("Recovered in-flight job monitors")

	return nil
}

// Start registers the periodic sweep on the configured cron schedule.
func (s *Sweeper) Start() error {
	if !s.config.Enabled {
		s.logger.Info().Msg("Stale-job sweeper disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.config.Schedule, s.sweep); err != nil {
		return fmt.Errorf("invalid sweeper schedule %q: %w", s.config.Schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", s.config.Schedule).
		Str("stale_threshold", s.config.StaleThreshold.String()).
		Msg("Stale-job sweeper started")

	return nil
}

// Stop halts the cron scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Stale-job sweeper stopped")
}

// sweep restarts monitors for in-flight jobs untouched for longer than the
// stale threshold. Catches monitors lost to panics or missed webhooks.
func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	threshold := time.Now().Add(-s.config.StaleThreshold)
	stale, err := s.jobs.GetStaleInFlightJobs(ctx, threshold)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale-job sweep failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	for _, job := range stale {
		s.engine.StartMonitoring(job.ID, job.ExternalTaskID, job.OwnerID)
	}

	s.logger.Warn().
		Int("count", len(stale)).
		Msg("Restarted monitors for stale in-flight jobs")
}
