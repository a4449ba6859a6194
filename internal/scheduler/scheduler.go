// Package scheduler runs periodic housekeeping jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/metrics"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/storage"
)

// jobTimeout bounds one retention run
const jobTimeout = 5 * time.Minute

// Scheduler prunes request log entries older than the retention period
type Scheduler struct {
	store     storage.Store
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
	logger    zerolog.Logger
}

// NewScheduler creates a new scheduler. A zero LogRetentionDays disables
// pruning.
func NewScheduler(store storage.Store, config *models.BotConfig, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		store:     store,
		retention: time.Duration(config.LogRetentionDays) * 24 * time.Hour,
		schedule:  config.RetentionSchedule,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return nil, fmt.Errorf("invalid RETENTION_SCHEDULE %q: %w", s.schedule, err)
	}
	return s, nil
}

// Start schedules the retention job and blocks until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) error {
	if s.retention <= 0 {
		s.logger.Info().Msg("Log retention disabled, scheduler idle")
		<-ctx.Done()
		return ctx.Err()
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runRetention(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule retention job: %w", err)
	}
	s.cron.Start()

	s.logger.Info().
		Str("schedule", s.schedule).
		Dur("retention", s.retention).
		Time("next_run", s.cron.Entries()[0].Next).
		Msg("Scheduler started and running")

	<-ctx.Done()

	// Wait for a running job to finish
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("Scheduler stopped")
	return ctx.Err()
}

// runRetention executes one pruning pass
func (s *Scheduler) runRetention(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	s.logger.Info().Msg("Starting scheduled log retention")

	pruned, err := s.Prune(ctx)
	if err != nil {
		s.logger.Error().
			Err(err).
			Msg("Scheduled log retention failed")
		return
	}

	s.logger.Info().
		Int64("pruned", pruned).
		Msg("Scheduled log retention completed successfully")
}

// Prune deletes request log entries older than the retention period and
// returns how many were removed
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	sess, err := s.store.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire storage session: %w", err)
	}
	defer sess.Release()

	cutoff := s.now().Add(-s.retention)
	pruned, err := sess.PruneLogEntries(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune log entries before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	metrics.LogEntriesPruned.Add(float64(pruned))
	return pruned, nil
}
