package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

// Log is the persistent state the limiter reads and writes.
// It is usually the request-scoped storage session.
type Log interface {
	CountLogEntries(ctx context.Context, userID string, since time.Time) (int, error)
	AppendLogEntry(ctx context.Context, entry models.RequestLogEntry) error
	GetRateLimitRecord(ctx context.Context, targetID string) (*models.RateLimitRecord, error)
	UpsertRateLimitRecord(ctx context.Context, targetID string, at time.Time) error
}

// Limiter throttles summarize requests per user and per target
type Limiter struct {
	limit    int
	window   time.Duration
	cooldown time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewLimiter creates a rate limiter allowing limit requests per window for
// each user and one successful summary per cooldown for each target
func NewLimiter(limit int, window, cooldown time.Duration, logger zerolog.Logger) *Limiter {
	return &Limiter{
		limit:    limit,
		window:   window,
		cooldown: cooldown,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "ratelimit").Logger(),
	}
}

// CheckUserRateLimit checks if the user is below the request limit for the
// sliding window
func (l *Limiter) CheckUserRateLimit(ctx context.Context, log Log, userID string) (*models.RateLimitResult, error) {
	since := l.now().Add(-l.window)

	count, err := log.CountLogEntries(ctx, userID, since)
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("user_id", userID).
			Msg("Failed to count log entries")
		return nil, fmt.Errorf("failed to check user rate limit: %w", err)
	}

	l.logger.Debug().
		Str("user_id", userID).
		Int("used", count).
		Int("limit", l.limit).
		Msg("Checking user rate limit")

	if count >= l.limit {
		return &models.RateLimitResult{
			Allowed: false,
			Count:   count,
			Message: fmt.Sprintf(
				"Вы превысили лимит запросов (%d за %s). Попробуйте позже.",
				l.limit, formatHours(l.window),
			),
		}, nil
	}

	return &models.RateLimitResult{Allowed: true, Count: count}, nil
}

// CheckCooldown checks if enough time has passed since the target was last
// summarized. A target without a record is always eligible.
func (l *Limiter) CheckCooldown(ctx context.Context, log Log, targetID string) (*models.RateLimitResult, error) {
	record, err := log.GetRateLimitRecord(ctx, targetID)
	if err != nil {
		l.logger.Error().
			Err(err).
			Str("target_id", targetID).
			Msg("Failed to get rate limit record")
		return nil, fmt.Errorf("failed to check cooldown: %w", err)
	}

	if record == nil || record.LastSummarizedAt.IsZero() {
		return &models.RateLimitResult{Allowed: true}, nil
	}

	elapsed := l.now().Sub(record.LastSummarizedAt.UTC())
	if elapsed < l.cooldown {
		l.logger.Debug().
			Str("target_id", targetID).
			Dur("elapsed", elapsed).
			Dur("cooldown", l.cooldown).
			Msg("Target is cooling down")

		return &models.RateLimitResult{
			Allowed: false,
			Message: fmt.Sprintf(
				"Для этого чата суммирование было недавно. Попробуйте через %s.",
				formatHours(l.cooldown-elapsed),
			),
		}, nil
	}

	return &models.RateLimitResult{Allowed: true}, nil
}

// RecordSuccess marks the target as summarized now
func (l *Limiter) RecordSuccess(ctx context.Context, log Log, targetID string) error {
	if err := log.UpsertRateLimitRecord(ctx, targetID, l.now()); err != nil {
		l.logger.Error().
			Err(err).
			Str("target_id", targetID).
			Msg("Failed to update rate limit record")
		return fmt.Errorf("failed to record success: %w", err)
	}
	return nil
}

// RecordRequest appends a request log entry for the user
func (l *Limiter) RecordRequest(ctx context.Context, log Log, userID, targetID string) error {
	entry := models.RequestLogEntry{
		UserID:   userID,
		TargetID: targetID,
		CalledAt: l.now(),
	}
	if err := log.AppendLogEntry(ctx, entry); err != nil {
		l.logger.Error().
			Err(err).
			Str("user_id", userID).
			Str("target_id", targetID).
			Msg("Failed to append log entry")
		return fmt.Errorf("failed to record request: %w", err)
	}

	l.logger.Debug().
		Str("user_id", userID).
		Str("target_id", targetID).
		Msg("Request recorded")
	return nil
}

// formatHours renders a duration as whole hours, rounding up, at least 1
func formatHours(d time.Duration) string {
	hours := int((d + time.Hour - 1) / time.Hour)
	if hours < 1 {
		hours = 1
	}
	return fmt.Sprintf("%d ч.", hours)
}
