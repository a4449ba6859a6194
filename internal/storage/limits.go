package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

// CountLogEntries counts the user's logged requests at or after since
func (c *SupabaseStore) CountLogEntries(ctx context.Context, userID string, since time.Time) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var count int64
	err := withRetry(ctx, c.logger, "count_log_entries", func() error {
		var err error
		_, count, err = c.client.From(logEntriesTable).
			Select("id", "exact", true).
			Eq("user_id", userID).
			Gte("called_at", since.UTC().Format(time.RFC3339Nano)).
			Execute()
		if err != nil {
			return fmt.Errorf("failed to count log entries: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.logger.Debug().
		Str("user_id", userID).
		Time("since", since).
		Int64("count", count).
		Msg("Counted log entries")

	return int(count), nil
}

// AppendLogEntry records one successful request
func (c *SupabaseStore) AppendLogEntry(ctx context.Context, entry models.RequestLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// Set called_at if not set
	if entry.CalledAt.IsZero() {
		entry.CalledAt = time.Now().UTC()
	}

	data := map[string]interface{}{
		"user_id":      entry.UserID,
		"root_post_id": entry.TargetID,
		"called_at":    entry.CalledAt.UTC(),
	}

	_, _, err := c.client.From(logEntriesTable).
		Insert(data, false, "", "", "").
		Execute()
	if err != nil {
		c.logger.Error().
			Err(err).
			Str("user_id", entry.UserID).
			Msg("Failed to log request")
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	c.logger.Debug().
		Str("user_id", entry.UserID).
		Str("target_id", entry.TargetID).
		Msg("Request logged successfully")

	return nil
}

// PruneLogEntries deletes log entries older than before
func (c *SupabaseStore) PruneLogEntries(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, count, err := c.client.From(logEntriesTable).
		Delete("", "exact").
		Lt("called_at", before.UTC().Format(time.RFC3339Nano)).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to prune log entries: %w", err)
	}
	return count, nil
}

// GetRateLimitRecord returns nil when the target was never summarized
func (c *SupabaseStore) GetRateLimitRecord(ctx context.Context, targetID string) (*models.RateLimitRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var records []models.RateLimitRecord
	err := withRetry(ctx, c.logger, "get_rate_limit_record", func() error {
		data, _, err := c.client.From(summariesTable).
			Select("root_post_id,summarized_at", "", false).
			Eq("root_post_id", targetID).
			Limit(1, "").
			Execute()
		if err != nil {
			return fmt.Errorf("failed to fetch rate limit record: %w", err)
		}
		return json.Unmarshal(data, &records)
	})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		c.logger.Debug().Str("target_id", targetID).Msg("No rate limit record found")
		return nil, nil
	}

	rec := records[0]
	rec.LastSummarizedAt = rec.LastSummarizedAt.UTC()
	return &rec, nil
}

// UpsertRateLimitRecord sets the last summarization time of a target
func (c *SupabaseStore) UpsertRateLimitRecord(ctx context.Context, targetID string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return withRetry(ctx, c.logger, "upsert_rate_limit_record", func() error {
		data := map[string]interface{}{
			"root_post_id":  targetID,
			"summarized_at": at.UTC(),
		}

		_, _, err := c.client.From(summariesTable).
			Insert(data, true, "root_post_id", "", "").
			Execute()
		if err != nil {
			return fmt.Errorf("failed to upsert rate limit record: %w", err)
		}
		return nil
	})
}
