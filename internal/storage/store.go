package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

var (
	// ErrDuplicatePrompt is returned when a prompt name is already taken
	ErrDuplicatePrompt = errors.New("prompt with this name already exists")
	// ErrPromptNotFound is returned by updates and deletes of a missing prompt
	ErrPromptNotFound = errors.New("prompt not found")
)

// PromptRepository reads and edits named system prompts.
// Lookups of a missing prompt return nil without an error.
type PromptRepository interface {
	FindPromptByName(ctx context.Context, name string) (*models.Prompt, error)
	GetPrompt(ctx context.Context, id int64) (*models.Prompt, error)
	ListPrompts(ctx context.Context) ([]models.Prompt, error)
	CreatePrompt(ctx context.Context, name, text string) (*models.Prompt, error)
	UpdatePrompt(ctx context.Context, id int64, name, text string) (*models.Prompt, error)
	DeletePrompt(ctx context.Context, id int64) error
}

// RequestLogRepository holds the rate limiting state
type RequestLogRepository interface {
	CountLogEntries(ctx context.Context, userID string, since time.Time) (int, error)
	AppendLogEntry(ctx context.Context, entry models.RequestLogEntry) error
	PruneLogEntries(ctx context.Context, before time.Time) (int64, error)
	GetRateLimitRecord(ctx context.Context, targetID string) (*models.RateLimitRecord, error)
	UpsertRateLimitRecord(ctx context.Context, targetID string, at time.Time) error
}

// Session is a short-lived unit of work. It must be released by its owner.
type Session interface {
	PromptRepository
	RequestLogRepository
	Release()
}

// Store hands out sessions against one backend
type Store interface {
	Acquire(ctx context.Context) (Session, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the backend selected by the scheme of databaseURL:
// sqlite://, postgres:// (or postgresql://) and https:// for Supabase.
func Open(ctx context.Context, databaseURL, supabaseKey string, timeout int, logger zerolog.Logger) (Store, error) {
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		return NewSQLStore(ctx, sqliteDialect, sqlitePath(databaseURL), timeout, logger)
	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		return NewSQLStore(ctx, postgresDialect, databaseURL, timeout, logger)
	case strings.HasPrefix(databaseURL, "https://"):
		return NewSupabaseStore(databaseURL, supabaseKey, timeout, logger)
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL scheme: %q", databaseURL)
	}
}

// sqlitePath turns sqlite://<path> into a file path. The SQLAlchemy
// spelling sqlite:///./file.db is accepted as a relative path.
func sqlitePath(databaseURL string) string {
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	if strings.HasPrefix(path, "/./") || strings.HasPrefix(path, "/../") {
		path = path[1:]
	}
	return path
}

// withRetry executes a function with retry logic
func withRetry(ctx context.Context, logger zerolog.Logger, operation string, fn func() error) error {
	maxRetries := 2
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Msg("Retrying operation")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, ErrDuplicatePrompt) || errors.Is(lastErr, ErrPromptNotFound) {
			return lastErr
		}

		logger.Error().
			Err(lastErr).
			Str("operation", operation).
			Int("attempt", attempt+1).
			Msg("Operation failed")
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, maxRetries+1, lastErr)
}
