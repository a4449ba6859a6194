package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

// dialect captures the differences between the supported SQL engines
type dialect struct {
	name       string
	driverName string
	// numbered placeholders ($1, $2) instead of ?
	numbered bool
}

var (
	sqliteDialect   = dialect{name: "sqlite", driverName: "sqlite3"}
	postgresDialect = dialect{name: "postgres", driverName: "pgx", numbered: true}
)

// rebind rewrites ? placeholders for engines that want $n
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// SQLStore keeps prompts and rate limit state in SQLite or PostgreSQL
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	timeout time.Duration
	logger  zerolog.Logger
}

// NewSQLStore opens the database, verifies the connection and applies migrations
func NewSQLStore(ctx context.Context, d dialect, dsn string, timeout int, logger zerolog.Logger) (*SQLStore, error) {
	if d.name == sqliteDialect.name {
		// Ensure directory exists
		if dir := filepath.Dir(dsn); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		dsn += "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.name, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", d.name, err)
	}

	if err := runMigrations(db, d); err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLStore{
		db:      db,
		dialect: d,
		timeout: time.Duration(timeout) * time.Second,
		logger:  logger.With().Str("component", "storage").Str("backend", d.name).Logger(),
	}
	store.logger.Info().Msg("Database ready")

	return store, nil
}

// Acquire takes a dedicated connection from the pool for one request
func (s *SQLStore) Acquire(ctx context.Context) (Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire database session: %w", err)
	}
	return &sqlSession{conn: conn, store: s}, nil
}

// Ping checks the database connection
func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}

type sqlSession struct {
	conn  *sql.Conn
	store *SQLStore
}

// Release returns the connection to the pool
func (s *sqlSession) Release() {
	if err := s.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		s.store.logger.Warn().Err(err).Msg("Failed to release database session")
	}
}

func (s *sqlSession) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, s.store.timeout)
	defer cancel()
	return s.conn.ExecContext(ctx, s.store.dialect.rebind(query), args...)
}

func (s *sqlSession) queryRow(ctx context.Context, query string, args []any, dest ...any) error {
	ctx, cancel := context.WithTimeout(ctx, s.store.timeout)
	defer cancel()
	return s.conn.QueryRowContext(ctx, s.store.dialect.rebind(query), args...).Scan(dest...)
}

// FindPromptByName returns nil when no prompt has this name
func (s *sqlSession) FindPromptByName(ctx context.Context, name string) (*models.Prompt, error) {
	p := &models.Prompt{}
	err := s.queryRow(ctx, `SELECT id, name, text FROM tg_chats_prompts WHERE name = ?`,
		[]any{name}, &p.ID, &p.Name, &p.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find prompt %q: %w", name, err)
	}
	return p, nil
}

// GetPrompt returns nil when no prompt has this id
func (s *sqlSession) GetPrompt(ctx context.Context, id int64) (*models.Prompt, error) {
	p := &models.Prompt{}
	err := s.queryRow(ctx, `SELECT id, name, text FROM tg_chats_prompts WHERE id = ?`,
		[]any{id}, &p.ID, &p.Name, &p.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prompt %d: %w", id, err)
	}
	return p, nil
}

// ListPrompts returns all prompts ordered by name
func (s *sqlSession) ListPrompts(ctx context.Context) ([]models.Prompt, error) {
	ctx, cancel := context.WithTimeout(ctx, s.store.timeout)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, `SELECT id, name, text FROM tg_chats_prompts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	defer rows.Close()

	prompts := []models.Prompt{}
	for rows.Next() {
		var p models.Prompt
		if err := rows.Scan(&p.ID, &p.Name, &p.Text); err != nil {
			return nil, fmt.Errorf("failed to scan prompt: %w", err)
		}
		prompts = append(prompts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list prompts: %w", err)
	}
	return prompts, nil
}

// CreatePrompt inserts a prompt and returns it with its id
func (s *sqlSession) CreatePrompt(ctx context.Context, name, text string) (*models.Prompt, error) {
	p := &models.Prompt{Name: name, Text: text}
	err := s.queryRow(ctx, `INSERT INTO tg_chats_prompts (name, text) VALUES (?, ?) RETURNING id`,
		[]any{name, text}, &p.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePrompt
		}
		return nil, fmt.Errorf("failed to create prompt: %w", err)
	}

	s.store.logger.Info().Int64("prompt_id", p.ID).Str("name", name).Msg("Prompt created")
	return p, nil
}

// UpdatePrompt renames and rewrites a prompt
func (s *sqlSession) UpdatePrompt(ctx context.Context, id int64, name, text string) (*models.Prompt, error) {
	res, err := s.exec(ctx, `UPDATE tg_chats_prompts SET name = ?, text = ? WHERE id = ?`, name, text, id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicatePrompt
		}
		return nil, fmt.Errorf("failed to update prompt %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrPromptNotFound
	}

	s.store.logger.Info().Int64("prompt_id", id).Str("name", name).Msg("Prompt updated")
	return &models.Prompt{ID: id, Name: name, Text: text}, nil
}

// DeletePrompt removes a prompt
func (s *sqlSession) DeletePrompt(ctx context.Context, id int64) error {
	res, err := s.exec(ctx, `DELETE FROM tg_chats_prompts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete prompt %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPromptNotFound
	}

	s.store.logger.Info().Int64("prompt_id", id).Msg("Prompt deleted")
	return nil
}

// CountLogEntries counts the user's logged requests at or after since
func (s *sqlSession) CountLogEntries(ctx context.Context, userID string, since time.Time) (int, error) {
	var count int
	err := withRetry(ctx, s.store.logger, "count_log_entries", func() error {
		return s.queryRow(ctx, `SELECT COUNT(*) FROM log_entries WHERE user_id = ? AND called_at >= ?`,
			[]any{userID, since.UTC()}, &count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// AppendLogEntry records one successful request
func (s *sqlSession) AppendLogEntry(ctx context.Context, entry models.RequestLogEntry) error {
	if entry.CalledAt.IsZero() {
		entry.CalledAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, `INSERT INTO log_entries (user_id, root_post_id, called_at) VALUES (?, ?, ?)`,
		entry.UserID, entry.TargetID, entry.CalledAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	s.store.logger.Debug().
		Str("user_id", entry.UserID).
		Str("target_id", entry.TargetID).
		Msg("Request logged successfully")
	return nil
}

// PruneLogEntries deletes log entries older than before
func (s *sqlSession) PruneLogEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM log_entries WHERE called_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune log entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// GetRateLimitRecord returns nil when the target was never summarized
func (s *sqlSession) GetRateLimitRecord(ctx context.Context, targetID string) (*models.RateLimitRecord, error) {
	rec := &models.RateLimitRecord{TargetID: targetID}
	err := withRetry(ctx, s.store.logger, "get_rate_limit_record", func() error {
		err := s.queryRow(ctx, `SELECT summarized_at FROM tg_chats_summaries WHERE root_post_id = ?`,
			[]any{targetID}, &rec.LastSummarizedAt)
		if errors.Is(err, sql.ErrNoRows) {
			rec = nil
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if rec != nil {
		rec.LastSummarizedAt = rec.LastSummarizedAt.UTC()
	}
	return rec, nil
}

// UpsertRateLimitRecord sets the last summarization time of a target
func (s *sqlSession) UpsertRateLimitRecord(ctx context.Context, targetID string, at time.Time) error {
	return withRetry(ctx, s.store.logger, "upsert_rate_limit_record", func() error {
		_, err := s.exec(ctx, `
			INSERT INTO tg_chats_summaries (root_post_id, summarized_at) VALUES (?, ?)
			ON CONFLICT (root_post_id) DO UPDATE SET summarized_at = excluded.summarized_at`,
			targetID, at.UTC())
		if err != nil {
			return fmt.Errorf("failed to upsert rate limit record: %w", err)
		}
		return nil
	})
}

// isUniqueViolation recognises unique constraint errors from both drivers
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
