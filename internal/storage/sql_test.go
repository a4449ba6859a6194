package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

func newTestSession(t *testing.T) (*SQLStore, Session) {
	t.Helper()
	ctx := context.Background()

	store, err := NewSQLStore(ctx, sqliteDialect, filepath.Join(t.TempDir(), "test.db"), 5, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewSQLStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	sess, err := store.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	t.Cleanup(sess.Release)

	return store, sess
}

func TestRebind(t *testing.T) {
	q := `SELECT * FROM t WHERE a = ? AND b >= ?`
	if got := sqliteDialect.rebind(q); got != q {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
	want := `SELECT * FROM t WHERE a = $1 AND b >= $2`
	if got := postgresDialect.rebind(q); got != want {
		t.Errorf("postgres rebind = %q, want %q", got, want)
	}
}

func TestSQLitePath(t *testing.T) {
	tests := map[string]string{
		"sqlite://./summaries.db":     "./summaries.db",
		"sqlite:///./summaries.db":    "./summaries.db",
		"sqlite:///var/lib/bot/db.db": "/var/lib/bot/db.db",
		"sqlite://data/bot.db":        "data/bot.db",
	}
	for in, want := range tests {
		if got := sqlitePath(in); got != want {
			t.Errorf("sqlitePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "mysql://localhost/db", "", 5, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "twice.db")

	first, err := NewSQLStore(ctx, sqliteDialect, path, 5, zerolog.Nop())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	first.Close()

	second, err := NewSQLStore(ctx, sqliteDialect, path, 5, zerolog.Nop())
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	second.Close()
}

func TestPromptCRUD(t *testing.T) {
	ctx := context.Background()
	_, sess := newTestSession(t)

	missing, err := sess.FindPromptByName(ctx, "general")
	if err != nil {
		t.Fatalf("FindPromptByName() error = %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing prompt, got %+v", missing)
	}

	general, err := sess.CreatePrompt(ctx, "general", "Summarize the chat")
	if err != nil {
		t.Fatalf("CreatePrompt() error = %v", err)
	}
	if general.ID == 0 {
		t.Error("created prompt has no id")
	}
	if _, err := sess.CreatePrompt(ctx, "meetings", "List decisions"); err != nil {
		t.Fatalf("CreatePrompt() error = %v", err)
	}

	if _, err := sess.CreatePrompt(ctx, "general", "again"); !errors.Is(err, ErrDuplicatePrompt) {
		t.Errorf("duplicate create error = %v, want ErrDuplicatePrompt", err)
	}

	found, err := sess.FindPromptByName(ctx, "general")
	if err != nil || found == nil || found.Text != "Summarize the chat" {
		t.Fatalf("FindPromptByName() = %+v, %v", found, err)
	}

	updated, err := sess.UpdatePrompt(ctx, general.ID, "general", "Summarize briefly")
	if err != nil {
		t.Fatalf("UpdatePrompt() error = %v", err)
	}
	if updated.Text != "Summarize briefly" {
		t.Errorf("updated text = %q", updated.Text)
	}
	if _, err := sess.UpdatePrompt(ctx, general.ID, "meetings", "clash"); !errors.Is(err, ErrDuplicatePrompt) {
		t.Errorf("rename onto existing name error = %v, want ErrDuplicatePrompt", err)
	}
	if _, err := sess.UpdatePrompt(ctx, 9999, "x", "y"); !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("update missing error = %v, want ErrPromptNotFound", err)
	}

	list, err := sess.ListPrompts(ctx)
	if err != nil {
		t.Fatalf("ListPrompts() error = %v", err)
	}
	if len(list) != 2 || list[0].Name != "general" || list[1].Name != "meetings" {
		t.Errorf("ListPrompts() = %+v", list)
	}

	if err := sess.DeletePrompt(ctx, general.ID); err != nil {
		t.Fatalf("DeletePrompt() error = %v", err)
	}
	if err := sess.DeletePrompt(ctx, general.ID); !errors.Is(err, ErrPromptNotFound) {
		t.Errorf("second delete error = %v, want ErrPromptNotFound", err)
	}
	got, err := sess.GetPrompt(ctx, general.ID)
	if err != nil || got != nil {
		t.Errorf("GetPrompt() after delete = %+v, %v", got, err)
	}
}

func TestLogEntriesCountAndPrune(t *testing.T) {
	ctx := context.Background()
	_, sess := newTestSession(t)

	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	entries := []models.RequestLogEntry{
		{UserID: "42", TargetID: "-100", CalledAt: now.Add(-3 * time.Hour)},
		{UserID: "42", TargetID: "-100", CalledAt: now.Add(-30 * time.Minute)},
		{UserID: "42", TargetID: "-200", CalledAt: now.Add(-1 * time.Minute)},
		{UserID: "7", TargetID: "-100", CalledAt: now.Add(-1 * time.Minute)},
	}
	for _, e := range entries {
		if err := sess.AppendLogEntry(ctx, e); err != nil {
			t.Fatalf("AppendLogEntry() error = %v", err)
		}
	}

	count, err := sess.CountLogEntries(ctx, "42", now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("CountLogEntries() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountLogEntries() = %d, want 2", count)
	}

	// Boundary is inclusive
	count, err = sess.CountLogEntries(ctx, "42", now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("CountLogEntries() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountLogEntries() at boundary = %d, want 2", count)
	}

	pruned, err := sess.PruneLogEntries(ctx, now.Add(-time.Hour))
	if err != nil {
		t.Fatalf("PruneLogEntries() error = %v", err)
	}
	if pruned != 1 {
		t.Errorf("PruneLogEntries() = %d, want 1", pruned)
	}

	count, _ = sess.CountLogEntries(ctx, "42", now.Add(-24*time.Hour))
	if count != 2 {
		t.Errorf("count after prune = %d, want 2", count)
	}
}

func TestRateLimitRecordUpsert(t *testing.T) {
	ctx := context.Background()
	store, sess := newTestSession(t)

	rec, err := sess.GetRateLimitRecord(ctx, "-100123")
	if err != nil {
		t.Fatalf("GetRateLimitRecord() error = %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}

	first := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	second := first.Add(2 * time.Hour)

	if err := sess.UpsertRateLimitRecord(ctx, "-100123", first); err != nil {
		t.Fatalf("UpsertRateLimitRecord() error = %v", err)
	}
	if err := sess.UpsertRateLimitRecord(ctx, "-100123", second); err != nil {
		t.Fatalf("UpsertRateLimitRecord() error = %v", err)
	}

	rec, err = sess.GetRateLimitRecord(ctx, "-100123")
	if err != nil || rec == nil {
		t.Fatalf("GetRateLimitRecord() = %+v, %v", rec, err)
	}
	if !rec.LastSummarizedAt.Equal(second) {
		t.Errorf("LastSummarizedAt = %v, want %v", rec.LastSummarizedAt, second)
	}
	if rec.LastSummarizedAt.Location() != time.UTC {
		t.Errorf("LastSummarizedAt location = %v, want UTC", rec.LastSummarizedAt.Location())
	}

	var rows int
	if err := store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM tg_chats_summaries WHERE root_post_id = ?`, "-100123").Scan(&rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Errorf("rows for target = %d, want 1", rows)
	}
}

func TestAcquireReleaseReturnsConnection(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestSession(t)

	for i := 0; i < 20; i++ {
		sess, err := store.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() #%d error = %v", i, err)
		}
		if _, err := sess.ListPrompts(ctx); err != nil {
			t.Fatalf("ListPrompts() error = %v", err)
		}
		sess.Release()
	}

	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
