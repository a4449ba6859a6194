package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/testutil"
)

var fixedNow = time.Date(2026, 10, 15, 3, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T, store *testutil.MockStore, days int) *Scheduler {
	t.Helper()
	s, err := NewScheduler(store, &models.BotConfig{
		LogRetentionDays:  days,
		RetentionSchedule: "0 3 * * *",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestPruneUsesRetentionCutoff(t *testing.T) {
	var gotBefore time.Time
	sess := &testutil.MockSession{
		PruneLogEntriesFunc: func(_ context.Context, before time.Time) (int64, error) {
			gotBefore = before
			return 7, nil
		},
	}
	s := newTestScheduler(t, &testutil.MockStore{Session: sess}, 30)

	pruned, err := s.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if pruned != 7 {
		t.Errorf("pruned = %d, want 7", pruned)
	}
	if want := fixedNow.AddDate(0, 0, -30); !gotBefore.Equal(want) {
		t.Errorf("cutoff = %v, want %v", gotBefore, want)
	}
	if sess.Released() != 1 {
		t.Errorf("session released %d times, want 1", sess.Released())
	}
}

func TestPruneDisabled(t *testing.T) {
	sess := &testutil.MockSession{}
	s := newTestScheduler(t, &testutil.MockStore{Session: sess}, 0)

	pruned, err := s.Prune(context.Background())
	if err != nil || pruned != 0 {
		t.Errorf("Prune() = %d, %v; want 0, nil", pruned, err)
	}
	if sess.Released() != 0 {
		t.Error("disabled retention should not touch storage")
	}
}

func TestPruneErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("acquire", func(t *testing.T) {
		s := newTestScheduler(t, &testutil.MockStore{AcquireErr: boom}, 30)
		if _, err := s.Prune(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Prune() error = %v, want wrapped boom", err)
		}
	})

	t.Run("prune", func(t *testing.T) {
		sess := &testutil.MockSession{
			PruneLogEntriesFunc: func(context.Context, time.Time) (int64, error) { return 0, boom },
		}
		s := newTestScheduler(t, &testutil.MockStore{Session: sess}, 30)
		if _, err := s.Prune(context.Background()); !errors.Is(err, boom) {
			t.Errorf("Prune() error = %v, want wrapped boom", err)
		}
		if sess.Released() != 1 {
			t.Error("session not released after failure")
		}
	})
}

func TestNewSchedulerRejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler(&testutil.MockStore{}, &models.BotConfig{
		LogRetentionDays:  30,
		RetentionSchedule: "every tuesday",
	}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid schedule")
	}
}

func TestStartStopsOnCancel(t *testing.T) {
	s := newTestScheduler(t, &testutil.MockStore{Session: &testutil.MockSession{}}, 30)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Start() error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
