package window

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

func msg(i int) models.Message {
	return models.Message{
		User: "user",
		Text: strconv.Itoa(i),
		Date: time.Date(2026, 1, 1, 0, 0, i, 0, time.UTC),
	}
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// stores returns every Store implementation with the same capacity
func stores(t *testing.T, capacity int) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), capacity, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRedisStore() error = %v", err)
	}
	t.Cleanup(func() { _ = rs.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(capacity),
		"redis":  rs,
	}
}

func TestSnapshotEmptyChat(t *testing.T) {
	for name, s := range stores(t, 5) {
		t.Run(name, func(t *testing.T) {
			got, err := s.Snapshot(context.Background(), 1, 10)
			if err != nil {
				t.Fatalf("Snapshot() error = %v", err)
			}
			if len(got) != 0 {
				t.Errorf("Snapshot() = %v, want empty", got)
			}
		})
	}
}

func TestSnapshotLimitAndOrder(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 1, want: []string{"3"}},
		{limit: 2, want: []string{"2", "3"}},
		{limit: 3, want: []string{"1", "2", "3"}},
		{limit: 10, want: []string{"1", "2", "3"}},
		{limit: 0, want: []string{"1", "2", "3"}},
	}

	for name, s := range stores(t, 5) {
		t.Run(name, func(t *testing.T) {
			for i := 1; i <= 3; i++ {
				if err := s.Append(ctx, 1, msg(i)); err != nil {
					t.Fatalf("Append() error = %v", err)
				}
			}
			for _, tt := range tests {
				got, err := s.Snapshot(ctx, 1, tt.limit)
				if err != nil {
					t.Fatalf("Snapshot() error = %v", err)
				}
				if !equal(texts(got), tt.want) {
					t.Errorf("Snapshot(limit=%d) = %v, want %v", tt.limit, texts(got), tt.want)
				}
			}
		})
	}
}

func TestAppendEvictsOldest(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 3) {
		t.Run(name, func(t *testing.T) {
			if s.Capacity() != 3 {
				t.Errorf("Capacity() = %d, want 3", s.Capacity())
			}
			for i := 1; i <= 7; i++ {
				_ = s.Append(ctx, 1, msg(i))
			}

			got, _ := s.Snapshot(ctx, 1, 10)
			if want := []string{"5", "6", "7"}; !equal(texts(got), want) {
				t.Errorf("Snapshot() = %v, want %v", texts(got), want)
			}

			got, _ = s.Snapshot(ctx, 1, 2)
			if want := []string{"6", "7"}; !equal(texts(got), want) {
				t.Errorf("Snapshot(2) = %v, want %v", texts(got), want)
			}
		})
	}
}

func TestChatsAreIsolated(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 3) {
		t.Run(name, func(t *testing.T) {
			_ = s.Append(ctx, 1, msg(1))
			_ = s.Append(ctx, 2, msg(2))

			got, _ := s.Snapshot(ctx, 1, 10)
			if want := []string{"1"}; !equal(texts(got), want) {
				t.Errorf("chat 1 = %v, want %v", texts(got), want)
			}
		})
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(3)
	_ = s.Append(ctx, 1, msg(1))

	got, _ := s.Snapshot(ctx, 1, 1)
	got[0].Text = "changed"

	again, _ := s.Snapshot(ctx, 1, 1)
	if again[0].Text != "1" {
		t.Errorf("snapshot mutation leaked into store: %q", again[0].Text)
	}
}

func TestConcurrentAppendAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultCapacity)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(chat int64) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				_ = s.Append(ctx, chat, msg(i))
			}
		}(int64(w))
		go func(chat int64) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				got, _ := s.Snapshot(ctx, chat, 50)
				if len(got) > 50 {
					t.Errorf("snapshot longer than limit: %d", len(got))
					return
				}
			}
		}(int64(w))
	}
	wg.Wait()

	got, _ := s.Snapshot(ctx, 0, 0)
	if len(got) != DefaultCapacity {
		t.Errorf("len = %d, want %d", len(got), DefaultCapacity)
	}
	if got[len(got)-1].Text != "499" {
		t.Errorf("last message = %q, want 499", got[len(got)-1].Text)
	}
}
