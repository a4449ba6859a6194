// Package window keeps the most recent messages of every chat so a summary
// can be requested over them later.
package window

import (
	"context"
	"sync"

	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

// DefaultCapacity is the number of messages kept per chat
const DefaultCapacity = 200

// Store is a per-chat bounded history. Appends beyond capacity evict the
// oldest message. Snapshot returns up to limit most recent messages,
// oldest first.
type Store interface {
	Append(ctx context.Context, chatID int64, msg models.Message) error
	Snapshot(ctx context.Context, chatID int64, limit int) ([]models.Message, error)
	Capacity() int
}

// ring is a fixed-size circular buffer
type ring struct {
	buf   []models.Message
	start int
	size  int
}

func (r *ring) push(msg models.Message) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = msg
		r.size++
		return
	}
	r.buf[r.start] = msg
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) tail(limit int) []models.Message {
	if limit <= 0 || limit > r.size {
		limit = r.size
	}
	out := make([]models.Message, limit)
	offset := r.size - limit
	for i := 0; i < limit; i++ {
		out[i] = r.buf[(r.start+offset+i)%len(r.buf)]
	}
	return out
}

// MemoryStore keeps histories in process memory. Readers may miss a message
// appended concurrently with their snapshot.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[int64]*ring
	capacity int
}

// NewMemoryStore creates an in-memory window store
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		chats:    make(map[int64]*ring),
		capacity: capacity,
	}
}

// Append adds a message to the chat history
func (s *MemoryStore) Append(_ context.Context, chatID int64, msg models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.chats[chatID]
	if !ok {
		r = &ring{buf: make([]models.Message, s.capacity)}
		s.chats[chatID] = r
	}
	r.push(msg)
	return nil
}

// Snapshot copies the latest messages of a chat
func (s *MemoryStore) Snapshot(_ context.Context, chatID int64, limit int) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.chats[chatID]
	if !ok {
		return []models.Message{}, nil
	}
	return r.tail(limit), nil
}

// Capacity returns the per-chat limit
func (s *MemoryStore) Capacity() int {
	return s.capacity
}
