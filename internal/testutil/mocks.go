package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/storage"
)

// MockSession is a mock implementation of storage.Session for testing
type MockSession struct {
	// Prompt mocks
	FindPromptByNameFunc func(ctx context.Context, name string) (*models.Prompt, error)
	GetPromptFunc        func(ctx context.Context, id int64) (*models.Prompt, error)
	ListPromptsFunc      func(ctx context.Context) ([]models.Prompt, error)
	CreatePromptFunc     func(ctx context.Context, name, text string) (*models.Prompt, error)
	UpdatePromptFunc     func(ctx context.Context, id int64, name, text string) (*models.Prompt, error)
	DeletePromptFunc     func(ctx context.Context, id int64) error

	// Rate limit mocks
	CountLogEntriesFunc       func(ctx context.Context, userID string, since time.Time) (int, error)
	AppendLogEntryFunc        func(ctx context.Context, entry models.RequestLogEntry) error
	PruneLogEntriesFunc       func(ctx context.Context, before time.Time) (int64, error)
	GetRateLimitRecordFunc    func(ctx context.Context, targetID string) (*models.RateLimitRecord, error)
	UpsertRateLimitRecordFunc func(ctx context.Context, targetID string, at time.Time) error

	mu       sync.Mutex
	released int
}

var errNotImplemented = errors.New("not implemented")

// Prompt methods
func (m *MockSession) FindPromptByName(ctx context.Context, name string) (*models.Prompt, error) {
	if m.FindPromptByNameFunc != nil {
		return m.FindPromptByNameFunc(ctx, name)
	}
	return nil, errNotImplemented
}

func (m *MockSession) GetPrompt(ctx context.Context, id int64) (*models.Prompt, error) {
	if m.GetPromptFunc != nil {
		return m.GetPromptFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *MockSession) ListPrompts(ctx context.Context) ([]models.Prompt, error) {
	if m.ListPromptsFunc != nil {
		return m.ListPromptsFunc(ctx)
	}
	return nil, errNotImplemented
}

func (m *MockSession) CreatePrompt(ctx context.Context, name, text string) (*models.Prompt, error) {
	if m.CreatePromptFunc != nil {
		return m.CreatePromptFunc(ctx, name, text)
	}
	return nil, errNotImplemented
}

func (m *MockSession) UpdatePrompt(ctx context.Context, id int64, name, text string) (*models.Prompt, error) {
	if m.UpdatePromptFunc != nil {
		return m.UpdatePromptFunc(ctx, id, name, text)
	}
	return nil, errNotImplemented
}

func (m *MockSession) DeletePrompt(ctx context.Context, id int64) error {
	if m.DeletePromptFunc != nil {
		return m.DeletePromptFunc(ctx, id)
	}
	return errNotImplemented
}

// Rate limit methods
func (m *MockSession) CountLogEntries(ctx context.Context, userID string, since time.Time) (int, error) {
	if m.CountLogEntriesFunc != nil {
		return m.CountLogEntriesFunc(ctx, userID, since)
	}
	return 0, errNotImplemented
}

func (m *MockSession) AppendLogEntry(ctx context.Context, entry models.RequestLogEntry) error {
	if m.AppendLogEntryFunc != nil {
		return m.AppendLogEntryFunc(ctx, entry)
	}
	return errNotImplemented
}

func (m *MockSession) PruneLogEntries(ctx context.Context, before time.Time) (int64, error) {
	if m.PruneLogEntriesFunc != nil {
		return m.PruneLogEntriesFunc(ctx, before)
	}
	return 0, errNotImplemented
}

func (m *MockSession) GetRateLimitRecord(ctx context.Context, targetID string) (*models.RateLimitRecord, error) {
	if m.GetRateLimitRecordFunc != nil {
		return m.GetRateLimitRecordFunc(ctx, targetID)
	}
	return nil, errNotImplemented
}

func (m *MockSession) UpsertRateLimitRecord(ctx context.Context, targetID string, at time.Time) error {
	if m.UpsertRateLimitRecordFunc != nil {
		return m.UpsertRateLimitRecordFunc(ctx, targetID, at)
	}
	return errNotImplemented
}

// Release counts releases so tests can check the session scope
func (m *MockSession) Release() {
	m.mu.Lock()
	m.released++
	m.mu.Unlock()
}

// Released returns how many times Release was called
func (m *MockSession) Released() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.released
}

// MockStore hands out the same MockSession on every Acquire
type MockStore struct {
	Session    *MockSession
	AcquireErr error
	PingErr    error
}

func (s *MockStore) Acquire(ctx context.Context) (storage.Session, error) {
	if s.AcquireErr != nil {
		return nil, s.AcquireErr
	}
	return s.Session, nil
}

func (s *MockStore) Ping(ctx context.Context) error {
	return s.PingErr
}

func (s *MockStore) Close() error {
	return nil
}

// SentMessage is one message recorded by MockSender
type SentMessage struct {
	Target  models.ChatRef
	Text    string
	ReplyTo int
}

// MockSender records outgoing messages. SendFunc, when set, decides the
// result of each send.
type MockSender struct {
	SendFunc func(target models.ChatRef, text string, replyTo int) error

	mu   sync.Mutex
	sent []SentMessage
}

func (s *MockSender) SendMessage(ctx context.Context, target models.ChatRef, text string, replyTo int) error {
	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{Target: target, Text: text, ReplyTo: replyTo})
	s.mu.Unlock()

	if s.SendFunc != nil {
		return s.SendFunc(target, text, replyTo)
	}
	return nil
}

// Sent returns a copy of all recorded messages
func (s *MockSender) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.sent))
	copy(out, s.sent)
	return out
}
