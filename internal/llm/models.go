package llm

import (
	"context"
	"errors"
)

var (
	// ErrConnection covers transport failures, API errors and provider rate limits
	ErrConnection = errors.New("llm connection failure")
	// ErrTimeout is returned when the completion exceeds the configured timeout
	ErrTimeout = errors.New("llm request timed out")
)

// Completion is the raw provider answer with reported token usage
type Completion struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// Provider sends one system + user message pair to a model
type Provider interface {
	Name() string
	Complete(ctx context.Context, systemPrompt, userText string) (*Completion, error)
	Close() error
}
