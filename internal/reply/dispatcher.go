// Package reply delivers long texts to a chat in message-sized chunks.
package reply

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

const (
	// MessageLimit is Telegram's maximum message length in characters
	MessageLimit = 4096
	// ChunkDelay is the pause between consecutive chunks
	ChunkDelay = time.Second
)

// Sender posts one message to a chat, replying to replyTo when non-zero
type Sender interface {
	SendMessage(ctx context.Context, target models.ChatRef, text string, replyTo int) error
}

// TransportError is a failure of the chat platform itself, as opposed to a
// failure of the request being served
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("telegram %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err was raised by the chat platform
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Dispatcher sends texts of any length as ordered chunks
type Dispatcher struct {
	sender Sender
	delay  time.Duration
	logger zerolog.Logger
}

// NewDispatcher creates a reply dispatcher
func NewDispatcher(sender Sender, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		sender: sender,
		delay:  ChunkDelay,
		logger: logger.With().Str("component", "reply").Logger(),
	}
}

// WithDelay overrides the pause between chunks
func (d *Dispatcher) WithDelay(delay time.Duration) *Dispatcher {
	d.delay = delay
	return d
}

// SendChunked sends text as one message when it fits, otherwise as several
// chunks replying to the same message. Stops at the first failed send.
func (d *Dispatcher) SendChunked(ctx context.Context, target models.ChatRef, text string, replyTo int) error {
	chunks := SplitMessage(text, MessageLimit)

	for i, chunk := range chunks {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.delay):
			}
		}

		if err := d.sender.SendMessage(ctx, target, chunk, replyTo); err != nil {
			d.logger.Error().
				Err(err).
				Str("target", target.String()).
				Int("chunk", i+1).
				Int("chunks_total", len(chunks)).
				Msg("Failed to send chunk")
			return err
		}
	}

	if len(chunks) > 1 {
		d.logger.Debug().
			Str("target", target.String()).
			Int("chunks_total", len(chunks)).
			Msg("Sent chunked reply")
	}
	return nil
}

// SplitMessage cuts text into pieces of at most limit characters. A piece
// that has to be cut ends at its last newline, which is dropped; without a
// newline the cut is at the hard boundary.
func SplitMessage(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}

	var chunks []string
	for len(runes) > limit {
		part := runes[:limit]
		cut := lastNewline(part)
		if cut == -1 {
			chunks = append(chunks, string(part))
			runes = runes[limit:]
			continue
		}
		if cut > 0 {
			chunks = append(chunks, string(part[:cut]))
		}
		runes = runes[cut+1:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}

func lastNewline(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
