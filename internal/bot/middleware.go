package bot

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"
)

// recoverMiddleware handles panics in message handlers
func (b *Bot) recoverMiddleware(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Panic recovered in handler")
		}
	}()

	handler()
}

// reply answers a command in its chat, logging instead of failing
func (b *Bot) reply(ctx context.Context, chatID int64, replyTo int, text string) {
	if err := b.sender.SendMessage(ctx, chatRef(chatID), text, replyTo); err != nil {
		b.logger.Error().
			Err(err).
			Int64("chat_id", chatID).
			Msg("Failed to send reply")
	}
}

// notifyAdmins posts to the error chat when one is configured. Best effort,
// a failed notification is only logged.
func (b *Bot) notifyAdmins(ctx context.Context, text string) {
	if b.errorChat.IsZero() {
		return
	}
	if err := b.sender.SendMessage(ctx, b.errorChat, text, 0); err != nil {
		b.logger.Error().
			Err(err).
			Str("error_chat", b.errorChat.String()).
			Msg("Failed to notify error chat")
	}
}

// newHTTPClient bounds every Bot API call
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// pollTimeout keeps a long poll inside the HTTP timeout
func pollTimeout(requestTimeout int) int {
	t := requestTimeout - 5
	if t > 60 {
		t = 60
	}
	if t < 1 {
		t = 1
	}
	return t
}
