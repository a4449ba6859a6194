package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/metrics"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/reply"
)

// Fetcher reads one message of a chat on demand
type Fetcher interface {
	FetchMessage(ctx context.Context, chat models.ChatRef, messageID int) (*models.Message, error)
}

// Platform adapts the Bot API to reply.Sender and Fetcher. Every failed
// call is returned as *reply.TransportError.
type Platform struct {
	api    *tgbotapi.BotAPI
	logger zerolog.Logger
}

// NewPlatform wraps an authorized Bot API client
func NewPlatform(api *tgbotapi.BotAPI, logger zerolog.Logger) *Platform {
	return &Platform{
		api:    api,
		logger: logger.With().Str("component", "telegram").Logger(),
	}
}

// SendMessage sends Markdown text and retries as plain text when Telegram
// cannot parse the markup
func (p *Platform) SendMessage(ctx context.Context, target models.ChatRef, text string, replyTo int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := newMessage(target, text)
	msg.ReplyToMessageID = replyTo
	msg.ParseMode = tgbotapi.ModeMarkdown

	_, err := p.api.Send(msg)
	if err != nil && isParseError(err) {
		p.logger.Debug().Err(err).Str("target", target.String()).Msg("Markdown rejected, resending as plain text")
		msg.ParseMode = ""
		_, err = p.api.Send(msg)
	}
	if err != nil {
		return p.transportError("sendMessage", err)
	}
	return nil
}

// FetchMessage forwards the message into its own chat to read it and deletes
// the copy. The Bot API has no call to read an arbitrary message.
func (p *Platform) FetchMessage(ctx context.Context, chat models.ChatRef, messageID int) (*models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fwd := tgbotapi.ForwardConfig{MessageID: messageID}
	if chat.Username != "" {
		fwd.ChannelUsername = chat.Username
		fwd.FromChannelUsername = chat.Username
	} else {
		fwd.ChatID = chat.ID
		fwd.FromChatID = chat.ID
	}

	copied, err := p.api.Send(fwd)
	if err != nil {
		return nil, p.transportError("forwardMessage", err)
	}

	del := tgbotapi.DeleteMessageConfig{MessageID: copied.MessageID}
	if chat.Username != "" {
		del.ChannelUsername = chat.Username
	} else {
		del.ChatID = chat.ID
	}
	if _, err := p.api.Request(del); err != nil {
		metrics.TelegramErrors.WithLabelValues("deleteMessage").Inc()
		p.logger.Warn().
			Err(err).
			Str("chat", chat.String()).
			Int("message_id", copied.MessageID).
			Msg("Failed to delete forwarded copy")
	}

	return forwardedMessage(&copied), nil
}

func (p *Platform) transportError(op string, err error) error {
	metrics.TelegramErrors.WithLabelValues(op).Inc()
	return &reply.TransportError{Op: op, Err: err}
}

func newMessage(target models.ChatRef, text string) tgbotapi.MessageConfig {
	if target.Username != "" {
		return tgbotapi.NewMessageToChannel(target.Username, text)
	}
	return tgbotapi.NewMessage(target.ID, text)
}

func isParseError(err error) bool {
	var tgErr *tgbotapi.Error
	return errors.As(err, &tgErr) && strings.Contains(tgErr.Message, "can't parse entities")
}

// forwardedMessage extracts the original author, text and date of a forward
func forwardedMessage(m *tgbotapi.Message) *models.Message {
	date := m.Time()
	if m.ForwardDate > 0 {
		date = time.Unix(int64(m.ForwardDate), 0)
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}

	return &models.Message{
		User: forwardedAuthor(m),
		Text: text,
		Date: date.UTC(),
	}
}

func forwardedAuthor(m *tgbotapi.Message) string {
	switch {
	case m.ForwardFrom != nil && m.ForwardFrom.UserName != "":
		return m.ForwardFrom.UserName
	case m.ForwardFrom != nil && m.ForwardFrom.FirstName != "":
		return m.ForwardFrom.FirstName
	case m.ForwardSenderName != "":
		return m.ForwardSenderName
	case m.ForwardSignature != "":
		return m.ForwardSignature
	case m.ForwardFromChat != nil && m.ForwardFromChat.Title != "":
		return m.ForwardFromChat.Title
	default:
		return "Unknown"
	}
}

// displayName is the name a user is addressed by
func displayName(u *tgbotapi.User) string {
	if u == nil {
		return ""
	}
	if u.UserName != "" {
		return u.UserName
	}
	name := strings.TrimSpace(fmt.Sprintf("%s %s", u.FirstName, u.LastName))
	if name == "" {
		return fmt.Sprintf("id%d", u.ID)
	}
	return name
}

// mention addresses the requester in a reply. Only a username can be
// mentioned with @, other users are named in plain text.
func mention(u *tgbotapi.User) string {
	if u != nil && u.UserName != "" {
		return "@" + u.UserName
	}
	return displayName(u)
}
