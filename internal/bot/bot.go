package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/ratelimit"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/reply"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/storage"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/summarizer"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/window"
)

// Processor runs one summarization and reports whether it was delivered
type Processor interface {
	Process(ctx context.Context, req summarizer.Request) bool
}

// Bot represents the Telegram bot
type Bot struct {
	api       *tgbotapi.BotAPI
	sender    reply.Sender
	fetcher   Fetcher
	config    *models.BotConfig
	store     storage.Store
	history   window.Store
	limiter   *ratelimit.Limiter
	processor Processor
	inFlight  *inFlight
	errorChat models.ChatRef
	logger    zerolog.Logger
	wg        sync.WaitGroup // Tracks active handlers for graceful shutdown

	// Command handlers run on their own context so stopping the update loop
	// does not abort summaries already in progress. It is cancelled only when
	// Wait gives up.
	handlerCtx   context.Context
	stopHandlers context.CancelFunc
}

// New creates a new bot instance
func New(
	config *models.BotConfig,
	store storage.Store,
	history window.Store,
	limiter *ratelimit.Limiter,
	processor Processor,
	logger zerolog.Logger,
) (*Bot, error) {
	// Create Telegram bot API client with the configured HTTP timeout
	api, err := tgbotapi.NewBotAPIWithClient(
		config.TelegramToken,
		tgbotapi.APIEndpoint,
		newHTTPClient(time.Duration(config.RequestTimeout)*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	// Set debug mode based on log level
	api.Debug = config.LogLevel == "debug"

	logger.Info().
		Str("username", api.Self.UserName).
		Int64("id", api.Self.ID).
		Msg("Telegram bot authorized")

	platform := NewPlatform(api, logger)
	b := newBot(config, store, history, limiter, processor, platform, platform, logger)
	b.api = api
	return b, nil
}

func newBot(
	config *models.BotConfig,
	store storage.Store,
	history window.Store,
	limiter *ratelimit.Limiter,
	processor Processor,
	sender reply.Sender,
	fetcher Fetcher,
	logger zerolog.Logger,
) *Bot {
	errorChat, _ := config.ErrorChat()
	handlerCtx, stopHandlers := context.WithCancel(context.Background())
	return &Bot{
		sender:    sender,
		fetcher:   fetcher,
		config:    config,
		store:     store,
		history:   history,
		limiter:   limiter,
		processor: processor,
		inFlight:  newInFlight(),
		errorChat: errorChat,
		logger:    logger.With().Str("component", "bot").Logger(),

		handlerCtx:   handlerCtx,
		stopHandlers: stopHandlers,
	}
}

// Start starts the bot
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info().Msg("Starting bot...")

	// Configure update settings
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout(b.config.RequestTimeout)

	// Get updates channel
	updates := b.api.GetUpdatesChan(u)

	b.logger.Info().Msg("Bot started, waiting for messages...")

	// Process updates
	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Shutting down bot...")
			b.api.StopReceivingUpdates()
			return nil

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.dispatch(ctx, update)
		}
	}
}

// dispatch stores plain messages in the loop goroutine, so history order
// equals arrival order, and runs commands concurrently on the handler context
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil {
		return
	}

	if !update.Message.IsCommand() {
		b.recoverMiddleware(func() {
			b.storeMessage(ctx, update.Message)
		})
		return
	}

	// Track this handler in WaitGroup
	b.wg.Add(1)
	go func(msg *tgbotapi.Message) {
		defer b.wg.Done()
		b.recoverMiddleware(func() {
			b.handleCommand(b.handlerCtx, msg)
		})
	}(update.Message)
}

// Wait blocks until active handlers complete or the timeout expires. On
// timeout the remaining handlers are cancelled.
func (b *Bot) Wait(timeout time.Duration) bool {
	defer b.stopHandlers()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	b.logger.Info().Msg("Waiting for active handlers to complete...")
	select {
	case <-done:
		b.logger.Info().Msg("All handlers completed")
		return true
	case <-time.After(timeout):
		b.logger.Warn().Dur("timeout", timeout).Msg("Timed out waiting for handlers")
		return false
	}
}

// GetUsername returns bot username
func (b *Bot) GetUsername() string {
	if b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}
