package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/admin"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/bot"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/config"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/cost"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/llm"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/ratelimit"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/scheduler"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/storage"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/summarizer"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/window"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.Environment)
	logger.Info().
		Str("environment", cfg.Environment).
		Str("llm_provider", string(cfg.LLMProvider)).
		Str("llm_model", cfg.LLMModel).
		Int("user_request_limit", cfg.UserRequestLimit).
		Int("user_request_window_hours", cfg.UserRequestWindowHours).
		Int("thread_cooldown_hours", cfg.ThreadRequestCooldownHours).
		Float64("max_request_cost", cfg.MaxRequestCost).
		Msg("Starting Telegram chat summarizer")

	// Create context that listens for termination signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	logger.Info().Msg("Initializing storage...")
	store, err := storage.Open(ctx, cfg.DatabaseURL, cfg.SupabaseKey, cfg.StorageTimeout, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	if err := store.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to storage")
	}
	logger.Info().Msg("Storage connection successful")

	// Initialize message window
	history, closeHistory := setupHistory(ctx, cfg, logger)
	defer closeHistory()

	// Initialize LLM client
	logger.Info().Msg("Initializing LLM client...")
	provider, err := llm.NewProvider(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create LLM provider")
	}
	llmClient := llm.NewClient(provider, cfg, logger)
	defer func() {
		if err := llmClient.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close LLM client")
		}
	}()

	estimator := cost.NewEstimator(cost.NewTiktokenCounter(), cfg.PricePer1KPrompt, logger)
	orchestrator := summarizer.NewOrchestrator(estimator, llmClient, cfg, logger)

	// Initialize rate limiter
	limiter := ratelimit.NewLimiter(
		cfg.UserRequestLimit,
		time.Duration(cfg.UserRequestWindowHours)*time.Hour,
		time.Duration(cfg.ThreadRequestCooldownHours)*time.Hour,
		logger,
	)

	// Initialize bot
	logger.Info().Msg("Initializing Telegram bot...")
	telegramBot, err := bot.New(cfg, store, history, limiter, orchestrator, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create bot")
	}
	logger.Info().
		Str("username", telegramBot.GetUsername()).
		Msg("Bot initialized successfully")

	// Start admin panel
	adminServer, err := admin.NewServer(cfg, store, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create admin server")
	}
	go func() {
		if err := adminServer.Start(); err != nil {
			logger.Error().Err(err).Msg("Admin server stopped with error")
		}
	}()

	// Start retention scheduler
	sched, err := scheduler.NewScheduler(store, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create scheduler")
	}
	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := sched.Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("Scheduler stopped with error")
		}
	}()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Start bot in a goroutine
	botErrChan := make(chan error, 1)
	go func() {
		if err := telegramBot.Start(ctx); err != nil {
			botErrChan <- err
		}
	}()

	logger.Info().Msg("Bot is running. Press Ctrl+C to stop.")

	// Wait for termination signal or bot error
	select {
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
	case err := <-botErrChan:
		logger.Error().Err(err).Msg("Bot stopped with error")
	}

	// Graceful shutdown
	logger.Info().Msg("Initiating graceful shutdown...")
	cancel()

	// Give in-flight summaries some time to finish
	if telegramBot.Wait(10 * time.Second) {
		logger.Info().Msg("All handlers finished")
	} else {
		logger.Warn().Msg("Shutdown timeout exceeded, some requests may be lost")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Failed to shut down admin server")
	}

	select {
	case <-schedDone:
	case <-shutdownCtx.Done():
		logger.Warn().Msg("Scheduler did not stop in time")
	}

	logger.Info().Msg("Bot stopped")
}

// setupHistory selects the Redis window when REDIS_URL is set and the
// in-process one otherwise
func setupHistory(ctx context.Context, cfg *models.BotConfig, logger zerolog.Logger) (window.Store, func()) {
	if cfg.RedisURL == "" {
		logger.Info().Int("capacity", cfg.MaxHistorySize).Msg("Using in-memory message history")
		return window.NewMemoryStore(cfg.MaxHistorySize), func() {}
	}

	logger.Info().Msg("Connecting to Redis for message history...")
	redisStore, err := window.NewRedisStore(ctx, cfg.RedisURL, cfg.MaxHistorySize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	return redisStore, func() {
		if err := redisStore.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close Redis client")
		}
	}
}

// setupLogger configures and returns a zerolog logger
func setupLogger(level, environment string) zerolog.Logger {
	// Parse log level
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Configure output format
	var logger zerolog.Logger
	if environment == "development" {
		// Pretty console output for development
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Caller().Logger()
	} else {
		// JSON output for production
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	return logger
}
