package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

// Load loads configuration from environment variables
// It first attempts to load from .env file, then reads environment variables
func Load() (*models.BotConfig, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	config := &models.BotConfig{
		// Admin panel
		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminAddr:     getEnv("ADMIN_ADDR", ":8000"),

		// LLM settings
		LLMProvider:          models.LLMProvider(strings.ToLower(getEnv("LLM_PROVIDER", string(models.ProviderOpenAI)))),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		LLMModel:             getEnv("LLM_MODEL", ""),
		PricePer1KPrompt:     getEnvFloat("PRICE_PER_1K_PROMPT", -1),
		PricePer1KCompletion: getEnvFloat("PRICE_PER_1K_COMPLETION", -1),
		LLMTimeout:           getEnvInt("LLM_TIMEOUT_SECONDS", getEnvInt("OPENAI_TIMEOUT_SECONDS", 180)),

		// Telegram settings
		TelegramToken:           getEnv("TELEGRAM_BOT_TOKEN", ""),
		ErrorNotificationChatID: getEnv("ERROR_NOTIFICATION_CHAT_ID", getEnv("ERROR_NOTIFICATION_CHANNEL_ID", "")),
		RequestTimeout:          getEnvInt("REQUEST_TIMEOUT_SECONDS", 30),

		// Storage settings
		DatabaseURL:    getEnv("DATABASE_URL", "sqlite://./summaries.db"),
		SupabaseKey:    getEnv("SUPABASE_KEY", ""),
		StorageTimeout: getEnvInt("STORAGE_TIMEOUT", 10),
		RedisURL:       getEnv("REDIS_URL", ""),

		// Admission control
		MaxRequestCost:             getEnvFloat("MAX_REQUEST_COST", 1.0),
		UserRequestLimit:           getEnvInt("USER_REQUEST_LIMIT", getEnvInt("USER_REQUEST_LIMIT_PER_HOUR", 3)),
		UserRequestWindowHours:     getEnvInt("USER_REQUEST_WINDOW_HOURS", 1),
		ThreadRequestCooldownHours: getEnvInt("THREAD_REQUEST_COOLDOWN_HOURS", 6),
		MaxHistorySize:             getEnvInt("MAX_HISTORY_SIZE", 200),

		// Housekeeping
		LogRetentionDays:  getEnvInt("LOG_RETENTION_DAYS", 30),
		RetentionSchedule: getEnv("RETENTION_SCHEDULE", "0 3 * * *"),

		// App settings
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "production"),
	}

	if config.LLMModel == "" {
		config.LLMModel = defaultModel(config.LLMProvider)
	}

	// Validate configuration
	if err := validate(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func defaultModel(provider models.LLMProvider) string {
	if provider == models.ProviderGemini {
		return "gemini-2.0-flash"
	}
	return "gpt-4-turbo"
}

// validate checks if all required configuration values are set
func validate(cfg *models.BotConfig) error {
	if cfg.TelegramToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required")
	}

	switch cfg.LLMProvider {
	case models.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required")
		}
	case models.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required")
		}
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of: openai, gemini; got %s", cfg.LLMProvider)
	}

	if cfg.PricePer1KPrompt < 0 {
		return fmt.Errorf("PRICE_PER_1K_PROMPT is required and must not be negative")
	}
	if cfg.PricePer1KCompletion < 0 {
		return fmt.Errorf("PRICE_PER_1K_COMPLETION is required and must not be negative")
	}

	if strings.HasPrefix(cfg.DatabaseURL, "https://") && cfg.SupabaseKey == "" {
		return fmt.Errorf("SUPABASE_KEY is required for a Supabase DATABASE_URL")
	}
	if cfg.ErrorNotificationChatID != "" {
		if _, ok := cfg.ErrorChat(); !ok {
			return fmt.Errorf("ERROR_NOTIFICATION_CHAT_ID must be a chat id or @channel, got %s", cfg.ErrorNotificationChatID)
		}
	}

	// Validate positive values
	if cfg.MaxRequestCost <= 0 {
		return fmt.Errorf("MAX_REQUEST_COST must be positive, got %v", cfg.MaxRequestCost)
	}
	if cfg.UserRequestLimit <= 0 {
		return fmt.Errorf("USER_REQUEST_LIMIT must be positive, got %d", cfg.UserRequestLimit)
	}
	if cfg.UserRequestWindowHours <= 0 {
		return fmt.Errorf("USER_REQUEST_WINDOW_HOURS must be positive, got %d", cfg.UserRequestWindowHours)
	}
	if cfg.ThreadRequestCooldownHours < 0 {
		return fmt.Errorf("THREAD_REQUEST_COOLDOWN_HOURS must not be negative, got %d", cfg.ThreadRequestCooldownHours)
	}
	if cfg.MaxHistorySize <= 0 {
		return fmt.Errorf("MAX_HISTORY_SIZE must be positive, got %d", cfg.MaxHistorySize)
	}
	if cfg.LLMTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT_SECONDS must be positive, got %d", cfg.LLMTimeout)
	}
	if cfg.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive, got %d", cfg.RequestTimeout)
	}
	if cfg.StorageTimeout <= 0 {
		return fmt.Errorf("STORAGE_TIMEOUT must be positive, got %d", cfg.StorageTimeout)
	}

	// Pruning must never drop entries the sliding window still counts
	if cfg.LogRetentionDays < 0 {
		return fmt.Errorf("LOG_RETENTION_DAYS must not be negative, got %d", cfg.LogRetentionDays)
	}
	if cfg.LogRetentionDays > 0 && cfg.LogRetentionDays*24 < cfg.UserRequestWindowHours {
		return fmt.Errorf("LOG_RETENTION_DAYS (%d) is shorter than USER_REQUEST_WINDOW_HOURS (%d)",
			cfg.LogRetentionDays, cfg.UserRequestWindowHours)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error; got %s", cfg.LogLevel)
	}

	return nil
}

// getEnv retrieves environment variable or returns default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value
func getEnvInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvFloat retrieves environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}
