package config

import (
	"strings"
	"testing"

	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ADMIN_USERNAME", "admin")
	t.Setenv("ADMIN_PASSWORD", "secret")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PRICE_PER_1K_PROMPT", "0.01")
	t.Setenv("PRICE_PER_1K_COMPLETION", "0.03")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LLMProvider != models.ProviderOpenAI {
		t.Errorf("LLMProvider = %q, want openai", cfg.LLMProvider)
	}
	if cfg.LLMModel != "gpt-4-turbo" {
		t.Errorf("LLMModel = %q, want gpt-4-turbo", cfg.LLMModel)
	}
	if cfg.DatabaseURL != "sqlite://./summaries.db" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.MaxRequestCost != 1.0 {
		t.Errorf("MaxRequestCost = %v, want 1.0", cfg.MaxRequestCost)
	}
	if cfg.UserRequestLimit != 3 || cfg.UserRequestWindowHours != 1 {
		t.Errorf("user limit = %d per %dh, want 3 per 1h", cfg.UserRequestLimit, cfg.UserRequestWindowHours)
	}
	if cfg.ThreadRequestCooldownHours != 6 {
		t.Errorf("ThreadRequestCooldownHours = %d, want 6", cfg.ThreadRequestCooldownHours)
	}
	if cfg.LLMTimeout != 180 || cfg.RequestTimeout != 30 {
		t.Errorf("timeouts = %d/%d, want 180/30", cfg.LLMTimeout, cfg.RequestTimeout)
	}
	if cfg.MaxHistorySize != 200 {
		t.Errorf("MaxHistorySize = %d, want 200", cfg.MaxHistorySize)
	}
	if cfg.PricePer1KPrompt != 0.01 || cfg.PricePer1KCompletion != 0.03 {
		t.Errorf("prices = %v/%v", cfg.PricePer1KPrompt, cfg.PricePer1KCompletion)
	}
}

func TestLoadGeminiDefaultModel(t *testing.T) {
	setRequired(t)
	t.Setenv("LLM_PROVIDER", "Gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLMModel != "gemini-2.0-flash" {
		t.Errorf("LLMModel = %q, want gemini-2.0-flash", cfg.LLMModel)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing token", "TELEGRAM_BOT_TOKEN", "", "TELEGRAM_BOT_TOKEN"},
		{"missing openai key", "OPENAI_API_KEY", "", "OPENAI_API_KEY"},
		{"unknown provider", "LLM_PROVIDER", "llama", "LLM_PROVIDER"},
		{"missing prompt price", "PRICE_PER_1K_PROMPT", "", "PRICE_PER_1K_PROMPT"},
		{"zero cost limit", "MAX_REQUEST_COST", "0", "MAX_REQUEST_COST"},
		{"zero user limit", "USER_REQUEST_LIMIT", "0", "USER_REQUEST_LIMIT"},
		{"bad log level", "LOG_LEVEL", "trace", "LOG_LEVEL"},
		{"bad error chat", "ERROR_NOTIFICATION_CHAT_ID", "not-a-chat", "ERROR_NOTIFICATION_CHAT_ID"},
		{"supabase without key", "DATABASE_URL", "https://example.supabase.co", "SUPABASE_KEY"},
		{"retention shorter than window", "USER_REQUEST_WINDOW_HOURS", "72", "LOG_RETENTION_DAYS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			if tt.key == "USER_REQUEST_WINDOW_HOURS" {
				t.Setenv("LOG_RETENTION_DAYS", "1")
			}
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestErrorChat(t *testing.T) {
	cfg := &models.BotConfig{ErrorNotificationChatID: "-1001234"}
	ref, ok := cfg.ErrorChat()
	if !ok || ref.ID != -1001234 {
		t.Errorf("ErrorChat() = %+v, %v", ref, ok)
	}

	cfg.ErrorNotificationChatID = "@alerts"
	ref, ok = cfg.ErrorChat()
	if !ok || ref.Username != "@alerts" {
		t.Errorf("ErrorChat() = %+v, %v", ref, ok)
	}

	cfg.ErrorNotificationChatID = ""
	if _, ok := cfg.ErrorChat(); ok {
		t.Error("empty ErrorNotificationChatID should not yield a chat")
	}
}
