package models

import (
	"strconv"
	"time"
)

// Message is one chat message captured for summarization
type Message struct {
	User string    `json:"user"`
	Text string    `json:"text"`
	Date time.Time `json:"date"`
}

// Prompt is a named system prompt managed from the admin panel
type Prompt struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// RateLimitRecord stores the last successful summarization of a target
type RateLimitRecord struct {
	TargetID         string    `json:"root_post_id"`
	LastSummarizedAt time.Time `json:"summarized_at"`
}

// RequestLogEntry is an append-only record of a successful summarize request
type RequestLogEntry struct {
	ID       int64     `json:"id,omitempty"`
	UserID   string    `json:"user_id"`
	TargetID string    `json:"root_post_id"`
	CalledAt time.Time `json:"called_at"`
}

// ChatRef addresses a chat either by numeric ID or by public @username
type ChatRef struct {
	ID       int64
	Username string
}

// ChatByID returns a reference to a chat by numeric ID
func ChatByID(id int64) ChatRef {
	return ChatRef{ID: id}
}

// ChatByUsername returns a reference to a public channel
func ChatByUsername(username string) ChatRef {
	return ChatRef{Username: username}
}

// IsZero reports whether the reference points nowhere
func (c ChatRef) IsZero() bool {
	return c.ID == 0 && c.Username == ""
}

// String returns the reference as Telegram accepts it in chat_id
func (c ChatRef) String() string {
	if c.Username != "" {
		return c.Username
	}
	return strconv.FormatInt(c.ID, 10)
}

// ParseChatRef parses either a numeric chat ID or an @username
func ParseChatRef(s string) (ChatRef, bool) {
	if s == "" {
		return ChatRef{}, false
	}
	if s[0] == '@' {
		if len(s) == 1 {
			return ChatRef{}, false
		}
		return ChatByUsername(s), true
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return ChatRef{}, false
	}
	return ChatByID(id), true
}

// RateLimitResult represents the result of rate limit check
type RateLimitResult struct {
	Allowed bool
	Count   int
	Message string
}

// SummaryResult is a completed LLM summary with its billed cost
type SummaryResult struct {
	Text             string
	Cost             float64
	PromptTokens     int64
	CompletionTokens int64
	ExecutionTimeMs  int
}

// LLMProvider names a supported completion backend
type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGemini LLMProvider = "gemini"
)

// BotConfig represents bot configuration
type BotConfig struct {
	// Admin panel
	AdminUsername string
	AdminPassword string
	AdminAddr     string

	// LLM settings
	LLMProvider          LLMProvider
	OpenAIAPIKey         string
	GeminiAPIKey         string
	LLMModel             string
	PricePer1KPrompt     float64
	PricePer1KCompletion float64
	LLMTimeout           int

	// Telegram settings
	TelegramToken           string
	ErrorNotificationChatID string
	RequestTimeout          int

	// Storage settings
	DatabaseURL    string
	SupabaseKey    string
	StorageTimeout int
	RedisURL       string

	// Admission control
	MaxRequestCost             float64
	UserRequestLimit           int
	UserRequestWindowHours     int
	ThreadRequestCooldownHours int
	MaxHistorySize             int

	// Housekeeping
	LogRetentionDays  int
	RetentionSchedule string

	// App settings
	LogLevel    string
	Environment string
}

// ErrorChat returns the admin notification chat, if configured
func (c *BotConfig) ErrorChat() (ChatRef, bool) {
	return ParseChatRef(c.ErrorNotificationChatID)
}
