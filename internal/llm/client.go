package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

// Client turns transcripts into summaries and prices them
type Client struct {
	provider             Provider
	timeout              time.Duration
	pricePer1KPrompt     float64
	pricePer1KCompletion float64
	logger               zerolog.Logger
}

// NewClient creates a summarizer client over the given provider
func NewClient(provider Provider, config *models.BotConfig, logger zerolog.Logger) *Client {
	return &Client{
		provider:             provider,
		timeout:              time.Duration(config.LLMTimeout) * time.Second,
		pricePer1KPrompt:     config.PricePer1KPrompt,
		pricePer1KCompletion: config.PricePer1KCompletion,
		logger:               logger.With().Str("component", "llm").Str("provider", provider.Name()).Logger(),
	}
}

// NewProvider builds the provider selected in the config
func NewProvider(config *models.BotConfig, logger zerolog.Logger) (Provider, error) {
	switch config.LLMProvider {
	case models.ProviderOpenAI, "":
		return NewOpenAIProvider(config.OpenAIAPIKey, config.LLMModel), nil
	case models.ProviderGemini:
		return NewGeminiProvider(config.GeminiAPIKey, config.LLMModel, logger), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", config.LLMProvider)
	}
}

// Close releases the provider
func (c *Client) Close() error {
	return c.provider.Close()
}

// Summarize makes exactly one completion request. Failures are ErrTimeout or
// ErrConnection and are not retried. Cancellation of ctx is returned as the
// context error, not as a provider failure.
func (c *Client) Summarize(ctx context.Context, transcript, systemPrompt string) (*models.SummaryResult, error) {
	startTime := time.Now()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug().
		Int("transcript_length", len(transcript)).
		Dur("timeout", c.timeout).
		Msg("Sending request to LLM")

	completion, err := c.provider.Complete(ctx, systemPrompt, transcript)
	if err != nil {
		// The caller gave up, the provider did not fail
		if parent.Err() != nil {
			c.logger.Warn().Err(err).Msg("LLM request cancelled by caller")
			return nil, fmt.Errorf("llm request cancelled: %w", parent.Err())
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Error().Err(err).Dur("timeout", c.timeout).Msg("LLM request timed out")
			return nil, fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		c.logger.Error().Err(err).Msg("LLM request failed")
		return nil, fmt.Errorf("%w: %w", ErrConnection, err)
	}

	text := strings.TrimSpace(completion.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty completion", ErrConnection)
	}

	result := &models.SummaryResult{
		Text:             text,
		Cost:             c.Cost(completion.PromptTokens, completion.CompletionTokens),
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		ExecutionTimeMs:  int(time.Since(startTime).Milliseconds()),
	}

	c.logger.Info().
		Int64("prompt_tokens", result.PromptTokens).
		Int64("completion_tokens", result.CompletionTokens).
		Float64("cost", result.Cost).
		Int("execution_time_ms", result.ExecutionTimeMs).
		Msg("LLM summary generated successfully")

	return result, nil
}

// Cost prices token usage in dollars
func (c *Client) Cost(promptTokens, completionTokens int64) float64 {
	return float64(promptTokens)/1000*c.pricePer1KPrompt +
		float64(completionTokens)/1000*c.pricePer1KCompletion
}
