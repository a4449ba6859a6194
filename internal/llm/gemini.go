package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider calls Google's Gemini models
type GeminiProvider struct {
	apiKey      string
	model       string
	logger      zerolog.Logger
	genaiClient *genai.Client
	mu          sync.Mutex
}

// NewGeminiProvider creates a Gemini provider. The client is created on first use.
func NewGeminiProvider(apiKey, model string, logger zerolog.Logger) *GeminiProvider {
	return &GeminiProvider{
		apiKey: apiKey,
		model:  model,
		logger: logger.With().Str("component", "llm").Str("provider", "gemini").Logger(),
	}
}

func (p *GeminiProvider) Name() string {
	return "gemini"
}

// getClient returns or creates a genai client (thread-safe)
func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.genaiClient != nil {
		return p.genaiClient, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(p.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	p.genaiClient = client
	p.logger.Info().Msg("Gemini client created and cached")
	return p.genaiClient, nil
}

// Close closes the genai client
func (p *GeminiProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.genaiClient != nil {
		err := p.genaiClient.Close()
		p.genaiClient = nil
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to close Gemini client")
			return err
		}
		p.logger.Info().Msg("Gemini client closed")
	}
	return nil
}

// Complete sends the system prompt as system instruction and the transcript
// as the user turn
func (p *GeminiProvider) Complete(ctx context.Context, systemPrompt, userText string) (*Completion, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel(p.model)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}

	resp, err := model.GenerateContent(ctx, genai.Text(userText))
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusTooManyRequests {
			return nil, fmt.Errorf("gemini rate limit: %w", err)
		}
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no response candidates from LLM")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return nil, fmt.Errorf("no content parts in response")
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}

	completion := &Completion{Text: text.String()}
	if resp.UsageMetadata != nil {
		completion.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		completion.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return completion, nil
}
