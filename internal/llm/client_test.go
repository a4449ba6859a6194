package llm

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

type fakeProvider struct {
	completeFunc func(ctx context.Context, systemPrompt, userText string) (*Completion, error)
	calls        int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, systemPrompt, userText string) (*Completion, error) {
	f.calls++
	return f.completeFunc(ctx, systemPrompt, userText)
}

func (f *fakeProvider) Close() error { return nil }

func testConfig() *models.BotConfig {
	return &models.BotConfig{
		LLMTimeout:           1,
		PricePer1KPrompt:     0.01,
		PricePer1KCompletion: 0.03,
	}
}

func TestSummarizeSuccess(t *testing.T) {
	var gotSystem, gotUser string
	p := &fakeProvider{completeFunc: func(_ context.Context, system, user string) (*Completion, error) {
		gotSystem, gotUser = system, user
		return &Completion{Text: "  summary  ", PromptTokens: 2000, CompletionTokens: 500}, nil
	}}

	c := NewClient(p, testConfig(), zerolog.Nop())
	res, err := c.Summarize(context.Background(), "transcript", "be brief")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if gotSystem != "be brief" || gotUser != "transcript" {
		t.Errorf("provider got system=%q user=%q", gotSystem, gotUser)
	}
	if res.Text != "summary" {
		t.Errorf("Text = %q, want trimmed summary", res.Text)
	}
	// 2000/1000*0.01 + 500/1000*0.03
	if math.Abs(res.Cost-0.035) > 1e-9 {
		t.Errorf("Cost = %v, want 0.035", res.Cost)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
}

func TestSummarizeConnectionFailureIsNotRetried(t *testing.T) {
	p := &fakeProvider{completeFunc: func(context.Context, string, string) (*Completion, error) {
		return nil, errors.New("connection reset")
	}}

	c := NewClient(p, testConfig(), zerolog.Nop())
	_, err := c.Summarize(context.Background(), "t", "s")
	if !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
	if p.calls != 1 {
		t.Errorf("provider calls = %d, want 1", p.calls)
	}
}

func TestSummarizeTimeout(t *testing.T) {
	p := &fakeProvider{completeFunc: func(ctx context.Context, _, _ string) (*Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	c := NewClient(p, testConfig(), zerolog.Nop())
	c.timeout = 10 * time.Millisecond

	_, err := c.Summarize(context.Background(), "t", "s")
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, want ErrTimeout", err)
	}
}

func TestSummarizeCallerCancelIsNotAProviderFailure(t *testing.T) {
	p := &fakeProvider{completeFunc: func(ctx context.Context, _, _ string) (*Completion, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	c := NewClient(p, testConfig(), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.Summarize(ctx, "transcript", "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout) {
		t.Errorf("error = %v, cancellation classified as provider failure", err)
	}
}

func TestSummarizeEmptyCompletion(t *testing.T) {
	p := &fakeProvider{completeFunc: func(context.Context, string, string) (*Completion, error) {
		return &Completion{Text: "   "}, nil
	}}

	c := NewClient(p, testConfig(), zerolog.Nop())
	if _, err := c.Summarize(context.Background(), "t", "s"); !errors.Is(err, ErrConnection) {
		t.Errorf("error = %v, want ErrConnection", err)
	}
}

func TestNewProvider(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = models.ProviderOpenAI
	cfg.LLMModel = "gpt-4-turbo"
	p, err := NewProvider(cfg, zerolog.Nop())
	if err != nil || p.Name() != "openai" {
		t.Errorf("NewProvider(openai) = %v, %v", p, err)
	}

	cfg.LLMProvider = models.ProviderGemini
	p, err = NewProvider(cfg, zerolog.Nop())
	if err != nil || p.Name() != "gemini" {
		t.Errorf("NewProvider(gemini) = %v, %v", p, err)
	}

	cfg.LLMProvider = "claude"
	if _, err := NewProvider(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown provider")
	}
}
