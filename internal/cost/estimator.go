package cost

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

const encodingName = "cl100k_base"

// Tokenizer counts billable tokens of a text
type Tokenizer interface {
	CountTokens(text string) (int, error)
}

// tiktokenCounter loads the BPE ranks on first use
type tiktokenCounter struct {
	once sync.Once
	tkt  *tiktoken.Tiktoken
	err  error
}

// NewTiktokenCounter returns a tokenizer using OpenAI's cl100k_base encoding
func NewTiktokenCounter() Tokenizer {
	return &tiktokenCounter{}
}

func (c *tiktokenCounter) CountTokens(text string) (int, error) {
	c.once.Do(func() {
		c.tkt, c.err = tiktoken.GetEncoding(encodingName)
	})
	if c.err != nil {
		return 0, fmt.Errorf("get encoding failed, encoding=%v, err=%w", encodingName, c.err)
	}
	return len(c.tkt.Encode(text, nil, nil)), nil
}

// Estimator approximates the prompt cost of a transcript before the LLM call
type Estimator struct {
	tokenizer        Tokenizer
	pricePer1KPrompt float64
	logger           zerolog.Logger
}

// NewEstimator creates a cost estimator
func NewEstimator(tokenizer Tokenizer, pricePer1KPrompt float64, logger zerolog.Logger) *Estimator {
	return &Estimator{
		tokenizer:        tokenizer,
		pricePer1KPrompt: pricePer1KPrompt,
		logger:           logger.With().Str("component", "cost").Logger(),
	}
}

// Estimate returns the estimated prompt cost in dollars. ok is false when the
// text could not be tokenized; callers let such requests through.
func (e *Estimator) Estimate(text string) (dollars float64, ok bool) {
	tokens, err := e.tokenizer.CountTokens(text)
	if err != nil {
		e.logger.Error().Err(err).Msg("Failed to count tokens, skipping cost check")
		return 0, false
	}

	dollars = float64(tokens) / 1000 * e.pricePer1KPrompt

	e.logger.Debug().
		Int("tokens", tokens).
		Float64("estimated_cost", dollars).
		Msg("Estimated request cost")

	return dollars, true
}
