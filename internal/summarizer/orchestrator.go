// Package summarizer runs one summarization request end to end: transcript
// formatting, cost admission, the LLM call and the chunked reply.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/metrics"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/reply"
)

// Estimator approximates the prompt cost of a transcript. ok is false when
// the estimate is unavailable.
type Estimator interface {
	Estimate(text string) (dollars float64, ok bool)
}

// LLM produces a priced summary of a transcript
type LLM interface {
	Summarize(ctx context.Context, transcript, systemPrompt string) (*models.SummaryResult, error)
}

// Request is everything needed to answer one /summarize command
type Request struct {
	Sender   reply.Sender
	Chat     models.ChatRef
	Messages []models.Message
	// UserName is how the requester is addressed, @username when one exists
	UserName     string
	SystemPrompt string
	ReplyTo      int
}

// Orchestrator composes the summarization pipeline
type Orchestrator struct {
	estimator  Estimator
	llm        LLM
	maxCost    float64
	errorChat  models.ChatRef
	chunkDelay time.Duration
	logger     zerolog.Logger
}

// NewOrchestrator creates the pipeline
func NewOrchestrator(estimator Estimator, llm LLM, config *models.BotConfig, logger zerolog.Logger) *Orchestrator {
	errorChat, _ := config.ErrorChat()
	return &Orchestrator{
		estimator:  estimator,
		llm:        llm,
		maxCost:    config.MaxRequestCost,
		errorChat:  errorChat,
		chunkDelay: reply.ChunkDelay,
		logger:     logger.With().Str("component", "summarizer").Logger(),
	}
}

// Process answers the request and reports whether the summary was delivered.
// It never panics and never returns an error: every failure is logged,
// reported and turned into false.
func (o *Orchestrator) Process(ctx context.Context, req Request) (delivered bool) {
	log := o.logger.With().
		Str("chat", req.Chat.String()).
		Str("user", req.UserName).
		Int("messages", len(req.Messages)).
		Logger()
	if reqID, ok := ctx.Value(RequestIDKey{}).(string); ok {
		log = log.With().Str("request_id", reqID).Logger()
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Panic recovered in summarization")
			o.handleFailure(ctx, log, req, fmt.Errorf("panic: %v", r))
			delivered = false
		}
	}()

	err := o.process(ctx, log, req)
	switch {
	case err == nil:
		return true
	case errors.Is(err, errRejected):
		return false
	case reply.IsTransportError(err):
		o.handleTransportFailure(ctx, log, req, err)
		return false
	default:
		o.handleFailure(ctx, log, req, err)
		return false
	}
}

// errRejected marks a request answered with a rejection reply
var errRejected = errors.New("request rejected")

func (o *Orchestrator) process(ctx context.Context, log zerolog.Logger, req Request) error {
	transcript := FormatTranscript(req.Messages)
	if strings.TrimSpace(transcript) == "" {
		metrics.AdmissionRejections.WithLabelValues("empty").Inc()
		log.Info().Msg("No text to summarize")

		text := fmt.Sprintf("%s, не удалось найти текст в выбранных сообщениях для анализа.", req.UserName)
		if err := req.Sender.SendMessage(ctx, req.Chat, text, req.ReplyTo); err != nil {
			return err
		}
		return errRejected
	}

	if estimated, ok := o.estimator.Estimate(transcript); ok {
		metrics.EstimatedCostDollars.Observe(estimated)
		if estimated > o.maxCost {
			metrics.AdmissionRejections.WithLabelValues("cost").Inc()
			log.Info().
				Float64("estimated_cost", estimated).
				Float64("max_cost", o.maxCost).
				Msg("Request rejected by cost limit")

			text := fmt.Sprintf(
				"%s, обработка отменена. Слишком много текста. "+
					"Предполагаемая стоимость ($%.2f) превышает лимит в $%.2f.",
				req.UserName, estimated, o.maxCost,
			)
			if err := req.Sender.SendMessage(ctx, req.Chat, text, req.ReplyTo); err != nil {
				return err
			}
			return errRejected
		}
	}

	start := time.Now()
	result, err := o.llm.Summarize(ctx, transcript, req.SystemPrompt)
	if err != nil {
		metrics.LLMRequestDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("failed to summarize: %w", err)
	}
	metrics.LLMRequestDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	metrics.LLMCostDollars.Add(result.Cost)

	final := FormatSummary(req.UserName, result)
	metrics.ReplyChunks.Observe(float64(len(reply.SplitMessage(final, reply.MessageLimit))))

	dispatcher := reply.NewDispatcher(req.Sender, o.logger).WithDelay(o.chunkDelay)
	if err := dispatcher.SendChunked(ctx, req.Chat, final, req.ReplyTo); err != nil {
		return err
	}

	log.Info().
		Float64("cost", result.Cost).
		Int64("prompt_tokens", result.PromptTokens).
		Int64("completion_tokens", result.CompletionTokens).
		Msg("Summary delivered")
	return nil
}

// handleTransportFailure only notifies admins, the requester cannot be reached
func (o *Orchestrator) handleTransportFailure(ctx context.Context, log zerolog.Logger, req Request, err error) {
	log.Error().Err(err).Msg("Telegram error while sending reply")
	o.notifyAdmins(ctx, log, req.Sender,
		fmt.Sprintf("Не удалось отправить сообщение в чат %s. Ошибка: %v", req.Chat.String(), err))
}

func (o *Orchestrator) handleFailure(ctx context.Context, log zerolog.Logger, req Request, err error) {
	log.Error().Err(err).Msg("Summarization failed")

	text := fmt.Sprintf("%s, произошла внутренняя ошибка. Не удалось выполнить суммирование.", req.UserName)
	if sendErr := req.Sender.SendMessage(ctx, req.Chat, text, req.ReplyTo); sendErr != nil {
		log.Error().Err(sendErr).Msg("Failed to send error reply")
	}

	o.notifyAdmins(ctx, log, req.Sender,
		fmt.Sprintf("Критическая ошибка в боте при запросе от %s в чате %s:\n\n%v", req.UserName, req.Chat.String(), err))
}

// notifyAdmins is best effort, its own failure is only logged
func (o *Orchestrator) notifyAdmins(ctx context.Context, log zerolog.Logger, sender reply.Sender, text string) {
	if o.errorChat.IsZero() {
		return
	}
	if err := sender.SendMessage(ctx, o.errorChat, text, 0); err != nil {
		log.Error().Err(err).Str("error_chat", o.errorChat.String()).Msg("Failed to notify error chat")
	}
}

// RequestIDKey is the context key carrying the request id for log correlation
type RequestIDKey struct{}

// FormatTranscript renders messages for the LLM. Messages without text are
// skipped, so a window of empty messages yields an empty transcript.
func FormatTranscript(messages []models.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		fmt.Fprintf(&sb, "(%s) Пользователь '%s' написал:\n%s\n---\n",
			msg.Date.UTC().Format(time.RFC3339), msg.User, msg.Text)
	}
	return sb.String()
}

// FormatSummary builds the final reply with the requester and the cost
func FormatSummary(userName string, result *models.SummaryResult) string {
	return fmt.Sprintf(
		"**Краткая сводка по запросу** %s:\n\n%s\n\n**Стоимость запроса:** $%.4f",
		userName, result.Text, result.Cost,
	)
}
