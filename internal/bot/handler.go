package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/metrics"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/storage"
	"github.com/uForce-dev/telegram-chat-summarizer/internal/summarizer"
)

// summarizeCommand is a /summarize request stripped of transport details
type summarizeCommand struct {
	ChatID    int64
	UserID    int64
	UserName  string
	MessageID int
	Args      string
}

func chatRef(chatID int64) models.ChatRef {
	return models.ChatByID(chatID)
}

// storeMessage appends a plain text message to the chat history
func (b *Bot) storeMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Text == "" || message.From == nil {
		return
	}

	msg := models.Message{
		User: displayName(message.From),
		Text: message.Text,
		Date: message.Time().UTC(),
	}
	if err := b.history.Append(ctx, message.Chat.ID, msg); err != nil {
		b.logger.Error().
			Err(err).
			Int64("chat_id", message.Chat.ID).
			Msg("Failed to store message")
		return
	}
	metrics.MessagesStored.Inc()
}

// handleCommand processes bot commands
func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message) {
	command := message.Command()

	logEvent := b.logger.Info().
		Str("command", command).
		Int64("chat_id", message.Chat.ID)
	if message.From != nil {
		logEvent = logEvent.Int64("user_id", message.From.ID).Str("username", message.From.UserName)
	}
	logEvent.Msg("Received command")

	switch command {
	case "start":
		b.handleStartCommand(ctx, message.Chat.ID)
	case "help":
		b.handleHelpCommand(ctx, message.Chat.ID)
	case "summarize":
		if message.From == nil {
			return
		}
		b.handleSummarize(ctx, summarizeCommand{
			ChatID:    message.Chat.ID,
			UserID:    message.From.ID,
			UserName:  mention(message.From),
			MessageID: message.MessageID,
			Args:      message.CommandArguments(),
		})
	default:
		b.logger.Debug().Str("command", command).Msg("Ignoring unknown command")
	}
}

// handleStartCommand handles /start command
func (b *Bot) handleStartCommand(ctx context.Context, chatID int64) {
	b.reply(ctx, chatID, 0,
		"Привет! Я бот для суммирования чатов. Добавьте меня в группу и дайте права на чтение сообщений.\n"+
			"Для вызова справки используйте /help.")
}

// handleHelpCommand handles /help command
func (b *Bot) handleHelpCommand(ctx context.Context, chatID int64) {
	helpMsg := fmt.Sprintf(
		"*Как использовать бота:*\n\n"+
			"1. Убедитесь, что бот добавлен в чат.\n"+
			"2. Для суммирования вызовите команду:\n"+
			"`/summarize <тип_промпта> [количество_сообщений]`\n"+
			"или\n"+
			"`/summarize <тип_промпта> <ссылка_на_сообщение>`\n\n"+
			"   - `<тип_промпта>`: обязательный параметр. Указывает, какой системный промпт использовать "+
			"(например, `general`). Посмотреть доступные типы можно в админ-панели.\n"+
			"   - `[количество_сообщений]`: необязательный параметр. По умолчанию — *%d*. Максимум — *%d*.\n\n"+
			"*Примеры:*\n"+
			"- `/summarize general` — сводка по последним %d сообщениям.\n"+
			"- `/summarize meetings 50` — сводка по последним 50 сообщениям с промптом `meetings`.\n"+
			"- `/summarize general https://t.me/c/1234567890/42` — сводка по одному сообщению.\n\n"+
			"*Лимиты:* %d запросов за %d ч. на пользователя, один запрос на чат раз в %d ч.",
		defaultMessageCount, b.history.Capacity(), defaultMessageCount,
		b.config.UserRequestLimit, b.config.UserRequestWindowHours, b.config.ThreadRequestCooldownHours,
	)

	b.reply(ctx, chatID, 0, helpMsg)
}

// handleSummarize runs admission control and hands the request to the
// summarizer. The storage session is held for the whole request.
func (b *Bot) handleSummarize(ctx context.Context, cmd summarizeCommand) {
	requestID := uuid.NewString()
	ctx = context.WithValue(ctx, summarizer.RequestIDKey{}, requestID)
	log := b.logger.With().
		Str("request_id", requestID).
		Int64("chat_id", cmd.ChatID).
		Int64("user_id", cmd.UserID).
		Logger()

	sess, err := b.store.Acquire(ctx)
	if err != nil {
		b.failRequest(ctx, cmd, fmt.Errorf("failed to acquire storage session: %w", err))
		return
	}
	defer sess.Release()

	args, usage := parseSummarizeArgs(cmd.Args, b.history.Capacity())
	if args == nil {
		log.Debug().Str("args", cmd.Args).Msg("Invalid summarize arguments")
		metrics.SummarizeRequests.WithLabelValues("invalid").Inc()
		b.reply(ctx, cmd.ChatID, cmd.MessageID, usage)
		return
	}

	userID := strconv.FormatInt(cmd.UserID, 10)
	targetID := strconv.FormatInt(cmd.ChatID, 10)
	if args.Link != nil {
		targetID = args.Link.TargetID()
	}
	log = log.With().Str("target_id", targetID).Str("prompt", args.PromptName).Logger()

	if !b.inFlight.acquire(targetID) {
		metrics.AdmissionRejections.WithLabelValues("in_flight").Inc()
		metrics.SummarizeRequests.WithLabelValues("rejected").Inc()
		b.reply(ctx, cmd.ChatID, cmd.MessageID, "Суммирование для этого чата уже выполняется. Дождитесь результата.")
		return
	}
	defer b.inFlight.release(targetID)

	userLimit, err := b.limiter.CheckUserRateLimit(ctx, sess, userID)
	if err != nil {
		b.failRequest(ctx, cmd, err)
		return
	}
	if !userLimit.Allowed {
		metrics.AdmissionRejections.WithLabelValues("user_limit").Inc()
		metrics.SummarizeRequests.WithLabelValues("rejected").Inc()
		log.Info().Int("used", userLimit.Count).Msg("User rate limit exceeded")
		b.reply(ctx, cmd.ChatID, cmd.MessageID, userLimit.Message)
		return
	}

	cooldown, err := b.limiter.CheckCooldown(ctx, sess, targetID)
	if err != nil {
		b.failRequest(ctx, cmd, err)
		return
	}
	if !cooldown.Allowed {
		metrics.AdmissionRejections.WithLabelValues("cooldown").Inc()
		metrics.SummarizeRequests.WithLabelValues("rejected").Inc()
		log.Info().Msg("Target is cooling down")
		b.reply(ctx, cmd.ChatID, cmd.MessageID, cooldown.Message)
		return
	}

	prompt, err := sess.FindPromptByName(ctx, args.PromptName)
	if err != nil {
		b.failRequest(ctx, cmd, err)
		return
	}
	if prompt == nil {
		metrics.SummarizeRequests.WithLabelValues("invalid").Inc()
		b.replyUnknownPrompt(ctx, cmd, args.PromptName, sess)
		return
	}

	messages, ok := b.collectMessages(ctx, cmd, args)
	if !ok {
		return
	}

	ack := fmt.Sprintf("✅ Принято! Анализирую последние %d сообщений. Это может занять несколько минут...", len(messages))
	if args.Link != nil {
		ack = "✅ Принято! Анализирую сообщение по ссылке. Это может занять несколько минут..."
	}
	b.reply(ctx, cmd.ChatID, cmd.MessageID, ack)

	delivered := b.processor.Process(ctx, summarizer.Request{
		Sender:       b.sender,
		Chat:         chatRef(cmd.ChatID),
		Messages:     messages,
		UserName:     cmd.UserName,
		SystemPrompt: prompt.Text,
		ReplyTo:      cmd.MessageID,
	})
	if !delivered {
		metrics.SummarizeRequests.WithLabelValues("failed").Inc()
		return
	}

	if err := b.limiter.RecordSuccess(ctx, sess, targetID); err != nil {
		log.Error().Err(err).Msg("Summary delivered but cooldown not recorded")
	}
	if err := b.limiter.RecordRequest(ctx, sess, userID, targetID); err != nil {
		log.Error().Err(err).Msg("Summary delivered but request not logged")
	}

	metrics.SummarizeRequests.WithLabelValues("success").Inc()
	log.Info().Int("messages", len(messages)).Msg("Summarize request completed")
}

// collectMessages resolves the window or the linked message. On false the
// user has already been answered.
func (b *Bot) collectMessages(ctx context.Context, cmd summarizeCommand, args *summarizeArgs) ([]models.Message, bool) {
	if args.Link != nil {
		msg, err := b.fetcher.FetchMessage(ctx, args.Link.Chat, args.Link.MessageID)
		if err != nil {
			b.logger.Error().
				Err(err).
				Str("chat", args.Link.Chat.String()).
				Int("message_id", args.Link.MessageID).
				Msg("Failed to fetch linked message")
			metrics.SummarizeRequests.WithLabelValues("invalid").Inc()
			b.reply(ctx, cmd.ChatID, cmd.MessageID,
				"Не удалось получить сообщение по ссылке. Убедитесь, что бот состоит в этом чате.")
			return nil, false
		}
		return []models.Message{*msg}, true
	}

	history, err := b.history.Snapshot(ctx, cmd.ChatID, 0)
	if err != nil {
		b.failRequest(ctx, cmd, err)
		return nil, false
	}
	if len(history) < minHistorySize {
		metrics.SummarizeRequests.WithLabelValues("rejected").Inc()
		b.reply(ctx, cmd.ChatID, cmd.MessageID,
			"Недостаточно истории сообщений для анализа. Подождите, пока в чате появятся новые сообщения.")
		return nil, false
	}

	if len(history) > args.Count {
		history = history[len(history)-args.Count:]
	}
	return history, true
}

// replyUnknownPrompt lists the prompts that do exist
func (b *Bot) replyUnknownPrompt(ctx context.Context, cmd summarizeCommand, name string, prompts storage.PromptRepository) {
	text := fmt.Sprintf("Тип промпта '%s' не найден.", name)

	existing, err := prompts.ListPrompts(ctx)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to list prompts")
	}
	if len(existing) > 0 {
		names := make([]string, len(existing))
		for i, p := range existing {
			names[i] = "`" + p.Name + "`"
		}
		text += "\n\nДоступные типы: " + strings.Join(names, ", ")
	}

	b.reply(ctx, cmd.ChatID, cmd.MessageID, text)
}

// failRequest reports an unexpected failure before the summarizer ran
func (b *Bot) failRequest(ctx context.Context, cmd summarizeCommand, err error) {
	b.logger.Error().
		Err(err).
		Int64("chat_id", cmd.ChatID).
		Int64("user_id", cmd.UserID).
		Msg("Summarize request failed")
	metrics.SummarizeRequests.WithLabelValues("failed").Inc()
	b.reply(ctx, cmd.ChatID, cmd.MessageID,
		fmt.Sprintf("%s, произошла внутренняя ошибка. Не удалось выполнить суммирование.", cmd.UserName))
	b.notifyAdmins(ctx,
		fmt.Sprintf("Критическая ошибка в боте при запросе от %s в чате %d:\n\n%v", cmd.UserName, cmd.ChatID, err))
}
