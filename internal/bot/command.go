package bot

import (
	"fmt"
	"strconv"
)

const (
	defaultMessageCount = 100
	minHistorySize      = 10
)

// summarizeArgs is a parsed /summarize command
type summarizeArgs struct {
	PromptName string
	Count      int
	Link       *MessageLink
}

// parseSummarizeArgs parses "<prompt> [count|link]". On failure the second
// result is the reply for the user.
func parseSummarizeArgs(raw string, maxCount int) (*summarizeArgs, string) {
	usage := "Неверный формат команды. Используйте: `/summarize <тип_промпта> [кол-во сообщений | ссылка]`\n" +
		"Для справки введите /help."

	parts, err := splitArgs(raw)
	if err != nil || len(parts) < 1 || len(parts) > 2 {
		return nil, usage
	}

	args := &summarizeArgs{PromptName: parts[0], Count: defaultMessageCount}
	if len(parts) == 1 {
		return args, ""
	}

	arg := parts[1]
	if count, err := strconv.Atoi(arg); err == nil {
		if count < 1 || count > maxCount {
			return nil, fmt.Sprintf("Количество сообщений должно быть от 1 до %d.", maxCount)
		}
		args.Count = count
		return args, ""
	}

	if link, ok := ParseMessageLink(arg); ok {
		args.Link = &link
		return args, ""
	}
	if looksLikeLink(arg) {
		return nil, "Не удалось разобрать ссылку на сообщение. " +
			"Поддерживаются ссылки вида https://t.me/<канал>/<id> и https://t.me/c/<id_чата>/<id>."
	}
	return nil, usage
}
