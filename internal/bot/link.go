package bot

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/uForce-dev/telegram-chat-summarizer/internal/models"
)

// MessageLink points at one message of a chat
type MessageLink struct {
	Chat      models.ChatRef
	MessageID int
}

// TargetID is the cooldown key of the linked message
func (l MessageLink) TargetID() string {
	return l.Chat.String() + ":" + strconv.Itoa(l.MessageID)
}

// ParseMessageLink parses t.me/<channel>/<id> and t.me/c/<internal>/<id>.
// Private chat ids get the -100 prefix Telegram uses for supergroups.
func ParseMessageLink(link string) (MessageLink, bool) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Host != "t.me" {
		return MessageLink{}, false
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case len(parts) == 2 && parts[0] != "" && parts[0] != "c":
		id, ok := parseMessageID(parts[1])
		if !ok {
			return MessageLink{}, false
		}
		return MessageLink{Chat: models.ChatByUsername("@" + parts[0]), MessageID: id}, true

	case len(parts) == 3 && parts[0] == "c":
		internal, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || internal <= 0 {
			return MessageLink{}, false
		}
		chatID, err := strconv.ParseInt("-100"+parts[1], 10, 64)
		if err != nil {
			return MessageLink{}, false
		}
		id, ok := parseMessageID(parts[2])
		if !ok {
			return MessageLink{}, false
		}
		return MessageLink{Chat: models.ChatByID(chatID), MessageID: id}, true
	}

	return MessageLink{}, false
}

// looksLikeLink tells a mistyped link apart from a mistyped message count
func looksLikeLink(arg string) bool {
	return strings.Contains(arg, "://") || strings.HasPrefix(arg, "t.me/")
}

func parseMessageID(s string) (int, bool) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
