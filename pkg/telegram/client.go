package telegram

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// maxMessageLength is the Telegram limit for one message body.
const maxMessageLength = 4096

// Notifier sends Markdown messages to one chat.
type Notifier interface {
	SendMessage(text string) error
}

type client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// defaultTimeout applies when NewClient is given no request timeout.
const defaultTimeout = 10 * time.Second

// NewClient creates a Telegram notifier bound to chatID. Every Bot API
// request is cut off after timeout.
func NewClient(botToken string, chatID int64, timeout time.Duration) (Notifier, error) {
	if botToken == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	bot, err := tgbotapi.NewBotAPIWithClient(botToken, tgbotapi.APIEndpoint, &http.Client{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &client{bot: bot, chatID: chatID}, nil
}

// SendMessage sends text, split on line boundaries when it is longer than
// one Telegram message.
func (c *client) SendMessage(text string) error {
	for _, part := range splitMessage(text, maxMessageLength) {
		msg := tgbotapi.NewMessage(c.chatID, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		msg.DisableWebPagePreview = true
		if _, err := c.bot.Send(msg); err != nil {
			return fmt.Errorf("failed to send telegram message: %w", err)
		}
	}
	return nil
}

// splitMessage cuts text into chunks of at most limit bytes, preferring
// newline boundaries. A single line longer than limit is hard-cut.
func splitMessage(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var parts []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			parts = append(parts, current.String())
			current.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			parts = append(parts, line[:limit])
			line = line[limit:]
		}
		if current.Len()+len(line) > limit {
			flush()
		}
		current.WriteString(line)
	}
	flush()
	return parts
}
