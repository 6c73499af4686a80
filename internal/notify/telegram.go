package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramChannel sends notifications via the same go-telegram-bot-api
// client internal/alerts uses, to a fixed set of chat IDs rather than
// the per-user verified chats internal/telegram manages.
type TelegramChannel struct {
	api     *tgbotapi.BotAPI
	chatIDs []int64
}

func NewTelegramChannel(botToken string, chatIDs []int64) (*TelegramChannel, error) {
	if botToken == "" {
		return nil, fmt.Errorf("notify: telegram bot token is required")
	}
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("notify: create bot api: %w", err)
	}
	return &TelegramChannel{api: api, chatIDs: chatIDs}, nil
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, n Notification) error {
	if len(t.chatIDs) == 0 {
		return nil
	}
	text := formatTelegram(n)

	var lastErr error
	sent := 0
	for _, chatID := range t.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ParseMode = "Markdown"
		if _, err := t.api.Send(msg); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 && lastErr != nil {
		return fmt.Errorf("notify: telegram send: %w", lastErr)
	}
	return nil
}

func formatTelegram(n Notification) string {
	emoji := "📢"
	switch n.Severity {
	case SeverityCritical:
		emoji = "🚨"
	case SeverityWarning:
		emoji = "⚠️"
	case SeverityInfo:
		emoji = "ℹ️"
	}
	text := fmt.Sprintf("%s *%s*\n\n%s", emoji, n.Title, n.Message)
	if n.RunID != "" {
		text += fmt.Sprintf("\n\n_Run: %s_", n.RunID)
	}
	return text
}
