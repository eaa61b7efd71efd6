package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
)

// TelegramChannel sends messages to a chat through the Telegram Bot API.
type TelegramChannel struct {
	bot    *bot.Bot
	chatID int64
}

// NewTelegramChannel creates a Telegram channel. A non-empty serverURL
// replaces the public Bot API host.
func NewTelegramChannel(token string, chatID int64, serverURL string) (*TelegramChannel, error) {
	opts := []bot.Option{bot.WithSkipGetMe()}
	if serverURL != "" {
		opts = append(opts, bot.WithServerURL(serverURL))
	}
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramChannel{bot: b, chatID: chatID}, nil
}

func (t *TelegramChannel) Name() string { return "telegram" }

func (t *TelegramChannel) Send(ctx context.Context, msg Message) error {
	if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   msg.Text,
	}); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
