package alerts

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/usagegate/usagegate/internal/config"
)

// TelegramNotifier delivers alerts to a Telegram chat.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegramNotifier creates a Telegram notifier from config.
func NewTelegramNotifier(cfg config.TelegramConfig) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, err
	}
	return &TelegramNotifier{
		bot:    bot,
		chatID: cfg.ChatID,
	}, nil
}

// Notify sends the message to the configured chat.
func (t *TelegramNotifier) Notify(message string) error {
	_, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, message))
	return err
}

var _ Notifier = (*TelegramNotifier)(nil)
