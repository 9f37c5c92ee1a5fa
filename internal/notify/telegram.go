package notify

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
}

// TelegramSink posts notifications to one operator chat.
type TelegramSink struct {
	sender messageSender
	chatId int64
}

func NewTelegramSink(token string, chatId int64) (*TelegramSink, error) {
	b, err := bot.New(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramSink{sender: b, chatId: chatId}, nil
}

func (s *TelegramSink) Notify(ctx context.Context, n Notification) error {
	disablePreview := true
	_, err := s.sender.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    s.chatId,
		Text:      n.HTML(),
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
