package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier пишет пользователю от имени командного бота.
type Notifier struct {
	Api *tgbotapi.BotAPI
}

func (n Notifier) Send(_ context.Context, chatID int64, text string) (int, error) {
	out := tgbotapi.NewMessage(chatID, text)
	out.DisableWebPagePreview = true
	sent, err := n.Api.Send(out)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (n Notifier) Edit(_ context.Context, chatID int64, msgID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, msgID, text)
	edit.DisableWebPagePreview = true
	if _, err := n.Api.Request(edit); err != nil && !strings.Contains(err.Error(), "message is not modified") {
		return err
	}
	return nil
}

func (n Notifier) Delete(_ context.Context, chatID int64, msgID int) error {
	_, err := n.Api.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
	return err
}
