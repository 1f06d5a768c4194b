package botapi

import (
	"errors"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_relay_bot/internal/pkg/platform"
)

// classify переводит ошибку Bot API в platform.Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		if platform.IsTransportFailure(err) {
			return platform.Wrap(platform.KindTransient, op, err)
		}
		return platform.Wrap(platform.KindFatal, op, err)
	}
	if apiErr.RetryAfter > 0 || apiErr.Code == 429 {
		return platform.RateLimited(op, time.Duration(apiErr.RetryAfter)*time.Second, err)
	}

	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == 401 || strings.Contains(msg, "unauthorized"):
		return platform.Wrap(platform.KindConfigurationMissing, op, err)
	case apiErr.Code == 403,
		strings.Contains(msg, "not enough rights"),
		strings.Contains(msg, "have no rights"),
		strings.Contains(msg, "chat_admin_required"),
		strings.Contains(msg, "channel_private"),
		strings.Contains(msg, "can't be forwarded"),
		strings.Contains(msg, "protected"):
		return platform.Wrap(platform.KindForbidden, op, err)
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "message_id_invalid"),
		strings.Contains(msg, "invalid file_id"):
		return platform.Wrap(platform.KindNotFound, op, err)
	case strings.Contains(msg, "username_invalid"),
		strings.Contains(msg, "peer_id_invalid"),
		strings.Contains(msg, "chat_id is empty"):
		return platform.Wrap(platform.KindInvalidReference, op, err)
	case apiErr.Code >= 500:
		return platform.Wrap(platform.KindTransient, op, err)
	}
	return platform.Wrap(platform.KindFatal, op, err)
}
