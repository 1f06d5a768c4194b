package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"media_relay_bot/internal/pkg/preferences"
)

// handleSettings обрабатывает команды настройки доставки.
func (b *Bot) handleSettings(ctx context.Context, msg *tgbotapi.Message) {
	uid := msg.From.ID
	arg := strings.TrimSpace(msg.CommandArguments())

	var (
		err  error
		done string
	)
	switch msg.Command() {
	case "setchat":
		if arg == "" {
			b.reply(msg, "Usage: /setchat <chat_id> or /setchat <chat_id>/<thread_id>\nThe relay bot must be able to post there.")
			return
		}
		err = b.prefs.SetChat(ctx, uid, arg)
		done = "✅ Delivery chat set to " + arg
	case "setrename":
		if arg == "" {
			b.reply(msg, "Usage: /setrename <tag>")
			return
		}
		err = b.prefs.SetRenameTag(ctx, uid, arg)
		done = "✅ File name tag set to " + arg
	case "setcaption":
		if arg == "" {
			b.reply(msg, "Usage: /setcaption <text>")
			return
		}
		err = b.prefs.SetCaption(ctx, uid, arg)
		done = "✅ Custom caption saved"
	case "replace":
		args := splitArgs(arg)
		if len(args) != 2 {
			b.reply(msg, "Usage: /replace <word> <replacement>\nUse quotes for phrases: /replace 'old text' 'new text'")
			return
		}
		err = b.prefs.AddReplacement(ctx, uid, args[0], args[1])
		done = fmt.Sprintf("✅ %q will be replaced with %q", args[0], args[1])
	case "delword":
		words := splitArgs(arg)
		if len(words) == 0 {
			b.reply(msg, "Usage: /delword <word> [word...]")
			return
		}
		err = b.prefs.AddDeleteWords(ctx, uid, words...)
		done = "✅ Words will be removed: " + strings.Join(words, ", ")
	case "reset":
		err = b.prefs.Reset(ctx, uid)
		done = "✅ Delivery settings cleared"
	}

	switch {
	case errors.Is(err, preferences.ErrWordDeleted):
		b.reply(msg, "❌ This word is in your delete list, it cannot be replaced.")
	case err != nil:
		b.log.Warn().Err(err).Int64("user_id", uid).Str("command", msg.Command()).Msg("settings not saved")
		b.reply(msg, "❌ Could not save: "+err.Error())
	default:
		b.reply(msg, done)
	}
}

// splitArgs делит аргументы по пробелам, уважая кавычки ' и ".
func splitArgs(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		quote rune
		open  bool
	)
	flush := func() {
		if cur.Len() > 0 || open {
			out = append(out, cur.String())
		}
		cur.Reset()
		open = false
	}
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			cur.WriteRune(r)
		case r == '\'' || r == '"':
			quote, open = r, true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
