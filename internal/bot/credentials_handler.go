package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleSetBot: /setbot <token>. Сообщение с токеном удаляется из чата.
func (b *Bot) handleSetBot(ctx context.Context, msg *tgbotapi.Message) {
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		b.reply(msg, "Usage: /setbot <token from @BotFather>")
		return
	}
	b.forget(msg)
	if !looksLikeToken(token) {
		b.reply(msg, "❌ This does not look like a bot token.")
		return
	}
	if job, ok := b.batches.Status(msg.From.ID); ok && !job.Orphaned {
		b.reply(msg, textBusy)
		return
	}
	if err := b.sessions.BindRelay(ctx, msg.From.ID, token); err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("bind relay")
		b.reply(msg, "❌ Could not save the token, try again later.")
		return
	}
	b.reply(msg, "✅ Relay bot saved. Press Start in your bot so it can write to you.")
}

func (b *Bot) handleRemBot(ctx context.Context, msg *tgbotapi.Message) {
	if job, ok := b.batches.Status(msg.From.ID); ok && !job.Orphaned {
		b.reply(msg, textBusy)
		return
	}
	if err := b.sessions.UnbindRelay(ctx, msg.From.ID); err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("unbind relay")
		b.reply(msg, "❌ Could not remove the token, try again later.")
		return
	}
	b.reply(msg, "✅ Relay bot removed.")
}

// handleAddSession: /addsession <session string>.
func (b *Bot) handleAddSession(ctx context.Context, msg *tgbotapi.Message) {
	secret := strings.TrimSpace(msg.CommandArguments())
	if secret == "" {
		b.reply(msg, "Usage: /addsession <session string>")
		return
	}
	b.forget(msg)
	if job, ok := b.batches.Status(msg.From.ID); ok && !job.Orphaned {
		b.reply(msg, textBusy)
		return
	}
	if err := b.sessions.AddUserSession(ctx, msg.From.ID, secret); err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("add session")
		b.reply(msg, "❌ Could not save the session, try again later.")
		return
	}
	b.reply(msg, "✅ Session saved. It connects on the next task.")
}

func (b *Bot) handleLogout(ctx context.Context, msg *tgbotapi.Message) {
	if job, ok := b.batches.Status(msg.From.ID); ok && !job.Orphaned {
		b.reply(msg, textBusy)
		return
	}
	if err := b.sessions.ReleaseUserSession(ctx, msg.From.ID); err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("release session")
		b.reply(msg, "❌ Could not remove the session, try again later.")
		return
	}
	b.reply(msg, "✅ Session removed.")
}

// looksLikeToken: <digits>:<secret>.
func looksLikeToken(token string) bool {
	id, secret, ok := strings.Cut(token, ":")
	if !ok || id == "" || len(secret) < 20 {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return !strings.ContainsAny(secret, " \n\t")
}
