package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	batchdomain "media_relay_bot/internal/pkg/batch/domain"
	batchusecase "media_relay_bot/internal/pkg/batch/usecase"
	"media_relay_bot/internal/pkg/resolve"
	sessiondomain "media_relay_bot/internal/pkg/session/domain"
)

const (
	textInvalidLink = "❌ Invalid link. Send a message link like https://t.me/channel/123 or https://t.me/c/123456/789."
	textBusy        = "⏳ You already have an active task. Use /stop to cancel it first."
	textNeedBot     = "🤖 Bind your relay bot first: /setbot <token>"
)

// handleBatch: /batch [link].
func (b *Bot) handleBatch(ctx context.Context, msg *tgbotapi.Message) {
	uid := msg.From.ID
	if !b.canBegin(ctx, msg) {
		return
	}
	b.conversations.Reset(uid)
	if err := b.conversations.Transition(uid, StateAwaitingBatchLink, resolve.MessageRef{}); err != nil {
		b.log.Error().Err(err).Int64("user_id", uid).Msg("conversation")
		return
	}
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		b.acceptBatchLink(msg, arg)
		return
	}
	b.reply(msg, "🔗 Send the link of the first message.")
}

// handleSingle: /single [link].
func (b *Bot) handleSingle(ctx context.Context, msg *tgbotapi.Message) {
	uid := msg.From.ID
	if !b.canBegin(ctx, msg) {
		return
	}
	b.conversations.Reset(uid)
	if arg := strings.TrimSpace(msg.CommandArguments()); arg != "" {
		b.runSingle(ctx, msg, arg)
		return
	}
	if err := b.conversations.Transition(uid, StateAwaitingSingleLink, resolve.MessageRef{}); err != nil {
		b.log.Error().Err(err).Int64("user_id", uid).Msg("conversation")
		return
	}
	b.reply(msg, "🔗 Send the message link.")
}

// handleText продолжает диалог; вне диалога ссылка означает /single.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	uid := msg.From.ID
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	conv := b.conversations.Get(uid)
	switch conv.State {
	case StateAwaitingBatchLink:
		b.acceptBatchLink(msg, text)
	case StateAwaitingCount:
		b.acceptCount(ctx, msg, conv, text)
	case StateAwaitingSingleLink:
		b.conversations.Reset(uid)
		b.runSingle(ctx, msg, text)
	default:
		if _, err := resolve.ParseLink(text); err != nil {
			return
		}
		if b.canBegin(ctx, msg) {
			b.runSingle(ctx, msg, text)
		}
	}
}

func (b *Bot) acceptBatchLink(msg *tgbotapi.Message, raw string) {
	ref, err := resolve.ParseLink(raw)
	if err != nil {
		b.reply(msg, textInvalidLink)
		return
	}
	if err := b.conversations.Transition(msg.From.ID, StateAwaitingCount, ref); err != nil {
		b.log.Error().Err(err).Int64("user_id", msg.From.ID).Msg("conversation")
		return
	}
	b.reply(msg, "🔢 How many messages should be copied?")
}

func (b *Bot) acceptCount(ctx context.Context, msg *tgbotapi.Message, conv Conversation, raw string) {
	count, err := strconv.Atoi(raw)
	if err != nil || count < 1 {
		b.reply(msg, "❌ Send a whole number greater than zero.")
		return
	}
	err = b.launch(ctx, msg, batchdomain.KindBatch, conv.Ref, count)
	if errors.Is(err, batchusecase.ErrLimitExceeded) {
		// остаемся в AwaitingCount, пользователь может прислать число поменьше
		return
	}
	b.conversations.Reset(msg.From.ID)
}

func (b *Bot) runSingle(ctx context.Context, msg *tgbotapi.Message, raw string) {
	ref, err := resolve.ParseLink(raw)
	if err != nil {
		b.reply(msg, textInvalidLink)
		return
	}
	_ = b.launch(ctx, msg, batchdomain.KindSingle, ref, 1)
}

// canBegin отсекает пользователя с живым пакетом или без Relay-бота.
func (b *Bot) canBegin(ctx context.Context, msg *tgbotapi.Message) bool {
	uid := msg.From.ID
	if job, ok := b.batches.Status(uid); ok && !job.Orphaned {
		b.reply(msg, textBusy)
		return false
	}
	bindings, err := b.sessions.Bindings(ctx, uid)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", uid).Msg("bindings lookup failed")
		b.reply(msg, "❌ Storage is unavailable, try again later.")
		return false
	}
	if !bindings.BotBound {
		b.reply(msg, textNeedBot)
		return false
	}
	return true
}

// launch регистрирует пакет и запускает его в отдельной горутине.
func (b *Bot) launch(ctx context.Context, msg *tgbotapi.Message, kind batchdomain.JobKind, ref resolve.MessageRef, count int) error {
	batch, err := b.batches.Start(ctx, batchusecase.StartRequest{
		UserID: msg.From.ID,
		Kind:   kind,
		Ref:    ref,
		Count:  count,
		ChatID: msg.Chat.ID,
	})
	if err != nil {
		b.log.Info().Err(err).Int64("user_id", msg.From.ID).Str("kind", string(kind)).Msg("task refused")
		b.reply(msg, startErrorText(err))
		return err
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.batches.Run(ctx, batch)
	}()
	return nil
}

func (b *Bot) handleCancel(msg *tgbotapi.Message) {
	uid := msg.From.ID
	inDialog := b.conversations.Get(uid).State != StateIdle
	b.conversations.Reset(uid)

	job, err := b.batches.Cancel(uid)
	switch {
	case errors.Is(err, batchdomain.ErrJobNotFound):
		if inDialog {
			b.reply(msg, "👌 Cancelled.")
			return
		}
		b.reply(msg, "ℹ️ No active task.")
	case err != nil:
		b.log.Error().Err(err).Int64("user_id", uid).Msg("cancel failed")
		b.reply(msg, "❌ Could not request cancellation, try again.")
	case job.Orphaned:
		b.reply(msg, "🧹 Removed the record of a task interrupted by a restart.")
	default:
		b.reply(msg, fmt.Sprintf("🛑 Cancellation requested. The task stops after the current item (%d/%d done).", job.Current, job.Total))
	}
}

func (b *Bot) handleStatus(ctx context.Context, msg *tgbotapi.Message) {
	uid := msg.From.ID
	var sb strings.Builder

	if job, ok := b.batches.Status(uid); ok {
		fmt.Fprintf(&sb, "📦 Task %s: %d/%d, %d successful", job.Kind, job.Current, job.Total, job.Success)
		if job.CancelRequested {
			sb.WriteString(", cancelling")
		}
		sb.WriteString("\n")
	} else {
		sb.WriteString("📦 No active task\n")
	}

	bindings, err := b.sessions.Bindings(ctx, uid)
	if err != nil {
		b.log.Error().Err(err).Int64("user_id", uid).Msg("bindings lookup failed")
	} else {
		fmt.Fprintf(&sb, "🤖 Relay bot: %s\n", boundText(bindings.BotBound, bindings.RelayLive))
		fmt.Fprintf(&sb, "🔑 User session: %s\n", boundText(bindings.SessionBound, bindings.SessionLive))
		if !bindings.SessionBound && bindings.OverflowReady {
			sb.WriteString("🛟 Shared reader session is available\n")
		}
	}

	if prefs, err := b.prefs.Load(ctx, uid); err == nil && prefs.Destination != nil {
		fmt.Fprintf(&sb, "📬 Delivery chat: %s", prefs.Destination.Chat)
		if prefs.Destination.ReplyTo != 0 {
			fmt.Fprintf(&sb, " (thread %d)", prefs.Destination.ReplyTo)
		}
	} else {
		sb.WriteString("📬 Delivery chat: this chat")
	}
	b.reply(msg, sb.String())
}

func boundText(bound, live bool) string {
	switch {
	case bound && live:
		return "bound, connected"
	case bound:
		return "bound"
	default:
		return "not set"
	}
}

func startErrorText(err error) string {
	switch {
	case errors.Is(err, batchdomain.ErrJobActive):
		return textBusy
	case errors.Is(err, batchdomain.ErrCountInvalid):
		return "❌ Send a whole number greater than zero."
	case errors.Is(err, batchusecase.ErrLimitExceeded):
		return "❌ Too many messages: " + err.Error() + ". Send a smaller number."
	case errors.Is(err, batchusecase.ErrPremiumOnly):
		return "💎 Batches are available to premium users only."
	case errors.Is(err, sessiondomain.ErrNotConfigured):
		return textNeedBot
	case errors.Is(err, sessiondomain.ErrUnavailable):
		return "🔑 Add a user session first: /addsession <session string>"
	}
	return "❌ Could not start the task, try again later."
}

func orphanText(job batchdomain.BatchJob) string {
	return fmt.Sprintf("⚠️ Your previous task (%d/%d from %s, stopped at message %d) was interrupted by a restart and was not resumed. Start it again if needed.",
		job.Current, job.Total, job.ChannelRef, job.InFlightMessageID())
}
