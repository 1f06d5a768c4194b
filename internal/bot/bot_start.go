package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	batchdomain "media_relay_bot/internal/pkg/batch/domain"
	batchusecase "media_relay_bot/internal/pkg/batch/usecase"
	"media_relay_bot/internal/pkg/preferences"
	sessiondomain "media_relay_bot/internal/pkg/session/domain"
)

// Sessions - привязка учетных данных (пул сессий).
type Sessions interface {
	BindRelay(ctx context.Context, userID int64, token string) error
	UnbindRelay(ctx context.Context, userID int64) error
	AddUserSession(ctx context.Context, userID int64, secret string) error
	ReleaseUserSession(ctx context.Context, userID int64) error
	Bindings(ctx context.Context, userID int64) (sessiondomain.Bindings, error)
}

// Batches - движок пакетов.
type Batches interface {
	Start(ctx context.Context, req batchusecase.StartRequest) (*batchusecase.Batch, error)
	Run(ctx context.Context, b *batchusecase.Batch) batchdomain.Summary
	Cancel(userID int64) (batchdomain.BatchJob, error)
	Status(userID int64) (batchdomain.BatchJob, bool)
	TakeOrphan(userID int64) (batchdomain.BatchJob, bool, error)
}

type Preferences interface {
	Load(ctx context.Context, userID int64) (*preferences.UserPreferences, error)
	SetChat(ctx context.Context, userID int64, raw string) error
	SetRenameTag(ctx context.Context, userID int64, tag string) error
	SetCaption(ctx context.Context, userID int64, caption string) error
	AddReplacement(ctx context.Context, userID int64, word, replacement string) error
	AddDeleteWords(ctx context.Context, userID int64, words ...string) error
	Reset(ctx context.Context, userID int64) error
}

type Deps struct {
	Sessions      Sessions
	Batches       Batches
	Preferences   Preferences
	Conversations Storage
	Log           zerolog.Logger
}

type Bot struct {
	Api *tgbotapi.BotAPI

	sessions      Sessions
	batches       Batches
	prefs         Preferences
	conversations Storage
	log           zerolog.Logger

	wg sync.WaitGroup
}

func New(api *tgbotapi.BotAPI, deps Deps) *Bot {
	conversations := deps.Conversations
	if conversations == nil {
		conversations = NewMemoryStorage()
	}
	return &Bot{
		Api:           api,
		sessions:      deps.Sessions,
		batches:       deps.Batches,
		prefs:         deps.Preferences,
		conversations: conversations,
		log:           deps.Log.With().Str("component", "bot").Logger(),
	}
}

// Start читает обновления до отмены ctx, потом ждет обработчики и запущенные пакеты.
// Пакеты работают под тем же ctx: при остановке их записи остаются на диске.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.Api.GetUpdatesChan(u)

	b.log.Info().Str("account", b.Api.Self.UserName).Msg("authorized")

	defer b.wg.Wait()
	dispatch := newDispatcher(&b.wg, b.handleUpdate)
	for {
		select {
		case <-ctx.Done():
			b.Api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			dispatch.push(ctx, update)
		}
	}
}

// Wait ждет завершения всех пакетов.
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Conversations отдается в Sweeper.
func (b *Bot) Conversations() Storage {
	return b.conversations
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}
	if !msg.Chat.IsPrivate() {
		return
	}

	b.reportOrphan(msg)

	if msg.IsCommand() {
		handleCommand(ctx, b, msg)
		return
	}
	b.handleText(ctx, msg)
}

func (b *Bot) reportOrphan(msg *tgbotapi.Message) {
	job, ok, err := b.batches.TakeOrphan(msg.From.ID)
	if err != nil {
		b.log.Warn().Err(err).Int64("user_id", msg.From.ID).Msg("orphaned batch not cleared")
	}
	if !ok {
		return
	}
	b.reply(msg, orphanText(job))
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	b.send(msg.Chat.ID, text)
}

func (b *Bot) send(chatID int64, text string) {
	out := tgbotapi.NewMessage(chatID, text)
	out.DisableWebPagePreview = true
	if _, err := b.Api.Send(out); err != nil {
		b.log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply not sent")
	}
}

// forget удаляет сообщение с секретом из чата.
func (b *Bot) forget(msg *tgbotapi.Message) {
	if _, err := b.Api.Request(tgbotapi.NewDeleteMessage(msg.Chat.ID, msg.MessageID)); err != nil {
		b.log.Debug().Err(err).Int64("user_id", msg.From.ID).Msg("secret message not deleted")
	}
}
