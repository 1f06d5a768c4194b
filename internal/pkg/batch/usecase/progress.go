package usecase

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/batch/domain"
	"media_relay_bot/internal/pkg/transfer"
)

// progressMessage - сообщение "Processing: i/N", которое правится после
// каждого элемента и заменяется итогом.
type progressMessage struct {
	notifier transfer.Notifier
	userID   int64
	chatID   int64
	msgID    int
	kind     domain.JobKind
	log      zerolog.Logger
}

func (e *Engine) openProgress(ctx context.Context, b *Batch) *progressMessage {
	p := &progressMessage{
		notifier: e.notifier,
		userID:   b.Job.UserID,
		chatID:   b.Job.ProgressChatID,
		kind:     b.Job.Kind,
		log:      e.log,
	}
	if p.chatID == 0 {
		p.chatID = b.Job.UserID
	}
	if p.kind == domain.KindSingle || e.notifier == nil {
		return p
	}
	id, err := e.notifier.Send(ctx, p.chatID, fmt.Sprintf("⏳ Processing: 0/%d", b.Job.Total))
	if err != nil {
		p.log.Debug().Err(err).Msg("progress message not sent")
		return p
	}
	p.msgID = id
	if err := e.registry.Update(p.userID, func(j *domain.BatchJob) { j.ProgressMessageID = id }); err != nil {
		p.log.Debug().Err(err).Msg("progress message id not persisted")
	}
	return p
}

func (p *progressMessage) update(ctx context.Context, sum domain.Summary, last domain.ItemReport) {
	if p.msgID == 0 {
		return
	}
	text := fmt.Sprintf("⏳ Processing: %d/%d\n✅ Success: %d\n#%d: %s", sum.Attempted, sum.Total, sum.Success, last.MessageID, last.Status)
	if err := p.notifier.Edit(ctx, p.chatID, p.msgID, text); err != nil {
		p.log.Debug().Err(err).Msg("progress edit failed")
	}
}

func (p *progressMessage) close(ctx context.Context, text string) {
	if p.notifier == nil {
		return
	}
	if p.msgID != 0 {
		if err := p.notifier.Edit(ctx, p.chatID, p.msgID, text); err == nil {
			return
		}
	}
	if _, err := p.notifier.Send(ctx, p.chatID, text); err != nil {
		p.log.Warn().Err(err).Int64("user_id", p.userID).Msg("batch summary not delivered")
	}
}
