package transfer

import (
	"context"

	"github.com/rs/zerolog"
)

// statusMessage - сообщение пользователю, которое правится по ходу передачи.
type statusMessage struct {
	notifier Notifier
	chatID   int64
	msgID    int
	log      zerolog.Logger
}

func (p *Pipeline) openStatus(ctx context.Context, chatID int64, text string) *statusMessage {
	s := &statusMessage{notifier: p.notifier, chatID: chatID, log: p.log}
	id, err := p.notifier.Send(ctx, chatID, text)
	if err != nil {
		p.log.Debug().Err(err).Int64("chat_id", chatID).Msg("status message not sent")
		return s
	}
	s.msgID = id
	return s
}

func (s *statusMessage) set(ctx context.Context, text string) {
	if s.msgID == 0 {
		return
	}
	if err := s.notifier.Edit(ctx, s.chatID, s.msgID, text); err != nil {
		s.log.Debug().Err(err).Msg("status edit failed")
	}
}

func (s *statusMessage) render(ctx context.Context) func(string) {
	return func(text string) { s.set(ctx, text) }
}

func (s *statusMessage) fail(ctx context.Context, text string) {
	s.set(ctx, text)
}

func (s *statusMessage) done(ctx context.Context) {
	if s.msgID == 0 {
		return
	}
	if err := s.notifier.Delete(ctx, s.chatID, s.msgID); err != nil {
		s.log.Debug().Err(err).Msg("status delete failed")
	}
}
