package mtproto

import (
	"io"

	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"media_relay_bot/internal/pkg/platform"
)

// sentMessageID достает id отправленного сообщения из ответа API.
func sentMessageID(upd tg.UpdatesClass, randomID int64) int {
	var list []tg.UpdateClass
	switch u := upd.(type) {
	case *tg.UpdateShortSentMessage:
		return u.ID
	case *tg.Updates:
		list = u.Updates
	case *tg.UpdatesCombined:
		list = u.Updates
	}
	fallback := 0
	for _, item := range list {
		switch v := item.(type) {
		case *tg.UpdateMessageID:
			if v.RandomID == randomID {
				return v.ID
			}
		case *tg.UpdateNewMessage:
			if fallback == 0 {
				fallback = v.Message.GetID()
			}
		case *tg.UpdateNewChannelMessage:
			if fallback == 0 {
				fallback = v.Message.GetID()
			}
		}
	}
	return fallback
}

func isAlreadyMember(err error) bool {
	return tgerr.Is(err, "USER_ALREADY_PARTICIPANT")
}

func isNotModified(err error) bool {
	return tgerr.Is(err, "MESSAGE_NOT_MODIFIED")
}

type progressWriter struct {
	w     io.Writer
	total int64
	done  int64
	fn    platform.ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if p.fn != nil && n > 0 {
		p.fn(p.done, p.total)
	}
	return n, err
}
