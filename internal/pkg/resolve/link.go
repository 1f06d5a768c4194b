package resolve

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"media_relay_bot/internal/pkg/platform"
)

type Visibility string

const (
	Public  Visibility = "public"
	Private Visibility = "private"
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{2,}$`)
	// с префиксом -100 id должен оставаться в int64
	internalIDPattern = regexp.MustCompile(`^[0-9]{1,15}$`)

	linkHosts = map[string]bool{"t.me": true, "telegram.me": true}
)

// MessageRef - разобранная ссылка на сообщение.
type MessageRef struct {
	ChannelRef string
	MessageID  int
	ThreadID   int
	Visibility Visibility
}

// ParseLink разбирает https://t.me/c/<id>/[<thread>/]<msg> и
// https://t.me/<username>/[<thread>/]<msg>; telegram.me тоже принимается.
func ParseLink(raw string) (MessageRef, error) {
	invalid := func(reason string) error {
		return platform.Wrap(platform.KindInvalidReference, "parse_link", fmt.Errorf("%s: %q", reason, raw))
	}

	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return MessageRef{}, invalid("not a link")
	}
	if !linkHosts[strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")] {
		return MessageRef{}, invalid("not a telegram link")
	}

	parts := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })
	ref := MessageRef{Visibility: Public}
	if len(parts) > 0 && parts[0] == "c" {
		ref.Visibility = Private
		parts = parts[1:]
	}
	if len(parts) < 2 || len(parts) > 3 {
		return MessageRef{}, invalid("unexpected path")
	}

	ref.ChannelRef = parts[0]
	msgID, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || msgID <= 0 {
		return MessageRef{}, invalid("bad message id")
	}
	ref.MessageID = msgID
	if len(parts) == 3 {
		thread, err := strconv.Atoi(parts[1])
		if err != nil || thread <= 0 {
			return MessageRef{}, invalid("bad thread id")
		}
		ref.ThreadID = thread
	}

	switch ref.Visibility {
	case Private:
		if !internalIDPattern.MatchString(ref.ChannelRef) || strings.Trim(ref.ChannelRef, "0") == "" {
			return MessageRef{}, invalid("bad internal chat id")
		}
	case Public:
		if !usernamePattern.MatchString(ref.ChannelRef) {
			return MessageRef{}, invalid("bad channel username")
		}
	}
	return ref, nil
}

// WithMessageID возвращает копию ссылки с другим id сообщения.
func (r MessageRef) WithMessageID(id int) MessageRef {
	r.MessageID = id
	return r
}

func (r MessageRef) IsBotTarget() bool {
	return r.Visibility == Public && strings.HasSuffix(strings.ToLower(r.ChannelRef), "bot")
}

// PrefixedChat - внутренний id в форме -100<id>.
func (r MessageRef) PrefixedChat() platform.ChatRef {
	id, _ := strconv.ParseInt("-100"+r.ChannelRef, 10, 64)
	return platform.ChatID(id)
}

// BareNegativeChat - внутренний id в форме -<id>.
func (r MessageRef) BareNegativeChat() platform.ChatRef {
	id, _ := strconv.ParseInt("-"+r.ChannelRef, 10, 64)
	return platform.ChatID(id)
}

func (r MessageRef) PublicChat() platform.ChatRef {
	return platform.ChatUsername(r.ChannelRef)
}

// SourceChat - чат, которым ссылка адресует источник по умолчанию.
func (r MessageRef) SourceChat() platform.ChatRef {
	if r.Visibility == Private {
		return r.PrefixedChat()
	}
	return r.PublicChat()
}

func (r MessageRef) String() string {
	if r.Visibility == Private {
		return fmt.Sprintf("c/%s/%d", r.ChannelRef, r.MessageID)
	}
	return fmt.Sprintf("%s/%d", r.ChannelRef, r.MessageID)
}
