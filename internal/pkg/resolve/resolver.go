package resolve

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/platform"
)

const (
	dialogPage      = 50
	dialogRetryPage = 200
)

// Clients - идентичности, через которые можно достать сообщение.
// Reader - пользовательская сессия либо Overflow, может быть nil.
type Clients struct {
	Relay  platform.Client
	Reader platform.Client
}

// Resolution - найденное сообщение и клиент, которому принадлежит ссылка на медиа.
type Resolution struct {
	Ref     MessageRef
	Message *platform.Message
	Source  platform.Client
	// Direct - сообщение получено Relay-клиентом, его медиа можно переслать без скачивания.
	Direct bool
}

type Resolver struct {
	log zerolog.Logger
}

func NewResolver(log zerolog.Logger) *Resolver {
	return &Resolver{log: log.With().Str("component", "resolver").Logger()}
}

func (r *Resolver) Resolve(ctx context.Context, cl Clients, ref MessageRef) (*Resolution, error) {
	if ref.Visibility == Private {
		return r.resolvePrivate(ctx, cl, ref)
	}
	return r.resolvePublic(ctx, cl, ref)
}

func (r *Resolver) resolvePublic(ctx context.Context, cl Clients, ref MessageRef) (*Resolution, error) {
	chat := ref.PublicChat()

	if ref.IsBotTarget() && cl.Reader != nil {
		msg, err := cl.Reader.GetMessage(ctx, chat, ref.MessageID)
		switch {
		case err == nil:
			return &Resolution{Ref: ref, Message: msg, Source: cl.Reader}, nil
		case !isEmpty(err):
			return nil, err
		}
	}

	if cl.Relay == nil {
		return nil, platform.Wrap(platform.KindConfigurationMissing, "resolve", errors.New("relay client is not bound"))
	}
	msg, err := cl.Relay.GetMessage(ctx, chat, ref.MessageID)
	if err == nil {
		return &Resolution{Ref: ref, Message: msg, Source: cl.Relay, Direct: true}, nil
	}
	if !isEmpty(err) && platform.KindOf(err) != platform.KindForbidden {
		return nil, err
	}
	r.log.Debug().Err(err).Str("ref", ref.String()).Msg("relay could not read message, trying reader")

	if cl.Reader == nil {
		return nil, notFound(ref)
	}
	if err := cl.Reader.JoinChat(ctx, chat); err != nil {
		r.log.Debug().Err(err).Str("chat", chat.String()).Msg("join failed")
	}
	msg, err = cl.Reader.GetMessage(ctx, chat, ref.MessageID)
	if err == nil {
		return &Resolution{Ref: ref, Message: msg, Source: cl.Reader}, nil
	}
	if isEmpty(err) {
		return nil, notFound(ref)
	}
	return nil, err
}

func (r *Resolver) resolvePrivate(ctx context.Context, cl Clients, ref MessageRef) (*Resolution, error) {
	if cl.Reader == nil {
		return nil, platform.Wrap(platform.KindConfigurationMissing, "resolve", errors.New("private links need a logged in session"))
	}

	r.refresh(ctx, cl.Reader, dialogPage)
	for _, chat := range []platform.ChatRef{ref.PrefixedChat(), ref.BareNegativeChat()} {
		msg, err := cl.Reader.GetMessage(ctx, chat, ref.MessageID)
		if err == nil {
			return &Resolution{Ref: ref, Message: msg, Source: cl.Reader}, nil
		}
		if escalates(err) {
			return nil, err
		}
		r.log.Debug().Err(err).Str("chat", chat.String()).Msg("private lookup failed")
	}

	r.refresh(ctx, cl.Reader, dialogRetryPage)
	msg, err := cl.Reader.GetMessage(ctx, ref.SourceChat(), ref.MessageID)
	if err == nil {
		return &Resolution{Ref: ref, Message: msg, Source: cl.Reader}, nil
	}
	if escalates(err) {
		return nil, err
	}
	return nil, notFound(ref)
}

func (r *Resolver) refresh(ctx context.Context, c platform.Client, limit int) {
	if err := c.RefreshDialogs(ctx, limit); err != nil {
		r.log.Warn().Err(err).Int("limit", limit).Msg("refresh dialogs failed")
	}
}

func isEmpty(err error) bool {
	return errors.Is(err, platform.ErrNotFound)
}

// escalates - ошибки, которые нельзя проглатывать при переборе кодировок id.
func escalates(err error) bool {
	switch platform.KindOf(err) {
	case platform.KindRateLimited, platform.KindConfigurationMissing:
		return true
	}
	return false
}

func notFound(ref MessageRef) error {
	return platform.Wrap(platform.KindNotFound, "resolve", errors.New(ref.String()))
}
