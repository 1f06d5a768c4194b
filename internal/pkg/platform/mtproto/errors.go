package mtproto

import (
	"errors"

	"github.com/gotd/td/tgerr"

	"media_relay_bot/internal/pkg/platform"
)

var errPeerUnknown = errors.New("peer is not in the dialog cache")

// classify переводит ошибку MTProto в platform.Error.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *platform.Error
	if errors.As(err, &pe) {
		return err
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return platform.RateLimited(op, d, err)
	}
	switch {
	case tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "SESSION_EXPIRED", "USER_DEACTIVATED", "ACCESS_TOKEN_INVALID", "ACCESS_TOKEN_EXPIRED"):
		return platform.Wrap(platform.KindConfigurationMissing, op, err)
	case tgerr.Is(err, "CHAT_ADMIN_REQUIRED", "CHAT_WRITE_FORBIDDEN", "CHANNEL_PRIVATE", "CHAT_FORWARDS_RESTRICTED", "USER_BANNED_IN_CHANNEL", "INVITE_HASH_EXPIRED"):
		return platform.Wrap(platform.KindForbidden, op, err)
	case tgerr.Is(err, "USERNAME_NOT_OCCUPIED", "CHANNEL_INVALID", "MSG_ID_INVALID", "MESSAGE_ID_INVALID", "CHAT_ID_INVALID"):
		return platform.Wrap(platform.KindNotFound, op, err)
	case tgerr.Is(err, "USERNAME_INVALID", "PEER_ID_INVALID", "INVITE_HASH_INVALID"):
		return platform.Wrap(platform.KindInvalidReference, op, err)
	}
	if rpcErr, ok := tgerr.As(err); ok && rpcErr.Code >= 500 {
		return platform.Wrap(platform.KindTransient, op, err)
	}
	if platform.IsTransportFailure(err) {
		return platform.Wrap(platform.KindTransient, op, err)
	}
	return platform.Wrap(platform.KindFatal, op, err)
}
