package mtproto

import (
	"context"

	"github.com/gotd/td/telegram/uploader"

	"media_relay_bot/internal/pkg/platform"
)

type uploadProgress platform.ProgressFunc

func (f uploadProgress) Chunk(_ context.Context, state uploader.ProgressState) error {
	f(state.Uploaded, state.Total)
	return nil
}
