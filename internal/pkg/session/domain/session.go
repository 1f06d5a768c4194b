package domain

import (
	"context"
	"errors"

	"media_relay_bot/internal/pkg/platform"
)

var (
	ErrNotConfigured       = errors.New("no bot token bound, use /setbot first")
	ErrUnavailable         = errors.New("no user session, use /addsession first")
	ErrOverflowUnavailable = errors.New("overflow session is not configured")
)

// Factory создает клиентов. artifact - путь к локальному файлу сессии,
// которым владеет пул.
type Factory interface {
	NewRelay(ctx context.Context, userID int64, token, artifact string) (platform.Client, error)
	NewUserSession(ctx context.Context, userID int64, secret, artifact string) (platform.Client, error)
	NewOverflow(ctx context.Context, secret, artifact string) (platform.Client, error)
}

// Handle - живой клиент в пуле.
type Handle struct {
	Role   platform.Role
	UserID int64
	Client platform.Client
}

// Bindings показывает, какие учетные данные пользователь сохранил.
type Bindings struct {
	BotBound      bool
	SessionBound  bool
	RelayLive     bool
	SessionLive   bool
	OverflowReady bool
}
