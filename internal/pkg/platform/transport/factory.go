package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/http_client"
	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/platform/botapi"
	"media_relay_bot/internal/pkg/platform/mtproto"
)

const (
	BotAPI  = "botapi"
	MTProto = "mtproto"
)

var ErrUnknownTransport = errors.New("unknown relay transport")

type Config struct {
	RelayTransport string
	APIEndpoint    string
	FileEndpoint   string
	AppID          int
	AppHash        string
	HTTPClient     *http_client.LoggedClient
}

// Factory создает клиентов для пула сессий.
type Factory struct {
	cfg Config
	log zerolog.Logger

	connectBot func(ctx context.Context, token string, scratch int64) (platform.Client, error)
	connectMT  func(ctx context.Context, role platform.Role, creds mtproto.Credentials, artifact string) (platform.Client, error)
}

func NewFactory(cfg Config, log zerolog.Logger) (*Factory, error) {
	switch cfg.RelayTransport {
	case "", BotAPI:
		cfg.RelayTransport = BotAPI
	case MTProto:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, cfg.RelayTransport)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http_client.NewLoggedClient(2*time.Minute, log, false, "")
	}
	f := &Factory{cfg: cfg, log: log.With().Str("component", "transport").Logger()}
	f.connectBot = f.dialBotAPI
	f.connectMT = f.dialMTProto
	return f, nil
}

// NewRelay - бот пользователя. Служебный чат для чтения сообщений через
// Bot API - личка пользователя с его ботом.
func (f *Factory) NewRelay(ctx context.Context, userID int64, token, artifact string) (platform.Client, error) {
	if f.cfg.RelayTransport == MTProto {
		return f.connectMT(ctx, platform.RoleRelay, mtproto.Credentials{BotToken: token}, artifact)
	}
	return f.connectBot(ctx, token, userID)
}

func (f *Factory) NewUserSession(ctx context.Context, _ int64, secret, artifact string) (platform.Client, error) {
	return f.connectMT(ctx, platform.RoleUserSession, mtproto.Credentials{SessionString: secret}, artifact)
}

func (f *Factory) NewOverflow(ctx context.Context, secret, artifact string) (platform.Client, error) {
	return f.connectMT(ctx, platform.RoleOverflow, mtproto.Credentials{SessionString: secret}, artifact)
}

func (f *Factory) dialBotAPI(ctx context.Context, token string, scratch int64) (platform.Client, error) {
	return botapi.New(ctx, token, scratch, botapi.Config{
		APIEndpoint:  f.cfg.APIEndpoint,
		FileEndpoint: f.cfg.FileEndpoint,
		HTTPClient:   f.cfg.HTTPClient,
	}, f.log)
}

func (f *Factory) dialMTProto(ctx context.Context, role platform.Role, creds mtproto.Credentials, artifact string) (platform.Client, error) {
	return mtproto.Connect(ctx, role, creds, mtproto.Options{
		AppID:    f.cfg.AppID,
		AppHash:  f.cfg.AppHash,
		Artifact: artifact,
		Log:      f.log,
	})
}
