package usecase

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/session/domain"
	storedomain "media_relay_bot/internal/pkg/store/domain"
	"media_relay_bot/internal/pkg/vault"
)

type Config struct {
	ArtifactsDir    string
	ConnectAttempts int
	ConnectDelay    time.Duration
	ConnectTimeout  time.Duration
}

// Pool - единственный владелец клиентов Relay, UserSession и Overflow.
type Pool struct {
	cfg     Config
	store   storedomain.Storage
	vault   *vault.Vault
	factory domain.Factory
	log     zerolog.Logger

	mu       sync.Mutex
	relays   map[int64]platform.Client
	sessions map[int64]platform.Client
	gens     map[string]uint64
	group    singleflight.Group

	overflow     platform.Client
	overflowLock chan struct{}

	sleep func(ctx context.Context, d time.Duration) error
}

func NewPool(cfg Config, store storedomain.Storage, v *vault.Vault, factory domain.Factory, log zerolog.Logger) *Pool {
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = 3
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	return &Pool{
		cfg:          cfg,
		store:        store,
		vault:        v,
		factory:      factory,
		log:          log.With().Str("component", "session_pool").Logger(),
		relays:       make(map[int64]platform.Client),
		sessions:     make(map[int64]platform.Client),
		gens:         make(map[string]uint64),
		overflowLock: make(chan struct{}, 1),
		sleep:        sleepCtx,
	}
}

func (p *Pool) RelayArtifact(userID int64) string {
	return filepath.Join(p.cfg.ArtifactsDir, fmt.Sprintf("user_%d.session", userID))
}

func (p *Pool) SessionArtifact(userID int64) string {
	return filepath.Join(p.cfg.ArtifactsDir, fmt.Sprintf("%d_client.session", userID))
}

func (p *Pool) OverflowArtifact() string {
	return filepath.Join(p.cfg.ArtifactsDir, "overflow.session")
}

func cacheKey(role platform.Role, userID int64) string {
	return fmt.Sprintf("%s:%d", role, userID)
}

// connect повторяет создание клиента при временных сбоях транспорта.
func (p *Pool) connect(ctx context.Context, key string, build func(ctx context.Context) (platform.Client, error)) (platform.Client, error) {
	var last error
	for attempt := 1; attempt <= p.cfg.ConnectAttempts; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		client, err := build(cctx)
		cancel()
		if err == nil {
			return client, nil
		}
		if platform.KindOf(err) != platform.KindTransient {
			return nil, err
		}
		last = err
		p.log.Warn().Err(err).Str("client", key).Int("attempt", attempt).Msg("client start failed")
		if attempt < p.cfg.ConnectAttempts {
			if err := p.sleep(ctx, p.cfg.ConnectDelay); err != nil {
				return nil, err
			}
		}
	}
	return nil, platform.Wrap(platform.KindFatal, "connect "+key, last)
}

func (p *Pool) generation(key string) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gens[key]
}

func (p *Pool) Handles() []domain.Handle {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.Handle, 0, len(p.relays)+len(p.sessions)+1)
	for uid, c := range p.relays {
		out = append(out, domain.Handle{Role: platform.RoleRelay, UserID: uid, Client: c})
	}
	for uid, c := range p.sessions {
		out = append(out, domain.Handle{Role: platform.RoleUserSession, UserID: uid, Client: c})
	}
	if p.overflow != nil {
		out = append(out, domain.Handle{Role: platform.RoleOverflow, Client: p.overflow})
	}
	return out
}

func (p *Pool) Bindings(ctx context.Context, userID int64) (domain.Bindings, error) {
	doc, err := p.store.FindOne(ctx, userID)
	if err != nil {
		return domain.Bindings{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, relayLive := p.relays[userID]
	_, sessionLive := p.sessions[userID]
	return domain.Bindings{
		BotBound:      doc.String(storedomain.FieldBotToken) != "",
		SessionBound:  doc.String(storedomain.FieldSessionString) != "",
		RelayLive:     relayLive,
		SessionLive:   sessionLive,
		OverflowReady: p.overflow != nil,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
