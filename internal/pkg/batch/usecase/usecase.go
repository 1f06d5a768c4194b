package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media_relay_bot/internal/pkg/batch/domain"
	"media_relay_bot/internal/pkg/batch/repository"
	"media_relay_bot/internal/pkg/events"
	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/resolve"
	"media_relay_bot/internal/pkg/transfer"
)

var (
	ErrLimitExceeded = errors.New("count is above your batch limit")
	ErrPremiumOnly   = errors.New("batches are available to premium users only")
)

// Clients - источник клиентов пользователя (пул сессий).
type Clients interface {
	GetRelayClient(ctx context.Context, userID int64) (platform.Client, error)
	ReaderClient(ctx context.Context, userID int64) (platform.Client, error)
}

type Resolver interface {
	Resolve(ctx context.Context, cl resolve.Clients, ref resolve.MessageRef) (*resolve.Resolution, error)
}

type Transferer interface {
	Transfer(ctx context.Context, req transfer.Request) transfer.Outcome
}

type PremiumChecker interface {
	IsPremium(ctx context.Context, userID int64) (bool, error)
}

type Config struct {
	ItemDelay     time.Duration
	FreemiumLimit int
	PremiumLimit  int
	FloodWaitMax  time.Duration
}

// Engine ведет пакеты: не больше одного живого пакета на пользователя,
// элементы строго по порядку, отмена между элементами.
type Engine struct {
	cfg       Config
	registry  *repository.Registry
	clients   Clients
	resolver  Resolver
	transfer  Transferer
	premium   PremiumChecker
	notifier  transfer.Notifier
	publisher events.Publisher
	log       zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	running map[int64]struct{}
}

func NewEngine(cfg Config, registry *repository.Registry, clients Clients, resolver Resolver, tr Transferer, premium PremiumChecker, notifier transfer.Notifier, publisher events.Publisher, log zerolog.Logger) *Engine {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		clients:   clients,
		resolver:  resolver,
		transfer:  tr,
		premium:   premium,
		notifier:  notifier,
		publisher: publisher,
		log:       log.With().Str("component", "batch").Logger(),
		sleep:     sleepCtx,
		running:   make(map[int64]struct{}),
	}
}

// Batch - принятый к выполнению пакет вместе с клиентами владельца.
type Batch struct {
	Job     domain.BatchJob
	Ref     resolve.MessageRef
	clients resolve.Clients
}

type StartRequest struct {
	UserID int64
	Kind   domain.JobKind
	Ref    resolve.MessageRef
	Count  int
	// ChatID - куда писать прогресс, обычно чат пользователя с ботом.
	ChatID int64
}

// Running сообщает, крутится ли сейчас цикл пакета пользователя.
func (e *Engine) Running(userID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[userID]
	return ok
}

func (e *Engine) Status(userID int64) (domain.BatchJob, bool) {
	return e.registry.Get(userID)
}

// TakeOrphan отдает запись пакета, прерванного прошлым перезапуском.
func (e *Engine) TakeOrphan(userID int64) (domain.BatchJob, bool, error) {
	return e.registry.TakeOrphan(userID)
}

// Cancel выставляет флаг отмены. Осиротевшая запись просто удаляется.
func (e *Engine) Cancel(userID int64) (domain.BatchJob, error) {
	job, ok := e.registry.Get(userID)
	if !ok {
		return domain.BatchJob{}, domain.ErrJobNotFound
	}
	if job.Orphaned {
		_, _, err := e.registry.TakeOrphan(userID)
		return job, err
	}
	if err := e.registry.RequestCancel(userID); err != nil {
		return job, err
	}
	job.CancelRequested = true
	return job, nil
}

func (e *Engine) limit(ctx context.Context, userID int64) (int, error) {
	premium := false
	if e.premium != nil {
		p, err := e.premium.IsPremium(ctx, userID)
		if err != nil {
			return 0, fmt.Errorf("check premium: %w", err)
		}
		premium = p
	}
	if premium {
		return e.cfg.PremiumLimit, nil
	}
	if e.cfg.FreemiumLimit <= 0 {
		return 0, ErrPremiumOnly
	}
	return e.cfg.FreemiumLimit, nil
}

func (e *Engine) publish(ctx context.Context, eventType, jobID string, data any) {
	if err := e.publisher.Publish(ctx, events.NewEnvelope(eventType, jobID, data)); err != nil {
		e.log.Debug().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}

func newJobID() string {
	return uuid.NewString()
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
