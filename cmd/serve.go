package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"media_relay_bot/internal/bot"
	"media_relay_bot/internal/pkg/batch/repository"
	batchusecase "media_relay_bot/internal/pkg/batch/usecase"
	"media_relay_bot/internal/pkg/config"
	"media_relay_bot/internal/pkg/events"
	"media_relay_bot/internal/pkg/health"
	"media_relay_bot/internal/pkg/http_client"
	"media_relay_bot/internal/pkg/logging"
	"media_relay_bot/internal/pkg/media"
	"media_relay_bot/internal/pkg/platform"
	"media_relay_bot/internal/pkg/platform/transport"
	"media_relay_bot/internal/pkg/preferences"
	"media_relay_bot/internal/pkg/resolve"
	sessionusecase "media_relay_bot/internal/pkg/session/usecase"
	storedomain "media_relay_bot/internal/pkg/store/domain"
	"media_relay_bot/internal/pkg/store/mongo_storage"
	"media_relay_bot/internal/pkg/store/postgres_storage"
	storeusecase "media_relay_bot/internal/pkg/store/usecase"
	"media_relay_bot/internal/pkg/transfer"
	"media_relay_bot/internal/pkg/vault"
)

var errUpdatesClosed = errors.New("update stream closed")

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the command bot (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	log := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	for _, dir := range cfg.Dirs() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	unlock, err := repository.Lock(cfg.Batch.RegistryPath)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Batch.RegistryPath).Msg("registry lock")
		return err
	}
	defer unlock()

	return health.RunWithRestarts(ctx, health.RestartPolicy{
		MaxRestarts: cfg.Supervisor.MaxRestarts,
		Delay:       cfg.Supervisor.RestartDelay,
	}, log, func(ctx context.Context) error {
		return serveOnce(ctx, cfg, log)
	})
}

// serveOnce собирает весь стек заново: BotAPI нельзя перезапустить после
// StopReceivingUpdates.
func serveOnce(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	httpClient := http_client.NewLoggedClient(2*time.Minute, log, cfg.Logging.HTTP, cfg.Logging.Sink)

	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(closeCtx)
	}()

	v, err := vault.New(cfg.Vault.MasterKey, cfg.Vault.Salt)
	if err != nil {
		return err
	}

	factory, err := transport.NewFactory(transport.Config{
		RelayTransport: cfg.Telegram.RelayTransport,
		APIEndpoint:    cfg.Telegram.APIEndpoint,
		FileEndpoint:   cfg.Telegram.FileEndpoint,
		AppID:          cfg.Telegram.AppID,
		AppHash:        cfg.Telegram.AppHash,
		HTTPClient:     httpClient,
	}, log)
	if err != nil {
		return err
	}

	pool := sessionusecase.NewPool(sessionusecase.Config{
		ArtifactsDir:    cfg.Transfer.SessionsDir,
		ConnectAttempts: cfg.Telegram.ConnectAttempts,
		ConnectDelay:    cfg.Telegram.ConnectDelay,
		ConnectTimeout:  cfg.Telegram.ConnectTimeout,
	}, store, v, factory, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		pool.Shutdown(shutdownCtx)
	}()
	if err := pool.StartOverflow(ctx, cfg.Overflow.Session); err != nil {
		// без Overflow большие файлы просто не пройдут, бот работает дальше
		log.Error().Err(err).Msg("overflow client unavailable")
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Telegram.Token, cfg.Telegram.APIEndpoint, httpClient)
	if err != nil {
		return fmt.Errorf("command bot: %w", err)
	}
	notifier := bot.Notifier{Api: api}

	prefs := preferences.NewService(store, cfg.Transfer.ThumbsDir)
	prober := media.NewMediaProcessor(cfg.Transfer.FFprobe, cfg.Transfer.FFmpeg, cfg.Transfer.ProbeWorkers, log)
	pipeline := transfer.NewPipeline(transfer.Config{
		TempDir:     cfg.Transfer.TempDir,
		SizeLimit:   cfg.Transfer.SizeLimit,
		StagingChat: cfg.Overflow.StagingChat,
	}, prefs, notifier, pool, prober, log)

	registry := repository.NewRegistry(cfg.Batch.RegistryPath)
	orphans, err := registry.Load()
	if err != nil {
		return err
	}
	if orphans > 0 {
		log.Warn().Int("jobs", orphans).Msg("found batches interrupted by the previous run")
	}

	publisher := openPublisher(ctx, cfg.Events, log)
	defer publisher.Close()

	engine := batchusecase.NewEngine(batchusecase.Config{
		ItemDelay:     cfg.Batch.ItemDelay,
		FreemiumLimit: cfg.Batch.FreemiumLimit,
		PremiumLimit:  cfg.Batch.PremiumLimit,
		FloodWaitMax:  cfg.Batch.FloodWaitMax,
	}, registry, pool, resolve.NewResolver(log), pipeline, prefs, notifier, publisher, log)

	conversations := bot.NewMemoryStorage()
	b := bot.New(api, bot.Deps{
		Sessions:      pool,
		Batches:       engine,
		Preferences:   prefs,
		Conversations: conversations,
		Log:           log,
	})

	supervisor := health.NewSupervisor(cfg.Health.Interval, log,
		health.FuncProbe{ProbeName: "command_bot", Fn: func(context.Context) error {
			_, err := api.GetMe()
			return err
		}},
		health.ClientsProbe{Role: platform.RoleRelay, Pool: pool},
		health.ClientsProbe{Role: platform.RoleUserSession, Pool: pool},
		health.ClientsProbe{Role: platform.RoleOverflow, Pool: pool},
		health.FuncProbe{ProbeName: "store", Fn: store.Ping},
		health.NewSystemProbe(health.Thresholds{
			MemoryPercent: cfg.Health.MemoryPercent,
			DiskPercent:   cfg.Health.DiskPercent,
			CPUPercent:    cfg.Health.CPUPercent,
			MaxJobs:       cfg.Health.MaxJobs,
		}, cfg.Health.DiskPath, registry),
	)
	sweeper := &health.Sweeper{
		Interval:      cfg.Health.SweepInterval,
		StaleAfter:    cfg.Health.StaleAfter,
		Jobs:          registry,
		Live:          engine.Running,
		Conversations: conversations,
		TempDir:       cfg.Transfer.TempDir,
		Log:           log,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := b.Start(ctx); err != nil {
			return err
		}
		return errUpdatesClosed
	})
	g.Go(func() error { return supervisor.Run(ctx) })
	g.Go(func() error { return sweeper.Run(ctx) })
	if cfg.Health.Listen != "" {
		web := bot.NewWebServer(supervisor, cfg.Health.Listen, log)
		g.Go(func() error { return web.Start(ctx) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("stopped")
		return nil
	}
	return err
}

func openStore(ctx context.Context, cfg config.Store) (storedomain.Storage, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres_storage.Open(ctx, cfg.DSN)
	case "mongo":
		return mongo_storage.Open(ctx, cfg.DSN, cfg.Database, cfg.Collection)
	default:
		return storeusecase.NewMemoryStorage(), nil
	}
}

func openPublisher(ctx context.Context, cfg config.Events, log zerolog.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.Noop{}
	}
	p, err := events.DialAMQP(ctx, cfg.AMQPURL, cfg.Exchange, log)
	if err != nil {
		log.Error().Err(err).Msg("events disabled")
		return events.Noop{}
	}
	return p
}
