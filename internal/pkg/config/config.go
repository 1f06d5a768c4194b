package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "RELAY"

var ErrMissing = errors.New("required setting is missing")

type Telegram struct {
	Token           string
	APIEndpoint     string
	FileEndpoint    string
	AppID           int
	AppHash         string
	RelayTransport  string
	ConnectTimeout  time.Duration
	ConnectAttempts int
	ConnectDelay    time.Duration
}

type Overflow struct {
	Session     string
	StagingChat int64
}

type Vault struct {
	MasterKey string
	Salt      string
}

type Store struct {
	Driver     string
	DSN        string
	Database   string
	Collection string
}

type Batch struct {
	RegistryPath  string
	ItemDelay     time.Duration
	FreemiumLimit int
	PremiumLimit  int
	FloodWaitMax  time.Duration
}

type Transfer struct {
	TempDir      string
	ThumbsDir    string
	SessionsDir  string
	SizeLimit    int64
	ProbeWorkers int
	FFmpeg       string
	FFprobe      string
}

type Health struct {
	Interval      time.Duration
	SweepInterval time.Duration
	StaleAfter    time.Duration
	MemoryPercent float64
	DiskPercent   float64
	CPUPercent    float64
	MaxJobs       int
	DiskPath      string
	Listen        string
}

type Supervisor struct {
	MaxRestarts  int
	RestartDelay time.Duration
}

type Events struct {
	AMQPURL  string
	Exchange string
}

type Logging struct {
	Level  string
	Format string
	HTTP   bool
	Sink   string
}

type Config struct {
	Telegram   Telegram
	Overflow   Overflow
	Vault      Vault
	Store      Store
	Batch      Batch
	Transfer   Transfer
	Health     Health
	Supervisor Supervisor
	Events     Events
	Logging    Logging
}

// SetDefaults регистрирует значения по умолчанию и чтение переменных RELAY_*.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.file_endpoint", "https://api.telegram.org/file/bot%s/%s")
	v.SetDefault("telegram.relay_transport", "mtproto")
	v.SetDefault("telegram.connect_timeout", 30*time.Second)
	v.SetDefault("telegram.connect_attempts", 3)
	v.SetDefault("telegram.connect_delay", 5*time.Second)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.database", "media_relay")
	v.SetDefault("store.collection", "users")

	v.SetDefault("batch.registry_path", "active_users.json")
	v.SetDefault("batch.item_delay", 10*time.Second)
	v.SetDefault("batch.freemium_limit", 10)
	v.SetDefault("batch.premium_limit", 500)
	v.SetDefault("batch.flood_wait_max", 2*time.Minute)

	v.SetDefault("transfer.temp_dir", "downloads")
	v.SetDefault("transfer.thumbs_dir", "thumbs")
	v.SetDefault("transfer.sessions_dir", "sessions")
	v.SetDefault("transfer.size_limit", int64(2<<30))
	v.SetDefault("transfer.probe_workers", 4)
	v.SetDefault("transfer.ffmpeg", "ffmpeg")
	v.SetDefault("transfer.ffprobe", "ffprobe")

	v.SetDefault("health.interval", 5*time.Minute)
	v.SetDefault("health.sweep_interval", time.Hour)
	v.SetDefault("health.stale_after", 30*time.Minute)
	v.SetDefault("health.memory_percent", 85.0)
	v.SetDefault("health.disk_percent", 90.0)
	v.SetDefault("health.cpu_percent", 80.0)
	v.SetDefault("health.max_jobs", 8)
	v.SetDefault("health.disk_path", "/")

	v.SetDefault("supervisor.max_restarts", 5)
	v.SetDefault("supervisor.restart_delay", 5*time.Second)

	v.SetDefault("events.exchange", "relay.events")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.http", false)
}

// Load собирает Config и проверяет обязательные ключи.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Telegram: Telegram{
			Token:           strings.TrimSpace(v.GetString("telegram.token")),
			APIEndpoint:     v.GetString("telegram.api_endpoint"),
			FileEndpoint:    v.GetString("telegram.file_endpoint"),
			AppID:           v.GetInt("telegram.app_id"),
			AppHash:         v.GetString("telegram.app_hash"),
			RelayTransport:  strings.ToLower(v.GetString("telegram.relay_transport")),
			ConnectTimeout:  v.GetDuration("telegram.connect_timeout"),
			ConnectAttempts: v.GetInt("telegram.connect_attempts"),
			ConnectDelay:    v.GetDuration("telegram.connect_delay"),
		},
		Overflow: Overflow{
			Session:     strings.TrimSpace(v.GetString("overflow.session")),
			StagingChat: v.GetInt64("overflow.staging_chat_id"),
		},
		Vault: Vault{
			MasterKey: v.GetString("vault.master_key"),
			Salt:      v.GetString("vault.salt"),
		},
		Store: Store{
			Driver:     strings.ToLower(v.GetString("store.driver")),
			DSN:        v.GetString("store.dsn"),
			Database:   v.GetString("store.database"),
			Collection: v.GetString("store.collection"),
		},
		Batch: Batch{
			RegistryPath:  v.GetString("batch.registry_path"),
			ItemDelay:     v.GetDuration("batch.item_delay"),
			FreemiumLimit: v.GetInt("batch.freemium_limit"),
			PremiumLimit:  v.GetInt("batch.premium_limit"),
			FloodWaitMax:  v.GetDuration("batch.flood_wait_max"),
		},
		Transfer: Transfer{
			TempDir:      v.GetString("transfer.temp_dir"),
			ThumbsDir:    v.GetString("transfer.thumbs_dir"),
			SessionsDir:  v.GetString("transfer.sessions_dir"),
			SizeLimit:    v.GetInt64("transfer.size_limit"),
			ProbeWorkers: v.GetInt("transfer.probe_workers"),
			FFmpeg:       v.GetString("transfer.ffmpeg"),
			FFprobe:      v.GetString("transfer.ffprobe"),
		},
		Health: Health{
			Interval:      v.GetDuration("health.interval"),
			SweepInterval: v.GetDuration("health.sweep_interval"),
			StaleAfter:    v.GetDuration("health.stale_after"),
			MemoryPercent: v.GetFloat64("health.memory_percent"),
			DiskPercent:   v.GetFloat64("health.disk_percent"),
			CPUPercent:    v.GetFloat64("health.cpu_percent"),
			MaxJobs:       v.GetInt("health.max_jobs"),
			DiskPath:      v.GetString("health.disk_path"),
			Listen:        v.GetString("health.listen"),
		},
		Supervisor: Supervisor{
			MaxRestarts:  v.GetInt("supervisor.max_restarts"),
			RestartDelay: v.GetDuration("supervisor.restart_delay"),
		},
		Events: Events{
			AMQPURL:  v.GetString("events.amqp_url"),
			Exchange: v.GetString("events.exchange"),
		},
		Logging: Logging{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
			HTTP:   v.GetBool("logging.http"),
			Sink:   v.GetString("logging.http_sink"),
		},
	}
	cfg.Transfer.SizeLimit = cfg.effectiveSizeLimit()
	return cfg, cfg.Validate()
}

// BotAPIUploadLimit - предел загрузки через публичный Bot API.
const BotAPIUploadLimit = 50 << 20

const publicBotAPIHost = "api.telegram.org"

// effectiveSizeLimit сужает порог для ретранслятора на публичном Bot API:
// все, что больше 50 МБ, уходит через Overflow и copyMessage.
func (c Config) effectiveSizeLimit() int64 {
	if c.Telegram.RelayTransport != "botapi" || !strings.Contains(c.Telegram.APIEndpoint, publicBotAPIHost) {
		return c.Transfer.SizeLimit
	}
	return min(c.Transfer.SizeLimit, BotAPIUploadLimit)
}

func (c Config) Validate() error {
	var missing []string
	if c.Telegram.Token == "" {
		missing = append(missing, "telegram.token")
	}
	if c.Vault.MasterKey == "" {
		missing = append(missing, "vault.master_key")
	}
	if c.Vault.Salt == "" {
		missing = append(missing, "vault.salt")
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		missing = append(missing, "store.dsn")
	}
	if c.needsMTProto() && (c.Telegram.AppID == 0 || c.Telegram.AppHash == "") {
		missing = append(missing, "telegram.app_id/telegram.app_hash")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissing, strings.Join(missing, ", "))
	}

	switch c.Store.Driver {
	case "memory", "postgres", "mongo":
	default:
		return fmt.Errorf("unknown store.driver %q", c.Store.Driver)
	}
	switch c.Telegram.RelayTransport {
	case "botapi", "mtproto":
	default:
		return fmt.Errorf("unknown telegram.relay_transport %q", c.Telegram.RelayTransport)
	}
	if c.Overflow.Session != "" && c.Overflow.StagingChat == 0 {
		return fmt.Errorf("%w: overflow.staging_chat_id is required with overflow.session", ErrMissing)
	}
	return nil
}

// needsMTProto - MTProto нужен всегда, когда есть сессии пользователей или Overflow.
// app_id обязателен только если он реально используется.
func (c Config) needsMTProto() bool {
	return c.Telegram.RelayTransport == "mtproto" || c.Overflow.Session != ""
}

// Dirs - каталоги, которые нужно создать при старте.
func (c Config) Dirs() []string {
	dirs := []string{c.Transfer.TempDir, c.Transfer.ThumbsDir, c.Transfer.SessionsDir}
	if d := filepath.Dir(c.Batch.RegistryPath); d != "." {
		dirs = append(dirs, d)
	}
	return dirs
}
