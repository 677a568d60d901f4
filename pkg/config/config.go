// Package config describes the runtime configuration of the bot.
package config

import (
	"fmt"
	"time"

	appredis "github.com/Proton-105/chatflow/pkg/redis"
)

const (
	ModeLongPoll = "longpoll"
	ModeWebhook  = "webhook"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
)

// Config holds runtime configuration for the bot process.
type Config struct {
	AppEnv      string            `mapstructure:"app_env"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Sentry      SentryConfig      `mapstructure:"sentry"`
	Bot         BotConfig         `mapstructure:"bot"`
	Server      ServerConfig      `mapstructure:"server"`
	Session     SessionConfig     `mapstructure:"session"`
	Redis       appredis.Config   `mapstructure:"redis"`
	Database    DatabaseConfig    `mapstructure:"database"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Idempotency IdempotencyConfig `mapstructure:"idempotency"`
	Jobs        JobsConfig        `mapstructure:"jobs"`
	I18n        I18nConfig        `mapstructure:"i18n"`
	Profiles    ProfilesConfig    `mapstructure:"profiles"`
}

type LoggerConfig struct {
	Level  string        `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string        `mapstructure:"format" validate:"omitempty,oneof=json text"`
	File   LogFileConfig `mapstructure:"file"`
}

// LogFileConfig enables a rotated log file next to stdout when Path is set.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

type BotConfig struct {
	Token string `mapstructure:"token" validate:"required"`
	Mode  string `mapstructure:"mode" validate:"required,oneof=longpoll webhook"`
	// Timeout is the long-poll timeout passed to getUpdates.
	Timeout time.Duration `mapstructure:"timeout"`
	// PollBackoff is the fixed delay after a failed getUpdates call.
	PollBackoff time.Duration `mapstructure:"poll_backoff"`
	WebhookPath string        `mapstructure:"webhook_path"`
	// WebhookURL is registered with setWebhook on start when set.
	WebhookURL    string `mapstructure:"webhook_url" validate:"omitempty,url"`
	WebhookSecret string `mapstructure:"webhook_secret"`
	APIURL        string `mapstructure:"api_url" validate:"omitempty,url"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SessionConfig struct {
	Backend       string        `mapstructure:"backend" validate:"required,oneof=memory redis postgres bolt"`
	TTL           time.Duration `mapstructure:"ttl"`
	PruneInterval time.Duration `mapstructure:"prune_interval"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	BoltPath      string        `mapstructure:"bolt_path" validate:"required_if=Backend bolt"`
	// CircuitBreaker guards remote backends (redis, postgres).
	CircuitBreaker bool `mapstructure:"circuit_breaker"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RateLimitRule struct {
	Limit  int    `mapstructure:"limit" validate:"gte=0"`
	Window string `mapstructure:"window"`
}

type RateLimitConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	PerUser   RateLimitRule `mapstructure:"per_user"`
	Whitelist []int64       `mapstructure:"whitelist"`
}

type IdempotencyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type JobsConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	PruneCron   string `mapstructure:"prune_cron"`
	Concurrency int    `mapstructure:"concurrency" validate:"gte=0"`
}

// ProfilesConfig tunes the user profile store. Profiles live in postgres when
// database.dsn is set and in memory otherwise.
type ProfilesConfig struct {
	// CacheTTL enables the redis profile cache when redis is reachable.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type I18nConfig struct {
	DefaultLang string `mapstructure:"default_lang"`
}

// Validate checks the rules that span several sections.
func (c *Config) Validate() error {
	needsRedis := c.Session.Backend == BackendRedis || c.Idempotency.Enabled || c.Jobs.Enabled
	if needsRedis && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the configured features")
	}

	if c.Session.Backend == BackendPostgres && c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required when session.backend is %q", BackendPostgres)
	}

	if c.Bot.Mode == ModeWebhook && c.Bot.WebhookPath == "" {
		return fmt.Errorf("bot.webhook_path is required when bot.mode is %q", ModeWebhook)
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Bot.Timeout <= 0 {
		c.Bot.Timeout = 10 * time.Second
	}
	if c.Bot.PollBackoff <= 0 {
		c.Bot.PollBackoff = 3 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Session.Backend == "" {
		c.Session.Backend = BackendMemory
	}
	if c.Session.KeyPrefix == "" {
		c.Session.KeyPrefix = "session:"
	}
	if c.Session.PruneInterval <= 0 {
		c.Session.PruneInterval = 10 * time.Minute
	}
	if c.Idempotency.TTL <= 0 {
		c.Idempotency.TTL = 24 * time.Hour
	}
	if c.Jobs.PruneCron == "" {
		c.Jobs.PruneCron = "*/10 * * * *"
	}
	if c.I18n.DefaultLang == "" {
		c.I18n.DefaultLang = "en"
	}
}
