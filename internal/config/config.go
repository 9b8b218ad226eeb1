package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"cruise-drop-alerts/internal/logging"
)

// Store backends.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendMemory   = "memory"
)

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	Store      StoreConfig      `mapstructure:"store"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Summarizer SummarizerConfig `mapstructure:"summarizer"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// StoreConfig selects where snapshots and the drop log live.
type StoreConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=postgres redis memory"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig covers the Redis store and stream notifier.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	Cron            string        `mapstructure:"cron"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
	RunOnStart      bool          `mapstructure:"run_on_start"`
}

// FeedConfig describes the paginated pricing feed.
type FeedConfig struct {
	BaseURL        string            `mapstructure:"base_url"`
	Accept         string            `mapstructure:"accept"`
	UserAgent      string            `mapstructure:"user_agent"`
	RequestTimeout time.Duration     `mapstructure:"request_timeout"`
	PageInterval   time.Duration     `mapstructure:"page_interval"`
	MaxPages       int               `mapstructure:"max_pages" validate:"gte=0"`
	Schema         string            `mapstructure:"schema"`
	Paths          map[string]string `mapstructure:"paths"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	Recipient   string            `mapstructure:"recipient" validate:"omitempty,email"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Telegram    TelegramConfig    `mapstructure:"telegram"`
	RedisStream RedisStreamConfig `mapstructure:"redis_stream"`
}

// SMTPConfig configures email delivery.
type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from" validate:"omitempty,email"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// RedisStreamConfig publishes drop digests to a Redis stream.
type RedisStreamConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Stream    string `mapstructure:"stream"`
	MaxLength int64  `mapstructure:"max_length"`
}

// SummarizerConfig configures the optional text-generation service.
type SummarizerConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIURL  string        `mapstructure:"api_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AdminConfig exposes the HTTP trigger surface.
type AdminConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Listen         string        `mapstructure:"listen"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
	ShowLimit     int `mapstructure:"show_limit"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("CRUISEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cruisewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("store.backend", BackendPostgres)

	v.SetDefault("database.max_open_conns", 5)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "cruisewatch")

	v.SetDefault("scheduler.interval", "15m")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0))
	v.SetDefault("scheduler.startup_delay", "0s")
	v.SetDefault("scheduler.run_on_start", false)

	v.SetDefault("feed.accept", "application/json;api_version=2")
	v.SetDefault("feed.user_agent", "cruisewatch/1.0")
	v.SetDefault("feed.request_timeout", "20s")
	v.SetDefault("feed.page_interval", "250ms")
	v.SetDefault("feed.max_pages", 0)
	v.SetDefault("feed.schema", "v2-deal-code")

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.smtp.enabled", true)
	v.SetDefault("alerting.smtp.port", 587)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.redis_stream.enabled", false)
	v.SetDefault("alerting.redis_stream.stream", "cruisewatch:digests")
	v.SetDefault("alerting.redis_stream.max_length", 1000)

	v.SetDefault("summarizer.enabled", false)
	v.SetDefault("summarizer.api_url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("summarizer.model", "gpt-4o-mini")
	v.SetDefault("summarizer.timeout", "30s")

	v.SetDefault("admin.enabled", false)
	v.SetDefault("admin.listen", "127.0.0.1:8089")
	v.SetDefault("admin.request_timeout", "5m")

	v.SetDefault("export.max_data_points", 10000)
	v.SetDefault("export.show_limit", 10)
}

// envOnlyKeys have no default, so viper only sees their env vars once bound.
var envOnlyKeys = []string{
	"feed.base_url",
	"database.dsn",
	"redis.password",
	"scheduler.cron",
	"alerting.recipient",
	"alerting.smtp.host",
	"alerting.smtp.username",
	"alerting.smtp.password",
	"alerting.smtp.from",
	"alerting.telegram.bot_token",
	"alerting.telegram.chat_id",
	"summarizer.api_key",
}

func bindEnv(v *viper.Viper) error {
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Scheduler.Interval <= 0 && c.Scheduler.Cron == "" {
		return fmt.Errorf("scheduler.interval must be greater than zero when scheduler.cron is empty")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Export.ShowLimit <= 0 {
		return fmt.Errorf("export.show_limit must be greater than zero")
	}
	if c.Alerting.EmailRoute() && c.Alerting.SMTP.Port <= 0 {
		return fmt.Errorf("alerting.smtp.port must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	if c.Summarizer.Enabled && c.Summarizer.APIKey == "" {
		return fmt.Errorf("summarizer.api_key must be set when summarizer is enabled")
	}
	return nil
}

// EmailRoute reports whether digests go out by SMTP, which is what needs a recipient.
func (a AlertingConfig) EmailRoute() bool {
	return a.SMTP.Enabled && a.SMTP.Host != ""
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// ResolveShowLimit returns either the CLI override or config default.
func (c *Config) ResolveShowLimit(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.ShowLimit
}
