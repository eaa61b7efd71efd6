package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable override.
const EnvPrefix = "OUTAGEWATCH"

// Config holds all outagewatch configuration.
type Config struct {
	Storage StorageConfig `mapstructure:"storage"`
	Source  SourceConfig  `mapstructure:"source"`
	Notify  NotifyConfig  `mapstructure:"notify"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StorageConfig selects where state is kept.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // json, sqlite or postgres
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// SourceConfig defines how the outage list is fetched.
type SourceConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	ListPath      string        `mapstructure:"list_path"`
	MaxPages      int           `mapstructure:"max_pages"`
	MaxRetries    int           `mapstructure:"max_retries"`
	BackoffFactor float64       `mapstructure:"backoff_factor"`
	BackoffUnit   time.Duration `mapstructure:"backoff_unit"`
	Timeout       time.Duration `mapstructure:"timeout"`
	PageInterval  time.Duration `mapstructure:"page_interval"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// NotifyConfig defines the monthly budget and delivery channels.
type NotifyConfig struct {
	MonthlyLimit int            `mapstructure:"monthly_limit"`
	DryRun       bool           `mapstructure:"dry_run"`
	X            XConfig        `mapstructure:"x"`
	Slack        SlackConfig    `mapstructure:"slack"`
	Webhook      WebhookConfig  `mapstructure:"webhook"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// XConfig defines X API credentials.
type XConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	APIKey            string `mapstructure:"api_key"`
	APISecret         string `mapstructure:"api_secret"`
	AccessToken       string `mapstructure:"access_token"`
	AccessTokenSecret string `mapstructure:"access_token_secret"`
	Endpoint          string `mapstructure:"endpoint"`
}

// SlackConfig defines Slack webhook settings.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// WebhookConfig defines generic webhook settings.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Secret  string `mapstructure:"secret"`
}

// TelegramConfig defines Telegram bot settings.
type TelegramConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Token     string `mapstructure:"token"`
	ChatID    int64  `mapstructure:"chat_id"`
	ServerURL string `mapstructure:"server_url"`
}

// MetricsConfig defines the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// ServerConfig defines the read-only status API.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// legacyEnv maps config keys to the unprefixed variable names that older
// deployments set.
var legacyEnv = map[string]string{
	"notify.dry_run":               "DRY_RUN",
	"logging.level":                "LOG_LEVEL",
	"notify.x.api_key":             "X_API_KEY",
	"notify.x.api_secret":          "X_API_SECRET",
	"notify.x.access_token":        "X_ACCESS_TOKEN",
	"notify.x.access_token_secret": "X_ACCESS_TOKEN_SECRET",
	"storage.dsn":                  "DATABASE_URL",
}

// Load reads configuration from file and environment variables. A .env file
// in the working directory is loaded first; it never overrides variables
// that are already set.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".outagewatch"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	// Defaults
	v.SetDefault("storage.backend", "json")
	v.SetDefault("storage.path", filepath.Join("data", "state.json"))
	v.SetDefault("storage.dsn", "")
	v.SetDefault("source.base_url", "https://www.toshima.co.jp")
	v.SetDefault("source.list_path", "/trouble/")
	v.SetDefault("source.max_pages", 1)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.backoff_factor", 2)
	v.SetDefault("source.backoff_unit", "1s")
	v.SetDefault("source.timeout", "30s")
	v.SetDefault("source.page_interval", "1s")
	v.SetDefault("source.user_agent", "ToshimaTVOutageNotifier/1.0")
	v.SetDefault("notify.monthly_limit", 450)
	v.SetDefault("notify.dry_run", false)
	v.SetDefault("notify.x.enabled", true)
	v.SetDefault("notify.x.api_key", "")
	v.SetDefault("notify.x.api_secret", "")
	v.SetDefault("notify.x.access_token", "")
	v.SetDefault("notify.x.access_token_secret", "")
	v.SetDefault("notify.x.endpoint", "https://api.twitter.com/2/tweets")
	v.SetDefault("notify.slack.enabled", false)
	v.SetDefault("notify.webhook.enabled", false)
	v.SetDefault("notify.telegram.enabled", false)
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", "")

	// Environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "json", "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the %s backend", c.Storage.Backend)
		}
	case "postgres":
		if c.Storage.DSN == "" {
			return errors.New("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Notify.MonthlyLimit <= 0 {
		return fmt.Errorf("notify.monthly_limit must be positive, got %d", c.Notify.MonthlyLimit)
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source.max_retries must not be negative, got %d", c.Source.MaxRetries)
	}
	if c.Source.Timeout <= 0 {
		return fmt.Errorf("source.timeout must be positive, got %s", c.Source.Timeout)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}
	return nil
}
