package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ogulcanaydogan/outagewatch/internal/config"
	"github.com/ogulcanaydogan/outagewatch/pkg/notify"
	"github.com/ogulcanaydogan/outagewatch/pkg/scraper"
	"github.com/ogulcanaydogan/outagewatch/pkg/storage"
)

// Version is set at build time via ldflags.
var Version = "dev"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "outagewatch",
	Short: "Outage page watcher for Toshima TV",
	Long: `outagewatch checks the Toshima TV outage announcement page, diffs it
against the stored state, and posts new outages and status changes while
keeping within a monthly notification budget.`,
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.outagewatch/config.yaml)")
}

// loadConfig loads and validates the configuration.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger creates a structured logger from config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr
	if cfg.Logging.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		}
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}

	return slog.New(handler)
}

// initBackend opens the configured state backend.
func initBackend(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	switch cfg.Storage.Backend {
	case "json":
		return storage.NewFile(cfg.Storage.Path), nil
	case "sqlite":
		return storage.NewSQLite(cfg.Storage.Path)
	case "postgres":
		return storage.NewPostgres(ctx, cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// initScraper creates the outage page scraper from config.
func initScraper(cfg *config.Config, logger *slog.Logger) *scraper.Scraper {
	client := scraper.NewClient(scraper.ClientOptions{
		UserAgent:     cfg.Source.UserAgent,
		Timeout:       cfg.Source.Timeout,
		MaxRetries:    cfg.Source.MaxRetries,
		BackoffFactor: cfg.Source.BackoffFactor,
		BackoffUnit:   cfg.Source.BackoffUnit,
	}, logger)

	return scraper.New(client, scraper.Options{
		BaseURL:      cfg.Source.BaseURL,
		ListPath:     cfg.Source.ListPath,
		MaxPages:     cfg.Source.MaxPages,
		PageInterval: cfg.Source.PageInterval,
	}, logger)
}

// initChannels creates notification channels from config. Dry run replaces
// every real channel with one that only logs.
func initChannels(cfg *config.Config, logger *slog.Logger) []notify.Channel {
	if cfg.Notify.DryRun {
		return []notify.Channel{notify.NewDryRunChannel(logger)}
	}

	var channels []notify.Channel

	if cfg.Notify.X.Enabled {
		creds := notify.XCredentials{
			APIKey:            cfg.Notify.X.APIKey,
			APISecret:         cfg.Notify.X.APISecret,
			AccessToken:       cfg.Notify.X.AccessToken,
			AccessTokenSecret: cfg.Notify.X.AccessTokenSecret,
		}
		x, err := notify.NewXChannel(creds, cfg.Notify.X.Endpoint, logger)
		if err != nil {
			logger.Error("x channel disabled", "error", err)
		} else {
			channels = append(channels, x)
		}
	}

	if cfg.Notify.Slack.Enabled && cfg.Notify.Slack.WebhookURL != "" {
		channels = append(channels, notify.NewSlackChannel(
			cfg.Notify.Slack.WebhookURL,
			cfg.Notify.Slack.Channel,
		))
	}

	if cfg.Notify.Webhook.Enabled && cfg.Notify.Webhook.URL != "" {
		channels = append(channels, notify.NewWebhookChannel(
			cfg.Notify.Webhook.URL,
			cfg.Notify.Webhook.Secret,
		))
	}

	if cfg.Notify.Telegram.Enabled {
		tg, err := notify.NewTelegramChannel(
			cfg.Notify.Telegram.Token,
			cfg.Notify.Telegram.ChatID,
			cfg.Notify.Telegram.ServerURL,
		)
		if err != nil {
			logger.Error("telegram channel disabled", "error", err)
		} else {
			channels = append(channels, tg)
		}
	}

	return channels
}
