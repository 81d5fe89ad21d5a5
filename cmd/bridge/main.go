// Package main is the entry point for the CloudMailin to Discord webhook bridge.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/config"
	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/notify"
	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/notify/discord"
	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/notify/ses"
	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/notify/stdout"
	"github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/server"
	bridgetls "github.com/jayqi/cloudmailin-discord-webhook-bridge/internal/tls"
)

// shutdownTimeout is the maximum time to wait for in-flight requests
// during graceful shutdown.
const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	setupLogger(cfg.Logging.Level)

	if cfg.AuthPartial() {
		slog.Error("AUTH_USERNAME and AUTH_PASSWORD must be set together")
		os.Exit(1)
	}
	if !cfg.AuthEnabled() {
		slog.Warn("basic auth disabled, webhook endpoint is unauthenticated")
	}

	// Select notification delivery backend
	notifier := selectNotifier(cfg)

	// Optional direct HTTPS serving
	var tlsConfig *tls.Config
	if cfg.TLS.Enabled {
		tlsConfig, err = bridgetls.LoadOrGenerate(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			slog.Error("failed to setup TLS", "error", err)
			os.Exit(1)
		}
	}

	srv := server.New(server.Config{
		ListenAddr: cfg.HTTP.Listen,
		Notifier:   notifier,
		Username:   cfg.HTTP.Username,
		Password:   cfg.HTTP.Password,
		TLSConfig:  tlsConfig,
	})

	// Setup graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			slog.Error("failed to stop server", "error", err)
		}
	}()

	slog.Info("starting cloudmailin-discord-webhook-bridge",
		"listen", cfg.HTTP.Listen,
		"notifier", notifier.Name(),
		"auth_enabled", cfg.AuthEnabled(),
		"tls_enabled", cfg.TLS.Enabled,
	)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("cloudmailin-discord-webhook-bridge stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(level string) {
	var logLevel slog.Level

	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

// selectNotifier chooses the delivery backend based on configuration.
// If NOTIFIER is set, it takes precedence. Otherwise, it falls back to
// auto-detection (Discord if a webhook URL is set, else SES if configured,
// else stdout).
func selectNotifier(cfg *config.Config) notify.Notifier {
	switch cfg.Notifier {
	case "discord":
		if !cfg.DiscordConfigured() {
			slog.Error("discord notifier selected but DISCORD_WEBHOOK_URL is required")
			os.Exit(1)
		}
		return discord.New(cfg.Discord.WebhookURL)

	case "ses":
		if !cfg.SESConfigured() {
			slog.Error("ses notifier selected but SES_REGION, SES_SENDER, and SES_RECIPIENT are required")
			os.Exit(1)
		}
		slog.Info("using SES notifier",
			"region", cfg.SES.Region,
			"sender", cfg.SES.Sender,
			"recipient", cfg.SES.Recipient,
		)
		n, err := ses.New(context.Background(), ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SES.Sender,
			Recipient:       cfg.SES.Recipient,
		})
		if err != nil {
			slog.Error("failed to create SES notifier", "error", err)
			os.Exit(1)
		}
		return n

	case "stdout":
		slog.Info("using stdout notifier")
		return stdout.New()

	case "":
		// Auto-detection fallback
		if cfg.DiscordConfigured() {
			slog.Info("using Discord notifier (auto-detected)")
			return discord.New(cfg.Discord.WebhookURL)
		}
		if cfg.SESConfigured() {
			slog.Info("using SES notifier (auto-detected)",
				"region", cfg.SES.Region,
				"recipient", cfg.SES.Recipient,
			)
			n, err := ses.New(context.Background(), ses.Config{
				Region:          cfg.SES.Region,
				AccessKeyID:     cfg.SES.AccessKeyID,
				SecretAccessKey: cfg.SES.SecretAccessKey,
				Sender:          cfg.SES.Sender,
				Recipient:       cfg.SES.Recipient,
			})
			if err != nil {
				slog.Error("failed to create SES notifier", "error", err)
				os.Exit(1)
			}
			return n
		}
		slog.Info("no notifier configured, using stdout notifier")
		return stdout.New()

	default:
		slog.Error("unknown notifier", "notifier", cfg.Notifier)
		os.Exit(1)
		return nil
	}
}
