package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	"github.com/prilive-com/tgwire/receiver"
	"github.com/prilive-com/tgwire/tg"
)

const (
	keyringService = "tgwire"
	keyringAccount = "bot-token"
)

var errNoToken = errors.New("no bot token: pass --token, set TGWIRE_TOKEN or TELEGRAM_BOT_TOKEN, or run 'tgwire token set'")

// resolveToken returns the first token found in viper (flag, env, config
// file), TELEGRAM_BOT_TOKEN, or the OS keychain.
func resolveToken() (string, error) {
	if t := strings.TrimSpace(viper.GetString("token")); t != "" {
		return t, nil
	}
	if t := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); t != "" {
		return t, nil
	}

	t, err := keyring.Get(keyringService, keyringAccount)
	switch {
	case err == nil && strings.TrimSpace(t) != "":
		return strings.TrimSpace(t), nil
	case err == nil, errors.Is(err, keyring.ErrNotFound):
		return "", errNoToken
	default:
		return "", fmt.Errorf("read keychain: %w", err)
	}
}

func loggerFromViper() (*slog.Logger, error) {
	level, err := parseSlogLevel(viper.GetString("logging.level"))
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(viper.GetString("logging.format"))) {
	case "", "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unknown logging.format: %s", viper.GetString("logging.format"))
	}
	return slog.New(h), nil
}

func parseSlogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown logging.level: %s", s)
	}
}

// pollingConfigFromViper overlays polling.* keys on the defaults.
func pollingConfigFromViper() receiver.PollingConfig {
	cfg := receiver.DefaultPollingConfig()
	if viper.IsSet("polling.timeout") {
		cfg.Timeout = viper.GetInt("polling.timeout")
	}
	if viper.IsSet("polling.limit") {
		cfg.Limit = viper.GetInt("polling.limit")
	}
	if viper.IsSet("polling.interval") {
		cfg.Interval = viper.GetDuration("polling.interval")
	}
	if viper.IsSet("polling.allowed_updates") {
		cfg.AllowedUpdates = viper.GetStringSlice("polling.allowed_updates")
	}
	cfg.DeleteWebhookFirst = viper.GetBool("polling.delete_webhook")
	return cfg
}

// webhookConfigFromViper overlays webhook.* keys on the defaults.
func webhookConfigFromViper() receiver.WebhookConfig {
	cfg := receiver.DefaultWebhookConfig()
	cfg.Host = viper.GetString("webhook.host")
	if viper.IsSet("webhook.port") {
		cfg.Port = viper.GetInt("webhook.port")
	}
	if p := viper.GetString("webhook.health_path"); p != "" {
		cfg.HealthPath = p
	}
	cfg.CertPath = viper.GetString("webhook.cert")
	cfg.KeyPath = viper.GetString("webhook.key")
	cfg.PfxPath = viper.GetString("webhook.pfx")
	cfg.PfxPassphrase = tg.SecretToken(viper.GetString("webhook.pfx_passphrase"))
	cfg.SecretToken = tg.SecretToken(viper.GetString("webhook.secret"))
	cfg.URL = viper.GetString("webhook.url")
	cfg.AutoRegister = viper.GetBool("webhook.register")
	cfg.DropPendingUpdates = viper.GetBool("webhook.drop_pending")
	if viper.IsSet("webhook.allowed_updates") {
		cfg.AllowedUpdates = viper.GetStringSlice("webhook.allowed_updates")
	}
	return cfg
}

func shutdownTimeout() time.Duration {
	if d := viper.GetDuration("shutdown_timeout"); d > 0 {
		return d
	}
	return 40 * time.Second
}
