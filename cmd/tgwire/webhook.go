package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prilive-com/tgwire"
	"github.com/prilive-com/tgwire/receiver"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Receive updates on a webhook listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			bot, err := newBot(logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			registerHandlers(bot, logger)
			bot.OnWebhookError(func(err error) {
				logger.Warn("webhook rejected request", "error", err)
			})

			if err := bot.OpenWebhook(ctx, webhookConfigFromViper()); err != nil {
				_ = bot.Close(context.Background())
				return err
			}
			logger.Info("webhook open, press Ctrl+C to stop", "addr", bot.WebhookAddr().String())

			<-ctx.Done()
			return shutdown(bot, logger)
		},
	}

	cmd.Flags().String("host", "", "Listen host.")
	cmd.Flags().Int("port", 8443, "Listen port.")
	cmd.Flags().String("health-path", "/healthz", "Liveness path answering 200 to any method.")
	cmd.Flags().String("cert", "", "TLS certificate (PEM).")
	cmd.Flags().String("key", "", "TLS private key (PEM).")
	cmd.Flags().String("pfx", "", "TLS PKCS#12 bundle, instead of --cert/--key.")
	cmd.Flags().String("pfx-passphrase", "", "PKCS#12 bundle passphrase.")
	cmd.Flags().String("secret", "", "Expected X-Telegram-Bot-Api-Secret-Token header.")
	cmd.Flags().String("url", "", "Public HTTPS URL for setWebhook.")
	cmd.Flags().Bool("register", false, "Call setWebhook with --url once listening.")
	cmd.Flags().Bool("drop-pending", false, "Drop pending updates when registering.")
	for flag, key := range map[string]string{
		"host":           "webhook.host",
		"port":           "webhook.port",
		"health-path":    "webhook.health_path",
		"cert":           "webhook.cert",
		"key":            "webhook.key",
		"pfx":            "webhook.pfx",
		"pfx-passphrase": "webhook.pfx_passphrase",
		"secret":         "webhook.secret",
		"url":            "webhook.url",
		"register":       "webhook.register",
		"drop-pending":   "webhook.drop_pending",
	} {
		_ = viper.BindPFlag(key, cmd.Flags().Lookup(flag))
	}

	return cmd
}

func newWebhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "webhook-info",
		Short: "Print the current webhook status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := loggerFromViper()
			if err != nil {
				return err
			}
			bot, err := newBot(logger)
			if err != nil {
				return err
			}
			defer bot.Close(context.Background())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			info, err := receiver.GetWebhookInfo(ctx, bot.Sender())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func shutdown(bot *tgwire.Bot, logger *slog.Logger) error {
	logger.Info("shutting down", "mode", bot.Mode().String())

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout())
	defer cancel()

	if err := bot.Close(ctx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
		return err
	}
	logger.Info("stopped")
	return nil
}
