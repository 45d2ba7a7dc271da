package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Receive updates with long polling",
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
			bot.OnPollingError(func(err error) {
				logger.Warn("polling error", "error", err)
			})

			if err := bot.StartPolling(ctx, pollingConfigFromViper()); err != nil {
				_ = bot.Close(context.Background())
				return err
			}
			logger.Info("bot started, press Ctrl+C to stop")

			<-ctx.Done()
			return shutdown(bot, logger)
		},
	}

	cmd.Flags().Int("timeout", 30, "Long-poll hold time in seconds (0-60).")
	cmd.Flags().Int("limit", 100, "Max updates per fetch (1-100).")
	cmd.Flags().Duration("interval", 0, "Pause between successful fetches.")
	cmd.Flags().StringSlice("allowed-updates", nil, "Update types to receive.")
	cmd.Flags().Bool("delete-webhook", false, "Delete an existing webhook before polling.")
	_ = viper.BindPFlag("polling.timeout", cmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("polling.limit", cmd.Flags().Lookup("limit"))
	_ = viper.BindPFlag("polling.interval", cmd.Flags().Lookup("interval"))
	_ = viper.BindPFlag("polling.allowed_updates", cmd.Flags().Lookup("allowed-updates"))
	_ = viper.BindPFlag("polling.delete_webhook", cmd.Flags().Lookup("delete-webhook"))

	return cmd
}
