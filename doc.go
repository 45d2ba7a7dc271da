// Package tgwire receives Telegram Bot API updates over long polling or a
// webhook listener and dispatches them to registered handlers.
//
// # Quick Start
//
//	bot, err := tgwire.New(token)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer bot.Close(context.Background())
//
//	bot.OnText(regexp.MustCompile(`^/echo (.+)`), func(ctx context.Context, m *tg.Message, match []string) {
//	    bot.SendMessage(ctx, m.ChatID(), match[1])
//	})
//
//	if err := bot.StartPolling(ctx, receiver.DefaultPollingConfig()); err != nil {
//	    log.Fatal(err)
//	}
//
// # Transports
//
// A Bot runs at most one transport. StartPolling fails with a
// *tg.ConfigError wrapping receiver.ErrTransportConflict while the webhook
// is open, and OpenWebhook fails the same way while polling. Both
// transports feed the same dispatch.Dispatcher; ProcessUpdate injects an
// update directly for custom ingestion paths.
//
// # Packages
//
//   - dispatch: update classification, text matchers, reply listeners
//   - receiver: polling engine, webhook handler and server, env config
//   - sender: the Bot API call layer with rate limiting, retries and a
//     circuit breaker
//   - tg: Telegram types and the error taxonomy
package tgwire
