// Package sender performs Bot API calls.
//
// Client.Call is the single-attempt primitive used by the receiver for
// getUpdates and webhook management: it waits on a global rate limiter,
// runs the request inside a circuit breaker, and decodes the
// {"ok","result","error_code","description"} envelope. The typed helpers
// (SendMessage, AnswerCallbackQuery) add per-chat limiting and retry
// 429/5xx failures with capped exponential backoff.
//
// # Usage
//
//	client, err := sender.New(token,
//	    sender.WithRateLimit(30, 10),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	msg, err := client.SendMessage(ctx, sender.SendMessageRequest{
//	    ChatID: chatID,
//	    Text:   "Hello, World!",
//	})
package sender
