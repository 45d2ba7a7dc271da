// Package receiver gets updates from Telegram, either by pulling them with
// getUpdates (PollingEngine) or by accepting pushes on an HTTP listener
// (WebhookServer).
//
// # Long polling
//
//	engine := receiver.NewPollingEngine(client, dispatch, logger)
//	err := engine.Start(ctx, receiver.DefaultPollingConfig())
//	...
//	err = engine.Stop(ctx)
//
// One fetch is outstanding at a time. The offset cursor moves past a batch
// only after every update in it has been handed to the dispatcher, so a
// restart redelivers nothing that was dispatched and drops nothing that was
// not. Failed fetches back off exponentially and the loop never exits on
// its own.
//
// # Webhook
//
//	srv := receiver.NewWebhookServer(dispatch, logger)
//	err := srv.Open(ctx, receiver.WebhookConfig{Port: 8443, SecretToken: "..."})
//
// The health path answers 200 to any method before any update handling.
// Every other path accepts POSTed updates, checking the secret token
// header when one is configured. TLS material is either a PEM pair or a
// PKCS#12 bundle.
package receiver
