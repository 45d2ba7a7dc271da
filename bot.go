package tgwire

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/prilive-com/tgwire/dispatch"
	"github.com/prilive-com/tgwire/receiver"
	"github.com/prilive-com/tgwire/sender"
	"github.com/prilive-com/tgwire/tg"
)

// TransportMode reports which transport, if any, is active.
type TransportMode int32

const (
	ModeNone TransportMode = iota
	ModePolling
	ModeWebhook
)

func (m TransportMode) String() string {
	switch m {
	case ModePolling:
		return "polling"
	case ModeWebhook:
		return "webhook"
	default:
		return "none"
	}
}

// Bot ties a transport to a dispatcher. At most one of long polling and
// the webhook listener is active at a time.
type Bot struct {
	id         string
	logger     *slog.Logger
	client     *sender.Client
	caller     receiver.Caller
	dispatcher *dispatch.Dispatcher

	// mu serializes lifecycle transitions.
	mu      sync.Mutex
	polling atomic.Pointer[receiver.PollingEngine]
	webhook atomic.Pointer[receiver.WebhookServer]

	onPollingError atomic.Pointer[func(error)]
	onWebhookError atomic.Pointer[func(error)]

	closeMu sync.Mutex
	closed  bool
}

type botConfig struct {
	logger         *slog.Logger
	senderConfig   *sender.Config
	senderOpts     []sender.Option
	onlyFirstMatch bool
	caller         receiver.Caller
}

// Option configures the Bot.
type Option func(*botConfig)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *botConfig) {
		c.logger = logger
	}
}

// WithBaseURL points the Bot API client at another server.
func WithBaseURL(url string) Option {
	return func(c *botConfig) {
		c.senderOpts = append(c.senderOpts, sender.WithBaseURL(url))
	}
}

// WithHTTPClient sets the HTTP client used for Bot API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *botConfig) {
		c.senderOpts = append(c.senderOpts, sender.WithHTTPClient(client))
	}
}

// WithSenderConfig builds the Bot API client from cfg instead of
// sender.DefaultConfig. The token passed to New replaces cfg.Token.
func WithSenderConfig(cfg sender.Config) Option {
	return func(c *botConfig) {
		c.senderConfig = &cfg
	}
}

// WithSenderOptions passes options through to the sender client.
func WithSenderOptions(opts ...sender.Option) Option {
	return func(c *botConfig) {
		c.senderOpts = append(c.senderOpts, opts...)
	}
}

// WithOnlyFirstMatch stops text matching after the first matching pattern.
func WithOnlyFirstMatch(only bool) Option {
	return func(c *botConfig) {
		c.onlyFirstMatch = only
	}
}

// WithCaller replaces the sender client as the transport for getUpdates,
// setWebhook and deleteWebhook.
func WithCaller(caller receiver.Caller) Option {
	return func(c *botConfig) {
		c.caller = caller
	}
}

// New creates a Bot with no active transport.
func New(token string, opts ...Option) (*Bot, error) {
	var cfg botConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	id := uuid.NewString()
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("bot_id", id)

	senderCfg := sender.DefaultConfig()
	if cfg.senderConfig != nil {
		senderCfg = *cfg.senderConfig
	}
	senderCfg.Token = tg.SecretToken(token)

	client, err := sender.NewFromConfig(senderCfg, append([]sender.Option{sender.WithLogger(logger)}, cfg.senderOpts...)...)
	if err != nil {
		return nil, err
	}

	caller := cfg.caller
	if caller == nil {
		caller = client
	}

	return &Bot{
		id:     id,
		logger: logger,
		client: client,
		caller: caller,
		dispatcher: dispatch.New(
			dispatch.WithLogger(logger),
			dispatch.WithOnlyFirstMatch(cfg.onlyFirstMatch),
		),
	}, nil
}

// ID returns the instance id attached to every log line of this Bot.
func (b *Bot) ID() string { return b.id }

// StartPolling starts long polling with cfg. The loop runs until
// StopPolling, Close, or cancellation of ctx.
//
// When polling is already active the running loop is stopped and replaced,
// unless cfg.KeepExisting is set, in which case the call does nothing.
// It fails with a *tg.ConfigError wrapping receiver.ErrTransportConflict
// while the webhook is open.
func (b *Bot) StartPolling(ctx context.Context, cfg receiver.PollingConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.HasOpenWebhook() {
		return tg.WrapConfigError("transport", "cannot start polling while the webhook is open", receiver.ErrTransportConflict)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	engine := b.polling.Load()
	if engine == nil {
		engine = receiver.NewPollingEngine(b.caller, b.dispatchUpdate, b.logger,
			receiver.WithPollingErrorHandler(b.notifyPollingError),
		)
		b.polling.Store(engine)
	}

	if engine.State() != receiver.StateStopped {
		if cfg.KeepExisting {
			b.logger.Debug("polling already running, keeping existing loop")
			return nil
		}
		b.logger.Info("restarting long polling")
		if err := engine.Stop(ctx); err != nil {
			return err
		}
	}

	return engine.Start(ctx, cfg)
}

// StopPolling stops long polling and waits for the current cycle to end.
// ctx bounds only the wait. It is a no-op when polling is not active.
func (b *Bot) StopPolling(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	engine := b.polling.Load()
	if engine == nil {
		return nil
	}
	return engine.Stop(ctx)
}

// IsPolling reports whether the polling loop is running.
func (b *Bot) IsPolling() bool {
	engine := b.polling.Load()
	return engine != nil && engine.Running()
}

// OpenWebhook binds the webhook listener. With cfg.AutoRegister the URL is
// registered through setWebhook once the listener is up; a registration
// failure closes the listener again.
//
// It fails with a *tg.ConfigError wrapping receiver.ErrTransportConflict
// while polling is active. Opening an open webhook is a no-op.
func (b *Bot) OpenWebhook(ctx context.Context, cfg receiver.WebhookConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if engine := b.polling.Load(); engine != nil && engine.State() != receiver.StateStopped {
		return tg.WrapConfigError("transport", "cannot open the webhook while polling is active", receiver.ErrTransportConflict)
	}

	srv := b.webhook.Load()
	if srv == nil {
		srv = receiver.NewWebhookServer(b.dispatchUpdate, b.logger,
			receiver.WithWebhookErrorHandler(b.notifyWebhookError),
		)
		b.webhook.Store(srv)
	}
	if srv.IsOpen() {
		return nil
	}

	if err := srv.Open(ctx, cfg); err != nil {
		return err
	}

	if cfg.AutoRegister {
		err := receiver.SetWebhook(ctx, b.caller, receiver.SetWebhookParams{
			URL:                cfg.URL,
			SecretToken:        cfg.SecretToken.Value(),
			AllowedUpdates:     cfg.AllowedUpdates,
			DropPendingUpdates: cfg.DropPendingUpdates,
		})
		if err != nil {
			b.logger.Error("webhook registration failed", "url", cfg.URL, "error", err)
			if closeErr := srv.Close(ctx); closeErr != nil {
				b.logger.Warn("closing webhook after failed registration", "error", closeErr)
			}
			return err
		}
		b.logger.Info("webhook registered", "url", cfg.URL)
	}
	return nil
}

// CloseWebhook stops accepting pushes and waits for in-flight requests.
// It is a no-op when the webhook is not open.
func (b *Bot) CloseWebhook(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	srv := b.webhook.Load()
	if srv == nil {
		return nil
	}
	return srv.Close(ctx)
}

// HasOpenWebhook reports whether the webhook listener is serving.
func (b *Bot) HasOpenWebhook() bool {
	srv := b.webhook.Load()
	return srv != nil && srv.IsOpen()
}

// Mode returns the active transport.
func (b *Bot) Mode() TransportMode {
	switch {
	case b.IsPolling():
		return ModePolling
	case b.HasOpenWebhook():
		return ModeWebhook
	default:
		return ModeNone
	}
}

// WebhookAddr returns the bound listener address, or nil.
func (b *Bot) WebhookAddr() net.Addr {
	if srv := b.webhook.Load(); srv != nil {
		return srv.Addr()
	}
	return nil
}

// Offset returns the next update_id long polling will request.
func (b *Bot) Offset() int64 {
	if engine := b.polling.Load(); engine != nil {
		return engine.Offset()
	}
	return 0
}

// IsHealthy returns health status for K8s probes.
func (b *Bot) IsHealthy() bool {
	if engine := b.polling.Load(); engine != nil && engine.Running() {
		return engine.IsHealthy()
	}
	return b.HasOpenWebhook()
}

// ProcessUpdate dispatches u as if a transport had received it.
func (b *Bot) ProcessUpdate(ctx context.Context, u tg.Update) {
	b.dispatchUpdate(ctx, u)
}

func (b *Bot) dispatchUpdate(ctx context.Context, u tg.Update) {
	b.dispatcher.Dispatch(ctx, u)
}

// Handle registers h for a message-bearing category.
func (b *Bot) Handle(c dispatch.Category, h dispatch.MessageHandler) {
	b.dispatcher.Handle(c, h)
}

// OnText registers a text matcher.
func (b *Bot) OnText(pattern *regexp.Regexp, h dispatch.TextHandler) {
	b.dispatcher.OnText(pattern, h)
}

// OnReplyToMessage registers h for replies to messageID in chatID.
func (b *Bot) OnReplyToMessage(chatID int64, messageID int, h dispatch.MessageHandler) int {
	return b.dispatcher.OnReplyToMessage(chatID, messageID, h)
}

// RemoveReplyListener removes a reply listener by id.
func (b *Bot) RemoveReplyListener(id int) (*dispatch.ReplyListener, bool) {
	return b.dispatcher.RemoveReplyListener(id)
}

// OnInlineQuery registers h for inline queries.
func (b *Bot) OnInlineQuery(h dispatch.InlineQueryHandler) {
	b.dispatcher.OnInlineQuery(h)
}

// OnChosenInlineResult registers h for chosen inline results.
func (b *Bot) OnChosenInlineResult(h dispatch.ChosenInlineResultHandler) {
	b.dispatcher.OnChosenInlineResult(h)
}

// OnCallbackQuery registers h for callback queries.
func (b *Bot) OnCallbackQuery(h dispatch.CallbackQueryHandler) {
	b.dispatcher.OnCallbackQuery(h)
}

// OnPollingError sets the callback receiving every failed polling cycle.
func (b *Bot) OnPollingError(fn func(error)) {
	b.onPollingError.Store(&fn)
}

// OnWebhookError sets the callback receiving every rejected push.
func (b *Bot) OnWebhookError(fn func(error)) {
	b.onWebhookError.Store(&fn)
}

func (b *Bot) notifyPollingError(err error) {
	if fn := b.onPollingError.Load(); fn != nil && *fn != nil {
		(*fn)(err)
	}
}

func (b *Bot) notifyWebhookError(err error) {
	if fn := b.onWebhookError.Load(); fn != nil && *fn != nil {
		(*fn)(err)
	}
}

// Dispatcher returns the underlying dispatcher.
func (b *Bot) Dispatcher() *dispatch.Dispatcher {
	return b.dispatcher
}

// Sender returns the underlying sender client for advanced usage.
func (b *Bot) Sender() *sender.Client {
	return b.client
}

// SendMessage sends a text message.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string, opts ...SendOption) (*tg.Message, error) {
	req := sender.SendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return b.client.SendMessage(ctx, req)
}

// Close stops the active transport, waits for running handlers and
// releases the client. A call that fails, for example because ctx expired
// before handlers finished, can be retried; after a successful call Close
// is a no-op.
func (b *Bot) Close(ctx context.Context) error {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()

	if b.closed {
		return nil
	}
	if err := b.StopPolling(ctx); err != nil {
		return err
	}
	if err := b.CloseWebhook(ctx); err != nil {
		return err
	}

	drained := make(chan struct{})
	go func() {
		b.dispatcher.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := b.client.Close(); err != nil {
		return err
	}
	b.closed = true
	return nil
}

// SendOption configures send message requests.
type SendOption func(*sender.SendMessageRequest)

// WithParseMode sets the parse mode.
func WithParseMode(mode tg.ParseMode) SendOption {
	return func(r *sender.SendMessageRequest) {
		r.ParseMode = mode
	}
}

// WithReplyTo sets the reply-to message ID.
func WithReplyTo(messageID int) SendOption {
	return func(r *sender.SendMessageRequest) {
		r.ReplyToMessageID = messageID
	}
}

// Silent disables notification.
func Silent() SendOption {
	return func(r *sender.SendMessageRequest) {
		r.DisableNotification = true
	}
}
