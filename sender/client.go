package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/prilive-com/tgwire/internal/httpclient"
	"github.com/prilive-com/tgwire/internal/resilience"
	"github.com/prilive-com/tgwire/internal/scrub"
	"github.com/prilive-com/tgwire/tg"
)

const (
	maxResponseSize = 10 << 20 // 10MB
)

// Client performs Bot API calls. It satisfies receiver.Caller.
type Client struct {
	config        Config
	httpClient    *http.Client
	logger        *slog.Logger
	globalLimiter *rate.Limiter
	chatLimiters  map[int64]*chatLimiterEntry
	limiterMu     sync.RWMutex
	breaker       *gobreaker.CircuitBreaker[json.RawMessage]
	closeOnce     sync.Once
}

// chatLimiterEntry wraps a rate limiter with last used timestamp.
// lastUsed uses atomic.Int64 (Unix nanos) to avoid write-lock contention on the hot path.
type chatLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64
}

// envelope is the Bot API response wrapper.
type envelope struct {
	OK          bool                   `json:"ok"`
	Result      json.RawMessage        `json:"result,omitempty"`
	ErrorCode   int                    `json:"error_code,omitempty"`
	Description string                 `json:"description,omitempty"`
	Parameters  *tg.ResponseParameters `json:"parameters,omitempty"`
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL sets the API base URL (useful for testing).
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.config.BaseURL = url
	}
}

// WithRateLimit sets the global rate limit.
func WithRateLimit(globalRPS float64, burst int) Option {
	return func(c *Client) {
		c.config.GlobalRPS = globalRPS
		c.config.GlobalBurst = burst
	}
}

// WithPerChatRateLimit sets per-chat rate limiting for SendMessage.
// A zero rps disables it.
func WithPerChatRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.config.PerChatRPS = rps
		c.config.PerChatBurst = burst
	}
}

// WithRetries sets the retry budget of the typed helpers.
func WithRetries(max int, base, maxWait time.Duration) Option {
	return func(c *Client) {
		c.config.MaxRetries = max
		c.config.RetryBaseWait = base
		c.config.RetryMaxWait = maxWait
	}
}

// WithRequestTimeout bounds calls whose context carries no deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.config.RequestTimeout = d
	}
}

// New creates a new Client with the given token and options.
func New(token string, opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Token = tg.SecretToken(token)
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig creates a Client from a Config.
func NewFromConfig(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		config:       cfg,
		chatLimiters: make(map[int64]*chatLimiterEntry),
	}

	for _, opt := range opts {
		opt(c)
	}

	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	if c.httpClient == nil {
		c.httpClient = httpclient.NewDefault()
	}

	c.globalLimiter = rate.NewLimiter(rate.Limit(c.config.GlobalRPS), c.config.GlobalBurst)

	bc := resilience.DefaultBreakerConfig("tgwire-sender")
	bc.MaxRequests = c.config.BreakerMaxRequests
	bc.Interval = c.config.BreakerInterval
	bc.Timeout = c.config.BreakerTimeout
	bc.IsSuccessful = isBreakerSuccess
	bc.OnStateChange = func(name, from, to string) {
		c.logger.Info("circuit breaker state changed",
			"name", name,
			"from", from,
			"to", to,
		)
	}
	c.breaker = resilience.NewBreaker[json.RawMessage](bc)

	return c, nil
}

// Close releases idle connections. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		httpclient.CloseIdle(c.httpClient)
	})
	return nil
}

// Call invokes a Bot API method once and returns the raw result field.
// Failures are *tg.APIError (ok=false), *tg.MalformedResponseError
// (undecodable envelope), tg.ErrCircuitOpen, or a transport error.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && c.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
	}

	if err := c.globalLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := c.breaker.Execute(func() (json.RawMessage, error) {
		return c.doRequest(ctx, method, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %s", tg.ErrCircuitOpen, method)
	}
	return result, err
}

// CallJSON invokes method and decodes the result into out. A nil out
// discards the result.
func (c *Client) CallJSON(ctx context.Context, method string, params, out any) error {
	raw, err := c.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &tg.MalformedResponseError{Method: method, Err: err}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	url := fmt.Sprintf("%s/bot%s/%s", c.config.BaseURL, c.config.Token.Value(), method)

	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("tgwire: %s: marshal params: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tgwire: %s: create request: %w", method, scrub.TokenFromError(err, c.config.Token))
	}

	resp, err := httpclient.DoJSON(ctx, c.httpClient, req)
	if err != nil {
		return nil, fmt.Errorf("tgwire: %s: request failed: %w", method, scrub.TokenFromError(err, c.config.Token))
	}
	defer resp.Body.Close()

	// Read one byte past the limit to detect overflow without a false positive.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("tgwire: %s: read response: %w", method, err)
	}
	if int64(len(data)) > maxResponseSize {
		return nil, tg.ErrResponseTooLarge
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &tg.MalformedResponseError{Method: method, Err: err}
	}

	if !env.OK {
		code := env.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		if retryAfter := parseRetryAfter(&env, resp); retryAfter > 0 {
			return nil, tg.NewAPIErrorWithRetry(method, code, env.Description, retryAfter)
		}
		return nil, tg.NewAPIError(method, code, env.Description)
	}

	return env.Result, nil
}

// SendMessage sends a text message, retrying 429/5xx/timeout failures.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (*tg.Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := c.waitForChat(ctx, req.ChatID); err != nil {
		return nil, err
	}
	return withRetry(c, ctx, func(ctx context.Context) (*tg.Message, error) {
		var msg tg.Message
		if err := c.CallJSON(ctx, "sendMessage", req, &msg); err != nil {
			return nil, err
		}
		return &msg, nil
	})
}

// AnswerCallbackQuery answers a callback query.
func (c *Client) AnswerCallbackQuery(ctx context.Context, req AnswerCallbackQueryRequest) error {
	if req.CallbackQueryID == "" {
		return tg.NewConfigError("callback_query_id", "is required")
	}
	_, err := withRetry(c, ctx, func(ctx context.Context) (bool, error) {
		var ok bool
		return ok, c.CallJSON(ctx, "answerCallbackQuery", req, &ok)
	})
	return err
}

// GetMe returns the bot's own user.
func (c *Client) GetMe(ctx context.Context) (*tg.User, error) {
	var u tg.User
	if err := c.CallJSON(ctx, "getMe", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ChatLimiterCount returns the number of active per-chat limiters.
func (c *Client) ChatLimiterCount() int {
	c.limiterMu.RLock()
	defer c.limiterMu.RUnlock()
	return len(c.chatLimiters)
}

func (c *Client) waitForChat(ctx context.Context, chatID int64) error {
	if c.config.PerChatRPS <= 0 {
		return nil
	}
	return c.getChatLimiter(chatID).Wait(ctx)
}

func (c *Client) getChatLimiter(chatID int64) *rate.Limiter {
	now := time.Now().UnixNano()

	c.limiterMu.RLock()
	entry, exists := c.chatLimiters[chatID]
	c.limiterMu.RUnlock()

	if exists {
		entry.lastUsed.Store(now)
		return entry.limiter
	}

	c.limiterMu.Lock()
	defer c.limiterMu.Unlock()

	if entry, exists = c.chatLimiters[chatID]; exists {
		entry.lastUsed.Store(now)
		return entry.limiter
	}

	maxLimiters := c.config.MaxChatLimiters
	if maxLimiters <= 0 {
		maxLimiters = 10000
	}
	if len(c.chatLimiters) >= maxLimiters {
		var oldestKey int64
		oldestTime := now
		for k, e := range c.chatLimiters {
			if t := e.lastUsed.Load(); t < oldestTime {
				oldestTime = t
				oldestKey = k
			}
		}
		delete(c.chatLimiters, oldestKey)
	}

	entry = &chatLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(c.config.PerChatRPS), max(c.config.PerChatBurst, 1)),
	}
	entry.lastUsed.Store(now)
	c.chatLimiters[chatID] = entry
	return entry.limiter
}

func withRetry[T any](c *Client, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts: c.config.MaxRetries,
		Backoff: resilience.Backoff{
			Initial: c.config.RetryBaseWait,
			Max:     c.config.RetryMaxWait,
			Factor:  2,
			Jitter:  0.2,
		},
		Retryable: isRetryable,
	}, fn)
	if errors.Is(err, resilience.ErrRetriesExhausted) {
		return result, fmt.Errorf("%w: %w", tg.ErrMaxRetries, err)
	}
	return result, err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, tg.ErrCircuitOpen) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *tg.APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	return false
}

// isBreakerSuccess reports whether err leaves the breaker counts clean.
// Only server errors (5xx), malformed envelopes and network errors trip it;
// 4xx including 429 is client-side pressure handled by retry_after.
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var apiErr *tg.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code >= 400 && apiErr.Code < 500
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

// parseRetryAfter extracts retry_after from JSON body (primary) or HTTP header (fallback).
func parseRetryAfter(env *envelope, httpResp *http.Response) time.Duration {
	if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
		return time.Duration(env.Parameters.RetryAfter) * time.Second
	}

	if httpResp != nil {
		if retryHeader := httpResp.Header.Get("Retry-After"); retryHeader != "" {
			if seconds, err := strconv.Atoi(retryHeader); err == nil && seconds > 0 {
				return time.Duration(seconds) * time.Second
			}
		}
	}

	return 0
}
