package receiver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/prilive-com/tgwire/internal/syncutil"
	"github.com/prilive-com/tgwire/tg"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

var _ http.Handler = (*WebhookHandler)(nil)

// WebhookHandler implements http.Handler for pushed updates. Every request
// is answered; a rejected one never reaches the dispatcher.
type WebhookHandler struct {
	logger      *slog.Logger
	secret      tg.SecretToken
	dispatch    UpdateFunc
	onError     func(error)
	limiter     *rate.Limiter
	maxBodySize int64
}

// WebhookOption configures the WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithWebhookErrorHandler sets the callback receiving a *WebhookError for
// every rejected request.
func WithWebhookErrorHandler(fn func(error)) WebhookOption {
	return func(h *WebhookHandler) {
		h.onError = fn
	}
}

// NewWebhookHandler creates a handler for the update path. A nil dispatch
// accepts and drops updates.
func NewWebhookHandler(logger *slog.Logger, dispatch UpdateFunc, cfg WebhookConfig, opts ...WebhookOption) *WebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	h := &WebhookHandler{
		logger:      logger,
		secret:      cfg.SecretToken,
		dispatch:    dispatch,
		limiter:     rate.NewLimiter(rate.Limit(cfg.RateLimitRequests), cfg.RateLimitBurst),
		maxBodySize: cfg.MaxBodySize,
	}

	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		h.reject(w, http.StatusTooManyRequests, "rate limit exceeded", ErrRateLimited)
		return
	}

	// Secret validation (constant-time comparison)
	if !h.secret.IsEmpty() {
		got := r.Header.Get(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret.Value())) != 1 {
			h.reject(w, http.StatusUnauthorized, "unauthorized", ErrUnauthorized)
			return
		}
	}

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reject(w, http.StatusMethodNotAllowed, "method not allowed", ErrMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.reject(w, http.StatusRequestEntityTooLarge, "request body too large", ErrBodyTooLarge)
			return
		}
		h.reject(w, http.StatusBadRequest, "failed to read body", err)
		return
	}

	update, err := parseUpdate(body)
	if err != nil {
		h.reject(w, http.StatusBadRequest, "invalid update", err)
		return
	}

	deliveryID := uuid.New()
	h.logger.Debug("update accepted",
		"update_id", update.UpdateID,
		"kind", string(update.Kind()),
		"delivery_id", deliveryID.String(),
	)

	if h.dispatch != nil {
		ctx := context.WithoutCancel(r.Context())
		_ = syncutil.Safe(h.logger, "dispatch", func() {
			h.dispatch(ctx, update)
		})
	}

	w.WriteHeader(http.StatusOK)
}

// parseUpdate decodes one pushed Update. The update_id field is required.
func parseUpdate(body []byte) (tg.Update, error) {
	var in struct {
		ID *int `json:"update_id"`
		tg.Update
	}
	if err := json.Unmarshal(body, &in); err != nil {
		return tg.Update{}, errors.Join(ErrMalformedUpdate, err)
	}
	if in.ID == nil {
		return tg.Update{}, errors.Join(ErrMalformedUpdate, errors.New("missing update_id"))
	}
	u := in.Update
	u.UpdateID = *in.ID
	return u, nil
}

func (h *WebhookHandler) reject(w http.ResponseWriter, code int, msg string, err error) {
	h.logger.Warn("webhook request rejected", "code", code, "reason", msg, "error", err)
	http.Error(w, msg, code)

	if h.onError != nil {
		werr := &WebhookError{Code: code, Message: msg, Err: err}
		_ = syncutil.Safe(h.logger, "webhook error handler", func() {
			h.onError(werr)
		})
	}
}

// HealthHandler answers liveness probes with 200 for any method and never
// touches the request body.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}
}
