package receiver

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors
var (
	ErrAlreadyRunning     = errors.New("tgwire/receiver: already running")
	ErrNotRunning         = errors.New("tgwire/receiver: not running")
	ErrTransportConflict  = errors.New("tgwire/receiver: polling and webhook are mutually exclusive")
	ErrWebhookURLRequired = errors.New("tgwire/receiver: webhook URL required for registration")
	ErrTLSMaterial        = errors.New("tgwire/receiver: unreadable TLS material")

	// Webhook request errors
	ErrUnauthorized     = errors.New("tgwire/receiver: unauthorized")
	ErrMethodNotAllowed = errors.New("tgwire/receiver: method not allowed")
	ErrRateLimited      = errors.New("tgwire/receiver: rate limited")
	ErrBodyTooLarge     = errors.New("tgwire/receiver: request body too large")
	ErrMalformedUpdate  = errors.New("tgwire/receiver: malformed update")
)

// WebhookError describes a rejected push request and the status it was
// answered with.
type WebhookError struct {
	Code    int
	Message string
	Err     error
}

func (e *WebhookError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("webhook error %d: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("webhook error %d: %s", e.Code, e.Message)
}

func (e *WebhookError) Unwrap() error {
	return e.Err
}

// PollingError wraps a failed fetch cycle. It is delivered to the
// polling-error callback and never stops the loop.
type PollingError struct {
	Offset            int64
	ConsecutiveErrors int
	RetryIn           time.Duration
	Err               error
}

func (e *PollingError) Error() string {
	return fmt.Sprintf("polling error (offset=%d, consecutive=%d): %v", e.Offset, e.ConsecutiveErrors, e.Err)
}

func (e *PollingError) Unwrap() error {
	return e.Err
}
