package tg

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors - use with errors.Is()
var (
	// API errors
	ErrUnauthorized    = errors.New("tgwire: unauthorized (invalid token)")
	ErrForbidden       = errors.New("tgwire: forbidden")
	ErrNotFound        = errors.New("tgwire: not found")
	ErrConflict        = errors.New("tgwire: conflict")
	ErrTooManyRequests = errors.New("tgwire: too many requests")

	// Chat errors
	ErrBotBlocked   = errors.New("tgwire: bot blocked by user")
	ErrChatNotFound = errors.New("tgwire: chat not found")

	// Callback errors
	ErrCallbackExpired = errors.New("tgwire: callback query expired")

	// Client errors
	ErrCircuitOpen      = errors.New("tgwire: circuit breaker open")
	ErrMaxRetries       = errors.New("tgwire: max retries exceeded")
	ErrResponseTooLarge = errors.New("tgwire: response too large")
	ErrMalformed        = errors.New("tgwire: malformed response")

	// Configuration errors
	ErrInvalidToken  = errors.New("tgwire: invalid bot token format")
	ErrInvalidConfig = errors.New("tgwire: invalid configuration")
)

// ResponseParameters contains information about why a request was unsuccessful.
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}

// APIError is a logical failure reported by the Bot API (ok=false).
// Use errors.As() to extract details, errors.Is() to match sentinels.
type APIError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
	Method      string
	cause       error
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("tgwire: %s failed: %s (code=%d, retry_after=%s)",
			e.Method, e.Description, e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("tgwire: %s failed: %s (code=%d)", e.Method, e.Description, e.Code)
}

// Unwrap returns the underlying sentinel error for errors.Is() support.
func (e *APIError) Unwrap() error { return e.cause }

// IsRetryable returns true if the error is temporary and may succeed on retry.
func (e *APIError) IsRetryable() bool {
	return e.Code == 429 || (e.Code >= 500 && e.Code <= 504)
}

// RetryDelay returns the server-mandated wait, zero when none was given.
func (e *APIError) RetryDelay() time.Duration { return e.RetryAfter }

// NewAPIError creates an APIError with automatic sentinel detection.
func NewAPIError(method string, code int, description string) *APIError {
	return &APIError{
		Code:        code,
		Description: description,
		Method:      method,
		cause:       DetectSentinel(code, description),
	}
}

// NewAPIErrorWithRetry creates an APIError with retry information.
func NewAPIErrorWithRetry(method string, code int, description string, retryAfter time.Duration) *APIError {
	e := NewAPIError(method, code, description)
	e.RetryAfter = retryAfter
	return e
}

// DetectSentinel maps Telegram error codes/descriptions to sentinel errors.
// Description matches take priority over status codes.
func DetectSentinel(code int, desc string) error {
	descLower := strings.ToLower(desc)
	switch {
	case strings.Contains(descLower, "bot was blocked"):
		return ErrBotBlocked
	case strings.Contains(descLower, "chat not found"):
		return ErrChatNotFound
	case strings.Contains(descLower, "query is too old"):
		return ErrCallbackExpired
	}

	switch code {
	case 401:
		return ErrUnauthorized
	case 403:
		return ErrForbidden
	case 404:
		return ErrNotFound
	case 409:
		return ErrConflict
	case 429:
		return ErrTooManyRequests
	}

	return nil
}

// MalformedResponseError reports a response body that is not a valid
// Bot API envelope or whose result does not match the expected shape.
type MalformedResponseError struct {
	Method string
	Err    error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("tgwire: %s: malformed response: %v", e.Method, e.Err)
}

// Unwrap exposes the decode error; errors.Is(err, ErrMalformed) also matches.
func (e *MalformedResponseError) Unwrap() []error { return []error{ErrMalformed, e.Err} }

// ConfigError represents a configuration error. It is never retried and is
// returned synchronously from the lifecycle call that triggered it.
type ConfigError struct {
	Key     string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tgwire: config: %s - %s: %v", e.Key, e.Message, e.Err)
	}
	return fmt.Sprintf("tgwire: config: %s - %s", e.Key, e.Message)
}

// Unwrap allows errors.Is(err, ErrInvalidConfig) as well as matching the cause.
func (e *ConfigError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}

// NewConfigError creates a new ConfigError.
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}

// WrapConfigError creates a ConfigError carrying an underlying cause.
func WrapConfigError(key, message string, err error) *ConfigError {
	return &ConfigError{Key: key, Message: message, Err: err}
}
