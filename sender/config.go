package sender

import (
	"os"
	"strconv"
	"time"

	"github.com/prilive-com/tgwire/internal/validate"
	"github.com/prilive-com/tgwire/tg"
)

// Config holds sender configuration.
type Config struct {
	// Bot token
	Token tg.SecretToken

	// API settings
	BaseURL        string        `validate:"required,http_url"`
	RequestTimeout time.Duration `validate:"gt=0"` // Applied when the caller's context has no deadline

	// Rate limiting
	GlobalRPS       float64 `validate:"gt=0"`
	GlobalBurst     int     `validate:"gte=1"`
	PerChatRPS      float64 `validate:"gte=0"` // 0 disables per-chat limiting
	PerChatBurst    int     `validate:"gte=0"`
	MaxChatLimiters int     `validate:"gte=0"` // 0 = 10000

	// Circuit breaker
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	// Retry settings for the typed helpers; Call itself never retries.
	MaxRetries    int `validate:"gte=0"`
	RetryBaseWait time.Duration
	RetryMaxWait  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:            "https://api.telegram.org",
		RequestTimeout:     30 * time.Second,
		GlobalRPS:          30,
		GlobalBurst:        10,
		PerChatRPS:         1,
		PerChatBurst:       3,
		MaxChatLimiters:    10000,
		BreakerMaxRequests: 5,
		BreakerInterval:    60 * time.Second,
		BreakerTimeout:     30 * time.Second,
		MaxRetries:         3,
		RetryBaseWait:      time.Second,
		RetryMaxWait:       30 * time.Second,
	}
}

// Validate checks field ranges and the token format.
func (c Config) Validate() error {
	if err := validate.Token(c.Token.Value()); err != nil {
		return err
	}
	return validate.Struct(c)
}

// ConfigFromEnv overlays environment variables on DefaultConfig. The
// result is not validated; NewFromConfig does that.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.Token = tg.SecretToken(getEnv("TELEGRAM_BOT_TOKEN", ""))

	if url := getEnv("TELEGRAM_API_BASE_URL", ""); url != "" {
		cfg.BaseURL = url
	}

	if d, err := time.ParseDuration(getEnv("REQUEST_TIMEOUT", "30s")); err == nil {
		cfg.RequestTimeout = d
	}

	if f, err := strconv.ParseFloat(getEnv("RATE_LIMIT_REQUESTS", "30"), 64); err == nil {
		cfg.GlobalRPS = f
	}

	if i, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "10")); err == nil {
		cfg.GlobalBurst = i
	}

	if f, err := strconv.ParseFloat(getEnv("PER_CHAT_RPS", "1"), 64); err == nil {
		cfg.PerChatRPS = f
	}

	if i, err := strconv.Atoi(getEnv("PER_CHAT_BURST", "3")); err == nil {
		cfg.PerChatBurst = i
	}

	if i, err := strconv.ParseUint(getEnv("BREAKER_MAX_REQUESTS", "5"), 10, 32); err == nil {
		cfg.BreakerMaxRequests = uint32(i)
	}

	if d, err := time.ParseDuration(getEnv("BREAKER_INTERVAL", "60s")); err == nil {
		cfg.BreakerInterval = d
	}

	if d, err := time.ParseDuration(getEnv("BREAKER_TIMEOUT", "30s")); err == nil {
		cfg.BreakerTimeout = d
	}

	if i, err := strconv.Atoi(getEnv("MAX_RETRIES", "3")); err == nil {
		cfg.MaxRetries = i
	}

	if d, err := time.ParseDuration(getEnv("RETRY_BASE_WAIT", "1s")); err == nil {
		cfg.RetryBaseWait = d
	}

	if d, err := time.ParseDuration(getEnv("RETRY_MAX_WAIT", "30s")); err == nil {
		cfg.RetryMaxWait = d
	}

	return cfg
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
