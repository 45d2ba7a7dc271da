package receiver

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/prilive-com/tgwire/internal/resilience"
	"github.com/prilive-com/tgwire/internal/validate"
	"github.com/prilive-com/tgwire/tg"
)

// Mode defines how the receiver gets updates from Telegram.
type Mode string

const (
	ModeWebhook     Mode = "webhook"
	ModeLongPolling Mode = "longpolling"
)

const (
	defaultPollingTimeout  = 30
	defaultPollingLimit    = 100
	defaultPollingInterval = 300 * time.Millisecond
	defaultUnhealthyAfter  = 10
	defaultHealthPath      = "/healthz"
	defaultMaxBodySize     = 1 << 20 // 1MB
)

// PollingConfig configures one run of the PollingEngine.
// Zero numeric fields select the defaults of DefaultPollingConfig.
type PollingConfig struct {
	Timeout        int            `validate:"gte=0,lte=60"`  // Server-side hold, seconds
	Limit          int            `validate:"gte=0,lte=100"` // Max updates per fetch
	Interval       time.Duration  `validate:"gte=0"`         // Pause between successful cycles
	AllowedUpdates []string       // Update types to receive; nil keeps the server's setting
	Params         map[string]any // Extra getUpdates parameters

	// KeepExisting makes StartPolling a no-op while a loop is running.
	// By default a running loop is stopped and restarted with this config.
	KeepExisting bool

	// DeleteWebhookFirst calls deleteWebhook before the first fetch.
	DeleteWebhookFirst bool

	// Error backoff
	RetryInitialDelay  time.Duration `validate:"gte=0"`
	RetryMaxDelay      time.Duration `validate:"gte=0"`
	RetryBackoffFactor float64       `validate:"gte=0"`

	// UnhealthyAfter is the consecutive error count at which IsHealthy
	// reports false. The loop keeps running regardless.
	UnhealthyAfter int `validate:"gte=0"`

	// Circuit breaker around getUpdates
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// DefaultPollingConfig returns a PollingConfig with sensible defaults.
func DefaultPollingConfig() PollingConfig {
	backoff := resilience.DefaultBackoff()
	return PollingConfig{
		Timeout:            defaultPollingTimeout,
		Limit:              defaultPollingLimit,
		Interval:           defaultPollingInterval,
		RetryInitialDelay:  backoff.Initial,
		RetryMaxDelay:      backoff.Max,
		RetryBackoffFactor: backoff.Factor,
		UnhealthyAfter:     defaultUnhealthyAfter,
		BreakerMaxRequests: 5,
		BreakerInterval:    2 * time.Minute,
		BreakerTimeout:     60 * time.Second,
	}
}

// Validate checks field ranges.
func (c PollingConfig) Validate() error {
	return validate.Struct(c)
}

func (c PollingConfig) withDefaults() PollingConfig {
	d := DefaultPollingConfig()
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.Limit == 0 {
		c.Limit = d.Limit
	}
	if c.Interval == 0 {
		c.Interval = d.Interval
	}
	if c.RetryInitialDelay == 0 {
		c.RetryInitialDelay = d.RetryInitialDelay
	}
	if c.RetryMaxDelay == 0 {
		c.RetryMaxDelay = d.RetryMaxDelay
	}
	if c.RetryBackoffFactor == 0 {
		c.RetryBackoffFactor = d.RetryBackoffFactor
	}
	if c.UnhealthyAfter == 0 {
		c.UnhealthyAfter = d.UnhealthyAfter
	}
	if c.BreakerMaxRequests == 0 {
		c.BreakerMaxRequests = d.BreakerMaxRequests
	}
	if c.BreakerInterval == 0 {
		c.BreakerInterval = d.BreakerInterval
	}
	if c.BreakerTimeout == 0 {
		c.BreakerTimeout = d.BreakerTimeout
	}
	return c
}

// WebhookConfig configures the webhook listener.
// TLS is enabled when CertPath/KeyPath or PfxPath is set.
type WebhookConfig struct {
	Host string
	Port int `validate:"gte=0,lte=65535"` // 0 picks a free port

	KeyPath       string `validate:"required_with=CertPath"`
	CertPath      string `validate:"required_with=KeyPath"`
	PfxPath       string `validate:"excluded_with=KeyPath"`
	PfxPassphrase tg.SecretToken

	// HealthPath answers 200 to any method, ahead of all update handling.
	HealthPath string `validate:"omitempty,startswith=/"`

	// SecretToken is compared against X-Telegram-Bot-Api-Secret-Token.
	// Empty disables the check.
	SecretToken tg.SecretToken

	MaxBodySize       int64   `validate:"gte=0"`
	RateLimitRequests float64 `validate:"gte=0"` // Requests per second on the update path
	RateLimitBurst    int     `validate:"gte=0"`

	// Server timeouts
	ReadTimeout       time.Duration `validate:"gte=0"`
	ReadHeaderTimeout time.Duration `validate:"gte=0"`
	WriteTimeout      time.Duration `validate:"gte=0"`
	IdleTimeout       time.Duration `validate:"gte=0"`

	// URL is the public HTTPS address announced through setWebhook when
	// AutoRegister is set.
	URL                string `validate:"omitempty,url,startswith=https://"`
	AutoRegister       bool
	DropPendingUpdates bool
	AllowedUpdates     []string
}

// DefaultWebhookConfig returns a WebhookConfig with sensible defaults.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Port:              8443,
		HealthPath:        defaultHealthPath,
		MaxBodySize:       defaultMaxBodySize,
		RateLimitRequests: 10,
		RateLimitBurst:    20,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// Validate checks field ranges and TLS/registration combinations.
func (c WebhookConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.AutoRegister && c.URL == "" {
		return tg.WrapConfigError("URL", "required when AutoRegister is set", ErrWebhookURLRequired)
	}
	return nil
}

// TLSEnabled reports whether TLS material is configured.
func (c WebhookConfig) TLSEnabled() bool {
	return c.PfxPath != "" || (c.CertPath != "" && c.KeyPath != "")
}

func (c WebhookConfig) withDefaults() WebhookConfig {
	d := DefaultWebhookConfig()
	if c.HealthPath == "" {
		c.HealthPath = d.HealthPath
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = d.MaxBodySize
	}
	if c.RateLimitRequests == 0 {
		c.RateLimitRequests = d.RateLimitRequests
	}
	if c.RateLimitBurst == 0 {
		c.RateLimitBurst = d.RateLimitBurst
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = d.ReadTimeout
	}
	if c.ReadHeaderTimeout == 0 {
		c.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	return c
}

// Config holds receiver configuration loaded from the environment.
type Config struct {
	Mode    Mode
	Token   tg.SecretToken
	Polling PollingConfig
	Webhook WebhookConfig
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Mode:    ModeLongPolling,
		Polling: DefaultPollingConfig(),
		Webhook: DefaultWebhookConfig(),
	}
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	cfg.Mode = Mode(strings.ToLower(getEnv("RECEIVER_MODE", string(ModeLongPolling))))
	cfg.Token = tg.SecretToken(getEnv("TELEGRAM_BOT_TOKEN", ""))

	// Polling settings
	p := &cfg.Polling
	if i, err := strconv.Atoi(getEnv("POLLING_TIMEOUT", "30")); err == nil {
		p.Timeout = i
	}
	if i, err := strconv.Atoi(getEnv("POLLING_LIMIT", "100")); err == nil {
		p.Limit = i
	}
	if d, err := time.ParseDuration(getEnv("POLLING_INTERVAL", "300ms")); err == nil {
		p.Interval = d
	}
	p.AllowedUpdates = splitList(getEnv("ALLOWED_UPDATES", ""))
	p.DeleteWebhookFirst = strings.ToLower(getEnv("POLLING_DELETE_WEBHOOK", "false")) == "true"
	if d, err := time.ParseDuration(getEnv("POLLING_RETRY_INITIAL_DELAY", "1s")); err == nil {
		p.RetryInitialDelay = d
	}
	if d, err := time.ParseDuration(getEnv("POLLING_RETRY_MAX_DELAY", "60s")); err == nil {
		p.RetryMaxDelay = d
	}
	if f, err := strconv.ParseFloat(getEnv("POLLING_RETRY_BACKOFF_FACTOR", "2.0"), 64); err == nil {
		p.RetryBackoffFactor = f
	}
	if i, err := strconv.Atoi(getEnv("POLLING_UNHEALTHY_AFTER", "10")); err == nil {
		p.UnhealthyAfter = i
	}

	// Webhook settings
	w := &cfg.Webhook
	w.Host = getEnv("WEBHOOK_HOST", "")
	if i, err := strconv.Atoi(getEnv("WEBHOOK_PORT", "8443")); err == nil {
		w.Port = i
	}
	w.CertPath = getEnv("TLS_CERT_PATH", "")
	w.KeyPath = getEnv("TLS_KEY_PATH", "")
	w.PfxPath = getEnv("TLS_PFX_PATH", "")
	w.PfxPassphrase = tg.SecretToken(getEnv("TLS_PFX_PASSPHRASE", ""))
	w.HealthPath = getEnv("WEBHOOK_HEALTH_PATH", defaultHealthPath)
	w.SecretToken = tg.SecretToken(getEnv("WEBHOOK_SECRET", ""))
	w.URL = getEnv("WEBHOOK_URL", "")
	w.AutoRegister = w.URL != ""
	w.AllowedUpdates = cfg.Polling.AllowedUpdates
	if f, err := strconv.ParseFloat(getEnv("RATE_LIMIT_REQUESTS", "10"), 64); err == nil {
		w.RateLimitRequests = f
	}
	if i, err := strconv.Atoi(getEnv("RATE_LIMIT_BURST", "20")); err == nil {
		w.RateLimitBurst = i
	}
	if i, err := strconv.ParseInt(getEnv("MAX_BODY_SIZE", "1048576"), 10, 64); err == nil {
		w.MaxBodySize = i
	}
	if d, err := time.ParseDuration(getEnv("READ_TIMEOUT", "10s")); err == nil {
		w.ReadTimeout = d
	}
	if d, err := time.ParseDuration(getEnv("READ_HEADER_TIMEOUT", "2s")); err == nil {
		w.ReadHeaderTimeout = d
	}
	if d, err := time.ParseDuration(getEnv("WRITE_TIMEOUT", "15s")); err == nil {
		w.WriteTimeout = d
	}
	if d, err := time.ParseDuration(getEnv("IDLE_TIMEOUT", "120s")); err == nil {
		w.IdleTimeout = d
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the token, the mode and the settings of the selected mode.
func (c Config) Validate() error {
	if err := validate.Token(c.Token.Value()); err != nil {
		return err
	}
	switch c.Mode {
	case ModeWebhook:
		return c.Webhook.Validate()
	case ModeLongPolling:
		return c.Polling.Validate()
	default:
		return tg.NewConfigError("RECEIVER_MODE", "must be 'webhook' or 'longpolling'")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
