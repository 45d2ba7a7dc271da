// Package validate checks configuration structs and bot tokens.
// Struct rules are declared with `validate` tags and evaluated by
// go-playground/validator; violations surface as *tg.ConfigError.
package validate

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/prilive-com/tgwire/tg"
)

var (
	once     sync.Once
	instance *validator.Validate
)

func engine() *validator.Validate {
	once.Do(func() {
		instance = validator.New(validator.WithRequiredStructEnabled())
	})
	return instance
}

// Struct validates v against its `validate` tags. The first violation is
// returned as a *tg.ConfigError keyed by the struct field name.
func Struct(v any) error {
	err := engine().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return tg.WrapConfigError("config", "validation failed", err)
	}

	fe := verrs[0]
	return tg.NewConfigError(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_with":
		return fmt.Sprintf("is required together with %s", fe.Param())
	case "excluded_with":
		return fmt.Sprintf("cannot be combined with %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "lte":
		return fmt.Sprintf("must be <= %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "url", "http_url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}

// Token validates a Telegram bot token format.
// Format: {bot_id}:{secret} where bot_id is numeric.
func Token(token string) error {
	if token == "" {
		return tg.WrapConfigError("token", "cannot be empty", tg.ErrInvalidToken)
	}

	botID, secret, ok := strings.Cut(token, ":")
	if !ok {
		return tg.WrapConfigError("token", "invalid format, expected {bot_id}:{secret}", tg.ErrInvalidToken)
	}

	if botID == "" {
		return tg.WrapConfigError("token", "bot_id cannot be empty", tg.ErrInvalidToken)
	}
	for _, c := range botID {
		if c < '0' || c > '9' {
			return tg.WrapConfigError("token", "bot_id must be numeric", tg.ErrInvalidToken)
		}
	}

	if secret == "" {
		return tg.WrapConfigError("token", "secret cannot be empty", tg.ErrInvalidToken)
	}

	return nil
}
