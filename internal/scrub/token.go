// Package scrub removes bot tokens from errors and strings before they reach logs.
package scrub

import (
	"strings"

	"github.com/prilive-com/tgwire/tg"
)

const placeholder = "[REDACTED]"

// String replaces every occurrence of the token in s.
func String(s string, token tg.SecretToken) string {
	tokenVal := token.Value()
	if tokenVal == "" {
		return s
	}
	return strings.ReplaceAll(s, tokenVal, placeholder)
}

// TokenFromError removes the bot token from error messages.
// http.Client.Do() includes the request URL, and therefore the token, in its errors.
// The original error stays reachable through Unwrap for errors.Is/As.
func TokenFromError(err error, token tg.SecretToken) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	scrubbed := String(msg, token)
	if scrubbed == msg {
		return err
	}
	return &scrubbedError{msg: scrubbed, err: err}
}

type scrubbedError struct {
	msg string
	err error
}

func (e *scrubbedError) Error() string { return e.msg }
func (e *scrubbedError) Unwrap() error { return e.err }
