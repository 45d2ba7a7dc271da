// Package tg provides the Telegram types shared by the receiver, the sender
// and the dispatcher.
//
// This package contains:
//   - Update and its payloads (Message, InlineQuery, ChosenInlineResult, CallbackQuery)
//   - Message media and service subtypes
//   - The error taxonomy: APIError, MalformedResponseError, ConfigError
//   - SecretToken for safe token handling
//
// # Usage
//
//	import "github.com/prilive-com/tgwire/tg"
//
//	var u tg.Update
//	switch u.Kind() {
//	case tg.KindMessage:
//	    fmt.Println(u.Message.Text)
//	}
package tg
