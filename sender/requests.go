package sender

import (
	"unicode/utf8"

	"github.com/prilive-com/tgwire/tg"
)

const maxTextLength = 4096

// SendMessageRequest represents a request to send a text message.
type SendMessageRequest struct {
	ChatID                int64        `json:"chat_id"`
	Text                  string       `json:"text"`
	ParseMode             tg.ParseMode `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool         `json:"disable_web_page_preview,omitempty"`
	DisableNotification   bool         `json:"disable_notification,omitempty"`
	ReplyToMessageID      int          `json:"reply_to_message_id,omitempty"`
	ReplyMarkup           any          `json:"reply_markup,omitempty"`
}

func (r SendMessageRequest) validate() error {
	if r.ChatID == 0 {
		return tg.NewConfigError("chat_id", "is required")
	}
	if r.Text == "" {
		return tg.NewConfigError("text", "is required")
	}
	if utf8.RuneCountInString(r.Text) > maxTextLength {
		return tg.NewConfigError("text", "exceeds 4096 characters")
	}
	if !r.ParseMode.IsValid() {
		return tg.NewConfigError("parse_mode", "must be HTML, Markdown or MarkdownV2")
	}
	return nil
}

// AnswerCallbackQueryRequest represents a request to answer a callback query.
type AnswerCallbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
	URL             string `json:"url,omitempty"`
	CacheTime       int    `json:"cache_time,omitempty"`
}
