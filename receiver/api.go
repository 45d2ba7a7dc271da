package receiver

import (
	"context"
	"encoding/json"

	"github.com/prilive-com/tgwire/tg"
)

// WebhookInfo contains information about the current webhook.
type WebhookInfo struct {
	URL                          string   `json:"url"`
	HasCustomCertificate         bool     `json:"has_custom_certificate"`
	PendingUpdateCount           int      `json:"pending_update_count"`
	IPAddress                    string   `json:"ip_address,omitempty"`
	LastErrorDate                int64    `json:"last_error_date,omitempty"`
	LastErrorMessage             string   `json:"last_error_message,omitempty"`
	LastSynchronizationErrorDate int64    `json:"last_synchronization_error_date,omitempty"`
	MaxConnections               int      `json:"max_connections,omitempty"`
	AllowedUpdates               []string `json:"allowed_updates,omitempty"`
}

// SetWebhookParams are the setWebhook parameters.
type SetWebhookParams struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
}

// SetWebhook registers a webhook URL with Telegram.
func SetWebhook(ctx context.Context, caller Caller, params SetWebhookParams) error {
	if params.URL == "" {
		return tg.WrapConfigError("url", "cannot be empty", ErrWebhookURLRequired)
	}
	return callBool(ctx, caller, "setWebhook", params)
}

// DeleteWebhook removes the webhook integration, switching the bot back
// to getUpdates delivery.
func DeleteWebhook(ctx context.Context, caller Caller, dropPending bool) error {
	params := map[string]any{}
	if dropPending {
		params["drop_pending_updates"] = true
	}
	return callBool(ctx, caller, "deleteWebhook", params)
}

// GetWebhookInfo returns the current webhook status.
func GetWebhookInfo(ctx context.Context, caller Caller) (*WebhookInfo, error) {
	raw, err := caller.Call(ctx, "getWebhookInfo", nil)
	if err != nil {
		return nil, err
	}

	var info WebhookInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, &tg.MalformedResponseError{Method: "getWebhookInfo", Err: err}
	}
	return &info, nil
}

func callBool(ctx context.Context, caller Caller, method string, params any) error {
	raw, err := caller.Call(ctx, method, params)
	if err != nil {
		return err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return &tg.MalformedResponseError{Method: method, Err: err}
	}
	return nil
}
