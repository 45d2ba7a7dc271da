package tg_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/tgwire/tg"
)

func TestSecretToken_Value(t *testing.T) {
	token := tg.SecretToken("123456:ABC-DEF")
	assert.Equal(t, "123456:ABC-DEF", token.Value())
}

func TestSecretToken_NeverPrinted(t *testing.T) {
	token := tg.SecretToken("123456:ABC-DEF")

	assert.Equal(t, "[REDACTED]", token.String())
	assert.Equal(t, `tg.SecretToken("[REDACTED]")`, token.GoString())
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v %s", token, token, token, token), "ABC-DEF")
}

func TestSecretToken_LogValue(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	logger.Info("starting", "token", tg.SecretToken("123456:ABC-DEF"))

	assert.NotContains(t, buf.String(), "ABC-DEF")
	assert.Contains(t, buf.String(), "[REDACTED]")
}

func TestSecretToken_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Token tg.SecretToken `json:"token"`
	}{Token: "123456:ABC-DEF"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"[REDACTED]"}`, string(data))
}

func TestSecretToken_IsEmpty(t *testing.T) {
	assert.True(t, tg.SecretToken("").IsEmpty())
	assert.False(t, tg.SecretToken("1:a").IsEmpty())
}
