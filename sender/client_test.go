package sender_test

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/tgwire/internal/testutil"
	"github.com/prilive-com/tgwire/sender"
	"github.com/prilive-com/tgwire/tg"
)

func newTestClient(t *testing.T, baseURL string, opts ...sender.Option) *sender.Client {
	t.Helper()
	defaults := []sender.Option{
		sender.WithBaseURL(baseURL),
		sender.WithRateLimit(1000, 100),
		sender.WithRetries(0, time.Millisecond, 5*time.Millisecond),
	}
	client, err := sender.New(testutil.TestToken, append(defaults, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNew_RejectsBadToken(t *testing.T) {
	for _, token := range []string{"", "abc", "123:"} {
		_, err := sender.New(token)
		assert.ErrorIs(t, err, tg.ErrInvalidToken, "token %q", token)
		assert.ErrorIs(t, err, tg.ErrInvalidConfig)
	}
}

func TestClientClose_Idempotent(t *testing.T) {
	client, err := sender.New(testutil.TestToken)
	require.NoError(t, err)

	assert.NoError(t, client.Close())
	assert.NoError(t, client.Close())
}

func TestCall_PostsJSONToMethodPath(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("getUpdates", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyUpdates(w, testutil.TextUpdate(5, "hi"))
	})
	client := newTestClient(t, server.BaseURL())

	raw, err := client.Call(context.Background(), "getUpdates", map[string]any{"offset": 3, "timeout": 0})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"update_id":5`)

	cap := server.LastCapture()
	require.NotNil(t, cap)
	assert.Equal(t, http.MethodPost, cap.Method)
	assert.Equal(t, "/bot"+testutil.TestToken+"/getUpdates", cap.Path)
	assert.Contains(t, cap.ContentType, "application/json")
	cap.AssertJSONField(t, "offset", float64(3))
}

func TestCall_APIError(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("getUpdates", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyError(w, 409, "Conflict: terminated by other getUpdates request", nil)
	})
	client := newTestClient(t, server.BaseURL())

	_, err := client.Call(context.Background(), "getUpdates", nil)

	var apiErr *tg.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Code)
	assert.Equal(t, "getUpdates", apiErr.Method)
	assert.ErrorIs(t, err, tg.ErrConflict)
}

func TestCall_RetryAfterFromBody(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("sendMessage", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyRateLimit(w, 7)
	})
	client := newTestClient(t, server.BaseURL())

	_, err := client.Call(context.Background(), "sendMessage", map[string]any{"chat_id": 1, "text": "x"})

	var apiErr *tg.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 7*time.Second, apiErr.RetryAfter)
	assert.True(t, apiErr.IsRetryable())
}

func TestCall_MalformedEnvelope(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("getUpdates", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyMalformed(w)
	})
	client := newTestClient(t, server.BaseURL())

	_, err := client.Call(context.Background(), "getUpdates", nil)

	assert.ErrorIs(t, err, tg.ErrMalformed)
	var mErr *tg.MalformedResponseError
	require.ErrorAs(t, err, &mErr)
	assert.Equal(t, "getUpdates", mErr.Method)
}

func TestCall_ErrorDoesNotLeakToken(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	_, err := client.Call(context.Background(), "getMe", nil)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testutil.TestToken)
}

func TestCall_BreakerOpensOnServerErrors(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("getMe", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyServerError(w, 502, "Bad Gateway")
	})
	client := newTestClient(t, server.BaseURL())

	for range 3 {
		_, _ = client.Call(context.Background(), "getMe", nil)
	}

	_, err := client.Call(context.Background(), "getMe", nil)
	assert.ErrorIs(t, err, tg.ErrCircuitOpen)
	assert.Equal(t, 3, server.CallCount("getMe"), "open breaker must not reach the server")
}

func TestCall_ClientErrorsDoNotTripBreaker(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("getMe", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyError(w, 400, "Bad Request", nil)
	})
	client := newTestClient(t, server.BaseURL())

	for range 5 {
		_, err := client.Call(context.Background(), "getMe", nil)
		assert.False(t, errors.Is(err, tg.ErrCircuitOpen))
	}
	assert.Equal(t, 5, server.CallCount("getMe"))
}

func TestSendMessage_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := testutil.NewMockServer(t)
	server.On("sendMessage", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			testutil.ReplyServerError(w, 500, "Internal Server Error")
			return
		}
		testutil.ReplyMessage(w, 42)
	})
	client := newTestClient(t, server.BaseURL(),
		sender.WithRetries(2, time.Millisecond, 5*time.Millisecond))

	msg, err := client.SendMessage(context.Background(), sender.SendMessageRequest{
		ChatID: testutil.TestChatID,
		Text:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, 42, msg.MessageID)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, client.ChatLimiterCount())
}

func TestSendMessage_ExhaustedRetries(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("sendMessage", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyError(w, 429, "Too Many Requests", nil)
	})
	client := newTestClient(t, server.BaseURL(),
		sender.WithRetries(1, time.Millisecond, time.Millisecond))

	_, err := client.SendMessage(context.Background(), sender.SendMessageRequest{
		ChatID: testutil.TestChatID,
		Text:   "hello",
	})
	assert.ErrorIs(t, err, tg.ErrMaxRetries)
	assert.ErrorIs(t, err, tg.ErrTooManyRequests)
	assert.Equal(t, 2, server.CallCount("sendMessage"))
}

func TestSendMessage_DoesNotRetryClientErrors(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("sendMessage", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyError(w, 403, "Forbidden: bot was blocked by the user", nil)
	})
	client := newTestClient(t, server.BaseURL(),
		sender.WithRetries(3, time.Millisecond, time.Millisecond))

	_, err := client.SendMessage(context.Background(), sender.SendMessageRequest{
		ChatID: testutil.TestChatID,
		Text:   "hello",
	})
	assert.ErrorIs(t, err, tg.ErrBotBlocked)
	assert.Equal(t, 1, server.CallCount("sendMessage"))
}

func TestSendMessage_Validation(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1")

	_, err := client.SendMessage(context.Background(), sender.SendMessageRequest{Text: "x"})
	assert.ErrorIs(t, err, tg.ErrInvalidConfig)

	_, err = client.SendMessage(context.Background(), sender.SendMessageRequest{ChatID: 1})
	assert.ErrorIs(t, err, tg.ErrInvalidConfig)
}

func TestAnswerCallbackQuery(t *testing.T) {
	server := testutil.NewMockServer(t)
	client := newTestClient(t, server.BaseURL())

	err := client.AnswerCallbackQuery(context.Background(), sender.AnswerCallbackQueryRequest{
		CallbackQueryID: "cb-1",
		Text:            "done",
	})
	require.NoError(t, err)

	cap := server.LastCapture()
	require.NotNil(t, cap)
	assert.Equal(t, "answerCallbackQuery", cap.APIMethod)
	cap.AssertJSONField(t, "callback_query_id", "cb-1")
}

func TestGetMe(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("getMe", func(w http.ResponseWriter, r *http.Request) {
		testutil.ReplyUser(w)
	})
	client := newTestClient(t, server.BaseURL())

	me, err := client.GetMe(context.Background())
	require.NoError(t, err)
	assert.True(t, me.IsBot)
	assert.Equal(t, testutil.TestBotUsername, me.Username)
}
