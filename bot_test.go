package tgwire_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prilive-com/tgwire"
	"github.com/prilive-com/tgwire/dispatch"
	"github.com/prilive-com/tgwire/internal/testutil"
	"github.com/prilive-com/tgwire/receiver"
	"github.com/prilive-com/tgwire/sender"
	"github.com/prilive-com/tgwire/tg"
)

// fakeAPI answers getUpdates from a queue of batches and records every call.
type fakeAPI struct {
	mu          sync.Mutex
	batches     [][]tg.Update
	methods     []string
	limits      []any
	failWith    map[string]error
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeAPI) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	f.mu.Lock()
	f.methods = append(f.methods, method)
	err := f.failWith[method]
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	if method != "getUpdates" {
		return json.RawMessage(`true`), nil
	}

	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	if p, ok := params.(map[string]any); ok {
		f.limits = append(f.limits, p["limit"])
	}
	var next []tg.Update
	if len(f.batches) > 0 {
		next, f.batches = f.batches[0], f.batches[1:]
	}
	f.mu.Unlock()

	if next == nil {
		select {
		case <-time.After(2 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		next = []tg.Update{}
	}
	return json.Marshal(next)
}

func (f *fakeAPI) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.methods {
		if m == method {
			n++
		}
	}
	return n
}

func (f *fakeAPI) seenLimits() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.limits...)
}

func newBot(t *testing.T, api *fakeAPI, opts ...tgwire.Option) *tgwire.Bot {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bot, err := tgwire.New(testutil.TestToken,
		append([]tgwire.Option{tgwire.WithLogger(logger), tgwire.WithCaller(api)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bot.Close(ctx)
	})
	return bot
}

func pollingConfig() receiver.PollingConfig {
	cfg := receiver.DefaultPollingConfig()
	cfg.Timeout = 1
	cfg.Interval = time.Millisecond
	cfg.RetryInitialDelay = time.Millisecond
	cfg.RetryMaxDelay = 5 * time.Millisecond
	return cfg
}

func webhookConfig() receiver.WebhookConfig {
	cfg := receiver.DefaultWebhookConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	cfg.RateLimitRequests = 1000
	cfg.RateLimitBurst = 100
	return cfg
}

func TestNew_RejectsBadToken(t *testing.T) {
	_, err := tgwire.New("")
	assert.ErrorIs(t, err, tg.ErrInvalidToken)

	_, err = tgwire.New("not-a-token")
	assert.ErrorIs(t, err, tg.ErrInvalidToken)
}

func TestNew_Idle(t *testing.T) {
	bot := newBot(t, &fakeAPI{})

	assert.Equal(t, tgwire.ModeNone, bot.Mode())
	assert.False(t, bot.IsPolling())
	assert.False(t, bot.HasOpenWebhook())
	assert.Nil(t, bot.WebhookAddr())
	assert.NotEmpty(t, bot.ID())
	assert.NoError(t, bot.StopPolling(context.Background()), "stop while idle")
	assert.NoError(t, bot.CloseWebhook(context.Background()), "close while idle")
}

func TestTransportMode_String(t *testing.T) {
	assert.Equal(t, "none", tgwire.ModeNone.String())
	assert.Equal(t, "polling", tgwire.ModePolling.String())
	assert.Equal(t, "webhook", tgwire.ModeWebhook.String())
}

func TestStartPolling_DispatchesAndAdvancesOffset(t *testing.T) {
	api := &fakeAPI{batches: [][]tg.Update{{
		{UpdateID: 100, Message: &tg.Message{MessageID: 5, Chat: &tg.Chat{ID: 1}, Text: "/start"}},
	}}}
	bot := newBot(t, api)

	var messages atomic.Int32
	matched := make(chan []string, 1)
	bot.Handle(dispatch.CategoryMessage, func(context.Context, *tg.Message) { messages.Add(1) })
	bot.OnText(regexp.MustCompile(`^/start`), func(_ context.Context, _ *tg.Message, m []string) { matched <- m })

	require.NoError(t, bot.StartPolling(context.Background(), pollingConfig()))
	assert.True(t, bot.IsPolling())
	assert.Equal(t, tgwire.ModePolling, bot.Mode())

	select {
	case m := <-matched:
		assert.Equal(t, []string{"/start"}, m)
	case <-time.After(2 * time.Second):
		t.Fatal("text matcher never fired")
	}
	require.Eventually(t, func() bool { return bot.Offset() == 101 }, time.Second, time.Millisecond)

	require.NoError(t, bot.StopPolling(context.Background()))
	bot.Dispatcher().Wait()
	assert.False(t, bot.IsPolling())
	assert.Equal(t, tgwire.ModeNone, bot.Mode())
	assert.Equal(t, int32(1), messages.Load())
	assert.Equal(t, int64(101), bot.Offset(), "offset survives stop")
}

func TestStartPolling_SkipsUpdateWithoutID(t *testing.T) {
	api := &fakeAPI{batches: [][]tg.Update{{
		{Message: &tg.Message{MessageID: 4, Chat: &tg.Chat{ID: 1}, Text: "no id"}},
		{UpdateID: 5, Message: &tg.Message{MessageID: 5, Chat: &tg.Chat{ID: 1}, Text: "ok"}},
	}}}
	bot := newBot(t, api)

	var mu sync.Mutex
	var texts []string
	bot.Handle(dispatch.CategoryText, func(_ context.Context, m *tg.Message) {
		mu.Lock()
		texts = append(texts, m.Text)
		mu.Unlock()
	})

	require.NoError(t, bot.StartPolling(context.Background(), pollingConfig()))
	require.Eventually(t, func() bool { return bot.Offset() == 6 }, time.Second, time.Millisecond)
	require.NoError(t, bot.StopPolling(context.Background()))
	bot.Dispatcher().Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"ok"}, texts)
}

func TestStartPolling_RestartKeepsSingleLoop(t *testing.T) {
	api := &fakeAPI{}
	bot := newBot(t, api)
	ctx := context.Background()

	first := pollingConfig()
	first.Limit = 10
	require.NoError(t, bot.StartPolling(ctx, first))

	second := pollingConfig()
	second.Limit = 20
	require.NoError(t, bot.StartPolling(ctx, second))
	require.True(t, bot.IsPolling())

	require.Eventually(t, func() bool {
		limits := api.seenLimits()
		return len(limits) > 0 && limits[len(limits)-1] == 20
	}, time.Second, time.Millisecond)

	require.NoError(t, bot.StopPolling(ctx))
	assert.Equal(t, int32(1), api.maxInFlight.Load(), "never two fetches at once")
}

func TestStartPolling_KeepExisting(t *testing.T) {
	api := &fakeAPI{}
	bot := newBot(t, api)
	ctx := context.Background()

	first := pollingConfig()
	first.Limit = 10
	require.NoError(t, bot.StartPolling(ctx, first))

	second := pollingConfig()
	second.Limit = 20
	second.KeepExisting = true
	require.NoError(t, bot.StartPolling(ctx, second))

	require.Eventually(t, func() bool { return len(api.seenLimits()) >= 3 }, time.Second, time.Millisecond)
	for _, l := range api.seenLimits() {
		assert.Equal(t, 10, l, "running loop untouched")
	}
}

func TestStartPolling_InvalidConfig(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	cfg := pollingConfig()
	cfg.Limit = 500

	err := bot.StartPolling(context.Background(), cfg)
	assert.ErrorIs(t, err, tg.ErrInvalidConfig)
	assert.False(t, bot.IsPolling())
}

func TestStartPolling_FailsWhileWebhookOpen(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	ctx := context.Background()
	require.NoError(t, bot.OpenWebhook(ctx, webhookConfig()))
	addr := bot.WebhookAddr()

	err := bot.StartPolling(ctx, pollingConfig())

	var cfgErr *tg.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, receiver.ErrTransportConflict)
	assert.False(t, bot.IsPolling())
	assert.True(t, bot.HasOpenWebhook(), "webhook untouched")
	assert.Equal(t, addr.String(), bot.WebhookAddr().String())
	assert.Equal(t, tgwire.ModeWebhook, bot.Mode())
}

func TestOpenWebhook_FailsWhilePolling(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	ctx := context.Background()
	require.NoError(t, bot.StartPolling(ctx, pollingConfig()))

	err := bot.OpenWebhook(ctx, webhookConfig())

	assert.ErrorIs(t, err, receiver.ErrTransportConflict)
	assert.ErrorIs(t, err, tg.ErrInvalidConfig)
	assert.False(t, bot.HasOpenWebhook())
	assert.True(t, bot.IsPolling())
}

func TestTransports_SwitchAfterStop(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	ctx := context.Background()

	require.NoError(t, bot.StartPolling(ctx, pollingConfig()))
	require.NoError(t, bot.StopPolling(ctx))
	require.NoError(t, bot.OpenWebhook(ctx, webhookConfig()))
	require.NoError(t, bot.CloseWebhook(ctx))
	require.NoError(t, bot.StartPolling(ctx, pollingConfig()))
	assert.Equal(t, tgwire.ModePolling, bot.Mode())
}

func TestCloseWebhook_TimeoutReleasesTransport(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	ctx := context.Background()
	require.NoError(t, bot.OpenWebhook(ctx, webhookConfig()))

	// A request whose body never completes keeps the connection active.
	conn, err := net.Dial("tcp", bot.WebhookAddr().String())
	require.NoError(t, err)
	_, err = io.WriteString(conn, "POST / HTTP/1.1\r\nHost: test\r\n"+
		"Content-Type: application/json\r\nContent-Length: 100\r\n\r\n{")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, bot.CloseWebhook(short), context.DeadlineExceeded)
	assert.False(t, bot.HasOpenWebhook())
	assert.Equal(t, tgwire.ModeNone, bot.Mode())

	require.NoError(t, bot.StartPolling(ctx, pollingConfig()), "polling is not blocked by a draining webhook")
	require.NoError(t, bot.StopPolling(ctx))

	conn.Close()
	require.NoError(t, bot.CloseWebhook(ctx), "retry finishes the drain")
	require.NoError(t, bot.OpenWebhook(ctx, webhookConfig()))
	assert.True(t, bot.HasOpenWebhook())
}

func TestOpenWebhook_DispatchesPush(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	got := make(chan *tg.Message, 1)
	bot.Handle(dispatch.CategoryText, func(_ context.Context, m *tg.Message) { got <- m })

	cfg := webhookConfig()
	cfg.SecretToken = "s3cret"
	require.NoError(t, bot.OpenWebhook(context.Background(), cfg))
	require.NoError(t, bot.OpenWebhook(context.Background(), cfg), "open is idempotent")

	req, err := http.NewRequest(http.MethodPost, "http://"+bot.WebhookAddr().String()+"/",
		strings.NewReader(`{"update_id":7,"message":{"message_id":1,"chat":{"id":1},"text":"hi"}}`))
	require.NoError(t, err)
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	select {
	case m := <-got:
		assert.Equal(t, "hi", m.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("update not dispatched")
	}

	require.NoError(t, bot.CloseWebhook(context.Background()))
	require.NoError(t, bot.CloseWebhook(context.Background()))
	assert.False(t, bot.HasOpenWebhook())
}

func TestOpenWebhook_ErrorCallback(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	errs := make(chan error, 1)
	bot.OnWebhookError(func(err error) { errs <- err })
	require.NoError(t, bot.OpenWebhook(context.Background(), webhookConfig()))

	resp, err := http.Post("http://"+bot.WebhookAddr().String()+"/", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, receiver.ErrMalformedUpdate)
	case <-time.After(time.Second):
		t.Fatal("no webhook error reported")
	}
}

func TestOpenWebhook_AutoRegister(t *testing.T) {
	api := &fakeAPI{}
	bot := newBot(t, api)

	cfg := webhookConfig()
	cfg.URL = "https://bot.example.com/hook"
	cfg.AutoRegister = true
	require.NoError(t, bot.OpenWebhook(context.Background(), cfg))

	assert.Equal(t, 1, api.count("setWebhook"))
	assert.True(t, bot.HasOpenWebhook())
}

func TestOpenWebhook_AutoRegisterFailureCloses(t *testing.T) {
	api := &fakeAPI{failWith: map[string]error{
		"setWebhook": tg.NewAPIError("setWebhook", 400, "Bad Request: bad webhook"),
	}}
	bot := newBot(t, api)

	cfg := webhookConfig()
	cfg.URL = "https://bot.example.com/hook"
	cfg.AutoRegister = true
	err := bot.OpenWebhook(context.Background(), cfg)

	var apiErr *tg.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.False(t, bot.HasOpenWebhook())
	assert.Equal(t, tgwire.ModeNone, bot.Mode())
}

func TestOpenWebhook_UnreadableTLS(t *testing.T) {
	bot := newBot(t, &fakeAPI{})

	cfg := webhookConfig()
	cfg.PfxPath = "/nonexistent/bundle.p12"
	err := bot.OpenWebhook(context.Background(), cfg)

	var cfgErr *tg.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.ErrorIs(t, err, receiver.ErrTLSMaterial)
	assert.False(t, bot.HasOpenWebhook())
}

func TestOnPollingError(t *testing.T) {
	boom := errors.New("network down")
	api := &fakeAPI{failWith: map[string]error{"getUpdates": boom}}
	bot := newBot(t, api)

	errs := make(chan error, 16)
	bot.OnPollingError(func(err error) {
		select {
		case errs <- err:
		default:
		}
	})
	require.NoError(t, bot.StartPolling(context.Background(), pollingConfig()))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, boom)
		var perr *receiver.PollingError
		assert.ErrorAs(t, err, &perr)
	case <-time.After(2 * time.Second):
		t.Fatal("no polling error reported")
	}
	assert.True(t, bot.IsPolling(), "loop survives errors")
}

func TestProcessUpdate_ReplyCorrelation(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	var fired atomic.Int32
	id := bot.OnReplyToMessage(1, 5, func(context.Context, *tg.Message) { fired.Add(1) })
	bot.OnReplyToMessage(1, 5, func(context.Context, *tg.Message) { fired.Add(1) })

	bot.ProcessUpdate(context.Background(), tg.Update{UpdateID: 1, Message: testutil.TestReply(9, 1, 5, "yes")})
	bot.Dispatcher().Wait()
	assert.Equal(t, int32(2), fired.Load())

	l, ok := bot.RemoveReplyListener(id)
	require.True(t, ok)
	assert.Equal(t, id, l.ID)
	_, ok = bot.RemoveReplyListener(id)
	assert.False(t, ok)
}

func TestSendMessage(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyMessage(w, 42)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bot, err := tgwire.New(testutil.TestToken, tgwire.WithLogger(logger), tgwire.WithBaseURL(server.BaseURL()))
	require.NoError(t, err)
	defer bot.Close(context.Background())

	msg, err := bot.SendMessage(context.Background(), testutil.TestChatID, "<b>hi</b>",
		tgwire.WithParseMode(tg.ParseModeHTML), tgwire.WithReplyTo(3), tgwire.Silent())
	require.NoError(t, err)
	assert.Equal(t, 42, msg.MessageID)

	cap := server.LastCapture()
	require.NotNil(t, cap)
	cap.AssertJSONField(t, "parse_mode", "HTML")
	cap.AssertJSONField(t, "reply_to_message_id", float64(3))
	cap.AssertJSONField(t, "disable_notification", true)
}

func TestClose_Idempotent(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	ctx := context.Background()
	require.NoError(t, bot.StartPolling(ctx, pollingConfig()))

	assert.NoError(t, bot.Close(ctx))
	assert.NoError(t, bot.Close(ctx))
	assert.False(t, bot.IsPolling())
}

func TestClose_RetryAfterTimeout(t *testing.T) {
	bot := newBot(t, &fakeAPI{})
	release := make(chan struct{})
	entered := make(chan struct{})
	bot.Handle(dispatch.CategoryText, func(context.Context, *tg.Message) {
		close(entered)
		<-release
	})
	bot.ProcessUpdate(context.Background(), testutil.TestUpdate(1, "hold"))
	<-entered

	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, bot.Close(short), context.DeadlineExceeded)

	close(release)
	require.NoError(t, bot.Close(context.Background()), "retry drains the handler")
	assert.NoError(t, bot.Close(context.Background()))
}

func TestNew_WithSenderConfig(t *testing.T) {
	server := testutil.NewMockServer(t)
	server.On("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		testutil.ReplyMessage(w, 7)
	})

	cfg := sender.DefaultConfig()
	cfg.BaseURL = server.BaseURL()
	cfg.Token = "ignored"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bot, err := tgwire.New(testutil.TestToken, tgwire.WithLogger(logger), tgwire.WithSenderConfig(cfg))
	require.NoError(t, err)
	defer bot.Close(context.Background())

	msg, err := bot.SendMessage(context.Background(), testutil.TestChatID, "hi")
	require.NoError(t, err)
	assert.Equal(t, 7, msg.MessageID)
	assert.Equal(t, 1, server.CallCount("sendMessage"))

	cfg.GlobalRPS = 0
	_, err = tgwire.New(testutil.TestToken, tgwire.WithSenderConfig(cfg))
	var cfgErr *tg.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "GlobalRPS", cfgErr.Key)
}
