package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/prilive-com/tgwire/internal/syncutil"
	"github.com/prilive-com/tgwire/tg"
)

// Handler types.
type (
	MessageHandler            func(ctx context.Context, msg *tg.Message)
	TextHandler               func(ctx context.Context, msg *tg.Message, match []string)
	InlineQueryHandler        func(ctx context.Context, q *tg.InlineQuery)
	ChosenInlineResultHandler func(ctx context.Context, r *tg.ChosenInlineResult)
	CallbackQueryHandler      func(ctx context.Context, q *tg.CallbackQuery)
)

// TextMatcher pairs a pattern with the handler run on its first match.
type TextMatcher struct {
	Pattern *regexp.Regexp
	Handler TextHandler
}

// ReplyListener fires for replies to one message in one chat.
type ReplyListener struct {
	ID        int
	ChatID    int64
	MessageID int
	Handler   MessageHandler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithOnlyFirstMatch stops text matching after the first matcher whose
// pattern matches.
func WithOnlyFirstMatch(only bool) Option {
	return func(d *Dispatcher) {
		d.onlyFirstMatch = only
	}
}

// Dispatcher classifies updates and fans them out to registered handlers.
// Registration may happen concurrently with dispatch; each dispatch works
// on a snapshot of the tables taken when it starts.
type Dispatcher struct {
	logger         *slog.Logger
	onlyFirstMatch bool

	mu          sync.RWMutex
	handlers    map[Category][]MessageHandler
	inline      []InlineQueryHandler
	chosen      []ChosenInlineResultHandler
	callbacks   []CallbackQueryHandler
	matchers    []TextMatcher
	replies     []ReplyListener
	nextReplyID int

	wg sync.WaitGroup
}

// New creates an empty Dispatcher.
func New(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		logger:   slog.Default(),
		handlers: make(map[Category][]MessageHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle registers h for a message-bearing category.
// It panics on a query category or an unknown one, like http.ServeMux
// does on a bad pattern.
func (d *Dispatcher) Handle(c Category, h MessageHandler) {
	if !c.IsMessage() {
		panic(fmt.Sprintf("dispatch: %q is not a message category", c))
	}
	if h == nil {
		panic("dispatch: nil handler")
	}
	d.mu.Lock()
	d.handlers[c] = append(d.handlers[c], h)
	d.mu.Unlock()
}

// OnInlineQuery registers h for inline_query updates.
func (d *Dispatcher) OnInlineQuery(h InlineQueryHandler) {
	d.mu.Lock()
	d.inline = append(d.inline, h)
	d.mu.Unlock()
}

// OnChosenInlineResult registers h for chosen_inline_result updates.
func (d *Dispatcher) OnChosenInlineResult(h ChosenInlineResultHandler) {
	d.mu.Lock()
	d.chosen = append(d.chosen, h)
	d.mu.Unlock()
}

// OnCallbackQuery registers h for callback_query updates.
func (d *Dispatcher) OnCallbackQuery(h CallbackQueryHandler) {
	d.mu.Lock()
	d.callbacks = append(d.callbacks, h)
	d.mu.Unlock()
}

// OnText appends a text matcher. Matchers run in registration order.
func (d *Dispatcher) OnText(pattern *regexp.Regexp, h TextHandler) {
	if pattern == nil || h == nil {
		panic("dispatch: OnText needs a pattern and a handler")
	}
	d.mu.Lock()
	d.matchers = append(d.matchers, TextMatcher{Pattern: pattern, Handler: h})
	d.mu.Unlock()
}

// OnReplyToMessage registers h for replies to messageID in chatID and
// returns the listener id. Ids start at 1 and are never reused.
func (d *Dispatcher) OnReplyToMessage(chatID int64, messageID int, h MessageHandler) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextReplyID++
	d.replies = append(d.replies, ReplyListener{
		ID:        d.nextReplyID,
		ChatID:    chatID,
		MessageID: messageID,
		Handler:   h,
	})
	return d.nextReplyID
}

// RemoveReplyListener removes the listener with id and returns it.
// The second result is false when no such listener exists.
func (d *Dispatcher) RemoveReplyListener(id int) (*ReplyListener, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, l := range d.replies {
		if l.ID == id {
			d.replies = append(d.replies[:i:i], d.replies[i+1:]...)
			return &l, true
		}
	}
	return nil, false
}

// ReplyListenerCount returns the number of registered reply listeners.
func (d *Dispatcher) ReplyListenerCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.replies)
}

// Dispatch classifies u and runs its handlers on a tracked goroutine.
// It returns false, emitting nothing, when u has no update_id or no
// recognised payload.
func (d *Dispatcher) Dispatch(ctx context.Context, u tg.Update) bool {
	calls := d.plan(u)
	if calls == nil {
		return false
	}
	syncutil.Go(&d.wg, func() { d.run(ctx, u.UpdateID, calls) })
	return true
}

// ProcessUpdateSync is Dispatch without the goroutine: handlers have all
// returned when it does.
func (d *Dispatcher) ProcessUpdateSync(ctx context.Context, u tg.Update) bool {
	calls := d.plan(u)
	if calls == nil {
		return false
	}
	d.run(ctx, u.UpdateID, calls)
	return true
}

// Wait blocks until every handler goroutine started by Dispatch returns.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// call is one handler invocation bound to its payload.
type call struct {
	name string
	fn   func(ctx context.Context)
}

func (d *Dispatcher) run(ctx context.Context, updateID int, calls []call) {
	logger := d.logger.With("update_id", updateID)
	for _, c := range calls {
		_ = syncutil.Safe(logger, c.name, func() { c.fn(ctx) })
	}
}

// plan resolves every handler u triggers, in emission order, against a
// snapshot of the tables. A nil result means u is malformed.
func (d *Dispatcher) plan(u tg.Update) []call {
	if u.UpdateID <= 0 {
		d.logger.Debug("ignoring update without update_id", "kind", u.Kind())
		return nil
	}
	kind := u.Kind()
	if kind == tg.KindUnknown {
		d.logger.Debug("ignoring update without payload", "update_id", u.UpdateID)
		return nil
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	calls := []call{}
	switch kind {
	case tg.KindMessage:
		calls = d.planMessage(calls, u.Message)

	case tg.KindEditedMessage:
		calls = d.planDerived(calls, CategoryEditedMessage, u.EditedMessage)
	case tg.KindChannelPost:
		calls = d.planDerived(calls, CategoryChannelPost, u.ChannelPost)
	case tg.KindEditedChannelPost:
		calls = d.planDerived(calls, CategoryEditedChannelPost, u.EditedChannelPost)

	case tg.KindInlineQuery:
		q := u.InlineQuery
		for _, h := range d.inline {
			calls = append(calls, call{string(CategoryInlineQuery), func(ctx context.Context) { h(ctx, q) }})
		}
	case tg.KindChosenInlineResult:
		r := u.ChosenInlineResult
		for _, h := range d.chosen {
			calls = append(calls, call{string(CategoryChosenInlineResult), func(ctx context.Context) { h(ctx, r) }})
		}
	case tg.KindCallbackQuery:
		q := u.CallbackQuery
		for _, h := range d.callbacks {
			calls = append(calls, call{string(CategoryCallbackQuery), func(ctx context.Context) { h(ctx, q) }})
		}
	}

	d.logger.Debug("update classified",
		"update_id", u.UpdateID,
		"kind", string(kind),
		"handlers", len(calls),
	)
	return calls
}

func (d *Dispatcher) planMessage(calls []call, msg *tg.Message) []call {
	calls = d.appendCategory(calls, CategoryMessage, msg)
	for _, st := range messageSubtypes {
		if st.present(msg) {
			calls = d.appendCategory(calls, st.category, msg)
		}
	}

	if msg.Text != "" {
		for i, m := range d.matchers {
			match := m.Pattern.FindStringSubmatch(msg.Text)
			if match == nil {
				continue
			}
			h := m.Handler
			calls = append(calls, call{
				name: fmt.Sprintf("text_matcher[%d]", i),
				fn:   func(ctx context.Context) { h(ctx, msg, match) },
			})
			if d.onlyFirstMatch {
				break
			}
		}
	}

	if msg.IsReply() {
		chatID := msg.ChatID()
		replyTo := msg.ReplyToMessage.MessageID
		for _, l := range d.replies {
			if l.ChatID != chatID || l.MessageID != replyTo {
				continue
			}
			h := l.Handler
			calls = append(calls, call{
				name: fmt.Sprintf("reply_listener[%d]", l.ID),
				fn:   func(ctx context.Context) { h(ctx, msg) },
			})
		}
	}
	return calls
}

func (d *Dispatcher) planDerived(calls []call, c Category, msg *tg.Message) []call {
	calls = d.appendCategory(calls, c, msg)
	dc := derivedCategories[c]
	if msg.Text != "" {
		calls = d.appendCategory(calls, dc.text, msg)
	}
	if msg.Caption != "" {
		calls = d.appendCategory(calls, dc.caption, msg)
	}
	return calls
}

func (d *Dispatcher) appendCategory(calls []call, c Category, msg *tg.Message) []call {
	for _, h := range d.handlers[c] {
		calls = append(calls, call{string(c), func(ctx context.Context) { h(ctx, msg) }})
	}
	return calls
}
