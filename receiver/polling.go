package receiver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/prilive-com/tgwire/internal/resilience"
	"github.com/prilive-com/tgwire/internal/syncutil"
	"github.com/prilive-com/tgwire/tg"
)

// requestSlack is added to the server-side hold when bounding one fetch.
const requestSlack = 10 * time.Second

// Caller issues one Bot API call and returns its result field.
// *sender.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// UpdateFunc receives each fetched or pushed update. It must not block on
// handler completion.
type UpdateFunc func(ctx context.Context, u tg.Update)

// State is the lifecycle state of a PollingEngine.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// PollingEngine runs a sequential getUpdates loop: at most one fetch is
// outstanding at any time, the cursor advances only after a batch has been
// handed to the UpdateFunc, and failures back off without ending the loop.
type PollingEngine struct {
	caller   Caller
	dispatch UpdateFunc
	logger   *slog.Logger
	onError  func(error)

	mu  sync.Mutex // serializes Start/Stop
	run *pollRun

	state             atomic.Int32
	offset            atomic.Int64
	consecutiveErrors atomic.Int32
	unhealthyAfter    atomic.Int32
}

type pollRun struct {
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func (r *pollRun) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

// PollingOption configures the PollingEngine.
type PollingOption func(*PollingEngine)

// WithPollingErrorHandler sets the callback receiving every failed cycle
// as a *PollingError.
func WithPollingErrorHandler(fn func(error)) PollingOption {
	return func(e *PollingEngine) {
		e.onError = fn
	}
}

// WithInitialOffset sets the cursor the first fetch starts from.
func WithInitialOffset(offset int64) PollingOption {
	return func(e *PollingEngine) {
		e.offset.Store(offset)
	}
}

// NewPollingEngine creates a stopped engine.
func NewPollingEngine(caller Caller, dispatch UpdateFunc, logger *slog.Logger, opts ...PollingOption) *PollingEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &PollingEngine{
		caller:   caller,
		dispatch: dispatch,
		logger:   logger,
	}
	e.unhealthyAfter.Store(defaultUnhealthyAfter)

	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates cfg and launches the loop. It returns ErrAlreadyRunning
// unless the engine is stopped. The loop ends when Stop is called or ctx
// is cancelled.
func (e *PollingEngine) Start(ctx context.Context, cfg PollingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.withDefaults()

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return ErrAlreadyRunning
	}

	if cfg.DeleteWebhookFirst {
		e.logger.Info("deleting existing webhook")
		if err := DeleteWebhook(ctx, e.caller, false); err != nil {
			e.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to delete webhook: %w", err)
		}
	}

	e.unhealthyAfter.Store(int32(cfg.UnhealthyAfter))
	e.consecutiveErrors.Store(0)

	run := &pollRun{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	e.run = run
	breaker := e.newBreaker(cfg)

	e.state.Store(int32(StateRunning))
	go e.pollLoop(ctx, cfg, run, breaker)

	e.logger.Info("long polling started",
		"timeout", cfg.Timeout,
		"limit", cfg.Limit,
		"interval", cfg.Interval,
		"offset", e.offset.Load(),
	)
	return nil
}

// Stop requests the loop to end and waits until it has. An in-flight fetch
// is never aborted; the loop exits once it completes and its batch has been
// dispatched. ctx bounds only the wait. Stop on a stopped engine is a no-op.
func (e *PollingEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	run := e.run
	if run == nil {
		return nil
	}

	e.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
	run.stop()

	select {
	case <-run.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	e.run = nil
	e.logger.Info("long polling stopped", "offset", e.offset.Load())
	return nil
}

// Running returns true if the loop is active.
func (e *PollingEngine) Running() bool {
	return e.State() == StateRunning
}

// State returns the current lifecycle state.
func (e *PollingEngine) State() State {
	return State(e.state.Load())
}

// Offset returns the update_id the next fetch will request.
func (e *PollingEngine) Offset() int64 {
	return e.offset.Load()
}

// ConsecutiveErrors returns the number of failed cycles since the last
// successful one.
func (e *PollingEngine) ConsecutiveErrors() int {
	return int(e.consecutiveErrors.Load())
}

// IsHealthy returns health status for K8s probes.
func (e *PollingEngine) IsHealthy() bool {
	return e.Running() && e.consecutiveErrors.Load() < e.unhealthyAfter.Load()
}

func (e *PollingEngine) newBreaker(cfg PollingConfig) *gobreaker.CircuitBreaker[[]tg.Update] {
	bc := resilience.DefaultBreakerConfig("tgwire-polling")
	bc.MaxRequests = cfg.BreakerMaxRequests
	bc.Interval = cfg.BreakerInterval
	bc.Timeout = cfg.BreakerTimeout
	bc.OnStateChange = func(name, from, to string) {
		e.logger.Info("circuit breaker state changed",
			"name", name,
			"from", from,
			"to", to,
		)
	}
	return resilience.NewBreaker[[]tg.Update](bc)
}

func (e *PollingEngine) pollLoop(ctx context.Context, cfg PollingConfig, run *pollRun, breaker *gobreaker.CircuitBreaker[[]tg.Update]) {
	defer close(run.done)
	defer e.state.Store(int32(StateStopped))

	backoff := resilience.DefaultBackoff()
	backoff.Initial = cfg.RetryInitialDelay
	backoff.Max = cfg.RetryMaxDelay
	backoff.Factor = cfg.RetryBackoffFactor

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("polling stopped: context cancelled")
			return
		case <-run.stopCh:
			e.logger.Debug("polling stopped: stop signal")
			return
		default:
		}

		updates, err := e.fetchUpdates(ctx, cfg, breaker)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n := e.consecutiveErrors.Add(1)
			delay := backoff.Delay(int(n))
			e.logger.Error("fetch updates failed",
				"error", err,
				"consecutive_errors", n,
				"retry_delay", delay,
				"breaker_open", resilience.IsOpen(breaker),
			)
			e.notify(&PollingError{
				Offset:            e.offset.Load(),
				ConsecutiveErrors: int(n),
				RetryIn:           delay,
				Err:               err,
			})

			if !resilience.Sleep(ctx, run.stopCh, delay) {
				return
			}
			continue
		}

		e.consecutiveErrors.Store(0)
		e.deliver(ctx, updates)

		if !resilience.Sleep(ctx, run.stopCh, cfg.Interval) {
			return
		}
	}
}

// deliver hands updates to the dispatcher in array order, then advances the
// cursor to max(update_id)+1. The cursor never moves backwards.
func (e *PollingEngine) deliver(ctx context.Context, updates []tg.Update) {
	if len(updates) == 0 {
		return
	}

	dctx := context.WithoutCancel(ctx)
	maxID := int64(updates[0].UpdateID)
	for _, u := range updates {
		_ = syncutil.Safe(e.logger, "dispatch", func() {
			e.dispatch(dctx, u)
		})
		maxID = max(maxID, int64(u.UpdateID))
		e.logger.Debug("update dispatched", "update_id", u.UpdateID)
	}

	next := maxID + 1
	for {
		cur := e.offset.Load()
		if next <= cur || e.offset.CompareAndSwap(cur, next) {
			return
		}
	}
}

func (e *PollingEngine) fetchUpdates(ctx context.Context, cfg PollingConfig, breaker *gobreaker.CircuitBreaker[[]tg.Update]) ([]tg.Update, error) {
	params := make(map[string]any, len(cfg.Params)+4)
	for k, v := range cfg.Params {
		params[k] = v
	}
	params["offset"] = e.offset.Load()
	params["timeout"] = cfg.Timeout
	if cfg.Limit > 0 {
		params["limit"] = cfg.Limit
	}
	if len(cfg.AllowedUpdates) > 0 {
		params["allowed_updates"] = cfg.AllowedUpdates
	}

	reqCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.Timeout)*time.Second+requestSlack)
	defer cancel()

	updates, err := breaker.Execute(func() ([]tg.Update, error) {
		raw, err := e.caller.Call(reqCtx, "getUpdates", params)
		if err != nil {
			return nil, err
		}
		var updates []tg.Update
		if err := json.Unmarshal(raw, &updates); err != nil {
			return nil, &tg.MalformedResponseError{Method: "getUpdates", Err: err}
		}
		return updates, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: getUpdates", tg.ErrCircuitOpen)
	}
	return updates, err
}

func (e *PollingEngine) notify(err error) {
	if e.onError == nil {
		return
	}
	_ = syncutil.Safe(e.logger, "polling error handler", func() {
		e.onError(err)
	})
}
