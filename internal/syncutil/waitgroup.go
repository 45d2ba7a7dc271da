package syncutil

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Go spawns a goroutine tracked by wg.
func Go(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

// PanicError is returned by Safe when fn panicked.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Safe runs fn and converts a panic into a logged *PanicError.
// It returns nil when fn completed normally.
func Safe(logger *slog.Logger, name string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			pe := &PanicError{Value: r, Stack: debug.Stack()}
			if logger != nil {
				logger.Error("recovered panic", "callback", name, "panic", fmt.Sprint(r), "stack", string(pe.Stack))
			}
			err = pe
		}
	}()
	fn()
	return nil
}
