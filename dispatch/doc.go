// Package dispatch classifies Telegram updates and fans each one out to
// the handlers registered for it.
//
// An update is routed by its first populated payload. A message update
// notifies CategoryMessage handlers, then one subtype category per
// populated field (text, photo, location, ...), then the text matchers in
// registration order, then every reply listener registered for the
// replied-to message. Edited messages and channel posts notify their
// category plus a _text and/or _caption variant.
//
//	d := dispatch.New(dispatch.WithOnlyFirstMatch(true))
//	d.OnText(regexp.MustCompile(`^/start`), func(ctx context.Context, m *tg.Message, match []string) {
//	    ...
//	})
//	d.Dispatch(ctx, update)
//
// Handlers for one update run sequentially on their own goroutine; a
// panicking handler is logged and the next one still runs.
package dispatch
