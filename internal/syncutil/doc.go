// Package syncutil provides synchronization utilities for tgwire.
//
// # Tracked goroutines
//
// Go spawns a goroutine tracked by a WaitGroup. Safe additionally recovers
// panics so that one failing subscriber callback cannot take down the
// goroutine running the callbacks after it:
//
//	var wg sync.WaitGroup
//	syncutil.Go(&wg, func() {
//	    for _, fn := range callbacks {
//	        syncutil.Safe(logger, "callback", fn)
//	    }
//	})
//	wg.Wait()
package syncutil
