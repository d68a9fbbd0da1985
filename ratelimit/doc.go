// Package ratelimit provides the two shared coordination primitives used by the
// TMDB client to stay inside the server's request quota.
//
// # Components
//
//   - Gate: bounds the number of requests in flight. Callers beyond the limit
//     queue in FIFO order and are admitted one at a time as slots free up.
//   - Backoff: a single process-wide cooldown window. While a window is open no
//     new request may be dispatched; every caller waits for the same expiry event.
//
// Both are plain values owned by whoever creates them, so each client (and each
// test) gets its own isolated instance.
//
// # Usage
//
//	gate, err := ratelimit.NewGate(8)
//	if err != nil {
//		return err
//	}
//	backoff := ratelimit.NewBackoff(logger)
//
//	err = gate.Do(ctx, func() error {
//		if err := backoff.Wait(ctx); err != nil {
//			return err
//		}
//		// issue the request, then on a 429:
//		backoff.TriggerReactive(2 * time.Second)
//		return nil
//	})
package ratelimit
