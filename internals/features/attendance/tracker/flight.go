package tracker

import (
	"context"
	"log"
	"sync"
	"time"
)

// flight is a single-flight flag with a watchdog. acquire hands out a token;
// only the matching release (or the watchdog) clears the flag.
type flight struct {
	name     string
	watchdog time.Duration

	mu    sync.Mutex
	busy  bool
	token uint64
	timer *time.Timer
}

func newFlight(name string, watchdog time.Duration) *flight {
	return &flight{name: name, watchdog: watchdog}
}

func (f *flight) acquire() (uint64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return 0, false
	}
	f.busy = true
	f.token++
	tok := f.token
	f.timer = time.AfterFunc(f.watchdog, func() {
		if f.release(tok) {
			log.Printf("[TRACKER] ⚠️ watchdog cleared stuck %s flag after %s", f.name, f.watchdog)
		}
	})
	return tok, true
}

// release reports whether this call cleared the flag.
func (f *flight) release(tok uint64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.busy || f.token != tok {
		return false
	}
	f.busy = false
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	return true
}

func (f *flight) inProgress() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// runWithTimeout abandons fn once d elapses. fn keeps running in the background
// with a cancelled context; its late result is dropped.
func runWithTimeout[T any](ctx context.Context, d time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		select {
		case r := <-ch:
			return r.v, r.err
		default:
		}
		var zero T
		if ctx.Err() == context.DeadlineExceeded {
			return zero, ErrTimedOut
		}
		return zero, ctx.Err()
	}
}
