package proxy

import (
	"context"
	"sync"
	"time"
)

// Limiter enforces a minimum spacing between upstream requests. It is
// constructed once per process and passed by reference into every caller
// instead of living in a package-level timestamp, so tests can drive it with
// a fake clock.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewLimiter creates a Limiter with the given minimum interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// NewLimiterWithClock creates a Limiter driven by the supplied clock and
// sleeper. Used by tests.
func NewLimiterWithClock(interval time.Duration, now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Limiter {
	return &Limiter{interval: interval, now: now, sleep: sleep}
}

// Wait blocks until the minimum interval since the previous request has
// elapsed, then records the new request time. Returns the context's error if
// it is cancelled while waiting.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return nil
	}

	l.mu.Lock()
	now := l.now()
	wait := l.interval - now.Sub(l.last)
	if wait <= 0 {
		l.last = now
		l.mu.Unlock()
		return nil
	}
	// Reserve the slot before sleeping so concurrent callers queue up.
	l.last = now.Add(wait)
	l.mu.Unlock()

	return l.sleep(ctx, wait)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
