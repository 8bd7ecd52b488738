// Package rate implements the gateway's flow control in front of the
// single upstream account: a sliding-window admission limiter. Unlike
// the per-client, Redis-backed token bucket this package replaces,
// there is exactly one caller of this limiter — the job worker — so
// the whole state fits in a mutex-guarded slice of timestamps.
package rate

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Limiter admits at most N actions per rolling W-second window.
// Callers that would exceed the window block until the oldest
// admitted timestamp falls outside it.
type Limiter struct {
	mu     sync.Mutex
	logger *zap.Logger

	max    int
	window time.Duration
	hits   []time.Time

	now   func() time.Time
	sleep func(time.Duration)
}

// NewLimiter builds a sliding-window limiter admitting at most max
// actions per window. max is clamped to 1 and window to 1s, matching
// the constraint N>=1, W>=1s.
func NewLimiter(logger *zap.Logger, max int, window time.Duration) *Limiter {
	if max < 1 {
		max = 1
	}
	if window < time.Second {
		window = time.Second
	}
	return &Limiter{
		logger: logger,
		max:    max,
		window: window,
		now:    time.Now,
		sleep:  time.Sleep,
	}
}

// Acquire blocks, if necessary, until admitting one more action would
// not exceed max actions in the trailing window. It returns early if
// ctx is cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	for {
		wait, ok := l.tryAcquire()
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
			continue
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// tryAcquire trims expired timestamps and either admits the caller
// (returning ok=true) or reports how long until the oldest entry ages
// out of the window.
func (l *Limiter) tryAcquire() (wait time.Duration, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	l.hits = trimBefore(l.hits, cutoff)

	if len(l.hits) < l.max {
		l.hits = append(l.hits, now)
		return 0, true
	}

	oldest := l.hits[0]
	wait = oldest.Add(l.window).Sub(now)
	if wait < 0 {
		wait = 0
	}
	return wait, false
}

func trimBefore(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && hits[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}
