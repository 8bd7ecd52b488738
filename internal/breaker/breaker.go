// Package breaker implements a cooldown-style circuit breaker for the
// single upstream account. Unlike a classic error-rate breaker, this
// one is opened explicitly by the caller (on FLOOD/PEER_FLOOD
// signals) for a given duration; openings never shorten an existing
// cooldown, they can only extend it.
package breaker

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Breaker tracks a single monotonic "open until" timestamp.
type Breaker struct {
	mu     sync.Mutex
	logger *zap.Logger
	until  time.Time

	now func() time.Time
}

// New returns a closed breaker.
func New(logger *zap.Logger) *Breaker {
	return &Breaker{logger: logger, now: time.Now}
}

// OpenFor extends the breaker's cooldown so it stays open for at
// least d from now. If the breaker is already open past that point,
// the existing cooldown is left untouched.
func (b *Breaker) OpenFor(d time.Duration) {
	if d <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	candidate := b.now().Add(d)
	if candidate.After(b.until) {
		b.until = candidate
		b.logger.Warn("breaker opened", zap.Time("until", b.until))
	}
}

// WaitIfOpen blocks the caller's goroutine until the breaker's
// cooldown has elapsed. It returns immediately if the breaker is
// already closed.
func (b *Breaker) WaitIfOpen() {
	for {
		d := b.remaining()
		if d <= 0 {
			return
		}
		time.Sleep(d)
	}
}

// Remaining reports how long the breaker stays open, 0 if closed.
func (b *Breaker) Remaining() time.Duration {
	return b.remaining()
}

func (b *Breaker) remaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	d := b.until.Sub(b.now())
	if d < 0 {
		return 0
	}
	return d
}
