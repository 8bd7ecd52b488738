// Package quota enforces a per-user sliding-window admission limit,
// independent of the global upstream rate limiter in internal/rate.
// Where that limiter protects the single upstream account, this one
// protects the gateway from any single chat flooding it with lookups.
package quota

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const window = time.Hour

// Quota tracks per-user request timestamps within a rolling hour.
type Quota struct {
	mu     sync.Mutex
	logger *zap.Logger
	max    int
	hits   map[int64][]time.Time

	now func() time.Time
}

// New returns a quota admitting at most max requests per user per
// rolling hour.
func New(logger *zap.Logger, max int) *Quota {
	if max < 1 {
		max = 1
	}
	return &Quota{
		logger: logger,
		max:    max,
		hits:   make(map[int64][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether userID may act now. When it returns false,
// retryAfter is how long until the oldest hit in the window expires.
func (q *Quota) Allow(userID int64) (ok bool, retryAfter time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	cutoff := now.Add(-window)
	hits := trimBefore(q.hits[userID], cutoff)

	if len(hits) >= q.max {
		wait := hits[0].Add(window).Sub(now)
		if wait < time.Second {
			wait = time.Second
		}
		q.hits[userID] = hits
		return false, wait
	}

	q.hits[userID] = append(hits, now)
	return true, 0
}

// Forget discards tracked history for userID, mainly useful in tests.
func (q *Quota) Forget(userID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.hits, userID)
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
