package ingest

import (
	"context"
	"sync"
	"time"
)

// RateLimiter admits a bounded number of messages per sender per window.
// State is explicit and owned by this object; expired counters are removed by
// a periodic sweep rather than one timer per sender.
type RateLimiter struct {
	mu      sync.Mutex
	counts  map[string]*senderWindow
	limit   int
	window  time.Duration
}

type senderWindow struct {
	count     int
	windowEnd time.Time
}

// NewRateLimiter creates a limiter allowing limit messages per window for
// each sender.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit < 1 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{
		counts: make(map[string]*senderWindow),
		limit:  limit,
		window: window,
	}
}

// Allow reports whether the sender is within its budget and counts the
// admission when it is.
func (r *RateLimiter) Allow(sender string) bool {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.counts[sender]
	if !ok || now.After(w.windowEnd) {
		r.counts[sender] = &senderWindow{count: 1, windowEnd: now.Add(r.window)}
		return true
	}

	if w.count >= r.limit {
		return false
	}

	w.count++
	return true
}

// Sweep removes expired windows. Run calls it periodically; exported so tests
// can drive it directly.
func (r *RateLimiter) Sweep(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sender, w := range r.counts {
		if now.After(w.windowEnd) {
			delete(r.counts, sender)
		}
	}
}

// Run sweeps expired state until the context is canceled.
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.window)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
