package sponsor

import (
	"sync"
	"time"
)

// RateLimiter caps sponsorship requests per sender over a sliding window.
// Abuse of a shared gas fund is the whole threat model here, so the limiter
// keys on the claimed sender address.
type RateLimiter struct {
	limit  int
	window time.Duration

	mu      sync.Mutex
	history map[string][]time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		history: make(map[string][]time.Time),
	}
}

// Allow records one request for the sender and reports whether it fits the
// window.
func (r *RateLimiter) Allow(sender string) bool {
	now := time.Now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()

	recent := r.history[sender][:0]
	for _, t := range r.history[sender] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.history[sender] = recent
		return false
	}

	r.history[sender] = append(recent, now)
	return true
}
