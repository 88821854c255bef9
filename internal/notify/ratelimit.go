package notify

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket keyed by user. Tokens refill
// continuously at ratePerMinute up to the burst size.
type rateLimiter struct {
	mu            sync.Mutex
	ratePerMinute float64
	burst         float64
	buckets       map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
}

func newRateLimiter(ratePerMinute, burst int) *rateLimiter {
	if ratePerMinute <= 0 {
		ratePerMinute = 30
	}
	if burst <= 0 {
		burst = 10
	}
	return &rateLimiter{
		ratePerMinute: float64(ratePerMinute),
		burst:         float64(burst),
		buckets:       map[string]*bucket{},
	}
}

// allow consumes one token for the user if available.
func (r *rateLimiter) allow(userID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[userID]
	if !ok {
		b = &bucket{tokens: r.burst, lastRefill: now}
		r.buckets[userID] = b
	}

	elapsed := now.Sub(b.lastRefill).Minutes()
	if elapsed > 0 {
		b.tokens += elapsed * r.ratePerMinute
		if b.tokens > r.burst {
			b.tokens = r.burst
		}
		b.lastRefill = now
	}

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
