package gateway

import (
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter hands each connection its own token bucket, per spec.md
// §2's note that flow control is "beyond the transport's own" for
// message routing but still a concern of the transport adapter itself.
// A non-positive rps disables limiting entirely (rate_limit_rps == 0 is
// the off switch, matching the teacher's config convention).
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// NewRateLimiter builds a limiter allowing rps frames/second per
// connection, bursting up to burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Enabled reports whether this limiter actually restricts anything.
func (r *RateLimiter) Enabled() bool { return r.rps > 0 }

// Allow reports whether connID may send another frame right now,
// lazily creating its bucket on first use.
func (r *RateLimiter) Allow(connID string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	l, ok := r.limiters[connID]
	if !ok {
		l = rate.NewLimiter(r.rps, r.burst)
		r.limiters[connID] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Remove drops connID's bucket, called on disconnect so the map doesn't
// grow without bound across the server's lifetime.
func (r *RateLimiter) Remove(connID string) {
	r.mu.Lock()
	delete(r.limiters, connID)
	r.mu.Unlock()
}
