package telemetry

import (
	"sync"
	"time"
)

// RateLimiter throttles repeated actions (error logging) to at most once
// per interval, grounded verbatim on the teacher's telemetry.RateLimiter.
type RateLimiter struct {
	interval time.Duration
	lastTime time.Time
	mu       sync.Mutex
}

// NewRateLimiter returns a RateLimiter allowing one action per interval.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	return &RateLimiter{interval: interval}
}

// Allow reports whether an action may proceed now.
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if now.Sub(r.lastTime) >= r.interval {
		r.lastTime = now
		return true
	}
	return false
}
