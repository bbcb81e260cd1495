package command

import (
	"sync"
	"time"
)

// RateLimiter is a token bucket per conversation, so one noisy room cannot
// starve the others.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	max     float64
	rate    float64 // tokens per second
	now     func() time.Time
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

func NewRateLimiter(maxBurst int, ratePerMinute float64) *RateLimiter {
	if maxBurst <= 0 {
		maxBurst = 5
	}
	if ratePerMinute <= 0 {
		ratePerMinute = 30 // 30 commands per minute default
	}
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		max:     float64(maxBurst),
		rate:    ratePerMinute / 60.0, // Convert to per-second
		now:     time.Now,
	}
}

// Allow takes one token from key's bucket and reports whether there was one.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.max, lastTime: now}
		rl.buckets[key] = b
	}

	b.tokens += now.Sub(b.lastTime).Seconds() * rl.rate
	if b.tokens > rl.max {
		b.tokens = rl.max
	}
	b.lastTime = now

	if b.tokens < 1.0 {
		return false
	}
	b.tokens -= 1.0
	return true
}
