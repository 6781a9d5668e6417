package utils

import (
	"math"
	"sync"
	"time"
)

// RateLimit names one limit: Limit requests per Period. The name keeps
// buckets for different endpoints apart when they share a limiter.
type RateLimit struct {
	Limit  int
	Period time.Duration
	Name   string
}

// NewBasicRateLimit creates a rate limit of limit requests per period.
func NewBasicRateLimit(limit int, period time.Duration, name string) RateLimit {
	return RateLimit{Limit: limit, Period: period, Name: name}
}

// RateLimiter enforces limits with a token bucket per (limit, key) pair.
// A bucket starts full at Limit tokens and refills continuously at Limit
// per Period, so short bursts up to Limit are allowed and the sustained
// rate converges on Limit/Period.
type RateLimiter struct {
	mu      sync.Mutex
	now     func() time.Time
	buckets map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewRateLimiter returns an empty limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{now: time.Now, buckets: make(map[string]*bucket)}
}

// SetClock replaces the limiter's time source. Tests use this to drive
// refill deterministically.
func (l *RateLimiter) SetClock(now func() time.Time) { l.now = now }

// Check consumes one token from the bucket for key under limit and
// reports whether the request may proceed. A false return consumes
// nothing.
func (l *RateLimiter) Check(limit RateLimit, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	id := limit.Name + ":" + key
	b, ok := l.buckets[id]
	if !ok {
		b = &bucket{tokens: float64(limit.Limit), last: now}
		l.buckets[id] = b
	}

	elapsed := now.Sub(b.last)
	if elapsed > 0 && limit.Period > 0 {
		refill := elapsed.Seconds() * float64(limit.Limit) / limit.Period.Seconds()
		b.tokens = math.Min(b.tokens+refill, float64(limit.Limit))
	}
	b.last = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
