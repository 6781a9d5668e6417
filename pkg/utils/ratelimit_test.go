package utils

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsBurstUpToLimit(t *testing.T) {
	limiter := NewRateLimiter()
	now := time.Now()
	limiter.SetClock(func() time.Time { return now })
	limit := NewBasicRateLimit(4, time.Minute, "stream-requests")

	for i := 0; i < 4; i++ {
		if !limiter.Check(limit, "acc-1") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if limiter.Check(limit, "acc-1") {
		t.Error("Request over the limit should be denied")
	}
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	limiter := NewRateLimiter()
	now := time.Now()
	limiter.SetClock(func() time.Time { return now })
	limit := NewBasicRateLimit(4, time.Minute, "stream-requests")

	for i := 0; i < 4; i++ {
		limiter.Check(limit, "acc-1")
	}
	if limiter.Check(limit, "acc-1") {
		t.Fatal("Bucket should be empty")
	}

	// A quarter period refills one token.
	now = now.Add(15 * time.Second)
	if !limiter.Check(limit, "acc-1") {
		t.Error("One token should have refilled after 15s")
	}
	if limiter.Check(limit, "acc-1") {
		t.Error("Only one token should have refilled")
	}

	// A full idle period restores the whole burst, but no more.
	now = now.Add(5 * time.Minute)
	for i := 0; i < 4; i++ {
		if !limiter.Check(limit, "acc-1") {
			t.Fatalf("Request %d should be allowed after full refill", i+1)
		}
	}
	if limiter.Check(limit, "acc-1") {
		t.Error("Bucket must not overfill during idle time")
	}
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := NewRateLimiter()
	now := time.Now()
	limiter.SetClock(func() time.Time { return now })
	limit := NewBasicRateLimit(2, time.Minute, "chat-queries")

	limiter.Check(limit, "acc-1")
	limiter.Check(limit, "acc-1")
	if limiter.Check(limit, "acc-1") {
		t.Error("First account should be exhausted")
	}
	if !limiter.Check(limit, "acc-2") {
		t.Error("Second account should have its own bucket")
	}
}

func TestRateLimiterSeparatesLimitsByName(t *testing.T) {
	limiter := NewRateLimiter()
	now := time.Now()
	limiter.SetClock(func() time.Time { return now })
	queries := NewBasicRateLimit(1, time.Minute, "chat-queries")
	streams := NewBasicRateLimit(1, time.Minute, "stream-requests")

	limiter.Check(queries, "acc-1")
	if limiter.Check(queries, "acc-1") {
		t.Error("Query limit should be exhausted")
	}
	if !limiter.Check(streams, "acc-1") {
		t.Error("Stream limit must not share the query bucket")
	}
}

func TestRateLimiterDeniedCheckConsumesNothing(t *testing.T) {
	limiter := NewRateLimiter()
	now := time.Now()
	limiter.SetClock(func() time.Time { return now })
	limit := NewBasicRateLimit(1, time.Minute, "chat-queries")

	limiter.Check(limit, "acc-1")
	for i := 0; i < 10; i++ {
		limiter.Check(limit, "acc-1")
	}

	// Hammering while empty must not push the refill further away.
	now = now.Add(time.Minute)
	if !limiter.Check(limit, "acc-1") {
		t.Error("Full period should refill the bucket despite denied checks")
	}
}
