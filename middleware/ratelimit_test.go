package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterAllow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		if !limiter.Allow("10.0.0.1") {
			t.Fatalf("Request %d should be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.1") {
		t.Error("Fourth request within the window should be blocked")
	}

	// Another client has its own budget.
	if !limiter.Allow("10.0.0.2") {
		t.Error("Different client should not share the limit")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	limiter := NewRateLimiter(1, 20*time.Millisecond)

	if !limiter.Allow("10.0.0.1") {
		t.Fatal("First request should be allowed")
	}
	if limiter.Allow("10.0.0.1") {
		t.Fatal("Second request inside the window should be blocked")
	}

	time.Sleep(30 * time.Millisecond)
	if !limiter.Allow("10.0.0.1") {
		t.Error("Request after the window should be allowed again")
	}
}
