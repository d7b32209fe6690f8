package worker

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 1 {
		t.Errorf("expected burst floor 1 for negative input, got %d", l2.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "openai"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	// A different service has its own bucket.
	if err := limiter.Wait(ctx, "gemini"); err != nil {
		t.Errorf("wait failed: %v", err)
	}
}

func TestLimiter_PerServiceBuckets(t *testing.T) {
	limiter := NewLimiter(1, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "openai"); err != nil {
		t.Errorf("first wait failed: %v", err)
	}
	// Burst 1 is spent for this service.
	if limiter.Allow("openai") {
		t.Error("expected exhausted tokens for openai")
	}
	// The other service is untouched.
	if !limiter.Allow("gemini") {
		t.Error("expected gemini bucket to be full")
	}
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	limiter := NewLimiter(100, 1)

	start := time.Now()
	if err := limiter.WaitWithDelay(context.Background(), "openai", 50*time.Millisecond); err != nil {
		t.Fatalf("WaitWithDelay failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected delay >= 50ms, got %v", elapsed)
	}
}

func TestLimiter_WaitWithDelayCancelled(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := limiter.WaitWithDelay(ctx, "openai", time.Second); err == nil {
		t.Error("expected context error from cancelled delay")
	}
}

func TestLimiter_SetServiceRate(t *testing.T) {
	limiter := NewLimiter(10, 10)
	limiter.SetServiceRate("gemini", 0.1, 1)

	if !limiter.Allow("gemini") {
		t.Error("first request should pass the burst")
	}
	if limiter.Allow("gemini") {
		t.Error("second request should be throttled")
	}
	if !limiter.Allow("openai") {
		t.Error("default-rate service should still pass")
	}
}
