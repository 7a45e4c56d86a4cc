package channels

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(10.0, 5)

	if rl.rate != 10.0 {
		t.Errorf("expected rate 10.0, got %f", rl.rate)
	}
	if rl.capacity != 5 {
		t.Errorf("expected capacity 5, got %d", rl.capacity)
	}
	if rl.tokens != 5.0 {
		t.Errorf("expected initial tokens 5.0, got %f", rl.tokens)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(10.0, 3)
	rl.lastRefill = now
	rl.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Errorf("expected Allow() to return true for request %d", i+1)
		}
	}

	if rl.Allow() {
		t.Error("expected Allow() to return false when empty")
	}

	now = now.Add(100 * time.Millisecond)
	if !rl.Allow() {
		t.Error("expected a token after refill interval")
	}
}

func TestRateLimiter_WaitCancelled(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(0.001, 1)
	rl.lastRefill = now
	rl.now = func() time.Time { return now }

	if !rl.Allow() {
		t.Fatal("expected first token")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := rl.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestRateLimiter_WaitReturnsWhenTokenAvailable(t *testing.T) {
	rl := NewRateLimiter(1000, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("Wait() error = %v", err)
		}
	}
}
