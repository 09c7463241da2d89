package chain

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketAllowsBurstUpToCapacity(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(3, 1)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("Wait %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Fatalf("burst of %d within capacity took %v, want near-instant", 3, elapsed)
	}
}

func TestTokenBucketBlocksBeyondCapacity(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 20) // 1 burst, refills at 20/s (50ms per token)
	ctx := context.Background()

	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("first Wait: %v", err)
	}

	start := time.Now()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("second Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("second Wait returned too fast (%v), should have blocked for a refill", elapsed)
	}
}

func TestTokenBucketRespectsContextCancellation(t *testing.T) {
	t.Parallel()
	tb := NewTokenBucket(1, 0.01) // effectively never refills within the test window
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_ = tb.Wait(context.Background()) // drain the single token

	err := tb.Wait(ctx)
	if err == nil {
		t.Fatalf("expected context deadline error, got nil")
	}
}
