package rate

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketBurst(t *testing.T) {
	tb := NewTokenBucket(1, 3)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := tb.Wait(ctx); err != nil {
			t.Fatalf("burst token %d should be immediate: %v", i, err)
		}
	}
}

func TestTokenBucketBlocksWhenDrained(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	defer tb.Stop()

	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tb.Wait(ctx); err == nil {
		t.Fatalf("drained bucket should block until cancellation")
	}
}

func TestTokenBucketRefills(t *testing.T) {
	tb := NewTokenBucket(50, 1)
	defer tb.Stop()

	if err := tb.Wait(context.Background()); err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := tb.Wait(ctx); err != nil {
		t.Fatalf("bucket should refill: %v", err)
	}
}

func TestStopReturns(t *testing.T) {
	tb := NewTokenBucket(10, 1)
	done := make(chan struct{})
	go func() {
		tb.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stop did not return")
	}
}

func TestNoneNeverBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (None{}).Wait(ctx); err != nil {
		t.Fatalf("none limiter must not fail: %v", err)
	}
}
