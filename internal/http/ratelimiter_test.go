package httpapi

import (
	"testing"
	"time"
)

func TestSlidingWindowLimiter(t *testing.T) {
	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewSlidingWindowLimiter(time.Minute, 2, func() time.Time { return now })

	if !limiter.Allow() {
		t.Fatal("expected first roll to be allowed")
	}
	now = now.Add(20 * time.Second)
	if !limiter.Allow() {
		t.Fatal("expected second roll to be allowed")
	}
	if limiter.Allow() || limiter.Remaining() != 0 {
		t.Fatalf("expected the window to be exhausted, remaining=%d", limiter.Remaining())
	}

	//1.- The first slot frees exactly one window after it was taken.
	now = now.Add(39 * time.Second)
	if limiter.Allow() {
		t.Fatal("expected a roll one second early to be denied")
	}
	now = now.Add(time.Second)
	if limiter.Remaining() != 1 || !limiter.Allow() {
		t.Fatal("expected the oldest slot to be reusable after a full window")
	}

	//2.- The second slot, taken at +20s, is now the oldest.
	now = now.Add(19 * time.Second)
	if limiter.Allow() {
		t.Fatal("expected the second slot to still be busy")
	}
	now = now.Add(time.Second)
	if !limiter.Allow() {
		t.Fatal("expected the second slot to free after its window")
	}
}

func TestSlidingWindowLimiterDisabled(t *testing.T) {
	limiter := NewSlidingWindowLimiter(0, 0, nil)
	for i := 0; i < 5; i++ {
		if !limiter.Allow() {
			t.Fatal("limiter with zero configuration should allow")
		}
	}
	if limiter.Remaining() != -1 {
		t.Fatalf("expected unlimited remaining, got %d", limiter.Remaining())
	}
}
