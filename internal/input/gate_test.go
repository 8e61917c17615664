package input

import (
	"sync"
	"testing"
	"time"

	"planetarena/server/internal/logging"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// 1.- Now returns the configured timestamp for deterministic gate decisions.
func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// 2.- Advance moves the internal clock forward to simulate elapsed time.
func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestGateAcceptsWithinBudget(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := NewGate(Config{Limit: 3, Window: time.Second, MaxStrikes: 2}, logging.NewTestLogger(), WithClock(clock))

	//1.- The first Limit frames of a window pass.
	for i := 0; i < 3; i++ {
		if decision := gate.Evaluate("conn-1"); !decision.Accepted {
			t.Fatalf("frame %d unexpectedly rejected: %+v", i, decision)
		}
	}
	//2.- The next frame in the same window is dropped but does not disconnect yet.
	burst := gate.Evaluate("conn-1")
	if burst.Accepted || burst.Reason != DropReasonRateLimited || burst.Disconnect {
		t.Fatalf("expected rate limit drop without disconnect, got %+v", burst)
	}
	if metrics := gate.Metrics()["conn-1"]; metrics.RateLimited != 1 {
		t.Fatalf("rate limited drops = %d, want 1", metrics.RateLimited)
	}
}

func TestGateDisconnectsAfterConsecutiveOverflows(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := NewGate(Config{Limit: 1, Window: time.Second, MaxStrikes: 2}, logging.NewTestLogger(), WithClock(clock))

	//1.- Overflow the first window.
	gate.Evaluate("flood")
	if decision := gate.Evaluate("flood"); decision.Disconnect {
		t.Fatalf("first overflow must not disconnect: %+v", decision)
	}
	//2.- Overflow the following window which reaches the strike limit.
	clock.Advance(time.Second)
	if decision := gate.Evaluate("flood"); !decision.Accepted {
		t.Fatalf("fresh window should accept its first frame: %+v", decision)
	}
	decision := gate.Evaluate("flood")
	if decision.Accepted || !decision.Disconnect {
		t.Fatalf("expected disconnect verdict, got %+v", decision)
	}
}

func TestGateQuietWindowResetsStrikes(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	gate := NewGate(Config{Limit: 1, Window: time.Second, MaxStrikes: 2}, logging.NewTestLogger(), WithClock(clock))

	gate.Evaluate("conn")
	gate.Evaluate("conn")
	//1.- A gap longer than two windows forgives the earlier overflow.
	clock.Advance(5 * time.Second)
	gate.Evaluate("conn")
	if decision := gate.Evaluate("conn"); decision.Disconnect {
		t.Fatalf("strikes should reset after a quiet period: %+v", decision)
	}
}

func TestGateForgetClearsSessionState(t *testing.T) {
	gate := NewGate(Config{Limit: 1, Window: time.Minute}, logging.NewTestLogger(), WithClock(clockFunc(func() time.Time { return time.Unix(0, 0) })))

	gate.Evaluate("conn")
	gate.Evaluate("conn")
	gate.ObserveMalformed("conn")
	if metrics := gate.Metrics()["conn"]; metrics.RateLimited != 1 || metrics.Malformed != 1 {
		t.Fatalf("unexpected metrics before forget %+v", metrics)
	}

	//1.- Forget the session and ensure a fresh budget is granted.
	gate.Forget("conn")
	if _, ok := gate.Metrics()["conn"]; ok {
		t.Fatalf("expected metrics reset after forget")
	}
	if decision := gate.Evaluate("conn"); !decision.Accepted {
		t.Fatalf("expected new session acceptance, got %+v", decision)
	}
}

func TestGateDisabledWithZeroLimit(t *testing.T) {
	gate := NewGate(Config{}, logging.NewTestLogger())
	for i := 0; i < 1000; i++ {
		if !gate.Evaluate("conn").Accepted {
			t.Fatalf("disabled gate rejected frame %d", i)
		}
	}
}
