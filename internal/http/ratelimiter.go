package httpapi

import (
	"sync"
	"time"
)

// SlidingWindowLimiter admits at most limit events in any span of one window.
// Admitted timestamps live in a ring whose oldest entry decides the next admission.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	stamps []time.Time
	oldest int
	now    func() time.Time
}

// NewSlidingWindowLimiter allows up to limit events per window. A non-positive
// window or limit disables limiting.
func NewSlidingWindowLimiter(window time.Duration, limit int, timeSource func() time.Time) *SlidingWindowLimiter {
	if timeSource == nil {
		timeSource = time.Now
	}
	limiter := &SlidingWindowLimiter{window: window, limit: limit, now: timeSource}
	if limiter.enabled() {
		limiter.stamps = make([]time.Time, 0, limit)
	}
	return limiter
}

func (l *SlidingWindowLimiter) enabled() bool {
	return l != nil && l.limit > 0 && l.window > 0
}

// Allow records an event when the window has room for it.
func (l *SlidingWindowLimiter) Allow() bool {
	if !l.enabled() {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.stamps) < l.limit {
		l.stamps = append(l.stamps, now)
		return true
	}
	//1.- Full ring: the slot frees up once its event is a window old.
	if now.Sub(l.stamps[l.oldest]) < l.window {
		return false
	}
	l.stamps[l.oldest] = now
	l.oldest = (l.oldest + 1) % l.limit
	return true
}

// Remaining reports how many events Allow would admit right now; -1 when unlimited.
func (l *SlidingWindowLimiter) Remaining() int {
	if !l.enabled() {
		return -1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	busy := 0
	for _, stamp := range l.stamps {
		if now.Sub(stamp) < l.window {
			busy++
		}
	}
	return l.limit - busy
}
