package simulation

import (
	"context"
	"sync"
	"time"
)

// StepFunc advances the simulation by a fixed timestep and may emit side effects.
type StepFunc func(step time.Duration)

// LoopOption customises loop construction.
type LoopOption func(*Loop)

// WithPanicHandler receives values recovered from a panicking step. The loop
// keeps ticking afterwards.
func WithPanicHandler(handler func(any)) LoopOption {
	return func(l *Loop) { l.onPanic = handler }
}

// WithMaxCatchUp bounds how many steps a single wake-up may run after a stall.
// Excess backlog is dropped rather than replayed.
func WithMaxCatchUp(steps int) LoopOption {
	return func(l *Loop) {
		if steps > 0 {
			l.maxCatchUp = steps
		}
	}
}

// Loop drives a fixed timestep simulation at the configured target frequency.
type Loop struct {
	step       time.Duration
	stepFunc   StepFunc
	onPanic    func(any)
	maxCatchUp int

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	panics  int
	dropped int
}

// NewLoop configures a loop that targets the provided frequency in hertz.
func NewLoop(targetHz float64, step StepFunc, opts ...LoopOption) *Loop {
	if targetHz <= 0 {
		targetHz = 60
	}
	if step == nil {
		step = func(time.Duration) {}
	}
	interval := time.Duration(float64(time.Second) / targetHz)
	if interval <= 0 {
		interval = time.Second / 60
	}
	loop := &Loop{step: interval, stepFunc: step, maxCatchUp: 5}
	for _, opt := range opts {
		if opt != nil {
			opt(loop)
		}
	}
	return loop
}

// Start begins ticking until the context is cancelled or Stop is invoked.
func (l *Loop) Start(ctx context.Context) {
	if l == nil || l.stepFunc == nil {
		return
	}
	l.mu.Lock()
	if l.done != nil {
		l.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	l.stop, l.done = stop, done
	l.mu.Unlock()

	ticker := time.NewTicker(l.step)
	go func() {
		defer close(done)
		defer ticker.Stop()
		last := time.Now()
		accumulator := time.Duration(0)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case now := <-ticker.C:
				//1.- Accumulate elapsed time and run fixed steps while catching up.
				accumulator += now.Sub(last)
				last = now
				steps := 0
				for accumulator >= l.step {
					if steps == l.maxCatchUp {
						//2.- A long stall is skipped instead of replayed in a burst.
						l.recordDropped(int(accumulator / l.step))
						accumulator %= l.step
						break
					}
					l.runStep()
					accumulator -= l.step
					steps++
				}
			}
		}
	}()
}

func (l *Loop) runStep() {
	defer func() {
		if recovered := recover(); recovered != nil {
			l.mu.Lock()
			l.panics++
			l.mu.Unlock()
			if l.onPanic != nil {
				l.onPanic(recovered)
			}
		}
	}()
	l.stepFunc(l.step)
}

func (l *Loop) recordDropped(steps int) {
	l.mu.Lock()
	l.dropped += steps
	l.mu.Unlock()
}

// Stop halts the loop and waits for the goroutine to exit.
func (l *Loop) Stop() {
	if l == nil {
		return
	}
	l.mu.Lock()
	stop, done := l.stop, l.done
	l.stop, l.done = nil, nil
	l.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// StepDuration exposes the configured timestep.
func (l *Loop) StepDuration() time.Duration {
	if l == nil {
		return 0
	}
	return l.step
}

// Panics returns how many steps panicked and were recovered.
func (l *Loop) Panics() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.panics
}

// DroppedSteps returns how many steps were skipped after stalls.
func (l *Loop) DroppedSteps() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}
