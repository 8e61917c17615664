package simulation

import (
	"sync"
	"time"
)

// TickMetricsSnapshot summarises observed tick processing durations.
type TickMetricsSnapshot struct {
	Samples  int           `json:"samples"`
	Average  time.Duration `json:"average_ns"`
	Max      time.Duration `json:"max_ns"`
	Last     time.Duration `json:"last_ns"`
	Overruns int           `json:"overruns"`
}

// AverageFPS derives the frames-per-second the tick work alone could sustain.
func (s TickMetricsSnapshot) AverageFPS() float64 {
	if s.Average <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.Average)
}

// TickMonitor accumulates timing statistics for the simulation loop. A tick that
// takes longer than the budget counts as an overrun.
type TickMonitor struct {
	mu       sync.Mutex
	budget   time.Duration
	samples  int
	total    time.Duration
	max      time.Duration
	last     time.Duration
	overruns int
}

// NewTickMonitor constructs an empty monitor with the per-tick time budget.
func NewTickMonitor(budget time.Duration) *TickMonitor {
	return &TickMonitor{budget: budget}
}

// Observe records the duration of a completed simulation tick.
func (m *TickMonitor) Observe(duration time.Duration) {
	if m == nil || duration <= 0 {
		return
	}
	m.mu.Lock()
	m.samples++
	m.total += duration
	if duration > m.max {
		m.max = duration
	}
	m.last = duration
	if m.budget > 0 && duration > m.budget {
		m.overruns++
	}
	m.mu.Unlock()
}

// Snapshot returns a copy of the aggregated tick statistics.
func (m *TickMonitor) Snapshot() TickMetricsSnapshot {
	if m == nil {
		return TickMetricsSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	average := time.Duration(0)
	if m.samples > 0 {
		average = m.total / time.Duration(m.samples)
	}
	return TickMetricsSnapshot{Samples: m.samples, Average: average, Max: m.max, Last: m.last, Overruns: m.overruns}
}

// Reset clears the accumulated statistics.
func (m *TickMonitor) Reset() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.samples, m.total, m.max, m.last, m.overruns = 0, 0, 0, 0, 0
	m.mu.Unlock()
}
