package networking

import "sync"

// SnapshotMetrics tracks payload size and drop counters per subscriber.
type SnapshotMetrics struct {
	mu      sync.RWMutex
	bytes   map[string]int64
	drops   map[string]int64
	sent    int64
	dropped int64
}

// NewSnapshotMetrics constructs an empty metrics tracker.
func NewSnapshotMetrics() *SnapshotMetrics {
	return &SnapshotMetrics{
		bytes: make(map[string]int64),
		drops: make(map[string]int64),
	}
}

// Observe records one delivery attempt to a subscriber.
func (m *SnapshotMetrics) Observe(subscriberID string, payloadBytes int, delivered bool) {
	if m == nil {
		return
	}
	size := int64(payloadBytes)
	if size < 0 {
		size = 0
	}
	m.mu.Lock()
	if delivered {
		m.sent++
		if subscriberID != "" {
			m.bytes[subscriberID] = size
		}
	} else {
		m.dropped++
		if subscriberID != "" {
			m.drops[subscriberID]++
		}
	}
	m.mu.Unlock()
}

// Forget removes the gauges of a disconnected subscriber.
func (m *SnapshotMetrics) Forget(subscriberID string) {
	if m == nil || subscriberID == "" {
		return
	}
	m.mu.Lock()
	delete(m.bytes, subscriberID)
	delete(m.drops, subscriberID)
	m.mu.Unlock()
}

// BytesPerSubscriber returns the latest delivered payload size per subscriber.
func (m *SnapshotMetrics) BytesPerSubscriber() map[string]int64 {
	return m.copyMap(func(m *SnapshotMetrics) map[string]int64 { return m.bytes })
}

// DropsPerSubscriber returns the frames each subscriber failed to accept.
func (m *SnapshotMetrics) DropsPerSubscriber() map[string]int64 {
	return m.copyMap(func(m *SnapshotMetrics) map[string]int64 { return m.drops })
}

// Totals returns the cumulative delivered and dropped frame counts.
func (m *SnapshotMetrics) Totals() (sent, dropped int64) {
	if m == nil {
		return 0, 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sent, m.dropped
}

func (m *SnapshotMetrics) copyMap(pick func(*SnapshotMetrics) map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	source := pick(m)
	if len(source) == 0 {
		return nil
	}
	out := make(map[string]int64, len(source))
	for id, value := range source {
		out[id] = value
	}
	return out
}
