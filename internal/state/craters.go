package state

import "planetarena/server/internal/vecmath"

// Crater is a permanent terrain deformation record.
type Crater struct {
	Position vecmath.Vector3 `json:"position"`
	Depth    float64         `json:"depth"`
}

// CraterHistory is a fixed-capacity FIFO of craters. Appending beyond capacity
// overwrites the oldest entry.
type CraterHistory struct {
	buffer   []Crater
	capacity int
	head     int // next write position
	size     int
	total    uint64
}

// NewCraterHistory creates a history holding at most capacity craters.
func NewCraterHistory(capacity int) *CraterHistory {
	if capacity <= 0 {
		capacity = 1
	}
	return &CraterHistory{buffer: make([]Crater, capacity), capacity: capacity}
}

// Append records a crater and reports whether the oldest one was evicted.
func (h *CraterHistory) Append(c Crater) bool {
	evicted := h.size == h.capacity
	h.buffer[h.head] = c
	h.head = (h.head + 1) % h.capacity
	if !evicted {
		h.size++
	}
	h.total++
	return evicted
}

// Len returns the number of stored craters.
func (h *CraterHistory) Len() int { return h.size }

// Capacity returns the maximum number of stored craters.
func (h *CraterHistory) Capacity() int { return h.capacity }

// Total returns how many craters were ever appended.
func (h *CraterHistory) Total() uint64 { return h.total }

// Items copies the history oldest first.
func (h *CraterHistory) Items() []Crater {
	items := make([]Crater, 0, h.size)
	start := (h.head - h.size + h.capacity) % h.capacity
	for i := 0; i < h.size; i++ {
		items = append(items, h.buffer[(start+i)%h.capacity])
	}
	return items
}

// Latest returns the most recently appended crater.
func (h *CraterHistory) Latest() (Crater, bool) {
	if h.size == 0 {
		return Crater{}, false
	}
	return h.buffer[(h.head-1+h.capacity)%h.capacity], true
}
