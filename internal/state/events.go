package state

// DeathEvent records a player removed because its health reached zero.
type DeathEvent struct {
	PlayerID string
	KillerID string
	Tick     uint64
}

// EventStore buffers death events until the tick publishes them.
type EventStore struct {
	deaths []DeathEvent
}

// Add enqueues a death event.
func (s *EventStore) Add(event DeathEvent) {
	s.deaths = append(s.deaths, event)
}

// Drain returns and clears the buffered events.
func (s *EventStore) Drain() []DeathEvent {
	if len(s.deaths) == 0 {
		return nil
	}
	drained := s.deaths
	s.deaths = nil
	return drained
}
