package input

import "sync"

// Slots holds the latest command per session. Writers overwrite, the tick reads.
// There is no history: a command that is overwritten before a tick observes it is
// superseded, never queued.
type Slots struct {
	mu     sync.Mutex
	latest map[string]Command
}

// NewSlots constructs an empty slot table.
func NewSlots() *Slots {
	return &Slots{latest: make(map[string]Command)}
}

// Store overwrites the session's slot.
func (s *Slots) Store(sessionID string, cmd Command) {
	if s == nil || sessionID == "" {
		return
	}
	s.mu.Lock()
	s.latest[sessionID] = cmd
	s.mu.Unlock()
}

// Latest returns the command currently held for the session.
func (s *Slots) Latest(sessionID string) (Command, bool) {
	if s == nil {
		return Command{}, false
	}
	s.mu.Lock()
	cmd, ok := s.latest[sessionID]
	s.mu.Unlock()
	return cmd, ok
}

// Read copies every slot in one critical section so a tick sees a consistent view.
func (s *Slots) Read() map[string]Command {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	view := make(map[string]Command, len(s.latest))
	for id, cmd := range s.latest {
		view[id] = cmd
	}
	return view
}

// Forget drops the session's slot.
func (s *Slots) Forget(sessionID string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	delete(s.latest, sessionID)
	s.mu.Unlock()
}

// Len reports the number of occupied slots.
func (s *Slots) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.latest)
}
