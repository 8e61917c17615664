package grpc

import (
	"context"
	"sync"

	"planetarena/server/internal/state"
)

// Feed fans snapshots out to spectator streams. It implements the world's sink
// interface; every subscriber sees only the newest snapshot it has not read yet.
type Feed struct {
	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]chan state.Snapshot
	closed      bool
}

// NewFeed constructs an empty feed.
func NewFeed() *Feed {
	return &Feed{subscribers: make(map[uint64]chan state.Snapshot)}
}

// PublishSnapshot replaces each subscriber's pending snapshot.
func (f *Feed) PublishSnapshot(snapshot state.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}

// PublishDeath is a no-op; spectators infer deaths from snapshots.
func (f *Feed) PublishDeath(state.DeathEvent) {}

// Subscribe registers a spectator. The channel closes when ctx ends or cancel runs.
func (f *Feed) Subscribe(ctx context.Context) (<-chan state.Snapshot, func()) {
	ch := make(chan state.Snapshot, 1)
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	f.nextID++
	id := f.nextID
	f.subscribers[id] = ch
	f.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			f.mu.Lock()
			if _, ok := f.subscribers[id]; ok {
				delete(f.subscribers, id)
				close(ch)
			}
			f.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel
}

// Count returns the number of attached spectators.
func (f *Feed) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Close ends every stream and rejects later subscriptions.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subscribers {
		delete(f.subscribers, id)
		close(ch)
	}
}
