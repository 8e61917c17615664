package networking

import (
	"errors"
	"sync"

	"planetarena/server/internal/logging"
	"planetarena/server/internal/state"
)

// ErrUnknownSubscriber is returned when unicasting to an id that is not registered.
var ErrUnknownSubscriber = errors.New("unknown subscriber")

// Frame is one encoded outbound message.
type Frame struct {
	Binary  bool
	Payload []byte
}

// Subscriber is an outbound session. Enqueue must never block; it returns false
// when the frame was dropped.
type Subscriber interface {
	ID() string
	Encoding() Encoding
	Enqueue(frame Frame) bool
}

// Broadcaster fans every tick's messages out to all subscribers. Each message is
// encoded once per encoding in use.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	metrics     *SnapshotMetrics
	bandwidth   *BandwidthRegulator
	logger      *logging.Logger
}

// BroadcasterOption customises a Broadcaster.
type BroadcasterOption func(*Broadcaster)

// WithBandwidthRegulator caps per-subscriber snapshot throughput. Deaths and
// unicast messages are never throttled.
func WithBandwidthRegulator(regulator *BandwidthRegulator) BroadcasterOption {
	return func(b *Broadcaster) { b.bandwidth = regulator }
}

// WithSnapshotMetrics shares a metrics tracker with the broadcaster.
func WithSnapshotMetrics(metrics *SnapshotMetrics) BroadcasterOption {
	return func(b *Broadcaster) {
		if metrics != nil {
			b.metrics = metrics
		}
	}
}

// NewBroadcaster constructs an empty fan-out.
func NewBroadcaster(logger *logging.Logger, opts ...BroadcasterOption) *Broadcaster {
	if logger == nil {
		logger = logging.L()
	}
	b := &Broadcaster{subscribers: make(map[string]Subscriber), metrics: NewSnapshotMetrics(), logger: logger}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Add registers a subscriber, replacing any previous one with the same id.
func (b *Broadcaster) Add(subscriber Subscriber) {
	if subscriber == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[subscriber.ID()] = subscriber
	b.mu.Unlock()
}

// Remove unregisters a subscriber.
func (b *Broadcaster) Remove(id string) {
	b.mu.Lock()
	delete(b.subscribers, id)
	b.mu.Unlock()
	b.metrics.Forget(id)
	b.bandwidth.Forget(id)
}

// Count returns the number of registered subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Metrics exposes the delivery counters.
func (b *Broadcaster) Metrics() *SnapshotMetrics { return b.metrics }

// Bandwidth exposes the throttle usage, nil when throttling is disabled.
func (b *Broadcaster) Bandwidth() map[string]BandwidthUsage { return b.bandwidth.Usage() }

// PublishSnapshot sends the full world to every subscriber.
func (b *Broadcaster) PublishSnapshot(snapshot state.Snapshot) {
	b.fanOut(EventGameState, GameStateFromSnapshot(snapshot), true)
}

// PublishDeath notifies every subscriber that a player died. Delivery is best effort.
func (b *Broadcaster) PublishDeath(event state.DeathEvent) {
	b.fanOut(EventPlayerDied, event.PlayerID, false)
}

// Send encodes and delivers one message to a single subscriber.
func (b *Broadcaster) Send(id, event string, payload any) error {
	b.mu.RLock()
	subscriber, ok := b.subscribers[id]
	b.mu.RUnlock()
	if !ok {
		return ErrUnknownSubscriber
	}
	encoding := subscriber.Encoding()
	data, err := Encode(encoding, event, payload)
	if err != nil {
		return err
	}
	delivered := subscriber.Enqueue(Frame{Binary: encoding.Binary(), Payload: data})
	b.metrics.Observe(id, len(data), delivered)
	return nil
}

func (b *Broadcaster) fanOut(event string, payload any, throttled bool) {
	b.mu.RLock()
	subscribers := make([]Subscriber, 0, len(b.subscribers))
	for _, subscriber := range b.subscribers {
		subscribers = append(subscribers, subscriber)
	}
	b.mu.RUnlock()

	//1.- Encode lazily, once per encoding actually in use.
	var frames [2]*Frame
	for _, subscriber := range subscribers {
		encoding := subscriber.Encoding()
		if int(encoding) >= len(frames) {
			continue
		}
		if frames[encoding] == nil {
			data, err := Encode(encoding, event, payload)
			if err != nil {
				b.logger.Error("encode broadcast failed", logging.String("event", event), logging.String("encoding", encoding.String()), logging.Error(err))
				return
			}
			frames[encoding] = &Frame{Binary: encoding.Binary(), Payload: data}
		}
		//2.- Slow subscribers lose this frame; the next full snapshot heals them.
		frame := *frames[encoding]
		if throttled && !b.bandwidth.Allow(subscriber.ID(), len(frame.Payload)) {
			b.metrics.Observe(subscriber.ID(), len(frame.Payload), false)
			continue
		}
		delivered := subscriber.Enqueue(frame)
		b.metrics.Observe(subscriber.ID(), len(frame.Payload), delivered)
	}
}
