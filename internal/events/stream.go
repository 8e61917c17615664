package events

import (
	"errors"
	"sort"
	"sync"
	"time"

	"planetarena/server/internal/state"
)

// Kind enumerates the payloads carried by the stream.
type Kind string

const (
	KindDeath Kind = "death"
)

// Death is the payload of a KindDeath envelope.
type Death struct {
	PlayerID string `json:"playerId"`
	KillerID string `json:"killerId,omitempty"`
}

// Envelope carries one event together with its sequencing metadata.
type Envelope struct {
	Sequence   uint64    `json:"sequence"`
	Kind       Kind      `json:"kind"`
	Tick       uint64    `json:"tick"`
	OccurredAt time.Time `json:"occurredAt"`
	Death      *Death    `json:"death,omitempty"`
}

// Config controls the retention of the stream log.
type Config struct {
	Retain int
	// Clock overrides time.Now for tests.
	Clock func() time.Time
}

const (
	defaultRetention = 512
	defaultPageSize  = 100
)

// ErrFutureCursor is returned when a reader asks for events past the newest sequence.
var ErrFutureCursor = errors.New("cursor is ahead of the stream")

// Page is a slice of the log after a cursor.
type Page struct {
	Events []Envelope `json:"events"`
	// Latest is the newest sequence published so far.
	Latest uint64 `json:"latest"`
	// Missed counts events the reader can no longer receive because retention dropped them.
	Missed uint64 `json:"missed,omitempty"`
}

// Stream is the arena's kill feed: an ordered, bounded log of gameplay events
// plus the running scoreboard. Readers poll with the last sequence they saw.
type Stream struct {
	mu        sync.Mutex
	nextSeq   uint64
	retention int
	log       []Envelope
	lastTick  uint64
	scores    map[string]*Score
	now       func() time.Time
}

// NewStream constructs a stream using the provided configuration.
func NewStream(cfg Config) *Stream {
	retention := cfg.Retain
	if retention <= 0 {
		retention = defaultRetention
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Stream{retention: retention, scores: make(map[string]*Score), now: clock}
}

// PublishSnapshot tracks the tick so the scoreboard can report it.
func (s *Stream) PublishSnapshot(snapshot state.Snapshot) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.lastTick = snapshot.Tick
	s.mu.Unlock()
}

// PublishDeath appends a death and credits the killer.
func (s *Stream) PublishDeath(event state.DeathEvent) {
	if s == nil || event.PlayerID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(Envelope{
		Kind:  KindDeath,
		Tick:  event.Tick,
		Death: &Death{PlayerID: event.PlayerID, KillerID: event.KillerID},
	})
	s.scoreLocked(event.PlayerID).Deaths++
	//1.- Self-inflicted deaths are not kills.
	if event.KillerID != "" && event.KillerID != event.PlayerID {
		s.scoreLocked(event.KillerID).Kills++
	}
}

func (s *Stream) appendLocked(envelope Envelope) {
	s.nextSeq++
	envelope.Sequence = s.nextSeq
	envelope.OccurredAt = s.now().UTC()
	s.log = append(s.log, envelope)
	if overflow := len(s.log) - s.retention; overflow > 0 {
		s.log = append(s.log[:0:0], s.log[overflow:]...)
	}
}

// Since returns up to limit events with a sequence greater than after.
func (s *Stream) Since(after uint64, limit int) (Page, error) {
	if s == nil {
		return Page{}, errors.New("nil stream")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	page := Page{Latest: s.nextSeq}
	if after > s.nextSeq {
		return page, ErrFutureCursor
	}
	if len(s.log) == 0 {
		page.Events = []Envelope{}
		return page, nil
	}
	//1.- Report the gap when the cursor fell behind retention.
	oldest := s.log[0].Sequence
	if after+1 < oldest {
		page.Missed = oldest - after - 1
	}
	start := sort.Search(len(s.log), func(i int) bool { return s.log[i].Sequence > after })
	end := start + limit
	if end > len(s.log) {
		end = len(s.log)
	}
	page.Events = make([]Envelope, 0, end-start)
	for _, envelope := range s.log[start:end] {
		if envelope.Death != nil {
			death := *envelope.Death
			envelope.Death = &death
		}
		page.Events = append(page.Events, envelope)
	}
	return page, nil
}
