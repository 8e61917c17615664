package replay

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"planetarena/server/internal/logging"
	"planetarena/server/internal/networking"
	"planetarena/server/internal/state"
)

// EventPlayerDied is the event type recorded for each death.
const EventPlayerDied = "playerDied"

// deathData is the JSON body of a playerDied event.
type deathData struct {
	PlayerID string `json:"playerId"`
	KillerID string `json:"killerId,omitempty"`
}

// Stats summarises recorder health for monitoring endpoints.
type Stats struct {
	Directory    string    `json:"directory"`
	Frames       int64     `json:"frames"`
	Events       int64     `json:"events"`
	Bytes        int64     `json:"bytes"`
	Failures     int64     `json:"failures"`
	Rolls        int64     `json:"rolls"`
	LastRollDir  string    `json:"lastRollDir,omitempty"`
	LastRollTime time.Time `json:"lastRollTime,omitempty"`
}

// RecorderOption customises a Recorder.
type RecorderOption func(*Recorder)

// WithStride records only ticks divisible by stride. Deaths are always recorded.
func WithStride(stride int) RecorderOption {
	return func(r *Recorder) {
		if stride > 0 {
			r.stride = uint64(stride)
		}
	}
}

// WithClock overrides the wall clock used for capture timestamps.
func WithClock(clock func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithRecorderLogger sets the recorder logger.
func WithRecorderLogger(logger *logging.Logger) RecorderOption {
	return func(r *Recorder) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Recorder is a world sink that persists snapshots and deaths into replay
// bundles. Write failures are counted and logged; they never reach the tick.
type Recorder struct {
	mu      sync.Mutex
	root    string
	matchID string
	now     func() time.Time
	logger  *logging.Logger
	stride  uint64
	header  Header
	writer  *Writer
	stats   Stats
}

// NewRecorder opens the first bundle under root. header supplies the tick
// rate and tuning copied into every bundle header.
func NewRecorder(root, matchID string, header Header, opts ...RecorderOption) (*Recorder, error) {
	r := &Recorder{
		root:    root,
		matchID: matchID,
		now:     time.Now,
		logger:  logging.L(),
		stride:  1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	header.Stride = int(r.stride)
	r.header = header
	if err := r.openLocked(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Recorder) openLocked() error {
	writer, _, err := NewWriter(r.root, r.matchID, r.now)
	if err != nil {
		return fmt.Errorf("open replay bundle: %w", err)
	}
	writer.SetHeader(r.header)
	r.writer = writer
	r.stats.Directory = writer.Directory()
	return nil
}

// PublishSnapshot records the snapshot when its tick falls on the stride.
func (r *Recorder) PublishSnapshot(snapshot state.Snapshot) {
	if r == nil || snapshot.Tick%r.stride != 0 {
		return
	}
	payload := networking.MarshalSnapshot(snapshot)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}
	if err := r.writer.AppendFrame(snapshot.Tick, payload); err != nil {
		r.failLocked("replay frame write failed", err, snapshot.Tick)
		return
	}
	r.stats.Frames++
	r.stats.Bytes += int64(len(payload))
}

// PublishDeath records a playerDied event.
func (r *Recorder) PublishDeath(event state.DeathEvent) {
	if r == nil {
		return
	}
	data, err := json.Marshal(deathData{PlayerID: event.PlayerID, KillerID: event.KillerID})
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return
	}
	if err := r.writer.AppendEvent(event.Tick, EventPlayerDied, data); err != nil {
		r.failLocked("replay event write failed", err, event.Tick)
		return
	}
	r.stats.Events++
}

func (r *Recorder) failLocked(msg string, err error, tick uint64) {
	r.stats.Failures++
	// Logged once per bundle.
	if r.stats.Failures == 1 {
		r.logger.Error(msg, logging.Error(err), logging.Uint64("tick", tick), logging.String("directory", r.stats.Directory))
	}
}

// Roll closes the current bundle and starts a new one. It returns the
// directory of the closed bundle.
func (r *Recorder) Roll() (string, error) {
	if r == nil {
		return "", fmt.Errorf("recorder not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return "", ErrWriterClosed
	}
	closed := r.writer.Directory()
	err := r.writer.Close()
	r.writer = nil
	if openErr := r.openLocked(); openErr != nil {
		r.logger.Error("replay bundle reopen failed", logging.Error(openErr))
		if err == nil {
			err = openErr
		}
	}
	r.stats.Rolls++
	r.stats.LastRollDir = closed
	r.stats.LastRollTime = r.now().UTC()
	r.stats.Frames, r.stats.Events, r.stats.Bytes, r.stats.Failures = 0, 0, 0, 0
	r.logger.Info("replay bundle rolled", logging.String("directory", closed))
	return closed, err
}

// Close finalises the current bundle. Later publishes are ignored.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.writer == nil {
		return nil
	}
	err := r.writer.Close()
	r.writer = nil
	return err
}

// Stats returns the counters of the bundle being written.
func (r *Recorder) Stats() Stats {
	if r == nil {
		return Stats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
