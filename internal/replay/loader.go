package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"

	"planetarena/server/internal/networking"
	"planetarena/server/internal/state"
)

// Frame is one recorded snapshot.
type Frame struct {
	CapturedAt time.Time
	Snapshot   state.Snapshot
}

// Event is one recorded event line.
type Event struct {
	Tick       uint64
	CapturedAt time.Time
	Type       string
	Data       json.RawMessage
}

// Death decodes a playerDied event.
func (e Event) Death() (state.DeathEvent, bool) {
	if e.Type != EventPlayerDied {
		return state.DeathEvent{}, false
	}
	var data deathData
	if err := json.Unmarshal(e.Data, &data); err != nil || data.PlayerID == "" {
		return state.DeathEvent{}, false
	}
	return state.DeathEvent{PlayerID: data.PlayerID, KillerID: data.KillerID, Tick: e.Tick}, true
}

// TimelineEntry is either a frame or an event, ordered by tick.
type TimelineEntry struct {
	Tick  uint64
	Frame *Frame
	Event *Event
}

// Loader holds a fully decoded bundle.
type Loader struct {
	Manifest Manifest
	// Header is zero when the bundle was not closed cleanly.
	Header Header
	Frames []Frame
	Events []Event
}

// Load reads the bundle in dir. A truncated frame stream, which happens when
// the process died mid-write, keeps every complete frame before the cut.
func Load(dir string) (*Loader, error) {
	if dir == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	loader := &Loader{Manifest: manifest}
	if manifest.HeaderPath != "" {
		header, err := ReadHeader(filepath.Join(dir, manifest.HeaderPath))
		switch {
		case err == nil:
			loader.Header = header
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("read header: %w", err)
		}
	}

	if loader.Frames, err = readFrames(filepath.Join(dir, manifest.FramesPath)); err != nil {
		return nil, err
	}
	if loader.Events, err = readEvents(filepath.Join(dir, manifest.EventsPath)); err != nil {
		return nil, err
	}
	return loader, nil
}

func readFrames(path string) ([]Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var (
		frames []Frame
		header [frameHeaderSize]byte
	)
	for {
		if _, err := io.ReadFull(decoder, header[:]); err != nil {
			if isTruncation(err) {
				return frames, nil
			}
			return nil, fmt.Errorf("read frame header: %w", err)
		}
		tick := binary.LittleEndian.Uint64(header[0:8])
		captured := time.Unix(0, int64(binary.LittleEndian.Uint64(header[8:16]))).UTC()
		payload := make([]byte, binary.LittleEndian.Uint32(header[16:20]))
		if _, err := io.ReadFull(decoder, payload); err != nil {
			if isTruncation(err) {
				return frames, nil
			}
			return nil, fmt.Errorf("read frame %d: %w", tick, err)
		}
		snapshot, err := networking.UnmarshalSnapshot(payload)
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", tick, err)
		}
		frames = append(frames, Frame{CapturedAt: captured, Snapshot: snapshot})
	}
}

func isTruncation(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func readEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record eventRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse event line: %w", err)
		}
		captured, err := time.Parse(time.RFC3339Nano, record.CapturedAt)
		if err != nil {
			return nil, fmt.Errorf("parse event captured_at: %w", err)
		}
		events = append(events, Event{
			Tick:       record.Tick,
			CapturedAt: captured,
			Type:       record.Type,
			Data:       append(json.RawMessage(nil), record.Data...),
		})
	}
	if err := scanner.Err(); err != nil && !isTruncation(err) {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// Timeline merges frames and events by tick. Events of a tick come before its
// frame, matching the order the world publishes them.
func (l *Loader) Timeline() []TimelineEntry {
	if l == nil {
		return nil
	}
	entries := make([]TimelineEntry, 0, len(l.Frames)+len(l.Events))
	for i := range l.Events {
		entries = append(entries, TimelineEntry{Tick: l.Events[i].Tick, Event: &l.Events[i]})
	}
	for i := range l.Frames {
		entries = append(entries, TimelineEntry{Tick: l.Frames[i].Snapshot.Tick, Frame: &l.Frames[i]})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Tick != entries[j].Tick {
			return entries[i].Tick < entries[j].Tick
		}
		return entries[i].Event != nil && entries[j].Event == nil
	})
	return entries
}

// Replay calls apply for every timeline entry in order, stopping at the first error.
func (l *Loader) Replay(apply func(TimelineEntry) error) error {
	if l == nil {
		return fmt.Errorf("loader not initialised")
	}
	if apply == nil {
		return fmt.Errorf("replay callback must be provided")
	}
	for _, entry := range l.Timeline() {
		if err := apply(entry); err != nil {
			return err
		}
	}
	return nil
}
