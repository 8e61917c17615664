package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var matchIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	flushInterval = 200 * time.Millisecond

	manifestName = "manifest.json"
	headerName   = "header.json"
	eventsName   = "events.jsonl.sz"
	framesName   = "frames.bin.zst"

	// frameHeaderSize is tick (8) + captured unix nanos (8) + payload length (4).
	frameHeaderSize = 20
)

// ErrWriterClosed is returned once Close has run.
var ErrWriterClosed = errors.New("replay writer closed")

type frameBlob struct {
	Tick       uint64
	CapturedAt time.Time
	Payload    []byte
}

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version         int    `json:"version"`
	MatchID         string `json:"match_id"`
	CreatedAt       string `json:"created_at"`
	FlushIntervalMs int    `json:"flush_interval_ms"`
	EventsPath      string `json:"events_path"`
	FramesPath      string `json:"frames_path"`
	HeaderPath      string `json:"header_path"`
}

// Writer streams one match bundle to disk: binary snapshot frames through zstd
// and JSON event lines through snappy.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	pending     []frameBlob
	lastFlush   time.Time
	header      Header
	closed      bool
}

// NewWriter creates a fresh bundle directory under root and opens its streams.
func NewWriter(root, matchID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}
	cleaned := matchIDCleaner.ReplaceAllString(matchID, "")
	if cleaned == "" {
		cleaned = "match"
	}
	created := clock().UTC()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, Manifest{}, err
	}
	path, err := createBundleDir(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, eventsName))
	if err != nil {
		return nil, Manifest{}, err
	}
	frameFile, err := os.Create(filepath.Join(path, framesName))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}
	eventStream := snappy.NewBufferedWriter(eventFile)

	manifest := Manifest{
		Version:         1,
		MatchID:         cleaned,
		CreatedAt:       created.Format(time.RFC3339Nano),
		FlushIntervalMs: int(flushInterval / time.Millisecond),
		EventsPath:      eventsName,
		FramesPath:      framesName,
		HeaderPath:      headerName,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(path, manifestName), data, 0o644)
	}
	if err != nil {
		frameStream.Close()
		frameFile.Close()
		eventStream.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: eventStream,
		frameFile:   frameFile,
		frameStream: frameStream,
		header:      Header{SchemaVersion: HeaderSchemaVersion, MatchID: cleaned, FilePointer: manifestName},
	}, manifest, nil
}

// createBundleDir makes base under root, suffixing a counter when a bundle
// with the same second-resolution name already exists.
func createBundleDir(root, base string) (string, error) {
	name := base
	for attempt := 2; ; attempt++ {
		path := filepath.Join(root, name)
		err := os.Mkdir(path, 0o755)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) || attempt > 1000 {
			return "", err
		}
		name = fmt.Sprintf("%s-%d", base, attempt)
	}
}

// Directory exposes the directory backing the bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeader configures the header written on Close. Frame and event counters
// are maintained by the writer itself.
func (w *Writer) SetHeader(header Header) {
	if w == nil {
		return
	}
	w.mu.Lock()
	header.SchemaVersion = HeaderSchemaVersion
	header.FilePointer = manifestName
	header.MatchID = w.header.MatchID
	header.FirstTick, header.LastTick = w.header.FirstTick, w.header.LastTick
	header.Frames, header.Events = w.header.Frames, w.header.Events
	w.header = header
	w.mu.Unlock()
}

// AppendEvent writes one JSON line. data must already be valid JSON.
func (w *Writer) AppendEvent(tick uint64, eventType string, data json.RawMessage) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	record := eventRecord{
		Tick:       tick,
		CapturedAt: captured.Format(time.RFC3339Nano),
		Type:       eventType,
		Data:       data,
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.header.Events++
	return w.eventStream.Flush()
}

// AppendFrame stages a binary snapshot; staged frames reach the zstd stream at
// most every flushInterval.
func (w *Writer) AppendFrame(tick uint64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	captured := w.now().UTC()
	clone := append([]byte(nil), payload...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}

	w.pending = append(w.pending, frameBlob{Tick: tick, CapturedAt: captured, Payload: clone})
	if w.header.Frames == 0 {
		w.header.FirstTick = tick
	}
	w.header.LastTick = tick
	w.header.Frames++
	if w.lastFlush.IsZero() {
		w.lastFlush = captured
		return nil
	}
	if captured.Sub(w.lastFlush) >= flushInterval {
		if err := w.flushLocked(); err != nil {
			return err
		}
		w.lastFlush = captured
	}
	return nil
}

// Flush forces staged frames through the encoder.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWriterClosed
	}
	if err := w.flushLocked(); err != nil {
		return err
	}
	if err := w.frameStream.Flush(); err != nil {
		return err
	}
	w.lastFlush = w.now().UTC()
	return nil
}

// Close writes the header, flushes every stream and releases the files. The
// first failure is returned after every step has been attempted.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if w.header.TickHz > 0 {
		keep(WriteHeader(filepath.Join(w.dir, headerName), w.header))
	}
	keep(w.flushLocked())
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.frameStream.Close())
	keep(w.frameFile.Close())
	return firstErr
}

// flushLocked writes length-prefixed frames; callers hold the mutex.
func (w *Writer) flushLocked() error {
	if len(w.pending) == 0 {
		return nil
	}
	var header [frameHeaderSize]byte
	for _, frame := range w.pending {
		binary.LittleEndian.PutUint64(header[0:8], frame.Tick)
		binary.LittleEndian.PutUint64(header[8:16], uint64(frame.CapturedAt.UnixNano()))
		binary.LittleEndian.PutUint32(header[16:20], uint32(len(frame.Payload)))
		if _, err := w.frameStream.Write(header[:]); err != nil {
			return err
		}
		if _, err := w.frameStream.Write(frame.Payload); err != nil {
			return err
		}
	}
	w.pending = w.pending[:0]
	return nil
}

type eventRecord struct {
	Tick       uint64          `json:"tick"`
	CapturedAt string          `json:"captured_at"`
	Type       string          `json:"type"`
	Data       json.RawMessage `json:"data,omitempty"`
}
