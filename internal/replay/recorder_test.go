package replay

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/logging"
	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

func newTestRecorder(t *testing.T, stride int) *Recorder {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		now = now.Add(50 * time.Millisecond)
		return now
	}
	recorder, err := NewRecorder(t.TempDir(), "arena", Header{TickHz: 60, Tuning: gameplay.DefaultTuning()},
		WithStride(stride), WithClock(clock), WithRecorderLogger(logging.NewTestLogger()))
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	return recorder
}

func TestRecorderRoundTripsThroughLoader(t *testing.T) {
	recorder := newTestRecorder(t, 2)

	//1.- Odd ticks fall off the stride; deaths are always kept.
	for tick := uint64(1); tick <= 6; tick++ {
		recorder.PublishSnapshot(state.Snapshot{
			Tick:    tick,
			Players: []state.PlayerView{{ID: "a", Position: vecmath.New(0, 5.5, 0), Yaw: 0.25, Health: 100 - int(tick)}},
			Craters: []state.Crater{{Position: vecmath.New(5, 0, 0), Depth: 0.4}},
		})
	}
	recorder.PublishDeath(state.DeathEvent{PlayerID: "b", KillerID: "a", Tick: 4})

	stats := recorder.Stats()
	if stats.Frames != 3 || stats.Events != 1 || stats.Bytes == 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	dir, err := recorder.Roll()
	if err != nil {
		t.Fatalf("Roll: %v", err)
	}
	if dir == recorder.Stats().Directory {
		t.Fatalf("expected a new bundle after roll")
	}
	if recorder.Stats().Frames != 0 || recorder.Stats().Rolls != 1 {
		t.Fatalf("expected counters to reset after roll, got %+v", recorder.Stats())
	}

	loader, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loader.Header.Stride != 2 || loader.Header.TickHz != 60 {
		t.Fatalf("unexpected header %+v", loader.Header)
	}
	if len(loader.Frames) != 3 || loader.Frames[1].Snapshot.Players[0].Health != 96 {
		t.Fatalf("unexpected frames %+v", loader.Frames)
	}

	//2.- The death at tick 4 precedes the tick 4 frame.
	var order []string
	err = loader.Replay(func(entry TimelineEntry) error {
		if entry.Event != nil {
			death, ok := entry.Event.Death()
			if !ok || death.PlayerID != "b" || death.KillerID != "a" {
				t.Fatalf("unexpected death entry %+v", entry.Event)
			}
			order = append(order, "death")
			return nil
		}
		order = append(order, "frame")
		return nil
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := []string{"frame", "death", "frame", "frame"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v", order)
		}
	}
}

func TestRecorderIgnoresPublishesAfterClose(t *testing.T) {
	recorder := newTestRecorder(t, 1)
	recorder.PublishSnapshot(state.Snapshot{Tick: 1})
	if err := recorder.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	recorder.PublishSnapshot(state.Snapshot{Tick: 2})
	recorder.PublishDeath(state.DeathEvent{PlayerID: "x", Tick: 2})
	if stats := recorder.Stats(); stats.Frames != 1 || stats.Failures != 0 {
		t.Fatalf("unexpected stats after close %+v", stats)
	}
	if _, err := recorder.Roll(); err == nil {
		t.Fatalf("expected roll on a closed recorder to fail")
	}
	if _, err := os.Stat(filepath.Join(recorder.Stats().Directory, headerName)); err != nil {
		t.Fatalf("expected header on close: %v", err)
	}
}

func TestLoadWithoutHeader(t *testing.T) {
	writer, _, err := NewWriter(t.TempDir(), "raw", nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	loader, err := Load(writer.Directory())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loader.Header.SchemaVersion != 0 || len(loader.Frames) != 0 || len(loader.Events) != 0 {
		t.Fatalf("expected an empty bundle, got %+v", loader)
	}
}
