package replaycatalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/replay"
)

func TestListCollectsClosedBundles(t *testing.T) {
	dir := t.TempDir()
	header := replay.Header{
		SchemaVersion: replay.HeaderSchemaVersion,
		MatchID:       "arena",
		TickHz:        60,
		Stride:        6,
		Tuning:        gameplay.DefaultTuning(),
		FirstTick:     60,
		LastTick:      180,
		FilePointer:   "manifest.json",
	}
	if err := replay.WriteHeader(filepath.Join(dir, "arena-b", "header.json"), header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if err := replay.WriteHeader(filepath.Join(dir, "arena-a", "header.json"), header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	//1.- A bundle still being written has only a manifest.
	if err := os.MkdirAll(filepath.Join(dir, "arena-c"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "arena-c", "manifest.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := List(dir)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two closed bundles, got %d", len(entries))
	}
	if filepath.Base(entries[0].Directory) != "arena-a" {
		t.Fatalf("expected sorted entries, got %s first", entries[0].Directory)
	}
	if entries[0].Duration != 2*time.Second {
		t.Fatalf("expected 2s of simulated time, got %s", entries[0].Duration)
	}
	if payload, err := MarshalEntries(entries); err != nil || len(payload) == 0 {
		t.Fatalf("MarshalEntries: %v", err)
	}
}

func TestListRejectsFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := List(path); err == nil {
		t.Fatalf("expected a file root to be rejected")
	}
	if _, err := List(" "); err == nil {
		t.Fatalf("expected an empty root to be rejected")
	}
}
