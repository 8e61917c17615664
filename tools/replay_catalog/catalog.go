package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"planetarena/server/internal/replay"
)

// Entry is one closed replay bundle.
type Entry struct {
	Directory  string        `json:"directory"`
	HeaderPath string        `json:"header_path"`
	Header     replay.Header `json:"header"`
	// Duration is the simulated span between the first and last recorded tick.
	Duration time.Duration `json:"duration_ns"`
}

// List walks root and returns every bundle that has a header, oldest match
// first. Bundles still being written have no header and are skipped.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "header.json" {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		entry := Entry{Directory: filepath.Dir(path), HeaderPath: path, Header: header}
		if header.LastTick > header.FirstTick {
			entry.Duration = time.Duration(header.LastTick-header.FirstTick) * time.Second / time.Duration(header.TickHz)
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Directory < entries[j].Directory })
	return entries, nil
}

// MarshalEntries produces indented JSON for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
