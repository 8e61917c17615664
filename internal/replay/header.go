package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"planetarena/server/internal/gameplay"
)

// HeaderSchemaVersion tracks the schema version for replay header documents.
const HeaderSchemaVersion = 1

// Header records the match parameters needed to interpret a bundle. It is
// written when the bundle closes.
type Header struct {
	SchemaVersion int             `json:"schema_version"`
	MatchID       string          `json:"match_id"`
	TickHz        int             `json:"tick_hz"`
	Stride        int             `json:"stride"`
	Tuning        gameplay.Tuning `json:"tuning"`
	FirstTick     uint64          `json:"first_tick"`
	LastTick      uint64          `json:"last_tick"`
	Frames        int64           `json:"frames"`
	Events        int64           `json:"events"`
	FilePointer   string          `json:"file_pointer"`
}

// Validate ensures the header contains enough information for loaders.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if h.TickHz <= 0 {
		return fmt.Errorf("tick_hz must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists the supplied header to path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a replay header.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, err
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
