package replayplayer

import (
	"fmt"
	"os"
	"path/filepath"

	"planetarena/server/internal/client"
	"planetarena/server/internal/replay"
)

// FrameSummary is one recorded tick as a spectator would have seen it.
type FrameSummary struct {
	Tick          uint64   `json:"tick"`
	Players       int      `json:"players"`
	Projectiles   int      `json:"projectiles"`
	Craters       int      `json:"craters"`
	CraterChanged bool     `json:"crater_changed,omitempty"`
	Deaths        []string `json:"deaths,omitempty"`
}

// Report describes a whole bundle.
type Report struct {
	Manifest      replay.Manifest `json:"manifest"`
	Header        replay.Header   `json:"header"`
	Frames        []FrameSummary  `json:"frames"`
	Kills         map[string]int  `json:"kills"`
	Deaths        int             `json:"deaths"`
	CraterChanges uint64          `json:"crater_changes"`
}

// Play loads the bundle at path (a directory or its manifest.json) and runs it
// through a render cache. Smoothing is disabled so every frame shows the
// recorded positions.
func Play(path string) (Report, error) {
	if path == "" {
		return Report{}, fmt.Errorf("path is required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Report{}, err
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}
	loader, err := replay.Load(path)
	if err != nil {
		return Report{}, err
	}
	if loader.Manifest.Version != 1 {
		return Report{}, fmt.Errorf("unsupported manifest version %d", loader.Manifest.Version)
	}

	report := Report{Manifest: loader.Manifest, Header: loader.Header, Kills: make(map[string]int)}
	cache := client.NewRenderCache(1)
	var (
		pending     []string
		lastVersion uint64
	)
	err = loader.Replay(func(entry replay.TimelineEntry) error {
		if entry.Event != nil {
			//1.- Deaths attach to the next frame, the one that no longer lists the player.
			if death, ok := entry.Event.Death(); ok {
				pending = append(pending, death.PlayerID)
				report.Deaths++
				if death.KillerID != "" {
					report.Kills[death.KillerID]++
				}
			}
			return nil
		}
		cache.ApplySnapshot(entry.Frame.Snapshot, "")
		view := cache.View("")
		summary := FrameSummary{
			Tick:        view.Tick,
			Players:     len(view.Players),
			Projectiles: len(view.Projectiles),
			Craters:     len(view.Craters),
			Deaths:      pending,
		}
		//2.- The first frame always builds terrain; only later rebuilds count.
		if len(report.Frames) > 0 && view.CraterVersion != lastVersion {
			summary.CraterChanged = true
			report.CraterChanges++
		}
		lastVersion = view.CraterVersion
		pending = nil
		report.Frames = append(report.Frames, summary)
		return nil
	})
	if err != nil {
		return Report{}, err
	}
	return report, nil
}
