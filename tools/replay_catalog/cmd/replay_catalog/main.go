package main

import (
	"flag"
	"fmt"
	"os"

	"planetarena/server/tools/replay_catalog"
)

func main() {
	root := flag.String("dir", ".", "directory containing replay bundles")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := replaycatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := replaycatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		h := entry.Header
		fmt.Printf("%s (schema %d)\n", entry.Directory, h.SchemaVersion)
		fmt.Printf("  ticks %d-%d at %d Hz, stride %d, %s\n", h.FirstTick, h.LastTick, h.TickHz, h.Stride, entry.Duration)
		fmt.Printf("  frames %d, events %d\n", h.Frames, h.Events)
		fmt.Printf("  planet radius %.2f, max craters %d, max projectiles %d\n", h.Tuning.PlanetRadius, h.Tuning.MaxCraters, h.Tuning.MaxProjectiles)
	}
}
