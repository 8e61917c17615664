package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"planetarena/server/tools/replay_player"
)

func main() {
	path := flag.String("path", "", "Path to a replay directory or manifest.json")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	report, err := replayplayer.Play(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
