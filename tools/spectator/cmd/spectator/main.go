package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	grpcstream "planetarena/server/internal/grpc"
)

type frameLine struct {
	Tick        uint64 `json:"tick"`
	Players     int    `json:"players"`
	Projectiles int    `json:"projectiles"`
	Craters     int    `json:"craters"`
}

func main() {
	addr := flag.String("addr", "localhost:50051", "Spectator gRPC address")
	secret := flag.String("secret", os.Getenv("ARENA_GRPC_SHARED_SECRET"), "Shared secret expected by the server")
	rate := flag.Uint("rate", 10, "Frames per second to request")
	compression := flag.String("compression", "snappy", "Frame compression: gzip, snappy or none")
	limit := flag.Int("frames", 0, "Exit after this many frames; zero streams until interrupted")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := grpclib.NewClient(*addr, grpclib.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial:", err)
		os.Exit(1)
	}
	defer conn.Close()

	stream, err := grpcstream.NewSpectatorClient(conn, *secret).StreamSnapshots(ctx, &grpcstream.StreamRequest{
		RateHz:      uint32(*rate),
		Compression: *compression,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "stream:", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	for received := 0; *limit == 0 || received < *limit; received++ {
		snapshot, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			fmt.Fprintln(os.Stderr, "recv:", err)
			os.Exit(2)
		}
		_ = enc.Encode(frameLine{
			Tick:        snapshot.Tick,
			Players:     len(snapshot.Players),
			Projectiles: len(snapshot.Projectiles),
			Craters:     len(snapshot.Craters),
		})
	}
}
