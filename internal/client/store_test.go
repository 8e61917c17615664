package client

import (
	"testing"
	"time"

	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/simulation"
	"planetarena/server/internal/vecmath"
)

func TestPredictorMatchesServerTrajectory(t *testing.T) {
	tuning := gameplay.DefaultTuning()
	slots := input.NewSlots()
	world := simulation.NewWorld(tuning, slots)
	start := vecmath.New(0, tuning.SurfaceRadius(), 0)
	view, err := world.JoinAt("p1", start)
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	//1.- Drive the server and the predictor with identical input.
	cmd := input.Command{Rotate: 0.4, Move: 1}
	slots.Store("p1", cmd)
	predictor := NewPredictor(tuning)
	predictor.Seed(view)
	predictor.SetInput(cmd)
	for i := 0; i < 90; i++ {
		world.Step(time.Second / 60)
		predictor.Step()
	}

	//2.- Shared integration keeps them bit-for-bit identical.
	snapshot := world.Snapshot()
	server, ok := snapshot.Player("p1")
	if !ok {
		t.Fatalf("player missing from snapshot")
	}
	body := predictor.Body()
	if body.Position != server.Position || body.Yaw != server.Yaw || body.Velocity != server.Velocity {
		t.Fatalf("prediction diverged:\n got %+v\nwant %+v", body, server)
	}
}

func TestStoreSeedsReconcilesAndForgetsLocal(t *testing.T) {
	tuning := gameplay.DefaultTuning()
	store := NewStore("me", tuning, StoreOptions{})
	store.SetInput(input.Command{Move: 1})

	//1.- Prediction waits for the first authoritative state.
	store.Frame()
	if store.Alive() {
		t.Fatalf("store must not predict before the first snapshot")
	}

	slots := input.NewSlots()
	world := simulation.NewWorld(tuning, slots)
	if _, err := world.JoinAt("me", vecmath.New(0, tuning.SurfaceRadius(), 0)); err != nil {
		t.Fatalf("join: %v", err)
	}
	world.Step(time.Second / 60)
	store.Apply(world.Snapshot())
	if !store.Alive() || store.Residual() != 0 {
		t.Fatalf("expected seeded prediction")
	}

	//2.- Local prediction runs ahead; the next snapshot pulls it back partially.
	for i := 0; i < 10; i++ {
		store.Frame()
	}
	world.Step(time.Second / 60)
	store.Apply(world.Snapshot())
	if store.Residual() <= 0 {
		t.Fatalf("expected a non-zero residual after running ahead")
	}
	if _, ok := store.View().Local(); !ok {
		t.Fatalf("expected local entity in view")
	}

	//3.- A snapshot without us ends prediction.
	world.Leave("me")
	world.Step(time.Second / 60)
	store.Apply(world.Snapshot())
	if store.Alive() {
		t.Fatalf("expected prediction to stop once the player is gone")
	}
	if _, ok := store.View().Local(); ok {
		t.Fatalf("expected local entity to be removed")
	}
}
