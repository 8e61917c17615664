package client

import (
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/state"
)

// Store is the single render-facing state of a client. It is not safe for
// concurrent use; one goroutine predicts, reconciles and reads it.
type Store struct {
	localID    string
	predictor  *Predictor
	reconciler Reconciler
	cache      *RenderCache
	health     int
	residual   float64
}

// StoreOptions overrides the blend factors.
type StoreOptions struct {
	LocalCorrection float64
	RemoteSmoothing float64
}

// NewStore builds an empty store for the player named localID.
func NewStore(localID string, tuning gameplay.Tuning, opts StoreOptions) *Store {
	return &Store{
		localID:    localID,
		predictor:  NewPredictor(tuning),
		reconciler: NewReconciler(opts.LocalCorrection),
		cache:      NewRenderCache(opts.RemoteSmoothing),
	}
}

// LocalID returns the controlled player's id.
func (s *Store) LocalID() string { return s.localID }

// SetInput changes the command used by prediction.
func (s *Store) SetInput(cmd input.Command) { s.predictor.SetInput(cmd) }

// Input returns the command that prediction applies and the sender transmits.
func (s *Store) Input() input.Command { return s.predictor.Input() }

// Frame advances prediction by one tick and refreshes the local entity.
func (s *Store) Frame() {
	if !s.predictor.Ready() {
		return
	}
	s.predictor.Step()
	s.cache.SetLocal(s.localID, s.predictor.Body(), s.health)
}

// Apply folds one authoritative snapshot into the store.
func (s *Store) Apply(snapshot state.Snapshot) {
	if local, ok := snapshot.Player(s.localID); ok {
		s.health = local.Health
		if !s.predictor.Ready() {
			s.predictor.Seed(local)
			s.residual = 0
		} else {
			s.residual = s.reconciler.Correct(s.predictor.mutableBody(), local)
		}
		s.cache.SetLocal(s.localID, s.predictor.Body(), s.health)
	} else if s.predictor.Ready() {
		//1.- The server no longer simulates us: stop predicting a tank that does not exist.
		s.predictor.Reset()
		s.cache.Remove(s.localID)
	}
	s.cache.ApplySnapshot(snapshot, s.localID)
}

// Alive reports whether the local tank is currently predicted.
func (s *Store) Alive() bool { return s.predictor.Ready() }

// Residual is the prediction error left after the latest correction.
func (s *Store) Residual() float64 { return s.residual }

// View copies the displayed world.
func (s *Store) View() View { return s.cache.View(s.localID) }
