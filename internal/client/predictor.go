package client

import (
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/physics"
	"planetarena/server/internal/state"
)

// Predictor advances the locally controlled tank with the server's own
// integration step so input feels immediate.
type Predictor struct {
	tuning gameplay.Tuning
	body   physics.Body
	cmd    input.Command
	ready  bool
}

// NewPredictor returns a predictor waiting for its first authoritative state.
func NewPredictor(tuning gameplay.Tuning) *Predictor {
	return &Predictor{tuning: tuning}
}

// Seed adopts an authoritative state outright. It is used once, when the local
// player first appears in a snapshot.
func (p *Predictor) Seed(view state.PlayerView) {
	p.body = physics.Body{Position: view.Position, Velocity: view.Velocity, Yaw: view.Yaw}
	p.ready = true
}

// Reset forgets the local tank, for example after it died.
func (p *Predictor) Reset() {
	p.body = physics.Body{}
	p.ready = false
}

// SetInput replaces the command applied by the next Step.
func (p *Predictor) SetInput(cmd input.Command) { p.cmd = cmd }

// Input returns the command currently applied.
func (p *Predictor) Input() input.Command { return p.cmd }

// Ready reports whether a local tank is being predicted.
func (p *Predictor) Ready() bool { return p.ready }

// Step advances the prediction by one tick.
func (p *Predictor) Step() {
	if !p.ready {
		return
	}
	physics.StepTank(&p.body, p.cmd, p.tuning)
}

// Body returns a copy of the predicted state.
func (p *Predictor) Body() physics.Body { return p.body }

// mutableBody lets the reconciler correct the prediction in place.
func (p *Predictor) mutableBody() *physics.Body { return &p.body }
