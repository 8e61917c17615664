// Package deform records terrain craters and fingerprints the crater history.
package deform

import (
	"encoding/binary"
	"math"
	"math/rand"

	"github.com/zeebo/xxh3"

	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

// Accumulator appends impact craters to the bounded history.
type Accumulator struct {
	history  *state.CraterHistory
	rng      *rand.Rand
	depthMin float64
	depthMax float64
}

// NewAccumulator wires the accumulator to history. rng supplies crater depths.
func NewAccumulator(history *state.CraterHistory, tuning gameplay.Tuning, rng *rand.Rand) *Accumulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Accumulator{history: history, rng: rng, depthMin: tuning.CraterDepthMin, depthMax: tuning.CraterDepthMax}
}

// Record appends a crater at point with a random depth in [min, max) and reports
// whether the oldest crater was evicted to make room.
func (a *Accumulator) Record(point vecmath.Vector3) (state.Crater, bool) {
	crater := state.Crater{Position: point, Depth: a.depthMin + a.rng.Float64()*(a.depthMax-a.depthMin)}
	evicted := a.history.Append(crater)
	return crater, evicted
}

// Digest fingerprints a crater list so renderers can skip rebuilding an unchanged mesh.
func Digest(craters []state.Crater) uint64 {
	hasher := xxh3.New()
	var buf [8]byte
	write := func(value float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(value))
		_, _ = hasher.Write(buf[:])
	}
	for _, crater := range craters {
		write(crater.Position.X)
		write(crater.Position.Y)
		write(crater.Position.Z)
		write(crater.Depth)
	}
	return hasher.Sum64()
}
