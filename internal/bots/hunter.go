package bots

import (
	"math"

	"planetarena/server/internal/client"
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/vecmath"
)

const defaultAimTolerance = 0.1

// Hunter drives toward the nearest other tank and fires once roughly aligned.
// With nobody to chase it circles.
type Hunter struct {
	rotationSpeed float64
	aimTolerance  float64
	fireRange     float64
}

// NewHunter derives turn rate and firing range from the arena tuning.
func NewHunter(tuning gameplay.Tuning) *Hunter {
	return &Hunter{
		rotationSpeed: tuning.RotationSpeed,
		aimTolerance:  defaultAimTolerance,
		fireRange:     2 * (tuning.PlanetRadius + tuning.TankHeight),
	}
}

// Next implements client.Controller.
func (h *Hunter) Next(view client.View) input.Command {
	local, ok := view.Local()
	if !ok {
		return input.Neutral()
	}
	target, distance, found := nearest(view, local)
	if !found {
		return input.Command{Move: 1, Rotate: 0.5}
	}

	//1.- Express the target direction as a heading on the local tangent plane.
	north, east, ok := vecmath.TangentBasis(local.Position)
	if !ok {
		return input.Neutral()
	}
	toward := target.Position.Sub(local.Position)
	desired := math.Atan2(toward.Dot(east), toward.Dot(north))
	delta := vecmath.WrapAngle(desired - local.Yaw)

	//2.- Turn at full rate until one step would overshoot.
	rotate := 1.0
	if h.rotationSpeed > 0 {
		rotate = input.AxisRange.Clamp(delta / h.rotationSpeed)
	}
	aligned := math.Abs(delta) < h.aimTolerance
	return input.Command{
		Rotate: rotate,
		Move:   1,
		Shoot:  aligned && distance <= h.fireRange,
	}
}

func nearest(view client.View, local client.Entity) (client.Entity, float64, bool) {
	var (
		best     client.Entity
		bestDist = math.Inf(1)
		found    bool
	)
	for _, entity := range view.Players {
		if entity.Local || entity.ID == local.ID || entity.Health <= 0 {
			continue
		}
		if d := entity.Position.Distance(local.Position); d < bestDist {
			best, bestDist, found = entity, d, true
		}
	}
	return best, bestDist, found
}
