package client

import (
	"math"

	"planetarena/server/internal/physics"
	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

const (
	// DefaultLocalCorrection is the fraction of the prediction error removed per snapshot.
	DefaultLocalCorrection = 0.05
	// DefaultRemoteSmoothing is the blend factor applied to remote players per snapshot.
	DefaultRemoteSmoothing = 0.1
	// snapEpsilon is the residual below which a blend lands exactly on its target.
	snapEpsilon = 1e-9
)

// Reconciler pulls the predicted local tank toward the authoritative one by a
// fixed fraction per snapshot.
type Reconciler struct {
	factor float64
}

// NewReconciler clamps factor into (0,1]; anything else selects the default.
func NewReconciler(factor float64) Reconciler {
	if !(factor > 0 && factor <= 1) {
		factor = DefaultLocalCorrection
	}
	return Reconciler{factor: factor}
}

// Factor returns the correction fraction.
func (r Reconciler) Factor() float64 { return r.factor }

// Correct blends body toward authoritative and returns the remaining position error.
// Without new prediction error the distance shrinks by the same factor each call
// until it snaps to zero.
func (r Reconciler) Correct(body *physics.Body, authoritative state.PlayerView) float64 {
	body.Position = blendOnShell(body.Position, authoritative.Position, r.factor)
	body.Velocity = blendVector(body.Velocity, authoritative.Velocity, r.factor)
	body.Yaw = blendYaw(body.Yaw, authoritative.Yaw, r.factor)
	return body.Position.Distance(authoritative.Position)
}

// blendOnShell blends along the chord and lifts the result back to the
// target's radius, keeping a corrected tank on the surface shell.
func blendOnShell(from, to vecmath.Vector3, t float64) vecmath.Vector3 {
	next := from.Lerp(to, t)
	if !to.IsZero() {
		if lifted, ok := next.Reproject(to.Len()); ok {
			next = lifted
		}
	}
	if next.Distance(to) < snapEpsilon {
		return to
	}
	return next
}

func blendVector(from, to vecmath.Vector3, t float64) vecmath.Vector3 {
	next := from.Lerp(to, t)
	if next.Distance(to) < snapEpsilon {
		return to
	}
	return next
}

func blendYaw(from, to, t float64) float64 {
	next := vecmath.WrapAngle(vecmath.LerpAngle(from, to, t))
	if math.Abs(vecmath.WrapAngle(to-next)) < snapEpsilon {
		return vecmath.WrapAngle(to)
	}
	return next
}
