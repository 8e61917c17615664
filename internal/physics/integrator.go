package physics

import (
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/vecmath"
)

// Body is the kinematic state of a tank. The server embeds it in the
// authoritative player and the client predictor advances its own copy.
type Body struct {
	Position vecmath.Vector3
	Velocity vecmath.Vector3
	Yaw      float64
}

// StepTank advances body by one tick under cmd. Yaw is relative to the local
// tangent frame, so it is carried along with the tank as it moves and a held
// heading follows a great circle. Degenerate geometry at the planet center
// skips the direction-dependent updates instead of dividing by zero.
func StepTank(body *Body, cmd input.Command, tuning gameplay.Tuning) {
	if body == nil {
		return
	}
	//1.- Turn by the rotate axis.
	body.Yaw = vecmath.WrapAngle(body.Yaw + cmd.Rotate*tuning.RotationSpeed)
	//2.- The radial direction is the local up.
	up, ok := body.Position.Normalize()
	if ok {
		//3.- Thrust along the tangent heading.
		if forward, ok := vecmath.Forward(up, body.Yaw); ok && cmd.Move != 0 {
			body.Velocity = body.Velocity.Add(forward.Scale(cmd.Move * tuning.Acceleration))
		}
		//4.- Pull toward the center.
		body.Velocity = body.Velocity.Add(up.Scale(-tuning.Gravity))
	}
	//5.- Integrate position.
	body.Position = body.Position.Add(body.Velocity)
	//6.- Ride on the surface shell.
	if projected, ok := body.Position.Reproject(tuning.SurfaceRadius()); ok {
		body.Position = projected
	}
	//7.- Carry the heading into the new tangent plane.
	if ok {
		body.Yaw = vecmath.TransportYaw(up, body.Position, body.Yaw)
	}
	//8.- Friction after integration.
	body.Velocity = body.Velocity.Scale(tuning.Damping)
}

// Muzzle returns the spawn position and velocity of a shot fired from body.
// ok is false when the heading is undefined.
func Muzzle(body Body, tuning gameplay.Tuning) (position, velocity vecmath.Vector3, ok bool) {
	up, ok := body.Position.Normalize()
	if !ok {
		return vecmath.Vector3{}, vecmath.Vector3{}, false
	}
	forward, ok := vecmath.Forward(up, body.Yaw)
	if !ok {
		return vecmath.Vector3{}, vecmath.Vector3{}, false
	}
	return body.Position, forward.Scale(tuning.BulletSpeed), true
}
