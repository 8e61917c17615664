package physics

import (
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/vecmath"
)

// Fate is the result of advancing a projectile one tick.
type Fate uint8

const (
	FateActive Fate = iota
	FateImpact
	FateOutOfRange
)

// Outcome describes what happened to a projectile during its step.
type Outcome struct {
	Fate Fate
	// Crater is the impact point on the planet surface when Fate is FateImpact.
	Crater vecmath.Vector3
}

// StepProjectile integrates a projectile and classifies it. Impact takes
// precedence; an impacted projectile is never also out of range.
func StepProjectile(position, velocity *vecmath.Vector3, tuning gameplay.Tuning) Outcome {
	previous := *position
	//1.- Integrate position.
	*position = position.Add(*velocity)
	//2.- Projectiles fall harder than tanks.
	if up, ok := position.Normalize(); ok {
		*velocity = velocity.Add(up.Scale(-tuning.ProjectileGravity))
	}
	if !position.IsFinite() {
		return Outcome{Fate: FateOutOfRange}
	}
	distance := position.Len()
	//3.- Ground contact: place the crater below the projectile on the surface.
	if distance <= tuning.ImpactRadius() {
		direction, ok := position.Normalize()
		if !ok {
			direction, ok = previous.Normalize()
		}
		if !ok {
			direction = vecmath.New(0, 1, 0)
		}
		return Outcome{Fate: FateImpact, Crater: direction.Scale(tuning.PlanetRadius)}
	}
	//4.- Left the play volume.
	if distance > tuning.MaxRange() {
		return Outcome{Fate: FateOutOfRange}
	}
	return Outcome{Fate: FateActive}
}
