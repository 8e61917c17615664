package gameplay

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "embed"
)

// Tuning captures every constant the arena simulation depends on. Distances are
// in world units, velocities in units per tick and accelerations in units per tick squared.
type Tuning struct {
	PlanetRadius      float64 `json:"planetRadius"`
	TankHeight        float64 `json:"tankHeight"`
	RotationSpeed     float64 `json:"rotationSpeed"`
	Acceleration      float64 `json:"acceleration"`
	Gravity           float64 `json:"gravity"`
	Damping           float64 `json:"damping"`
	ShootCooldownMs   int     `json:"shootCooldownMs"`
	BulletSpeed       float64 `json:"bulletSpeed"`
	ProjectileGravity float64 `json:"projectileGravity"`
	ImpactEpsilon     float64 `json:"impactEpsilon"`
	MaxRangeFactor    float64 `json:"maxRangeFactor"`
	CollisionRadius   float64 `json:"collisionRadius"`
	ProjectileDamage  int     `json:"projectileDamage"`
	MaxHealth         int     `json:"maxHealth"`
	MaxCraters        int     `json:"maxCraters"`
	CraterDepthMin    float64 `json:"craterDepthMin"`
	CraterDepthMax    float64 `json:"craterDepthMax"`
	MaxProjectiles    int     `json:"maxProjectiles"`
}

//go:embed arena.json
var arenaPayload []byte

var (
	arenaOnce sync.Once
	arenaData Tuning
	arenaErr  error
)

// DefaultTuning exposes the cached arena constants.
func DefaultTuning() Tuning {
	arenaOnce.Do(func() {
		//1.- Parse the embedded payload once and validate it before anyone simulates with it.
		arenaErr = json.Unmarshal(arenaPayload, &arenaData)
		if arenaErr == nil {
			arenaErr = arenaData.Validate()
		}
	})
	//2.- A broken table would make server and client diverge, so fail loudly.
	if arenaErr != nil {
		panic(arenaErr)
	}
	return arenaData
}

// SurfaceRadius is the distance from the planet center at which tanks ride.
func (t Tuning) SurfaceRadius() float64 { return t.PlanetRadius + t.TankHeight }

// ImpactRadius is the distance at or below which a projectile hits the ground.
func (t Tuning) ImpactRadius() float64 { return t.PlanetRadius + t.ImpactEpsilon }

// MaxRange is the distance from the center past which projectiles leave the play volume.
func (t Tuning) MaxRange() float64 { return t.PlanetRadius * t.MaxRangeFactor }

// ShootCooldown converts the cooldown to a duration.
func (t Tuning) ShootCooldown() time.Duration {
	return time.Duration(t.ShootCooldownMs) * time.Millisecond
}

// Validate reports every out-of-range constant at once.
func (t Tuning) Validate() error {
	var problems []string
	if !(t.PlanetRadius > 0) {
		problems = append(problems, "planetRadius must be positive")
	}
	if t.TankHeight < 0 {
		problems = append(problems, "tankHeight must be non-negative")
	}
	if !(t.Damping > 0 && t.Damping <= 1) {
		problems = append(problems, "damping must be in (0,1]")
	}
	if t.ShootCooldownMs < 0 {
		problems = append(problems, "shootCooldownMs must be non-negative")
	}
	if t.ProjectileGravity <= t.Gravity {
		problems = append(problems, "projectileGravity must exceed tank gravity")
	}
	if t.ImpactEpsilon < 0 {
		problems = append(problems, "impactEpsilon must be non-negative")
	}
	if t.MaxRange() <= t.SurfaceRadius() {
		problems = append(problems, "maxRangeFactor must place the range limit above the tanks")
	}
	if !(t.CollisionRadius > 0) {
		problems = append(problems, "collisionRadius must be positive")
	}
	if t.ProjectileDamage <= 0 || t.MaxHealth <= 0 {
		problems = append(problems, "projectileDamage and maxHealth must be positive")
	}
	if t.MaxCraters <= 0 {
		problems = append(problems, "maxCraters must be positive")
	}
	if t.CraterDepthMin < 0 || t.CraterDepthMax < t.CraterDepthMin {
		problems = append(problems, "crater depth range is invalid")
	}
	if t.MaxProjectiles <= 0 {
		problems = append(problems, "maxProjectiles must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid arena tuning: %s", strings.Join(problems, "; "))
	}
	return nil
}
