package combat

import (
	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/state"
)

// Resolver matches live projectiles against players.
type Resolver struct {
	radius    float64
	damage    int
	maxHealth int
}

// NewResolver builds a resolver from the arena tuning.
func NewResolver(tuning gameplay.Tuning) *Resolver {
	return &Resolver{radius: tuning.CollisionRadius, damage: tuning.ProjectileDamage, maxHealth: tuning.MaxHealth}
}

// Resolve applies every projectile/player contact for this tick. Each live
// projectile hits at most the first non-owner player, in join order, closer than
// the collision radius. Players killed earlier in the pass are no longer targets.
// Projectiles already resolved by impact or range are skipped.
func (r *Resolver) Resolve(reg *state.Registry, tick uint64) []Hit {
	arena := reg.Projectiles()
	players := reg.Players()
	var hits []Hit
	for i := 0; i < arena.Len(); i++ {
		if !arena.Live(i) {
			continue
		}
		projectile := arena.At(i)
		for _, target := range players {
			//1.- Owners cannot hit themselves and the dead are out of play.
			if !target.Alive() || target.ID == projectile.OwnerID {
				continue
			}
			if projectile.Position.Distance(target.Position) >= r.radius {
				continue
			}
			//2.- First match wins: retire the projectile before touching the target.
			arena.Resolve(i, state.CauseCollision)
			target.Health = ApplyDamage(target.Health, r.damage, r.maxHealth)
			hit := Hit{
				ProjectileID: projectile.ID,
				OwnerID:      projectile.OwnerID,
				TargetID:     target.ID,
				Damage:       r.damage,
				HealthAfter:  target.Health,
			}
			//3.- Crossing zero removes the player and records its single death.
			if target.Health <= 0 {
				hit.Fatal = reg.KillPlayer(target.ID, projectile.OwnerID, tick)
			}
			hits = append(hits, hit)
			break
		}
	}
	return hits
}
