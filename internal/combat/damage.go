package combat

import (
	"planetarena/server/internal/logging"
)

// Hit describes one projectile striking one player.
type Hit struct {
	ProjectileID uint64
	OwnerID      string
	TargetID     string
	Damage       int
	HealthAfter  int
	Fatal        bool
}

// ApplyDamage subtracts damage from health and clamps the result to [0, maxHealth].
func ApplyDamage(health, damage, maxHealth int) int {
	//1.- Negative damage would heal, which no weapon does.
	if damage < 0 {
		damage = 0
	}
	health -= damage
	//2.- Keep the result inside the valid health band.
	if health < 0 {
		return 0
	}
	if health > maxHealth {
		return maxHealth
	}
	return health
}

// LoggingFields returns structured logging fields describing the hit.
func (h Hit) LoggingFields() []logging.Field {
	return []logging.Field{
		logging.Int64("projectile_id", int64(h.ProjectileID)),
		logging.String("owner_id", h.OwnerID),
		logging.String("target_id", h.TargetID),
		logging.Int("damage", h.Damage),
		logging.Int("health_after", h.HealthAfter),
		logging.Bool("fatal", h.Fatal),
	}
}
