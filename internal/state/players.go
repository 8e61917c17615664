package state

import (
	"time"

	"planetarena/server/internal/input"
	"planetarena/server/internal/physics"
	"planetarena/server/internal/vecmath"
)

// Player is the authoritative state of one tank.
type Player struct {
	physics.Body
	ID     string
	Health int
	// LastShotAt is the simulated time of the last spawned projectile.
	LastShotAt time.Duration
	HasFired   bool
	// Input is the command applied on the most recent tick.
	Input      input.Command
	JoinedTick uint64
}

// CooldownElapsed reports whether the player may fire at simulated time now.
func (p *Player) CooldownElapsed(now, cooldown time.Duration) bool {
	if p == nil {
		return false
	}
	return !p.HasFired || now-p.LastShotAt > cooldown
}

// Alive reports whether the player still has health.
func (p *Player) Alive() bool { return p != nil && p.Health > 0 }

// PlayerView is the broadcast projection of a player.
type PlayerView struct {
	ID       string          `json:"id"`
	Position vecmath.Vector3 `json:"position"`
	Velocity vecmath.Vector3 `json:"velocity"`
	Yaw      float64         `json:"yaw"`
	Health   int             `json:"health"`
}

func (p *Player) view() PlayerView {
	return PlayerView{ID: p.ID, Position: p.Position, Velocity: p.Velocity, Yaw: p.Yaw, Health: p.Health}
}
