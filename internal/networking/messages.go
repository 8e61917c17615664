package networking

import (
	"sort"

	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

// Event names exchanged over a session.
const (
	EventPlayerInput = "playerInput"
	EventGameState   = "gameState"
	EventPlayerDied  = "playerDied"
	EventWelcome     = "welcome"
)

// Rotation carries a player's heading.
type Rotation struct {
	Yaw float64 `json:"yaw" msgpack:"yaw"`
}

// PlayerState is the per-player entry of a gameState message.
type PlayerState struct {
	Position vecmath.Vector3 `json:"position" msgpack:"position"`
	Velocity vecmath.Vector3 `json:"velocity" msgpack:"velocity"`
	Rotation Rotation        `json:"rotation" msgpack:"rotation"`
	Health   int             `json:"health" msgpack:"health"`
}

// BulletState is one in-flight projectile.
type BulletState struct {
	ID       uint64          `json:"id" msgpack:"id"`
	Position vecmath.Vector3 `json:"position" msgpack:"position"`
	Velocity vecmath.Vector3 `json:"velocity" msgpack:"velocity"`
	OwnerID  string          `json:"ownerId" msgpack:"ownerId"`
}

// CraterState is one terrain deformation record.
type CraterState struct {
	Position vecmath.Vector3 `json:"position" msgpack:"position"`
	Depth    float64         `json:"depth" msgpack:"depth"`
}

// GameState is the full world broadcast every tick.
type GameState struct {
	Tick               uint64                 `json:"tick" msgpack:"tick"`
	Players            map[string]PlayerState `json:"players" msgpack:"players"`
	Bullets            []BulletState          `json:"bullets" msgpack:"bullets"`
	DeformationCraters []CraterState          `json:"deformationCraters" msgpack:"deformationCraters"`
}

// Welcome tells a new session which player it controls and how the world is shaped.
type Welcome struct {
	PlayerID     string  `json:"id" msgpack:"id"`
	TickHz       float64 `json:"tickHz" msgpack:"tickHz"`
	PlanetRadius float64 `json:"planetRadius" msgpack:"planetRadius"`
	TankHeight   float64 `json:"tankHeight" msgpack:"tankHeight"`
}

// GameStateFromSnapshot projects an authoritative snapshot onto the wire shape.
func GameStateFromSnapshot(snapshot state.Snapshot) GameState {
	message := GameState{
		Tick:               snapshot.Tick,
		Players:            make(map[string]PlayerState, len(snapshot.Players)),
		Bullets:            make([]BulletState, 0, len(snapshot.Projectiles)),
		DeformationCraters: make([]CraterState, 0, len(snapshot.Craters)),
	}
	for _, player := range snapshot.Players {
		message.Players[player.ID] = PlayerState{
			Position: player.Position,
			Velocity: player.Velocity,
			Rotation: Rotation{Yaw: player.Yaw},
			Health:   player.Health,
		}
	}
	for _, projectile := range snapshot.Projectiles {
		message.Bullets = append(message.Bullets, BulletState{
			ID:       projectile.ID,
			Position: projectile.Position,
			Velocity: projectile.Velocity,
			OwnerID:  projectile.OwnerID,
		})
	}
	for _, crater := range snapshot.Craters {
		message.DeformationCraters = append(message.DeformationCraters, CraterState{Position: crater.Position, Depth: crater.Depth})
	}
	return message
}

// Snapshot converts a received gameState back into snapshot form. Players are
// ordered by id because the wire map carries no order.
func (g GameState) Snapshot() state.Snapshot {
	ids := make([]string, 0, len(g.Players))
	for id := range g.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	snapshot := state.Snapshot{
		Tick:        g.Tick,
		Players:     make([]state.PlayerView, 0, len(ids)),
		Projectiles: make([]state.Projectile, 0, len(g.Bullets)),
		Craters:     make([]state.Crater, 0, len(g.DeformationCraters)),
	}
	for _, id := range ids {
		player := g.Players[id]
		snapshot.Players = append(snapshot.Players, state.PlayerView{
			ID:       id,
			Position: player.Position,
			Velocity: player.Velocity,
			Yaw:      player.Rotation.Yaw,
			Health:   player.Health,
		})
	}
	for _, bullet := range g.Bullets {
		snapshot.Projectiles = append(snapshot.Projectiles, state.Projectile{
			ID:       bullet.ID,
			Position: bullet.Position,
			Velocity: bullet.Velocity,
			OwnerID:  bullet.OwnerID,
		})
	}
	for _, crater := range g.DeformationCraters {
		snapshot.Craters = append(snapshot.Craters, state.Crater{Position: crater.Position, Depth: crater.Depth})
	}
	return snapshot
}
