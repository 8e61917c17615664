package state

import (
	"errors"

	"github.com/elliotchance/orderedmap/v2"

	"planetarena/server/internal/gameplay"
	"planetarena/server/internal/input"
	"planetarena/server/internal/physics"
	"planetarena/server/internal/vecmath"
)

var (
	// ErrDuplicatePlayer is returned when spawning an id that is already registered.
	ErrDuplicatePlayer = errors.New("player already registered")
	// ErrEmptyPlayerID is returned when spawning without an id.
	ErrEmptyPlayerID = errors.New("player id must not be empty")
)

// Registry owns every authoritative entity. It is not safe for concurrent use;
// the tick driver serialises access to it.
type Registry struct {
	maxHealth   int
	players     *orderedmap.OrderedMap[string, *Player]
	projectiles *ProjectileArena
	craters     *CraterHistory
	events      EventStore
}

// NewRegistry constructs empty collections bounded by the tuning.
func NewRegistry(tuning gameplay.Tuning) *Registry {
	return &Registry{
		maxHealth:   tuning.MaxHealth,
		players:     orderedmap.NewOrderedMap[string, *Player](),
		projectiles: NewProjectileArena(tuning.MaxProjectiles),
		craters:     NewCraterHistory(tuning.MaxCraters),
	}
}

// SpawnPlayer registers a player at position with full health and neutral input.
func (r *Registry) SpawnPlayer(id string, position vecmath.Vector3, tick uint64) (*Player, error) {
	if id == "" {
		return nil, ErrEmptyPlayerID
	}
	if _, exists := r.players.Get(id); exists {
		return nil, ErrDuplicatePlayer
	}
	player := &Player{
		Body:       physics.Body{Position: position},
		ID:         id,
		Health:     r.maxHealth,
		Input:      input.Neutral(),
		JoinedTick: tick,
	}
	r.players.Set(id, player)
	return player, nil
}

// Player looks up a player by id.
func (r *Registry) Player(id string) (*Player, bool) {
	return r.players.Get(id)
}

// RemovePlayer purges a player without emitting a death event.
func (r *Registry) RemovePlayer(id string) bool {
	return r.players.Delete(id)
}

// KillPlayer removes a player whose health reached zero and records exactly one
// death event. It returns false when the player is no longer registered.
func (r *Registry) KillPlayer(id, killerID string, tick uint64) bool {
	player, ok := r.players.Get(id)
	if !ok {
		return false
	}
	player.Health = 0
	r.players.Delete(id)
	r.events.Add(DeathEvent{PlayerID: id, KillerID: killerID, Tick: tick})
	return true
}

// Players returns the registered players in join order. The slice is a fresh
// copy so callers may remove players while walking it.
func (r *Registry) Players() []*Player {
	players := make([]*Player, 0, r.players.Len())
	for el := r.players.Front(); el != nil; el = el.Next() {
		players = append(players, el.Value)
	}
	return players
}

// PlayerCount returns the number of registered players.
func (r *Registry) PlayerCount() int { return r.players.Len() }

// Projectiles exposes the projectile arena.
func (r *Registry) Projectiles() *ProjectileArena { return r.projectiles }

// Craters exposes the crater history.
func (r *Registry) Craters() *CraterHistory { return r.craters }

// DrainDeaths returns the deaths recorded since the previous drain.
func (r *Registry) DrainDeaths() []DeathEvent { return r.events.Drain() }

// Snapshot copies the whole world for broadcasting.
func (r *Registry) Snapshot(tick uint64) Snapshot {
	players := make([]PlayerView, 0, r.players.Len())
	for el := r.players.Front(); el != nil; el = el.Next() {
		players = append(players, el.Value.view())
	}
	return Snapshot{
		Tick:        tick,
		Players:     players,
		Projectiles: r.projectiles.Views(),
		Craters:     r.craters.Items(),
	}
}
