package client

import (
	"github.com/elliotchance/orderedmap/v2"
	"github.com/go-gl/mathgl/mgl64"

	"planetarena/server/internal/deform"
	"planetarena/server/internal/physics"
	"planetarena/server/internal/state"
	"planetarena/server/internal/vecmath"
)

// Entity is one tank as a renderer should draw it.
type Entity struct {
	ID          string
	Position    vecmath.Vector3
	Yaw         float64
	Health      int
	Orientation mgl64.Quat
	Local       bool
}

// View is an immutable copy of the render cache.
type View struct {
	Tick          uint64
	LocalID       string
	Players       []Entity
	Projectiles   []state.Projectile
	Craters       []state.Crater
	CraterVersion uint64
}

// Local returns the locally controlled entity, if present.
func (v View) Local() (Entity, bool) {
	for _, entity := range v.Players {
		if entity.Local {
			return entity, true
		}
	}
	return Entity{}, false
}

// RenderCache holds the displayed world. It is derived from snapshots and never
// fed back into the simulation.
type RenderCache struct {
	smoothing     float64
	tick          uint64
	players       *orderedmap.OrderedMap[string, *Entity]
	projectiles   []state.Projectile
	craters       []state.Crater
	craterDigest  uint64
	craterVersion uint64
}

// NewRenderCache uses smoothing as the remote blend factor; values outside (0,1] select the default.
func NewRenderCache(smoothing float64) *RenderCache {
	if !(smoothing > 0 && smoothing <= 1) {
		smoothing = DefaultRemoteSmoothing
	}
	return &RenderCache{
		smoothing:    smoothing,
		players:      orderedmap.NewOrderedMap[string, *Entity](),
		craterDigest: deform.Digest(nil),
	}
}

// ApplySnapshot smooths remote players toward the snapshot, drops players the
// snapshot no longer lists and replaces projectiles. The local player is skipped
// here and set through SetLocal.
func (c *RenderCache) ApplySnapshot(snapshot state.Snapshot, localID string) {
	c.tick = snapshot.Tick
	present := make(map[string]struct{}, len(snapshot.Players))
	for _, player := range snapshot.Players {
		present[player.ID] = struct{}{}
		if player.ID == localID {
			if entity, ok := c.players.Get(player.ID); ok {
				entity.Health = player.Health
			}
			continue
		}
		entity, ok := c.players.Get(player.ID)
		if !ok {
			//1.- Newcomers appear at their authoritative pose.
			c.players.Set(player.ID, &Entity{
				ID:          player.ID,
				Position:    player.Position,
				Yaw:         player.Yaw,
				Health:      player.Health,
				Orientation: vecmath.Orientation(player.Position, player.Yaw),
			})
			continue
		}
		//2.- Known players blend from what is currently displayed.
		entity.Position = blendVector(entity.Position, player.Position, c.smoothing)
		entity.Yaw = blendYaw(entity.Yaw, player.Yaw, c.smoothing)
		entity.Health = player.Health
		entity.Orientation = vecmath.Orientation(entity.Position, entity.Yaw)
	}

	var stale []string
	for el := c.players.Front(); el != nil; el = el.Next() {
		if _, ok := present[el.Key]; !ok {
			stale = append(stale, el.Key)
		}
	}
	for _, id := range stale {
		c.players.Delete(id)
	}

	c.projectiles = append(c.projectiles[:0], snapshot.Projectiles...)

	//3.- Terrain is only rebuilt when the crater history actually changed.
	if digest := deform.Digest(snapshot.Craters); digest != c.craterDigest {
		c.craterDigest = digest
		c.craters = append([]state.Crater(nil), snapshot.Craters...)
		c.craterVersion++
	}
}

// SetLocal displays the predicted local tank.
func (c *RenderCache) SetLocal(id string, body physics.Body, health int) {
	entity, ok := c.players.Get(id)
	if !ok {
		entity = &Entity{ID: id, Local: true}
		c.players.Set(id, entity)
	}
	entity.Local = true
	entity.Position = body.Position
	entity.Yaw = body.Yaw
	if health > 0 {
		entity.Health = health
	}
	entity.Orientation = vecmath.Orientation(body.Position, body.Yaw)
}

// Remove drops a player immediately.
func (c *RenderCache) Remove(id string) { c.players.Delete(id) }

// Player returns a copy of one displayed player.
func (c *RenderCache) Player(id string) (Entity, bool) {
	entity, ok := c.players.Get(id)
	if !ok {
		return Entity{}, false
	}
	return *entity, true
}

// View copies the cache for drawing.
func (c *RenderCache) View(localID string) View {
	view := View{
		Tick:          c.tick,
		LocalID:       localID,
		Players:       make([]Entity, 0, c.players.Len()),
		Projectiles:   append([]state.Projectile(nil), c.projectiles...),
		Craters:       append([]state.Crater(nil), c.craters...),
		CraterVersion: c.craterVersion,
	}
	for el := c.players.Front(); el != nil; el = el.Next() {
		view.Players = append(view.Players, *el.Value)
	}
	return view
}
