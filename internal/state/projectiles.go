package state

import "planetarena/server/internal/vecmath"

// Cause identifies the terminal transition of a projectile.
type Cause uint8

const (
	// CauseActive marks a projectile that has not been resolved.
	CauseActive Cause = iota
	CauseImpact
	CauseCollision
	CauseOutOfRange
)

// String returns the textual representation of the cause.
func (c Cause) String() string {
	switch c {
	case CauseImpact:
		return "impact"
	case CauseCollision:
		return "collision"
	case CauseOutOfRange:
		return "out_of_range"
	default:
		return "active"
	}
}

// Projectile is an in-flight shot.
type Projectile struct {
	ID        uint64          `json:"id"`
	Position  vecmath.Vector3 `json:"position"`
	Velocity  vecmath.Vector3 `json:"velocity"`
	OwnerID   string          `json:"ownerId"`
	SpawnTick uint64          `json:"spawnTick"`
}

type projectileSlot struct {
	projectile Projectile
	cause      Cause
}

// ProjectileArena stores projectiles in an index-stable slice. Resolving a
// projectile only flips its cause; slots are removed by Compact at tick end so
// traversals never skip entries.
type ProjectileArena struct {
	slots  []projectileSlot
	active int
	limit  int
	nextID uint64
}

// NewProjectileArena constructs an arena bounded to limit live projectiles.
func NewProjectileArena(limit int) *ProjectileArena {
	return &ProjectileArena{limit: limit}
}

// Spawn appends a projectile and returns its id. It returns false without
// storing anything when the live projectile cap is reached.
func (a *ProjectileArena) Spawn(p Projectile) (uint64, bool) {
	if a.limit > 0 && a.active >= a.limit {
		return 0, false
	}
	a.nextID++
	p.ID = a.nextID
	a.slots = append(a.slots, projectileSlot{projectile: p})
	a.active++
	return p.ID, true
}

// Len returns the number of slots, resolved ones included, until the next Compact.
func (a *ProjectileArena) Len() int { return len(a.slots) }

// Active returns the number of unresolved projectiles.
func (a *ProjectileArena) Active() int { return a.active }

// Limit returns the live projectile cap.
func (a *ProjectileArena) Limit() int { return a.limit }

// At exposes the projectile in slot i for in-place integration.
func (a *ProjectileArena) At(i int) *Projectile { return &a.slots[i].projectile }

// Live reports whether slot i is still active.
func (a *ProjectileArena) Live(i int) bool { return a.slots[i].cause == CauseActive }

// CauseOf returns the terminal cause recorded for slot i.
func (a *ProjectileArena) CauseOf(i int) Cause { return a.slots[i].cause }

// Resolve records the single terminal transition of slot i. Later calls for the
// same slot are ignored and return false.
func (a *ProjectileArena) Resolve(i int, cause Cause) bool {
	if cause == CauseActive || a.slots[i].cause != CauseActive {
		return false
	}
	a.slots[i].cause = cause
	a.active--
	return true
}

// Compact drops every resolved slot, preserving the order of the survivors,
// and returns how many were removed per cause.
func (a *ProjectileArena) Compact() map[Cause]int {
	removed := make(map[Cause]int)
	kept := a.slots[:0]
	for _, slot := range a.slots {
		if slot.cause != CauseActive {
			removed[slot.cause]++
			continue
		}
		kept = append(kept, slot)
	}
	//1.- Clear the tail so dropped projectiles do not linger in the backing array.
	for i := len(kept); i < len(a.slots); i++ {
		a.slots[i] = projectileSlot{}
	}
	a.slots = kept
	return removed
}

// Views copies every live projectile in spawn order.
func (a *ProjectileArena) Views() []Projectile {
	views := make([]Projectile, 0, a.active)
	for _, slot := range a.slots {
		if slot.cause == CauseActive {
			views = append(views, slot.projectile)
		}
	}
	return views
}
