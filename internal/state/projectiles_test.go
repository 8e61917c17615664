package state

import "testing"

func TestArenaResolveIsExactlyOnce(t *testing.T) {
	arena := NewProjectileArena(0)
	arena.Spawn(Projectile{OwnerID: "a"})
	//1.- The first terminal transition wins; later ones are ignored.
	if !arena.Resolve(0, CauseImpact) {
		t.Fatalf("expected first resolution to succeed")
	}
	if arena.Resolve(0, CauseCollision) {
		t.Fatalf("second resolution must be rejected")
	}
	if arena.CauseOf(0) != CauseImpact || arena.Live(0) {
		t.Fatalf("unexpected cause %s", arena.CauseOf(0))
	}
	if arena.Resolve(0, CauseActive) {
		t.Fatalf("resolving back to active must be rejected")
	}
}

func TestArenaCompactKeepsOrderAndSkipsNothing(t *testing.T) {
	arena := NewProjectileArena(0)
	for _, owner := range []string{"a", "b", "c", "d", "e"} {
		arena.Spawn(Projectile{OwnerID: owner})
	}
	//1.- Resolve adjacent slots, the pattern that skips entries with in-place splicing.
	arena.Resolve(1, CauseImpact)
	arena.Resolve(2, CauseOutOfRange)
	arena.Resolve(4, CauseCollision)

	removed := arena.Compact()
	if removed[CauseImpact] != 1 || removed[CauseOutOfRange] != 1 || removed[CauseCollision] != 1 {
		t.Fatalf("unexpected removal counts %+v", removed)
	}
	views := arena.Views()
	if len(views) != 2 || views[0].OwnerID != "a" || views[1].OwnerID != "d" {
		t.Fatalf("unexpected survivors %+v", views)
	}
	if arena.Len() != 2 || arena.Active() != 2 {
		t.Fatalf("unexpected arena size len=%d active=%d", arena.Len(), arena.Active())
	}
}

func TestArenaEnforcesLimit(t *testing.T) {
	arena := NewProjectileArena(2)
	arena.Spawn(Projectile{})
	arena.Spawn(Projectile{})
	if _, ok := arena.Spawn(Projectile{}); ok {
		t.Fatalf("expected spawn at cap to be refused")
	}
	//1.- Resolving frees capacity immediately, before compaction.
	arena.Resolve(0, CauseImpact)
	id, ok := arena.Spawn(Projectile{})
	if !ok || id != 3 {
		t.Fatalf("expected spawn after resolve, got id=%d ok=%v", id, ok)
	}
}
