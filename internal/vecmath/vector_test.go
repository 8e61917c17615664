package vecmath

import (
	"math"
	"math/rand"
	"testing"
)

func TestNormalizeRejectsZeroVector(t *testing.T) {
	//1.- A zero vector has no direction and must not divide by zero.
	if _, ok := (Vector3{}).Normalize(); ok {
		t.Fatalf("expected zero vector normalization to fail")
	}
	//2.- A regular vector normalizes to unit length.
	unit, ok := New(3, 4, 0).Normalize()
	if !ok || math.Abs(unit.Len()-1) > 1e-12 {
		t.Fatalf("unexpected unit vector %+v ok=%v", unit, ok)
	}
}

func TestReprojectKeepsDegenerateInput(t *testing.T) {
	origin := Vector3{}
	projected, ok := origin.Reproject(5.5)
	if ok || projected != origin {
		t.Fatalf("expected origin to be returned untouched, got %+v ok=%v", projected, ok)
	}
	onSphere, ok := New(0, 2, 0).Reproject(5.5)
	if !ok || onSphere != New(0, 5.5, 0) {
		t.Fatalf("unexpected reprojection %+v", onSphere)
	}
}

func TestRandomOnSphereMagnitude(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		point := RandomOnSphere(rng, 5)
		if math.Abs(point.Len()-5) > 1e-12 {
			t.Fatalf("sample %d has magnitude %.15f", i, point.Len())
		}
	}
}

func TestLerpMovesFractionOfDistance(t *testing.T) {
	from := New(0, 0, 0)
	to := New(10, 0, 0)
	if got := from.Lerp(to, 0.1); math.Abs(got.X-1) > 1e-12 {
		t.Fatalf("unexpected lerp result %+v", got)
	}
}
