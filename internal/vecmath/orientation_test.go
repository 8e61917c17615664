package vecmath

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestWrapAngleRange(t *testing.T) {
	cases := []float64{0, math.Pi, -math.Pi, 3 * math.Pi, -7.5, 100}
	for _, angle := range cases {
		wrapped := WrapAngle(angle)
		if wrapped <= -math.Pi || wrapped > math.Pi {
			t.Fatalf("WrapAngle(%f) = %f out of range", angle, wrapped)
		}
		if math.Abs(math.Sin(wrapped)-math.Sin(angle)) > 1e-9 || math.Abs(math.Cos(wrapped)-math.Cos(angle)) > 1e-9 {
			t.Fatalf("WrapAngle(%f) changed the direction to %f", angle, wrapped)
		}
	}
}

func TestLerpAngleTakesShortestArc(t *testing.T) {
	//1.- Crossing the seam must move through pi rather than around the circle.
	from := math.Pi - 0.1
	to := -math.Pi + 0.1
	got := LerpAngle(from, to, 0.5)
	if math.Abs(WrapAngle(got)-math.Pi) > 1e-9 {
		t.Fatalf("expected midpoint at pi, got %f", got)
	}
	//2.- Equal angles are a fixed point.
	if LerpAngle(1.25, 1.25, 0.05) != 1.25 {
		t.Fatalf("expected identical angles to stay unchanged")
	}
}

func TestForwardIsTangentAndUnit(t *testing.T) {
	ups := []Vector3{New(0, 5.5, 0), New(5.5, 0, 0), New(1, 2, -3), New(0, -5.5, 0)}
	for _, up := range ups {
		for _, yaw := range []float64{0, 0.7, -2.1, math.Pi} {
			forward, ok := Forward(up, yaw)
			if !ok {
				t.Fatalf("forward failed for up %+v", up)
			}
			unitUp, _ := up.Normalize()
			if math.Abs(forward.Dot(unitUp)) > 1e-9 {
				t.Fatalf("forward %+v not tangent to %+v", forward, up)
			}
			if math.Abs(forward.Len()-1) > 1e-9 {
				t.Fatalf("forward %+v not unit length", forward)
			}
		}
	}
	if _, ok := Forward(Vector3{}, 0); ok {
		t.Fatalf("expected degenerate up to fail")
	}
}

func TestOrientationMapsLocalAxes(t *testing.T) {
	position := New(0, 0, 5.5)
	yaw := 0.4
	q := Orientation(position, yaw)
	up := FromVec(q.Rotate(mgl64.Vec3{0, 1, 0}))
	if up.Distance(New(0, 0, 1)) > 1e-9 {
		t.Fatalf("local up rotated to %+v", up)
	}
	forward, _ := Forward(position, yaw)
	heading := FromVec(q.Rotate(mgl64.Vec3{0, 0, 1}))
	if heading.Distance(forward) > 1e-9 {
		t.Fatalf("local forward rotated to %+v want %+v", heading, forward)
	}
}

func TestTransportYawFollowsGreatCircle(t *testing.T) {
	from := New(0, 0, 1)
	//1.- Two radians of arc carries the start past the +Y pole.
	theta := 2.0
	to := New(0, math.Sin(theta), math.Cos(theta))
	yaw := TransportYaw(from, to, 0)
	heading, ok := Forward(to, yaw)
	if !ok {
		t.Fatalf("forward failed at %+v", to)
	}
	want := New(0, math.Cos(theta), -math.Sin(theta))
	if heading.Distance(want) > 1e-9 {
		t.Fatalf("transported heading %+v want %+v", heading, want)
	}
	//2.- Staying put or losing the frame keeps the yaw.
	if TransportYaw(to, to, 0.7) != 0.7 || TransportYaw(Vector3{}, to, 0.7) != 0.7 {
		t.Fatalf("expected yaw to be unchanged")
	}
}
