package vecmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

var (
	worldNorth = Vector3{Y: 1}
	worldPole  = Vector3{Z: 1}
)

// poleThreshold switches the tangent frame reference when up nearly aligns with world north.
const poleThreshold = 1 - 1e-9

// WrapAngle maps an angle in radians onto (-pi, pi].
func WrapAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	if angle > -math.Pi && angle <= math.Pi {
		return angle
	}
	wrapped := math.Mod(angle+math.Pi, 2*math.Pi)
	if wrapped <= 0 {
		wrapped += 2 * math.Pi
	}
	return wrapped - math.Pi
}

// LerpAngle blends from toward to by t along the shortest arc. It is the only
// yaw interpolation primitive; prediction smoothing and reconciliation both use it.
func LerpAngle(from, to, t float64) float64 {
	delta := WrapAngle(to - from)
	if delta == 0 {
		return from
	}
	return from + delta*t
}

// TangentBasis returns the north/east frame of the plane tangent to up.
// ok is false when up has no direction.
func TangentBasis(up Vector3) (north, east Vector3, ok bool) {
	unitUp, ok := up.Normalize()
	if !ok {
		return Vector3{}, Vector3{}, false
	}
	//1.- Project world north onto the tangent plane, falling back near the poles.
	reference := worldNorth
	if math.Abs(unitUp.Dot(worldNorth)) > poleThreshold {
		reference = worldPole
	}
	north, ok = reference.Sub(unitUp.Scale(reference.Dot(unitUp))).Normalize()
	if !ok {
		return Vector3{}, Vector3{}, false
	}
	//2.- Complete the right-handed frame.
	east = north.Cross(unitUp)
	return north, east, true
}

// Forward returns the unit heading for yaw on the plane tangent to up.
func Forward(up Vector3, yaw float64) (Vector3, bool) {
	north, east, ok := TangentBasis(up)
	if !ok {
		return Vector3{}, false
	}
	return north.Scale(math.Cos(yaw)).Add(east.Scale(math.Sin(yaw))).Normalize()
}

// TransportYaw carries the heading yaw from the tangent plane of fromUp onto
// the tangent plane of toUp along the shortest arc between them and expresses
// it again as a yaw in the toUp frame. yaw comes back unchanged when either
// frame is undefined.
func TransportYaw(fromUp, toUp Vector3, yaw float64) float64 {
	from, ok := fromUp.Normalize()
	if !ok {
		return yaw
	}
	to, ok := toUp.Normalize()
	if !ok || from == to {
		return yaw
	}
	forward, ok := Forward(from, yaw)
	if !ok {
		return yaw
	}
	//1.- Rotate the heading by the minimal rotation taking the old up onto the new one.
	carried := FromVec(mgl64.QuatBetweenVectors(from.Vec(), to.Vec()).Rotate(forward.Vec()))
	//2.- Strip rounding drift off the new tangent plane.
	carried, ok = carried.Sub(to.Scale(carried.Dot(to))).Normalize()
	if !ok {
		return yaw
	}
	north, east, ok := TangentBasis(to)
	if !ok {
		return yaw
	}
	return math.Atan2(carried.Dot(east), carried.Dot(north))
}

// Orientation builds the rotation that maps the local +Y axis to the radial
// up direction and the local +Z axis to the yaw heading. Renderers consume it.
func Orientation(position Vector3, yaw float64) mgl64.Quat {
	up, ok := position.Normalize()
	if !ok {
		return mgl64.QuatRotate(yaw, mgl64.Vec3{0, 1, 0})
	}
	forward, ok := Forward(up, yaw)
	if !ok {
		return mgl64.QuatIdent()
	}
	right := up.Cross(forward)
	basis := mgl64.Mat3FromCols(right.Vec(), up.Vec(), forward.Vec())
	return mgl64.Mat4ToQuat(basis.Mat4()).Normalize()
}
