package vecmath

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl64"
)

// degenerateLength is the magnitude below which a vector has no usable direction.
const degenerateLength = 1e-12

// Vector3 is a value-type 3D vector shared by the simulation and the wire format.
type Vector3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// New builds a vector from its components.
func New(x, y, z float64) Vector3 { return Vector3{X: x, Y: y, Z: z} }

// FromVec converts an mgl64 vector.
func FromVec(v mgl64.Vec3) Vector3 { return Vector3{X: v[0], Y: v[1], Z: v[2]} }

// Vec exposes the vector as an mgl64 value for matrix and quaternion work.
func (v Vector3) Vec() mgl64.Vec3 { return mgl64.Vec3{v.X, v.Y, v.Z} }

// Add returns v+o.
func (v Vector3) Add(o Vector3) Vector3 { return FromVec(v.Vec().Add(o.Vec())) }

// Sub returns v-o.
func (v Vector3) Sub(o Vector3) Vector3 { return FromVec(v.Vec().Sub(o.Vec())) }

// Scale multiplies every component by s.
func (v Vector3) Scale(s float64) Vector3 { return FromVec(v.Vec().Mul(s)) }

// Dot returns the scalar product.
func (v Vector3) Dot(o Vector3) float64 { return v.Vec().Dot(o.Vec()) }

// Cross returns the vector product.
func (v Vector3) Cross(o Vector3) Vector3 { return FromVec(v.Vec().Cross(o.Vec())) }

// Len returns the Euclidean magnitude.
func (v Vector3) Len() float64 { return v.Vec().Len() }

// Distance returns |v-o|.
func (v Vector3) Distance(o Vector3) float64 { return v.Sub(o).Len() }

// IsZero reports whether the vector is too short to carry a direction.
func (v Vector3) IsZero() bool { return v.Len() < degenerateLength }

// IsFinite reports whether every component is a real number.
func (v Vector3) IsFinite() bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsNaN(v.Z) &&
		!math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0) && !math.IsInf(v.Z, 0)
}

// Normalize returns the unit vector along v. ok is false for degenerate input,
// in which case the zero vector is returned and callers skip the dependent update.
func (v Vector3) Normalize() (Vector3, bool) {
	length := v.Len()
	if length < degenerateLength || math.IsNaN(length) || math.IsInf(length, 0) {
		return Vector3{}, false
	}
	return v.Scale(1 / length), true
}

// Reproject rescales v so its magnitude equals radius. Degenerate input is returned unchanged.
func (v Vector3) Reproject(radius float64) (Vector3, bool) {
	unit, ok := v.Normalize()
	if !ok {
		return v, false
	}
	return unit.Scale(radius), true
}

// Lerp moves v toward target by factor t in [0,1].
func (v Vector3) Lerp(target Vector3, t float64) Vector3 {
	return v.Add(target.Sub(v).Scale(t))
}

// RandomOnSphere returns a point uniformly distributed on a sphere of the given radius.
func RandomOnSphere(rng *rand.Rand, radius float64) Vector3 {
	//1.- Sample the height uniformly then spread the azimuth so area is preserved.
	z := 2*rng.Float64() - 1
	theta := 2 * math.Pi * rng.Float64()
	ring := math.Sqrt(1 - z*z)
	point := Vector3{X: ring * math.Cos(theta), Y: ring * math.Sin(theta), Z: z}
	//2.- Reproject to absorb rounding so the magnitude matches the radius exactly.
	if projected, ok := point.Reproject(radius); ok {
		return projected
	}
	return Vector3{Y: radius}
}
