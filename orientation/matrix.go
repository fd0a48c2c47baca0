package orientation

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

var ErrDegenerate = errors.New("degenerate orientation")

// unitTolerance is how far past unit length a rotation vector may be
// before it is rejected rather than clamped; sensors overshoot slightly.
const unitTolerance = 1e-2

// headingEpsilon bounds the horizontal projection of the Y axis below
// which azimuth is undefined (device Y axis pointing at zenith or nadir).
const headingEpsilon = 1e-9

// RotationVector is the x, y, z part of a unit quaternion reported by a
// rotation-vector sensor; the scalar part is implied.
type RotationVector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (v RotationVector) finite() bool {
	for _, c := range []float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Quaternion reconstructs the unit quaternion the vector encodes.
func (v RotationVector) Quaternion() (quat.Number, error) {
	if !v.finite() {
		return quat.Number{}, fmt.Errorf("%w: non-finite rotation vector %+v", ErrDegenerate, v)
	}
	n2 := v.X*v.X + v.Y*v.Y + v.Z*v.Z
	switch {
	case n2 == 0:
		return quat.Number{}, fmt.Errorf("%w: zero rotation vector", ErrDegenerate)
	case n2 > (1+unitTolerance)*(1+unitTolerance):
		return quat.Number{}, fmt.Errorf("%w: rotation vector length %v exceeds 1", ErrDegenerate, math.Sqrt(n2))
	}
	w := 0.0
	if n2 < 1 {
		w = math.Sqrt(1 - n2)
	}
	q := quat.Number{Real: w, Imag: v.X, Jmag: v.Y, Kmag: v.Z}
	return quat.Scale(1/quat.Abs(q), q), nil
}

// FromHeadingPitch returns the vector a sensor reports when the top of the
// device points at heading degrees clockwise from north and is raised by
// pitch degrees.
func FromHeadingPitch(heading, pitch float64) RotationVector {
	yaw := quat.Number{
		Real: math.Cos(-heading * math.Pi / 360),
		Kmag: math.Sin(-heading * math.Pi / 360),
	}
	tilt := quat.Number{
		Real: math.Cos(pitch * math.Pi / 360),
		Imag: math.Sin(pitch * math.Pi / 360),
	}
	q := quat.Mul(yaw, tilt)
	// Sensors imply a non-negative scalar part.
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return RotationVector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
}

// RotationMatrix converts the vector to a 3x3 matrix mapping device
// coordinates to world (east, north, up) coordinates.
func RotationMatrix(v RotationVector) (*mat.Dense, error) {
	q, err := v.Quaternion()
	if err != nil {
		return nil, err
	}
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	}), nil
}

// Axis names a device axis, optionally negated.
type Axis int

const (
	AxisX Axis = iota + 1
	AxisY
	AxisZ
	AxisMinusX = -AxisX
	AxisMinusY = -AxisY
	AxisMinusZ = -AxisZ
)

func (a Axis) index() int {
	if a < 0 {
		return int(-a) - 1
	}
	return int(a) - 1
}

func (a Axis) sign() float64 {
	if a < 0 {
		return -1
	}
	return 1
}

func (a Axis) valid() bool {
	return a != 0 && a >= AxisMinusZ && a <= AxisZ
}

// Remap rewrites m so that newX and newY become its X and Y axes. The new
// Z axis completes a right-handed frame.
func Remap(m mat.Matrix, newX, newY Axis) (*mat.Dense, error) {
	if !newX.valid() || !newY.valid() || newX.index() == newY.index() {
		return nil, fmt.Errorf("invalid axis remap (%d, %d)", newX, newY)
	}
	x, y := newX.index(), newY.index()
	z := 3 - x - y
	// The new Z is +old Z when (x, y, z) is an even permutation.
	zSign := newX.sign() * newY.sign()
	if (y-x+3)%3 != 1 {
		zSign = -zSign
	}

	p := mat.NewDense(3, 3, nil)
	p.Set(0, x, newX.sign())
	p.Set(1, y, newY.sign())
	p.Set(2, z, zSign)

	var out mat.Dense
	out.Mul(m, p)
	return &out, nil
}

// Angles extracts azimuth, pitch and roll in radians from a rotation matrix.
func Angles(m mat.Matrix) (azimuth, pitch, roll float64, err error) {
	if math.Hypot(m.At(0, 1), m.At(1, 1)) < headingEpsilon {
		return 0, 0, 0, fmt.Errorf("%w: azimuth undefined with Y axis vertical", ErrDegenerate)
	}
	azimuth = math.Atan2(m.At(0, 1), m.At(1, 1))
	pitch = math.Asin(clamp(-m.At(2, 1)))
	roll = math.Atan2(-m.At(2, 0), m.At(2, 2))
	return azimuth, pitch, roll, nil
}

func clamp(f float64) float64 {
	return math.Max(-1, math.Min(1, f))
}
