package angle

import (
	"errors"
	"fmt"
	"math"
)

// ErrNotFinite is returned when an angle is built from NaN or an infinity.
var ErrNotFinite = errors.New("angle is not finite")

// Angle is a number of degrees kept in [0, 360).
// The zero value is 0°.
type Angle struct {
	deg float64
}

func normalize(deg float64) float64 {
	return math.Mod(math.Mod(deg, 360)+360, 360)
}

// Normalize wraps deg into [0, 360).
func Normalize(deg float64) (Angle, error) {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return Angle{}, fmt.Errorf("%w: %v", ErrNotFinite, deg)
	}
	return Angle{deg: normalize(deg)}, nil
}

// MustNormalize is like Normalize but panics on non-finite input.
func MustNormalize(deg float64) Angle {
	a, err := Normalize(deg)
	if err != nil {
		panic(err)
	}
	return a
}

func (a Angle) Degrees() float64 {
	return a.deg
}

// Add returns a+delta wrapped into [0, 360).
func (a Angle) Add(delta float64) (Angle, error) {
	return Normalize(a.deg + delta)
}

// Sub returns a-delta wrapped into [0, 360).
func (a Angle) Sub(delta float64) (Angle, error) {
	return Normalize(a.deg - delta)
}

// Compare orders angles by their normalized value: -1, 0 or +1.
// 359° sorts after 1°; this is not a circular distance.
func (a Angle) Compare(b Angle) int {
	switch {
	case a.deg < b.deg:
		return -1
	case a.deg > b.deg:
		return 1
	}
	return 0
}

// Clockwise returns how far b lies clockwise of a, in [0, 360).
func (a Angle) Clockwise(b Angle) float64 {
	return normalize(b.deg - a.deg)
}

// Signed returns the angle in (-180, 180].
func (a Angle) Signed() float64 {
	if a.deg > 180 {
		return a.deg - 360
	}
	return a.deg
}

func (a Angle) String() string {
	return fmt.Sprintf("%g°", a.deg)
}
