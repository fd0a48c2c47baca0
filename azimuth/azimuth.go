// Package azimuth implements compass headings: degrees clockwise from north,
// kept in [0, 360), with their rounded value and cardinal direction.
package azimuth

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/w1xm/compass_interface/angle"
)

// Azimuth is an immutable heading. Two Azimuths are equal (== and as map
// keys) exactly when their normalized degrees are bit-identical; there is
// no tolerance, so 359.9999999° and 0.0000001° are different headings.
type Azimuth struct {
	angle    angle.Angle
	rounded  int
	cardinal CardinalDirection
}

// FromDegrees normalizes deg into [0, 360).
// It fails with angle.ErrNotFinite for NaN and infinities.
func FromDegrees(deg float64) (Azimuth, error) {
	a, err := angle.Normalize(deg)
	if err != nil {
		return Azimuth{}, fmt.Errorf("azimuth: %w", err)
	}
	return fromAngle(a), nil
}

// MustFromDegrees is like FromDegrees but panics on non-finite input.
func MustFromDegrees(deg float64) Azimuth {
	a, err := FromDegrees(deg)
	if err != nil {
		panic(err)
	}
	return a
}

func fromAngle(a angle.Angle) Azimuth {
	deg := a.Degrees()
	return Azimuth{
		angle:    a,
		rounded:  int(math.Round(deg)) % 360,
		cardinal: cardinalOf(deg),
	}
}

func (a Azimuth) Degrees() float64 {
	return a.angle.Degrees()
}

func (a Azimuth) Angle() angle.Angle {
	return a.angle
}

// RoundedDegrees is the heading rounded to a whole degree in [0, 360).
// 359.6° rounds to 0.
func (a Azimuth) RoundedDegrees() int {
	return a.rounded
}

func (a Azimuth) CardinalDirection() CardinalDirection {
	return a.cardinal
}

// Plus returns the heading delta degrees clockwise of a.
func (a Azimuth) Plus(delta float64) (Azimuth, error) {
	sum, err := a.angle.Add(delta)
	if err != nil {
		return Azimuth{}, fmt.Errorf("azimuth: %w", err)
	}
	return fromAngle(sum), nil
}

// Minus returns the heading delta degrees counter-clockwise of a.
func (a Azimuth) Minus(delta float64) (Azimuth, error) {
	diff, err := a.angle.Sub(delta)
	if err != nil {
		return Azimuth{}, fmt.Errorf("azimuth: %w", err)
	}
	return fromAngle(diff), nil
}

// Compare orders headings by normalized degrees. It is a total order on
// [0, 360), not a measure of closeness: 359° is greater than 1°.
func (a Azimuth) Compare(b Azimuth) int {
	return a.angle.Compare(b.angle)
}

func (a Azimuth) Equal(b Azimuth) bool {
	return a.Degrees() == b.Degrees()
}

// ScreenRotation is the rotation to apply to a north-up dial so that it
// points at the heading.
func (a Azimuth) ScreenRotation() float64 {
	return -a.Degrees()
}

func (a Azimuth) String() string {
	return fmt.Sprintf("Azimuth(degrees:%g)", a.Degrees())
}

func (a Azimuth) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Degrees())
}

func (a *Azimuth) UnmarshalJSON(data []byte) error {
	var deg float64
	if err := json.Unmarshal(data, &deg); err != nil {
		return err
	}
	v, err := FromDegrees(deg)
	if err != nil {
		return err
	}
	*a = v
	return nil
}
