// Package crossing decides when a stream of headings has moved far enough
// to deserve a discrete feedback pulse.
package crossing

import (
	"errors"
	"fmt"
	"math"

	"github.com/w1xm/compass_interface/azimuth"
)

// DefaultInterval is the angular step between feedback pulses, in degrees.
const DefaultInterval = 2.0

var ErrInvalidInterval = errors.New("crossing interval must be in (0, 90]")

// Between reports whether x lies on the shorter arc from a to b, both ends
// included. It handles the 0°/360° seam.
func Between(x, a, b azimuth.Azimuth) bool {
	ab := a.Angle().Clockwise(b.Angle())
	ax := a.Angle().Clockwise(x.Angle())
	return (ab <= 180) != (ax > ab)
}

// Snap returns the multiple of interval nearest to deg, normalized.
func Snap(deg, interval float64) (azimuth.Azimuth, error) {
	return azimuth.FromDegrees(math.Round(deg/interval) * interval)
}

// Detector fires once each time the heading leaves the band of one
// interval around the last point it fired at.
//
// A Detector carries the state of a single stream of observations and
// must not be shared between goroutines without external locking.
type Detector struct {
	interval float64
	last     *azimuth.Azimuth
}

func NewDetector(interval float64) (*Detector, error) {
	if math.IsNaN(interval) || interval <= 0 || interval > 90 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInterval, interval)
	}
	return &Detector{interval: interval}, nil
}

func (d *Detector) Interval() float64 {
	return d.interval
}

// Last returns the point the detector last snapped to.
func (d *Detector) Last() (azimuth.Azimuth, bool) {
	if d.last == nil {
		return azimuth.Azimuth{}, false
	}
	return *d.last, true
}

// Reset forgets the last point; the next observation only records.
func (d *Detector) Reset() {
	d.last = nil
}

// Observe records current and reports whether feedback should fire now.
// The first observation never fires.
func (d *Detector) Observe(current azimuth.Azimuth) bool {
	if d.last == nil {
		d.snap(current)
		return false
	}
	start, err := d.last.Minus(d.interval)
	if err != nil {
		return false
	}
	end, err := d.last.Plus(d.interval)
	if err != nil {
		return false
	}
	if Between(current, start, end) {
		return false
	}
	d.snap(current)
	return true
}

func (d *Detector) snap(current azimuth.Azimuth) {
	// Finite heading over a finite, non-zero interval: Snap cannot fail.
	p, err := Snap(current.Degrees(), d.interval)
	if err != nil {
		p = current
	}
	d.last = &p
}
