// Package declination computes the angle between magnetic and true north
// at a location and time.
package declination

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var ErrInvalidFix = errors.New("invalid geolocation fix")

// Fix is a geolocation sample. Altitude is meters above the WGS84 ellipsoid.
type Fix struct {
	Latitude  float64   `json:"latitude" yaml:"latitude"`
	Longitude float64   `json:"longitude" yaml:"longitude"`
	Altitude  float64   `json:"altitude" yaml:"altitude"`
	Time      time.Time `json:"time" yaml:"time"`
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (f Fix) Validate() error {
	switch {
	case !finite(f.Latitude) || !finite(f.Longitude) || !finite(f.Altitude):
		return fmt.Errorf("%w: non-finite coordinate", ErrInvalidFix)
	case f.Latitude < -90 || f.Latitude > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidFix, f.Latitude)
	case f.Longitude < -180 || f.Longitude > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidFix, f.Longitude)
	case f.Time.IsZero():
		return fmt.Errorf("%w: missing time", ErrInvalidFix)
	}
	return nil
}

// Source returns the declination in degrees, positive when magnetic north
// lies east of true north.
type Source interface {
	Declination(fix Fix) (float64, error)
}

type SourceFunc func(fix Fix) (float64, error)

func (f SourceFunc) Declination(fix Fix) (float64, error) {
	return f(fix)
}

// Memo remembers the last declination computed by Source. Fixes at the
// same position on the same UTC day share a result; the field drifts by
// far less than a display degree in that time.
type Memo struct {
	Source Source

	mu    sync.Mutex
	valid bool
	key   memoKey
	value float64
}

type memoKey struct {
	lat, lon, alt float64
	year, day     int
}

func keyOf(f Fix) memoKey {
	t := f.Time.UTC()
	return memoKey{f.Latitude, f.Longitude, f.Altitude, t.Year(), t.YearDay()}
}

func (m *Memo) Declination(fix Fix) (float64, error) {
	key := keyOf(fix)
	m.mu.Lock()
	if m.valid && m.key == key {
		v := m.value
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	v, err := m.Source.Declination(fix)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	m.valid, m.key, m.value = true, key, v
	m.mu.Unlock()
	return v, nil
}

var defaultSource = &Memo{Source: WMM{}}

// Default is the shared World Magnetic Model source.
func Default() Source {
	return defaultSource
}
