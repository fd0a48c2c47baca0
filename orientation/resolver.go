// Package orientation turns rotation-vector sensor samples into compass
// headings.
package orientation

import (
	"math"

	"github.com/w1xm/compass_interface/azimuth"
	"github.com/w1xm/compass_interface/declination"
)

// Request is one sensor sample plus the context needed to resolve it.
type Request struct {
	Vector   RotationVector
	Rotation DisplayRotation
	// TrueNorth asks for correction by the magnetic declination at Fix.
	TrueNorth bool
	// Fix may be nil; true north then degrades to magnetic north.
	Fix *declination.Fix
}

type Heading struct {
	// Azimuth is the heading to show: true when Corrected, else magnetic.
	Azimuth     azimuth.Azimuth
	Magnetic    azimuth.Azimuth
	Declination float64
	Corrected   bool
	// DeclinationErr is set when true north was requested with a fix but
	// the declination could not be computed. Azimuth is magnetic then.
	DeclinationErr error
}

// Resolver is stateless apart from its declination source and is safe for
// concurrent use. The zero value uses the World Magnetic Model.
type Resolver struct {
	Declination declination.Source
}

func (r *Resolver) source() declination.Source {
	if r == nil || r.Declination == nil {
		return declination.Default()
	}
	return r.Declination
}

// Magnetic returns the heading relative to magnetic north.
func (r *Resolver) Magnetic(v RotationVector, rot DisplayRotation) (azimuth.Azimuth, error) {
	newX, newY, err := rot.axes()
	if err != nil {
		return azimuth.Azimuth{}, err
	}
	m, err := RotationMatrix(v)
	if err != nil {
		return azimuth.Azimuth{}, err
	}
	remapped, err := Remap(m, newX, newY)
	if err != nil {
		return azimuth.Azimuth{}, err
	}
	az, _, _, err := Angles(remapped)
	if err != nil {
		return azimuth.Azimuth{}, err
	}
	return azimuth.FromDegrees(az * 180 / math.Pi)
}

// Resolve returns the heading for req. It fails only for samples that do
// not describe an orientation; a missing fix or failing declination model
// yields the magnetic heading.
func (r *Resolver) Resolve(req Request) (Heading, error) {
	magnetic, err := r.Magnetic(req.Vector, req.Rotation)
	if err != nil {
		return Heading{}, err
	}
	h := Heading{Azimuth: magnetic, Magnetic: magnetic}
	if !req.TrueNorth || req.Fix == nil {
		return h, nil
	}
	d, err := r.source().Declination(*req.Fix)
	if err != nil {
		h.DeclinationErr = err
		return h, nil
	}
	corrected, err := magnetic.Plus(d)
	if err != nil {
		h.DeclinationErr = err
		return h, nil
	}
	h.Azimuth = corrected
	h.Declination = d
	h.Corrected = true
	return h, nil
}
