package declination

import (
	"fmt"

	"github.com/westphae/geomag/pkg/egm96"
	"github.com/westphae/geomag/pkg/wmm"
)

// WMM evaluates the World Magnetic Model.
type WMM struct{}

func (WMM) Declination(fix Fix) (float64, error) {
	if err := fix.Validate(); err != nil {
		return 0, err
	}
	loc := egm96.NewLocationGeodetic(fix.Latitude, fix.Longitude, fix.Altitude)
	field, err := wmm.CalculateWMMMagneticField(loc, fix.Time)
	if err != nil {
		return 0, fmt.Errorf("evaluating magnetic model at %v,%v: %w", fix.Latitude, fix.Longitude, err)
	}
	return field.D(), nil
}
