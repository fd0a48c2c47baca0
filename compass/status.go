package compass

import (
	"fmt"
	"time"

	"github.com/w1xm/compass_interface/azimuth"
	"github.com/w1xm/compass_interface/orientation"
)

// Accuracy of the magnetic field sensor, as reported by the platform.
type Accuracy int

const (
	NoContact Accuracy = iota
	Unreliable
	Low
	Medium
	High
)

var accuracyNames = [...]string{"NO_CONTACT", "UNRELIABLE", "LOW", "MEDIUM", "HIGH"}

// AccuracyFromCode maps platform accuracy codes -1..3. Anything else is
// treated as no contact.
func AccuracyFromCode(code int) Accuracy {
	switch code {
	case 0:
		return Unreliable
	case 1:
		return Low
	case 2:
		return Medium
	case 3:
		return High
	}
	return NoContact
}

func (a Accuracy) String() string {
	if a < 0 || int(a) >= len(accuracyNames) {
		return fmt.Sprintf("Accuracy(%d)", int(a))
	}
	return accuracyNames[a]
}

func (a Accuracy) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Accuracy) UnmarshalText(text []byte) error {
	for i, name := range accuracyNames {
		if name == string(text) {
			*a = Accuracy(i)
			return nil
		}
	}
	return fmt.Errorf("unknown accuracy %q", text)
}

type LocationStatus int

const (
	NotPresent LocationStatus = iota
	Loading
	Present
	PermissionDenied
)

var locationNames = [...]string{"NOT_PRESENT", "LOADING", "PRESENT", "PERMISSION_DENIED"}

func (l LocationStatus) String() string {
	if l < 0 || int(l) >= len(locationNames) {
		return fmt.Sprintf("LocationStatus(%d)", int(l))
	}
	return locationNames[l]
}

func (l LocationStatus) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *LocationStatus) UnmarshalText(text []byte) error {
	for i, name := range locationNames {
		if name == string(text) {
			*l = LocationStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown location status %q", text)
}

// Status is a snapshot of the compass, emitted after every accepted sample
// and every change of settings or device state.
type Status struct {
	// Valid is false until the first sample has been resolved; the heading
	// fields are zero until then.
	Valid          bool                        `json:"valid"`
	Azimuth        float64                     `json:"azimuth"`
	Rounded        int                         `json:"rounded"`
	Cardinal       azimuth.CardinalDirection   `json:"cardinal"`
	// ScreenRotation turns a north-up dial to face the heading.
	ScreenRotation float64                     `json:"screen_rotation"`
	Magnetic       float64                     `json:"magnetic"`
	Declination    float64                     `json:"declination"`
	TrueNorth      bool                        `json:"true_north"`
	Feedback       bool                        `json:"feedback"`
	Accuracy       Accuracy                    `json:"accuracy"`
	Location       LocationStatus              `json:"location"`
	Rotation       orientation.DisplayRotation `json:"display_rotation"`
	Time           time.Time                   `json:"time"`
}

// Heading returns the reported azimuth as a value.
func (s Status) Heading() (azimuth.Azimuth, bool) {
	if !s.Valid {
		return azimuth.Azimuth{}, false
	}
	a, err := azimuth.FromDegrees(s.Azimuth)
	if err != nil {
		return azimuth.Azimuth{}, false
	}
	return a, true
}
