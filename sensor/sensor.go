// Package sensor holds the events orientation devices deliver and the
// contracts shared by the device links.
package sensor

import (
	"fmt"
	"time"

	"github.com/w1xm/compass_interface/declination"
	"github.com/w1xm/compass_interface/orientation"
)

type Kind int

const (
	// RotationVector carries a new orientation sample in Event.Vector.
	RotationVector Kind = iota
	// Accuracy carries the magnetic field sensor accuracy code in Event.Accuracy.
	Accuracy
	// DisplayRotation carries Event.Rotation.
	DisplayRotation
	// Fix carries a new geolocation in Event.Fix.
	Fix
	// FixLost reports that the device no longer has a geolocation.
	FixLost
	// Version carries the device firmware version in Event.Version.
	Version
)

var kindNames = [...]string{"RotationVector", "Accuracy", "DisplayRotation", "Fix", "FixLost", "Version"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Event is one report from a device. Only the fields matching Kind are set.
type Event struct {
	Kind Kind
	// Time the event was received by the host.
	Time time.Time

	Vector   orientation.RotationVector
	Accuracy int
	Rotation orientation.DisplayRotation
	Fix      declination.Fix
	Version  string
}

type EventCallback func(event Event)

// Source is a connected device. Events are delivered to the EventCallback
// the source was created with, from a single goroutine, until the source's
// context is canceled.
type Source interface {
	// Connected reports whether the device link is currently up.
	Connected() bool
	// Version is the last firmware version the device reported.
	Version() string
}
