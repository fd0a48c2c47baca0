package orientation

import (
	"errors"
	"fmt"
)

var ErrInvalidRotation = errors.New("invalid display rotation")

// DisplayRotation is the screen rotation from the device's natural
// orientation, in degrees.
type DisplayRotation int

const (
	Rotation0   DisplayRotation = 0
	Rotation90  DisplayRotation = 90
	Rotation180 DisplayRotation = 180
	Rotation270 DisplayRotation = 270
)

func ParseDisplayRotation(degrees int) (DisplayRotation, error) {
	r := DisplayRotation(degrees)
	if _, _, err := r.axes(); err != nil {
		return Rotation0, err
	}
	return r, nil
}

// FromSurface maps platform surface rotation codes 0-3. Unknown codes
// are treated as the natural orientation.
func FromSurface(code int) DisplayRotation {
	switch code {
	case 1:
		return Rotation90
	case 2:
		return Rotation180
	case 3:
		return Rotation270
	}
	return Rotation0
}

// axes returns the device axes that act as the screen's X and Y.
func (r DisplayRotation) axes() (newX, newY Axis, err error) {
	switch r {
	case Rotation0:
		return AxisX, AxisY, nil
	case Rotation90:
		return AxisY, AxisMinusX, nil
	case Rotation180:
		return AxisMinusX, AxisMinusY, nil
	case Rotation270:
		return AxisMinusY, AxisX, nil
	}
	return 0, 0, fmt.Errorf("%w: %d", ErrInvalidRotation, int(r))
}

func (r DisplayRotation) String() string {
	return fmt.Sprintf("%d°", int(r))
}
