// Package compass runs a heading session over one stream of sensor
// samples: it resolves each sample, tracks device state and settings, and
// reports a Status after every change.
package compass

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/w1xm/compass_interface/crossing"
	"github.com/w1xm/compass_interface/declination"
	"github.com/w1xm/compass_interface/orientation"
	"github.com/w1xm/compass_interface/sensor"
	"go.uber.org/zap"
)

type StatusCallback func(status Status)

type Settings struct {
	TrueNorth      bool `json:"true_north" yaml:"true_north"`
	HapticFeedback bool `json:"haptic_feedback" yaml:"haptic_feedback"`
	// FeedbackInterval is the heading step between feedback pulses, in degrees.
	FeedbackInterval float64 `json:"feedback_interval" yaml:"feedback_interval"`
}

func DefaultSettings() Settings {
	return Settings{
		TrueNorth:        false,
		HapticFeedback:   true,
		FeedbackInterval: crossing.DefaultInterval,
	}
}

func (s Settings) Validate() error {
	_, err := crossing.NewDetector(s.FeedbackInterval)
	return err
}

// Compass is safe for concurrent use. The StatusCallback is called with
// statuses in the order the changes were applied, never concurrently, and
// without Compass locks held, so it may call back into the Compass.
type Compass struct {
	resolver       *orientation.Resolver
	statusCallback StatusCallback
	now            func() time.Time

	// notifyMu orders callbacks; it is taken before mu is released.
	notifyMu sync.Mutex

	mu       sync.Mutex
	settings Settings
	detector *crossing.Detector
	fix      *declination.Fix
	location LocationStatus
	accuracy Accuracy
	rotation orientation.DisplayRotation
	status   Status
	// lastDeclinationErr suppresses repeated logging of the same failure.
	lastDeclinationErr string
}

// New creates a session. A nil resolver uses the World Magnetic Model, and
// a nil statusCallback discards statuses.
func New(settings Settings, resolver *orientation.Resolver, statusCallback StatusCallback) (*Compass, error) {
	detector, err := crossing.NewDetector(settings.FeedbackInterval)
	if err != nil {
		return nil, err
	}
	if resolver == nil {
		resolver = &orientation.Resolver{}
	}
	if statusCallback == nil {
		statusCallback = func(Status) {}
	}
	c := &Compass{
		resolver:       resolver,
		statusCallback: statusCallback,
		now:            time.Now,
		settings:       settings,
		detector:       detector,
	}
	c.status = c.snapshot(c.now())
	return c, nil
}

// snapshot fills the device and settings fields of the last status.
// Must be called with mu held.
func (c *Compass) snapshot(t time.Time) Status {
	s := c.status
	s.Feedback = false
	s.Accuracy = c.accuracy
	s.Location = c.location
	s.Rotation = c.rotation
	s.Time = t
	return s
}

// publish stores s and delivers it. Must be called with mu held; returns
// with mu released.
func (c *Compass) publish(s Status) {
	c.status = s
	c.notifyMu.Lock()
	c.mu.Unlock()
	defer c.notifyMu.Unlock()
	c.statusCallback(s)
}

// Observe resolves one rotation-vector sample and reports the new status.
// Samples that do not describe an orientation are rejected and leave the
// status unchanged.
func (c *Compass) Observe(v orientation.RotationVector) (Status, error) {
	return c.observe(v, c.now())
}

func (c *Compass) observe(v orientation.RotationVector, t time.Time) (Status, error) {
	c.mu.Lock()
	h, err := c.resolver.Resolve(orientation.Request{
		Vector:    v,
		Rotation:  c.rotation,
		TrueNorth: c.settings.TrueNorth,
		Fix:       c.fix,
	})
	if err != nil {
		c.mu.Unlock()
		return Status{}, err
	}
	c.logDeclination(h.DeclinationErr)

	s := c.snapshot(t)
	s.Valid = true
	s.Azimuth = h.Azimuth.Degrees()
	s.Rounded = h.Azimuth.RoundedDegrees()
	s.Cardinal = h.Azimuth.CardinalDirection()
	s.ScreenRotation = h.Azimuth.ScreenRotation()
	s.Magnetic = h.Magnetic.Degrees()
	s.Declination = h.Declination
	s.TrueNorth = h.Corrected
	if c.settings.HapticFeedback {
		s.Feedback = c.detector.Observe(h.Azimuth)
	}
	c.publish(s)
	return s, nil
}

// Must be called with mu held.
func (c *Compass) logDeclination(err error) {
	if err == nil {
		c.lastDeclinationErr = ""
		return
	}
	if msg := err.Error(); msg != c.lastDeclinationErr {
		c.lastDeclinationErr = msg
		zap.S().Warnf("declination unavailable, reporting magnetic heading: %v", err)
	}
}

// HandleEvent applies a device event. It has the signature of a
// sensor.EventCallback.
func (c *Compass) HandleEvent(e sensor.Event) {
	t := e.Time
	if t.IsZero() {
		t = c.now()
	}
	switch e.Kind {
	case sensor.RotationVector:
		if _, err := c.observe(e.Vector, t); err != nil {
			zap.S().Debugf("dropping sample %+v: %v", e.Vector, err)
		}
	case sensor.Accuracy:
		c.SetAccuracy(AccuracyFromCode(e.Accuracy))
	case sensor.DisplayRotation:
		if err := c.SetRotation(e.Rotation); err != nil {
			zap.S().Warnf("display rotation: %v", err)
		}
	case sensor.Fix:
		fix := e.Fix
		if err := c.SetFix(&fix); err != nil {
			zap.S().Warnf("geolocation: %v", err)
		}
	case sensor.FixLost:
		c.SetFix(nil)
	case sensor.Version:
	default:
		zap.S().Debugf("ignoring %v event", e.Kind)
	}
}

// SetFix sets the geolocation used for true north. A nil fix clears it and
// marks the location as not present.
func (c *Compass) SetFix(fix *declination.Fix) error {
	if fix != nil {
		if err := fix.Validate(); err != nil {
			return err
		}
		f := *fix
		fix = &f
	}
	c.mu.Lock()
	if fixEqual(c.fix, fix) {
		c.mu.Unlock()
		return nil
	}
	c.resetOnNorthShift(c.fix != nil, fix != nil)
	c.fix = fix
	c.location = NotPresent
	if fix != nil {
		c.location = Present
	}
	c.publish(c.snapshot(c.now()))
	return nil
}

// resetOnNorthShift restarts the detector when gaining or losing a fix
// moves true-north headings by the declination. Must be called with mu held.
func (c *Compass) resetOnNorthShift(hadFix, hasFix bool) {
	if c.settings.TrueNorth && hadFix != hasFix {
		c.detector.Reset()
	}
}

func fixEqual(a, b *declination.Fix) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Latitude == b.Latitude && a.Longitude == b.Longitude && a.Altitude == b.Altitude && a.Time.Equal(b.Time)
}

func (c *Compass) Fix() (declination.Fix, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fix == nil {
		return declination.Fix{}, false
	}
	return *c.fix, true
}

// SetLocationStatus records progress of a location request. Present is set
// by SetFix; setting any other status drops the current fix.
func (c *Compass) SetLocationStatus(l LocationStatus) error {
	if l < NotPresent || l > PermissionDenied {
		return fmt.Errorf("unknown location status %d", int(l))
	}
	if l == Present {
		return errors.New("location present requires a fix")
	}
	c.mu.Lock()
	if c.location == l {
		c.mu.Unlock()
		return nil
	}
	c.resetOnNorthShift(c.fix != nil, false)
	c.location = l
	c.fix = nil
	c.publish(c.snapshot(c.now()))
	return nil
}

func (c *Compass) SetAccuracy(a Accuracy) {
	c.mu.Lock()
	if c.accuracy == a {
		c.mu.Unlock()
		return
	}
	c.accuracy = a
	c.publish(c.snapshot(c.now()))
}

// SetRotation changes the display rotation applied to later samples.
func (c *Compass) SetRotation(r orientation.DisplayRotation) error {
	if _, err := orientation.ParseDisplayRotation(int(r)); err != nil {
		return err
	}
	c.mu.Lock()
	if c.rotation == r {
		c.mu.Unlock()
		return nil
	}
	c.rotation = r
	c.publish(c.snapshot(c.now()))
	return nil
}

// SetSettings replaces the settings. Changing the feedback settings or the
// north reference restarts the feedback detector, so the next sample only
// records a starting point.
func (c *Compass) SetSettings(s Settings) error {
	return c.UpdateSettings(func(settings *Settings) {
		*settings = s
	})
}

// UpdateSettings applies update to the current settings atomically, then
// installs the result as SetSettings does. update runs with the Compass
// locked and must not call back into it.
func (c *Compass) UpdateSettings(update func(*Settings)) error {
	c.mu.Lock()
	old := c.settings
	s := old
	update(&s)
	if old == s {
		c.mu.Unlock()
		return nil
	}
	if s.FeedbackInterval != old.FeedbackInterval {
		detector, err := crossing.NewDetector(s.FeedbackInterval)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.detector = detector
	} else if s.HapticFeedback != old.HapticFeedback || s.TrueNorth != old.TrueNorth {
		c.detector.Reset()
	}
	c.settings = s
	c.publish(c.snapshot(c.now()))
	return nil
}

func (c *Compass) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Status returns the last published status.
func (c *Compass) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}
