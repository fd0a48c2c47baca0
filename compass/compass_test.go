package compass

import (
	"encoding/json"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/w1xm/compass_interface/azimuth"
	"github.com/w1xm/compass_interface/crossing"
	"github.com/w1xm/compass_interface/declination"
	"github.com/w1xm/compass_interface/orientation"
	"github.com/w1xm/compass_interface/sensor"
)

var (
	testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	testFix  = declination.Fix{Latitude: 42.36, Longitude: -71.09, Altitude: 10, Time: testTime}
)

func yaw(heading float64) orientation.RotationVector {
	return orientation.RotationVector{Z: math.Sin(-math.Remainder(heading, 360) * math.Pi / 360)}
}

func circularDiff(a, b float64) float64 {
	return math.Abs(math.Remainder(a-b, 360))
}

// newTestCompass returns a session whose declination is always 10° east
// and a pointer to the statuses it has published.
func newTestCompass(t *testing.T, settings Settings) (*Compass, *[]Status) {
	t.Helper()
	var statuses []Status
	resolver := &orientation.Resolver{Declination: declination.SourceFunc(func(declination.Fix) (float64, error) {
		return 10, nil
	})}
	c, err := New(settings, resolver, func(s Status) {
		statuses = append(statuses, s)
	})
	if err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return testTime }
	return c, &statuses
}

func TestNewRejectsInterval(t *testing.T) {
	s := DefaultSettings()
	s.FeedbackInterval = 0
	if _, err := New(s, nil, nil); !errors.Is(err, crossing.ErrInvalidInterval) {
		t.Errorf("New(interval 0) error = %v, want ErrInvalidInterval", err)
	}
	if err := s.Validate(); !errors.Is(err, crossing.ErrInvalidInterval) {
		t.Errorf("Validate() = %v, want ErrInvalidInterval", err)
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("DefaultSettings().Validate() = %v", err)
	}
}

func TestObserve(t *testing.T) {
	c, statuses := newTestCompass(t, DefaultSettings())
	s, err := c.Observe(yaw(30))
	if err != nil {
		t.Fatal(err)
	}
	want := Status{
		Valid:          true,
		Azimuth:        30,
		Rounded:        30,
		Cardinal:       azimuth.NorthEast,
		ScreenRotation: -30,
		Magnetic:       30,
		Time:           testTime,
	}
	if diff := cmp.Diff(s, want, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("unexpected status: got(-)/want(+):\n%s", diff)
	}
	if len(*statuses) != 1 || (*statuses)[0] != s {
		t.Errorf("published %+v, want [%+v]", *statuses, s)
	}
	if got := c.Status(); got != s {
		t.Errorf("Status() = %+v, want %+v", got, s)
	}
	if h, ok := s.Heading(); !ok || circularDiff(h.Degrees(), 30) > 1e-9 {
		t.Errorf("Heading() = %v, %v", h, ok)
	}
}

func TestObserveRejectsDegenerate(t *testing.T) {
	c, statuses := newTestCompass(t, DefaultSettings())
	before := c.Status()
	if _, err := c.Observe(orientation.RotationVector{}); !errors.Is(err, orientation.ErrDegenerate) {
		t.Errorf("Observe(zero) error = %v, want ErrDegenerate", err)
	}
	if len(*statuses) != 0 {
		t.Errorf("degenerate sample published %d statuses", len(*statuses))
	}
	if c.Status() != before {
		t.Error("degenerate sample changed the status")
	}
	if _, ok := before.Heading(); ok {
		t.Error("status before any sample has a heading")
	}
}

func feedback(t *testing.T, c *Compass, headings ...float64) []bool {
	t.Helper()
	var out []bool
	for _, h := range headings {
		s, err := c.Observe(yaw(h))
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, s.Feedback)
	}
	return out
}

func TestFeedback(t *testing.T) {
	for _, test := range []struct {
		name     string
		settings Settings
		headings []float64
		want     []bool
	}{
		{"default", DefaultSettings(), []float64{10, 11, 13.2, 14.5, 16.6}, []bool{false, false, true, false, true}},
		{"seam", DefaultSettings(), []float64{359.2, 0.5, 1.9, 2.6}, []bool{false, false, false, true}},
		{"haptic off", Settings{FeedbackInterval: 2}, []float64{10, 50, 90}, []bool{false, false, false}},
		{"wide interval", Settings{HapticFeedback: true, FeedbackInterval: 15}, []float64{0.3, 10, 20, 25, 40}, []bool{false, false, true, false, true}},
	} {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newTestCompass(t, test.settings)
			got := feedback(t, c, test.headings...)
			if diff := cmp.Diff(got, test.want); diff != "" {
				t.Errorf("unexpected feedback: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestTrueNorth(t *testing.T) {
	c, _ := newTestCompass(t, Settings{TrueNorth: true, HapticFeedback: true, FeedbackInterval: 2})

	s, err := c.Observe(yaw(355))
	if err != nil {
		t.Fatal(err)
	}
	if s.TrueNorth || circularDiff(s.Azimuth, 355) > 1e-9 {
		t.Errorf("without fix: azimuth %v true north %v, want magnetic 355", s.Azimuth, s.TrueNorth)
	}

	if err := c.SetFix(&testFix); err != nil {
		t.Fatal(err)
	}
	s, err = c.Observe(yaw(355))
	if err != nil {
		t.Fatal(err)
	}
	if !s.TrueNorth || circularDiff(s.Azimuth, 5) > 1e-9 || circularDiff(s.Magnetic, 355) > 1e-9 || s.Declination != 10 {
		t.Errorf("with fix: got %+v, want true azimuth 5 from magnetic 355", s)
	}
	if s.Cardinal != azimuth.North || s.Rounded != 5 {
		t.Errorf("with fix: cardinal %v rounded %v, want NORTH 5", s.Cardinal, s.Rounded)
	}
}

func TestDeclinationFailureReportsMagnetic(t *testing.T) {
	resolver := &orientation.Resolver{Declination: declination.SourceFunc(func(declination.Fix) (float64, error) {
		return 0, errors.New("no model")
	})}
	c, err := New(Settings{TrueNorth: true, FeedbackInterval: 2}, resolver, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.SetFix(&testFix); err != nil {
		t.Fatal(err)
	}
	s, err := c.Observe(yaw(120))
	if err != nil {
		t.Fatal(err)
	}
	if s.TrueNorth || circularDiff(s.Azimuth, 120) > 1e-9 {
		t.Errorf("got %+v, want magnetic 120", s)
	}
}

func TestHandleEvent(t *testing.T) {
	c, statuses := newTestCompass(t, DefaultSettings())
	lost := testTime.Add(time.Minute)
	for _, e := range []sensor.Event{
		{Kind: sensor.Version, Version: "1.0"},
		{Kind: sensor.Accuracy, Accuracy: 3},
		{Kind: sensor.Accuracy, Accuracy: 3},
		{Kind: sensor.DisplayRotation, Rotation: orientation.Rotation90},
		{Kind: sensor.DisplayRotation, Rotation: orientation.DisplayRotation(45)},
		{Kind: sensor.Fix, Fix: testFix},
		{Kind: sensor.Fix, Fix: declination.Fix{Latitude: 91, Time: testTime}},
		{Kind: sensor.RotationVector, Vector: yaw(20)},
		{Kind: sensor.RotationVector},
		{Kind: sensor.FixLost, Time: lost},
	} {
		c.HandleEvent(e)
	}
	want := []Status{
		{Accuracy: High, Time: testTime},
		{Accuracy: High, Rotation: orientation.Rotation90, Time: testTime},
		{Accuracy: High, Rotation: orientation.Rotation90, Location: Present, Time: testTime},
		{
			Valid:          true,
			Azimuth:        110,
			Rounded:        110,
			Cardinal:       azimuth.East,
			ScreenRotation: -110,
			Magnetic:       110,
			Accuracy:       High,
			Location:       Present,
			Rotation:       orientation.Rotation90,
			Time:           testTime,
		},
		{
			Valid:          true,
			Azimuth:        110,
			Rounded:        110,
			Cardinal:       azimuth.East,
			ScreenRotation: -110,
			Magnetic:       110,
			Accuracy:       High,
			Location:       NotPresent,
			Rotation:       orientation.Rotation90,
			Time:           testTime,
		},
	}
	if diff := cmp.Diff(*statuses, want, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("unexpected statuses: got(-)/want(+):\n%s", diff)
	}
	if _, ok := c.Fix(); ok {
		t.Error("fix kept after FixLost")
	}
}

func TestLocationStatus(t *testing.T) {
	c, statuses := newTestCompass(t, DefaultSettings())
	if err := c.SetLocationStatus(Present); err == nil {
		t.Error("SetLocationStatus(Present) succeeded without a fix")
	}
	if err := c.SetLocationStatus(LocationStatus(9)); err == nil {
		t.Error("SetLocationStatus(9) succeeded")
	}
	if err := c.SetFix(&testFix); err != nil {
		t.Fatal(err)
	}
	if err := c.SetLocationStatus(PermissionDenied); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Fix(); ok {
		t.Error("fix kept after permission denied")
	}
	var got []LocationStatus
	for _, s := range *statuses {
		got = append(got, s.Location)
	}
	if diff := cmp.Diff(got, []LocationStatus{Present, PermissionDenied}); diff != "" {
		t.Errorf("unexpected location statuses: got(-)/want(+):\n%s", diff)
	}
	if err := c.SetFix(&declination.Fix{Latitude: math.NaN(), Time: testTime}); !errors.Is(err, declination.ErrInvalidFix) {
		t.Errorf("SetFix(NaN) error = %v, want ErrInvalidFix", err)
	}
}

func TestSetSettingsResetsDetector(t *testing.T) {
	for _, test := range []struct {
		name   string
		change func(*Settings)
		want   bool
	}{
		{"unchanged", func(*Settings) {}, true},
		{"interval", func(s *Settings) { s.FeedbackInterval = 1 }, false},
		{"haptic toggled", func(s *Settings) { s.HapticFeedback = false }, false},
		{"true north", func(s *Settings) { s.TrueNorth = true }, false},
	} {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newTestCompass(t, DefaultSettings())
			feedback(t, c, 100)
			s := c.Settings()
			test.change(&s)
			if err := c.SetSettings(s); err != nil {
				t.Fatal(err)
			}
			if test.name == "haptic toggled" {
				s.HapticFeedback = true
				if err := c.SetSettings(s); err != nil {
					t.Fatal(err)
				}
			}
			if got := feedback(t, c, 105); got[0] != test.want {
				t.Errorf("feedback after change = %v, want %v", got[0], test.want)
			}
		})
	}
}

func TestFixChangeResetsDetector(t *testing.T) {
	trueNorth := DefaultSettings()
	trueNorth.TrueNorth = true
	for _, test := range []struct {
		name     string
		settings Settings
		before   *declination.Fix
		change   func(c *Compass) error
		// want is the feedback for a stationary sample, then a 3° turn.
		want []bool
	}{
		{"fix arrives", trueNorth, nil, func(c *Compass) error { return c.SetFix(&testFix) }, []bool{false, true}},
		{"fix lost", trueNorth, &testFix, func(c *Compass) error { return c.SetFix(nil) }, []bool{false, true}},
		{"permission denied", trueNorth, &testFix, func(c *Compass) error { return c.SetLocationStatus(PermissionDenied) }, []bool{false, true}},
		{"magnetic north", DefaultSettings(), nil, func(c *Compass) error { return c.SetFix(&testFix) }, []bool{false, true}},
	} {
		t.Run(test.name, func(t *testing.T) {
			c, _ := newTestCompass(t, test.settings)
			if err := c.SetFix(test.before); err != nil {
				t.Fatal(err)
			}
			feedback(t, c, 100)
			if err := test.change(c); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(feedback(t, c, 100, 103), test.want); diff != "" {
				t.Errorf("unexpected feedback: got(-)/want(+):\n%s", diff)
			}
		})
	}
}

func TestUpdateSettingsConcurrent(t *testing.T) {
	c, _ := newTestCompass(t, DefaultSettings())
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for n := 0; n < 200; n++ {
				var err error
				if i == 0 {
					err = c.UpdateSettings(func(s *Settings) { s.TrueNorth = n%2 == 0 || n == 199 })
				} else {
					err = c.UpdateSettings(func(s *Settings) { s.FeedbackInterval = float64(1 + n%5) })
				}
				if err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()
	want := Settings{TrueNorth: true, HapticFeedback: true, FeedbackInterval: 5}
	if got := c.Settings(); got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
	if err := c.UpdateSettings(func(s *Settings) { s.FeedbackInterval = 0 }); !errors.Is(err, crossing.ErrInvalidInterval) {
		t.Errorf("UpdateSettings(interval 0) error = %v, want ErrInvalidInterval", err)
	}
	if got := c.Settings(); got != want {
		t.Errorf("settings after rejected update = %+v, want %+v", got, want)
	}
}

func TestSetSettingsInvalid(t *testing.T) {
	c, statuses := newTestCompass(t, DefaultSettings())
	for _, interval := range []float64{-1, 0, 91, math.NaN()} {
		if err := c.SetSettings(Settings{HapticFeedback: true, FeedbackInterval: interval}); !errors.Is(err, crossing.ErrInvalidInterval) {
			t.Errorf("SetSettings(interval %v) error = %v, want ErrInvalidInterval", interval, err)
		}
	}
	if c.Settings() != DefaultSettings() {
		t.Errorf("settings changed to %+v", c.Settings())
	}
	if len(*statuses) != 0 {
		t.Errorf("invalid settings published %d statuses", len(*statuses))
	}
}

func TestCallbackMayReenter(t *testing.T) {
	var c *Compass
	var seen []Status
	c, err := New(DefaultSettings(), nil, func(s Status) {
		seen = append(seen, c.Status())
	})
	if err != nil {
		t.Fatal(err)
	}
	c.SetAccuracy(Medium)
	if len(seen) != 1 || seen[0].Accuracy != Medium {
		t.Errorf("callback saw %+v", seen)
	}
}

func TestAccuracyFromCode(t *testing.T) {
	for code, want := range map[int]Accuracy{-1: NoContact, 0: Unreliable, 1: Low, 2: Medium, 3: High, 4: NoContact, -7: NoContact} {
		if got := AccuracyFromCode(code); got != want {
			t.Errorf("AccuracyFromCode(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestStatusJSON(t *testing.T) {
	s := Status{
		Valid:          true,
		Azimuth:        91.5,
		Rounded:        92,
		Cardinal:       azimuth.East,
		ScreenRotation: -91.5,
		Magnetic:       91.5,
		Accuracy:       Medium,
		Location:       Loading,
		Rotation:       orientation.Rotation270,
		Time:           testTime,
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatal(err)
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		t.Fatal(err)
	}
	want := map[string]interface{}{
		"valid":            true,
		"azimuth":          91.5,
		"rounded":          92.0,
		"cardinal":         "EAST",
		"screen_rotation":  -91.5,
		"magnetic":         91.5,
		"declination":      0.0,
		"true_north":       false,
		"feedback":         false,
		"accuracy":         "MEDIUM",
		"location":         "LOADING",
		"display_rotation": 270.0,
		"time":             "2024-03-01T12:00:00Z",
	}
	if diff := cmp.Diff(fields, want); diff != "" {
		t.Errorf("unexpected JSON: got(-)/want(+):\n%s", diff)
	}
	var back Status
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(back, s); diff != "" {
		t.Errorf("round trip: got(-)/want(+):\n%s", diff)
	}
}
