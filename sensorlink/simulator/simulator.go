// Package simulator provides an orientation sensor that speaks the
// sensorlink line protocol over an in-memory pipe.
package simulator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/w1xm/compass_interface/declination"
	"github.com/w1xm/compass_interface/orientation"
	"github.com/w1xm/compass_interface/sensorlink"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// state is what the simulated device knows. Fields with a report tag are
// sent when they change and when polled with the tag.
type state struct {
	Accuracy int    `report:"AC"`
	Rotation int    `report:"DR"`
	Version  string `report:"VE"`

	// Heading of the top of the device, in degrees clockwise from north.
	Heading float64
	// Pitch raises the top of the device, in degrees.
	Pitch float64
	// Rate turns the device, in degrees/second.
	Rate float64

	Fix *declination.Fix
}

type Simulator struct {
	conn   io.ReadWriteCloser
	mu     sync.Mutex
	status state
	last   state
}

const (
	// Discrete simulation step size, also the sample period.
	stepSize = 25 * time.Millisecond
	// Cap on the turn rate in degrees/second.
	maxRate = 360
	// Heading reported for a device lying flat due north.
	northOffset = 1e-6
)

// New returns a simulator and the host end of its connection. The device
// starts lying flat, pointing north, with high accuracy.
func New() (*Simulator, net.Conn) {
	a, b := net.Pipe()
	s := &Simulator{conn: a, status: state{Version: "sim", Accuracy: 3}}
	// Force a full report on the first step.
	s.last = state{Accuracy: -2, Rotation: -1}
	return s, b
}

func (s *Simulator) Run(ctx context.Context) error {
	t := time.NewTicker(stepSize)
	defer t.Stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			if err := s.step(); err != nil {
				return err
			}
		}
	})
	g.Go(s.reader)
	return g.Wait()
}

func (s *Simulator) reader() error {
	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		zap.S().Debugf("srv->sim: %s", input)
		if err := s.parseInput(input); err != nil {
			zap.S().Debugf("parsing %q: %v", input, err)
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading port: %w", err)
	}
	return io.EOF
}

func (s *Simulator) parseInput(input string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch input {
	case "VE", "AC":
		return s.sendStatus(nil, input)
	}
	return fmt.Errorf("unknown command %q", input)
}

func (s *Simulator) step() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if serr := s.sendStatus(&s.last, ""); serr != nil {
			zap.S().Debugf("sending status: %v", serr)
			if err == nil {
				err = serr
			}
		}
		s.last = s.status
	}()
	s.status.Heading = math.Mod(s.status.Heading+s.status.Rate*stepSize.Seconds()+360, 360)
	if err := s.send(sensorlink.FormatRotationVector(s.sample())); err != nil {
		return err
	}
	if s.status.Fix != s.last.Fix {
		if s.status.Fix == nil {
			return s.send("GN")
		}
		return s.send(sensorlink.FormatFix(*s.status.Fix))
	}
	return nil
}

// sample is the rotation vector for the current pose. Lying flat due north
// is the zero vector, which carries no orientation; the device reports a
// hair east of north instead. Must be called with mu held.
func (s *Simulator) sample() orientation.RotationVector {
	v := orientation.FromHeadingPitch(s.status.Heading, s.status.Pitch)
	if v == (orientation.RotationVector{}) {
		v = orientation.FromHeadingPitch(northOffset, s.status.Pitch)
	}
	return v
}

// sendStatus reports tagged fields: the one named by cmd, or with an empty
// cmd every field that differs from old (all of them if old is nil).
func (s *Simulator) sendStatus(old *state, cmd string) error {
	var oldv reflect.Value
	if old != nil {
		oldv = reflect.ValueOf(*old)
	}
	v := reflect.ValueOf(s.status)
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		tag := field.Tag.Get("report")
		if tag == "" || tag == "-" {
			continue
		}
		fv := v.Field(i)
		value := fv.Interface()
		if (cmd != "" && cmd != tag) || (cmd == "" && old != nil && reflect.DeepEqual(value, oldv.Field(i).Interface())) {
			continue
		}
		switch fv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if err := s.send("%s%d", tag, value); err != nil {
				return err
			}
		case reflect.Float32, reflect.Float64:
			if err := s.send("%s%g", tag, value); err != nil {
				return err
			}
		case reflect.String:
			if err := s.send("%s%s", tag, value); err != nil {
				return err
			}
		default:
			return fmt.Errorf("don't know how to send %s: %q (value %+v)", field.Name, tag, value)
		}
	}
	return nil
}

func (s *Simulator) send(cmd string, fields ...interface{}) error {
	if len(fields) > 0 {
		cmd = fmt.Sprintf(cmd, fields...)
	}
	zap.S().Debugf("sim->srv: %s", cmd)
	_, err := fmt.Fprintf(s.conn, "%s\n", cmd)
	return err
}

func (s *Simulator) SetHeading(degrees float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Heading = math.Mod(math.Mod(degrees, 360)+360, 360)
}

func (s *Simulator) Heading() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status.Heading
}

// SetRate turns the device at degrees/second; negative turns
// counterclockwise.
func (s *Simulator) SetRate(degrees float64) {
	if degrees > maxRate {
		degrees = maxRate
	} else if degrees < -maxRate {
		degrees = -maxRate
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Rate = degrees
}

// SetPitch raises the top of the device; it must stay within ±80°.
func (s *Simulator) SetPitch(degrees float64) error {
	if math.IsNaN(degrees) || math.Abs(degrees) > 80 {
		return fmt.Errorf("pitch %v out of range", degrees)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Pitch = degrees
	return nil
}

func (s *Simulator) SetAccuracy(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Accuracy = code
}

func (s *Simulator) SetRotation(r orientation.DisplayRotation) error {
	if _, err := orientation.ParseDisplayRotation(int(r)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Rotation = int(r)
	return nil
}

// SetFix gives the device a geolocation; nil reports it lost.
func (s *Simulator) SetFix(fix *declination.Fix) error {
	if fix != nil {
		if err := fix.Validate(); err != nil {
			return err
		}
		f := *fix
		fix = &f
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Fix = fix
	return nil
}

func (s *Simulator) SetVersion(version string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Version = version
}
