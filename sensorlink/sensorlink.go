// Package sensorlink talks to an orientation sensor over a line protocol.
//
// Device to host, one record per line:
//
//	RVx,y,z               rotation vector sample
//	ACn                   magnetic sensor accuracy code (-1..3)
//	DRn                   display rotation in degrees (0, 90, 180, 270)
//	GFlat,lon,alt,millis  geolocation fix, time in Unix milliseconds
//	GN                    geolocation lost
//	VEtext                firmware version
//
// The host sends VE and AC once per second; the device answers them and
// streams RV records on its own.
package sensorlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tarm/serial"
	"github.com/w1xm/compass_interface/declination"
	"github.com/w1xm/compass_interface/orientation"
	"github.com/w1xm/compass_interface/sensor"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var pollCommands = []string{"VE", "AC"}

const pollInterval = 1 * time.Second

// Link is a connection to one sensor device.
type Link struct {
	eventCallback sensor.EventCallback
	now           func() time.Time

	mu      sync.Mutex
	conn    io.ReadWriteCloser
	version string
}

var _ sensor.Source = (*Link)(nil)

func newLink(eventCallback sensor.EventCallback) *Link {
	if eventCallback == nil {
		eventCallback = func(sensor.Event) {}
	}
	return &Link{eventCallback: eventCallback, now: time.Now}
}

type opener func(ctx context.Context) (io.ReadWriteCloser, error)

// ConnectTCP maintains a connection to a sensor at addr until ctx is done.
func ConnectTCP(ctx context.Context, addr string, eventCallback sensor.EventCallback) *Link {
	l := newLink(eventCallback)
	go l.reconnectLoop(ctx, addr, func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := &net.Dialer{
			Timeout: time.Second,
		}
		return dialer.DialContext(ctx, "tcp", addr)
	})
	return l
}

// OpenSerial maintains a connection to a sensor on a serial port until ctx
// is done.
func OpenSerial(ctx context.Context, port string, baud int, eventCallback sensor.EventCallback) *Link {
	l := newLink(eventCallback)
	go l.reconnectLoop(ctx, port, func(context.Context) (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	})
	return l
}

// Attach runs the protocol over an existing connection, such as one end of
// a simulator pipe. It does not reconnect. The returned channel receives
// the reason the link stopped.
func Attach(ctx context.Context, conn io.ReadWriteCloser, eventCallback sensor.EventCallback) (*Link, <-chan error) {
	l := newLink(eventCallback)
	l.setConn(conn)
	done := make(chan error, 1)
	go func() {
		err := l.watch(ctx)
		l.setConn(nil)
		done <- err
	}()
	return l, done
}

func (l *Link) setConn(conn io.ReadWriteCloser) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = conn
}

func (l *Link) reconnectLoop(ctx context.Context, name string, open opener) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		conn, err := open(ctx)
		if err != nil {
			zap.S().Infof("opening %q: %v", name, err)
			continue
		}
		zap.S().Infof("opened %q", name)
		l.setConn(conn)
		if err := l.watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zap.S().Warnf("watching %q: %v", name, err)
		}
		l.setConn(nil)
	}
}

// Connected reports whether a device connection is currently open.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

func (l *Link) Version() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// watch runs the reader and poller on the current connection until either
// fails or ctx is done, then closes the connection.
func (l *Link) watch(ctx context.Context) error {
	l.mu.Lock()
	conn := l.conn
	l.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Wait for context to be canceled, then close connection.
		<-ctx.Done()
		return conn.Close()
	})
	g.Go(func() error {
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			input := strings.TrimSpace(scanner.Text())
			if input == "" {
				continue
			}
			e, err := ParseLine(input)
			if err != nil {
				zap.S().Debugf("parsing %q: %v", input, err)
				continue
			}
			l.deliver(e)
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading port: %w", err)
		}
		return io.EOF
	})
	g.Go(func() error {
		for {
			for _, cmd := range pollCommands {
				if _, err := io.WriteString(conn, cmd+"\n"); err != nil {
					return err
				}
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollInterval):
			}
		}
	})
	return g.Wait()
}

func (l *Link) deliver(e sensor.Event) {
	e.Time = l.now()
	if e.Kind == sensor.Version {
		l.mu.Lock()
		l.version = e.Version
		l.mu.Unlock()
	}
	l.eventCallback(e)
}

func parseFloatArray(dest []*float64, input string) error {
	parts := strings.Split(input, ",")
	if len(parts) != len(dest) {
		return fmt.Errorf("want %d fields, got %d", len(dest), len(parts))
	}
	for i, field := range dest {
		f, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return err
		}
		*field = f
	}
	return nil
}

// ParseLine decodes one device record. The returned event has no Time.
func ParseLine(input string) (sensor.Event, error) {
	if len(input) < 2 {
		return sensor.Event{}, errors.New("truncated record")
	}
	arg := input[2:]
	switch input[:2] {
	case "RV":
		var e sensor.Event
		e.Kind = sensor.RotationVector
		if err := parseFloatArray([]*float64{&e.Vector.X, &e.Vector.Y, &e.Vector.Z}, arg); err != nil {
			return sensor.Event{}, err
		}
		return e, nil
	case "AC":
		code, err := strconv.Atoi(arg)
		if err != nil {
			return sensor.Event{}, err
		}
		return sensor.Event{Kind: sensor.Accuracy, Accuracy: code}, nil
	case "DR":
		deg, err := strconv.Atoi(arg)
		if err != nil {
			return sensor.Event{}, err
		}
		r, err := orientation.ParseDisplayRotation(deg)
		if err != nil {
			return sensor.Event{}, err
		}
		return sensor.Event{Kind: sensor.DisplayRotation, Rotation: r}, nil
	case "GF":
		parts := strings.Split(arg, ",")
		if len(parts) != 4 {
			return sensor.Event{}, fmt.Errorf("want 4 fields, got %d", len(parts))
		}
		var fix declination.Fix
		if err := parseFloatArray([]*float64{&fix.Latitude, &fix.Longitude, &fix.Altitude}, strings.Join(parts[:3], ",")); err != nil {
			return sensor.Event{}, err
		}
		millis, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
		if err != nil {
			return sensor.Event{}, err
		}
		fix.Time = time.UnixMilli(millis).UTC()
		if err := fix.Validate(); err != nil {
			return sensor.Event{}, err
		}
		return sensor.Event{Kind: sensor.Fix, Fix: fix}, nil
	case "GN":
		return sensor.Event{Kind: sensor.FixLost}, nil
	case "VE":
		return sensor.Event{Kind: sensor.Version, Version: arg}, nil
	}
	return sensor.Event{}, fmt.Errorf("unknown record %q", input[:2])
}

// FormatRotationVector encodes an RV record without the trailing newline.
func FormatRotationVector(v orientation.RotationVector) string {
	return fmt.Sprintf("RV%s,%s,%s", formatFloat(v.X), formatFloat(v.Y), formatFloat(v.Z))
}

// FormatFix encodes a GF record without the trailing newline.
func FormatFix(fix declination.Fix) string {
	return fmt.Sprintf("GF%s,%s,%s,%d", formatFloat(fix.Latitude), formatFloat(fix.Longitude), formatFloat(fix.Altitude), fix.Time.UnixMilli())
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
