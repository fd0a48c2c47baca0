// Package modbusimu reads rotation-vector samples from an IMU that exposes
// them as Modbus input registers.
//
// Registers 0-5 hold x, y and z as big-endian IEEE-754 float32 pairs;
// register 6 holds the magnetic sensor accuracy code as int16.
package modbusimu

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	imodbus "github.com/w1xm/compass_interface/internal/modbus"
	"github.com/w1xm/compass_interface/orientation"
	"github.com/w1xm/compass_interface/sensor"
)

const (
	RegisterVector   = 0
	RegisterAccuracy = 6
	RegisterCount    = 7

	// DefaultInterval between polls.
	DefaultInterval = 50 * time.Millisecond
)

type IMU struct {
	client        *imodbus.Client
	eventCallback sensor.EventCallback
	now           func() time.Time

	mu           sync.Mutex
	haveAccuracy bool
	accuracy     int
}

var _ sensor.Source = (*IMU)(nil)

// Connect starts polling the device described by client until ctx is
// done. The client's Poll is replaced.
func Connect(ctx context.Context, client *imodbus.Client, eventCallback sensor.EventCallback) (*IMU, error) {
	if eventCallback == nil {
		eventCallback = func(sensor.Event) {}
	}
	imu := &IMU{client: client, eventCallback: eventCallback, now: time.Now}
	client.Poll = imu.poll
	if client.Interval == 0 {
		client.Interval = DefaultInterval
	}
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	return imu, nil
}

func (imu *IMU) Connected() bool {
	return imu.client.Connected()
}

func (imu *IMU) Version() string {
	return fmt.Sprintf("modbus slave %d", imu.client.SlaveId)
}

func (imu *IMU) poll() error {
	results, err := imu.client.ReadInputRegisters(RegisterVector, RegisterCount)
	if err != nil {
		return err
	}
	v, accuracy, err := Decode(results)
	if err != nil {
		return err
	}
	now := imu.now()
	imu.mu.Lock()
	changed := !imu.haveAccuracy || imu.accuracy != accuracy
	imu.haveAccuracy = true
	imu.accuracy = accuracy
	imu.mu.Unlock()
	if changed {
		imu.eventCallback(sensor.Event{Kind: sensor.Accuracy, Time: now, Accuracy: accuracy})
	}
	imu.eventCallback(sensor.Event{Kind: sensor.RotationVector, Time: now, Vector: v})
	return nil
}

// Decode parses the raw bytes of registers 0-6.
func Decode(results []byte) (orientation.RotationVector, int, error) {
	if len(results) != 2*RegisterCount {
		return orientation.RotationVector{}, 0, fmt.Errorf("got %d bytes, want %d", len(results), 2*RegisterCount)
	}
	var components [3]float64
	for i := range components {
		components[i] = float64(math.Float32frombits(binary.BigEndian.Uint32(results[4*i:])))
	}
	accuracy := int(int16(binary.BigEndian.Uint16(results[2*RegisterAccuracy:])))
	return orientation.RotationVector{X: components[0], Y: components[1], Z: components[2]}, accuracy, nil
}

// Encode returns the register values a device publishes for a sample.
func Encode(v orientation.RotationVector, accuracy int) []uint16 {
	regs := make([]uint16, 0, RegisterCount)
	for _, c := range []float64{v.X, v.Y, v.Z} {
		bits := math.Float32bits(float32(c))
		regs = append(regs, uint16(bits>>16), uint16(bits))
	}
	return append(regs, uint16(int16(accuracy)))
}
