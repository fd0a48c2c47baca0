package modbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
)

const (
	funcReadInputRegisters = 0x04

	exceptionIllegalFunction = 0x01
	exceptionIllegalAddress  = 0x02
)

// Device is an in-memory RTU slave exposing input registers. It implements
// modbus.Transporter, so it can stand in for a serial port behind a
// SendHandler or a Client.
type Device struct {
	SlaveId byte

	mu    sync.Mutex
	input []uint16
}

func NewDevice(slaveID byte, registers int) *Device {
	return &Device{SlaveId: slaveID, input: make([]uint16, registers)}
}

func (d *Device) SetInputRegisters(address int, values ...uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if address < 0 || address+len(values) > len(d.input) {
		return fmt.Errorf("registers %d..%d out of range", address, address+len(values)-1)
	}
	copy(d.input[address:], values)
	return nil
}

// Send answers one RTU frame.
func (d *Device) Send(aduRequest []byte) ([]byte, error) {
	if len(aduRequest) < 4 {
		return nil, errors.New("short frame")
	}
	body := aduRequest[:len(aduRequest)-2]
	if binary.LittleEndian.Uint16(aduRequest[len(aduRequest)-2:]) != crc16(body) {
		return nil, errors.New("bad crc")
	}
	if body[0] != d.SlaveId {
		return nil, fmt.Errorf("frame for slave %d, this is %d", body[0], d.SlaveId)
	}
	function := body[1]
	if function != funcReadInputRegisters {
		return frame(d.SlaveId, function|0x80, exceptionIllegalFunction), nil
	}
	if len(body) != 6 {
		return nil, errors.New("malformed read request")
	}
	address := int(binary.BigEndian.Uint16(body[2:]))
	quantity := int(binary.BigEndian.Uint16(body[4:]))

	d.mu.Lock()
	defer d.mu.Unlock()
	if quantity < 1 || quantity > 125 || address+quantity > len(d.input) {
		return frame(d.SlaveId, function|0x80, exceptionIllegalAddress), nil
	}
	data := make([]byte, 1+2*quantity)
	data[0] = byte(2 * quantity)
	for i, v := range d.input[address : address+quantity] {
		binary.BigEndian.PutUint16(data[1+2*i:], v)
	}
	return frame(d.SlaveId, function, data...), nil
}

func frame(slaveID, function byte, data ...byte) []byte {
	adu := append([]byte{slaveID, function}, data...)
	return binary.LittleEndian.AppendUint16(adu, crc16(adu))
}

// crc16 is the Modbus RTU checksum.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}
