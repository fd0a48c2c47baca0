package modbus

import (
	"context"
	"sync"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

type Handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

type Client struct {
	// Port and BaudRate create a local serial connection
	Port string
	// BaudRate defaults to 9600
	BaudRate int
	SlaveId  byte
	// URL creates a remote connection through an HTTP bridge
	URL      string
	Password string

	// Handler, if set, is used instead of Port or URL.
	Handler Handler

	// Poll function to be called in a loop while the connection is active
	Poll func() error
	// Interval between calls to Poll
	Interval time.Duration

	mu        sync.Mutex
	connected bool
	modbus.Client
}

// NewRTUHandler returns a handler for an RTU device on a local serial port.
func NewRTUHandler(port string, baud int, slaveID byte) *modbus.RTUClientHandler {
	handler := modbus.NewRTUClientHandler(port)
	if baud == 0 {
		baud = 9600
	}
	handler.BaudRate = baud
	handler.DataBits = 8
	handler.Parity = "N"
	handler.StopBits = 1
	handler.Timeout = 1 * time.Second
	handler.SlaveId = slaveID
	return handler
}

func (c *Client) name() string {
	switch {
	case c.URL != "":
		return c.URL
	case c.Port != "":
		return c.Port
	}
	return "modbus"
}

// Connect starts polling in the background until ctx is done.
func (c *Client) Connect(ctx context.Context) error {
	switch {
	case c.Handler != nil:
	case c.URL != "":
		c.Handler = NewHTTPHandler(c.URL, c.Password, c.SlaveId)
	default:
		c.Handler = NewRTUHandler(c.Port, c.BaudRate, c.SlaveId)
	}
	c.Client = modbus.NewClient(c.Handler)
	go c.reconnectLoop(ctx)
	return nil
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) setConnected(connected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = connected
}

func (c *Client) reconnectLoop(ctx context.Context) {
	port := c.name()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}

		err := c.Handler.Connect()
		if err != nil {
			zap.S().Infof("opening %q: %v", port, err)
			continue
		}
		if err := c.watch(ctx); err != nil && ctx.Err() == nil {
			zap.S().Warnf("watching %q: %v", port, err)
		}
	}
}

func (c *Client) watch(ctx context.Context) error {
	defer c.Handler.Close()
	defer c.setConnected(false)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.Poll(); err != nil {
			return err
		}
		c.setConnected(true)
		if c.Interval > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.Interval):
			}
		}
	}
}
