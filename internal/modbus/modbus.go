// Package modbus keeps a Modbus connection open and polls it in a loop,
// reconnecting after failures.
package modbus

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/edaniels/golog"
	"github.com/goburrow/modbus"
	"github.com/pkg/errors"
)

type modbusHandler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

type Client struct {
	// Address creates a Modbus TCP connection ("host:port").
	Address string
	// Port and BaudRate create a local serial RTU connection
	Port string
	// BaudRate defaults to 19200
	BaudRate int
	SlaveId  byte
	Timeout  time.Duration

	// Poll function to be called in a loop while the connection is active
	Poll func() error
	// OnDisconnect is called when polling stops with an error.
	OnDisconnect func(err error)

	Logger golog.Logger

	handler modbusHandler
	modbus.Client
}

func (c *Client) name() string {
	if c.Address != "" {
		return c.Address
	}
	return c.Port
}

// Connect sets up the handler and starts the reconnect loop. It returns
// immediately; the first connection attempt happens in the background.
func (c *Client) Connect(ctx context.Context) error {
	if c.Address == "" && c.Port == "" {
		return errors.New("modbus: one of address or port is required")
	}
	if c.Poll == nil {
		return errors.New("modbus: no poll function")
	}
	if c.Timeout == 0 {
		c.Timeout = time.Second
	}
	if c.Logger == nil {
		c.Logger = golog.NewDevelopmentLogger("modbus")
	}
	if c.Address != "" {
		handler := modbus.NewTCPClientHandler(c.Address)
		handler.Timeout = c.Timeout
		handler.SlaveId = c.SlaveId
		c.handler = handler
	} else {
		handler := modbus.NewRTUClientHandler(c.Port)
		handler.BaudRate = c.BaudRate
		if handler.BaudRate == 0 {
			handler.BaudRate = 19200
		}
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.Timeout = c.Timeout
		handler.SlaveId = c.SlaveId
		c.handler = handler
	}
	c.Client = modbus.NewClient(c.handler)
	go c.reconnectLoop(ctx)
	return nil
}

func (c *Client) reconnectLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}

		if err := c.handler.Connect(); err != nil {
			c.Logger.Warnf("opening %q: %v", c.name(), err)
			continue
		}
		c.Logger.Infof("connected to %q", c.name())
		if err := c.watch(ctx); err != nil && ctx.Err() == nil {
			c.Logger.Errorf("watching %q: %v", c.name(), err)
			if c.OnDisconnect != nil {
				c.OnDisconnect(err)
			}
		}
	}
}

func (c *Client) watch(ctx context.Context) error {
	defer c.handler.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.Poll(); err != nil {
			return err
		}
	}
}

func (c *Client) WriteCoil(coil int, value bool) error {
	var v uint16
	if value {
		v = 0xFF00
	}
	_, err := c.WriteSingleCoil(uint16(coil), v)
	return err
}

func BytesToBits(bs []byte) []bool {
	var out []bool
	for _, b := range bs {
		for i := 0; i < 8; i++ {
			out = append(out, (b>>uint(i)&1) == 1)
		}
	}
	return out
}

// Int32 decodes a signed value from two registers, high word first.
func Int32(bs []byte) int32 {
	return int32(binary.BigEndian.Uint32(bs))
}

// PutInt32 encodes v into two registers, high word first.
func PutInt32(v int32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, uint32(v))
	return out
}

// Uint16 decodes one register.
func Uint16(bs []byte) uint16 {
	return binary.BigEndian.Uint16(bs)
}
