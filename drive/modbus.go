package drive

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/internal/modbus"
)

// Bus is the part of a Modbus client a ModbusImage uses.
type Bus interface {
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	WriteCoil(coil int, value bool) error
}

// ModbusLayout places one drive in the Modbus address space.
type ModbusLayout struct {
	// StatusRegister is the input register holding the status word.
	StatusRegister uint16 `yaml:"status_register"`
	// CountsRegister is the first of two input registers holding the
	// signed encoder count, high word first.
	CountsRegister uint16 `yaml:"counts_register"`
	// SwitchInputs is the first of three discrete inputs: forward limit,
	// backward limit, home.
	SwitchInputs     uint16 `yaml:"switch_inputs"`
	EnableCoil       uint16 `yaml:"enable_coil"`
	ResetCoil        uint16 `yaml:"reset_coil"`
	VelocityRegister uint16 `yaml:"velocity_register"`
}

var errNotConnected = errors.New("modbus image not connected")

// ModbusImage is a drive and encoder process image kept in sync by a
// polling loop. The cycle only touches the cached copy, so it never waits
// on the bus.
type ModbusImage struct {
	bus    Bus
	layout ModbusLayout

	mu           sync.Mutex
	ok           bool
	status       Status
	counts       int64
	control      Control
	resetPending bool
	resetHigh    bool
	enableSent   *bool
}

func NewModbusImage(bus Bus, layout ModbusLayout) *ModbusImage {
	return &ModbusImage{bus: bus, layout: layout}
}

// Poll exchanges the image with the device once.
func (m *ModbusImage) Poll() error {
	l := m.layout
	regs, err := m.bus.ReadInputRegisters(l.StatusRegister, 1)
	if err != nil {
		return m.fail(errors.Wrap(err, "reading status word"))
	}
	status := StatusFromWord(modbus.Uint16(regs))
	regs, err = m.bus.ReadInputRegisters(l.CountsRegister, 2)
	if err != nil {
		return m.fail(errors.Wrap(err, "reading counts"))
	}
	counts := int64(modbus.Int32(regs))
	inputs, err := m.bus.ReadDiscreteInputs(l.SwitchInputs, 3)
	if err != nil {
		return m.fail(errors.Wrap(err, "reading switches"))
	}
	bits := modbus.BytesToBits(inputs)
	status.LimitForward, status.LimitBackward, status.HomeSwitch = bits[0], bits[1], bits[2]

	m.mu.Lock()
	control, sent := m.control, m.enableSent
	reset := m.resetPending || m.resetHigh
	m.mu.Unlock()

	if sent == nil || *sent != control.Enable {
		if err := m.bus.WriteCoil(int(l.EnableCoil), control.Enable); err != nil {
			return m.fail(errors.Wrap(err, "writing enable"))
		}
	}
	if reset {
		// pulse: high on one poll, low on the next
		high := !m.resetHigh
		if err := m.bus.WriteCoil(int(l.ResetCoil), high); err != nil {
			return m.fail(errors.Wrap(err, "writing fault reset"))
		}
		m.mu.Lock()
		m.resetHigh = high
		if high {
			m.resetPending = false
		}
		m.mu.Unlock()
	}
	if _, err := m.bus.WriteMultipleRegisters(l.VelocityRegister, 2, modbus.PutInt32(control.Velocity)); err != nil {
		return m.fail(errors.Wrap(err, "writing velocity"))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ok = true
	m.status = status
	m.counts = counts
	enable := control.Enable
	m.enableSent = &enable
	return nil
}

func (m *ModbusImage) fail(err error) error {
	m.Disconnected(err)
	return err
}

// Disconnected marks the image stale until the next successful poll.
func (m *ModbusImage) Disconnected(error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ok = false
	m.enableSent = nil
}

// Healthy reports whether the last poll succeeded.
func (m *ModbusImage) Healthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ok
}

func (m *ModbusImage) ReadStatus() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ok {
		return Status{}, errNotConnected
	}
	return m.status, nil
}

func (m *ModbusImage) Counts() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ok {
		return 0, errNotConnected
	}
	return m.counts, nil
}

// WriteControl stores c for the next poll.
func (m *ModbusImage) WriteControl(c Control) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ResetFault {
		m.resetPending = true
	}
	m.control = c
	return nil
}
