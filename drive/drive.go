// Package drive talks to a velocity-commanded servo drive through its
// process image: a status word in, a control word and raw velocity out.
package drive

import (
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
)

// Status word bits.
const (
	StatusReady = 1 << iota
	StatusEnabled
	StatusFault
	StatusLimitForward
	StatusLimitBackward
	StatusHomeSwitch
)

// Control word bits.
const (
	ControlEnable = 1 << iota
	ControlResetFault
)

// Status is the decoded status word. Limit and home bits are true when the
// switch is engaged.
type Status struct {
	Ready         bool
	Enabled       bool
	Fault         bool
	LimitForward  bool
	LimitBackward bool
	HomeSwitch    bool
}

func StatusFromWord(w uint16) Status {
	return Status{
		Ready:         w&StatusReady != 0,
		Enabled:       w&StatusEnabled != 0,
		Fault:         w&StatusFault != 0,
		LimitForward:  w&StatusLimitForward != 0,
		LimitBackward: w&StatusLimitBackward != 0,
		HomeSwitch:    w&StatusHomeSwitch != 0,
	}
}

func (s Status) Word() uint16 {
	var w uint16
	for _, b := range []struct {
		set bool
		bit uint16
	}{
		{s.Ready, StatusReady},
		{s.Enabled, StatusEnabled},
		{s.Fault, StatusFault},
		{s.LimitForward, StatusLimitForward},
		{s.LimitBackward, StatusLimitBackward},
		{s.HomeSwitch, StatusHomeSwitch},
	} {
		if b.set {
			w |= b.bit
		}
	}
	return w
}

type Control struct {
	Enable     bool
	ResetFault bool
	// Velocity in raw drive units.
	Velocity int32
}

func (c Control) Word() uint16 {
	var w uint16
	if c.Enable {
		w |= ControlEnable
	}
	if c.ResetFault {
		w |= ControlResetFault
	}
	return w
}

// IO is the drive's process image.
type IO interface {
	ReadStatus() (Status, error)
	WriteControl(Control) error
}

type Config struct {
	// Scale is raw output units per axis velocity unit.
	Scale float64
	// MaxRaw clamps the raw output. Zero means the int32 range.
	MaxRaw int32
	// EnableTimeout bounds the wait for the enabled bit after enable is
	// commanded. Zero waits forever.
	EnableTimeout time.Duration
}

// Drive implements the axis drive contract and its limit switches.
type Drive struct {
	fault.Holder

	cfg       Config
	io        IO
	cycleTime float64

	status     Status
	readOK     bool
	enableCmd  bool
	waiting    float64
	resetFault bool

	raw int32
}

func New(cfg Config, io IO, cycleTime float64) (*Drive, error) {
	if cfg.Scale == 0 {
		return nil, errors.New("drive scale must be non-zero")
	}
	if cfg.MaxRaw <= 0 {
		cfg.MaxRaw = math.MaxInt32
	}
	return &Drive{cfg: cfg, io: io, cycleTime: cycleTime}, nil
}

func (d *Drive) ReadEntries() error {
	st, err := d.io.ReadStatus()
	if err != nil {
		d.readOK = false
		d.status = Status{}
		return errors.Wrap(err, "reading drive status")
	}
	d.readOK = true
	d.status = st
	if st.Fault {
		d.SetError(fault.ErrDrvHardwareFault)
	}

	switch {
	case !d.enableCmd || st.Enabled:
		d.waiting = 0
	case d.cfg.EnableTimeout > 0:
		d.waiting += d.cycleTime
		if d.waiting > d.cfg.EnableTimeout.Seconds() {
			d.SetError(fault.ErrDrvEnableTimeout)
			d.enableCmd = false
			d.waiting = 0
		}
	}
	return nil
}

func (d *Drive) WriteEntries() error {
	c := Control{ResetFault: d.resetFault}
	if d.enableCmd {
		c.Enable = true
		c.Velocity = d.raw
	}
	d.resetFault = false
	if err := d.io.WriteControl(c); err != nil {
		d.SetError(fault.ErrDrvWriteFailed)
		return errors.Wrap(err, "writing drive control")
	}
	return nil
}

func (d *Drive) SetEnable(enable bool) {
	if enable && d.HasError() {
		return
	}
	d.enableCmd = enable
}

// Enabled reports the enable handshake as complete.
func (d *Drive) Enabled() bool {
	return d.enableCmd && d.readOK && d.status.Ready && d.status.Enabled
}

func (d *Drive) HardwareOK() bool {
	return d.readOK && !d.status.Fault
}

func (d *Drive) SetVelocity(vel float64) {
	raw := math.Round(vel * d.cfg.Scale)
	if math.IsNaN(raw) {
		raw = 0
	}
	limit := float64(d.cfg.MaxRaw)
	d.raw = int32(math.Max(-limit, math.Min(limit, raw)))
}

func (d *Drive) RawVelocity() int64 { return int64(d.raw) }

// ErrorReset clears the latched error and pulses the drive's fault reset.
func (d *Drive) ErrorReset() {
	d.Holder.ErrorReset()
	d.resetFault = true
}

func (d *Drive) LimitForward() bool  { return d.status.LimitForward }
func (d *Drive) LimitBackward() bool { return d.status.LimitBackward }
func (d *Drive) HomeSwitch() bool    { return d.status.HomeSwitch }
