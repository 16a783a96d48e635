package axis

import "github.com/w1xm/axis_control/fault"

// ErrorSource is a collaborator with a latched error that reset clears.
type ErrorSource interface {
	fault.Source
	fault.Resettable
}

type Encoder interface {
	ErrorSource

	ReadEntries() error
	WriteEntries() error

	Position() float64
	Velocity() float64
	RawPosition() int64

	Homed() bool
	SetHomed(homed bool)
	// SetPosition redefines the current position without motion.
	SetPosition(pos float64)
	SetZeroIfRelative()
}

type Drive interface {
	ErrorSource

	ReadEntries() error
	WriteEntries() error

	SetEnable(enable bool)
	Enabled() bool
	HardwareOK() bool

	// SetVelocity sets the commanded velocity in axis units.
	SetVelocity(vel float64)
	RawVelocity() int64
}

type Controller interface {
	ErrorSource

	Control(setpoint, actual, feedForward float64) float64
	Reset()
}

// LimitSwitches report engaged switches as true.
type LimitSwitches interface {
	LimitForward() bool
	LimitBackward() bool
	HomeSwitch() bool
}

type noLimits struct{}

func (noLimits) LimitForward() bool  { return false }
func (noLimits) LimitBackward() bool { return false }
func (noLimits) HomeSwitch() bool    { return false }
