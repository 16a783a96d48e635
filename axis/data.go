package axis

import (
	"fmt"

	"github.com/w1xm/axis_control/trajectory"
)

// DataSource selects where trajectory setpoints or encoder feedback come from.
type DataSource int

const (
	Internal DataSource = iota
	External
)

func (s DataSource) String() string {
	switch s {
	case Internal:
		return "INTERNAL"
	case External:
		return "EXTERNAL"
	}
	return fmt.Sprintf("DataSource(%d)", int(s))
}

type Command struct {
	Enable  bool
	Execute bool
	Reset   bool

	Command     MotionCommand
	CommandData int

	TrajSource DataSource
	EncSource  DataSource
	StopMode   trajectory.StopMode
}

type Status struct {
	ActualPosition    float64
	ActualPositionOld float64
	ActualVelocity    float64
	ActualVelocityOld float64
	RawPosition       int64

	PositionSetpoint     float64
	PositionSetpointOld  float64
	VelocitySetpoint     float64
	VelocitySetpointOld  float64
	AccelerationSetpoint float64

	TargetPosition float64
	DistanceToStop float64

	ControllerOutput    float64
	ControllerOutputOld float64

	Busy       bool
	BusyOld    bool
	Moving     bool
	MovingOld  bool
	Enabled    bool
	EnabledOld bool
	ExecuteOld bool
	AtTarget   bool
	Homed      bool

	LimitForward  bool
	LimitBackward bool
	HomeSwitch    bool

	CycleCounter uint64
}

// ControlError is setpoint minus actual position.
func (s *Status) ControlError() float64 {
	return s.PositionSetpoint - s.ActualPosition
}

// InterlockType identifies the source of an interlock.
type InterlockType int

const (
	InterlockNone InterlockType = iota
	InterlockBus
	InterlockHardware
	InterlockAxisError
	InterlockHardLimitForward
	InterlockHardLimitBackward
	InterlockSoftLimitForward
	InterlockSoftLimitBackward
	InterlockExternal
)

func (t InterlockType) String() string {
	switch t {
	case InterlockNone:
		return "NONE"
	case InterlockBus:
		return "BUS"
	case InterlockHardware:
		return "HARDWARE"
	case InterlockAxisError:
		return "AXIS_ERROR"
	case InterlockHardLimitForward:
		return "HARD_LIMIT_FWD"
	case InterlockHardLimitBackward:
		return "HARD_LIMIT_BWD"
	case InterlockSoftLimitForward:
		return "SOFT_LIMIT_FWD"
	case InterlockSoftLimitBackward:
		return "SOFT_LIMIT_BWD"
	case InterlockExternal:
		return "EXTERNAL"
	}
	return fmt.Sprintf("InterlockType(%d)", int(t))
}

// Interlocks holds the raw interlock sources and the per-direction
// summaries derived from them. Only Refresh writes the summaries.
type Interlocks struct {
	Bus               bool
	Hardware          bool
	AxisError         bool
	HardLimitForward  bool
	HardLimitBackward bool
	SoftLimitForward  bool
	SoftLimitBackward bool
	External          bool

	ForwardSummary  bool
	BackwardSummary bool
	LastActive      InterlockType
}

// Refresh recomputes the summaries. A direction is interlocked iff any
// source affecting it is active.
func (il *Interlocks) Refresh() {
	both := il.Bus || il.Hardware || il.AxisError || il.External
	il.ForwardSummary = both || il.HardLimitForward || il.SoftLimitForward
	il.BackwardSummary = both || il.HardLimitBackward || il.SoftLimitBackward

	il.LastActive = InterlockNone
	for _, src := range []struct {
		active bool
		typ    InterlockType
	}{
		{il.Bus, InterlockBus},
		{il.Hardware, InterlockHardware},
		{il.AxisError, InterlockAxisError},
		{il.HardLimitForward, InterlockHardLimitForward},
		{il.HardLimitBackward, InterlockHardLimitBackward},
		{il.SoftLimitForward, InterlockSoftLimitForward},
		{il.SoftLimitBackward, InterlockSoftLimitBackward},
		{il.External, InterlockExternal},
	} {
		if src.active {
			il.LastActive = src.typ
			break
		}
	}
}

// StopMode escalates commanded to an emergency stop while the bus or the
// drive hardware is unhealthy.
func (il *Interlocks) StopMode(commanded trajectory.StopMode) trajectory.StopMode {
	if il.Bus || il.Hardware {
		return trajectory.Emergency
	}
	return commanded
}

// Data is the per-axis record shared by the cycle stages.
type Data struct {
	Command    Command
	Status     Status
	Interlocks Interlocks
}
