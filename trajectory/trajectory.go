// Package trajectory generates per-cycle motion setpoints for a single axis.
//
// Two generators share one contract: Trapezoid, a closed form bounded ramp,
// and SCurve, a jerk limited profile recomputed every cycle by an online
// solver. Both are stepped once per cycle and never block.
package trajectory

import (
	"fmt"
	"math"

	"github.com/w1xm/axis_control/fault"
)

type Mode int

const (
	Position Mode = iota
	Velocity
)

func (m Mode) String() string {
	switch m {
	case Position:
		return "POSITION"
	case Velocity:
		return "VELOCITY"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type StopMode int

const (
	Normal StopMode = iota
	Emergency
)

func (m StopMode) String() string {
	switch m {
	case Normal:
		return "NORMAL"
	case Emergency:
		return "EMERGENCY"
	}
	return fmt.Sprintf("StopMode(%d)", int(m))
}

type Direction int

const (
	Standstill Direction = iota
	Forward
	Backward
)

func (d Direction) String() string {
	switch d {
	case Standstill:
		return "STANDSTILL"
	case Forward:
		return "FORWARD"
	case Backward:
		return "BACKWARD"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

func directionOf(delta, vel float64) Direction {
	switch {
	case vel > 0, vel == 0 && delta > 0:
		return Forward
	case vel < 0, vel == 0 && delta < 0:
		return Backward
	}
	return Standstill
}

// StopDecider is consulted once per Step with the direction the free motion
// would take. It returns whether that motion must be stopped instead and how.
type StopDecider func(dir Direction) (stop bool, mode StopMode)

// Targets is the commanded motion. Velocity is the travel speed in position
// mode and the target velocity in velocity mode.
type Targets struct {
	Position              float64
	Velocity              float64
	Acceleration          float64
	Deceleration          float64
	EmergencyDeceleration float64
	Jerk                  float64
	Mode                  Mode
}

type Output struct {
	Position     float64
	Velocity     float64
	Acceleration float64
	Busy         bool
	Direction    Direction
	Stopping     bool
	StopMode     StopMode
}

type Generator interface {
	SetTargetPosition(pos float64)
	SetTargetVelocity(vel float64)
	SetAcceleration(acc float64)
	SetDeceleration(dec float64)
	SetEmergencyDeceleration(dec float64)
	SetJerk(jerk float64)
	SetMode(mode Mode)
	SetExecute(execute bool)
	SetEnable(enable bool)

	Targets() Targets
	Execute() bool
	Busy() bool
	Direction() Direction

	// SetCurrent reseeds the continuity state, dropping any latched stop.
	SetCurrent(pos, vel, acc float64)
	Step(stop StopDecider) (Output, error)
	// DistanceToStop returns the braking distance from vel. The bool is false
	// when the generator cannot compute it.
	DistanceToStop(vel float64) (float64, bool)

	ErrorID() fault.Code
	ErrorReset()
}

type kinematics struct {
	pos, vel, acc float64
}

// motion is what each generator plugs into base.step.
type motion interface {
	// free computes the next state of the commanded motion. done reports
	// that the motion is complete at the returned state.
	free() (next kinematics, done bool, err error)
	// brake computes the next state of a stop with the given mode.
	brake(mode StopMode) (next kinematics, done bool, err error)
}

// base carries the target set and continuity state shared by both generators.
type base struct {
	fault.Holder

	cycleTime float64
	targets   Targets
	execute   bool
	enable    bool

	cur      kinematics
	busy     bool
	dir      Direction
	stopping bool
	stopMode StopMode
	// frozen after a completed stop until the next execute change.
	frozen bool
}

func (b *base) SetTargetPosition(pos float64) { b.targets.Position = pos }
func (b *base) SetTargetVelocity(vel float64) { b.targets.Velocity = vel }
func (b *base) SetAcceleration(acc float64)   { b.targets.Acceleration = acc }
func (b *base) SetDeceleration(dec float64)   { b.targets.Deceleration = dec }
func (b *base) SetJerk(jerk float64)          { b.targets.Jerk = jerk }
func (b *base) SetMode(mode Mode)             { b.targets.Mode = mode }

func (b *base) SetEmergencyDeceleration(dec float64) {
	b.targets.EmergencyDeceleration = dec
}

func (b *base) SetExecute(execute bool) {
	if execute != b.execute {
		b.frozen = false
	}
	b.execute = execute
}

func (b *base) SetEnable(enable bool) {
	b.enable = enable
	if !enable {
		b.cur.vel, b.cur.acc = 0, 0
		b.busy, b.stopping = false, false
	}
}

func (b *base) Targets() Targets     { return b.targets }
func (b *base) Execute() bool        { return b.execute }
func (b *base) Busy() bool           { return b.busy }
func (b *base) Direction() Direction { return b.dir }

func (b *base) SetCurrent(pos, vel, acc float64) {
	b.cur = kinematics{pos: pos, vel: vel, acc: acc}
	b.frozen, b.stopping = false, false
}

func (b *base) decel(mode StopMode) float64 {
	if mode == Emergency && b.targets.EmergencyDeceleration > 0 {
		return b.targets.EmergencyDeceleration
	}
	return b.targets.Deceleration
}

func (b *base) output() Output {
	return Output{
		Position:     b.cur.pos,
		Velocity:     b.cur.vel,
		Acceleration: b.cur.acc,
		Busy:         b.busy,
		Direction:    b.dir,
		Stopping:     b.stopping,
		StopMode:     b.stopMode,
	}
}

// fail holds the last valid position and drops busy. The latched code is
// the only thing telling this apart from a completed move.
func (b *base) fail(code fault.Code) (Output, error) {
	b.cur.vel, b.cur.acc = 0, 0
	b.busy, b.stopping = false, false
	b.dir = Standstill
	return b.output(), b.SetError(code)
}

func (b *base) step(m motion, stop StopDecider) (Output, error) {
	if !b.enable {
		b.busy = false
		return b.output(), nil
	}
	if b.frozen {
		b.dir = Standstill
		return b.output(), nil
	}

	next, done, err := m.free()
	if err != nil {
		return b.failWith(err)
	}
	stopRequested, mode := false, Normal
	if stop != nil {
		stopRequested, mode = stop(directionOf(next.pos-b.cur.pos, next.vel))
	}
	if stopRequested {
		if next, done, err = m.brake(mode); err != nil {
			return b.failWith(err)
		}
		b.stopping, b.stopMode = true, mode
	} else {
		b.stopping = false
	}

	if invalid(next) {
		return b.fail(fault.ErrTrajSolver)
	}
	b.dir = directionOf(next.pos-b.cur.pos, next.vel)
	b.cur = next
	b.busy = !done
	if done && b.stopping {
		b.cur.vel, b.cur.acc = 0, 0
		b.frozen = true
	}
	return b.output(), nil
}

func (b *base) failWith(err error) (Output, error) {
	code, ok := err.(fault.Code)
	if !ok {
		code = fault.ErrTrajSolver
	}
	return b.fail(code)
}

func invalid(k kinematics) bool {
	for _, f := range []float64{k.pos, k.vel, k.acc} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
	}
	return false
}
