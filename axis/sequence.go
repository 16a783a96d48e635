package axis

import (
	"fmt"
	"math"

	"github.com/w1xm/axis_control/fault"
	"github.com/w1xm/axis_control/trajectory"
)

// MotionCommand selects what a rising execute edge starts.
type MotionCommand int

const (
	CommandNone         MotionCommand = 0
	CommandMoveVelocity MotionCommand = 1
	CommandMoveRelative MotionCommand = 2
	CommandMoveAbsolute MotionCommand = 3
	CommandHome         MotionCommand = 10
)

func (c MotionCommand) String() string {
	switch c {
	case CommandNone:
		return "NONE"
	case CommandMoveVelocity:
		return "MOVE_VELOCITY"
	case CommandMoveRelative:
		return "MOVE_RELATIVE"
	case CommandMoveAbsolute:
		return "MOVE_ABSOLUTE"
	case CommandHome:
		return "HOME"
	}
	return fmt.Sprintf("MotionCommand(%d)", int(c))
}

// Homing variants, passed as command data with CommandHome.
const (
	// HomeBackwardLimit drives backward onto the limit switch and
	// references there.
	HomeBackwardLimit = 1
	// HomeSetPosition references the current position without moving.
	HomeSetPosition = 15
)

// homingExempt reports whether cmd may execute on a disabled axis.
func homingExempt(cmd MotionCommand, data int) bool {
	return cmd == CommandHome && data == HomeSetPosition
}

type SequencerConfig struct {
	HomePosition float64
	// HomeVelocity is the speed toward the limit switch.
	HomeVelocity float64
}

const (
	seqIdle = iota
	seqMoving
	seqHomingSearch
)

// sequencer turns motion commands into generator targets and runs the
// homing sequence.
type sequencer struct {
	fault.Holder
	cfg  SequencerConfig
	traj trajectory.Generator
	enc  Encoder
	mon  *Monitor

	targetPosition float64
	targetVelocity float64
	executing      bool
	state          int
}

func (s *sequencer) setTargetPosition(d *Data, pos float64) {
	s.targetPosition = pos
	if s.executing && d.Command.Command == CommandMoveAbsolute {
		if code := s.mon.checkTarget(pos); code != 0 {
			s.SetError(code)
			return
		}
		s.traj.SetTargetPosition(pos)
	}
}

func (s *sequencer) setTargetVelocity(d *Data, vel float64) {
	s.targetVelocity = vel
	if s.executing && (d.Command.Command == CommandMoveVelocity || d.Command.Command == CommandMoveAbsolute) {
		s.traj.SetTargetVelocity(vel)
	}
}

func (s *sequencer) setExecute(d *Data, execute bool) error {
	st := &d.Status
	if execute != s.executing {
		// replan from the live setpoint on every edge
		s.traj.SetCurrent(st.PositionSetpoint, st.VelocitySetpoint, st.AccelerationSetpoint)
	}
	if !execute {
		s.executing = false
		s.state = seqIdle
		s.traj.SetExecute(false)
		return nil
	}
	if s.executing {
		return nil
	}

	switch d.Command.Command {
	case CommandMoveVelocity:
		s.traj.SetMode(trajectory.Velocity)
		s.traj.SetTargetVelocity(s.targetVelocity)
	case CommandMoveAbsolute, CommandMoveRelative:
		target := s.targetPosition
		if d.Command.Command == CommandMoveRelative {
			target += st.PositionSetpoint
		}
		if code := s.mon.checkTarget(target); code != 0 {
			return s.SetError(code)
		}
		s.traj.SetMode(trajectory.Position)
		s.traj.SetTargetVelocity(s.targetVelocity)
		s.traj.SetTargetPosition(target)
	case CommandHome:
		return s.startHoming(d)
	default:
		return s.SetError(fault.ErrSeqCommandNotSupported)
	}
	s.executing = true
	s.state = seqMoving
	s.traj.SetExecute(true)
	return nil
}

func (s *sequencer) startHoming(d *Data) error {
	switch d.Command.CommandData {
	case HomeSetPosition:
		s.reference(d)
		return nil
	case HomeBackwardLimit:
		if s.cfg.HomeVelocity == 0 {
			return s.SetError(fault.ErrSeqHomingFailed)
		}
		s.executing = true
		s.state = seqHomingSearch
		s.traj.SetMode(trajectory.Velocity)
		s.traj.SetTargetVelocity(-math.Abs(s.cfg.HomeVelocity))
		s.traj.SetExecute(true)
		return nil
	}
	return s.SetError(fault.ErrSeqCommandNotSupported)
}

// reference redefines the current position as the home position.
func (s *sequencer) reference(d *Data) {
	home := s.cfg.HomePosition
	s.enc.SetPosition(home)
	s.enc.SetHomed(true)
	s.traj.SetCurrent(home, 0, 0)
	s.traj.SetTargetPosition(home)
	d.Status.TargetPosition = home
}

// execute advances the active sequence once per cycle, after the
// trajectory step.
func (s *sequencer) execute(d *Data) {
	switch s.state {
	case seqMoving:
		if !s.traj.Busy() {
			s.state = seqIdle
		}
	case seqHomingSearch:
		if s.traj.Busy() {
			return
		}
		s.state = seqIdle
		s.executing = false
		s.traj.SetExecute(false)
		if !d.Status.LimitBackward {
			s.SetError(fault.ErrSeqHomingFailed)
			return
		}
		s.reference(d)
	}
}

func (s *sequencer) busy() bool {
	return s.state == seqHomingSearch
}
