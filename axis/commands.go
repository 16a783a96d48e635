package axis

import (
	"github.com/w1xm/axis_control/fault"
	"github.com/w1xm/axis_control/trajectory"
)

// SetEnable commands the drive on or off and propagates the change to
// cascaded axes.
func (a *Axis) SetEnable(enable bool) error {
	a.setEnableLocal(enable)
	return a.transformCommands()
}

func (a *Axis) setEnableLocal(enable bool) {
	d := &a.data
	st := &d.Status
	if enable && !d.Command.Enable {
		// start from where the axis is, not where it was last commanded
		a.traj.SetCurrent(st.ActualPosition, 0, 0)
		a.traj.SetTargetPosition(st.ActualPosition)
		st.PositionSetpoint = st.ActualPosition
		st.VelocitySetpoint = 0
		st.AccelerationSetpoint = 0
		st.TargetPosition = st.ActualPosition
		if a.cntrl != nil {
			a.cntrl.Reset()
		}
	}
	if enable != d.Command.Enable {
		a.logger.Debugf("axis[%d].command.enable=%v", a.id, enable)
	}
	d.Command.Enable = enable
	a.traj.SetEnable(enable)
	a.drv.SetEnable(enable)
}

// SetExecute starts (rising edge) or cancels (false) the selected command.
func (a *Axis) SetExecute(execute bool) error {
	d := &a.data
	if d.Command.TrajSource == Internal && execute {
		if !d.Status.Enabled && !homingExempt(d.Command.Command, d.Command.CommandData) {
			return a.SetError(fault.ErrAxisNotEnabled)
		}
		if !d.Command.Execute && d.Status.Busy {
			return a.SetError(fault.ErrAxisBusy)
		}
	}
	if execute != d.Command.Execute {
		a.logger.Debugf("axis[%d].command.execute=%v", a.id, execute)
	}
	d.Command.Execute = execute
	if execute {
		a.halt = false
	}
	if err := a.seq.setExecute(d, execute); err != nil {
		return err
	}
	return a.transformCommands()
}

// SetReset clears latched errors in every collaborator and then the axis.
// Conditions that are still present fault again on the next cycle.
func (a *Axis) SetReset(reset bool) {
	a.data.Command.Reset = reset
	if reset {
		a.ErrorReset()
	}
}

func (a *Axis) SetCommand(cmd MotionCommand) { a.data.Command.Command = cmd }

func (a *Axis) SetCommandData(data int) { a.data.Command.CommandData = data }

// SetMode selects an absolute position move or a velocity move.
func (a *Axis) SetMode(mode trajectory.Mode) {
	switch mode {
	case trajectory.Position:
		a.SetCommand(CommandMoveAbsolute)
	case trajectory.Velocity:
		a.SetCommand(CommandMoveVelocity)
	}
}

func (a *Axis) SetTargetPosition(pos float64) { a.seq.setTargetPosition(&a.data, pos) }

func (a *Axis) SetTargetVelocity(vel float64) { a.seq.setTargetVelocity(&a.data, vel) }

func (a *Axis) SetAcceleration(acc float64) { a.traj.SetAcceleration(acc) }

func (a *Axis) SetDeceleration(dec float64) { a.traj.SetDeceleration(dec) }

func (a *Axis) SetEmergencyDeceleration(dec float64) { a.traj.SetEmergencyDeceleration(dec) }

func (a *Axis) SetJerk(jerk float64) { a.traj.SetJerk(jerk) }

func (a *Axis) SetStopMode(mode trajectory.StopMode) { a.data.Command.StopMode = mode }

// retarget reports whether cmd is still in motion, in which case new
// targets apply on the fly. A move that finished or was stopped by an
// interlock needs a fresh execute edge to unfreeze the generator.
func (a *Axis) retarget(cmd MotionCommand) bool {
	return a.data.Command.Execute && a.data.Command.Command == cmd && !a.halt && a.traj.Busy()
}

// MoveAbsolute starts a position move to pos at speed vel, or retargets the
// running one.
func (a *Axis) MoveAbsolute(pos, vel float64) error {
	if a.retarget(CommandMoveAbsolute) {
		a.SetTargetVelocity(vel)
		a.SetTargetPosition(pos)
		return nil
	}
	if err := a.SetExecute(false); err != nil {
		return err
	}
	a.SetCommand(CommandMoveAbsolute)
	a.SetTargetVelocity(vel)
	a.SetTargetPosition(pos)
	return a.SetExecute(true)
}

// MoveRelative starts a position move by dist from the current setpoint.
func (a *Axis) MoveRelative(dist, vel float64) error {
	if err := a.SetExecute(false); err != nil {
		return err
	}
	a.SetCommand(CommandMoveRelative)
	a.SetTargetVelocity(vel)
	a.SetTargetPosition(dist)
	return a.SetExecute(true)
}

// MoveVelocity runs at vel until stopped.
func (a *Axis) MoveVelocity(vel float64) error {
	if a.retarget(CommandMoveVelocity) {
		a.SetTargetVelocity(vel)
		return nil
	}
	if err := a.SetExecute(false); err != nil {
		return err
	}
	a.SetCommand(CommandMoveVelocity)
	a.SetTargetVelocity(vel)
	return a.SetExecute(true)
}

// Home runs a homing sequence, one of HomeBackwardLimit or HomeSetPosition.
func (a *Axis) Home(variant int) error {
	if err := a.SetExecute(false); err != nil {
		return err
	}
	a.SetCommand(CommandHome)
	a.SetCommandData(variant)
	return a.SetExecute(true)
}

// Stop ramps the axis down with the commanded stop mode and holds it there
// until the next execute.
func (a *Axis) Stop() error {
	a.halt = true
	return a.SetExecute(false)
}

// SetTrajDataSourceType selects where setpoints come from. Handing the axis
// to an external source is refused while enabled.
func (a *Axis) SetTrajDataSourceType(src DataSource) error {
	d := &a.data
	if src == d.Command.TrajSource {
		return nil
	}
	if d.Status.Enabled && src != Internal {
		return a.SetError(fault.ErrAxisCommandNotAllowedWhenEnabled)
	}
	switch src {
	case Internal:
		st := &d.Status
		a.traj.SetCurrent(st.PositionSetpoint, st.VelocitySetpoint, 0)
		a.traj.SetTargetPosition(st.PositionSetpoint)
	case External:
		if !a.extTraj.Compiled() {
			return a.SetError(fault.ErrAxisTransformNotCompiled)
		}
		d.Status.Busy = true
	default:
		return a.SetError(fault.ErrAxisDataSourceInvalid)
	}
	a.logger.Infof("axis[%d].trajSource=%s", a.id, src)
	d.Command.TrajSource = src
	return nil
}

// SetEncDataSourceType selects where feedback comes from. It is refused
// while enabled.
func (a *Axis) SetEncDataSourceType(src DataSource) error {
	d := &a.data
	if src == d.Command.EncSource {
		return nil
	}
	if d.Status.Enabled {
		return a.SetError(fault.ErrAxisCommandNotAllowedWhenEnabled)
	}
	switch src {
	case Internal:
	case External:
		if !a.extEnc.Compiled() {
			return a.SetError(fault.ErrAxisTransformNotCompiled)
		}
	default:
		return a.SetError(fault.ErrAxisDataSourceInvalid)
	}
	a.logger.Infof("axis[%d].encSource=%s", a.id, src)
	d.Command.EncSource = src
	return nil
}
