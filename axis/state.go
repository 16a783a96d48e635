package axis

import (
	"fmt"

	"github.com/w1xm/axis_control/fault"
)

type State int

const (
	Startup State = iota
	Disabled
	Enabled
)

func (s State) String() string {
	switch s {
	case Startup:
		return "STARTUP"
	case Disabled:
		return "DISABLED"
	case Enabled:
		return "ENABLED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// runStateMachine is the only writer of a.state.
func (a *Axis) runStateMachine(masterOK bool) {
	st := &a.data.Status
	switch a.state {
	case Startup:
		a.setEnableLocal(false)
		st.Busy = false
		st.DistanceToStop = 0
		if masterOK {
			// A fault caused only by the bus going away clears itself.
			if a.inStartupPhase && a.Holder.ErrorID() == fault.ErrAxisHardwareStatusNotOK && a.collaboratorError() == 0 {
				a.Holder.ErrorReset()
				a.enc.SetZeroIfRelative()
			}
			a.inStartupPhase = false
			a.setState(Disabled)
		}
	case Disabled:
		st.Busy = false
		st.DistanceToStop = 0
		if st.Enabled {
			a.setState(Enabled)
		}
		if !masterOK {
			a.setState(Startup)
		}
	case Enabled:
		if d, ok := a.traj.DistanceToStop(st.VelocitySetpoint); ok {
			st.DistanceToStop = d
		} else {
			st.DistanceToStop = 0
		}
		if a.data.Command.TrajSource == Internal {
			st.TargetPosition = a.traj.Targets().Position
		} else {
			st.TargetPosition = st.PositionSetpoint
		}
		if !st.Enabled {
			a.setState(Disabled)
		}
		if !masterOK {
			a.setState(Startup)
		}
	}
}

func (a *Axis) setState(s State) {
	if s == a.state {
		return
	}
	a.logger.Infof("axis[%d].state=%s", a.id, s)
	a.state = s
}
