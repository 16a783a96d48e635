package axis

import "github.com/w1xm/axis_control/trajectory"

// StopPolicy decides whether the next setpoint, heading in dir, must be
// replaced by a stop. An axis following an external source never runs its
// own generator. Interlocks only block the direction they guard, so an axis
// sitting on its forward limit can still back off.
func StopPolicy(source DataSource, dir trajectory.Direction, forward, backward bool, mode trajectory.StopMode) (bool, trajectory.StopMode) {
	switch {
	case source != Internal:
		return true, mode
	case dir == trajectory.Backward && backward:
		return true, mode
	case dir == trajectory.Forward && forward:
		return true, mode
	}
	return false, mode
}
