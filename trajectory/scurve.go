package trajectory

import (
	"math"

	"github.com/w1xm/axis_control/fault"
	"github.com/w1xm/axis_control/trajectory/internal/otg"
)

// SCurve is a jerk limited generator. The profile is replanned from the
// current setpoint every cycle, so new targets and execute edges take effect
// without a discontinuity.
//
// In position mode the acceleration limit is used for the whole move; the
// deceleration limits only apply to stops.
type SCurve struct {
	base
	otg *otg.OTG
}

func NewSCurve(cycleTime float64) *SCurve {
	return &SCurve{
		base: base{cycleTime: cycleTime},
		otg:  otg.New(cycleTime),
	}
}

func (s *SCurve) Step(stop StopDecider) (Output, error) {
	return s.step(s, stop)
}

// DistanceToStop is not available in closed form for a jerk limited
// profile.
func (s *SCurve) DistanceToStop(vel float64) (float64, bool) {
	return 0, false
}

func (s *SCurve) atRest() bool {
	return s.cur.vel == 0 && s.cur.acc == 0
}

func (s *SCurve) free() (kinematics, bool, error) {
	if !s.execute {
		if s.atRest() {
			return kinematics{pos: s.cur.pos}, true, nil
		}
		return s.toVelocity(0, s.targets.Deceleration)
	}
	switch s.targets.Mode {
	case Position:
		out, res := s.otg.Update(otg.Input{
			Interface:           otg.Position,
			CurrentPosition:     s.cur.pos,
			CurrentVelocity:     s.cur.vel,
			CurrentAcceleration: s.cur.acc,
			TargetPosition:      s.targets.Position,
			MaxVelocity:         math.Abs(s.targets.Velocity),
			MaxAcceleration:     s.targets.Acceleration,
			MaxJerk:             s.targets.Jerk,
		})
		if err := resultError(res); err != nil {
			return kinematics{}, false, err
		}
		return kinematics{out.NewPosition, out.NewVelocity, out.NewAcceleration}, res == otg.Finished, nil
	case Velocity:
		vT := s.targets.Velocity
		if s.cur.vel == vT && s.cur.acc == 0 {
			// ramp complete, continue at a fixed step per cycle
			return kinematics{pos: s.cur.pos + vT*s.cycleTime, vel: vT}, vT == 0, nil
		}
		next, done, err := s.toVelocity(vT, s.targets.Acceleration)
		return next, done && vT == 0, err
	}
	return kinematics{}, false, fault.ErrTrajInvalidMode
}

func (s *SCurve) brake(mode StopMode) (kinematics, bool, error) {
	if s.atRest() {
		return kinematics{pos: s.cur.pos}, true, nil
	}
	return s.toVelocity(0, s.decel(mode))
}

func (s *SCurve) toVelocity(vel, maxAcc float64) (kinematics, bool, error) {
	out, res := s.otg.Update(otg.Input{
		Interface:           otg.Velocity,
		CurrentPosition:     s.cur.pos,
		CurrentVelocity:     s.cur.vel,
		CurrentAcceleration: s.cur.acc,
		TargetVelocity:      vel,
		MaxAcceleration:     maxAcc,
		MaxJerk:             s.targets.Jerk,
	})
	if err := resultError(res); err != nil {
		return kinematics{}, false, err
	}
	return kinematics{out.NewPosition, out.NewVelocity, out.NewAcceleration}, res == otg.Finished, nil
}

func resultError(res otg.Result) error {
	switch res {
	case otg.Working, otg.Finished:
		return nil
	case otg.ErrorInvalidInput:
		return fault.ErrTrajSolverInvalidInput
	case otg.ErrorTrajectoryDuration:
		return fault.ErrTrajSolverDuration
	case otg.ErrorPositionalLimits:
		return fault.ErrTrajSolverPositionLimits
	case otg.ErrorExecutionTimeCalculation:
		return fault.ErrTrajSolverExecutionTime
	case otg.ErrorSynchronizationCalculation:
		return fault.ErrTrajSolverSynchronization
	}
	return fault.ErrTrajSolver
}
