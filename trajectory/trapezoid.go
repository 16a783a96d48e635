package trajectory

import (
	"math"

	"github.com/w1xm/axis_control/fault"
)

// Trapezoid is a bounded ramp generator: velocity changes at most by the
// acceleration (speeding up) or deceleration (slowing down) each cycle, and
// position moves are braked so that they land exactly on the target.
type Trapezoid struct {
	base
}

func NewTrapezoid(cycleTime float64) *Trapezoid {
	return &Trapezoid{base: base{cycleTime: cycleTime}}
}

func (t *Trapezoid) Step(stop StopDecider) (Output, error) {
	return t.step(t, stop)
}

// DistanceToStop is v²/(2·dec).
func (t *Trapezoid) DistanceToStop(vel float64) (float64, bool) {
	if t.targets.Deceleration <= 0 {
		return 0, true
	}
	return vel * vel / (2 * t.targets.Deceleration), true
}

func (t *Trapezoid) limitsValid() bool {
	if !(t.targets.Acceleration > 0) || !(t.targets.Deceleration > 0) {
		return false
	}
	if t.execute && t.targets.Mode == Position && t.targets.Velocity == 0 {
		return false
	}
	return true
}

func (t *Trapezoid) free() (kinematics, bool, error) {
	if !t.execute && t.cur.vel == 0 {
		return kinematics{pos: t.cur.pos}, true, nil
	}
	if !t.limitsValid() {
		return kinematics{}, false, fault.ErrTrajLimitsInvalid
	}
	if !t.execute {
		return t.ramp(0, t.targets.Acceleration, t.targets.Deceleration)
	}
	switch t.targets.Mode {
	case Position:
		return t.position()
	case Velocity:
		next, done, err := t.ramp(t.targets.Velocity, t.targets.Acceleration, t.targets.Deceleration)
		// a velocity move stays busy while commanded to move
		return next, done && t.targets.Velocity == 0, err
	}
	return kinematics{}, false, fault.ErrTrajInvalidMode
}

func (t *Trapezoid) brake(mode StopMode) (kinematics, bool, error) {
	if t.cur.vel == 0 {
		return kinematics{pos: t.cur.pos}, true, nil
	}
	dec := t.decel(mode)
	if !(dec > 0) {
		return kinematics{}, false, fault.ErrTrajLimitsInvalid
	}
	return t.ramp(0, dec, dec)
}

// ramp moves velocity toward target, using dec while the speed magnitude
// shrinks and acc while it grows. A sign change stops at zero for one cycle.
func (t *Trapezoid) ramp(target, acc, dec float64) (kinematics, bool, error) {
	dt := t.cycleTime
	v := t.cur.vel
	next := target
	if v != target {
		rate := acc
		slowing := v != 0 && (target-v)*v < 0
		if slowing {
			rate = dec
		}
		step := rate * dt
		if math.Abs(target-v) > step {
			next = v + math.Copysign(step, target-v)
		}
		if slowing && next*v < 0 {
			next = 0
		}
	}
	k := kinematics{
		pos: t.cur.pos + (v+next)/2*dt,
		vel: next,
		acc: (next - v) / dt,
	}
	return k, next == target, nil
}

// position steps toward the target along the discrete braking curve: the
// largest velocity from which decelerating every cycle ends exactly on the
// target.
func (t *Trapezoid) position() (kinematics, bool, error) {
	dt := t.cycleTime
	acc, dec := t.targets.Acceleration, t.targets.Deceleration
	vMax := math.Abs(t.targets.Velocity)
	dist := t.targets.Position - t.cur.pos
	if dist == 0 && t.cur.vel == 0 {
		return kinematics{pos: t.cur.pos}, true, nil
	}

	// Work in the frame where the target lies ahead.
	s := 1.0
	if dist < 0 || (dist == 0 && t.cur.vel < 0) {
		s = -1
	}
	d, u := s*dist, s*t.cur.vel

	var brake float64
	if r := d - u*dt/2; r > 0 {
		h := dec * dt / 2
		brake = -h + math.Sqrt(h*h+2*dec*r)
	}
	rate := acc
	if u < 0 {
		rate = dec
	}
	next := math.Min(math.Min(brake, u+rate*dt), vMax)
	next = math.Max(next, u-dec*dt)

	left := d - (u+next)/2*dt
	if left <= 0 && u <= dec*dt*(1+1e-9) {
		return kinematics{pos: t.targets.Position}, true, nil
	}
	return kinematics{
		pos: t.cur.pos + s*(u+next)/2*dt,
		vel: s * next,
		acc: s * (next - u) / dt,
	}, false, nil
}
