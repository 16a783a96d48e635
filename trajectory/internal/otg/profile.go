package otg

import "math"

const (
	eps            = 1e-12
	bisectionSteps = 200
)

type phase struct {
	jerk     float64
	duration float64
}

type profile []phase

func (p profile) duration() float64 {
	var t float64
	for _, ph := range p {
		t += ph.duration
	}
	return t
}

// integrate advances the state (pos, vel, acc) by t seconds along p. Time
// beyond the end of p continues at constant velocity.
func (p profile) integrate(pos, vel, acc, t float64) (float64, float64, float64) {
	for _, ph := range p {
		if t <= 0 {
			break
		}
		h := math.Min(t, ph.duration)
		pos += vel*h + acc*h*h/2 + ph.jerk*h*h*h/6
		vel += acc*h + ph.jerk*h*h/2
		acc += ph.jerk * h
		t -= h
	}
	if t > 0 {
		pos += vel * t
	}
	return pos, vel, acc
}

func (p profile) withinLimits(in Input) bool {
	if in.MinPosition == nil && in.MaxPosition == nil {
		return true
	}
	check := func(x float64) bool {
		if in.MinPosition != nil && x < *in.MinPosition-eps {
			return false
		}
		if in.MaxPosition != nil && x > *in.MaxPosition+eps {
			return false
		}
		return true
	}
	pos, vel, acc := in.CurrentPosition, in.CurrentVelocity, in.CurrentAcceleration
	for _, ph := range p {
		pos, vel, acc = profile{ph}.integrate(pos, vel, acc, ph.duration)
		if !check(pos) {
			return false
		}
	}
	return true
}

func sign(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}

// velocityProfile brings (v0, a0) to (vT, 0) with |a| <= aMax where a0
// allows it. The shape is ramp acceleration, hold, ramp to zero.
func velocityProfile(v0, a0, vT, aMax, j float64) profile {
	// velocity reached by bringing acceleration straight to zero
	vStop := v0 + a0*math.Abs(a0)/(2*j)
	if math.Abs(vT-vStop) < eps {
		if a0 == 0 {
			return nil
		}
		return profile{{jerk: -sign(a0) * j, duration: math.Abs(a0) / j}}
	}
	d := sign(vT - vStop)
	a0m, delta := d*a0, d*(vT-v0)

	ap := math.Sqrt((2*j*delta + a0m*a0m) / 2)
	var hold float64
	if ap > aMax {
		ap = aMax
		// a0m may oppose d with a magnitude above aMax, making the first
		// phase lose velocity
		ramp := math.Abs(ap-a0m)*(ap+a0m)/(2*j) + ap*ap/(2*j)
		hold = math.Max(0, (delta-ramp)/ap)
	}
	j1 := j
	if ap < a0m {
		j1 = -j
	}
	return profile{
		{jerk: d * j1, duration: math.Abs(ap-a0m) / j},
		{jerk: 0, duration: hold},
		{jerk: -d * j, duration: ap / j},
	}
}

func distance(p profile, v0, a0 float64) float64 {
	pos, _, _ := p.integrate(0, v0, a0, p.duration())
	return pos
}

// positionProfile plans (p0, v0, a0) to (pT, 0, 0) through a cruise
// velocity vc: reach vc, hold it, then brake to rest.
func positionProfile(in Input) (profile, Result) {
	v0, a0 := in.CurrentVelocity, in.CurrentAcceleration
	aMax, j, vMax := in.MaxAcceleration, in.MaxJerk, in.MaxVelocity
	dist := in.TargetPosition - in.CurrentPosition
	if dist == 0 && v0 == 0 && a0 == 0 {
		return nil, Finished
	}

	plan := func(vc float64) (profile, profile, float64) {
		reach := velocityProfile(v0, a0, vc, aMax, j)
		brake := velocityProfile(vc, 0, 0, aMax, j)
		return reach, brake, distance(reach, v0, a0) + distance(brake, vc, 0)
	}
	join := func(reach, brake profile, cruise float64) profile {
		out := make(profile, 0, len(reach)+len(brake)+1)
		out = append(out, reach...)
		out = append(out, phase{duration: cruise})
		return append(out, brake...)
	}

	reach, brake, fMax := plan(vMax)
	if dist >= fMax {
		return join(reach, brake, (dist-fMax)/vMax), Working
	}
	reach, brake, fMin := plan(-vMax)
	if dist <= fMin {
		return join(reach, brake, (dist-fMin)/-vMax), Working
	}
	if math.IsNaN(fMax) || math.IsNaN(fMin) {
		return nil, ErrorExecutionTimeCalculation
	}

	lo, hi := -vMax, vMax
	for i := 0; i < bisectionSteps && hi-lo > eps*vMax; i++ {
		mid := (lo + hi) / 2
		_, _, f := plan(mid)
		if math.IsNaN(f) {
			return nil, ErrorExecutionTimeCalculation
		}
		if f < dist {
			lo = mid
		} else {
			hi = mid
		}
	}
	reach, brake, _ = plan((lo + hi) / 2)
	return join(reach, brake, 0), Working
}
