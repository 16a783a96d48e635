package otg

import (
	"math"
	"testing"
)

const dt = 1e-3

func run(t *testing.T, o *OTG, in Input, maxCycles int) (Input, int) {
	t.Helper()
	for i := 0; i < maxCycles; i++ {
		out, res := o.Update(in)
		if res.Failed() {
			t.Fatalf("cycle %d: Update failed: %v", i, res)
		}
		if dv := math.Abs(out.NewVelocity - in.CurrentVelocity); dv > in.MaxAcceleration*dt*(1+1e-9) {
			t.Fatalf("cycle %d: velocity step %g exceeds acceleration bound", i, dv)
		}
		if da := math.Abs(out.NewAcceleration - in.CurrentAcceleration); da > in.MaxJerk*dt*(1+1e-9) {
			t.Fatalf("cycle %d: acceleration step %g exceeds jerk bound", i, da)
		}
		if in.Interface == Position && math.Abs(out.NewVelocity) > in.MaxVelocity*(1+1e-9) {
			t.Fatalf("cycle %d: velocity %g exceeds limit", i, out.NewVelocity)
		}
		in.CurrentPosition, in.CurrentVelocity, in.CurrentAcceleration = out.NewPosition, out.NewVelocity, out.NewAcceleration
		if res == Finished {
			return in, i + 1
		}
	}
	t.Fatalf("did not finish within %d cycles", maxCycles)
	return in, maxCycles
}

func TestPositionConverges(t *testing.T) {
	for _, test := range []struct {
		name   string
		start  float64
		target float64
		v0     float64
	}{
		{"forward", 0, 100, 0},
		{"backward", 50, -20, 0},
		{"short", 0, 0.01, 0},
		{"moving away", 0, 10, -5},
		{"overshooting", 0, 0.1, 8},
	} {
		t.Run(test.name, func(t *testing.T) {
			in := Input{
				Interface:       Position,
				CurrentPosition: test.start,
				CurrentVelocity: test.v0,
				TargetPosition:  test.target,
				MaxVelocity:     10,
				MaxAcceleration: 50,
				MaxJerk:         500,
			}
			end, _ := run(t, New(dt), in, 100000)
			if math.Abs(end.CurrentPosition-test.target) > 1e-6 {
				t.Errorf("position = %g, want %g", end.CurrentPosition, test.target)
			}
			if end.CurrentVelocity != 0 || end.CurrentAcceleration != 0 {
				t.Errorf("final velocity/acceleration = %g/%g, want 0/0", end.CurrentVelocity, end.CurrentAcceleration)
			}
		})
	}
}

func TestPositionDuration(t *testing.T) {
	// 0.1s jerk, 0.1s hold, 0.1s jerk to reach 10, 9.7s cruise, then the mirror.
	o := New(dt)
	out, res := o.Update(Input{
		Interface:       Position,
		TargetPosition:  100,
		MaxVelocity:     10,
		MaxAcceleration: 50,
		MaxJerk:         500,
	})
	if res != Working {
		t.Fatalf("Update() = %v, want Working", res)
	}
	if want := 10.3; math.Abs(out.Duration-want) > 1e-9 {
		t.Errorf("Duration = %g, want %g", out.Duration, want)
	}
}

func TestVelocityReachesTarget(t *testing.T) {
	in := Input{
		Interface:       Velocity,
		TargetVelocity:  -4,
		MaxAcceleration: 20,
		MaxJerk:         200,
	}
	end, cycles := run(t, New(dt), in, 10000)
	if end.CurrentVelocity != -4 {
		t.Errorf("velocity = %g, want -4", end.CurrentVelocity)
	}
	if cycles < 200 {
		t.Errorf("finished in %d cycles, faster than the acceleration limit allows", cycles)
	}
}

func TestAlreadyAtTarget(t *testing.T) {
	out, res := New(dt).Update(Input{
		Interface:       Position,
		CurrentPosition: 3,
		TargetPosition:  3,
		MaxVelocity:     1,
		MaxAcceleration: 1,
		MaxJerk:         1,
	})
	if res != Finished || out.NewPosition != 3 {
		t.Errorf("Update() = %+v, %v; want position 3, Finished", out, res)
	}
}

func TestErrors(t *testing.T) {
	lim := 5.0
	for _, test := range []struct {
		name string
		in   Input
		want Result
	}{
		{"zero jerk", Input{Interface: Position, TargetPosition: 1, MaxVelocity: 1, MaxAcceleration: 1}, ErrorInvalidInput},
		{"nan target", Input{Interface: Position, TargetPosition: math.NaN(), MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1}, ErrorInvalidInput},
		{"zero velocity limit", Input{Interface: Position, TargetPosition: 1, MaxAcceleration: 1, MaxJerk: 1}, ErrorInvalidInput},
		{"unknown interface", Input{Interface: Interface(7), MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1}, ErrorInvalidInput},
		{"too long", Input{Interface: Position, TargetPosition: 1e6, MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1}, ErrorTrajectoryDuration},
		{"beyond limit", Input{Interface: Position, TargetPosition: 10, MaxVelocity: 1, MaxAcceleration: 1, MaxJerk: 1, MaxPosition: &lim}, ErrorPositionalLimits},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, got := New(dt).Update(test.in); got != test.want {
				t.Errorf("Update() = %v, want %v", got, test.want)
			}
		})
	}
}

func TestVelocityProfileFromOpposingAcceleration(t *testing.T) {
	for _, test := range []struct {
		name   string
		v0, a0 float64
		target float64
	}{
		{"at rest", 0, 0, 5},
		{"with the target", 0, 30, 5},
		{"opposing within limit", 0, -30, 5},
		{"opposing beyond limit", 0, -80, 5},
		{"opposing beyond limit backward", 2, 80, -5},
	} {
		t.Run(test.name, func(t *testing.T) {
			p := velocityProfile(test.v0, test.a0, test.target, 50, 500)
			_, v, a := p.integrate(0, test.v0, test.a0, p.duration())
			if math.Abs(v-test.target) > 1e-9 || math.Abs(a) > 1e-9 {
				t.Errorf("end velocity/acceleration = %g/%g, want %g/0", v, a, test.target)
			}
		})
	}
}
