// Package otg is a single degree of freedom online trajectory generator.
//
// Every call to Update plans a piecewise constant jerk profile from the
// current kinematic state to the target and returns the state one cycle
// along it. Because the plan is recomputed each cycle the target and limits
// may change at any time.
package otg

import (
	"fmt"
	"math"
)

type Interface int

const (
	Position Interface = iota
	Velocity
)

// Result of a single Update.
type Result int

const (
	Working Result = iota
	Finished
	Error
	ErrorInvalidInput
	ErrorTrajectoryDuration
	ErrorPositionalLimits
	ErrorExecutionTimeCalculation
	ErrorSynchronizationCalculation
)

func (r Result) String() string {
	switch r {
	case Working:
		return "Working"
	case Finished:
		return "Finished"
	case Error:
		return "Error"
	case ErrorInvalidInput:
		return "ErrorInvalidInput"
	case ErrorTrajectoryDuration:
		return "ErrorTrajectoryDuration"
	case ErrorPositionalLimits:
		return "ErrorPositionalLimits"
	case ErrorExecutionTimeCalculation:
		return "ErrorExecutionTimeCalculation"
	case ErrorSynchronizationCalculation:
		return "ErrorSynchronizationCalculation"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

// Failed reports whether r is one of the error results.
func (r Result) Failed() bool {
	return r >= Error
}

// MaxDuration is the longest profile Update will plan, in seconds.
const MaxDuration = 7600.0

type Input struct {
	Interface Interface

	CurrentPosition     float64
	CurrentVelocity     float64
	CurrentAcceleration float64

	TargetPosition float64
	TargetVelocity float64

	MaxVelocity     float64
	MaxAcceleration float64
	MaxJerk         float64

	// Optional position limits, checked at every phase boundary.
	MinPosition *float64
	MaxPosition *float64
}

type Output struct {
	NewPosition     float64
	NewVelocity     float64
	NewAcceleration float64

	// Duration of the whole planned profile.
	Duration float64
}

type OTG struct {
	CycleTime float64
}

func New(cycleTime float64) *OTG {
	return &OTG{CycleTime: cycleTime}
}

func (o *OTG) Update(in Input) (Output, Result) {
	if !o.valid(in) {
		return Output{}, ErrorInvalidInput
	}
	var (
		prof profile
		res  Result
	)
	switch in.Interface {
	case Position:
		prof, res = positionProfile(in)
	case Velocity:
		prof = velocityProfile(in.CurrentVelocity, in.CurrentAcceleration, in.TargetVelocity, in.MaxAcceleration, in.MaxJerk)
	default:
		return Output{}, ErrorInvalidInput
	}
	if res.Failed() {
		return Output{}, res
	}
	total := prof.duration()
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return Output{}, ErrorExecutionTimeCalculation
	}
	if total > MaxDuration {
		return Output{Duration: total}, ErrorTrajectoryDuration
	}
	if !prof.withinLimits(in) {
		return Output{Duration: total}, ErrorPositionalLimits
	}

	out := Output{Duration: total}
	if total <= o.CycleTime {
		if in.Interface == Position {
			out.NewPosition = in.TargetPosition
			return out, Finished
		}
		out.NewPosition, _, _ = prof.integrate(in.CurrentPosition, in.CurrentVelocity, in.CurrentAcceleration, o.CycleTime)
		out.NewVelocity = in.TargetVelocity
		return out, Finished
	}
	out.NewPosition, out.NewVelocity, out.NewAcceleration = prof.integrate(in.CurrentPosition, in.CurrentVelocity, in.CurrentAcceleration, o.CycleTime)
	return out, Working
}

func (o *OTG) valid(in Input) bool {
	if !(o.CycleTime > 0) {
		return false
	}
	for _, f := range []float64{
		in.CurrentPosition, in.CurrentVelocity, in.CurrentAcceleration,
		in.TargetPosition, in.TargetVelocity,
		in.MaxVelocity, in.MaxAcceleration, in.MaxJerk,
	} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	if !(in.MaxAcceleration > 0) || !(in.MaxJerk > 0) {
		return false
	}
	if in.Interface == Position && !(in.MaxVelocity > 0) {
		return false
	}
	if in.MinPosition != nil && in.MaxPosition != nil && *in.MinPosition > *in.MaxPosition {
		return false
	}
	return true
}
