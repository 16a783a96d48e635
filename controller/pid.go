// Package controller closes the position loop around a velocity drive.
package controller

import (
	"math"

	"github.com/w1xm/axis_control/fault"
)

type Config struct {
	Kp, Ki, Kd float64
	// Kff scales the velocity setpoint fed forward to the output.
	Kff float64
	// OutputLimit clamps the output. Zero disables clamping.
	OutputLimit float64
	// IntegralLimit clamps the integral term. Zero disables clamping.
	IntegralLimit float64
	// SaturationCycles raises an error after the output has been clamped
	// this many cycles in a row. Zero never raises.
	SaturationCycles int
}

// PID is a position controller with velocity feed forward.
type PID struct {
	fault.Holder

	cfg       Config
	cycleTime float64

	integral  float64
	lastError float64
	primed    bool
	saturated int
}

func New(cfg Config, cycleTime float64) *PID {
	return &PID{cfg: cfg, cycleTime: cycleTime}
}

func clamp(v, limit float64) (float64, bool) {
	if limit <= 0 {
		return v, false
	}
	if v > limit {
		return limit, true
	}
	if v < -limit {
		return -limit, true
	}
	return v, false
}

func (p *PID) Control(setpoint, actual, feedForward float64) float64 {
	e := setpoint - actual
	p.integral, _ = clamp(p.integral+p.cfg.Ki*e*p.cycleTime, p.cfg.IntegralLimit)
	var d float64
	if p.primed {
		d = p.cfg.Kd * (e - p.lastError) / p.cycleTime
	}
	p.lastError, p.primed = e, true

	out := p.cfg.Kff*feedForward + p.cfg.Kp*e + p.integral + d
	if math.IsNaN(out) {
		return 0
	}
	out, sat := clamp(out, p.cfg.OutputLimit)
	if !sat {
		p.saturated = 0
		return out
	}
	p.saturated++
	if p.cfg.SaturationCycles > 0 && p.saturated >= p.cfg.SaturationCycles {
		p.SetError(fault.ErrCntrlOutputSaturated)
	}
	return out
}

func (p *PID) Reset() {
	p.integral, p.lastError = 0, 0
	p.primed = false
	p.saturated = 0
}
