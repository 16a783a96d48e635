package axis

import (
	"math"

	"github.com/w1xm/axis_control/fault"
)

type MonitorConfig struct {
	EnableSoftLimitForward  bool
	EnableSoftLimitBackward bool
	SoftLimitForward        float64
	SoftLimitBackward       float64

	// AtTargetTolerance is the largest |target - actual| counted as at
	// target. Zero reports at target as soon as the move is done.
	AtTargetTolerance float64
	// AtTargetCycles is how many consecutive cycles the position must stay
	// within tolerance.
	AtTargetCycles int
}

// Monitor derives limit interlocks and the at-target flag.
type Monitor struct {
	fault.Holder
	cfg MonitorConfig

	atTargetCount int
	lastFwd       bool
	lastBwd       bool
}

func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{cfg: cfg}
}

func (m *Monitor) Config() MonitorConfig {
	return m.cfg
}

func (m *Monitor) SetConfig(cfg MonitorConfig) {
	m.cfg = cfg
}

// refreshInterlocks reads limit switches and soft limits into d. While
// homing the backward limit switch is the expected end of the search.
func (m *Monitor) refreshInterlocks(d *Data, limits LimitSwitches, homing bool) {
	st, il := &d.Status, &d.Interlocks
	st.LimitForward = limits.LimitForward()
	st.LimitBackward = limits.LimitBackward()
	st.HomeSwitch = limits.HomeSwitch()

	il.HardLimitForward = st.LimitForward
	il.HardLimitBackward = st.LimitBackward
	il.SoftLimitForward = m.cfg.EnableSoftLimitForward &&
		(st.PositionSetpoint >= m.cfg.SoftLimitForward || st.ActualPosition >= m.cfg.SoftLimitForward)
	il.SoftLimitBackward = m.cfg.EnableSoftLimitBackward &&
		(st.PositionSetpoint <= m.cfg.SoftLimitBackward || st.ActualPosition <= m.cfg.SoftLimitBackward)

	// Running into a limit is an error; sitting on one is only an interlock.
	fwd := il.HardLimitForward || il.SoftLimitForward
	bwd := il.HardLimitBackward || il.SoftLimitBackward
	if fwd && !m.lastFwd && st.Busy && st.VelocitySetpoint > 0 {
		if il.HardLimitForward {
			m.SetError(fault.ErrMonHardLimitForward)
		} else {
			m.SetError(fault.ErrMonSoftLimitForward)
		}
	}
	if bwd && !m.lastBwd && st.Busy && st.VelocitySetpoint < 0 {
		switch {
		case homing && il.HardLimitBackward:
		case il.HardLimitBackward:
			m.SetError(fault.ErrMonHardLimitBackward)
		default:
			m.SetError(fault.ErrMonSoftLimitBackward)
		}
	}
	m.lastFwd, m.lastBwd = fwd, bwd
}

func (m *Monitor) execute(d *Data) {
	st := &d.Status
	if st.Busy || !st.Enabled {
		m.atTargetCount = 0
		st.AtTarget = false
		return
	}
	if m.cfg.AtTargetTolerance > 0 && math.Abs(st.TargetPosition-st.ActualPosition) > m.cfg.AtTargetTolerance {
		m.atTargetCount = 0
		st.AtTarget = false
		return
	}
	if m.atTargetCount < m.cfg.AtTargetCycles {
		m.atTargetCount++
	}
	st.AtTarget = m.atTargetCount >= m.cfg.AtTargetCycles
}

// checkTarget reports whether a position target lies outside an enabled
// soft limit.
func (m *Monitor) checkTarget(target float64) fault.Code {
	if m.cfg.EnableSoftLimitForward && target > m.cfg.SoftLimitForward {
		return fault.ErrSeqTargetOutsideSoftLimits
	}
	if m.cfg.EnableSoftLimitBackward && target < m.cfg.SoftLimitBackward {
		return fault.ErrSeqTargetOutsideSoftLimits
	}
	return 0
}
