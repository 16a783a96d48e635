// Package axis coordinates one motion axis per control cycle: interlocks,
// feedback, the enable state machine, the trajectory step and the hand off
// to controller and drive.
//
// An Axis is not safe for concurrent use. All calls, commands included, must
// come from the goroutine running the cycle.
package axis

import (
	"fmt"
	"math"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
	"github.com/w1xm/axis_control/trajectory"
)

type Config struct {
	ID        int
	CycleTime time.Duration

	Generator  trajectory.Generator
	Encoder    Encoder
	Drive      Drive
	Controller Controller    // optional
	Limits     LimitSwitches // optional

	Monitor   MonitorConfig
	Sequencer SequencerConfig

	// SnapshotEvery publishes a Snapshot to OnSnapshot every n cycles.
	SnapshotEvery int
	OnSnapshot    func(Snapshot)

	Logger golog.Logger
}

type Axis struct {
	fault.Holder

	id        int
	cycleTime float64
	logger    golog.Logger

	data  Data
	state State

	traj   trajectory.Generator
	enc    Encoder
	drv    Drive
	cntrl  Controller
	limits LimitSwitches
	mon    *Monitor
	seq    *sequencer

	extTraj *externalSource
	extEnc  *externalSource
	cascade cascade

	registry *Registry

	// halt stops the generator until the next execute.
	halt           bool
	realtime       bool
	inStartupPhase bool

	snapshotEvery int
	onSnapshot    func(Snapshot)
	lastError     fault.Code
}

func New(cfg Config) (*Axis, error) {
	if cfg.CycleTime <= 0 {
		return nil, errors.Wrapf(fault.ErrAxisCycleTimeInvalid, "axis %d", cfg.ID)
	}
	if cfg.Generator == nil || cfg.Encoder == nil || cfg.Drive == nil {
		return nil, errors.Errorf("axis %d: generator, encoder and drive are required", cfg.ID)
	}
	a := &Axis{
		id:             cfg.ID,
		cycleTime:      cfg.CycleTime.Seconds(),
		logger:         cfg.Logger,
		traj:           cfg.Generator,
		enc:            cfg.Encoder,
		drv:            cfg.Drive,
		cntrl:          cfg.Controller,
		limits:         cfg.Limits,
		mon:            NewMonitor(cfg.Monitor),
		snapshotEvery:  cfg.SnapshotEvery,
		onSnapshot:     cfg.OnSnapshot,
		inStartupPhase: true,
	}
	if a.logger == nil {
		a.logger = golog.NewDevelopmentLogger(fmt.Sprintf("axis%d", cfg.ID))
	}
	if a.limits == nil {
		a.limits = noLimits{}
	}
	a.seq = &sequencer{cfg: cfg.Sequencer, traj: a.traj, enc: a.enc, mon: a.mon}
	a.extTraj = newExternalSource(a.cycleTime)
	a.extEnc = newExternalSource(a.cycleTime)
	return a, nil
}

func (a *Axis) ID() int { return a.id }

func (a *Axis) State() State { return a.state }

// Data returns a copy of the axis record.
func (a *Axis) Data() Data { return a.data }

func (a *Axis) Monitor() *Monitor { return a.mon }

// SetRealtimeStarted marks the cycle as running. Configuration that must be
// valid in realtime is checked from then on.
func (a *Axis) SetRealtimeStarted(started bool) { a.realtime = started }

func (a *Axis) SetInStartupPhase(startup bool) { a.inStartupPhase = startup }

// PreExecute runs the first half of a cycle. masterOK reports bus health.
func (a *Axis) PreExecute(masterOK bool) {
	d := &a.data
	st := &d.Status

	a.refreshExternalInputs()
	if err := a.drv.ReadEntries(); err != nil {
		a.logger.Debugf("axis[%d]: reading drive: %v", a.id, err)
	}
	if !masterOK && !a.inStartupPhase {
		a.SetError(fault.ErrAxisHardwareStatusNotOK)
		a.inStartupPhase = true
	}
	a.refreshInterlocks(masterOK)
	st.Moving = math.Abs(st.ActualVelocity) > 0
	a.readFeedback()
	st.Enabled = a.drv.Enabled()

	a.runStateMachine(masterOK)
	if a.state == Enabled {
		a.stepTrajectory()
	} else {
		// nothing is commanded, the setpoint follows the axis
		st.PositionSetpoint = st.ActualPosition
		st.VelocitySetpoint = 0
		st.AccelerationSetpoint = 0
	}

	a.mon.execute(d)
	a.seq.execute(d)
}

// Control hands the setpoint to the controller and drive. It runs between
// PreExecute and PostExecute.
func (a *Axis) Control() {
	st := &a.data.Status
	if a.state == Enabled && st.Enabled {
		out := st.VelocitySetpoint
		if a.cntrl != nil {
			out = a.cntrl.Control(st.PositionSetpoint, st.ActualPosition, st.VelocitySetpoint)
		}
		st.ControllerOutput = out
	} else {
		st.ControllerOutput = 0
		if a.cntrl != nil {
			a.cntrl.Reset()
		}
	}
	a.drv.SetVelocity(st.ControllerOutput)
	if err := a.drv.WriteEntries(); err != nil {
		a.logger.Debugf("axis[%d]: writing drive: %v", a.id, err)
	}
}

// PostExecute finishes a cycle: encoder outputs, history and diagnostics.
func (a *Axis) PostExecute(masterOK bool) {
	d := &a.data
	st := &d.Status
	if err := a.enc.WriteEntries(); err != nil {
		a.logger.Debugf("axis[%d]: writing encoder: %v", a.id, err)
	}

	if st.Busy != st.BusyOld {
		a.logger.Debugf("axis[%d].busy=%v", a.id, st.Busy)
	}
	if st.Enabled != st.EnabledOld {
		a.logger.Infof("axis[%d].enabled=%v", a.id, st.Enabled)
	}
	if st.Moving != st.MovingOld {
		a.logger.Debugf("axis[%d].moving=%v actual=%.4f setpoint=%.4f", a.id, st.Moving, st.ActualPosition, st.PositionSetpoint)
	}
	if code := a.ErrorID(); code != a.lastError {
		if code != 0 {
			a.logger.Errorf("axis[%d].error=%v", a.id, code)
		} else {
			a.logger.Infof("axis[%d].error cleared", a.id)
		}
		a.lastError = code
	}

	st.BusyOld = st.Busy
	st.EnabledOld = st.Enabled
	st.MovingOld = st.Moving
	st.ExecuteOld = d.Command.Execute
	st.PositionSetpointOld = st.PositionSetpoint
	st.VelocitySetpointOld = st.VelocitySetpoint
	st.ActualPositionOld = st.ActualPosition
	st.ActualVelocityOld = st.ActualVelocity
	st.ControllerOutputOld = st.ControllerOutput
	st.CycleCounter++

	if a.onSnapshot != nil && a.snapshotEvery > 0 && st.CycleCounter%uint64(a.snapshotEvery) == 0 {
		a.onSnapshot(a.Snapshot())
	}
}

func (a *Axis) refreshInterlocks(masterOK bool) {
	il := &a.data.Interlocks
	il.Bus = !masterOK
	il.Hardware = !a.drv.HardwareOK()
	il.AxisError = a.collaboratorError() != 0
	il.External = (a.data.Command.TrajSource == External && a.extTraj.Interlock()) ||
		(a.data.Command.EncSource == External && a.extEnc.Interlock())
	a.mon.refreshInterlocks(&a.data, a.limits, a.seq.busy())
	il.Refresh()
}

func (a *Axis) readFeedback() {
	st := &a.data.Status
	if a.data.Command.EncSource == External {
		st.ActualPosition = a.extEnc.Position()
		st.ActualVelocity = a.extEnc.Velocity()
		st.Homed = a.enc.Homed()
		return
	}
	if err := a.enc.ReadEntries(); err != nil {
		a.logger.Debugf("axis[%d]: reading encoder: %v", a.id, err)
	}
	st.ActualPosition = a.enc.Position()
	st.ActualVelocity = a.enc.Velocity()
	st.RawPosition = a.enc.RawPosition()
	st.Homed = a.enc.Homed()
}

func (a *Axis) stopDecider(dir trajectory.Direction) (bool, trajectory.StopMode) {
	il := &a.data.Interlocks
	mode := il.StopMode(a.data.Command.StopMode)
	if a.halt {
		return true, mode
	}
	return StopPolicy(a.data.Command.TrajSource, dir, il.ForwardSummary, il.BackwardSummary, mode)
}

func (a *Axis) stepTrajectory() {
	st := &a.data.Status
	out, err := a.traj.Step(a.stopDecider)
	if err != nil {
		a.logger.Debugf("axis[%d]: trajectory step: %v", a.id, err)
	}
	if a.data.Command.TrajSource == External {
		st.PositionSetpoint = a.extTraj.Position()
		st.VelocitySetpoint = a.extTraj.Velocity()
		st.AccelerationSetpoint = 0
		st.Busy = true
		return
	}
	st.PositionSetpoint = out.Position
	st.VelocitySetpoint = out.Velocity
	st.AccelerationSetpoint = out.Acceleration
	st.Busy = out.Busy || a.seq.busy()
}

// Direction of the setpoint this cycle.
func (a *Axis) Direction() trajectory.Direction {
	st := &a.data.Status
	if !st.Enabled {
		return trajectory.Standstill
	}
	if a.data.Command.TrajSource == Internal {
		return a.traj.Direction()
	}
	switch {
	case st.PositionSetpoint > st.PositionSetpointOld:
		return trajectory.Forward
	case st.PositionSetpoint < st.PositionSetpointOld:
		return trajectory.Backward
	}
	return trajectory.Standstill
}
