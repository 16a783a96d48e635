package axis

import (
	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
	"github.com/w1xm/axis_control/transform"
)

// externalSource follows other axes through an expression assigning pos and
// optionally vel and il, e.g. "pos := setpos0 * 2; il := err0 != 0".
// Without vel the velocity is the difference of successive positions.
type externalSource struct {
	tr        *transform.Transform
	cycleTime float64

	pos, vel  float64
	interlock bool
	primed    bool
}

func newExternalSource(cycleTime float64) *externalSource {
	return &externalSource{tr: transform.New(), cycleTime: cycleTime}
}

func (e *externalSource) setExpression(text string) error {
	if err := e.tr.SetExpression(text); err != nil {
		return err
	}
	e.primed = false
	return nil
}

func (e *externalSource) Compiled() bool { return e.tr.Compiled() }

func (e *externalSource) refresh(inputs map[string]float64) error {
	out, err := e.tr.Evaluate(inputs)
	if err != nil {
		return err
	}
	if pos, ok := out["pos"]; ok {
		if e.primed {
			e.vel = (pos - e.pos) / e.cycleTime
		}
		e.pos = pos
		e.primed = true
	}
	if vel, ok := out["vel"]; ok {
		e.vel = vel
	}
	e.interlock = out["il"] != 0
	return nil
}

func (e *externalSource) Position() float64 { return e.pos }
func (e *externalSource) Velocity() float64 { return e.vel }
func (e *externalSource) Interlock() bool   { return e.interlock }

func (e *externalSource) ErrorID() fault.Code { return e.tr.ErrorID() }
func (e *externalSource) ErrorReset()         { e.tr.ErrorReset() }

// SetExternalTrajectoryExpression sets the expression followed while the
// trajectory source is External.
func (a *Axis) SetExternalTrajectoryExpression(text string) error {
	if err := a.extTraj.setExpression(text); err != nil {
		return errors.Wrapf(err, "axis %d trajectory source", a.id)
	}
	return nil
}

// SetExternalEncoderExpression sets the expression read as feedback while
// the encoder source is External.
func (a *Axis) SetExternalEncoderExpression(text string) error {
	if err := a.extEnc.setExpression(text); err != nil {
		return errors.Wrapf(err, "axis %d encoder source", a.id)
	}
	return nil
}

func (a *Axis) refreshExternalInputs() {
	cmd := &a.data.Command
	if a.registry == nil || (cmd.TrajSource != External && cmd.EncSource != External) {
		return
	}
	inputs := a.registry.signals()
	if cmd.TrajSource == External {
		if err := a.extTraj.refresh(inputs); err != nil {
			a.logger.Debugf("axis[%d]: external trajectory: %v", a.id, err)
		}
	}
	if cmd.EncSource == External {
		if err := a.extEnc.refresh(inputs); err != nil {
			a.logger.Debugf("axis[%d]: external encoder: %v", a.id, err)
		}
	}
}
