package axis

import (
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
	"github.com/w1xm/axis_control/transform"
)

// cascade propagates this axis' enable and execute commands to other axes
// through an expression such as "en1 := en0; ex1 := ex0".
type cascade struct {
	// accept lets other axes command this one.
	accept bool
	// propagate evaluates tr after every enable or execute command.
	propagate bool
	// active is set while this axis' outputs are being pushed, so a cycle
	// of cascades stops when it comes back around.
	active bool
	tr     *transform.Transform
}

func (c *cascade) ErrorID() fault.Code {
	if c.tr == nil {
		return 0
	}
	return c.tr.ErrorID()
}

func (c *cascade) ErrorReset() {
	if c.tr != nil {
		c.tr.ErrorReset()
	}
}

// SetEnableCascadedCommands lets other axes' command transforms drive this
// axis.
func (a *Axis) SetEnableCascadedCommands(enable bool) { a.cascade.accept = enable }

func (a *Axis) CascadedCommandsEnabled() bool { return a.cascade.accept }

func (a *Axis) SetCommandsTransformExpression(text string) error {
	tr := transform.New()
	if err := tr.SetExpression(text); err != nil {
		a.SetError(fault.ErrAxisTransformNotCompiled)
		return errors.Wrapf(err, "axis %d commands transform", a.id)
	}
	a.cascade.tr = tr
	return nil
}

// SetEnableCommandsTransform turns propagation on or off. Once realtime has
// started the expression must already be compiled.
func (a *Axis) SetEnableCommandsTransform(enable bool) error {
	if enable && a.realtime && (a.cascade.tr == nil || !a.cascade.tr.Compiled()) {
		return a.SetError(fault.ErrAxisTransformNotCompiled)
	}
	a.cascade.propagate = enable
	return nil
}

var commandTargetRE = regexp.MustCompile(`^(en|ex)([0-9]+)$`)

// transformCommands pushes changed enable/execute outputs to axes that
// accept cascaded commands. It never commands the axis itself.
func (a *Axis) transformCommands() error {
	if !a.cascade.propagate || a.registry == nil {
		return nil
	}
	if a.cascade.active {
		a.logger.Debugf("axis[%d]: commands transform re-entered through a cascade loop; not propagating", a.id)
		return nil
	}
	a.cascade.active = true
	defer func() { a.cascade.active = false }()
	tr := a.cascade.tr
	if tr == nil || !tr.Compiled() {
		return a.SetError(fault.ErrAxisTransformNotCompiled)
	}
	out, err := tr.Evaluate(a.registry.signals())
	if err != nil {
		return errors.Wrapf(err, "axis %d commands transform", a.id)
	}
	for _, name := range tr.Targets() {
		m := commandTargetRE.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil || idx == a.id {
			continue
		}
		target, err := a.registry.Axis(idx)
		if err != nil {
			a.SetError(fault.ErrAxisIndexOutOfRange)
			return err
		}
		if !target.CascadedCommandsEnabled() {
			continue
		}
		v := out[name] != 0
		switch m[1] {
		case "en":
			if target.data.Command.Enable != v {
				if err := target.SetEnable(v); err != nil {
					a.logger.Warnf("axis[%d]: cascading enable to axis %d: %v", a.id, idx, err)
				}
			}
		case "ex":
			if target.data.Command.Execute != v {
				if err := target.SetExecute(v); err != nil {
					a.logger.Warnf("axis[%d]: cascading execute to axis %d: %v", a.id, idx, err)
				}
			}
		}
	}
	return nil
}
