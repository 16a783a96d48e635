package axis

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
)

// Registry holds the axes of one machine, indexed by axis id, and runs
// their cycles in id order.
type Registry struct {
	axes []*Axis
}

func NewRegistry(size int) *Registry {
	return &Registry{axes: make([]*Axis, size)}
}

func (r *Registry) Add(a *Axis) error {
	if a.id < 0 || a.id >= len(r.axes) {
		return errors.Wrapf(fault.ErrAxisIndexOutOfRange, "adding axis %d", a.id)
	}
	if r.axes[a.id] != nil {
		return errors.Errorf("axis %d already registered", a.id)
	}
	r.axes[a.id] = a
	a.registry = r
	return nil
}

// Axis returns the axis with id i.
func (r *Registry) Axis(i int) (*Axis, error) {
	if i < 0 || i >= len(r.axes) || r.axes[i] == nil {
		return nil, errors.Wrapf(fault.ErrAxisIndexOutOfRange, "axis %d", i)
	}
	return r.axes[i], nil
}

// Axes returns the registered axes in id order.
func (r *Registry) Axes() []*Axis {
	var out []*Axis
	for _, a := range r.axes {
		if a != nil {
			out = append(out, a)
		}
	}
	return out
}

func (r *Registry) SetRealtimeStarted(started bool) {
	for _, a := range r.Axes() {
		a.SetRealtimeStarted(started)
	}
}

// Cycle runs one control cycle over every axis.
func (r *Registry) Cycle(masterOK bool) {
	axes := r.Axes()
	for _, a := range axes {
		a.PreExecute(masterOK)
	}
	for _, a := range axes {
		a.Control()
	}
	for _, a := range axes {
		a.PostExecute(masterOK)
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// signals is the variable set seen by expressions, suffixed by axis id.
func (r *Registry) signals() map[string]float64 {
	out := make(map[string]float64)
	for _, a := range r.Axes() {
		d := &a.data
		for name, v := range map[string]float64{
			"setpos":   d.Status.PositionSetpoint,
			"actpos":   d.Status.ActualPosition,
			"setvel":   d.Status.VelocitySetpoint,
			"actvel":   d.Status.ActualVelocity,
			"en":       b2f(d.Command.Enable),
			"enabled":  b2f(d.Status.Enabled),
			"ex":       b2f(d.Command.Execute),
			"busy":     b2f(d.Status.Busy),
			"attarget": b2f(d.Status.AtTarget),
			"ilfwd":    b2f(d.Interlocks.ForwardSummary),
			"ilbwd":    b2f(d.Interlocks.BackwardSummary),
			"err":      float64(a.ErrorID()),
		} {
			out[fmt.Sprintf("%s%d", name, a.id)] = v
		}
	}
	return out
}
