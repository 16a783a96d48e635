package axis

import "github.com/w1xm/axis_control/fault"

// ErrorID is the axis error: its own, else the first collaborator error in
// priority order monitor, encoder, drive, trajectory, controller, sequencer
// and then the expression sources.
func (a *Axis) ErrorID() fault.Code {
	if c := a.Holder.ErrorID(); c != 0 {
		return c
	}
	return fault.First(a.sources()...)
}

func (a *Axis) HasError() bool {
	return a.ErrorID() != 0
}

// ErrorReset clears every collaborator and then the axis itself.
func (a *Axis) ErrorReset() {
	for _, r := range a.resettables() {
		r.ErrorReset()
	}
	a.Holder.ErrorReset()
}

func (a *Axis) sources() []fault.Source {
	srcs := []fault.Source{a.mon, a.enc, a.drv, a.traj}
	if a.cntrl != nil {
		srcs = append(srcs, a.cntrl)
	}
	return append(srcs, a.seq, a.extTraj, a.extEnc, &a.cascade)
}

func (a *Axis) resettables() []fault.Resettable {
	rs := []fault.Resettable{a.mon, a.enc, a.drv, a.traj}
	if a.cntrl != nil {
		rs = append(rs, a.cntrl)
	}
	return append(rs, a.seq, a.extTraj, a.extEnc, &a.cascade)
}

// collaboratorError is the first error of the parts that move the axis.
// Any of them interlocks motion in both directions.
func (a *Axis) collaboratorError() fault.Code {
	srcs := []fault.Source{a.enc, a.drv, a.traj}
	if a.cntrl != nil {
		srcs = append(srcs, a.cntrl)
	}
	return fault.First(srcs...)
}
