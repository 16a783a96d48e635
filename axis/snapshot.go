package axis

import (
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
)

// Snapshot is the diagnostic record of one axis. Fields tagged report are
// printed, in order, by CSV and TablePrinter.
type Snapshot struct {
	AxisID              int           `report:"Ax"`
	PositionSetpoint    float64       `report:"PosSet"`
	ActualPosition      float64       `report:"PosAct"`
	ControlError        float64       `report:"PosErr"`
	TargetPosition      float64       `report:"PosTarg"`
	DistanceLeft        float64       `report:"DistLeft"`
	RawPosition         int64         `report:"PosRaw"`
	ControllerOutput    float64       `report:"CntrOut"`
	VelocitySetpoint    float64       `report:"VelSet"`
	ActualVelocity      float64       `report:"VelAct"`
	RawVelocity         int64         `report:"VelRaw"`
	CycleCounter        uint64        `report:"Cycle"`
	Error               fault.Code    `report:"Error"`
	Command             MotionCommand `report:"Co"`
	CommandData         int           `report:"CD"`
	SequenceState       int           `report:"St"`
	Interlocked         bool          `report:"IL"`
	LastActiveInterlock InterlockType `report:"LI"`
	TrajSource          DataSource    `report:"TS"`
	EncSource           DataSource    `report:"ES"`
	Enable              bool          `report:"En"`
	Enabled             bool          `report:"Ed"`
	Execute             bool          `report:"Ex"`
	Busy                bool          `report:"Bu"`
	AtTarget            bool          `report:"Ta"`
	Homed               bool          `report:"Hd"`
	LimitBackward       bool          `report:"L-"`
	LimitForward        bool          `report:"L+"`
	HomeSwitch          bool          `report:"Ho"`
}

func (a *Axis) Snapshot() Snapshot {
	d := &a.data
	st := &d.Status
	left := st.TargetPosition - st.PositionSetpoint
	if d.Command.Command == CommandMoveVelocity {
		left = 0
	}
	return Snapshot{
		AxisID:              a.id,
		PositionSetpoint:    st.PositionSetpoint,
		ActualPosition:      st.ActualPosition,
		ControlError:        st.ControlError(),
		TargetPosition:      st.TargetPosition,
		DistanceLeft:        left,
		RawPosition:         st.RawPosition,
		ControllerOutput:    st.ControllerOutput,
		VelocitySetpoint:    st.VelocitySetpoint,
		ActualVelocity:      st.ActualVelocity,
		RawVelocity:         a.drv.RawVelocity(),
		CycleCounter:        st.CycleCounter,
		Error:               a.ErrorID(),
		Command:             d.Command.Command,
		CommandData:         d.Command.CommandData,
		SequenceState:       a.seq.state,
		Interlocked:         d.Interlocks.ForwardSummary || d.Interlocks.BackwardSummary,
		LastActiveInterlock: d.Interlocks.LastActive,
		TrajSource:          d.Command.TrajSource,
		EncSource:           d.Command.EncSource,
		Enable:              d.Command.Enable,
		Enabled:             st.Enabled,
		Execute:             d.Command.Execute,
		Busy:                st.Busy,
		AtTarget:            st.AtTarget,
		Homed:               st.Homed,
		LimitBackward:       st.LimitBackward,
		LimitForward:        st.LimitForward,
		HomeSwitch:          st.HomeSwitch,
	}
}

type reportField struct {
	tag   string
	value reflect.Value
}

func (s Snapshot) fields() []reportField {
	v := reflect.ValueOf(s)
	var out []reportField
	for i := 0; i < v.NumField(); i++ {
		tag := v.Type().Field(i).Tag.Get("report")
		if tag == "" || tag == "-" {
			continue
		}
		out = append(out, reportField{tag, v.Field(i)})
	}
	return out
}

var codeType = reflect.TypeOf(fault.Code(0))

func formatField(fv reflect.Value, floatFormat string) string {
	if fv.Type() == codeType {
		return fmt.Sprintf("%x", fv.Uint())
	}
	switch fv.Kind() {
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf(floatFormat, fv.Float())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return fmt.Sprintf("%d", fv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", fv.Uint())
	case reflect.Bool:
		if fv.Bool() {
			return "1"
		}
		return "0"
	}
	return fmt.Sprint(fv.Interface())
}

// CSV formats the snapshot as one comma separated line. A line longer than
// limit bytes is an error; limit <= 0 disables the check.
func (s Snapshot) CSV(limit int) (string, error) {
	var parts []string
	for _, f := range s.fields() {
		parts = append(parts, formatField(f.value, "%f"))
	}
	line := strings.Join(parts, ",")
	if limit > 0 && len(line) > limit {
		return "", errors.Wrapf(fault.ErrAxisBufferTooSmall, "csv line is %d bytes, limit %d", len(line), limit)
	}
	return line, nil
}

// TableHeaderEvery is the number of rows between repeated headers.
const TableHeaderEvery = 25

// TablePrinter writes snapshots as aligned rows, skipping snapshots that
// differ from the previous one only in the cycle counter.
type TablePrinter struct {
	w    io.Writer
	rows int
	last *Snapshot
}

func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{w: w}
}

func columnWidth(f reportField) int {
	w := 2
	switch {
	case f.value.Kind() == reflect.Float64:
		w = 10
	case f.value.Type() == codeType, f.value.Kind() == reflect.Int64, f.value.Kind() == reflect.Uint64:
		w = 6
	}
	if len(f.tag) > w {
		w = len(f.tag)
	}
	return w
}

// Print writes s if it changed since the last printed row, with a header
// every TableHeaderEvery rows.
func (p *TablePrinter) Print(s Snapshot) error {
	if p.last != nil {
		prev := *p.last
		prev.CycleCounter = s.CycleCounter
		if prev == s {
			return nil
		}
	}
	fields := s.fields()
	if p.rows%TableHeaderEvery == 0 {
		var hdr []string
		for _, f := range fields {
			hdr = append(hdr, fmt.Sprintf("%*s", columnWidth(f), f.tag))
		}
		if _, err := fmt.Fprintln(p.w, strings.Join(hdr, " ")); err != nil {
			return err
		}
	}
	var row []string
	for _, f := range fields {
		row = append(row, fmt.Sprintf("%*s", columnWidth(f), formatField(f.value, "%.3f")))
	}
	if _, err := fmt.Fprintln(p.w, strings.Join(row, " ")); err != nil {
		return err
	}
	p.rows++
	p.last = &s
	return nil
}
