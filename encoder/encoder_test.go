package encoder

import (
	"errors"
	"math"
	"testing"

	"github.com/w1xm/axis_control/fault"
)

type counter struct {
	counts int64
	err    error
}

func (c *counter) Counts() (int64, error) { return c.counts, c.err }

func TestScaling(t *testing.T) {
	src := &counter{counts: 2000}
	e, err := New(Config{ScaleNum: 360, ScaleDenom: 4000, Offset: 10}, src, 0.01)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.ReadEntries(); err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if got := e.Position(); math.Abs(got-190) > 1e-9 {
		t.Errorf("Position = %g, want 190", got)
	}
	if got := e.Velocity(); got != 0 {
		t.Errorf("first Velocity = %g, want 0", got)
	}
	src.counts = 2100
	if err := e.ReadEntries(); err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if got := e.Velocity(); math.Abs(got-900) > 1e-6 {
		t.Errorf("Velocity = %g, want 900", got)
	}
}

func TestUnwrap(t *testing.T) {
	for _, tc := range []struct {
		name     string
		readings []int64
		want     int64
	}{
		{"forward across wrap", []int64{65530, 4}, 65540},
		{"backward across wrap", []int64{3, 65533}, -3},
		{"no wrap", []int64{100, 200, 150}, 150},
	} {
		t.Run(tc.name, func(t *testing.T) {
			src := &counter{}
			e, err := New(Config{ScaleDenom: 1, Bits: 16}, src, 0.001)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			for _, r := range tc.readings {
				src.counts = r
				if err := e.ReadEntries(); err != nil {
					t.Fatalf("ReadEntries: %v", err)
				}
			}
			if got := e.RawPosition(); got != tc.want {
				t.Errorf("RawPosition = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestSetPosition(t *testing.T) {
	src := &counter{counts: 500}
	e, err := New(Config{ScaleNum: 1, ScaleDenom: 100, Relative: true}, src, 0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.ReadEntries(); err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	e.SetHomed(true)
	e.SetZeroIfRelative()
	if e.Position() != 0 || e.Homed() {
		t.Errorf("after zeroing pos=%g homed=%v, want 0 false", e.Position(), e.Homed())
	}
	e.SetPosition(3)
	src.counts = 600
	if err := e.ReadEntries(); err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if got := e.Position(); math.Abs(got-4) > 1e-12 {
		t.Errorf("Position = %g, want 4", got)
	}
	if got := e.Velocity(); math.Abs(got-1000) > 1e-6 {
		t.Errorf("Velocity = %g, want 1000", got)
	}
}

func TestErrors(t *testing.T) {
	if _, err := New(Config{ScaleNum: 1}, &counter{}, 0.001); !errors.Is(err, fault.ErrEncScaleDenomZero) {
		t.Errorf("New = %v, want %v", err, fault.ErrEncScaleDenomZero)
	}
	src := &counter{err: errors.New("bus down")}
	e, err := New(Config{ScaleDenom: 1}, src, 0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := e.ReadEntries(); err == nil {
		t.Errorf("ReadEntries succeeded on a failing source")
	}
	if got := e.ErrorID(); got != fault.ErrEncReadFailed {
		t.Errorf("ErrorID = %v, want %v", got, fault.ErrEncReadFailed)
	}
	e.ErrorReset()
	if e.HasError() {
		t.Errorf("error survived reset")
	}
}
