package drive

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/w1xm/axis_control/fault"
)

type fakeIO struct {
	status   Status
	readErr  error
	writeErr error
	written  []Control
}

func (f *fakeIO) ReadStatus() (Status, error) { return f.status, f.readErr }

func (f *fakeIO) WriteControl(c Control) error {
	f.written = append(f.written, c)
	return f.writeErr
}

func (f *fakeIO) last() Control { return f.written[len(f.written)-1] }

func cycle(t *testing.T, d *Drive) {
	t.Helper()
	if err := d.ReadEntries(); err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	if err := d.WriteEntries(); err != nil {
		t.Fatalf("WriteEntries: %v", err)
	}
}

func TestStatusWord(t *testing.T) {
	for _, w := range []uint16{0, StatusReady | StatusEnabled, StatusFault | StatusHomeSwitch, 0x3f} {
		if got := StatusFromWord(w).Word(); got != w {
			t.Errorf("StatusFromWord(%#x).Word() = %#x", w, got)
		}
	}
	c := Control{Enable: true, ResetFault: true}
	if got := c.Word(); got != ControlEnable|ControlResetFault {
		t.Errorf("Control.Word() = %#x", got)
	}
}

func TestEnableHandshake(t *testing.T) {
	io := &fakeIO{status: Status{Ready: true}}
	d, err := New(Config{Scale: 100}, io, 0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.SetEnable(true)
	d.SetVelocity(1.5)
	cycle(t, d)
	if d.Enabled() {
		t.Errorf("enabled before the drive reported it")
	}
	if diff := cmp.Diff(io.last(), Control{Enable: true, Velocity: 150}); diff != "" {
		t.Errorf("control got(-)/want(+):\n%s", diff)
	}
	io.status.Enabled = true
	cycle(t, d)
	if !d.Enabled() {
		t.Errorf("not enabled after handshake")
	}
	d.SetEnable(false)
	cycle(t, d)
	if d.Enabled() {
		t.Errorf("still enabled after disable")
	}
	if diff := cmp.Diff(io.last(), Control{}); diff != "" {
		t.Errorf("disabled control got(-)/want(+):\n%s", diff)
	}
}

func TestEnableTimeout(t *testing.T) {
	io := &fakeIO{status: Status{Ready: true}}
	d, err := New(Config{Scale: 1, EnableTimeout: 10 * time.Millisecond}, io, 0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d.SetEnable(true)
	for i := 0; i < 20; i++ {
		cycle(t, d)
	}
	if got := d.ErrorID(); got != fault.ErrDrvEnableTimeout {
		t.Errorf("ErrorID = %v, want %v", got, fault.ErrDrvEnableTimeout)
	}
	if io.last().Enable {
		t.Errorf("enable still commanded after timeout")
	}
	d.SetEnable(true)
	cycle(t, d)
	if io.last().Enable {
		t.Errorf("enable accepted with a latched error")
	}
}

func TestVelocityClamp(t *testing.T) {
	d, err := New(Config{Scale: 1000, MaxRaw: 500}, &fakeIO{}, 0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, tc := range []struct {
		vel  float64
		want int64
	}{
		{0.2, 200},
		{-0.2, -200},
		{2, 500},
		{-2, -500},
	} {
		d.SetVelocity(tc.vel)
		if got := d.RawVelocity(); got != tc.want {
			t.Errorf("SetVelocity(%g): raw %d, want %d", tc.vel, got, tc.want)
		}
	}
}

func TestFaultAndReset(t *testing.T) {
	io := &fakeIO{status: Status{Ready: true, Fault: true, LimitBackward: true}}
	d, err := New(Config{Scale: 1}, io, 0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cycle(t, d)
	if d.HardwareOK() {
		t.Errorf("HardwareOK with fault bit set")
	}
	if got := d.ErrorID(); got != fault.ErrDrvHardwareFault {
		t.Errorf("ErrorID = %v, want %v", got, fault.ErrDrvHardwareFault)
	}
	if !d.LimitBackward() || d.LimitForward() {
		t.Errorf("limits fwd=%v bwd=%v, want false true", d.LimitForward(), d.LimitBackward())
	}

	io.status.Fault = false
	d.ErrorReset()
	cycle(t, d)
	if !io.last().ResetFault {
		t.Errorf("fault reset not pulsed")
	}
	cycle(t, d)
	if io.last().ResetFault {
		t.Errorf("fault reset held high")
	}
	if d.HasError() || !d.HardwareOK() {
		t.Errorf("drive not healthy after reset")
	}
}

func TestIOErrors(t *testing.T) {
	io := &fakeIO{readErr: errors.New("timeout")}
	d, err := New(Config{Scale: 1}, io, 0.001)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := d.ReadEntries(); err == nil {
		t.Errorf("ReadEntries succeeded")
	}
	if d.HardwareOK() {
		t.Errorf("HardwareOK after a failed read")
	}
	io.writeErr = errors.New("timeout")
	if err := d.WriteEntries(); err == nil {
		t.Errorf("WriteEntries succeeded")
	}
	if got := d.ErrorID(); got != fault.ErrDrvWriteFailed {
		t.Errorf("ErrorID = %v, want %v", got, fault.ErrDrvWriteFailed)
	}
	if _, err := New(Config{}, io, 0.001); err == nil {
		t.Errorf("New accepted zero scale")
	}
}
