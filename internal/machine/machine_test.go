package machine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"github.com/w1xm/axis_control/axis"
	"github.com/w1xm/axis_control/internal/config"
)

const twoAxes = `
cycle_time: 1ms
http:
  snapshot_every: 10
axes:
  - id: 0
    velocity: 5
    acceleration: 50
    encoder:
      scale_denom: 1000
    drive:
      scale: 1000
    pid:
      kp: 20
      kff: 1
    commands_transform: "en1 := en0"
  - id: 1
    velocity: 5
    acceleration: 50
    accept_cascaded: true
    encoder:
      scale_denom: 1000
    drive:
      scale: 1000
`

func newTestMachine(t *testing.T, text string) *Machine {
	t.Helper()
	cfg, err := config.Parse([]byte(text))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	m, err := New(cfg, golog.NewTestLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func (m *Machine) step() {
	m.Tick()
	for _, p := range m.plants {
		p.Step(m.cfg.CycleTime)
	}
}

// do runs fn through Do while stepping the machine by hand.
func (m *Machine) do(t *testing.T, fn func(*axis.Registry) error) error {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- m.Do(context.Background(), fn) }()
	for i := 0; i < 10000; i++ {
		select {
		case err := <-done:
			return err
		default:
		}
		m.step()
		time.Sleep(10 * time.Microsecond)
	}
	t.Fatalf("command never ran")
	return nil
}

func TestNew(t *testing.T) {
	m := newTestMachine(t, twoAxes)
	if got := len(m.registry.Axes()); got != 2 {
		t.Errorf("got %d axes, want 2", got)
	}
	if got := len(m.Plants()); got != 2 {
		t.Errorf("got %d plants, want 2", got)
	}
	if m.client != nil {
		t.Errorf("modbus client built without modbus config")
	}
	a1, err := m.registry.Axis(1)
	if err != nil {
		t.Fatal(err)
	}
	if !a1.CascadedCommandsEnabled() {
		t.Errorf("axis 1 does not accept cascaded commands")
	}
}

func TestNewRejectsBadExpressions(t *testing.T) {
	cfg, err := config.Parse([]byte(`
axes:
  - id: 0
    acceleration: 1
    external_trajectory: "pos := "
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	if _, err := New(cfg, golog.NewTestLogger(t)); err == nil {
		t.Errorf("New accepted an expression that does not compile")
	}
}

func TestMoveAndCascade(t *testing.T) {
	m := newTestMachine(t, twoAxes)
	var published []axis.Snapshot
	m.OnStatus(func(s []axis.Snapshot) { published = s })
	for i := 0; i < 5; i++ {
		m.step()
	}
	if err := m.do(t, func(r *axis.Registry) error {
		a, err := r.Axis(0)
		if err != nil {
			return err
		}
		return a.SetEnable(true)
	}); err != nil {
		t.Fatalf("enable: %v", err)
	}
	for i := 0; i < 20; i++ {
		m.step()
	}
	a1, _ := m.registry.Axis(1)
	if !a1.Data().Command.Enable {
		t.Errorf("enable did not cascade to axis 1")
	}
	if err := m.do(t, func(r *axis.Registry) error {
		a, _ := r.Axis(0)
		return a.MoveAbsolute(1, 5)
	}); err != nil {
		t.Fatalf("move: %v", err)
	}
	for i := 0; i < 1500; i++ {
		m.step()
	}
	if got := m.plants[0].Position(); math.Abs(got-1) > 0.01 {
		t.Errorf("plant 0 at %g, want 1", got)
	}
	if len(published) != 2 {
		t.Fatalf("published %d snapshots, want 2", len(published))
	}
	if s := published[0]; !s.Enabled || math.Abs(s.ActualPosition-1) > 0.01 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestBusLossInterlocks(t *testing.T) {
	m := newTestMachine(t, twoAxes)
	for i := 0; i < 5; i++ {
		m.step()
	}
	m.plants[1].SetBusFault(true)
	if m.masterOK() {
		t.Fatalf("masterOK with a faulted plant")
	}
	m.step()
	a0, _ := m.registry.Axis(0)
	if !a0.Data().Interlocks.Bus {
		t.Errorf("bus interlock not set on axis 0")
	}
}

func TestRun(t *testing.T) {
	m := newTestMachine(t, twoAxes)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- m.Run(ctx) }()
	err := m.Do(ctx, func(r *axis.Registry) error {
		a, _ := r.Axis(0)
		return a.SetEnable(true)
	})
	if err != nil {
		t.Errorf("Do: %v", err)
	}
	if err := <-errc; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want deadline exceeded", err)
	}
}

func TestNewWithModbus(t *testing.T) {
	m := newTestMachine(t, `
modbus:
  address: 127.0.0.1:502
  slave_id: 1
axes:
  - id: 0
    acceleration: 1
    modbus:
      status_register: 0
      counts_register: 1
      velocity_register: 10
`)
	if m.client == nil || len(m.images) != 1 || len(m.Plants()) != 0 {
		t.Fatalf("client=%v images=%d plants=%d", m.client, len(m.images), len(m.Plants()))
	}
	if m.masterOK() {
		t.Errorf("masterOK before the first poll")
	}
}
