// Package sim simulates a velocity drive with an encoder and limit
// switches, standing in for the Modbus process image.
package sim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/drive"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// CountsPerUnit converts position to encoder counts.
	CountsPerUnit float64
	// RawPerUnit converts raw drive velocity to units/s, matching the
	// drive scale.
	RawPerUnit float64
	// MaxAccel and MaxVel bound the motor, in units/s^2 and units/s.
	MaxAccel float64
	MaxVel   float64
	// Limit switches engage at or beyond these positions when set.
	LimitForward  *float64
	LimitBackward *float64
	// HomeSwitch engages within HomeWidth of this position when set.
	HomeSwitch *float64
	HomeWidth  float64
	// EnableDelay is how long the drive takes to report enabled.
	EnableDelay time.Duration
	Position    float64
}

// Plant is one simulated axis. It is safe for concurrent use.
type Plant struct {
	mu  sync.Mutex
	cfg Config

	pos, vel float64
	control  drive.Control
	enabling time.Duration
	enabled  bool
	fault    bool
	busFault bool
}

func New(cfg Config) *Plant {
	if cfg.CountsPerUnit == 0 {
		cfg.CountsPerUnit = 1
	}
	if cfg.RawPerUnit == 0 {
		cfg.RawPerUnit = 1
	}
	return &Plant{cfg: cfg, pos: cfg.Position}
}

var errBus = errors.New("simulated bus fault")

func (p *Plant) Counts() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busFault {
		return 0, errBus
	}
	return int64(math.Round(p.pos * p.cfg.CountsPerUnit)), nil
}

func (p *Plant) ReadStatus() (drive.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busFault {
		return drive.Status{}, errBus
	}
	st := drive.Status{
		Ready:   !p.fault,
		Enabled: p.enabled,
		Fault:   p.fault,
	}
	if l := p.cfg.LimitForward; l != nil {
		st.LimitForward = p.pos >= *l
	}
	if l := p.cfg.LimitBackward; l != nil {
		st.LimitBackward = p.pos <= *l
	}
	if h := p.cfg.HomeSwitch; h != nil {
		st.HomeSwitch = math.Abs(p.pos-*h) <= p.cfg.HomeWidth
	}
	return st, nil
}

func (p *Plant) WriteControl(c drive.Control) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.busFault {
		return errBus
	}
	if c.ResetFault {
		p.fault = false
	}
	p.control = c
	return nil
}

// SetFault injects a drive fault, which drops the enable.
func (p *Plant) SetFault(fault bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fault = fault
}

// SetBusFault makes every process image access fail.
func (p *Plant) SetBusFault(fault bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.busFault = fault
}

// Healthy reports whether the simulated bus is up.
func (p *Plant) Healthy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.busFault
}

func (p *Plant) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *Plant) Velocity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vel
}

// velServo returns the velocity reached from s toward t in one step.
func (p *Plant) velServo(s, t float64, step time.Duration) float64 {
	delta := math.Abs(t - s)
	if a := p.cfg.MaxAccel; a > 0 && delta > a*step.Seconds() {
		delta = a * step.Seconds()
	}
	if t < s {
		delta = -delta
	}
	v := s + delta
	if m := p.cfg.MaxVel; m > 0 {
		v = math.Max(-m, math.Min(m, v))
	}
	return v
}

// Step advances the simulation.
func (p *Plant) Step(step time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case p.fault || !p.control.Enable:
		p.enabled = false
		p.enabling = 0
	case !p.enabled:
		p.enabling += step
		p.enabled = p.enabling >= p.cfg.EnableDelay
	}

	target := 0.0
	if p.enabled {
		target = float64(p.control.Velocity) / p.cfg.RawPerUnit
	}
	p.vel = p.velServo(p.vel, target, step)
	p.pos += p.vel * step.Seconds()
}

// Run steps every plant each stepSize until ctx is done.
func Run(ctx context.Context, stepSize time.Duration, plants ...*Plant) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, p := range plants {
		p := p
		g.Go(func() error {
			t := time.NewTicker(stepSize)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-t.C:
				}
				p.Step(stepSize)
			}
		})
	}
	return g.Wait()
}
