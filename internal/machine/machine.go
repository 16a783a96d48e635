// Package machine assembles configured axes with their encoders, drives
// and controllers and runs the cycle loop.
package machine

import (
	"context"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/axis"
	"github.com/w1xm/axis_control/controller"
	"github.com/w1xm/axis_control/drive"
	"github.com/w1xm/axis_control/encoder"
	"github.com/w1xm/axis_control/internal/config"
	"github.com/w1xm/axis_control/internal/modbus"
	"github.com/w1xm/axis_control/sim"
	"github.com/w1xm/axis_control/trajectory"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

type request struct {
	fn   func(*axis.Registry) error
	done chan error
}

// Machine owns the registry. Only the goroutine running Run touches the
// axes; everything else goes through Do.
type Machine struct {
	cfg    *config.Config
	logger golog.Logger

	registry *axis.Registry
	plants   []*sim.Plant
	images   []*drive.ModbusImage
	client   *modbus.Client

	cmds     chan request
	latest   []axis.Snapshot
	dirty    bool
	onStatus func([]axis.Snapshot)
}

func New(cfg *config.Config, logger golog.Logger) (*Machine, error) {
	m := &Machine{
		cfg:      cfg,
		logger:   logger,
		registry: axis.NewRegistry(len(cfg.Axes)),
		cmds:     make(chan request, 16),
		latest:   make([]axis.Snapshot, len(cfg.Axes)),
	}
	if mc := cfg.Modbus; mc != nil {
		m.client = &modbus.Client{
			Address:  mc.Address,
			Port:     mc.Port,
			BaudRate: mc.BaudRate,
			SlaveId:  mc.SlaveID,
			Timeout:  mc.Timeout,
			Poll:     m.poll,
			Logger:   logger,
		}
		m.client.OnDisconnect = m.disconnected
	}
	var err error
	for _, ac := range cfg.Axes {
		a, aerr := m.buildAxis(ac)
		if aerr != nil {
			err = multierr.Append(err, errors.Wrapf(aerr, "axis %d", ac.ID))
			continue
		}
		err = multierr.Append(err, m.registry.Add(a))
	}
	if err != nil {
		return nil, err
	}
	// Commands transforms may name any axis, so they are set once all exist.
	for _, ac := range cfg.Axes {
		if err := m.configureCascade(ac); err != nil {
			return nil, errors.Wrapf(err, "axis %d", ac.ID)
		}
	}
	return m, nil
}

func (m *Machine) buildAxis(ac config.Axis) (*axis.Axis, error) {
	ct := m.cfg.CycleTime.Seconds()

	var src encoder.Source
	var io drive.IO
	if m.client != nil {
		img := drive.NewModbusImage(m.client, ac.Modbus)
		m.images = append(m.images, img)
		src, io = img, img
	} else {
		p := sim.New(sim.Config{
			CountsPerUnit: ac.Encoder.ScaleDenom / ac.Encoder.ScaleNum,
			RawPerUnit:    ac.Drive.Scale,
			MaxAccel:      ac.Sim.MaxAccel,
			MaxVel:        ac.Sim.MaxVel,
			LimitForward:  ac.Sim.LimitForward,
			LimitBackward: ac.Sim.LimitBackward,
			HomeSwitch:    ac.Sim.HomeSwitch,
			HomeWidth:     ac.Sim.HomeWidth,
			EnableDelay:   ac.Sim.EnableDelay,
			Position:      ac.Sim.Position,
		})
		m.plants = append(m.plants, p)
		src, io = p, p
	}

	enc, err := encoder.New(encoder.Config{
		ScaleNum:   ac.Encoder.ScaleNum,
		ScaleDenom: ac.Encoder.ScaleDenom,
		Offset:     ac.Encoder.Offset,
		Relative:   ac.Encoder.Relative,
		Bits:       ac.Encoder.Bits,
	}, src, ct)
	if err != nil {
		return nil, err
	}
	drv, err := drive.New(drive.Config{
		Scale:         ac.Drive.Scale,
		MaxRaw:        ac.Drive.MaxRaw,
		EnableTimeout: ac.Drive.EnableTimeout,
	}, io, ct)
	if err != nil {
		return nil, err
	}

	var gen trajectory.Generator
	if ac.Trajectory == "scurve" {
		gen = trajectory.NewSCurve(ct)
	} else {
		gen = trajectory.NewTrapezoid(ct)
	}
	gen.SetAcceleration(ac.Acceleration)
	gen.SetDeceleration(ac.Deceleration)
	gen.SetEmergencyDeceleration(ac.EmergencyDeceleration)
	gen.SetJerk(ac.Jerk)
	gen.SetTargetVelocity(ac.Velocity)

	mon := axis.MonitorConfig{
		AtTargetTolerance: ac.AtTargetTolerance,
		AtTargetCycles:    ac.AtTargetCycles,
	}
	if l := ac.SoftLimitForward; l != nil {
		mon.EnableSoftLimitForward, mon.SoftLimitForward = true, *l
	}
	if l := ac.SoftLimitBackward; l != nil {
		mon.EnableSoftLimitBackward, mon.SoftLimitBackward = true, *l
	}

	cfg := axis.Config{
		ID:            ac.ID,
		CycleTime:     m.cfg.CycleTime,
		Generator:     gen,
		Encoder:       enc,
		Drive:         drv,
		Limits:        drv,
		Monitor:       mon,
		Sequencer:     axis.SequencerConfig{HomePosition: ac.HomePosition, HomeVelocity: ac.HomeVelocity},
		SnapshotEvery: m.cfg.HTTP.SnapshotEvery,
		OnSnapshot:    m.storeSnapshot,
		Logger:        m.logger,
	}
	if p := ac.PID; p != nil {
		cfg.Controller = controller.New(controller.Config{
			Kp:               p.Kp,
			Ki:               p.Ki,
			Kd:               p.Kd,
			Kff:              p.Kff,
			OutputLimit:      p.OutputLimit,
			IntegralLimit:    p.IntegralLimit,
			SaturationCycles: p.SaturationCycles,
		}, ct)
	}
	a, err := axis.New(cfg)
	if err != nil {
		return nil, err
	}
	if ac.ExternalTrajectory != "" {
		if err := a.SetExternalTrajectoryExpression(ac.ExternalTrajectory); err != nil {
			return nil, err
		}
	}
	if ac.ExternalEncoder != "" {
		if err := a.SetExternalEncoderExpression(ac.ExternalEncoder); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (m *Machine) configureCascade(ac config.Axis) error {
	a, err := m.registry.Axis(ac.ID)
	if err != nil {
		return err
	}
	a.SetEnableCascadedCommands(ac.AcceptCascaded)
	if ac.CommandsTransform == "" {
		return nil
	}
	if err := a.SetCommandsTransformExpression(ac.CommandsTransform); err != nil {
		return err
	}
	return a.SetEnableCommandsTransform(true)
}

func (m *Machine) storeSnapshot(s axis.Snapshot) {
	m.latest[s.AxisID] = s
	m.dirty = true
}

// OnStatus registers fn to receive every published set of snapshots. It
// must be called before Run.
func (m *Machine) OnStatus(fn func([]axis.Snapshot)) {
	m.onStatus = fn
}

// Plants returns the simulated plants, empty when running on Modbus.
func (m *Machine) Plants() []*sim.Plant {
	return m.plants
}

// Do runs fn on the cycle goroutine before the next cycle and returns its
// error.
func (m *Machine) Do(ctx context.Context, fn func(*axis.Registry) error) error {
	req := request{fn: fn, done: make(chan error, 1)}
	select {
	case m.cmds <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) masterOK() bool {
	for _, img := range m.images {
		if !img.Healthy() {
			return false
		}
	}
	for _, p := range m.plants {
		if !p.Healthy() {
			return false
		}
	}
	return true
}

// Tick runs pending commands and one cycle.
func (m *Machine) Tick() {
	for {
		select {
		case req := <-m.cmds:
			req.done <- req.fn(m.registry)
			continue
		default:
		}
		break
	}
	m.registry.Cycle(m.masterOK())
	if m.dirty && m.onStatus != nil {
		out := make([]axis.Snapshot, len(m.latest))
		copy(out, m.latest)
		m.onStatus(out)
	}
	m.dirty = false
}

// Run drives the cycle at the configured rate until ctx is done, along
// with the Modbus connection or the simulated plants.
func (m *Machine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	if m.client != nil {
		if err := m.client.Connect(ctx); err != nil {
			return err
		}
	}
	if len(m.plants) > 0 {
		g.Go(func() error {
			return sim.Run(ctx, m.cfg.CycleTime, m.plants...)
		})
	}
	g.Go(func() error {
		t := time.NewTicker(m.cfg.CycleTime)
		defer t.Stop()
		m.registry.SetRealtimeStarted(true)
		defer m.registry.SetRealtimeStarted(false)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			m.Tick()
		}
	})
	return g.Wait()
}

func (m *Machine) poll() error {
	for _, img := range m.images {
		if err := img.Poll(); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) disconnected(err error) {
	for _, img := range m.images {
		img.Disconnected(err)
	}
}
