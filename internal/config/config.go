// Package config loads the axis daemon's YAML configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/drive"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

type Config struct {
	CycleTime time.Duration `yaml:"cycle_time"`
	Axes      []Axis        `yaml:"axes"`
	// Modbus connects the axes to real drives. Without it every axis runs
	// against a simulated plant.
	Modbus *Modbus `yaml:"modbus"`
	HTTP   HTTP    `yaml:"http"`
	// CommandAddr is where the line protocol server listens. Empty disables
	// it.
	CommandAddr string `yaml:"command_addr"`
}

type Modbus struct {
	Address  string        `yaml:"address"`
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	SlaveID  byte          `yaml:"slave_id"`
	Timeout  time.Duration `yaml:"timeout"`
}

type HTTP struct {
	Addr string `yaml:"addr"`
	// SnapshotEvery publishes status every n cycles.
	SnapshotEvery int `yaml:"snapshot_every"`
}

type Axis struct {
	ID int `yaml:"id"`
	// Trajectory is "trapezoid" or "scurve".
	Trajectory            string  `yaml:"trajectory"`
	Velocity              float64 `yaml:"velocity"`
	Acceleration          float64 `yaml:"acceleration"`
	Deceleration          float64 `yaml:"deceleration"`
	EmergencyDeceleration float64 `yaml:"emergency_deceleration"`
	Jerk                  float64 `yaml:"jerk"`

	SoftLimitForward  *float64 `yaml:"soft_limit_forward"`
	SoftLimitBackward *float64 `yaml:"soft_limit_backward"`
	AtTargetTolerance float64  `yaml:"at_target_tolerance"`
	AtTargetCycles    int      `yaml:"at_target_cycles"`

	HomePosition float64 `yaml:"home_position"`
	HomeVelocity float64 `yaml:"home_velocity"`

	Encoder Encoder `yaml:"encoder"`
	Drive   Drive   `yaml:"drive"`
	PID     *PID    `yaml:"pid"`

	// CommandsTransform propagates this axis' enable and execute to others.
	CommandsTransform string `yaml:"commands_transform"`
	// AcceptCascaded lets other axes' transforms command this one.
	AcceptCascaded     bool   `yaml:"accept_cascaded"`
	ExternalTrajectory string `yaml:"external_trajectory"`
	ExternalEncoder    string `yaml:"external_encoder"`

	Modbus drive.ModbusLayout `yaml:"modbus"`
	Sim    Sim                `yaml:"sim"`
}

type Encoder struct {
	ScaleNum   float64 `yaml:"scale_num"`
	ScaleDenom float64 `yaml:"scale_denom"`
	Offset     float64 `yaml:"offset"`
	Relative   bool    `yaml:"relative"`
	Bits       uint    `yaml:"bits"`
}

type Drive struct {
	Scale         float64       `yaml:"scale"`
	MaxRaw        int32         `yaml:"max_raw"`
	EnableTimeout time.Duration `yaml:"enable_timeout"`
}

type PID struct {
	Kp               float64 `yaml:"kp"`
	Ki               float64 `yaml:"ki"`
	Kd               float64 `yaml:"kd"`
	Kff              float64 `yaml:"kff"`
	OutputLimit      float64 `yaml:"output_limit"`
	IntegralLimit    float64 `yaml:"integral_limit"`
	SaturationCycles int     `yaml:"saturation_cycles"`
}

type Sim struct {
	MaxAccel      float64       `yaml:"max_accel"`
	MaxVel        float64       `yaml:"max_vel"`
	LimitForward  *float64      `yaml:"limit_forward"`
	LimitBackward *float64      `yaml:"limit_backward"`
	HomeSwitch    *float64      `yaml:"home_switch"`
	HomeWidth     float64       `yaml:"home_width"`
	EnableDelay   time.Duration `yaml:"enable_delay"`
	Position      float64       `yaml:"position"`
}

// Load reads, defaults and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "parsing")
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.CycleTime == 0 {
		c.CycleTime = time.Millisecond
	}
	if c.HTTP.SnapshotEvery == 0 {
		c.HTTP.SnapshotEvery = 100
	}
	for i := range c.Axes {
		a := &c.Axes[i]
		if a.Trajectory == "" {
			a.Trajectory = "trapezoid"
		}
		if a.Deceleration == 0 {
			a.Deceleration = a.Acceleration
		}
		if a.Encoder.ScaleNum == 0 {
			a.Encoder.ScaleNum = 1
		}
		if a.Encoder.ScaleDenom == 0 {
			a.Encoder.ScaleDenom = 1
		}
		if a.Drive.Scale == 0 {
			a.Drive.Scale = 1
		}
	}
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var err error
	if c.CycleTime < 0 {
		err = multierr.Append(err, errors.Errorf("cycle_time %v is negative", c.CycleTime))
	}
	if len(c.Axes) == 0 {
		err = multierr.Append(err, errors.New("no axes configured"))
	}
	seen := make(map[int]bool)
	for i, a := range c.Axes {
		where := fmt.Sprintf("axes[%d]", i)
		if a.ID < 0 || a.ID >= len(c.Axes) {
			err = multierr.Append(err, errors.Errorf("%s: id %d out of range [0, %d)", where, a.ID, len(c.Axes)))
		} else if seen[a.ID] {
			err = multierr.Append(err, errors.Errorf("%s: duplicate id %d", where, a.ID))
		}
		seen[a.ID] = true
		switch a.Trajectory {
		case "trapezoid", "scurve":
		default:
			err = multierr.Append(err, errors.Errorf("%s: unknown trajectory %q", where, a.Trajectory))
		}
		if a.Acceleration <= 0 {
			err = multierr.Append(err, errors.Errorf("%s: acceleration must be positive", where))
		}
		if a.Trajectory == "scurve" && a.Jerk <= 0 {
			err = multierr.Append(err, errors.Errorf("%s: scurve needs a positive jerk", where))
		}
		if a.SoftLimitForward != nil && a.SoftLimitBackward != nil && *a.SoftLimitBackward >= *a.SoftLimitForward {
			err = multierr.Append(err, errors.Errorf("%s: soft limits are inverted", where))
		}
	}
	if m := c.Modbus; m != nil && m.Address == "" && m.Port == "" {
		err = multierr.Append(err, errors.New("modbus: one of address or port is required"))
	}
	return err
}
