// Package encoder converts raw counter readings into axis position and
// velocity.
package encoder

import (
	"github.com/pkg/errors"
	"github.com/w1xm/axis_control/fault"
)

// Source supplies the raw counter value once per cycle.
type Source interface {
	Counts() (int64, error)
}

type Config struct {
	// Position is counts * ScaleNum / ScaleDenom + Offset.
	ScaleNum   float64
	ScaleDenom float64
	Offset     float64
	// Relative encoders lose their position at power up and are zeroed
	// when the axis leaves startup.
	Relative bool
	// Bits is the width of the raw counter. Readings are unwrapped into a
	// multi-turn count. Zero means the counter never wraps.
	Bits uint
}

// Encoder implements the axis encoder contract on top of a Source.
type Encoder struct {
	fault.Holder

	cfg       Config
	src       Source
	cycleTime float64

	lastCounts int64
	extended   int64
	primed     bool

	offset   float64
	pos, vel float64
	homed    bool
}

func New(cfg Config, src Source, cycleTime float64) (*Encoder, error) {
	if cfg.ScaleDenom == 0 {
		return nil, errors.Wrap(fault.ErrEncScaleDenomZero, "encoder config")
	}
	if cfg.ScaleNum == 0 {
		cfg.ScaleNum = 1
	}
	if cfg.Bits >= 64 {
		cfg.Bits = 0
	}
	return &Encoder{cfg: cfg, src: src, cycleTime: cycleTime, offset: cfg.Offset}, nil
}

func (e *Encoder) scale() float64 {
	return e.cfg.ScaleNum / e.cfg.ScaleDenom
}

// unwrap returns the signed distance from the previous reading, assuming the
// counter moved less than half its range in one cycle.
func (e *Encoder) unwrap(counts int64) int64 {
	diff := counts - e.lastCounts
	if e.cfg.Bits == 0 {
		return diff
	}
	span := int64(1) << e.cfg.Bits
	diff &= span - 1
	if diff >= span/2 {
		diff -= span
	}
	return diff
}

func (e *Encoder) ReadEntries() error {
	counts, err := e.src.Counts()
	if err != nil {
		e.SetError(fault.ErrEncReadFailed)
		return errors.Wrap(err, "reading encoder")
	}
	if e.primed {
		e.extended += e.unwrap(counts)
	} else {
		e.extended = counts
	}
	e.lastCounts = counts

	pos := float64(e.extended)*e.scale() + e.offset
	if e.primed {
		e.vel = (pos - e.pos) / e.cycleTime
	}
	e.pos = pos
	e.primed = true
	return nil
}

func (e *Encoder) WriteEntries() error { return nil }

func (e *Encoder) Position() float64 { return e.pos }
func (e *Encoder) Velocity() float64 { return e.vel }

// RawPosition is the unwrapped multi-turn count.
func (e *Encoder) RawPosition() int64 { return e.extended }

func (e *Encoder) Homed() bool         { return e.homed }
func (e *Encoder) SetHomed(homed bool) { e.homed = homed }

// SetPosition shifts the offset so the current reading becomes pos.
func (e *Encoder) SetPosition(pos float64) {
	e.offset = pos - float64(e.extended)*e.scale()
	e.pos = pos
}

func (e *Encoder) SetZeroIfRelative() {
	if !e.cfg.Relative {
		return
	}
	e.SetPosition(0)
	e.homed = false
}
