// Package telemetry decodes the exoskeleton's motor feedback stream. Each
// line carries a small scalar prefix and 32 raw bytes, four 8-byte CAN
// feedback blocks in fixed motor order. The Decoder resolves the column
// layout from the stream itself, validates every row and converts the raw
// blocks into physical units.
package telemetry

import (
	"fmt"
	"strings"

	"github.com/banshee-data/gaitlog/internal/units"
)

// LayoutAuto lets the framer resolve the layout from the stream.
const LayoutAuto = "auto"

// Options configures a Decoder for one run.
type Options struct {
	// PolePairs enables mechanical RPM when non-zero.
	PolePairs int
	// Layout is "auto", "strict" or "legacy".
	Layout string
	// Banners are extra noise prefixes on top of DefaultBanners.
	Banners []string
}

// Decoder turns input lines into decoded records. It is not safe for
// concurrent use; only Stats may be read from other goroutines.
type Decoder struct {
	framer    *Framer
	polePairs int
	stats     Stats
}

// NewDecoder validates opts and returns a decoder ready for the first line.
func NewDecoder(opts Options) (*Decoder, error) {
	if err := units.ValidatePolePairs(opts.PolePairs); err != nil {
		return nil, err
	}
	d := &Decoder{polePairs: opts.PolePairs}

	layout := strings.TrimSpace(opts.Layout)
	if layout == "" || strings.EqualFold(layout, LayoutAuto) {
		d.framer = NewFramer(opts.Banners...)
		return d, nil
	}
	v, err := ParseVariant(layout)
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}
	d.framer = NewFixedFramer(v, opts.Banners...)
	l, _ := d.framer.Layout()
	d.stats.setLayout(l)
	return d, nil
}

// PolePairs returns the configured pole-pair count.
func (d *Decoder) PolePairs() int { return d.polePairs }

// MechanicalRPM reports whether decoded samples carry mechanical RPM.
func (d *Decoder) MechanicalRPM() bool { return d.polePairs != 0 }

// Layout returns the run's layout once it is known.
func (d *Decoder) Layout() (Layout, bool) { return d.framer.Layout() }

// Stats returns the decoder's live counters.
func (d *Decoder) Stats() *Stats { return &d.stats }

// Process frames, validates and decodes one line.
func (d *Decoder) Process(line string) Result {
	res := d.process(line)
	if res.Established {
		l, _ := d.framer.Layout()
		d.stats.setLayout(l)
	}
	d.stats.record(res)
	return res
}

func (d *Decoder) process(line string) Result {
	step := d.framer.Next(line)
	var res Result
	switch step.Class {
	case ClassNoise:
		return SkippedResult(ReasonNoise)
	case ClassUnrecognized:
		return SkippedResult(ReasonUnrecognized)
	case ClassHeader:
		res = SkippedResult(ReasonHeader)
		res.Established = step.Established
		return res
	}

	frame, reason := ParseRow(step.Fields, step.Variant)
	if reason != ReasonNone {
		res = SkippedResult(reason)
	} else {
		res = AcceptedResult(d.decode(frame))
		res.Record.Mismatched = step.WidthMismatch
	}
	res.Established = step.Established
	res.WidthMismatch = step.WidthMismatch
	return res
}

func (d *Decoder) decode(f Frame) Record {
	rec := Record{
		TimeStep:   f.TimeStep,
		ElapsedUS:  f.ElapsedUS,
		HasElapsed: f.HasElapsed,
		LeftGait:   f.LeftGait,
		RightGait:  f.RightGait,
		Motors:     DecodePayload(&f.Payload),
	}
	for i := range rec.Motors {
		rec.Motors[i].MechRPM, rec.Motors[i].HasMechRPM = units.MechanicalRPM(rec.Motors[i].SpeedERPM, d.polePairs)
	}
	return rec
}
