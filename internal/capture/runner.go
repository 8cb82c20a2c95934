// Package capture drives a decoding run: it pulls lines from a serial device
// or a recorded file, feeds them through the telemetry decoder and writes
// accepted records to the run's outputs.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/banshee-data/gaitlog/internal/monitoring"
	"github.com/banshee-data/gaitlog/internal/record"
	"github.com/banshee-data/gaitlog/internal/serialmux"
	"github.com/banshee-data/gaitlog/internal/telemetry"
	"github.com/banshee-data/gaitlog/internal/timeutil"
)

// SinkOpener creates the run's outputs once the output schema is known.
type SinkOpener interface {
	Open(schema record.Schema) (record.Sink, error)
}

// Runner owns one run. Source is closed when Run returns.
type Runner struct {
	Source  LineSource
	Decoder *telemetry.Decoder
	Outputs SinkOpener

	// Raw, when set, receives every non-blank input line verbatim.
	Raw io.Writer
	// Tail, when set, receives each decoded row as a CSV line.
	Tail *serialmux.Hub
	// Live flushes every sink after each row.
	Live bool
	// ProgressInterval logs running counters at most this often; zero
	// disables progress logging.
	ProgressInterval time.Duration
	Clock            timeutil.Clock

	schema record.Schema
	sink   record.Sink
}

// Summary describes a finished run.
type Summary struct {
	Stats    telemetry.StatsSnapshot
	Layout   telemetry.Layout
	HasSink  bool
	Started  time.Time
	Finished time.Time
}

func (r *Runner) clock() timeutil.Clock {
	if r.Clock == nil {
		return timeutil.RealClock{}
	}
	return r.Clock
}

// Run processes lines until end of input, cancellation or a fatal error.
// Cancellation is a normal exit. Every output is flushed and closed before
// Run returns, on all paths.
func (r *Runner) Run(ctx context.Context) (sum Summary, err error) {
	clock := r.clock()
	sum.Started = clock.Now()
	lastProgress := sum.Started

	defer func() {
		if r.sink != nil {
			err = errors.Join(err, r.sink.Close())
		}
		if cerr := r.Source.Close(); cerr != nil && !errors.Is(cerr, serialmux.ErrClosed) {
			err = errors.Join(err, fmt.Errorf("close input: %w", cerr))
		}
		sum.Finished = clock.Now()
		sum.Stats = r.Decoder.Stats().Snapshot()
		sum.Layout, _ = r.Decoder.Layout()
		sum.HasSink = r.sink != nil
	}()

	// a forced layout is known before the first line
	if _, ok := r.Decoder.Layout(); ok {
		if err := r.open(); err != nil {
			return sum, err
		}
	}

	for {
		line, ok, rerr := r.Source.ReadLine(ctx)
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return sum, nil
			}
			if ctx.Err() != nil {
				monitoring.Logf("capture: stopping: %v", ctx.Err())
				return sum, nil
			}
			res := telemetry.FatalResult(rerr)
			monitoring.Logf("capture: %s: %v", res.Outcome, res.Err)
			return sum, res.Err
		}
		if !ok {
			r.progress(clock, &lastProgress)
			continue
		}

		if r.Raw != nil && strings.TrimSpace(line) != "" {
			if _, err := io.WriteString(r.Raw, line+"\n"); err != nil {
				return sum, fmt.Errorf("write raw log: %w", err)
			}
		}

		res := r.Decoder.Process(line)
		if res.Established && r.sink == nil {
			if err := r.open(); err != nil {
				return sum, err
			}
		}
		if res.Outcome == telemetry.Accepted {
			if err := r.emit(res.Record); err != nil {
				return sum, err
			}
		}
		r.progress(clock, &lastProgress)
	}
}

func (r *Runner) open() error {
	layout, _ := r.Decoder.Layout()
	r.schema = record.NewSchema(layout.Variant, r.Decoder.MechanicalRPM())
	sink, err := r.Outputs.Open(r.schema)
	if err != nil {
		return fmt.Errorf("open outputs: %w", err)
	}
	r.sink = sink
	return nil
}

func (r *Runner) emit(rec telemetry.Record) error {
	if err := r.sink.Write(rec); err != nil {
		return fmt.Errorf("write record %d: %w", rec.TimeStep, err)
	}
	if r.Live {
		if err := r.sink.Flush(); err != nil {
			return fmt.Errorf("flush record %d: %w", rec.TimeStep, err)
		}
	}
	if r.Tail != nil {
		r.Tail.Publish(strings.Join(r.schema.Row(rec), ","))
	}
	return nil
}

func (r *Runner) progress(clock timeutil.Clock, last *time.Time) {
	if r.ProgressInterval <= 0 || clock.Since(*last) < r.ProgressInterval {
		return
	}
	*last = clock.Now()
	monitoring.Logf("capture: %s", r.Decoder.Stats().Snapshot())
}
