package record

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/gaitlog/internal/telemetry"
)

// Sink receives decoded records. Flush commits everything written so far;
// Close flushes and releases the sink.
type Sink interface {
	Write(rec telemetry.Record) error
	Flush() error
	Close() error
}

// CSVWriter writes decoded records as CSV. The header row is written when
// the writer is created and never changes afterwards.
type CSVWriter struct {
	schema Schema
	out    io.WriteCloser
	w      *csv.Writer
	rows   int64
	closed bool
}

// NewCSVWriter writes the schema header to out and returns the writer. The
// header is flushed immediately so even an empty run leaves a valid file.
func NewCSVWriter(out io.WriteCloser, schema Schema) (*CSVWriter, error) {
	c := &CSVWriter{schema: schema, out: out, w: csv.NewWriter(out)}
	if err := c.w.Write(schema.columns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	if err := c.Flush(); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return c, nil
}

// Schema returns the writer's schema.
func (c *CSVWriter) Schema() Schema { return c.schema }

// Rows returns the number of data rows written.
func (c *CSVWriter) Rows() int64 { return c.rows }

func (c *CSVWriter) Write(rec telemetry.Record) error {
	if err := c.w.Write(c.schema.Row(rec)); err != nil {
		return err
	}
	c.rows++
	return nil
}

func (c *CSVWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

func (c *CSVWriter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	return errors.Join(c.Flush(), c.out.Close())
}

// Multi fans every call out to several sinks. Write and Flush stop at the
// first error; Close always closes every sink.
type Multi []Sink

func (m Multi) Write(rec telemetry.Record) error {
	for _, s := range m {
		if err := s.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Flush() error {
	for _, s := range m {
		if err := s.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
