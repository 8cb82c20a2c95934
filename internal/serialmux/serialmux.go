// Package serialmux reads newline-delimited text from a serial device and
// fans lines out to live subscribers over the debug HTTP surface.
package serialmux

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrClosed is returned by ReadLine once the mux has been closed.
var ErrClosed = errors.New("serial port closed")

const readChunk = 4096

// SerialMux turns the raw byte stream of a serial port into lines. Reads are
// synchronous: the caller drives the loop and checks for cancellation
// between reads, which are bounded by the port's read timeout.
type SerialMux[T SerialPorter] struct {
	port    T
	chunk   []byte
	partial []byte
	pending []string
	eof     bool

	closeOnce sync.Once
	closeErr  error
	closedMu  sync.Mutex
	closed    bool
}

// NewSerialMux wraps an open port.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:  port,
		chunk: make([]byte, readChunk),
	}
}

// Port returns the underlying port.
func (s *SerialMux[T]) Port() T { return s.port }

// ReadLine returns the next complete line without its terminator. A read
// that times out with no complete line returns ok=false and a nil error.
// At end of input any unterminated tail is returned as a final line, then
// io.EOF.
func (s *SerialMux[T]) ReadLine(ctx context.Context) (line string, ok bool, err error) {
	if line, ok := s.pop(); ok {
		return line, true, nil
	}
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if s.isClosed() {
		return "", false, ErrClosed
	}
	if s.eof {
		return "", false, io.EOF
	}

	n, rerr := s.port.Read(s.chunk)
	if n > 0 {
		s.split(s.chunk[:n])
	}
	if rerr != nil {
		if !errors.Is(rerr, io.EOF) {
			if s.isClosed() {
				return "", false, ErrClosed
			}
			return "", false, fmt.Errorf("read serial port: %w", rerr)
		}
		s.eof = true
		if len(s.partial) > 0 {
			s.pending = append(s.pending, cleanLine(s.partial))
			s.partial = s.partial[:0]
		}
	}

	if line, ok := s.pop(); ok {
		return line, true, nil
	}
	if s.eof {
		return "", false, io.EOF
	}
	return "", false, nil
}

func (s *SerialMux[T]) split(b []byte) {
	for {
		i := bytes.IndexByte(b, '\n')
		if i < 0 {
			s.partial = append(s.partial, b...)
			return
		}
		s.partial = append(s.partial, b[:i]...)
		s.pending = append(s.pending, cleanLine(s.partial))
		s.partial = s.partial[:0]
		b = b[i+1:]
	}
}

func (s *SerialMux[T]) pop() (string, bool) {
	if len(s.pending) == 0 {
		return "", false
	}
	line := s.pending[0]
	s.pending = s.pending[1:]
	return line, true
}

// cleanLine strips a trailing carriage return and drops bytes that are not
// valid UTF-8, which the link produces when it starts mid-character.
func cleanLine(b []byte) string {
	b = bytes.TrimSuffix(b, []byte("\r"))
	return strings.ToValidUTF8(string(b), "")
}

func (s *SerialMux[T]) isClosed() bool {
	s.closedMu.Lock()
	defer s.closedMu.Unlock()
	return s.closed
}

// Close closes the port. It is safe to call more than once and from another
// goroutine than the reader; a blocked ReadLine then returns ErrClosed.
func (s *SerialMux[T]) Close() error {
	s.closeOnce.Do(func() {
		s.closedMu.Lock()
		s.closed = true
		s.closedMu.Unlock()
		s.closeErr = s.port.Close()
	})
	return s.closeErr
}
