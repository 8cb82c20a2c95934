package serialmux

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

// ReplayPort implements TimeoutSerialPorter by replaying a captured stream
// line by line at a fixed interval, so the live pipeline can run without
// hardware. Like a real port, Read returns (0, nil) when no line arrives
// within the read timeout.
type ReplayPort struct {
	lines   chan []byte
	err     error
	buf     []byte
	timeout time.Duration

	closer io.Closer
	done   chan struct{}
	once   sync.Once
}

// NewReplayPort starts replaying src. Each line is written with a trailing
// "\r\n" as the controller does. When src is exhausted the port reports
// end of input.
func NewReplayPort(src io.ReadCloser, interval time.Duration) *ReplayPort {
	p := &ReplayPort{
		lines:   make(chan []byte),
		timeout: DefaultReadTimeout,
		closer:  src,
		done:    make(chan struct{}),
	}

	go func() {
		scan := bufio.NewScanner(src)
		var tick <-chan time.Time
		if interval > 0 {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			tick = ticker.C
		}
		for scan.Scan() {
			if tick != nil {
				select {
				case <-tick:
				case <-p.done:
					return
				}
			}
			line := append(append([]byte(nil), scan.Bytes()...), '\r', '\n')
			select {
			case p.lines <- line:
			case <-p.done:
				return
			}
		}
		p.err = scan.Err()
		close(p.lines)
	}()
	return p
}

// NewReplaySerialMux creates a SerialMux backed by a ReplayPort.
func NewReplaySerialMux(src io.ReadCloser, interval time.Duration) *SerialMux[*ReplayPort] {
	return NewSerialMux(NewReplayPort(src, interval))
}

// SetReadTimeout bounds each Read. Zero or negative waits indefinitely.
func (p *ReplayPort) SetReadTimeout(timeout time.Duration) error {
	p.timeout = timeout
	return nil
}

func (p *ReplayPort) Read(b []byte) (int, error) {
	if len(p.buf) > 0 {
		n := copy(b, p.buf)
		p.buf = p.buf[n:]
		return n, nil
	}

	var timeout <-chan time.Time
	if p.timeout > 0 {
		timer := time.NewTimer(p.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case line, ok := <-p.lines:
		if !ok {
			if p.err != nil {
				return 0, p.err
			}
			return 0, io.EOF
		}
		n := copy(b, line)
		p.buf = line[n:]
		return n, nil
	case <-timeout:
		return 0, nil
	case <-p.done:
		return 0, ErrClosed
	}
}

// Write discards commands; the replayed controller never answers.
func (p *ReplayPort) Write(b []byte) (int, error) { return len(b), nil }

// Close stops the replay and releases the source.
func (p *ReplayPort) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		err = p.closer.Close()
	})
	return err
}

// TestableSerialPort implements SerialPorter with configurable behaviour for testing.
// It provides fine-grained control over reads, writes, errors, and latency.
// An empty read buffer behaves like a read timeout unless EOF has been set.
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadLatency adds a delay to each Read call
	ReadLatency time.Duration

	// ReadError is returned by the next Read call if set
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// EOF makes reads from an empty buffer return io.EOF
	EOF bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout
	ReadTimeout time.Duration

	// MaxRead caps the bytes returned by one Read, to split lines across reads
	MaxRead int
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	return &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

// Read reads from the read buffer, optionally simulating latency and errors.
func (t *TestableSerialPort) Read(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, errors.New("serial port closed")
	}

	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}

	if t.ReadLatency > 0 {
		t.mu.Unlock()
		time.Sleep(t.ReadLatency)
		t.mu.Lock()
	}

	if t.ReadBuffer.Len() == 0 {
		if t.EOF {
			return 0, io.EOF
		}
		return 0, nil
	}
	if t.MaxRead > 0 && len(p) > t.MaxRead {
		p = p[:t.MaxRead]
	}
	return t.ReadBuffer.Read(p)
}

// Write writes to the write buffer.
func (t *TestableSerialPort) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.Closed {
		return 0, errors.New("serial port closed")
	}
	return t.WriteBuffer.Write(p)
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
}

// SetEOF makes the port report end of input once its buffer drains.
func (t *TestableSerialPort) SetEOF() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.EOF = true
}

// IsClosed reports whether Close was called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.Closed
}

// MockSerialPortFactory implements SerialPortFactory for testing.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Port is the port to return from Open
	Port SerialPorter

	// Error is returned by Open if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path string
	Opts PortOptions
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the configured port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Opts: opts})

	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	return &f.OpenCalls[len(f.OpenCalls)-1]
}
