package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gaitlog/internal/db"
	"github.com/banshee-data/gaitlog/internal/fsutil"
	"github.com/banshee-data/gaitlog/internal/monitoring"
	"github.com/banshee-data/gaitlog/internal/record"
	"github.com/banshee-data/gaitlog/internal/serialmux"
	"github.com/banshee-data/gaitlog/internal/telemetry"
	"github.com/banshee-data/gaitlog/internal/testutil"
	"github.com/banshee-data/gaitlog/internal/timeutil"
)

const exampleRow = "5,120000,3,7,10.0,500.0,0.2,25,0,OK,0.0,0.0,0.0,0,0,OK,0.0,0.0,0.0,0,0,OK,0.0,0.0,0.0,0,0,OK"

func mute(t *testing.T) *[]string {
	t.Helper()
	logs, restore := monitoring.Capture()
	t.Cleanup(restore)
	return logs
}

func newDecoder(t *testing.T, opts telemetry.Options) *telemetry.Decoder {
	t.Helper()
	d, err := telemetry.NewDecoder(opts)
	require.NoError(t, err)
	return d
}

func strictHeader() string {
	return strings.Join(record.NewSchema(telemetry.StrictElapsed, false).Columns(), ",")
}

func batchInput() string {
	return strings.Join([]string{
		"MotorController initialized",
		"TimeStep,Elapsed_us,L_Gait_Index,R_Gait_Index,RightHip[8],RightKnee[8],LeftKnee[8],LeftHip[8]",
		testutil.StrictLine(5, 120000, 3, 7, testutil.Payload(testutil.ExampleBlock)),
		"5,120000,3,7,300",
		"",
		testutil.StrictLine(6, 121000, 3, 7, testutil.Payload()),
		"finished control loop",
	}, "\r\n") + "\r\n"
}

func TestRunBatchFile(t *testing.T) {
	mute(t)
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("gait.csv", []byte(batchInput()), 0o644))

	src, err := OpenFile(fsys, "gait.csv")
	require.NoError(t, err)
	var raw bytes.Buffer
	r := &Runner{
		Source:  src,
		Decoder: newDecoder(t, telemetry.Options{}),
		Outputs: &Outputs{FS: fsys, CSVPath: "out/gait_decoded.csv"},
		Raw:     &raw,
	}

	sum, err := r.Run(context.Background())
	require.NoError(t, err)

	got, err := fsys.ReadFile("out/gait_decoded.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(got), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strictHeader(), lines[0])
	assert.Equal(t, exampleRow, lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "6,121000,3,7,0.0,"))

	assert.Equal(t, int64(7), sum.Stats.Lines)
	assert.Equal(t, int64(2), sum.Stats.Accepted)
	assert.Equal(t, int64(1), sum.Stats.Dropped)
	assert.Equal(t, telemetry.StrictElapsed, sum.Layout.Variant)
	assert.True(t, sum.HasSink)

	// the blank line is not teed
	assert.Equal(t, 6, strings.Count(raw.String(), "\n"))
	assert.NotContains(t, raw.String(), "\r")
}

func TestRunGzipInput(t *testing.T) {
	mute(t)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(batchInput()))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("gait.csv.gz", buf.Bytes(), 0o644))
	src, err := OpenFile(fsys, "gait.csv.gz")
	require.NoError(t, err)

	out := fsutil.DecodedPath("gait.csv.gz")
	r := &Runner{Source: src, Decoder: newDecoder(t, telemetry.Options{}), Outputs: &Outputs{FS: fsys, CSVPath: out}}
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Stats.Accepted)

	got, err := fsys.ReadFile("gait_decoded.csv")
	require.NoError(t, err)
	assert.Contains(t, string(got), exampleRow+"\n")
}

func TestOpenFileMissing(t *testing.T) {
	_, err := OpenFile(fsutil.NewMemoryFileSystem(), "absent.csv")
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestRunNoLayoutCreatesNothing(t *testing.T) {
	mute(t)
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("noise.log", []byte("Moving legs to start\nhello,world\n"), 0o644))
	src, err := OpenFile(fsys, "noise.log")
	require.NoError(t, err)

	r := &Runner{Source: src, Decoder: newDecoder(t, telemetry.Options{}), Outputs: &Outputs{FS: fsys, CSVPath: "noise_decoded.csv"}}
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, sum.HasSink)
	_, err = fsys.Stat("noise_decoded.csv")
	assert.Error(t, err)
}

func TestRunForcedLayoutWritesHeaderUpFront(t *testing.T) {
	mute(t)
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("empty.csv", nil, 0o644))
	src, err := OpenFile(fsys, "empty.csv")
	require.NoError(t, err)

	r := &Runner{
		Source:  src,
		Decoder: newDecoder(t, telemetry.Options{Layout: "legacy", PolePairs: 21}),
		Outputs: &Outputs{FS: fsys, CSVPath: "empty_decoded.csv"},
	}
	_, err = r.Run(context.Background())
	require.NoError(t, err)

	got, err := fsys.ReadFile("empty_decoded.csv")
	require.NoError(t, err)
	want := strings.Join(record.NewSchema(telemetry.Legacy, true).Columns(), ",") + "\n"
	assert.Equal(t, want, string(got))
}

// spySink records calls so tests can check flushing and closing.
type spySink struct {
	mu      sync.Mutex
	rows    int
	flushes int
	closed  bool
}

func (s *spySink) Write(telemetry.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows++
	return nil
}

func (s *spySink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *spySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *spySink) counts() (rows, flushes int, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows, s.flushes, s.closed
}

type spyOpener struct{ sink *spySink }

func (o spyOpener) Open(record.Schema) (record.Sink, error) { return o.sink, nil }

func TestRunLiveFlushesEveryRowAndStopsOnCancel(t *testing.T) {
	mute(t)
	port := serialmux.NewTestableSerialPort()
	port.MaxRead = 50
	port.AddReadData([]byte("MotorController initialized\r\n"))
	for i := int64(1); i <= 3; i++ {
		port.AddReadData([]byte(testutil.StrictLine(i, i*1000, 0, 0, testutil.Payload(testutil.ExampleBlock)) + "\r\n"))
	}

	sink := &spySink{}
	hub := serialmux.NewHub()
	_, tail := hub.Subscribe()
	r := &Runner{
		Source:  serialmux.NewSerialMux(port),
		Decoder: newDecoder(t, telemetry.Options{}),
		Outputs: spyOpener{sink},
		Tail:    hub,
		Live:    true,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx)
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if rows, _, _ := sink.counts(); rows == 3 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("rows were not written")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop after cancellation")
	}

	rows, flushes, closed := sink.counts()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 3, flushes)
	assert.True(t, closed)
	assert.True(t, port.IsClosed())

	require.Len(t, tail, 3)
	assert.True(t, strings.HasPrefix(<-tail, "1,1000,0,0,10.0,"))
}

func TestRunFatalReadError(t *testing.T) {
	logs := mute(t)
	port := serialmux.NewTestableSerialPort()
	port.ReadError = errors.New("device disconnected")

	sink := &spySink{}
	r := &Runner{
		Source:  serialmux.NewSerialMux(port),
		Decoder: newDecoder(t, telemetry.Options{Layout: "strict"}),
		Outputs: spyOpener{sink},
	}
	_, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "device disconnected")

	_, _, closed := sink.counts()
	assert.True(t, closed)
	assert.True(t, port.IsClosed())
	assert.Contains(t, strings.Join(*logs, "\n"), "fatal")
}

func TestRunProgressLogging(t *testing.T) {
	logs := mute(t)
	port := serialmux.NewTestableSerialPort()
	port.AddReadData([]byte(testutil.LegacyLine(1, 0, 0, testutil.Payload()) + "\n"))
	port.SetEOF()

	clock := timeutil.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	clock.AutoAdvance(time.Second)
	r := &Runner{
		Source:           serialmux.NewSerialMux(port),
		Decoder:          newDecoder(t, telemetry.Options{}),
		Outputs:          spyOpener{&spySink{}},
		ProgressInterval: time.Second,
		Clock:            clock,
	}
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, sum.Finished.After(sum.Started))
	assert.Contains(t, strings.Join(*logs, "\n"), "capture: lines=1 accepted=1")
}

func TestRunWithStore(t *testing.T) {
	mute(t)
	store, err := db.NewDB(filepath.Join(t.TempDir(), "gait.db"))
	require.NoError(t, err)
	defer store.Close()

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.WriteFile("gait.csv", []byte(batchInput()), 0o644))
	src, err := OpenFile(fsys, "gait.csv")
	require.NoError(t, err)

	outputs := &Outputs{FS: fsys, CSVPath: "gait_decoded.csv", Store: store, Source: "gait.csv", PolePairs: 7}
	r := &Runner{Source: src, Decoder: newDecoder(t, telemetry.Options{PolePairs: 7}), Outputs: outputs}
	sum, err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, outputs.Finish(sum))

	run, err := store.GetRun(outputs.RunID())
	require.NoError(t, err)
	assert.Equal(t, "strict", run.Layout)
	assert.Equal(t, 7, run.PolePairs)
	assert.Equal(t, int64(2), run.Accepted)
	assert.Equal(t, int64(1), run.Dropped)

	n, err := store.SampleCount(outputs.RunID())
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestStatsRoute(t *testing.T) {
	mute(t)
	dec := newDecoder(t, telemetry.Options{})
	mux := http.NewServeMux()
	AttachStatsRoute(mux, dec.Stats())

	get := func() statsResponse {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, testutil.NewTestRequest(http.MethodGet, "/debug/stats"))
		testutil.AssertStatusCode(t, w.Code, http.StatusOK)
		var resp statsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	assert.Equal(t, "awaiting-header", get().State)

	dec.Process(testutil.StrictLine(1, 10, 0, 0, testutil.Payload()))
	dec.Process("1,2")
	resp := get()
	assert.Equal(t, "streaming", resp.State)
	assert.Equal(t, "strict", resp.Layout)
	assert.Equal(t, int64(2), resp.Lines)
	assert.Equal(t, int64(1), resp.Accepted)
	assert.Len(t, resp.Columns, telemetry.StrictWidth)
}
