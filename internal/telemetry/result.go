package telemetry

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// Outcome tags the result of processing one line.
type Outcome int

const (
	Accepted Outcome = iota
	Skipped
	Fatal
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Skipped:
		return "skipped"
	default:
		return "fatal"
	}
}

// Reason explains why a line did not produce a record.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonNoise
	ReasonUnrecognized
	ReasonHeader
	ReasonEmpty
	ReasonHeaderEcho
	ReasonShortRow
	ReasonBadScalar
	ReasonBadByte
	numReasons
)

var reasonNames = [numReasons]string{
	ReasonNone:         "none",
	ReasonNoise:        "noise",
	ReasonUnrecognized: "unrecognized",
	ReasonHeader:       "header",
	ReasonEmpty:        "empty_row",
	ReasonHeaderEcho:   "header_echo",
	ReasonShortRow:     "short_row",
	ReasonBadScalar:    "bad_scalar",
	ReasonBadByte:      "bad_byte",
}

func (r Reason) String() string {
	if r >= 0 && r < numReasons {
		return reasonNames[r]
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Dropped reports whether the reason is a row validation failure, as opposed
// to expected stream noise or framing.
func (r Reason) Dropped() bool {
	switch r {
	case ReasonEmpty, ReasonHeaderEcho, ReasonShortRow, ReasonBadScalar, ReasonBadByte:
		return true
	}
	return false
}

// Record is a fully decoded telemetry row. Motors is indexed in MotorOrder.
type Record struct {
	TimeStep   int
	ElapsedUS  int64
	HasElapsed bool
	LeftGait   int
	RightGait  int
	Motors     [4]Sample
	// Mismatched is set when the row's width differed from the run layout.
	Mismatched bool
}

// Result is the tagged outcome of one line. Record is set only when Outcome
// is Accepted, Err only when it is Fatal.
type Result struct {
	Outcome Outcome
	Record  Record
	Reason  Reason
	Err     error
	// Established is set on the line that fixed the run's layout.
	Established bool
	// WidthMismatch is set for data rows whose width differed from the run
	// layout, whether or not they were accepted.
	WidthMismatch bool
}

// AcceptedResult wraps a decoded record.
func AcceptedResult(rec Record) Result { return Result{Outcome: Accepted, Record: rec} }

// SkippedResult records why a line produced nothing.
func SkippedResult(r Reason) Result { return Result{Outcome: Skipped, Reason: r} }

// FatalResult wraps an unrecoverable input error.
func FatalResult(err error) Result { return Result{Outcome: Fatal, Err: err} }

// Stats counts what happened to every line of a run. Counters may be read
// from other goroutines while the run is in progress.
type Stats struct {
	lines         atomic.Int64
	accepted      atomic.Int64
	widthMismatch atomic.Int64
	reasons       [numReasons]atomic.Int64
	layout        atomic.Pointer[Layout]
}

func (s *Stats) setLayout(l Layout) { s.layout.Store(&l) }

// Layout returns the run's layout once established. Unlike Decoder.Layout
// it may be called from other goroutines.
func (s *Stats) Layout() (Layout, bool) {
	if l := s.layout.Load(); l != nil {
		return *l, true
	}
	return Layout{}, false
}

func (s *Stats) record(res Result) {
	s.lines.Add(1)
	if res.WidthMismatch {
		s.widthMismatch.Add(1)
	}
	switch res.Outcome {
	case Accepted:
		s.accepted.Add(1)
	case Skipped:
		s.reasons[res.Reason].Add(1)
	}
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Lines         int64            `json:"lines"`
	Accepted      int64            `json:"accepted"`
	Dropped       int64            `json:"dropped"`
	WidthMismatch int64            `json:"width_mismatch"`
	Skipped       map[string]int64 `json:"skipped"`
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	snap := StatsSnapshot{
		Lines:         s.lines.Load(),
		Accepted:      s.accepted.Load(),
		WidthMismatch: s.widthMismatch.Load(),
		Skipped:       make(map[string]int64),
	}
	for r := ReasonNoise; r < numReasons; r++ {
		n := s.reasons[r].Load()
		if n == 0 {
			continue
		}
		snap.Skipped[r.String()] = n
		if r.Dropped() {
			snap.Dropped += n
		}
	}
	return snap
}

// String renders the snapshot as a single log line.
func (s StatsSnapshot) String() string {
	keys := make([]string, 0, len(s.Skipped))
	for k := range s.Skipped {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	fmt.Fprintf(&b, "lines=%d accepted=%d dropped=%d width_mismatch=%d", s.Lines, s.Accepted, s.Dropped, s.WidthMismatch)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%d", k, s.Skipped[k])
	}
	return b.String()
}
