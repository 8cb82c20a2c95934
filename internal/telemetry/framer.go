package telemetry

import (
	"strings"

	"github.com/banshee-data/gaitlog/internal/monitoring"
)

// State is the header resolver state.
type State int

const (
	AwaitingHeader State = iota
	Streaming
)

func (s State) String() string {
	if s == Streaming {
		return "streaming"
	}
	return "awaiting-header"
}

// Class is the framer's classification of one input line.
type Class int

const (
	ClassNoise Class = iota
	ClassHeader
	ClassData
	ClassUnrecognized
)

func (c Class) String() string {
	switch c {
	case ClassNoise:
		return "noise"
	case ClassHeader:
		return "header"
	case ClassData:
		return "data"
	default:
		return "unrecognized"
	}
}

// DefaultBanners are the status lines the controller firmware prints around
// start-up and restarts. They are matched as case-insensitive prefixes.
var DefaultBanners = []string{
	"MotorController initialized",
	"Moving legs to start",
	"finished control loop",
}

// Step is the outcome of framing one line.
type Step struct {
	Class  Class
	Fields []string
	// Variant is the layout a data row should be parsed under.
	Variant Variant
	// Established is set on the line that fixed the run's layout.
	Established bool
	// WidthMismatch is set for data rows whose width differs from the
	// active layout.
	WidthMismatch bool
}

// Framer classifies lines and owns the run's column layout. Once a layout is
// established it never changes for the rest of the run.
type Framer struct {
	state       State
	layout      Layout
	banners     []string
	widthWarned bool
}

// NewFramer returns a framer that resolves its layout from the stream.
// Extra banners are recognised in addition to DefaultBanners.
func NewFramer(extraBanners ...string) *Framer {
	return &Framer{
		state:   AwaitingHeader,
		banners: mergeBanners(extraBanners),
	}
}

// NewFixedFramer returns a framer that starts streaming under the given
// variant without waiting for a header.
func NewFixedFramer(v Variant, extraBanners ...string) *Framer {
	l := InferLayout(v)
	l.Inferred = false
	return &Framer{
		state:   Streaming,
		layout:  l,
		banners: mergeBanners(extraBanners),
	}
}

func mergeBanners(extra []string) []string {
	out := make([]string, 0, len(DefaultBanners)+len(extra))
	for _, b := range append(append([]string{}, DefaultBanners...), extra...) {
		if b = strings.ToLower(strings.TrimSpace(b)); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// State returns the current resolver state.
func (f *Framer) State() State { return f.state }

// Layout returns the active layout once one has been established.
func (f *Framer) Layout() (Layout, bool) {
	return f.layout, f.state == Streaming
}

// WidthWarned reports whether the width-mismatch notice has been logged.
func (f *Framer) WidthWarned() bool { return f.widthWarned }

func (f *Framer) isNoise(trimmed string) bool {
	if trimmed == "" {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, b := range f.banners {
		if strings.HasPrefix(lower, b) {
			return true
		}
	}
	return false
}

// Next classifies one line and advances the resolver.
func (f *Framer) Next(line string) Step {
	if f.isNoise(strings.TrimSpace(line)) {
		return Step{Class: ClassNoise}
	}
	fields := Tokenize(line)
	if len(fields) == 0 {
		// a line of bare separators carries nothing
		return Step{Class: ClassNoise}
	}

	if f.state == AwaitingHeader {
		return f.await(fields)
	}

	step := Step{Class: ClassData, Fields: fields, Variant: f.layout.Variant}
	if len(fields) == f.layout.Width() || strings.EqualFold(fields[0], headerKeyword) {
		return step
	}
	step.WidthMismatch = true
	if v, ok := VariantForWidth(len(fields)); ok {
		step.Variant = v
	}
	if !f.widthWarned {
		f.widthWarned = true
		monitoring.Logf("telemetry: row width %d differs from %s layout width %d; further mismatches are not logged",
			len(fields), f.layout.Variant, f.layout.Width())
	}
	return step
}

func (f *Framer) await(fields []string) Step {
	if strings.EqualFold(fields[0], headerKeyword) {
		f.layout = ResolveHeader(fields)
		f.state = Streaming
		if named := f.layout.NamedVariant(); named != f.layout.Variant {
			monitoring.Logf("telemetry: header columns suggest %s layout but its width %d is %s; using %s",
				named, f.layout.Width(), f.layout.Variant, f.layout.Variant)
		}
		monitoring.Logf("telemetry: header resolved to %s layout with %d columns", f.layout.Variant, f.layout.Width())
		return Step{Class: ClassHeader, Fields: fields, Variant: f.layout.Variant, Established: true}
	}

	if len(fields) < 3 || !isInteger(fields[0]) || !isInteger(fields[1]) || !isInteger(fields[2]) {
		return Step{Class: ClassUnrecognized, Fields: fields}
	}
	v, ok := VariantForWidth(len(fields))
	if !ok {
		return Step{Class: ClassUnrecognized, Fields: fields}
	}
	f.layout = InferLayout(v)
	f.state = Streaming
	monitoring.Logf("telemetry: no header seen, inferred %s layout from a %d-field row", v, len(fields))
	return Step{Class: ClassData, Fields: fields, Variant: v, Established: true}
}
