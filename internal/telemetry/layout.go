package telemetry

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Variant is the row shape a layout describes.
type Variant int

const (
	// StrictElapsed rows carry TimeStep, Elapsed_us, both gait indices and
	// the 32 payload bytes.
	StrictElapsed Variant = iota
	// Legacy rows predate the elapsed-time column.
	Legacy
)

// Row widths of the two supported variants.
const (
	StrictWidth = 4 + PayloadSize
	LegacyWidth = 3 + PayloadSize
)

// Scalar column names shared by input headers and decoded output.
const (
	ColTimeStep    = "TimeStep"
	ColElapsedUS   = "Elapsed_us"
	ColLeftGait    = "L_Gait_Index"
	ColRightGait   = "R_Gait_Index"
	headerKeyword  = "timestep"
	elapsedKeyword = "elapsed_us"
)

func (v Variant) String() string {
	switch v {
	case StrictElapsed:
		return "strict"
	case Legacy:
		return "legacy"
	default:
		return fmt.Sprintf("Variant(%d)", int(v))
	}
}

// Width returns the number of fields in a row of this variant.
func (v Variant) Width() int {
	if v == Legacy {
		return LegacyWidth
	}
	return StrictWidth
}

// Scalars returns the number of leading scalar fields before the payload.
func (v Variant) Scalars() int {
	return v.Width() - PayloadSize
}

// ParseVariant maps a configuration string onto a variant.
func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict", "strict-elapsed", "elapsed":
		return StrictElapsed, nil
	case "legacy":
		return Legacy, nil
	default:
		return 0, fmt.Errorf("unknown layout %q: expected strict or legacy", s)
	}
}

// VariantForWidth reports which variant, if any, has exactly the given width.
func VariantForWidth(width int) (Variant, bool) {
	switch width {
	case StrictWidth:
		return StrictElapsed, true
	case LegacyWidth:
		return Legacy, true
	default:
		return 0, false
	}
}

// Layout is the active column layout of a run.
type Layout struct {
	Variant Variant
	Columns []string
	// Inferred is set when the layout was derived from a data row rather
	// than read from a header line.
	Inferred bool
}

// Width is the number of columns in the layout.
func (l Layout) Width() int {
	return len(l.Columns)
}

// InferLayout builds the deterministic header for a variant.
func InferLayout(v Variant) Layout {
	cols := []string{ColTimeStep}
	if v == StrictElapsed {
		cols = append(cols, ColElapsedUS)
	}
	cols = append(cols, ColLeftGait, ColRightGait)
	for _, m := range MotorOrder {
		cols = append(cols, expandCompact(m.String(), BlockSize)...)
	}
	return Layout{Variant: v, Columns: cols, Inferred: true}
}

var compactToken = regexp.MustCompile(`^([A-Za-z0-9_]+)\[(\d+)\]$`)

// ResolveHeader expands a header row into a layout. Compact tokens such as
// "RightHip[8]" become RightHip_0 .. RightHip_7. A header with the width of
// a supported variant takes that variant whatever its columns are named;
// otherwise the variant is strict when an Elapsed_us column is present.
func ResolveHeader(fields []string) Layout {
	l := expandHeader(fields)
	if v, ok := VariantForWidth(l.Width()); ok {
		l.Variant = v
	}
	return l
}

// NamedVariant reports the variant implied by column names alone: strict
// when an Elapsed_us column is present, legacy otherwise.
func (l Layout) NamedVariant() Variant {
	for _, c := range l.Columns {
		if strings.EqualFold(c, elapsedKeyword) {
			return StrictElapsed
		}
	}
	return Legacy
}

func expandHeader(fields []string) Layout {
	var cols []string
	for _, f := range fields {
		if m := compactToken.FindStringSubmatch(f); m != nil {
			n, err := strconv.Atoi(m[2])
			if err == nil && n > 0 {
				cols = append(cols, expandCompact(m[1], n)...)
				continue
			}
		}
		cols = append(cols, f)
	}

	l := Layout{Columns: cols}
	l.Variant = l.NamedVariant()
	return l
}

func expandCompact(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + "_" + strconv.Itoa(i)
	}
	return out
}
