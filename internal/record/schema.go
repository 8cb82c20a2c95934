// Package record writes decoded telemetry rows. The output schema is fixed
// once per run from the layout variant and whether mechanical RPM is enabled.
package record

import (
	"strconv"
	"strings"

	"github.com/banshee-data/gaitlog/internal/telemetry"
	"github.com/banshee-data/gaitlog/internal/units"
)

// Decimals is the rounding applied to every floating-point output field.
const Decimals = 3

// Schema describes the columns of a decoded output.
type Schema struct {
	Variant telemetry.Variant
	MechRPM bool
	columns []string
}

// NewSchema derives the output columns for a run.
func NewSchema(v telemetry.Variant, mechRPM bool) Schema {
	cols := []string{telemetry.ColTimeStep}
	if v == telemetry.StrictElapsed {
		cols = append(cols, telemetry.ColElapsedUS)
	}
	cols = append(cols, telemetry.ColLeftGait, telemetry.ColRightGait)
	for _, m := range telemetry.MotorOrder {
		name := m.String()
		cols = append(cols, name+"_pos_deg", name+"_spd_"+units.ERPM)
		if mechRPM {
			cols = append(cols, name+"_spd_"+units.MechRPM)
		}
		cols = append(cols, name+"_current_A", name+"_temp_C", name+"_err_code", name+"_err_text")
	}
	return Schema{Variant: v, MechRPM: mechRPM, columns: cols}
}

// Columns returns a copy of the header row.
func (s Schema) Columns() []string {
	return append([]string(nil), s.columns...)
}

// Width is the number of output columns.
func (s Schema) Width() int { return len(s.columns) }

// Row renders a record under the schema. A record without an elapsed value
// leaves the Elapsed_us cell empty in a strict schema; a legacy schema has
// no such cell at all.
func (s Schema) Row(rec telemetry.Record) []string {
	row := make([]string, 0, len(s.columns))
	row = append(row, strconv.Itoa(rec.TimeStep))
	if s.Variant == telemetry.StrictElapsed {
		if rec.HasElapsed {
			row = append(row, strconv.FormatInt(rec.ElapsedUS, 10))
		} else {
			row = append(row, "")
		}
	}
	row = append(row, strconv.Itoa(rec.LeftGait), strconv.Itoa(rec.RightGait))
	for _, m := range rec.Motors {
		row = append(row, FormatFloat(m.PosDeg), FormatFloat(m.SpeedERPM))
		if s.MechRPM {
			row = append(row, FormatFloat(m.MechRPM))
		}
		row = append(row,
			FormatFloat(m.CurrentA),
			strconv.Itoa(int(m.TempC)),
			strconv.Itoa(int(m.ErrCode)),
			m.ErrText,
		)
	}
	return row
}

// FormatFloat rounds to Decimals places and always keeps a decimal point,
// so 10 is written as "10.0" like the bench tooling's CSVs.
func FormatFloat(v float64) string {
	v = units.Round(v, Decimals)
	if v == 0 {
		v = 0 // drop negative zero
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}
