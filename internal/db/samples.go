package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/banshee-data/gaitlog/internal/telemetry"
)

// motorFields are the stored per-motor columns, in insert order.
var motorFields = []string{"pos_deg", "spd_erpm", "current_a", "temp_c", "err_code"}

var sampleColumns, insertSampleSQL = sampleSQL()

func sampleSQL() ([]string, string) {
	cols := []string{"run_id", "time_step", "elapsed_us", "l_gait_index", "r_gait_index", "mismatched"}
	for _, m := range telemetry.MotorOrder {
		prefix := snake(m.String())
		for _, f := range motorFields {
			cols = append(cols, prefix+"_"+f)
		}
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return cols, fmt.Sprintf("INSERT INTO samples (%s) VALUES (%s)", strings.Join(cols, ", "), placeholders)
}

// snake converts "RightHip" to "right_hip".
func snake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SampleWriter stores decoded records for one run. Rows are written inside a
// transaction that is committed by Flush, so the caller chooses the batch
// size: the live logger flushes every row, batch decoding flushes at the end.
type SampleWriter struct {
	db     *DB
	runID  string
	tx     *sql.Tx
	stmt   *sql.Stmt
	rows   int64
	closed bool
}

// NewSampleWriter returns a writer that appends samples to runID.
func (db *DB) NewSampleWriter(runID string) *SampleWriter {
	return &SampleWriter{db: db, runID: runID}
}

// RunID returns the run the writer appends to.
func (w *SampleWriter) RunID() string { return w.runID }

// Rows returns the number of samples written so far.
func (w *SampleWriter) Rows() int64 { return w.rows }

func (w *SampleWriter) begin() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("begin sample batch: %w", err)
	}
	stmt, err := tx.Prepare(insertSampleSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	w.tx, w.stmt = tx, stmt
	return nil
}

func (w *SampleWriter) Write(rec telemetry.Record) error {
	if w.closed {
		return errors.New("sample writer closed")
	}
	if w.tx == nil {
		if err := w.begin(); err != nil {
			return err
		}
	}

	var elapsed sql.NullInt64
	if rec.HasElapsed {
		elapsed = sql.NullInt64{Int64: rec.ElapsedUS, Valid: true}
	}
	args := make([]any, 0, len(sampleColumns))
	args = append(args, w.runID, rec.TimeStep, elapsed, rec.LeftGait, rec.RightGait, rec.Mismatched)
	for _, s := range rec.Motors {
		args = append(args, s.PosDeg, s.SpeedERPM, s.CurrentA, s.TempC, s.ErrCode)
	}
	if _, err := w.stmt.Exec(args...); err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	w.rows++
	return nil
}

// Flush commits the open batch, if any.
func (w *SampleWriter) Flush() error {
	if w.tx == nil {
		return nil
	}
	w.stmt.Close()
	err := w.tx.Commit()
	w.tx, w.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("commit sample batch: %w", err)
	}
	return nil
}

// Close commits any pending rows. The database itself stays open.
func (w *SampleWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.Flush()
}

// Samples returns the stored records of a run in insertion order. Mechanical
// RPM is not stored and is left unset.
func (db *DB) Samples(runID string) ([]telemetry.Record, error) {
	rows, err := db.Query(
		fmt.Sprintf("SELECT %s FROM samples WHERE run_id = ? ORDER BY sample_id", strings.Join(sampleColumns[1:], ", ")),
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []telemetry.Record
	for rows.Next() {
		var (
			rec     telemetry.Record
			elapsed sql.NullInt64
		)
		dest := []any{&rec.TimeStep, &elapsed, &rec.LeftGait, &rec.RightGait, &rec.Mismatched}
		for i := range rec.Motors {
			s := &rec.Motors[i]
			dest = append(dest, &s.PosDeg, &s.SpeedERPM, &s.CurrentA, &s.TempC, &s.ErrCode)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		rec.ElapsedUS, rec.HasElapsed = elapsed.Int64, elapsed.Valid
		for i := range rec.Motors {
			rec.Motors[i].ErrText = telemetry.FaultText(rec.Motors[i].ErrCode)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SampleCount returns the number of stored samples for a run.
func (db *DB) SampleCount(runID string) (int64, error) {
	var n int64
	err := db.QueryRow("SELECT COUNT(*) FROM samples WHERE run_id = ?", runID).Scan(&n)
	return n, err
}
