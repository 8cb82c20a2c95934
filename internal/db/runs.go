package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gaitlog/internal/telemetry"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunInfo describes a capture or decode run when it starts.
type RunInfo struct {
	Source    string    `json:"source"`
	Output    string    `json:"output"`
	Layout    string    `json:"layout"`
	PolePairs int       `json:"pole_pairs"`
	StartedAt time.Time `json:"started_at"`
}

// Run is a stored run with its final counters. FinishedAt is zero while the
// run is still in progress.
type Run struct {
	ID string `json:"run_id"`
	RunInfo
	FinishedAt    time.Time `json:"finished_at"`
	Lines         int64     `json:"lines"`
	Accepted      int64     `json:"accepted"`
	Dropped       int64     `json:"dropped"`
	WidthMismatch int64     `json:"width_mismatch"`
}

// StartRun records a new run and returns its id.
func (db *DB) StartRun(info RunInfo) (string, error) {
	id := uuid.NewString()
	_, err := db.Exec(`
		INSERT INTO runs (run_id, source, output, layout, pole_pairs, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, info.Source, info.Output, info.Layout, info.PolePairs, info.StartedAt.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// FinishRun stores the run's end time and counters.
func (db *DB) FinishRun(id string, finishedAt time.Time, stats telemetry.StatsSnapshot) error {
	res, err := db.Exec(`
		UPDATE runs
		SET finished_at = ?, lines = ?, accepted = ?, dropped = ?, width_mismatch = ?
		WHERE run_id = ?`,
		finishedAt.UnixMilli(), stats.Lines, stats.Accepted, stats.Dropped, stats.WidthMismatch, id,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

const runColumns = `run_id, source, output, layout, pole_pairs, started_at, finished_at,
	lines, accepted, dropped, width_mismatch`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Source, &r.Output, &r.Layout, &r.PolePairs, &started, &finished,
		&r.Lines, &r.Accepted, &r.Dropped, &r.WidthMismatch)
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.UnixMilli(started).UTC()
	if finished.Valid {
		r.FinishedAt = time.UnixMilli(finished.Int64).UTC()
	}
	return r, nil
}

// GetRun returns a single run by id.
func (db *DB) GetRun(id string) (Run, error) {
	r, err := scanRun(db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", id, ErrRunNotFound)
	}
	return r, err
}

// Runs returns every run, newest first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
