package capture

import (
	"fmt"

	"github.com/banshee-data/gaitlog/internal/db"
	"github.com/banshee-data/gaitlog/internal/fsutil"
	"github.com/banshee-data/gaitlog/internal/monitoring"
	"github.com/banshee-data/gaitlog/internal/record"
	"github.com/banshee-data/gaitlog/internal/timeutil"
)

// Outputs opens the decoded CSV and, when a store is configured, a run in
// the record store.
type Outputs struct {
	FS        fsutil.FileSystem
	CSVPath   string
	Store     *db.DB
	Source    string
	PolePairs int
	Clock     timeutil.Clock

	runID string
}

// Open creates the CSV file, writes its header and starts a store run.
func (o *Outputs) Open(schema record.Schema) (record.Sink, error) {
	f, err := fsutil.CreateAll(o.FS, o.CSVPath)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", o.CSVPath, err)
	}
	csvw, err := record.NewCSVWriter(f, schema)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", o.CSVPath, err)
	}
	monitoring.Logf("capture: writing %s layout to %s", schema.Variant, o.CSVPath)

	if o.Store == nil {
		return csvw, nil
	}

	clock := o.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	id, err := o.Store.StartRun(db.RunInfo{
		Source:    o.Source,
		Output:    o.CSVPath,
		Layout:    schema.Variant.String(),
		PolePairs: o.PolePairs,
		StartedAt: clock.Now(),
	})
	if err != nil {
		csvw.Close()
		return nil, err
	}
	o.runID = id
	monitoring.Logf("capture: recording run %s to %s", id, o.Store.Path())
	return record.Multi{csvw, o.Store.NewSampleWriter(id)}, nil
}

// RunID returns the store run id, or "" when no run was started.
func (o *Outputs) RunID() string { return o.runID }

// Finish stores the run's final counters.
func (o *Outputs) Finish(sum Summary) error {
	if o.Store == nil || o.runID == "" {
		return nil
	}
	return o.Store.FinishRun(o.runID, sum.Finished, sum.Stats)
}
