package main

import (
	"context"
	"errors"
	"flag"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gaitlog/internal/capture"
	"github.com/banshee-data/gaitlog/internal/config"
	"github.com/banshee-data/gaitlog/internal/fsutil"
	"github.com/banshee-data/gaitlog/internal/testutil"
	"github.com/banshee-data/gaitlog/internal/timeutil"
)

func TestLoadConfigPositionalInput(t *testing.T) {
	fs := flag.NewFlagSet("gaitdecode", flag.ContinueOnError)
	fs.IntVar(polePairs, "pole-pairs", 0, "")
	fs.StringVar(output, "o", "", "")
	require.NoError(t, fs.Parse([]string{"-pole-pairs", "21", "-o", "out.csv", "runs/gait.csv"}))
	t.Cleanup(func() { *polePairs, *output = 0, "" })

	cfg, err := loadConfig(fs)
	require.NoError(t, err)
	assert.Equal(t, "runs/gait.csv", cfg.GetInput(""))
	assert.Equal(t, 21, cfg.GetPolePairs())
	assert.Equal(t, "out.csv", cfg.GetOutput())
}

func TestLoadConfigRejectsNegativePolePairs(t *testing.T) {
	fs := flag.NewFlagSet("gaitdecode", flag.ContinueOnError)
	fs.IntVar(polePairs, "pole-pairs", 0, "")
	require.NoError(t, fs.Parse([]string{"-pole-pairs", "-3", "x.csv"}))
	t.Cleanup(func() { *polePairs = 0 })

	_, err := loadConfig(fs)
	assert.Error(t, err)
}

func TestDecodeDefaultOutput(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("runs", 0o755))
	input := strings.Join([]string{
		"Moving legs to start",
		testutil.LegacyLine(1, 2, 3, testutil.Payload(testutil.ExampleBlock)),
		testutil.StrictLine(2, 100, 2, 3, testutil.Payload()),
		testutil.LegacyLine(3, 2, 3, testutil.Payload()),
	}, "\n")
	require.NoError(t, fsys.WriteFile("runs/gait.csv", []byte(input), 0o644))

	in := "runs/gait.csv"
	cfg := &config.CaptureConfig{Input: &in}
	require.NoError(t, decode(context.Background(), cfg, fsys, timeutil.RealClock{}))

	got, err := fsys.ReadFile("runs/gait_decoded.csv")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(got)), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "TimeStep,L_Gait_Index,R_Gait_Index,RightHip_pos_deg,"))
	assert.True(t, strings.HasPrefix(lines[1], "1,2,3,10.0,500.0,0.2,25,0,OK,"))
	// the strict row is emitted under the run's legacy schema
	assert.True(t, strings.HasPrefix(lines[2], "2,2,3,0.0,"))
}

func TestDecodeMissingInput(t *testing.T) {
	in := "absent.csv"
	err := decode(context.Background(), &config.CaptureConfig{Input: &in}, fsutil.NewMemoryFileSystem(), timeutil.RealClock{})
	assert.True(t, errors.Is(err, capture.ErrInputNotFound), "err = %v", err)
}
