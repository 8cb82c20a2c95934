package telemetry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gaitlog/internal/monitoring"
	"github.com/banshee-data/gaitlog/internal/testutil"
)

func strictRow(step int64) string {
	return testutil.StrictLine(step, step*1000, 1, 2, testutil.Payload(testutil.ExampleBlock))
}

func legacyRow(step int64) string {
	return testutil.LegacyLine(step, 1, 2, testutil.Payload(testutil.ExampleBlock))
}

func TestFramerNoise(t *testing.T) {
	f := NewFramer()
	for _, line := range []string{"", "   ", "\r", "MotorController initialized",
		"Moving legs to start,,,,,,,,,,,,,,", "finished control loop,restarting", ",,,,"} {
		step := f.Next(line)
		assert.Equal(t, ClassNoise, step.Class, "line %q", line)
	}
	assert.Equal(t, AwaitingHeader, f.State())

	// banners stay noise after the layout is known
	f.Next(strictRow(1))
	require.Equal(t, Streaming, f.State())
	assert.Equal(t, ClassNoise, f.Next("motorcontroller INITIALIZED").Class)
}

func TestFramerExtraBanner(t *testing.T) {
	f := NewFramer("Calibrating")
	assert.Equal(t, ClassNoise, f.Next("Calibrating IMU...").Class)
	assert.Equal(t, ClassUnrecognized, NewFramer().Next("Calibrating IMU...").Class)
}

func TestFramerExplicitHeader(t *testing.T) {
	f := NewFramer()
	step := f.Next("timeSTEP,Elapsed_us,L_Gait_Index,R_Gait_Index,RightHip[8],RightKnee[8],LeftKnee[8],LeftHip[8]")
	assert.Equal(t, ClassHeader, step.Class)
	assert.True(t, step.Established)

	l, ok := f.Layout()
	require.True(t, ok)
	assert.Equal(t, StrictElapsed, l.Variant)
	assert.Equal(t, 36, l.Width())
	assert.False(t, l.Inferred)

	// a header echo later in the run is a data row for the parser to reject
	echo := f.Next("TimeStep,Elapsed_us,L_Gait_Index,R_Gait_Index,RightHip[8],RightKnee[8],LeftKnee[8],LeftHip[8]")
	assert.Equal(t, ClassData, echo.Class)
	assert.False(t, echo.WidthMismatch)
	assert.False(t, f.WidthWarned())
}

func TestFramerInfersFromFirstDataRow(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		variant Variant
	}{
		{"strict", strictRow(1), StrictElapsed},
		{"legacy", legacyRow(1), Legacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer()
			step := f.Next(tt.line)
			assert.Equal(t, ClassData, step.Class)
			assert.True(t, step.Established)
			assert.Equal(t, tt.variant, step.Variant)
			l, ok := f.Layout()
			require.True(t, ok)
			assert.True(t, l.Inferred)
			assert.Equal(t, tt.variant, l.Variant)
		})
	}
}

func TestFramerWaitsOnUnrecognizedWidth(t *testing.T) {
	f := NewFramer()
	short := strings.Join(strings.Split(strictRow(1), ",")[:20], ",")
	for _, line := range []string{short, "1,2,3", "hello,world", "1,2,x," + strings.Repeat("0,", 33)} {
		step := f.Next(line)
		assert.Equal(t, ClassUnrecognized, step.Class, "line %q", line)
		assert.Equal(t, AwaitingHeader, f.State())
	}
	step := f.Next(strictRow(2))
	assert.Equal(t, ClassData, step.Class)
	assert.Equal(t, Streaming, f.State())
}

func TestFramerWidthMismatchLoggedOnce(t *testing.T) {
	lines, restore := monitoring.Capture()
	defer restore()

	f := NewFramer()
	f.Next(strictRow(1))
	first := f.Next(legacyRow(2))
	second := f.Next(legacyRow(3))
	wide := f.Next(strictRow(4) + ",1,2")

	assert.True(t, first.WidthMismatch)
	assert.Equal(t, Legacy, first.Variant)
	assert.True(t, second.WidthMismatch)
	assert.True(t, wide.WidthMismatch)
	assert.Equal(t, StrictElapsed, wide.Variant)
	assert.True(t, f.WidthWarned())

	notices := 0
	for _, l := range *lines {
		if strings.Contains(l, "differs from") {
			notices++
		}
	}
	assert.Equal(t, 1, notices, "logs: %q", *lines)

	l, _ := f.Layout()
	assert.Equal(t, StrictElapsed, l.Variant, "layout must never be re-inferred")
}

func TestFixedFramer(t *testing.T) {
	f := NewFixedFramer(Legacy)
	assert.Equal(t, Streaming, f.State())
	step := f.Next(legacyRow(1))
	assert.Equal(t, ClassData, step.Class)
	assert.False(t, step.Established)
	assert.Equal(t, ClassData, f.Next("TimeStep,L_Gait_Index").Class)
}
