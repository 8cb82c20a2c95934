// Package testutil provides shared test utilities and telemetry fixtures.
//
// This package centralises the helpers that build raw telemetry lines so the
// decoder, emitter and capture tests all speak the same wire format.
package testutil

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// NewTestRequest creates a test HTTP request from a loopback address, which
// the /debug/ handlers require.
func NewTestRequest(method, path string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = "127.0.0.1:1234"
	return req
}

// Block builds one 8-byte motor block from raw position, speed and current
// counts plus the temperature and fault bytes.
func Block(pos, spd, cur int16, temp int8, fault uint8) []byte {
	return []byte{
		byte(uint16(pos) >> 8), byte(uint16(pos)),
		byte(uint16(spd) >> 8), byte(uint16(spd)),
		byte(uint16(cur) >> 8), byte(uint16(cur)),
		byte(temp), fault,
	}
}

// Payload concatenates motor blocks; missing blocks are zero-filled up to
// 32 bytes.
func Payload(blocks ...[]byte) []byte {
	out := make([]byte, 0, 32)
	for _, b := range blocks {
		out = append(out, b...)
	}
	for len(out) < 32 {
		out = append(out, 0)
	}
	return out
}

// Line renders scalars followed by payload bytes as a comma-separated
// telemetry line.
func Line(scalars []int64, payload []byte) string {
	fields := make([]string, 0, len(scalars)+len(payload))
	for _, s := range scalars {
		fields = append(fields, strconv.FormatInt(s, 10))
	}
	for _, b := range payload {
		fields = append(fields, strconv.Itoa(int(b)))
	}
	return strings.Join(fields, ",")
}

// StrictLine is a 36-field row: timestep, elapsed, left and right gait
// index, then the payload.
func StrictLine(step, elapsedUS, left, right int64, payload []byte) string {
	return Line([]int64{step, elapsedUS, left, right}, payload)
}

// LegacyLine is a 35-field row without the elapsed column.
func LegacyLine(step, left, right int64, payload []byte) string {
	return Line([]int64{step, left, right}, payload)
}

// ExampleBlock is the RightHip block used across tests: 10.0 degrees,
// 500 eRPM, 0.20 A, 25 C, no fault.
var ExampleBlock = []byte{0, 100, 0, 50, 0, 20, 25, 0}
