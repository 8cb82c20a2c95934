package telemetry

import (
	"strconv"
	"strings"
)

// Frame is one validated telemetry row before decoding.
type Frame struct {
	TimeStep   int
	ElapsedUS  int64
	HasElapsed bool
	LeftGait   int
	RightGait  int
	Payload    [PayloadSize]byte
}

// Tokenize splits a comma-separated line, trims every field and drops
// trailing empty fields left behind by padded log lines.
func Tokenize(line string) []string {
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	n := len(fields)
	for n > 0 && fields[n-1] == "" {
		n--
	}
	return fields[:n]
}

// ParseRow validates a tokenized row against a variant. On failure the
// returned Reason says why the row was skipped; ReasonNone means success.
// The payload is all-or-nothing: one bad byte rejects the row.
func ParseRow(fields []string, v Variant) (Frame, Reason) {
	var f Frame
	if len(fields) == 0 {
		return f, ReasonEmpty
	}
	if strings.EqualFold(fields[0], headerKeyword) {
		return f, ReasonHeaderEcho
	}
	if len(fields) < v.Width() {
		return f, ReasonShortRow
	}

	var err error
	i := 0
	if f.TimeStep, err = strconv.Atoi(fields[i]); err != nil {
		return Frame{}, ReasonBadScalar
	}
	i++
	if v == StrictElapsed {
		if f.ElapsedUS, err = strconv.ParseInt(fields[i], 10, 64); err != nil {
			return Frame{}, ReasonBadScalar
		}
		f.HasElapsed = true
		i++
	}
	if f.LeftGait, err = strconv.Atoi(fields[i]); err != nil {
		return Frame{}, ReasonBadScalar
	}
	i++
	if f.RightGait, err = strconv.Atoi(fields[i]); err != nil {
		return Frame{}, ReasonBadScalar
	}
	i++

	for j, s := range fields[i : i+PayloadSize] {
		b, err := strconv.Atoi(s)
		if err != nil || b < 0 || b > 255 {
			return Frame{}, ReasonBadByte
		}
		f.Payload[j] = byte(b)
	}
	return f, ReasonNone
}

// isInteger reports whether s parses as a base-10 integer.
func isInteger(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
