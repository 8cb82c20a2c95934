package monitoring

import (
	"fmt"
	"log"
	"sync"
)

// Logf is the package-level diagnostic logger used by the decoding pipeline.
// It defaults to log.Printf but may be replaced by SetLogger so tests can
// capture or mute framing notices.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Capture replaces the logger with one that appends formatted messages to
// the returned slice and returns a restore function.
func Capture() (*[]string, func()) {
	original := Logf
	var (
		mu    sync.Mutex
		lines []string
	)
	Logf = func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, fmt.Sprintf(format, v...))
	}
	return &lines, func() { Logf = original }
}
