package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/banshee-data/gaitlog/internal/fsutil"
)

// ErrInputNotFound is returned when a batch input file does not exist.
var ErrInputNotFound = errors.New("input not found")

// LineSource yields input lines one at a time. ReadLine returns ok=false
// with a nil error when no line arrived within the source's read timeout,
// and io.EOF at end of input.
type LineSource interface {
	ReadLine(ctx context.Context) (line string, ok bool, err error)
	Close() error
}

const maxLineSize = 1024 * 1024

// FileLines reads lines from a recorded log, decompressing .gz and .zst
// inputs on the fly.
type FileLines struct {
	name string
	rc   io.ReadCloser
	scan *bufio.Scanner
}

// OpenFile opens name on fsys for line reading.
func OpenFile(fsys fsutil.FileSystem, name string) (*FileLines, error) {
	rc, err := fsutil.OpenInput(fsys, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, name)
		}
		return nil, fmt.Errorf("open input %s: %w", name, err)
	}
	scan := bufio.NewScanner(rc)
	scan.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &FileLines{name: name, rc: rc, scan: scan}, nil
}

// Name returns the input path.
func (f *FileLines) Name() string { return f.name }

func (f *FileLines) ReadLine(ctx context.Context) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if !f.scan.Scan() {
		if err := f.scan.Err(); err != nil {
			return "", false, fmt.Errorf("read %s: %w", f.name, err)
		}
		return "", false, io.EOF
	}
	line := strings.TrimSuffix(f.scan.Text(), "\r")
	return strings.ToValidUTF8(line, ""), true, nil
}

func (f *FileLines) Close() error { return f.rc.Close() }
