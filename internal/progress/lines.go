// Package progress turns the raw output of external tools into progress events.
package progress

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// maxLineSize caps a single output line. Tools that redraw with \r never get
// close to it.
const maxLineSize = 1 << 20

// Stream identifies which output stream a line came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Line is one line of tool output, stamped on arrival.
type Line struct {
	Stream Stream
	Text   string
	At     time.Time
}

// ScanLines is a bufio.SplitFunc that splits on '\n' and '\r' so progress bars
// redrawn in place produce one line per redraw. A "\r\n" pair yields a single
// line.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' {
			if i+1 < len(data) {
				if data[i+1] == '\n' {
					return i + 2, data[:i], nil
				}

				return i + 1, data[:i], nil
			}

			if !atEOF {
				// need one more byte to tell "\r" from "\r\n"
				return 0, nil, nil
			}
		}

		return i + 1, data[:i], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}

// ReadLines reads r until EOF and sends every line to out. It returns early
// with ctx's error when ctx is done. A reader closed by its owner is treated
// as EOF.
func ReadLines(ctx context.Context, r io.Reader, stream Stream, out chan<- Line) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	scanner.Split(ScanLines)

	for scanner.Scan() {
		line := Line{Stream: stream, Text: scanner.Text(), At: time.Now()}

		select {
		case out <- line:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return fmt.Errorf("failed to read %s: %w", stream, err)
	}

	return nil
}
