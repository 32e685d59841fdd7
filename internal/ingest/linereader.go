package ingest

import (
	"bufio"
	"errors"
	"io"
)

const (
	initialBufSize = 64 * 1024        // 64KB
	maxLineSize    = 16 * 1024 * 1024 // 16MB
)

// lineReader reads JSONL line by line and tracks how many bytes
// it has consumed. Lines longer than maxLen are dropped and
// counted rather than aborting the file.
type lineReader struct {
	r         *bufio.Reader
	maxLen    int
	buf       []byte
	consumed  int64
	oversized int
	err       error
}

func newLineReader(r io.Reader, maxLen int) *lineReader {
	return &lineReader{
		r:      bufio.NewReaderSize(r, initialBufSize),
		maxLen: maxLen,
		buf:    make([]byte, 0, initialBufSize),
	}
}

// next returns the next non-blank line without its line ending.
// terminated is false for a final line with no trailing newline.
// ok is false at EOF or on a read error; Err reports the latter.
func (lr *lineReader) next() (line string, terminated, ok bool) {
	for {
		line, terminated, err := lr.readLine()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				lr.err = err
			}
			return "", false, false
		}
		if line != "" {
			return line, terminated, true
		}
	}
}

// Err returns the first non-EOF read error.
func (lr *lineReader) Err() error {
	return lr.err
}

func (lr *lineReader) readLine() (string, bool, error) {
	lr.buf = lr.buf[:0]
	skipping := false

	for {
		chunk, err := lr.r.ReadSlice('\n')
		lr.consumed += int64(len(chunk))
		if err != nil &&
			!errors.Is(err, bufio.ErrBufferFull) &&
			!errors.Is(err, io.EOF) {
			return "", false, err
		}

		if skipping {
			switch {
			case err == nil:
				return "", true, nil
			case errors.Is(err, io.EOF):
				return "", false, io.EOF
			}
			continue
		}

		lr.buf = append(lr.buf, chunk...)
		switch {
		case err == nil:
			line := trimEOL(lr.buf)
			if len(line) > lr.maxLen {
				lr.oversized++
				return "", true, nil
			}
			return line, true, nil
		case errors.Is(err, io.EOF):
			if len(lr.buf) == 0 {
				return "", false, io.EOF
			}
			line := trimEOL(lr.buf)
			if len(line) > lr.maxLen {
				lr.oversized++
				return "", false, io.EOF
			}
			return line, false, nil
		}

		// Buffer full mid-line.
		if len(lr.buf) > lr.maxLen {
			lr.oversized++
			lr.buf = lr.buf[:0]
			skipping = true
		}
	}
}

func trimEOL(b []byte) string {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
	}
	if n > 0 && b[n-1] == '\r' {
		n--
	}
	return string(b[:n])
}
