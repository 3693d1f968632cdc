package protocol

import (
	"bytes"
	"errors"
	"fmt"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// ErrFrameTooLarge is returned by Framer.Next when a frame, complete or still
// buffered, exceeds the configured maximum size.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds maximum size")

// Framer is the per-connection byte accumulator. Bytes are appended with
// Write and complete frames are consumed with Next. Trailing data without a
// delimiter stays buffered until more bytes arrive.
//
// A Framer is not safe for concurrent use; each connection owns one.
type Framer struct {
	buf      []byte
	start    int
	maxFrame int
}

// NewFramer returns a Framer that rejects frames longer than maxFrame bytes.
// A maxFrame of zero or less disables the limit.
func NewFramer(maxFrame int) *Framer {
	return &Framer{maxFrame: maxFrame}
}

// Write appends p to the buffer. It never returns an error.
func (f *Framer) Write(p []byte) (int, error) {
	if f.start > 0 {
		n := copy(f.buf, f.buf[f.start:])
		f.buf = f.buf[:n]
		f.start = 0
	}
	f.buf = append(f.buf, p...)
	return len(p), nil
}

// Buffered reports how many undecoded bytes are held.
func (f *Framer) Buffered() int {
	return len(f.buf) - f.start
}

// Next returns the next non-blank frame without its delimiter. ok is false
// when no complete frame is buffered. Whitespace-only frames are skipped.
// The returned slice is a copy and remains valid after further writes.
func (f *Framer) Next() (frame []byte, ok bool, err error) {
	for {
		pending := f.buf[f.start:]
		idx := bytes.IndexByte(pending, Delimiter)
		if idx < 0 {
			if f.maxFrame > 0 && len(pending) > f.maxFrame {
				return nil, false, fmt.Errorf("%w: %d buffered bytes without delimiter", ErrFrameTooLarge, len(pending))
			}
			return nil, false, nil
		}

		line := pending[:idx]
		f.start += idx + 1
		if f.start == len(f.buf) {
			f.buf = f.buf[:0]
			f.start = 0
		}

		if f.maxFrame > 0 && len(line) > f.maxFrame {
			return nil, false, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(line))
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return bytes.Clone(line), true, nil
	}
}

// AppendFrame appends payload and exactly one delimiter to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = append(dst, payload...)
	return append(dst, Delimiter)
}
