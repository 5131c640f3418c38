package archive

import (
	"errors"
	"io"
)

// ErrCapacityExceeded is returned by SizedWriter when a write would push
// the total past the configured capacity.
var ErrCapacityExceeded = errors.New("archive: part capacity exceeded")

// SizedWriter wraps an io.Writer, counts the bytes written through it, and
// refuses writes that would exceed a caller-supplied capacity. A capacity
// of zero disables the limit and keeps only the byte count.
type SizedWriter struct {
	w        io.Writer
	capacity int64
	written  int64
}

// NewSizedWriter returns a SizedWriter over w with the given capacity in
// bytes. Pass zero for an unlimited writer that still counts.
func NewSizedWriter(w io.Writer, capacity int64) *SizedWriter {
	return &SizedWriter{w: w, capacity: capacity}
}

// Write writes p to the underlying writer. If the write would exceed the
// capacity, nothing is written and ErrCapacityExceeded is returned.
func (sw *SizedWriter) Write(p []byte) (int, error) {
	if sw.capacity > 0 && sw.written+int64(len(p)) > sw.capacity {
		return 0, ErrCapacityExceeded
	}
	n, err := sw.w.Write(p)
	sw.written += int64(n)
	//nolint:wrapcheck // io.Writer interface contract - error comes from underlying writer
	return n, err
}

// Written returns the total number of bytes written so far.
func (sw *SizedWriter) Written() int64 {
	return sw.written
}

// Remaining returns how many more bytes fit before the capacity is hit,
// or -1 when the writer is unlimited.
func (sw *SizedWriter) Remaining() int64 {
	if sw.capacity <= 0 {
		return -1
	}
	return sw.capacity - sw.written
}
