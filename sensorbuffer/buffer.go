// Package sensorbuffer holds the shared, append-only text buffer that the TCP
// receiver fills with sensor records and the rest of the host reads from.
package sensorbuffer

import (
	"io"
	"strings"
	"sync"
)

// Buffer is an unbounded, append-only text buffer that is safe for one
// writer and any number of concurrent readers. Each AppendLine is applied
// atomically, so a reader never observes half of a line.
//
// Buffer must not be copied after first use.
type Buffer struct {
	mu    sync.RWMutex
	sb    strings.Builder
	lines int
}

// New returns an empty Buffer.
func New() *Buffer {
	return &Buffer{}
}

// AppendLine appends line followed by a single '\n'.
//
// Parameters:
//   - line: The record text without its terminator
func (b *Buffer) AppendLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sb.Grow(len(line) + 1)
	b.sb.WriteString(line)
	b.sb.WriteByte('\n')
	b.lines++
}

// String returns a copy of everything appended so far.
func (b *Buffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return strings.Clone(b.sb.String())
}

// Len returns the number of bytes buffered.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.sb.Len()
}

// LineCount returns the number of lines appended.
func (b *Buffer) LineCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.lines
}

// WriteTo writes the buffered contents to w while holding the read lock, so
// the output is a consistent prefix of the stream.
//
// Returns:
//   - The number of bytes written and any error from w
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n, err := io.WriteString(w, b.sb.String())
	return int64(n), err
}
