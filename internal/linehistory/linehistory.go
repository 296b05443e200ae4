// Package linehistory implements a bounded FIFO of sanitized output lines:
// a fixed line cap with oldest-evicted-first behavior, backed by a slice
// of variable-length line buffers plus one open (in-progress) tail.
package linehistory

import (
	"bytes"

	"claudechill/internal/escseq"
)

// History is a bounded FIFO of completed lines plus one open (no trailing
// LF yet) tail line. Replay always begins with a clear-screen +
// cursor-home seed, kept outside the line accounting so it can never be
// evicted. It is not safe for concurrent use: the orchestrator is its
// single owner.
type History struct {
	maxLines int
	lines    [][]byte
	tail     []byte
	total    int // total bytes across lines + tail, for TotalBytes()
}

// New creates an empty History. Replaying it into any terminal yields a
// clean start state via the seed prefix.
func New(maxLines int) *History {
	return &History{maxLines: maxLines}
}

// PushBytes appends arbitrary bytes, splitting on LF to update line
// accounting. Bytes without a trailing LF are retained as an open tail
// line until a later call supplies the LF. A single append never splits
// an existing completed line; eviction only ever removes whole lines.
func (h *History) PushBytes(b []byte) {
	for len(b) > 0 {
		idx := bytes.IndexByte(b, '\n')
		if idx < 0 {
			h.tail = append(h.tail, b...)
			h.total += len(b)
			return
		}
		h.tail = append(h.tail, b[:idx+1]...)
		h.total += idx + 1
		h.commitTail()
		b = b[idx+1:]
	}
}

func (h *History) commitTail() {
	h.pushLine(h.tail)
	h.tail = nil
}

func (h *History) pushLine(line []byte) {
	h.lines = append(h.lines, line)
	h.evict()
}

// evict drops the oldest completed lines until at or below maxLines. The
// open tail (if any) does not count toward the cap until it is committed.
func (h *History) evict() {
	if h.maxLines <= 0 {
		return
	}
	for len(h.lines) > h.maxLines {
		h.total -= len(h.lines[0])
		h.lines = h.lines[1:]
	}
}

// Clear empties the buffer; the clear-screen + cursor-home seed prefix
// remains, so the next replay still starts from a clean state.
func (h *History) Clear() {
	h.lines = nil
	h.tail = nil
	h.total = 0
}

// LineCount returns the number of completed lines, plus one if there is a
// non-empty open tail.
func (h *History) LineCount() int {
	n := len(h.lines)
	if len(h.tail) > 0 {
		n++
	}
	return n
}

// TotalBytes returns the total bytes currently retained (lines + tail),
// not counting the seed prefix.
func (h *History) TotalBytes() int {
	return h.total
}

// AppendAll appends the seed prefix and every stored byte to out, oldest
// first, without modifying the store.
func (h *History) AppendAll(out *bytes.Buffer) {
	out.WriteString(escseq.ClearScreen + escseq.CursorHome)
	for _, line := range h.lines {
		out.Write(line)
	}
	out.Write(h.tail)
}

// Bytes returns a newly allocated copy of the full retained content.
func (h *History) Bytes() []byte {
	var buf bytes.Buffer
	h.AppendAll(&buf)
	return buf.Bytes()
}
