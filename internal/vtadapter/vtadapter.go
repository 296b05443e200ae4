// Package vtadapter wraps github.com/vito/midterm's VT100-class emulator,
// exposing the snapshot/full/diff contract the proxy orchestrator needs
// for coalesced redraws.
//
// midterm's own RenderLine does not emit an SGR reset between format
// regions, which lets a background color bleed from one region into
// the next, so each region is rendered with an explicit reset first.
package vtadapter

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/vito/midterm"

	"claudechill/internal/escseq"
)

// Adapter feeds bytes to a VT parser and produces full/differential
// screen snapshots.
type Adapter struct {
	term *midterm.Terminal
	rows int
	cols int
}

// New creates an Adapter with the given screen dimensions.
func New(rows, cols int) *Adapter {
	return &Adapter{term: midterm.NewTerminal(rows, cols), rows: rows, cols: cols}
}

// SetForwarding wires the underlying emulator's query-response plumbing:
// requests midterm cannot itself answer are forwarded to reqW (the real
// user terminal), and midterm's own synthesized responses are forwarded
// to respW (the PTY master, i.e. back to the child).
func (a *Adapter) SetForwarding(reqW, respW io.Writer) {
	a.term.ForwardRequests = reqW
	a.term.ForwardResponses = respW
}

// Write feeds bytes into the VT parser.
func (a *Adapter) Write(b []byte) (int, error) {
	return a.term.Write(b)
}

// Resize updates the emulator's screen dimensions.
func (a *Adapter) Resize(rows, cols int) {
	a.rows, a.cols = rows, cols
	a.term.Resize(rows, cols)
}

// Snapshot is an opaque, immutable rendering of the screen at a point in
// time: one pre-rendered (with embedded SGR) string per row.
type Snapshot struct {
	rows  []string
	nrows int
}

// Snapshot captures the current screen state.
func (a *Adapter) Snapshot() Snapshot {
	rows := make([]string, a.rows)
	for r := 0; r < a.rows; r++ {
		rows[r] = a.renderRow(r)
	}
	return Snapshot{rows: rows, nrows: a.rows}
}

func (a *Adapter) renderRow(row int) string {
	var buf bytes.Buffer
	if row >= len(a.term.Content) {
		return ""
	}
	line := a.term.Content[row]
	var pos int
	var lastFormat midterm.Format
	first := true
	for region := range a.term.Format.Regions(row) {
		f := region.F
		if first || f != lastFormat {
			buf.WriteString("\x1b[0m")
			buf.WriteString(f.Render())
			lastFormat = f
			first = false
		}
		end := pos + region.Size
		if pos < len(line) {
			contentEnd := end
			if contentEnd > len(line) {
				contentEnd = len(line)
			}
			buf.WriteString(string(line[pos:contentEnd]))
		}
		padStart := len(line)
		if padStart < pos {
			padStart = pos
		}
		if padStart < end {
			buf.WriteString(strings.Repeat(" ", end-padStart))
		}
		pos = end
	}
	buf.WriteString("\x1b[0m")
	return buf.String()
}

// Full serializes snap in absolute form: a sequence that reproduces the
// full screen from an unknown prior state.
func Full(snap Snapshot) []byte {
	var buf bytes.Buffer
	buf.WriteString(escseq.CursorHide)
	for row, content := range snap.rows {
		fmt.Fprintf(&buf, "\x1b[%d;1H\x1b[2K", row+1)
		buf.WriteString(content)
	}
	return buf.Bytes()
}

// Diff serializes the minimal update that transforms prev into current.
func Diff(current, prev Snapshot) []byte {
	var buf bytes.Buffer
	buf.WriteString(escseq.CursorHide)
	n := current.nrows
	for row := 0; row < n; row++ {
		var prevRow string
		if row < len(prev.rows) {
			prevRow = prev.rows[row]
		}
		if row < len(current.rows) && current.rows[row] == prevRow {
			continue
		}
		fmt.Fprintf(&buf, "\x1b[%d;1H\x1b[2K", row+1)
		if row < len(current.rows) {
			buf.WriteString(current.rows[row])
		}
	}
	return buf.Bytes()
}

// CursorSequence returns the escape sequence that positions and shows
// the cursor at the emulator's current cursor location.
func (a *Adapter) CursorSequence() []byte {
	cur := a.term.Cursor
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "\x1b[%d;%dH", cur.Y+1, cur.X+1)
	buf.WriteString(escseq.CursorShow)
	return buf.Bytes()
}
