package vtadapter

import (
	"bytes"
	"fmt"
	"testing"
)

func TestWriteAndSnapshotDiffEmptyWhenUnchanged(t *testing.T) {
	a := New(5, 20)
	a.Write([]byte("hello"))
	snap1 := a.Snapshot()
	snap2 := a.Snapshot()

	diff := Diff(snap2, snap1)
	// Only the cursor-hide sequence should appear; no row content since
	// nothing changed between the two snapshots.
	if bytes.Contains(diff, []byte("hello")) {
		t.Fatalf("diff should not re-emit unchanged content: %q", diff)
	}
}

func TestFullRenderIncludesContent(t *testing.T) {
	a := New(5, 20)
	a.Write([]byte("hello"))
	snap := a.Snapshot()
	full := Full(snap)
	if !bytes.Contains(full, []byte("hello")) {
		t.Fatalf("full render missing content: %q", full)
	}
}

func TestDiffIncludesChangedRowOnly(t *testing.T) {
	a := New(5, 20)
	snap1 := a.Snapshot()
	a.Write([]byte("changed"))
	snap2 := a.Snapshot()

	diff := Diff(snap2, snap1)
	if !bytes.Contains(diff, []byte("changed")) {
		t.Fatalf("diff missing changed content: %q", diff)
	}
	// Rows 2-5 are unchanged, so the diff must not rewrite them.
	for row := 2; row <= 5; row++ {
		if bytes.Contains(diff, []byte(fmt.Sprintf("\x1b[%d;1H", row))) {
			t.Fatalf("diff rewrote unchanged row %d: %q", row, diff)
		}
	}
}

func TestResizeUpdatesRowCount(t *testing.T) {
	a := New(5, 20)
	a.Resize(10, 40)
	snap := a.Snapshot()
	if len(snap.rows) != 10 {
		t.Fatalf("expected 10 rows after resize, got %d", len(snap.rows))
	}
}
