package proxy

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"claudechill/internal/debuglog"
	"claudechill/internal/escseq"
	"claudechill/internal/historyfilter"
	"claudechill/internal/keymatch"
	"claudechill/internal/linehistory"
	"claudechill/internal/platform"
	"claudechill/internal/queryfilter"
	"claudechill/internal/throttle"
	"claudechill/internal/vtadapter"
)

// silenceStdout redirects os.Stdout to a pipe for the duration of a test,
// so paths that call platform.WriteStdout (render, the alt-screen and
// lookback banners) don't spray escape sequences into the test runner's
// own terminal. The returned func restores os.Stdout and waits for the
// drain goroutine to finish.
func silenceStdout(t *testing.T) func() {
	t.Helper()
	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w
	done := make(chan struct{})
	go func() {
		io.Copy(io.Discard, r)
		close(done)
	}()
	return func() {
		w.Close()
		os.Stdout = orig
		<-done
	}
}

// newTestProxy builds a Proxy with every collaborator wired exactly like
// Run does, but against a real "cat" child under a real PTY rather than
// the command the caller actually wants to wrap. This lets the orchestrator
// methods that touch p.pty (SetSize during lookback exit, OSC replies) run
// unmodified, without spawning the process under test.
func newTestProxy(t *testing.T, maxHistory int) *Proxy {
	t.Helper()
	size := platform.Size{Rows: 24, Cols: 80}

	pty, err := platform.Spawn("cat", nil, size)
	if err != nil {
		t.Skipf("spawn test pty: %v", err)
	}
	t.Cleanup(func() {
		pty.Close()
		go pty.Wait()
	})

	p := &Proxy{
		cfg:       Config{LookbackKeyText: "Ctrl-6"},
		log:       debuglog.Nop(),
		pty:       pty,
		vt:        vtadapter.New(size.Rows, size.Cols),
		history:   linehistory.New(maxHistory),
		queryF:    queryfilter.New(),
		historyF:  historyfilter.New(),
		throttler: throttle.New(),
		keyMatch:  keymatch.New([]byte{0x1E}),
		size:      size,
	}
	return p
}

func historyString(p *Proxy) string {
	var buf bytes.Buffer
	p.history.AppendAll(&buf)
	return buf.String()
}

func TestIngestPlainLinesIntoHistory(t *testing.T) {
	p := newTestProxy(t, 1000)
	p.ingest([]byte("Hello\r\nWorld\r\n"))

	got := historyString(p)
	if !strings.Contains(got, "Hello\r\n") || !strings.Contains(got, "World\r\n") {
		t.Fatalf("history = %q, want both lines present", got)
	}
	if p.history.LineCount() < 2 {
		t.Fatalf("LineCount() = %d, want >= 2", p.history.LineCount())
	}
}

func TestSyncBlockClearAndHomeTriggersFullRedraw(t *testing.T) {
	p := newTestProxy(t, 1000)
	p.history.PushBytes([]byte("old content\r\n"))

	block := []byte(escseq.SyncStart + escseq.ClearScreen + escseq.CursorHome + "fresh\r\n" + escseq.SyncEnd)
	p.ingest(block)

	got := historyString(p)
	if strings.Contains(got, "old content") {
		t.Fatalf("expected prior history cleared, got %q", got)
	}
	if !strings.Contains(got, "fresh\r\n") {
		t.Fatalf("expected new content appended, got %q", got)
	}
}

func TestSyncBlockClearWithoutHomeIsNotFullRedraw(t *testing.T) {
	p := newTestProxy(t, 1000)
	p.history.PushBytes([]byte("old content\r\n"))

	block := []byte(escseq.SyncStart + escseq.ClearScreen + "fresh\r\n" + escseq.SyncEnd)
	p.ingest(block)

	got := historyString(p)
	if !strings.Contains(got, "old content") {
		t.Fatalf("expected prior history retained without cursor-home, got %q", got)
	}
}

func TestAltScreenEnterDiscardsInProgressSyncBlock(t *testing.T) {
	restore := silenceStdout(t)
	defer restore()

	p := newTestProxy(t, 1000)
	data := []byte(escseq.SyncStart + "buffered" + escseq.AltScreenEnter + "alt-content" + escseq.SyncEnd + escseq.AltScreenExit)
	p.ingest(data)

	if p.phase != phaseNormal {
		t.Fatalf("phase = %v, want phaseNormal after alt-screen exit", p.phase)
	}
	if p.inSyncBlock {
		t.Fatalf("expected in-progress sync block discarded by alt-screen enter")
	}
	if !p.needFullRedraw {
		t.Fatalf("expected full redraw requested after alt-screen exit")
	}
}

func TestLookbackEnterExitPreservesVTState(t *testing.T) {
	restore := silenceStdout(t)
	defer restore()

	p := newTestProxy(t, 1000)
	p.ingest([]byte("Hello\r\n"))
	before := vtadapter.Full(p.vt.Snapshot())

	p.enterLookback()
	if p.phase != phaseLookback {
		t.Fatalf("phase = %v, want phaseLookback", p.phase)
	}

	p.exitLookback()
	if p.phase != phaseNormal {
		t.Fatalf("phase = %v, want phaseNormal after exit", p.phase)
	}

	after := vtadapter.Full(p.vt.Snapshot())
	if !bytes.Equal(before, after) {
		t.Fatalf("VT state changed across a lookback round-trip with no intervening output")
	}
}

func TestIngestDuringLookbackIsCached(t *testing.T) {
	restore := silenceStdout(t)
	defer restore()

	p := newTestProxy(t, 1000)
	p.enterLookback()
	p.ingest([]byte("while hidden\r\n"))

	if strings.Contains(historyString(p), "while hidden") {
		t.Fatalf("expected output during lookback to bypass history until exit")
	}
	if !bytes.Contains(p.lookbackCache, []byte("while hidden")) {
		t.Fatalf("expected output during lookback to be cached, cache = %q", p.lookbackCache)
	}

	p.exitLookback()
	if !strings.Contains(historyString(p), "while hidden") {
		t.Fatalf("expected cached output replayed into history on exit")
	}
}

func TestProcessStdinTriggersAndExitsLookback(t *testing.T) {
	restore := silenceStdout(t)
	defer restore()

	p := newTestProxy(t, 1000)
	p.processStdin([]byte{0x1E})
	if p.phase != phaseLookback {
		t.Fatalf("phase = %v, want phaseLookback after trigger key", p.phase)
	}

	p.processStdin([]byte{0x03})
	if p.phase != phaseNormal {
		t.Fatalf("phase = %v, want phaseNormal after Ctrl-C", p.phase)
	}
}

func TestMaybeAutoLookbackFiresOnceThenClearsDeadline(t *testing.T) {
	restore := silenceStdout(t)
	defer restore()

	p := newTestProxy(t, 1000)
	p.cfg.AutoLookbackTimeoutMs = 10
	p.lastRenderTime = time.Now().Add(-time.Hour)

	p.maybeAutoLookback(time.Now())
	if !p.lastRenderTime.IsZero() {
		t.Fatalf("expected lastRenderTime cleared after auto-lookback fires")
	}

	p.maybeAutoLookback(time.Now())
	if !p.lastRenderTime.IsZero() {
		t.Fatalf("expected auto-lookback to stay quiet until the next real render")
	}
}

func TestIngestHandlesMarkerSplitAcrossChunks(t *testing.T) {
	p := newTestProxy(t, 1000)
	full := []byte(escseq.SyncStart + escseq.ClearScreen + escseq.CursorHome + "ok\r\n" + escseq.SyncEnd)
	split := len(full) - 3 // lands inside the sync-end marker

	p.ingest(full[:split])
	p.ingest(full[split:])

	if !strings.Contains(historyString(p), "ok\r\n") {
		t.Fatalf("expected content appended once the split sync-end marker rejoined")
	}
}
