package debuglog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestStarted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	l := New(path)
	defer l.Close()

	l.Started("claude", 40, 120)

	lines := readLines(t, path)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}

	var e struct {
		Event   string `json:"event"`
		Command string `json:"command"`
		Rows    int    `json:"rows"`
		Cols    int    `json:"cols"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Event != "started" {
		t.Errorf("event = %q, want %q", e.Event, "started")
	}
	if e.Command != "claude" || e.Rows != 40 || e.Cols != 120 {
		t.Errorf("unexpected fields: %+v", e)
	}
}

func TestExitedAndError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	l := New(path)
	defer l.Close()

	l.Exited(7)
	l.Error("pty_spawn_failed", "no such file")

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}

	var exited struct {
		Event string `json:"event"`
		Code  int    `json:"code"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &exited); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if exited.Event != "exited" || exited.Code != 7 {
		t.Errorf("unexpected exited entry: %+v", exited)
	}

	var errEntry struct {
		Event   string `json:"event"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &errEntry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if errEntry.Kind != "pty_spawn_failed" || errEntry.Message != "no such file" {
		t.Errorf("unexpected error entry: %+v", errEntry)
	}
}

func TestLookbackEvents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	l := New(path)
	defer l.Close()

	l.LookbackEntered()
	l.LookbackExited()
	l.AutoLookback()

	lines := readLines(t, path)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	want := []string{"lookback_entered", "lookback_exited", "auto_lookback"}
	for i, w := range want {
		var e struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal([]byte(lines[i]), &e); err != nil {
			t.Fatalf("unmarshal line %d: %v", i, err)
		}
		if e.Event != w {
			t.Errorf("line %d event = %q, want %q", i, e.Event, w)
		}
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	l := New("")
	defer l.Close()

	l.Started("claude", 24, 80)
	l.Exited(0)
	l.Error("x", "y")
	l.LookbackEntered()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected no file to be created when disabled")
	}
}

func TestNopLoggerIsNoop(t *testing.T) {
	l := Nop()
	l.Started("claude", 24, 80)
	l.Exited(0)
	l.Error("x", "y")
	l.LookbackEntered()
	l.LookbackExited()
	l.AutoLookback()
	if err := l.Close(); err != nil {
		t.Errorf("Close on nop logger: %v", err)
	}
}

func TestOpenFailureFallsBackToNoop(t *testing.T) {
	// A path inside a nonexistent directory can never be opened.
	l := New(filepath.Join(t.TempDir(), "missing-dir", "proxy.log"))
	defer l.Close()
	l.Started("claude", 24, 80) // must not panic
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return nil
	}
	return strings.Split(raw, "\n")
}
