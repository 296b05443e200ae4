package keyparser

import (
	"bytes"
	"testing"
)

func TestParseCtrlDigit(t *testing.T) {
	got, display, err := Parse("ctrl+6")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got, []byte{0x1E}) {
		t.Errorf("got %v, want [0x1E]", got)
	}
	if display != "Ctrl+6" {
		t.Errorf("display = %q, want %q", display, "Ctrl+6")
	}
}

func TestParseCtrlLetter(t *testing.T) {
	got, _, err := Parse("ctrl+c")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got, []byte{0x03}) {
		t.Errorf("got %v, want [0x03]", got)
	}
}

func TestParseAltLetter(t *testing.T) {
	got, display, err := Parse("alt+l")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got, []byte{0x1B, 'l'}) {
		t.Errorf("got %v, want ESC l", got)
	}
	if display != "Alt+L" {
		t.Errorf("display = %q, want %q", display, "Alt+L")
	}
}

func TestParseNamedKey(t *testing.T) {
	got, _, err := Parse("f5")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []byte{0x1B, '[', '1', '5', '~'}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseCaseInsensitive(t *testing.T) {
	got, _, err := Parse("CTRL+C")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !bytes.Equal(got, []byte{0x03}) {
		t.Errorf("got %v, want [0x03]", got)
	}
}

func TestParseUnknownModifier(t *testing.T) {
	if _, _, err := Parse("super+l"); err == nil {
		t.Error("expected error for unknown modifier")
	}
}

func TestParseUnknownKey(t *testing.T) {
	if _, _, err := Parse("ctrl+nonexistent"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestParseEmpty(t *testing.T) {
	if _, _, err := Parse(""); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestParseCtrlRequiresSingleChar(t *testing.T) {
	if _, _, err := Parse("ctrl+f5"); err == nil {
		t.Error("expected error: ctrl modifier on a multi-byte named key")
	}
}

func TestDefault(t *testing.T) {
	if !bytes.Equal(Default, []byte{0x1E}) {
		t.Errorf("Default = %v, want [0x1E]", Default)
	}
	if DefaultText != "Ctrl-6" {
		t.Errorf("DefaultText = %q, want %q", DefaultText, "Ctrl-6")
	}
}
