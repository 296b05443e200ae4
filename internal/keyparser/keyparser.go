// Package keyparser parses the textual "[modifier][key]" form of the
// lookback trigger key (e.g. "ctrl+6", "alt+l", "f5") into the concrete
// byte sequence keymatch.Matcher needs.
//
// Small lookup tables keyed by name, no general-purpose parser
// generator.
package keyparser

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid wraps every parse failure this package reports.
var ErrInvalid = errors.New("invalid key binding")

// Default is the trigger used when no textual key is configured or
// parsing fails: Ctrl-6, the ASCII record separator 0x1E.
var Default = []byte{0x1E}

// DefaultText is the human-readable form of Default, used in banners
// and help text.
const DefaultText = "Ctrl-6"

// namedKeys maps a bare key token to its byte sequence with no modifier
// applied.
var namedKeys = map[string][]byte{
	"space":     {' '},
	"tab":       {'\t'},
	"enter":     {'\r'},
	"return":    {'\r'},
	"esc":       {0x1B},
	"escape":    {0x1B},
	"backspace": {0x7F},
	"up":        {0x1B, '[', 'A'},
	"down":      {0x1B, '[', 'B'},
	"right":     {0x1B, '[', 'C'},
	"left":      {0x1B, '[', 'D'},
	"f1":        {0x1B, 'O', 'P'},
	"f2":        {0x1B, 'O', 'Q'},
	"f3":        {0x1B, 'O', 'R'},
	"f4":        {0x1B, 'O', 'S'},
	"f5":        {0x1B, '[', '1', '5', '~'},
	"f6":        {0x1B, '[', '1', '7', '~'},
	"f7":        {0x1B, '[', '1', '8', '~'},
	"f8":        {0x1B, '[', '1', '9', '~'},
	"f9":        {0x1B, '[', '2', '0', '~'},
	"f10":       {0x1B, '[', '2', '1', '~'},
	"f11":       {0x1B, '[', '2', '3', '~'},
	"f12":       {0x1B, '[', '2', '4', '~'},
}

// Parse parses a "[modifier][key]" textual key binding, e.g. "ctrl+6",
// "alt+l", "shift+tab", "f5", into its byte sequence and a canonical
// display form. Parse failure is non-fatal by contract: callers fall
// back to Default/DefaultText and report the error to stderr themselves.
func Parse(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", fmt.Errorf("%w: empty key", ErrInvalid)
	}

	parts := strings.Split(s, "+")
	key := strings.ToLower(parts[len(parts)-1])
	mods := parts[:len(parts)-1]

	var ctrl, alt, shift bool
	for _, m := range mods {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "ctrl", "control":
			ctrl = true
		case "alt", "meta", "option":
			alt = true
		case "shift":
			shift = true
		default:
			return nil, "", fmt.Errorf("%w: unknown modifier %q", ErrInvalid, m)
		}
	}

	var base []byte
	var display string
	switch {
	case len(key) == 1:
		r := key[0]
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			base = []byte{r}
			display = strings.ToUpper(key)
		} else {
			return nil, "", fmt.Errorf("%w: unrecognized key %q", ErrInvalid, key)
		}
	default:
		seq, ok := namedKeys[key]
		if !ok {
			return nil, "", fmt.Errorf("%w: unrecognized key %q", ErrInvalid, key)
		}
		base = seq
		display = capitalize(key)
	}

	if shift {
		if len(base) == 1 && base[0] >= 'a' && base[0] <= 'z' {
			base = []byte{base[0] - 'a' + 'A'}
		}
		display = "Shift+" + display
	}

	if ctrl {
		if len(base) != 1 {
			return nil, "", fmt.Errorf("%w: ctrl modifier requires a single-character key, got %q", ErrInvalid, key)
		}
		if b, ok := ctrlDigit[base[0]]; ok {
			base = []byte{b}
		} else {
			base = []byte{ctrlByte(base[0])}
		}
		display = "Ctrl+" + display
	}

	if alt {
		base = append([]byte{0x1B}, base...)
		display = "Alt+" + display
	}

	return base, display, nil
}

// capitalize upper-cases the first byte of a named-key token for display,
// e.g. "tab" -> "Tab", "f5" -> "F5".
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ctrlDigit maps Ctrl+<digit> to the control code xterm produces for it,
// following the US-keyboard shifted-punctuation convention (Ctrl+6 is
// really Ctrl+^, the default lookback trigger).
var ctrlDigit = map[byte]byte{
	'2': 0x00,
	'3': 0x1B,
	'4': 0x1C,
	'5': 0x1D,
	'6': 0x1E,
	'7': 0x1F,
	'8': 0x7F,
}

// ctrlByte computes the control-character form of an ASCII letter,
// e.g. 'c' -> 0x03.
func ctrlByte(b byte) byte {
	upper := b
	if upper >= 'a' && upper <= 'z' {
		upper -= 'a' - 'A'
	}
	return upper & 0x1F
}
