// Package historyfilter parses the child's escape-sequence stream and
// admits only visually-safe sequences into the line history, so that
// replaying history during lookback can never toggle terminal modes,
// query the terminal, or leak information.
//
// Unlike queryfilter (a narrow, query-sequence-only stripper), this
// filter classifies every recognized construct as whitelist or
// blacklist and defaults anything unrecognized to blacklist. It mirrors
// the reference implementation's history_filter: same policy table,
// same per-construct exhaustive classification, ported to a direct
// byte-sequence classifier rather than a general-purpose parser library,
// since history admission is the one place where replay safety is
// outward-facing and the exact action surface recognized must be
// auditable in one file.
package historyfilter

import "bytes"

// Filter classifies and strips escape sequences from output destined for
// the history buffer. It is stateful only across Filter calls in the
// sense that an incomplete trailing sequence is buffered until flushed
// or completed by a later call, matching queryfilter's chunk-agnostic
// contract.
type Filter struct {
	pending []byte

	// utf8Remaining counts continuation bytes still expected from a
	// multi-byte UTF-8 character, so 0x80-0x9F inside one is text rather
	// than a raw 8-bit C1 control.
	utf8Remaining int
}

// New creates an empty Filter.
func New() *Filter {
	return &Filter{}
}

// FilterBytes returns the subset of input that is admissible into
// history: plain text and whitelisted escape sequences, verbatim;
// blacklisted sequences and unrecognized constructs are dropped.
func (f *Filter) FilterBytes(input []byte) []byte {
	buf := append(f.pending, input...)
	f.pending = nil

	var out []byte
	i := 0
	for i < len(buf) {
		b := buf[i]
		if b != 0x1B {
			if f.admitPlain(b) {
				out = append(out, b)
			}
			i++
			continue
		}
		f.utf8Remaining = 0
		action, n, complete := scanEscape(buf[i:])
		if !complete {
			f.pending = append(f.pending, buf[i:]...)
			break
		}
		if isWhitelisted(action) {
			out = append(out, buf[i:i+n]...)
		}
		i += n
	}
	return out
}

// Flush discards any buffered incomplete trailing sequence without
// classifying it (a sequence cut off mid-stream is never safe to admit),
// resets internal state, and always returns nil.
func (f *Filter) Flush() []byte {
	f.pending = nil
	f.utf8Remaining = 0
	return nil
}

// c0Whitelist marks the C0 control bytes the policy table admits: NUL,
// BEL, BS, HT, LF, VT, FF, CR, SO, SI. ENQ and every other C0 control
// are blacklisted.
var c0Whitelist = [0x20]bool{
	0x00: true, 0x07: true, 0x08: true, 0x09: true, 0x0A: true,
	0x0B: true, 0x0C: true, 0x0D: true, 0x0E: true, 0x0F: true,
}

// admitPlain classifies one non-ESC byte outside any escape sequence:
// printable text and whitelisted C0 controls pass, blacklisted C0 and
// raw 8-bit C1 controls are dropped. Bytes of a multi-byte UTF-8
// character always pass.
func (f *Filter) admitPlain(b byte) bool {
	if f.utf8Remaining > 0 && b >= 0x80 && b <= 0xBF {
		f.utf8Remaining--
		return true
	}
	f.utf8Remaining = 0
	switch {
	case b < 0x20:
		return c0Whitelist[b]
	case b < 0x80:
		return true
	case b <= 0x9F:
		return false // raw 8-bit C1 control
	case b <= 0xBF:
		return true // stray continuation byte, not a control
	default:
		switch {
		case b >= 0xF0:
			f.utf8Remaining = 3
		case b >= 0xE0:
			f.utf8Remaining = 2
		default:
			f.utf8Remaining = 1
		}
		return true
	}
}

// action tags the recognized escape-sequence category so isWhitelisted
// can apply the policy table from a single, auditable switch.
type action struct {
	kind  actionKind
	final byte   // CSI/ESC final byte, or OSC Ps, or control code
	ps    []byte // raw parameter bytes between the introducer and final byte
	osc   []byte // OSC payload after "Ps;" (or after "Ps" with no payload)
}

type actionKind int

const (
	kindControl actionKind = iota
	kindEsc
	kindCSI
	kindOSC
	kindDCS
)

// scanEscape recognizes one escape construct starting at buf[0], which
// is always ESC; control codes outside escape sequences are judged by
// admitPlain instead. Returns the action, its length in bytes, and
// whether it was fully present (false means more bytes are needed).
func scanEscape(buf []byte) (action, int, bool) {
	if len(buf) < 2 {
		return action{}, 0, false
	}
	switch buf[1] {
	case '[':
		return scanCSI(buf)
	case ']':
		return scanOSC(buf)
	case 'P':
		return scanDCS(buf)
	default:
		// Plain ESC <final> sequence: charset designation, save/restore
		// cursor, IND/RI/NEL, etc. All are single-intermediate-or-none.
		final := buf[1]
		if final == '(' || final == ')' || final == '#' || final == '%' {
			if len(buf) < 3 {
				return action{}, 0, false
			}
			return action{kind: kindEsc, final: buf[2], ps: buf[1:2]}, 3, true
		}
		return action{kind: kindEsc, final: final}, 2, true
	}
}

func scanCSI(buf []byte) (action, int, bool) {
	for i := 2; i < len(buf); i++ {
		if buf[i] >= 0x40 && buf[i] <= 0x7E {
			return action{kind: kindCSI, final: buf[i], ps: buf[2:i]}, i + 1, true
		}
	}
	return action{}, 0, false
}

func scanOSC(buf []byte) (action, int, bool) {
	for i := 2; i < len(buf); i++ {
		if buf[i] == 0x07 {
			return action{kind: kindOSC, osc: buf[2:i]}, i + 1, true
		}
		if buf[i] == 0x1B {
			if i+1 >= len(buf) {
				return action{}, 0, false
			}
			if buf[i+1] == '\\' {
				return action{kind: kindOSC, osc: buf[2:i]}, i + 2, true
			}
		}
	}
	return action{}, 0, false
}

func scanDCS(buf []byte) (action, int, bool) {
	for i := 2; i < len(buf)-1; i++ {
		if buf[i] == 0x1B && buf[i+1] == '\\' {
			return action{kind: kindDCS, ps: buf[2:i]}, i + 2, true
		}
	}
	return action{}, 0, false
}

// isWhitelisted applies the policy table from the component design:
// text passes through a separate path (plain bytes, never scanEscape'd);
// this only judges the escape/control constructs scanEscape recognizes.
func isWhitelisted(a action) bool {
	switch a.kind {
	case kindCSI:
		return isWhitelistedCSI(a)
	case kindEsc:
		return isWhitelistedEsc(a)
	case kindOSC:
		return isWhitelistedOSC(a)
	case kindDCS:
		return false // DCS/termcap: all blacklisted
	default:
		return false
	}
}

func isWhitelistedCSI(a action) bool {
	ps := a.ps
	switch {
	case len(ps) > 0 && ps[0] == '?':
		// DEC private mode set/reset and most '?'-prefixed device
		// queries/reports are blacklisted; window state/title-stack ops
		// using '?' are not part of this family, so default-deny here.
		return false
	case len(ps) > 0 && ps[0] == '>':
		return false // keyboard protocol (CSI > ...)
	case a.final == 'm':
		return true // SGR
	case a.final == 'H' || a.final == 'f' || a.final == 'A' || a.final == 'B' ||
		a.final == 'C' || a.final == 'D' || a.final == 'E' || a.final == 'F' ||
		a.final == 'G' || a.final == 'd':
		return true // cursor movement
	case a.final == 's' || a.final == 'u':
		return true // save/restore cursor position (ANSI.SYS form)
	case a.final == 'J' || a.final == 'K' || a.final == 'L' || a.final == 'M' ||
		a.final == 'P' || a.final == '@' || a.final == 'X':
		return true // edit ops: erase/insert/delete line & char
	case a.final == 'b':
		return true // REP (repeat preceding character)
	case a.final == 'h' || a.final == 'l':
		return false // ANSI mode set/reset
	case a.final == 'n':
		return false // device status / cursor position report request
	case a.final == 'c':
		return false // device attributes query
	case a.final == 't':
		return isWhitelistedWindowOp(ps)
	default:
		return false
	}
}

// isWhitelistedWindowOp covers CSI Ps t window ops: title-stack push/pop
// and a handful of state-changing (not reporting) operations are safe;
// every reporting query (the same set queryfilter strips) is blacklisted.
func isWhitelistedWindowOp(ps []byte) bool {
	first := firstParam(ps)
	switch first {
	case 22, 23: // push/pop window title onto stack
		return true
	case 1, 2, 3, 4, 5, 6, 7, 8, 9, 10: // de-iconify/iconify/move/resize (state-changing)
		return true
	case 11, 13, 14, 15, 16, 18, 19, 20, 21: // reporting queries
		return false
	default:
		return false
	}
}

func firstParam(ps []byte) int {
	semi := bytes.IndexByte(ps, ';')
	if semi >= 0 {
		ps = ps[:semi]
	}
	n := 0
	for _, c := range ps {
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func isWhitelistedEsc(a action) bool {
	if len(a.ps) > 0 {
		switch a.ps[0] {
		case '(', ')': // charset designation G0/G1
			return true
		case '#': // DEC double-width/height line attributes
			return false
		case '%':
			return false
		}
	}
	switch a.final {
	case '7', '8': // DECSC / DECRC save/restore cursor
		return true
	case 'D', 'M', 'E': // IND, RI, NEL
		return true
	case 'H': // HTS (tab stop set)
		return true
	case '=', '>': // keypad application/numeric mode
		return true
	case '\\': // ST on its own (terminator for a just-closed sequence)
		return true
	case 'c': // RIS full reset
		return true
	case 'k': // tmux-style title (ESC k ... ESC \\, approximated as single final)
		return true
	case 'F': // cursor to lower-left corner
		return true
	case 'N', 'O': // single shift SS2/SS3
		return false
	case 'V', 'W': // start/end of guarded area
		return false
	default:
		return false
	}
}

var oscWhitelistPrefixes = [][]byte{
	[]byte("0;"), []byte("1;"), []byte("2;"), // icon/window/both title
	[]byte("8;"),                 // hyperlink
	[]byte("133;"),                // semantic prompt marks
	[]byte("1337;File="),          // iTerm inline file/image
	[]byte("1337;SetMark"),        // iTerm mark
	[]byte("1337;SetUserVar="),    // iTerm user var
	[]byte("1337;SetBadgeFormat="),
	[]byte("1337;SetProfile="),
	[]byte("1337;CopyToClipboard="),
	[]byte("1337;Copy="),
	[]byte("9;"), // notification
}

func isWhitelistedOSC(a action) bool {
	osc := a.osc
	for _, prefix := range oscWhitelistPrefixes {
		if bytes.HasPrefix(osc, prefix) {
			return true
		}
	}
	// Palette set (OSC 4;idx;spec) and reset-colors (OSC 104) are safe;
	// a bare color *query* (spec == "?") is not. Dynamic colors (OSC
	// 10-19) follow the same rule: whitelisted only if every entry in
	// the sequence sets a color rather than querying one.
	if bytes.HasPrefix(osc, []byte("4;")) || bytes.HasPrefix(osc, []byte("104")) {
		return !bytes.Contains(osc, []byte(";?"))
	}
	if isDynamicColorOSC(osc) {
		return !bytes.Contains(osc, []byte(";?")) && !bytes.HasSuffix(osc, []byte("?"))
	}
	if bytes.HasPrefix(osc, []byte("52;")) {
		return !isClipboardQuery(osc[3:]) // set-selection is safe; clear/query is not
	}
	return false
}

// isClipboardQuery reports whether an OSC 52 payload (the part after
// "52;") is a query or clear rather than a selection write: a lone "?"
// (or empty) data field asks the terminal to report the clipboard back,
// which is exactly the information leak this filter exists to block.
func isClipboardQuery(rest []byte) bool {
	semi := bytes.IndexByte(rest, ';')
	data := rest
	if semi >= 0 {
		data = rest[semi+1:]
	}
	return len(data) == 0 || bytes.Equal(data, []byte("?"))
}

func isDynamicColorOSC(osc []byte) bool {
	for _, p := range [][]byte{[]byte("10;"), []byte("11;"), []byte("12;"), []byte("13;"), []byte("14;"),
		[]byte("15;"), []byte("16;"), []byte("17;"), []byte("18;"), []byte("19;")} {
		if bytes.HasPrefix(osc, p) {
			return true
		}
	}
	return false
}
