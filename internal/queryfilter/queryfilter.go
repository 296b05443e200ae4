// Package queryfilter strips terminal-query escape sequences from a byte
// stream so that replaying captured bytes back to the user's terminal
// never induces a ghost response into the child's stdin.
//
// The state machine below is a direct port of the reference
// implementation's escape_filter: same states, same recognized drop
// patterns, same chunk-boundary-preserving buffering.
package queryfilter

import "bytes"

type state int

const (
	stateNormal state = iota
	stateEscape
	stateCSI
	stateCSIParam
	stateCSIParamDollar
	stateCSIGt
	stateCSIGtParam
	stateCSIEq
	stateCSIQuestion
	stateCSIQuestionParam
	stateCSIQuestionParamDollar
	stateOSC
	stateOSCParam
	stateOSCSemicolon
	stateOSCQuery
	stateOSCQuerySt
	stateDCS
	stateDCSCollect
	stateDCSEscape
)

// Filter is a stateful byte-level query-sequence stripper. It must be fed
// chunks of the child's output in order; a sequence that straddles two
// Filter calls is buffered across the boundary.
type Filter struct {
	state   state
	pending []byte
}

// New creates a Filter in its initial (Normal) state.
func New() *Filter {
	return &Filter{}
}

// FilterBytes classifies input and returns the bytes that are safe to
// forward: anything not part of a recognized query sequence, verbatim;
// recognized query sequences are dropped entirely.
func (f *Filter) FilterBytes(input []byte) []byte {
	out := make([]byte, 0, len(input))
	for _, b := range input {
		out = f.step(out, b)
	}
	return out
}

// Flush returns any bytes still buffered as an incomplete candidate
// sequence and resets the filter to Normal. Called at stream end (e.g.
// child exit) so partially-buffered non-query bytes are not lost.
func (f *Filter) Flush() []byte {
	p := f.pending
	f.pending = nil
	f.state = stateNormal
	return p
}

func (f *Filter) step(out []byte, b byte) []byte {
	switch f.state {
	case stateNormal:
		if b == 0x1B {
			f.pending = append(f.pending[:0], b)
			f.state = stateEscape
			return out
		}
		return append(out, b)

	case stateEscape:
		f.pending = append(f.pending, b)
		switch b {
		case '[':
			f.state = stateCSI
		case ']':
			f.state = stateOSC
		case 'P':
			f.state = stateDCS
		default:
			return f.flushPending(out)
		}
		return out

	case stateCSI:
		f.pending = append(f.pending, b)
		switch {
		case b == '>':
			f.state = stateCSIGt
		case b == '=':
			f.state = stateCSIEq
		case b == '?':
			f.state = stateCSIQuestion
		case b >= '0' && b <= '9' || b == ';':
			f.state = stateCSIParam
		case isCSIFinal(b):
			return f.classifyCSI(out, nil, false, b)
		default:
			return f.flushPending(out)
		}
		return out

	case stateCSIParam:
		f.pending = append(f.pending, b)
		switch {
		case b >= '0' && b <= '9' || b == ';':
			return out
		case b == '$':
			f.state = stateCSIParamDollar
			return out
		case isCSIFinal(b):
			return f.classifyCSI(out, paramsOf(f.pending, 2), false, b)
		default:
			return f.flushPending(out)
		}

	case stateCSIParamDollar:
		f.pending = append(f.pending, b)
		if b == 'p' {
			return f.classifyCSI(out, paramsOf(f.pending, 2), true, b)
		}
		return f.flushPending(out)

	case stateCSIGt:
		f.pending = append(f.pending, b)
		switch {
		case b >= '0' && b <= '9':
			f.state = stateCSIGtParam
			return out
		case b == 'c' || b == 'q':
			return f.classifyCSIGt(out, b)
		default:
			return f.flushPending(out)
		}

	case stateCSIGtParam:
		f.pending = append(f.pending, b)
		switch {
		case b >= '0' && b <= '9':
			return out
		case b == 'c':
			return f.classifyCSIGt(out, b)
		default:
			return f.flushPending(out)
		}

	case stateCSIEq:
		f.pending = append(f.pending, b)
		if b == 'c' {
			return f.dropPending(out)
		}
		return f.flushPending(out)

	case stateCSIQuestion:
		f.pending = append(f.pending, b)
		switch {
		case b >= '0' && b <= '9':
			f.state = stateCSIQuestionParam
			return out
		case b == 'u':
			return f.dropPending(out) // bare CSI ? u, kitty query
		default:
			return f.flushPending(out)
		}

	case stateCSIQuestionParam:
		f.pending = append(f.pending, b)
		switch {
		case b >= '0' && b <= '9':
			return out
		case b == '$':
			f.state = stateCSIQuestionParamDollar
			return out
		case b == 'n':
			return f.classifyCSIQuestionN(out)
		case b == 'u':
			return f.dropPending(out)
		default:
			return f.flushPending(out)
		}

	case stateCSIQuestionParamDollar:
		f.pending = append(f.pending, b)
		if b == 'p' {
			return f.dropPending(out) // DECRQM
		}
		return f.flushPending(out)

	case stateOSC:
		f.pending = append(f.pending, b)
		switch {
		case b >= '0' && b <= '9':
			f.state = stateOSCParam
		case b == 0x07:
			return f.flushPending(out)
		default:
			return f.flushPending(out)
		}
		return out

	case stateOSCParam:
		f.pending = append(f.pending, b)
		switch {
		case b >= '0' && b <= '9':
			return out
		case b == ';':
			f.state = stateOSCSemicolon
			return out
		case b == 0x07 || b == 0x1B:
			return f.flushPending(out)
		default:
			return f.flushPending(out)
		}

	case stateOSCSemicolon:
		f.pending = append(f.pending, b)
		switch b {
		case '?':
			f.state = stateOSCQuery
			return out
		case 0x07:
			return f.flushPending(out)
		case 0x1B:
			return f.flushPending(out)
		default:
			f.state = stateOSCParam // any other payload: not a bare query; OSCParam flushes at the next byte that is not a digit or ';'
			return out
		}

	case stateOSCQuery:
		f.pending = append(f.pending, b)
		switch b {
		case 0x07:
			return f.dropPending(out)
		case 0x1B:
			f.state = stateOSCQuerySt
			return out
		default:
			// Not a bare query; content that happens to start with '?'.
			return f.flushPending(out)
		}

	case stateOSCQuerySt:
		f.pending = append(f.pending, b)
		if b == '\\' {
			return f.dropPending(out)
		}
		return f.flushPending(out)

	case stateDCS:
		f.pending = append(f.pending, b)
		switch b {
		case '$', '+':
			f.state = stateDCSCollect
			return out
		default:
			return f.flushPending(out)
		}

	case stateDCSCollect:
		f.pending = append(f.pending, b)
		switch b {
		case 'q':
			return out // wait for ST to confirm/drop
		case 0x1B:
			f.state = stateDCSEscape
			return out
		default:
			return out // collect params until q / ST
		}

	case stateDCSEscape:
		f.pending = append(f.pending, b)
		if b == '\\' {
			return f.dropPending(out)
		}
		return f.flushPending(out)
	}

	return append(out, b)
}

func isCSIFinal(b byte) bool {
	return b >= 0x40 && b <= 0x7E
}

// classifyCSI handles CSI sequences with no intermediate `>`/`?`/`=` marker:
// Device Attributes primary (`CSI c`), DSR (`CSI 5 n` / `CSI 6 n`),
// XTWINOPS reporting queries (`CSI Ps t`), and DECRQM (`CSI Ps $ p`).
func (f *Filter) classifyCSI(out []byte, params []int, dollar bool, final byte) []byte {
	if dollar {
		if final == 'p' {
			return f.dropPending(out) // DECRQM
		}
		return f.flushPending(out)
	}
	switch final {
	case 'c':
		return f.dropPending(out) // primary DA
	case 'n':
		if len(params) == 1 && (params[0] == 5 || params[0] == 6) {
			return f.dropPending(out)
		}
		return f.flushPending(out)
	case 't':
		if len(params) >= 1 && isWindowQueryParam(params[0]) {
			return f.dropPending(out)
		}
		return f.flushPending(out)
	default:
		return f.flushPending(out)
	}
}

func (f *Filter) classifyCSIGt(out []byte, final byte) []byte {
	switch final {
	case 'c': // secondary DA: CSI > c, CSI > N c (tertiary CSI = c is handled in stateCSIEq)
		return f.dropPending(out)
	case 'q': // XTVERSION
		return f.dropPending(out)
	default:
		return f.flushPending(out)
	}
}

func (f *Filter) classifyCSIQuestionN(out []byte) []byte {
	// CSI ? N n — extended cursor position / status reports.
	return f.dropPending(out)
}

func isWindowQueryParam(p int) bool {
	switch p {
	case 11, 13, 14, 15, 16, 18, 19, 20, 21:
		return true
	default:
		return false
	}
}

func paramsOf(pending []byte, skip int) []int {
	if len(pending) <= skip+1 {
		return nil
	}
	body := pending[skip : len(pending)-1]
	var params []int
	for _, part := range bytes.Split(body, []byte{';'}) {
		if len(part) == 0 {
			params = append(params, 0)
			continue
		}
		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				n = -1
				break
			}
			n = n*10 + int(c-'0')
		}
		params = append(params, n)
	}
	return params
}

func (f *Filter) dropPending(out []byte) []byte {
	f.pending = nil
	f.state = stateNormal
	return out
}

func (f *Filter) flushPending(out []byte) []byte {
	out = append(out, f.pending...)
	f.pending = nil
	f.state = stateNormal
	return out
}
