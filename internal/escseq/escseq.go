// Package escseq holds the single-source table of well-known control
// sequences shared by the proxy orchestrator, the line history and the
// VT adapter.
package escseq

// Wire-level constants. All are ASCII and must stay bit-exact: terminals
// match on these verbatim, not on any parsed representation.
const (
	Esc = 0x1B

	SyncStart = "\x1bP=1s\x1b\\"
	SyncEnd   = "\x1bP=2s\x1b\\"

	ClearScreen = "\x1b[2J"
	CursorHome  = "\x1b[H"

	AltScreenEnter = "\x1b[?1049h"
	AltScreenExit  = "\x1b[?1049l"

	AltScreenEnterLegacy = "\x1b[?47h"
	AltScreenExitLegacy  = "\x1b[?47l"
)

// CursorHide/CursorShow are used by the orchestrator while rendering; they
// are not part of the wire-constants table in the external-interfaces
// contract but are needed to keep the cursor from flickering mid-redraw.
const (
	CursorHide = "\x1b[?25l"
	CursorShow = "\x1b[?25h"
)

// ReverseVideoOn/Off bracket the lookback-mode banner.
const (
	ReverseVideoOn  = "\x1b[7m"
	ReverseVideoOff = "\x1b[27m"
)
