package proxy

import (
	"bytes"

	"claudechill/internal/escseq"
)

type markerKind int

const (
	markerSyncStart markerKind = iota
	markerSyncEnd
	markerAltEnter
	markerAltExit
	markerAltEnterLegacy
	markerAltExitLegacy
)

// markerTable holds the markers the orchestrator reacts to mid-stream.
// Whether a sync block amounts to a full redraw is decided separately,
// by scanning the accumulated sync buffer for clear-screen and
// cursor-home in either order (see finishSyncBlock); they need not be
// adjacent, so there is no single combined marker for that case.
var markerTable = []struct {
	bytes string
	kind  markerKind
}{
	{escseq.SyncStart, markerSyncStart},
	{escseq.SyncEnd, markerSyncEnd},
	{escseq.AltScreenEnter, markerAltEnter},
	{escseq.AltScreenExit, markerAltExit},
	{escseq.AltScreenEnterLegacy, markerAltEnterLegacy},
	{escseq.AltScreenExitLegacy, markerAltExitLegacy},
}

// maxMarkerLen bounds how many trailing bytes must be carried into the
// next chunk so a marker split across two reads is still recognized.
var maxMarkerLen = func() int {
	n := 0
	for _, m := range markerTable {
		if len(m.bytes) > n {
			n = len(m.bytes)
		}
	}
	return n
}()

// segment is either a run of plain bytes or one recognized marker.
type segment struct {
	isMarker bool
	kind     markerKind
	data     []byte
}

// scanMarkers splits data into plain runs and recognized markers. It
// returns the segments found plus any trailing bytes that are a proper
// prefix of some marker and so must be carried into the next call.
func scanMarkers(data []byte) ([]segment, []byte) {
	var segs []segment
	i := 0
	plainStart := 0

	flushPlain := func(end int) {
		if end > plainStart {
			segs = append(segs, segment{data: data[plainStart:end]})
		}
	}

	for i < len(data) {
		matched := false
		for _, m := range markerTable {
			mb := []byte(m.bytes)
			if bytes.HasPrefix(data[i:], mb) {
				flushPlain(i)
				segs = append(segs, segment{isMarker: true, kind: m.kind, data: mb})
				i += len(mb)
				plainStart = i
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		// Could the remaining bytes be the start of a marker that is cut
		// off by the end of this chunk? Only worth checking near the end.
		if len(data)-i < maxMarkerLen {
			remainder := data[i:]
			isPrefix := false
			for _, m := range markerTable {
				if len(remainder) < len(m.bytes) && bytes.HasPrefix([]byte(m.bytes), remainder) {
					isPrefix = true
					break
				}
			}
			if isPrefix {
				flushPlain(i)
				return segs, remainder
			}
		}
		i++
	}
	flushPlain(i)
	return segs, nil
}
