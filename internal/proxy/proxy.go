// Package proxy is the orchestrator that wires together the platform PTY
// backend, VT adapter, line history, both escape-sequence filters, the
// render throttler, and the key matcher into one cooperative,
// single-threaded event loop.
//
// Every piece of mutable state here (the VT screen, the line history,
// the throttler's clock) is touched from exactly one place, so a single
// poll-driven loop removes the need for any lock. The only concurrency
// left is what os/signal itself owns internally, and that never reaches
// into this package's state directly: see platform.DrainSignals.
package proxy

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/muesli/termenv"

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

// Config carries the settings needed to start one proxy session.
type Config struct {
	Command               string
	Args                  []string
	HistoryLines          int
	LookbackKey           []byte
	LookbackKeyText       string // human-readable form of LookbackKey, for the banner
	AutoLookbackTimeoutMs int
	Log                   *debuglog.Logger
}

// phase tracks which of the mutually-exclusive rendering modes the
// orchestrator is in. AlternateScreen takes precedence over an
// in-progress sync block: entering the alt screen mid-sync-block ends
// the sync block immediately (see handleSegment).
type phase int

const (
	phaseNormal phase = iota
	phaseAlternateScreen
	phaseLookback
)

// Proxy holds every piece of session state the event loop touches. None
// of it is exported; the loop is its sole owner.
type Proxy struct {
	cfg Config
	log *debuglog.Logger

	pty       *platform.Pty
	vt        *vtadapter.Adapter
	history   *linehistory.History
	queryF    *queryfilter.Filter
	historyF  *historyfilter.Filter
	throttler *throttle.Throttler
	keyMatch  *keymatch.Matcher
	rawGuard  *platform.RawModeGuard

	phase          phase
	prevPhase      phase // phase to resume to when lookback exits
	inSyncBlock    bool
	syncBuffer     []byte
	needFullRedraw bool
	prevSnapshot   vtadapter.Snapshot
	haveSnapshot   bool

	size platform.Size

	lastRenderTime time.Time
	lookbackCache  []byte

	keyPending  []byte // raw stdin bytes withheld while keyMatch is Partial
	markerCarry []byte // trailing bytes of the last chunk that might be a split marker

	oscFg, oscBg string // cached real-terminal OSC 10/11 responses

	childExited bool
}

// Run spawns the child under a PTY and drives the event loop until the
// child exits, returning its exit code.
func Run(cfg Config) (int, error) {
	if len(cfg.LookbackKey) == 0 {
		cfg.LookbackKey = []byte{0x1E}
	}
	if cfg.LookbackKeyText == "" {
		cfg.LookbackKeyText = "Ctrl-6"
	}
	if cfg.HistoryLines <= 0 {
		cfg.HistoryLines = 100000
	}
	if cfg.Log == nil {
		cfg.Log = debuglog.Nop()
	}

	size := platform.GetTerminalSize()

	p := &Proxy{
		cfg:       cfg,
		log:       cfg.Log,
		vt:        vtadapter.New(size.Rows, size.Cols),
		history:   linehistory.New(cfg.HistoryLines),
		queryF:    queryfilter.New(),
		historyF:  historyfilter.New(),
		throttler: throttle.New(),
		keyMatch:  keymatch.New(cfg.LookbackKey),
		size:      size,
	}

	// Detect the real terminal's colors before entering raw mode: midterm
	// swallows OSC 10/11 color queries from the child, so they must be
	// answered here from a cache taken while stdout is still cooked.
	output := termenv.NewOutput(os.Stdout)
	if fg := output.ForegroundColor(); fg != nil {
		p.oscFg = colorToX11(fg)
	}
	if bg := output.BackgroundColor(); bg != nil {
		p.oscBg = colorToX11(bg)
	}

	pty, err := platform.Spawn(cfg.Command, cfg.Args, size)
	if err != nil {
		p.log.Error("pty_spawn_failed", err.Error())
		return 1, err
	}
	p.pty = pty
	defer pty.Close()

	p.vt.SetForwarding(os.Stdout, pty.MasterFile())

	if platform.IsTTY() {
		guard, err := platform.EnterRawMode()
		if err != nil {
			return 1, fmt.Errorf("enter raw mode: %w", err)
		}
		p.rawGuard = guard
		defer guard.Restore()
	}

	platform.SetupSignalHandlers()
	p.log.Started(cfg.Command, size.Rows, size.Cols)

	if err := p.loop(); err != nil {
		p.log.Error("loop_failed", err.Error())
		return 1, err
	}

	code, err := pty.Wait()
	if err != nil {
		return 1, err
	}
	p.log.Exited(code)
	return code, nil
}

func (p *Proxy) loop() error {
	ptyBuf := make([]byte, 64*1024)
	stdinBuf := make([]byte, 4096)

	for !p.childExited {
		p.handleSignals()

		now := time.Now()
		timeout := p.throttler.PollTimeout(now)
		if d := p.autoLookbackRemaining(now); d < timeout {
			timeout = d
		}

		result, err := platform.PollIO(p.pty, int(os.Stdin.Fd()), int(timeout.Milliseconds()))
		if err != nil {
			return err
		}

		switch result {
		case platform.PollPtyHangup:
			p.drainPty(ptyBuf)
			return nil

		case platform.PollPtyReadable:
			if err := p.readPty(ptyBuf); err != nil {
				return err
			}

		case platform.PollStdinReadable:
			if err := p.readStdin(stdinBuf); err != nil {
				return err
			}

		case platform.PollBothReadable:
			if err := p.readPty(ptyBuf); err != nil {
				return err
			}
			if err := p.readStdin(stdinBuf); err != nil {
				return err
			}

		case platform.PollInterrupted, platform.PollTimeout:
			// nothing to drain; fall through to periodic checks
		}

		p.maybeAutoLookback(time.Now())

		if p.phase == phaseNormal && p.throttler.ShouldFlush(time.Now()) {
			p.render()
		}
	}
	return nil
}

func (p *Proxy) handleSignals() {
	for _, sig := range platform.DrainSignals() {
		switch sig {
		case platform.SignalResize:
			p.size = platform.GetTerminalSize()
			p.vt.Resize(p.size.Rows, p.size.Cols)
			_ = p.pty.SetSize(p.size)
			p.needFullRedraw = true
		case platform.SignalInterrupt:
			p.pty.Signal(platform.SignalInterrupt)
		case platform.SignalTerminate:
			p.pty.Signal(platform.SignalTerminate)
		}
	}
}

// readPty drains one chunk of child output and routes it through marker
// scanning, the VT adapter, and line history (in the alternate screen
// too; in lookback mode the chunk goes to the lookback cache instead).
func (p *Proxy) readPty(buf []byte) error {
	n, err := p.pty.Read(buf)
	if n > 0 {
		p.ingest(buf[:n])
	}
	if err != nil {
		if err == platform.ErrPtyHangup {
			p.childExited = true
			return nil
		}
		return err
	}
	return nil
}

func (p *Proxy) drainPty(buf []byte) {
	for {
		n, err := p.pty.Read(buf)
		if n > 0 {
			p.ingest(buf[:n])
		}
		if err != nil || n == 0 {
			break
		}
	}
	if p.phase == phaseNormal {
		p.render()
	}
}

func (p *Proxy) readStdin(buf []byte) error {
	n, err := platform.ReadStdin(buf)
	if err != nil {
		return err
	}
	if n > 0 {
		p.processStdin(buf[:n])
	}
	return nil
}

// processStdin classifies each stdin byte against the configured
// lookback key, withholding bytes from the child while a match is in
// progress and forwarding them once classification resolves to None.
// While in lookback mode, 0x03 (Ctrl-C) also exits, consumed here rather
// than forwarded.
func (p *Proxy) processStdin(data []byte) {
	for _, b := range data {
		if p.phase == phaseLookback && b == 0x03 {
			p.keyPending = nil
			p.keyMatch.Reset()
			p.toggleLookback()
			continue
		}

		res := p.keyMatch.Feed(b)
		p.keyPending = append(p.keyPending, b)
		switch res {
		case keymatch.Complete:
			// Withheld bytes older than the trigger sequence itself are
			// not part of the match and still belong to the child.
			if n := len(p.keyPending) - p.keyMatch.KeyLen(); n > 0 {
				p.forwardToChild(p.keyPending[:n])
			}
			p.keyPending = nil
			p.toggleLookback()
		case keymatch.Partial:
			// held back until classification finalizes
		case keymatch.None:
			p.forwardToChild(p.keyPending)
			p.keyPending = nil
		}
	}
}

func (p *Proxy) forwardToChild(data []byte) {
	if len(data) == 0 || p.phase == phaseLookback {
		return
	}
	_ = p.pty.Write(data)
}

func (p *Proxy) toggleLookback() {
	if p.phase == phaseLookback {
		p.exitLookback()
	} else {
		p.enterLookback()
	}
}

// enterLookback clears the user's screen, paints the full retained
// history (through the query filter, since this is a replay of
// previously-captured bytes), and appends a reverse-video banner.
func (p *Proxy) enterLookback() {
	p.log.LookbackEntered()
	p.prevPhase = p.phase
	p.phase = phaseLookback
	p.lookbackCache = nil

	var raw bytes.Buffer
	p.history.AppendAll(&raw)

	// The history dump itself begins with clear-screen + cursor-home (the
	// history's replay seed), so no separate clear is issued here.
	var out bytes.Buffer
	out.Write(p.queryF.FilterBytes(raw.Bytes()))
	out.Write(p.queryF.Flush())
	out.WriteString(escseq.ReverseVideoOn)
	out.WriteString(lookbackBanner(p.cfg.LookbackKeyText))
	out.WriteString(escseq.ReverseVideoOff)
	_ = platform.WriteStdout(out.Bytes())
}

// exitLookback replays whatever the child emitted while lookback was
// showing through the normal ingest path, forces the child's window size
// to be re-propagated, and forces a full (non-diff) VT render.
func (p *Proxy) exitLookback() {
	p.log.LookbackExited()
	p.phase = p.prevPhase
	cached := p.lookbackCache
	p.lookbackCache = nil
	if len(cached) > 0 {
		p.ingest(cached)
	}
	_ = p.pty.SetSize(p.size)
	p.needFullRedraw = true
	if p.phase == phaseNormal {
		p.render()
	}
}

func lookbackBanner(keyText string) string {
	return fmt.Sprintf(" -- LOOKBACK: scroll to browse history, press %s or Ctrl-C to return -- ", keyText)
}

// ingest routes one chunk of child output. While in lookback mode,
// output is diverted to lookback_cache untouched: no VT rendering or
// history admission occurs until lookback exits and the cache is
// replayed.
func (p *Proxy) ingest(data []byte) {
	p.respondOSCColors(data)

	if p.phase == phaseLookback {
		p.lookbackCache = append(p.lookbackCache, data...)
		return
	}

	combined := append(p.markerCarry, data...)
	p.markerCarry = nil
	segs, carry := scanMarkers(combined)
	p.markerCarry = carry

	for _, seg := range segs {
		p.handleSegment(seg)
	}
}

// handleSegment dispatches one plain-byte run or recognized marker.
// Per the component design, alt-screen-enter has the highest precedence:
// observing it mid-sync-block discards the in-progress sync buffer, and
// the matching sync-end (now inside the alt screen) is ignored.
func (p *Proxy) handleSegment(seg segment) {
	if !seg.isMarker {
		p.feedNonMarker(seg.data)
		return
	}

	switch seg.kind {
	case markerAltEnter, markerAltEnterLegacy:
		p.inSyncBlock = false
		p.syncBuffer = nil
		p.throttler.SetDelay(throttle.RenderDelay)
		p.phase = phaseAlternateScreen
		p.writeAltScreenBytes(seg.data)

	case markerAltExit, markerAltExitLegacy:
		if p.phase == phaseAlternateScreen {
			p.writeAltScreenBytes(seg.data)
			p.phase = phaseNormal
			p.needFullRedraw = true
			p.throttler.NotifyOutput(time.Now())
		} else {
			p.feedNonMarker(seg.data)
		}

	case markerSyncStart:
		if p.phase == phaseAlternateScreen {
			p.writeAltScreenBytes(seg.data)
			return
		}
		p.inSyncBlock = true
		p.syncBuffer = nil
		p.throttler.SetDelay(throttle.SyncBlockDelay)
		p.vt.Write(seg.data)

	case markerSyncEnd:
		if p.phase == phaseAlternateScreen {
			p.writeAltScreenBytes(seg.data)
			return
		}
		p.vt.Write(seg.data)
		if p.inSyncBlock {
			p.finishSyncBlock()
		}
		p.throttler.SetDelay(throttle.RenderDelay)
	}
}

// feedNonMarker feeds one plain run of bytes to the VT emulator and,
// depending on phase, to the live history path, the in-progress sync
// buffer, or (alternate screen) straight to stdout.
func (p *Proxy) feedNonMarker(data []byte) {
	if p.phase == phaseAlternateScreen {
		p.writeAltScreenBytes(data)
		return
	}
	p.vt.Write(data)
	if p.inSyncBlock {
		p.syncBuffer = append(p.syncBuffer, data...)
	} else {
		p.history.PushBytes(p.historyF.FilterBytes(data))
	}
	p.throttler.NotifyOutput(time.Now())
}

// writeAltScreenBytes feeds VT and history exactly like the normal path,
// but also writes the bytes directly to stdout: alt-screen mode bypasses
// coalescing entirely.
func (p *Proxy) writeAltScreenBytes(data []byte) {
	p.vt.Write(data)
	_ = platform.WriteStdout(data)
	p.history.PushBytes(p.historyF.FilterBytes(data))
}

// finishSyncBlock resolves one completed sync block. Only a block
// containing both clear-screen and cursor-home, in either order and
// not necessarily adjacent, counts as a full redraw; clear without
// home does not.
func (p *Proxy) finishSyncBlock() {
	p.inSyncBlock = false
	buf := p.syncBuffer
	p.syncBuffer = nil

	hasClear := bytes.Contains(buf, []byte(escseq.ClearScreen))
	hasHome := bytes.Contains(buf, []byte(escseq.CursorHome))
	if hasClear && hasHome {
		p.history.Clear()
	}
	p.history.PushBytes(p.historyF.FilterBytes(buf))
	p.throttler.NotifyOutput(time.Now())
}

// respondOSCColors answers OSC 10/11 color queries that midterm itself
// swallows, using the real terminal's colors cached at startup.
func (p *Proxy) respondOSCColors(data []byte) {
	if p.oscFg != "" && bytes.Contains(data, []byte("\x1b]10;?")) {
		fmt.Fprintf(p.pty.MasterFile(), "\x1b]10;%s\x1b\\", p.oscFg)
	}
	if p.oscBg != "" && bytes.Contains(data, []byte("\x1b]11;?")) {
		fmt.Fprintf(p.pty.MasterFile(), "\x1b]11;%s\x1b\\", p.oscBg)
	}
}

// colorToX11 converts a termenv.Color to X11 rgb: format, the form OSC
// 10/11 responses use.
func colorToX11(c termenv.Color) string {
	if rgb, ok := c.(termenv.RGBColor); ok {
		hex := string(rgb)
		if len(hex) == 7 && hex[0] == '#' {
			r, _ := strconv.ParseUint(hex[1:3], 16, 8)
			g, _ := strconv.ParseUint(hex[3:5], 16, 8)
			b, _ := strconv.ParseUint(hex[5:7], 16, 8)
			return fmt.Sprintf("rgb:%04x/%04x/%04x", r*0x101, g*0x101, b*0x101)
		}
	}
	return ""
}

// render issues one coalesced redraw: sync-start, either a full or
// differential snapshot depending on needFullRedraw, the cursor-state
// sequence, then sync-end.
func (p *Proxy) render() {
	snap := p.vt.Snapshot()

	var body []byte
	if p.needFullRedraw || !p.haveSnapshot {
		body = vtadapter.Full(snap)
		p.needFullRedraw = false
	} else {
		body = vtadapter.Diff(snap, p.prevSnapshot)
	}

	var buf bytes.Buffer
	buf.WriteString(escseq.SyncStart)
	buf.Write(body)
	buf.Write(p.vt.CursorSequence())
	buf.WriteString(escseq.SyncEnd)
	_ = platform.WriteStdout(buf.Bytes())

	p.prevSnapshot = snap
	p.haveSnapshot = true
	p.throttler.MarkFlushed()
	p.lastRenderTime = time.Now()
}

// autoLookbackRemaining bounds the poll timeout so the auto-lookback
// quiet-screen deadline is never overslept.
func (p *Proxy) autoLookbackRemaining(now time.Time) time.Duration {
	if p.cfg.AutoLookbackTimeoutMs <= 0 || p.lastRenderTime.IsZero() || p.phase == phaseLookback {
		return throttle.MaxPoll
	}
	d := p.lastRenderTime.Add(time.Duration(p.cfg.AutoLookbackTimeoutMs) * time.Millisecond).Sub(now)
	if d < 0 {
		return 0
	}
	if d > throttle.MaxPoll {
		return throttle.MaxPoll
	}
	return d
}

// maybeAutoLookback dumps the full history once the screen has been
// quiet (no render) for AutoLookbackTimeoutMs, without entering lookback
// mode. last_render_time is cleared afterward so this fires once per
// quiet period, not on every loop iteration.
func (p *Proxy) maybeAutoLookback(now time.Time) {
	if p.cfg.AutoLookbackTimeoutMs <= 0 || p.phase == phaseLookback || p.lastRenderTime.IsZero() {
		return
	}
	deadline := p.lastRenderTime.Add(time.Duration(p.cfg.AutoLookbackTimeoutMs) * time.Millisecond)
	if now.Before(deadline) {
		return
	}

	var raw bytes.Buffer
	p.history.AppendAll(&raw)
	var out bytes.Buffer
	out.Write(p.queryF.FilterBytes(raw.Bytes()))
	out.Write(p.queryF.Flush())
	_ = platform.WriteStdout(out.Bytes())

	p.log.AutoLookback()
	p.lastRenderTime = time.Time{}
}
