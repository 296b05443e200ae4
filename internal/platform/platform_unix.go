//go:build !windows

package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// ErrPtyHangup is returned by Read when the child has exited and the PTY
// master reports hangup.
var ErrPtyHangup = errors.New("platform: pty hangup")

// Pty owns the PTY master and the spawned child process.
type Pty struct {
	master *os.File
	cmd    *exec.Cmd
}

// Spawn creates a PTY with the given size and launches command with its
// stdio bound to the slave side. The master side is non-blocking-capable
// via poll_io; creack/pty already opens it without O_NONBLOCK restriction
// issues on read, and our poll loop never reads without a prior
// PtyReadable/BothReadable classification.
func Spawn(command string, args []string, size Size) (*Pty, error) {
	cmd := exec.Command(command, args...)
	master, err := pty.StartWithSize(cmd, &pty.Winsize{
		Rows: uint16(size.Rows),
		Cols: uint16(size.Cols),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: spawn %s: %v", ErrPtySpawnFailed, command, err)
	}
	return &Pty{master: master, cmd: cmd}, nil
}

// Read reads from the PTY master. A zero-length read with nil error
// never happens for a blocking fd; EIO is translated to ErrPtyHangup per
// the error-handling design (EIO on PTY read means child hangup).
func (p *Pty) Read(buf []byte) (int, error) {
	n, err := p.master.Read(buf)
	if err != nil {
		if errors.Is(err, syscall.EIO) || err == io.EOF {
			return n, ErrPtyHangup
		}
		return n, fmt.Errorf("%w: read: %v", ErrPtyIO, err)
	}
	return n, nil
}

// Write writes all bytes, retrying short writes.
func (p *Pty) Write(data []byte) error {
	for len(data) > 0 {
		n, err := p.master.Write(data)
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) || errors.Is(err, syscall.EINTR) {
				continue
			}
			return fmt.Errorf("%w: write: %v", ErrPtyIO, err)
		}
		data = data[n:]
	}
	return nil
}

// SetSize propagates window dimensions to the child.
func (p *Pty) SetSize(size Size) error {
	return pty.Setsize(p.master, &pty.Winsize{
		Rows: uint16(size.Rows),
		Cols: uint16(size.Cols),
	})
}

// Signal forwards Interrupt or Terminate to the child's process. Resize
// is a no-op here: it is delivered via SetSize/ioctl, not a signal.
func (p *Pty) Signal(sig Signal) {
	var s syscall.Signal
	switch sig {
	case SignalInterrupt:
		s = syscall.SIGINT
	case SignalTerminate:
		s = syscall.SIGTERM
	default:
		return
	}
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(s)
	}
}

// Wait waits for the child to exit, returning its exit code. A
// signal-terminated child yields 128+signal per the platform contract.
func (p *Pty) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return 128 + int(status.Signal()), nil
			}
			return status.ExitStatus(), nil
		}
		return exitErr.ExitCode(), nil
	}
	return 1, fmt.Errorf("wait: %w", err)
}

// Close releases the PTY master.
func (p *Pty) Close() error {
	return p.master.Close()
}

// MasterFile exposes the PTY master for callers that need an io.Writer,
// e.g. wiring it as the VT adapter's response-forwarding target.
func (p *Pty) MasterFile() *os.File {
	return p.master
}

// IsTTY reports whether stdin is a TTY.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// GetTerminalSize queries the current terminal size, falling back to
// DefaultSize on error or zero dimensions.
func GetTerminalSize() Size {
	cols, rows, err := term.GetSize(int(os.Stdin.Fd()))
	if err != nil || rows <= 0 || cols <= 0 {
		return DefaultSize
	}
	return Size{Rows: rows, Cols: cols}
}

// RawModeGuard owns the terminal's original attributes and restores them
// exactly once, from any exit path.
type RawModeGuard struct {
	fd       int
	original *term.State
	restored bool
}

// EnterRawMode puts stdin into raw mode and returns a guard that restores
// it on Restore (call via defer immediately after this returns no error).
func EnterRawMode() (*RawModeGuard, error) {
	fd := int(os.Stdin.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enter raw mode: %w", err)
	}
	return &RawModeGuard{fd: fd, original: state}, nil
}

// Restore restores the original terminal attributes. Safe to call more
// than once; only the first call has effect.
func (g *RawModeGuard) Restore() {
	if g == nil || g.restored {
		return
	}
	g.restored = true
	_ = term.Restore(g.fd, g.original)
}

// WriteStdout writes data to stdout, all-or-error.
func WriteStdout(data []byte) error {
	for len(data) > 0 {
		n, err := os.Stdout.Write(data)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStdoutIO, err)
		}
		data = data[n:]
	}
	return nil
}

// ReadStdin reads from stdin, non-blocking: EAGAIN is reported as (0,
// nil) rather than an error.
func ReadStdin(buf []byte) (int, error) {
	n, err := os.Stdin.Read(buf)
	if err != nil {
		if errors.Is(err, syscall.EAGAIN) {
			return 0, nil
		}
		return n, fmt.Errorf("%w: %v", ErrStdinIO, err)
	}
	return n, nil
}

// signalCh latches signals delivered via os/signal.Notify. The
// channel-forwarding goroutine os/signal itself manages is the Go
// runtime's only concurrent actor here; it never touches proxy state,
// only posts to this buffered channel, which DrainSignals empties at a
// single deterministic point per loop iteration.
var signalCh chan os.Signal

// SetupSignalHandlers registers the channel that SIGWINCH, SIGINT, and
// SIGTERM are delivered to.
func SetupSignalHandlers() {
	signalCh = make(chan os.Signal, 16)
	signal.Notify(signalCh, syscall.SIGWINCH, syscall.SIGINT, syscall.SIGTERM)
}

// DrainSignals returns every signal latched since the last call, in
// delivery order, without blocking.
func DrainSignals() []Signal {
	var out []Signal
	for {
		select {
		case s := <-signalCh:
			switch s {
			case syscall.SIGWINCH:
				out = append(out, SignalResize)
			case syscall.SIGINT:
				out = append(out, SignalInterrupt)
			case syscall.SIGTERM:
				out = append(out, SignalTerminate)
			}
		default:
			return out
		}
	}
}

// PollIO multiplexes the PTY master and stdin via poll(2).
func PollIO(p *Pty, stdinFd int, timeoutMillis int) (PollResult, error) {
	fds := []unix.PollFd{
		{Fd: int32(p.master.Fd()), Events: unix.POLLIN},
		{Fd: int32(stdinFd), Events: unix.POLLIN},
	}
	n, err := unix.Poll(fds, timeoutMillis)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return PollInterrupted, nil
		}
		return PollTimeout, fmt.Errorf("%w: %v", ErrPollFailed, err)
	}
	if n == 0 {
		return PollTimeout, nil
	}

	ptyHangup := fds[0].Revents&unix.POLLHUP != 0
	ptyReadable := fds[0].Revents&unix.POLLIN != 0
	stdinReadable := fds[1].Revents&unix.POLLIN != 0

	switch {
	case ptyHangup:
		return PollPtyHangup, nil
	case ptyReadable && stdinReadable:
		return PollBothReadable, nil
	case ptyReadable:
		return PollPtyReadable, nil
	case stdinReadable:
		return PollStdinReadable, nil
	default:
		return PollTimeout, nil
	}
}
