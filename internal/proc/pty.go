package proc

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// PtyHandle runs the agent process under a pseudo-terminal. Interactive
// agents detect the tty and keep their line editing and streaming behavior;
// the pty master doubles as both Input and Output stream.
type PtyHandle struct {
	spec Spec

	mu       sync.RWMutex
	cmd      *exec.Cmd
	ptmx     *os.File
	started  bool
	running  bool
	exitCode int
	done     chan struct{}
}

var _ Handle = (*PtyHandle)(nil)
var _ Resizable = (*PtyHandle)(nil)

// NewPtyHandle creates an unstarted pty-backed handle for spec.
func NewPtyHandle(spec Spec) *PtyHandle {
	return &PtyHandle{
		spec:     spec,
		exitCode: -1,
		done:     make(chan struct{}),
	}
}

// Start spawns the process under a pty sized per the spec.
func (h *PtyHandle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return ErrAlreadyStarted
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if h.spec.WorkDir != "" {
		if info, err := os.Stat(h.spec.WorkDir); err != nil || !info.IsDir() {
			return fmt.Errorf("working directory does not exist: %s", h.spec.WorkDir)
		}
	}

	cmd := exec.Command(h.spec.Command, h.spec.Args...)
	cmd.Dir = h.spec.WorkDir
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, h.spec.Env...)

	width := h.spec.TermWidth
	if width == 0 {
		width = 200
	}
	height := h.spec.TermHeight
	if height == 0 {
		height = 50
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(width),
		Rows: uint16(height),
	})
	if err != nil {
		return fmt.Errorf("failed to start pty: %w", err)
	}

	h.cmd = cmd
	h.ptmx = ptmx
	h.started = true
	h.running = true

	go h.waitLoop()
	return nil
}

// waitLoop reaps the process and records its exit.
func (h *PtyHandle) waitLoop() {
	err := h.cmd.Wait()

	h.mu.Lock()
	h.running = false
	if err == nil {
		h.exitCode = 0
	} else if exitErr, ok := err.(*exec.ExitError); ok {
		h.exitCode = exitErr.ExitCode()
	} else {
		h.exitCode = -1
	}
	ptmx := h.ptmx
	h.mu.Unlock()

	// Closing the master unblocks readers with EOF.
	if ptmx != nil {
		_ = ptmx.Close()
	}
	close(h.done)
}

// Signal delivers sig to the process.
func (h *PtyHandle) Signal(sig os.Signal) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if !h.started {
		return ErrNotStarted
	}
	if !h.running || h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(sig)
}

// Input returns the pty master as the process input stream.
func (h *PtyHandle) Input() io.Writer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ptmx == nil {
		return nil
	}
	return h.ptmx
}

// Output returns the pty master as the combined output stream.
func (h *PtyHandle) Output() io.Reader {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.ptmx == nil {
		return nil
	}
	return h.ptmx
}

// PID returns the process identifier, or 0 before Start.
func (h *PtyHandle) PID() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// Running reports whether the process is alive.
func (h *PtyHandle) Running() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Done returns a channel closed on process exit.
func (h *PtyHandle) Done() <-chan struct{} { return h.done }

// ExitCode returns the recorded exit code, or -1 before exit.
func (h *PtyHandle) ExitCode() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.exitCode
}

// Resize changes the pty dimensions.
func (h *PtyHandle) Resize(width, height int) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.ptmx == nil {
		return ErrNotStarted
	}
	return pty.Setsize(h.ptmx, &pty.Winsize{
		Cols: uint16(width),
		Rows: uint16(height),
	})
}
