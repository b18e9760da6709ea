package proc

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"syscall"
)

// FakeHandle is a scriptable in-memory Handle for tests. Output is emitted
// by the test via EmitOutput, input written by the code under test is
// captured for inspection, and Exit simulates process termination.
type FakeHandle struct {
	// StartErr, when set, is returned by Start to simulate spawn failure.
	StartErr error
	// FakePID is reported by PID after Start.
	FakePID int

	mu       sync.Mutex
	started  bool
	running  bool
	exitCode int
	input    bytes.Buffer
	signals  []os.Signal
	outR     *io.PipeReader
	outW     *io.PipeWriter
	done     chan struct{}
	exitOnce sync.Once

	// TermOnSignal makes SIGTERM trigger Exit(0), mimicking a process that
	// terminates promptly on request.
	TermOnSignal bool
}

var _ Handle = (*FakeHandle)(nil)

// NewFakeHandle creates an unstarted fake.
func NewFakeHandle() *FakeHandle {
	r, w := io.Pipe()
	return &FakeHandle{
		FakePID:  4242,
		exitCode: -1,
		outR:     r,
		outW:     w,
		done:     make(chan struct{}),
	}
}

// Start marks the fake as running, or returns StartErr.
func (h *FakeHandle) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return ErrAlreadyStarted
	}
	if h.StartErr != nil {
		return h.StartErr
	}
	h.started = true
	h.running = true
	return nil
}

// Signal records the signal. With TermOnSignal set, SIGTERM exits the fake.
func (h *FakeHandle) Signal(sig os.Signal) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return ErrNotStarted
	}
	h.signals = append(h.signals, sig)
	term := h.TermOnSignal && sig == syscall.SIGTERM
	h.mu.Unlock()

	if term {
		h.Exit(0)
	}
	return nil
}

// Input returns the capture buffer for process input.
func (h *FakeHandle) Input() io.Writer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil
	}
	return &lockedWriter{h: h}
}

// Output returns the read side of the scripted output pipe.
func (h *FakeHandle) Output() io.Reader {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return nil
	}
	return h.outR
}

// PID returns the configured fake PID after Start.
func (h *FakeHandle) PID() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return 0
	}
	return h.FakePID
}

// Running reports whether the fake has started and not exited.
func (h *FakeHandle) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// Done returns a channel closed by Exit.
func (h *FakeHandle) Done() <-chan struct{} { return h.done }

// ExitCode returns the code passed to Exit, or -1 before exit.
func (h *FakeHandle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode
}

// EmitOutput makes the fake process produce a chunk of output. It blocks
// until the session's reader consumes the chunk, which keeps test timing
// deterministic.
func (h *FakeHandle) EmitOutput(chunk string) {
	_, _ = h.outW.Write([]byte(chunk))
}

// Exit simulates process termination with the given code. Safe to call once;
// later calls are ignored.
func (h *FakeHandle) Exit(code int) {
	h.exitOnce.Do(func() {
		h.mu.Lock()
		h.running = false
		h.exitCode = code
		h.mu.Unlock()
		_ = h.outW.Close()
		close(h.done)
	})
}

// InputString returns everything the code under test wrote to the process.
func (h *FakeHandle) InputString() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.input.String()
}

// Signals returns the signals delivered so far.
func (h *FakeHandle) Signals() []os.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]os.Signal, len(h.signals))
	copy(out, h.signals)
	return out
}

// lockedWriter serializes writes into the fake's input buffer.
type lockedWriter struct {
	h *FakeHandle
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	if !w.h.running {
		return 0, io.ErrClosedPipe
	}
	return w.h.input.Write(p)
}
