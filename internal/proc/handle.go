// Package proc defines the narrow process-handle abstraction the session
// core is built on: one spawned OS process with an input stream, a merged
// output stream, and a lifecycle (spawn, signal, wait). Session logic never
// touches os/exec directly, so it is testable against FakeHandle.
package proc

import (
	"context"
	"errors"
	"io"
	"os"
)

// Common errors returned by Handle implementations.
var (
	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("process already started")

	// ErrNotStarted is returned when an operation requires a started process.
	ErrNotStarted = errors.New("process not started")
)

// Spec holds the creation parameters for a process handle.
type Spec struct {
	// Command is the executable to spawn.
	Command string
	// Args are the arguments passed to the executable.
	Args []string
	// WorkDir is the process working directory.
	WorkDir string
	// Env are extra KEY=VALUE pairs appended to the inherited environment.
	Env []string
	// TermWidth and TermHeight size the pseudo-terminal, when one is used.
	TermWidth  int
	TermHeight int
}

// Handle is the lifecycle and stream surface of one spawned process.
//
// The typical lifecycle is Start, read Output / write Input, Signal to
// request termination, and Done/ExitCode to observe the exit. A Handle
// represents exactly one run: restarting a session creates a new Handle.
type Handle interface {
	// Start spawns the process. Returns ErrAlreadyStarted on a second call,
	// or a spawn failure if the executable cannot be launched.
	Start(ctx context.Context) error

	// Signal delivers sig to the process. Returns ErrNotStarted before
	// Start; delivering to an exited process is not an error.
	Signal(sig os.Signal) error

	// Input is the process's input stream. Nil before Start.
	Input() io.Writer

	// Output is the process's combined output stream. Nil before Start.
	// It reaches EOF when the process exits.
	Output() io.Reader

	// PID returns the OS process identifier, or 0 before Start.
	PID() int

	// Running reports whether the process has started and not yet exited.
	Running() bool

	// Done returns a channel closed when the process has exited.
	Done() <-chan struct{}

	// ExitCode returns the process exit code. Valid only after Done is
	// closed; before that it returns -1.
	ExitCode() int
}

// Resizable is implemented by terminal-backed handles.
type Resizable interface {
	// Resize changes the terminal dimensions in columns and rows.
	Resize(width, height int) error
}
