// Package router binds the local terminal to one session's process streams.
// Attachment is exclusive: at most one session is attached at a time, and
// attaching to another session detaches the previous one first.
package router

import (
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/event"
	"github.com/agentherd/agentherd/internal/logging"
	"github.com/agentherd/agentherd/internal/session"
)

// detachKey is Ctrl-], read from the attached terminal to request detach
// without stopping the session.
const detachKey = 0x1d

// Router pipes terminal input to the attached session's process and process
// output back to the terminal.
type Router struct {
	in     io.Reader
	out    io.Writer
	logger *logging.Logger

	mu     sync.Mutex
	gen    uint64
	active *attachment
}

// attachment is the state of one exclusive attach.
type attachment struct {
	sess    *session.Session
	input   io.Writer
	subIDs  []string
	restore func()
	gen     uint64
}

// New creates a Router over the given terminal streams. Pass os.Stdin and
// os.Stdout for interactive use; raw mode is enabled only when in is a real
// terminal.
func New(in io.Reader, out io.Writer, logger *logging.Logger) *Router {
	return &Router{in: in, out: out, logger: logger}
}

// Attach binds the terminal to sess. It fails without establishing any
// listeners when the session has no live process handle. A previous
// attachment, if any, is detached first.
func (r *Router) Attach(sess *session.Session) error {
	h := sess.Handle()
	if h == nil {
		return errs.Wrapf(errs.ErrNoProcessHandle, "cannot attach to session '%s'", sess.Name())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		r.detachLocked()
	}

	r.gen++
	a := &attachment{
		sess:  sess,
		input: h.Input(),
		gen:   r.gen,
	}

	if f, ok := r.in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		oldState, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return errs.Wrap(err, "failed to enter raw mode")
		}
		a.restore = func() { _ = term.Restore(int(f.Fd()), oldState) }
	}

	// Replay recent output so the terminal shows context from before the
	// attach.
	if back := sess.Scrollback(); len(back) > 0 {
		_, _ = r.out.Write(back)
	}

	bus := sess.Bus()
	a.subIDs = append(a.subIDs, bus.Subscribe(event.TypeSessionData, func(e event.Event) {
		data := e.(event.SessionDataEvent)
		r.mu.Lock()
		current := r.active == a
		r.mu.Unlock()
		if current {
			_, _ = r.out.Write(data.Chunk)
		}
	}))
	a.subIDs = append(a.subIDs, bus.Subscribe(event.TypeProcessExited, func(e event.Event) {
		go r.detachIf(a)
	}))

	r.active = a
	r.logger.Info("attached", "session", sess.Name(), "pid", h.PID())
	go r.pumpInput(a)
	return nil
}

// pumpInput copies terminal input to the attached process until the
// attachment ends or the detach key is read.
func (r *Router) pumpInput(a *attachment) {
	buf := make([]byte, 1024)
	for {
		n, err := r.in.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			for i, b := range chunk {
				if b != detachKey {
					continue
				}
				if i > 0 {
					_, _ = a.input.Write(chunk[:i])
				}
				r.detachIf(a)
				return
			}
			r.mu.Lock()
			current := r.active == a
			r.mu.Unlock()
			if !current {
				return
			}
			if _, werr := a.input.Write(chunk); werr != nil {
				r.detachIf(a)
				return
			}
		}
		if err != nil {
			// Input ending (EOF, closed pipe) stops the pump but leaves the
			// attachment streaming output until detach or process exit.
			return
		}
	}
}

// Detach ends the current attachment, removing every listener it installed
// on the session's bus and restoring the terminal.
func (r *Router) Detach() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return errs.ErrNotAttached
	}
	r.detachLocked()
	return nil
}

// detachIf detaches only if a is still the active attachment. Used by the
// exit listener and the input pump, which may race a newer Attach.
func (r *Router) detachIf(a *attachment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != a {
		return
	}
	r.detachLocked()
}

// detachLocked tears down the active attachment. Caller holds r.mu.
func (r *Router) detachLocked() {
	a := r.active
	r.active = nil

	bus := a.sess.Bus()
	for _, id := range a.subIDs {
		bus.Unsubscribe(id)
	}
	if a.restore != nil {
		a.restore()
	}
	r.logger.Info("detached", "session", a.sess.Name())
}

// ActiveSession returns the attached session's name, or "" when detached.
func (r *Router) ActiveSession() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return ""
	}
	return r.active.sess.Name()
}
