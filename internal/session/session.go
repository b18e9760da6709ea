// Package session implements the per-session core: the run-state machine
// over one supervised agent process, and the prompt/response correlation
// protocol on that process's streams.
//
// A Session owns at most one live process handle at a time. Prompts are
// strictly serialized per session: a second prompt submitted while one is
// pending fails immediately with a busy error and is never queued. A prompt
// timeout abandons only the caller's wait — the process is left running and
// its late output is discarded rather than misattributed to a later prompt.
package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/event"
	"github.com/agentherd/agentherd/internal/logging"
	"github.com/agentherd/agentherd/internal/proc"
)

// HandleFactory builds a process handle for one run of a session.
// The manager injects proc.NewPtyHandle in production and fakes in tests.
type HandleFactory func(spec proc.Spec) proc.Handle

// Options holds the runtime knobs shared by all sessions of one manager.
type Options struct {
	// AgentCommand and AgentArgs define the executable spawned per run.
	AgentCommand string
	AgentArgs    []string
	// TermWidth and TermHeight size the agent's pseudo-terminal.
	TermWidth  int
	TermHeight int
	// PromptTimeout bounds how long SendPrompt waits for a response.
	PromptTimeout time.Duration
	// IdleQuiet is the output-silence window treated as response completion.
	IdleQuiet time.Duration
	// CompletionMarker, when non-empty, completes a response as soon as it
	// appears in the output, without waiting for the idle window.
	CompletionMarker string
	// ShutdownGrace is how long Stop waits after SIGTERM before SIGKILL.
	ShutdownGrace time.Duration
	// ScrollbackSize caps the in-memory output ring, in bytes.
	ScrollbackSize int
	// TranscriptDir, when non-empty, receives one append-only <name>.log
	// transcript of raw process output per session.
	TranscriptDir string
	// NewHandle builds the process handle for each run.
	NewHandle HandleFactory
	// Logger receives structured session logs; nil disables logging.
	Logger *logging.Logger
}

// promptResult carries the outcome of one prompt to its waiting caller.
type promptResult struct {
	response string
	err      error
}

// pendingPrompt is the single in-flight prompt of a session.
type pendingPrompt struct {
	text        string
	submittedAt time.Time
	buf         strings.Builder
	quiet       *time.Timer
	result      chan promptResult
}

// Session supervises one named run of an external agent process.
// It is owned by the manager; the router holds only a non-owning reference
// while attached.
type Session struct {
	cfg    Config
	opts   Options
	bus    *event.Bus
	logger *logging.Logger

	mu            sync.RWMutex
	state         State
	handle        proc.Handle
	startedAt     time.Time
	lastExitCode  int
	stopRequested bool
	exited        chan struct{}
	transcript    *os.File
	ring          *scrollback

	pending            *pendingPrompt
	promptCount        uint64
	totalResponseTime  time.Duration
	totalResponseChars int64

	// nowFn is the clock; overridable in tests.
	nowFn func() time.Time
}

// New creates an unstarted session for cfg.
func New(cfg Config, opts Options) *Session {
	if opts.NewHandle == nil {
		opts.NewHandle = func(spec proc.Spec) proc.Handle {
			return proc.NewPtyHandle(spec)
		}
	}
	return &Session{
		cfg:          cfg,
		opts:         opts,
		bus:          event.NewBus(),
		logger:       opts.Logger.WithSession(cfg.Name),
		state:        StateStarting,
		lastExitCode: -1,
		ring:         newScrollback(opts.ScrollbackSize),
		nowFn:        time.Now,
	}
}

// Name returns the session's unique name.
func (s *Session) Name() string { return s.cfg.Name }

// Config returns the immutable creation parameters.
func (s *Session) Config() Config { return s.cfg }

// Bus returns the session's event bus, carrying prompt.started,
// session.data, prompt.completed, prompt.errored, and process.exited.
func (s *Session) Bus() *event.Bus { return s.bus }

// buildSpec maps the session config onto a process spec for one run.
func (s *Session) buildSpec() proc.Spec {
	args := append([]string(nil), s.opts.AgentArgs...)
	if s.cfg.PermissionMode != "" {
		args = append(args, "--permission-mode", s.cfg.PermissionMode)
	}
	if s.cfg.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", s.cfg.SystemPrompt)
	}
	var env []string
	for k, v := range s.cfg.Env {
		env = append(env, k+"="+v)
	}
	return proc.Spec{
		Command:    s.opts.AgentCommand,
		Args:       args,
		WorkDir:    s.cfg.WorkDir,
		Env:        env,
		TermWidth:  s.opts.TermWidth,
		TermHeight: s.opts.TermHeight,
	}
}

// Start spawns a new run of the agent process. It is valid on a fresh
// session and on one whose previous run reached a terminal state; it fails
// while a run is live. On spawn failure the session returns to Stopped and
// the error is a SpawnError.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateRunning, StateStopping:
		s.mu.Unlock()
		return errs.NewAlreadyExistsError("run for session", s.cfg.Name)
	}
	s.state = StateStarting
	spec := s.buildSpec()
	h := s.opts.NewHandle(spec)
	s.mu.Unlock()

	if err := h.Start(ctx); err != nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return errs.NewSpawnError(s.cfg.Name, spec.Command, err)
	}

	var transcript *os.File
	if s.opts.TranscriptDir != "" {
		if err := os.MkdirAll(s.opts.TranscriptDir, 0755); err == nil {
			path := filepath.Join(s.opts.TranscriptDir, s.cfg.Name+".log")
			transcript, _ = os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		}
	}

	s.mu.Lock()
	s.handle = h
	s.state = StateRunning
	s.startedAt = s.nowFn()
	s.stopRequested = false
	s.exited = make(chan struct{})
	s.transcript = transcript
	exited := s.exited
	s.mu.Unlock()

	s.logger.Info("session running", "pid", h.PID(), "workdir", s.cfg.WorkDir)

	go s.pump(h)
	go s.watchExit(h, exited)
	return nil
}

// pump reads the process output stream until EOF, feeding the transcript,
// the scrollback ring, the pending prompt (if any), and data subscribers.
func (s *Session) pump(h proc.Handle) {
	out := h.Output()
	if out == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := out.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.consumeChunk(h, chunk)
		}
		if err != nil {
			return
		}
	}
}

// consumeChunk routes one output chunk.
func (s *Session) consumeChunk(h proc.Handle, chunk []byte) {
	s.mu.Lock()
	if s.handle != h {
		// A newer run owns the streams now; drop stale output.
		s.mu.Unlock()
		return
	}
	if s.transcript != nil {
		_, _ = s.transcript.Write(chunk)
	}
	_, _ = s.ring.Write(chunk)

	p := s.pending
	markerHit := false
	if p != nil {
		p.buf.Write(chunk)
		if s.opts.CompletionMarker != "" && strings.Contains(p.buf.String(), s.opts.CompletionMarker) {
			markerHit = true
		} else if p.quiet == nil {
			// The idle window starts at the first response byte, so a
			// silent process times out instead of completing empty.
			p.quiet = time.AfterFunc(s.opts.IdleQuiet, func() { s.completePending(p) })
		} else {
			p.quiet.Reset(s.opts.IdleQuiet)
		}
	}
	s.mu.Unlock()

	s.bus.Publish(event.NewSessionDataEvent(s.cfg.Name, chunk))
	if markerHit {
		s.completePending(p)
	}
}

// completePending resolves the prompt p if it is still the current one.
// Late invocations (abandoned or superseded prompts) are no-ops.
func (s *Session) completePending(p *pendingPrompt) {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	if p.quiet != nil {
		p.quiet.Stop()
	}
	response := p.buf.String()
	elapsed := s.nowFn().Sub(p.submittedAt)
	s.promptCount++
	s.totalResponseTime += elapsed
	s.totalResponseChars += int64(len(response))
	s.mu.Unlock()

	s.logger.Debug("prompt completed", "elapsed_ms", elapsed.Milliseconds(), "chars", len(response))
	s.bus.Publish(event.NewPromptCompletedEvent(s.cfg.Name, response, elapsed))
	p.result <- promptResult{response: response}
}

// abandonPending detaches p without resolving it: the caller has given up
// (timeout or cancellation) but the process keeps running, and any output
// it still produces is discarded rather than attributed to a later prompt.
func (s *Session) abandonPending(p *pendingPrompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending != p {
		return
	}
	s.pending = nil
	if p.quiet != nil {
		p.quiet.Stop()
	}
}

// failPending resolves p with err if it is still current.
func (s *Session) failPending(p *pendingPrompt, err error) {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	if p.quiet != nil {
		p.quiet.Stop()
	}
	s.mu.Unlock()

	s.bus.Publish(event.NewPromptErroredEvent(s.cfg.Name, err))
	p.result <- promptResult{err: err}
}

// SendPrompt submits text to the agent and waits for the correlated
// response. Preconditions: text is non-empty, the session is Running, and
// no prompt is pending (no queuing — a busy session rejects immediately).
// On timeout it returns a PromptTimeoutError carrying the session name,
// the timeout, and the original prompt text; the process is NOT killed.
func (s *Session) SendPrompt(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("prompt text must not be empty")
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return "", errs.Wrapf(errs.ErrSessionNotRunning, "session '%s' is %s", s.cfg.Name, s.state)
	}
	if s.pending != nil {
		s.mu.Unlock()
		return "", errs.NewBusyError(s.cfg.Name)
	}
	p := &pendingPrompt{
		text:        text,
		submittedAt: s.nowFn(),
		result:      make(chan promptResult, 1),
	}
	s.pending = p
	input := s.handle.Input()
	s.mu.Unlock()

	s.bus.Publish(event.NewPromptStartedEvent(s.cfg.Name, text))

	if input == nil {
		werr := errs.Wrapf(errs.ErrSessionNotRunning, "session '%s' has no input stream", s.cfg.Name)
		s.failPending(p, werr)
		return "", werr
	}
	if _, err := io.WriteString(input, text+"\n"); err != nil {
		werr := errs.Wrap(err, "failed to write prompt to process")
		s.failPending(p, werr)
		return "", werr
	}

	timeout := time.NewTimer(s.opts.PromptTimeout)
	defer timeout.Stop()

	select {
	case res := <-p.result:
		return res.response, res.err
	case <-timeout.C:
		s.abandonPending(p)
		terr := errs.NewPromptTimeoutError(s.cfg.Name, text, s.opts.PromptTimeout)
		s.logger.Warn("prompt timed out", "timeout", s.opts.PromptTimeout)
		s.bus.Publish(event.NewPromptErroredEvent(s.cfg.Name, terr))
		return "", terr
	case <-ctx.Done():
		s.abandonPending(p)
		return "", ctx.Err()
	}
}

// Stop requests graceful termination: SIGTERM, a bounded wait, then SIGKILL.
// It returns once the process has actually exited and the session reached
// Stopped. Stopping an already-terminal session is a no-op.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return nil
	}
	// Recorded before signalling so the exit watcher can tell a requested
	// stop from a crash.
	s.stopRequested = true
	s.state = StateStopping
	h := s.handle
	exited := s.exited
	s.mu.Unlock()

	if h == nil {
		s.mu.Lock()
		s.state = StateStopped
		s.mu.Unlock()
		return nil
	}

	s.logger.Info("stopping session", "pid", h.PID())
	_ = h.Signal(syscall.SIGTERM)

	grace := time.NewTimer(s.opts.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-exited:
		return nil
	case <-grace.C:
		s.logger.Warn("graceful stop deadline exceeded, killing", "pid", h.PID())
		_ = h.Signal(syscall.SIGKILL)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// watchExit observes one run's process exit, settles the run-state, fails
// any pending prompt, and publishes process.exited.
func (s *Session) watchExit(h proc.Handle, exited chan struct{}) {
	<-h.Done()

	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	code := h.ExitCode()
	s.lastExitCode = code
	requested := s.stopRequested
	if requested {
		s.state = StateStopped
	} else {
		s.state = StateCrashed
	}
	p := s.pending
	s.pending = nil
	if p != nil && p.quiet != nil {
		p.quiet.Stop()
	}
	transcript := s.transcript
	s.transcript = nil
	s.mu.Unlock()

	if transcript != nil {
		_ = transcript.Close()
	}
	if p != nil {
		perr := errs.Wrapf(errs.ErrSessionNotRunning,
			"process exited with code %d while prompt was pending", code)
		s.bus.Publish(event.NewPromptErroredEvent(s.cfg.Name, perr))
		p.result <- promptResult{err: perr}
	}

	if requested {
		s.logger.Info("session stopped", "exit_code", code)
	} else {
		s.logger.Warn("session process exited unexpectedly", "exit_code", code)
	}
	s.bus.Publish(event.NewProcessExitedEvent(s.cfg.Name, code, requested))
	close(exited)
}

// State returns the current run-state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Handle returns the live process handle, or nil when no run is live.
// The router uses this to bind terminal streams; callers must not retain
// the handle across restarts.
func (s *Session) Handle() proc.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil || !s.handle.Running() {
		return nil
	}
	return s.handle
}

// PID returns the current run's process identifier, or 0.
func (s *Session) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.handle == nil {
		return 0
	}
	return s.handle.PID()
}

// Scrollback returns a copy of the most recent process output.
func (s *Session) Scrollback() []byte {
	return s.ring.Bytes()
}

// Info returns a point-in-time snapshot of the session.
func (s *Session) Info() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pid := 0
	if s.handle != nil && s.handle.Running() {
		pid = s.handle.PID()
	}
	return Info{
		Name:           s.cfg.Name,
		State:          s.state.String(),
		PID:            pid,
		WorkDir:        s.cfg.WorkDir,
		PermissionMode: s.cfg.PermissionMode,
		Tags:           append([]string(nil), s.cfg.Tags...),
		StartedAt:      s.startedAt,
		LastExitCode:   s.lastExitCode,
		PromptCount:    s.promptCount,
	}
}

// Metrics returns derived statistics for the session.
func (s *Session) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var avgMs int64
	if s.promptCount > 0 {
		avgMs = s.totalResponseTime.Milliseconds() / int64(s.promptCount)
	}
	var uptime time.Duration
	if s.state == StateRunning || s.state == StateStopping {
		uptime = s.nowFn().Sub(s.startedAt)
	}
	return Metrics{
		PromptCount:        s.promptCount,
		AvgResponseTimeMs:  avgMs,
		TotalResponseChars: s.totalResponseChars,
		EstimatedTokens:    s.totalResponseChars / 4,
		Uptime:             uptime,
	}
}
