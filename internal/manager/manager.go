// Package manager implements the session manager: the single owner of every
// live Session in one agentherd invocation. It enforces name uniqueness,
// applies the crash/restart policy, mirrors lifecycle changes into the
// durable registry, and publishes lifecycle events on its bus.
package manager

import (
	"context"
	"sort"
	"sync"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/event"
	"github.com/agentherd/agentherd/internal/hooks"
	"github.com/agentherd/agentherd/internal/logging"
	"github.com/agentherd/agentherd/internal/registry"
	"github.com/agentherd/agentherd/internal/session"
)

// Store persists session metadata across invocations. *registry.Registry is
// the production implementation; a nil Store disables persistence.
type Store interface {
	Upsert(entry registry.Entry) error
	Remove(name string) error
	UpdateState(name, state string, pid int) error
}

// HookRunner fires lifecycle notifications. *hooks.Runner is the production
// implementation; nil disables hooks.
type HookRunner interface {
	Fire(ctx context.Context, trigger string, info session.Info)
}

// Options configures a Manager.
type Options struct {
	// Session holds the per-session runtime knobs (agent command, timeouts,
	// handle factory) shared by every session this manager creates.
	Session session.Options
	Store   Store
	Hooks   HookRunner
	Logger  *logging.Logger
}

// Manager owns the name→Session map of one invocation. Registry entries it
// writes are metadata for other invocations to inspect; the live process
// streams never leave this manager.
type Manager struct {
	opts   Options
	bus    *event.Bus
	logger *logging.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	retries  map[string]uint
}

// New creates an empty Manager.
func New(opts Options) *Manager {
	return &Manager{
		opts:     opts,
		bus:      event.NewBus(),
		logger:   opts.Logger,
		sessions: make(map[string]*session.Session),
		retries:  make(map[string]uint),
	}
}

// Bus returns the manager bus, carrying session.started, session.stopped,
// and session.crashed.
func (m *Manager) Bus() *event.Bus { return m.bus }

// StartSession creates and starts a session for cfg. The uniqueness check
// and the map insert happen under one mutex hold, so two concurrent starts
// with the same name cannot both succeed.
func (m *Manager) StartSession(ctx context.Context, cfg session.Config) (*session.Session, error) {
	if cfg.Name == "" {
		return nil, errs.New("session name must not be empty")
	}

	opts := m.opts.Session
	opts.Logger = m.logger

	m.mu.Lock()
	if _, exists := m.sessions[cfg.Name]; exists {
		m.mu.Unlock()
		return nil, errs.NewAlreadyExistsError("session", cfg.Name)
	}
	sess := session.New(cfg, opts)
	m.sessions[cfg.Name] = sess
	m.retries[cfg.Name] = 0
	m.mu.Unlock()

	// The exit subscription outlives individual runs: restarts reuse the
	// same session bus.
	sess.Bus().Subscribe(event.TypeProcessExited, func(e event.Event) {
		m.handleExit(sess, e.(event.ProcessExitedEvent))
	})

	if err := sess.Start(ctx); err != nil {
		m.mu.Lock()
		delete(m.sessions, cfg.Name)
		delete(m.retries, cfg.Name)
		m.mu.Unlock()
		return nil, err
	}

	m.writeEntry(sess)
	m.logger.Info("session started", "session", cfg.Name, "pid", sess.PID())
	m.bus.Publish(event.NewSessionStartedEvent(cfg.Name, sess.PID(), cfg.WorkDir))
	m.fireHook(ctx, hooks.TriggerStarted, sess.Info())
	return sess, nil
}

// StopSession gracefully stops the named session and removes it from the
// manager and the registry.
func (m *Manager) StopSession(ctx context.Context, name string) error {
	m.mu.Lock()
	sess, ok := m.sessions[name]
	m.mu.Unlock()
	if !ok {
		return errs.NewNotFoundError("session", name)
	}

	if err := sess.Stop(ctx); err != nil {
		return errs.Wrapf(err, "failed to stop session '%s'", name)
	}

	m.mu.Lock()
	delete(m.sessions, name)
	delete(m.retries, name)
	m.mu.Unlock()

	if m.opts.Store != nil {
		if err := m.opts.Store.Remove(name); err != nil && !errs.Is(err, errs.ErrEntryNotFound) {
			m.logger.Warn("failed to remove registry entry", "session", name, "error", err)
		}
	}

	info := sess.Info()
	m.logger.Info("session stopped", "session", name, "exit_code", info.LastExitCode)
	m.bus.Publish(event.NewSessionStoppedEvent(name, info.LastExitCode))
	m.fireHook(ctx, hooks.TriggerStopped, info)
	return nil
}

// StopAll stops every tracked session concurrently and waits for all of
// them. Individual failures are joined into one error.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.sessions))
	for name := range m.sessions {
		names = append(names, name)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	errCh := make(chan error, len(names))
	for _, name := range names {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if err := m.StopSession(ctx, name); err != nil && !errs.Is(err, errs.ErrSessionNotFound) {
				errCh <- err
			}
		}(name)
	}
	wg.Wait()
	close(errCh)

	var all []error
	for err := range errCh {
		all = append(all, err)
	}
	return errs.Join(all...)
}

// StopByTag stops every session whose config tags contain tag and returns
// how many were stopped.
func (m *Manager) StopByTag(ctx context.Context, tag string) (int, error) {
	m.mu.Lock()
	var names []string
	for name, sess := range m.sessions {
		if sess.Config().HasTag(tag) {
			names = append(names, name)
		}
	}
	m.mu.Unlock()

	stopped := 0
	var all []error
	for _, name := range names {
		if err := m.StopSession(ctx, name); err != nil {
			if errs.Is(err, errs.ErrSessionNotFound) {
				continue
			}
			all = append(all, err)
			continue
		}
		stopped++
	}
	return stopped, errs.Join(all...)
}

// GetSession returns the live session for name.
func (m *Manager) GetSession(name string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[name]
	if !ok {
		return nil, errs.NewNotFoundError("session", name)
	}
	return sess, nil
}

// GetSessionInfo returns a point-in-time snapshot for name.
func (m *Manager) GetSessionInfo(name string) (session.Info, error) {
	sess, err := m.GetSession(name)
	if err != nil {
		return session.Info{}, err
	}
	return sess.Info(), nil
}

// ListSessions returns snapshots of every tracked session, sorted by name.
func (m *Manager) ListSessions() []session.Info {
	m.mu.Lock()
	sessions := make([]*session.Session, 0, len(m.sessions))
	for _, sess := range m.sessions {
		sessions = append(sessions, sess)
	}
	m.mu.Unlock()

	infos := make([]session.Info, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sess.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// handleExit applies the crash policy to a non-requested process exit.
// While retries remain the session is restarted in place with no crashed
// event; once exhausted (or when the policy is disabled) the session stays
// Crashed, its registry entry is updated rather than removed, and exactly
// one session.crashed event is published.
func (m *Manager) handleExit(sess *session.Session, ev event.ProcessExitedEvent) {
	if ev.Requested {
		return
	}

	name := sess.Name()
	policy := sess.Config().Restart

	m.mu.Lock()
	if m.sessions[name] != sess {
		// Already stopped and removed; a late exit event carries no policy.
		m.mu.Unlock()
		return
	}
	attempt := m.retries[name]
	retrying := policy.Enabled && attempt < policy.MaxRetries
	if retrying {
		m.retries[name] = attempt + 1
	}
	m.mu.Unlock()

	if retrying {
		m.logger.Warn("session crashed, restarting",
			"session", name,
			"exit_code", ev.ExitCode,
			"attempt", attempt+1,
			"max_retries", policy.MaxRetries,
		)
		if err := sess.Start(context.Background()); err != nil {
			m.logger.Error("restart failed", "session", name, "error", err)
			m.markCrashed(sess, ev.ExitCode, attempt+1)
			return
		}
		m.writeEntry(sess)
		return
	}

	m.markCrashed(sess, ev.ExitCode, attempt)
}

// markCrashed settles a session as terminally crashed.
func (m *Manager) markCrashed(sess *session.Session, exitCode int, retries uint) {
	name := sess.Name()
	if m.opts.Store != nil {
		if err := m.opts.Store.UpdateState(name, session.StateCrashed.String(), 0); err != nil {
			m.logger.Warn("failed to update registry entry", "session", name, "error", err)
		}
	}
	m.logger.Error("session crashed", "session", name, "exit_code", exitCode, "retries", retries)
	m.bus.Publish(event.NewSessionCrashedEvent(name, exitCode, retries))
	m.fireHook(context.Background(), hooks.TriggerCrashed, sess.Info())
}

// writeEntry mirrors the session's current run into the registry. Registry
// failures degrade to a warning: the registry is cross-invocation
// visibility, not the source of truth for this invocation.
func (m *Manager) writeEntry(sess *session.Session) {
	if m.opts.Store == nil {
		return
	}
	cfg := sess.Config()
	info := sess.Info()
	entry := registry.Entry{
		Name:           cfg.Name,
		WorkDir:        cfg.WorkDir,
		PermissionMode: cfg.PermissionMode,
		Tags:           cfg.Tags,
		Restart:        cfg.Restart,
		PID:            info.PID,
		State:          info.State,
		StartedAt:      info.StartedAt,
	}
	if err := m.opts.Store.Upsert(entry); err != nil {
		m.logger.Warn("failed to write registry entry", "session", cfg.Name, "error", err)
	}
}

// fireHook runs lifecycle hooks when configured.
func (m *Manager) fireHook(ctx context.Context, trigger string, info session.Info) {
	if m.opts.Hooks == nil {
		return
	}
	m.opts.Hooks.Fire(ctx, trigger, info)
}
