// Package event defines the notification types that decouple the session
// core from its consumers (CLI, TUI, dashboard, hooks). Events are published
// on two levels: the manager bus carries session lifecycle events, and each
// session's own bus carries prompt and stream events for that session.
package event

import "time"

// Event type identifiers. Convention: "category.action".
const (
	TypeSessionStarted = "session.started"
	TypeSessionStopped = "session.stopped"
	TypeSessionCrashed = "session.crashed"

	TypePromptStarted   = "prompt.started"
	TypePromptCompleted = "prompt.completed"
	TypePromptErrored   = "prompt.errored"
	TypeSessionData     = "session.data"
	TypeProcessExited   = "process.exited"

	TypeRegistryUpdated = "registry.updated"
)

// Event is implemented by every notification payload.
type Event interface {
	// EventType returns the type identifier, e.g. "session.started".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// baseEvent provides the common fields; embed it in concrete events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{eventType: eventType, timestamp: time.Now()}
}

// SessionStartedEvent is published by the manager when a session reaches Running.
type SessionStartedEvent struct {
	baseEvent
	SessionName string
	PID         int
	WorkDir     string
}

// NewSessionStartedEvent creates a SessionStartedEvent.
func NewSessionStartedEvent(name string, pid int, workDir string) SessionStartedEvent {
	return SessionStartedEvent{
		baseEvent:   newBaseEvent(TypeSessionStarted),
		SessionName: name,
		PID:         pid,
		WorkDir:     workDir,
	}
}

// SessionStoppedEvent is published by the manager after a graceful stop.
type SessionStoppedEvent struct {
	baseEvent
	SessionName string
	ExitCode    int
}

// NewSessionStoppedEvent creates a SessionStoppedEvent.
func NewSessionStoppedEvent(name string, exitCode int) SessionStoppedEvent {
	return SessionStoppedEvent{
		baseEvent:   newBaseEvent(TypeSessionStopped),
		SessionName: name,
		ExitCode:    exitCode,
	}
}

// SessionCrashedEvent is published exactly once per terminal crash, after
// restart retries (if any) are exhausted. Retried crashes are absorbed
// silently by the manager's restart policy.
type SessionCrashedEvent struct {
	baseEvent
	SessionName string
	ExitCode    int
	Retries     uint
}

// NewSessionCrashedEvent creates a SessionCrashedEvent.
func NewSessionCrashedEvent(name string, exitCode int, retries uint) SessionCrashedEvent {
	return SessionCrashedEvent{
		baseEvent:   newBaseEvent(TypeSessionCrashed),
		SessionName: name,
		ExitCode:    exitCode,
		Retries:     retries,
	}
}

// PromptStartedEvent is published on a session's bus when a prompt is
// accepted and written to the process.
type PromptStartedEvent struct {
	baseEvent
	SessionName string
	Prompt      string
}

// NewPromptStartedEvent creates a PromptStartedEvent.
func NewPromptStartedEvent(name, prompt string) PromptStartedEvent {
	return PromptStartedEvent{
		baseEvent:   newBaseEvent(TypePromptStarted),
		SessionName: name,
		Prompt:      prompt,
	}
}

// PromptCompletedEvent carries the full correlated response text.
type PromptCompletedEvent struct {
	baseEvent
	SessionName string
	Response    string
	Elapsed     time.Duration
}

// NewPromptCompletedEvent creates a PromptCompletedEvent.
func NewPromptCompletedEvent(name, response string, elapsed time.Duration) PromptCompletedEvent {
	return PromptCompletedEvent{
		baseEvent:   newBaseEvent(TypePromptCompleted),
		SessionName: name,
		Response:    response,
		Elapsed:     elapsed,
	}
}

// PromptErroredEvent is published when a pending prompt fails (timeout or
// process exit while waiting).
type PromptErroredEvent struct {
	baseEvent
	SessionName string
	Err         error
}

// NewPromptErroredEvent creates a PromptErroredEvent.
func NewPromptErroredEvent(name string, err error) PromptErroredEvent {
	return PromptErroredEvent{
		baseEvent:   newBaseEvent(TypePromptErrored),
		SessionName: name,
		Err:         err,
	}
}

// SessionDataEvent carries one chunk of raw process output.
type SessionDataEvent struct {
	baseEvent
	SessionName string
	Chunk       []byte
}

// NewSessionDataEvent creates a SessionDataEvent.
func NewSessionDataEvent(name string, chunk []byte) SessionDataEvent {
	return SessionDataEvent{
		baseEvent:   newBaseEvent(TypeSessionData),
		SessionName: name,
		Chunk:       chunk,
	}
}

// ProcessExitedEvent is published on a session's bus when the underlying
// process exits, whether or not the exit was requested.
type ProcessExitedEvent struct {
	baseEvent
	SessionName string
	ExitCode    int
	Requested   bool
}

// NewProcessExitedEvent creates a ProcessExitedEvent.
func NewProcessExitedEvent(name string, exitCode int, requested bool) ProcessExitedEvent {
	return ProcessExitedEvent{
		baseEvent:   newBaseEvent(TypeProcessExited),
		SessionName: name,
		ExitCode:    exitCode,
		Requested:   requested,
	}
}

// RegistryUpdatedEvent is published by the registry watcher when the durable
// document changes on disk (possibly by another invocation).
type RegistryUpdatedEvent struct {
	baseEvent
	Path string
}

// NewRegistryUpdatedEvent creates a RegistryUpdatedEvent.
func NewRegistryUpdatedEvent(path string) RegistryUpdatedEvent {
	return RegistryUpdatedEvent{
		baseEvent: newBaseEvent(TypeRegistryUpdated),
		Path:      path,
	}
}
