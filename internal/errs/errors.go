// Package errs provides centralized error definitions for agentherd.
// It defines the supervision error taxonomy (not-found, already-exists,
// spawn-failed, busy, prompt-timeout, registry corruption and locking),
// constructors with context wrapping, and classification helpers.
//
// Creating errors:
//
//	err := errs.NewNotFoundError("session", "build-agent")
//	err := errs.NewPromptTimeoutError("build-agent", prompt, 30*time.Second)
//
// Checking errors:
//
//	if errs.Is(err, errs.ErrSessionNotFound) { ... }
//
//	var timeoutErr *errs.PromptTimeoutError
//	if errs.As(err, &timeoutErr) { ... }
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Re-export standard library functions for convenience, so callers can
// import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Session-related sentinel errors.
var (
	// ErrSessionNotFound indicates an operation addressed an unknown session name.
	ErrSessionNotFound = New("session not found")
	// ErrSessionExists indicates a create collided with an existing session name.
	ErrSessionExists = New("session already exists")
	// ErrSessionNotRunning indicates an operation that requires a live process.
	ErrSessionNotRunning = New("session not running")
	// ErrPromptBusy indicates a prompt was submitted while another is in flight.
	ErrPromptBusy = New("prompt already in flight")
	// ErrPromptTimeout indicates no completion was observed within the window.
	ErrPromptTimeout = New("prompt timed out")
	// ErrSpawnFailed indicates the underlying agent process could not be launched.
	ErrSpawnFailed = New("process spawn failed")
)

// Registry-related sentinel errors.
var (
	// ErrRegistryCorrupt indicates the registry document is unreadable or malformed.
	ErrRegistryCorrupt = New("registry corrupt")
	// ErrRegistryLocked indicates the advisory lock could not be acquired in time.
	ErrRegistryLocked = New("registry locked")
	// ErrEntryNotFound indicates a registry entry does not exist.
	ErrEntryNotFound = New("registry entry not found")
)

// Router-related sentinel errors.
var (
	// ErrNoProcessHandle indicates a session has no live process stream to attach to.
	ErrNoProcessHandle = New("session has no process handle")
	// ErrNotAttached indicates a detach with no active attachment.
	ErrNotAttached = New("no session attached")
)

// baseError provides common functionality for the typed errors below.
type baseError struct {
	message string
	cause   error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// NotFoundError represents a named resource that could not be found.
//
//	err := errs.NewNotFoundError("session", "build-agent")
//	fmt.Println(err) // session 'build-agent' not found
type NotFoundError struct {
	baseError
	ResourceType string
	Name         string
}

// NewNotFoundError creates a NotFoundError for the given resource.
func NewNotFoundError(resourceType, name string) *NotFoundError {
	return &NotFoundError{
		baseError:    baseError{message: fmt.Sprintf("%s '%s' not found", resourceType, name)},
		ResourceType: resourceType,
		Name:         name,
	}
}

// WithCause adds a cause to the error.
func (e *NotFoundError) WithCause(cause error) *NotFoundError {
	e.cause = cause
	return e
}

func (e *NotFoundError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s '%s' not found: %v", e.ResourceType, e.Name, e.cause)
	}
	return fmt.Sprintf("%s '%s' not found", e.ResourceType, e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	if _, ok := target.(*NotFoundError); ok {
		return true
	}
	if errors.Is(target, ErrSessionNotFound) && e.ResourceType == "session" {
		return true
	}
	return e.baseError.Is(target)
}

// AlreadyExistsError represents a named resource that already exists.
type AlreadyExistsError struct {
	baseError
	ResourceType string
	Name         string
}

// NewAlreadyExistsError creates an AlreadyExistsError for the given resource.
func NewAlreadyExistsError(resourceType, name string) *AlreadyExistsError {
	return &AlreadyExistsError{
		baseError:    baseError{message: fmt.Sprintf("%s '%s' already exists", resourceType, name)},
		ResourceType: resourceType,
		Name:         name,
	}
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.ResourceType, e.Name)
}

func (e *AlreadyExistsError) Is(target error) bool {
	if _, ok := target.(*AlreadyExistsError); ok {
		return true
	}
	if errors.Is(target, ErrSessionExists) && e.ResourceType == "session" {
		return true
	}
	return e.baseError.Is(target)
}

// SpawnError represents a failure to launch the underlying agent process.
type SpawnError struct {
	baseError
	SessionName string
	Command     string
}

// NewSpawnError creates a SpawnError for the given session and command.
func NewSpawnError(sessionName, command string, cause error) *SpawnError {
	return &SpawnError{
		baseError:   baseError{message: "failed to spawn process", cause: cause},
		SessionName: sessionName,
		Command:     command,
	}
}

func (e *SpawnError) Error() string {
	msg := fmt.Sprintf("spawn error [session=%s, command=%s]: %s", e.SessionName, e.Command, e.message)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *SpawnError) Is(target error) bool {
	if _, ok := target.(*SpawnError); ok {
		return true
	}
	if errors.Is(target, ErrSpawnFailed) {
		return true
	}
	return e.baseError.Is(target)
}

// BusyError represents a prompt rejected because one is already in flight.
// The pending prompt is not cancelled; the new one is never queued.
type BusyError struct {
	baseError
	SessionName string
}

// NewBusyError creates a BusyError for the given session.
func NewBusyError(sessionName string) *BusyError {
	return &BusyError{
		baseError:   baseError{message: "a prompt is already in flight"},
		SessionName: sessionName,
	}
}

func (e *BusyError) Error() string {
	return fmt.Sprintf("session '%s' busy: %s", e.SessionName, e.message)
}

func (e *BusyError) Is(target error) bool {
	if _, ok := target.(*BusyError); ok {
		return true
	}
	if errors.Is(target, ErrPromptBusy) {
		return true
	}
	return e.baseError.Is(target)
}

// PromptTimeoutError represents a prompt whose completion was not observed
// within the configured window. It carries the original prompt text so the
// caller can retry or report it; the underlying process is left running.
type PromptTimeoutError struct {
	baseError
	SessionName string
	Prompt      string
	Timeout     time.Duration
}

// NewPromptTimeoutError creates a PromptTimeoutError.
func NewPromptTimeoutError(sessionName, prompt string, timeout time.Duration) *PromptTimeoutError {
	return &PromptTimeoutError{
		baseError:   baseError{message: "no response within timeout"},
		SessionName: sessionName,
		Prompt:      prompt,
		Timeout:     timeout,
	}
}

func (e *PromptTimeoutError) Error() string {
	return fmt.Sprintf("prompt timeout [session=%s, timeout=%s]: %s", e.SessionName, e.Timeout, e.message)
}

func (e *PromptTimeoutError) Is(target error) bool {
	if _, ok := target.(*PromptTimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrPromptTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// CorruptError represents a registry document that cannot be parsed or whose
// shape does not match the expected structure. Callers decide whether to
// treat this as fatal or to reinitialize the document.
type CorruptError struct {
	baseError
	Path string
}

// NewCorruptError creates a CorruptError for the document at path.
func NewCorruptError(path string, cause error) *CorruptError {
	return &CorruptError{
		baseError: baseError{message: "registry document corrupt", cause: cause},
		Path:      path,
	}
}

func (e *CorruptError) Error() string {
	msg := fmt.Sprintf("registry corrupt [path=%s]", e.Path)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *CorruptError) Is(target error) bool {
	if _, ok := target.(*CorruptError); ok {
		return true
	}
	if errors.Is(target, ErrRegistryCorrupt) {
		return true
	}
	return e.baseError.Is(target)
}

// LockError represents an advisory lock that could not be acquired within
// the bounded wait. It identifies the locked path and, when known, the
// holder's PID.
type LockError struct {
	baseError
	Path      string
	HolderPID int
}

// NewLockError creates a LockError for the lock at path.
func NewLockError(path string, holderPID int, cause error) *LockError {
	return &LockError{
		baseError: baseError{message: "advisory lock not acquired", cause: cause},
		Path:      path,
		HolderPID: holderPID,
	}
}

func (e *LockError) Error() string {
	msg := fmt.Sprintf("registry lock failed [path=%s]", e.Path)
	if e.HolderPID > 0 {
		msg = fmt.Sprintf("%s: held by PID %d", msg, e.HolderPID)
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.cause)
	}
	return msg
}

func (e *LockError) Is(target error) bool {
	if _, ok := target.(*LockError); ok {
		return true
	}
	if errors.Is(target, ErrRegistryLocked) {
		return true
	}
	return e.baseError.Is(target)
}

// IsRetryable reports whether the error represents a transient condition
// that may succeed on retry. Lock contention and prompt timeouts qualify;
// corruption and duplicate names do not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Is(err, ErrRegistryLocked) || Is(err, ErrPromptTimeout) || Is(err, ErrPromptBusy)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
