package session

import "time"

// State is the run-state of a session within one process lifetime.
// Transitions are monotonic per run: Starting → Running → {Stopping →
// Stopped | Crashed}. A restart begins a new run under the same name.
type State int

const (
	// StateStarting means the process has been requested but not confirmed.
	StateStarting State = iota
	// StateRunning means the process is confirmed alive.
	StateRunning
	// StateStopping means a graceful stop is in progress.
	StateStopping
	// StateStopped is terminal for a run: clean exit after a stop request.
	StateStopped
	// StateCrashed is terminal for a run: unexpected process exit.
	StateCrashed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// ParseState converts a state name back to a State. Unknown names map to
// StateStopped, the safest terminal interpretation for stale entries.
func ParseState(name string) State {
	switch name {
	case "starting":
		return StateStarting
	case "running":
		return StateRunning
	case "stopping":
		return StateStopping
	case "crashed":
		return StateCrashed
	default:
		return StateStopped
	}
}

// Terminal reports whether the state ends a run.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateCrashed
}

// RestartPolicy bounds automatic restarts after an unexpected exit.
// It is consulted by the manager only on crashes, never on requested stops.
type RestartPolicy struct {
	Enabled    bool `json:"enabled"`
	MaxRetries uint `json:"max_retries"`
}

// Config holds the immutable creation parameters of a session. It is
// supplied by the caller and consumed once at session creation; a restart
// reuses the same Config under the same name.
type Config struct {
	// Name uniquely identifies the session within a manager.
	Name string
	// WorkDir is the agent process working directory.
	WorkDir string
	// PermissionMode is passed through to the agent (e.g. "plan", "acceptEdits").
	PermissionMode string
	// SystemPrompt optionally augments the agent's system prompt.
	SystemPrompt string
	// Env are extra environment overrides for the agent process.
	Env map[string]string
	// Restart bounds automatic restarts after a crash.
	Restart RestartPolicy
	// Tags label the session for bulk operations (stop-by-tag).
	Tags []string
}

// HasTag reports whether the config carries the given tag.
func (c Config) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Info is a point-in-time snapshot of a session's observable state.
type Info struct {
	Name           string    `json:"name"`
	State          string    `json:"state"`
	PID            int       `json:"pid"`
	WorkDir        string    `json:"work_dir"`
	PermissionMode string    `json:"permission_mode,omitempty"`
	Tags           []string  `json:"tags,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastExitCode   int       `json:"last_exit_code"`
	PromptCount    uint64    `json:"prompt_count"`
}

// Metrics are derived read-only statistics for a session.
type Metrics struct {
	PromptCount        uint64        `json:"prompt_count"`
	AvgResponseTimeMs  int64         `json:"avg_response_time_ms"`
	TotalResponseChars int64         `json:"total_response_chars"`
	EstimatedTokens    int64         `json:"estimated_tokens"`
	Uptime             time.Duration `json:"uptime"`
}
