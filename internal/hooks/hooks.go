// Package hooks runs user-configured commands on session lifecycle events.
// Hooks are best-effort notifications: failures and timeouts are logged,
// never propagated into the lifecycle operation that fired them.
package hooks

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/agentherd/agentherd/internal/logging"
	"github.com/agentherd/agentherd/internal/session"
)

// Lifecycle triggers.
const (
	TriggerStarted = "started"
	TriggerStopped = "stopped"
	TriggerCrashed = "crashed"
)

// Runner executes hook commands for lifecycle triggers.
type Runner struct {
	commands map[string][]string
	timeout  time.Duration
	logger   *logging.Logger
}

// Options configures a Runner.
type Options struct {
	// Started, Stopped, and Crashed each hold shell command lines, run one
	// at a time via "sh -c".
	Started []string
	Stopped []string
	Crashed []string
	// Timeout bounds each hook command.
	Timeout time.Duration
	Logger  *logging.Logger
}

// NewRunner creates a hook runner.
func NewRunner(opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Runner{
		commands: map[string][]string{
			TriggerStarted: opts.Started,
			TriggerStopped: opts.Stopped,
			TriggerCrashed: opts.Crashed,
		},
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}
}

// Fire runs every command configured for trigger, passing session context in
// the environment. Commands run sequentially; errors are logged and dropped.
func (r *Runner) Fire(ctx context.Context, trigger string, info session.Info) {
	if r == nil {
		return
	}
	for _, command := range r.commands[trigger] {
		if command == "" {
			continue
		}
		r.run(ctx, trigger, command, info)
	}
}

func (r *Runner) run(ctx context.Context, trigger, command string, info session.Info) {
	hctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(hctx, "sh", "-c", command)
	cmd.Env = append(cmd.Environ(),
		"AGENTHERD_EVENT="+trigger,
		"AGENTHERD_SESSION="+info.Name,
		"AGENTHERD_STATE="+info.State,
		"AGENTHERD_WORKDIR="+info.WorkDir,
		fmt.Sprintf("AGENTHERD_PID=%d", info.PID),
		fmt.Sprintf("AGENTHERD_EXIT_CODE=%d", info.LastExitCode),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		r.logger.Warn("hook failed",
			"trigger", trigger,
			"command", command,
			"session", info.Name,
			"error", err,
			"output", string(output),
		)
		return
	}
	r.logger.Debug("hook completed", "trigger", trigger, "command", command, "session", info.Name)
}
