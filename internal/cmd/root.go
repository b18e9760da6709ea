// Package cmd implements the agentherd command line interface.
package cmd

import (
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentherd/agentherd/internal/config"
	"github.com/agentherd/agentherd/internal/hooks"
	"github.com/agentherd/agentherd/internal/logging"
	"github.com/agentherd/agentherd/internal/manager"
	"github.com/agentherd/agentherd/internal/registry"
	"github.com/agentherd/agentherd/internal/remote"
	"github.com/agentherd/agentherd/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "agentherd",
	Short: "Supervise long-running interactive agent sessions",
	Long: `Agentherd runs named agent sessions as supervised processes: it spawns
each agent under a pseudo-terminal, correlates prompts with responses,
restarts crashed sessions per policy, and records every session in a
durable registry shared across invocations.`,
	SilenceUsage: true,
}

var (
	cfgFile    string
	remoteAddr string
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is $HOME/.config/agentherd/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&remoteAddr, "remote", "",
		"address of a running agentherd server (default from dashboard.addr)")
}

// loadConfig reads the effective configuration for this invocation.
func loadConfig() (*config.Config, error) {
	return config.LoadFrom(cfgFile)
}

// newLogger builds the structured logger from config.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(cfg.Logging.Path, cfg.Logging.Level)
}

// transcriptDir is where per-session transcripts live.
func transcriptDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.StateDir, "sessions")
}

// remoteClient builds a client for the configured or overridden server.
func remoteClient(cfg *config.Config) *remote.Client {
	addr := remoteAddr
	if addr == "" {
		addr = "http://" + cfg.Dashboard.Addr
	}
	return remote.New(addr)
}

// runtime bundles the pieces of one session-owning invocation.
type runtime struct {
	cfg    *config.Config
	logger *logging.Logger
	mgr    *manager.Manager
	reg    *registry.Registry
}

// newRuntime wires a manager with registry persistence and hooks from cfg.
func newRuntime(cfg *config.Config) (*runtime, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	reg := registry.New(cfg.Registry.Path, registry.Options{
		LockWait: cfg.LockWait(),
		Logger:   logger,
	})

	hookRunner := hooks.NewRunner(hooks.Options{
		Started: cfg.Hooks.SessionStarted,
		Stopped: cfg.Hooks.SessionStopped,
		Crashed: cfg.Hooks.SessionCrashed,
		Timeout: time.Duration(cfg.Hooks.TimeoutSeconds) * time.Second,
		Logger:  logger,
	})

	mgr := manager.New(manager.Options{
		Session: session.Options{
			AgentCommand:   cfg.Agent.Command,
			AgentArgs:      cfg.Agent.Args,
			TermWidth:      cfg.Agent.TermWidth,
			TermHeight:     cfg.Agent.TermHeight,
			PromptTimeout:  cfg.PromptTimeout(),
			IdleQuiet:      cfg.IdleQuiet(),
			ShutdownGrace:  cfg.ShutdownGrace(),
			ScrollbackSize: cfg.Session.OutputBufferSize,
			TranscriptDir:  transcriptDir(cfg),
		},
		Store:  reg,
		Hooks:  hookRunner,
		Logger: logger,
	})

	return &runtime{cfg: cfg, logger: logger, mgr: mgr, reg: reg}, nil
}

// close flushes the runtime's log sink.
func (rt *runtime) close() {
	_ = rt.logger.Close()
}
