// Package config loads agentherd configuration with viper: built-in
// defaults, an optional config.yaml in the user config directory, and
// AGENTHERD_* environment overrides, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete agentherd configuration.
type Config struct {
	Agent     AgentConfig     `mapstructure:"agent"`
	Session   SessionConfig   `mapstructure:"session"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
	Hooks     HooksConfig     `mapstructure:"hooks"`
	Paths     PathsConfig     `mapstructure:"paths"`
}

// AgentConfig describes how to launch the supervised agent process.
type AgentConfig struct {
	// Command is the agent executable to spawn for each session.
	Command string `mapstructure:"command"`
	// Args are extra arguments passed to every spawned agent.
	Args []string `mapstructure:"args"`
	// TermWidth/TermHeight size the pseudo-terminal the agent runs in.
	TermWidth  int `mapstructure:"term_width"`
	TermHeight int `mapstructure:"term_height"`
}

// SessionConfig controls prompt correlation and shutdown behavior.
type SessionConfig struct {
	// PromptTimeoutSeconds bounds how long SendPrompt waits for a response.
	PromptTimeoutSeconds int `mapstructure:"prompt_timeout_seconds"`
	// IdleQuietMs is the output-silence window treated as response completion.
	IdleQuietMs int `mapstructure:"idle_quiet_ms"`
	// ShutdownGraceSeconds is how long Stop waits after SIGTERM before SIGKILL.
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
	// OutputBufferSize caps the in-memory scrollback per session, in bytes.
	OutputBufferSize int `mapstructure:"output_buffer_size"`
}

// RegistryConfig locates the durable session registry.
type RegistryConfig struct {
	// Path of the registry document. Empty means <user config dir>/agentherd/registry.json.
	Path string `mapstructure:"path"`
	// LockWaitMs bounds advisory lock acquisition.
	LockWaitMs int `mapstructure:"lock_wait_ms"`
}

// LoggingConfig controls the structured log sink.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level"`
	// Path of the JSON log file. Empty logs to stderr.
	Path string `mapstructure:"path"`
}

// DashboardConfig controls the optional HTTP/websocket dashboard.
type DashboardConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:7610".
	Addr string `mapstructure:"addr"`
}

// HooksConfig maps lifecycle events to external commands, run best-effort.
type HooksConfig struct {
	SessionStarted []string `mapstructure:"session_started"`
	SessionStopped []string `mapstructure:"session_stopped"`
	SessionCrashed []string `mapstructure:"session_crashed"`
	// TimeoutSeconds bounds each hook invocation.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// PathsConfig overrides storage locations.
type PathsConfig struct {
	// StateDir holds transcripts, templates, and prompt history.
	// Empty means <user config dir>/agentherd.
	StateDir string `mapstructure:"state_dir"`
}

// PromptTimeout returns the prompt timeout as a duration.
func (c *Config) PromptTimeout() time.Duration {
	return time.Duration(c.Session.PromptTimeoutSeconds) * time.Second
}

// IdleQuiet returns the completion idle window as a duration.
func (c *Config) IdleQuiet() time.Duration {
	return time.Duration(c.Session.IdleQuietMs) * time.Millisecond
}

// ShutdownGrace returns the graceful shutdown deadline as a duration.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.Session.ShutdownGraceSeconds) * time.Second
}

// LockWait returns the registry lock acquisition bound as a duration.
func (c *Config) LockWait() time.Duration {
	return time.Duration(c.Registry.LockWaitMs) * time.Millisecond
}

// DefaultStateDir returns the per-user state directory.
func DefaultStateDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "agentherd")
	}
	return filepath.Join(base, "agentherd")
}

// setDefaults installs the built-in defaults on a viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("agent.command", "claude")
	v.SetDefault("agent.args", []string{})
	v.SetDefault("agent.term_width", 200)
	v.SetDefault("agent.term_height", 50)

	v.SetDefault("session.prompt_timeout_seconds", 120)
	v.SetDefault("session.idle_quiet_ms", 1500)
	v.SetDefault("session.shutdown_grace_seconds", 10)
	v.SetDefault("session.output_buffer_size", 262144)

	v.SetDefault("registry.path", "")
	v.SetDefault("registry.lock_wait_ms", 5000)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.path", "")

	v.SetDefault("dashboard.addr", "127.0.0.1:7610")

	v.SetDefault("hooks.timeout_seconds", 15)
}

// Load reads the configuration. Missing config files are not an error; a
// malformed file is.
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom reads the configuration from an explicit file path, or from the
// default locations when path is empty.
func LoadFrom(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTHERD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(DefaultStateDir())
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyFallbacks(&cfg)
	return &cfg, nil
}

// applyFallbacks fills computed defaults that depend on the environment.
func applyFallbacks(cfg *Config) {
	if cfg.Paths.StateDir == "" {
		cfg.Paths.StateDir = DefaultStateDir()
	}
	if cfg.Registry.Path == "" {
		cfg.Registry.Path = filepath.Join(cfg.Paths.StateDir, "registry.json")
	}
}

// Default returns the built-in configuration without touching the filesystem.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of pure defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	applyFallbacks(&cfg)
	return &cfg
}
