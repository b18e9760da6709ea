package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentherd/agentherd/internal/remote"
	"github.com/agentherd/agentherd/internal/router"
	"github.com/agentherd/agentherd/internal/session"
)

var startCmd = &cobra.Command{
	Use:   "start NAME",
	Short: "Start a supervised agent session",
	Long: `Start a named agent session. Without --remote the session runs in this
process, which stays in the foreground as its owner until interrupted.
With --remote the session is started on a running agentherd server.

Examples:
  # Run a session in the foreground and attach the terminal to it
  agentherd start build --workdir ~/repo --attach

  # Start a session with restart-on-crash, up to 3 retries
  agentherd start ci --workdir ~/repo --restart --max-retries 3

  # Start a session on a running server
  agentherd start build --workdir ~/repo --remote http://127.0.0.1:7610`,
	Args: cobra.ExactArgs(1),
	RunE: runStart,
}

var (
	startWorkDir        string
	startPermissionMode string
	startSystemPrompt   string
	startTags           []string
	startRestart        bool
	startMaxRetries     uint
	startAttach         bool
)

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVarP(&startWorkDir, "workdir", "w", "", "working directory for the agent (default: current)")
	startCmd.Flags().StringVar(&startPermissionMode, "permission-mode", "", "agent permission mode")
	startCmd.Flags().StringVar(&startSystemPrompt, "system-prompt", "", "extra system prompt for the agent")
	startCmd.Flags().StringArrayVarP(&startTags, "tag", "t", nil, "tag for group operations (repeatable)")
	startCmd.Flags().BoolVar(&startRestart, "restart", false, "restart the session if it crashes")
	startCmd.Flags().UintVar(&startMaxRetries, "max-retries", 3, "restart attempts before giving up")
	startCmd.Flags().BoolVar(&startAttach, "attach", false, "attach the terminal to the session")
}

func runStart(cmd *cobra.Command, args []string) error {
	name := args[0]
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	workDir := startWorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return err
		}
	}
	policy := session.RestartPolicy{Enabled: startRestart, MaxRetries: startMaxRetries}

	if remoteAddr != "" {
		payload, err := remoteClient(cfg).StartSession(cmd.Context(), remote.StartRequest{
			Name:           name,
			WorkDir:        workDir,
			PermissionMode: startPermissionMode,
			SystemPrompt:   startSystemPrompt,
			Tags:           startTags,
			Restart:        policy,
		})
		if err != nil {
			return err
		}
		fmt.Printf("started session %s (pid %d) on %s\n", payload.Name, payload.PID, remoteAddr)
		return nil
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	sess, err := rt.mgr.StartSession(cmd.Context(), session.Config{
		Name:           name,
		WorkDir:        workDir,
		PermissionMode: startPermissionMode,
		SystemPrompt:   startSystemPrompt,
		Tags:           startTags,
		Restart:        policy,
	})
	if err != nil {
		return err
	}
	fmt.Printf("started session %s (pid %d)\n", name, sess.PID())

	if startAttach {
		r := router.New(os.Stdin, os.Stdout, rt.logger)
		if err := r.Attach(sess); err != nil {
			return err
		}
		defer func() { _ = r.Detach() }()
	}

	// Foreground ownership: wait for interrupt, then stop everything.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nshutting down")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace()+cfg.ShutdownGrace())
	defer cancel()
	return rt.mgr.StopAll(ctx)
}
