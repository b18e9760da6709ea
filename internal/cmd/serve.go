package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/agentherd/agentherd/internal/dashboard"
	"github.com/agentherd/agentherd/internal/registry"
	"github.com/agentherd/agentherd/internal/session"
	"github.com/agentherd/agentherd/internal/tui"
)

var serveCmd = &cobra.Command{
	Use:   "serve [NAME...]",
	Short: "Run the agentherd server",
	Long: `Run the agentherd server: a long-lived manager that owns sessions and
exposes the HTTP/websocket API other invocations use for stop, prompt,
attach, and live listing. Names given as arguments are started
immediately.

Examples:
  agentherd serve
  agentherd serve build review --workdir ~/repo
  agentherd serve --tui`,
	RunE: runServe,
}

var (
	serveWorkDir string
	serveTUI     bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveWorkDir, "workdir", "w", "", "working directory for sessions started at boot (default: current)")
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "show the interactive session view")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	workDir := serveWorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return err
		}
	}
	for _, name := range args {
		if _, err := rt.mgr.StartSession(ctx, session.Config{Name: name, WorkDir: workDir}); err != nil {
			return err
		}
		fmt.Printf("started session %s\n", name)
	}

	// Refresh listeners when another invocation mutates the registry.
	watcher, err := registry.NewWatcher(rt.reg, rt.mgr.Bus(), rt.logger)
	if err != nil {
		return err
	}
	go watcher.Run(ctx)

	srv := dashboard.New(cfg.Dashboard.Addr, rt.mgr, rt.logger)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.Run(ctx) }()
	fmt.Printf("serving on http://%s\n", cfg.Dashboard.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if serveTUI {
		tuiErr := make(chan error, 1)
		go func() { tuiErr <- tui.Run(rt.mgr) }()
		select {
		case err := <-tuiErr:
			if err != nil {
				return err
			}
		case <-sigCh:
		case err := <-srvErr:
			if err != nil {
				return err
			}
		}
	} else {
		select {
		case <-sigCh:
		case err := <-srvErr:
			if err != nil {
				return err
			}
		}
	}

	fmt.Println("shutting down")
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace()+cfg.ShutdownGrace())
	defer stopCancel()
	return rt.mgr.StopAll(stopCtx)
}
