package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentherd/agentherd/internal/export"
)

var logsCmd = &cobra.Command{
	Use:   "logs NAME",
	Short: "Show a session's transcript",
	Long: `Show the recorded transcript of a session. Transcripts are written by
the owning invocation as the agent produces output, so logs works whether
the session is still running or has already stopped.

Examples:
  agentherd logs build
  agentherd logs build -n 50
  agentherd logs build -f`,
	Args: cobra.ExactArgs(1),
	RunE: runLogs,
}

var (
	logsLines  int
	logsFollow bool
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().IntVarP(&logsLines, "lines", "n", 100, "number of trailing lines to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "keep streaming new output")
}

func runLogs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := args[0]
	dir := transcriptDir(cfg)

	lines, err := export.Tail(dir, name, logsLines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		fmt.Println(line)
	}

	if !logsFollow {
		return nil
	}
	err = export.Follow(cmd.Context(), dir, name, os.Stdout)
	if err == cmd.Context().Err() {
		return nil
	}
	return err
}
