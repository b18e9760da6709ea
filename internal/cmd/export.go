package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentherd/agentherd/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export NAME",
	Short: "Export a session snapshot and transcript to a file",
	Long: `Export a session's current state, metrics, and full transcript as a
JSON document. State and metrics come from a running agentherd server;
the transcript is read from the local state directory.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

var exportOutput string

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output path (default NAME.json)")
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := args[0]

	payload, err := remoteClient(cfg).GetSession(cmd.Context(), name)
	if err != nil {
		return err
	}

	out := exportOutput
	if out == "" {
		out = name + ".json"
	}
	if err := export.Write(payload.Info, payload.Metrics, transcriptDir(cfg), out); err != nil {
		return err
	}
	fmt.Printf("exported %s to %s\n", name, out)
	return nil
}
