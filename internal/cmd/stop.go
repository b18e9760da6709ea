package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop [NAME]",
	Short: "Stop a session on a running agentherd server",
	Long: `Stop a named session, or every session carrying a tag, on a running
agentherd server. Sessions are owned by the process that started them, so
stop always goes through the server API.

Examples:
  agentherd stop build
  agentherd stop --tag ci`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStop,
}

var stopTag string

func init() {
	rootCmd.AddCommand(stopCmd)
	stopCmd.Flags().StringVar(&stopTag, "tag", "", "stop every session carrying this tag")
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client := remoteClient(cfg)

	if stopTag != "" {
		sessions, err := client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		stopped := 0
		for _, s := range sessions {
			if !hasTag(s.Tags, stopTag) {
				continue
			}
			if err := client.StopSession(cmd.Context(), s.Name); err != nil {
				return err
			}
			fmt.Printf("stopped %s\n", s.Name)
			stopped++
		}
		fmt.Printf("%d session(s) stopped\n", stopped)
		return nil
	}

	if len(args) != 1 {
		return fmt.Errorf("a session name or --tag is required")
	}
	if err := client.StopSession(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("stopped %s\n", args[0])
	return nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
