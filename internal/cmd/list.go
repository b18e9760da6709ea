package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions",
	Long: `List sessions. By default this reads the durable registry, which shows
sessions from every invocation, including crashed ones kept for
inspection. With --live the list comes from a running server instead and
includes prompt metrics.`,
	RunE: runList,
}

var (
	listLive bool
	listJSON bool
)

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listLive, "live", false, "query a running agentherd server")
	listCmd.Flags().BoolVar(&listJSON, "json", false, "output JSON")
}

func runList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if listLive || remoteAddr != "" {
		sessions, err := remoteClient(cfg).ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if listJSON {
			return printJSON(sessions)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tPID\tWORKDIR\tPROMPTS\tAVG MS")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\n",
				s.Name, s.State, s.PID, s.WorkDir, s.Metrics.PromptCount, s.Metrics.AvgResponseTimeMs)
		}
		return w.Flush()
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.close()

	doc, err := rt.reg.Snapshot()
	if err != nil {
		return err
	}
	entries := make([]string, 0, len(doc.Sessions))
	for name := range doc.Sessions {
		entries = append(entries, name)
	}
	sort.Strings(entries)

	if listJSON {
		return printJSON(doc.Sessions)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tPID\tWORKDIR\tTAGS\tSTARTED")
	for _, name := range entries {
		e := doc.Sessions[name]
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
			e.Name, e.State, e.PID, e.WorkDir, strings.Join(e.Tags, ","),
			e.StartedAt.Format("2006-01-02 15:04:05"))
	}
	return w.Flush()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
