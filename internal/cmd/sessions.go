package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentherd/agentherd/internal/store"
	"github.com/agentherd/agentherd/internal/util"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage saved prompt templates",
	Long: `Manage saved prompt templates. Templates hold reusable prompt text with
{{name}} placeholders, filled at send time via prompt --template --var.`,
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := openTemplates()
		if err != nil {
			return err
		}
		all, err := templates.List(cmd.Context())
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tUPDATED\tTEXT")
		for _, t := range all {
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				t.Name, t.UpdatedAt.Format("2006-01-02 15:04:05"), truncate(t.Text, 60))
		}
		return w.Flush()
	},
}

var templateSaveCmd = &cobra.Command{
	Use:   "save NAME TEXT...",
	Short: "Save or replace a template",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := openTemplates()
		if err != nil {
			return err
		}
		tmpl := store.Template{Name: args[0], Text: strings.Join(args[1:], " ")}
		if err := templates.Save(cmd.Context(), tmpl); err != nil {
			return err
		}
		fmt.Printf("saved template %s\n", tmpl.Name)
		return nil
	},
}

var templateShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Print a template's text",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := openTemplates()
		if err != nil {
			return err
		}
		tmpl, err := templates.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(tmpl.Text)
		return nil
	},
}

var templateDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		templates, err := openTemplates()
		if err != nil {
			return err
		}
		if err := templates.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted template %s\n", args[0])
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history NAME",
	Short: "Show the prompt history of a session",
	Long: `Show the prompts sent to a session and their outcomes, oldest first.
History is recorded locally by the prompt command.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var (
	historyClear bool
	historyJSON  bool
)

func init() {
	rootCmd.AddCommand(templateCmd)
	templateCmd.AddCommand(templateListCmd, templateSaveCmd, templateShowCmd, templateDeleteCmd)

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete the session's history")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "output JSON")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	history, err := store.NewHistoryStore(cfg.Paths.StateDir)
	if err != nil {
		return err
	}
	name := args[0]

	if historyClear {
		if err := history.Clear(cmd.Context(), name); err != nil {
			return err
		}
		fmt.Printf("cleared history for %s\n", name)
		return nil
	}

	entries, err := history.Get(cmd.Context(), name)
	if err != nil {
		return err
	}
	if historyJSON {
		return printJSON(entries)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBMITTED\tELAPSED\tPROMPT\tOUTCOME")
	for _, e := range entries {
		outcome := truncate(e.Response, 40)
		if e.Error != "" {
			outcome = "error: " + truncate(e.Error, 40)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.SubmittedAt.Format("2006-01-02 15:04:05"),
			e.Elapsed.Round(time.Millisecond), truncate(e.Prompt, 40), outcome)
	}
	return w.Flush()
}

func openTemplates() (*store.TemplateStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return store.NewTemplateStore(cfg.Paths.StateDir)
}

func truncate(s string, max int) string {
	return util.TruncateString(strings.ReplaceAll(s, "\n", " "), max)
}
