package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentherd/agentherd/internal/store"
)

var promptCmd = &cobra.Command{
	Use:   "prompt NAME [TEXT...]",
	Short: "Send a prompt to a session and print the response",
	Long: `Send a prompt to a session on a running agentherd server and wait for
the correlated response. The prompt text can be given inline or rendered
from a saved template.

Examples:
  agentherd prompt build "run the test suite"
  agentherd prompt build --template review --var branch=main`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrompt,
}

var (
	promptTemplate string
	promptVars     []string
)

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVar(&promptTemplate, "template", "", "render the prompt from a saved template")
	promptCmd.Flags().StringArrayVar(&promptVars, "var", nil, "template variable as key=value (repeatable)")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := args[0]

	text := strings.Join(args[1:], " ")
	if promptTemplate != "" {
		templates, err := store.NewTemplateStore(cfg.Paths.StateDir)
		if err != nil {
			return err
		}
		tmpl, err := templates.Get(cmd.Context(), promptTemplate)
		if err != nil {
			return err
		}
		values := make(map[string]string, len(promptVars))
		for _, kv := range promptVars {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid --var %q, want key=value", kv)
			}
			values[key] = value
		}
		text = tmpl.Render(values)
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("prompt text is required (inline or via --template)")
	}

	history, err := store.NewHistoryStore(cfg.Paths.StateDir)
	if err != nil {
		return err
	}

	submittedAt := time.Now()
	response, perr := remoteClient(cfg).SendPrompt(cmd.Context(), name, text)

	entry := store.HistoryEntry{
		Prompt:      text,
		Response:    response,
		Elapsed:     time.Since(submittedAt),
		SubmittedAt: submittedAt,
	}
	if perr != nil {
		entry.Error = perr.Error()
	}
	if herr := history.Append(cmd.Context(), name, entry); herr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to record history: %v\n", herr)
	}

	if perr != nil {
		return perr
	}
	fmt.Print(response)
	if !strings.HasSuffix(response, "\n") {
		fmt.Println()
	}
	return nil
}
