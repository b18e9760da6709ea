package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var attachCmd = &cobra.Command{
	Use:   "attach NAME",
	Short: "Attach the terminal to a session on a running server",
	Long: `Attach this terminal to a session on a running agentherd server. Output
streams live; keystrokes go to the agent. Detach with Ctrl-] without
stopping the session.`,
	Args: cobra.ExactArgs(1),
	RunE: runAttach,
}

func init() {
	rootCmd.AddCommand(attachCmd)
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	name := args[0]

	if isatty.IsTerminal(os.Stdin.Fd()) {
		oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
		if err != nil {
			return err
		}
		defer func() { _ = term.Restore(int(os.Stdin.Fd()), oldState) }()
	}

	fmt.Printf("attaching to %s (Ctrl-] to detach)\r\n", name)
	return remoteClient(cfg).Attach(cmd.Context(), name, &detachReader{r: os.Stdin}, os.Stdout)
}

// detachReader ends the input stream when it reads Ctrl-].
type detachReader struct {
	r io.Reader
}

func (d *detachReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	for i := 0; i < n; i++ {
		if p[i] == 0x1d {
			return i, io.EOF
		}
	}
	return n, err
}
