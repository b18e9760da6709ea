// Package export reads and exports session transcripts: bounded dumps for
// the logs command and export files combining session metadata with the raw
// transcript.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpcloud/tail"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/session"
)

// TranscriptPath returns the transcript file for a session name.
func TranscriptPath(transcriptDir, name string) string {
	return filepath.Join(transcriptDir, name+".log")
}

// Tail returns up to n trailing lines of the session's transcript.
func Tail(transcriptDir, name string, n int) ([]string, error) {
	data, err := os.ReadFile(TranscriptPath(transcriptDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFoundError("transcript", name)
		}
		return nil, errs.Wrapf(err, "failed to read transcript for '%s'", name)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// Follow streams transcript lines to out until ctx is cancelled, picking up
// new output as the session writes it.
func Follow(ctx context.Context, transcriptDir, name string, out io.Writer) error {
	path := TranscriptPath(transcriptDir, name)
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: false,
		Logger:    stdlog.New(io.Discard, "", 0),
	})
	if err != nil {
		return errs.Wrapf(err, "failed to follow transcript for '%s'", name)
	}
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-t.Lines:
			if !ok {
				return nil
			}
			if line.Err != nil {
				continue
			}
			fmt.Fprintln(out, line.Text)
		}
	}
}

// Document is the exported form of one session.
type Document struct {
	Info       session.Info    `json:"info"`
	Metrics    session.Metrics `json:"metrics"`
	Transcript string          `json:"transcript"`
}

// Write exports the session's snapshot and transcript as indented JSON to
// path.
func Write(info session.Info, metrics session.Metrics, transcriptDir, path string) error {
	transcript, err := os.ReadFile(TranscriptPath(transcriptDir, info.Name))
	if err != nil && !os.IsNotExist(err) {
		return errs.Wrapf(err, "failed to read transcript for '%s'", info.Name)
	}

	doc := Document{Info: info, Metrics: metrics, Transcript: string(transcript)}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(err, "failed to marshal export document")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errs.Wrapf(err, "failed to write export to %s", path)
	}
	return nil
}
