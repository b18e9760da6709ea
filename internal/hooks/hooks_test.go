package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/agentherd/agentherd/internal/session"
)

func TestFire_RunsConfiguredCommand(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "fired")

	r := NewRunner(Options{
		Started: []string{"echo \"$AGENTHERD_EVENT $AGENTHERD_SESSION\" > " + marker},
		Timeout: 5 * time.Second,
	})

	r.Fire(context.Background(), TriggerStarted, session.Info{Name: "build", State: "running"})

	data, err := os.ReadFile(marker)
	if err != nil {
		t.Fatalf("hook did not run: %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != "started build" {
		t.Errorf("hook environment wrong: %q", got)
	}
}

func TestFire_FailureDoesNotPropagate(t *testing.T) {
	r := NewRunner(Options{
		Crashed: []string{"exit 3"},
		Timeout: 5 * time.Second,
	})

	// Must not panic or block; failures are logged and dropped.
	r.Fire(context.Background(), TriggerCrashed, session.Info{Name: "build"})
}

func TestFire_UnconfiguredTriggerIsNoop(t *testing.T) {
	r := NewRunner(Options{})
	r.Fire(context.Background(), TriggerStopped, session.Info{Name: "build"})
}

func TestFire_NilRunner(t *testing.T) {
	var r *Runner
	r.Fire(context.Background(), TriggerStarted, session.Info{Name: "build"})
}
