package router

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/proc"
	"github.com/agentherd/agentherd/internal/session"
)

// syncBuffer is a goroutine-safe terminal sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestSession(t *testing.T, name string) (*session.Session, *proc.FakeHandle) {
	t.Helper()
	h := proc.NewFakeHandle()
	h.TermOnSignal = true
	s := session.New(session.Config{Name: name}, session.Options{
		AgentCommand:  "claude",
		PromptTimeout: time.Second,
		IdleQuiet:     20 * time.Millisecond,
		ShutdownGrace: time.Second,
		NewHandle:     func(spec proc.Spec) proc.Handle { return h },
	})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return s, h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestAttach_NoHandleFailsWithoutListeners(t *testing.T) {
	s := session.New(session.Config{Name: "idle"}, session.Options{AgentCommand: "claude"})
	before := s.Bus().SubscriptionCount()

	r := New(strings.NewReader(""), &syncBuffer{}, nil)
	err := r.Attach(s)
	if err == nil {
		t.Fatal("attach to a session without a live process must fail")
	}
	if !errs.Is(err, errs.ErrNoProcessHandle) {
		t.Errorf("expected no-handle error, got %v", err)
	}
	if got := s.Bus().SubscriptionCount(); got != before {
		t.Errorf("failed attach must not leave listeners: before=%d after=%d", before, got)
	}
	if r.ActiveSession() != "" {
		t.Errorf("no session should be active, got %q", r.ActiveSession())
	}
}

func TestAttach_PipesOutputToTerminal(t *testing.T) {
	s, h := newTestSession(t, "build")
	out := &syncBuffer{}
	r := New(strings.NewReader(""), out, nil)

	if err := r.Attach(s); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if r.ActiveSession() != "build" {
		t.Errorf("expected active session 'build', got %q", r.ActiveSession())
	}

	h.EmitOutput("agent says hi\n")
	waitFor(t, "output to reach terminal", func() bool {
		return strings.Contains(out.String(), "agent says hi")
	})
}

func TestAttach_ReplaysScrollback(t *testing.T) {
	s, h := newTestSession(t, "build")

	h.EmitOutput("earlier output\n")
	waitFor(t, "scrollback capture", func() bool { return len(s.Scrollback()) > 0 })

	out := &syncBuffer{}
	r := New(strings.NewReader(""), out, nil)
	if err := r.Attach(s); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if !strings.Contains(out.String(), "earlier output") {
		t.Errorf("attach should replay scrollback, terminal shows %q", out.String())
	}
}

func TestAttach_PipesTerminalInputToProcess(t *testing.T) {
	s, h := newTestSession(t, "build")
	inR, inW := io.Pipe()
	r := New(inR, &syncBuffer{}, nil)

	if err := r.Attach(s); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	defer r.Detach()

	if _, err := inW.Write([]byte("ls -la\r")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "input to reach process", func() bool {
		return strings.Contains(h.InputString(), "ls -la\r")
	})
}

func TestDetach_RemovesEveryListener(t *testing.T) {
	s, _ := newTestSession(t, "build")
	before := s.Bus().SubscriptionCount()

	r := New(strings.NewReader(""), &syncBuffer{}, nil)
	if err := r.Attach(s); err != nil {
		t.Fatalf("Attach failed: %v", err)
	}
	if got := s.Bus().SubscriptionCount(); got <= before {
		t.Fatalf("attach should add listeners: before=%d after=%d", before, got)
	}

	if err := r.Detach(); err != nil {
		t.Fatalf("Detach failed: %v", err)
	}
	if got := s.Bus().SubscriptionCount(); got != before {
		t.Errorf("detach must remove every listener it added: before=%d after=%d", before, got)
	}
	if r.ActiveSession() != "" {
		t.Errorf("no session should be active after detach, got %q", r.ActiveSession())
	}
}

func TestDetach_WithoutAttachment(t *testing.T) {
	r := New(strings.NewReader(""), &syncBuffer{}, nil)
	if err := r.Detach(); !errs.Is(err, errs.ErrNotAttached) {
		t.Errorf("expected not-attached error, got %v", err)
	}
}

func TestAttach_SecondSessionDetachesFirst(t *testing.T) {
	first, _ := newTestSession(t, "first")
	second, _ := newTestSession(t, "second")
	firstBaseline := first.Bus().SubscriptionCount()

	r := New(strings.NewReader(""), &syncBuffer{}, nil)
	if err := r.Attach(first); err != nil {
		t.Fatal(err)
	}
	if err := r.Attach(second); err != nil {
		t.Fatal(err)
	}

	if r.ActiveSession() != "second" {
		t.Errorf("expected active session 'second', got %q", r.ActiveSession())
	}
	if got := first.Bus().SubscriptionCount(); got != firstBaseline {
		t.Errorf("first session should have no leftover listeners: before=%d after=%d", firstBaseline, got)
	}
}

func TestAttach_AutoDetachOnProcessExit(t *testing.T) {
	s, h := newTestSession(t, "build")
	baseline := s.Bus().SubscriptionCount()

	r := New(strings.NewReader(""), &syncBuffer{}, nil)
	if err := r.Attach(s); err != nil {
		t.Fatal(err)
	}

	h.Exit(0)
	waitFor(t, "auto-detach after exit", func() bool { return r.ActiveSession() == "" })
	waitFor(t, "listeners removed after exit", func() bool {
		return s.Bus().SubscriptionCount() == baseline
	})
}

func TestDetachKey(t *testing.T) {
	s, h := newTestSession(t, "build")
	inR, inW := io.Pipe()
	r := New(inR, &syncBuffer{}, nil)

	if err := r.Attach(s); err != nil {
		t.Fatal(err)
	}

	// Text before the detach key still reaches the process.
	if _, err := inW.Write([]byte("bye" + string(rune(0x1d)))); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "detach via key", func() bool { return r.ActiveSession() == "" })
	if got := h.InputString(); got != "bye" {
		t.Errorf("input before detach key should reach the process, got %q", got)
	}
	if s.State() != session.StateRunning {
		t.Errorf("detach must not stop the session, got %s", s.State())
	}
}
