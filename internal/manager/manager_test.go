package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/event"
	"github.com/agentherd/agentherd/internal/proc"
	"github.com/agentherd/agentherd/internal/registry"
	"github.com/agentherd/agentherd/internal/session"
)

// fakeStore records registry calls for inspection.
type fakeStore struct {
	mu           sync.Mutex
	entries      map[string]registry.Entry
	removes      []string
	stateUpdates []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]registry.Entry)}
}

func (s *fakeStore) Upsert(entry registry.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Name] = entry
	return nil
}

func (s *fakeStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return errs.ErrEntryNotFound
	}
	delete(s.entries, name)
	s.removes = append(s.removes, name)
	return nil
}

func (s *fakeStore) UpdateState(name, state string, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	if !ok {
		return errs.ErrEntryNotFound
	}
	entry.State = state
	entry.PID = pid
	s.entries[name] = entry
	s.stateUpdates = append(s.stateUpdates, name+"="+state)
	return nil
}

func (s *fakeStore) entry(name string) (registry.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[name]
	return entry, ok
}

// handleSource hands out fresh fake handles and exposes them to the test.
type handleSource struct {
	mu      sync.Mutex
	handles []*proc.FakeHandle
	created chan *proc.FakeHandle
}

func newHandleSource() *handleSource {
	return &handleSource{created: make(chan *proc.FakeHandle, 16)}
}

func (hs *handleSource) factory(spec proc.Spec) proc.Handle {
	h := proc.NewFakeHandle()
	h.TermOnSignal = true
	hs.mu.Lock()
	h.FakePID = 1000 + len(hs.handles)
	hs.handles = append(hs.handles, h)
	hs.mu.Unlock()
	hs.created <- h
	return h
}

func (hs *handleSource) next(t *testing.T) *proc.FakeHandle {
	t.Helper()
	select {
	case h := <-hs.created:
		return h
	case <-time.After(2 * time.Second):
		t.Fatal("no process handle was created")
		return nil
	}
}

func testManager(store Store) (*Manager, *handleSource) {
	hs := newHandleSource()
	m := New(Options{
		Session: session.Options{
			AgentCommand:  "claude",
			PromptTimeout: time.Second,
			IdleQuiet:     20 * time.Millisecond,
			ShutdownGrace: time.Second,
			NewHandle:     hs.factory,
		},
		Store: store,
	})
	return m, hs
}

func TestStartSession_DuplicateNameFails(t *testing.T) {
	m, hs := testManager(nil)

	if _, err := m.StartSession(context.Background(), session.Config{Name: "build"}); err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	hs.next(t)

	_, err := m.StartSession(context.Background(), session.Config{Name: "build"})
	if err == nil {
		t.Fatal("second start with the same name must fail")
	}
	if !errs.Is(err, errs.ErrSessionExists) {
		t.Errorf("expected already-exists error, got %v", err)
	}
	if len(m.ListSessions()) != 1 {
		t.Errorf("failed duplicate must not add a session, have %d", len(m.ListSessions()))
	}
}

func TestStartSession_SpawnFailureNotTracked(t *testing.T) {
	m := New(Options{
		Session: session.Options{
			AgentCommand: "claude",
			NewHandle: func(spec proc.Spec) proc.Handle {
				h := proc.NewFakeHandle()
				h.StartErr = errs.New("no such file")
				return h
			},
		},
	})

	if _, err := m.StartSession(context.Background(), session.Config{Name: "build"}); err == nil {
		t.Fatal("start should fail when spawn fails")
	}
	// The name is free again after the failed start.
	if _, err := m.GetSession("build"); !errs.Is(err, errs.ErrSessionNotFound) {
		t.Errorf("failed start must not leave a tracked session, got %v", err)
	}
}

func TestStopSession_UnknownNameNotFound(t *testing.T) {
	m, _ := testManager(nil)

	err := m.StopSession(context.Background(), "ghost")
	if err == nil {
		t.Fatal("stopping an unknown session must fail")
	}
	if !errs.Is(err, errs.ErrSessionNotFound) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestStopSession_RemovesSessionAndEntry(t *testing.T) {
	store := newFakeStore()
	m, hs := testManager(store)

	if _, err := m.StartSession(context.Background(), session.Config{Name: "build"}); err != nil {
		t.Fatal(err)
	}
	hs.next(t)
	if _, ok := store.entry("build"); !ok {
		t.Fatal("start should write a registry entry")
	}

	var stopped []event.SessionStoppedEvent
	m.Bus().Subscribe(event.TypeSessionStopped, func(e event.Event) {
		stopped = append(stopped, e.(event.SessionStoppedEvent))
	})

	if err := m.StopSession(context.Background(), "build"); err != nil {
		t.Fatalf("StopSession failed: %v", err)
	}
	if _, err := m.GetSession("build"); !errs.Is(err, errs.ErrSessionNotFound) {
		t.Error("session should be untracked after stop")
	}
	if _, ok := store.entry("build"); ok {
		t.Error("registry entry should be removed after stop")
	}
	if len(stopped) != 1 {
		t.Errorf("expected 1 session.stopped event, got %d", len(stopped))
	}
}

func TestRestartPolicy_RetriesThenSingleCrashedEvent(t *testing.T) {
	store := newFakeStore()
	m, hs := testManager(store)

	crashed := make(chan event.SessionCrashedEvent, 8)
	m.Bus().Subscribe(event.TypeSessionCrashed, func(e event.Event) {
		crashed <- e.(event.SessionCrashedEvent)
	})

	cfg := session.Config{
		Name:    "build",
		Restart: session.RestartPolicy{Enabled: true, MaxRetries: 2},
	}
	if _, err := m.StartSession(context.Background(), cfg); err != nil {
		t.Fatal(err)
	}

	// Three runs: the initial one plus two policy restarts. Each crash of a
	// non-final run spawns a fresh handle with a new PID.
	run1 := hs.next(t)
	run1.Exit(1)
	run2 := hs.next(t)
	if run2 == run1 {
		t.Fatal("restart must spawn a new process")
	}
	select {
	case ev := <-crashed:
		t.Fatalf("crash within retry budget must not publish session.crashed: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	run2.Exit(1)
	run3 := hs.next(t)
	run3.Exit(1)

	// Retries exhausted: exactly one crashed event, with the retry count.
	select {
	case ev := <-crashed:
		if ev.Retries != 2 {
			t.Errorf("crashed event should carry retry count 2, got %d", ev.Retries)
		}
		if ev.ExitCode != 1 {
			t.Errorf("crashed event should carry exit code 1, got %d", ev.ExitCode)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a session.crashed event after retries exhausted")
	}
	select {
	case ev := <-crashed:
		t.Fatalf("session.crashed must be published exactly once, got another: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	// The crashed entry persists for inspection, updated in place.
	entry, ok := store.entry("build")
	if !ok {
		t.Fatal("crashed session's registry entry must persist")
	}
	if entry.State != session.StateCrashed.String() {
		t.Errorf("registry entry should be crashed, got %s", entry.State)
	}

	// The session remains tracked and inspectable.
	info, err := m.GetSessionInfo("build")
	if err != nil {
		t.Fatalf("crashed session should remain tracked: %v", err)
	}
	if info.State != session.StateCrashed.String() {
		t.Errorf("expected crashed state, got %s", info.State)
	}
}

func TestRestartPolicy_DisabledCrashesImmediately(t *testing.T) {
	m, hs := testManager(nil)

	crashed := make(chan event.SessionCrashedEvent, 1)
	m.Bus().Subscribe(event.TypeSessionCrashed, func(e event.Event) {
		crashed <- e.(event.SessionCrashedEvent)
	})

	if _, err := m.StartSession(context.Background(), session.Config{Name: "build"}); err != nil {
		t.Fatal(err)
	}
	hs.next(t).Exit(2)

	select {
	case ev := <-crashed:
		if ev.Retries != 0 {
			t.Errorf("expected 0 retries, got %d", ev.Retries)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected session.crashed with restart disabled")
	}
}

func TestStopAll_StopsEverySession(t *testing.T) {
	m, hs := testManager(nil)

	for _, name := range []string{"a", "b", "c"} {
		if _, err := m.StartSession(context.Background(), session.Config{Name: name}); err != nil {
			t.Fatal(err)
		}
		hs.next(t)
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
	if n := len(m.ListSessions()); n != 0 {
		t.Errorf("expected no tracked sessions after StopAll, got %d", n)
	}
}

func TestStopByTag(t *testing.T) {
	m, hs := testManager(nil)

	configs := []session.Config{
		{Name: "ci-1", Tags: []string{"ci"}},
		{Name: "ci-2", Tags: []string{"ci", "nightly"}},
		{Name: "dev", Tags: []string{"dev"}},
	}
	for _, cfg := range configs {
		if _, err := m.StartSession(context.Background(), cfg); err != nil {
			t.Fatal(err)
		}
		hs.next(t)
	}

	n, err := m.StopByTag(context.Background(), "ci")
	if err != nil {
		t.Fatalf("StopByTag failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 sessions stopped, got %d", n)
	}
	infos := m.ListSessions()
	if len(infos) != 1 || infos[0].Name != "dev" {
		t.Errorf("only 'dev' should remain, got %+v", infos)
	}
}

func TestListSessions_SortedSnapshots(t *testing.T) {
	m, hs := testManager(nil)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if _, err := m.StartSession(context.Background(), session.Config{Name: name}); err != nil {
			t.Fatal(err)
		}
		hs.next(t)
	}

	infos := m.ListSessions()
	want := []string{"alpha", "bravo", "charlie"}
	if len(infos) != len(want) {
		t.Fatalf("expected %d sessions, got %d", len(want), len(infos))
	}
	for i, name := range want {
		if infos[i].Name != name {
			t.Errorf("position %d: want %s, got %s", i, name, infos[i].Name)
		}
		if infos[i].State != session.StateRunning.String() {
			t.Errorf("%s should be running, got %s", name, infos[i].State)
		}
	}
}

// hookRecorder captures fired lifecycle triggers.
type hookRecorder struct {
	mu    sync.Mutex
	fired []string
}

func (h *hookRecorder) Fire(ctx context.Context, trigger string, info session.Info) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fired = append(h.fired, trigger+":"+info.Name)
}

func (h *hookRecorder) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.fired...)
}

func TestHooks_FireOnLifecycle(t *testing.T) {
	rec := &hookRecorder{}
	hs := newHandleSource()
	m := New(Options{
		Session: session.Options{
			AgentCommand:  "claude",
			ShutdownGrace: time.Second,
			NewHandle:     hs.factory,
		},
		Hooks: rec,
	})

	if _, err := m.StartSession(context.Background(), session.Config{Name: "build"}); err != nil {
		t.Fatal(err)
	}
	hs.next(t)
	if err := m.StopSession(context.Background(), "build"); err != nil {
		t.Fatal(err)
	}

	got := rec.snapshot()
	want := []string{"started:build", "stopped:build"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("unexpected hook sequence: %v", got)
	}
}
