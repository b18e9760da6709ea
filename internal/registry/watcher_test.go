package registry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentherd/agentherd/internal/event"
)

func TestWatcher_PublishesOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	reg := New(path, Options{LockWait: time.Second})

	bus := event.NewBus()
	updated := make(chan event.Event, 4)
	bus.Subscribe(event.TypeRegistryUpdated, func(e event.Event) {
		updated <- e
	})

	w, err := NewWatcher(reg, bus, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// Give the watch a moment to establish before mutating.
	time.Sleep(50 * time.Millisecond)

	if err := reg.Upsert(Entry{Name: "build", WorkDir: "/tmp/build", State: "running"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	select {
	case e := <-updated:
		ev, ok := e.(event.RegistryUpdatedEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", e)
		}
		if ev.Path != filepath.Clean(path) {
			t.Errorf("event path = %q, want %q", ev.Path, path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no registry.updated event after save")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	reg := New(filepath.Join(dir, "registry.json"), Options{LockWait: time.Second})

	bus := event.NewBus()
	updated := make(chan event.Event, 4)
	bus.Subscribe(event.TypeRegistryUpdated, func(e event.Event) {
		updated <- e
	})

	w, err := NewWatcher(reg, bus, nil)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	time.Sleep(50 * time.Millisecond)

	other := New(filepath.Join(dir, "other.json"), Options{LockWait: time.Second})
	if err := other.Upsert(Entry{Name: "x", State: "running"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	select {
	case e := <-updated:
		t.Fatalf("unexpected event for unrelated file: %v", e)
	case <-time.After(200 * time.Millisecond):
	}
}
