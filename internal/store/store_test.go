package store

import (
	"context"
	"testing"

	"github.com/agentherd/agentherd/internal/errs"
)

func TestFileStore_SaveLoadDelete(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := fs.Save(ctx, "a/b", []byte(`{"x":1}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	data, err := fs.Load(ctx, "a/b")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(data) != `{"x":1}` {
		t.Errorf("unexpected data: %s", data)
	}

	ok, err := fs.Exists(ctx, "a/b")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v; want true", ok, err)
	}

	if err := fs.Delete(ctx, "a/b"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := fs.Load(ctx, "a/b"); !errs.Is(err, ErrNotFound) {
		t.Errorf("expected not-found after delete, got %v", err)
	}
	if err := fs.Delete(ctx, "a/b"); !errs.Is(err, ErrNotFound) {
		t.Errorf("double delete should be not-found, got %v", err)
	}
}

func TestFileStore_List(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, key := range []string{"templates/review", "templates/deploy", "history/build"} {
		if err := fs.Save(ctx, key, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := fs.List(ctx, "templates/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "templates/deploy" || keys[1] != "templates/review" {
		t.Errorf("unexpected keys: %v", keys)
	}
}

func TestTemplateStore_RoundTripAndRender(t *testing.T) {
	ts, err := NewTemplateStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	tmpl := Template{Name: "review", Text: "review the {{branch}} branch in {{repo}}"}
	if err := ts.Save(ctx, tmpl); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := ts.Get(ctx, "review")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Text != tmpl.Text {
		t.Errorf("text lost in round trip: %q", got.Text)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps should be set on save")
	}

	rendered := got.Render(map[string]string{"branch": "main", "repo": "agentherd"})
	if rendered != "review the main branch in agentherd" {
		t.Errorf("unexpected render: %q", rendered)
	}

	// Unknown placeholders stay visible.
	partial := got.Render(map[string]string{"branch": "main"})
	if partial != "review the main branch in {{repo}}" {
		t.Errorf("unknown placeholder should survive: %q", partial)
	}

	var notFound *errs.NotFoundError
	if _, err := ts.Get(ctx, "ghost"); !errs.As(err, &notFound) {
		t.Errorf("missing template should be a not-found error, got %v", err)
	}
}

func TestTemplateStore_List(t *testing.T) {
	ts, err := NewTemplateStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, name := range []string{"zeta", "alpha"} {
		if err := ts.Save(ctx, Template{Name: name, Text: name}); err != nil {
			t.Fatal(err)
		}
	}

	templates, err := ts.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(templates) != 2 || templates[0].Name != "alpha" || templates[1].Name != "zeta" {
		t.Errorf("unexpected template list: %+v", templates)
	}
}

func TestHistoryStore_AppendAndGet(t *testing.T) {
	hs, err := NewHistoryStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if entries, err := hs.Get(ctx, "build"); err != nil || len(entries) != 0 {
		t.Fatalf("fresh history should be empty: %v, %v", entries, err)
	}

	for _, prompt := range []string{"first", "second"} {
		if err := hs.Append(ctx, "build", HistoryEntry{Prompt: prompt, Response: "ok"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := hs.Get(ctx, "build")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Prompt != "first" || entries[1].Prompt != "second" {
		t.Errorf("unexpected history: %+v", entries)
	}

	if err := hs.Clear(ctx, "build"); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if entries, _ := hs.Get(ctx, "build"); len(entries) != 0 {
		t.Errorf("history should be empty after clear, got %d", len(entries))
	}
}
