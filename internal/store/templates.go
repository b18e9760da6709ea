package store

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
)

// Template is a reusable prompt with named placeholders in {{name}} form.
type Template struct {
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Render substitutes placeholder values into the template text. Unknown
// placeholders are left intact so missing values are visible.
func (t Template) Render(values map[string]string) string {
	out := t.Text
	for name, value := range values {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}

// TemplateStore persists prompt templates.
type TemplateStore struct {
	fs *FileStore
}

// NewTemplateStore creates a template store under baseDir.
func NewTemplateStore(baseDir string) (*TemplateStore, error) {
	fs, err := NewFileStore(baseDir)
	if err != nil {
		return nil, err
	}
	return &TemplateStore{fs: fs}, nil
}

// Save inserts or replaces a template by name.
func (ts *TemplateStore) Save(ctx context.Context, tmpl Template) error {
	if tmpl.Name == "" {
		return errs.New("template name must not be empty")
	}
	now := time.Now()
	if tmpl.CreatedAt.IsZero() {
		if existing, err := ts.Get(ctx, tmpl.Name); err == nil {
			tmpl.CreatedAt = existing.CreatedAt
		} else {
			tmpl.CreatedAt = now
		}
	}
	tmpl.UpdatedAt = now
	return saveJSON(ctx, ts.fs, "templates/"+tmpl.Name, tmpl)
}

// Get loads a template by name.
func (ts *TemplateStore) Get(ctx context.Context, name string) (Template, error) {
	var tmpl Template
	if err := loadJSON(ctx, ts.fs, "templates/"+name, &tmpl); err != nil {
		if errs.Is(err, ErrNotFound) {
			return Template{}, errs.NewNotFoundError("template", name)
		}
		return Template{}, err
	}
	return tmpl, nil
}

// Delete removes a template by name.
func (ts *TemplateStore) Delete(ctx context.Context, name string) error {
	if err := ts.fs.Delete(ctx, "templates/"+name); err != nil {
		if errs.Is(err, ErrNotFound) {
			return errs.NewNotFoundError("template", name)
		}
		return err
	}
	return nil
}

// List returns every stored template, sorted by name.
func (ts *TemplateStore) List(ctx context.Context) ([]Template, error) {
	keys, err := ts.fs.List(ctx, "templates/")
	if err != nil {
		return nil, err
	}
	templates := make([]Template, 0, len(keys))
	for _, key := range keys {
		var tmpl Template
		if err := loadJSON(ctx, ts.fs, key, &tmpl); err != nil {
			continue
		}
		templates = append(templates, tmpl)
	}
	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, nil
}
