package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/logging"
)

// Registry provides load-modify-save access to the session registry
// document. Every mutation holds the advisory lock for the full cycle, so
// concurrent invocations never lose each other's writes.
type Registry struct {
	path     string
	lockWait time.Duration
	logger   *logging.Logger
	nowFn    func() time.Time
}

// Options configures a Registry.
type Options struct {
	// LockWait bounds how long mutations wait for the advisory lock.
	LockWait time.Duration
	Logger   *logging.Logger
}

// New creates a Registry over the document at path.
func New(path string, opts Options) *Registry {
	if opts.LockWait <= 0 {
		opts.LockWait = 5 * time.Second
	}
	return &Registry{
		path:     path,
		lockWait: opts.LockWait,
		logger:   opts.Logger,
		nowFn:    time.Now,
	}
}

// Path returns the document path.
func (r *Registry) Path() string { return r.path }

// lockPath is the advisory lock file beside the document.
func (r *Registry) lockPath() string { return r.path + ".lock" }

// Load reads and validates the registry document. A missing file yields an
// empty document; unparseable or mis-shaped content yields a CorruptError,
// never a silently empty registry.
func (r *Registry) Load() (*Document, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewDocument(), nil
		}
		return nil, errs.Wrapf(err, "failed to read registry at %s", r.path)
	}
	if err := validateShape(raw); err != nil {
		return nil, errs.NewCorruptError(r.path, err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errs.NewCorruptError(r.path, err)
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string]Entry)
	}
	return &doc, nil
}

// Save writes the document atomically (temp file + rename in the same
// directory). Callers must hold the advisory lock; use Mutate for the full
// cycle.
func (r *Registry) Save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(err, "failed to marshal registry")
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return errs.Wrap(err, "failed to create registry directory")
	}
	return atomicWriteFile(r.path, data, 0644)
}

// Mutate runs fn over the current document under the advisory lock and
// persists the result. fn returning an error aborts without saving.
func (r *Registry) Mutate(fn func(doc *Document) error) error {
	// The lock file lives beside the document, so the directory must exist
	// before the first acquisition.
	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return errs.Wrap(err, "failed to create registry directory")
	}
	lock, err := acquireLock(r.lockPath(), r.lockWait, r.logger)
	if err != nil {
		return err
	}
	defer lock.release()

	doc, err := r.Load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return r.Save(doc)
}

// Snapshot returns a lock-free point-in-time read of the document. The copy
// may be stale the moment it returns; use Mutate for read-modify-write.
func (r *Registry) Snapshot() (*Document, error) {
	return r.Load()
}

// Upsert inserts or replaces the entry for entry.Name.
func (r *Registry) Upsert(entry Entry) error {
	return r.Mutate(func(doc *Document) error {
		entry.UpdatedAt = r.nowFn()
		doc.Sessions[entry.Name] = entry
		return nil
	})
}

// Remove deletes the named entry. Removing an absent entry is an
// ErrEntryNotFound.
func (r *Registry) Remove(name string) error {
	return r.Mutate(func(doc *Document) error {
		if _, ok := doc.Sessions[name]; !ok {
			return errs.Wrapf(errs.ErrEntryNotFound, "registry entry '%s'", name)
		}
		delete(doc.Sessions, name)
		return nil
	})
}

// UpdateState rewrites the run-state and PID of the named entry in place.
// Used by the crash policy: a crashed entry persists for inspection rather
// than being removed.
func (r *Registry) UpdateState(name, state string, pid int) error {
	return r.Mutate(func(doc *Document) error {
		entry, ok := doc.Sessions[name]
		if !ok {
			return errs.Wrapf(errs.ErrEntryNotFound, "registry entry '%s'", name)
		}
		entry.State = state
		entry.PID = pid
		entry.UpdatedAt = r.nowFn()
		doc.Sessions[name] = entry
		return nil
	})
}

// atomicWriteFile writes data to path via a temp file in the same directory
// followed by rename, so readers never observe a partial document.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}
