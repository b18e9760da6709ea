package registry

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/agentherd/agentherd/internal/errs"
	"github.com/agentherd/agentherd/internal/event"
	"github.com/agentherd/agentherd/internal/logging"
)

// Watcher publishes registry.updated events when the document changes on
// disk, so long-lived consumers (TUI, dashboard) notice mutations made by
// other invocations.
type Watcher struct {
	registry *Registry
	bus      *event.Bus
	logger   *logging.Logger
	fw       *fsnotify.Watcher
}

// NewWatcher creates a watcher over reg's document, publishing to bus.
func NewWatcher(reg *Registry, bus *event.Bus, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(err, "failed to create registry watcher")
	}
	dir := filepath.Dir(reg.Path())
	if err := os.MkdirAll(dir, 0755); err != nil {
		fw.Close()
		return nil, errs.Wrapf(err, "failed to create registry directory %s", dir)
	}
	// Watch the directory, not the file: atomic saves replace the document
	// by rename, which drops a watch placed on the file itself.
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, errs.Wrapf(err, "failed to watch registry directory for %s", reg.Path())
	}
	return &Watcher{registry: reg, bus: bus, logger: logger, fw: fw}, nil
}

// Run consumes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fw.Close()
	target := filepath.Clean(w.registry.Path())
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("registry document changed", "op", ev.Op.String())
			w.bus.Publish(event.NewRegistryUpdatedEvent(target))
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("registry watch error", "error", err)
		}
	}
}
