package store

import (
	"context"
	"time"

	"github.com/agentherd/agentherd/internal/errs"
)

// historyLimit caps entries retained per session; the oldest are dropped.
const historyLimit = 500

// HistoryEntry is one recorded prompt and its outcome.
type HistoryEntry struct {
	Prompt      string        `json:"prompt"`
	Response    string        `json:"response,omitempty"`
	Error       string        `json:"error,omitempty"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	SubmittedAt time.Time     `json:"submitted_at"`
}

// HistoryStore persists per-session prompt history.
type HistoryStore struct {
	fs *FileStore
}

// NewHistoryStore creates a history store under baseDir.
func NewHistoryStore(baseDir string) (*HistoryStore, error) {
	fs, err := NewFileStore(baseDir)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{fs: fs}, nil
}

// Append records one prompt outcome for the named session, trimming to the
// retention limit.
func (hs *HistoryStore) Append(ctx context.Context, sessionName string, entry HistoryEntry) error {
	if sessionName == "" {
		return errs.New("session name must not be empty")
	}
	entries, err := hs.Get(ctx, sessionName)
	if err != nil {
		return err
	}
	entries = append(entries, entry)
	if len(entries) > historyLimit {
		entries = entries[len(entries)-historyLimit:]
	}
	return saveJSON(ctx, hs.fs, "history/"+sessionName, entries)
}

// Get returns the recorded history for the named session, oldest first.
// A session with no history yields an empty slice.
func (hs *HistoryStore) Get(ctx context.Context, sessionName string) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	if err := loadJSON(ctx, hs.fs, "history/"+sessionName, &entries); err != nil {
		if errs.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

// Clear removes the named session's history.
func (hs *HistoryStore) Clear(ctx context.Context, sessionName string) error {
	if err := hs.fs.Delete(ctx, "history/"+sessionName); err != nil && !errs.Is(err, ErrNotFound) {
		return err
	}
	return nil
}
