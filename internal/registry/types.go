// Package registry implements the durable session registry: one JSON
// document shared by every agentherd invocation, mutated with a
// load-modify-save cycle under an advisory file lock.
//
// The registry records metadata only. Process streams belong to the
// invocation that spawned them; another invocation reads the registry to
// see what exists, not to reattach.
package registry

import (
	"time"

	"github.com/agentherd/agentherd/internal/session"
)

// DocumentVersion is the current on-disk format version.
const DocumentVersion = 1

// Entry is one session's registry record.
type Entry struct {
	Name           string                `json:"name"`
	WorkDir        string                `json:"work_dir"`
	PermissionMode string                `json:"permission_mode,omitempty"`
	Tags           []string              `json:"tags,omitempty"`
	Restart        session.RestartPolicy `json:"restart"`
	PID            int                   `json:"pid"`
	State          string                `json:"state"`
	StartedAt      time.Time             `json:"started_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// Document is the full registry file.
type Document struct {
	Version  int              `json:"version"`
	Sessions map[string]Entry `json:"sessions"`
}

// NewDocument returns an empty document at the current version.
func NewDocument() *Document {
	return &Document{
		Version:  DocumentVersion,
		Sessions: make(map[string]Entry),
	}
}
