package session

import "sync"

// scrollback is a fixed-capacity byte ring holding the most recent process
// output, served to late subscribers (dashboard, TUI) that missed the live
// data events.
type scrollback struct {
	mu    sync.RWMutex
	data  []byte
	start int
	end   int
	full  bool
}

func newScrollback(capacity int) *scrollback {
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	return &scrollback{data: make([]byte, capacity)}
}

// Write appends p, evicting the oldest bytes once the ring is full.
func (r *scrollback) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := len(r.data)
	for _, b := range p {
		r.data[r.end] = b
		r.end = (r.end + 1) % size
		if r.full {
			r.start = (r.start + 1) % size
		}
		if r.end == r.start {
			r.full = true
		}
	}
	return len(p), nil
}

// Bytes returns a copy of the buffered output, oldest first.
func (r *scrollback) Bytes() []byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full && r.end >= r.start {
		return append([]byte(nil), r.data[r.start:r.end]...)
	}
	out := make([]byte, 0, len(r.data))
	out = append(out, r.data[r.start:]...)
	out = append(out, r.data[:r.end]...)
	return out
}
