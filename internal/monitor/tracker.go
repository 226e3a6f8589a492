package monitor

import "sync"

// Tracker holds the last known availability per target URL.
//
// The polling loop is the only writer. The mutex exists for Snapshot readers.
// Entries are never removed; an absent entry reads as unavailable.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]bool
}

func NewTracker() *Tracker {
	return &Tracker{last: map[string]bool{}}
}

func (t *Tracker) Available(url string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last[url]
}

// Observe records the current availability and reports whether it is an
// unavailable→available edge.
func (t *Tracker) Observe(url string, available bool) (edge bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.last[url]
	t.last[url] = available
	return available && !prev
}

func (t *Tracker) Snapshot() map[string]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]bool, len(t.last))
	for k, v := range t.last {
		out[k] = v
	}
	return out
}
