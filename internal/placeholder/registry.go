package placeholder

import (
	"iter"
	"sort"
	"sync"

	"hillview/internal/capture"
)

// State tracks whether a placeholder's capture is still in flight.
type State string

const (
	StatePending State = "pending"
	StateError   State = "error"
)

// Entry is a provisional map/gallery marker for a capture whose real
// photo asset is not yet available.
type Entry struct {
	ID       string
	Location capture.Location
	State    State
}

// Registry maintains the currently visible provisional markers. All
// methods are safe for concurrent use; All serves a snapshot so callers
// never render while holding the lock.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Inject adds a pending entry at location keyed by id. Re-injecting an
// existing id overwrites its location and resets it to pending.
func (r *Registry) Inject(loc capture.Location, id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	r.entries[id] = Entry{ID: id, Location: loc, State: StatePending}
	r.mu.Unlock()
}

// Remove deletes the entry if present; no-op otherwise.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.entries, id)
	r.mu.Unlock()
}

// MarkError transitions an existing entry to the error state; no-op if
// the id is absent. Errored entries stay visible until an explicit
// Remove, so a failed capture is never silently dropped from the view.
func (r *Registry) MarkError(id string) {
	r.mu.Lock()
	if entry, ok := r.entries[id]; ok {
		entry.State = StateError
		r.entries[id] = entry
	}
	r.mu.Unlock()
}

// Get returns the entry for id.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[id]
	return entry, ok
}

// Len returns the number of visible placeholders.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// All returns a restartable sequence over a snapshot of the registry,
// ordered by id (capture ids sort chronologically). Mutations after the
// call are not reflected; re-query to observe them.
func (r *Registry) All() iter.Seq[Entry] {
	r.mu.Lock()
	snapshot := make([]Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		snapshot = append(snapshot, entry)
	}
	r.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })

	return func(yield func(Entry) bool) {
		for _, entry := range snapshot {
			if !yield(entry) {
				return
			}
		}
	}
}
