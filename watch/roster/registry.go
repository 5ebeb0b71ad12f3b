package roster

import (
	"sync"

	"github.com/wricardo/mcp-training/watchparty/watch/party"
)

// Registry tracks the participant bound to each registered connection
type Registry struct {
	entries map[string]party.Participant
	order   []string // connection IDs in first-registration order
	mu      sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]party.Participant),
	}
}

// Register binds p to connID, replacing any participant previously bound to
// the same connection without changing its position.
func (r *Registry) Register(connID string, p party.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[connID]; !exists {
		r.order = append(r.order, connID)
	}
	r.entries[connID] = p
}

// Unregister removes the participant bound to connID.
// It reports whether an entry was removed.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[connID]; !exists {
		return false
	}
	delete(r.entries, connID)

	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Lookup returns the participant bound to connID
func (r *Registry) Lookup(connID string) (party.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[connID]
	return p, ok
}

// Snapshot returns a copy of the roster in registration order
func (r *Registry) Snapshot() []party.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]party.Participant, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.entries[id])
	}
	return result
}

// Len returns the number of registered connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
