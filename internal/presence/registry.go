// Package presence keeps the in-memory mapping of online users to their live
// connection. Nothing here is persisted: the registry starts empty on every
// process start and is rebuilt as clients reconnect.
package presence

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Registry maps a user id to at most one live handle.
// A newer connection for the same user replaces the older one; the registry
// never notifies or closes the superseded handle.
type Registry struct {
	// Map of userID -> current connection handle
	entries map[string]*Handle

	mu sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Handle),
	}
}

// SetOnline unconditionally upserts the entry for userID.
func (r *Registry) SetOnline(userID string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[userID] = h
}

// SetOffline removes the entry for userID if there is one.
func (r *Registry) SetOffline(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, userID)
}

// Release removes the entry for userID only while it still points at h.
// Disconnects must go through Release so that closing a superseded
// connection leaves the user's current connection registered.
func (r *Registry) Release(userID string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[userID]
	if !ok || current != h {
		return false
	}
	delete(r.entries, userID)
	return true
}

func (r *Registry) Lookup(userID string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.entries[userID]
	return h, ok
}

// SnapshotIDs returns the ids of all online users, sorted.
func (r *Registry) SnapshotIDs() []string {
	r.mu.RLock()
	ids := lo.Keys(r.entries)
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
