package registry

import (
	"sort"
	"sync"

	"github.com/matheus3301/hive/internal/protocol"
)

// Transport is one live client connection.
type Transport interface {
	// ID is unique per connection, not per identity.
	ID() string
	UserID() string
	// Send enqueues a frame without blocking. It fails when the connection
	// is closed or its send queue is full.
	Send(protocol.Frame) error
	// Close terminates the connection. Safe to call more than once.
	Close(reason string)
}

// Registry maps an identity to its single live transport.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Transport
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{conns: make(map[string]Transport)}
}

// Register maps userID to t, overwriting any existing entry. The previous
// transport, if any, is returned so the caller can close it.
func (r *Registry) Register(userID string, t Transport) (prev Transport, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, replaced = r.conns[userID]
	r.conns[userID] = t
	return prev, replaced
}

// Lookup returns userID's live transport.
func (r *Registry) Lookup(userID string) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.conns[userID]
	return t, ok
}

// Unregister removes userID's entry. Absent entries are ignored.
func (r *Registry) Unregister(userID string) {
	r.mu.Lock()
	delete(r.conns, userID)
	r.mu.Unlock()
}

// UnregisterIf removes userID's entry only when it still maps to t. A
// transport that has been superseded cannot remove its successor.
func (r *Registry) UnregisterIf(userID string, t Transport) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[userID]
	if !ok || cur.ID() != t.ID() {
		return false
	}
	delete(r.conns, userID)
	return true
}

// Snapshot returns the registered identities in sorted order.
func (r *Registry) Snapshot() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.conns))
	for id := range r.conns {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Transports returns every live transport, ordered by identity.
func (r *Registry) Transports() []Transport {
	r.mu.RLock()
	out := make([]Transport, 0, len(r.conns))
	for _, t := range r.conns {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UserID() < out[j].UserID() })
	return out
}

// Len returns the number of registered identities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
