package registry

import (
	"sort"
	"sync"
)

// Rooms groups transports under topic names such as a conversation or a post.
type Rooms struct {
	mu      sync.RWMutex
	members map[string]map[string]Transport // room -> transport id -> transport
	joined  map[string]map[string]struct{}  // transport id -> rooms
}

// NewRooms creates an empty room table.
func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[string]Transport),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join subscribes t to room. Joining twice is a no-op.
func (r *Rooms) Join(room string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.members[room] == nil {
		r.members[room] = make(map[string]Transport)
	}
	r.members[room][t.ID()] = t
	if r.joined[t.ID()] == nil {
		r.joined[t.ID()] = make(map[string]struct{})
	}
	r.joined[t.ID()][room] = struct{}{}
}

// Leave unsubscribes t from room.
func (r *Rooms) Leave(room string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, t.ID())
}

// LeaveAll removes t from every room and returns the rooms it was in.
func (r *Rooms) LeaveAll(t Transport) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var left []string
	for room := range r.joined[t.ID()] {
		left = append(left, room)
	}
	for _, room := range left {
		r.leaveLocked(room, t.ID())
	}
	sort.Strings(left)
	return left
}

func (r *Rooms) leaveLocked(room, transportID string) {
	if m, ok := r.members[room]; ok {
		delete(m, transportID)
		if len(m) == 0 {
			delete(r.members, room)
		}
	}
	if rooms, ok := r.joined[transportID]; ok {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(r.joined, transportID)
		}
	}
}

// Members returns room's transports ordered by transport id.
func (r *Rooms) Members(room string) []Transport {
	r.mu.RLock()
	out := make([]Transport, 0, len(r.members[room]))
	for _, t := range r.members[room] {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Count returns the number of non-empty rooms.
func (r *Rooms) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
