package session

import (
	"sync"
	"time"
)

// Room tracks the connections currently viewing one document, plus the
// last version reported by an edit. Rooms hold connection IDs only;
// the registry owns the session records themselves.
type Room struct {
	ID         string
	mu         sync.Mutex
	members    map[string]struct{}
	version    int64
	lastUpdate time.Time
}

func NewRoom(id string) *Room {
	return &Room{
		ID:      id,
		members: make(map[string]struct{}),
	}
}

func (r *Room) Join(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[connID] = struct{}{}
}

// Leave removes the connection and reports how many members remain.
// Removing a connection that is not a member is a no-op.
func (r *Room) Leave(connID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, connID)
	return len(r.members)
}

func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// Members returns a copy of the member connection IDs.
func (r *Room) Members() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	return out
}

// RecordEdit stores the caller-supplied version as-is. Versions are
// opaque to this layer: last write wins, no ordering enforcement.
func (r *Room) RecordEdit(version int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.version = version
	r.lastUpdate = time.Now()
}

func (r *Room) Snapshot() (version int64, lastUpdate time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version, r.lastUpdate
}
