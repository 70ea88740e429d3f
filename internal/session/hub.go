package session

import "sync"

// Hub manages all active document rooms. A room exists exactly as long
// as it has at least one member: Join creates lazily, Leave deletes the
// entry the moment the last member is gone.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]*Room)} }

// Join adds the connection to the document's room, creating the room
// if absent, and returns the connection IDs of the members that were
// already present.
func (h *Hub) Join(documentID, connID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[documentID]
	if !ok {
		r = NewRoom(documentID)
		h.rooms[documentID] = r
	}
	peers := r.Members()
	r.Join(connID)
	return peers
}

// Leave removes the connection from the document's room. Leaving a
// room that does not exist, or one the connection is not in, is
// already-satisfied rather than an error.
func (h *Hub) Leave(documentID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[documentID]
	if !ok {
		return
	}
	if r.Leave(connID) == 0 {
		delete(h.rooms, documentID)
	}
}

// Members returns the member connection IDs of a room, or nil if the
// room does not exist.
func (h *Hub) Members(documentID string) []string {
	h.mu.RLock()
	r, ok := h.rooms[documentID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	return r.Members()
}

// RecordEdit updates the room's version counter if the room exists.
func (h *Hub) RecordEdit(documentID string, version int64) {
	h.mu.RLock()
	r, ok := h.rooms[documentID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	r.RecordEdit(version)
}

func (h *Hub) Get(documentID string) (*Room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[documentID]
	return r, ok
}

func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

func (h *Hub) MemberCount(documentID string) int {
	h.mu.RLock()
	r, ok := h.rooms[documentID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	return r.MemberCount()
}

// Rooms returns the current room set for stats snapshots.
func (h *Hub) Rooms() []*Room {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Room, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r)
	}
	return out
}
