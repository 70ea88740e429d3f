package registry

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"realtime/internal/session"
)

// Session is the server-side record of one live connection: who it
// claims to be and which document it currently has open. Identity is
// caller-supplied and unverified; authorization belongs to the HTTP API
// in front of this service.
type Session struct {
	ConnID      string
	UserID      string
	Username    string
	Document    string // empty when not in a room
	ConnectedAt time.Time
	Client      *session.Client
}

// Authenticated reports whether the authenticate event has populated
// the identity fields.
func (s *Session) Authenticated() bool { return s.UserID != "" }

// Registry owns all connection sessions. Rooms reference sessions by
// connection ID only; the record itself lives here.
type Registry struct {
	log      *zap.Logger
	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(log *zap.Logger) *Registry {
	return &Registry{log: log, sessions: make(map[string]*Session)}
}

// Register creates an unauthenticated placeholder for a fresh
// connection.
func (r *Registry) Register(connID string, client *session.Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[connID] = &Session{
		ConnID:      connID,
		ConnectedAt: time.Now(),
		Client:      client,
	}
}

// Authenticate populates the identity fields. Repeat calls overwrite.
// An unknown connection is logged and ignored; it can only happen if
// the transport raced a disconnect.
func (r *Registry) Authenticate(connID, userID, username string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[connID]
	if !ok {
		r.log.Warn("authenticate for unregistered connection", zap.String("connId", connID))
		return
	}
	s.UserID = userID
	s.Username = username
}

// SetActiveDocument updates the session's current-document pointer.
// Pass the empty string to clear it.
func (r *Registry) SetActiveDocument(connID, documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[connID]; ok {
		s.Document = documentID
	}
}

// Lookup returns a copy of the session record.
func (r *Registry) Lookup(connID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Client returns the send handle for a connection.
func (r *Registry) Client(connID string) (*session.Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[connID]
	if !ok {
		return nil, false
	}
	return s.Client, true
}

func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, connID)
}

// FindByUserID resolves a user to a session for direct notifications.
// Several connections may share a user ID (two browser tabs); the most
// recently connected one wins, with connection ID as a stable
// tie-break.
func (r *Registry) FindByUserID(userID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *Session
	for _, s := range r.sessions {
		if s.UserID != userID {
			continue
		}
		if best == nil || s.ConnectedAt.After(best.ConnectedAt) ||
			(s.ConnectedAt.Equal(best.ConnectedAt) && s.ConnID > best.ConnID) {
			best = s
		}
	}
	if best == nil {
		return Session{}, false
	}
	return *best, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
