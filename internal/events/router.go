package events

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"realtime/internal/metrics"
	"realtime/internal/models"
	"realtime/internal/registry"
	"realtime/internal/session"
)

// UsageListener is invoked after a usage counter changes, outside of
// any lock. The Redis bridge hangs off this to publish updates.
type UsageListener func(documentID, action string, counters models.DocumentUsage)

// Router is the single entry point for inbound events. It validates
// preconditions against the registry and room hub, applies the
// mutation, and fans the event out to its audience. One Router is
// created at startup and shared by the transport layer, the admin API
// and the Redis bridge.
type Router struct {
	log      *zap.Logger
	registry *registry.Registry
	rooms    *session.Hub
	usage    *session.UsageTracker
	onUsage  UsageListener
}

func NewRouter(log *zap.Logger, reg *registry.Registry, rooms *session.Hub, usage *session.UsageTracker) *Router {
	return &Router{log: log, registry: reg, rooms: rooms, usage: usage}
}

// SetUsageListener registers the usage-update callback. Must be called
// before the transport starts accepting connections.
func (rt *Router) SetUsageListener(fn UsageListener) { rt.onUsage = fn }

// Connect registers a fresh, unauthenticated connection.
func (rt *Router) Connect(connID string, client *session.Client) {
	rt.registry.Register(connID, client)
	metrics.ConnectionOpened()
	rt.log.Info("connection opened", zap.String("connId", connID))
}

// Disconnect tears a connection down. If it was in a room the standard
// leave fan-out runs first; the registry entry is discarded last since
// the member-left notification needs the display name.
func (rt *Router) Disconnect(connID string) {
	sess, ok := rt.registry.Lookup(connID)
	if ok && sess.Document != "" {
		rt.leaveRoom(sess)
	}
	rt.registry.Unregister(connID)
	metrics.ConnectionClosed()
	rt.log.Info("connection closed", zap.String("connId", connID))
}

// Dispatch processes one inbound frame. Handlers run to completion;
// a panic in any of them is recovered here, logged, and turned into an
// error reply so one misbehaving client cannot take the process down.
func (rt *Router) Dispatch(connID string, frame models.Frame) {
	defer func() {
		if rec := recover(); rec != nil {
			rt.log.Error("handler panic",
				zap.String("connId", connID),
				zap.String("event", frame.Type),
				zap.Any("panic", rec))
			rt.sendError(connID, models.ErrInternal, "internal error")
		}
	}()

	metrics.EventDispatched(frame.Type)

	sess, ok := rt.registry.Lookup(connID)
	if !ok {
		rt.log.Warn("event from unregistered connection",
			zap.String("connId", connID), zap.String("event", frame.Type))
		return
	}

	if frame.Type == models.EventAuthenticate {
		rt.handleAuthenticate(sess, frame)
		return
	}
	if !sess.Authenticated() {
		rt.sendError(connID, models.ErrNotAuthenticated, "authenticate first")
		return
	}

	switch frame.Type {
	case models.EventJoinDocument:
		rt.handleJoin(sess, frame)
	case models.EventLeaveDocument:
		rt.handleLeave(sess, frame)
	case models.EventEdit:
		rt.handleEdit(sess, frame)
	case models.EventCursorMove:
		rt.handleCursor(sess, frame)
	case models.EventChatMessage:
		rt.handleChat(sess, frame)
	case models.EventAIProgress:
		rt.handleAIProgress(sess, frame)
	case models.EventUsage:
		rt.handleUsage(sess, frame)
	case models.EventGetStats:
		rt.send(sess.ConnID, models.Frame{Type: models.EventStatsSnapshot, Data: rt.Stats()})
	default:
		rt.sendError(connID, models.ErrInternal, "unknown event type: "+frame.Type)
	}
}

func (rt *Router) handleAuthenticate(sess registry.Session, frame models.Frame) {
	var req models.AuthRequest
	if err := decode(frame.Data, &req); err != nil || req.UserID == "" {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid authenticate payload")
		return
	}
	rt.registry.Authenticate(sess.ConnID, req.UserID, req.Username)
	rt.send(sess.ConnID, models.Frame{
		Type: models.EventAuthenticated,
		Data: models.AuthAck{UserID: req.UserID, Username: req.Username},
	})
	rt.log.Info("connection authenticated",
		zap.String("connId", sess.ConnID), zap.String("userId", req.UserID))
}

func (rt *Router) handleJoin(sess registry.Session, frame models.Frame) {
	var req models.JoinRequest
	if err := decode(frame.Data, &req); err != nil || req.DocumentID == "" {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid join payload")
		return
	}

	// One room per connection: joining while in another room leaves it
	// first, with the usual member-left fan-out.
	if sess.Document != "" && sess.Document != req.DocumentID {
		rt.leaveRoom(sess)
	}

	peers := rt.rooms.Join(req.DocumentID, sess.ConnID)
	rt.registry.SetActiveDocument(sess.ConnID, req.DocumentID)
	metrics.SetActiveRooms(rt.rooms.RoomCount())

	rt.send(sess.ConnID, models.Frame{
		Type: models.EventMembersList,
		Data: models.MembersList{
			DocumentID: req.DocumentID,
			Members:    rt.resolveMembers(peers, sess.ConnID),
		},
	})
	rt.fanOut(req.DocumentID, models.Frame{
		Type: models.EventMemberJoined,
		Data: models.MemberEvent{
			DocumentID: req.DocumentID,
			UserID:     sess.UserID,
			Username:   sess.Username,
		},
	}, sess.ConnID)

	rt.log.Info("joined document",
		zap.String("connId", sess.ConnID),
		zap.String("documentId", req.DocumentID),
		zap.Int("members", rt.rooms.MemberCount(req.DocumentID)))
}

func (rt *Router) handleLeave(sess registry.Session, frame models.Frame) {
	var req models.LeaveRequest
	if err := decode(frame.Data, &req); err != nil {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid leave payload")
		return
	}
	// Leaving a room you are not in is already satisfied.
	if sess.Document == "" || (req.DocumentID != "" && req.DocumentID != sess.Document) {
		return
	}
	rt.leaveRoom(sess)
}

func (rt *Router) handleEdit(sess registry.Session, frame models.Frame) {
	var e models.Edit
	if err := decode(frame.Data, &e); err != nil {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid edit payload")
		return
	}
	if !rt.roomScoped(sess, e.DocumentID) {
		return
	}
	rt.rooms.RecordEdit(e.DocumentID, e.Version)
	rt.fanOut(e.DocumentID, models.Frame{
		Type: models.EventEditBroadcast,
		Data: models.EditBroadcast{
			DocumentID: e.DocumentID,
			UserID:     sess.UserID,
			Changes:    e.Changes,
			Version:    e.Version,
		},
	}, sess.ConnID)
}

func (rt *Router) handleCursor(sess registry.Session, frame models.Frame) {
	var c models.Cursor
	if err := decode(frame.Data, &c); err != nil {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid cursor payload")
		return
	}
	if !rt.roomScoped(sess, c.DocumentID) {
		return
	}
	rt.fanOut(c.DocumentID, models.Frame{
		Type: models.EventCursorBroadcast,
		Data: models.CursorBroadcast{
			DocumentID: c.DocumentID,
			UserID:     sess.UserID,
			Username:   sess.Username,
			Position:   c.Position,
			Selection:  c.Selection,
		},
	}, sess.ConnID)
}

func (rt *Router) handleChat(sess registry.Session, frame models.Frame) {
	var ch models.Chat
	if err := decode(frame.Data, &ch); err != nil {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid chat payload")
		return
	}
	if !rt.roomScoped(sess, ch.DocumentID) {
		return
	}
	// Chat echoes to the sender as well.
	rt.fanOut(ch.DocumentID, models.Frame{
		Type: models.EventChatBroadcast,
		Data: models.ChatBroadcast{
			DocumentID: ch.DocumentID,
			UserID:     sess.UserID,
			Username:   sess.Username,
			Message:    ch.Message,
			SentAt:     time.Now().Format(time.RFC3339),
		},
	}, "")
}

func (rt *Router) handleAIProgress(sess registry.Session, frame models.Frame) {
	var p models.AIProgress
	if err := decode(frame.Data, &p); err != nil {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid ai-progress payload")
		return
	}
	if !rt.roomScoped(sess, p.DocumentID) {
		return
	}
	rt.fanOut(p.DocumentID, models.Frame{
		Type: models.EventAIProgressBroadcast,
		Data: models.AIProgressBroadcast{
			DocumentID: p.DocumentID,
			UserID:     sess.UserID,
			Progress:   p.Progress,
			Status:     p.Status,
			Message:    p.Message,
		},
	}, "")
}

func (rt *Router) handleUsage(sess registry.Session, frame models.Frame) {
	var u models.UsageEvent
	if err := decode(frame.Data, &u); err != nil || u.Action == "" {
		rt.sendError(sess.ConnID, models.ErrInternal, "invalid usage payload")
		return
	}
	if !rt.roomScoped(sess, u.DocumentID) {
		return
	}
	counters := rt.usage.Record(u.DocumentID, u.Action)
	rt.fanOut(u.DocumentID, models.Frame{
		Type: models.EventUsageBroadcast,
		Data: models.UsageBroadcast{
			DocumentID: u.DocumentID,
			Action:     u.Action,
			Counters:   counters,
		},
	}, "")
	if rt.onUsage != nil {
		rt.onUsage(u.DocumentID, u.Action, counters)
	}
}

// roomScoped enforces the membership precondition for room-scoped
// events. No room at all is a client fault (NOT_IN_ROOM); a different
// document ID is an expected race during rapid room switches and is
// dropped without an error.
func (rt *Router) roomScoped(sess registry.Session, documentID string) bool {
	if sess.Document == "" {
		rt.sendError(sess.ConnID, models.ErrNotInRoom, "join a document first")
		return false
	}
	if documentID != sess.Document {
		rt.log.Debug("document mismatch, dropping event",
			zap.String("connId", sess.ConnID),
			zap.String("current", sess.Document),
			zap.String("carried", documentID))
		return false
	}
	return true
}

// leaveRoom removes the session from its current room and notifies the
// remaining members. Membership and the session's document pointer are
// both updated before any send happens.
func (rt *Router) leaveRoom(sess registry.Session) {
	doc := sess.Document
	rt.rooms.Leave(doc, sess.ConnID)
	rt.registry.SetActiveDocument(sess.ConnID, "")
	metrics.SetActiveRooms(rt.rooms.RoomCount())

	rt.fanOut(doc, models.Frame{
		Type: models.EventMemberLeft,
		Data: models.MemberEvent{
			DocumentID: doc,
			UserID:     sess.UserID,
			Username:   sess.Username,
		},
	}, sess.ConnID)

	rt.log.Info("left document",
		zap.String("connId", sess.ConnID),
		zap.String("documentId", doc),
		zap.Int("members", rt.rooms.MemberCount(doc)))
}

// fanOut sends a frame to every member of a room, skipping exclude if
// non-empty. Sends are fire-and-forget.
func (rt *Router) fanOut(documentID string, frame models.Frame, exclude string) {
	members := rt.rooms.Members(documentID)
	sent := 0
	for _, connID := range members {
		if connID == exclude {
			continue
		}
		if client, ok := rt.registry.Client(connID); ok {
			client.Send(frame)
			sent++
		}
	}
	metrics.FramesBroadcast(sent)
}

// BroadcastToRoom delivers a server-initiated frame to every member of
// a document's room. Used by the admin API and the Redis bridge.
func (rt *Router) BroadcastToRoom(documentID string, frame models.Frame) int {
	members := rt.rooms.Members(documentID)
	for _, connID := range members {
		if client, ok := rt.registry.Client(connID); ok {
			client.Send(frame)
		}
	}
	metrics.FramesBroadcast(len(members))
	return len(members)
}

// SendToUser delivers a server-initiated frame to one user's session.
func (rt *Router) SendToUser(userID string, frame models.Frame) bool {
	sess, ok := rt.registry.FindByUserID(userID)
	if !ok {
		return false
	}
	sess.Client.Send(frame)
	return true
}

// Stats assembles the aggregate snapshot for get-stats and the admin
// API.
func (rt *Router) Stats() models.StatsSnapshot {
	rooms := rt.rooms.Rooms()
	roomStats := make([]models.RoomStats, 0, len(rooms))
	for _, r := range rooms {
		version, lastUpdate := r.Snapshot()
		roomStats = append(roomStats, models.RoomStats{
			DocumentID:  r.ID,
			MemberCount: r.MemberCount(),
			Version:     version,
			LastUpdate:  lastUpdate,
		})
	}
	return models.StatsSnapshot{
		Connections: rt.registry.Count(),
		Rooms:       len(rooms),
		RoomStats:   roomStats,
		Usage:       rt.usage.Snapshot(),
	}
}

func (rt *Router) resolveMembers(connIDs []string, exclude string) []models.Member {
	out := make([]models.Member, 0, len(connIDs))
	for _, id := range connIDs {
		if id == exclude {
			continue
		}
		if s, ok := rt.registry.Lookup(id); ok {
			out = append(out, models.Member{UserID: s.UserID, Username: s.Username})
		}
	}
	return out
}

func (rt *Router) send(connID string, frame models.Frame) {
	if client, ok := rt.registry.Client(connID); ok {
		client.Send(frame)
	}
}

func (rt *Router) sendError(connID, kind, message string) {
	metrics.ErrorReplied(kind)
	rt.send(connID, models.Frame{
		Type: models.EventError,
		Data: models.ErrorPayload{Kind: kind, Message: message},
	})
}

func decode(in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
