package models

import "time"

// Inbound event types.
const (
	EventAuthenticate  = "authenticate"
	EventJoinDocument  = "join-document"
	EventLeaveDocument = "leave-document"
	EventEdit          = "edit"
	EventCursorMove    = "cursor-move"
	EventChatMessage   = "chat-message"
	EventAIProgress    = "ai-progress"
	EventUsage         = "usage-event"
	EventGetStats      = "get-stats"
)

// Outbound event types.
const (
	EventAuthenticated       = "authenticated"
	EventMemberJoined        = "member-joined"
	EventMemberLeft          = "member-left"
	EventMembersList         = "members-list"
	EventEditBroadcast       = "edit-broadcast"
	EventCursorBroadcast     = "cursor-broadcast"
	EventChatBroadcast       = "chat-broadcast"
	EventAIProgressBroadcast = "ai-progress-broadcast"
	EventUsageBroadcast      = "usage-broadcast"
	EventStatsSnapshot       = "stats-snapshot"
	EventError               = "error"
)

// Error kinds carried on error frames.
const (
	ErrNotAuthenticated = "NOT_AUTHENTICATED"
	ErrNotInRoom        = "NOT_IN_ROOM"
	ErrInternal         = "INTERNAL"
)

// Usage actions accepted on usage-event frames.
const (
	UsageView    = "view"
	UsageSave    = "save"
	UsageExport  = "export"
	UsageShare   = "share"
	UsageEnhance = "ai-enhance"
)

// Frame is the wire envelope for every event in both directions.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

/*** Inbound payloads ***/

type AuthRequest struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type JoinRequest struct {
	DocumentID string `json:"documentId"`
}

type LeaveRequest struct {
	DocumentID string `json:"documentId"`
}

type Edit struct {
	DocumentID string      `json:"documentId"`
	Changes    interface{} `json:"changes"`
	Version    int64       `json:"version"`
}

type Cursor struct {
	DocumentID string      `json:"documentId"`
	Position   interface{} `json:"position"`
	Selection  interface{} `json:"selection,omitempty"`
}

type Chat struct {
	DocumentID string `json:"documentId"`
	Message    string `json:"message"`
}

type AIProgress struct {
	DocumentID string `json:"documentId"`
	Progress   int    `json:"progress"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

type UsageEvent struct {
	DocumentID string `json:"documentId"`
	Action     string `json:"action"`
}

/*** Outbound payloads ***/

// Member identifies one room participant as seen by its peers.
type Member struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type AuthAck struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type MembersList struct {
	DocumentID string   `json:"documentId"`
	Members    []Member `json:"members"`
}

type MemberEvent struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
}

type EditBroadcast struct {
	DocumentID string      `json:"documentId"`
	UserID     string      `json:"userId"`
	Changes    interface{} `json:"changes"`
	Version    int64       `json:"version"`
}

type CursorBroadcast struct {
	DocumentID string      `json:"documentId"`
	UserID     string      `json:"userId"`
	Username   string      `json:"username"`
	Position   interface{} `json:"position"`
	Selection  interface{} `json:"selection,omitempty"`
}

type ChatBroadcast struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	Message    string `json:"message"`
	SentAt     string `json:"sentAt"`
}

type AIProgressBroadcast struct {
	DocumentID string `json:"documentId"`
	UserID     string `json:"userId"`
	Progress   int    `json:"progress"`
	Status     string `json:"status"`
	Message    string `json:"message,omitempty"`
}

type UsageBroadcast struct {
	DocumentID string        `json:"documentId"`
	Action     string        `json:"action"`
	Counters   DocumentUsage `json:"counters"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

/*** Stats ***/

// DocumentUsage accumulates per-document activity for the lifetime of
// the process. Entries are created lazily and never deleted.
type DocumentUsage struct {
	Views       int64     `json:"views"`
	Saves       int64     `json:"saves"`
	Exports     int64     `json:"exports"`
	Shares      int64     `json:"shares"`
	AIEnhance   int64     `json:"aiEnhancements"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// RoomStats is the per-room slice of a stats snapshot.
type RoomStats struct {
	DocumentID  string    `json:"documentId"`
	MemberCount int       `json:"memberCount"`
	Version     int64     `json:"version"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// StatsSnapshot is returned to get-stats senders and the admin API.
type StatsSnapshot struct {
	Connections int                      `json:"connections"`
	Rooms       int                      `json:"rooms"`
	RoomStats   []RoomStats              `json:"roomStats"`
	Usage       map[string]DocumentUsage `json:"usage"`
}

/*** Bridge commands (published by the HTTP API over Redis) ***/

type NotifyCommand struct {
	UserID string      `json:"userId"`
	Event  string      `json:"event"`
	Data   interface{} `json:"data,omitempty"`
}

type BroadcastCommand struct {
	DocumentID string      `json:"documentId"`
	Event      string      `json:"event"`
	Data       interface{} `json:"data,omitempty"`
}

// UsageUpdate is published on the usage channel whenever a counter
// changes, tagged with the emitting instance so subscribers can filter
// out their own traffic.
type UsageUpdate struct {
	InstanceID string        `json:"instanceId"`
	DocumentID string        `json:"documentId"`
	Action     string        `json:"action"`
	Counters   DocumentUsage `json:"counters"`
	Timestamp  time.Time     `json:"timestamp"`
}
