package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtime/internal/events"
	"realtime/internal/models"
	"realtime/internal/session"
	"realtime/internal/utils"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type Handlers struct {
	log    *zap.Logger
	router *events.Router
}

func NewHandlers(log *zap.Logger, router *events.Router) *Handlers {
	return &Handlers{log: log, router: router}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// CollabWS upgrades the connection and runs its read loop. The client
// is expected to send an authenticate frame before anything else; the
// event router enforces that.
func (h *Handlers) CollabWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	client := session.NewClient(conn)
	h.router.Connect(connID, client)
	defer h.router.Disconnect(connID)

	for {
		var frame models.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn("websocket read failed", zap.String("connId", connID), zap.Error(err))
			}
			return
		}
		h.router.Dispatch(connID, frame)
	}
}

// Stats returns the aggregate snapshot: connection count, room stats,
// and per-document usage counters.
func (h *Handlers) Stats(w http.ResponseWriter, _ *http.Request) {
	utils.JSON(w, http.StatusOK, h.router.Stats())
}

type pushRequest struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// NotifyUser pushes a single frame to one user's live session.
func (h *Handlers) NotifyUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		utils.JSON(w, http.StatusBadRequest, map[string]string{"error": "event required"})
		return
	}
	if !h.router.SendToUser(userID, models.Frame{Type: req.Event, Data: req.Data}) {
		utils.JSON(w, http.StatusNotFound, map[string]string{"error": "user not connected"})
		return
	}
	utils.JSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

// BroadcastRoom pushes a frame to every member of a document's room.
func (h *Handlers) BroadcastRoom(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentId")
	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		utils.JSON(w, http.StatusBadRequest, map[string]string{"error": "event required"})
		return
	}
	n := h.router.BroadcastToRoom(documentID, models.Frame{Type: req.Event, Data: req.Data})
	utils.JSON(w, http.StatusOK, map[string]int{"recipients": n})
}

// AdminAuth guards the admin surface with an HS256 bearer token when a
// secret is configured. The realtime protocol stays token-free.
func AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !utils.AdminAuthEnabled() {
			next.ServeHTTP(w, r)
			return
		}
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			utils.JSON(w, http.StatusUnauthorized, map[string]string{"error": "missing token"})
			return
		}
		if _, err := utils.ValidateAdminToken(token); err != nil {
			utils.JSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
