package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"realtime/internal/events"
	"realtime/internal/models"
	"realtime/internal/registry"
	"realtime/internal/routers"
	"realtime/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *events.Router) {
	t.Helper()
	log := zap.NewNop()
	router := events.NewRouter(log, registry.New(log), session.NewHub(), session.NewUsageTracker())
	server := httptest.NewServer(routers.New(log, router))
	t.Cleanup(server.Close)
	return server, router
}

func dialWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) models.Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame models.Frame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame models.Frame) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func authAndJoin(t *testing.T, conn *websocket.Conn, userID, username, documentID string) {
	t.Helper()
	sendFrame(t, conn, models.Frame{
		Type: models.EventAuthenticate,
		Data: models.AuthRequest{UserID: userID, Username: username},
	})
	if frame := readFrame(t, conn); frame.Type != models.EventAuthenticated {
		t.Fatalf("expected authenticated ack, got %#v", frame)
	}
	sendFrame(t, conn, models.Frame{
		Type: models.EventJoinDocument,
		Data: models.JoinRequest{DocumentID: documentID},
	})
	if frame := readFrame(t, conn); frame.Type != models.EventMembersList {
		t.Fatalf("expected members list, got %#v", frame)
	}
}

func TestWebSocketCollaborationFlow(t *testing.T) {
	server, _ := newTestServer(t)

	alice := dialWS(t, server)
	authAndJoin(t, alice, "u1", "Alice", "doc-42")

	bob := dialWS(t, server)
	authAndJoin(t, bob, "u2", "Bob", "doc-42")

	// Alice sees Bob join.
	frame := readFrame(t, alice)
	if frame.Type != models.EventMemberJoined {
		t.Fatalf("expected member-joined, got %#v", frame)
	}
	data := frame.Data.(map[string]interface{})
	if data["username"] != "Bob" {
		t.Fatalf("expected Bob, got %#v", data)
	}

	// Bob's chat echoes to both.
	sendFrame(t, bob, models.Frame{
		Type: models.EventChatMessage,
		Data: models.Chat{DocumentID: "doc-42", Message: "hello"},
	})
	for _, conn := range []*websocket.Conn{alice, bob} {
		frame = readFrame(t, conn)
		if frame.Type != models.EventChatBroadcast {
			t.Fatalf("expected chat broadcast, got %#v", frame)
		}
		if msg := frame.Data.(map[string]interface{}); msg["message"] != "hello" {
			t.Fatalf("unexpected chat payload: %#v", msg)
		}
	}
}

func TestWebSocketRejectsUnauthenticated(t *testing.T) {
	server, _ := newTestServer(t)
	conn := dialWS(t, server)

	sendFrame(t, conn, models.Frame{
		Type: models.EventJoinDocument,
		Data: models.JoinRequest{DocumentID: "doc"},
	})

	frame := readFrame(t, conn)
	if frame.Type != models.EventError {
		t.Fatalf("expected error frame, got %#v", frame)
	}
	if data := frame.Data.(map[string]interface{}); data["kind"] != models.ErrNotAuthenticated {
		t.Fatalf("expected NOT_AUTHENTICATED, got %#v", data)
	}
}

func TestStatsEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	conn := dialWS(t, server)
	authAndJoin(t, conn, "u1", "Alice", "doc")

	resp, err := http.Get(server.URL + "/api/v1/stats")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var snap models.StatsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if snap.Connections != 1 || snap.Rooms != 1 {
		t.Fatalf("unexpected snapshot: %#v", snap)
	}
}

func TestNotifyUserEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	conn := dialWS(t, server)
	sendFrame(t, conn, models.Frame{
		Type: models.EventAuthenticate,
		Data: models.AuthRequest{UserID: "u1", Username: "Alice"},
	})
	readFrame(t, conn) // authenticated ack

	body := bytes.NewBufferString(`{"event":"resume-updated","data":{"resumeId":"r1"}}`)
	resp, err := http.Post(server.URL+"/api/v1/notify/u1", "application/json", body)
	if err != nil {
		t.Fatalf("post notify: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	frame := readFrame(t, conn)
	if frame.Type != "resume-updated" {
		t.Fatalf("expected resume-updated, got %#v", frame)
	}
}

func TestNotifyUnknownUserReturns404(t *testing.T) {
	server, _ := newTestServer(t)

	body := bytes.NewBufferString(`{"event":"ping"}`)
	resp, err := http.Post(server.URL+"/api/v1/notify/nobody", "application/json", body)
	if err != nil {
		t.Fatalf("post notify: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestBroadcastRoomEndpoint(t *testing.T) {
	server, _ := newTestServer(t)

	alice := dialWS(t, server)
	authAndJoin(t, alice, "u1", "Alice", "doc")
	bob := dialWS(t, server)
	authAndJoin(t, bob, "u2", "Bob", "doc")
	readFrame(t, alice) // member-joined for Bob

	body := bytes.NewBufferString(`{"event":"maintenance","data":{"minutes":5}}`)
	resp, err := http.Post(server.URL+"/api/v1/rooms/doc/broadcast", "application/json", body)
	if err != nil {
		t.Fatalf("post broadcast: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if out["recipients"] != 2 {
		t.Fatalf("expected 2 recipients, got %#v", out)
	}
	for _, conn := range []*websocket.Conn{alice, bob} {
		if frame := readFrame(t, conn); frame.Type != "maintenance" {
			t.Fatalf("expected maintenance frame, got %#v", frame)
		}
	}
}

func TestBroadcastRequiresEvent(t *testing.T) {
	server, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/api/v1/rooms/doc/broadcast", "application/json",
		bytes.NewBufferString(`{}`))
	if err != nil {
		t.Fatalf("post broadcast: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestDisconnectCleansUp(t *testing.T) {
	server, router := newTestServer(t)

	conn := dialWS(t, server)
	authAndJoin(t, conn, "u1", "Alice", "doc")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := router.Stats()
		if snap.Connections == 0 && snap.Rooms == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected connection and room cleanup, got %#v", router.Stats())
}
