package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"social-chat/internal/authutil"
	"social-chat/internal/realtime"
)

func dialHub(t *testing.T, ts *httptest.Server, userID int64) *websocket.Conn {
	t.Helper()
	token, err := authutil.IssueToken(userID)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/socket?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial hub: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) realtime.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt realtime.Event
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("read event: %v", err)
	}
	return evt
}

func waitForRoom(t *testing.T, hub *Hub, room string, size int) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for hub.RoomSize(room) < size {
		select {
		case <-deadline:
			t.Fatalf("room %s never reached %d subscribers", room, size)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestHubRejectsBadToken(t *testing.T) {
	srv, ts := newTestServer(t)
	_ = srv
	resp, err := http.Get(ts.URL + "/socket?token=garbage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestTypingRelay(t *testing.T) {
	srv, ts := newTestServer(t)
	alice := dialHub(t, ts, 42)
	bob := dialHub(t, ts, 7)

	room := "chat_7_42"
	for _, conn := range []*websocket.Conn{alice, bob} {
		if err := conn.WriteJSON(realtime.NewEvent(realtime.EventJoin, realtime.RoomPayload{Room: room})); err != nil {
			t.Fatalf("join: %v", err)
		}
	}
	waitForRoom(t, srv.Hub(), room, 2)

	if err := alice.WriteJSON(realtime.NewEvent(realtime.EventTyping, realtime.RoomPayload{Room: room})); err != nil {
		t.Fatalf("typing: %v", err)
	}

	evt := readEvent(t, bob)
	if evt.Name != realtime.EventUserTyping {
		t.Fatalf("event = %q", evt.Name)
	}
	var p realtime.TypingPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil || p.UserID != 42 {
		t.Fatalf("payload = %s (%v)", evt.Data, err)
	}

	if err := alice.WriteJSON(realtime.NewEvent(realtime.EventStopTyping, realtime.RoomPayload{Room: room})); err != nil {
		t.Fatalf("stop typing: %v", err)
	}
	evt = readEvent(t, bob)
	if evt.Name != realtime.EventUserStopTyping {
		t.Fatalf("event = %q", evt.Name)
	}
}

func TestLeaveStopsDelivery(t *testing.T) {
	srv, ts := newTestServer(t)
	bob := dialHub(t, ts, 7)
	room := "chat_7_42"

	if err := bob.WriteJSON(realtime.NewEvent(realtime.EventJoin, realtime.RoomPayload{Room: room})); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForRoom(t, srv.Hub(), room, 1)
	if err := bob.WriteJSON(realtime.NewEvent(realtime.EventLeave, realtime.RoomPayload{Room: room})); err != nil {
		t.Fatalf("leave: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for srv.Hub().RoomSize(room) != 0 {
		select {
		case <-deadline:
			t.Fatal("leave never emptied the room")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestSendMessageEchoesToRoom(t *testing.T) {
	srv, ts := newTestServer(t)
	bob := dialHub(t, ts, 7)
	room := "chat_7_42"
	if err := bob.WriteJSON(realtime.NewEvent(realtime.EventJoin, realtime.RoomPayload{Room: room})); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitForRoom(t, srv.Hub(), room, 1)

	alice := tokenFor(t, 42)
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/send_message", alice,
		`{"friend_id":7,"message":"over the wire","recipient_id":7,"room":"chat_7_42","sender_id":42}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("send: %d %s", resp.StatusCode, body)
	}

	evt := readEvent(t, bob)
	if evt.Name != realtime.EventNewMessage {
		t.Fatalf("event = %q", evt.Name)
	}
	var msg wireMessage
	if err := json.Unmarshal(evt.Data, &msg); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if msg.SenderID != 42 || msg.RecipientID != 7 || msg.Content != "over the wire" {
		t.Errorf("echoed message = %+v", msg)
	}
}

func TestUploadCompleteReachesUserRoom(t *testing.T) {
	srv, ts := newTestServer(t)
	alice := dialHub(t, ts, 42)
	waitForRoom(t, srv.Hub(), userRoom(42), 1)

	srv.Hub().ToUser(42, realtime.NewEvent(realtime.EventUploadComplete, realtime.UploadPayload{
		UploadID: "upload_1_42",
		FileLink: "/api/download_file/x/y.txt",
	}))

	evt := readEvent(t, alice)
	if evt.Name != realtime.EventUploadComplete {
		t.Fatalf("event = %q", evt.Name)
	}
	var p realtime.UploadPayload
	if err := json.Unmarshal(evt.Data, &p); err != nil || p.UploadID != "upload_1_42" {
		t.Fatalf("payload = %s (%v)", evt.Data, err)
	}
}
