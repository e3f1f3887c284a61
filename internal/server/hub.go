package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"social-chat/internal/authutil"
	"social-chat/internal/realtime"
)

// Hub fans realtime events out to websocket subscribers by room. Each
// connection auto-joins its personal room so server-initiated events (upload
// outcomes) reach the right user without an explicit subscription.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.Mutex
	rooms map[string]map[*hubClient]struct{}
}

type hubClient struct {
	userID int64
	conn   *websocket.Conn
	send   chan realtime.Event
	rooms  map[string]struct{}
	closed bool
}

const hubSendBuffer = 32

func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*hubClient]struct{}),
	}
}

// userRoom is the per-user room for directed events.
func userRoom(userID int64) string {
	return fmt.Sprintf("user_%d", userID)
}

// Handler upgrades /socket requests. The bearer token travels as a query
// parameter because browsers cannot set websocket headers.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := authutil.ValidateToken(r.URL.Query().Get("token"))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("socket upgrade: %v", err)
			return
		}
		client := &hubClient{
			userID: userID,
			conn:   conn,
			send:   make(chan realtime.Event, hubSendBuffer),
			rooms:  make(map[string]struct{}),
		}
		h.join(client, userRoom(userID))
		go client.writeLoop()
		h.readLoop(client)
	}
}

// Broadcast delivers one event to every subscriber of a room. Slow clients
// are dropped rather than blocking delivery to the rest.
func (h *Hub) Broadcast(room string, evt realtime.Event) {
	h.mu.Lock()
	var stalled []*hubClient
	for client := range h.rooms[room] {
		select {
		case client.send <- evt:
		default:
			stalled = append(stalled, client)
		}
	}
	h.mu.Unlock()
	for _, client := range stalled {
		log.Printf("hub: disconnecting backlogged client %d", client.userID)
		h.drop(client)
	}
}

// ToUser delivers one event to every connection of a user.
func (h *Hub) ToUser(userID int64, evt realtime.Event) {
	h.Broadcast(userRoom(userID), evt)
}

// RoomSize reports the current subscriber count for a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

func (h *Hub) readLoop(client *hubClient) {
	defer h.drop(client)
	for {
		var evt realtime.Event
		if err := client.conn.ReadJSON(&evt); err != nil {
			return
		}
		h.dispatch(client, evt)
	}
}

func (h *Hub) dispatch(client *hubClient, evt realtime.Event) {
	switch evt.Name {
	case realtime.EventJoin, realtime.EventLeave:
		var p realtime.RoomPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.Room == "" {
			return
		}
		if evt.Name == realtime.EventJoin {
			h.join(client, p.Room)
		} else {
			h.leave(client, p.Room)
		}
	case realtime.EventTyping, realtime.EventStopTyping:
		var p realtime.RoomPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil || p.Room == "" {
			return
		}
		// Typing indicators carry the authenticated identity, not the
		// client-provided one.
		out := realtime.EventUserTyping
		if evt.Name == realtime.EventStopTyping {
			out = realtime.EventUserStopTyping
		}
		h.Broadcast(p.Room, realtime.NewEvent(out, realtime.TypingPayload{UserID: client.userID}))
	}
}

func (h *Hub) join(client *hubClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*hubClient]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leave(client *hubClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(client, room)
}

func (h *Hub) leaveLocked(client *hubClient, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	delete(client.rooms, room)
}

func (h *Hub) drop(client *hubClient) {
	h.mu.Lock()
	if client.closed {
		h.mu.Unlock()
		return
	}
	client.closed = true
	for room := range client.rooms {
		h.leaveLocked(client, room)
	}
	h.mu.Unlock()
	close(client.send)
	_ = client.conn.Close()
}

func (c *hubClient) writeLoop() {
	for evt := range c.send {
		if err := c.conn.WriteJSON(evt); err != nil {
			return
		}
	}
}
