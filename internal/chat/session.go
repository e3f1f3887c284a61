package chat

import "fmt"

// Session holds the identity context a controller operates under: the
// authenticated user (fixed at startup) and the currently open
// conversation's peer (0 while no conversation is open).
type Session struct {
	UserID   int64
	PeerID   int64
	PeerName string
}

// Open reports whether a conversation is currently active.
func (s Session) Open() bool {
	return s.PeerID != 0
}

// Room returns the realtime room for the active conversation.
func (s Session) Room() string {
	if !s.Open() {
		return ""
	}
	return RoomName(s.UserID, s.PeerID)
}

// RoomName derives the shared room topic for a participant pair. Both ends
// order the ids so sender and recipient always compute the same name.
func RoomName(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%d_%d", a, b)
}
