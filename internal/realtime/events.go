// Package realtime implements the event channel both client and server
// speak: JSON envelopes over a websocket, addressed by room membership.
package realtime

import "encoding/json"

// Event names emitted by clients.
const (
	EventJoin       = "join"
	EventLeave      = "leave"
	EventTyping     = "typing"
	EventStopTyping = "stop_typing"
)

// Event names pushed to clients.
const (
	EventNewMessage     = "new_message"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventUploadComplete = "upload_complete"
	EventUploadError    = "upload_error"
)

// Event is the wire envelope for every realtime exchange.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// RoomPayload accompanies join/leave/typing emissions.
type RoomPayload struct {
	Room   string `json:"room"`
	UserID int64  `json:"user_id,omitempty"`
}

// TypingPayload identifies who is typing in the subscribed room.
type TypingPayload struct {
	UserID int64 `json:"user_id"`
}

// UploadPayload reports the outcome of a deferred server-side upload.
type UploadPayload struct {
	UploadID string `json:"uploadId"`
	FileLink string `json:"file_link,omitempty"`
	Error    string `json:"error,omitempty"`
}

// NewEvent marshals payload into an envelope. Marshal failures are
// programming errors; they produce an envelope with no data.
func NewEvent(name string, payload interface{}) Event {
	evt := Event{Name: name}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			evt.Data = data
		}
	}
	return evt
}
