package message

import (
	"encoding/json"
	"time"
)

// Message is one chat message after ingestion. Wire payloads arrive with
// loosely typed content (plain text, a {type, content} object, or a
// JSON-encoded string of either); Resolve collapses that into Content once
// so render paths never re-sniff.
type Message struct {
	SenderID    int64
	RecipientID int64
	Content     Content
	Timestamp   time.Time
}

// Wire mirrors the transport shape shared by the history endpoint and the
// new_message event. FriendID is the legacy alias some payloads use for the
// recipient.
type Wire struct {
	SenderID    int64           `json:"sender_id"`
	RecipientID int64           `json:"recipient_id,omitempty"`
	FriendID    int64           `json:"friend_id,omitempty"`
	Content     json.RawMessage `json:"content"`
	Timestamp   string          `json:"timestamp,omitempty"`
}

// Valid reports whether the entry carries enough to display. History loading
// skips entries missing a sender or content.
func (w Wire) Valid() bool {
	return w.SenderID != 0 && len(w.Content) > 0 && string(w.Content) != "null"
}

// FromWire converts a transport payload into a Message, resolving content
// and parsing the timestamp.
func FromWire(w Wire) Message {
	recipient := w.RecipientID
	if recipient == 0 {
		recipient = w.FriendID
	}
	return Message{
		SenderID:    w.SenderID,
		RecipientID: recipient,
		Content:     ResolveRaw(w.Content),
		Timestamp:   ParseTimestamp(w.Timestamp),
	}
}

// ParseTimestamp accepts the ISO8601 strings the server emits. Missing or
// unparseable values fall back to the current time rather than failing the
// message.
func ParseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Now()
}
