// Package chat implements the conversation controller: it owns the session
// context, drives the REST and realtime transports, and projects state
// changes through a display sink.
package chat

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"social-chat/internal/api"
	"social-chat/internal/message"
	"social-chat/internal/realtime"
	"social-chat/internal/storage"
	"social-chat/internal/ui"
)

// typingIdle is how long after the last keystroke a stop_typing follows.
const typingIdle = time.Second

// transport is the REST surface the controller needs; *api.Client satisfies
// it and tests substitute fakes.
type transport interface {
	SendMessage(ctx context.Context, req api.SendMessageRequest) error
	ChatHistory(ctx context.Context, peerID int64) ([]message.Wire, error)
	ClearChat(ctx context.Context, peerID int64) error
}

// eventBus is the emit half of the realtime channel.
type eventBus interface {
	Emit(name string, payload interface{})
}

// Controller is the per-user chat view controller. All mutations of the
// session context happen under mu; events from the realtime channel are
// dispatched by a single goroutine so renders keep delivery order.
type Controller struct {
	ctx     context.Context
	api     transport
	bus     eventBus
	sink    ui.Sink
	archive *storage.Archive
	Uploads *UploadCoordinator

	mu          sync.Mutex
	session     Session
	typingTimer *time.Timer
}

// NewController wires a controller for the given user identity.
func NewController(ctx context.Context, userID int64, rest transport, bus eventBus, sink ui.Sink, archive *storage.Archive) *Controller {
	c := &Controller{
		ctx:     ctx,
		api:     rest,
		bus:     bus,
		sink:    sink,
		archive: archive,
		session: Session{UserID: userID},
	}
	return c
}

// Snapshot returns a copy of the current session context.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// OpenConversation switches the view to the given peer: updates the header,
// clears the list, re-subscribes the realtime room (leaving any previous
// one), and loads history.
func (c *Controller) OpenConversation(peerID int64, peerName string) {
	if peerID == 0 {
		return
	}
	c.mu.Lock()
	if prev := c.session.Room(); prev != "" {
		c.bus.Emit(realtime.EventLeave, realtime.RoomPayload{Room: prev})
	}
	c.stopTypingTimerLocked()
	c.session.PeerID = peerID
	c.session.PeerName = peerName
	room := c.session.Room()
	c.mu.Unlock()

	c.sink.SetConversation(peerName)
	c.sink.ResetMessages()
	c.sink.HideTyping()
	c.bus.Emit(realtime.EventJoin, realtime.RoomPayload{Room: room})
	c.LoadHistory(peerID)
}

// CloseConversation resets the session context and hides conversation
// scoped controls.
func (c *Controller) CloseConversation() {
	c.mu.Lock()
	room := c.session.Room()
	c.stopTypingTimerLocked()
	c.session.PeerID = 0
	c.session.PeerName = ""
	c.mu.Unlock()

	if room != "" {
		c.bus.Emit(realtime.EventLeave, realtime.RoomPayload{Room: room})
	}
	c.sink.ClearConversation()
}

// LoadHistory fetches and renders the full history for a peer, replacing
// the message list. Malformed entries are skipped; a transport failure
// leaves a static placeholder. No retry.
func (c *Controller) LoadHistory(peerID int64) {
	wires, err := c.api.ChatHistory(c.ctx, peerID)
	if err != nil {
		log.Printf("load history for %d: %v", peerID, err)
		c.sink.ResetMessages()
		c.sink.ShowSystem("Error loading chat history")
		return
	}
	c.sink.ResetMessages()
	userID := c.Snapshot().UserID
	for _, wire := range wires {
		if !wire.Valid() {
			continue
		}
		msg := message.FromWire(wire)
		c.sink.ShowMessage(ui.Render(userID, msg))
	}
}

// SendMessage posts one message to the peer. No optimistic render: the
// authoritative render happens when the realtime channel echoes the message
// back, which avoids duplicates at the cost of a visible delay.
func (c *Controller) SendMessage(peerID int64, text string) {
	if peerID == 0 || text == "" {
		return
	}
	snap := c.Snapshot()
	req := api.SendMessageRequest{
		FriendID:    peerID,
		Message:     text,
		RecipientID: peerID,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Room:        RoomName(snap.UserID, peerID),
		SenderID:    snap.UserID,
	}
	if err := c.api.SendMessage(c.ctx, req); err != nil {
		log.Printf("send message: %v", err)
		return
	}
	c.sink.ClearInput()
}

// SendToCurrent posts to the open conversation, if any.
func (c *Controller) SendToCurrent(text string) {
	snap := c.Snapshot()
	if !snap.Open() {
		c.sink.ShowSystem("no conversation open, use /open <id> <name>")
		return
	}
	c.SendMessage(snap.PeerID, text)
}

// ClearChat wipes the caller's copy of the open conversation.
func (c *Controller) ClearChat() {
	snap := c.Snapshot()
	if !snap.Open() {
		return
	}
	if err := c.api.ClearChat(c.ctx, snap.PeerID); err != nil {
		log.Printf("clear chat: %v", err)
		return
	}
	if err := c.archive.ClearRoom(snap.Room()); err != nil {
		log.Printf("clear archive: %v", err)
	}
	c.sink.ResetMessages()
	c.sink.ShowSystem("No messages to display.")
}

// InputChanged emits a typing event for the current room and re-arms the
// idle timer that emits stop_typing after one quiet second.
func (c *Controller) InputChanged() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.session.Open() {
		return
	}
	room := c.session.Room()
	userID := c.session.UserID
	c.bus.Emit(realtime.EventTyping, realtime.RoomPayload{Room: room, UserID: userID})
	if c.typingTimer != nil {
		c.typingTimer.Stop()
	}
	c.typingTimer = time.AfterFunc(typingIdle, func() {
		c.bus.Emit(realtime.EventStopTyping, realtime.RoomPayload{Room: room, UserID: userID})
	})
}

func (c *Controller) stopTypingTimerLocked() {
	if c.typingTimer != nil {
		c.typingTimer.Stop()
		c.typingTimer = nil
	}
}

// Run consumes the realtime event stream until the channel closes or ctx is
// done. Single consumer: renders happen in delivery order.
func (c *Controller) Run(ctx context.Context, events <-chan realtime.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.HandleEvent(evt)
		}
	}
}

// HandleEvent dispatches one realtime event.
func (c *Controller) HandleEvent(evt realtime.Event) {
	switch evt.Name {
	case realtime.EventNewMessage:
		c.handleNewMessage(evt.Data)
	case realtime.EventUserTyping:
		c.handleTyping(evt.Data, true)
	case realtime.EventUserStopTyping:
		c.handleTyping(evt.Data, false)
	case realtime.EventUploadComplete:
		var p realtime.UploadPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			log.Printf("upload_complete payload: %v", err)
			return
		}
		c.Uploads.RemoteComplete(p.UploadID, p.FileLink)
	case realtime.EventUploadError:
		var p realtime.UploadPayload
		if err := json.Unmarshal(evt.Data, &p); err != nil {
			log.Printf("upload_error payload: %v", err)
			return
		}
		c.Uploads.RemoteError(p.UploadID, p.Error)
	}
}

func (c *Controller) handleNewMessage(data json.RawMessage) {
	var wire message.Wire
	if err := json.Unmarshal(data, &wire); err != nil {
		log.Printf("new_message payload: %v", err)
		return
	}
	if !wire.Valid() {
		return
	}
	msg := message.FromWire(wire)
	snap := c.Snapshot()
	c.sink.ShowMessage(ui.Render(snap.UserID, msg))

	// Preview the conversation list entry for whichever side is the peer.
	previewPeer := msg.SenderID
	if msg.SenderID == snap.UserID {
		previewPeer = msg.RecipientID
	}
	c.sink.UpdatePreview(previewPeer, msg.Content.Text)

	archived := storage.ArchivedMessage{
		Room:        RoomName(msg.SenderID, msg.RecipientID),
		SenderID:    msg.SenderID,
		RecipientID: msg.RecipientID,
		Text:        msg.Content.Text,
		Timestamp:   msg.Timestamp,
	}
	if msg.Content.Kind == message.KindFile && msg.Content.File != nil {
		archived.FilePath = msg.Content.File.Path
	}
	if err := c.archive.Append(archived); err != nil {
		log.Printf("archive append: %v", err)
	}
}

func (c *Controller) handleTyping(data json.RawMessage, start bool) {
	var p realtime.TypingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	// Self-originated typing events are filtered, not displayed.
	if p.UserID == c.Snapshot().UserID {
		return
	}
	if start {
		c.sink.ShowTyping()
	} else {
		c.sink.HideTyping()
	}
}

// ShowArchive renders the locally archived copy of the open conversation.
func (c *Controller) ShowArchive(limit int) {
	snap := c.Snapshot()
	if !snap.Open() {
		c.sink.ShowSystem("no conversation open")
		return
	}
	msgs, err := c.archive.Recent(snap.Room(), limit)
	if err != nil {
		log.Printf("archive read: %v", err)
		return
	}
	if len(msgs) == 0 {
		c.sink.ShowSystem("archive empty for this conversation")
		return
	}
	c.sink.ShowSystem("--- local archive ---")
	for _, m := range msgs {
		text := m.Text
		if m.FilePath != "" {
			text = message.FileMarker(m.FilePath)
		}
		c.sink.ShowMessage(ui.Render(snap.UserID, message.Message{
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Content:     message.Resolve(text),
			Timestamp:   m.Timestamp,
		}))
	}
}
