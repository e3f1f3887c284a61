package chat

import (
	"context"
	"io"
	"sync"

	"social-chat/internal/api"
	"social-chat/internal/message"
	"social-chat/internal/ui"
)

// recordingSink captures every projection for assertions.
type recordingSink struct {
	mu            sync.Mutex
	conversation  string
	closedCount   int
	resets        int
	messages      []ui.RenderedMessage
	systems       []string
	typingVisible bool
	uploads       []ui.UploadView
	removed       []string
	inputClears   int
	previews      map[int64]string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{previews: make(map[int64]string)}
}

func (s *recordingSink) SetConversation(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = name
}

func (s *recordingSink) ClearConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = ""
	s.closedCount++
}

func (s *recordingSink) ResetMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets++
	s.messages = nil
}

func (s *recordingSink) ShowMessage(msg ui.RenderedMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

func (s *recordingSink) ShowSystem(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.systems = append(s.systems, text)
}

func (s *recordingSink) ShowTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingVisible = true
}

func (s *recordingSink) HideTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typingVisible = false
}

func (s *recordingSink) ShowUpload(v ui.UploadView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, v)
}

func (s *recordingSink) RemoveUpload(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, id)
}

func (s *recordingSink) ClearInput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputClears++
}

func (s *recordingSink) UpdatePreview(peerID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previews[peerID] = text
}

func (s *recordingSink) Messages() []ui.RenderedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ui.RenderedMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *recordingSink) Systems() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.systems))
	copy(out, s.systems)
	return out
}

func (s *recordingSink) Uploads() []ui.UploadView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ui.UploadView, len(s.uploads))
	copy(out, s.uploads)
	return out
}

func (s *recordingSink) Removed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.removed))
	copy(out, s.removed)
	return out
}

func (s *recordingSink) Conversation() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

func (s *recordingSink) TypingVisible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingVisible
}

func (s *recordingSink) InputClears() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputClears
}

func (s *recordingSink) Preview(peerID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previews[peerID]
}

// fakeTransport is a scriptable REST client.
type fakeTransport struct {
	mu         sync.Mutex
	sent       []api.SendMessageRequest
	sendErr    error
	history    []message.Wire
	historyErr error
	cleared    []int64
	clearErr   error
}

func (f *fakeTransport) SendMessage(_ context.Context, req api.SendMessageRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, req)
	return nil
}

func (f *fakeTransport) ChatHistory(_ context.Context, _ int64) ([]message.Wire, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeTransport) ClearChat(_ context.Context, peerID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, peerID)
	return nil
}

func (f *fakeTransport) Sent() []api.SendMessageRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.SendMessageRequest, len(f.sent))
	copy(out, f.sent)
	return out
}

// recordingBus captures emitted realtime events.
type emittedEvent struct {
	name    string
	payload interface{}
}

type recordingBus struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (b *recordingBus) Emit(name string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, emittedEvent{name: name, payload: payload})
}

func (b *recordingBus) Events() []emittedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]emittedEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBus) Named(name string) []emittedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []emittedEvent
	for _, e := range b.events {
		if e.name == name {
			out = append(out, e)
		}
	}
	return out
}

// fakeUploader is a scriptable upload transport.
type fakeUploader struct {
	mu        sync.Mutex
	shared    []string
	shareRes  api.ShareResult
	shareErr  error
	statuses  []api.UploadStatus
	statusErr error
	calls     int
}

func (f *fakeUploader) ShareFile(_ context.Context, filename string, src io.Reader) (api.ShareResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if src != nil {
		_, _ = io.Copy(io.Discard, src)
	}
	if f.shareErr != nil {
		return api.ShareResult{}, f.shareErr
	}
	f.shared = append(f.shared, filename)
	return f.shareRes, nil
}

func (f *fakeUploader) CheckUploadStatus(_ context.Context, _ string) (api.UploadStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.statusErr != nil {
		return api.UploadStatus{}, f.statusErr
	}
	idx := f.calls
	f.calls++
	if idx >= len(f.statuses) {
		if len(f.statuses) == 0 {
			return api.UploadStatus{Status: "processing"}, nil
		}
		idx = len(f.statuses) - 1
	}
	return f.statuses[idx], nil
}

func newTestController(userID int64) (*Controller, *fakeTransport, *recordingBus, *recordingSink) {
	rest := &fakeTransport{}
	bus := &recordingBus{}
	sink := newRecordingSink()
	ctrl := NewController(context.Background(), userID, rest, bus, sink, nil)
	ctrl.Uploads = NewUploadCoordinator(context.Background(), &fakeUploader{}, sink, ctrl.SendMessage)
	return ctrl, rest, bus, sink
}
