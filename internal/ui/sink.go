// Package ui renders conversation state onto display surfaces. The
// controller never touches a surface directly; it pushes display-ready
// projections through a Sink, and each surface (terminal, web mirror)
// decides how to draw them.
package ui

// RenderedMessage is the display-ready projection of one chat message.
type RenderedMessage struct {
	Own  bool   // message sent by the current user (right-aligned surfaces)
	Time string // formatted clock time
	Text string // resolved display text, unescaped
	File *FileCard

	Line string // terminal representation (tview markup)
	HTML string // DOM fragment, markup-escaped
}

// FileCard carries everything a surface needs to draw a shared file.
type FileCard struct {
	Name string // visible filename
	Href string // download link
	Icon string // icon class from the extension lookup
	Size int64  // bytes, 0 when unknown
}

// UploadStep mirrors one step of an upload session.
type UploadStep struct {
	ID     string
	Label  string
	Status string // pending | current | complete | error
}

// UploadView is the projection of an upload session; surfaces redraw the
// whole notification from it on every change.
type UploadView struct {
	ID        string
	Message   string
	Progress  int // 0..100
	Steps     []UploadStep
	Recipient string
	Failed    bool
}

// Sink is the unified interface every display surface must satisfy. Every
// method is a projection of controller state; surfaces missing a widget for
// a call simply no-op.
type Sink interface {
	SetConversation(peerName string)
	ClearConversation()
	ResetMessages()
	ShowMessage(RenderedMessage)
	ShowSystem(text string)
	ShowTyping()
	HideTyping()
	ShowUpload(UploadView)
	RemoveUpload(id string)
	ClearInput()
	UpdatePreview(peerID int64, text string)
}

type multiSink struct {
	sinks []Sink
}

// NewMultiSink fans controller projections out to each registered surface.
func NewMultiSink(sinks ...Sink) Sink {
	return &multiSink{sinks: sinks}
}

func (m *multiSink) SetConversation(name string) { m.each(func(s Sink) { s.SetConversation(name) }) }
func (m *multiSink) ClearConversation()          { m.each(func(s Sink) { s.ClearConversation() }) }
func (m *multiSink) ResetMessages()              { m.each(func(s Sink) { s.ResetMessages() }) }
func (m *multiSink) ShowMessage(msg RenderedMessage) {
	m.each(func(s Sink) { s.ShowMessage(msg) })
}
func (m *multiSink) ShowSystem(text string)    { m.each(func(s Sink) { s.ShowSystem(text) }) }
func (m *multiSink) ShowTyping()               { m.each(func(s Sink) { s.ShowTyping() }) }
func (m *multiSink) HideTyping()               { m.each(func(s Sink) { s.HideTyping() }) }
func (m *multiSink) ShowUpload(v UploadView)   { m.each(func(s Sink) { s.ShowUpload(v) }) }
func (m *multiSink) RemoveUpload(id string)    { m.each(func(s Sink) { s.RemoveUpload(id) }) }
func (m *multiSink) ClearInput()               { m.each(func(s Sink) { s.ClearInput() }) }
func (m *multiSink) UpdatePreview(id int64, text string) {
	m.each(func(s Sink) { s.UpdatePreview(id, text) })
}

func (m *multiSink) each(fn func(Sink)) {
	for _, sink := range m.sinks {
		if sink != nil {
			fn(sink)
		}
	}
}
