package ui

import (
	"context"
	"embed"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

//go:embed webui/static
var webFS embed.FS

// WebBridge mirrors the open conversation to a browser. It is a read-only
// projection surface: every Sink call becomes a webEvent, and the browser
// applies the pre-rendered HTML fragments to its DOM.
type WebBridge struct {
	addr     string
	srv      *http.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	peerName string
	frags    []string
	uploads  map[string]UploadView
	typing   bool
}

func NewWebBridge(addr string) *WebBridge {
	wb := &WebBridge{
		addr:    addr,
		clients: make(map[*websocket.Conn]struct{}),
		uploads: make(map[string]UploadView),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", wb.handleIndex)
	mux.HandleFunc("/ws", wb.handleWS)
	wb.srv = &http.Server{Addr: addr, Handler: mux}
	return wb
}

func (wb *WebBridge) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		_ = wb.srv.Shutdown(context.Background())
	}()
	log.Printf("web mirror listening on http://%s", wb.addr)
	if err := wb.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("web mirror error: %v", err)
	}
}

func (wb *WebBridge) Close() {
	_ = wb.srv.Shutdown(context.Background())
	wb.mu.Lock()
	for conn := range wb.clients {
		_ = conn.Close()
	}
	wb.mu.Unlock()
}

func (wb *WebBridge) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := webFS.ReadFile("webui/static/index.html")
	if err != nil {
		http.Error(w, "missing assets", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

func (wb *WebBridge) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wb.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web mirror upgrade: %v", err)
		return
	}
	wb.mu.Lock()
	wb.clients[conn] = struct{}{}
	snapshot := webEvent{
		Kind:      "snapshot",
		Name:      wb.peerName,
		Fragments: append([]string(nil), wb.frags...),
		Typing:    wb.typing,
	}
	wb.mu.Unlock()
	wb.sendTo(conn, snapshot)
	go wb.drain(conn)
}

// drain discards client frames; the mirror is one-way but we still need to
// observe the close.
func (wb *WebBridge) drain(conn *websocket.Conn) {
	defer func() {
		wb.mu.Lock()
		delete(wb.clients, conn)
		wb.mu.Unlock()
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type webEvent struct {
	Kind      string      `json:"kind"`
	Name      string      `json:"name,omitempty"`
	Fragment  string      `json:"fragment,omitempty"`
	Fragments []string    `json:"fragments,omitempty"`
	Text      string      `json:"text,omitempty"`
	Typing    bool        `json:"typing,omitempty"`
	Upload    *UploadView `json:"upload,omitempty"`
	UploadID  string      `json:"upload_id,omitempty"`
	PeerID    int64       `json:"peer_id,omitempty"`
}

func (wb *WebBridge) send(evt webEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("web event encode: %v", err)
		return
	}
	wb.mu.Lock()
	for conn := range wb.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			delete(wb.clients, conn)
			_ = conn.Close()
		}
	}
	wb.mu.Unlock()
}

func (wb *WebBridge) sendTo(conn *websocket.Conn, evt webEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// Sink implementation. The bridge also keeps the fragment log so a browser
// that connects mid-conversation receives the full view.

func (wb *WebBridge) SetConversation(name string) {
	wb.mu.Lock()
	wb.peerName = name
	wb.mu.Unlock()
	wb.send(webEvent{Kind: "conversation", Name: name})
}

func (wb *WebBridge) ClearConversation() {
	wb.mu.Lock()
	wb.peerName = ""
	wb.frags = nil
	wb.typing = false
	wb.mu.Unlock()
	wb.send(webEvent{Kind: "closed"})
}

func (wb *WebBridge) ResetMessages() {
	wb.mu.Lock()
	wb.frags = nil
	wb.mu.Unlock()
	wb.send(webEvent{Kind: "reset"})
}

func (wb *WebBridge) ShowMessage(msg RenderedMessage) {
	wb.mu.Lock()
	wb.frags = append(wb.frags, msg.HTML)
	wb.mu.Unlock()
	wb.send(webEvent{Kind: "message", Fragment: msg.HTML})
}

func (wb *WebBridge) ShowSystem(text string) {
	wb.send(webEvent{Kind: "system", Text: text})
}

func (wb *WebBridge) ShowTyping() {
	wb.mu.Lock()
	wb.typing = true
	wb.mu.Unlock()
	wb.send(webEvent{Kind: "typing", Typing: true})
}

func (wb *WebBridge) HideTyping() {
	wb.mu.Lock()
	wb.typing = false
	wb.mu.Unlock()
	wb.send(webEvent{Kind: "typing", Typing: false})
}

func (wb *WebBridge) ShowUpload(v UploadView) {
	wb.mu.Lock()
	wb.uploads[v.ID] = v
	wb.mu.Unlock()
	view := v
	wb.send(webEvent{Kind: "upload", Upload: &view})
}

func (wb *WebBridge) RemoveUpload(id string) {
	wb.mu.Lock()
	delete(wb.uploads, id)
	wb.mu.Unlock()
	wb.send(webEvent{Kind: "upload_remove", UploadID: id})
}

func (wb *WebBridge) ClearInput() {}

func (wb *WebBridge) UpdatePreview(peerID int64, text string) {
	wb.send(webEvent{Kind: "preview", PeerID: peerID, Text: text})
}
