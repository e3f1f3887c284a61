package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"social-chat/internal/realtime"
	"social-chat/internal/storage"
)

type sendMessageRequest struct {
	FriendID    int64  `json:"friend_id"`
	Message     string `json:"message"`
	RecipientID int64  `json:"recipient_id"`
	Timestamp   string `json:"timestamp"`
	Room        string `json:"room"`
	SenderID    int64  `json:"sender_id"`
}

type wireMessage struct {
	SenderID    int64  `json:"sender_id"`
	RecipientID int64  `json:"recipient_id"`
	Content     string `json:"content"`
	Timestamp   string `json:"timestamp"`
	Room        string `json:"room,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("response write error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

// sendMessageHandler stores the message for both participants and echoes it
// to the conversation room. No store, no echo: clients render only what
// comes back over the socket.
func (s *Server) sendMessageHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.MessagesSent.Add(1)
		sender := userFrom(r)
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		recipient := req.RecipientID
		if recipient == 0 {
			recipient = req.FriendID
		}
		if recipient == 0 || req.Message == "" {
			writeError(w, http.StatusBadRequest, "recipient and message required")
			return
		}
		ts := parseClientTimestamp(req.Timestamp)
		sealed, err := s.box.SealString(req.Message)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "seal failed")
			return
		}
		stored := StoredMessage{
			SenderID:    sender,
			RecipientID: recipient,
			Content:     sealed,
			Timestamp:   ts,
		}
		for _, owner := range []int64{sender, recipient} {
			if err := s.store.Insert(r.Context(), owner, stored); err != nil {
				log.Printf("store message for %d: %v", owner, err)
				writeError(w, http.StatusInternalServerError, "failed to store message")
				return
			}
		}

		room := req.Room
		if room == "" {
			room = roomName(sender, recipient)
		}
		s.hub.Broadcast(room, realtime.NewEvent(realtime.EventNewMessage, wireMessage{
			SenderID:    sender,
			RecipientID: recipient,
			Content:     req.Message,
			Timestamp:   ts.UTC().Format(time.RFC3339),
			Room:        room,
		}))
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.HistoryLoads.Add(1)
		user := userFrom(r)
		peerID, err := strconv.ParseInt(chi.URLParam(r, "peerID"), 10, 64)
		if err != nil || peerID == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"messages": []wireMessage{}, "error": "invalid peer id"})
			return
		}
		stored, err := s.store.History(r.Context(), user, peerID)
		if err != nil {
			log.Printf("history for %d/%d: %v", user, peerID, err)
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "An error occurred while retrieving chat history."})
			return
		}
		messages := make([]wireMessage, 0, len(stored))
		for _, msg := range stored {
			content, err := s.box.OpenString(msg.Content)
			if err != nil {
				// Surface the failure per message instead of failing the load.
				content = "Error: Could not decrypt message"
			}
			messages = append(messages, wireMessage{
				SenderID:    msg.SenderID,
				RecipientID: msg.RecipientID,
				Content:     content,
				Timestamp:   msg.Timestamp.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
	}
}

func (s *Server) clearChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.ChatsCleared.Add(1)
		user := userFrom(r)
		peerID, err := strconv.ParseInt(chi.URLParam(r, "peerID"), 10, 64)
		if err != nil || peerID == 0 {
			writeError(w, http.StatusBadRequest, "invalid peer id")
			return
		}
		if err := s.store.Clear(r.Context(), user, peerID); err != nil {
			log.Printf("clear chat %d/%d: %v", user, peerID, err)
			writeError(w, http.StatusInternalServerError, "An error occurred while clearing chat history.")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Chat history cleared successfully."})
	}
}

// shareFileHandler stores the upload and answers with its download link.
// The task record lets clients that poll upload_status converge on the same
// outcome.
func (s *Server) shareFileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.FilesShared.Add(1)
		user := userFrom(r)
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "file too large")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "No file provided"})
			return
		}
		defer file.Close()
		if header.Filename == "" {
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": "No file selected"})
			return
		}

		taskID := NewTaskID(user)
		s.tasks.Begin(taskID, user)

		sealed, mime, err := s.sealUpload(file)
		if err != nil {
			s.tasks.Fail(taskID, err.Error())
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}
		rec, err := s.files.Save(header.Filename, user, mime, sealed)
		if err != nil {
			log.Printf("save upload %s: %v", header.Filename, err)
			s.tasks.Fail(taskID, "store failed")
			s.hub.ToUser(user, realtime.NewEvent(realtime.EventUploadError, realtime.UploadPayload{
				UploadID: taskID,
				Error:    "store failed",
			}))
			writeError(w, http.StatusInternalServerError, "upload failed")
			return
		}

		fileLink := "/api/download_file/" + rec.ID + "/" + rec.Name
		s.tasks.Complete(taskID, fileLink, rec.Name)
		s.hub.ToUser(user, realtime.NewEvent(realtime.EventUploadComplete, realtime.UploadPayload{
			UploadID: taskID,
			FileLink: fileLink,
		}))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":   true,
			"task_id":   taskID,
			"file_link": fileLink,
			"filename":  rec.Name,
		})
	}
}

func (s *Server) uploadStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.tasks.Get(chi.URLParam(r, "taskID")))
	}
}

func (s *Server) downloadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Downloads.Add(1)
		fileID := chi.URLParam(r, "fileID")
		rec, f, err := s.files.Open(fileID)
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"success": false, "error": "File not found"})
			return
		}
		defer f.Close()
		sealed, err := io.ReadAll(f)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "read failed")
			return
		}
		plain, err := s.box.Open(sealed)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "decrypt failed")
			return
		}

		name := storage.SanitizeFileName(chi.URLParam(r, "filename"))
		if name == "" {
			name = rec.Name
		}
		mime := rec.Mime
		if mime == "" {
			mime = "application/octet-stream"
		}
		w.Header().Set("Content-Type", mime)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		if _, err := w.Write(plain); err != nil {
			log.Printf("download write: %v", err)
		}
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbEnabled := s.db != nil
		if s.db != nil {
			if err := s.db.PingContext(r.Context()); err != nil {
				log.Printf("health ping failed: %v", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "error", "dbEnabled": true, "message": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "dbEnabled": dbEnabled, "message": "ok"})
	}
}

// sealUpload encrypts the upload and reports the content type of the
// plaintext, which the store would otherwise sniff from ciphertext.
func (s *Server) sealUpload(src io.Reader) (io.Reader, string, error) {
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, "", err
	}
	mime := http.DetectContentType(data)
	sealed, err := s.box.Seal(data)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(sealed), mime, nil
}

func parseClientTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Now().UTC()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
