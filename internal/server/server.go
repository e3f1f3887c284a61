package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"social-chat/internal/authutil"
	"social-chat/internal/crypto"
	"social-chat/internal/storage"
)

// Server bundles the chat HTTP handlers, websocket hub, stores, and
// metrics.
type Server struct {
	db    *sql.DB
	store MessageStore
	users UserStore
	files *storage.FileStore
	tasks *TaskRegistry
	hub   *Hub
	box   *crypto.Box

	maxUploadBytes int64
	metrics        *Metrics
}

// New wires a server. db may be nil, which selects the in-memory message
// store for local development.
func New(cfg Config, db *sql.DB, files *storage.FileStore) (*Server, error) {
	box, err := crypto.NewBox(cfg.ContentSecret)
	if err != nil {
		return nil, fmt.Errorf("content box: %w", err)
	}
	var store MessageStore
	var users UserStore
	if db != nil {
		store, err = NewSQLStore(db)
		if err != nil {
			return nil, fmt.Errorf("message store: %w", err)
		}
		users, err = NewSQLUsers(db)
		if err != nil {
			return nil, fmt.Errorf("user store: %w", err)
		}
	} else {
		store = NewMemoryStore()
		users = NewMemoryUsers()
	}
	return &Server{
		db:             db,
		store:          store,
		users:          users,
		files:          files,
		tasks:          NewTaskRegistry(),
		hub:            NewHub(),
		box:            box,
		maxUploadBytes: cfg.MaxUploadMB << 20,
		metrics:        &Metrics{},
	}, nil
}

// MetricsSnapshot exposes the current counters (useful for tests/logging).
func (s *Server) MetricsSnapshot() *Metrics {
	return s.metrics
}

// Hub exposes the event bus so outer wiring can observe it.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router wires up chi routes, middleware, and handlers ready for
// http.ListenAndServe.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(s.loggingMiddleware())

	r.Post("/register", s.registerHandler())
	r.Post("/login", s.loginHandler())
	r.Get("/healthz", s.healthHandler())
	r.Get("/socket", s.socketHandler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticated())
		r.Post("/api/send_message", s.sendMessageHandler())
		r.Get("/api/chat_history/{peerID}", s.historyHandler())
		r.Post("/api/clear_chat/{peerID}", s.clearChatHandler())
		r.Post("/api/share_file", s.shareFileHandler())
		r.Get("/api/upload_status/{taskID}", s.uploadStatusHandler())
		r.Get("/api/download_file/{fileID}/{filename}", s.downloadHandler())
	})

	return r
}

func (s *Server) socketHandler() http.HandlerFunc {
	handler := s.hub.Handler()
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.SocketConnects.Add(1)
		handler(w, r)
	}
}

type ctxUserKey struct{}

// userFrom returns the authenticated user id placed by the middleware.
func userFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxUserKey{}).(int64)
	return id
}

func (s *Server) authenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := authutil.ParseBearer(r.Header.Get("Authorization"))
			userID, err := authutil.ValidateToken(token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxUserKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// roomName mirrors the client-side derivation so both ends address the same
// topic.
func roomName(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("chat_%d_%d", a, b)
}
