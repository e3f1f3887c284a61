package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"social-chat/internal/authutil"
)

// ErrUserExists is returned when registering a taken username.
var ErrUserExists = errors.New("username exists")

// UserStore resolves accounts to the numeric ids the rest of the system
// keys on.
type UserStore interface {
	Create(ctx context.Context, username, passwordHash string) (int64, error)
	Lookup(ctx context.Context, username string) (int64, string, error)
}

type memoryUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]memoryUser
}

type memoryUser struct {
	id   int64
	hash string
}

func NewMemoryUsers() UserStore {
	return &memoryUsers{users: make(map[string]memoryUser)}
}

func (s *memoryUsers) Create(_ context.Context, username, passwordHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return 0, ErrUserExists
	}
	s.nextID++
	s.users[username] = memoryUser{id: s.nextID, hash: passwordHash}
	return s.nextID, nil
}

func (s *memoryUsers) Lookup(_ context.Context, username string) (int64, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return 0, "", errors.New("unknown user")
	}
	return user.id, user.hash, nil
}

type sqlUsers struct {
	db *sql.DB
}

func NewSQLUsers(db *sql.DB) (UserStore, error) {
	s := &sqlUsers{db: db}
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW()
	)`)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlUsers) Create(ctx context.Context, username, passwordHash string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2) RETURNING id`,
		username, passwordHash).Scan(&id)
	if err != nil {
		return 0, ErrUserExists
	}
	return id, nil
}

func (s *sqlUsers) Lookup(ctx context.Context, username string) (int64, string, error) {
	var id int64
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE username=$1`, username).Scan(&id, &hash)
	if err != nil {
		return 0, "", err
	}
	return id, hash, nil
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func (s *Server) registerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		req.Username = strings.TrimSpace(req.Username)
		if req.Username == "" || req.Password == "" {
			http.Error(w, "username/password required", http.StatusBadRequest)
			return
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			http.Error(w, "hash error", http.StatusInternalServerError)
			return
		}
		id, err := s.users.Create(r.Context(), req.Username, string(hash))
		if err != nil {
			http.Error(w, "username exists", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "user_id": id})
	}
}

func (s *Server) loginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req credentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		id, storedHash, err := s.users.Lookup(r.Context(), req.Username)
		if err != nil {
			http.Error(w, "invalid username", http.StatusBadRequest)
			return
		}
		if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(req.Password)); err != nil {
			http.Error(w, "wrong password", http.StatusBadRequest)
			return
		}
		token, err := authutil.IssueToken(id)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, loginResponse{Token: token, UserID: id, Username: req.Username})
	}
}
