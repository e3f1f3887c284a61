package server

import (
	"context"
	"database/sql"
	"sync"
	"time"
)

// StoredMessage is one row of a user's conversation copy. Content is sealed
// before it reaches the store.
type StoredMessage struct {
	SenderID    int64
	RecipientID int64
	Content     string
	Timestamp   time.Time
}

// MessageStore keeps a copy of every message per participant, so clearing a
// conversation affects only the caller.
type MessageStore interface {
	Insert(ctx context.Context, ownerID int64, msg StoredMessage) error
	History(ctx context.Context, ownerID, peerID int64) ([]StoredMessage, error)
	Clear(ctx context.Context, ownerID, peerID int64) error
}

// memoryStore backs local development when no database is configured.
type memoryStore struct {
	mu      sync.Mutex
	byOwner map[int64][]StoredMessage
}

func NewMemoryStore() MessageStore {
	return &memoryStore{byOwner: make(map[int64][]StoredMessage)}
}

func (s *memoryStore) Insert(_ context.Context, ownerID int64, msg StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byOwner[ownerID] = append(s.byOwner[ownerID], msg)
	return nil
}

func (s *memoryStore) History(_ context.Context, ownerID, peerID int64) ([]StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StoredMessage
	for _, msg := range s.byOwner[ownerID] {
		if msg.SenderID == peerID || msg.RecipientID == peerID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *memoryStore) Clear(_ context.Context, ownerID, peerID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.byOwner[ownerID][:0]
	for _, msg := range s.byOwner[ownerID] {
		if msg.SenderID != peerID && msg.RecipientID != peerID {
			kept = append(kept, msg)
		}
	}
	s.byOwner[ownerID] = kept
	return nil
}

// sqlStore persists conversation copies in PostgreSQL.
type sqlStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) (MessageStore, error) {
	s := &sqlStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS chat_messages (
		id SERIAL PRIMARY KEY,
		owner_id BIGINT NOT NULL,
		sender_id BIGINT NOT NULL,
		recipient_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMPTZ DEFAULT NOW()
	)`)
	return err
}

func (s *sqlStore) Insert(ctx context.Context, ownerID int64, msg StoredMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_messages (owner_id, sender_id, recipient_id, content, timestamp) VALUES ($1, $2, $3, $4, $5)`,
		ownerID, msg.SenderID, msg.RecipientID, msg.Content, msg.Timestamp)
	return err
}

func (s *sqlStore) History(ctx context.Context, ownerID, peerID int64) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender_id, recipient_id, content, COALESCE(timestamp, NOW())
		FROM chat_messages
		WHERE owner_id=$1 AND (sender_id=$2 OR recipient_id=$2)
		ORDER BY id ASC
	`, ownerID, peerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredMessage
	for rows.Next() {
		var msg StoredMessage
		if err := rows.Scan(&msg.SenderID, &msg.RecipientID, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *sqlStore) Clear(ctx context.Context, ownerID, peerID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE owner_id=$1 AND (sender_id=$2 OR recipient_id=$2)`,
		ownerID, peerID)
	return err
}
