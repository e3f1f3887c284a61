// Package storage persists chat data with BoltDB: a local conversation
// archive on the client side, and uploaded file blobs plus metadata on the
// server side.
package storage

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

const archiveBucket = "conversations"

// ArchivedMessage is the stored projection of a rendered message. The
// archive is append-only and read back per conversation room.
type ArchivedMessage struct {
	Room        string    `json:"room"`
	SenderID    int64     `json:"sender_id"`
	RecipientID int64     `json:"recipient_id"`
	Text        string    `json:"text"`
	FilePath    string    `json:"file_path,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Archive keeps a local copy of displayed conversations so they can be
// reviewed offline. It never feeds conversation opening; history is always
// re-fetched from the server.
type Archive struct {
	db *bbolt.DB
}

func OpenArchive(path string) (*Archive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(archiveBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Archive{db: db}, nil
}

func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Append records one message under its room. A nil archive is a no-op so
// callers need no persistence checks.
func (a *Archive) Append(msg ArchivedMessage) error {
	if a == nil || a.db == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return a.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(archiveBucket))
		key := []byte(fmt.Sprintf("%s/%020d-%s", msg.Room, msg.Timestamp.UnixNano(), randSuffix()))
		return bucket.Put(key, data)
	})
}

// Recent returns up to limit archived messages for a room, oldest first.
func (a *Archive) Recent(room string, limit int) ([]ArchivedMessage, error) {
	if a == nil || a.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	prefix := []byte(room + "/")
	var out []ArchivedMessage
	err := a.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(archiveBucket))
		if bucket == nil {
			return nil
		}
		cursor := bucket.Cursor()
		for k, v := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = cursor.Next() {
			var msg ArchivedMessage
			if err := json.Unmarshal(v, &msg); err != nil {
				continue
			}
			out = append(out, msg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ClearRoom drops the local copy of one conversation.
func (a *Archive) ClearRoom(room string) error {
	if a == nil || a.db == nil {
		return nil
	}
	prefix := []byte(room + "/")
	return a.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(archiveBucket))
		cursor := bucket.Cursor()
		for k, _ := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = cursor.Next() {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}

func randSuffix() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", b)
}
