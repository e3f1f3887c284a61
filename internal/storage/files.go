package storage

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const filesBucket = "files"

// FileRecord describes one stored upload; the ID plus original name form the
// download path embedded in file-share messages.
type FileRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Uploader  int64     `json:"uploader"`
	Mime      string    `json:"mime,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type fileEntry struct {
	FileRecord
	Path string `json:"path"`
}

// FileStore persists uploads on disk and records their metadata in BoltDB.
type FileStore struct {
	db  *bbolt.DB
	dir string
}

func OpenFileStore(dbPath, dir string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(filesBucket))
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &FileStore{db: db, dir: dir}, nil
}

func (s *FileStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save streams one upload to disk and records its metadata. mime is the
// content type of the original bytes; callers that transform the stream
// before saving must sniff it themselves, since an empty mime falls back
// to sniffing the stored bytes.
func (s *FileStore) Save(originalName string, uploader int64, mime string, src io.Reader) (FileRecord, error) {
	if s == nil || s.db == nil {
		return FileRecord{}, fmt.Errorf("file store not initialized")
	}
	cleaned := SanitizeFileName(originalName)
	if cleaned == "" {
		cleaned = "upload.bin"
	}
	id := newFileID()
	path := filepath.Join(s.dir, id)
	dst, err := os.Create(path)
	if err != nil {
		return FileRecord{}, err
	}
	defer dst.Close()
	size, err := io.Copy(dst, src)
	if err != nil {
		return FileRecord{}, err
	}
	if mime == "" {
		mime = detectMime(path)
	}
	entry := fileEntry{
		FileRecord: FileRecord{
			ID:        id,
			Name:      cleaned,
			Size:      size,
			Uploader:  uploader,
			Mime:      mime,
			CreatedAt: time.Now().UTC(),
		},
		Path: path,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return FileRecord{}, err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(filesBucket))
		return bucket.Put([]byte(entry.ID), data)
	})
	if err != nil {
		return FileRecord{}, err
	}
	return entry.FileRecord, nil
}

// Open returns the record and a reader for one stored file.
func (s *FileStore) Open(id string) (FileRecord, *os.File, error) {
	if s == nil || s.db == nil {
		return FileRecord{}, nil, fmt.Errorf("file store not initialized")
	}
	var entry fileEntry
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(filesBucket))
		if bucket == nil {
			return fmt.Errorf("missing bucket")
		}
		data := bucket.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("file not found")
		}
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return FileRecord{}, nil, err
	}
	f, err := os.Open(entry.Path)
	if err != nil {
		return FileRecord{}, nil, err
	}
	return entry.FileRecord, f, nil
}

// SanitizeFileName strips directories so a crafted name cannot escape the
// upload dir.
func SanitizeFileName(name string) string {
	cleaned := filepath.Base(name)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" || cleaned == "." || cleaned == string(filepath.Separator) {
		return ""
	}
	return cleaned
}

func newFileID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return fmt.Sprintf("%x", b)
}

func detectMime(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}
