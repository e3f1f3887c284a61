package storage

import (
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func openTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	store, err := OpenFileStore(filepath.Join(dir, "files.db"), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFileStoreSaveAndOpen(t *testing.T) {
	store := openTestFileStore(t)

	rec, err := store.Save("report.pdf", 42, "application/pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("record has no id")
	}
	if rec.Name != "report.pdf" || rec.Size != int64(len("pdf bytes")) || rec.Uploader != 42 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Mime != "application/pdf" {
		t.Errorf("mime = %q, want the caller-provided type", rec.Mime)
	}

	got, f, err := store.Open(rec.ID)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if got.Name != rec.Name {
		t.Errorf("reopened name = %q", got.Name)
	}
	data, _ := io.ReadAll(f)
	if string(data) != "pdf bytes" {
		t.Errorf("stored content = %q", data)
	}
}

func TestFileStoreSanitizesName(t *testing.T) {
	store := openTestFileStore(t)

	rec, err := store.Save("../../etc/passwd", 1, "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if rec.Name != "passwd" {
		t.Errorf("stored name = %q, want passwd", rec.Name)
	}
}

func TestFileStoreSniffsMimeWhenUnset(t *testing.T) {
	store := openTestFileStore(t)

	rec, err := store.Save("notes.txt", 1, "", strings.NewReader("plain text body"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasPrefix(rec.Mime, "text/plain") {
		t.Errorf("mime = %q, want sniffed text/plain", rec.Mime)
	}
}

func TestFileStoreOpenUnknownID(t *testing.T) {
	store := openTestFileStore(t)
	if _, _, err := store.Open("nope"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct{ in, want string }{
		{"report.pdf", "report.pdf"},
		{"../escape.txt", "escape.txt"},
		{"/abs/path/file.go", "file.go"},
		{"  spaced.txt  ", "spaced.txt"},
		{".", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
