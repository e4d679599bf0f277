package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDirSourceList(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "source_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	files := map[string][]byte{
		"a.arrow":   []byte("aaaa"),
		"b.arrows":  []byte("bb"),
		"notes.txt": []byte("skip me"),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(tmpDir, name), data, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(tmpDir, "subdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	src, err := NewDirSource(tmpDir, []string{"*.arrow", "*.arrows"})
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}
	defer src.Close()

	handles, err := src.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 handles, got %d", len(handles))
	}

	seen := map[string]bool{}
	for _, h := range handles {
		seen[h.Name()] = true
	}
	if !seen["a.arrow"] || !seen["b.arrows"] {
		t.Errorf("unexpected handles: %v", seen)
	}
}

func TestDirSourceStatAndRead(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "source_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	content := []byte("arrow bytes here")
	if err := os.WriteFile(filepath.Join(tmpDir, "a.arrow"), content, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	src, err := NewDirSource(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}

	handles, err := src.List(context.Background())
	if err != nil || len(handles) != 1 {
		t.Fatalf("List = %v, %v", handles, err)
	}

	meta, err := src.Stat(context.Background(), handles[0])
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if meta.Name != "a.arrow" || meta.Size != int64(len(content)) {
		t.Errorf("metadata = %+v", meta)
	}
	if meta.ModTime.IsZero() {
		t.Error("mtime should be set")
	}

	data, err := src.Read(context.Background(), handles[0], ReadOptions{ChunkSize: 4})
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if string(data) != string(content) {
		t.Errorf("Read = %q", data)
	}
}

func TestDirSourceReadMissingFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "source_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	src, err := NewDirSource(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}

	_, err = src.Read(context.Background(), dirHandle{name: "gone.arrow", path: filepath.Join(tmpDir, "gone.arrow")}, ReadOptions{})
	if err == nil {
		t.Fatal("expected read error")
	}
	var re *ReadError
	if !errors.As(err, &re) {
		t.Errorf("expected *ReadError, got %T", err)
	}
	if re.Name != "gone.arrow" {
		t.Errorf("ReadError.Name = %q", re.Name)
	}
}

func TestNewDirSourceRejectsFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "source_test")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	filePath := filepath.Join(tmpDir, "plain.txt")
	if err := os.WriteFile(filePath, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewDirSource(filePath, nil); err == nil {
		t.Error("expected error for non-directory path")
	}
}
