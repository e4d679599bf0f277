package source

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
)

// DirSource tails a local directory. Only the top level is listed;
// producers drop Arrow files flat into the export directory.
type DirSource struct {
	dir      string
	patterns []string
}

// dirHandle identifies a file by its path within the watched directory.
type dirHandle struct {
	name string
	path string
}

func (h dirHandle) Name() string { return h.name }

// NewDirSource creates a source over dir. Files not matching any of the
// given glob patterns are ignored; empty patterns match everything.
func NewDirSource(dir string, patterns []string) (*DirSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &ReadError{Name: dir, Err: os.ErrInvalid}
	}
	return &DirSource{dir: abs, patterns: patterns}, nil
}

// Dir returns the watched directory, for fsnotify wake hints.
func (s *DirSource) Dir() string { return s.dir }

// List returns handles for all matching files currently in the directory.
func (s *DirSource) List(ctx context.Context) ([]Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	var handles []Handle
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !s.match(name) {
			continue
		}
		handles = append(handles, dirHandle{name: name, path: filepath.Join(s.dir, name)})
	}
	return handles, nil
}

func (s *DirSource) match(name string) bool {
	if len(s.patterns) == 0 {
		return true
	}
	for _, pat := range s.patterns {
		if ok, err := filepath.Match(pat, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Stat returns fresh metadata straight from the filesystem.
func (s *DirSource) Stat(ctx context.Context, h Handle) (Metadata, error) {
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	dh, ok := h.(dirHandle)
	if !ok {
		return Metadata{}, &ReadError{Name: h.Name(), Err: os.ErrInvalid}
	}
	info, err := os.Stat(dh.path)
	if err != nil {
		return Metadata{}, err
	}
	return Metadata{Name: dh.name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Read returns the file's full current bytes.
func (s *DirSource) Read(ctx context.Context, h Handle, opts ReadOptions) ([]byte, error) {
	dh, ok := h.(dirHandle)
	if !ok {
		return nil, &ReadError{Name: h.Name(), Err: os.ErrInvalid}
	}

	f, err := os.Open(dh.path)
	if err != nil {
		return nil, &ReadError{Name: dh.name, Err: err}
	}
	defer f.Close()

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	var buf bytes.Buffer
	chunk := make([]byte, chunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return nil, &ReadError{Name: dh.name, Err: err}
		}
		n, err := f.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &ReadError{Name: dh.name, Err: err}
		}
	}
	return buf.Bytes(), nil
}

// Close is a no-op for directory sources.
func (s *DirSource) Close() error { return nil }
