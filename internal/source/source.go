// Package source abstracts the file sources arrowtail can tail: a local
// directory of Arrow IPC files or an S3/MinIO bucket.
package source

import (
	"context"
	"fmt"
	"time"
)

// Metadata is a fresh size/mtime observation for one file.
type Metadata struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Handle identifies one file within a source.
type Handle interface {
	// Name returns the logical file name used as the ingestion key.
	Name() string
}

// ReadOptions tunes full-content reads.
type ReadOptions struct {
	// ChunkSize is the read buffer size. Zero uses a source default.
	ChunkSize int
}

// Source lists files and serves fresh metadata and content.
//
// Stat must never serve cached metadata; staleness there is exactly
// what the change detector exists to catch.
type Source interface {
	List(ctx context.Context) ([]Handle, error)
	Stat(ctx context.Context, h Handle) (Metadata, error)
	Read(ctx context.Context, h Handle, opts ReadOptions) ([]byte, error)
	Close() error
}

// ReadError is a file-read failure wrapping the underlying cause.
type ReadError struct {
	Name string
	Err  error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read file %s: %v", e.Name, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

const defaultChunkSize = 1 << 20 // 1 MB
