// Package metadata tracks last-known file metadata between detection passes.
package metadata

import (
	"sync"
	"time"
)

// Record is the last-known metadata for one logical file name.
type Record struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Changed reports whether fresh metadata differs from the record.
// Size and modification time are ORed so in-place overwrites that
// preserve size are still detected.
func (r Record) Changed(size int64, modTime time.Time) bool {
	return r.Size != size || !r.ModTime.Equal(modTime)
}

// Store holds one Record per logical file name. Pure in-memory state.
type Store struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStore creates an empty metadata store.
func NewStore() *Store {
	return &Store{records: make(map[string]Record)}
}

// Lookup returns the record for name, if present.
func (s *Store) Lookup(name string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[name]
	return r, ok
}

// Put replaces the record for name. Records are never merged.
func (s *Store) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.Name] = r
}

// Delete removes the record for name.
func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, name)
}

// Names returns all tracked names.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.records))
	for name := range s.records {
		names = append(names, name)
	}
	return names
}

// Len returns the number of tracked names.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
