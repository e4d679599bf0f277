// Package ingest drives registration of changed files against the query
// engine and owns the file-to-table index.
package ingest

import (
	"sync"
)

// Entry is one file-to-table mapping.
type Entry struct {
	Name  string `json:"name"`
	Table string `json:"table"`
}

// TableIndex is the ordered mapping from logical file name to table
// identifier. Insertion order is significant: it is the eviction order.
// A name maps to at most one identifier; upserting an existing name
// overwrites the identifier and keeps the name's position.
type TableIndex struct {
	mu     sync.RWMutex
	names  []string
	byName map[string]string
}

// NewTableIndex creates an empty index.
func NewTableIndex() *TableIndex {
	return &TableIndex{byName: make(map[string]string)}
}

// Get returns the table identifier for name, if present.
func (ix *TableIndex) Get(name string) (string, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	table, ok := ix.byName[name]
	return table, ok
}

// Upsert sets name's table identifier. New names append to the eviction
// order; existing names keep their position.
func (ix *TableIndex) Upsert(name, table string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if _, ok := ix.byName[name]; !ok {
		ix.names = append(ix.names, name)
	}
	ix.byName[name] = table
}

// Remove deletes name's entry. It reports whether an entry existed.
func (ix *TableIndex) Remove(name string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(name)
}

func (ix *TableIndex) removeLocked(name string) bool {
	if _, ok := ix.byName[name]; !ok {
		return false
	}
	delete(ix.byName, name)
	for i, n := range ix.names {
		if n == name {
			ix.names = append(ix.names[:i], ix.names[i+1:]...)
			break
		}
	}
	return true
}

// RemoveByTable deletes every entry mapped to table and returns the
// removed names. Guards against accidental duplicate mappings.
func (ix *TableIndex) RemoveByTable(table string) []string {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	var removed []string
	for name, t := range ix.byName {
		if t == table {
			removed = append(removed, name)
		}
	}
	for _, name := range removed {
		ix.removeLocked(name)
	}
	return removed
}

// Oldest returns up to n names in insertion order.
func (ix *TableIndex) Oldest(n int) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if n > len(ix.names) {
		n = len(ix.names)
	}
	return append([]string(nil), ix.names[:n]...)
}

// Len returns the number of entries.
func (ix *TableIndex) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.names)
}

// Tables returns all table identifiers in insertion order.
func (ix *TableIndex) Tables() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	tables := make([]string, 0, len(ix.names))
	for _, name := range ix.names {
		tables = append(tables, ix.byName[name])
	}
	return tables
}

// Entries returns all mappings in insertion order.
func (ix *TableIndex) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	entries := make([]Entry, 0, len(ix.names))
	for _, name := range ix.names {
		entries = append(entries, Entry{Name: name, Table: ix.byName[name]})
	}
	return entries
}
