// Package engine registers Arrow IPC payloads as queryable tables and
// answers SQL over them.
package engine

import (
	"context"
	"errors"
)

// ErrNotReady reports that the engine has not been opened yet or has been
// closed. Callers treat it as transient: retry on the next cycle.
var ErrNotReady = errors.New("engine: not ready")

// ErrNoSuchTable reports a query against a table the engine no longer
// holds. It doubles as the out-of-band eviction signal: the missing table
// identifiers are also delivered on the Missing channel.
var ErrNoSuchTable = errors.New("engine: no such table")

// Rows is a query result: column names plus row values in column order.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Engine is the query-engine client contract.
type Engine interface {
	// RegisterFile registers (or re-registers) a file's bytes under its
	// logical name and returns the table identifier. Re-registration may
	// return a different identifier than before.
	RegisterFile(ctx context.Context, name string, data []byte) (string, error)

	// Query runs SQL and returns the matching rows.
	Query(ctx context.Context, query string, args ...any) (*Rows, error)

	// UnregisterTable drops a table by identifier.
	UnregisterTable(ctx context.Context, table string) error

	// ClearTables drops every table the engine registered.
	ClearTables(ctx context.Context) error

	// Missing delivers identifiers of tables discovered missing during
	// queries, out-of-band from the query call itself.
	Missing() <-chan []string

	Close() error
}
