package engine

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the sqlite-backed engine. Each registered file becomes one
// table; re-registration creates a fresh generation and drops the old
// table, so the identifier may change across registrations.
type SQLite struct {
	mu      sync.Mutex
	db      *sql.DB
	tables  map[string]string // logical name -> current table identifier
	gen     uint64
	missing chan []string
}

// Open opens or creates the engine database. An empty path opens an
// in-memory database.
func Open(path string) (*SQLite, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLite{
		db:      db,
		tables:  make(map[string]string),
		missing: make(chan []string, 16),
	}, nil
}

// Close closes the database. Subsequent calls fail with ErrNotReady.
func (e *SQLite) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

// Missing delivers identifiers of tables discovered missing during queries.
func (e *SQLite) Missing() <-chan []string {
	return e.missing
}

// RegisterFile decodes an Arrow IPC payload and loads it into a fresh
// table, replacing any prior table registered under the same name.
func (e *SQLite) RegisterFile(ctx context.Context, name string, data []byte) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return "", ErrNotReady
	}

	dec, err := decodeIPC(data)
	if err != nil {
		return "", fmt.Errorf("register %s: %w", name, err)
	}
	if len(dec.Columns) == 0 {
		return "", fmt.Errorf("register %s: payload has no columns", name)
	}

	e.gen++
	table := tableName(name, e.gen)

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("register %s: begin: %w", name, err)
	}
	defer tx.Rollback()

	if err := createAndLoad(ctx, tx, table, dec); err != nil {
		return "", fmt.Errorf("register %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("register %s: commit: %w", name, err)
	}

	// The replaced generation is dropped only after the new one is
	// committed; a failed registration leaves the old table intact.
	if prev, ok := e.tables[name]; ok && prev != table {
		_, _ = e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(prev))
	}
	e.tables[name] = table

	return table, nil
}

func createAndLoad(ctx context.Context, tx *sql.Tx, table string, dec *decoded) error {
	defs := make([]string, len(dec.Columns))
	for i, c := range dec.Columns {
		defs[i] = QuoteIdent(c.Name) + " " + c.Type
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdent(table), strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(dec.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", QuoteIdent(table), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range dec.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
	}
	return nil
}

// Query runs SQL and returns the matching rows. A query that hits a
// dropped table fails with ErrNoSuchTable and reports the identifier on
// the Missing channel.
func (e *SQLite) Query(ctx context.Context, query string, args ...any) (*Rows, error) {
	e.mu.Lock()
	db := e.db
	e.mu.Unlock()

	if db == nil {
		return nil, ErrNotReady
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		if table, ok := missingTable(err); ok {
			e.reportMissing(table)
			return nil, fmt.Errorf("%w: %s", ErrNoSuchTable, table)
		}
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	out := &Rows{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Values = append(out.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query rows: %w", err)
	}
	return out, nil
}

// UnregisterTable drops a table by identifier.
func (e *SQLite) UnregisterTable(ctx context.Context, table string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return ErrNotReady
	}

	if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(table)); err != nil {
		return fmt.Errorf("unregister %s: %w", table, err)
	}
	for name, t := range e.tables {
		if t == table {
			delete(e.tables, name)
		}
	}
	return nil
}

// ClearTables drops every table the engine registered.
func (e *SQLite) ClearTables(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.db == nil {
		return ErrNotReady
	}

	for name, table := range e.tables {
		if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+QuoteIdent(table)); err != nil {
			return fmt.Errorf("clear tables: drop %s: %w", table, err)
		}
		delete(e.tables, name)
	}
	return nil
}

func (e *SQLite) reportMissing(table string) {
	select {
	case e.missing <- []string{table}:
	default:
		// Reconciler is behind; the next failed query reports again.
	}
}

// missingTable extracts the table identifier from a sqlite
// "no such table" error.
func missingTable(err error) (string, bool) {
	msg := err.Error()
	const marker = "no such table: "
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	table := msg[idx+len(marker):]
	if end := strings.IndexAny(table, " \n"); end >= 0 {
		table = table[:end]
	}
	return table, table != ""
}

// tableName derives a table identifier from a logical file name plus a
// generation counter.
func tableName(name string, gen uint64) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	sanitized := b.String()
	if sanitized == "" || (sanitized[0] >= '0' && sanitized[0] <= '9') {
		sanitized = "t_" + sanitized
	}
	return fmt.Sprintf("%s_g%d", sanitized, gen)
}

// QuoteIdent quotes an identifier for direct interpolation into SQL.
func QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
