package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
)

// spanPayload builds an Arrow IPC stream with the given span names.
func spanPayload(t *testing.T, names ...string) []byte {
	t.Helper()

	schema := arrow.NewSchema([]arrow.Field{
		{Name: "trace_id", Type: arrow.BinaryTypes.String},
		{Name: "name", Type: arrow.BinaryTypes.String},
		{Name: "start_ns", Type: arrow.PrimitiveTypes.Int64},
		{Name: "duration_ns", Type: arrow.PrimitiveTypes.Int64},
	}, nil)

	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for i, name := range names {
		b.Field(0).(*array.StringBuilder).Append(fmt.Sprintf("trace-%04d", i))
		b.Field(1).(*array.StringBuilder).Append(name)
		b.Field(2).(*array.Int64Builder).Append(int64(1000 * (i + 1)))
		b.Field(3).(*array.Int64Builder).Append(int64(50 * (i + 1)))
	}

	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestRegisterAndQuery(t *testing.T) {
	e, err := Open("")
	require.NoError(t, err)
	defer e.Close()

	table, err := e.RegisterFile(context.Background(), "a.arrow", spanPayload(t, "GET /", "POST /ingest"))
	require.NoError(t, err)
	require.NotEmpty(t, table)

	rows, err := e.Query(context.Background(), "SELECT name, start_ns FROM "+QuoteIdent(table)+" ORDER BY start_ns")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "start_ns"}, rows.Columns)
	require.Len(t, rows.Values, 2)
	require.Equal(t, "GET /", rows.Values[0][0])
	require.Equal(t, int64(1000), rows.Values[0][1])
}

func TestReRegistrationReplacesTable(t *testing.T) {
	e, err := Open("")
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	t1, err := e.RegisterFile(ctx, "a.arrow", spanPayload(t, "one"))
	require.NoError(t, err)

	t2, err := e.RegisterFile(ctx, "a.arrow", spanPayload(t, "one", "two"))
	require.NoError(t, err)
	require.NotEqual(t, t1, t2, "re-registration assigns a new identifier")

	// The replaced generation is gone.
	_, err = e.Query(ctx, "SELECT * FROM "+QuoteIdent(t1))
	require.ErrorIs(t, err, ErrNoSuchTable)

	rows, err := e.Query(ctx, "SELECT count(*) FROM "+QuoteIdent(t2))
	require.NoError(t, err)
	require.Equal(t, int64(2), rows.Values[0][0])
}

func TestFailedRegistrationLeavesOldTable(t *testing.T) {
	e, err := Open("")
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	t1, err := e.RegisterFile(ctx, "a.arrow", spanPayload(t, "one"))
	require.NoError(t, err)

	_, err = e.RegisterFile(ctx, "a.arrow", []byte("definitely not arrow"))
	require.Error(t, err)

	rows, err := e.Query(ctx, "SELECT count(*) FROM "+QuoteIdent(t1))
	require.NoError(t, err)
	require.Equal(t, int64(1), rows.Values[0][0])
}

func TestMissingTableReported(t *testing.T) {
	e, err := Open("")
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	table, err := e.RegisterFile(ctx, "a.arrow", spanPayload(t, "one"))
	require.NoError(t, err)
	require.NoError(t, e.UnregisterTable(ctx, table))

	_, err = e.Query(ctx, "SELECT * FROM "+QuoteIdent(table))
	require.ErrorIs(t, err, ErrNoSuchTable)

	select {
	case ids := <-e.Missing():
		require.Equal(t, []string{table}, ids)
	default:
		t.Fatal("expected missing-table report")
	}
}

func TestClearTables(t *testing.T) {
	e, err := Open("")
	require.NoError(t, err)
	defer e.Close()

	ctx := context.Background()
	t1, err := e.RegisterFile(ctx, "a.arrow", spanPayload(t, "one"))
	require.NoError(t, err)
	t2, err := e.RegisterFile(ctx, "b.arrow", spanPayload(t, "two"))
	require.NoError(t, err)

	require.NoError(t, e.ClearTables(ctx))

	for _, table := range []string{t1, t2} {
		_, err := e.Query(ctx, "SELECT * FROM "+QuoteIdent(table))
		require.ErrorIs(t, err, ErrNoSuchTable)
	}
}

func TestClosedEngineIsNotReady(t *testing.T) {
	e, err := Open("")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.RegisterFile(context.Background(), "a.arrow", spanPayload(t, "one"))
	require.ErrorIs(t, err, ErrNotReady)

	_, err = e.Query(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, ErrNotReady)
}

func TestTableNameSanitization(t *testing.T) {
	cases := []struct {
		in   string
		gen  uint64
		want string
	}{
		{"a.arrow", 1, "a_g1"},
		{"trace-export.arrows", 2, "trace_export_g2"},
		{"2024 dump.arrow", 3, "t_2024_dump_g3"},
	}
	for _, tc := range cases {
		if got := tableName(tc.in, tc.gen); got != tc.want {
			t.Errorf("tableName(%q, %d) = %q, want %q", tc.in, tc.gen, got, tc.want)
		}
	}
}

func TestMissingTableParse(t *testing.T) {
	table, ok := missingTable(errors.New("no such table: spans_g4"))
	if !ok || table != "spans_g4" {
		t.Errorf("missingTable = %q, %v", table, ok)
	}
	if _, ok := missingTable(errors.New("syntax error")); ok {
		t.Error("unexpected match")
	}
}
