package engine

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// columnDef is one decoded column: its name and sqlite affinity.
type columnDef struct {
	Name string
	Type string
}

// decoded is the flattened content of one Arrow IPC payload.
type decoded struct {
	Columns []columnDef
	Rows    [][]any
}

// decodeIPC parses an Arrow IPC payload. Producers write the stream
// format; the file format is accepted as a fallback.
func decodeIPC(data []byte) (*decoded, error) {
	if rdr, err := ipc.NewReader(bytes.NewReader(data)); err == nil {
		defer rdr.Release()
		return flattenStream(rdr)
	}

	frdr, err := ipc.NewFileReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse arrow ipc: %w", err)
	}
	defer frdr.Close()
	return flattenFile(frdr)
}

func flattenStream(rdr *ipc.Reader) (*decoded, error) {
	out := &decoded{Columns: schemaColumns(rdr.Schema())}
	for rdr.Next() {
		appendRecord(out, rdr.Record())
	}
	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return out, nil
}

func flattenFile(frdr *ipc.FileReader) (*decoded, error) {
	out := &decoded{Columns: schemaColumns(frdr.Schema())}
	for i := 0; i < frdr.NumRecords(); i++ {
		rec, err := frdr.Record(i)
		if err != nil {
			return nil, fmt.Errorf("read arrow record %d: %w", i, err)
		}
		appendRecord(out, rec)
	}
	return out, nil
}

func schemaColumns(schema *arrow.Schema) []columnDef {
	cols := make([]columnDef, 0, schema.NumFields())
	for _, f := range schema.Fields() {
		cols = append(cols, columnDef{Name: f.Name, Type: sqliteType(f.Type)})
	}
	return cols
}

// sqliteType maps an Arrow type to a sqlite column affinity.
func sqliteType(dt arrow.DataType) string {
	switch dt.ID() {
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64,
		arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64,
		arrow.BOOL, arrow.TIMESTAMP, arrow.DATE32, arrow.DATE64,
		arrow.TIME32, arrow.TIME64, arrow.DURATION:
		return "INTEGER"
	case arrow.FLOAT32, arrow.FLOAT64:
		return "REAL"
	case arrow.BINARY, arrow.LARGE_BINARY:
		return "BLOB"
	default:
		return "TEXT"
	}
}

func appendRecord(out *decoded, rec arrow.Record) {
	nRows := int(rec.NumRows())
	nCols := int(rec.NumCols())
	for i := 0; i < nRows; i++ {
		row := make([]any, nCols)
		for j := 0; j < nCols; j++ {
			row[j] = cellValue(rec.Column(j), i)
		}
		out.Rows = append(out.Rows, row)
	}
}

// cellValue extracts one cell as a driver-friendly Go value.
func cellValue(col arrow.Array, i int) any {
	if col.IsNull(i) {
		return nil
	}
	switch arr := col.(type) {
	case *array.Int8:
		return int64(arr.Value(i))
	case *array.Int16:
		return int64(arr.Value(i))
	case *array.Int32:
		return int64(arr.Value(i))
	case *array.Int64:
		return arr.Value(i)
	case *array.Uint8:
		return int64(arr.Value(i))
	case *array.Uint16:
		return int64(arr.Value(i))
	case *array.Uint32:
		return int64(arr.Value(i))
	case *array.Uint64:
		return int64(arr.Value(i))
	case *array.Float32:
		return float64(arr.Value(i))
	case *array.Float64:
		return arr.Value(i)
	case *array.Boolean:
		if arr.Value(i) {
			return int64(1)
		}
		return int64(0)
	case *array.String:
		return arr.Value(i)
	case *array.LargeString:
		return arr.Value(i)
	case *array.Binary:
		return arr.Value(i)
	case *array.LargeBinary:
		return arr.Value(i)
	case *array.Timestamp:
		return int64(arr.Value(i))
	case *array.Duration:
		return int64(arr.Value(i))
	default:
		return col.ValueStr(i)
	}
}
