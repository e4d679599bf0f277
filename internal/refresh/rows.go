package refresh

import (
	"fmt"
	"time"

	"arrowtail/internal/engine"
	"arrowtail/internal/view"
)

// Column mapping is tolerant: registered files carry whatever schema the
// producer wrote, so rows are classified by the columns they have. A table
// with a trace_id column holds spans; a table with a value column (and no
// trace_id) holds metric points.

func colIndex(cols []string) map[string]int {
	idx := make(map[string]int, len(cols))
	for i, c := range cols {
		idx[c] = i
	}
	return idx
}

func tracesFromRows(rows *engine.Rows, filters Filters) []view.TraceRow {
	idx := colIndex(rows.Columns)
	traceID, ok := idx["trace_id"]
	if !ok {
		return nil
	}

	var out []view.TraceRow
	for _, row := range rows.Values {
		tr := view.TraceRow{
			TraceID:    asString(row[traceID]),
			SpanID:     stringCol(row, idx, "span_id"),
			Service:    stringCol(row, idx, "service", "service_name"),
			Name:       stringCol(row, idx, "name", "span_name"),
			StartNs:    intCol(row, idx, "start_ns", "start_time_unix_nano"),
			DurationNs: intCol(row, idx, "duration_ns", "duration"),
			Status:     stringCol(row, idx, "status", "status_code"),
		}
		if filters.Service != "" && tr.Service != filters.Service {
			continue
		}
		out = append(out, tr)
	}
	return out
}

func pointsFromRows(rows *engine.Rows) []view.MetricPoint {
	idx := colIndex(rows.Columns)
	if _, isTrace := idx["trace_id"]; isTrace {
		return nil
	}
	value, ok := idx["value"]
	if !ok {
		return nil
	}

	var out []view.MetricPoint
	for _, row := range rows.Values {
		out = append(out, view.MetricPoint{
			Name:   stringCol(row, idx, "name", "metric_name"),
			TimeNs: intCol(row, idx, "time_ns", "time_unix_nano", "timestamp"),
			Value:  asFloat(row[value]),
			Attrs:  stringCol(row, idx, "attrs", "attributes"),
		})
	}
	return out
}

func stringCol(row []any, idx map[string]int, names ...string) string {
	for _, name := range names {
		if i, ok := idx[name]; ok {
			return asString(row[i])
		}
	}
	return ""
}

func intCol(row []any, idx map[string]int, names ...string) int64 {
	for _, name := range names {
		if i, ok := idx[name]; ok {
			return asInt(row[i])
		}
	}
	return 0
}

func asString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func asInt(v any) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case float64:
		return int64(t)
	case time.Time:
		return t.UnixNano()
	default:
		return 0
	}
}

func asFloat(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	default:
		return 0
	}
}
