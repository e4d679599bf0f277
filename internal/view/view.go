// Package view holds the records currently shown by the dashboard.
package view

import (
	"sync"
)

// TraceRow is one span row in the trace table.
type TraceRow struct {
	TraceID    string `json:"trace_id"`
	SpanID     string `json:"span_id"`
	Service    string `json:"service"`
	Name       string `json:"name"`
	StartNs    int64  `json:"start_ns"`
	DurationNs int64  `json:"duration_ns"`
	Status     string `json:"status"`
}

// MetricPoint is one point on a metric graph.
type MetricPoint struct {
	Name   string  `json:"name"`
	TimeNs int64   `json:"time_ns"`
	Value  float64 `json:"value"`
	Attrs  string  `json:"attrs,omitempty"`
}

// View is the single owner of the in-view record set. It supports exactly
// two inbound delivery semantics: full replacement and additive batches.
type View struct {
	mu       sync.RWMutex
	traces   []TraceRow
	points   []MetricPoint
	selected string // selected trace id; empty means none
}

// New creates an empty view.
func New() *View {
	return &View{}
}

// ReplaceAll makes the given records the only ones in view.
func (v *View) ReplaceAll(traces []TraceRow, points []MetricPoint) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.traces = append([]TraceRow(nil), traces...)
	v.points = append([]MetricPoint(nil), points...)
}

// AppendBatch adds records to the existing in-view set without removing
// anything.
func (v *View) AppendBatch(traces []TraceRow, points []MetricPoint) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.traces = append(v.traces, traces...)
	v.points = append(v.points, points...)
}

// TraceCount returns the number of trace rows in view.
func (v *View) TraceCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.traces)
}

// PointCount returns the number of metric points in view.
func (v *View) PointCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.points)
}

// TrimTraces drops the oldest trace rows until at most max remain.
func (v *View) TrimTraces(max int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if max < 0 || len(v.traces) <= max {
		return
	}
	v.traces = v.traces[len(v.traces)-max:]
}

// TrimPoints drops the oldest metric points until at most max remain.
func (v *View) TrimPoints(max int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if max < 0 || len(v.points) <= max {
		return
	}
	v.points = v.points[len(v.points)-max:]
}

// Select marks a trace id as the detail selection.
func (v *View) Select(traceID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = traceID
}

// Selected returns the selected trace id, if any.
func (v *View) Selected() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.selected
}

// ClearSelection clears the detail selection.
func (v *View) ClearSelection() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.selected = ""
}

// Snapshot returns copies of the in-view records.
func (v *View) Snapshot() ([]TraceRow, []MetricPoint) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	traces := append([]TraceRow(nil), v.traces...)
	points := append([]MetricPoint(nil), v.points...)
	return traces, points
}
