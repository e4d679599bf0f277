// Package refresh re-queries registered tables and delivers the results to
// the view as either a full replacement or an additive batch.
package refresh

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"arrowtail/internal/engine"
	"arrowtail/internal/metrics"
	"arrowtail/internal/view"
)

// Mode selects the delivery semantics for one refresh cycle.
type Mode int

const (
	// Replace makes the query results the only records in view.
	Replace Mode = iota
	// Append adds the results to the in-view set without removing
	// anything. Only chosen for live-tail updates of known files.
	Append
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	if m == Append {
		return "append"
	}
	return "replace"
}

// TableSet supplies the current table identifiers to query.
type TableSet interface {
	Tables() []string
}

// Filters are the active query filters.
type Filters struct {
	// Service restricts trace rows to one service name. Empty matches all.
	Service string
}

// Driver runs refresh cycles against the engine and delivers to the view.
type Driver struct {
	eng       engine.Engine
	view      *view.View
	tables    TableSet
	filters   func() Filters
	onMissing func(ids []string)

	// mu serializes refresh cycles. The high-water marks hold the newest
	// timestamp delivered so far; append cycles skip rows at or below
	// them, so an out-of-order row in an updated file waits for the next
	// replace cycle (the periodic timer, or any non-update ingestion).
	mu       sync.Mutex
	traceHWM int64 // newest start_ns delivered
	pointHWM int64 // newest time_ns delivered

	tickMu sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
}

// New creates a driver. filters may be nil for no filtering; onMissing may
// be nil if nobody reconciles evictions.
func New(eng engine.Engine, v *view.View, tables TableSet, filters func() Filters, onMissing func(ids []string)) *Driver {
	if filters == nil {
		filters = func() Filters { return Filters{} }
	}
	if onMissing == nil {
		onMissing = func([]string) {}
	}
	return &Driver{
		eng:       eng,
		view:      v,
		tables:    tables,
		filters:   filters,
		onMissing: onMissing,
	}
}

// Refresh runs one refresh cycle. With an empty table set it is a no-op.
// Missing-table failures are swallowed here: they are a signal for the
// eviction reconciler, not a user-facing error. All other query failures
// propagate.
func (d *Driver) Refresh(ctx context.Context, mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	start := time.Now()

	tables := d.tables.Tables()
	if len(tables) == 0 {
		return nil
	}

	var traces []view.TraceRow
	var points []view.MetricPoint
	filters := d.filters()

	for _, table := range tables {
		rows, err := d.eng.Query(ctx, "SELECT * FROM "+engine.QuoteIdent(table))
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrNoSuchTable):
			d.onMissing([]string{table})
			continue
		case errors.Is(err, engine.ErrNotReady):
			// Engine not initialized yet; try again next cycle.
			return nil
		default:
			return err
		}

		traces = append(traces, tracesFromRows(rows, filters)...)
		points = append(points, pointsFromRows(rows)...)
	}

	sort.Slice(traces, func(i, j int) bool { return traces[i].StartNs < traces[j].StartNs })
	sort.Slice(points, func(i, j int) bool { return points[i].TimeNs < points[j].TimeNs })

	hadTraces := d.view.TraceCount() > 0

	switch mode {
	case Append:
		newTraces := tracesAfter(traces, d.traceHWM)
		newPoints := pointsAfter(points, d.pointHWM)
		d.view.AppendBatch(newTraces, newPoints)
	default:
		d.view.ReplaceAll(traces, points)
	}

	if n := len(traces); n > 0 {
		d.traceHWM = traces[n-1].StartNs
	}
	if n := len(points); n > 0 {
		d.pointHWM = points[n-1].TimeNs
	}

	// A selected record whose data vanished must not keep showing stale
	// detail.
	if hadTraces && d.view.TraceCount() == 0 {
		d.view.ClearSelection()
	}

	metrics.RecordRefresh(mode.String(), time.Since(start))
	return nil
}

func tracesAfter(traces []view.TraceRow, hwm int64) []view.TraceRow {
	i := sort.Search(len(traces), func(i int) bool { return traces[i].StartNs > hwm })
	return traces[i:]
}

func pointsAfter(points []view.MetricPoint, hwm int64) []view.MetricPoint {
	i := sort.Search(len(points), func(i int) bool { return points[i].TimeNs > hwm })
	return points[i:]
}

// StartTicker begins periodic refreshes. Timer-triggered cycles always use
// Replace: Append is reserved for refreshes triggered by an update to an
// already-known file. Errors from periodic cycles go to onErr.
func (d *Driver) StartTicker(interval time.Duration, onErr func(error)) {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()

	if d.stop != nil {
		close(d.stop)
		d.wg.Wait()
	}
	if interval <= 0 {
		d.stop = nil
		return
	}

	stop := make(chan struct{})
	d.stop = stop
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := d.Refresh(context.Background(), Replace); err != nil && onErr != nil {
					onErr(err)
				}
			}
		}
	}()
}

// StopTicker cancels the periodic refresh timer.
func (d *Driver) StopTicker() {
	d.tickMu.Lock()
	defer d.tickMu.Unlock()
	if d.stop == nil {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.stop = nil
}
