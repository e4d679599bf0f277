package ingest

import (
	"context"

	"arrowtail/internal/engine"
	"arrowtail/internal/logging"
	"arrowtail/internal/metrics"
	"arrowtail/internal/view"
)

// Limits are the resource ceilings the limiter enforces. Zero values
// disable the corresponding ceiling.
type Limits struct {
	MaxLoadedTables int
	MaxTraces       int
	MaxGraphPoints  int
}

// Limiter enforces resource ceilings: the number of tables registered in
// the engine and the number of records held in view. Tables are evicted
// oldest-first by registration order.
type Limiter struct {
	eng    engine.Engine
	index  *TableIndex
	view   *view.View
	limits func() Limits
	log    *logging.Logger
}

// NewLimiter creates a limiter. limits is re-read on every enforcement so
// config reloads take effect without restarting.
func NewLimiter(eng engine.Engine, index *TableIndex, v *view.View, limits func() Limits, log *logging.Logger) *Limiter {
	if log == nil {
		log = logging.Default()
	}
	return &Limiter{
		eng:    eng,
		index:  index,
		view:   v,
		limits: limits,
		log:    log.WithComponent("limiter"),
	}
}

// EnforceTables evicts the oldest registered tables until the loaded-table
// count is within the ceiling. A failed drop is logged and eviction
// continues; the index entry goes away either way, and the missing-table
// reconciler cleans up any stragglers.
func (l *Limiter) EnforceTables(ctx context.Context) {
	max := l.limits().MaxLoadedTables
	if max <= 0 {
		return
	}

	over := l.index.Len() - max
	if over <= 0 {
		return
	}

	evicted := 0
	for _, name := range l.index.Oldest(over) {
		table, ok := l.index.Get(name)
		if !ok {
			continue
		}
		if err := l.eng.UnregisterTable(ctx, table); err != nil {
			l.log.Warn("evicting table failed", "file", name, "table", table, "error", err)
		}
		l.index.Remove(name)
		evicted++
		l.log.Info("table evicted", "file", name, "table", table)
	}

	if evicted > 0 {
		metrics.RecordEvictions(evicted)
		metrics.SetLoadedTables(l.index.Len())
	}
}

// EnforceView trims the in-view record sets to their ceilings, keeping the
// newest records.
func (l *Limiter) EnforceView() {
	limits := l.limits()
	if limits.MaxTraces > 0 {
		l.view.TrimTraces(limits.MaxTraces)
	}
	if limits.MaxGraphPoints > 0 {
		l.view.TrimPoints(limits.MaxGraphPoints)
	}
	metrics.SetViewCounts(l.view.TraceCount(), l.view.PointCount())
}
