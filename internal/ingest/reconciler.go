package ingest

import (
	"context"
	"sync"

	"arrowtail/internal/logging"
	"arrowtail/internal/metrics"
	"arrowtail/internal/refresh"
)

// Reconciler keeps the file-to-table index consistent with the engine.
// When a query reports a table missing (evicted, dropped out of band), the
// reconciler removes every index entry that still points at it, so the
// next refresh cycle stops querying it.
type Reconciler struct {
	index     *TableIndex
	refresher Refresher
	log       *logging.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewReconciler creates a reconciler. refresher may be nil if nobody needs
// a resync after cleanup.
func NewReconciler(index *TableIndex, refresher Refresher, log *logging.Logger) *Reconciler {
	if log == nil {
		log = logging.Default()
	}
	return &Reconciler{
		index:     index,
		refresher: refresher,
		log:       log.WithComponent("reconciler"),
	}
}

// OnTablesMissing removes every index entry mapped to one of the reported
// identifiers. Identifiers with no entry are ignored, so reconciliation is
// idempotent: reporting the same identifier twice is harmless.
func (r *Reconciler) OnTablesMissing(ctx context.Context, ids []string) {
	removed := 0
	for _, id := range ids {
		for _, name := range r.index.RemoveByTable(id) {
			r.log.Warn("table vanished, dropping index entry", "file", name, "table", id)
			removed++
		}
	}
	if removed == 0 {
		return
	}

	metrics.RecordReconciliations(removed)
	metrics.SetLoadedTables(r.index.Len())

	if r.refresher != nil {
		if err := r.refresher.Refresh(ctx, refresh.Replace); err != nil {
			r.log.Error("view refresh failed after reconciliation", "error", err)
		}
	}
}

// Run drains missing-table reports until the channel closes or Stop is
// called.
func (r *Reconciler) Run(missing <-chan []string) {
	r.mu.Lock()
	if r.stop != nil {
		r.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	r.stop = stop
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-stop:
				return
			case ids, ok := <-missing:
				if !ok {
					return
				}
				r.OnTablesMissing(context.Background(), ids)
			}
		}
	}()
}

// Stop halts report draining.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop == nil {
		return
	}
	close(r.stop)
	r.wg.Wait()
	r.stop = nil
}
