package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"arrowtail/internal/engine"
	"arrowtail/internal/logging"
	"arrowtail/internal/metrics"
	"arrowtail/internal/refresh"
	"arrowtail/internal/source"
	"arrowtail/internal/watcher"
)

// Refresher delivers current engine state to the view.
type Refresher interface {
	Refresh(ctx context.Context, mode refresh.Mode) error
}

// Options tunes coordinator behavior.
type Options struct {
	// SettleDelay is how long to wait after a change is detected before
	// reading the file, so a writer mid-flush gets a chance to finish.
	SettleDelay time.Duration

	// MaxFileSize is a soft ceiling: oversize files are still ingested
	// but logged. Zero disables the check.
	MaxFileSize int64

	// LiveTail reports whether live-tail mode is active. Updates to
	// already-registered files are delivered additively only when it is.
	LiveTail func() bool
}

// Coordinator consumes change events and drives ingestion: read the file,
// register it with the engine, update the file-to-table index, and trigger
// a view refresh. Failures are isolated per file; a bad file never blocks
// the rest of the stream.
type Coordinator struct {
	src       source.Source
	eng       engine.Engine
	index     *TableIndex
	refresher Refresher
	limiter   *Limiter
	opts      Options
	log       *logging.Logger

	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewCoordinator creates a coordinator. limiter may be nil to disable
// ceiling enforcement; log may be nil for the default logger.
func NewCoordinator(src source.Source, eng engine.Engine, index *TableIndex, refresher Refresher, limiter *Limiter, opts Options, log *logging.Logger) *Coordinator {
	if opts.LiveTail == nil {
		opts.LiveTail = func() bool { return false }
	}
	if log == nil {
		log = logging.Default()
	}
	return &Coordinator{
		src:       src,
		eng:       eng,
		index:     index,
		refresher: refresher,
		limiter:   limiter,
		opts:      opts,
		log:       log.WithComponent("ingest"),
	}
}

// Run consumes events until the channel closes or Stop is called.
func (c *Coordinator) Run(events <-chan watcher.Event) {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	c.stop = stop
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-stop:
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				c.Handle(context.Background(), e)
			}
		}
	}()
}

// Stop halts event consumption. The in-flight event is allowed to finish.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	close(c.stop)
	c.wg.Wait()
	c.stop = nil
}

// Handle processes a single change event.
func (c *Coordinator) Handle(ctx context.Context, e watcher.Event) {
	name := e.Meta.Name
	if name == "" && e.Handle != nil {
		name = e.Handle.Name()
	}
	if name == "" {
		return
	}

	metrics.RecordChange(e.Kind.String())

	switch e.Kind {
	case watcher.KindRemoved:
		c.handleRemoved(ctx, name)
	default:
		if err := c.ingest(ctx, name, e); err != nil {
			c.log.Error("ingestion failed", "file", name, "error", err)
		}
	}
}

// ingest reads and registers one new or modified file. The index is only
// updated after the engine accepts the file; any failure on the way leaves
// the previous mapping (and the previous table) serving queries.
func (c *Coordinator) ingest(ctx context.Context, name string, e watcher.Event) error {
	start := time.Now()
	_, isUpdate := c.index.Get(name)

	if c.opts.SettleDelay > 0 {
		// Give a writer mid-flush a moment to finish before reading.
		select {
		case <-time.After(c.opts.SettleDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if c.opts.MaxFileSize > 0 && e.Meta.Size > c.opts.MaxFileSize {
		c.log.Warn("file exceeds size ceiling, ingesting anyway",
			"file", name, "size", e.Meta.Size, "ceiling", c.opts.MaxFileSize)
	}

	data, err := c.src.Read(ctx, e.Handle, source.ReadOptions{})
	if err != nil {
		metrics.RecordIngest("read_error", 0, time.Since(start))
		return err
	}

	table, err := c.eng.RegisterFile(ctx, name, data)
	if err != nil {
		if errors.Is(err, engine.ErrNotReady) {
			// Engine still starting up; the next detection pass retries.
			c.log.Debug("engine not ready, deferring", "file", name)
			metrics.RecordIngest("deferred", 0, time.Since(start))
			return nil
		}
		metrics.RecordIngest("register_error", int64(len(data)), time.Since(start))
		return err
	}

	c.index.Upsert(name, table)
	metrics.RecordIngest("ok", int64(len(data)), time.Since(start))
	metrics.SetLoadedTables(c.index.Len())

	c.log.Info("file ingested",
		"file", name, "table", table, "bytes", len(data), "update", isUpdate)

	if c.limiter != nil {
		c.limiter.EnforceTables(ctx)
	}

	// An update to an already-registered file during live tail is additive;
	// every other path resynchronizes the view wholesale.
	mode := refresh.Replace
	if isUpdate && c.opts.LiveTail() {
		mode = refresh.Append
	}
	if err := c.refresher.Refresh(ctx, mode); err != nil {
		c.log.Error("view refresh failed", "mode", mode.String(), "error", err)
	}

	if c.limiter != nil {
		c.limiter.EnforceView()
	}
	return nil
}

// handleRemoved drops a removed file's table and index entry, then
// resynchronizes the view.
func (c *Coordinator) handleRemoved(ctx context.Context, name string) {
	table, ok := c.index.Get(name)
	if !ok {
		return
	}

	// Best effort: if the drop fails, the missing-table reconciler catches
	// the leftover on the next query against it.
	if err := c.eng.UnregisterTable(ctx, table); err != nil {
		c.log.Warn("drop table for removed file failed",
			"file", name, "table", table, "error", err)
	}
	c.index.Remove(name)
	metrics.SetLoadedTables(c.index.Len())

	c.log.Info("file removed", "file", name, "table", table)

	if err := c.refresher.Refresh(ctx, refresh.Replace); err != nil {
		c.log.Error("view refresh failed", "mode", "replace", "error", err)
	}
}
