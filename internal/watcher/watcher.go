// Package watcher detects file additions, modifications, and removals by
// polling a source and comparing fresh metadata against the last pass.
package watcher

import (
	"context"
	"sync"
	"time"

	"arrowtail/internal/metadata"
	"arrowtail/internal/metrics"
	"arrowtail/internal/source"
)

// Kind classifies a detected change.
type Kind int

const (
	// KindNew is a file name never seen before.
	KindNew Kind = iota
	// KindModified is a tracked file whose size or mtime changed.
	KindModified
	// KindRemoved is a tracked file absent from the current listing.
	KindRemoved
)

// String returns the string representation of the change kind.
func (k Kind) String() string {
	switch k {
	case KindNew:
		return "new"
	case KindModified:
		return "modified"
	case KindRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event represents one detected change. Events are ephemeral: produced and
// consumed within one polling cycle, never persisted.
type Event struct {
	Kind   Kind
	Handle source.Handle // nil for removals
	Meta   source.Metadata
}

// Detector polls a source on a timer and emits change events.
type Detector struct {
	src   source.Source
	store *metadata.Store

	events chan Event
	errors chan error
	hints  chan struct{}

	// passMu serializes detection passes; a direct CheckForChanges call
	// and a tick-triggered pass never interleave.
	passMu sync.Mutex

	// mu guards the ticker lifecycle.
	mu   sync.Mutex
	stop chan struct{}
	wg   sync.WaitGroup

	hinter *fsHinter
}

// New creates a detector over src with an empty metadata store.
func New(src source.Source) *Detector {
	return &Detector{
		src:    src,
		store:  metadata.NewStore(),
		events: make(chan Event, 256),
		errors: make(chan error, 16),
		hints:  make(chan struct{}, 1),
	}
}

// Events returns the channel of change events.
func (d *Detector) Events() <-chan Event {
	return d.events
}

// Errors returns the channel of failed-pass errors.
func (d *Detector) Errors() <-chan error {
	return d.errors
}

// TrackedFiles returns the number of files currently tracked.
func (d *Detector) TrackedFiles() int {
	return d.store.Len()
}

// Start begins periodic polling. Calling Start again cancels any prior
// timer before starting a new one; there is at most one active timer per
// detector.
func (d *Detector) Start(interval time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stop != nil {
		close(d.stop)
		d.wg.Wait()
	}

	stop := make(chan struct{})
	d.stop = stop
	d.wg.Add(1)
	go d.run(interval, stop)
}

// Stop cancels the polling timer. An in-flight pass is allowed to complete.
// Stop is idempotent.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.hinter != nil {
		d.hinter.close()
		d.hinter = nil
	}

	if d.stop == nil {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.stop = nil
}

func (d *Detector) run(interval time.Duration, stop chan struct{}) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			d.runPass(stop)
		case <-d.hints:
			d.runPass(stop)
		}
	}
}

// runPass performs one detection pass and forwards its events. A failed
// pass is reported and watching continues on the next tick.
func (d *Detector) runPass(stop chan struct{}) {
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		select {
		case d.errors <- err:
		default:
		}
		return
	}

	for _, e := range events {
		select {
		case d.events <- e:
		case <-stop:
			return
		}
	}
}

// CheckForChanges performs one detection pass and returns the events it
// produced. It is callable directly, independent of the timer; passes are
// serialized either way.
func (d *Detector) CheckForChanges(ctx context.Context) ([]Event, error) {
	d.passMu.Lock()
	defer d.passMu.Unlock()
	start := time.Now()

	// A listing failure aborts the pass before any store mutation.
	handles, err := d.src.List(ctx)
	if err != nil {
		return nil, err
	}

	var events []Event
	seen := make(map[string]bool, len(handles))

	for _, h := range handles {
		// Always stat fresh; stale metadata is the one thing this
		// component exists to detect.
		meta, err := d.src.Stat(ctx, h)
		if err != nil {
			// Skip this file but keep its record: a transient stat
			// failure must not look like a removal.
			if _, ok := d.store.Lookup(h.Name()); ok {
				seen[h.Name()] = true
			}
			continue
		}
		seen[meta.Name] = true

		prev, ok := d.store.Lookup(meta.Name)
		switch {
		case !ok:
			d.store.Put(metadata.Record{Name: meta.Name, Size: meta.Size, ModTime: meta.ModTime})
			events = append(events, Event{Kind: KindNew, Handle: h, Meta: meta})
		case prev.Changed(meta.Size, meta.ModTime):
			d.store.Put(metadata.Record{Name: meta.Name, Size: meta.Size, ModTime: meta.ModTime})
			events = append(events, Event{Kind: KindModified, Handle: h, Meta: meta})
		}
	}

	// Names tracked but absent from this listing are removals.
	for _, name := range d.store.Names() {
		if seen[name] {
			continue
		}
		d.store.Delete(name)
		events = append(events, Event{Kind: KindRemoved, Meta: source.Metadata{Name: name}})
	}

	metrics.RecordDetectionPass(time.Since(start), d.store.Len())
	return events, nil
}

// EnableHints wires fsnotify wake hints for directory sources: a filesystem
// event triggers an immediate pass instead of waiting for the next tick.
// Polling remains the source of truth; hints are best-effort.
func (d *Detector) EnableHints() error {
	dir, ok := d.src.(*source.DirSource)
	if !ok {
		return nil // only directory sources can hint
	}

	hinter, err := newFSHinter(dir.Dir(), d.hints)
	if err != nil {
		return err
	}

	d.mu.Lock()
	if d.hinter != nil {
		d.hinter.close()
	}
	d.hinter = hinter
	d.mu.Unlock()
	return nil
}
