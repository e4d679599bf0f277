package watcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"arrowtail/internal/source"
)

type fakeHandle string

func (h fakeHandle) Name() string { return string(h) }

// fakeSource is an in-memory source with scriptable failures.
type fakeSource struct {
	mu      sync.Mutex
	files   map[string]source.Metadata
	listErr error
	statErr map[string]error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		files:   make(map[string]source.Metadata),
		statErr: make(map[string]error),
	}
}

func (s *fakeSource) put(name string, size int64, modTime time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = source.Metadata{Name: name, Size: size, ModTime: modTime}
}

func (s *fakeSource) remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, name)
}

func (s *fakeSource) List(ctx context.Context) ([]source.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var handles []source.Handle
	for name := range s.files {
		handles = append(handles, fakeHandle(name))
	}
	return handles, nil
}

func (s *fakeSource) Stat(ctx context.Context, h source.Handle) (source.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.statErr[h.Name()]; err != nil {
		return source.Metadata{}, err
	}
	meta, ok := s.files[h.Name()]
	if !ok {
		return source.Metadata{}, errors.New("gone")
	}
	return meta, nil
}

func (s *fakeSource) Read(ctx context.Context, h source.Handle, opts source.ReadOptions) ([]byte, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeSource) Close() error { return nil }

func kinds(events []Event) map[string]Kind {
	m := make(map[string]Kind)
	for _, e := range events {
		m[e.Meta.Name] = e.Kind
	}
	return m
}

func TestNewFileDetected(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))

	d := New(src)
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("CheckForChanges failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindNew || events[0].Meta.Name != "a.arrow" {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Handle == nil {
		t.Error("new event must carry a handle")
	}
}

func TestIdempotentRedetection(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))

	d := New(src)
	if _, err := d.CheckForChanges(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	// Unchanged file: repeated passes never emit a second event.
	for i := 0; i < 3; i++ {
		events, err := d.CheckForChanges(context.Background())
		if err != nil {
			t.Fatalf("pass %d failed: %v", i, err)
		}
		if len(events) != 0 {
			t.Fatalf("pass %d emitted %+v", i, events)
		}
	}
}

func TestSizeOrTimeSemantics(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))

	d := New(src)
	if _, err := d.CheckForChanges(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	// Same size, newer mtime: an in-place overwrite that preserves size.
	src.put("a.arrow", 100, time.Unix(200, 0))
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindModified {
		t.Fatalf("mtime-only change: events = %+v", events)
	}

	// Changed size, identical mtime.
	src.put("a.arrow", 140, time.Unix(200, 0))
	events, err = d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindModified {
		t.Fatalf("size-only change: events = %+v", events)
	}
}

func TestZeroByteFileDetected(t *testing.T) {
	src := newFakeSource()
	src.put("empty.arrow", 0, time.Unix(100, 0))

	d := New(src)
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindNew {
		t.Fatalf("events = %+v", events)
	}
}

func TestRemoval(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))
	src.put("b.arrow", 50, time.Unix(100, 0))

	d := New(src)
	if _, err := d.CheckForChanges(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	src.remove("a.arrow")
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindRemoved || events[0].Meta.Name != "a.arrow" {
		t.Fatalf("events = %+v", events)
	}
	if d.TrackedFiles() != 1 {
		t.Errorf("TrackedFiles = %d, want 1", d.TrackedFiles())
	}

	// A removal is reported exactly once.
	events, err = d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("removal re-reported: %+v", events)
	}
}

func TestListErrorAbortsPass(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))

	d := New(src)
	src.listErr = errors.New("source unavailable")

	if _, err := d.CheckForChanges(context.Background()); err == nil {
		t.Fatal("expected listing error to propagate")
	}
	if d.TrackedFiles() != 0 {
		t.Errorf("failed pass mutated the store: %d records", d.TrackedFiles())
	}

	// The next pass is a clean retry.
	src.listErr = nil
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("retry pass failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindNew {
		t.Fatalf("retry events = %+v", events)
	}
}

func TestStatFailureIsNotARemoval(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))

	d := New(src)
	if _, err := d.CheckForChanges(context.Background()); err != nil {
		t.Fatalf("first pass failed: %v", err)
	}

	src.statErr["a.arrow"] = errors.New("transient")
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("stat failure produced events: %+v", events)
	}
	if d.TrackedFiles() != 1 {
		t.Error("stat failure dropped the record")
	}

	// Once stat recovers with changed metadata, the modification shows up.
	delete(src.statErr, "a.arrow")
	src.put("a.arrow", 140, time.Unix(200, 0))
	events, err = d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	if len(events) != 1 || events[0].Kind != KindModified {
		t.Fatalf("events = %+v", events)
	}
}

func TestStatFailureIsolatedToOneFile(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))
	src.put("b.arrow", 50, time.Unix(100, 0))
	src.statErr["a.arrow"] = errors.New("transient")

	d := New(src)
	events, err := d.CheckForChanges(context.Background())
	if err != nil {
		t.Fatalf("pass failed: %v", err)
	}
	got := kinds(events)
	if len(got) != 1 || got["b.arrow"] != KindNew {
		t.Fatalf("events = %+v", events)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	src := newFakeSource()
	src.put("a.arrow", 100, time.Unix(100, 0))

	d := New(src)
	d.Start(10 * time.Millisecond)

	select {
	case e := <-d.Events():
		if e.Kind != KindNew || e.Meta.Name != "a.arrow" {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Restart replaces the prior timer; Stop twice is fine.
	d.Start(10 * time.Millisecond)
	d.Stop()
	d.Stop()
}

func TestFailedPassReportsAndContinues(t *testing.T) {
	src := newFakeSource()
	src.listErr = errors.New("flaky")

	d := New(src)
	d.Start(10 * time.Millisecond)
	defer d.Stop()

	select {
	case err := <-d.Errors():
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for pass error")
	}

	// Recovery: clear the failure, the next tick detects the file.
	src.mu.Lock()
	src.listErr = nil
	src.mu.Unlock()
	src.put("a.arrow", 100, time.Unix(100, 0))

	select {
	case e := <-d.Events():
		if e.Kind != KindNew {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for recovery event")
	}
}

func TestEnableHintsReplacesPriorHinter(t *testing.T) {
	src, err := source.NewDirSource(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewDirSource failed: %v", err)
	}
	d := New(src)

	if err := d.EnableHints(); err != nil {
		t.Fatalf("EnableHints failed: %v", err)
	}
	first := d.hinter

	if err := d.EnableHints(); err != nil {
		t.Fatalf("second EnableHints failed: %v", err)
	}
	if d.hinter == first {
		t.Fatal("hinter not replaced")
	}
	select {
	case <-first.done:
	default:
		t.Error("previous hinter left open")
	}

	// Stop releases the active hinter even though Start was never called.
	d.Stop()
	if d.hinter != nil {
		t.Error("hinter survived Stop")
	}
}
