package watcher

import (
	"github.com/fsnotify/fsnotify"
)

// fsHinter turns filesystem notifications into wake hints. Hints are
// coalesced: at most one is pending at a time.
type fsHinter struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

func newFSHinter(dir string, hints chan<- struct{}) (*fsHinter, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	h := &fsHinter{fsw: fsw, done: make(chan struct{})}
	go h.loop(hints)
	return h, nil
}

func (h *fsHinter) loop(hints chan<- struct{}) {
	for {
		select {
		case <-h.done:
			return
		case event, ok := <-h.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case hints <- struct{}{}:
			default:
				// a pass is already pending
			}
		case _, ok := <-h.fsw.Errors:
			if !ok {
				return
			}
			// Hint failures are ignorable; the poll timer still fires.
		}
	}
}

func (h *fsHinter) close() {
	close(h.done)
	h.fsw.Close()
}
