package vfs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5/osfs"
)

// debounceWindow is how long the watcher waits after the first event of a
// burst before flushing. At most one event per (path, kind) survives a
// window.
const debounceWindow = 50 * time.Millisecond

// osBackend is the real backend: billy osfs for file operations and an
// fsnotify recursive watcher for change notification.
type osBackend struct {
	billyCore

	watcher *fsnotify.Watcher
	out     chan Event

	mu      sync.Mutex
	roots   map[string]struct{}
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewOS creates a Vfs over the operating system's filesystem with a live
// recursive watcher.
func NewOS() (*Vfs, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	b := &osBackend{
		billyCore: billyCore{fs: osfs.New("/")},
		watcher:   watcher,
		out:       make(chan Event, 64),
		roots:     make(map[string]struct{}),
		closeCh:   make(chan struct{}),
	}
	raw := make(chan Event, 64)
	b.wg.Add(2)
	go b.readLoop(raw)
	go b.coalesceLoop(raw)
	return New(b), nil
}

func (b *osBackend) Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// The path may not exist yet; the absolute form is still useful.
		return abs, nil
	}
	return resolved, nil
}

// Watch registers a path. Directories are watched recursively by adding a
// watch for every descendant directory.
func (b *osBackend) Watch(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		if err := b.watcher.Add(path); err != nil {
			return err
		}
		b.mu.Lock()
		b.roots[path] = struct{}{}
		b.mu.Unlock()
		return nil
	}
	if err := b.addRecursive(path); err != nil {
		return err
	}
	b.mu.Lock()
	b.roots[path] = struct{}{}
	b.mu.Unlock()
	return nil
}

func (b *osBackend) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A directory disappearing mid-walk is not fatal.
			return nil
		}
		if d.IsDir() {
			if err := b.watcher.Add(path); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *osBackend) Unwatch(path string) error {
	b.mu.Lock()
	delete(b.roots, path)
	b.mu.Unlock()
	// Removal of descendant watches is best-effort; fsnotify drops them
	// automatically when the directories vanish.
	return b.watcher.Remove(path)
}

func (b *osBackend) Events() <-chan Event { return b.out }

func (b *osBackend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	close(b.closeCh)
	err := b.watcher.Close()
	b.wg.Wait()
	close(b.out)
	return err
}

// readLoop translates raw fsnotify events. Coarse rename events decompose
// into Remove(old); the paired Create(new) arrives as its own event. New
// directories are added to the watch set so recursion keeps holding.
func (b *osBackend) readLoop(raw chan<- Event) {
	defer b.wg.Done()
	defer close(raw)
	for {
		select {
		case <-b.closeCh:
			return
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			switch {
			case ev.Op.Has(fsnotify.Create):
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = b.addRecursive(ev.Name)
				}
				raw <- Event{Kind: EventCreate, Path: ev.Name}
			case ev.Op.Has(fsnotify.Write):
				raw <- Event{Kind: EventWrite, Path: ev.Name}
			case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
				raw <- Event{Kind: EventRemove, Path: ev.Name}
			}
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				raw <- Event{Kind: EventRescan}
			}
		}
	}
}

// coalesceLoop batches raw events into debounce windows and forwards at most
// one event per (path, kind), preserving first-seen order. The output side
// never blocks the watcher: pending events queue in memory.
func (b *osBackend) coalesceLoop(raw <-chan Event) {
	defer b.wg.Done()

	type eventKey struct {
		kind EventKind
		path string
	}

	var (
		pending []Event
		seen    = map[eventKey]struct{}{}
		outbox  []Event
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	flush := func() {
		outbox = append(outbox, pending...)
		pending = pending[:0]
		for k := range seen {
			delete(seen, k)
		}
		timerC = nil
	}

	for {
		var sendCh chan Event
		var next Event
		if len(outbox) > 0 {
			sendCh = b.out
			next = outbox[0]
		}

		select {
		case ev, ok := <-raw:
			if !ok {
				flush()
				for _, e := range outbox {
					select {
					case b.out <- e:
					case <-b.closeCh:
						return
					}
				}
				return
			}
			if ev.Kind == EventRescan {
				// Critical events bypass coalescing.
				outbox = append(outbox, ev)
				continue
			}
			key := eventKey{kind: ev.Kind, path: ev.Path}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			pending = append(pending, ev)
			if timerC == nil {
				if timer == nil {
					timer = time.NewTimer(debounceWindow)
				} else {
					timer.Reset(debounceWindow)
				}
				timerC = timer.C
			}
		case <-timerC:
			flush()
		case sendCh <- next:
			outbox = outbox[1:]
		case <-b.closeCh:
			return
		}
	}
}
