// Package vfs provides a uniform filesystem abstraction with change
// watching. Two real backends exist: an OS backend over go-billy's osfs plus
// an fsnotify recursive watcher, and an in-memory backend over go-billy's
// memfs whose events are committed explicitly by tests. A third no-op backend
// rejects every operation and backs trees built purely from in-memory
// snapshots.
package vfs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// EventKind classifies a filesystem change notification.
type EventKind uint8

const (
	EventCreate EventKind = iota
	EventWrite
	EventRemove
	// EventRescan signals that the watcher lost events (kernel queue
	// overflow) and the whole tree must be re-snapshotted. Recoverable.
	EventRescan
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "Create"
	case EventWrite:
		return "Write"
	case EventRemove:
		return "Remove"
	case EventRescan:
		return "RescanRequired"
	}
	return "Unknown"
}

// Event is a single filesystem change notification.
type Event struct {
	Kind EventKind
	Path string
}

// Metadata is the subset of file metadata the sync engine needs.
type Metadata struct {
	IsFile bool
}

// ErrNotSupported is returned by the no-op backend for every operation.
var ErrNotSupported = errors.New("filesystem operations are not supported by this backend")

// Backend is the pluggable filesystem interface.
type Backend interface {
	Read(path string) ([]byte, error)
	Write(path string, data []byte) error
	Rename(oldPath, newPath string) error
	// ReadDir returns the full paths of the directory's children, sorted by
	// name.
	ReadDir(path string) ([]string, error)
	CreateDir(path string) error
	CreateDirAll(path string) error
	RemoveFile(path string) error
	RemoveDirAll(path string) error
	Metadata(path string) (Metadata, error)
	Canonicalize(path string) (string, error)
	// Watch registers interest in a path. Watching a directory notifies
	// recursively about all descendants.
	Watch(path string) error
	Unwatch(path string) error
	Events() <-chan Event
	Close() error
}

// Vfs fronts a backend with watch bookkeeping and the optional prefetch
// cache used during initial snapshot builds.
type Vfs struct {
	backend Backend

	mu       sync.Mutex
	watched  map[string]struct{}
	prefetch *Prefetch
}

// New wraps a backend.
func New(backend Backend) *Vfs {
	return &Vfs{
		backend: backend,
		watched: make(map[string]struct{}),
	}
}

// SetPrefetch installs a one-shot read cache. Read consults it first; each
// hit removes the entry so stale content cannot mask a later live change.
func (v *Vfs) SetPrefetch(p *Prefetch) {
	v.mu.Lock()
	v.prefetch = p
	v.mu.Unlock()
}

// ClearPrefetch drops the prefetch cache. Called after the initial snapshot
// applies.
func (v *Vfs) ClearPrefetch() {
	v.mu.Lock()
	v.prefetch = nil
	v.mu.Unlock()
}

// Read returns the file's contents.
func (v *Vfs) Read(path string) ([]byte, error) {
	v.mu.Lock()
	p := v.prefetch
	v.mu.Unlock()
	if p != nil {
		if data, ok := p.Take(path); ok {
			return data, nil
		}
	}
	return v.backend.Read(path)
}

// ReadString reads a file as UTF-8 text with CRLF sequences normalized to
// LF. Script sources go through this so that Windows checkouts and the tree
// agree on content.
func (v *Vfs) ReadString(path string) (string, error) {
	data, err := v.Read(path)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(data), "\r\n", "\n"), nil
}

func (v *Vfs) Write(path string, data []byte) error  { return v.backend.Write(path, data) }
func (v *Vfs) Rename(oldPath, newPath string) error  { return v.backend.Rename(oldPath, newPath) }
func (v *Vfs) ReadDir(path string) ([]string, error) { return v.backend.ReadDir(path) }
func (v *Vfs) CreateDir(path string) error           { return v.backend.CreateDir(path) }
func (v *Vfs) CreateDirAll(path string) error        { return v.backend.CreateDirAll(path) }
func (v *Vfs) RemoveFile(path string) error          { return v.backend.RemoveFile(path) }
func (v *Vfs) RemoveDirAll(path string) error        { return v.backend.RemoveDirAll(path) }

func (v *Vfs) Metadata(path string) (Metadata, error) { return v.backend.Metadata(path) }

// Exists reports whether the path exists at all.
func (v *Vfs) Exists(path string) bool {
	_, err := v.backend.Metadata(path)
	return err == nil
}

func (v *Vfs) Canonicalize(path string) (string, error) {
	v.mu.Lock()
	p := v.prefetch
	v.mu.Unlock()
	if p != nil {
		if canon, ok := p.Canonical(path); ok {
			return canon, nil
		}
	}
	return v.backend.Canonicalize(path)
}

// Watch starts watching a path. The watch is recorded only after the backend
// call succeeds, so a registration failure does not poison the watch set.
func (v *Vfs) Watch(path string) error {
	if err := v.backend.Watch(path); err != nil {
		return err
	}
	v.mu.Lock()
	v.watched[path] = struct{}{}
	v.mu.Unlock()
	return nil
}

// Unwatch stops watching a path. Unwatching a path that was never watched is
// silently dropped.
func (v *Vfs) Unwatch(path string) error {
	v.mu.Lock()
	_, known := v.watched[path]
	delete(v.watched, path)
	v.mu.Unlock()
	if !known {
		return nil
	}
	return v.backend.Unwatch(path)
}

// Events returns the backend's change notification channel.
func (v *Vfs) Events() <-chan Event { return v.backend.Events() }

// Close shuts down the backend and any watcher threads.
func (v *Vfs) Close() error { return v.backend.Close() }

// IsNotExist reports whether an error from any backend means "path absent".
func IsNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
