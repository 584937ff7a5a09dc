package vfs

import (
	"path"

	"github.com/go-git/go-billy/v5/memfs"
)

// memBackend is the in-memory backend used by tests and offline tree builds.
// Paths are virtual (slash-separated), and events fire only when a test
// commits them explicitly, which keeps event-driven tests deterministic.
type memBackend struct {
	billyCore
	events chan Event
}

// NewMem creates a Vfs over an empty in-memory filesystem.
func NewMem() *Vfs {
	return New(&memBackend{
		billyCore: billyCore{fs: memfs.New()},
		events:    make(chan Event, 256),
	})
}

func (b *memBackend) Canonicalize(p string) (string, error) {
	cleaned := path.Clean(p)
	if !path.IsAbs(cleaned) {
		cleaned = "/" + cleaned
	}
	return cleaned, nil
}

func (b *memBackend) Watch(string) error   { return nil }
func (b *memBackend) Unwatch(string) error { return nil }

func (b *memBackend) Events() <-chan Event { return b.events }

func (b *memBackend) Close() error {
	close(b.events)
	return nil
}

// CommitEvent injects a watcher event, simulating what the OS watcher would
// deliver after the corresponding mutation.
func (b *memBackend) CommitEvent(ev Event) {
	b.events <- ev
}

// CommitEvent forwards to the in-memory backend. It panics when the Vfs is
// not backed by one; only tests call this.
func (v *Vfs) CommitEvent(ev Event) {
	v.backend.(*memBackend).CommitEvent(ev)
}
