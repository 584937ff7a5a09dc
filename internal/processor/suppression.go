package processor

import (
	"sync"

	"github.com/untoldecay/loom/internal/syncback"
	"github.com/untoldecay/loom/internal/vfs"
)

// suppressionRegistry drops the watcher echo of the processor's own reverse
// writes. Each planned mutation increments a per-path counter; each echo
// event decrements and is dropped. When both counters reach zero the path
// leaves the registry, so later external changes propagate normally.
type suppressionRegistry struct {
	mu      sync.Mutex
	entries map[string]*suppressionEntry
}

type suppressionEntry struct {
	pendingRemoves int
	pendingWrites  int
}

func newSuppressionRegistry() *suppressionRegistry {
	return &suppressionRegistry{entries: make(map[string]*suppressionEntry)}
}

// register records the echo events a plan is about to cause.
func (r *suppressionRegistry) register(suppressions []syncback.Suppression) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range suppressions {
		entry := r.entries[s.Path]
		if entry == nil {
			entry = &suppressionEntry{}
			r.entries[s.Path] = entry
		}
		if s.Remove {
			entry.pendingRemoves++
		} else {
			entry.pendingWrites++
		}
	}
}

// unregister rolls back a registration after a failed plan execution.
func (r *suppressionRegistry) unregister(suppressions []syncback.Suppression) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range suppressions {
		entry := r.entries[s.Path]
		if entry == nil {
			continue
		}
		if s.Remove && entry.pendingRemoves > 0 {
			entry.pendingRemoves--
		} else if !s.Remove && entry.pendingWrites > 0 {
			entry.pendingWrites--
		}
		if entry.pendingRemoves == 0 && entry.pendingWrites == 0 {
			delete(r.entries, s.Path)
		}
	}
}

// shouldDrop consumes one pending echo for the event, reporting whether the
// event is the processor's own and must be dropped.
func (r *suppressionRegistry) shouldDrop(ev vfs.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.entries[ev.Path]
	if entry == nil {
		return false
	}
	switch ev.Kind {
	case vfs.EventRemove:
		if entry.pendingRemoves == 0 {
			return false
		}
		entry.pendingRemoves--
	case vfs.EventCreate, vfs.EventWrite:
		if entry.pendingWrites == 0 {
			return false
		}
		entry.pendingWrites--
	default:
		return false
	}
	if entry.pendingRemoves == 0 && entry.pendingWrites == 0 {
		delete(r.entries, ev.Path)
	}
	return true
}
