package vfs

import (
	"sync"

	"golang.org/x/sync/errgroup"
)

// prefetchWorkers bounds the parallel file reads of the bulk walk.
const prefetchWorkers = 16

// Prefetch is a one-shot read cache filled by a bulk directory walk before
// the initial snapshot. Every hit removes the entry, so cached content can
// never mask a live filesystem change once the initial build is done.
type Prefetch struct {
	mu        sync.Mutex
	contents  map[string][]byte
	canonical map[string]string
}

// NewPrefetch walks every root in parallel, reading all files underneath and
// recording canonical paths. Unreadable entries are skipped; the cache is an
// optimization, not a source of truth.
func NewPrefetch(v *Vfs, roots []string) *Prefetch {
	p := &Prefetch{
		contents:  make(map[string][]byte),
		canonical: make(map[string]string),
	}

	var group errgroup.Group
	group.SetLimit(prefetchWorkers)
	for _, root := range roots {
		p.walk(v, &group, root)
	}
	_ = group.Wait()
	return p
}

func (p *Prefetch) walk(v *Vfs, group *errgroup.Group, path string) {
	meta, err := v.backend.Metadata(path)
	if err != nil {
		return
	}
	if canon, err := v.backend.Canonicalize(path); err == nil {
		p.mu.Lock()
		p.canonical[path] = canon
		p.mu.Unlock()
	}
	if meta.IsFile {
		group.Go(func() error {
			data, err := v.backend.Read(path)
			if err != nil {
				return nil
			}
			p.mu.Lock()
			p.contents[path] = data
			p.mu.Unlock()
			return nil
		})
		return
	}
	children, err := v.backend.ReadDir(path)
	if err != nil {
		return
	}
	for _, child := range children {
		p.walk(v, group, child)
	}
}

// Take removes and returns the cached contents for a path.
func (p *Prefetch) Take(path string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.contents[path]
	if ok {
		delete(p.contents, path)
	}
	return data, ok
}

// Canonical returns the canonical path recorded during the walk, if any.
func (p *Prefetch) Canonical(path string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	canon, ok := p.canonical[path]
	return canon, ok
}

// Len reports how many file entries remain unclaimed.
func (p *Prefetch) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.contents)
}
