// Package processor hosts the single-threaded event loop at the heart of
// live sync. It is the only goroutine that mutates the tree: it drains and
// coalesces watcher events, re-runs middlewares on affected roots, applies
// forward patches, services plugin reverse writes, and suppresses the
// self-echo that would otherwise loop.
package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/untoldecay/loom/internal/logging"
	"github.com/untoldecay/loom/internal/msgqueue"
	"github.com/untoldecay/loom/internal/patch"
	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/syncback"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/vfs"
)

// debounceWindow matches the watcher's burst window: events arriving within
// it process as one batch.
const debounceWindow = 50 * time.Millisecond

// WriteResult reports a committed reverse write.
type WriteResult struct {
	Applied      *patch.Applied
	CreatedPaths int
	RemovedPaths int
}

type writeRequest struct {
	req  *syncback.WriteRequest
	resp chan writeResponse
}

type writeResponse struct {
	result WriteResult
	err    error
}

// Processor owns the tree mutex and the suppression registry.
type Processor struct {
	v           *vfs.Vfs
	queue       *msgqueue.Queue
	projectPath string

	mu   sync.RWMutex
	tree *tree.Tree

	suppress *suppressionRegistry
	writes   chan writeRequest
}

// New wires a processor over an already-built tree.
func New(v *vfs.Vfs, t *tree.Tree, queue *msgqueue.Queue, projectPath string) *Processor {
	return &Processor{
		v:           v,
		queue:       queue,
		projectPath: projectPath,
		tree:        t,
		suppress:    newSuppressionRegistry(),
		writes:      make(chan writeRequest),
	}
}

// WithReadLock runs fn with shared read access to the tree. Handlers copy
// what they need and return quickly.
func (p *Processor) WithReadLock(fn func(*tree.Tree)) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	fn(p.tree)
}

// Run operates the event loop until the context is canceled. Forward and
// reverse writes serialize through this single goroutine, so commits are
// totally ordered.
func (p *Processor) Run(ctx context.Context) {
	events := p.v.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			batch := p.drainBurst(ctx, events, ev)
			p.processEvents(batch)
		case wr := <-p.writes:
			result, err := p.handleWrite(wr.req)
			wr.resp <- writeResponse{result: result, err: err}
		}
	}
}

// drainBurst collects every event arriving within the debounce window,
// collapsing duplicates per (path, kind).
func (p *Processor) drainBurst(ctx context.Context, events <-chan vfs.Event, first vfs.Event) []vfs.Event {
	type key struct {
		kind vfs.EventKind
		path string
	}
	batch := []vfs.Event{first}
	seen := map[key]struct{}{{kind: first.Kind, path: first.Path}: {}}
	timer := time.NewTimer(debounceWindow)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return batch
		case ev, ok := <-events:
			if !ok {
				return batch
			}
			k := key{kind: ev.Kind, path: ev.Path}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			batch = append(batch, ev)
		case <-timer.C:
			return batch
		}
	}
}

// Write submits a reverse write to the event loop and blocks for the
// result.
func (p *Processor) Write(ctx context.Context, req *syncback.WriteRequest) (WriteResult, error) {
	wr := writeRequest{req: req, resp: make(chan writeResponse, 1)}
	select {
	case p.writes <- wr:
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}
	select {
	case resp := <-wr.resp:
		return resp.result, resp.err
	case <-ctx.Done():
		return WriteResult{}, ctx.Err()
	}
}

// handleWrite is the reverse path: build the mutation plan, register its
// echo suppressions, execute it, then apply the equivalent patch directly so
// subscribers see the change immediately and the tree matches disk.
func (p *Processor) handleWrite(req *syncback.WriteRequest) (WriteResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	plan, err := syncback.BuildPlan(p.v, p.tree, req)
	if err != nil {
		return WriteResult{}, err
	}

	suppressions := plan.Suppressions()
	p.suppress.register(suppressions)
	if err := syncback.Execute(p.v, plan); err != nil {
		p.suppress.unregister(suppressions)
		return WriteResult{}, err
	}

	applied := patch.Apply(plan.Patch, p.tree)
	created, removed := plan.Counts()
	if !applied.IsEmpty() {
		p.queue.Push(applied)
	}
	return WriteResult{Applied: applied, CreatedPaths: created, RemovedPaths: removed}, nil
}

// processEvents is the forward path: affected-root determination, middleware
// re-snapshot, patch compute, apply, publish.
func (p *Processor) processEvents(events []vfs.Event) {
	p.mu.Lock()

	fullRescan := false
	type target struct {
		anchor tree.Referent
		source string
	}
	var targets []target
	seenAnchors := map[tree.Referent]struct{}{}

	for _, ev := range events {
		if ev.Kind == vfs.EventRescan {
			logging.Warnf("watcher requested a rescan; re-snapshotting the whole tree")
			fullRescan = true
			continue
		}
		if p.suppress.shouldDrop(ev) {
			continue
		}
		base := filepath.Base(ev.Path)
		if strings.HasPrefix(base, ".") && strings.HasSuffix(base, ".tmp") {
			continue
		}
		if ev.Path == p.projectPath {
			fullRescan = true
			continue
		}

		ids := p.anchorsFor(ev.Path)
		for _, id := range ids {
			meta := p.tree.Metadata(id)
			if meta == nil || meta.InstigatingSource == nil {
				continue
			}
			if meta.InstigatingSource.IsProjectNode() {
				fullRescan = true
				continue
			}
			if _, dup := seenAnchors[id]; dup {
				continue
			}
			seenAnchors[id] = struct{}{}
			targets = append(targets, target{anchor: id, source: meta.InstigatingSource.Path})
		}
	}

	applied := &patch.Applied{}
	if fullRescan {
		if a, err := p.resnapshotRoot(); err != nil {
			logging.Errorf("%v", err)
		} else {
			applied.Merge(a)
		}
	} else {
		for _, tg := range targets {
			if p.tree.Get(tg.anchor) == nil {
				// Removed by an earlier target in the same batch.
				continue
			}
			meta := p.tree.Metadata(tg.anchor)
			snapCtx := snapshot.Context{}
			if meta != nil {
				snapCtx = meta.Context
			}
			snap, err := snapshot.FromPath(&snapCtx, p.v, tg.source)
			if err != nil {
				logging.Errorf("%v", err)
				continue
			}
			pt := patch.Compute(snap, p.tree, tg.anchor)
			applied.Merge(patch.Apply(pt, p.tree))
		}
	}

	p.mu.Unlock()

	if !applied.IsEmpty() {
		p.queue.Push(applied)
	}
}

// anchorsFor promotes an event path to the instances anchored at it,
// walking up to the nearest ancestor the path index knows when the path
// itself is new.
func (p *Processor) anchorsFor(path string) []tree.Referent {
	current := path
	for {
		if ids := p.tree.IDsAtPath(current); len(ids) > 0 {
			return ids
		}
		parent := filepath.Dir(current)
		if parent == current {
			return nil
		}
		current = parent
	}
}

// resnapshotRoot re-runs the project middleware on the manifest and
// reconciles the whole tree. Also the recovery path for rescan-required
// events.
func (p *Processor) resnapshotRoot() (*patch.Applied, error) {
	proj, err := project.Load(p.v, p.projectPath)
	if err != nil {
		return nil, fmt.Errorf("reloading project: %w", err)
	}
	snap, err := snapshot.FromProject(p.v, proj)
	if err != nil {
		return nil, fmt.Errorf("re-snapshotting project: %w", err)
	}
	pt := patch.Compute(snap, p.tree, p.tree.RootID())
	return patch.Apply(pt, p.tree), nil
}

// ValidateTree re-snapshots from disk and reports how far the live tree has
// drifted, without mutating anything. The plugin calls this on reconnect.
func (p *Processor) ValidateTree() (added, removed, updated int, err error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proj, err := project.Load(p.v, p.projectPath)
	if err != nil {
		return 0, 0, 0, err
	}
	snap, err := snapshot.FromProject(p.v, proj)
	if err != nil {
		return 0, 0, 0, err
	}
	pt := patch.Compute(snap, p.tree, p.tree.RootID())
	added, removed, updated = pt.Counts()
	return added, removed, updated, nil
}
