package patch

import (
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
)

// Compute produces the minimal patch aligning the tree subtree at anchor
// with a candidate snapshot. A nil snapshot means the source vanished and
// the anchor should be removed.
func Compute(snap *snapshot.Snapshot, t *tree.Tree, anchor tree.Referent) *Patch {
	p := &Patch{}
	if snap == nil {
		p.Removed = append(p.Removed, anchor)
		return p
	}
	computeInstance(snap, t, anchor, p)
	return p
}

func computeInstance(snap *snapshot.Snapshot, t *tree.Tree, id tree.Referent, p *Patch) {
	inst := t.Get(id)
	if inst == nil {
		return
	}

	up := Update{ID: id}
	if snap.Name != inst.Name {
		up.ChangedName = snap.Name
	}
	if snap.ClassName != inst.ClassName {
		up.ChangedClassName = snap.ClassName
	}

	var changed map[string]variant.Value
	for key, snapVal := range snap.Properties {
		instVal, ok := inst.Properties[key]
		if !ok || !variant.Eq(snapVal, instVal) {
			if changed == nil {
				changed = make(map[string]variant.Value)
			}
			changed[key] = snapVal
		}
	}
	for key := range inst.Properties {
		if _, ok := snap.Properties[key]; !ok {
			if changed == nil {
				changed = make(map[string]variant.Value)
			}
			changed[key] = nil
		}
	}
	up.ChangedProperties = changed

	if metadataDiffers(t.Metadata(id), &snap.Metadata) {
		meta := snap.Metadata
		up.ChangedMetadata = &meta
	}

	if !up.IsEmpty() {
		p.Updated = append(p.Updated, up)
	}

	result := MatchChildren(snap.Children, inst.Children, t)
	for _, pair := range result.Matched {
		computeInstance(pair.Snapshot, t, pair.TreeID, p)
	}
	for _, childSnap := range result.UnmatchedSnapshot {
		p.Added = append(p.Added, Add{ParentID: id, Snapshot: childSnap})
	}
	for _, childID := range result.UnmatchedTree {
		if snap.Metadata.IgnoreUnknownInstances {
			childMeta := t.Metadata(childID)
			if childMeta == nil || childMeta.InstigatingSource == nil {
				// No source on disk: a runtime-created child that should
				// survive reconciliation.
				continue
			}
		}
		p.Removed = append(p.Removed, childID)
	}
}

func metadataDiffers(current, fresh *snapshot.Metadata) bool {
	if current == nil {
		return true
	}
	if current.IgnoreUnknownInstances != fresh.IgnoreUnknownInstances ||
		current.SpecifiedID != fresh.SpecifiedID ||
		current.Middleware != fresh.Middleware {
		return true
	}
	if !sourcesEqual(current.InstigatingSource, fresh.InstigatingSource) {
		return true
	}
	if len(current.RelevantPaths) != len(fresh.RelevantPaths) {
		return true
	}
	for i := range current.RelevantPaths {
		if current.RelevantPaths[i] != fresh.RelevantPaths[i] {
			return true
		}
	}
	return false
}

func sourcesEqual(a, b *snapshot.InstigatingSource) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
