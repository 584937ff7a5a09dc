package tree

import (
	"github.com/untoldecay/loom/internal/snapshot"
)

// SnapshotOf converts a subtree back into a snapshot value, carrying the
// instances' metadata. The syncback round-trip tests use it to hand a served
// tree to PlanFresh.
func (t *Tree) SnapshotOf(id Referent) *snapshot.Snapshot {
	inst := t.instances[id]
	if inst == nil {
		return nil
	}
	snap := &snapshot.Snapshot{
		Name:       inst.Name,
		ClassName:  inst.ClassName,
		Properties: inst.Properties.Clone(),
	}
	if meta := t.metadata[id]; meta != nil {
		snap.Metadata = *meta
	}
	for _, child := range inst.Children {
		if childSnap := t.SnapshotOf(child); childSnap != nil {
			snap.Children = append(snap.Children, childSnap)
		}
	}
	return snap
}
