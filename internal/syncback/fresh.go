package syncback

import (
	"github.com/untoldecay/loom/internal/patch"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// PlanFresh serializes a subtree into a destination directory from a clean
// slate, with no live tree to match against. Each child of the snapshot
// becomes an entry under destDir.
func PlanFresh(snap *snapshot.Snapshot, destDir string) (*Plan, error) {
	plan := &Plan{Patch: &patch.Patch{}}
	taken := make(map[string]struct{})
	for _, child := range snap.Children {
		if _, err := serializeNew(plan, destDir, child, taken); err != nil {
			return nil, err
		}
	}
	return plan, nil
}

// PlanTree walks a replacement tree against the live tree using the child
// matching algorithm in the reverse direction, and plans the filesystem
// mutations that reconcile disk with the new tree. With incremental set,
// existing file format choices are preserved and orphans survive; clear, and
// unmatched live instances are removed from disk.
func PlanTree(v *vfs.Vfs, t *tree.Tree, newRoot *snapshot.Snapshot, incremental bool) (*Plan, error) {
	pl := &planner{
		v:             v,
		t:             t,
		plan:          &Plan{Patch: &patch.Patch{}},
		containerDirs: make(map[tree.Referent]string),
		takenNames:    make(map[tree.Referent]map[string]struct{}),
	}
	if err := pl.mergeChildren(t.RootID(), newRoot.Children, incremental); err != nil {
		return nil, err
	}
	return pl.plan, nil
}

func (pl *planner) mergeChildren(parentID tree.Referent, newChildren []*snapshot.Snapshot, incremental bool) error {
	inst := pl.t.Get(parentID)
	if inst == nil {
		return nil
	}

	result := patch.MatchChildren(newChildren, inst.Children, pl.t)

	for _, pair := range result.Matched {
		update := diffForPair(pair.Snapshot, pl.t.Get(pair.TreeID))
		if update != nil {
			update.ID = pair.TreeID
			if err := pl.planUpdate(*update); err != nil {
				return err
			}
		}
		if err := pl.mergeChildren(pair.TreeID, pair.Snapshot.Children, incremental); err != nil {
			return err
		}
	}
	for _, added := range result.UnmatchedSnapshot {
		if err := pl.planAdd(WriteAdd{ParentID: parentID, Snapshot: added}); err != nil {
			return err
		}
	}
	if !incremental {
		for _, removedID := range result.UnmatchedTree {
			if err := pl.planRemove(removedID); err != nil {
				return err
			}
		}
	}
	return nil
}

// diffForPair produces the property delta between a matched pair. Matched
// pairs share name and class by construction, so only properties differ.
func diffForPair(snap *snapshot.Snapshot, inst *tree.Instance) *WriteUpdate {
	if inst == nil {
		return nil
	}
	var changed map[string]variant.Value
	for name, snapVal := range snap.Properties {
		instVal, ok := inst.Properties[name]
		if !ok || !variant.Eq(snapVal, instVal) {
			if changed == nil {
				changed = make(map[string]variant.Value)
			}
			changed[name] = snapVal
		}
	}
	for name := range inst.Properties {
		if name == "NeedsPivotMigration" {
			continue
		}
		if _, ok := snap.Properties[name]; !ok {
			if changed == nil {
				changed = make(map[string]variant.Value)
			}
			changed[name] = nil
		}
	}
	if changed == nil {
		return nil
	}
	return &WriteUpdate{ChangedProperties: changed}
}
