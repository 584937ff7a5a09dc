// Package patch computes and applies minimal diffs between candidate
// snapshots and the live tree, including the same-name/same-class matching
// algorithm that minimizes churn.
package patch

import (
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
)

// Add is a snapshot subtree to insert under a concrete parent.
type Add struct {
	ParentID tree.Referent
	Snapshot *snapshot.Snapshot
}

// Update records in-place changes to one instance. Empty strings mean
// "unchanged"; a property mapped to nil means "clear this property".
type Update struct {
	ID                tree.Referent
	ChangedName       string
	ChangedClassName  string
	ChangedProperties map[string]variant.Value
	ChangedMetadata   *snapshot.Metadata
}

// IsEmpty reports whether the update carries no changes.
func (u *Update) IsEmpty() bool {
	return u.ChangedName == "" && u.ChangedClassName == "" &&
		len(u.ChangedProperties) == 0 && u.ChangedMetadata == nil
}

// Patch is the delta between a snapshot subtree and a tree subtree.
type Patch struct {
	Added   []Add
	Removed []tree.Referent
	Updated []Update
}

// IsEmpty reports whether applying the patch would change nothing.
func (p *Patch) IsEmpty() bool {
	return len(p.Added) == 0 && len(p.Removed) == 0 && len(p.Updated) == 0
}

// Counts returns (added, removed, updated) entry counts for diagnostics and
// freshness validation.
func (p *Patch) Counts() (int, int, int) {
	return len(p.Added), len(p.Removed), len(p.Updated)
}

// AppliedUpdate echoes an update with its concrete changes.
type AppliedUpdate struct {
	ID                tree.Referent
	ChangedName       string
	ChangedClassName  string
	ChangedProperties map[string]variant.Value
}

// Applied is the commit record for a patch: added subtree roots with their
// assigned referents, removed ids, and updates.
type Applied struct {
	Added   []tree.Referent
	Removed []tree.Referent
	Updated []AppliedUpdate
}

// IsEmpty reports whether the commit changed nothing.
func (a *Applied) IsEmpty() bool {
	return len(a.Added) == 0 && len(a.Removed) == 0 && len(a.Updated) == 0
}

// Merge folds another applied record into this one.
func (a *Applied) Merge(other *Applied) {
	a.Added = append(a.Added, other.Added...)
	a.Removed = append(a.Removed, other.Removed...)
	a.Updated = append(a.Updated, other.Updated...)
}
