// Package tree holds the authoritative in-memory instance tree: identity,
// parent/children/name/class/properties per instance, the sibling metadata
// records, and the auxiliary indices that make live sync fast (path to ids,
// symbolic id to id, script-class membership).
package tree

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/untoldecay/loom/internal/logging"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/variant"
)

// Referent is the opaque 128-bit identity of an instance, stable for the
// instance's lifetime in the tree.
type Referent = uuid.UUID

// NilReferent stands in where no instance is referenced.
var NilReferent = uuid.Nil

// NewReferent allocates a fresh identity.
func NewReferent() Referent { return uuid.New() }

// ScriptClasses is the fixed set of classes tracked by the script-membership
// index.
var ScriptClasses = map[string]struct{}{
	"Script":       {},
	"LocalScript":  {},
	"ModuleScript": {},
}

// Instance is one node of the tree.
type Instance struct {
	ID         Referent
	Name       string
	ClassName  string
	Properties variant.Map
	Parent     Referent
	// Children preserves insertion order; some formats are order-sensitive.
	Children []Referent
}

// Tree owns the instances, their metadata, and the indices. It is not
// internally synchronized; the change processor serializes mutation and
// readers go through its read lock (Processor.WithReadLock).
type Tree struct {
	rootID    Referent
	instances map[Referent]*Instance
	metadata  map[Referent]*snapshot.Metadata

	pathToIDs    map[string][]Referent
	specifiedIDs map[string][]Referent
	scriptRefs   map[Referent]struct{}
}

// New builds a tree from a root snapshot, allocating referents for the whole
// subtree.
func New(snap *snapshot.Snapshot) *Tree {
	t := &Tree{
		instances:    make(map[Referent]*Instance),
		metadata:     make(map[Referent]*snapshot.Metadata),
		pathToIDs:    make(map[string][]Referent),
		specifiedIDs: make(map[string][]Referent),
		scriptRefs:   make(map[Referent]struct{}),
	}
	t.rootID = t.Insert(NilReferent, snap)
	return t
}

// RootID returns the root instance's referent.
func (t *Tree) RootID() Referent { return t.rootID }

// Get returns an instance, or nil.
func (t *Tree) Get(id Referent) *Instance { return t.instances[id] }

// Metadata returns the instance's metadata record, or nil.
func (t *Tree) Metadata(id Referent) *snapshot.Metadata { return t.metadata[id] }

// Len reports the number of instances in the tree.
func (t *Tree) Len() int { return len(t.instances) }

// Insert adds a snapshot subtree under a parent and returns the new root's
// referent. Passing NilReferent as parent installs the tree root.
func (t *Tree) Insert(parent Referent, snap *snapshot.Snapshot) Referent {
	id := NewReferent()
	inst := &Instance{
		ID:         id,
		Name:       snap.Name,
		ClassName:  snap.ClassName,
		Properties: snap.Properties.Clone(),
		Parent:     parent,
	}
	if inst.Properties == nil {
		inst.Properties = make(variant.Map)
	}
	t.instances[id] = inst

	meta := snap.Metadata
	t.insertMetadata(id, &meta)

	if _, isScript := ScriptClasses[snap.ClassName]; isScript {
		t.scriptRefs[id] = struct{}{}
	}

	if parent != NilReferent {
		if parentInst := t.instances[parent]; parentInst != nil {
			parentInst.Children = append(parentInst.Children, id)
		}
	}

	for _, child := range snap.Children {
		t.Insert(id, child)
	}
	return id
}

// Remove deletes an instance and its whole subtree. Metadata and indices are
// cleaned depth-first, before parents vanish.
func (t *Tree) Remove(id Referent) {
	inst := t.instances[id]
	if inst == nil {
		return
	}
	for _, child := range append([]Referent(nil), inst.Children...) {
		t.Remove(child)
	}

	t.removeMetadata(id)
	delete(t.scriptRefs, id)
	delete(t.instances, id)

	if parent := t.instances[inst.Parent]; parent != nil {
		for i, child := range parent.Children {
			if child == id {
				parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
				break
			}
		}
	}
}

// UpdateMetadata replaces an instance's metadata, rebuilding the path index
// entries for it.
func (t *Tree) UpdateMetadata(id Referent, meta *snapshot.Metadata) {
	t.removeMetadata(id)
	t.insertMetadata(id, meta)
}

// Rename changes an instance's name.
func (t *Tree) Rename(id Referent, name string) {
	if inst := t.instances[id]; inst != nil {
		inst.Name = name
	}
}

// SetClass changes an instance's class, updating the script-membership
// index atomically.
func (t *Tree) SetClass(id Referent, className string) {
	inst := t.instances[id]
	if inst == nil {
		return
	}
	inst.ClassName = className
	if _, isScript := ScriptClasses[className]; isScript {
		t.scriptRefs[id] = struct{}{}
	} else {
		delete(t.scriptRefs, id)
	}
}

// SetProperty sets or clears (value == nil) a property.
func (t *Tree) SetProperty(id Referent, name string, value variant.Value) {
	inst := t.instances[id]
	if inst == nil {
		return
	}
	if value == nil {
		delete(inst.Properties, name)
		return
	}
	inst.Properties[name] = value
}

// IDsAtPath returns the instances anchored at a path.
func (t *Tree) IDsAtPath(path string) []Referent {
	return t.pathToIDs[filepath.Clean(path)]
}

// SpecifiedID resolves a symbolic id. Ambiguous mappings (duplicates) return
// no instance.
func (t *Tree) SpecifiedID(symbolic string) (Referent, bool) {
	ids := t.specifiedIDs[symbolic]
	if len(ids) != 1 {
		return NilReferent, false
	}
	return ids[0], true
}

// SetSpecifiedID registers a symbolic id for an instance. Duplicates are
// reported but representable; lookups go ambiguous until one is removed.
func (t *Tree) SetSpecifiedID(id Referent, symbolic string) {
	if len(t.specifiedIDs[symbolic]) > 0 {
		logging.Errorf("duplicate user-specified referent %q", symbolic)
	}
	t.specifiedIDs[symbolic] = append(t.specifiedIDs[symbolic], id)

	meta := t.metadata[id]
	if meta == nil {
		meta = &snapshot.Metadata{}
		t.metadata[id] = meta
	}
	meta.SpecifiedID = symbolic
}

// ScriptRefs returns the ids of every script-class instance.
func (t *Tree) ScriptRefs() []Referent {
	out := make([]Referent, 0, len(t.scriptRefs))
	for id := range t.scriptRefs {
		out = append(out, id)
	}
	return out
}

// IsScriptRef reports script-index membership for one id.
func (t *Tree) IsScriptRef(id Referent) bool {
	_, ok := t.scriptRefs[id]
	return ok
}

// Descendants returns the subtree rooted at id in depth-first order,
// including id itself.
func (t *Tree) Descendants(id Referent) []Referent {
	inst := t.instances[id]
	if inst == nil {
		return nil
	}
	out := []Referent{id}
	for _, child := range inst.Children {
		out = append(out, t.Descendants(child)...)
	}
	return out
}

func (t *Tree) insertMetadata(id Referent, meta *snapshot.Metadata) {
	for _, path := range meta.RelevantPaths {
		clean := filepath.Clean(path)
		t.pathToIDs[clean] = append(t.pathToIDs[clean], id)
	}
	if meta.SpecifiedID != "" {
		if len(t.specifiedIDs[meta.SpecifiedID]) > 0 {
			logging.Errorf("duplicate user-specified referent %q", meta.SpecifiedID)
		}
		t.specifiedIDs[meta.SpecifiedID] = append(t.specifiedIDs[meta.SpecifiedID], id)
	}
	t.metadata[id] = meta
}

func (t *Tree) removeMetadata(id Referent) {
	meta := t.metadata[id]
	if meta == nil {
		return
	}
	for _, path := range meta.RelevantPaths {
		clean := filepath.Clean(path)
		ids := t.pathToIDs[clean]
		for i, existing := range ids {
			if existing == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(t.pathToIDs, clean)
		} else {
			t.pathToIDs[clean] = ids
		}
	}
	if meta.SpecifiedID != "" {
		ids := t.specifiedIDs[meta.SpecifiedID]
		for i, existing := range ids {
			if existing == id {
				ids = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(ids) == 0 {
			delete(t.specifiedIDs, meta.SpecifiedID)
		} else {
			t.specifiedIDs[meta.SpecifiedID] = ids
		}
	}
	delete(t.metadata, id)
}
