package patch

import (
	"sort"
	"strings"

	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
)

// Reserved sync-control attribute names. They never leak into serialized
// artifacts handed to third parties.
const (
	RefIDAttribute      = "Rojo_Id"
	RefPathPrefix       = "Rojo_Ref_"
	RefTargetPrefix     = "Rojo_Target_"
	ControlAttrPrefixes = "Rojo_"
)

// pivotClasses are the Model-family classes whose serialization format
// expects an explicit NeedsPivotMigration property.
var pivotClasses = map[string]struct{}{
	"Model":      {},
	"Actor":      {},
	"Tool":       {},
	"HopperBin":  {},
	"Flag":       {},
	"WorldModel": {},
	"Workspace":  {},
	"Status":     {},
}

// Apply commits a patch to the tree. Removals run first (depth-first, so
// indices are cleaned before parents vanish), then additions in order,
// allocating referents, then updates. Reference attributes resolve at the
// end of the commit, against the post-apply tree.
func Apply(p *Patch, t *tree.Tree) *Applied {
	applied := &Applied{}

	for _, id := range p.Removed {
		if t.Get(id) == nil {
			continue
		}
		t.Remove(id)
		applied.Removed = append(applied.Removed, id)
	}

	for _, add := range p.Added {
		if add.ParentID != tree.NilReferent && t.Get(add.ParentID) == nil {
			continue
		}
		id := t.Insert(add.ParentID, add.Snapshot)
		for _, descendant := range t.Descendants(id) {
			applyPivotDefault(t, descendant)
		}
		applied.Added = append(applied.Added, id)
	}

	for _, up := range p.Updated {
		inst := t.Get(up.ID)
		if inst == nil {
			continue
		}
		au := AppliedUpdate{ID: up.ID}
		if up.ChangedName != "" && up.ChangedName != inst.Name {
			t.Rename(up.ID, up.ChangedName)
			au.ChangedName = up.ChangedName
		}
		if up.ChangedClassName != "" && up.ChangedClassName != inst.ClassName {
			t.SetClass(up.ID, up.ChangedClassName)
			au.ChangedClassName = up.ChangedClassName
			applyPivotDefault(t, up.ID)
		}
		for key, value := range up.ChangedProperties {
			t.SetProperty(up.ID, key, value)
			if au.ChangedProperties == nil {
				au.ChangedProperties = make(map[string]variant.Value)
			}
			au.ChangedProperties[key] = value
		}
		if up.ChangedMetadata != nil {
			t.UpdateMetadata(up.ID, up.ChangedMetadata)
		}
		if au.ChangedName != "" || au.ChangedClassName != "" || len(au.ChangedProperties) > 0 {
			applied.Updated = append(applied.Updated, au)
		}
	}

	resolveRefs(t, applied)
	return applied
}

// applyPivotDefault adds NeedsPivotMigration=false to Model-family instances
// that lack it. A quirk of the serialization format, applied uniformly by
// both patch apply and syncback.
func applyPivotDefault(t *tree.Tree, id tree.Referent) {
	inst := t.Get(id)
	if inst == nil {
		return
	}
	if _, ok := pivotClasses[inst.ClassName]; !ok {
		return
	}
	if _, has := inst.Properties["NeedsPivotMigration"]; !has {
		t.SetProperty(id, "NeedsPivotMigration", variant.Bool(false))
	}
}

// resolveRefs performs late-bound reference resolution over everything the
// commit touched. Rojo_Id attributes register symbolic ids first so that
// same-commit targets resolve; then Rojo_Ref_* path expressions and legacy
// Rojo_Target_* symbolic lookups produce reference property updates.
// Alphabetical attribute iteration makes Ref_* win over Target_* for the
// same property. Unresolvable references produce no update at all.
func resolveRefs(t *tree.Tree, applied *Applied) {
	var touched []tree.Referent
	for _, id := range applied.Added {
		touched = append(touched, t.Descendants(id)...)
	}
	for _, up := range applied.Updated {
		touched = append(touched, up.ID)
	}

	// Pass 1: register symbolic ids.
	for _, id := range touched {
		attrs := instanceAttributes(t, id)
		if attrs == nil {
			continue
		}
		if symbolic, ok := attrs[RefIDAttribute].(variant.String); ok {
			meta := t.Metadata(id)
			if meta == nil || meta.SpecifiedID != string(symbolic) {
				t.SetSpecifiedID(id, string(symbolic))
			}
		}
	}

	// Pass 2: resolve pointers. Updates collect into a side map first so
	// that appending to applied.Updated cannot invalidate anything mid-walk.
	refUpdates := make(map[tree.Referent]map[string]variant.Value)

	for _, id := range touched {
		attrs := instanceAttributes(t, id)
		if attrs == nil {
			continue
		}
		names := make([]string, 0, len(attrs))
		for name := range attrs {
			names = append(names, name)
		}
		sort.Strings(names)

		setThisPass := make(map[string]struct{})
		for _, name := range names {
			var property string
			var target tree.Referent
			var resolved bool

			switch {
			case strings.HasPrefix(name, RefPathPrefix):
				property = strings.TrimPrefix(name, RefPathPrefix)
				expr, ok := attrs[name].(variant.String)
				if !ok {
					continue
				}
				target, resolved = t.ResolveRefPath(string(expr), id)
			case strings.HasPrefix(name, RefTargetPrefix):
				property = strings.TrimPrefix(name, RefTargetPrefix)
				if _, done := setThisPass[property]; done {
					continue
				}
				symbolic, ok := attrs[name].(variant.String)
				if !ok {
					continue
				}
				target, resolved = t.SpecifiedID(string(symbolic))
			default:
				continue
			}

			if !resolved {
				continue
			}
			setThisPass[property] = struct{}{}

			ref := variant.Ref(target)
			inst := t.Get(id)
			if existing, has := inst.Properties[property]; has && variant.Eq(existing, ref) {
				continue
			}
			t.SetProperty(id, property, ref)

			if refUpdates[id] == nil {
				refUpdates[id] = make(map[string]variant.Value)
			}
			refUpdates[id][property] = ref
		}
	}

	for i := range applied.Updated {
		if props, ok := refUpdates[applied.Updated[i].ID]; ok {
			if applied.Updated[i].ChangedProperties == nil {
				applied.Updated[i].ChangedProperties = make(map[string]variant.Value)
			}
			for name, value := range props {
				applied.Updated[i].ChangedProperties[name] = value
			}
			delete(refUpdates, applied.Updated[i].ID)
		}
	}
	addedSet := make(map[tree.Referent]struct{})
	for _, id := range applied.Added {
		for _, descendant := range t.Descendants(id) {
			addedSet[descendant] = struct{}{}
		}
	}
	for id, props := range refUpdates {
		// Ref properties on freshly added instances are already part of the
		// added subtree payload; only pre-existing instances need an update
		// record.
		if _, isAdded := addedSet[id]; isAdded {
			continue
		}
		applied.Updated = append(applied.Updated, AppliedUpdate{ID: id, ChangedProperties: props})
	}
}

func instanceAttributes(t *tree.Tree, id tree.Referent) variant.Attributes {
	inst := t.Get(id)
	if inst == nil {
		return nil
	}
	attrs, _ := inst.Properties["Attributes"].(variant.Attributes)
	return attrs
}
