package web

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/untoldecay/loom/internal/patch"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
)

// Instance is the wire form of one tree instance.
type Instance struct {
	Name       string                     `json:"name"`
	ClassName  string                     `json:"className"`
	Parent     string                     `json:"parent,omitempty"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Children   []string                   `json:"children"`
}

func refString(id tree.Referent) string { return uuid.UUID(id).String() }

func parseRef(s string) (tree.Referent, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return tree.NilReferent, fmt.Errorf("invalid instance id %q", s)
	}
	return id, nil
}

// encodeProperties serializes a property map for the plugin, stripping the
// reserved sync-control attributes so they never leak downstream.
func encodeProperties(props variant.Map) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(props))
	for name, value := range props {
		if name == "Attributes" {
			if attrs, ok := value.(variant.Attributes); ok {
				value = stripControlAttributes(attrs)
				if len(value.(variant.Attributes)) == 0 {
					continue
				}
			}
		}
		raw, err := variant.EncodeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = raw
	}
	return out, nil
}

func stripControlAttributes(attrs variant.Attributes) variant.Attributes {
	out := make(variant.Attributes, len(attrs))
	for name, value := range attrs {
		if strings.HasPrefix(name, patch.ControlAttrPrefixes) {
			continue
		}
		out[name] = value
	}
	return out
}

// encodeSubtree flattens the subtree rooted at id into an instance map.
func encodeSubtree(t *tree.Tree, id tree.Referent, out map[string]Instance) error {
	inst := t.Get(id)
	if inst == nil {
		return fmt.Errorf("unknown instance %s", refString(id))
	}
	props, err := encodeProperties(inst.Properties)
	if err != nil {
		return err
	}
	wire := Instance{
		Name:       inst.Name,
		ClassName:  inst.ClassName,
		Properties: props,
		Children:   make([]string, 0, len(inst.Children)),
	}
	if inst.Parent != tree.NilReferent {
		wire.Parent = refString(inst.Parent)
	}
	for _, child := range inst.Children {
		wire.Children = append(wire.Children, refString(child))
		if err := encodeSubtree(t, child, out); err != nil {
			return err
		}
	}
	out[refString(id)] = wire
	return nil
}

// AppliedUpdate is the wire form of one updated instance in a patch.
type AppliedUpdate struct {
	ID                string                     `json:"id"`
	ChangedName       string                     `json:"changedName,omitempty"`
	ChangedClassName  string                     `json:"changedClassName,omitempty"`
	ChangedProperties map[string]json.RawMessage `json:"changedProperties,omitempty"`
}

// AppliedPatch is the wire form of one commit.
type AppliedPatch struct {
	Removed []string            `json:"removed"`
	Added   map[string]Instance `json:"added"`
	Updated []AppliedUpdate     `json:"updated"`
}

// encodeApplied serializes a commit record; added subtrees are read from the
// live tree, so the caller must hold the read lock.
func encodeApplied(t *tree.Tree, applied *patch.Applied) (*AppliedPatch, error) {
	out := &AppliedPatch{
		Removed: make([]string, 0, len(applied.Removed)),
		Added:   make(map[string]Instance),
	}
	for _, id := range applied.Removed {
		out.Removed = append(out.Removed, refString(id))
	}
	for _, id := range applied.Added {
		if t.Get(id) == nil {
			// Added then removed within a later commit; nothing to send.
			continue
		}
		if err := encodeSubtree(t, id, out.Added); err != nil {
			return nil, err
		}
	}
	for _, up := range applied.Updated {
		if t.Get(up.ID) == nil {
			continue
		}
		wire := AppliedUpdate{
			ID:               refString(up.ID),
			ChangedName:      up.ChangedName,
			ChangedClassName: up.ChangedClassName,
		}
		if len(up.ChangedProperties) > 0 {
			wire.ChangedProperties = make(map[string]json.RawMessage, len(up.ChangedProperties))
			for name, value := range up.ChangedProperties {
				if value == nil {
					wire.ChangedProperties[name] = json.RawMessage("null")
					continue
				}
				raw, err := variant.EncodeJSON(value)
				if err != nil {
					return nil, err
				}
				wire.ChangedProperties[name] = raw
			}
		}
		out.Updated = append(out.Updated, wire)
	}
	return out, nil
}

// writeBody is the POST /api/write payload.
type writeBody struct {
	SessionID string `json:"sessionId"`
	Removed   []string `json:"removed,omitempty"`
	Added     []struct {
		ParentID string       `json:"parentId"`
		Instance wireNewInst  `json:"instance"`
	} `json:"added,omitempty"`
	Updated []struct {
		ID                string                     `json:"id"`
		ChangedName       string                     `json:"changedName,omitempty"`
		ChangedClassName  string                     `json:"changedClassName,omitempty"`
		ChangedProperties map[string]json.RawMessage `json:"changedProperties,omitempty"`
	} `json:"updated,omitempty"`
}

// wireNewInst is a plugin-provided new subtree.
type wireNewInst struct {
	Name       string                     `json:"name"`
	ClassName  string                     `json:"className"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Children   []wireNewInst              `json:"children,omitempty"`
}

func (w *wireNewInst) toSnapshot() (*snapshot.Snapshot, error) {
	props, err := variant.DecodeJSONMap(w.Properties)
	if err != nil {
		return nil, fmt.Errorf("instance %q: %w", w.Name, err)
	}
	snap := &snapshot.Snapshot{
		Name:       w.Name,
		ClassName:  w.ClassName,
		Properties: props,
	}
	for i := range w.Children {
		child, err := w.Children[i].toSnapshot()
		if err != nil {
			return nil, err
		}
		snap.Children = append(snap.Children, child)
	}
	return snap, nil
}

// decodeChangedProperties turns the wire property map into variant values,
// with JSON null meaning "clear this property".
func decodeChangedProperties(raw map[string]json.RawMessage) (map[string]variant.Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]variant.Value, len(raw))
	for name, rv := range raw {
		if string(rv) == "null" {
			out[name] = nil
			continue
		}
		value, err := variant.DecodeJSON(rv)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		out[name] = value
	}
	return out, nil
}
