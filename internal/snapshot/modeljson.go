package snapshot

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/jsonc"

	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// JSONModel is the `*.model.json5` document: a recursive tree of instances
// with typed (or unambiguously inferred) property values.
type JSONModel struct {
	Name       string                     `json:"name,omitempty"`
	ClassName  string                     `json:"className"`
	ID         string                     `json:"id,omitempty"`
	Properties map[string]json.RawMessage `json:"properties,omitempty"`
	Attributes map[string]json.RawMessage `json:"attributes,omitempty"`
	Children   []*JSONModel               `json:"children,omitempty"`
}

// snapshotJSONModel parses a model descriptor. The root's name comes from
// the file name; a `name` field on the root must agree when present.
func snapshotJSONModel(ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	data, err := v.Read(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var model JSONModel
	if err := json.Unmarshal(jsonc.ToJSON(data), &model); err != nil {
		return nil, fmt.Errorf("%s: malformed model: %w", path, err)
	}
	if model.Name != "" && model.Name != name {
		return nil, fmt.Errorf("%s: model name %q disagrees with file name %q", path, model.Name, name)
	}

	snap, err := modelToSnapshot(&model, name)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	snap.Metadata = Metadata{
		InstigatingSource: &InstigatingSource{Path: path},
		RelevantPaths:     []string{path},
		Middleware:        MiddlewareJSONModel,
		Context:           *ctx,
	}
	if model.ID != "" {
		snap.Metadata.SpecifiedID = model.ID
	}
	return snap, nil
}

func modelToSnapshot(model *JSONModel, name string) (*Snapshot, error) {
	if model.ClassName == "" {
		return nil, fmt.Errorf("node %q is missing className", name)
	}

	props, err := variant.DecodeJSONMap(model.Properties)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", name, err)
	}
	if len(model.Attributes) > 0 {
		attrs := make(variant.Attributes, len(model.Attributes))
		names := make([]string, 0, len(model.Attributes))
		for attrName := range model.Attributes {
			names = append(names, attrName)
		}
		sort.Strings(names)
		for _, attrName := range names {
			value, err := variant.DecodeJSON(model.Attributes[attrName])
			if err != nil {
				return nil, fmt.Errorf("node %q attribute %q: %w", name, attrName, err)
			}
			attrs[attrName] = value
		}
		if props == nil {
			props = make(variant.Map, 1)
		}
		props["Attributes"] = attrs
	}

	snap := &Snapshot{
		Name:       name,
		ClassName:  model.ClassName,
		Properties: props,
	}

	for _, child := range model.Children {
		if child.Name == "" {
			return nil, fmt.Errorf("child of %q is missing a name", name)
		}
		childSnap, err := modelToSnapshot(child, child.Name)
		if err != nil {
			return nil, err
		}
		snap.Children = append(snap.Children, childSnap)
	}
	return snap, nil
}
