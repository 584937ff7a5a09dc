package snapshot

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/jsonc"

	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// metaSuffixes are the accepted sibling meta-file extensions, newest first.
var metaSuffixes = []string{".meta.json5", ".meta.json"}

// adjacentMeta is the parsed form of a `*.meta.json5` sibling (or an
// `init.meta.json5` inside a directory). It overrides what the owning
// middleware inferred.
type adjacentMeta struct {
	ClassName              string                     `json:"className,omitempty"`
	ID                     string                     `json:"id,omitempty"`
	IgnoreUnknownInstances *bool                      `json:"ignoreUnknownInstances,omitempty"`
	Properties             map[string]json.RawMessage `json:"properties,omitempty"`
	Attributes             map[string]json.RawMessage `json:"attributes,omitempty"`
}

// readMeta looks for `<stem>.meta.json5` (then `.json`) and parses it.
// Returns nil when no meta file exists.
func readMeta(v *vfs.Vfs, stem string) (*adjacentMeta, string, error) {
	for _, suffix := range metaSuffixes {
		metaPath := stem + suffix
		data, err := v.Read(metaPath)
		if err != nil {
			if vfs.IsNotExist(err) {
				continue
			}
			return nil, "", err
		}
		var meta adjacentMeta
		if err := json.Unmarshal(jsonc.ToJSON(data), &meta); err != nil {
			return nil, "", fmt.Errorf("%s: malformed meta file: %w", metaPath, err)
		}
		return &meta, metaPath, nil
	}
	return nil, "", nil
}

// applyTo merges the meta file into a snapshot: properties override what the
// middleware produced, attributes merge into the Attributes property, and
// the id and ignore flag land on the metadata record.
func (m *adjacentMeta) applyTo(snap *Snapshot, metaPath string) error {
	if m.ClassName != "" {
		snap.ClassName = m.ClassName
	}
	if m.ID != "" {
		snap.Metadata.SpecifiedID = m.ID
	}
	if m.IgnoreUnknownInstances != nil {
		snap.Metadata.IgnoreUnknownInstances = *m.IgnoreUnknownInstances
	}

	if len(m.Properties) > 0 {
		props, err := variant.DecodeJSONMap(m.Properties)
		if err != nil {
			return fmt.Errorf("%s: %w", metaPath, err)
		}
		if snap.Properties == nil {
			snap.Properties = make(variant.Map, len(props))
		}
		for name, value := range props {
			snap.Properties[name] = value
		}
	}

	if len(m.Attributes) > 0 {
		attrs, ok := snap.Properties["Attributes"].(variant.Attributes)
		if !ok {
			attrs = make(variant.Attributes, len(m.Attributes))
		}
		for name, raw := range m.Attributes {
			value, err := variant.DecodeJSON(raw)
			if err != nil {
				return fmt.Errorf("%s: attribute %q: %w", metaPath, name, err)
			}
			attrs[name] = value
		}
		if snap.Properties == nil {
			snap.Properties = make(variant.Map, 1)
		}
		snap.Properties["Attributes"] = attrs
	}
	return nil
}
