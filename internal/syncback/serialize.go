package syncback

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/untoldecay/loom/internal/fsname"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/variant"
)

// emptyDirKeepName keeps otherwise-empty directories alive in VCS checkouts.
const emptyDirKeepName = ".gitkeep"

// suffixFor maps a script middleware to the file suffix that expresses it.
func suffixFor(mw snapshot.Middleware) string {
	switch mw {
	case snapshot.MiddlewareServerScript:
		return ".server.luau"
	case snapshot.MiddlewareClientScript:
		return ".client.luau"
	case snapshot.MiddlewareLocalScript:
		return ".local.luau"
	case snapshot.MiddlewarePluginScript:
		return ".plugin.luau"
	case snapshot.MiddlewareLegacyScript:
		return ".legacy.luau"
	default:
		return ".luau"
	}
}

// middlewareForClass derives the serialization middleware from an instance's
// class when no existing format can be reused: the script family for script
// classes, a directory for Folders, plain text for StringValues, and the
// model descriptor for everything else.
func middlewareForClass(className string, props variant.Map) snapshot.Middleware {
	switch className {
	case "Script", "LocalScript", "ModuleScript":
		var runContext *variant.Enum
		if rc, ok := props["RunContext"].(variant.Enum); ok {
			runContext = &rc
		}
		return snapshot.ScriptMiddlewareFor(className, runContext)
	case "Folder":
		return snapshot.MiddlewareDir
	case "StringValue":
		return snapshot.MiddlewareText
	default:
		return snapshot.MiddlewareJSONModel
	}
}

// nativeProperties lists the properties a format represents in its native
// file; everything else goes to the sibling meta file.
func nativeProperties(mw snapshot.Middleware) map[string]struct{} {
	switch {
	case mw.IsScript():
		// RunContext is expressed by the file suffix.
		return map[string]struct{}{"Source": {}, "RunContext": {}}
	case mw == snapshot.MiddlewareText:
		return map[string]struct{}{"Value": {}}
	default:
		return nil
	}
}

// metaFile is the serialized form of a sibling `*.meta.json5`.
type metaFile struct {
	ClassName              string                     `json:"className,omitempty"`
	ID                     string                     `json:"id,omitempty"`
	IgnoreUnknownInstances *bool                      `json:"ignoreUnknownInstances,omitempty"`
	Properties             map[string]json.RawMessage `json:"properties,omitempty"`
	Attributes             map[string]json.RawMessage `json:"attributes,omitempty"`
}

func (m *metaFile) isEmpty() bool {
	return m.ClassName == "" && m.ID == "" && m.IgnoreUnknownInstances == nil &&
		len(m.Properties) == 0 && len(m.Attributes) == 0
}

func (m *metaFile) encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// partitionProperties splits an instance's properties into the format's
// native file and the sibling meta file. Properties already defined by a
// project-manifest override are dropped entirely. The pivot-migration quirk
// property never serializes.
func partitionProperties(props variant.Map, mw snapshot.Middleware, overrides map[string]struct{}) (*metaFile, error) {
	native := nativeProperties(mw)
	meta := &metaFile{}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, isNative := native[name]; isNative {
			continue
		}
		if name == "NeedsPivotMigration" {
			continue
		}
		if _, overridden := overrides[name]; overridden {
			continue
		}
		value := props[name]
		if name == "Attributes" {
			attrs, ok := value.(variant.Attributes)
			if !ok || len(attrs) == 0 {
				continue
			}
			payload, err := variant.EncodeJSON(attrs)
			if err != nil {
				return nil, err
			}
			var tagged map[string]json.RawMessage
			if err := json.Unmarshal(payload, &tagged); err != nil {
				return nil, err
			}
			meta.Attributes = map[string]json.RawMessage{}
			if err := json.Unmarshal(tagged["Attributes"], &meta.Attributes); err != nil {
				return nil, err
			}
			continue
		}
		raw, err := variant.EncodeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		if meta.Properties == nil {
			meta.Properties = map[string]json.RawMessage{}
		}
		meta.Properties[name] = raw
	}
	return meta, nil
}

// modelFromSnapshot builds the JSON model document for a subtree.
func modelFromSnapshot(snap *snapshot.Snapshot, includeName bool) (*snapshot.JSONModel, error) {
	model := &snapshot.JSONModel{ClassName: snap.ClassName}
	if includeName {
		model.Name = snap.Name
	}

	names := make([]string, 0, len(snap.Properties))
	for name := range snap.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if name == "NeedsPivotMigration" {
			continue
		}
		value := snap.Properties[name]
		if name == "Attributes" {
			attrs, ok := value.(variant.Attributes)
			if !ok || len(attrs) == 0 {
				continue
			}
			payload, err := variant.EncodeJSON(attrs)
			if err != nil {
				return nil, err
			}
			var tagged map[string]json.RawMessage
			if err := json.Unmarshal(payload, &tagged); err != nil {
				return nil, err
			}
			model.Attributes = map[string]json.RawMessage{}
			if err := json.Unmarshal(tagged["Attributes"], &model.Attributes); err != nil {
				return nil, err
			}
			continue
		}
		raw, err := variant.EncodeJSON(value)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", name, err)
		}
		if model.Properties == nil {
			model.Properties = map[string]json.RawMessage{}
		}
		model.Properties[name] = raw
	}

	for _, child := range snap.Children {
		childModel, err := modelFromSnapshot(child, true)
		if err != nil {
			return nil, err
		}
		model.Children = append(model.Children, childModel)
	}
	return model, nil
}

func encodeModel(model *snapshot.JSONModel) ([]byte, error) {
	data, err := json.MarshalIndent(model, "", "    ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// dedupeName reserves a filesystem base name inside one parent directory.
// Later claimants of a taken name receive a numeric suffix; the set is
// seeded with the names pre-existing children already occupy so unrelated
// siblings never need renaming.
func dedupeName(base string, taken map[string]struct{}) string {
	candidate := base
	for n := 2; ; n++ {
		if _, used := taken[candidate]; !used {
			break
		}
		candidate = base + strconv.Itoa(n)
	}
	taken[candidate] = struct{}{}
	return candidate
}

// serializeNew writes a brand-new subtree below dirPath, picking a
// middleware per node, and fills each snapshot's metadata so the equivalent
// tree patch stays consistent with disk. Returns the node's instigating
// path.
func serializeNew(plan *Plan, dirPath string, snap *snapshot.Snapshot, taken map[string]struct{}) (string, error) {
	mw := middlewareForClass(snap.ClassName, snap.Properties)
	base := dedupeName(fsname.Encode(snap.Name), taken)

	switch {
	case mw == snapshot.MiddlewareDir:
		nodeDir := filepath.Join(dirPath, base)
		childTaken := map[string]struct{}{}
		for _, child := range snap.Children {
			if _, err := serializeNew(plan, nodeDir, child, childTaken); err != nil {
				return "", err
			}
		}
		meta, err := partitionProperties(snap.Properties, mw, nil)
		if err != nil {
			return "", err
		}
		wroteMeta := false
		if !meta.isEmpty() {
			data, err := meta.encode()
			if err != nil {
				return "", err
			}
			plan.write(filepath.Join(nodeDir, "init.meta.json5"), data)
			wroteMeta = true
		}
		if len(snap.Children) == 0 && !wroteMeta {
			plan.write(filepath.Join(nodeDir, emptyDirKeepName), nil)
		}
		snap.Metadata.InstigatingSource = &snapshot.InstigatingSource{Path: nodeDir}
		snap.Metadata.RelevantPaths = snapshot.DirRelevantPaths(nodeDir)
		snap.Metadata.Middleware = mw
		return nodeDir, nil

	case mw.IsScript() && len(snap.Children) > 0:
		nodeDir := filepath.Join(dirPath, base)
		initPath := filepath.Join(nodeDir, "init"+suffixFor(mw))
		plan.write(initPath, []byte(sourceOf(snap.Properties)))
		childTaken := map[string]struct{}{"init": {}}
		for _, child := range snap.Children {
			if _, err := serializeNew(plan, nodeDir, child, childTaken); err != nil {
				return "", err
			}
		}
		if err := writeMetaIfNeeded(plan, filepath.Join(nodeDir, "init.meta.json5"), snap, mw); err != nil {
			return "", err
		}
		snap.Metadata.InstigatingSource = &snapshot.InstigatingSource{Path: nodeDir}
		snap.Metadata.RelevantPaths = snapshot.DirRelevantPaths(nodeDir)
		snap.Metadata.Middleware = mw
		return nodeDir, nil

	case mw.IsScript():
		filePath := filepath.Join(dirPath, base+suffixFor(mw))
		plan.write(filePath, []byte(sourceOf(snap.Properties)))
		if err := writeMetaIfNeeded(plan, filepath.Join(dirPath, base+".meta.json5"), snap, mw); err != nil {
			return "", err
		}
		snap.Metadata.InstigatingSource = &snapshot.InstigatingSource{Path: filePath}
		snap.Metadata.RelevantPaths = []string{filePath}
		snap.Metadata.Middleware = mw
		return filePath, nil

	case mw == snapshot.MiddlewareText:
		filePath := filepath.Join(dirPath, base+".txt")
		value, _ := snap.Properties["Value"].(variant.String)
		plan.write(filePath, []byte(value))
		if err := writeMetaIfNeeded(plan, filepath.Join(dirPath, base+".meta.json5"), snap, mw); err != nil {
			return "", err
		}
		snap.Metadata.InstigatingSource = &snapshot.InstigatingSource{Path: filePath}
		snap.Metadata.RelevantPaths = []string{filePath}
		snap.Metadata.Middleware = mw
		return filePath, nil

	default:
		filePath := filepath.Join(dirPath, base+".model.json5")
		model, err := modelFromSnapshot(snap, false)
		if err != nil {
			return "", err
		}
		data, err := encodeModel(model)
		if err != nil {
			return "", err
		}
		plan.write(filePath, data)
		snap.Metadata.InstigatingSource = &snapshot.InstigatingSource{Path: filePath}
		snap.Metadata.RelevantPaths = []string{filePath}
		snap.Metadata.Middleware = snapshot.MiddlewareJSONModel
		return filePath, nil
	}
}

func writeMetaIfNeeded(plan *Plan, metaPath string, snap *snapshot.Snapshot, mw snapshot.Middleware) error {
	meta, err := partitionProperties(snap.Properties, mw, nil)
	if err != nil {
		return err
	}
	if meta.isEmpty() {
		return nil
	}
	data, err := meta.encode()
	if err != nil {
		return err
	}
	plan.write(metaPath, data)
	snap.Metadata.RelevantPaths = append(snap.Metadata.RelevantPaths, metaPath)
	return nil
}

func sourceOf(props variant.Map) string {
	source, _ := props["Source"].(variant.String)
	return string(source)
}
