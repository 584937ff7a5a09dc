package syncback

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"

	"github.com/untoldecay/loom/internal/fsname"
	"github.com/untoldecay/loom/internal/logging"
	"github.com/untoldecay/loom/internal/patch"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// planner carries per-plan state: which parents already had their container
// directory resolved (a standalone leaf converts at most once per plan) and
// which filesystem names are claimed under each parent.
type planner struct {
	v    *vfs.Vfs
	t    *tree.Tree
	plan *Plan

	containerDirs map[tree.Referent]string
	takenNames    map[tree.Referent]map[string]struct{}
}

// BuildPlan translates a reverse patch into a filesystem mutation plan plus
// the equivalent tree patch. Nothing is written; Execute applies the plan.
func BuildPlan(v *vfs.Vfs, t *tree.Tree, req *WriteRequest) (*Plan, error) {
	pl := &planner{
		v:             v,
		t:             t,
		plan:          &Plan{Patch: &patch.Patch{}},
		containerDirs: make(map[tree.Referent]string),
		takenNames:    make(map[tree.Referent]map[string]struct{}),
	}

	for _, id := range req.Removed {
		if err := pl.planRemove(id); err != nil {
			return nil, err
		}
	}
	for _, up := range req.Updated {
		if err := pl.planUpdate(up); err != nil {
			return nil, err
		}
	}
	for _, add := range req.Added {
		if err := pl.planAdd(add); err != nil {
			return nil, err
		}
	}
	return pl.plan, nil
}

// knownSuffixes are file suffixes with format meaning, longest first so
// stripping is unambiguous.
var knownSuffixes = []string{
	".server.luau", ".server.lua",
	".client.luau", ".client.lua",
	".local.luau", ".local.lua",
	".plugin.luau", ".plugin.lua",
	".legacy.luau", ".legacy.lua",
	".model.json5", ".model.json",
	".meta.json5", ".meta.json",
	".luau", ".lua", ".txt", ".csv", ".rbxm", ".rbxmx",
}

// stripKnownSuffix removes the format suffix from a file name, preserving
// the filesystem-name encoding.
func stripKnownSuffix(fileName string) string {
	for _, suffix := range knownSuffixes {
		if strings.HasSuffix(fileName, suffix) {
			return strings.TrimSuffix(fileName, suffix)
		}
	}
	return strings.TrimSuffix(fileName, filepath.Ext(fileName))
}

// siblingMetaPath computes the `*.meta.json5` path for a standalone file,
// with the class suffix stripped.
func siblingMetaPath(filePath string) string {
	dir := filepath.Dir(filePath)
	return filepath.Join(dir, stripKnownSuffix(filepath.Base(filePath))+".meta.json5")
}

func isScriptClass(className string) bool {
	_, ok := tree.ScriptClasses[className]
	return ok
}

func (pl *planner) planRemove(id tree.Referent) error {
	inst := pl.t.Get(id)
	if inst == nil {
		return nil
	}
	meta := pl.t.Metadata(id)
	if meta == nil || meta.InstigatingSource == nil {
		// Runtime-only instance: nothing on disk, only the tree changes.
		pl.plan.Patch.Removed = append(pl.plan.Patch.Removed, id)
		return nil
	}
	if meta.InstigatingSource.IsProjectNode() {
		return fmt.Errorf(
			"cannot remove %q: it is defined by project file %s",
			inst.Name, meta.InstigatingSource.ProjectPath,
		)
	}

	src := meta.InstigatingSource.Path
	if md, err := pl.v.Metadata(src); err == nil && !md.IsFile {
		pl.plan.removeDir(src)
	} else {
		pl.plan.removeFile(src)
		if metaPath := siblingMetaPath(src); pl.v.Exists(metaPath) {
			pl.plan.removeFile(metaPath)
		}
	}
	pl.plan.Patch.Removed = append(pl.plan.Patch.Removed, id)
	return nil
}

func (pl *planner) planUpdate(up WriteUpdate) error {
	inst := pl.t.Get(up.ID)
	if inst == nil {
		logging.Warnf("write update targets unknown instance %s; skipping", up.ID)
		return nil
	}
	meta := pl.t.Metadata(up.ID)

	if meta == nil || meta.InstigatingSource == nil {
		// Runtime-only instance: tree-only update.
		pl.plan.Patch.Updated = append(pl.plan.Patch.Updated, patch.Update{
			ID:                up.ID,
			ChangedName:       up.ChangedName,
			ChangedClassName:  up.ChangedClassName,
			ChangedProperties: up.ChangedProperties,
		})
		return nil
	}

	if meta.InstigatingSource.IsProjectNode() {
		if up.ChangedName != "" || up.ChangedClassName != "" {
			return fmt.Errorf(
				"cannot rename or change the class of %q: it is defined by project file %s",
				inst.Name, meta.InstigatingSource.ProjectPath,
			)
		}
		if len(up.ChangedProperties) > 0 {
			logging.Warnf(
				"cannot sync properties of %q back to project file %s; skipping",
				inst.Name, meta.InstigatingSource.ProjectPath,
			)
		}
		return nil
	}

	oldPath := meta.InstigatingSource.Path
	if md, err := pl.v.Metadata(oldPath); err == nil && !md.IsFile {
		return pl.planDirUpdate(up, inst, meta, oldPath)
	}
	return pl.planFileUpdate(up, inst, meta, oldPath)
}

// effectiveName and the other effective* helpers return the post-update
// value of a scalar: the changed value when the update carries one, the
// current tree value otherwise.
func effectiveName(up WriteUpdate, inst *tree.Instance) string {
	if up.ChangedName != "" {
		return up.ChangedName
	}
	return inst.Name
}

func effectiveClass(up WriteUpdate, inst *tree.Instance) string {
	if up.ChangedClassName != "" {
		return up.ChangedClassName
	}
	return inst.ClassName
}

func effectiveRunContext(up WriteUpdate, inst *tree.Instance) *variant.Enum {
	if value, present := up.ChangedProperties["RunContext"]; present {
		if rc, ok := value.(variant.Enum); ok {
			return &rc
		}
		return nil
	}
	if rc, ok := inst.Properties["RunContext"].(variant.Enum); ok {
		return &rc
	}
	return nil
}

func effectiveSource(up WriteUpdate, inst *tree.Instance) string {
	if value, present := up.ChangedProperties["Source"]; present {
		if s, ok := value.(variant.String); ok {
			return string(s)
		}
		return ""
	}
	return sourceOf(inst.Properties)
}

// planFileUpdate handles a standalone-file-backed instance: source rewrites,
// renames that carry the sibling meta along, and suffix-rewriting class
// changes.
func (pl *planner) planFileUpdate(up WriteUpdate, inst *tree.Instance, meta *snapshot.Metadata, oldPath string) error {
	dir := filepath.Dir(oldPath)
	newName := effectiveName(up, inst)
	newClass := effectiveClass(up, inst)
	newBase := fsname.Encode(newName)

	oldMw := meta.Middleware
	newMw := oldMw
	if isScriptClass(newClass) {
		newMw = snapshot.ScriptMiddlewareFor(newClass, effectiveRunContext(up, inst))
	} else if up.ChangedClassName != "" && up.ChangedClassName != inst.ClassName {
		return fmt.Errorf(
			"cannot change %q from %s to %s: no recoverable file format transition",
			inst.Name, inst.ClassName, newClass,
		)
	}

	var newPath string
	if newMw.IsScript() {
		newPath = filepath.Join(dir, newBase+suffixFor(newMw))
	} else {
		oldFile := filepath.Base(oldPath)
		ext := strings.TrimPrefix(oldFile, stripKnownSuffix(oldFile))
		newPath = filepath.Join(dir, newBase+ext)
	}

	_, sourceChanged := up.ChangedProperties["Source"]
	_, valueChanged := up.ChangedProperties["Value"]
	contentChanged := (newMw.IsScript() && sourceChanged) || (newMw == snapshot.MiddlewareText && valueChanged)

	newContent := func() []byte {
		if newMw == snapshot.MiddlewareText {
			if value, present := up.ChangedProperties["Value"]; present {
				s, _ := value.(variant.String)
				return []byte(s)
			}
			s, _ := inst.Properties["Value"].(variant.String)
			return []byte(s)
		}
		return []byte(effectiveSource(up, inst))
	}

	oldMetaPath := siblingMetaPath(oldPath)
	newMetaPath := filepath.Join(dir, newBase+".meta.json5")

	if newPath != oldPath {
		if contentChanged {
			pl.plan.write(newPath, newContent())
			pl.plan.removeFile(oldPath)
		} else {
			pl.plan.rename(oldPath, newPath)
		}
	} else if contentChanged {
		pl.plan.write(newPath, newContent())
	}

	metaExists := pl.v.Exists(oldMetaPath)
	nonNative := pl.nonNativeChanges(up, newMw, meta)
	hasMetaFile := metaExists
	if len(nonNative) > 0 {
		wrote, err := pl.mergeMetaFile(oldMetaPath, newMetaPath, nonNative)
		if err != nil {
			return err
		}
		hasMetaFile = wrote
	} else if metaExists && newMetaPath != oldMetaPath {
		pl.plan.rename(oldMetaPath, newMetaPath)
	}

	newMeta := *meta
	newMeta.InstigatingSource = &snapshot.InstigatingSource{Path: newPath}
	newMeta.Middleware = newMw
	newMeta.RelevantPaths = []string{newPath}
	if hasMetaFile {
		newMeta.RelevantPaths = append(newMeta.RelevantPaths, newMetaPath)
	}

	pl.appendEchoUpdate(up, inst, newClass, &newMeta)
	return nil
}

// planDirUpdate handles a directory-backed instance: directory renames and
// init-file format transitions (folder to script-dir and back, suffix
// rewrites within the script family).
func (pl *planner) planDirUpdate(up WriteUpdate, inst *tree.Instance, meta *snapshot.Metadata, oldDir string) error {
	newName := effectiveName(up, inst)
	newClass := effectiveClass(up, inst)
	newDir := filepath.Join(filepath.Dir(oldDir), fsname.Encode(newName))

	oldMw := meta.Middleware
	newMw := oldMw
	switch {
	case isScriptClass(newClass):
		newMw = snapshot.ScriptMiddlewareFor(newClass, effectiveRunContext(up, inst))
	case newClass == "Folder":
		newMw = snapshot.MiddlewareDir
	case up.ChangedClassName != "":
		return fmt.Errorf(
			"cannot change %q from %s to %s: no recoverable directory format transition",
			inst.Name, inst.ClassName, newClass,
		)
	}

	if newDir != oldDir {
		pl.plan.rename(oldDir, newDir)
	}

	_, sourceChanged := up.ChangedProperties["Source"]
	oldInit := filepath.Join(newDir, "init"+suffixFor(oldMw))
	newInit := filepath.Join(newDir, "init"+suffixFor(newMw))

	switch {
	case oldMw.IsScript() && newMw.IsScript():
		if sourceChanged {
			pl.plan.write(newInit, []byte(effectiveSource(up, inst)))
			if newInit != oldInit {
				pl.plan.removeFile(oldInit)
			}
		} else if newInit != oldInit {
			pl.plan.rename(oldInit, newInit)
		}
	case oldMw.IsScript() && newMw == snapshot.MiddlewareDir:
		// Script-dir back to plain folder: drop the init file.
		pl.plan.removeFile(oldInit)
	case oldMw == snapshot.MiddlewareDir && newMw.IsScript():
		// Folder to script-dir: an init file appears.
		pl.plan.write(newInit, []byte(effectiveSource(up, inst)))
	}

	nonNative := pl.nonNativeChanges(up, newMw, meta)
	if len(nonNative) > 0 {
		initMetaPath := filepath.Join(newDir, "init.meta.json5")
		if _, err := pl.mergeMetaFile(initMetaPath, initMetaPath, nonNative); err != nil {
			return err
		}
	}

	newMeta := *meta
	newMeta.InstigatingSource = &snapshot.InstigatingSource{Path: newDir}
	newMeta.Middleware = newMw
	newMeta.RelevantPaths = snapshot.DirRelevantPaths(newDir)

	pl.appendEchoUpdate(up, inst, newClass, &newMeta)
	return nil
}

// nonNativeChanges filters the changed properties down to the ones that land
// in a meta file, dropping project-manifest overrides with a warning.
func (pl *planner) nonNativeChanges(up WriteUpdate, mw snapshot.Middleware, meta *snapshot.Metadata) map[string]variant.Value {
	native := nativeProperties(mw)
	out := make(map[string]variant.Value)
	for name, value := range up.ChangedProperties {
		if _, isNative := native[name]; isNative {
			continue
		}
		if name == "NeedsPivotMigration" {
			continue
		}
		if _, overridden := meta.ProjectOverrides[name]; overridden {
			logging.Warnf("property %q is overridden by the project file; not writing it to disk", name)
			continue
		}
		out[name] = value
	}
	return out
}

// mergeMetaFile reads the existing meta file (if any), applies property
// changes, and plans the write -- or the removal when the merge leaves the
// file empty. Returns whether a meta file will exist afterwards.
func (pl *planner) mergeMetaFile(oldPath, newPath string, changes map[string]variant.Value) (bool, error) {
	merged := &metaFile{}
	existed := false
	if data, err := pl.v.Read(oldPath); err == nil {
		existed = true
		if err := json.Unmarshal(jsonc.ToJSON(data), merged); err != nil {
			return false, fmt.Errorf("%s: malformed meta file: %w", oldPath, err)
		}
	} else if !vfs.IsNotExist(err) {
		return false, err
	}

	for name, value := range changes {
		if name == "Attributes" {
			if value == nil {
				merged.Attributes = nil
				continue
			}
			attrs, ok := value.(variant.Attributes)
			if !ok {
				continue
			}
			payload, err := variant.EncodeJSON(attrs)
			if err != nil {
				return false, err
			}
			var tagged map[string]json.RawMessage
			if err := json.Unmarshal(payload, &tagged); err != nil {
				return false, err
			}
			merged.Attributes = map[string]json.RawMessage{}
			if err := json.Unmarshal(tagged["Attributes"], &merged.Attributes); err != nil {
				return false, err
			}
			continue
		}
		if value == nil {
			delete(merged.Properties, name)
			continue
		}
		raw, err := variant.EncodeJSON(value)
		if err != nil {
			return false, fmt.Errorf("property %q: %w", name, err)
		}
		if merged.Properties == nil {
			merged.Properties = map[string]json.RawMessage{}
		}
		merged.Properties[name] = raw
	}

	if merged.isEmpty() {
		if existed {
			pl.plan.removeFile(oldPath)
		}
		return false, nil
	}
	data, err := merged.encode()
	if err != nil {
		return false, err
	}
	pl.plan.write(newPath, data)
	if existed && newPath != oldPath {
		pl.plan.removeFile(oldPath)
	}
	return true, nil
}

// appendEchoUpdate records the tree-side equivalent of a planned filesystem
// update. RunContext is cleared when the new class no longer carries one.
func (pl *planner) appendEchoUpdate(up WriteUpdate, inst *tree.Instance, newClass string, newMeta *snapshot.Metadata) {
	echo := patch.Update{
		ID:               up.ID,
		ChangedName:      up.ChangedName,
		ChangedClassName: up.ChangedClassName,
		ChangedMetadata:  newMeta,
	}
	if len(up.ChangedProperties) > 0 {
		echo.ChangedProperties = make(map[string]variant.Value, len(up.ChangedProperties))
		for name, value := range up.ChangedProperties {
			echo.ChangedProperties[name] = value
		}
	}
	if up.ChangedClassName != "" && (newClass == "ModuleScript" || newClass == "LocalScript") {
		if _, has := inst.Properties["RunContext"]; has {
			if echo.ChangedProperties == nil {
				echo.ChangedProperties = make(map[string]variant.Value, 1)
			}
			if _, requested := echo.ChangedProperties["RunContext"]; !requested {
				echo.ChangedProperties["RunContext"] = nil
			}
		}
	}
	pl.plan.Patch.Updated = append(pl.plan.Patch.Updated, echo)
}

// planAdd serializes a new subtree under an existing parent, converting a
// standalone leaf parent into a directory first when needed.
func (pl *planner) planAdd(add WriteAdd) error {
	parent := pl.t.Get(add.ParentID)
	if parent == nil {
		return fmt.Errorf("write add targets unknown parent %s", add.ParentID)
	}
	dirPath, err := pl.containerDirFor(add.ParentID)
	if err != nil {
		return err
	}

	taken := pl.takenNames[add.ParentID]
	if taken == nil {
		taken = make(map[string]struct{})
		for _, childID := range parent.Children {
			taken[stripKnownSuffix(pl.t.FilesystemName(childID))] = struct{}{}
		}
		pl.takenNames[add.ParentID] = taken
	}

	if _, err := serializeNew(pl.plan, dirPath, add.Snapshot, taken); err != nil {
		return err
	}
	pl.plan.Patch.Added = append(pl.plan.Patch.Added, patch.Add{
		ParentID: add.ParentID,
		Snapshot: add.Snapshot,
	})
	return nil
}

// containerDirFor resolves the directory that holds a parent's children,
// converting a standalone script into a script-dir on first use: the leaf's
// content moves into an init file inside a new directory named after the
// leaf with its suffix stripped but its filesystem-name encoding preserved.
func (pl *planner) containerDirFor(parentID tree.Referent) (string, error) {
	if dir, done := pl.containerDirs[parentID]; done {
		return dir, nil
	}

	inst := pl.t.Get(parentID)
	meta := pl.t.Metadata(parentID)
	if meta == nil || meta.InstigatingSource == nil {
		return "", fmt.Errorf("cannot add children under %q: it has no filesystem source", inst.Name)
	}
	if meta.InstigatingSource.IsProjectNode() {
		return "", fmt.Errorf(
			"cannot add children under %q: it is defined by project file %s",
			inst.Name, meta.InstigatingSource.ProjectPath,
		)
	}

	src := meta.InstigatingSource.Path
	if md, err := pl.v.Metadata(src); err == nil && !md.IsFile {
		pl.containerDirs[parentID] = src
		return src, nil
	}

	if !meta.Middleware.IsScript() {
		return "", fmt.Errorf("cannot add children under %q: %s files cannot become directories", inst.Name, meta.Middleware)
	}

	newDir := filepath.Join(filepath.Dir(src), stripKnownSuffix(filepath.Base(src)))
	initPath := filepath.Join(newDir, "init"+suffixFor(meta.Middleware))

	pl.plan.removeFile(src)
	pl.plan.write(initPath, []byte(sourceOf(inst.Properties)))
	if oldMetaPath := siblingMetaPath(src); pl.v.Exists(oldMetaPath) {
		pl.plan.rename(oldMetaPath, filepath.Join(newDir, "init.meta.json5"))
	}

	newMeta := *meta
	newMeta.InstigatingSource = &snapshot.InstigatingSource{Path: newDir}
	newMeta.RelevantPaths = snapshot.DirRelevantPaths(newDir)
	pl.plan.Patch.Updated = append(pl.plan.Patch.Updated, patch.Update{
		ID:              parentID,
		ChangedMetadata: &newMeta,
	})

	pl.containerDirs[parentID] = newDir
	return newDir, nil
}
