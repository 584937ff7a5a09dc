package snapshot

import (
	"fmt"
	"path/filepath"

	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// snapshotProjectFile materializes a nested project manifest found during a
// directory walk.
func snapshotProjectFile(ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	proj, err := project.Load(v, path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	snap, err := FromProject(v, proj)
	if err != nil {
		return nil, err
	}
	if snap != nil && proj.Name == "" {
		snap.Name = name
	}
	return snap, nil
}

// FromProject materializes a parsed manifest into a snapshot. The manifest's
// sync rules and ignore globs become the context for the whole subtree.
func FromProject(v *vfs.Vfs, proj *project.Project) (*Snapshot, error) {
	ctx := &Context{
		ProjectFolder: proj.Folder(),
		IgnorePaths:   proj.GlobIgnorePaths,
		SyncRules:     proj.SyncRules,
	}

	rootName := proj.Name
	if rootName == "" {
		rootName = filepath.Base(proj.Folder())
	}

	snap, err := snapshotProjectNode(ctx, v, proj, rootName, proj.Tree, "")
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, fmt.Errorf("%s: project tree produced no instance", proj.FilePath)
	}

	// Manifest edits re-drive the whole root.
	snap.Metadata.RelevantPaths = append(snap.Metadata.RelevantPaths, proj.FilePath)
	return snap, nil
}

// snapshotProjectNode materializes one manifest node. A nil snapshot with a
// nil error means an optional path was absent.
func snapshotProjectNode(ctx *Context, v *vfs.Vfs, proj *project.Project, name string, node *project.Node, parentClass string) (*Snapshot, error) {
	var snap *Snapshot

	if !node.Path.IsEmpty() {
		fullPath := proj.ResolvePath(node.Path.Path)
		materialized, err := FromPath(ctx, v, fullPath)
		if err != nil {
			return nil, err
		}
		if materialized == nil {
			if node.Path.Optional {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: node %q requires path %s, which is missing", proj.FilePath, name, fullPath)
		}
		snap = materialized
		snap.Name = name
		// The node itself is declared by the manifest: renames and property
		// writes reconcile through the project, not the mounted path. Its
		// relevant paths stay the materialized ones so file events promote
		// here.
		snap.Metadata.InstigatingSource = &InstigatingSource{ProjectPath: proj.FilePath, NodeName: name}
		if node.ClassName != "" {
			if snap.ClassName != "Folder" {
				return nil, fmt.Errorf(
					"%s: node %q specifies both $className and $path, so the path must produce a Folder, got %s",
					proj.FilePath, name, snap.ClassName,
				)
			}
			snap.ClassName = node.ClassName
		}
	} else {
		className := node.ClassName
		if className == "" {
			className = project.InferClassName(name, parentClass)
		}
		if className == "" {
			return nil, fmt.Errorf("%s: cannot infer a class for node %q; specify $className", proj.FilePath, name)
		}
		snap = &Snapshot{
			Name:      name,
			ClassName: className,
			Metadata: Metadata{
				InstigatingSource: &InstigatingSource{ProjectPath: proj.FilePath, NodeName: name},
				// Synthesized instances preserve children created at
				// runtime by default.
				IgnoreUnknownInstances: true,
				Middleware:             MiddlewareProject,
				Context:                *ctx,
			},
		}
	}

	for _, childName := range node.ChildNames() {
		child, err := snapshotProjectNode(ctx, v, proj, childName, node.Children[childName], snap.ClassName)
		if err != nil {
			return nil, err
		}
		if child != nil {
			snap.Children = append(snap.Children, child)
		}
	}

	if len(node.Properties) > 0 {
		props, err := variant.DecodeJSONMap(node.Properties)
		if err != nil {
			return nil, fmt.Errorf("%s: node %q: %w", proj.FilePath, name, err)
		}
		if snap.Properties == nil {
			snap.Properties = make(variant.Map, len(props))
		}
		// Project properties override whatever the path produced.
		if snap.Metadata.ProjectOverrides == nil {
			snap.Metadata.ProjectOverrides = make(map[string]struct{}, len(props))
		}
		for propName, propValue := range props {
			snap.Properties[propName] = propValue
			snap.Metadata.ProjectOverrides[propName] = struct{}{}
		}
	}

	if len(node.Attributes) > 0 {
		attrs, ok := snap.Properties["Attributes"].(variant.Attributes)
		if !ok {
			attrs = make(variant.Attributes, len(node.Attributes))
		}
		for attrName, raw := range node.Attributes {
			value, err := variant.DecodeJSON(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: node %q attribute %q: %w", proj.FilePath, name, attrName, err)
			}
			attrs[attrName] = value
		}
		if snap.Properties == nil {
			snap.Properties = make(variant.Map, 1)
		}
		snap.Properties["Attributes"] = attrs
	}

	if node.IgnoreUnknownInstances != nil {
		snap.Metadata.IgnoreUnknownInstances = *node.IgnoreUnknownInstances
	}
	if node.ID != "" {
		snap.Metadata.SpecifiedID = node.ID
	}
	return snap, nil
}
