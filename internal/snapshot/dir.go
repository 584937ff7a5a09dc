package snapshot

import (
	"path/filepath"

	"github.com/untoldecay/loom/internal/vfs"
)

// initNames are the file names that promote a directory into a script
// instance, in priority order.
var initNames = []string{
	"init.luau",
	"init.server.luau",
	"init.client.luau",
	"init.local.luau",
	"init.plugin.luau",
	"init.legacy.luau",
	"init.lua",
	"init.server.lua",
	"init.client.lua",
}

// InitNameFor returns the init-file name a script middleware serializes to
// inside a directory.
func InitNameFor(mw Middleware) string {
	switch mw {
	case MiddlewareServerScript:
		return "init.server.luau"
	case MiddlewareClientScript:
		return "init.client.luau"
	case MiddlewareLocalScript:
		return "init.local.luau"
	case MiddlewarePluginScript:
		return "init.plugin.luau"
	case MiddlewareLegacyScript:
		return "init.legacy.luau"
	default:
		return "init.luau"
	}
}

// IsInitName reports whether a file name is a recognized init file.
func IsInitName(name string) bool {
	for _, init := range initNames {
		if name == init {
			return true
		}
	}
	return false
}

// DirRelevantPaths lists the directory plus every init-file variant, so a
// change to any of them re-drives the directory's middleware.
func DirRelevantPaths(dirPath string) []string {
	paths := make([]string, 0, len(initNames)+2)
	paths = append(paths, dirPath)
	for _, init := range initNames {
		paths = append(paths, filepath.Join(dirPath, init))
	}
	paths = append(paths, filepath.Join(dirPath, "init.meta.json5"))
	return paths
}

// snapshotDir lists a directory, snapshots every child through middleware
// selection, and handles init-file promotion: when an init script exists,
// its snapshot replaces the directory's at the root level, taking the
// directory's name and the other entries as children.
func snapshotDir(ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	entries, err := v.ReadDir(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var initPath string
	var initMw Middleware
	for _, init := range initNames {
		candidate := filepath.Join(path, init)
		for _, entry := range entries {
			if entry == candidate {
				mw, _, err := SelectMiddleware(ctx, v, candidate)
				if err != nil {
					return nil, err
				}
				if mw.IsScript() {
					initPath = candidate
					initMw = mw
				}
				break
			}
		}
		if initPath != "" {
			break
		}
	}

	var children []*Snapshot
	for _, entry := range entries {
		if entry == initPath {
			continue
		}
		if IsInitName(filepath.Base(entry)) {
			// A lower-priority init variant alongside the active one; skip
			// rather than duplicate the directory's own instance.
			continue
		}
		child, err := FromPath(ctx, v, entry)
		if err != nil {
			return nil, err
		}
		if child != nil {
			children = append(children, child)
		}
	}

	var snap *Snapshot
	if initPath != "" {
		initSnap, err := snapshotScript(ctx, v, initPath, name, initMw)
		if err != nil {
			return nil, err
		}
		if initSnap == nil {
			return nil, nil
		}
		snap = initSnap
		snap.Name = name
		snap.Children = children
	} else {
		snap = &Snapshot{
			Name:      name,
			ClassName: "Folder",
			Children:  children,
			Metadata: Metadata{
				Middleware: MiddlewareDir,
				Context:    *ctx,
			},
		}
	}

	snap.Metadata.InstigatingSource = &InstigatingSource{Path: path}
	snap.Metadata.RelevantPaths = DirRelevantPaths(path)

	if initPath == "" {
		// The init case already merged init.meta.json5 through the script
		// middleware.
		meta, metaPath, err := readMeta(v, filepath.Join(path, "init"))
		if err != nil {
			return nil, err
		}
		if meta != nil {
			if err := meta.applyTo(snap, metaPath); err != nil {
				return nil, err
			}
		}
	}
	return snap, nil
}
