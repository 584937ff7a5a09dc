package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/untoldecay/loom/internal/fsname"
	"github.com/untoldecay/loom/internal/vfs"
)

// Middleware identifies a format-specific reader. The set is small and
// closed; selection is a pure function from path and sync-rule context.
type Middleware uint8

const (
	MiddlewareNone Middleware = iota
	MiddlewareProject
	MiddlewareDir
	MiddlewareModuleScript
	MiddlewareServerScript
	MiddlewareClientScript
	MiddlewareLocalScript
	MiddlewarePluginScript
	MiddlewareLegacyScript
	MiddlewareJSONModel
	MiddlewareRbxm
	MiddlewareRbxmx
	MiddlewareCSV
	MiddlewareText
	MiddlewareIgnore
)

var middlewareNames = map[string]Middleware{
	"project":      MiddlewareProject,
	"moduleScript": MiddlewareModuleScript,
	"serverScript": MiddlewareServerScript,
	"clientScript": MiddlewareClientScript,
	"localScript":  MiddlewareLocalScript,
	"pluginScript": MiddlewarePluginScript,
	"legacyScript": MiddlewareLegacyScript,
	"jsonModel":    MiddlewareJSONModel,
	"rbxm":         MiddlewareRbxm,
	"rbxmx":        MiddlewareRbxmx,
	"csv":          MiddlewareCSV,
	"text":         MiddlewareText,
	"ignore":       MiddlewareIgnore,
}

// MiddlewareByName maps a sync-rule `use` value to a middleware.
func MiddlewareByName(name string) (Middleware, bool) {
	mw, ok := middlewareNames[name]
	return mw, ok
}

func (m Middleware) String() string {
	for name, mw := range middlewareNames {
		if mw == m {
			return name
		}
	}
	switch m {
	case MiddlewareDir:
		return "dir"
	case MiddlewareNone:
		return "none"
	}
	return "unknown"
}

// IsScript reports whether the middleware is a member of the script family.
func (m Middleware) IsScript() bool {
	switch m {
	case MiddlewareModuleScript, MiddlewareServerScript, MiddlewareClientScript,
		MiddlewareLocalScript, MiddlewarePluginScript, MiddlewareLegacyScript:
		return true
	}
	return false
}

// scriptSuffixes maps filename suffixes to script middlewares, checked in
// order so the more specific suffixes win.
var scriptSuffixes = []struct {
	suffix string
	mw     Middleware
}{
	{".server.luau", MiddlewareServerScript},
	{".server.lua", MiddlewareServerScript},
	{".client.luau", MiddlewareClientScript},
	{".client.lua", MiddlewareClientScript},
	{".local.luau", MiddlewareLocalScript},
	{".local.lua", MiddlewareLocalScript},
	{".plugin.luau", MiddlewarePluginScript},
	{".plugin.lua", MiddlewarePluginScript},
	{".legacy.luau", MiddlewareLegacyScript},
	{".legacy.lua", MiddlewareLegacyScript},
	{".luau", MiddlewareModuleScript},
	{".lua", MiddlewareModuleScript},
}

// SelectMiddleware inspects a path and picks its middleware. Sync rules from
// the project manifest win over the built-in table; `instanceName` is the
// decoded name the snapshot would get, with any class suffix stripped.
func SelectMiddleware(ctx *Context, v *vfs.Vfs, path string) (Middleware, string, error) {
	fileName := filepath.Base(path)

	if ctx.ShouldIgnore(path) {
		return MiddlewareNone, "", nil
	}

	meta, err := v.Metadata(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return MiddlewareNone, "", nil
		}
		return MiddlewareNone, "", err
	}

	if rule := ctx.syncRuleFor(path); rule != nil {
		mw, ok := MiddlewareByName(rule.Use)
		if !ok {
			return MiddlewareNone, "", fmt.Errorf("%s: sync rule names unknown middleware %q", path, rule.Use)
		}
		if mw == MiddlewareIgnore {
			return MiddlewareNone, "", nil
		}
		name := stemFor(fileName, mw)
		if rule.Suffix != "" {
			name = strings.TrimSuffix(name, rule.Suffix)
		}
		return mw, fsname.Decode(name), nil
	}

	if !meta.IsFile {
		return MiddlewareDir, fsname.Decode(fileName), nil
	}

	switch {
	case strings.HasSuffix(fileName, ".project.json5"):
		return MiddlewareProject, fsname.Decode(strings.TrimSuffix(fileName, ".project.json5")), nil
	case strings.HasSuffix(fileName, ".project.json"):
		return MiddlewareProject, fsname.Decode(strings.TrimSuffix(fileName, ".project.json")), nil
	case strings.HasSuffix(fileName, ".meta.json5"), strings.HasSuffix(fileName, ".meta.json"):
		// Meta files are consumed as siblings, never as standalone
		// instances.
		return MiddlewareNone, "", nil
	case strings.HasSuffix(fileName, ".model.json5"):
		return MiddlewareJSONModel, fsname.Decode(strings.TrimSuffix(fileName, ".model.json5")), nil
	case strings.HasSuffix(fileName, ".model.json"):
		return MiddlewareJSONModel, fsname.Decode(strings.TrimSuffix(fileName, ".model.json")), nil
	}

	for _, entry := range scriptSuffixes {
		if strings.HasSuffix(fileName, entry.suffix) {
			return entry.mw, fsname.Decode(strings.TrimSuffix(fileName, entry.suffix)), nil
		}
	}

	switch filepath.Ext(fileName) {
	case ".rbxm":
		return MiddlewareRbxm, fsname.Decode(strings.TrimSuffix(fileName, ".rbxm")), nil
	case ".rbxmx":
		return MiddlewareRbxmx, fsname.Decode(strings.TrimSuffix(fileName, ".rbxmx")), nil
	case ".csv":
		return MiddlewareCSV, fsname.Decode(strings.TrimSuffix(fileName, ".csv")), nil
	case ".txt":
		return MiddlewareText, fsname.Decode(strings.TrimSuffix(fileName, ".txt")), nil
	}

	return MiddlewareNone, "", nil
}

// stemFor strips the middleware's own extension from a file name.
func stemFor(fileName string, mw Middleware) string {
	if mw.IsScript() {
		for _, entry := range scriptSuffixes {
			if strings.HasSuffix(fileName, entry.suffix) {
				return strings.TrimSuffix(fileName, entry.suffix)
			}
		}
	}
	switch mw {
	case MiddlewareJSONModel:
		for _, suffix := range []string{".model.json5", ".model.json"} {
			if strings.HasSuffix(fileName, suffix) {
				return strings.TrimSuffix(fileName, suffix)
			}
		}
	case MiddlewareProject:
		for _, suffix := range []string{".project.json5", ".project.json"} {
			if strings.HasSuffix(fileName, suffix) {
				return strings.TrimSuffix(fileName, suffix)
			}
		}
	}
	ext := filepath.Ext(fileName)
	return strings.TrimSuffix(fileName, ext)
}

// FromPath is the single snapshot entry point: select a middleware for the
// path and run it. A nil snapshot with nil error means the path produces no
// instance (absent or ignored).
func FromPath(ctx *Context, v *vfs.Vfs, path string) (*Snapshot, error) {
	mw, name, err := SelectMiddleware(ctx, v, path)
	if err != nil {
		return nil, err
	}
	return RunMiddleware(mw, ctx, v, path, name)
}

// RunMiddleware dispatches on the closed middleware set.
func RunMiddleware(mw Middleware, ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	switch mw {
	case MiddlewareNone:
		return nil, nil
	case MiddlewareProject:
		return snapshotProjectFile(ctx, v, path, name)
	case MiddlewareDir:
		return snapshotDir(ctx, v, path, name)
	case MiddlewareModuleScript, MiddlewareServerScript, MiddlewareClientScript,
		MiddlewareLocalScript, MiddlewarePluginScript, MiddlewareLegacyScript:
		return snapshotScript(ctx, v, path, name, mw)
	case MiddlewareJSONModel:
		return snapshotJSONModel(ctx, v, path, name)
	case MiddlewareRbxm:
		return snapshotRbxm(ctx, v, path, name)
	case MiddlewareRbxmx:
		return snapshotRbxmx(ctx, v, path, name)
	case MiddlewareCSV:
		return snapshotCSV(ctx, v, path, name)
	case MiddlewareText:
		return snapshotText(ctx, v, path, name)
	}
	return nil, fmt.Errorf("%s: no middleware to run", path)
}
