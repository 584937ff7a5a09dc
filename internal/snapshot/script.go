package snapshot

import (
	"path/filepath"
	"strings"

	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// RunContext enum values for the Script class.
const (
	RunContextLegacy variant.Enum = 0
	RunContextServer variant.Enum = 1
	RunContextClient variant.Enum = 2
	RunContextPlugin variant.Enum = 3
)

// ScriptClass returns the instance class and RunContext for a script-family
// middleware. The RunContext pointer is nil for classes that do not carry
// one (ModuleScript, LocalScript).
func ScriptClass(mw Middleware) (string, *variant.Enum) {
	rc := func(v variant.Enum) *variant.Enum { return &v }
	switch mw {
	case MiddlewareServerScript:
		return "Script", rc(RunContextServer)
	case MiddlewareClientScript:
		return "Script", rc(RunContextClient)
	case MiddlewarePluginScript:
		return "Script", rc(RunContextPlugin)
	case MiddlewareLegacyScript:
		return "Script", rc(RunContextLegacy)
	case MiddlewareLocalScript:
		return "LocalScript", nil
	default:
		return "ModuleScript", nil
	}
}

// ScriptMiddlewareFor is the reverse mapping used by syncback: given a class
// and its RunContext property, pick the script middleware whose suffix
// expresses it.
func ScriptMiddlewareFor(className string, runContext *variant.Enum) Middleware {
	switch className {
	case "ModuleScript":
		return MiddlewareModuleScript
	case "LocalScript":
		return MiddlewareLocalScript
	case "Script":
		if runContext == nil {
			return MiddlewareLegacyScript
		}
		switch *runContext {
		case RunContextServer:
			return MiddlewareServerScript
		case RunContextClient:
			return MiddlewareClientScript
		case RunContextPlugin:
			return MiddlewarePluginScript
		default:
			return MiddlewareLegacyScript
		}
	}
	return MiddlewareNone
}

// scriptStem strips the script-family suffix from a path, leaving the base
// for sibling meta-file computation.
func scriptStem(path string) string {
	fileName := filepath.Base(path)
	for _, entry := range scriptSuffixes {
		if strings.HasSuffix(fileName, entry.suffix) {
			return filepath.Join(filepath.Dir(path), strings.TrimSuffix(fileName, entry.suffix))
		}
	}
	return strings.TrimSuffix(path, filepath.Ext(path))
}

// snapshotScript reads a script file into a snapshot: UTF-8 source with
// CRLF normalized, class and RunContext from the filename suffix, and an
// adjacent meta file merged when present.
func snapshotScript(ctx *Context, v *vfs.Vfs, path, name string, mw Middleware) (*Snapshot, error) {
	source, err := v.ReadString(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	className, runContext := ScriptClass(mw)
	props := variant.Map{"Source": variant.String(source)}
	if runContext != nil {
		props["RunContext"] = *runContext
	}

	snap := &Snapshot{
		Name:       name,
		ClassName:  className,
		Properties: props,
		Metadata: Metadata{
			InstigatingSource: &InstigatingSource{Path: path},
			RelevantPaths:     []string{path},
			Middleware:        mw,
			Context:           *ctx,
		},
	}

	meta, metaPath, err := readMeta(v, scriptStem(path))
	if err != nil {
		return nil, err
	}
	if meta != nil {
		snap.Metadata.RelevantPaths = append(snap.Metadata.RelevantPaths, metaPath)
		if err := meta.applyTo(snap, metaPath); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
