package snapshot

import (
	"strings"

	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// snapshotText reads a plain-text file into a StringValue.
func snapshotText(ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	text, err := v.ReadString(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	snap := &Snapshot{
		Name:      name,
		ClassName: "StringValue",
		Properties: variant.Map{
			"Value": variant.String(text),
		},
		Metadata: Metadata{
			InstigatingSource: &InstigatingSource{Path: path},
			RelevantPaths:     []string{path},
			Middleware:        MiddlewareText,
			Context:           *ctx,
		},
	}

	meta, metaPath, err := readMeta(v, strings.TrimSuffix(path, ".txt"))
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
