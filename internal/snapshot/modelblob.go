package snapshot

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/robloxapi/rbxfile"
	"github.com/robloxapi/rbxfile/rbxl"
	"github.com/robloxapi/rbxfile/rbxlx"

	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// snapshotRbxm reads a binary model blob. The format itself is a black box
// behind rbxfile; this middleware only converts the decoded instances.
func snapshotRbxm(ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	data, err := v.Read(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	root, _, err := rbxl.Decoder{Mode: rbxl.Model}.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: malformed binary model: %w", path, err)
	}
	return blobToSnapshot(ctx, root, path, name, MiddlewareRbxm)
}

// snapshotRbxmx reads an XML model blob.
func snapshotRbxmx(ctx *Context, v *vfs.Vfs, path, name string) (*Snapshot, error) {
	data, err := v.Read(path)
	if err != nil {
		if vfs.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	root, _, err := (rbxlx.Decoder{}).Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: malformed xml model: %w", path, err)
	}
	return blobToSnapshot(ctx, root, path, name, MiddlewareRbxmx)
}

func blobToSnapshot(ctx *Context, root *rbxfile.Root, path, name string, mw Middleware) (*Snapshot, error) {
	if len(root.Instances) != 1 {
		return nil, fmt.Errorf("%s: model must contain exactly one root instance, found %d", path, len(root.Instances))
	}

	snap := rbxInstanceToSnapshot(root.Instances[0])
	// The file name wins over whatever name the blob carries.
	snap.Name = name
	snap.Metadata = Metadata{
		InstigatingSource: &InstigatingSource{Path: path},
		RelevantPaths:     []string{path},
		Middleware:        mw,
		Context:           *ctx,
	}
	return snap, nil
}

func instName(inst *rbxfile.Instance) string {
	if name, ok := inst.Properties["Name"].(rbxfile.ValueString); ok {
		return string(name)
	}
	return ""
}

func rbxInstanceToSnapshot(inst *rbxfile.Instance) *Snapshot {
	props := make(variant.Map, len(inst.Properties))
	for propName, propValue := range inst.Properties {
		switch propName {
		case "Name":
			continue
		case "Tags":
			// Tags serialize as a NUL-separated binary string.
			if raw, ok := propValue.(rbxfile.ValueBinaryString); ok && len(raw) > 0 {
				props["Tags"] = variant.Tags(strings.Split(string(raw), "\x00"))
				continue
			}
		}
		if converted, ok := variant.FromRbx(propValue); ok {
			props[propName] = converted
		}
	}

	snap := &Snapshot{
		Name:       instName(inst),
		ClassName:  inst.ClassName,
		Properties: props,
	}
	for _, child := range inst.Children {
		snap.Children = append(snap.Children, rbxInstanceToSnapshot(child))
	}
	return snap
}

// SnapshotToRbxInstance converts back for model serialization on syncback.
// Tags are written as a NUL-separated binary string. Attributes maps (user
// and control attributes alike), references and other shapes ToRbx rejects
// are dropped; an opaque AttributesSerialize binary string passes through.
func SnapshotToRbxInstance(snap *Snapshot) *rbxfile.Instance {
	inst := rbxfile.NewInstance(snap.ClassName)
	inst.Properties["Name"] = rbxfile.ValueString(snap.Name)
	for propName, propValue := range snap.Properties {
		if propName == "Tags" {
			if tags, ok := propValue.(variant.Tags); ok {
				inst.Properties["Tags"] = rbxfile.ValueBinaryString(strings.Join(tags, "\x00"))
				continue
			}
		}
		if converted, ok := variant.ToRbx(propValue); ok {
			inst.Properties[propName] = converted
		}
	}
	for _, child := range snap.Children {
		childInst := SnapshotToRbxInstance(child)
		inst.Children = append(inst.Children, childInst)
	}
	return inst
}

// EncodeRbxm serializes a snapshot subtree as a binary model blob.
func EncodeRbxm(snap *Snapshot) ([]byte, error) {
	root := &rbxfile.Root{Instances: []*rbxfile.Instance{SnapshotToRbxInstance(snap)}}
	var buf bytes.Buffer
	if _, err := (rbxl.Encoder{Mode: rbxl.Model}).Encode(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeRbxmx serializes a snapshot subtree as an XML model blob.
func EncodeRbxmx(snap *Snapshot) ([]byte, error) {
	root := &rbxfile.Root{Instances: []*rbxfile.Instance{SnapshotToRbxInstance(snap)}}
	var buf bytes.Buffer
	if _, err := (rbxlx.Encoder{}).Encode(&buf, root); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
