package tree

import (
	"path/filepath"
	"strings"
)

// FilesystemName returns the name an instance has (or would have) on disk:
// the file or directory name of its instigating path. Project-sourced
// instances use the instance name, never the manifest's file name.
func (t *Tree) FilesystemName(id Referent) string {
	inst := t.instances[id]
	if inst == nil {
		return ""
	}
	if meta := t.metadata[id]; meta != nil && meta.InstigatingSource != nil {
		source := meta.InstigatingSource
		if !source.IsProjectNode() && source.Path != "" {
			return filepath.Base(source.Path)
		}
	}
	return inst.Name
}

// GetInstanceByPath resolves a `/`-separated path of filesystem names from
// the root. The empty path is the root itself. Matching is case-insensitive
// by filesystem name first, instance name second.
func (t *Tree) GetInstanceByPath(path string) (Referent, bool) {
	if path == "" {
		return t.rootID, true
	}
	return t.walkSegments(t.rootID, path)
}

// ResolveRefPath resolves a reference path expression from the instance that
// carries the attribute. Prefixes: `@game` from the root, `@self` from the
// carrier, `./` from its parent, `../` from its grandparent, bare paths are
// legacy `@game` equivalents.
func (t *Tree) ResolveRefPath(path string, source Referent) (Referent, bool) {
	switch {
	case path == "@game":
		return t.rootID, true
	case path == "@self":
		return source, true
	case strings.HasPrefix(path, "@game/"):
		return t.walkSegments(t.rootID, strings.TrimPrefix(path, "@game/"))
	case strings.HasPrefix(path, "@self/"):
		return t.walkSegments(source, strings.TrimPrefix(path, "@self/"))
	case strings.HasPrefix(path, "./"):
		inst := t.instances[source]
		if inst == nil || inst.Parent == NilReferent {
			return NilReferent, false
		}
		return t.walkSegments(inst.Parent, strings.TrimPrefix(path, "./"))
	case strings.HasPrefix(path, "../"):
		inst := t.instances[source]
		if inst == nil || inst.Parent == NilReferent {
			return NilReferent, false
		}
		parent := t.instances[inst.Parent]
		if parent == nil || parent.Parent == NilReferent {
			return NilReferent, false
		}
		return t.walkSegments(parent.Parent, strings.TrimPrefix(path, "../"))
	}
	// Bare path: legacy, equivalent to @game/.
	return t.walkSegments(t.rootID, path)
}

// walkSegments walks `/`-separated segments from a starting instance. A
// `..` segment goes to the parent; every other segment matches a child by
// filesystem name first, instance name second, both case-insensitively.
func (t *Tree) walkSegments(start Referent, rest string) (Referent, bool) {
	current := start
	for _, segment := range strings.Split(rest, "/") {
		if segment == "" {
			continue
		}
		if segment == ".." {
			inst := t.instances[current]
			if inst == nil || inst.Parent == NilReferent {
				return NilReferent, false
			}
			current = inst.Parent
			continue
		}

		inst := t.instances[current]
		if inst == nil {
			return NilReferent, false
		}
		found := false
		for _, child := range inst.Children {
			if strings.EqualFold(t.FilesystemName(child), segment) {
				current = child
				found = true
				break
			}
		}
		if !found {
			for _, child := range inst.Children {
				childInst := t.instances[child]
				if childInst != nil && strings.EqualFold(childInst.Name, segment) {
					current = child
					found = true
					break
				}
			}
		}
		if !found {
			return NilReferent, false
		}
	}
	return current, true
}
