package tree

import (
	"testing"

	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/variant"
)

func folder(name string, children ...*snapshot.Snapshot) *snapshot.Snapshot {
	return &snapshot.Snapshot{Name: name, ClassName: "Folder", Children: children}
}

func script(name, path string) *snapshot.Snapshot {
	return &snapshot.Snapshot{
		Name:      name,
		ClassName: "ModuleScript",
		Properties: variant.Map{
			"Source": variant.String("return 1"),
		},
		Metadata: snapshot.Metadata{
			InstigatingSource: &snapshot.InstigatingSource{Path: path},
			RelevantPaths:     []string{path},
			Middleware:        snapshot.MiddlewareModuleScript,
		},
	}
}

func TestInsertBuildsIndices(t *testing.T) {
	tr := New(folder("root", script("mod", "/src/mod.luau")))

	root := tr.Get(tr.RootID())
	if root == nil || len(root.Children) != 1 {
		t.Fatalf("root should have one child")
	}
	modID := root.Children[0]

	ids := tr.IDsAtPath("/src/mod.luau")
	if len(ids) != 1 || ids[0] != modID {
		t.Errorf("path index should anchor the script, got %v", ids)
	}
	if !tr.IsScriptRef(modID) {
		t.Errorf("ModuleScript belongs in the script index")
	}
	if tr.IsScriptRef(tr.RootID()) {
		t.Errorf("Folder must not be in the script index")
	}
}

func TestRemoveCleansIndices(t *testing.T) {
	tr := New(folder("root", script("mod", "/src/mod.luau")))
	modID := tr.Get(tr.RootID()).Children[0]

	tr.Remove(modID)

	if tr.Get(modID) != nil {
		t.Errorf("instance should be gone")
	}
	if ids := tr.IDsAtPath("/src/mod.luau"); len(ids) != 0 {
		t.Errorf("path index should be cleaned, got %v", ids)
	}
	if tr.IsScriptRef(modID) {
		t.Errorf("script index should be cleaned")
	}
	if len(tr.Get(tr.RootID()).Children) != 0 {
		t.Errorf("parent's child list should be cleaned")
	}
	if tr.Metadata(modID) != nil {
		t.Errorf("metadata should be dropped with its instance")
	}
}

func TestSetClassUpdatesScriptIndex(t *testing.T) {
	tr := New(folder("root", script("mod", "/src/mod.luau")))
	modID := tr.Get(tr.RootID()).Children[0]

	tr.SetClass(modID, "Folder")
	if tr.IsScriptRef(modID) {
		t.Errorf("leaving the script classes should drop index membership")
	}
	tr.SetClass(modID, "Script")
	if !tr.IsScriptRef(modID) {
		t.Errorf("entering the script classes should add index membership")
	}
}

func TestSpecifiedIDDuplicateIsAmbiguous(t *testing.T) {
	tr := New(folder("root",
		&snapshot.Snapshot{Name: "a", ClassName: "Folder", Metadata: snapshot.Metadata{SpecifiedID: "dup"}},
		&snapshot.Snapshot{Name: "b", ClassName: "Folder", Metadata: snapshot.Metadata{SpecifiedID: "dup"}},
	))

	if _, ok := tr.SpecifiedID("dup"); ok {
		t.Errorf("ambiguous symbolic ids must resolve to none")
	}

	// Removing one of the two recovers the mapping.
	var bID Referent
	for _, child := range tr.Get(tr.RootID()).Children {
		if tr.Get(child).Name == "b" {
			bID = child
		}
	}
	tr.Remove(bID)
	if id, ok := tr.SpecifiedID("dup"); !ok || tr.Get(id).Name != "a" {
		t.Errorf("symbolic id should recover after the duplicate goes away")
	}
}

func TestMetadataPathIndexConsistency(t *testing.T) {
	// Invariant: path appears in relevant paths iff the index maps it back.
	tr := New(folder("root", script("mod", "/src/mod.luau")))
	modID := tr.Get(tr.RootID()).Children[0]

	tr.UpdateMetadata(modID, &snapshot.Metadata{
		InstigatingSource: &snapshot.InstigatingSource{Path: "/src/renamed.luau"},
		RelevantPaths:     []string{"/src/renamed.luau"},
		Middleware:        snapshot.MiddlewareModuleScript,
	})

	if ids := tr.IDsAtPath("/src/mod.luau"); len(ids) != 0 {
		t.Errorf("old path should unmap, got %v", ids)
	}
	if ids := tr.IDsAtPath("/src/renamed.luau"); len(ids) != 1 || ids[0] != modID {
		t.Errorf("new path should map, got %v", ids)
	}
}

func TestGetInstanceByPath(t *testing.T) {
	tr := New(folder("root", folder("Sub", script("mod", "/src/Sub/mod.luau"))))

	id, ok := tr.GetInstanceByPath("sub/MOD")
	if !ok {
		t.Fatalf("case-insensitive path walk should succeed")
	}
	if tr.Get(id).Name != "mod" {
		t.Errorf("resolved wrong instance: %s", tr.Get(id).Name)
	}

	if _, ok := tr.GetInstanceByPath("sub/missing"); ok {
		t.Errorf("missing segments should fail")
	}
	if id, ok := tr.GetInstanceByPath(""); !ok || id != tr.RootID() {
		t.Errorf("empty path is the root")
	}
}

func TestResolveRefPathPrefixes(t *testing.T) {
	tr := New(folder("root",
		folder("A", script("leaf", "/src/A/leaf.luau")),
		folder("B"),
	))
	rootChildren := tr.Get(tr.RootID()).Children
	aID := rootChildren[0]
	leafID := tr.Get(aID).Children[0]
	bID := rootChildren[1]

	cases := []struct {
		expr   string
		source Referent
		want   Referent
		ok     bool
	}{
		{"@game", leafID, tr.RootID(), true},
		{"@self", leafID, leafID, true},
		{"@game/A/leaf", bID, leafID, true},
		{"@self/leaf", aID, leafID, true},
		{"./B", aID, bID, true},     // from A's parent (root)
		{"../A/leaf", leafID, leafID, true},
		{"A/leaf", bID, leafID, true}, // bare legacy form
		{"@game/A/../B", leafID, bID, true},
		{"@game/missing", leafID, NilReferent, false},
	}
	for _, c := range cases {
		got, ok := tr.ResolveRefPath(c.expr, c.source)
		if ok != c.ok {
			t.Errorf("ResolveRefPath(%q) ok = %v, want %v", c.expr, ok, c.ok)
			continue
		}
		if ok && got != c.want {
			t.Errorf("ResolveRefPath(%q) = %s, want %s", c.expr, tr.Get(got).Name, tr.Get(c.want).Name)
		}
	}
}

func TestResolveRefPathMatchesFilesystemNameFirst(t *testing.T) {
	// The child's on-disk name is encoded; ref paths address the encoded
	// form first, falling back to the instance name.
	tr := New(folder("root", script("What?Module", "/src/What%QUESTION%Module.luau")))
	leafID := tr.Get(tr.RootID()).Children[0]

	if got, ok := tr.ResolveRefPath("@game/What%QUESTION%Module.luau", leafID); !ok || got != leafID {
		t.Errorf("filesystem-name segment should resolve")
	}
	if got, ok := tr.ResolveRefPath("@game/What?Module", leafID); !ok || got != leafID {
		t.Errorf("instance-name fallback should resolve")
	}
}

func TestFilesystemName(t *testing.T) {
	tr := New(folder("root",
		script("mod", "/src/mod.luau"),
		&snapshot.Snapshot{
			Name:      "Workspace",
			ClassName: "Workspace",
			Metadata: snapshot.Metadata{
				InstigatingSource: &snapshot.InstigatingSource{ProjectPath: "/proj/default.project.json5", NodeName: "Workspace"},
			},
		},
	))
	children := tr.Get(tr.RootID()).Children
	if got := tr.FilesystemName(children[0]); got != "mod.luau" {
		t.Errorf("path-backed name = %q, want mod.luau", got)
	}
	// Project-sourced instances use the instance name, not the manifest's
	// file name.
	if got := tr.FilesystemName(children[1]); got != "Workspace" {
		t.Errorf("project-backed name = %q, want Workspace", got)
	}
}
