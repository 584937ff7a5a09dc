package syncback

import (
	"strings"
	"testing"

	"github.com/untoldecay/loom/internal/patch"
	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

// buildServed loads a directory into a tree the way a serve session would,
// returning the vfs and the tree.
func buildServed(t *testing.T, files map[string]string) (*vfs.Vfs, *tree.Tree) {
	t.Helper()
	v := vfs.NewMem()
	for path, contents := range files {
		if err := v.Write(path, []byte(contents)); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	snap, err := snapshot.FromPath(&snapshot.Context{}, v, "/src")
	if err != nil {
		t.Fatalf("snapshotting /src: %v", err)
	}
	if snap == nil {
		t.Fatalf("no snapshot for /src")
	}
	return v, tree.New(snap)
}

func childNamed(t *testing.T, tr *tree.Tree, parent tree.Referent, name string) tree.Referent {
	t.Helper()
	for _, child := range tr.Get(parent).Children {
		if tr.Get(child).Name == name {
			return child
		}
	}
	t.Fatalf("no child named %q", name)
	return tree.NilReferent
}

func runWrite(t *testing.T, v *vfs.Vfs, tr *tree.Tree, req *WriteRequest) *patch.Applied {
	t.Helper()
	plan, err := BuildPlan(v, tr, req)
	if err != nil {
		t.Fatalf("BuildPlan failed: %v", err)
	}
	if err := Execute(v, plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return patch.Apply(plan.Patch, tr)
}

func readFile(t *testing.T, v *vfs.Vfs, path string) string {
	t.Helper()
	data, err := v.Read(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

func TestScenarioScriptEdit(t *testing.T) {
	// Reverse-writing Source rewrites the backing file and yields exactly
	// one update in the applied patch.
	v, tr := buildServed(t, map[string]string{"/src/existing.luau": "return 1"})
	id := childNamed(t, tr, tr.RootID(), "existing")

	applied := runWrite(t, v, tr, &WriteRequest{Updated: []WriteUpdate{{
		ID:                id,
		ChangedProperties: map[string]variant.Value{"Source": variant.String("return 2")},
	}}})

	if got := readFile(t, v, "/src/existing.luau"); got != "return 2" {
		t.Errorf("file content = %q, want return 2", got)
	}
	if len(applied.Updated) != 1 {
		t.Fatalf("expected exactly one update, got %d", len(applied.Updated))
	}
	if !variant.Eq(applied.Updated[0].ChangedProperties["Source"], variant.String("return 2")) {
		t.Errorf("changed properties should carry the new source")
	}
	if got := tr.Get(id).Properties["Source"]; !variant.Eq(got, variant.String("return 2")) {
		t.Errorf("tree should match disk immediately")
	}
}

func TestScenarioClassTransition(t *testing.T) {
	// ModuleScript to Script (Server): the suffix rewrites, content stays.
	v, tr := buildServed(t, map[string]string{"/src/existing.luau": "return 1"})
	id := childNamed(t, tr, tr.RootID(), "existing")

	runWrite(t, v, tr, &WriteRequest{Updated: []WriteUpdate{{
		ID:               id,
		ChangedClassName: "Script",
		ChangedProperties: map[string]variant.Value{
			"RunContext": snapshot.RunContextServer,
		},
	}}})

	if v.Exists("/src/existing.luau") {
		t.Errorf("old file should be gone")
	}
	if got := readFile(t, v, "/src/existing.server.luau"); got != "return 1" {
		t.Errorf("new file content = %q, want unchanged", got)
	}
	inst := tr.Get(id)
	if inst.ClassName != "Script" {
		t.Errorf("tree class = %s, want Script", inst.ClassName)
	}
	if rc := inst.Properties["RunContext"]; rc != snapshot.RunContextServer {
		t.Errorf("RunContext = %#v, want Server", rc)
	}
	meta := tr.Metadata(id)
	if meta.InstigatingSource.Path != "/src/existing.server.luau" {
		t.Errorf("instigating source should follow: %s", meta.InstigatingSource.Path)
	}
}

func TestScenarioRenameWithMeta(t *testing.T) {
	// Renaming carries the sibling meta file along.
	v, tr := buildServed(t, map[string]string{
		"/src/existing.luau":       "return 1",
		"/src/existing.meta.json5": `{"attributes": {"A": true}}`,
	})
	id := childNamed(t, tr, tr.RootID(), "existing")

	runWrite(t, v, tr, &WriteRequest{Updated: []WriteUpdate{{
		ID:          id,
		ChangedName: "renamed",
	}}})

	if v.Exists("/src/existing.luau") || v.Exists("/src/existing.meta.json5") {
		t.Errorf("old files should be gone")
	}
	if got := readFile(t, v, "/src/renamed.luau"); got != "return 1" {
		t.Errorf("renamed content = %q", got)
	}
	metaContent := readFile(t, v, "/src/renamed.meta.json5")
	if !strings.Contains(metaContent, `"A"`) {
		t.Errorf("meta attributes should survive the rename: %s", metaContent)
	}
	if tr.Get(id).Name != "renamed" {
		t.Errorf("tree name should update")
	}
}

func TestScenarioStandaloneToDirectoryEncodedName(t *testing.T) {
	// Adding a child under a leaf converts it to a directory, preserving
	// the filesystem-name encoding.
	v, tr := buildServed(t, map[string]string{
		"/src/What%QUESTION%Module.luau": "return 0",
	})
	id := childNamed(t, tr, tr.RootID(), "What?Module")

	runWrite(t, v, tr, &WriteRequest{Added: []WriteAdd{{
		ParentID: id,
		Snapshot: &snapshot.Snapshot{
			Name:       "EncodedChild",
			ClassName:  "ModuleScript",
			Properties: variant.Map{"Source": variant.String("return 1")},
		},
	}}})

	if v.Exists("/src/What%QUESTION%Module.luau") {
		t.Errorf("standalone file should be gone")
	}
	if got := readFile(t, v, "/src/What%QUESTION%Module/init.luau"); got != "return 0" {
		t.Errorf("init content = %q, want the original", got)
	}
	if got := readFile(t, v, "/src/What%QUESTION%Module/EncodedChild.luau"); got != "return 1" {
		t.Errorf("child content = %q", got)
	}
	if v.Exists("/src/What?Module") {
		t.Errorf("decoded directory name must not appear on disk")
	}
	if len(tr.Get(id).Children) != 1 {
		t.Errorf("tree should gain the child")
	}
}

func TestScenarioProjectNodeGuard(t *testing.T) {
	// Property writes against a manifest-defined service are skipped with a
	// warning; the manifest stays untouched and no patch entry appears.
	v := vfs.NewMem()
	manifest := `{"name": "place", "tree": {"$className": "DataModel", "ReplicatedStorage": {}}}`
	if err := v.Write("/proj/default.project.json5", []byte(manifest)); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	service := &snapshot.Snapshot{
		Name:      "ReplicatedStorage",
		ClassName: "ReplicatedStorage",
		Metadata: snapshot.Metadata{
			InstigatingSource: &snapshot.InstigatingSource{
				ProjectPath: "/proj/default.project.json5",
				NodeName:    "ReplicatedStorage",
			},
			IgnoreUnknownInstances: true,
		},
	}
	tr := tree.New(&snapshot.Snapshot{Name: "place", ClassName: "DataModel", Children: []*snapshot.Snapshot{service}})
	serviceID := childNamed(t, tr, tr.RootID(), "ReplicatedStorage")

	applied := runWrite(t, v, tr, &WriteRequest{Updated: []WriteUpdate{{
		ID:                serviceID,
		ChangedProperties: map[string]variant.Value{"Whatever": variant.Bool(true)},
	}}})

	if got := readFile(t, v, "/proj/default.project.json5"); got != manifest {
		t.Errorf("manifest must be byte-identical after the write")
	}
	if len(applied.Updated) != 0 {
		t.Errorf("no applied patch entry for a guarded node, got %d", len(applied.Updated))
	}
}

func TestProjectNodeRemoveIsFatal(t *testing.T) {
	service := &snapshot.Snapshot{
		Name:      "Workspace",
		ClassName: "Workspace",
		Metadata: snapshot.Metadata{
			InstigatingSource: &snapshot.InstigatingSource{
				ProjectPath: "/proj/default.project.json5",
				NodeName:    "Workspace",
			},
		},
	}
	tr := tree.New(&snapshot.Snapshot{Name: "place", ClassName: "DataModel", Children: []*snapshot.Snapshot{service}})
	v := vfs.NewMem()

	_, err := BuildPlan(v, tr, &WriteRequest{Removed: []tree.Referent{childNamed(t, tr, tr.RootID(), "Workspace")}})
	if err == nil || !strings.Contains(err.Error(), "default.project.json5") {
		t.Errorf("removal of a project node must fail naming the project file, got %v", err)
	}
}

func TestDirInitSuffixRewrite(t *testing.T) {
	// A class change on a script-dir rewrites exactly the init file's
	// suffix, with the text unchanged.
	v, tr := buildServed(t, map[string]string{
		"/src/mod/init.luau":    "return {}",
		"/src/mod/helper.luau":  "return 1",
	})
	id := childNamed(t, tr, tr.RootID(), "mod")

	runWrite(t, v, tr, &WriteRequest{Updated: []WriteUpdate{{
		ID:               id,
		ChangedClassName: "Script",
		ChangedProperties: map[string]variant.Value{
			"RunContext": snapshot.RunContextServer,
		},
	}}})

	if v.Exists("/src/mod/init.luau") {
		t.Errorf("old init should be gone")
	}
	if got := readFile(t, v, "/src/mod/init.server.luau"); got != "return {}" {
		t.Errorf("init content must be unchanged, got %q", got)
	}
	if v.Exists("/src/mod/helper.luau") != true {
		t.Errorf("sibling files must be untouched")
	}
}

func TestRemoveStandaloneAlsoRemovesMeta(t *testing.T) {
	v, tr := buildServed(t, map[string]string{
		"/src/mod.server.luau": "print(1)",
		"/src/mod.meta.json5":  `{"attributes": {"A": 1}}`,
	})
	id := childNamed(t, tr, tr.RootID(), "mod")

	applied := runWrite(t, v, tr, &WriteRequest{Removed: []tree.Referent{id}})

	if v.Exists("/src/mod.server.luau") || v.Exists("/src/mod.meta.json5") {
		t.Errorf("file and sibling meta should both be removed")
	}
	if len(applied.Removed) != 1 {
		t.Errorf("tree removal should commit")
	}
}

func TestAddedSiblingNameDedup(t *testing.T) {
	v, tr := buildServed(t, map[string]string{
		"/src/Thing.luau": "return 1",
	})

	applied := runWrite(t, v, tr, &WriteRequest{Added: []WriteAdd{{
		ParentID: tr.RootID(),
		Snapshot: &snapshot.Snapshot{
			Name:       "Thing",
			ClassName:  "ModuleScript",
			Properties: variant.Map{"Source": variant.String("return 2")},
		},
	}}})

	// The pre-existing sibling keeps its file; the newcomer gets a suffix.
	if got := readFile(t, v, "/src/Thing.luau"); got != "return 1" {
		t.Errorf("existing sibling must be untouched")
	}
	if got := readFile(t, v, "/src/Thing2.luau"); got != "return 2" {
		t.Errorf("new sibling should land on a deduped name, got %q", got)
	}
	if len(applied.Added) != 1 {
		t.Errorf("tree add should commit")
	}
	// The instance name stays the decoded, un-deduped one.
	added := tr.Get(applied.Added[0])
	if added.Name != "Thing" {
		t.Errorf("instance name must stay %q, got %q", "Thing", added.Name)
	}
}

func TestAtomicWriteLeavesNoTemp(t *testing.T) {
	v := vfs.NewMem()
	plan := &Plan{Patch: &patch.Patch{}}
	plan.write("/src/out.luau", []byte("x"))
	if err := Execute(v, plan); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	entries, err := v.ReadDir("/src")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry, ".tmp") {
			t.Errorf("temp file leaked: %s", entry)
		}
	}
	if got := readFile(t, v, "/src/out.luau"); got != "x" {
		t.Errorf("content = %q", got)
	}
}
