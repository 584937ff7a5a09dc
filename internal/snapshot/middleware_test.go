package snapshot

import (
	"testing"

	"github.com/untoldecay/loom/internal/project"
	"github.com/untoldecay/loom/internal/variant"
	"github.com/untoldecay/loom/internal/vfs"
)

func write(t *testing.T, v *vfs.Vfs, path, contents string) {
	t.Helper()
	if err := v.Write(path, []byte(contents)); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func mustSnapshot(t *testing.T, v *vfs.Vfs, path string) *Snapshot {
	t.Helper()
	snap, err := FromPath(&Context{}, v, path)
	if err != nil {
		t.Fatalf("snapshot of %s failed: %v", path, err)
	}
	if snap == nil {
		t.Fatalf("snapshot of %s produced nothing", path)
	}
	return snap
}

func TestSelectMiddlewareBuiltinTable(t *testing.T) {
	v := vfs.NewMem()
	cases := []struct {
		path string
		mw   Middleware
		name string
	}{
		{"/src/foo.luau", MiddlewareModuleScript, "foo"},
		{"/src/foo.lua", MiddlewareModuleScript, "foo"},
		{"/src/foo.server.luau", MiddlewareServerScript, "foo"},
		{"/src/foo.client.luau", MiddlewareClientScript, "foo"},
		{"/src/foo.local.luau", MiddlewareLocalScript, "foo"},
		{"/src/foo.plugin.luau", MiddlewarePluginScript, "foo"},
		{"/src/foo.legacy.luau", MiddlewareLegacyScript, "foo"},
		{"/src/foo.model.json5", MiddlewareJSONModel, "foo"},
		{"/src/foo.csv", MiddlewareCSV, "foo"},
		{"/src/notes.txt", MiddlewareText, "notes"},
		{"/src/place.project.json5", MiddlewareProject, "place"},
	}
	for _, c := range cases {
		write(t, v, c.path, "x")
		mw, name, err := SelectMiddleware(&Context{}, v, c.path)
		if err != nil {
			t.Fatalf("%s: %v", c.path, err)
		}
		if mw != c.mw {
			t.Errorf("%s: expected middleware %s, got %s", c.path, c.mw, mw)
		}
		if name != c.name {
			t.Errorf("%s: expected name %q, got %q", c.path, c.name, name)
		}
	}
}

func TestSelectMiddlewareMetaFilesAreNotStandalone(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/foo.meta.json5", "{}")
	mw, _, err := SelectMiddleware(&Context{}, v, "/src/foo.meta.json5")
	if err != nil {
		t.Fatalf("SelectMiddleware failed: %v", err)
	}
	if mw != MiddlewareNone {
		t.Errorf("meta files must be consumed as siblings, got middleware %s", mw)
	}
}

func TestSelectMiddlewareMissingPath(t *testing.T) {
	v := vfs.NewMem()
	mw, _, err := SelectMiddleware(&Context{}, v, "/missing.luau")
	if err != nil {
		t.Fatalf("missing paths should not error: %v", err)
	}
	if mw != MiddlewareNone {
		t.Errorf("missing path should select no middleware")
	}
}

func TestSyncRulesWinOverBuiltins(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/data.txt", "hello")
	ctx := &Context{
		ProjectFolder: "/",
		SyncRules: []project.SyncRule{
			{Pattern: "src/*.txt", Use: "moduleScript"},
		},
	}
	mw, name, err := SelectMiddleware(ctx, v, "/src/data.txt")
	if err != nil {
		t.Fatalf("SelectMiddleware failed: %v", err)
	}
	if mw != MiddlewareModuleScript {
		t.Errorf("sync rule should pick moduleScript, got %s", mw)
	}
	if name != "data" {
		t.Errorf("expected name data, got %q", name)
	}
}

func TestIgnoreGlobs(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/generated/out.luau", "x")
	ctx := &Context{ProjectFolder: "/", IgnorePaths: []string{"src/generated/**"}}
	snap, err := FromPath(ctx, v, "/src/generated/out.luau")
	if err != nil {
		t.Fatalf("FromPath failed: %v", err)
	}
	if snap != nil {
		t.Errorf("ignored path should produce no snapshot")
	}
}

func TestScriptSnapshot(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/thing.server.luau", "print(1)\r\nprint(2)\n")
	snap := mustSnapshot(t, v, "/src/thing.server.luau")

	if snap.ClassName != "Script" {
		t.Errorf("expected Script, got %s", snap.ClassName)
	}
	if snap.Name != "thing" {
		t.Errorf("expected name thing, got %q", snap.Name)
	}
	if src := snap.Properties["Source"]; src != variant.String("print(1)\nprint(2)\n") {
		t.Errorf("CRLF should normalize to LF, got %#v", src)
	}
	if rc := snap.Properties["RunContext"]; rc != RunContextServer {
		t.Errorf("expected RunContext Server, got %#v", rc)
	}
	if snap.Metadata.Middleware != MiddlewareServerScript {
		t.Errorf("metadata middleware wrong: %s", snap.Metadata.Middleware)
	}
	if snap.Metadata.InstigatingSource == nil || snap.Metadata.InstigatingSource.Path != "/src/thing.server.luau" {
		t.Errorf("instigating source wrong: %+v", snap.Metadata.InstigatingSource)
	}
}

func TestScriptSnapshotModuleHasNoRunContext(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/mod.luau", "return 1")
	snap := mustSnapshot(t, v, "/src/mod.luau")
	if snap.ClassName != "ModuleScript" {
		t.Errorf("expected ModuleScript, got %s", snap.ClassName)
	}
	if _, has := snap.Properties["RunContext"]; has {
		t.Errorf("ModuleScript must not carry RunContext")
	}
}

func TestScriptMetaMerge(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/mod.luau", "return 1")
	write(t, v, "/src/mod.meta.json5", `{
        // meta files accept comments and trailing commas
        "ignoreUnknownInstances": true,
        "properties": {"Name2": "unused",},
        "attributes": {"Cool": true},
    }`)
	snap := mustSnapshot(t, v, "/src/mod.luau")

	if !snap.Metadata.IgnoreUnknownInstances {
		t.Errorf("meta ignoreUnknownInstances should apply")
	}
	attrs, ok := snap.Properties["Attributes"].(variant.Attributes)
	if !ok || attrs["Cool"] != variant.Bool(true) {
		t.Errorf("meta attributes should merge, got %#v", snap.Properties["Attributes"])
	}
	found := false
	for _, p := range snap.Metadata.RelevantPaths {
		if p == "/src/mod.meta.json5" {
			found = true
		}
	}
	if !found {
		t.Errorf("meta path should be relevant: %v", snap.Metadata.RelevantPaths)
	}
}

func TestDirSnapshotPlainFolder(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/lib/a.luau", "return 1")
	write(t, v, "/src/lib/b.luau", "return 2")
	snap := mustSnapshot(t, v, "/src/lib")

	if snap.ClassName != "Folder" {
		t.Errorf("expected Folder, got %s", snap.ClassName)
	}
	if len(snap.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(snap.Children))
	}
	if snap.Children[0].Name != "a" || snap.Children[1].Name != "b" {
		t.Errorf("children out of order: %s, %s", snap.Children[0].Name, snap.Children[1].Name)
	}
}

func TestDirSnapshotInitPromotion(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/lib/init.luau", "return {}")
	write(t, v, "/src/lib/helper.luau", "return 1")
	snap := mustSnapshot(t, v, "/src/lib")

	if snap.ClassName != "ModuleScript" {
		t.Errorf("init file should promote the directory to ModuleScript, got %s", snap.ClassName)
	}
	if snap.Name != "lib" {
		t.Errorf("promoted snapshot keeps the directory name, got %q", snap.Name)
	}
	if src := snap.Properties["Source"]; src != variant.String("return {}") {
		t.Errorf("promoted source wrong: %#v", src)
	}
	if len(snap.Children) != 1 || snap.Children[0].Name != "helper" {
		t.Fatalf("other entries become children, got %+v", snap.Children)
	}
	if snap.Metadata.InstigatingSource.Path != "/src/lib" {
		t.Errorf("instigating source should be the directory, got %s", snap.Metadata.InstigatingSource.Path)
	}
	// Relevant paths include the directory and the init variants.
	hasDir, hasInit := false, false
	for _, p := range snap.Metadata.RelevantPaths {
		if p == "/src/lib" {
			hasDir = true
		}
		if p == "/src/lib/init.luau" {
			hasInit = true
		}
	}
	if !hasDir || !hasInit {
		t.Errorf("relevant paths missing dir or init: %v", snap.Metadata.RelevantPaths)
	}
}

func TestDirSnapshotInitMeta(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/lib/child.luau", "return 1")
	write(t, v, "/src/lib/init.meta.json5", `{"ignoreUnknownInstances": true}`)
	snap := mustSnapshot(t, v, "/src/lib")
	if !snap.Metadata.IgnoreUnknownInstances {
		t.Errorf("init.meta.json5 should apply to the directory's instance")
	}
}

func TestJSONModelSnapshot(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/gadget.model.json5", `{
        "className": "Model",
        "children": [
            {"name": "Handle", "className": "Part", "properties": {"Transparency": 0.5}},
        ],
    }`)
	snap := mustSnapshot(t, v, "/src/gadget.model.json5")

	if snap.ClassName != "Model" || snap.Name != "gadget" {
		t.Errorf("model root wrong: %s %q", snap.ClassName, snap.Name)
	}
	if len(snap.Children) != 1 {
		t.Fatalf("expected one child, got %d", len(snap.Children))
	}
	child := snap.Children[0]
	if child.Name != "Handle" || child.ClassName != "Part" {
		t.Errorf("child wrong: %q %s", child.Name, child.ClassName)
	}
	if !variant.Eq(child.Properties["Transparency"], variant.Float64(0.5)) {
		t.Errorf("child property wrong: %#v", child.Properties["Transparency"])
	}
}

func TestCSVSnapshot(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/strings.csv", "Key,Source,es\ngreeting,Hello,Hola\n")
	snap := mustSnapshot(t, v, "/src/strings.csv")

	if snap.ClassName != "LocalizationTable" {
		t.Errorf("expected LocalizationTable, got %s", snap.ClassName)
	}
	contents, ok := snap.Properties["Contents"].(variant.String)
	if !ok {
		t.Fatalf("Contents missing: %#v", snap.Properties)
	}
	want := `[{"key":"greeting","source":"Hello","values":{"es":"Hola"}}]`
	if string(contents) != want {
		t.Errorf("Contents = %s, want %s", contents, want)
	}
}

func TestTextSnapshot(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/notes.txt", "hello there")
	snap := mustSnapshot(t, v, "/src/notes.txt")
	if snap.ClassName != "StringValue" {
		t.Errorf("expected StringValue, got %s", snap.ClassName)
	}
	if snap.Properties["Value"] != variant.String("hello there") {
		t.Errorf("Value wrong: %#v", snap.Properties["Value"])
	}
}

func TestEncodedNameDecodesOnRead(t *testing.T) {
	v := vfs.NewMem()
	write(t, v, "/src/What%QUESTION%Module.luau", "return 1")
	snap := mustSnapshot(t, v, "/src/What%QUESTION%Module.luau")
	if snap.Name != "What?Module" {
		t.Errorf("expected decoded name, got %q", snap.Name)
	}
}
