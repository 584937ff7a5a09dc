package patch

import (
	"testing"

	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
)

func TestComputeNoOpPatchIsEmpty(t *testing.T) {
	// Patch minimality: re-snapshotting an unchanged tree yields zero adds,
	// removes, and updates.
	root := snap("root", "Folder", nil,
		snap("mod", "ModuleScript", variant.Map{"Source": variant.String("return 1")}),
		snap("sub", "Folder", nil, snap("leaf", "Part", variant.Map{"Transparency": variant.Float64(0.5)})),
	)
	tr := tree.New(root)

	same := snap("root", "Folder", nil,
		snap("mod", "ModuleScript", variant.Map{"Source": variant.String("return 1")}),
		snap("sub", "Folder", nil, snap("leaf", "Part", variant.Map{"Transparency": variant.Float64(0.5)})),
	)
	p := Compute(same, tr, tr.RootID())
	if !p.IsEmpty() {
		t.Errorf("no-op snapshot should produce an empty patch: %+v", p)
	}
}

func TestComputeFuzzyFloatNoise(t *testing.T) {
	tr := tree.New(snap("root", "Part", variant.Map{"Transparency": variant.Float64(0.5)}))
	noisy := snap("root", "Part", variant.Map{"Transparency": variant.Float64(0.500001)})
	if p := Compute(noisy, tr, tr.RootID()); !p.IsEmpty() {
		t.Errorf("round-trip float noise must not trigger a patch")
	}
}

func TestComputeAbsentRemovesAnchor(t *testing.T) {
	tr := tree.New(snap("root", "Folder", nil))
	p := Compute(nil, tr, tr.RootID())
	if len(p.Removed) != 1 || p.Removed[0] != tr.RootID() {
		t.Errorf("absent snapshot should remove the anchor")
	}
}

func TestComputePropertyDiff(t *testing.T) {
	tr := tree.New(snap("root", "Part", variant.Map{
		"Transparency": variant.Float64(0),
		"Anchored":     variant.Bool(true),
	}))
	fresh := snap("root", "Part", variant.Map{
		"Transparency": variant.Float64(1),
		"Reflectance":  variant.Float64(0.5),
	})
	p := Compute(fresh, tr, tr.RootID())
	if len(p.Updated) != 1 {
		t.Fatalf("expected one update, got %d", len(p.Updated))
	}
	changed := p.Updated[0].ChangedProperties
	if !variant.Eq(changed["Transparency"], variant.Float64(1)) {
		t.Errorf("changed value should carry the snapshot side")
	}
	if !variant.Eq(changed["Reflectance"], variant.Float64(0.5)) {
		t.Errorf("snapshot-only keys are sets")
	}
	if value, present := changed["Anchored"]; !present || value != nil {
		t.Errorf("anchor-only keys clear: %#v", value)
	}
}

func TestComputeClassAndNameChange(t *testing.T) {
	tr := tree.New(snap("root", "ModuleScript", nil))
	fresh := snap("renamed", "Script", nil)
	p := Compute(fresh, tr, tr.RootID())
	if len(p.Updated) != 1 {
		t.Fatalf("expected one update")
	}
	if p.Updated[0].ChangedName != "renamed" || p.Updated[0].ChangedClassName != "Script" {
		t.Errorf("name and class changes should be recorded: %+v", p.Updated[0])
	}
}

func TestComputeChildAddsAndRemoves(t *testing.T) {
	tr := tree.New(snap("root", "Folder", nil, snap("old", "Folder", nil)))
	fresh := snap("root", "Folder", nil, snap("new", "Folder", nil))
	p := Compute(fresh, tr, tr.RootID())
	if len(p.Added) != 1 || p.Added[0].Snapshot.Name != "new" {
		t.Errorf("unmatched snapshot children become adds")
	}
	if len(p.Removed) != 1 {
		t.Errorf("unmatched tree children become removes")
	}
}

func TestComputeIgnoreUnknownInstances(t *testing.T) {
	// A runtime-created child (no instigating source) under an anchor whose
	// fresh snapshot sets ignoreUnknownInstances must survive.
	tr := tree.New(snap("root", "Folder", nil))
	runtimeChild := snap("runtime", "Part", nil)
	tr.Insert(tr.RootID(), runtimeChild)

	fresh := snap("root", "Folder", nil)
	fresh.Metadata.IgnoreUnknownInstances = true
	p := Compute(fresh, tr, tr.RootID())
	if len(p.Removed) != 0 {
		t.Errorf("unknown children should be preserved when the flag is set")
	}

	// Without the flag they are removed.
	fresh2 := snap("root", "Folder", nil)
	p2 := Compute(fresh2, tr, tr.RootID())
	if len(p2.Removed) != 1 {
		t.Errorf("unknown children should be removed when the flag is clear")
	}
}

func TestComputeIgnoreUnknownKeepsSourcedRemovals(t *testing.T) {
	// Children WITH a source still reconcile away even under the flag.
	sourced := snap("fromDisk", "ModuleScript", nil)
	sourced.Metadata.InstigatingSource = &snapshot.InstigatingSource{Path: "/src/fromDisk.luau"}
	tr := tree.New(snap("root", "Folder", nil, sourced))

	fresh := snap("root", "Folder", nil)
	fresh.Metadata.IgnoreUnknownInstances = true
	p := Compute(fresh, tr, tr.RootID())
	if len(p.Removed) != 1 {
		t.Errorf("sourced children must still be removed, got %d", len(p.Removed))
	}
}
