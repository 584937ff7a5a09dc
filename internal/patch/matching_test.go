package patch

import (
	"fmt"
	"reflect"
	"testing"

	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
)

func snap(name, class string, props variant.Map, children ...*snapshot.Snapshot) *snapshot.Snapshot {
	return &snapshot.Snapshot{Name: name, ClassName: class, Properties: props, Children: children}
}

func buildTree(children ...*snapshot.Snapshot) *tree.Tree {
	return tree.New(snap("root", "Folder", nil, children...))
}

func TestMatchUniqueNames(t *testing.T) {
	tr := buildTree(
		snap("A", "Folder", nil),
		snap("B", "Folder", nil),
	)
	rootChildren := tr.Get(tr.RootID()).Children

	result := MatchChildren([]*snapshot.Snapshot{
		snap("B", "Folder", nil),
		snap("A", "Folder", nil),
	}, rootChildren, tr)

	if len(result.Matched) != 2 || len(result.UnmatchedSnapshot) != 0 || len(result.UnmatchedTree) != 0 {
		t.Fatalf("unique names should all match: %+v", result)
	}
	for _, pair := range result.Matched {
		if pair.Snapshot.Name != tr.Get(pair.TreeID).Name {
			t.Errorf("pair mismatched: %s vs %s", pair.Snapshot.Name, tr.Get(pair.TreeID).Name)
		}
	}
}

func TestMatchClassNarrowing(t *testing.T) {
	// Same name, different class: no match across classes.
	tr := buildTree(snap("Thing", "Folder", nil))
	result := MatchChildren([]*snapshot.Snapshot{snap("Thing", "Part", nil)}, tr.Get(tr.RootID()).Children, tr)
	if len(result.Matched) != 0 {
		t.Errorf("different classes must not match")
	}
	if len(result.UnmatchedSnapshot) != 1 || len(result.UnmatchedTree) != 1 {
		t.Errorf("both sides should be unmatched")
	}
}

func TestMatchAmbiguousByProperties(t *testing.T) {
	// Scenario: ten same-named Parts differing only in Transparency,
	// presented in reversed order. Each snapshot child must pair with the
	// tree child carrying the same value.
	var treeChildren []*snapshot.Snapshot
	for i := 0; i < 10; i++ {
		treeChildren = append(treeChildren, snap("Line", "Part", variant.Map{
			"Transparency": variant.Float64(float64(i) / 10),
		}))
	}
	tr := buildTree(treeChildren...)

	var snapChildren []*snapshot.Snapshot
	for i := 9; i >= 0; i-- {
		snapChildren = append(snapChildren, snap("Line", "Part", variant.Map{
			"Transparency": variant.Float64(float64(i) / 10),
		}))
	}

	result := MatchChildren(snapChildren, tr.Get(tr.RootID()).Children, tr)
	if len(result.Matched) != 10 || len(result.UnmatchedSnapshot) != 0 || len(result.UnmatchedTree) != 0 {
		t.Fatalf("all ten should match: %d matched", len(result.Matched))
	}
	for _, pair := range result.Matched {
		want := pair.Snapshot.Properties["Transparency"]
		got := tr.Get(pair.TreeID).Properties["Transparency"]
		if !variant.Eq(want, got) {
			t.Errorf("paired different transparencies: %v vs %v", want, got)
		}
	}
}

func TestMatchStability(t *testing.T) {
	// Two invocations on the same inputs return the same pairing.
	var treeChildren []*snapshot.Snapshot
	for i := 0; i < 5; i++ {
		treeChildren = append(treeChildren, snap("Dup", "Part", variant.Map{
			"Value": variant.Int32(int32(i)),
		}))
	}
	tr := buildTree(treeChildren...)

	makeSnaps := func() []*snapshot.Snapshot {
		var out []*snapshot.Snapshot
		for i := 0; i < 5; i++ {
			out = append(out, snap("Dup", "Part", variant.Map{
				"Value": variant.Int32(int32(i)),
			}))
		}
		return out
	}

	pairing := func() []string {
		result := MatchChildren(makeSnaps(), tr.Get(tr.RootID()).Children, tr)
		var out []string
		for _, pair := range result.Matched {
			out = append(out, fmt.Sprintf("%v->%s", pair.Snapshot.Properties["Value"], pair.TreeID))
		}
		return out
	}

	first := pairing()
	for i := 0; i < 5; i++ {
		if next := pairing(); !reflect.DeepEqual(first, next) {
			t.Fatalf("pairing changed between runs:\n%v\n%v", first, next)
		}
	}
}

func TestMatchUnmatchedBothSides(t *testing.T) {
	tr := buildTree(snap("Old", "Folder", nil))
	result := MatchChildren([]*snapshot.Snapshot{snap("New", "Folder", nil)}, tr.Get(tr.RootID()).Children, tr)
	if len(result.UnmatchedSnapshot) != 1 || result.UnmatchedSnapshot[0].Name != "New" {
		t.Errorf("snapshot side should be an add")
	}
	if len(result.UnmatchedTree) != 1 {
		t.Errorf("tree side should be a remove")
	}
}

func TestMatchSubtreeScoring(t *testing.T) {
	// Two same-named folders distinguished only by their children.
	tr := buildTree(
		snap("Box", "Folder", nil, snap("OnlyInFirst", "Part", nil)),
		snap("Box", "Folder", nil, snap("OnlyInSecond", "Part", nil)),
	)

	snaps := []*snapshot.Snapshot{
		snap("Box", "Folder", nil, snap("OnlyInSecond", "Part", nil)),
		snap("Box", "Folder", nil, snap("OnlyInFirst", "Part", nil)),
	}
	result := MatchChildren(snaps, tr.Get(tr.RootID()).Children, tr)
	if len(result.Matched) != 2 {
		t.Fatalf("both boxes should match")
	}
	for _, pair := range result.Matched {
		wantChild := pair.Snapshot.Children[0].Name
		gotInst := tr.Get(pair.TreeID)
		gotChild := tr.Get(gotInst.Children[0]).Name
		if wantChild != gotChild {
			t.Errorf("subtree scoring paired wrong boxes: %s vs %s", wantChild, gotChild)
		}
	}
}

func TestGranularAttributeCost(t *testing.T) {
	inst := &tree.Instance{
		Properties: variant.Map{
			"Attributes": variant.Attributes{"A": variant.Bool(true), "B": variant.Bool(true)},
		},
	}
	s := snap("x", "Folder", variant.Map{
		"Attributes": variant.Attributes{"A": variant.Bool(true), "B": variant.Bool(false), "C": variant.Bool(true)},
	})
	// B differs, C only on one side: granular cost 2.
	if cost := ownDiffCount(s, inst); cost != 2 {
		t.Errorf("granular attribute cost = %d, want 2", cost)
	}
}

func TestMatchEmptyBoth(t *testing.T) {
	tr := buildTree()
	result := MatchChildren(nil, nil, tr)
	if len(result.Matched) != 0 || len(result.UnmatchedSnapshot) != 0 || len(result.UnmatchedTree) != 0 {
		t.Errorf("empty inputs should produce an empty result")
	}
}
