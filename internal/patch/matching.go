package patch

import (
	"sort"

	"github.com/untoldecay/loom/internal/snapshot"
	"github.com/untoldecay/loom/internal/tree"
	"github.com/untoldecay/loom/internal/variant"
)

// unmatchedPenalty dominates any realistic property diff so that leaving a
// child unmatched is always worse than pairing it imperfectly.
const unmatchedPenalty = 10_000

// maxScoringDepth caps subtree recursion while scoring ambiguous pairs.
// Beyond it only flat property comparison is used, bounding the combinatorial
// blowup on deep trees with many same-named nodes.
const maxScoringDepth = 3

// Pair is one matched (snapshot child, tree child).
type Pair struct {
	Snapshot *snapshot.Snapshot
	TreeID   tree.Referent
}

// MatchResult is the outcome of pairing one parent's children.
type MatchResult struct {
	Matched           []Pair
	UnmatchedSnapshot []*snapshot.Snapshot
	UnmatchedTree     []tree.Referent
}

type matchKey struct {
	name  string
	class string
}

// MatchChildren pairs snapshot children with tree children, minimizing total
// reconciler changes. Groups with exactly one candidate on each side match
// instantly; ambiguous groups are scored by recursive change count and
// assigned greedily in cost order.
func MatchChildren(snaps []*snapshot.Snapshot, treeChildren []tree.Referent, t *tree.Tree) MatchResult {
	if len(snaps) == 0 && len(treeChildren) == 0 {
		return MatchResult{}
	}

	snapMatched := make([]bool, len(snaps))
	treeMatched := make([]bool, len(treeChildren))
	var matched [][2]int

	snapByKey, treeByKey, keys := groupByKey(snaps, treeChildren, t)

	// 1:1 groups: instant match. This is the overwhelming common case.
	for _, key := range keys {
		snapIdx, treeIdx := snapByKey[key], treeByKey[key]
		if len(snapIdx) == 1 && len(treeIdx) == 1 {
			matched = append(matched, [2]int{snapIdx[0], treeIdx[0]})
			snapMatched[snapIdx[0]] = true
			treeMatched[treeIdx[0]] = true
		}
	}

	// Ambiguous groups: change-count scoring plus greedy assignment.
	for _, key := range keys {
		assignGroup(key, snapByKey, treeByKey, snaps, treeChildren, t, snapMatched, treeMatched, &matched, 0)
	}

	result := MatchResult{}
	for _, pair := range matched {
		result.Matched = append(result.Matched, Pair{Snapshot: snaps[pair[0]], TreeID: treeChildren[pair[1]]})
	}
	for i, done := range snapMatched {
		if !done {
			result.UnmatchedSnapshot = append(result.UnmatchedSnapshot, snaps[i])
		}
	}
	for i, done := range treeMatched {
		if !done {
			result.UnmatchedTree = append(result.UnmatchedTree, treeChildren[i])
		}
	}
	return result
}

// groupByKey buckets both sides by (name, class) and returns the union of
// keys in sorted order so the whole algorithm is deterministic.
func groupByKey(snaps []*snapshot.Snapshot, treeChildren []tree.Referent, t *tree.Tree) (map[matchKey][]int, map[matchKey][]int, []matchKey) {
	snapByKey := make(map[matchKey][]int)
	for i, snap := range snaps {
		key := matchKey{name: snap.Name, class: snap.ClassName}
		snapByKey[key] = append(snapByKey[key], i)
	}
	treeByKey := make(map[matchKey][]int)
	for i, id := range treeChildren {
		if inst := t.Get(id); inst != nil {
			key := matchKey{name: inst.Name, class: inst.ClassName}
			treeByKey[key] = append(treeByKey[key], i)
		}
	}

	seen := make(map[matchKey]struct{}, len(snapByKey))
	var keys []matchKey
	for key := range snapByKey {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	for key := range treeByKey {
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].name != keys[j].name {
			return keys[i].name < keys[j].name
		}
		return keys[i].class < keys[j].class
	})
	return snapByKey, treeByKey, keys
}

// scoredPair orders candidate pairs by cost; the index pair breaks ties so
// sorting is stable across runs.
type scoredPair struct {
	cost     int
	snapIdx  int
	treeIdx  int
	sequence int
}

// assignGroup scores and greedily assigns one ambiguous (name, class) group.
func assignGroup(
	key matchKey,
	snapByKey, treeByKey map[matchKey][]int,
	snaps []*snapshot.Snapshot,
	treeChildren []tree.Referent,
	t *tree.Tree,
	snapMatched, treeMatched []bool,
	matched *[][2]int,
	depth int,
) {
	treeIdx, ok := treeByKey[key]
	if !ok {
		return
	}

	var availSnap, availTree []int
	for _, si := range snapByKey[key] {
		if !snapMatched[si] {
			availSnap = append(availSnap, si)
		}
	}
	for _, ti := range treeIdx {
		if !treeMatched[ti] {
			availTree = append(availTree, ti)
		}
	}
	if len(availSnap) == 0 || len(availTree) == 0 {
		return
	}
	if len(availSnap) == 1 && len(availTree) == 1 {
		*matched = append(*matched, [2]int{availSnap[0], availTree[0]})
		snapMatched[availSnap[0]] = true
		treeMatched[availTree[0]] = true
		return
	}

	var pairs []scoredPair
	bestSoFar := int(^uint(0) >> 1)
	sequence := 0
	for _, si := range availSnap {
		for _, ti := range availTree {
			cost := changeCount(snaps[si], treeChildren[ti], t, bestSoFar, depth)
			pairs = append(pairs, scoredPair{cost: cost, snapIdx: si, treeIdx: ti, sequence: sequence})
			sequence++
			if cost < bestSoFar {
				bestSoFar = cost
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].cost != pairs[j].cost {
			return pairs[i].cost < pairs[j].cost
		}
		return pairs[i].sequence < pairs[j].sequence
	})

	for _, pair := range pairs {
		if snapMatched[pair.snapIdx] || treeMatched[pair.treeIdx] {
			continue
		}
		*matched = append(*matched, [2]int{pair.snapIdx, pair.treeIdx})
		snapMatched[pair.snapIdx] = true
		treeMatched[pair.treeIdx] = true
	}
}

// matchForScoring pairs children non-destructively during recursive scoring.
// Mutually recursive with changeCount.
func matchForScoring(snaps []*snapshot.Snapshot, treeChildren []tree.Referent, t *tree.Tree, depth int) ([][2]int, int) {
	if len(snaps) == 0 && len(treeChildren) == 0 {
		return nil, 0
	}

	snapMatched := make([]bool, len(snaps))
	treeMatched := make([]bool, len(treeChildren))
	var matched [][2]int

	snapByKey, treeByKey, keys := groupByKey(snaps, treeChildren, t)

	for _, key := range keys {
		snapIdx, treeIdx := snapByKey[key], treeByKey[key]
		if len(snapIdx) == 1 && len(treeIdx) == 1 {
			matched = append(matched, [2]int{snapIdx[0], treeIdx[0]})
			snapMatched[snapIdx[0]] = true
			treeMatched[treeIdx[0]] = true
		}
	}
	for _, key := range keys {
		assignGroup(key, snapByKey, treeByKey, snaps, treeChildren, t, snapMatched, treeMatched, &matched, depth)
	}

	unmatched := 0
	for _, done := range snapMatched {
		if !done {
			unmatched++
		}
	}
	for _, done := range treeMatched {
		if !done {
			unmatched++
		}
	}
	return matched, unmatched
}

// changeCount is the number of reconciler operations needed to turn the tree
// instance into the snapshot, recursing into subtrees up to maxScoringDepth.
// Computation short-circuits once the cost reaches bestSoFar.
func changeCount(snap *snapshot.Snapshot, id tree.Referent, t *tree.Tree, bestSoFar, depth int) int {
	inst := t.Get(id)
	if inst == nil {
		return unmatchedPenalty
	}

	cost := ownDiffCount(snap, inst)
	if cost >= bestSoFar || depth >= maxScoringDepth {
		return cost
	}

	if len(snap.Children) == 0 && len(inst.Children) == 0 {
		return cost
	}

	matched, unmatched := matchForScoring(snap.Children, inst.Children, t, depth+1)
	for _, pair := range matched {
		remaining := bestSoFar - cost
		if remaining < 0 {
			remaining = 0
		}
		cost += changeCount(snap.Children[pair[0]], inst.Children[pair[1]], t, remaining, depth+1)
		if cost >= bestSoFar {
			return cost
		}
	}
	cost += unmatched * unmatchedPenalty
	return cost
}

// ownDiffCount counts flat differences between a snapshot and an instance.
// Each differing property is +1, except tag lists and attribute maps, which
// are counted element by element. A child-count mismatch adds 1.
func ownDiffCount(snap *snapshot.Snapshot, inst *tree.Instance) int {
	cost := 0
	for key, snapVal := range snap.Properties {
		instVal, ok := inst.Properties[key]
		if !ok {
			cost += granularSize(snapVal)
			continue
		}
		if !variant.Eq(snapVal, instVal) {
			cost += granularDiff(snapVal, instVal)
		}
	}
	for key, instVal := range inst.Properties {
		if _, ok := snap.Properties[key]; !ok {
			cost += granularSize(instVal)
		}
	}
	if len(snap.Children) != len(inst.Children) {
		cost++
	}
	return cost
}

// granularDiff refines the cost of a single differing property: attribute
// maps and tag sets count per element, everything else counts 1.
func granularDiff(a, b variant.Value) int {
	if aAttrs, ok := a.(variant.Attributes); ok {
		if bAttrs, ok := b.(variant.Attributes); ok {
			diff := 0
			for name, aVal := range aAttrs {
				bVal, present := bAttrs[name]
				if !present || !variant.Eq(aVal, bVal) {
					diff++
				}
			}
			for name := range bAttrs {
				if _, present := aAttrs[name]; !present {
					diff++
				}
			}
			if diff == 0 {
				diff = 1
			}
			return diff
		}
	}
	if aTags, ok := a.(variant.Tags); ok {
		if bTags, ok := b.(variant.Tags); ok {
			return tagSetDiff(aTags, bTags)
		}
	}
	return 1
}

// granularSize is the cost of a property present on only one side.
func granularSize(v variant.Value) int {
	switch val := v.(type) {
	case variant.Attributes:
		if len(val) > 0 {
			return len(val)
		}
	case variant.Tags:
		if len(val) > 0 {
			return len(val)
		}
	}
	return 1
}

func tagSetDiff(a, b variant.Tags) int {
	aSet := make(map[string]struct{}, len(a))
	for _, tag := range a {
		aSet[tag] = struct{}{}
	}
	diff := 0
	bSet := make(map[string]struct{}, len(b))
	for _, tag := range b {
		bSet[tag] = struct{}{}
		if _, ok := aSet[tag]; !ok {
			diff++
		}
	}
	for tag := range aSet {
		if _, ok := bSet[tag]; !ok {
			diff++
		}
	}
	if diff == 0 {
		diff = 1
	}
	return diff
}
