package transform

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"wcet/internal/diag"
	"wcet/internal/program"
	"wcet/internal/structural"
)

// ReduceIrregularLoops repeatedly detects and reduces irregular
// (multi-entry) loops in cfg until none remain, per spec §4.4.
//
// A loop header found by structural.LoopHeaders is always dominance-valid
// (its back edge's sink dominates its source); because dominator sets are
// totally ordered along any chain, two dominance-valid headers can never
// overlap without one containing the other — dominance alone can only ever
// describe *properly nested* loops. An irregular, multi-entry loop is a
// cycle a DFS spanning tree finds (a back edge to a block currently on the
// DFS stack) whose target the dominance test rejects: that is exactly an
// entry into a cyclic region from somewhere dominance cannot attribute to
// a single header, i.e. a second, independent entry point into the same
// loop. ReduceIrregularLoops finds these via a DFS that records, for each
// back edge, whether its target actually dominates its source; any back
// edge that fails the test is evidence of an irregular nest.
//
// Each pass keeps the head with the most external entries in place and,
// for every other head of the nest, clones the region reachable from that
// head up to (excluding) the preserved head, redirecting the cloned head's
// external entry edges onto the clone. This gives the cloned copy a single
// entry, same as the original; iterating converges once every nest the DFS
// finds is dominance-valid, i.e. a regular natural loop.
//
// Loop reduction invalidates structural.LoopInfo — loop nesting depth
// changes once a nest is split into two single-entry copies — so
// persistence-level cache categorisation (internal/cache/persistence.go)
// must recompute it before running on a CFG this function has touched.
//
// It returns the reduced CFG and the original cfg -> reduced-CFG block id
// map, composed across however many passes were needed.
func ReduceIrregularLoops(cfg *program.CFG, maxIterations int) (*program.CFG, map[program.BlockID]program.BlockID, error) {
	if maxIterations <= 0 {
		maxIterations = 16
	}

	current := cfg
	origToCurrent := identityMap(cfg)

	for i := 0; i < maxIterations; i++ {
		dom, err := structural.ComputeDominance(current)
		if err != nil {
			return nil, nil, err
		}
		nest := findIrregularNest(current, dom)
		if nest == nil {
			return current, origToCurrent, nil
		}

		next, m, err := reduceOneNest(current, nest)
		if err != nil {
			return nil, nil, err
		}
		composed := map[program.BlockID]program.BlockID{}
		for old, mid := range origToCurrent {
			if final, ok := m[mid]; ok {
				composed[old] = final
			}
		}
		origToCurrent = composed
		current = next
	}

	return nil, nil, diag.Invariant(diag.ErrLoopReductionDidNotConverge,
		"irregular loop reduction did not converge within the iteration bound", diag.Location{})
}

func identityMap(cfg *program.CFG) map[program.BlockID]program.BlockID {
	m := make(map[program.BlockID]program.BlockID, len(cfg.Blocks))
	for _, b := range cfg.Blocks {
		m[b.ID] = b.ID
	}
	return m
}

// irregularNest is one maximal group of blocks tied together by
// dominance-invalid back edges (the DFS found a cycle, but no single
// dominator explains it), along with the distinct DFS-back-edge targets
// that act as its (more than one) entry points.
type irregularNest struct {
	region mapset.Set[program.BlockID]
	heads  []program.BlockID
}

// findIrregularNest runs a single DFS from cfg.Entry, classifying each
// edge to a block currently on the DFS stack as a back edge; a back edge
// whose target does not dominate its source is irregular. Irregular back
// edges are grouped by a union-find over their endpoints (two irregular
// back edges sharing an endpoint belong to the same multi-entry region),
// and the largest such group is returned.
func findIrregularNest(cfg *program.CFG, dom *structural.DomInfo) *irregularNest {
	visited := map[program.BlockID]bool{}
	onStack := map[program.BlockID]bool{}
	parent := map[program.BlockID]program.BlockID{}

	var find func(program.BlockID) program.BlockID
	find = func(x program.BlockID) program.BlockID {
		if _, ok := parent[x]; !ok {
			parent[x] = x
		}
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b program.BlockID) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	type irregEdge struct{ src, sink program.BlockID }
	var irregular []irregEdge

	var visit func(v program.BlockID)
	visit = func(v program.BlockID) {
		visited[v] = true
		onStack[v] = true
		if blk := cfg.BlockAt(v); blk != nil {
			for _, w := range blk.Successors() {
				switch {
				case onStack[w]:
					if !dom.Dominates(w, v) {
						irregular = append(irregular, irregEdge{v, w})
						union(v, w)
					}
				case !visited[w]:
					visit(w)
				}
			}
		}
		onStack[v] = false
	}
	visit(cfg.Entry)

	if len(irregular) == 0 {
		return nil
	}

	groups := map[program.BlockID][]irregEdge{}
	for _, e := range irregular {
		r := find(e.src)
		groups[r] = append(groups[r], e)
	}
	var best []irregEdge
	for _, g := range groups {
		if len(g) > len(best) {
			best = g
		}
	}

	region := mapset.NewThreadUnsafeSet[program.BlockID]()
	for _, e := range best {
		region.Add(e.src)
		region.Add(e.sink)
	}

	// A block in the region is one of the nest's heads if it has an
	// incoming edge from outside the region: that is a genuine external
	// entry point into the cyclic region, the defining trait of a
	// multi-entry loop. The back edge's sink alone (the classical single
	// "header") is not enough: the second entry may land on a different
	// region block than the one the irregular back edge points at.
	headSet := mapset.NewThreadUnsafeSet[program.BlockID]()
	for _, b := range region.ToSlice() {
		for _, e := range cfg.EdgesTo(b) {
			if !region.Contains(e.SourceID) {
				headSet.Add(b)
				break
			}
		}
	}
	heads := headSet.ToSlice()
	sort.Slice(heads, func(i, j int) bool { return idLess(heads[i], heads[j]) })
	return &irregularNest{region: region, heads: heads}
}

func idLess(a, b program.BlockID) bool {
	if a.CFG != b.CFG {
		return a.CFG < b.CFG
	}
	return a.Block < b.Block
}

// regionFrom returns every block forward-reachable from start without
// passing through boundary: start's own loop content, stopped at the
// other head so the two heads' regions don't re-merge. The CFG's own
// Entry/Exit/Unknown/Phony sentinels are never pulled into the region —
// they are shared singletons the rebuilt CFG already carries (via
// identity mapping), not loop content to duplicate.
func regionFrom(cfg *program.CFG, start, boundary program.BlockID) mapset.Set[program.BlockID] {
	region := mapset.NewThreadUnsafeSet(start)
	queue := []program.BlockID{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		blk := cfg.BlockAt(v)
		if blk == nil {
			continue
		}
		for _, s := range blk.Successors() {
			if s == boundary || region.Contains(s) {
				continue
			}
			if sb := cfg.BlockAt(s); sb == nil || (sb.Kind != program.BlockBasic && sb.Kind != program.BlockSynth) {
				continue
			}
			region.Add(s)
			queue = append(queue, s)
		}
	}
	return region
}

// reduceOneNest keeps the head with the most external entries in place and
// clones every other head's region (per regionFrom), redirecting that
// head's external entry edges onto the clone.
func reduceOneNest(cfg *program.CFG, nest *irregularNest) (*program.CFG, map[program.BlockID]program.BlockID, error) {
	preserved := nest.heads[0]
	bestExternal := -1
	for _, h := range nest.heads {
		external := 0
		for _, e := range cfg.EdgesTo(h) {
			if !nest.region.Contains(e.SourceID) {
				external++
			}
		}
		if external > bestExternal {
			bestExternal = external
			preserved = h
		}
	}

	type clonePlan struct {
		head    program.BlockID
		region  mapset.Set[program.BlockID]
		entries []*program.Edge
	}
	var plans []clonePlan
	for _, h := range nest.heads {
		if h == preserved {
			continue
		}
		region := regionFrom(cfg, h, preserved)
		// Entries are edges from outside the *whole nest*, not just outside
		// h's own region: an edge from another head of the same nest (e.g.
		// the preserved head's own loop-continuation edge into h) is
		// internal nest traffic, left pointing at the original h, not
		// redirected onto the clone.
		var entries []*program.Edge
		for _, e := range cfg.EdgesTo(h) {
			if !nest.region.Contains(e.SourceID) {
				entries = append(entries, e)
			}
		}
		plans = append(plans, clonePlan{head: h, region: region, entries: entries})
	}

	skip := map[*program.Edge]bool{}
	for _, p := range plans {
		for _, e := range p.entries {
			skip[e] = true
		}
	}

	dst := program.NewCFGForTest(cfg.Index, cfg.FirstInstruction, cfg.Type)
	oldToNew := map[program.BlockID]program.BlockID{
		cfg.Entry:          dst.Entry,
		cfg.Exit:           dst.Exit,
		cfg.UnknownBlock(): dst.UnknownBlock(),
		cfg.PhonyBlock():   dst.PhonyBlock(),
	}
	for _, b := range cfg.Blocks {
		if _, already := oldToNew[b.ID]; already {
			continue
		}
		nb := cloneBlockInto(dst, b)
		oldToNew[b.ID] = nb.ID
	}

	for _, e := range cfg.Edges {
		if skip[e] {
			continue
		}
		src, sOk := oldToNew[e.SourceID]
		sink, tOk := oldToNew[e.SinkID]
		if !sOk || !tOk {
			continue
		}
		dst.AddEdge(src, sink, e.Flags&(program.EdgeTaken|program.EdgeNotTaken|program.EdgeBoth))
	}

	for _, p := range plans {
		regionClone := map[program.BlockID]program.BlockID{}
		for _, b := range p.region.ToSlice() {
			old := cfg.BlockAt(b)
			nb := cloneBlockInto(dst, old)
			regionClone[b] = nb.ID
		}

		for _, oldID := range p.region.ToSlice() {
			blk := cfg.BlockAt(oldID)
			for _, succID := range blk.Successors() {
				e := findCFGEdge(cfg, oldID, succID)
				if e == nil {
					continue
				}
				newSrc := regionClone[oldID]
				newSink, ok := regionClone[succID]
				if !ok {
					newSink = oldToNew[succID]
				}
				dst.AddEdge(newSrc, newSink, e.Flags&(program.EdgeTaken|program.EdgeNotTaken|program.EdgeBoth))
			}
		}

		clonedHead := regionClone[p.head]
		for _, e := range p.entries {
			src, ok := oldToNew[e.SourceID]
			if !ok {
				continue
			}
			dst.AddEdge(src, clonedHead, e.Flags&(program.EdgeTaken|program.EdgeNotTaken|program.EdgeBoth))
		}
	}

	return dst, oldToNew, nil
}

func findCFGEdge(cfg *program.CFG, src, sink program.BlockID) *program.Edge {
	for _, e := range cfg.EdgesFrom(src) {
		if e.SinkID == sink {
			return e
		}
	}
	return nil
}
