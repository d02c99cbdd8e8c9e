// Package structural implements the CFG vocabulary every later analysis
// reads back off properties: dominance (and post-dominance), loop-header
// identification and loop info (back-edges, exit-edges, enclosing loop),
// per spec §4.5.
package structural

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"wcet/internal/diag"
	"wcet/internal/program"
)

// DomInfo is the result of a dominance (or post-dominance) computation: for
// every block reachable from root, its immediate dominator and its full
// dominator set as a bitset indexed by intra-CFG Block.Index.
type DomInfo struct {
	cfg        *program.CFG
	root       program.BlockID
	post       bool
	dom        map[program.BlockID]*bitset.BitSet
	idom       map[program.BlockID]program.BlockID
	reachable  []program.BlockID // visitation order (DFS preorder over the walked direction)
}

// ComputeDominance computes forward dominance rooted at cfg.Entry.
func ComputeDominance(cfg *program.CFG) (*DomInfo, error) {
	return compute(cfg, cfg.Entry, forwardSucc(cfg), forwardPred(cfg), false)
}

// ComputePostDominance computes post-dominance rooted at cfg.Exit: a block p
// post-dominates b iff every path from b to Exit passes through p. It is
// dominance on the reversed graph.
func ComputePostDominance(cfg *program.CFG) (*DomInfo, error) {
	return compute(cfg, cfg.Exit, forwardPred(cfg), forwardSucc(cfg), true)
}

func forwardSucc(cfg *program.CFG) func(program.BlockID) []program.BlockID {
	return func(id program.BlockID) []program.BlockID {
		if b := cfg.BlockAt(id); b != nil {
			return b.Successors()
		}
		return nil
	}
}

func forwardPred(cfg *program.CFG) func(program.BlockID) []program.BlockID {
	return func(id program.BlockID) []program.BlockID {
		if b := cfg.BlockAt(id); b != nil {
			return b.Predecessors()
		}
		return nil
	}
}

// compute runs the classical iterative bit-vector dominance algorithm:
// dom(root) = {root}; dom(n) = {n} ∪ ⋂_{p ∈ preds(n)} dom(p), iterated to a
// fixpoint. succOf/predOf name the walked direction so the same code serves
// both dominance and post-dominance.
func compute(cfg *program.CFG, root program.BlockID, succOf, predOf func(program.BlockID) []program.BlockID, post bool) (*DomInfo, error) {
	n := len(cfg.Blocks)
	order := depthFirstOrder(root, succOf)

	full := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		full.Set(uint(i))
	}

	dom := make(map[program.BlockID]*bitset.BitSet, len(order))
	for _, id := range order {
		if id == root {
			b := bitset.New(uint(n))
			b.Set(uint(id.Block))
			dom[id] = b
		} else {
			dom[id] = full.Clone()
		}
	}

	changed := true
	for changed {
		changed = false
		for _, id := range order {
			if id == root {
				continue
			}
			var merged *bitset.BitSet
			for _, p := range predOf(id) {
				pd, ok := dom[p]
				if !ok {
					continue
				}
				if merged == nil {
					merged = pd.Clone()
				} else {
					merged = merged.Intersection(pd)
				}
			}
			if merged == nil {
				merged = bitset.New(uint(n))
			}
			merged.Set(uint(id.Block))
			if !merged.Equal(dom[id]) {
				dom[id] = merged
				changed = true
			}
		}
	}

	di := &DomInfo{cfg: cfg, root: root, post: post, dom: dom, idom: map[program.BlockID]program.BlockID{}, reachable: order}
	for _, id := range order {
		di.idom[id] = pickIdom(id, root, dom)
	}
	if err := di.verify(); err != nil {
		return nil, err
	}
	return di, nil
}

// pickIdom selects the immediate dominator of n: among n's strict
// dominators, the chain from root to idom(n) is totally ordered by
// dominance, so the candidate whose own dominator set is largest is the
// closest one.
func pickIdom(n, root program.BlockID, dom map[program.BlockID]*bitset.BitSet) program.BlockID {
	if n == root {
		return program.NoBlockID
	}
	set := dom[n]
	best := program.NoBlockID
	bestCount := -1
	for i, ok := set.NextSet(0); ok; i, ok = set.NextSet(i + 1) {
		cand := program.BlockID{CFG: n.CFG, Block: int(i)}
		if cand == n {
			continue
		}
		if c := int(dom[cand].Count()); c > bestCount {
			bestCount = c
			best = cand
		}
	}
	return best
}

// depthFirstOrder returns every block reachable from root via succOf, in
// DFS preorder (root first).
func depthFirstOrder(root program.BlockID, succOf func(program.BlockID) []program.BlockID) []program.BlockID {
	var order []program.BlockID
	visited := map[program.BlockID]bool{}
	var walk func(id program.BlockID)
	walk = func(id program.BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true
		order = append(order, id)
		for _, s := range succOf(id) {
			walk(s)
		}
	}
	walk(root)
	return order
}

// Dominates reports whether a dominates b (a post-dominates b, if this
// DomInfo was built by ComputePostDominance). Every block dominates itself.
func (d *DomInfo) Dominates(a, b program.BlockID) bool {
	set, ok := d.dom[b]
	if !ok {
		return false
	}
	return set.Test(uint(a.Block))
}

// IDom returns b's immediate dominator, or (NoBlockID, false) for the root
// or for a block unreached from root.
func (d *DomInfo) IDom(b program.BlockID) (program.BlockID, bool) {
	id, ok := d.idom[b]
	return id, ok && id.IsSet()
}

// DominatorSet returns the bitset of blocks (by Index) that dominate b.
func (d *DomInfo) DominatorSet(b program.BlockID) *bitset.BitSet {
	return d.dom[b]
}

// Reachable returns every block this DomInfo has dominance data for, in the
// DFS preorder computed during analysis.
func (d *DomInfo) Reachable() []program.BlockID {
	return append([]program.BlockID(nil), d.reachable...)
}

// Root returns the block dominance was computed from (Entry for forward,
// Exit for post-dominance).
func (d *DomInfo) Root() program.BlockID { return d.root }

// verify checks the invariant that root dominates every block this DomInfo
// covers (spec §8 invariant: "entry dominates all reachable blocks"; the
// symmetric claim holds for post-dominance and Exit).
func (d *DomInfo) verify() error {
	for _, id := range d.reachable {
		if !d.Dominates(d.root, id) {
			kind := "dominance"
			if d.post {
				kind = "post-dominance"
			}
			return diag.Invariant(diag.ErrDominanceInconsistent,
				fmt.Sprintf("%s: root %v does not dominate reachable block %v", kind, d.root, id),
				diag.Location{HasAddr: true, Address: uint64(id.Block)})
		}
	}
	return nil
}
