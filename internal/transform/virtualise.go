// Package transform implements the CFG-rewriting passes that run before
// structural and abstract-interpretation analysis: call virtualisation
// (inlining), delayed-branch slot normalisation, and irregular-loop
// reduction (spec §4.4). Every pass is expressed as clone-with-modification:
// it rebuilds a fresh CFG via program.NewCFGForTest/AddBlock/AddEdge and
// returns the old->new block id map the caller uses to migrate properties
// onto the rebuilt entities, rather than mutating the source CFG in place.
package transform

import (
	"wcet/internal/diag"
	"wcet/internal/program"
)

// VirtualiseOptions configures call inlining.
type VirtualiseOptions struct {
	// MaxDepth bounds how many call levels deep inlining recurses. Zero
	// means unlimited (bounded only by recursion-cut below).
	MaxDepth int
}

// Virtualise inlines every resolved call (program.Block.CalleeCFG >= 0) in
// coll's entry CFG, recursively, up to opts.MaxDepth call levels, replacing
// each SynthBlock with an in-line copy of its callee's blocks. A call whose
// callee is already being inlined on the current call path (direct or
// mutual recursion) is left un-inlined rather than expanded infinitely: the
// recursive call becomes a loop back into the analysis at the scheduler
// level instead of an unbounded CFG.
//
// It returns the new, single CFG and the old (original entry CFG) -> new
// block id map, for migrating properties onto the rebuilt blocks.
func Virtualise(coll *program.CFGCollection, opts VirtualiseOptions) (*program.CFG, map[program.BlockID]program.BlockID, error) {
	src := coll.Entry()
	if src == nil {
		return nil, nil, diag.Invariant(diag.ErrCFGReachabilityBroken,
			"virtualise: collection has no entry CFG", diag.Location{})
	}
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 1 << 30
	}

	v := &virtualiser{
		coll:     coll,
		maxDepth: maxDepth,
		oldToNew: map[program.BlockID]program.BlockID{},
		aliasIn:  map[program.BlockID]program.BlockID{},
		aliasOut: map[program.BlockID]program.BlockID{},
	}
	v.dst = program.NewCFGForTest(0, src.FirstInstruction, src.Type)
	v.oldToNew[src.Entry] = v.dst.Entry
	v.oldToNew[src.Exit] = v.dst.Exit
	v.oldToNew[src.UnknownBlock()] = v.dst.UnknownBlock()
	v.oldToNew[src.PhonyBlock()] = v.dst.PhonyBlock()

	if err := v.inline(src, 0, map[int]bool{src.Index: true}); err != nil {
		return nil, nil, err
	}
	return v.dst, v.oldToNew, nil
}

type virtualiser struct {
	coll     *program.CFGCollection
	dst      *program.CFG
	maxDepth int

	oldToNew map[program.BlockID]program.BlockID // every cloned (non-inlined) block
	aliasIn  map[program.BlockID]program.BlockID // inlined synth -> its callee's cloned entry
	aliasOut map[program.BlockID]program.BlockID // inlined synth -> its callee's cloned exit
}

func (v *virtualiser) resolveSink(id program.BlockID) (program.BlockID, bool) {
	if a, ok := v.aliasIn[id]; ok {
		return a, true
	}
	n, ok := v.oldToNew[id]
	return n, ok
}

func (v *virtualiser) resolveSource(id program.BlockID) (program.BlockID, bool) {
	if a, ok := v.aliasOut[id]; ok {
		return a, true
	}
	n, ok := v.oldToNew[id]
	return n, ok
}

// inline clones cfg's blocks and edges into v.dst, replacing every resolved,
// within-depth, non-recursive Synth block with an inlined copy of its
// callee. chain is the set of CFG indices currently being inlined on this
// call path (recursion guard).
func (v *virtualiser) inline(cfg *program.CFG, depth int, chain map[int]bool) error {
	for _, b := range cfg.Blocks {
		if _, already := v.oldToNew[b.ID]; already {
			continue
		}
		if b.Kind == program.BlockSynth && b.CalleeCFG >= 0 && depth < v.maxDepth && !chain[b.CalleeCFG] {
			callee := v.coll.CFGs[b.CalleeCFG]
			nested := cloneIntSet(chain)
			nested[callee.Index] = true
			if err := v.inline(callee, depth+1, nested); err != nil {
				return err
			}
			entryID, ok1 := v.oldToNew[callee.Entry]
			exitID, ok2 := v.oldToNew[callee.Exit]
			if !ok1 || !ok2 {
				return diag.Invariant(diag.ErrCFGReachabilityBroken,
					"virtualise: callee entry/exit was not cloned while inlining", diag.Location{})
			}
			v.aliasIn[b.ID] = entryID
			v.aliasOut[b.ID] = exitID
			continue
		}

		nb := cloneBlockInto(v.dst, b)
		v.oldToNew[b.ID] = nb.ID
	}

	for _, e := range cfg.Edges {
		src, sOk := v.resolveSource(e.SourceID)
		sink, tOk := v.resolveSink(e.SinkID)
		if !sOk || !tOk {
			continue
		}
		v.dst.AddEdge(src, sink, e.Flags&(program.EdgeTaken|program.EdgeNotTaken|program.EdgeBoth))
	}
	return nil
}

// cloneBlockInto appends a structural copy of b (kind, address,
// instructions, call metadata) to dst and returns it.
func cloneBlockInto(dst *program.CFG, b *program.Block) *program.Block {
	nb := dst.AddBlock(b.Kind)
	nb.Address = b.Address
	if len(b.Instructions) > 0 {
		nb.Instructions = append([]program.Instruction(nil), b.Instructions...)
		nb.Control = &nb.Instructions[len(nb.Instructions)-1]
	}
	nb.CallSite = b.CallSite
	nb.CalleeCFG = b.CalleeCFG
	return nb
}

func cloneIntSet(s map[int]bool) map[int]bool {
	out := make(map[int]bool, len(s)+1)
	for k := range s {
		out[k] = true
	}
	return out
}
