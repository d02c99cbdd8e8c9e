package transform

import "wcet/internal/program"

// DelayKind distinguishes the two delayed-branch disciplines spec §4.4
// names: a branch whose delay-slot instructions execute unconditionally
// (AlwaysDelayed), versus one whose delay slot only fires on the taken
// edge (TakenOnlyDelayed).
type DelayKind int

const (
	AlwaysDelayed DelayKind = iota
	TakenOnlyDelayed
)

// DelaySlotOptions configures delayed-branch normalisation for one CFG.
type DelaySlotOptions struct {
	// Delayed names, by control instruction address, which branches have
	// delay slots.
	Delayed map[uint64]bool
	// Slots is the architecture's fixed delay-slot count (N).
	Slots int
	Kind  DelayKind
}

// NormaliseDelayedBranches rewrites cfg so that, for every block ending in
// a delayed branch, the trailing Slots instructions preceding the control
// instruction are moved out of the source block and duplicated onto the
// front of its successor block(s), per opts.Kind: always, or only along the
// taken edge. This makes the delay slot's cost attributable to the block
// that actually executes after the redirect, instead of to the block
// issuing the branch.
//
// It returns the new CFG and the old->new block id map.
func NormaliseDelayedBranches(cfg *program.CFG, opts DelaySlotOptions) (*program.CFG, map[program.BlockID]program.BlockID, error) {
	dst := program.NewCFGForTest(cfg.Index, cfg.FirstInstruction, cfg.Type)
	oldToNew := map[program.BlockID]program.BlockID{
		cfg.Entry:            dst.Entry,
		cfg.Exit:             dst.Exit,
		cfg.UnknownBlock():   dst.UnknownBlock(),
		cfg.PhonyBlock():     dst.PhonyBlock(),
	}

	// delaySlotOf[oldBlockID] = the delay-slot instructions cut from that
	// block's tail, to be prepended onto its successor(s).
	delaySlotOf := map[program.BlockID][]program.Instruction{}

	for _, b := range cfg.Blocks {
		if _, already := oldToNew[b.ID]; already {
			continue
		}
		instrs := append([]program.Instruction(nil), b.Instructions...)
		var slotInstrs []program.Instruction
		if b.Control != nil && opts.Delayed[b.Control.Address] && opts.Slots > 0 && len(instrs) > opts.Slots {
			cut := len(instrs) - 1 - opts.Slots
			if cut < 0 {
				cut = 0
			}
			slotInstrs = append([]program.Instruction(nil), instrs[cut:len(instrs)-1]...)
			instrs = append(append([]program.Instruction(nil), instrs[:cut]...), instrs[len(instrs)-1])
		}

		nb := dst.AddBlock(b.Kind)
		nb.Address = b.Address
		nb.Instructions = instrs
		if len(nb.Instructions) > 0 {
			nb.Control = &nb.Instructions[len(nb.Instructions)-1]
		}
		nb.CallSite = b.CallSite
		nb.CalleeCFG = b.CalleeCFG
		oldToNew[b.ID] = nb.ID
		if len(slotInstrs) > 0 {
			delaySlotOf[b.ID] = slotInstrs
		}
	}

	for _, e := range cfg.Edges {
		src, sOk := oldToNew[e.SourceID]
		sink, tOk := oldToNew[e.SinkID]
		if !sOk || !tOk {
			continue
		}
		if slotInstrs, ok := delaySlotOf[e.SourceID]; ok {
			applies := opts.Kind == AlwaysDelayed || (opts.Kind == TakenOnlyDelayed && e.Flags.Has(program.EdgeTaken))
			if applies {
				if tb := dst.BlockAt(sink); tb != nil && tb.Kind == program.BlockBasic {
					tb.Instructions = append(append([]program.Instruction(nil), slotInstrs...), tb.Instructions...)
					if tb.Control == nil && len(tb.Instructions) > 0 {
						tb.Control = &tb.Instructions[len(tb.Instructions)-1]
					}
				}
			}
		}
		dst.AddEdge(src, sink, e.Flags&(program.EdgeTaken|program.EdgeNotTaken|program.EdgeBoth))
	}

	return dst, oldToNew, nil
}
