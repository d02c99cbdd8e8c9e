package program

import (
	"fmt"
	"sort"

	"wcet/internal/diag"
	"wcet/internal/wlog"
)

// BuildOptions carries the user annotations CFG construction must respect
// (spec §4.3 step 5), all keyed by instruction or CFG-entry address.
type BuildOptions struct {
	// NoCall marks a call instruction address whose callee must not be
	// followed: a SynthBlock is still created but its CalleeCFG stays
	// unresolved, so later passes (virtualisation) leave it un-inlined.
	NoCall map[uint64]bool
	// IgnoreEntry skips building a CFG for the given entry address
	// entirely.
	IgnoreEntry map[uint64]bool
	// IgnoreSeq suppresses the fallthrough (NOT_TAKEN) edge after the
	// control instruction at the given address.
	IgnoreSeq map[uint64]bool
	// IgnoreControl treats the control instruction at the given address
	// as a plain straight-line instruction: no successor edges are
	// derived from it.
	IgnoreControl map[uint64]bool
	// BranchTargets resolves a dynamic (computed) branch or call at the
	// given address to one or more concrete targets, as supplied by flow
	// facts (BRANCH_TARGET, CALL_TARGET, MULTIBRANCH).
	BranchTargets map[uint64][]uint64
}

// controlKinds is every Kind bit that ends a basic block. CALL/RETURN/COND
// are specialisations of CONTROL; an instruction need only carry one of
// them to be treated as the block's control instruction.
const controlKinds = KindControl | KindCall | KindReturn | KindCond

func isControlEnd(instr Instruction, opts BuildOptions) bool {
	return instr.Kind.Any(controlKinds) && !opts.IgnoreControl[instr.Address]
}

func (o BuildOptions) branchTargets(instr Instruction) ([]uint64, bool) {
	if instr.BranchTarget != nil {
		return []uint64{*instr.BranchTarget}, true
	}
	if ts, ok := o.BranchTargets[instr.Address]; ok && len(ts) > 0 {
		return ts, true
	}
	return nil, false
}

// Build runs CFG construction (spec §4.3) over proc starting from
// entryAddrs. entryAddrs[0] is the task entry (CFGSubprog); the rest are
// user-added entries (CFGUser). CFGs discovered by following call
// instructions are CFGSynth. Construction assumes code for a single
// function lays out contiguously in ascending address order, consistent
// with ordinary compiler output.
func Build(proc Process, entryAddrs []uint64, opts BuildOptions, log *wlog.Logger) (*CFGCollection, error) {
	if log == nil {
		log = wlog.Discard()
	}
	if opts.NoCall == nil {
		opts.NoCall = map[uint64]bool{}
	}
	if opts.IgnoreEntry == nil {
		opts.IgnoreEntry = map[uint64]bool{}
	}
	if opts.IgnoreSeq == nil {
		opts.IgnoreSeq = map[uint64]bool{}
	}
	if opts.IgnoreControl == nil {
		opts.IgnoreControl = map[uint64]bool{}
	}

	b := &builder{proc: proc, opts: opts, log: log, collection: NewCFGCollection(), byAddr: map[uint64]int{}}

	var queue []seed
	for i, addr := range entryAddrs {
		if opts.IgnoreEntry[addr] {
			continue
		}
		typ := CFGUser
		if i == 0 {
			typ = CFGSubprog
		}
		queue = append(queue, seed{addr: addr, typ: typ})
	}

	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if _, ok := b.byAddr[next.addr]; ok {
			continue
		}
		idx, err := b.buildOneCFG(next.addr, next.typ)
		if err != nil {
			return nil, err
		}
		b.byAddr[next.addr] = idx
		for _, callee := range b.pendingCallees {
			queue = append(queue, seed{addr: callee, typ: CFGSynth})
		}
		b.pendingCallees = nil
	}

	// Back-patch SynthBlock.CalleeCFG for calls whose target wasn't built
	// yet at the time its own CFG was constructed.
	for _, u := range b.unresolvedSynths {
		if idx, ok := b.byAddr[u.calleeAddr]; ok {
			blk := b.collection.CFGs[u.block.CFG].BlockAt(u.block)
			blk.CalleeCFG = idx
			b.collection.CFGs[idx].Callers = append(b.collection.CFGs[idx].Callers, u.block)
		}
	}

	return b.collection, nil
}

type seed struct {
	addr uint64
	typ  CFGType
}

type unresolvedSynth struct {
	block      BlockID
	calleeAddr uint64
}

type builder struct {
	proc       Process
	opts       BuildOptions
	log        *wlog.Logger
	collection *CFGCollection
	byAddr     map[uint64]int // entry address -> CFG index, across the whole collection

	pendingCallees   []uint64 // callee entry addresses discovered while building the current batch
	unresolvedSynths []unresolvedSynth
}

// buildOneCFG constructs a single CFG rooted at entryAddr, in three phases:
// discovery (find every reachable instruction and block-start boundary),
// assembly (carve the decoded instructions into blocks at those
// boundaries) and edge construction (wire successor edges per instruction
// kind).
func (b *builder) buildOneCFG(entryAddr uint64, typ CFGType) (int, error) {
	if !b.proc.IsExecutable(entryAddr) {
		return -1, diag.New(diag.ErrAddressNotExecutable,
			fmt.Sprintf("entry address 0x%x is not in an executable segment", entryAddr),
			diag.Location{Address: entryAddr, HasAddr: true}).Build()
	}

	decoded := map[uint64]Instruction{}
	boundaries := map[uint64]bool{entryAddr: true}
	visitedRun := map[uint64]bool{}
	queue := []uint64{entryAddr}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visitedRun[cur] {
			continue
		}
		visitedRun[cur] = true

		pc := cur
		for {
			if _, ok := decoded[pc]; ok {
				boundaries[pc] = true
				break
			}
			if !b.proc.IsExecutable(pc) {
				if pc != cur {
					// Fell through past the end of executable code: the
					// run ends here, and assembly gives its last block an
					// edge to Exit.
					break
				}
				return -1, diag.New(diag.ErrAddressNotExecutable,
					fmt.Sprintf("control flow reaches non-executable address 0x%x", pc),
					diag.Location{Address: pc, HasAddr: true}).Build()
			}
			instr, err := b.proc.Decode(pc)
			if err != nil {
				return -1, diag.New(diag.ErrUnsupportedBinaryFormat,
					fmt.Sprintf("failed to decode instruction at 0x%x: %v", pc, err),
					diag.Location{Address: pc, HasAddr: true}).Build()
			}
			decoded[pc] = instr

			if isControlEnd(instr, b.opts) {
				targets, fallthroughAddr, hasFallthrough := b.successorAddresses(instr)
				for _, t := range targets {
					boundaries[t] = true
					queue = append(queue, t)
				}
				if hasFallthrough {
					boundaries[fallthroughAddr] = true
					queue = append(queue, fallthroughAddr)
				}
				break
			}
			pc = instr.End()
		}
	}

	idx := len(b.collection.CFGs)
	b.collection.CFGs = append(b.collection.CFGs, nil)
	if b.collection.EntryIndex == -1 {
		b.collection.EntryIndex = idx
	}
	cfg := newCFG(idx, entryAddr, typ)
	b.collection.CFGs[idx] = cfg

	addrs := make([]uint64, 0, len(decoded))
	for a := range decoded {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	blockOf := map[uint64]BlockID{}
	i := 0
	for i < len(addrs) {
		start := addrs[i]
		blk := cfg.AddBlock(BlockBasic)
		blk.Address = start
		blockOf[start] = blk.ID
		for {
			instr := decoded[addrs[i]]
			blk.Instructions = append(blk.Instructions, instr)
			isControl := isControlEnd(instr, b.opts)
			i++
			if isControl {
				ctl := &blk.Instructions[len(blk.Instructions)-1]
				blk.Control = ctl
				break
			}
			if i >= len(addrs) {
				break
			}
			if boundaries[addrs[i]] {
				break
			}
			if addrs[i] != instr.End() {
				break
			}
		}
	}

	b.log.Logf(wlog.ChanCFG, "built cfg %d (entry 0x%x, %d blocks)", cfg.Index, entryAddr, len(cfg.Blocks))

	cfg.AddEdge(cfg.Entry, blockOf[entryAddr], EdgeBoth)

	for _, id := range blockOf {
		blk := cfg.BlockAt(id)
		if blk.Control == nil {
			// Ran off the end of the decoded executable without hitting a
			// control instruction: treat as falling off the edge of
			// reachable code (spec testable property #12).
			cfg.AddEdge(id, cfg.Exit, EdgeTaken)
			continue
		}
		b.addSuccessorEdges(cfg, blk, *blk.Control, blockOf)
	}

	return cfg.Index, nil
}

// successorAddresses computes, for discovery purposes, every address the
// given control instruction may transfer control to (taken targets) plus
// whether it has a fallthrough successor and its address.
func (b *builder) successorAddresses(instr Instruction) (targets []uint64, fallthroughAddr uint64, hasFallthrough bool) {
	switch {
	case instr.Kind.Has(KindReturn):
		return nil, 0, false

	case instr.Kind.Has(KindCall):
		if b.opts.NoCall[instr.Address] {
			return nil, instr.End(), !b.opts.IgnoreSeq[instr.Address]
		}
		if ts, ok := b.opts.branchTargets(instr); ok {
			b.pendingCallees = append(b.pendingCallees, ts...)
		}
		return nil, instr.End(), !b.opts.IgnoreSeq[instr.Address]

	case instr.Kind.Has(KindCond):
		ts, _ := b.opts.branchTargets(instr)
		return ts, instr.End(), !b.opts.IgnoreSeq[instr.Address]

	default: // unconditional branch or computed jump
		ts, _ := b.opts.branchTargets(instr)
		return ts, 0, false
	}
}

// addSuccessorEdges wires a Basic block's outgoing edges from its control
// instruction, or converts it into a Synth block for a call.
func (b *builder) addSuccessorEdges(cfg *CFG, blk *Block, ctl Instruction, blockOf map[uint64]BlockID) {
	switch {
	case ctl.Kind.Has(KindReturn):
		cfg.AddEdge(blk.ID, cfg.Exit, EdgeTaken)

	case ctl.Kind.Has(KindCall):
		blk.Kind = BlockSynth
		blk.CallSite = &ctl
		if !b.opts.NoCall[ctl.Address] {
			if ts, ok := b.opts.branchTargets(ctl); ok && len(ts) > 0 {
				if idx, ok := b.byAddr[ts[0]]; ok {
					blk.CalleeCFG = idx
					cfg2 := b.collection.CFGs[idx]
					cfg2.Callers = append(cfg2.Callers, blk.ID)
				} else {
					b.unresolvedSynths = append(b.unresolvedSynths, unresolvedSynth{block: blk.ID, calleeAddr: ts[0]})
				}
			}
		}
		if !b.opts.IgnoreSeq[ctl.Address] {
			if retID, ok := blockOf[ctl.End()]; ok {
				cfg.AddEdge(blk.ID, retID, EdgeNotTaken)
			}
		}

	case ctl.Kind.Has(KindCond):
		ts, ok := b.opts.branchTargets(ctl)
		if ok {
			for _, t := range ts {
				if tgt, ok := blockOf[t]; ok {
					cfg.AddEdge(blk.ID, tgt, EdgeTaken)
				}
			}
		} else {
			cfg.AddEdge(blk.ID, cfg.UnknownBlock(), EdgeTaken)
		}
		if !b.opts.IgnoreSeq[ctl.Address] {
			if fallID, ok := blockOf[ctl.End()]; ok {
				cfg.AddEdge(blk.ID, fallID, EdgeNotTaken)
			}
		}

	default: // unconditional branch or computed jump
		ts, ok := b.opts.branchTargets(ctl)
		if !ok {
			cfg.AddEdge(blk.ID, cfg.UnknownBlock(), EdgeBoth)
			return
		}
		for _, t := range ts {
			if tgt, ok := blockOf[t]; ok {
				cfg.AddEdge(blk.ID, tgt, EdgeBoth)
			}
		}
	}
}
