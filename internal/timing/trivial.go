// Package timing produces the per-block execution time T(v) and per-edge
// delta ΔT(e) the IPET objective sums over (spec §4.8). Two backends plug
// into the same BB-time identifier: Trivial sums fixed per-instruction
// cycles; Pipeline builds a per-block execution graph and takes its
// longest path. Both report through the same Times result so the IPET
// builder never has to know which backend produced a given block's time.
package timing

import "wcet/internal/program"

// CostModel assigns a fixed cycle cost to one instruction, independent of
// context. A real implementation derives this from the platform's
// instruction-timing table (internal/platform); tests use a literal map.
type CostModel interface {
	Cost(i program.Instruction) uint64
}

// CostFunc adapts a plain function to CostModel.
type CostFunc func(program.Instruction) uint64

func (f CostFunc) Cost(i program.Instruction) uint64 { return f(i) }

// Times is the per-entity timing result the IPET objective reads: T(v) per
// basic block, ΔT(e) per edge (spec §6 TIME/TIME_DELTA properties).
type Times struct {
	Block map[program.BlockID]uint64
	Edge  map[edgeKey]uint64
}

type edgeKey struct {
	Src, Sink program.BlockID
}

// BlockTime returns the timed cost of v, 0 for untimed (End/Synth) blocks.
func (t *Times) BlockTime(v program.BlockID) uint64 { return t.Block[v] }

// EdgeDelta returns the timed cost of crossing edge src->sink, 0 if unset.
func (t *Times) EdgeDelta(src, sink program.BlockID) uint64 {
	return t.Edge[edgeKey{Src: src, Sink: sink}]
}

func newTimes() *Times {
	return &Times{Block: map[program.BlockID]uint64{}, Edge: map[edgeKey]uint64{}}
}

// Trivial computes T(v) for every Basic block in cfg as the sum of its
// instructions' fixed costs under model, per spec §4.8 "sum of
// per-instruction fixed cycles". Synth and End blocks get T=0: a Synth
// block's cost is charged at its callee's blocks once virtualised
// (internal/timing/delta.go), and End blocks execute no instructions.
func Trivial(cfg *program.CFG, model CostModel) *Times {
	t := newTimes()
	for _, b := range cfg.Blocks {
		if b.Kind != program.BlockBasic {
			continue
		}
		var sum uint64
		for _, inst := range b.Instructions {
			sum += model.Cost(inst)
		}
		t.Block[b.ID] = sum
	}
	return t
}
