package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/program"
)

func instr(addr uint64, kind program.Kind) program.Instruction {
	return program.Instruction{Address: addr, Size: 4, Kind: kind}
}

func TestNormaliseDelayedBranchesAlwaysDelayedDuplicatesIntoAllSuccessors(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
	src := cfg.AddBlock(program.BlockBasic)
	src.Address = 0x1000
	slot := instr(0x1004, program.KindALU)
	branch := instr(0x1008, program.KindControl|program.KindCond)
	src.Instructions = []program.Instruction{instr(0x1000, program.KindALU), slot, branch}
	src.Control = &src.Instructions[2]

	taken := cfg.AddBlock(program.BlockBasic)
	taken.Address = 0x2000
	taken.Instructions = []program.Instruction{instr(0x2000, program.KindALU)}

	notTaken := cfg.AddBlock(program.BlockBasic)
	notTaken.Address = 0x3000
	notTaken.Instructions = []program.Instruction{instr(0x3000, program.KindALU)}

	cfg.AddEdge(cfg.Entry, src.ID, program.EdgeBoth)
	cfg.AddEdge(src.ID, taken.ID, program.EdgeTaken)
	cfg.AddEdge(src.ID, notTaken.ID, program.EdgeNotTaken)
	cfg.AddEdge(taken.ID, cfg.Exit, program.EdgeTaken)
	cfg.AddEdge(notTaken.ID, cfg.Exit, program.EdgeTaken)

	dst, m, err := NormaliseDelayedBranches(cfg, DelaySlotOptions{
		Delayed: map[uint64]bool{0x1008: true},
		Slots:   1,
		Kind:    AlwaysDelayed,
	})
	require.NoError(t, err)

	newSrc := dst.BlockAt(m[src.ID])
	require.Len(t, newSrc.Instructions, 2, "the delay-slot instruction is cut from the source block")
	assert.Equal(t, uint64(0x1008), newSrc.Instructions[1].Address)

	newTaken := dst.BlockAt(m[taken.ID])
	require.Len(t, newTaken.Instructions, 2)
	assert.Equal(t, uint64(0x1004), newTaken.Instructions[0].Address, "delay slot duplicated onto the taken successor")

	newNotTaken := dst.BlockAt(m[notTaken.ID])
	require.Len(t, newNotTaken.Instructions, 2)
	assert.Equal(t, uint64(0x1004), newNotTaken.Instructions[0].Address, "and onto the not-taken successor too (always-delayed)")
}

func TestNormaliseDelayedBranchesTakenOnlyDuplicatesOnlyIntoTakenSuccessor(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
	src := cfg.AddBlock(program.BlockBasic)
	slot := instr(0x1004, program.KindALU)
	branch := instr(0x1008, program.KindControl|program.KindCond)
	src.Instructions = []program.Instruction{instr(0x1000, program.KindALU), slot, branch}
	src.Control = &src.Instructions[2]

	taken := cfg.AddBlock(program.BlockBasic)
	taken.Instructions = []program.Instruction{instr(0x2000, program.KindALU)}
	notTaken := cfg.AddBlock(program.BlockBasic)
	notTaken.Instructions = []program.Instruction{instr(0x3000, program.KindALU)}

	cfg.AddEdge(cfg.Entry, src.ID, program.EdgeBoth)
	cfg.AddEdge(src.ID, taken.ID, program.EdgeTaken)
	cfg.AddEdge(src.ID, notTaken.ID, program.EdgeNotTaken)
	cfg.AddEdge(taken.ID, cfg.Exit, program.EdgeTaken)
	cfg.AddEdge(notTaken.ID, cfg.Exit, program.EdgeTaken)

	dst, m, err := NormaliseDelayedBranches(cfg, DelaySlotOptions{
		Delayed: map[uint64]bool{0x1008: true},
		Slots:   1,
		Kind:    TakenOnlyDelayed,
	})
	require.NoError(t, err)

	newTaken := dst.BlockAt(m[taken.ID])
	require.Len(t, newTaken.Instructions, 2, "taken-only: delay slot duplicated onto the taken edge")

	newNotTaken := dst.BlockAt(m[notTaken.ID])
	require.Len(t, newNotTaken.Instructions, 1, "taken-only: not-taken successor is untouched")
}
