package main

import (
	"fmt"

	"wcet/internal/program"
)

// illustrativeDecoder is a minimal, architecture-agnostic stand-in for the
// real instruction-set decoder spec §1 places out of scope ("only their
// interfaces to the core are specified"). It reads a fixed 4-byte encoding
// (1 opcode byte + a little-endian 24-bit immediate used as a PC-relative
// branch offset) so the CLI has something concrete to decode end to end;
// a production deployment plugs in elfloader.InstructionDecoder for its
// actual target ISA instead.
type illustrativeDecoder struct{}

const (
	opALU = iota
	opLoad
	opStore
	opBranch
	opCondBranch
	opCall
	opReturn
)

func (illustrativeDecoder) Decode(addr uint64, code []byte) (program.Instruction, error) {
	if len(code) < 4 {
		return program.Instruction{}, fmt.Errorf("truncated instruction at 0x%x", addr)
	}
	op := code[0]
	imm := uint64(code[1]) | uint64(code[2])<<8 | uint64(code[3])<<16

	inst := program.Instruction{Address: addr, Size: 4}
	switch op {
	case opLoad:
		inst.Kind = program.KindMem | program.KindLoad
	case opStore:
		inst.Kind = program.KindMem | program.KindStore
	case opBranch:
		target := addr + imm
		inst.Kind = program.KindControl
		inst.BranchTarget = &target
	case opCondBranch:
		target := addr + imm
		inst.Kind = program.KindControl | program.KindCond
		inst.BranchTarget = &target
	case opCall:
		target := addr + imm
		inst.Kind = program.KindControl | program.KindCall
		inst.BranchTarget = &target
	case opReturn:
		inst.Kind = program.KindControl | program.KindReturn
	default:
		inst.Kind = program.KindALU
	}
	return inst, nil
}
