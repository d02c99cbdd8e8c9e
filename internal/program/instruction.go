// Package program is the entity substrate: instructions, basic blocks,
// edges, CFGs and CFG collections, plus the CFG construction algorithm that
// turns a loader-supplied Process into a CFGCollection. Every entity here
// carries a property list (wcet/internal/prop), the sole channel later
// analyses use to communicate.
package program

import "wcet/internal/prop"

// Register is an opaque loader-assigned register identifier.
type Register uint16

// Kind is a bitset over the instruction categories an analysis may care
// about. An instruction typically sets several bits (e.g. a conditional
// branch is CONTROL|COND).
type Kind uint32

const (
	KindALU Kind = 1 << iota
	KindMem
	KindLoad
	KindStore
	KindControl
	KindCall
	KindReturn
	KindCond
	KindTrap
	KindIntern
	KindFloat
	KindMul
	KindDiv
	KindShift
	KindMulti
	KindSpecial
)

// Has reports whether every bit in want is set in k.
func (k Kind) Has(want Kind) bool { return k&want == want }

// Any reports whether any bit in want is set in k.
func (k Kind) Any(want Kind) bool { return k&want != 0 }

// MicroOpKind enumerates the RISC-like semantic micro-operations an
// instruction may decompose into, for analyses that look past the
// instruction-set surface (e.g. address analysis for data-cache access).
type MicroOpKind int

const (
	MicroOpLoad MicroOpKind = iota
	MicroOpStore
	MicroOpSet
	MicroOpAdd
	MicroOpCmp
	MicroOpBranch
)

// MicroOp is one semantic micro-operation of an instruction.
type MicroOp struct {
	Kind     MicroOpKind
	Operands []Register
}

// Instruction is the opaque decoded unit supplied by a Process. Branch
// targets are nullable: nil with Dynamic=true means the target is computed
// and unresolved until a flow fact supplies one (program.BuildOptions).
type Instruction struct {
	Address      uint64
	Size         uint8
	Kind         Kind
	BranchTarget *uint64
	Dynamic      bool
	Reads        []Register
	Writes       []Register
	MicroOps     []MicroOp
}

// End returns the address one past the instruction.
func (i Instruction) End() uint64 { return i.Address + uint64(i.Size) }

// Process is the minimal view over a loaded binary the CFG builder needs.
// Implementations live under wcet/internal/loader (e.g. elfloader).
type Process interface {
	// Decode returns the instruction starting at addr.
	Decode(addr uint64) (Instruction, error)
	// IsExecutable reports whether addr falls in an executable segment.
	IsExecutable(addr uint64) bool
	// SymbolAddress resolves a symbol name to its address, if known.
	SymbolAddress(name string) (uint64, bool)
}

// EntityProps is embedded by every program entity to give it a property
// list, per spec §3.1.
type EntityProps struct {
	Props *prop.PropertyList
}

func newEntityProps() EntityProps {
	return EntityProps{Props: prop.NewPropertyList()}
}

// Close releases the entity's property list.
func (e EntityProps) Close() {
	if e.Props != nil {
		e.Props.Close()
	}
}
