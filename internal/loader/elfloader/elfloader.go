// Package elfloader implements wcet/internal/program.Process over an ELF
// binary using the standard library's debug/elf, per SPEC_FULL.md §12.5:
// binary parsing is explicitly out of scope for the analysis core (spec
// §1), so this package is a thin boundary adapter — segment/symbol
// plumbing only. Instruction decoding is delegated to a pluggable
// InstructionDecoder rather than hand-rolled per architecture, since no
// instruction set is mandated by the spec.
package elfloader

import (
	"debug/elf"
	"fmt"

	"wcet/internal/diag"
	"wcet/internal/program"
)

// InstructionDecoder decodes one instruction at addr from the raw bytes
// of the segment containing it. Callers supply an architecture-specific
// implementation; elfloader itself is architecture-agnostic.
type InstructionDecoder interface {
	Decode(addr uint64, code []byte) (program.Instruction, error)
}

type segment struct {
	addr       uint64
	size       uint64
	data       []byte
	executable bool
}

func (s segment) contains(addr uint64) bool {
	return addr >= s.addr && addr < s.addr+s.size
}

// Process is an ELF-backed program.Process.
type Process struct {
	segments []segment
	symbols  map[string]uint64
	inverse  map[uint64]string
	decoder  InstructionDecoder
	entry    uint64
}

// Load reads an ELF file's loadable (PT_LOAD) segments, recording which are
// executable, and its symbol table, and returns a Process that decodes
// instructions via decoder.
func Load(path string, decoder InstructionDecoder) (*Process, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, diag.New(diag.ErrUnsupportedBinaryFormat,
			fmt.Sprintf("failed to open %q as ELF: %v", path, err),
			diag.Location{File: path}).Build()
	}
	defer f.Close()

	p := &Process{
		symbols: map[string]uint64{},
		inverse: map[uint64]string{},
		decoder: decoder,
		entry:   f.Entry,
	}

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		data := make([]byte, prog.Filesz)
		if _, err := prog.ReadAt(data, 0); err != nil && prog.Filesz > 0 {
			return nil, diag.New(diag.ErrUnsupportedBinaryFormat,
				fmt.Sprintf("failed to read PT_LOAD segment at 0x%x: %v", prog.Vaddr, err),
				diag.Location{File: path}).Build()
		}
		if prog.Memsz > prog.Filesz {
			data = append(data, make([]byte, prog.Memsz-prog.Filesz)...)
		}
		p.segments = append(p.segments, segment{
			addr:       prog.Vaddr,
			size:       prog.Memsz,
			data:       data,
			executable: prog.Flags&elf.PF_X != 0,
		})
	}

	syms, err := f.Symbols()
	if err != nil && err != elf.ErrNoSymbols {
		return nil, diag.New(diag.ErrUnsupportedBinaryFormat,
			fmt.Sprintf("failed to read ELF symbol table: %v", err),
			diag.Location{File: path}).Build()
	}
	for _, s := range syms {
		if s.Name == "" {
			continue
		}
		p.symbols[s.Name] = s.Value
		if _, exists := p.inverse[s.Value]; !exists {
			p.inverse[s.Value] = s.Name
		}
	}

	return p, nil
}

// Entry returns the ELF header's entry point address.
func (p *Process) Entry() uint64 { return p.entry }

func (p *Process) segmentAt(addr uint64) (segment, bool) {
	for _, s := range p.segments {
		if s.contains(addr) {
			return s, true
		}
	}
	return segment{}, false
}

// IsExecutable implements program.Process.
func (p *Process) IsExecutable(addr uint64) bool {
	s, ok := p.segmentAt(addr)
	return ok && s.executable
}

// Decode implements program.Process, delegating the actual instruction
// decode to the architecture-specific InstructionDecoder.
func (p *Process) Decode(addr uint64) (program.Instruction, error) {
	s, ok := p.segmentAt(addr)
	if !ok {
		return program.Instruction{}, fmt.Errorf("address 0x%x is outside any loaded segment", addr)
	}
	off := addr - s.addr
	return p.decoder.Decode(addr, s.data[off:])
}

// SymbolAddress implements program.Process.
func (p *Process) SymbolAddress(name string) (uint64, bool) {
	addr, ok := p.symbols[name]
	return addr, ok
}

// SymbolAt returns the symbol name at addr, if the ELF symbol table names
// one there (used by internal/workspace to resolve NO_CALL directives
// that name a function by symbol rather than by address).
func (p *Process) SymbolAt(addr uint64) (string, bool) {
	name, ok := p.inverse[addr]
	return name, ok
}
