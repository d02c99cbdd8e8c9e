package elfloader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/program"
)

type fixedDecoder struct {
	insts map[uint64]program.Instruction
}

func (d fixedDecoder) Decode(addr uint64, code []byte) (program.Instruction, error) {
	if i, ok := d.insts[addr]; ok {
		return i, nil
	}
	return program.Instruction{}, assert.AnError
}

// newTestProcess builds a Process directly (bypassing Load, which needs a
// real ELF file on disk) to exercise the segment/symbol lookup logic
// elfloader adds on top of the raw ELF reader.
func newTestProcess(decoder InstructionDecoder) *Process {
	return &Process{
		segments: []segment{
			{addr: 0x1000, size: 0x100, data: make([]byte, 0x100), executable: true},
			{addr: 0x2000, size: 0x100, data: make([]byte, 0x100), executable: false},
		},
		symbols: map[string]uint64{"main": 0x1000, "memcpy": 0x1040},
		inverse: map[uint64]string{0x1000: "main", 0x1040: "memcpy"},
		decoder: decoder,
		entry:   0x1000,
	}
}

func TestIsExecutableRespectsSegmentFlags(t *testing.T) {
	p := newTestProcess(fixedDecoder{})
	assert.True(t, p.IsExecutable(0x1000))
	assert.False(t, p.IsExecutable(0x2000))
	assert.False(t, p.IsExecutable(0x5000), "address outside any segment is not executable")
}

func TestSymbolAddressAndSymbolAt(t *testing.T) {
	p := newTestProcess(fixedDecoder{})
	addr, ok := p.SymbolAddress("main")
	require.True(t, ok)
	assert.Equal(t, uint64(0x1000), addr)

	_, ok = p.SymbolAddress("nonexistent")
	assert.False(t, ok)

	name, ok := p.SymbolAt(0x1040)
	require.True(t, ok)
	assert.Equal(t, "memcpy", name)
}

func TestDecodeDelegatesToDecoder(t *testing.T) {
	want := program.Instruction{Address: 0x1000, Size: 4, Kind: program.KindALU}
	p := newTestProcess(fixedDecoder{insts: map[uint64]program.Instruction{0x1000: want}})

	got, err := p.Decode(0x1000)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = p.Decode(0x9000)
	assert.Error(t, err, "decoding an address outside any segment must fail")
}
