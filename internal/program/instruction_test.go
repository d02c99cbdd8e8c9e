package program

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindHasRequiresAllBits(t *testing.T) {
	k := KindControl | KindCond
	assert.True(t, k.Has(KindControl))
	assert.True(t, k.Has(KindCond))
	assert.True(t, k.Has(KindControl|KindCond))
	assert.False(t, k.Has(KindCall))
}

func TestKindAnyRequiresOneBit(t *testing.T) {
	k := KindCall | KindControl
	assert.True(t, k.Any(KindCall|KindReturn))
	assert.False(t, k.Any(KindReturn|KindCond))
}

func TestInstructionEndAddsSize(t *testing.T) {
	i := Instruction{Address: 0x1000, Size: 4}
	assert.Equal(t, uint64(0x1004), i.End())
}

func TestBlockKindString(t *testing.T) {
	assert.Equal(t, "Basic", BlockBasic.String())
	assert.Equal(t, "End(Unknown)", BlockEndUnknown.String())
}

func TestNoBlockIDIsDistinctFromZeroValue(t *testing.T) {
	assert.NotEqual(t, NoBlockID, BlockID{})
	assert.True(t, BlockID{CFG: 1, Block: 2}.IsSet())
	assert.False(t, NoBlockID.IsSet())
}
