package f4

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/diag"
	"wcet/internal/flowfact"
)

func TestParseLoopDirective(t *testing.T) {
	facts, err := Parse("t.ff", `loop 0x1000 100;`)
	require.NoError(t, err)
	assert.Equal(t, 100, facts.MaxIteration[0x1000])
}

func TestParseChecksumAndNoCall(t *testing.T) {
	facts, err := Parse("t.ff", `
		checksum "file.elf" deadbeef;
		nocall "memcpy";
	`)
	require.NoError(t, err)
	require.Len(t, facts.Checksums, 1)
	assert.Equal(t, "file.elf", facts.Checksums[0].File)
	assert.True(t, facts.NoCall["memcpy"])
}

func TestParseBranchMultiTarget(t *testing.T) {
	facts, err := Parse("t.ff", `branch 0x2000 = 0x2010, 0x2020;`)
	require.NoError(t, err)
	bt := facts.Branches[0x2000]
	assert.Equal(t, []uint64{0x2010, 0x2020}, bt.Targets)
}

func TestParseReturnIgnoreControlMultiBranchNoReturn(t *testing.T) {
	facts, err := Parse("t.ff", `
		return 0x3000;
		ignorecontrol 0x3010;
		multibranch 0x3020;
		noreturn "abort";
	`)
	require.NoError(t, err)
	assert.True(t, facts.Returns[0x3000])
	assert.True(t, facts.IgnoreControl[0x3010])
	_, ok := facts.Branches[0x3020]
	assert.True(t, ok)
	assert.True(t, facts.NoReturn["abort"])
}

func TestParseInfeasibleWithQualifier(t *testing.T) {
	facts, err := Parse("t.ff", `infeasible 0x4000, 0x4010 in "0x4000" first;`)
	require.NoError(t, err)
	require.Len(t, facts.Infeasible, 1)
	ip := facts.Infeasible[0]
	assert.Equal(t, uint64(0x4000), ip.A)
	assert.Equal(t, uint64(0x4010), ip.B)
	assert.Equal(t, flowfact.QualifierFirstIteration, ip.Qualifier)
}

func TestParseSyntaxErrorIsLocated(t *testing.T) {
	_, err := Parse("t.ff", `loop oops 100;`)
	require.Error(t, err)
	var d *diag.Diagnostic
	require.ErrorAs(t, err, &d)
	assert.Equal(t, "t.ff", d.Location.File)
	assert.Equal(t, 1, d.Location.Line)
}
