package structural

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/program"
)

// newTestCFG returns an empty CFG (Entry/Exit/Unknown/Phony only); each
// test adds its own blocks and edges.
func newTestCFG() *program.CFG {
	return program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
}

func TestDominanceStraightLine(t *testing.T) {
	cfg := newTestCFG()
	a := cfg.AddBlock(program.BlockBasic)
	b := cfg.AddBlock(program.BlockBasic)
	cfg.AddEdge(cfg.Entry, a.ID, program.EdgeBoth)
	cfg.AddEdge(a.ID, b.ID, program.EdgeBoth)
	cfg.AddEdge(b.ID, cfg.Exit, program.EdgeTaken)

	dom, err := ComputeDominance(cfg)
	require.NoError(t, err)

	assert.True(t, dom.Dominates(cfg.Entry, a.ID))
	assert.True(t, dom.Dominates(cfg.Entry, b.ID))
	assert.True(t, dom.Dominates(a.ID, b.ID))
	assert.False(t, dom.Dominates(b.ID, a.ID))

	idomB, ok := dom.IDom(b.ID)
	require.True(t, ok)
	assert.Equal(t, a.ID, idomB)
}

func TestDominanceIfThenElseJoinsAtDiamond(t *testing.T) {
	cfg := newTestCFG()
	c := cfg.AddBlock(program.BlockBasic)
	th := cfg.AddBlock(program.BlockBasic)
	el := cfg.AddBlock(program.BlockBasic)
	j := cfg.AddBlock(program.BlockBasic)
	cfg.AddEdge(cfg.Entry, c.ID, program.EdgeBoth)
	cfg.AddEdge(c.ID, th.ID, program.EdgeTaken)
	cfg.AddEdge(c.ID, el.ID, program.EdgeNotTaken)
	cfg.AddEdge(th.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(el.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(j.ID, cfg.Exit, program.EdgeTaken)

	dom, err := ComputeDominance(cfg)
	require.NoError(t, err)

	assert.True(t, dom.Dominates(c.ID, j.ID))
	assert.False(t, dom.Dominates(th.ID, j.ID), "then-block alone must not dominate the join")
	assert.False(t, dom.Dominates(el.ID, j.ID))

	idomJ, ok := dom.IDom(j.ID)
	require.True(t, ok)
	assert.Equal(t, c.ID, idomJ)
}

func TestPostDominanceIsSymmetricToForward(t *testing.T) {
	cfg := newTestCFG()
	a := cfg.AddBlock(program.BlockBasic)
	b := cfg.AddBlock(program.BlockBasic)
	cfg.AddEdge(cfg.Entry, a.ID, program.EdgeBoth)
	cfg.AddEdge(a.ID, b.ID, program.EdgeBoth)
	cfg.AddEdge(b.ID, cfg.Exit, program.EdgeTaken)

	pdom, err := ComputePostDominance(cfg)
	require.NoError(t, err)
	assert.True(t, pdom.Dominates(cfg.Exit, b.ID))
	assert.True(t, pdom.Dominates(cfg.Exit, a.ID))
	assert.True(t, pdom.Dominates(b.ID, a.ID), "b post-dominates a: every path from a reaches exit via b")
}

func TestLoopHeaderDetectedViaBackEdge(t *testing.T) {
	cfg := newTestCFG()
	h := cfg.AddBlock(program.BlockBasic)
	body := cfg.AddBlock(program.BlockBasic)
	exit := cfg.AddBlock(program.BlockBasic)
	cfg.AddEdge(cfg.Entry, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, body.ID, program.EdgeTaken)
	cfg.AddEdge(body.ID, h.ID, program.EdgeBoth) // back-edge
	cfg.AddEdge(h.ID, exit.ID, program.EdgeNotTaken)
	cfg.AddEdge(exit.ID, cfg.Exit, program.EdgeTaken)

	dom, err := ComputeDominance(cfg)
	require.NoError(t, err)

	headers := LoopHeaders(cfg, dom)
	assert.True(t, headers[h.ID])
	assert.False(t, headers[body.ID])
	assert.False(t, headers[exit.ID])

	backs := MarkBackEdges(cfg, dom)
	require.Len(t, backs, 1)
	assert.Equal(t, body.ID, backs[0].SourceID)
	assert.Equal(t, h.ID, backs[0].SinkID)
	assert.True(t, backs[0].Flags.Has(program.EdgeBack))
}

func TestLoopInfoComputesEnclosingAndExitEdges(t *testing.T) {
	cfg := newTestCFG()
	h := cfg.AddBlock(program.BlockBasic)
	body := cfg.AddBlock(program.BlockBasic)
	after := cfg.AddBlock(program.BlockBasic)
	cfg.AddEdge(cfg.Entry, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, body.ID, program.EdgeTaken)
	cfg.AddEdge(body.ID, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, after.ID, program.EdgeNotTaken)
	cfg.AddEdge(after.ID, cfg.Exit, program.EdgeTaken)

	dom, err := ComputeDominance(cfg)
	require.NoError(t, err)
	info := ComputeLoopInfo(cfg, dom)

	assert.Equal(t, h.ID, info.Enclosing[body.ID])
	assert.Equal(t, h.ID, info.Enclosing[h.ID])
	assert.Equal(t, program.NoBlockID, info.Enclosing[after.ID])

	exits := info.ExitEdges[h.ID]
	require.Len(t, exits, 1)
	assert.Equal(t, h.ID, exits[0].SourceID)
	assert.Equal(t, after.ID, exits[0].SinkID)
	assert.True(t, exits[0].Flags.Has(program.EdgeLoopExit))
	assert.Equal(t, h.ID, exits[0].LoopExitHeader)
}

func TestLoopInfoOutermostHeaderOnNestedExit(t *testing.T) {
	cfg := newTestCFG()
	outerH := cfg.AddBlock(program.BlockBasic)
	innerH := cfg.AddBlock(program.BlockBasic)
	innerBody := cfg.AddBlock(program.BlockBasic)
	innerExit := cfg.AddBlock(program.BlockBasic)
	after := cfg.AddBlock(program.BlockBasic)

	cfg.AddEdge(cfg.Entry, outerH.ID, program.EdgeBoth)
	cfg.AddEdge(outerH.ID, innerH.ID, program.EdgeTaken)
	cfg.AddEdge(innerH.ID, innerBody.ID, program.EdgeTaken)
	cfg.AddEdge(innerBody.ID, innerH.ID, program.EdgeBoth)   // inner back-edge
	cfg.AddEdge(innerH.ID, innerExit.ID, program.EdgeNotTaken) // inner loop exit
	cfg.AddEdge(innerExit.ID, outerH.ID, program.EdgeBoth)   // outer back-edge
	cfg.AddEdge(outerH.ID, after.ID, program.EdgeNotTaken)
	cfg.AddEdge(after.ID, cfg.Exit, program.EdgeTaken)

	dom, err := ComputeDominance(cfg)
	require.NoError(t, err)
	info := ComputeLoopInfo(cfg, dom)

	// innerBody is nested inside both loops; its innermost enclosing header
	// is innerH, not outerH.
	assert.Equal(t, innerH.ID, info.Enclosing[innerBody.ID])

	// the inner loop's own exit edge stays attributed to innerH.
	innerExits := info.ExitEdges[innerH.ID]
	require.Len(t, innerExits, 1)
	assert.Equal(t, innerExit.ID, innerExits[0].SinkID)

	// the edge outerH -> after exits the outer loop only.
	outerExits := info.ExitEdges[outerH.ID]
	require.Len(t, outerExits, 1)
	assert.Equal(t, after.ID, outerExits[0].SinkID)
}
