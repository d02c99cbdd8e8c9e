package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/program"
)

// maxDomain joins by taking the larger int; used to make the three
// first-unrolling regimes (entry-only, back-only, back-joined-with-first)
// easy to tell apart in assertions.
type maxDomain struct{}

func (maxDomain) Bot() int                                { return 0 }
func (maxDomain) Entry() int                               { return 0 }
func (maxDomain) Join(a, b int) int {
	if a > b {
		return a
	}
	return b
}
func (maxDomain) Equals(a, b int) bool                     { return a == b }
func (maxDomain) UpdateEdge(_ *program.Edge, s int) int    { return s }
func (maxDomain) UpdateBlock(_ *program.Block, in int) int { return in }

// buildHeaderEdges constructs header <- {entryPred, backPred} and returns
// the header's real *program.Edge objects split by structural back-edge
// status, the same split HeaderEdges computes off dominance.
func buildHeaderEdges(t *testing.T) (cfg *program.CFG, entryEdge, backEdge *program.Edge, header, entryPred, backPred program.BlockID) {
	t.Helper()
	c := program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
	h := c.AddBlock(program.BlockBasic)
	ep := c.AddBlock(program.BlockBasic)
	bp := c.AddBlock(program.BlockBasic)

	c.AddEdge(c.Entry, ep.ID, program.EdgeBoth)
	eEdge := c.AddEdge(ep.ID, h.ID, program.EdgeBoth)
	c.AddEdge(h.ID, bp.ID, program.EdgeTaken)
	bEdge := c.AddEdge(bp.ID, h.ID, program.EdgeBoth)
	c.AddEdge(h.ID, c.Exit, program.EdgeNotTaken)

	return c, eEdge, bEdge, h.ID, ep.ID, bp.ID
}

func TestFixPointStateThreeIterationRegimes(t *testing.T) {
	_, entryEdge, backEdge, _, entryPred, backPred := buildHeaderEdges(t)
	domain := maxDomain{}

	outOf := map[program.BlockID]int{entryPred: 5, backPred: 3}
	lookup := func(id program.BlockID) int { return outOf[id] }

	fp := NewFixPointState[int](domain)
	entries := []*program.Edge{entryEdge}
	backs := []*program.Edge{backEdge}

	in0 := fp.HeaderIn(domain, entries, backs, lookup)
	assert.Equal(t, 5, in0, "iteration 0 uses the entry edges alone")
	assert.Equal(t, 5, fp.First)

	in1 := fp.HeaderIn(domain, entries, backs, lookup)
	assert.Equal(t, 3, in1, "iteration 1 uses the back edges alone")

	outOf[backPred] = 1
	in2 := fp.HeaderIn(domain, entries, backs, lookup)
	assert.Equal(t, 5, in2, "iteration >= 2 joins back edges with the recorded first-iteration state")

	outOf[backPred] = 9
	in3 := fp.HeaderIn(domain, entries, backs, lookup)
	assert.Equal(t, 9, in3, "back-edge state can still dominate the join once it exceeds First")
}

func TestFixPointStateConvergence(t *testing.T) {
	domain := maxDomain{}
	fp := NewFixPointState[int](domain)

	assert.False(t, fp.Converged(domain, 5), "no Steady recorded yet on iteration 0")

	fp.Iter = 2
	fp.Advance(7)
	assert.True(t, fp.Converged(domain, 7))
	assert.False(t, fp.Converged(domain, 8))
}

func TestHeaderEdgesSplitsByDominance(t *testing.T) {
	cfg, entryEdge, backEdge, header, _, backPred := buildHeaderEdges(t)

	dominates := func(sink, src program.BlockID) bool {
		return sink == header && src == backPred
	}

	entries, backs := HeaderEdges(cfg, dominates, header)
	require.Len(t, entries, 1)
	require.Len(t, backs, 1)
	assert.Equal(t, entryEdge.SourceID, entries[0].SourceID)
	assert.Equal(t, backEdge.SourceID, backs[0].SourceID)
}
