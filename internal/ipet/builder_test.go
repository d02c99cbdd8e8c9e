package ipet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/flowfact"
	"wcet/internal/ilp/refsolver"
	"wcet/internal/program"
	"wcet/internal/structural"
	"wcet/internal/timing"
)

func inst(addr uint64) program.Instruction {
	return program.Instruction{Address: addr, Size: 4, Kind: program.KindALU}
}

func fixedCost(n uint64) timing.CostModel {
	return timing.CostFunc(func(program.Instruction) uint64 { return n })
}

// buildDominance is a small helper bundling dominance + loop info + back-edge
// marking, since Build reads EdgeBack flags that only structural.MarkBackEdges
// sets.
func buildDominance(t *testing.T, cfg *program.CFG) *structural.LoopInfo {
	t.Helper()
	dom, err := structural.ComputeDominance(cfg)
	require.NoError(t, err)
	structural.MarkBackEdges(cfg, dom)
	return structural.ComputeLoopInfo(cfg, dom)
}

// scenarioA builds a straight-line CFG: entry -> a -> b -> exit (spec §8
// Scenario A), each block holding a single instruction costing 5 cycles.
func TestScenarioAStraightLine(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x1000, program.CFGSubprog)
	a := cfg.AddBlock(program.BlockBasic)
	a.Instructions = []program.Instruction{inst(0x1000)}
	b := cfg.AddBlock(program.BlockBasic)
	b.Instructions = []program.Instruction{inst(0x1004)}
	cfg.AddEdge(cfg.Entry, a.ID, program.EdgeBoth)
	cfg.AddEdge(a.ID, b.ID, program.EdgeBoth)
	cfg.AddEdge(b.ID, cfg.Exit, program.EdgeTaken)

	info := buildDominance(t, cfg)
	times := timing.Trivial(cfg, fixedCost(5))

	eng := refsolver.New()
	sys, err := Build(cfg, info, times, flowfact.New(), Options{}, eng)
	require.NoError(t, err)

	wcet, err := sys.Solve()
	require.NoError(t, err)
	assert.Equal(t, uint64(10), wcet)
	assert.Equal(t, uint64(1), sys.Count(a.ID))
	assert.Equal(t, uint64(1), sys.Count(b.ID))
}

// scenarioB builds a single loop: entry -> h -> body -> h (back-edge) and
// h -> exit, with MAX_ITERATION(h)=100 (spec §8 Scenario B).
func TestScenarioBSingleLoop(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x2000, program.CFGSubprog)
	h := cfg.AddBlock(program.BlockBasic)
	h.Instructions = []program.Instruction{inst(0x2000)}
	body := cfg.AddBlock(program.BlockBasic)
	body.Instructions = []program.Instruction{inst(0x2004)}
	cfg.AddEdge(cfg.Entry, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, body.ID, program.EdgeTaken)
	cfg.AddEdge(body.ID, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, cfg.Exit, program.EdgeNotTaken)

	info := buildDominance(t, cfg)
	times := timing.Trivial(cfg, fixedCost(1))

	facts := flowfact.New()
	facts.MaxIteration[h.Address] = 100

	eng := refsolver.New()
	sys, err := Build(cfg, info, times, facts, Options{}, eng)
	require.NoError(t, err)

	wcet, err := sys.Solve()
	require.NoError(t, err)
	// h executes 101 times (1 entry + 100 back-edge traversals), body 100.
	assert.Equal(t, uint64(101), sys.Count(h.ID))
	assert.Equal(t, uint64(100), sys.Count(body.ID))
	assert.Equal(t, uint64(201), wcet)
}

// scenarioBMissingBound confirms an unbounded loop with no MAX_ITERATION
// flow fact reports ilp.Unbounded through Solve, not a silently wrong WCET.
func TestScenarioBMissingLoopBoundIsUnbounded(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x2100, program.CFGSubprog)
	h := cfg.AddBlock(program.BlockBasic)
	h.Instructions = []program.Instruction{inst(0x2100)}
	body := cfg.AddBlock(program.BlockBasic)
	body.Instructions = []program.Instruction{inst(0x2104)}
	cfg.AddEdge(cfg.Entry, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, body.ID, program.EdgeTaken)
	cfg.AddEdge(body.ID, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, cfg.Exit, program.EdgeNotTaken)

	info := buildDominance(t, cfg)
	times := timing.Trivial(cfg, fixedCost(1))

	eng := refsolver.New()
	sys, err := Build(cfg, info, times, flowfact.New(), Options{}, eng)
	require.NoError(t, err)

	_, err = sys.Solve()
	require.Error(t, err)
}

// scenarioC builds an if-then-else diamond (spec §8 Scenario C): entry -> c,
// c -> th (cost 3) or el (cost 1), both -> j -> exit. WCET picks the more
// expensive branch.
func TestScenarioCIfThenElse(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x3000, program.CFGSubprog)
	c := cfg.AddBlock(program.BlockBasic)
	c.Instructions = []program.Instruction{inst(0x3000)}
	th := cfg.AddBlock(program.BlockBasic)
	th.Instructions = []program.Instruction{inst(0x3004), inst(0x3008), inst(0x300c)}
	el := cfg.AddBlock(program.BlockBasic)
	el.Instructions = []program.Instruction{inst(0x3010)}
	j := cfg.AddBlock(program.BlockBasic)
	j.Instructions = []program.Instruction{inst(0x3014)}

	cfg.AddEdge(cfg.Entry, c.ID, program.EdgeBoth)
	cfg.AddEdge(c.ID, th.ID, program.EdgeTaken)
	cfg.AddEdge(c.ID, el.ID, program.EdgeNotTaken)
	cfg.AddEdge(th.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(el.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(j.ID, cfg.Exit, program.EdgeTaken)

	info := buildDominance(t, cfg)
	times := timing.Trivial(cfg, fixedCost(1))

	eng := refsolver.New()
	sys, err := Build(cfg, info, times, flowfact.New(), Options{}, eng)
	require.NoError(t, err)

	wcet, err := sys.Solve()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), sys.Count(th.ID), "the then-branch (costlier) must be the one taken")
	assert.Equal(t, uint64(0), sys.Count(el.ID))
	// c(1) + th(3) + j(1) = 5
	assert.Equal(t, uint64(5), wcet)
}

// scenarioF asserts an infeasible pair on the if-then-else diamond: th and
// el can never both execute, and the system must stay solvable and select
// only one side (spec §8 Scenario F).
func TestScenarioFInfeasiblePath(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x4000, program.CFGSubprog)
	c := cfg.AddBlock(program.BlockBasic)
	c.Instructions = []program.Instruction{inst(0x4000)}
	th := cfg.AddBlock(program.BlockBasic)
	th.Instructions = []program.Instruction{inst(0x4004), inst(0x4008)}
	el := cfg.AddBlock(program.BlockBasic)
	el.Instructions = []program.Instruction{inst(0x400c), inst(0x4010), inst(0x4014)}
	j := cfg.AddBlock(program.BlockBasic)
	j.Instructions = []program.Instruction{inst(0x4018)}

	cfg.AddEdge(cfg.Entry, c.ID, program.EdgeBoth)
	cfg.AddEdge(c.ID, th.ID, program.EdgeTaken)
	cfg.AddEdge(c.ID, el.ID, program.EdgeNotTaken)
	cfg.AddEdge(th.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(el.ID, j.ID, program.EdgeBoth)
	cfg.AddEdge(j.ID, cfg.Exit, program.EdgeTaken)

	info := buildDominance(t, cfg)
	times := timing.Trivial(cfg, fixedCost(1))

	// Without the infeasible-path assertion the solver already picks el (3
	// cycles) over th (2 cycles), so exercise the constraint by asserting
	// th and el infeasible together and checking the system stays solvable
	// and still only ever selects one side.
	facts := flowfact.New()
	facts.Infeasible = append(facts.Infeasible, flowfact.InfeasiblePath{
		A: th.Address, B: el.Address, Qualifier: flowfact.QualifierAllIterations,
	})

	opts := Options{InfeasiblePaths: []ResolvedInfeasiblePath{
		{A: th.ID, B: el.ID, Qualifier: flowfact.QualifierAllIterations},
	}}

	eng := refsolver.New()
	sys, err := Build(cfg, info, times, facts, opts, eng)
	require.NoError(t, err)

	wcet, err := sys.Solve()
	require.NoError(t, err)
	assert.LessOrEqual(t, sys.Count(th.ID)+sys.Count(el.ID), uint64(1))
	// c(1) + el(3) + j(1) = 5
	assert.Equal(t, uint64(5), wcet)
}

// TestFirstMissCachePenaltyChargedOnce exercises the FirstMiss objective
// term (spec §8 Scenario D): a loop body accesses a line classified
// FirstMiss at the header, so the miss penalty must be charged once, not
// once per iteration.
func TestFirstMissCachePenaltyChargedOnce(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x5000, program.CFGSubprog)
	h := cfg.AddBlock(program.BlockBasic)
	h.Instructions = []program.Instruction{inst(0x5000)}
	body := cfg.AddBlock(program.BlockBasic)
	body.Instructions = []program.Instruction{inst(0x5004)}
	cfg.AddEdge(cfg.Entry, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, body.ID, program.EdgeTaken)
	cfg.AddEdge(body.ID, h.ID, program.EdgeBoth)
	cfg.AddEdge(h.ID, cfg.Exit, program.EdgeNotTaken)

	info := buildDominance(t, cfg)
	times := timing.Trivial(cfg, fixedCost(1))

	facts := flowfact.New()
	facts.MaxIteration[h.Address] = 10

	opts := Options{CacheAccesses: []CacheAccess{
		{Block: h.ID, Category: CategoryFirstMiss, Header: h.ID, Penalty: 50},
	}}

	eng := refsolver.New()
	sys, err := Build(cfg, info, times, facts, opts, eng)
	require.NoError(t, err)

	wcet, err := sys.Solve()
	require.NoError(t, err)
	// h runs 11 times, body 10 times: base time 11+10=21, plus a single
	// 50-cycle first-miss penalty = 71, not 11*50.
	assert.Equal(t, uint64(71), wcet)
}

func TestCCGConstraintBuilderRejectsPreVirtualisedCFG(t *testing.T) {
	cfg := program.NewCFGForTest(0, 0x6000, program.CFGSubprog)
	synth := cfg.AddBlock(program.BlockSynth)
	synth.CalleeCFG = 1 // resolved but un-inlined call still present
	cfg.AddEdge(cfg.Entry, synth.ID, program.EdgeBoth)
	cfg.AddEdge(synth.ID, cfg.Exit, program.EdgeTaken)

	info := buildDominance(t, cfg)
	times := timing.Trivial(cfg, fixedCost(1))

	eng := refsolver.New()
	sys, err := Build(cfg, info, times, flowfact.New(), Options{}, eng)
	require.NoError(t, err)

	err = CCGConstraintBuilder(cfg, nil, sys, eng)
	require.Error(t, err)
}
