package timing

import "wcet/internal/program"

// StageKind names one pipeline stage an instruction occupies a graph node
// for, per spec §4.8's "(instruction × pipeline-stage) nodes".
type StageKind int

const (
	StageFetch StageKind = iota
	StageDecode
	StageExecute
	StageMemory
	StageWriteback
)

// PipelineDescription is the read-only hardware configuration (spec §1
// "Hardware description files") the execution-graph builder consults: the
// ordered stage list every instruction passes through, each stage's
// fixed latency, and which functional units (by name) may only host one
// in-flight instruction at a time.
type PipelineDescription struct {
	Stages       []StageKind
	Latency      map[StageKind]uint64
	FunctionalUnit func(i program.Instruction) string // "" = no FU contention modelled
}

// node is one (instruction-index, stage) vertex of the execution graph.
type node struct {
	inst  int
	stage int
}

// Graph is the per-block pipeline execution graph: a DAG of (instruction,
// stage) nodes whose edges encode in-order issue, functional-unit
// occupancy, inter-instruction dependency and memory ordering constraints.
// Longest path end-to-end is the block's execution time (spec §4.8).
type Graph struct {
	desc  *PipelineDescription
	insts []program.Instruction
	succ  map[node][]weightedEdge
	start node
}

type weightedEdge struct {
	to     node
	weight uint64
}

// BuildGraph constructs the execution graph for one basic block's
// instruction sequence under desc.
//
//   - In-order: stage (i, s) -> (i, s+1) weighted by stage s's latency
//     (an instruction cannot leave a stage before occupying it for its
//     latency).
//   - Pipeline occupancy: stage (i, s) -> (i+1, s) with zero weight models
//     that instruction i+1 cannot enter stage s before i has (classic
//     pipeline structural hazard over the fetch/decode/issue front end).
//   - Functional-unit: when desc.FunctionalUnit assigns the same unit name
//     to two instructions sharing the Execute stage, the later instruction
//     waits for the earlier to clear that stage (same edge shape as
//     pipeline occupancy, scoped to instructions on the same unit).
//   - Dependency: an instruction reading a register that an earlier
//     instruction writes (its most recent writer) cannot enter Execute
//     before that write's Execute
//     stage completes (read-after-write at the register level, the
//     dependency constraint spec §4.8 names).
//   - Memory order: two MEM-kind instructions keep program order through
//     the Memory stage (no store/load reordering modelled).
func BuildGraph(desc *PipelineDescription, insts []program.Instruction) *Graph {
	g := &Graph{desc: desc, insts: insts, succ: map[node][]weightedEdge{}}
	n := len(insts)
	ns := len(desc.Stages)
	if n == 0 || ns == 0 {
		return g
	}

	add := func(from, to node, w uint64) {
		g.succ[from] = append(g.succ[from], weightedEdge{to: to, weight: w})
	}

	for i := 0; i < n; i++ {
		for s := 0; s < ns-1; s++ {
			add(node{i, s}, node{i, s + 1}, desc.Latency[desc.Stages[s]])
		}
	}

	for i := 0; i < n-1; i++ {
		for s := 0; s < ns; s++ {
			add(node{i, s}, node{i + 1, s}, 0)
		}
	}

	if desc.FunctionalUnit != nil {
		execStage := stageIndex(desc.Stages, StageExecute)
		if execStage >= 0 {
			lastOnUnit := map[string]int{}
			for i := 0; i < n; i++ {
				unit := desc.FunctionalUnit(insts[i])
				if unit == "" {
					continue
				}
				if prev, ok := lastOnUnit[unit]; ok {
					add(node{prev, execStage}, node{i, execStage}, desc.Latency[StageExecute])
				}
				lastOnUnit[unit] = i
			}
		}
	}

	execStage := stageIndex(desc.Stages, StageExecute)
	if execStage >= 0 {
		lastWriter := map[program.Register]int{}
		for i := 0; i < n; i++ {
			for _, r := range insts[i].Reads {
				if w, ok := lastWriter[r]; ok && w != i {
					add(node{w, execStage}, node{i, execStage}, desc.Latency[StageExecute])
				}
			}
			for _, r := range insts[i].Writes {
				lastWriter[r] = i
			}
		}
	}

	memStage := stageIndex(desc.Stages, StageMemory)
	if memStage >= 0 {
		prevMem := -1
		for i := 0; i < n; i++ {
			if !insts[i].Kind.Any(program.KindMem | program.KindLoad | program.KindStore) {
				continue
			}
			if prevMem >= 0 {
				add(node{prevMem, memStage}, node{i, memStage}, desc.Latency[StageMemory])
			}
			prevMem = i
		}
	}

	g.start = node{0, 0}
	return g
}

func stageIndex(stages []StageKind, want StageKind) int {
	for i, s := range stages {
		if s == want {
			return i
		}
	}
	return -1
}

// LongestPath returns the weight of the graph's longest path from the
// first instruction's first stage to the last instruction's last stage —
// the block's execution time under this pipeline model (spec §4.8).
func (g *Graph) LongestPath() uint64 {
	if len(g.insts) == 0 || len(g.desc.Stages) == 0 {
		return 0
	}
	order := g.topoOrder()
	dist := map[node]uint64{g.start: 0}
	var best uint64
	for _, u := range order {
		ud, ok := dist[u]
		if !ok {
			continue
		}
		if ud > best {
			best = ud
		}
		for _, e := range g.succ[u] {
			if cand := ud + e.weight; cand > dist[e.to] {
				dist[e.to] = cand
			}
		}
	}
	return best
}

// topoOrder returns every (inst, stage) node in topological order; since
// every edge above increases inst or stage (never both decreasing), plain
// lexicographic order over (inst, stage) is already a valid topological
// order of the DAG.
func (g *Graph) topoOrder() []node {
	var out []node
	for i := range g.insts {
		for s := range g.desc.Stages {
			out = append(out, node{i, s})
		}
	}
	return out
}

// Pipeline computes T(v) for every Basic block in cfg as the longest path
// through its per-block execution graph (spec §4.8 "pipeline execution
// graph" backend), the second of the two timing backends that plug into
// the same BB-time identifier as Trivial.
func Pipeline(cfg *program.CFG, desc *PipelineDescription) *Times {
	t := newTimes()
	for _, b := range cfg.Blocks {
		if b.Kind != program.BlockBasic {
			continue
		}
		t.Block[b.ID] = BuildGraph(desc, b.Instructions).LongestPath()
	}
	return t
}
