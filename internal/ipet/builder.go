// Package ipet translates an annotated CFG into an Integer Linear Program
// whose variables count executions of basic blocks and edges, whose
// constraints encode control flow plus loop bounds plus cache categories
// plus user flow facts, and whose objective maximises total execution
// time (spec §4.9). The solved objective value is the WCET; the
// per-variable values are the worst-case execution counts.
package ipet

import (
	"fmt"

	"wcet/internal/diag"
	"wcet/internal/flowfact"
	"wcet/internal/ilp"
	"wcet/internal/program"
	"wcet/internal/structural"
	"wcet/internal/timing"
)

type edgeKey struct {
	Src, Sink program.BlockID
}

// CacheAccess is one categorised cache access the IPET penalty terms are
// built from (spec §4.9 "Cache penalty terms"), already resolved to the
// block it occurs in.
type CacheAccess struct {
	Block    program.BlockID
	Category CacheCategory
	Header   program.BlockID // meaningful only for FirstMiss
	Penalty  uint64          // cycles charged per miss
}

// CacheCategory mirrors wcet/internal/cache.Category without importing
// that package, keeping internal/ipet buildable against any categoriser
// that produces this same four-way verdict (cache's own Category has the
// identical int encoding, so callers pass cache.Category values directly).
type CacheCategory int

const (
	CategoryAlwaysHit CacheCategory = iota
	CategoryFirstMiss
	CategoryAlwaysMiss
	CategoryNotClassified
)

// Options configures one Build call with everything that isn't derivable
// from the CFG and loop info alone.
type Options struct {
	// NoCallBlocks are blocks belonging to an ignored callee (spec §4.9
	// "NO_CALL(callee) ⇒ x_v = 0 for all v in callee"), resolved by the
	// caller (internal/workspace) from flowfact.Facts.NoCall's symbol
	// names against the loaded Process's symbol table.
	NoCallBlocks map[program.BlockID]bool

	// InfeasiblePaths are address-resolved InfeasiblePath assertions,
	// with A/B already mapped from instruction address to the BlockID of
	// the block starting at that address.
	InfeasiblePaths []ResolvedInfeasiblePath

	// CacheAccesses lists every categorised cache access the objective
	// must charge a penalty term for (spec §4.9 "Cache penalty terms").
	CacheAccesses []CacheAccess
}

// ResolvedInfeasiblePath is a flowfact.InfeasiblePath with both endpoints
// mapped to BlockIDs.
type ResolvedInfeasiblePath struct {
	A, B      program.BlockID
	Qualifier flowfact.LoopQualifier
}

// System is the built ILP plus the variable bookkeeping needed to read
// results back off engine after Solve.
type System struct {
	engine    ilp.Engine
	blockVar  map[program.BlockID]ilp.Var
	edgeVar   map[edgeKey]ilp.Var
	missVar   map[string]ilp.Var // FirstMiss indicator vars, keyed by block|header
}

// BlockVar returns the execution-count variable for block id, or
// (0, false) if id has no variable (unreachable/untimed blocks still get
// one, so this only fails for an id outside the CFG Build ran over).
func (s *System) BlockVar(id program.BlockID) (ilp.Var, bool) {
	v, ok := s.blockVar[id]
	return v, ok
}

// EdgeVar returns the traversal-count variable for the edge src->sink.
func (s *System) EdgeVar(src, sink program.BlockID) (ilp.Var, bool) {
	v, ok := s.edgeVar[edgeKey{Src: src, Sink: sink}]
	return v, ok
}

// Solve runs the underlying engine and returns the WCET (objective value)
// on success. Per spec §4.9/§7, an infeasible or unbounded ILP is always a
// fatal analysis failure, never partial output.
func (s *System) Solve() (uint64, error) {
	status, err := s.engine.Solve()
	if err != nil {
		return 0, err
	}
	switch status {
	case ilp.Infeasible:
		return 0, diag.New(diag.ErrILPInfeasible,
			"the IPET integer program has no feasible solution (check flow facts for contradictions)",
			diag.Location{}).Build()
	case ilp.Unbounded:
		return 0, diag.New(diag.ErrILPUnbounded,
			"the IPET integer program is unbounded (a reachable loop is missing a MAX_ITERATION bound)",
			diag.Location{}).Build()
	}
	return uint64(s.engine.ObjectiveValue() + 0.5), nil
}

// Count returns the solved execution count of a block variable (rounded to
// the nearest integer, since the engine reports a float64).
func (s *System) Count(id program.BlockID) uint64 {
	v, ok := s.blockVar[id]
	if !ok {
		return 0
	}
	return uint64(s.engine.ValueOf(v) + 0.5)
}

// EdgeCount returns the solved traversal count of the edge src->sink.
func (s *System) EdgeCount(src, sink program.BlockID) uint64 {
	v, ok := s.edgeVar[edgeKey{Src: src, Sink: sink}]
	if !ok {
		return 0
	}
	return uint64(s.engine.ValueOf(v) + 0.5)
}

// Build constructs the ILP for cfg's WCET computation per spec §4.9:
// one variable per block and per edge, flow-conservation constraints,
// per-loop-header iteration bounds from facts.MaxIteration, NO_CALL
// zeroing, infeasible-path constraints, cache penalty terms, and an
// objective maximising total time.
func Build(cfg *program.CFG, info *structural.LoopInfo, times *timing.Times, facts *flowfact.Facts, opts Options, engine ilp.Engine) (*System, error) {
	sys := &System{
		engine:   engine,
		blockVar: map[program.BlockID]ilp.Var{},
		edgeVar:  map[edgeKey]ilp.Var{},
		missVar:  map[string]ilp.Var{},
	}
	engine.SetObjectiveMaximise(true)

	for _, b := range cfg.Blocks {
		sys.blockVar[b.ID] = engine.NewVar(fmt.Sprintf("x_b%d_%d", b.ID.CFG, b.ID.Block))
	}
	for _, e := range cfg.Edges {
		k := edgeKey{Src: e.SourceID, Sink: e.SinkID}
		if _, ok := sys.edgeVar[k]; ok {
			continue // parallel edges between the same pair collapse to one variable
		}
		sys.edgeVar[k] = engine.NewVar(fmt.Sprintf("x_e%d_%d_%d_%d", e.SourceID.CFG, e.SourceID.Block, e.SinkID.CFG, e.SinkID.Block))
	}

	addStructuralConstraints(cfg, sys, engine)
	addLoopBoundConstraints(cfg, info, facts, sys, engine)
	addNoCallConstraints(opts.NoCallBlocks, sys, engine)
	addInfeasiblePathConstraints(opts.InfeasiblePaths, sys, engine)
	addObjective(cfg, times, sys, engine)
	addCachePenalties(cfg, opts.CacheAccesses, sys, engine)

	return sys, nil
}

// addStructuralConstraints encodes conservation of flow (spec §4.9):
// x_entry = 1, and for every non-exit block, in-flow = block count =
// out-flow — except Entry, which has no predecessors and so only gets the
// out-flow half (its in-flow side is already pinned by x_entry = 1).
func addStructuralConstraints(cfg *program.CFG, sys *System, engine ilp.Engine) {
	entryVar := sys.blockVar[cfg.Entry]
	c := engine.NewConstraint(ilp.EQ, 1)
	engine.AddTerm(c, 1, entryVar)

	for _, b := range cfg.Blocks {
		bv := sys.blockVar[b.ID]

		if b.ID != cfg.Entry {
			// Entry has no predecessors, so the trivial in-flow equation
			// would read 0 = x_entry and contradict x_entry = 1 above;
			// skip it here and rely on the out-flow equation below to tie
			// x_entry to the rest of the graph.
			in := engine.NewConstraint(ilp.EQ, 0)
			engine.AddTerm(in, 1, bv)
			for _, e := range cfg.EdgesTo(b.ID) {
				if ev, ok := sys.edgeVar[edgeKey{Src: e.SourceID, Sink: e.SinkID}]; ok {
					engine.AddTerm(in, -1, ev)
				}
			}
		}

		if b.ID == cfg.Exit {
			continue // exit has no successors; out-flow conservation doesn't apply
		}
		out := engine.NewConstraint(ilp.EQ, 0)
		engine.AddTerm(out, 1, bv)
		for _, e := range cfg.EdgesFrom(b.ID) {
			if ev, ok := sys.edgeVar[edgeKey{Src: e.SourceID, Sink: e.SinkID}]; ok {
				engine.AddTerm(out, -1, ev)
			}
		}
	}
}

// addLoopBoundConstraints encodes, for each loop header with a
// MAX_ITERATION flow fact, Σ back-edges ≤ N · Σ entry-edges (spec §4.9).
// A loop header reachable in the CFG with no matching flow fact is left
// unconstrained here; internal/workspace is responsible for surfacing the
// resulting ILP-unbounded failure up through System.Solve, per spec §4.9
// ("missing loop bound on reachable loop").
func addLoopBoundConstraints(cfg *program.CFG, info *structural.LoopInfo, facts *flowfact.Facts, sys *System, engine ilp.Engine) {
	if info == nil || facts == nil {
		return
	}
	for h := range info.Bodies {
		blk := cfg.BlockAt(h)
		if blk == nil {
			continue
		}
		n, ok := facts.MaxIteration[blk.Address]
		if !ok {
			continue
		}

		c := engine.NewConstraint(ilp.LE, 0)
		for _, e := range cfg.EdgesTo(h) {
			ev, ok := sys.edgeVar[edgeKey{Src: e.SourceID, Sink: e.SinkID}]
			if !ok {
				continue
			}
			if e.Flags.Has(program.EdgeBack) {
				engine.AddTerm(c, 1, ev)
			} else {
				engine.AddTerm(c, -float64(n), ev)
			}
		}
	}
}

// addNoCallConstraints pins every block of an ignored callee to zero
// executions (spec §4.9 "NO_CALL(callee) ⇒ x_v = 0").
func addNoCallConstraints(blocks map[program.BlockID]bool, sys *System, engine ilp.Engine) {
	for id := range blocks {
		bv, ok := sys.blockVar[id]
		if !ok {
			continue
		}
		c := engine.NewConstraint(ilp.EQ, 0)
		engine.AddTerm(c, 1, bv)
	}
}

// addInfeasiblePathConstraints encodes each asserted infeasible pair as
// x_a + x_b ≤ 1 (spec §4.9's "x_bb_a + x_bb_b ≤ 1 or similar"); a loop
// iteration qualifier narrows which occurrence of a or b the assertion
// covers, which this repository does not attempt to model at sub-loop
// granularity — the unqualified, whole-execution-count form is the sound
// (if occasionally looser) upper bound spec §4.9 explicitly allows
// ("or similar").
func addInfeasiblePathConstraints(paths []ResolvedInfeasiblePath, sys *System, engine ilp.Engine) {
	for _, p := range paths {
		av, aok := sys.blockVar[p.A]
		bv, bok := sys.blockVar[p.B]
		if !aok || !bok {
			continue
		}
		c := engine.NewConstraint(ilp.LE, 1)
		engine.AddTerm(c, 1, av)
		engine.AddTerm(c, 1, bv)
	}
}

// addObjective sums T(v)·x_v over every block and ΔT(e)·x_e over every
// edge (spec §4.9); cache penalty terms are added separately by
// addCachePenalties so the two concerns stay independently testable.
func addObjective(cfg *program.CFG, times *timing.Times, sys *System, engine ilp.Engine) {
	if times == nil {
		return
	}
	for _, b := range cfg.Blocks {
		t := times.BlockTime(b.ID)
		if t == 0 {
			continue
		}
		engine.AddToObjective(float64(t), sys.blockVar[b.ID])
	}
	for _, e := range cfg.Edges {
		d := times.EdgeDelta(e.SourceID, e.SinkID)
		if d == 0 {
			continue
		}
		if ev, ok := sys.edgeVar[edgeKey{Src: e.SourceID, Sink: e.SinkID}]; ok {
			engine.AddToObjective(float64(d), ev)
		}
	}
}

// addCachePenalties implements spec §4.9's per-category objective terms:
// AlwaysHit adds nothing; AlwaysMiss and NotClassified (treated as a safe
// Always-Miss) add Penalty·x_v directly; FirstMiss introduces an indicator
// variable x_miss bounded above by both the block's own count and the sum
// of entry edges into the first-miss header, charging Penalty·x_miss so
// only the guaranteed-first-iteration miss is counted, not one per loop
// iteration.
func addCachePenalties(cfg *program.CFG, accesses []CacheAccess, sys *System, engine ilp.Engine) {
	for i, a := range accesses {
		bv, ok := sys.blockVar[a.Block]
		if !ok || a.Penalty == 0 {
			continue
		}
		switch a.Category {
		case CategoryAlwaysHit:
			continue
		case CategoryAlwaysMiss, CategoryNotClassified:
			engine.AddToObjective(float64(a.Penalty), bv)
		case CategoryFirstMiss:
			missVar := engine.NewVar(fmt.Sprintf("x_miss_%d", i))

			c1 := engine.NewConstraint(ilp.LE, 0)
			engine.AddTerm(c1, 1, missVar)
			engine.AddTerm(c1, -1, bv)

			c2 := engine.NewConstraint(ilp.LE, 0)
			engine.AddTerm(c2, 1, missVar)
			for _, e := range cfg.EdgesTo(a.Header) {
				if e.Flags.Has(program.EdgeBack) {
					continue // entry edges only, not the loop's own back-edge
				}
				if ev, ok := sys.edgeVar[edgeKey{Src: e.SourceID, Sink: e.SinkID}]; ok {
					engine.AddTerm(c2, -1, ev)
				}
			}

			engine.AddToObjective(float64(a.Penalty), missVar)
		}
	}
}
