package ai

import "wcet/internal/program"

// FixPointState is the per-loop-header state the first-unrolling fixpoint
// maintains (spec §4.6): the first iteration through a loop often enters
// with values that differ from the values the loop settles into on later
// passes (a cold cache line on first entry, warm on every iteration after),
// so the header's in-state is tracked across three distinct regimes rather
// than joined into a single running value from the start.
type FixPointState[T any] struct {
	// Iter counts how many times HeaderIn has been called for this header.
	Iter int
	// First is the header's in-state as computed on iteration 0 (the join
	// over its entry edges only) — the state a cold first pass enters with.
	First T
	// Steady is the header's in-state as of the most recently completed
	// iteration (iteration >= 1); compared against the previous Steady to
	// detect convergence.
	Steady T
}

// NewFixPointState returns a FixPointState ready for iteration 0, with
// First and Steady seeded to the domain's bottom so the first call to
// HeaderIn always looks like a change.
func NewFixPointState[T any](domain Domain[T]) *FixPointState[T] {
	return &FixPointState[T]{First: domain.Bot(), Steady: domain.Bot()}
}

// HeaderIn computes this header's in-state for the current iteration and
// advances Iter. entry and back are the header's incoming edges split by
// whether they come from outside the loop or are the loop's own back
// edges (see structural.LoopHeaders for back-edge identification); outOf
// looks up a predecessor block's current out-state.
//
// Iteration 0: header-in = join over entry edges (no back-edge state
// exists yet — this is the cold, first-ever entry). Iteration 1:
// header-in = join over back edges alone (the loop has now run once;
// entry-edge state has already been folded into the back-edge state by
// having flowed all the way around the loop body). Iteration >= 2:
// header-in = join(back edges, First) — steady-state back-edge traffic
// joined with the original cold-entry state, so a fact that held on first
// entry but not in steady state doesn't get dropped if the loop can still
// exit after only one pass.
func (fp *FixPointState[T]) HeaderIn(domain Domain[T], entry, back []*program.Edge, outOf func(program.BlockID) T) T {
	joinEdges := func(edges []*program.Edge) T {
		acc := domain.Bot()
		for _, e := range edges {
			acc = domain.Join(acc, domain.UpdateEdge(e, outOf(e.SourceID)))
		}
		return acc
	}

	var in T
	switch fp.Iter {
	case 0:
		in = joinEdges(entry)
		fp.First = in
	case 1:
		in = joinEdges(back)
	default:
		in = domain.Join(joinEdges(back), fp.First)
	}
	fp.Iter++
	return in
}

// Converged reports whether candidate (this iteration's in-state, once
// UpdateBlock has produced a new out-state to compare) equals the Steady
// value recorded on the previous call, per the spec's "fixpoint reached
// when the steady state equals the previous steady state". Callers should
// call this before overwriting Steady with candidate.
func (fp *FixPointState[T]) Converged(domain Domain[T], candidate T) bool {
	return fp.Iter > 1 && domain.Equals(fp.Steady, candidate)
}

// Advance records candidate as the new Steady state, for comparison on the
// next HeaderIn/Converged round.
func (fp *FixPointState[T]) Advance(candidate T) {
	fp.Steady = candidate
}

// HeaderEdges splits header's incoming edges into entry edges (from
// outside the loop) and back edges, using dom to identify back edges the
// same way structural.LoopHeaders does (sink dominates source).
func HeaderEdges(cfg *program.CFG, dominates func(sink, src program.BlockID) bool, header program.BlockID) (entry, back []*program.Edge) {
	for _, e := range cfg.EdgesTo(header) {
		if dominates(e.SinkID, e.SourceID) {
			back = append(back, e)
		} else {
			entry = append(entry, e)
		}
	}
	return entry, back
}
