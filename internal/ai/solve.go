// Package ai implements the generic abstract-interpretation engine every
// dataflow-style analysis in this repo is built on: a worklist fixpoint
// solver parameterised by a join-semilattice domain, plus the
// first-unrolling fixpoint state internal/cache's persistence analysis
// layers on top of it (spec §4.6).
package ai

import (
	mapset "github.com/deckarep/golang-set/v2"

	"wcet/internal/program"
)

// Domain is the join-semilattice a Solve run operates over. Implementations
// supply the lattice bottom, the state flowing in at the CFG's entry block,
// a join, an equality test, and the two transfer functions the spec
// separates: UpdateEdge models what crossing an edge does to a state (most
// domains pass it through unchanged), UpdateBlock models what executing a
// block does to its in-state.
type Domain[T any] interface {
	Bot() T
	Entry() T
	Join(a, b T) T
	Equals(a, b T) bool
	UpdateEdge(e *program.Edge, s T) T
	UpdateBlock(b *program.Block, in T) T
}

// Order ranks blocks for worklist pop order; a caller passing
// ReversePostorder(cfg) (or any total order reducing re-visits) accelerates
// convergence, per spec §4.6. A nil Order leaves pop order unspecified
// (first element of the pending set's iteration).
type Order func(program.BlockID) int

// Solver runs a Domain to its fixpoint over a CFG.
type Solver[T any] struct {
	cfg    *program.CFG
	domain Domain[T]
	order  Order
}

// NewSolver builds a Solver for domain over cfg.
func NewSolver[T any](cfg *program.CFG, domain Domain[T]) *Solver[T] {
	return &Solver[T]{cfg: cfg, domain: domain}
}

// WithOrder attaches a vertex order used to pick the next pending block,
// and returns the solver for chaining.
func (s *Solver[T]) WithOrder(order Order) *Solver[T] {
	s.order = order
	return s
}

// Run executes the worklist driver to completion and returns each block's
// converged out-state. Blocks never reached from the entry keep Bot().
//
// initial: entry state at the entry block, bottom elsewhere; worklist =
// successors of entry. Iterate: pop v, compute in(v) = join over p->v of
// UpdateEdge(p->v, out(p)), then out(v) = UpdateBlock(v, in(v)); if out(v)
// changed, enqueue v's successors. Terminates when the worklist empties,
// which every finite-height domain guarantees (spec §4.6).
func (s *Solver[T]) Run() map[program.BlockID]T {
	out := make(map[program.BlockID]T, len(s.cfg.Blocks))
	for _, b := range s.cfg.Blocks {
		out[b.ID] = s.domain.Bot()
	}
	out[s.cfg.Entry] = s.domain.Entry()

	pending := mapset.NewThreadUnsafeSet[program.BlockID]()
	if entryBlk := s.cfg.BlockAt(s.cfg.Entry); entryBlk != nil {
		for _, succ := range entryBlk.Successors() {
			pending.Add(succ)
		}
	}

	for pending.Cardinality() > 0 {
		v := s.pop(pending)

		in := s.domain.Bot()
		for _, e := range s.cfg.EdgesTo(v) {
			in = s.domain.Join(in, s.domain.UpdateEdge(e, out[e.SourceID]))
		}

		blk := s.cfg.BlockAt(v)
		newOut := s.domain.UpdateBlock(blk, in)
		if prev, ok := out[v]; !ok || !s.domain.Equals(prev, newOut) {
			out[v] = newOut
			if blk != nil {
				for _, succ := range blk.Successors() {
					pending.Add(succ)
				}
			}
		}
	}

	return out
}

func (s *Solver[T]) pop(pending mapset.Set[program.BlockID]) program.BlockID {
	items := pending.ToSlice()
	best := items[0]
	if s.order != nil {
		bestRank := s.order(best)
		for _, it := range items[1:] {
			if r := s.order(it); r < bestRank {
				bestRank = r
				best = it
			}
		}
	}
	pending.Remove(best)
	return best
}

// ReversePostorder returns a rank function assigning each block reachable
// from cfg.Entry its position in reverse postorder: the order a worklike
// driver visiting blocks in this rank converges fastest under, since every
// forward edge (non-back-edge) then goes from a lower rank to a higher one.
func ReversePostorder(cfg *program.CFG) Order {
	visited := map[program.BlockID]bool{}
	var post []program.BlockID

	var visit func(program.BlockID)
	visit = func(v program.BlockID) {
		if visited[v] {
			return
		}
		visited[v] = true
		if blk := cfg.BlockAt(v); blk != nil {
			for _, w := range blk.Successors() {
				visit(w)
			}
		}
		post = append(post, v)
	}
	visit(cfg.Entry)

	rank := make(map[program.BlockID]int, len(post))
	n := len(post)
	for i, v := range post {
		rank[v] = n - 1 - i
	}
	return func(id program.BlockID) int {
		if r, ok := rank[id]; ok {
			return r
		}
		return n
	}
}
