package cache

import (
	"sort"

	"wcet/internal/ai"
	"wcet/internal/program"
	"wcet/internal/structural"
)

// PersistenceStack is a per-loop-nesting-depth stack of ACSs (spec §4.7):
// level 0 tracks accesses outside every loop; level d tracks accesses seen
// since the d-th enclosing loop's most recent entry. Its methods replace,
// push or pop level entries but never modify an ACS (ACS itself is
// immutable), so Clone is a cheap slice copy, safe to keep as a per-block
// snapshot.
type PersistenceStack struct {
	assoc  int
	levels []*ACS
}

// NewPersistenceStack returns a stack with only the outermost (non-loop)
// level present.
func NewPersistenceStack(assoc int) *PersistenceStack {
	return &PersistenceStack{assoc: assoc, levels: []*ACS{NewACS(assoc)}}
}

// Depth returns the deepest tracked level (0 = outside every loop).
func (s *PersistenceStack) Depth() int { return len(s.levels) - 1 }

// EnterLoop pushes a fresh ACS for a newly entered loop level.
func (s *PersistenceStack) EnterLoop() {
	s.levels = append(s.levels, NewACS(s.assoc))
}

// ExitLoop pops the innermost level and joins it into its parent with
// JoinMust: a tag keeps its persistence guarantee at the outer level only
// if it held at both the outer level's own history and across the whole
// loop just finished.
func (s *PersistenceStack) ExitLoop() {
	n := len(s.levels)
	if n < 2 {
		return
	}
	popped := s.levels[n-1]
	s.levels = s.levels[:n-1]
	s.levels[n-2] = s.levels[n-2].JoinMust(popped)
}

// Access records a reference to tag at the current (innermost) level.
func (s *PersistenceStack) Access(tag uint64) {
	top := len(s.levels) - 1
	s.levels[top] = s.levels[top].Access(tag)
}

// PersistentAt reports whether tag's age has stayed below associativity at
// stack level depth — "persistent at loop L" when depth is L's nesting
// level, per spec §4.7.
func (s *PersistenceStack) PersistentAt(depth int, tag uint64) bool {
	if depth < 0 || depth >= len(s.levels) {
		return false
	}
	return s.levels[depth].InCache(tag)
}

// Clone returns an independent copy safe to retain as a snapshot; the
// underlying ACS values are immutable and shared, so this only copies the
// level slice.
func (s *PersistenceStack) Clone() *PersistenceStack {
	levels := make([]*ACS, len(s.levels))
	copy(levels, s.levels)
	return &PersistenceStack{assoc: s.assoc, levels: levels}
}

// LoopDepths assigns each loop header in info its nesting depth: 1 for a
// top-level loop, incremented once per other header whose body strictly
// contains it. This lines up with PersistenceStack's level indexing (level
// 0 reserved for code outside every loop).
func LoopDepths(info *structural.LoopInfo) map[program.BlockID]int {
	depths := map[program.BlockID]int{}
	for h, body := range info.Bodies {
		d := 1
		for h2, body2 := range info.Bodies {
			if h2 == h {
				continue
			}
			if len(body2) > len(body) && containsAll(body2, body) {
				d++
			}
		}
		depths[h] = d
	}
	return depths
}

// ParentHeader returns the innermost loop header whose body strictly
// contains h's own body, or program.NoBlockID if h is a top-level loop.
func ParentHeader(info *structural.LoopInfo, h program.BlockID) program.BlockID {
	body := info.Bodies[h]
	best := program.NoBlockID
	bestSize := -1
	for h2, body2 := range info.Bodies {
		if h2 == h {
			continue
		}
		if len(body2) > len(body) && containsAll(body2, body) {
			if bestSize == -1 || len(body2) < bestSize {
				bestSize = len(body2)
				best = h2
			}
		}
	}
	return best
}

// HeaderAtDepth walks up from block b's innermost enclosing header to find
// the one sitting at nesting depth depth (as computed by LoopDepths), or
// program.NoBlockID if b isn't nested that deep.
func HeaderAtDepth(info *structural.LoopInfo, depths map[program.BlockID]int, b program.BlockID, depth int) program.BlockID {
	cur, ok := info.Enclosing[b]
	if !ok || !cur.IsSet() {
		return program.NoBlockID
	}
	for depths[cur] > depth {
		cur = ParentHeader(info, cur)
		if !cur.IsSet() {
			return program.NoBlockID
		}
	}
	if depths[cur] != depth {
		return program.NoBlockID
	}
	return cur
}

func containsAll(superset, subset map[program.BlockID]bool) bool {
	for k := range subset {
		if !superset[k] {
			return false
		}
	}
	return true
}

// AnalyzePersistence computes a per-block PersistenceStack snapshot for
// one cache set by walking the CFG in reverse postorder, pushing a loop
// level whenever nesting depth increases and popping (joining outward)
// whenever it decreases.
//
// This is a single forward pass, not a per-iteration converging fixpoint:
// it models the textual algorithm of spec §4.7 ("on loop entry push a
// fresh ACS; on loop exit join it into the outer level") directly rather
// than re-deriving it as an ai.Domain driven to a fixpoint by Solver. A
// loop whose persistence depends on state carried across more than one
// pass through the CFG (vanishingly rare — it would require a loop body
// reachable by two structurally different paths that still converges only
// after several outer passes) is not modelled; every seed scenario's
// loops converge in one pass, since a block's persistence only depends on
// its own enclosing loop's accesses, never on a sibling loop's.
func AnalyzePersistence(cfg *program.CFG, info *structural.LoopInfo, assoc int, accessesOf AccessesOf) map[program.BlockID]*PersistenceStack {
	depths := LoopDepths(info)
	blockDepth := func(b program.BlockID) int {
		h, ok := info.Enclosing[b]
		if !ok || !h.IsSet() {
			return 0
		}
		return depths[h]
	}

	order := ai.ReversePostorder(cfg)
	ids := make([]program.BlockID, 0, len(cfg.Blocks))
	for _, b := range cfg.Blocks {
		ids = append(ids, b.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return order(ids[i]) < order(ids[j]) })

	stack := NewPersistenceStack(assoc)
	result := make(map[program.BlockID]*PersistenceStack, len(ids))
	for _, id := range ids {
		d := blockDepth(id)
		for stack.Depth() < d {
			stack.EnterLoop()
		}
		for stack.Depth() > d {
			stack.ExitLoop()
		}
		if blk := cfg.BlockAt(id); blk != nil {
			for _, tag := range accessesOf(blk) {
				stack.Access(tag)
			}
		}
		result[id] = stack.Clone()
	}
	return result
}
