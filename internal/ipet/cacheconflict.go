package ipet

import (
	"wcet/internal/diag"
	"wcet/internal/ilp"
	"wcet/internal/program"
)

// ConflictSet is a set of blocks that map to the same cache line and may
// interfere with one another (spec §9 Open Question #1).
type ConflictSet struct {
	Blocks        []program.BlockID
	Associativity int
}

// CCGConstraintBuilder adds, for every conflict set, a constraint bounding
// the sum of execution counts of its member blocks' cache-miss indicator
// by the set's associativity (a coarse but sound over-approximation of
// "at most Associativity of these can stay resident"). It returns
// diag.ErrCacheConflictPreVirtualisation if cfg still contains an
// un-inlined call (a Synth block with a resolved callee), since
// virtualisation is what gives every access a fixed address.
func CCGConstraintBuilder(cfg *program.CFG, sets []ConflictSet, sys *System, engine ilp.Engine) error {
	if !isVirtualised(cfg) {
		return diag.New(diag.ErrCacheConflictPreVirtualisation,
			"CCGConstraintBuilder requires calls to be virtualised before cache-conflict-graph constraints can be built",
			diag.Location{}).Build()
	}

	for _, set := range sets {
		if set.Associativity <= 0 {
			continue
		}
		c := engine.NewConstraint(ilp.LE, float64(set.Associativity))
		for _, id := range set.Blocks {
			bv, ok := sys.blockVar[id]
			if !ok {
				continue
			}
			engine.AddTerm(c, 1, bv)
		}
	}
	return nil
}

// isVirtualised reports whether cfg contains no remaining Synth block with
// a resolved callee (CalleeCFG >= 0), i.e. whether Virtualise has already
// inlined every resolved call reachable from it.
func isVirtualised(cfg *program.CFG) bool {
	for _, b := range cfg.Blocks {
		if b.Kind == program.BlockSynth && b.CalleeCFG >= 0 {
			return false
		}
	}
	return true
}
