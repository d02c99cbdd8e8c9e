package cache

import (
	"wcet/internal/ai"
	"wcet/internal/program"
)

// AccessesOf returns the ordered sequence of tags (already filtered to one
// cache set) a block references — instruction-fetch tags for an
// instruction-cache analysis, or address-analysis-derived data tags for a
// data-cache analysis; spec §4.7 treats both as structurally identical.
type AccessesOf func(*program.Block) []uint64

type acsDomain struct {
	assoc      int
	must       bool
	accessesOf AccessesOf
}

func (d *acsDomain) Bot() *ACS   { return NewACS(d.assoc) }
func (d *acsDomain) Entry() *ACS { return NewACS(d.assoc) }

func (d *acsDomain) Join(a, b *ACS) *ACS {
	if d.must {
		return a.JoinMust(b)
	}
	return a.JoinMay(b)
}

func (d *acsDomain) Equals(a, b *ACS) bool { return a.Equal(b) }

func (d *acsDomain) UpdateEdge(_ *program.Edge, s *ACS) *ACS { return s }

func (d *acsDomain) UpdateBlock(b *program.Block, in *ACS) *ACS {
	if b == nil {
		return in
	}
	return in.AccessAll(d.accessesOf(b))
}

// Must runs the Must-in-cache analysis over cfg for one cache set: the
// returned ACS at each block is the in-state guaranteed true along every
// path reaching it (spec §4.7).
func Must(cfg *program.CFG, assoc int, accessesOf AccessesOf) map[program.BlockID]*ACS {
	domain := &acsDomain{assoc: assoc, must: true, accessesOf: accessesOf}
	return ai.NewSolver[*ACS](cfg, domain).WithOrder(ai.ReversePostorder(cfg)).Run()
}

// May runs the May-in-cache analysis over cfg for one cache set: the
// returned ACS at each block is the in-state possibly true along at least
// one path reaching it (spec §4.7).
func May(cfg *program.CFG, assoc int, accessesOf AccessesOf) map[program.BlockID]*ACS {
	domain := &acsDomain{assoc: assoc, must: false, accessesOf: accessesOf}
	return ai.NewSolver[*ACS](cfg, domain).WithOrder(ai.ReversePostorder(cfg)).Run()
}
