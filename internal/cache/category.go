package cache

import (
	"wcet/internal/program"
	"wcet/internal/structural"
)

// Category is one cache-access classification, per spec §4.7.
type Category int

const (
	AlwaysHit Category = iota
	FirstMiss
	AlwaysMiss
	NotClassified
)

func (c Category) String() string {
	switch c {
	case AlwaysHit:
		return "ALWAYS_HIT"
	case FirstMiss:
		return "FIRST_MISS"
	case AlwaysMiss:
		return "ALWAYS_MISS"
	default:
		return "NOT_CLASSIFIED"
	}
}

// Verdict is one access's classification, with Header set for FirstMiss
// (the loop whose first iteration this access is guaranteed to miss on,
// and hit on every iteration after).
type Verdict struct {
	Category Category
	Header   program.BlockID
}

// Classify implements spec §4.7's category decision for one access to tag
// at block b: Must-in-cache wins outright; else the innermost enclosing
// loop the access is persistent at wins as FirstMiss; else not-in-May is a
// guaranteed miss; otherwise the access can't be classified and the ILP
// must charge it as a miss.
func Classify(info *structural.LoopInfo, depths map[program.BlockID]int, must, may *ACS, stack *PersistenceStack, b program.BlockID, tag uint64) Verdict {
	if must.InCache(tag) {
		return Verdict{Category: AlwaysHit}
	}

	for d := stack.Depth(); d >= 1; d-- {
		if !stack.PersistentAt(d, tag) {
			continue
		}
		if h := HeaderAtDepth(info, depths, b, d); h.IsSet() {
			return Verdict{Category: FirstMiss, Header: h}
		}
	}

	if !may.InCache(tag) {
		return Verdict{Category: AlwaysMiss}
	}
	return Verdict{Category: NotClassified}
}
