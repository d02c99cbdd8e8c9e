package cache

// ACS is an abstract cache state for a single cache set: a partial age
// function from tag to age. A tag with no entry is treated as absent
// (age == assoc), matching spec §4.7's "⊥ treated as A". Every method
// returns a new ACS; none mutate the receiver, so a caller can freely
// share an ACS across branches without aliasing bugs.
type ACS struct {
	assoc int
	ages  map[uint64]int
}

// NewACS returns the empty ACS (every tag absent) for a cache with the
// given associativity.
func NewACS(assoc int) *ACS {
	return &ACS{assoc: assoc, ages: map[uint64]int{}}
}

// Age returns tag's age, or assoc if tag has no tracked entry.
func (a *ACS) Age(tag uint64) int {
	if v, ok := a.ages[tag]; ok {
		return v
	}
	return a.assoc
}

// InCache reports whether tag's age is below associativity.
func (a *ACS) InCache(tag uint64) bool { return a.Age(tag) < a.assoc }

// Access returns the ACS after a reference to tag: tag's age becomes 0;
// every other tracked tag younger than tag's previous age ages by one
// (blocks already older, including absent ones, are untouched), per spec
// §4.7's Must/May update rule.
func (a *ACS) Access(tag uint64) *ACS {
	old := a.Age(tag)
	next := &ACS{assoc: a.assoc, ages: make(map[uint64]int, len(a.ages)+1)}
	for t, age := range a.ages {
		if t == tag {
			continue
		}
		if age < old {
			age++
		}
		if age < a.assoc {
			next.ages[t] = age
		}
	}
	next.ages[tag] = 0
	return next
}

// AccessAll applies Access for every tag in tags in order, modelling an
// unknown-within-bounds range access that conservatively ages every LBlock
// the access could alias to (spec §4.7).
func (a *ACS) AccessAll(tags []uint64) *ACS {
	cur := a
	for _, t := range tags {
		cur = cur.Access(t)
	}
	return cur
}

// JoinMust combines two predecessor states for the Must analysis: a tag is
// only guaranteed in cache along both paths, at the worse (larger) of the
// two ages (per spec §4.7, "join = per-block maximum age").
func (a *ACS) JoinMust(b *ACS) *ACS {
	return &ACS{assoc: a.assoc, ages: joinAges(a.ages, b.ages, a.assoc, maxAge)}
}

// JoinMay combines two predecessor states for the May analysis: a tag may
// be in cache if either path has it, at the better (smaller) of the two
// ages (per spec §4.7, "join = per-block minimum age").
func (a *ACS) JoinMay(b *ACS) *ACS {
	return &ACS{assoc: a.assoc, ages: joinAges(a.ages, b.ages, a.assoc, minAge)}
}

// Equal reports whether a and b track the same tags at the same ages.
func (a *ACS) Equal(b *ACS) bool {
	if len(a.ages) != len(b.ages) {
		return false
	}
	for t, v := range a.ages {
		if bv, ok := b.ages[t]; !ok || bv != v {
			return false
		}
	}
	return true
}

func joinAges(a, b map[uint64]int, assoc int, pick func(x, y int) int) map[uint64]int {
	out := map[uint64]int{}
	for t := range a {
		age := pick(a[t], valueOrAssoc(b, t, assoc))
		if age < assoc {
			out[t] = age
		}
	}
	for t := range b {
		if _, done := out[t]; done {
			continue
		}
		if _, inA := a[t]; inA {
			continue
		}
		age := pick(valueOrAssoc(a, t, assoc), b[t])
		if age < assoc {
			out[t] = age
		}
	}
	return out
}

func valueOrAssoc(m map[uint64]int, t uint64, assoc int) int {
	if v, ok := m[t]; ok {
		return v
	}
	return assoc
}

func maxAge(x, y int) int {
	if x > y {
		return x
	}
	return y
}

func minAge(x, y int) int {
	if x < y {
		return x
	}
	return y
}
