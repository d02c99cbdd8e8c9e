// Package cache implements instruction- and data-cache categorisation:
// Must/May abstract cache states, persistence analysis, and the per-access
// category verdict the IPET cache-penalty terms are built from (spec
// §4.7).
package cache

import "github.com/bits-and-blooms/bitset"

// LBlock identifies one cache-line-aligned address as seen by a cache of a
// given geometry: which set it maps to, and the line-aligned tag within
// that set's address space.
type LBlock struct {
	Set uint32
	Tag uint64
}

// LineOf maps a byte address to the LBlock it falls in for a cache with
// the given line size (bytes) and set count.
func LineOf(addr uint64, lineSize, numSets uint32) LBlock {
	line := addr / uint64(lineSize)
	return LBlock{Set: uint32(line % uint64(numSets)), Tag: line}
}

// Universe assigns a stable ordinal to every distinct tag referenced
// within one cache set, the vocabulary the bitset-backed membership sets
// in spec §4.7 ("LBlocks of set s") are built from.
type Universe struct {
	set     uint32
	ordinal map[uint64]int
	tags    []uint64
}

// NewUniverse creates an empty universe for cache set set.
func NewUniverse(set uint32) *Universe {
	return &Universe{set: set, ordinal: map[uint64]int{}}
}

// Set returns the cache set this universe tracks.
func (u *Universe) Set() uint32 { return u.set }

// Ordinal returns tag's stable ordinal within this universe, assigning one
// on first use.
func (u *Universe) Ordinal(tag uint64) int {
	if i, ok := u.ordinal[tag]; ok {
		return i
	}
	i := len(u.tags)
	u.ordinal[tag] = i
	u.tags = append(u.tags, tag)
	return i
}

// Len returns the number of distinct tags registered so far.
func (u *Universe) Len() int { return len(u.tags) }

// Tags returns every registered tag, in ordinal order.
func (u *Universe) Tags() []uint64 {
	return append([]uint64(nil), u.tags...)
}

// Membership renders a per-tag predicate as a bitset over this universe's
// ordinals, the representation spec §4.7's Must/May-in-cache verdicts are
// checked against when a caller wants a single bulk test rather than one
// lookup per tag (e.g. a whole loop body's "still resident" check).
func (u *Universe) Membership(inCache func(tag uint64) bool) *bitset.BitSet {
	bs := bitset.New(uint(u.Len()))
	for i, tag := range u.tags {
		if inCache(tag) {
			bs.Set(uint(i))
		}
	}
	return bs
}
