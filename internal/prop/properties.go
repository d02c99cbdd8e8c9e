package prop

import (
	deadlock "github.com/sasha-s/go-deadlock"
)

// Releasable is implemented by property values that own heap resources
// (file handles, solver sessions, cache tables) which must be freed when
// the property is removed or the owning entity is destroyed.
type Releasable interface {
	Release()
}

// PropertyList is the unordered multimap from Identifier to typed value
// attached to every program entity (instruction, block, edge, CFG,
// workspace). It is the sole channel analyses use to communicate: a
// processor that provides a feature installs properties here, and later
// processors read them back.
//
// The mutex is a deadlock-detecting one rather than a plain sync.RWMutex.
// No PropertyList is written from more than one goroutine today: the
// per-cache-set worker pool in internal/workspace (§5 "Internal
// parallelism") has its workers fill only a shared result map, and the
// resulting properties are installed afterwards on the calling goroutine.
// The deadlock detector costs nothing in that single-threaded path while
// catching any future accidental lock-order inversion instead of hanging
// silently.
type PropertyList struct {
	mu     deadlock.RWMutex
	values map[*Ident][]any
}

// NewPropertyList creates an empty property list.
func NewPropertyList() *PropertyList {
	return &PropertyList{values: make(map[*Ident][]any)}
}

// Set replaces any existing properties under id with the single value v,
// per spec §4.1 "set(id, value) — replace any prior property with id".
func Set[T any](p *PropertyList, id Identifier[T], v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	releaseLocked(p, id.id)
	p.values[id.id] = []any{v}
}

// Add appends a second (or further) property under id without disturbing
// earlier ones, per spec §4.1 "add(id, value) — append a second property
// with same id".
func Add[T any](p *PropertyList, id Identifier[T], v T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[id.id] = append(p.values[id.id], v)
}

// Get returns the first property installed under id, or id's declared
// default (and ok=false) when absent, per invariant (c) in spec §3.1.
func Get[T any](p *PropertyList, id Identifier[T]) (value T, ok bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if vs, found := p.values[id.id]; found && len(vs) > 0 {
		return vs[0].(T), true
	}
	if id.id.hasDefault {
		return id.id.def.(T), false
	}
	var zero T
	return zero, false
}

// GetOrDefault is Get without the presence flag, for call sites that only
// ever care about the effective value.
func GetOrDefault[T any](p *PropertyList, id Identifier[T]) T {
	v, _ := Get(p, id)
	return v
}

// All returns every property installed under id, in insertion order.
func All[T any](p *PropertyList, id Identifier[T]) []T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	vs := p.values[id.id]
	out := make([]T, len(vs))
	for i, v := range vs {
		out[i] = v.(T)
	}
	return out
}

// Has reports whether id has at least one installed property.
func Has[T any](p *PropertyList, id Identifier[T]) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values[id.id]) > 0
}

// Remove deletes every property installed under id, releasing any
// Releasable values first.
func Remove[T any](p *PropertyList, id Identifier[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	releaseLocked(p, id.id)
	delete(p.values, id.id)
}

// releaseLocked calls Release on every Releasable value currently stored
// under ident. Caller must hold p.mu for writing.
func releaseLocked(p *PropertyList, ident *Ident) {
	for _, v := range p.values[ident] {
		if r, ok := v.(Releasable); ok {
			r.Release()
		}
	}
}

// Close destroys the property list, releasing every Releasable value it
// holds. Called when the owning entity (instruction/block/edge/CFG/
// workspace) is destroyed, per the ownership summary in spec §3.10.
func (p *PropertyList) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ident := range p.values {
		releaseLocked(p, ident)
	}
	p.values = make(map[*Ident][]any)
}
