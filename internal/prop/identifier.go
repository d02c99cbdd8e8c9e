package prop

import "reflect"

// Identifier is the typed handle a caller actually declares and uses.
// It carries T only at the Go type-system level; the underlying *Ident is
// shared by every Identifier[T] constructed from the same name, which is
// what lets properties.go type-assert safely without re-checking at every
// Get/Set.
type Identifier[T any] struct {
	id *Ident
}

// Declare registers a new identifier named name for values of type T. Call
// it exactly once per name, normally from a package-level var initialiser
// (see DESIGN.md for why this is preferred over ad-hoc string lookups). A
// second Declare under the same name panics.
func Declare[T any](name string) Identifier[T] {
	var zero T
	ent := declare(name, reflect.TypeOf(&zero).Elem(), false, nil)
	return Identifier[T]{id: ent}
}

// DeclareWithDefault registers a new identifier whose Get returns def when
// the property has never been set, per spec §3.1 invariant (c).
func DeclareWithDefault[T any](name string, def T) Identifier[T] {
	ent := declare(name, reflect.TypeOf(&def).Elem(), true, def)
	return Identifier[T]{id: ent}
}

// Name returns the identifier's registered textual name.
func (id Identifier[T]) Name() string { return id.id.Name() }

// DisplayName returns the identifier's human-readable name.
func (id Identifier[T]) DisplayName() string { return id.id.DisplayName() }
