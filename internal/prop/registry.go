// Package prop implements the property & identifier substrate: the sole
// inter-analysis communication channel. Every program entity (instruction,
// block, edge, CFG, workspace) carries a PropertyList, an unordered
// multimap from a process-wide Identifier to a typed value.
package prop

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/iancoleman/strcase"
)

// Ident is the type-erased identity behind an Identifier[T]. Two identifiers
// with the same textual name are always backed by the same *Ident object: the
// registry enforces this, so pointer equality on *Ident is identifier equality.
type Ident struct {
	name       string
	display    string
	typ        reflect.Type
	hasDefault bool
	def        any
}

// registry is the process-wide, append-only identifier table. It is
// created once at startup and never freed; after the identifiers a program
// needs have been declared (normally via package-level var initialisers)
// lookups are read-only, matching the single-threaded scheduling model of
// §5. The mutex exists only to make concurrent declaration from test
// helpers and init-time races safe, not because the steady state is
// contended.
type registry struct {
	mu  sync.Mutex
	ids map[string]*Ident
}

var global = &registry{ids: make(map[string]*Ident)}

// declare registers a new identifier under name with value type typ,
// panicking if name is already registered. Declaration is a programming
// invariant, not a runtime condition: identifiers are meant to be declared
// once, as process-wide constants (see DESIGN.md), so a duplicate name is a
// hard error surfaced as early as possible rather than a recoverable error
// value threaded through every call site.
func declare(name string, typ reflect.Type, hasDefault bool, def any) *Ident {
	global.mu.Lock()
	defer global.mu.Unlock()

	if existing, ok := global.ids[name]; ok {
		panic(fmt.Sprintf("prop: identifier %q already registered with type %s (redeclared as %s)",
			name, existing.typ, typ))
	}

	entry := &Ident{
		name:       name,
		display:    strcase.ToDelimited(name, ' '),
		typ:        typ,
		hasDefault: hasDefault,
		def:        def,
	}
	global.ids[name] = entry
	return entry
}

// Lookup returns the identifier registered under name, if any. Used by the
// flow-fact and configuration loaders, which reference identifiers by
// their textual name rather than by a compiled-in Go symbol.
func Lookup(name string) (*Ident, bool) {
	global.mu.Lock()
	defer global.mu.Unlock()
	e, ok := global.ids[name]
	return e, ok
}

// Name returns the identifier's registered textual name.
func (i *Ident) Name() string { return i.name }

// DisplayName returns a human-readable rendering of the name (space
// delimited) for use in diagnostics and --log proc output.
func (i *Ident) DisplayName() string { return i.display }

func (i *Ident) String() string { return i.name }
