// Package diag implements the single error channel the analysis pipeline
// reports failures through: a located diagnostic (configuration, input,
// analysis or invariant) rendered with Rust-style source context, plus a
// stack-carrying wrapper for internal invariant violations.
package diag

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Level is the severity of a diagnostic.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
	Help    Level = "help"
)

// Location pinpoints a diagnostic either in a text file (flow-fact source)
// or in the binary's address space (CFG/block/edge level failures). Exactly
// one of (File, Line) or Address is normally populated; both may be present
// when a flow-fact directive names an address.
type Location struct {
	File    string
	Line    int
	Column  int
	Address uint64 // 0 means "no address"
	HasAddr bool
}

// String renders the location the way the teacher renders source positions.
func (l Location) String() string {
	switch {
	case l.File != "" && l.HasAddr:
		return fmt.Sprintf("%s:%d:%d (addr 0x%x)", l.File, l.Line, l.Column, l.Address)
	case l.File != "":
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	case l.HasAddr:
		return fmt.Sprintf("0x%x", l.Address)
	default:
		return "<unknown location>"
	}
}

// Suggestion is a proposed fix attached to a Diagnostic.
type Suggestion struct {
	Message     string
	Replacement string
	Location    Location
}

// Diagnostic is a single, located failure or note produced by any stage of
// the pipeline. It is the sole vehicle failures travel through: no stage
// attempts partial recovery once one of these is raised at Error level.
type Diagnostic struct {
	Level       Level
	Code        string
	Message     string
	Location    Location
	Suggestions []Suggestion
	Notes       []string
	Help        string
}

// Error implements the error interface so a Diagnostic can be returned
// directly from any function in the pipeline.
func (d *Diagnostic) Error() string {
	if d.Code != "" {
		return fmt.Sprintf("%s[%s]: %s (%s)", d.Level, d.Code, d.Message, d.Location)
	}
	return fmt.Sprintf("%s: %s (%s)", d.Level, d.Message, d.Location)
}

// Builder provides the same fluent construction style the teacher's
// SemanticErrorBuilder used, generalised from semantic errors to any
// pipeline diagnostic.
type Builder struct {
	d Diagnostic
}

// New starts building an Error-level diagnostic.
func New(code, message string, loc Location) *Builder {
	return &Builder{d: Diagnostic{Level: Error, Code: code, Message: message, Location: loc}}
}

// NewWarning starts building a Warning-level diagnostic.
func NewWarning(code, message string, loc Location) *Builder {
	return &Builder{d: Diagnostic{Level: Warning, Code: code, Message: message, Location: loc}}
}

// WithSuggestion appends a suggested fix with no replacement text.
func (b *Builder) WithSuggestion(message string) *Builder {
	b.d.Suggestions = append(b.d.Suggestions, Suggestion{Message: message})
	return b
}

// WithReplacement appends a suggested fix carrying replacement text.
func (b *Builder) WithReplacement(message, replacement string, loc Location) *Builder {
	b.d.Suggestions = append(b.d.Suggestions, Suggestion{Message: message, Replacement: replacement, Location: loc})
	return b
}

// WithNote appends an explanatory note.
func (b *Builder) WithNote(note string) *Builder {
	b.d.Notes = append(b.d.Notes, note)
	return b
}

// WithHelp sets the trailing help text.
func (b *Builder) WithHelp(help string) *Builder {
	b.d.Help = help
	return b
}

// Build returns the completed diagnostic.
func (b *Builder) Build() *Diagnostic {
	d := b.d
	return &d
}

// Invariant wraps an internal invariant violation (spec category "Invariant
// violation") with a stack trace via github.com/pkg/errors, so a debug
// build can print %+v and locate the offending call site. These are never
// recoverable: callers are expected to abort the pipeline.
func Invariant(code, message string, loc Location) error {
	base := New(code, message, loc).Build()
	return pkgerrors.WithStack(base)
}

// IsInvariant reports whether err (or a wrapped cause) is an invariant-class
// Diagnostic.
func IsInvariant(err error) bool {
	var d *Diagnostic
	if !errors.As(err, &d) {
		return false
	}
	return CategoryOf(d.Code) == CategoryInvariant
}
