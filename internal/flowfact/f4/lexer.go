// Package f4 parses the F4 flow-fact directive language (spec §6): a
// line-oriented format of `keyword ARGS;` directives — loop bounds,
// checksums, no-call/no-return markers, resolved branch targets and
// infeasible-path assertions. It is grounded on the teacher's own grammar
// package (grammar/lexer.go, grammar/grammar.go, grammar/parser.go),
// reusing the same participle stateful-lexer-plus-struct-tag-grammar
// idiom for a much smaller directive language instead of a full
// programming-language grammar.
package f4

import "github.com/alecthomas/participle/v2/lexer"

// Lexer tokenises F4 source: identifiers/keywords, hex or decimal
// addresses, quoted strings (file paths and symbol labels) and the
// punctuation the grammar needs, exactly the token-kind split the
// teacher's KansoLexer uses (Ident / Integer / Punctuation / Whitespace),
// plus a String rule F4's quoted labels need that Kanso's grammar never
// does.
var Lexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Comment", `#[^\n]*`, nil},
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Hex", `0x[0-9a-fA-F]+`, nil},
		{"Int", `[0-9]+`, nil},
		{"String", `"(\\.|[^"])*"`, nil},
		{"Punctuation", `[;,=]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})
