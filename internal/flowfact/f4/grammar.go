package f4

// File is the root of an F4 source file: a sequence of directives,
// matching the spec §6 line-oriented directive set plus an `infeasible`
// directive for spec §4.9/§8 Scenario F's INFEASABLE_PATH assertions (left
// unspecified by spec §6's illustrative directive list, so this grammar
// extends it in the same keyword-plus-semicolon shape as its siblings).
type File struct {
	Directives []*Directive `@@*`
}

// Directive is one F4 statement. Exactly one alternative is populated.
type Directive struct {
	Loop          *LoopDirective          `  @@`
	Checksum      *ChecksumDirective      `| @@`
	NoCall        *NoCallDirective        `| @@`
	Branch        *BranchDirective        `| @@`
	Return        *ReturnDirective        `| @@`
	IgnoreControl *IgnoreControlDirective `| @@`
	MultiBranch   *MultiBranchDirective   `| @@`
	NoReturn      *NoReturnDirective      `| @@`
	Infeasible    *InfeasibleDirective    `| @@`
}

// LoopDirective: `loop ADDR N;` — MAX_ITERATION(ADDR) = N.
type LoopDirective struct {
	Addr string `"loop" @(Hex|Int)`
	N    int    `@Int ";"`
}

// ChecksumDirective: `checksum "file.elf" HEX;` — HEX is bare hex digits
// (no 0x prefix, e.g. "deadbeef"), which the lexer tokenises as an Ident
// since it's letters-and-digits with no leading "0x", so Ident is accepted
// here alongside Hex/Int.
type ChecksumDirective struct {
	File string `"checksum" @String`
	Hex  string `@(Hex|Int|Ident) ";"`
}

// NoCallDirective: `nocall "label";`
type NoCallDirective struct {
	Label string `"nocall" @String ";"`
}

// BranchDirective: `branch ADDR = ADDR [, ADDR]*;`
type BranchDirective struct {
	Addr    string   `"branch" @(Hex|Int) "="`
	Targets []string `@(Hex|Int) { "," @(Hex|Int) } ";"`
}

// ReturnDirective: `return ADDR;`
type ReturnDirective struct {
	Addr string `"return" @(Hex|Int) ";"`
}

// IgnoreControlDirective: `ignorecontrol ADDR;`
type IgnoreControlDirective struct {
	Addr string `"ignorecontrol" @(Hex|Int) ";"`
}

// MultiBranchDirective: `multibranch ADDR;` — marks ADDR as a computed
// branch whose target set is supplied entirely via a BranchDirective.
type MultiBranchDirective struct {
	Addr string `"multibranch" @(Hex|Int) ";"`
}

// NoReturnDirective: `noreturn "label";`
type NoReturnDirective struct {
	Label string `"noreturn" @String ";"`
}

// InfeasibleDirective: `infeasible ADDR, ADDR [in "label" (first|last|all)];`
// — extends spec §6's directive set per this package's doc comment.
type InfeasibleDirective struct {
	A         string       `"infeasible" @(Hex|Int) ","`
	B         string       `@(Hex|Int)`
	Qualifier *LoopQualify `[ @@ ] ";"`
}

// LoopQualify is the optional `in "label" (first|last|all)` suffix of an
// InfeasibleDirective.
type LoopQualify struct {
	Label string `"in" @String`
	Kind  string `@("first"|"last"|"all")`
}
