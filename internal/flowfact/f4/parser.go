package f4

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/v2"

	"wcet/internal/diag"
	"wcet/internal/flowfact"
)

var parser = participle.MustBuild[File](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse parses F4 source text (named path, for diagnostics) into a
// flowfact.Facts value.
func Parse(path, source string) (*flowfact.Facts, error) {
	file, err := parser.ParseString(path, source)
	if err != nil {
		return nil, translateParseError(path, err)
	}

	facts := flowfact.New()
	for _, d := range file.Directives {
		if err := apply(facts, d); err != nil {
			return nil, err
		}
	}
	return facts, nil
}

func translateParseError(path string, err error) error {
	if pe, ok := err.(participle.Error); ok {
		pos := pe.Position()
		return diag.New(diag.ErrFlowFactSyntax, pe.Message(),
			diag.Location{File: path, Line: pos.Line, Column: pos.Column}).Build()
	}
	return diag.New(diag.ErrFlowFactSyntax, err.Error(), diag.Location{File: path}).Build()
}

func apply(facts *flowfact.Facts, d *Directive) error {
	switch {
	case d.Loop != nil:
		addr, err := parseAddr(d.Loop.Addr)
		if err != nil {
			return err
		}
		facts.MaxIteration[addr] = d.Loop.N
	case d.Checksum != nil:
		facts.Checksums = append(facts.Checksums, flowfact.Checksum{
			File: unquote(d.Checksum.File), Hex: d.Checksum.Hex,
		})
	case d.NoCall != nil:
		facts.NoCall[unquote(d.NoCall.Label)] = true
	case d.Branch != nil:
		addr, err := parseAddr(d.Branch.Addr)
		if err != nil {
			return err
		}
		targets := make([]uint64, 0, len(d.Branch.Targets))
		for _, t := range d.Branch.Targets {
			ta, err := parseAddr(t)
			if err != nil {
				return err
			}
			targets = append(targets, ta)
		}
		facts.Branches[addr] = flowfact.BranchTarget{Addr: addr, Targets: targets}
	case d.Return != nil:
		addr, err := parseAddr(d.Return.Addr)
		if err != nil {
			return err
		}
		facts.Returns[addr] = true
	case d.IgnoreControl != nil:
		addr, err := parseAddr(d.IgnoreControl.Addr)
		if err != nil {
			return err
		}
		facts.IgnoreControl[addr] = true
	case d.MultiBranch != nil:
		addr, err := parseAddr(d.MultiBranch.Addr)
		if err != nil {
			return err
		}
		if bt, ok := facts.Branches[addr]; ok {
			facts.Branches[addr] = bt
		} else {
			facts.Branches[addr] = flowfact.BranchTarget{Addr: addr}
		}
	case d.NoReturn != nil:
		facts.NoReturn[unquote(d.NoReturn.Label)] = true
	case d.Infeasible != nil:
		a, err := parseAddr(d.Infeasible.A)
		if err != nil {
			return err
		}
		b, err := parseAddr(d.Infeasible.B)
		if err != nil {
			return err
		}
		ip := flowfact.InfeasiblePath{A: a, B: b, Qualifier: flowfact.QualifierAllIterations}
		if d.Infeasible.Qualifier != nil {
			switch d.Infeasible.Qualifier.Kind {
			case "first":
				ip.Qualifier = flowfact.QualifierFirstIteration
			case "last":
				ip.Qualifier = flowfact.QualifierLastIteration
			}
			if h, err := parseAddr(unquote(d.Infeasible.Qualifier.Label)); err == nil {
				ip.LoopHeader = h
			}
		}
		facts.Infeasible = append(facts.Infeasible, ip)
	default:
		return diag.New(diag.ErrFlowFactSyntax, "empty directive", diag.Location{}).Build()
	}
	return nil
}

func parseAddr(tok string) (uint64, error) {
	s := strings.TrimPrefix(tok, "0x")
	base := 16
	if s == tok {
		base = 10
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, diag.New(diag.ErrFlowFactSyntax, fmt.Sprintf("invalid address %q: %v", tok, err), diag.Location{}).Build()
	}
	return v, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
