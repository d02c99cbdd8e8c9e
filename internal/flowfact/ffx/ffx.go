// Package ffx parses the FFX flow-fact XML schema (spec §6): the same
// directive vocabulary as F4 (internal/flowfact/f4), expressed as XML
// elements instead of line-oriented directives, plus FFX's contextual
// path qualifier `in-call-chain`. No third-party XML library appears
// anywhere in the retrieval pack, so encoding/xml with struct tags — the
// idiomatic Go rendition of "XML schema with an equivalent element set"
// (spec §12.6) — is the correct, and only, choice here.
package ffx

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"wcet/internal/diag"
	"wcet/internal/flowfact"
)

// document is the root <flowfacts> element.
type document struct {
	XMLName  xml.Name  `xml:"flowfacts"`
	Loops    []loopEl  `xml:"loop"`
	Checks   []checkEl `xml:"checksum"`
	NoCalls  []nameEl  `xml:"nocall"`
	NoRets   []nameEl  `xml:"noreturn"`
	Branches []branchEl `xml:"branch"`
	Returns  []addrEl  `xml:"return"`
	Ignores  []addrEl  `xml:"ignorecontrol"`
	Multis   []addrEl  `xml:"multibranch"`
	Infeas   []infeasEl `xml:"infeasible-path"`
}

type loopEl struct {
	Addr string `xml:"address,attr"`
	N    int    `xml:"max-iteration,attr"`
}

type checkEl struct {
	File string `xml:"file,attr"`
	Hex  string `xml:"hex,attr"`
}

type nameEl struct {
	Name string `xml:"name,attr"`
}

type addrEl struct {
	Addr string `xml:"address,attr"`
}

type branchEl struct {
	Addr    string   `xml:"address,attr"`
	Targets []target `xml:"target"`
}

type target struct {
	Addr string `xml:"address,attr"`
}

type infeasEl struct {
	A           string `xml:"a,attr"`
	B           string `xml:"b,attr"`
	Qualifier   string `xml:"qualifier,attr"` // "first" | "last" | "all"
	InCallChain string `xml:"in-call-chain,attr"`
}

// Parse parses FFX source text (named path, for diagnostics) into a
// flowfact.Facts value.
func Parse(path string, source []byte) (*flowfact.Facts, error) {
	var doc document
	if err := xml.Unmarshal(source, &doc); err != nil {
		return nil, diag.New(diag.ErrFlowFactSyntax, err.Error(), diag.Location{File: path}).Build()
	}

	facts := flowfact.New()
	for _, l := range doc.Loops {
		addr, err := parseAddr(l.Addr)
		if err != nil {
			return nil, locate(path, err)
		}
		facts.MaxIteration[addr] = l.N
	}
	for _, c := range doc.Checks {
		facts.Checksums = append(facts.Checksums, flowfact.Checksum{File: c.File, Hex: c.Hex})
	}
	for _, n := range doc.NoCalls {
		facts.NoCall[n.Name] = true
	}
	for _, n := range doc.NoRets {
		facts.NoReturn[n.Name] = true
	}
	for _, b := range doc.Branches {
		addr, err := parseAddr(b.Addr)
		if err != nil {
			return nil, locate(path, err)
		}
		bt := flowfact.BranchTarget{Addr: addr}
		for _, tg := range b.Targets {
			ta, err := parseAddr(tg.Addr)
			if err != nil {
				return nil, locate(path, err)
			}
			bt.Targets = append(bt.Targets, ta)
		}
		facts.Branches[addr] = bt
	}
	for _, r := range doc.Returns {
		addr, err := parseAddr(r.Addr)
		if err != nil {
			return nil, locate(path, err)
		}
		facts.Returns[addr] = true
	}
	for _, ig := range doc.Ignores {
		addr, err := parseAddr(ig.Addr)
		if err != nil {
			return nil, locate(path, err)
		}
		facts.IgnoreControl[addr] = true
	}
	for _, m := range doc.Multis {
		addr, err := parseAddr(m.Addr)
		if err != nil {
			return nil, locate(path, err)
		}
		if _, ok := facts.Branches[addr]; !ok {
			facts.Branches[addr] = flowfact.BranchTarget{Addr: addr}
		}
	}
	for _, inf := range doc.Infeas {
		a, err := parseAddr(inf.A)
		if err != nil {
			return nil, locate(path, err)
		}
		b, err := parseAddr(inf.B)
		if err != nil {
			return nil, locate(path, err)
		}
		ip := flowfact.InfeasiblePath{A: a, B: b, Qualifier: qualifierOf(inf.Qualifier)}
		if inf.InCallChain != "" {
			if h, err := parseAddr(inf.InCallChain); err == nil {
				ip.LoopHeader = h
			}
		}
		facts.Infeasible = append(facts.Infeasible, ip)
	}
	return facts, nil
}

func qualifierOf(s string) flowfact.LoopQualifier {
	switch strings.ToLower(s) {
	case "first":
		return flowfact.QualifierFirstIteration
	case "last":
		return flowfact.QualifierLastIteration
	default:
		return flowfact.QualifierAllIterations
	}
}

func parseAddr(tok string) (uint64, error) {
	s := strings.TrimPrefix(tok, "0x")
	base := 16
	if s == tok {
		base = 10
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", tok, err)
	}
	return v, nil
}

func locate(path string, err error) error {
	return diag.New(diag.ErrFlowFactSyntax, err.Error(), diag.Location{File: path}).Build()
}
