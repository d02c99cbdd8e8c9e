// Package main implements the wcet-cli entry point (spec §6 "CLI surface
// (illustrative, out of core)"): load a binary, resolve a task entry
// point, read flow facts and a hardware description, and drive
// wcet/internal/workspace end to end to a solved WCET, in the same flag-
// parsing / colorized-banner idiom as the teacher's cmd/kanso-cli.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"wcet/internal/diag"
	"wcet/internal/flowfact"
	"wcet/internal/flowfact/f4"
	"wcet/internal/flowfact/ffx"
	"wcet/internal/ilp/refsolver"
	"wcet/internal/loader/elfloader"
	"wcet/internal/platform"
	"wcet/internal/program"
	"wcet/internal/timing"
	"wcet/internal/wlog"
	"wcet/internal/workspace"
)

// stringList collects a repeatable flag (-f FLOWFACTS, -p KEY=VALUE) into
// an ordered slice, the same way a single flag.Value accumulates repeated
// occurrences.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	var (
		flowFactFiles stringList
		scriptParams  stringList
		logSpec       = flag.String("log", "", "comma-separated trace channels: proc,deps,cfg,bb,inst")
		platformPath  = flag.String("platform", "", "hardware description YAML (cache geometry, pipeline)")
		virtualise    = flag.Bool("virtualise", false, "inline calls before analysis (spec §4.4 virtualisation)")
		usePipeline   = flag.Bool("pipeline", false, "use the pipeline execution graph timing backend instead of Trivial")
		cacheAssoc    = flag.Int("cache-assoc", 0, "instruction cache associativity (0 disables cache categorisation)")
		cacheLine     = flag.Int("cache-line", 32, "instruction cache line size in bytes")
		cacheSets     = flag.Int("cache-sets", 64, "instruction cache set count")
		missPenalty   = flag.Uint64("miss-penalty", 10, "cache miss penalty in cycles")
	)
	flag.Var(&flowFactFiles, "f", "flow-fact file (F4 or FFX, repeatable)")
	flag.Var(&scriptParams, "p", "script parameter KEY=VALUE (repeatable)")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wcet-cli BINARY [ENTRY] [-f FLOWFACTS]... [-platform FILE] [-log CHANNELS]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	binaryPath := flag.Arg(0)
	var entryArg string
	if flag.NArg() >= 2 {
		entryArg = flag.Arg(1)
	}

	params := map[string]string{}
	for _, kv := range scriptParams {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			fmt.Fprintf(os.Stderr, "error: -p %q is not KEY=VALUE\n", kv)
			os.Exit(1)
		}
		params[k] = v
	}

	channels, err := wlog.ParseChannels(*logSpec)
	if err != nil {
		color.Red("error: %s", err)
		os.Exit(1)
	}
	log := wlog.New(os.Stderr, channels)

	proc, err := elfloader.Load(binaryPath, illustrativeDecoder{})
	if err != nil {
		printDiag(err)
		os.Exit(1)
	}

	entryAddr, err := resolveEntry(proc, entryArg)
	if err != nil {
		printDiag(err)
		os.Exit(1)
	}

	facts, err := loadFlowFacts(flowFactFiles)
	if err != nil {
		printDiag(err)
		os.Exit(1)
	}

	platformDesc, err := loadPlatform(*platformPath)
	if err != nil {
		printDiag(err)
		os.Exit(1)
	}

	ws := workspace.New(proc, platformDesc, facts, log)
	if err := ws.Build([]uint64{entryAddr}, program.BuildOptions{}); err != nil {
		printDiag(err)
		os.Exit(1)
	}

	opts := workspace.Options{
		Virtualise:       *virtualise,
		CostModel:        platformCostModel{platformDesc},
		UsePipeline:      *usePipeline,
		CacheAssoc:       *cacheAssoc,
		CacheLineSize:    uint32(*cacheLine),
		CacheSets:        uint32(*cacheSets),
		CacheMissPenalty: *missPenalty,
	}
	if platformDesc.Pipeline != nil {
		opts.PipelineDesc = pipelineDescriptionOf(platformDesc.Pipeline)
	}

	wcet, err := ws.AnalyzeWCET(opts, refsolver.New())
	if err != nil {
		printDiag(err)
		os.Exit(1)
	}

	log.Successf("WCET(%s) = %d cycles", binaryPath, wcet)
	fmt.Printf("WCET = %d\n", wcet)
}

// resolveEntry accepts a symbol name, a 0x-prefixed hex address, or a bare
// decimal address; an empty arg falls back to the ELF header's entry
// point, matching spec §6's "[ENTRY]" optional positional.
func resolveEntry(proc *elfloader.Process, arg string) (uint64, error) {
	if arg == "" {
		return proc.Entry(), nil
	}
	if addr, ok := proc.SymbolAddress(arg); ok {
		return addr, nil
	}
	if addr, err := strconv.ParseUint(strings.TrimPrefix(arg, "0x"), 16, 64); err == nil && strings.HasPrefix(arg, "0x") {
		return addr, nil
	}
	if addr, err := strconv.ParseUint(arg, 10, 64); err == nil {
		return addr, nil
	}
	return 0, diag.New(diag.ErrEntrySymbolNotFound,
		fmt.Sprintf("entry %q is not a known symbol or a parseable address", arg),
		diag.Location{}).Build()
}

// loadFlowFacts reads and merges every -f file, dispatching to the F4 or
// FFX parser by file extension (spec §6).
func loadFlowFacts(paths []string) (*flowfact.Facts, error) {
	merged := flowfact.New()
	for _, path := range paths {
		source, err := os.ReadFile(path)
		if err != nil {
			return nil, diag.New(diag.ErrFlowFactSyntax,
				fmt.Sprintf("failed to read flow-fact file %q: %v", path, err),
				diag.Location{File: path}).Build()
		}
		var parsed *flowfact.Facts
		if strings.EqualFold(filepath.Ext(path), ".ffx") || strings.EqualFold(filepath.Ext(path), ".xml") {
			parsed, err = ffx.Parse(path, source)
		} else {
			parsed, err = f4.Parse(path, string(source))
		}
		if err != nil {
			return nil, err
		}
		merged.Merge(parsed)
	}
	return merged, nil
}

// loadPlatform reads the hardware description, or returns a zero-value
// Description (Trivial timing with cost 1 per instruction, no caches) when
// no -platform flag was given.
func loadPlatform(path string) (*platform.Description, error) {
	if path == "" {
		return &platform.Description{}, nil
	}
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.New(diag.ErrUnsupportedCacheGeometry,
			fmt.Sprintf("failed to read hardware description %q: %v", path, err),
			diag.Location{File: path}).Build()
	}
	return platform.Load(path, source)
}

// platformCostModel adapts a platform.Description's per-kind instruction
// cost table to timing.CostModel, defaulting to one cycle for any kind the
// description does not price.
type platformCostModel struct {
	desc *platform.Description
}

func (m platformCostModel) Cost(i program.Instruction) uint64 {
	if cost, ok := m.desc.CostOf(kindName(i.Kind)); ok {
		return cost
	}
	return 1
}

func kindName(k program.Kind) string {
	switch {
	case k.Has(program.KindCall):
		return "call"
	case k.Has(program.KindReturn):
		return "return"
	case k.Has(program.KindLoad):
		return "load"
	case k.Has(program.KindStore):
		return "store"
	case k.Has(program.KindMul):
		return "mul"
	case k.Has(program.KindDiv):
		return "div"
	case k.Has(program.KindFloat):
		return "float"
	case k.Has(program.KindCond):
		return "cond"
	default:
		return "alu"
	}
}

// pipelineDescriptionOf adapts a platform.Pipeline's arbitrary named stage
// list to the fixed five-stage vocabulary internal/timing's execution-graph
// builder expects, by position: stage 0 is Fetch, stage 1 Decode, and so
// on. Stages beyond the fifth are dropped; a shorter list is used as given,
// and an empty list becomes all five stages at zero latency. Functional
// unit contention is resolved by instruction kind name (platform.go's own
// "kind" vocabulary), matching platformCostModel's kindName mapping.
func pipelineDescriptionOf(p *platform.Pipeline) timing.PipelineDescription {
	order := []timing.StageKind{timing.StageFetch, timing.StageDecode, timing.StageExecute, timing.StageMemory, timing.StageWriteback}
	desc := timing.PipelineDescription{Latency: map[timing.StageKind]uint64{}}
	for i, s := range p.Stages {
		if i >= len(order) {
			break
		}
		desc.Stages = append(desc.Stages, order[i])
		desc.Latency[order[i]] = s.Latency
	}
	if len(desc.Stages) == 0 {
		desc.Stages = order
	}
	units := map[string]string{}
	for _, rule := range p.FunctionalUnits {
		units[rule.Kind] = rule.Unit
	}
	if len(units) > 0 {
		desc.FunctionalUnit = func(i program.Instruction) string {
			return units[kindName(i.Kind)]
		}
	}
	return desc
}

func printDiag(err error) {
	if d, ok := err.(*diag.Diagnostic); ok {
		r := diag.NewReporter(d.Location.File, "")
		fmt.Fprint(os.Stderr, r.FormatDiagnostic(d))
		return
	}
	color.Red("error: %s", err)
}
