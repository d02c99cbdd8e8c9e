// Package workspace is the top-level root of one WCET analysis run (spec
// §5 "the workspace is the top-level root"): it owns the CFG being
// analyzed, the loader-supplied Process, the platform description, the
// analysis scheduler, and every installed property, and exposes the
// single entry point that drives CFG transforms, structural analysis,
// timing, cache categorisation and IPET construction through to a solved
// WCET.
package workspace

import (
	"fmt"

	"github.com/segmentio/ksuid"

	"wcet/internal/cache"
	"wcet/internal/diag"
	"wcet/internal/flowfact"
	"wcet/internal/ilp"
	"wcet/internal/ipet"
	"wcet/internal/platform"
	"wcet/internal/proc"
	"wcet/internal/program"
	"wcet/internal/prop"
	"wcet/internal/structural"
	"wcet/internal/timing"
	"wcet/internal/transform"
	"wcet/internal/wlog"

	deadlock "github.com/sasha-s/go-deadlock"
	"golang.org/x/sync/errgroup"
)

// Feature names the scheduler stages a Workspace's own analysis run is
// built from (spec §4.2 "processor/feature" framework), distinct from
// any caller-registered custom processor.
const (
	FeatureLoopInfo       proc.Feature = "loop.info"
	FeatureVirtualised    proc.Feature = "virtualised"
	FeatureTiming         proc.Feature = "timing"
	FeatureCacheCategories proc.Feature = "cache.categories"
)

// WCETProp is the persisted WCET output (spec §6 "WCET (integer cycles)
// — property on workspace").
var WCETProp = prop.Declare[uint64]("WCET")

// TimeProp / TimeDeltaProp / CountProp / VarProp / LoopHeaderProp /
// EnclosingLoopHeaderProp mirror spec §6's remaining persisted-output
// vocabulary as properties installed on the entities they describe
// (block, edge), rather than kept only as Go-level return values, so any
// later pass can read them back the same way it would any other
// analysis's output.
var (
	TimeProp               = prop.Declare[uint64]("TIME")
	TimeDeltaProp          = prop.Declare[uint64]("TIME_DELTA")
	CountProp              = prop.Declare[uint64]("COUNT")
	VarProp                = prop.Declare[ilp.Var]("VAR")
	CategoryProp           = prop.Declare[cache.Category]("CATEGORY")
	CategoryHeaderProp     = prop.Declare[program.BlockID]("CATEGORY_HEADER")
	LoopHeaderProp         = prop.Declare[bool]("LOOP_HEADER")
	EnclosingLoopHeaderProp = prop.Declare[program.BlockID]("ENCLOSING_LOOP_HEADER")
)

// Options configures one AnalyzeWCET run.
type Options struct {
	Virtualise   bool
	VirtualiseOpts transform.VirtualiseOptions
	CostModel    timing.CostModel
	UsePipeline  bool
	PipelineDesc timing.PipelineDescription
	CacheAssoc   int // 0 disables cache categorisation
	CacheLineSize uint32
	CacheSets    uint32
	CacheMissPenalty uint64
}

// Workspace is one analysis run's shared context, the C type instantiating
// proc.Scheduler[C] and every Processor[C] this package registers.
type Workspace struct {
	RunID    ksuid.KSUID
	Process  program.Process
	Platform *platform.Description
	Facts    *flowfact.Facts
	Log      *wlog.Logger
	Props    *prop.PropertyList

	Collection *program.CFGCollection
	CFG        *program.CFG

	Dom      *structural.DomInfo
	LoopInfo *structural.LoopInfo
	Times    *timing.Times
	Verdicts map[program.BlockID]cache.Verdict
	System   *ipet.System

	virtOldToNew map[program.BlockID]program.BlockID

	scheduler *proc.Scheduler[*Workspace]
	mu        deadlock.Mutex
}

// New creates a Workspace over an already-loaded Process, ready to Build
// and AnalyzeWCET. log may be nil (wlog.Discard() is used).
func New(p program.Process, platformDesc *platform.Description, facts *flowfact.Facts, log *wlog.Logger) *Workspace {
	if log == nil {
		log = wlog.Discard()
	}
	if facts == nil {
		facts = flowfact.New()
	}
	w := &Workspace{
		RunID:    ksuid.New(),
		Process:  p,
		Platform: platformDesc,
		Facts:    facts,
		Log:      log,
		Props:    prop.NewPropertyList(),
	}
	w.scheduler = proc.NewScheduler[*Workspace](log)
	w.registerProcessors()
	return w
}

// Build runs CFG construction from entryAddrs (spec §4.3), populating
// w.Collection and w.CFG (the task's own entry CFG).
func (w *Workspace) Build(entryAddrs []uint64, opts program.BuildOptions) error {
	coll, err := program.Build(w.Process, entryAddrs, opts, w.Log)
	if err != nil {
		return err
	}
	w.Collection = coll
	w.CFG = coll.Entry()
	return nil
}

// AnalyzeWCET drives the whole pipeline (virtualisation, structural
// analysis, timing, cache categorisation, IPET construction) and returns
// the solved WCET in cycles, installing it on w.Props per spec §6.
func (w *Workspace) AnalyzeWCET(opts Options, engine ilp.Engine) (uint64, error) {
	if w.CFG == nil {
		return 0, diag.Invariant(diag.ErrCFGReachabilityBroken,
			"AnalyzeWCET: workspace has no CFG; call Build first", diag.Location{})
	}

	if opts.Virtualise {
		if err := w.scheduler.Ensure(w, FeatureVirtualised); err != nil {
			return 0, err
		}
	}
	if err := w.scheduler.Ensure(w, FeatureLoopInfo); err != nil {
		return 0, err
	}

	model := opts.CostModel
	if model == nil {
		model = timing.CostFunc(func(program.Instruction) uint64 { return 1 })
	}
	if opts.UsePipeline {
		w.Times = timing.Pipeline(w.CFG, opts.PipelineDesc)
	} else {
		w.Times = timing.Trivial(w.CFG, model)
	}
	for id, t := range w.Times.Block {
		prop.Set(w.blockProps(id), TimeProp, t)
	}

	var cacheAccesses []ipet.CacheAccess
	if opts.CacheAssoc > 0 {
		verdicts, err := w.categoriseCache(opts)
		if err != nil {
			return 0, err
		}
		w.Verdicts = verdicts
		for id, v := range verdicts {
			prop.Set(w.blockProps(id), CategoryProp, v.Category)
			prop.Set(w.blockProps(id), CategoryHeaderProp, v.Header)
			cacheAccesses = append(cacheAccesses, ipet.CacheAccess{
				Block: id, Category: ipet.CacheCategory(v.Category), Header: v.Header,
				Penalty: opts.CacheMissPenalty,
			})
		}
	}

	ipetOpts := ipet.Options{
		NoCallBlocks:    w.resolveNoCallBlocks(),
		InfeasiblePaths: w.resolveInfeasiblePaths(),
		CacheAccesses:   cacheAccesses,
	}

	sys, err := ipet.Build(w.CFG, w.LoopInfo, w.Times, w.Facts, ipetOpts, engine)
	if err != nil {
		return 0, err
	}
	w.System = sys

	for id := range w.CFG.Blocks {
		bid := w.CFG.Blocks[id].ID
		if v, ok := sys.BlockVar(bid); ok {
			prop.Set(w.blockProps(bid), VarProp, v)
			prop.Set(w.blockProps(bid), CountProp, sys.Count(bid))
		}
	}
	for _, e := range w.CFG.Edges {
		if v, ok := sys.EdgeVar(e.SourceID, e.SinkID); ok {
			prop.Set(e.Props, VarProp, v)
			prop.Set(e.Props, CountProp, sys.EdgeCount(e.SourceID, e.SinkID))
		}
		if d := w.Times.EdgeDelta(e.SourceID, e.SinkID); d != 0 {
			prop.Set(e.Props, TimeDeltaProp, d)
		}
	}

	wcet, err := sys.Solve()
	if err != nil {
		return 0, err
	}
	prop.Set(w.Props, WCETProp, wcet)
	return wcet, nil
}

func (w *Workspace) blockProps(id program.BlockID) *prop.PropertyList {
	return w.CFG.BlockAt(id).Props
}

// resolveNoCallBlocks maps NO_CALL flow facts (named by callee symbol) to
// the block ids of that callee's body, once virtualisation has inlined it
// into w.CFG. Before virtualisation, CFG construction's own
// program.BuildOptions.NoCall already prevented the callee from being
// traversed at all, so there is nothing to zero here (spec §4.3 step 5
// already excludes it structurally).
func (w *Workspace) resolveNoCallBlocks() map[program.BlockID]bool {
	out := map[program.BlockID]bool{}
	if w.virtOldToNew == nil || w.Collection == nil {
		return out
	}
	for name := range w.Facts.NoCall {
		addr, ok := w.Process.SymbolAddress(name)
		if !ok {
			continue
		}
		for _, cfg := range w.Collection.CFGs {
			if cfg.FirstInstruction != addr {
				continue
			}
			for _, b := range cfg.Blocks {
				if newID, ok := w.virtOldToNew[b.ID]; ok {
					out[newID] = true
				}
			}
		}
	}
	return out
}

// resolveInfeasiblePaths maps address-keyed InfeasiblePath facts to the
// BlockIDs of the (possibly virtualised) w.CFG blocks starting at those
// addresses.
func (w *Workspace) resolveInfeasiblePaths() []ipet.ResolvedInfeasiblePath {
	byAddr := map[uint64]program.BlockID{}
	for _, b := range w.CFG.Blocks {
		if b.Kind == program.BlockBasic {
			byAddr[b.Address] = b.ID
		}
	}
	var out []ipet.ResolvedInfeasiblePath
	for _, ip := range w.Facts.Infeasible {
		a, aok := byAddr[ip.A]
		b, bok := byAddr[ip.B]
		if !aok || !bok {
			continue
		}
		out = append(out, ipet.ResolvedInfeasiblePath{A: a, B: b, Qualifier: ip.Qualifier})
	}
	return out
}

// categoriseCache runs Must/May/Persistence analysis over every cache set
// referenced by w.CFG's blocks, classifying each access (spec §4.7). Sets
// are mutually independent and run concurrently via errgroup (spec §5
// "Internal parallelism"), each worker writing only its own sets' results
// into a map guarded by w.mu.
func (w *Workspace) categoriseCache(opts Options) (map[program.BlockID]cache.Verdict, error) {
	lineSize, numSets := opts.CacheLineSize, opts.CacheSets
	if lineSize == 0 || numSets == 0 {
		return nil, diag.New(diag.ErrUnsupportedCacheGeometry,
			"cache categorisation requested with zero line size or set count", diag.Location{}).Build()
	}

	referenced := map[uint32]bool{}
	for _, b := range w.CFG.Blocks {
		if b.Kind != program.BlockBasic || len(b.Instructions) == 0 {
			continue
		}
		referenced[cache.LineOf(b.Address, lineSize, numSets).Set] = true
	}

	result := map[program.BlockID]cache.Verdict{}
	depths := cache.LoopDepths(w.LoopInfo)

	g := &errgroup.Group{}
	for set := range referenced {
		set := set
		g.Go(func() error {
			accessesOf := func(b *program.Block) []uint64 {
				if b.Kind != program.BlockBasic || len(b.Instructions) == 0 {
					return nil
				}
				lb := cache.LineOf(b.Address, lineSize, numSets)
				if lb.Set != set {
					return nil
				}
				return []uint64{lb.Tag}
			}

			must := cache.Must(w.CFG, opts.CacheAssoc, accessesOf)
			may := cache.May(w.CFG, opts.CacheAssoc, accessesOf)
			persist := cache.AnalyzePersistence(w.CFG, w.LoopInfo, opts.CacheAssoc, accessesOf)

			w.mu.Lock()
			defer w.mu.Unlock()
			for _, b := range w.CFG.Blocks {
				tags := accessesOf(b)
				if len(tags) == 0 {
					continue
				}
				stack := persist[b.ID]
				verdict := cache.Classify(w.LoopInfo, depths, must[b.ID], may[b.ID], stack, b.ID, tags[0])
				result[b.ID] = verdict
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("cache categorisation: %w", err)
	}
	return result, nil
}
