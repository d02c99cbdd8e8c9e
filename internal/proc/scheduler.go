// Package proc implements the analysis scheduler (the "processor/feature"
// framework): given a set of processors declaring required, provided and
// invalidated features, it computes a topological run order for a
// requested feature, detecting cycles and missing providers, and runs
// cleanup hooks in reverse order when a feature is invalidated.
package proc

import (
	"fmt"

	"wcet/internal/diag"
	"wcet/internal/wlog"
)

// Feature names a property-level guarantee a processor can require,
// provide or invalidate (e.g. "cfg.constructed", "loop.headers",
// "cache.categories").
type Feature string

// Processor is one analysis pass. C is the shared analysis context type
// (normally *workspace.Workspace) threaded through every processor's Run.
type Processor[C any] interface {
	Name() string
	Requires() []Feature
	Provides() []Feature
	Invalidates() []Feature
	Run(ctx C) error
}

// CleanupFunc releases heap-owned property values installed while a
// feature was satisfied. Registered per feature, run in reverse order when
// the feature is invalidated.
type CleanupFunc[C any] func(ctx C)

// Scheduler computes and executes processor run orders for a target
// feature, with features resolved lazily: a processor runs the first time
// one of its provided features is requested (directly or transitively) and
// is skipped on later requests until something invalidates what it
// provides.
type Scheduler[C any] struct {
	processors []Processor[C]
	providedBy map[Feature]Processor[C]
	satisfied  map[Feature]bool
	cleanups   map[Feature][]CleanupFunc[C]
	log        *wlog.Logger
}

// NewScheduler creates an empty scheduler. Pass wlog.Discard() for silent
// operation.
func NewScheduler[C any](log *wlog.Logger) *Scheduler[C] {
	if log == nil {
		log = wlog.Discard()
	}
	return &Scheduler[C]{
		providedBy: make(map[Feature]Processor[C]),
		satisfied:  make(map[Feature]bool),
		cleanups:   make(map[Feature][]CleanupFunc[C]),
		log:        log,
	}
}

// Register adds a processor to the scheduler. It is a configuration error
// (spec §7) for two processors to provide the same feature: the scheduler
// would have no principled way to choose between them.
func (s *Scheduler[C]) Register(p Processor[C]) error {
	for _, f := range p.Provides() {
		if existing, ok := s.providedBy[f]; ok {
			return diag.New(diag.ErrConflictingProvides,
				fmt.Sprintf("processors %q and %q both provide feature %q", existing.Name(), p.Name(), f),
				diag.Location{}).Build()
		}
	}
	s.processors = append(s.processors, p)
	for _, f := range p.Provides() {
		s.providedBy[f] = p
	}
	s.log.Logf(wlog.ChanProc, "registered %s (requires=%v provides=%v invalidates=%v)",
		p.Name(), p.Requires(), p.Provides(), p.Invalidates())
	return nil
}

// RegisterCleanup attaches a cleanup hook to a feature, run when that
// feature is invalidated, in reverse order of registration (spec §4.2
// "Cleanup hooks attached to features run in reverse order").
func (s *Scheduler[C]) RegisterCleanup(feature Feature, fn CleanupFunc[C]) {
	s.cleanups[feature] = append(s.cleanups[feature], fn)
}

// Ensure runs whatever processors are needed (in dependency order) so that
// target is satisfied, then returns. It is idempotent: a feature already
// satisfied and not since invalidated is a no-op.
func (s *Scheduler[C]) Ensure(ctx C, target Feature) error {
	order, err := s.plan(target)
	if err != nil {
		return err
	}
	for _, p := range order {
		s.log.Logf(wlog.ChanProc, "running %s", p.Name())
		if err := p.Run(ctx); err != nil {
			return err
		}
		for _, f := range p.Provides() {
			s.satisfied[f] = true
		}
		for _, f := range p.Invalidates() {
			s.invalidate(ctx, f)
		}
	}
	return nil
}

// Invalidate marks feature as unsatisfied and runs its cleanup hooks,
// exactly as if some processor had declared it in Invalidates().
func (s *Scheduler[C]) Invalidate(ctx C, feature Feature) {
	s.invalidate(ctx, feature)
}

func (s *Scheduler[C]) invalidate(ctx C, feature Feature) {
	if !s.satisfied[feature] {
		return
	}
	s.satisfied[feature] = false
	hooks := s.cleanups[feature]
	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i](ctx)
	}
	s.log.Logf(wlog.ChanDeps, "invalidated %s", feature)
}

// plan computes a dependency-first run order of the processors not yet
// satisfied that are needed to reach target, detecting missing providers
// and requires/provides cycles.
func (s *Scheduler[C]) plan(target Feature) ([]Processor[C], error) {
	var order []Processor[C]
	visiting := make(map[Feature]bool)
	visited := make(map[Feature]bool)

	var visit func(f Feature, path []Feature) error
	visit = func(f Feature, path []Feature) error {
		if s.satisfied[f] {
			return nil
		}
		if visiting[f] {
			return diag.New(diag.ErrCyclicFeatureDependency,
				fmt.Sprintf("feature dependency cycle: %v -> %s", path, f), diag.Location{}).Build()
		}
		if visited[f] {
			return nil
		}
		p, ok := s.providedBy[f]
		if !ok {
			return diag.New(diag.ErrNoProcessorForFeature,
				fmt.Sprintf("no processor provides feature %q", f), diag.Location{}).Build()
		}

		visiting[f] = true
		for _, req := range p.Requires() {
			if err := visit(req, append(path, f)); err != nil {
				return err
			}
		}
		visiting[f] = false
		visited[f] = true

		for _, queued := range order {
			if queued == p {
				return nil
			}
		}
		order = append(order, p)
		return nil
	}

	if err := visit(target, nil); err != nil {
		return nil, err
	}
	return order, nil
}
