package refsolver

import "wcet/internal/ilp"

// Engine is the reference implementation of wcet/internal/ilp.Engine: it
// accumulates variables, constraints and an objective exactly as the
// interface prescribes, then runs SolveBranchAndBound once on Solve.
type Engine struct {
	names       []string
	constraints []LinConstraint
	objective   []float64
	maximise    bool

	solved bool
	status ilp.Status
	values []float64
	objVal float64
}

// New returns an empty reference solver engine.
func New() *Engine { return &Engine{maximise: true} }

func (e *Engine) NewVar(name string) ilp.Var {
	e.names = append(e.names, name)
	e.objective = append(e.objective, 0)
	for i := range e.constraints {
		e.constraints[i].Coefs = append(e.constraints[i].Coefs, 0)
	}
	return ilp.Var(len(e.names) - 1)
}

func (e *Engine) NewConstraint(cmp ilp.Cmp, rhs float64) ilp.Constraint {
	e.constraints = append(e.constraints, LinConstraint{
		Coefs: make([]float64, len(e.names)),
		Cmp:   cmp,
		RHS:   rhs,
	})
	return ilp.Constraint(len(e.constraints) - 1)
}

func (e *Engine) AddTerm(c ilp.Constraint, coef float64, v ilp.Var) {
	e.constraints[c].Coefs[v] += coef
}

func (e *Engine) AddToObjective(coef float64, v ilp.Var) {
	e.objective[v] += coef
}

func (e *Engine) SetObjectiveMaximise(maximise bool) { e.maximise = maximise }

// Solve runs branch-and-bound over the accumulated LP, treating every
// variable as a non-negative integer per spec §3.9 ("Variables (integer,
// usually ≥0)").
func (e *Engine) Solve() (ilp.Status, error) {
	integer := make([]bool, len(e.names))
	for i := range integer {
		integer[i] = true
	}
	status, values, objVal := SolveBranchAndBound(len(e.names), e.constraints, e.objective, e.maximise, integer)
	e.solved = true
	e.status = status
	e.values = values
	e.objVal = objVal
	return status, nil
}

func (e *Engine) ValueOf(v ilp.Var) float64 {
	if !e.solved || int(v) >= len(e.values) {
		return 0
	}
	return e.values[v]
}

func (e *Engine) ObjectiveValue() float64 {
	if !e.solved {
		return 0
	}
	return e.objVal
}
