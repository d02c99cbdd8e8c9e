// Package ilp declares the ILP solver boundary the IPET builder (internal
// /ipet) targets: an opaque external engine exposing "add variable / add
// constraint / set objective / solve / read variable value" (spec §6).
// internal/ilp/refsolver provides a small in-repo reference backend so the
// IPET pipeline is exercisable end-to-end without a real external MILP
// solver wired in; it is explicitly a test/reference backend, not a
// production one (spec §12.4) — a production deployment still plugs in an
// external engine (lp_solve, CPLEX, Gurobi, …) behind this same interface.
package ilp

// Cmp is a constraint's comparison operator.
type Cmp int

const (
	LE Cmp = iota
	EQ
	GE
)

// Status is the outcome of a Solve call.
type Status int

const (
	Infeasible Status = iota
	Unbounded
	Optimal
)

// Var is an opaque handle to a variable created by Engine.NewVar.
type Var int

// Constraint is an opaque handle to a constraint created by
// Engine.NewConstraint, onto which terms are added with AddTerm.
type Constraint int

// Engine is the external ILP solver boundary (spec §6 "ILP solver
// interface"). Every method after NewVar/NewConstraint/AddTerm only makes
// sense once the full variable/constraint/objective set has been declared;
// Solve is the one blocking call into the external library, treated as an
// opaque atomic step (spec §5 "no blocking I/O… the ILP solver is called
// as a blocking external library invocation").
type Engine interface {
	NewVar(name string) Var
	NewConstraint(cmp Cmp, rhs float64) Constraint
	AddTerm(c Constraint, coef float64, v Var)
	AddToObjective(coef float64, v Var)
	SetObjectiveMaximise(maximise bool)
	Solve() (Status, error)
	ValueOf(v Var) float64
	ObjectiveValue() float64
}
