package refsolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wcet/internal/ilp"
)

func TestEngineMaximisesSimpleObjective(t *testing.T) {
	e := New()
	x0 := e.NewVar("x0")
	x1 := e.NewVar("x1")
	x2 := e.NewVar("x2")

	for _, v := range []ilp.Var{x0, x1, x2} {
		c := e.NewConstraint(ilp.EQ, 1)
		e.AddTerm(c, 1, v)
	}

	e.AddToObjective(5, x0)
	e.AddToObjective(7, x1)
	e.AddToObjective(3, x2)
	e.SetObjectiveMaximise(true)

	status, err := e.Solve()
	require.NoError(t, err)
	require.Equal(t, ilp.Optimal, status)
	assert.InDelta(t, 15, e.ObjectiveValue(), epsilon)
	assert.InDelta(t, 1, e.ValueOf(x0), epsilon)
	assert.InDelta(t, 1, e.ValueOf(x1), epsilon)
	assert.InDelta(t, 1, e.ValueOf(x2), epsilon)
}

// TestEngineLoopBound mirrors spec §8 Scenario B's IPET shape directly at
// the LP layer: a dedicated entry-edge variable pinned to 1, the header's
// conservation equation x_h = x_entry + x_back, the loop bound x_back <=
// 100*x_entry (spec §4.9's "Σ back-edge ≤ N · Σ entry-edge", N=100), and
// the exit accounting x_exit = x_h - x_back (which always nets out to
// x_entry = 1, since the loop exits exactly once).
func TestEngineLoopBound(t *testing.T) {
	e := New()
	xentry := e.NewVar("x_entry")
	xh := e.NewVar("x_h")
	xback := e.NewVar("x_back")
	xexit := e.NewVar("x_exit")

	// x_entry = 1 (the task's single entry edge into the loop header).
	c0 := e.NewConstraint(ilp.EQ, 1)
	e.AddTerm(c0, 1, xentry)

	// x_h = x_entry + x_back (conservation of flow into the header).
	c1 := e.NewConstraint(ilp.EQ, 0)
	e.AddTerm(c1, 1, xh)
	e.AddTerm(c1, -1, xentry)
	e.AddTerm(c1, -1, xback)

	// x_back <= 100 * x_entry (MAX_ITERATION(h) = 100).
	c2 := e.NewConstraint(ilp.LE, 0)
	e.AddTerm(c2, 1, xback)
	e.AddTerm(c2, -100, xentry)

	// x_exit = x_h - x_back.
	c3 := e.NewConstraint(ilp.EQ, 0)
	e.AddTerm(c3, 1, xexit)
	e.AddTerm(c3, -1, xh)
	e.AddTerm(c3, 1, xback)

	e.AddToObjective(2, xh)
	e.AddToObjective(10, xback)
	e.AddToObjective(1, xexit)
	e.SetObjectiveMaximise(true)

	status, err := e.Solve()
	require.NoError(t, err)
	require.Equal(t, ilp.Optimal, status)
	assert.InDelta(t, 101, e.ValueOf(xh), epsilon)
	assert.InDelta(t, 100, e.ValueOf(xback), epsilon)
	assert.InDelta(t, 1, e.ValueOf(xexit), epsilon)
	assert.InDelta(t, 1203, e.ObjectiveValue(), epsilon)
}

func TestEngineInfeasible(t *testing.T) {
	e := New()
	x := e.NewVar("x")
	c1 := e.NewConstraint(ilp.LE, 1)
	e.AddTerm(c1, 1, x)
	c2 := e.NewConstraint(ilp.GE, 2)
	e.AddTerm(c2, 1, x)
	e.AddToObjective(1, x)

	status, err := e.Solve()
	require.NoError(t, err)
	assert.Equal(t, ilp.Infeasible, status)
}
