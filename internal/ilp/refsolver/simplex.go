// Package refsolver is a small in-repo reference ILP backend implementing
// wcet/internal/ilp.Engine: branch-and-bound over a Big-M simplex
// relaxation, sized for the small, sparse LPs the seed WCET scenarios
// produce (spec §12.4). It is explicitly a test/reference solver, not a
// production backend — a real deployment wires an external MILP engine
// (lp_solve, CPLEX, Gurobi, …) behind the same wcet/internal/ilp.Engine
// interface instead.
package refsolver

import (
	"math"

	"wcet/internal/ilp"
)

// LinConstraint is one row of the LP: Coefs[j]*x_j (cmp) RHS.
type LinConstraint struct {
	Coefs []float64
	Cmp   ilp.Cmp
	RHS   float64
}

const epsilon = 1e-7
const bigM = 1e6

// simplexResult is the outcome of one Big-M simplex solve over a fixed set
// of constraints (a single node of the branch-and-bound tree).
type simplexResult struct {
	status ilp.Status
	x      []float64
}

// solveRelaxation solves max (or min, pre-negated by the caller) c^T x
// subject to constraints, x >= 0, via a single Big-M tableau. Bland's rule
// is used throughout (smallest-index entering/leaving variable) to
// guarantee termination on the tiny LPs this solver targets, at the cost
// of being slower than a textbook largest-coefficient rule — irrelevant at
// this scale.
func solveRelaxation(n int, constraints []LinConstraint, obj []float64) simplexResult {
	m := len(constraints)

	type extra struct {
		kind int // 0 = slack, 1 = surplus+artificial, 2 = artificial only
	}
	kinds := make([]int, m)
	numExtraCols := 0
	for i, c := range constraints {
		rhs := c.RHS
		cmp := c.Cmp
		if rhs < 0 {
			// Normalise to a non-negative RHS by flipping the row's sign.
			rhs = -rhs
			switch cmp {
			case ilp.LE:
				cmp = ilp.GE
			case ilp.GE:
				cmp = ilp.LE
			}
		}
		constraints[i].RHS = rhs
		constraints[i].Cmp = cmp
		switch cmp {
		case ilp.LE:
			kinds[i] = 0
			numExtraCols++ // slack
		case ilp.GE:
			kinds[i] = 1
			numExtraCols += 2 // surplus + artificial
		case ilp.EQ:
			kinds[i] = 2
			numExtraCols++ // artificial
		}
	}

	totalCols := n + numExtraCols
	// tableau[0] is the objective row; rows 1..m are constraints. Column
	// totalCols is RHS.
	tab := make([][]float64, m+1)
	for i := range tab {
		tab[i] = make([]float64, totalCols+1)
	}
	basis := make([]int, m)
	artificialCols := map[int]bool{}

	col := n
	for i, c := range constraints {
		for j := 0; j < n && j < len(c.Coefs); j++ {
			tab[i+1][j] = c.Coefs[j]
		}
		tab[i+1][totalCols] = c.RHS
		switch kinds[i] {
		case 0: // LE: + slack
			tab[i+1][col] = 1
			basis[i] = col
			col++
		case 1: // GE: - surplus + artificial
			tab[i+1][col] = -1
			col++
			tab[i+1][col] = 1
			artificialCols[col] = true
			basis[i] = col
			col++
		case 2: // EQ: + artificial
			tab[i+1][col] = 1
			artificialCols[col] = true
			basis[i] = col
			col++
		}
	}

	for j := 0; j < n; j++ {
		if j < len(obj) {
			tab[0][j] = -obj[j]
		}
	}
	for j := range artificialCols {
		tab[0][j] = bigM
	}
	// Zero out the objective row's reduced cost under every basic
	// (artificial) column, per Big-M tableau initialisation.
	for i := 0; i < m; i++ {
		bcol := basis[i]
		coef := tab[0][bcol]
		if coef == 0 {
			continue
		}
		for j := 0; j <= totalCols; j++ {
			tab[0][j] -= coef * tab[i+1][j]
		}
	}

	const maxIters = 5000
	for iter := 0; iter < maxIters; iter++ {
		enter := -1
		for j := 0; j < totalCols; j++ {
			if tab[0][j] < -epsilon {
				enter = j
				break // Bland: smallest index with negative reduced cost
			}
		}
		if enter == -1 {
			break // optimal
		}

		leave := -1
		bestRatio := math.Inf(1)
		for i := 0; i < m; i++ {
			a := tab[i+1][enter]
			if a <= epsilon {
				continue
			}
			ratio := tab[i+1][totalCols] / a
			if ratio < bestRatio-epsilon || (ratio < bestRatio+epsilon && (leave == -1 || basis[i] < basis[leave])) {
				bestRatio = ratio
				leave = i
			}
		}
		if leave == -1 {
			return simplexResult{status: ilp.Unbounded}
		}

		pivot(tab, leave+1, enter)
		basis[leave] = enter
	}

	for i, b := range basis {
		if artificialCols[b] && tab[i+1][totalCols] > epsilon {
			return simplexResult{status: ilp.Infeasible}
		}
	}

	x := make([]float64, n)
	for i, b := range basis {
		if b < n {
			x[b] = tab[i+1][totalCols]
		}
	}
	return simplexResult{status: ilp.Optimal, x: x}
}

func pivot(tab [][]float64, row, col int) {
	pv := tab[row][col]
	width := len(tab[row])
	for j := 0; j < width; j++ {
		tab[row][j] /= pv
	}
	for i := range tab {
		if i == row {
			continue
		}
		factor := tab[i][col]
		if factor == 0 {
			continue
		}
		for j := 0; j < width; j++ {
			tab[i][j] -= factor * tab[row][j]
		}
	}
}

// SolveBranchAndBound solves max c^T x (maximise=false negates c and the
// result to solve a minimisation) subject to constraints, x >= 0 and x_j
// integer for every j with integer[j] set, via branch-and-bound over the
// LP relaxation. Most WCET IPET systems are totally unimodular (pure flow
// conservation plus simple bound constraints), so the relaxation is
// already integral in every seed scenario; branching exists for
// correctness on the general case, not because it is expected to fire
// often.
func SolveBranchAndBound(n int, constraints []LinConstraint, obj []float64, maximise bool, integer []bool) (ilp.Status, []float64, float64) {
	signedObj := make([]float64, len(obj))
	copy(signedObj, obj)
	if !maximise {
		for i := range signedObj {
			signedObj[i] = -signedObj[i]
		}
	}

	type node struct {
		extra []LinConstraint
	}
	best := (*[]float64)(nil)
	bestVal := math.Inf(-1)
	rootStatus := ilp.Infeasible
	nodes := []node{{}}
	visited := 0
	const maxNodes = 20000

	for len(nodes) > 0 && visited < maxNodes {
		visited++
		cur := nodes[len(nodes)-1]
		nodes = nodes[:len(nodes)-1]

		all := make([]LinConstraint, len(constraints))
		copy(all, constraints)
		all = append(all, cur.extra...)
		// Copy coefficient slices: solveRelaxation mutates RHS/Cmp in place.
		work := make([]LinConstraint, len(all))
		for i, c := range all {
			coefs := make([]float64, len(c.Coefs))
			copy(coefs, c.Coefs)
			work[i] = LinConstraint{Coefs: coefs, Cmp: c.Cmp, RHS: c.RHS}
		}

		res := solveRelaxation(n, work, signedObj)
		if res.status == ilp.Unbounded {
			if rootStatus == ilp.Infeasible {
				rootStatus = ilp.Unbounded
			}
			continue
		}
		if res.status == ilp.Infeasible {
			continue
		}
		rootStatus = ilp.Optimal

		val := 0.0
		for i, c := range signedObj {
			val += c * res.x[i]
		}
		if val <= bestVal+epsilon {
			continue // cannot beat current best even if integral
		}

		fracVar := -1
		for i, isInt := range integer {
			if !isInt || i >= len(res.x) {
				continue
			}
			v := res.x[i]
			if math.Abs(v-math.Round(v)) > 1e-6 {
				fracVar = i
				break
			}
		}

		if fracVar == -1 {
			xCopy := append([]float64(nil), res.x...)
			best = &xCopy
			bestVal = val
			continue
		}

		v := res.x[fracVar]
		floorRow := make([]float64, n)
		floorRow[fracVar] = 1
		ceilRow := make([]float64, n)
		ceilRow[fracVar] = 1

		nodes = append(nodes, node{extra: append(append([]LinConstraint(nil), cur.extra...),
			LinConstraint{Coefs: floorRow, Cmp: ilp.LE, RHS: math.Floor(v)})})
		nodes = append(nodes, node{extra: append(append([]LinConstraint(nil), cur.extra...),
			LinConstraint{Coefs: ceilRow, Cmp: ilp.GE, RHS: math.Ceil(v)})})
	}

	if best == nil {
		return rootStatus, nil, 0
	}
	objVal := 0.0
	for i, c := range obj {
		if i < len(*best) {
			objVal += c * (*best)[i]
		}
	}
	return ilp.Optimal, *best, objVal
}
