package solver

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
	"gonum.org/v1/gonum/mat"
	gonumlp "gonum.org/v1/gonum/optimize/convex/lp"
)

// Simplex solves problems in-process with gonum's simplex implementation.
// The problem is rewritten into standard form (min c·y, A·y = b, y ≥ 0):
// fixed columns become constants, bounds are shifted and finite upper bounds
// and inequality rows receive slack columns.
type Simplex struct{}

func (Simplex) Name() string { return "simplex" }

var (
	errInfeasible = errors.New("infeasible")
	errUnbounded  = errors.New("unbounded")
)

// affine expresses a problem column as offset + Σ coefs[k]·y[vars[k]].
type affine struct {
	offset float64
	vars   []int
	coefs  []float64
}

type sparseRow struct {
	cols []int
	vals []float64
	rhs  float64
}

func (r sparseRow) with(col int, val float64, rhs float64) sparseRow {
	return sparseRow{
		cols: append(append([]int(nil), r.cols...), col),
		vals: append(append([]float64(nil), r.vals...), val),
		rhs:  rhs,
	}
}

type standardForm struct {
	cols []affine
	c    []float64
	rows []sparseRow
}

func (sf *standardForm) newVar(cost float64) int {
	sf.c = append(sf.c, cost)
	return len(sf.c) - 1
}

func toStandardForm(p *lp.Problem) *standardForm {
	sf := &standardForm{cols: make([]affine, p.NumCols())}

	for j := range p.ColCosts {
		lo, up, cost := p.ColLower[j], p.ColUpper[j], p.ColCosts[j]
		if p.Maximize {
			cost = -cost
		}
		switch {
		case lo == up:
			sf.cols[j] = affine{offset: lo}
		case !math.IsInf(lo, -1):
			y := sf.newVar(cost)
			sf.cols[j] = affine{offset: lo, vars: []int{y}, coefs: []float64{1}}
			if !math.IsInf(up, 1) {
				s := sf.newVar(0)
				sf.rows = append(sf.rows, sparseRow{cols: []int{y, s}, vals: []float64{1, 1}, rhs: up - lo})
			}
		case !math.IsInf(up, 1):
			y := sf.newVar(-cost)
			sf.cols[j] = affine{offset: up, vars: []int{y}, coefs: []float64{-1}}
		default:
			yp := sf.newVar(cost)
			yn := sf.newVar(-cost)
			sf.cols[j] = affine{vars: []int{yp, yn}, coefs: []float64{1, -1}}
		}
	}

	for i, entries := range p.Rows() {
		lo, up := p.RowLower[i], p.RowUpper[i]
		if math.IsInf(lo, -1) && math.IsInf(up, 1) {
			continue
		}
		var row sparseRow
		constant := 0.0
		for _, nz := range entries {
			a := sf.cols[nz.Col]
			constant += nz.Val * a.offset
			for k, v := range a.vars {
				row.cols = append(row.cols, v)
				row.vals = append(row.vals, nz.Val*a.coefs[k])
			}
		}
		if lo == up {
			row.rhs = lo - constant
			sf.rows = append(sf.rows, row)
			continue
		}
		if !math.IsInf(up, 1) {
			sf.rows = append(sf.rows, row.with(sf.newVar(0), 1, up-constant))
		}
		if !math.IsInf(lo, -1) {
			sf.rows = append(sf.rows, row.with(sf.newVar(0), -1, lo-constant))
		}
	}
	return sf
}

// recover maps a standard form point back onto the problem columns.
func (sf *standardForm) recover(p *lp.Problem, y []float64) []float64 {
	x := make([]float64, len(sf.cols))
	for j, a := range sf.cols {
		v := a.offset
		for k, idx := range a.vars {
			v += a.coefs[k] * y[idx]
		}
		x[j] = math.Max(p.ColLower[j], math.Min(p.ColUpper[j], v))
	}
	return x
}

// reduce drops linearly dependent rows and empty columns so that the
// remaining system has full row rank, as the simplex routine requires.
// The rank test is a dense Gram-Schmidt pass costing O(m²·n) for m rows and
// n standard-form columns, which dominates the solve for long horizons
// (roughly a second at a few hundred columns). Use the cbc solver there.
func (sf *standardForm) reduce(tol float64) (*mat.Dense, []float64, []float64, []int, error) {
	n := len(sf.c)
	m := len(sf.rows)
	if n == 0 {
		for i, r := range sf.rows {
			if math.Abs(r.rhs) > 1e3*tol {
				return nil, nil, nil, nil, fmt.Errorf("row %d is inconsistent: %w", i, errInfeasible)
			}
		}
		return nil, nil, nil, nil, nil
	}

	keep := make([]int, 0, m)
	var basis, augBasis []*mat.VecDense
	for i, r := range sf.rows {
		raw := make([]float64, n+1)
		for k, col := range r.cols {
			raw[col] += r.vals[k]
		}
		raw[n] = r.rhs

		row := mat.NewVecDense(n, append([]float64(nil), raw[:n]...))
		aug := mat.NewVecDense(n+1, raw)
		scale := math.Max(1, mat.Norm(aug, 2))

		res := residual(row, basis)
		augRes := residual(aug, augBasis)
		if mat.Norm(res, 2) <= tol*scale {
			if mat.Norm(augRes, 2) > 1e3*tol*scale {
				return nil, nil, nil, nil, fmt.Errorf("row %d is inconsistent: %w", i, errInfeasible)
			}
			continue
		}
		res.ScaleVec(1/mat.Norm(res, 2), res)
		augRes.ScaleVec(1/mat.Norm(augRes, 2), augRes)
		basis = append(basis, res)
		augBasis = append(augBasis, augRes)
		keep = append(keep, i)
	}

	used := make([]bool, n)
	for _, i := range keep {
		for k, col := range sf.rows[i].cols {
			if sf.rows[i].vals[k] != 0 {
				used[col] = true
			}
		}
	}
	cols := make([]int, 0, n)
	for j, ok := range used {
		if ok {
			cols = append(cols, j)
		} else if sf.c[j] < -tol {
			return nil, nil, nil, nil, fmt.Errorf("column %d decreases the objective without limit: %w", j, errUnbounded)
		}
	}
	if len(keep) == 0 || len(cols) == 0 {
		return nil, nil, nil, cols, nil
	}

	colPos := make(map[int]int, len(cols))
	for k, j := range cols {
		colPos[j] = k
	}
	A := mat.NewDense(len(keep), len(cols), nil)
	b := make([]float64, len(keep))
	for r, i := range keep {
		row := sf.rows[i]
		for k, col := range row.cols {
			A.Set(r, colPos[col], A.At(r, colPos[col])+row.vals[k])
		}
		b[r] = row.rhs
	}
	c := make([]float64, len(cols))
	for k, j := range cols {
		c[k] = sf.c[j]
	}
	return A, b, c, cols, nil
}

func residual(v *mat.VecDense, basis []*mat.VecDense) *mat.VecDense {
	r := mat.VecDenseCopyOf(v)
	for pass := 0; pass < 2; pass++ {
		for _, q := range basis {
			r.AddScaledVec(r, -mat.Dot(q, r), q)
		}
	}
	return r
}

type simplexResult struct {
	y   []float64
	err error
}

func runSimplex(c []float64, A *mat.Dense, b []float64, tol float64) (res simplexResult) {
	defer func() {
		if r := recover(); r != nil {
			res = simplexResult{err: fmt.Errorf("simplex: %v", r)}
		}
	}()
	_, y, err := gonumlp.Simplex(c, A, b, tol, nil)
	return simplexResult{y: y, err: err}
}

// Solve implements Solver.
func (s Simplex) Solve(ctx context.Context, p *lp.Problem, opts Options) (*lp.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tol := opts.Tolerance
	if tol <= 0 {
		tol = 1e-9
	}

	sf := toStandardForm(p)
	A, b, c, cols, err := sf.reduce(tol)
	switch {
	case errors.Is(err, errInfeasible):
		return &lp.Solution{Status: lp.Infeasible}, nil
	case errors.Is(err, errUnbounded):
		return &lp.Solution{Status: lp.Unbounded}, nil
	case err != nil:
		return nil, err
	}

	y := make([]float64, len(sf.c))
	if A != nil {
		done := make(chan simplexResult, 1)
		go func() {
			done <- runSimplex(c, A, b, tol)
		}()

		var res simplexResult
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-done:
		}

		switch {
		case errors.Is(res.err, gonumlp.ErrInfeasible):
			return &lp.Solution{Status: lp.Infeasible}, nil
		case errors.Is(res.err, gonumlp.ErrUnbounded):
			return &lp.Solution{Status: lp.Unbounded}, nil
		case res.err != nil:
			return nil, res.err
		}
		for k, j := range cols {
			y[j] = res.y[k]
		}
	}

	x := sf.recover(p, y)
	if v := p.Violation(x); v > 1e-6*math.Max(1, maxAbs(x)) {
		return nil, fmt.Errorf("simplex: solution violates constraints by %g", v)
	}
	return &lp.Solution{Status: lp.Optimal, Objective: p.Objective(x), X: x}, nil
}

func maxAbs(xs []float64) float64 {
	m := 0.0
	for _, x := range xs {
		m = math.Max(m, math.Abs(x))
	}
	return m
}
