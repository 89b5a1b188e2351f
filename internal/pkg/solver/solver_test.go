package solver

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
	"gotest.tools/v3/assert"
)

var inf = math.Inf(1)

const eps = 1e-7

func solveSimplex(t *testing.T, p *lp.Problem) *lp.Solution {
	t.Helper()
	sol, err := Simplex{}.Solve(context.Background(), p, defaultOptions())
	assert.NilError(t, err)
	return sol
}

func TestSimplexMeritOrder(t *testing.T) {
	p := &lp.Problem{}
	x := p.AddColumn("expensive", 25, 0, 50)
	y := p.AddColumn("cheap", 10, 0, inf)
	p.AddRow("demand", 20, []int{x, y}, []float64{1, 1}, 20)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Optimal)
	assert.Assert(t, math.Abs(sol.X[x]) < eps)
	assert.Assert(t, math.Abs(sol.X[y]-20) < eps)
	assert.Assert(t, math.Abs(sol.Objective-200) < eps)
}

func TestSimplexInfeasible(t *testing.T) {
	p := &lp.Problem{}
	x := p.AddColumn("x", 1, 0, 5)
	y := p.AddColumn("y", 1, 0, 5)
	p.AddRow("demand", 20, []int{x, y}, []float64{1, 1}, 20)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Infeasible)
}

func TestSimplexUnbounded(t *testing.T) {
	p := &lp.Problem{}
	p.AddColumn("x", -1, 0, inf)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Unbounded)
}

func TestSimplexFreeColumn(t *testing.T) {
	p := &lp.Problem{}
	x := p.AddColumn("x", 1, math.Inf(-1), inf)
	p.AddRow("floor", -3, []int{x}, []float64{1}, inf)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Optimal)
	assert.Assert(t, math.Abs(sol.X[x]+3) < eps)
}

func TestSimplexUpperBoundOnly(t *testing.T) {
	p := &lp.Problem{}
	x := p.AddColumn("x", -1, math.Inf(-1), 4)
	p.AddRow("floor", -10, []int{x}, []float64{1}, inf)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Optimal)
	assert.Assert(t, math.Abs(sol.X[x]-4) < eps)
}

func TestSimplexMaximize(t *testing.T) {
	p := &lp.Problem{Maximize: true}
	x := p.AddColumn("x", 1, 0, 3)
	y := p.AddColumn("y", 1, 0, inf)
	p.AddRow("cap", math.Inf(-1), []int{x, y}, []float64{1, 2}, 4)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Optimal)
	assert.Assert(t, math.Abs(sol.X[x]-3) < eps)
	assert.Assert(t, math.Abs(sol.X[y]-0.5) < eps)
	assert.Assert(t, math.Abs(sol.Objective-3.5) < eps)
}

func TestSimplexRedundantRows(t *testing.T) {
	p := &lp.Problem{}
	x := p.AddColumn("x", 1, 0, inf)
	y := p.AddColumn("y", 0, 0, inf)
	p.AddRow("a", 2, []int{x, y}, []float64{1, 1}, 2)
	p.AddRow("b", 4, []int{x, y}, []float64{2, 2}, 4)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Optimal)
	assert.Assert(t, math.Abs(sol.X[x]) < eps)
	assert.Assert(t, math.Abs(sol.X[y]-2) < eps)

	p.RowLower[1], p.RowUpper[1] = 5, 5
	sol = solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Infeasible)
}

func TestSimplexFixedColumns(t *testing.T) {
	p := &lp.Problem{}
	x := p.AddColumn("x", 3, 5, 5)
	p.AddRow("pin", 5, []int{x}, []float64{1}, 5)

	sol := solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Optimal)
	assert.Equal(t, sol.X[x], 5.0)
	assert.Equal(t, sol.Objective, 15.0)

	p.RowLower[0], p.RowUpper[0] = 6, 6
	sol = solveSimplex(t, p)
	assert.Equal(t, sol.Status, lp.Infeasible)
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("gurobi-but-not-really")
	var unavailable SolverUnavailableError
	assert.Assert(t, errors.As(err, &unavailable))
	assert.Equal(t, unavailable.Solver, "gurobi-but-not-really")

	_, err = Run(context.Background(), "gurobi-but-not-really", &lp.Problem{})
	assert.Assert(t, errors.As(err, &unavailable))
}

type stubSolver struct {
	name   string
	status lp.Status
	block  bool
}

func (s stubSolver) Name() string { return s.name }

func (s stubSolver) Solve(ctx context.Context, p *lp.Problem, opts Options) (*lp.Solution, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return &lp.Solution{Status: s.status, X: make([]float64, p.NumCols())}, nil
}

func TestRunStatusErrors(t *testing.T) {
	p := &lp.Problem{}
	p.AddColumn("x", 1, 0, 1)

	Register(stubSolver{name: "stub-infeasible", status: lp.Infeasible})
	sol, err := Run(context.Background(), "stub-infeasible", p)
	var infeasible InfeasibleError
	assert.Assert(t, errors.As(err, &infeasible))
	assert.Equal(t, sol.Status, lp.Infeasible)

	Register(stubSolver{name: "stub-unbounded", status: lp.Unbounded})
	_, err = Run(context.Background(), "stub-unbounded", p)
	var unbounded UnboundedError
	assert.Assert(t, errors.As(err, &unbounded))

	Register(stubSolver{name: "stub-optimal", status: lp.Optimal})
	sol, err = Run(context.Background(), "stub-optimal", p)
	assert.NilError(t, err)
	assert.Equal(t, len(sol.X), 1)
}

func TestRunTimeLimit(t *testing.T) {
	p := &lp.Problem{}
	p.AddColumn("x", 1, 0, 1)

	Register(stubSolver{name: "stub-blocking", block: true})
	sol, err := Run(context.Background(), "stub-blocking", p, WithTimeLimit(10*time.Millisecond))
	assert.Assert(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, sol.Status, lp.TimeLimit)
}

func TestRunRejectsMalformedProblem(t *testing.T) {
	p := &lp.Problem{}
	p.AddColumn("x", 1, 2, 1)
	_, err := Run(context.Background(), "simplex", p)
	assert.ErrorContains(t, err, "bounds")
}

func TestNamesIncludesBuiltins(t *testing.T) {
	names := strings.Join(Names(), ",")
	assert.Assert(t, strings.Contains(names, "simplex"))
	assert.Assert(t, strings.Contains(names, "cbc"))
}

func TestCBCUnavailable(t *testing.T) {
	p := &lp.Problem{}
	p.AddColumn("x", 1, 0, 1)
	_, err := Run(context.Background(), "cbc", p, WithExecutable("cbc-binary-that-does-not-exist"))
	var unavailable SolverUnavailableError
	assert.Assert(t, errors.As(err, &unavailable))
	assert.Equal(t, unavailable.Solver, "cbc")
}

func TestParseSolution(t *testing.T) {
	p := &lp.Problem{}
	p.AddColumn("a", 25, 0, 50)
	p.AddColumn("b", 10, 0, inf)
	p.AddColumn("c", 0, 20, 20)

	out := `Optimal - objective value 200.00000000
      1 x1                      20                      0
`
	sol, err := parseSolution(strings.NewReader(out), p)
	assert.NilError(t, err)
	assert.Equal(t, sol.Status, lp.Optimal)
	assert.Equal(t, sol.Objective, 200.0)
	assert.DeepEqual(t, sol.X, []float64{0, 20, 20})
}

func TestParseSolutionStatus(t *testing.T) {
	tests := []struct {
		header string
		want   lp.Status
	}{
		{"Optimal - objective value 1", lp.Optimal},
		{"Infeasible - objective value 0", lp.Infeasible},
		{"Integer infeasible - objective value 0", lp.Infeasible},
		{"Unbounded - objective value 0", lp.Unbounded},
		{"Stopped on time - objective value 3", lp.TimeLimit},
		{"Stopped on iterations - objective value 3", lp.Error},
	}
	for _, tc := range tests {
		assert.Equal(t, parseStatus(tc.header), tc.want, tc.header)
	}
}

func TestParseSolutionUnknownColumn(t *testing.T) {
	p := &lp.Problem{}
	p.AddColumn("a", 1, 0, 1)

	_, err := parseSolution(strings.NewReader("Optimal - objective value 0\n 0 x7 1 0\n"), p)
	assert.ErrorContains(t, err, "x7")
}

func TestRunInconsistentEmptyRow(t *testing.T) {
	for _, name := range []string{"simplex", "cbc"} {
		t.Run(name, func(t *testing.T) {
			p := &lp.Problem{}
			x := p.AddColumn("x", 1, 0, 1)
			p.AddRow("limit", math.Inf(-1), []int{x}, []float64{0}, -1)

			sol, err := Run(context.Background(), name, p)
			var infeasible InfeasibleError
			assert.Assert(t, errors.As(err, &infeasible), "got %v", err)
			assert.Equal(t, infeasible.Solver, name)
			assert.Equal(t, sol.Status, lp.Infeasible)
		})
	}
}
