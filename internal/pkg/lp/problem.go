package lp

import (
	"errors"
	"fmt"
	"math"
)

// Nonzero is one entry of the constraint matrix.
type Nonzero struct {
	Row int
	Col int
	Val float64
}

// Problem is a linear program in the form accepted by common solvers:
//
//	Minimize (or Maximize): ColCosts · x
//	Subject to:             RowLower ≤ A·x ≤ RowUpper
//	And:                    ColLower ≤ x ≤ ColUpper
//
// A is given as a list of nonzero entries.
type Problem struct {
	Maximize bool

	ColNames []string
	ColCosts []float64
	ColLower []float64
	ColUpper []float64

	RowNames []string
	RowLower []float64
	RowUpper []float64

	Nonzeros []Nonzero
}

// AddColumn appends a variable and returns its index.
func (p *Problem) AddColumn(name string, cost, lower, upper float64) int {
	p.ColNames = append(p.ColNames, name)
	p.ColCosts = append(p.ColCosts, cost)
	p.ColLower = append(p.ColLower, lower)
	p.ColUpper = append(p.ColUpper, upper)
	return len(p.ColCosts) - 1
}

// AddRow appends lower ≤ Σ vals[i]·x[cols[i]] ≤ upper and returns its index.
// Zero coefficients are dropped.
func (p *Problem) AddRow(name string, lower float64, cols []int, vals []float64, upper float64) int {
	row := len(p.RowLower)
	p.RowNames = append(p.RowNames, name)
	p.RowLower = append(p.RowLower, lower)
	p.RowUpper = append(p.RowUpper, upper)
	for i, col := range cols {
		if vals[i] != 0 {
			p.Nonzeros = append(p.Nonzeros, Nonzero{Row: row, Col: col, Val: vals[i]})
		}
	}
	return row
}

// NumCols returns the number of variables.
func (p *Problem) NumCols() int {
	return len(p.ColCosts)
}

// NumRows returns the number of constraints.
func (p *Problem) NumRows() int {
	return len(p.RowLower)
}

// Rows groups the nonzero entries by row.
func (p *Problem) Rows() [][]Nonzero {
	rows := make([][]Nonzero, p.NumRows())
	for _, nz := range p.Nonzeros {
		rows[nz.Row] = append(rows[nz.Row], nz)
	}
	return rows
}

// Validate checks that the problem is well formed.
func (p *Problem) Validate() error {
	n, m := p.NumCols(), p.NumRows()
	if len(p.ColLower) != n || len(p.ColUpper) != n || len(p.ColNames) != n {
		return errors.New("lp: inconsistent column lengths")
	}
	if len(p.RowUpper) != m || len(p.RowNames) != m {
		return errors.New("lp: inconsistent row lengths")
	}
	for j := 0; j < n; j++ {
		if math.IsNaN(p.ColCosts[j]) || math.IsInf(p.ColCosts[j], 0) {
			return fmt.Errorf("lp: column %s has non-finite cost", p.ColNames[j])
		}
		if math.IsNaN(p.ColLower[j]) || math.IsNaN(p.ColUpper[j]) || p.ColLower[j] > p.ColUpper[j] {
			return fmt.Errorf("lp: column %s has bounds [%v, %v]", p.ColNames[j], p.ColLower[j], p.ColUpper[j])
		}
	}
	for i := 0; i < m; i++ {
		if math.IsNaN(p.RowLower[i]) || math.IsNaN(p.RowUpper[i]) || p.RowLower[i] > p.RowUpper[i] {
			return fmt.Errorf("lp: row %s has bounds [%v, %v]", p.RowNames[i], p.RowLower[i], p.RowUpper[i])
		}
	}
	for _, nz := range p.Nonzeros {
		if nz.Row < 0 || nz.Row >= m || nz.Col < 0 || nz.Col >= n {
			return fmt.Errorf("lp: nonzero (%d, %d) out of range", nz.Row, nz.Col)
		}
		if math.IsNaN(nz.Val) || math.IsInf(nz.Val, 0) {
			return fmt.Errorf("lp: nonzero (%d, %d) is not finite", nz.Row, nz.Col)
		}
	}
	return nil
}

const emptyRowTol = 1e-9

// EmptyRowError reports a row without entries whose bounds exclude 0, so
// that no x satisfies it.
type EmptyRowError struct {
	Row   string
	Lower float64
	Upper float64
}

func (e EmptyRowError) Error() string {
	return fmt.Sprintf("lp: row %s has no entries and bounds [%v, %v]", e.Row, e.Lower, e.Upper)
}

// InconsistentEmptyRow returns the first row without nonzeros whose bounds
// exclude 0.
func (p *Problem) InconsistentEmptyRow() (EmptyRowError, bool) {
	used := make([]bool, p.NumRows())
	for _, nz := range p.Nonzeros {
		used[nz.Row] = true
	}
	for i, ok := range used {
		if !ok && (p.RowLower[i] > emptyRowTol || p.RowUpper[i] < -emptyRowTol) {
			return EmptyRowError{Row: p.RowNames[i], Lower: p.RowLower[i], Upper: p.RowUpper[i]}, true
		}
	}
	return EmptyRowError{}, false
}

// Objective evaluates the cost of x.
func (p *Problem) Objective(x []float64) float64 {
	sum := 0.0
	for j, c := range p.ColCosts {
		sum += c * x[j]
	}
	return sum
}

// Activities returns A·x.
func (p *Problem) Activities(x []float64) []float64 {
	act := make([]float64, p.NumRows())
	for _, nz := range p.Nonzeros {
		act[nz.Row] += nz.Val * x[nz.Col]
	}
	return act
}

// Violation returns the largest bound or row violation of x.
func (p *Problem) Violation(x []float64) float64 {
	worst := 0.0
	for j := range p.ColCosts {
		worst = math.Max(worst, p.ColLower[j]-x[j])
		worst = math.Max(worst, x[j]-p.ColUpper[j])
	}
	for i, a := range p.Activities(x) {
		worst = math.Max(worst, p.RowLower[i]-a)
		worst = math.Max(worst, a-p.RowUpper[i])
	}
	return worst
}
