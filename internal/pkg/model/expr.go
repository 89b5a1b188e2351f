package model

import (
	"fmt"
	"math"
)

// Var is a column of the model.
type Var int

// Term is a coefficient times a variable.
type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression Σ Terms + Constant.
type Expr struct {
	Terms    []Term
	Constant float64
}

// Sum returns the expression Σ vars.
func Sum(vars ...Var) Expr {
	e := Expr{Terms: make([]Term, len(vars))}
	for i, v := range vars {
		e.Terms[i] = Term{Var: v, Coef: 1}
	}
	return e
}

// Plus returns e + coef·v.
func (e Expr) Plus(v Var, coef float64) Expr {
	terms := make([]Term, len(e.Terms), len(e.Terms)+1)
	copy(terms, e.Terms)
	return Expr{Terms: append(terms, Term{Var: v, Coef: coef}), Constant: e.Constant}
}

// Add returns e + o.
func (e Expr) Add(o Expr) Expr {
	terms := make([]Term, 0, len(e.Terms)+len(o.Terms))
	terms = append(terms, e.Terms...)
	terms = append(terms, o.Terms...)
	return Expr{Terms: terms, Constant: e.Constant + o.Constant}
}

// Scale returns k·e.
func (e Expr) Scale(k float64) Expr {
	terms := make([]Term, len(e.Terms))
	for i, t := range e.Terms {
		terms[i] = Term{Var: t.Var, Coef: k * t.Coef}
	}
	return Expr{Terms: terms, Constant: k * e.Constant}
}

// Eval evaluates e with the given variable values.
func (e Expr) Eval(value func(Var) float64) float64 {
	sum := e.Constant
	for _, t := range e.Terms {
		sum += t.Coef * value(t.Var)
	}
	return sum
}

// merged returns the variables and summed coefficients of e, in order of
// first appearance, without zero coefficients.
func (e Expr) merged() ([]int, []float64) {
	pos := make(map[Var]int, len(e.Terms))
	cols := make([]int, 0, len(e.Terms))
	vals := make([]float64, 0, len(e.Terms))
	for _, t := range e.Terms {
		if i, ok := pos[t.Var]; ok {
			vals[i] += t.Coef
			continue
		}
		pos[t.Var] = len(cols)
		cols = append(cols, int(t.Var))
		vals = append(vals, t.Coef)
	}

	n := 0
	for i := range cols {
		if vals[i] != 0 {
			cols[n], vals[n] = cols[i], vals[i]
			n++
		}
	}
	return cols[:n], vals[:n]
}

// Sense is the relation of a constraint.
type Sense int

const (
	LE Sense = iota
	GE
	EQ
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	default:
		return "=="
	}
}

// Constraint is Expr <Sense> Rhs.
type Constraint struct {
	Name  string
	Expr  Expr
	Sense Sense
	Rhs   float64
}

// LessEqual returns the constraint e ≤ rhs.
func LessEqual(name string, e Expr, rhs float64) Constraint {
	return Constraint{Name: name, Expr: e, Sense: LE, Rhs: rhs}
}

// GreaterEqual returns the constraint e ≥ rhs.
func GreaterEqual(name string, e Expr, rhs float64) Constraint {
	return Constraint{Name: name, Expr: e, Sense: GE, Rhs: rhs}
}

// Equal returns the constraint e = rhs.
func Equal(name string, e Expr, rhs float64) Constraint {
	return Constraint{Name: name, Expr: e, Sense: EQ, Rhs: rhs}
}

// bounds returns the row bounds with the expression constant moved to the
// right hand side.
func (c Constraint) bounds() (float64, float64) {
	rhs := c.Rhs - c.Expr.Constant
	switch c.Sense {
	case LE:
		return math.Inf(-1), rhs
	case GE:
		return rhs, math.Inf(1)
	default:
		return rhs, rhs
	}
}

// Satisfied reports whether the constraint holds within tol.
func (c Constraint) Satisfied(value func(Var) float64, tol float64) bool {
	lhs := c.Expr.Eval(value)
	switch c.Sense {
	case LE:
		return lhs <= c.Rhs+tol
	case GE:
		return lhs >= c.Rhs-tol
	default:
		return math.Abs(lhs-c.Rhs) <= tol
	}
}

func (c Constraint) String() string {
	return fmt.Sprintf("%s: %d terms %v %g", c.Name, len(c.Expr.Terms), c.Sense, c.Rhs-c.Expr.Constant)
}
