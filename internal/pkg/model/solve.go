package model

import (
	"context"
	"fmt"
	"log"

	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
	"github.com/ohowland/cgc_energymodel/internal/pkg/solver"
)

// Solve hands the model to the named solver and keeps an optimal solution
// for extraction. A non-optimal outcome is returned as an error alongside
// its status.
func (m *Model) Solve(ctx context.Context, name string, opts ...solver.Option) (lp.Status, error) {
	if m.status != lp.NotSolved {
		return m.status, ErrAlreadySolved
	}

	sol, err := solver.Run(ctx, name, m.Problem(), opts...)
	if sol != nil {
		m.status = sol.Status
	}
	if err != nil {
		log.Printf("[Model] %v: solve with %s failed: %v\n", m.pid, name, err)
		return m.status, err
	}

	m.solution = sol
	log.Printf("[Model] %v: %v, objective %g\n", m.pid, sol.Status, sol.Objective)
	return m.status, nil
}

// Status returns the outcome of the last solve.
func (m *Model) Status() lp.Status {
	return m.status
}

// Solved reports whether an optimal solution is available.
func (m *Model) Solved() bool {
	return m.solution != nil
}

// Value returns the solution value of v.
func (m *Model) Value(v Var) (float64, error) {
	if m.solution == nil {
		return 0, ErrNotSolved
	}
	if v < 0 || int(v) >= len(m.solution.X) {
		return 0, UnknownVariableError{Name: fmt.Sprint(v)}
	}
	return m.solution.X[v], nil
}

// Objective returns the optimal objective value.
func (m *Model) Objective() (float64, error) {
	if m.solution == nil {
		return 0, ErrNotSolved
	}
	return m.solution.Objective, nil
}

// FlowValues returns the solution sequence of key, one value per step.
func (m *Model) FlowValues(key energysystem.FlowKey) ([]float64, error) {
	if m.solution == nil {
		return nil, ErrNotSolved
	}
	base, ok := m.flowBase[key]
	if !ok {
		return nil, UnknownFlowKeyError{Flow: key}
	}
	return append([]float64(nil), m.solution.X[base:base+m.steps]...), nil
}

// Satisfied reports whether c holds for the current solution within tol.
func (m *Model) Satisfied(c Constraint, tol float64) (bool, error) {
	if m.solution == nil {
		return false, ErrNotSolved
	}
	return c.Satisfied(func(v Var) float64 { return m.solution.X[v] }, tol), nil
}
