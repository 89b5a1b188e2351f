package model

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
	"github.com/ohowland/cgc_energymodel/internal/pkg/timeindex"
	"gotest.tools/v3/assert"
)

const eps = 1e-6

var demand = []float64{20, 16, 12, 40}

func hourly(t *testing.T, periods int) timeindex.TimeIndex {
	t.Helper()
	ti, err := timeindex.New(time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), periods, time.Hour)
	assert.NilError(t, err)
	return ti
}

// newPowerPlants returns the oil/lignite system: two commodity buses feeding
// one power plant each, both serving a fixed demand.
func newPowerPlants(t *testing.T) *energysystem.EnergySystem {
	t.Helper()
	es := energysystem.New(hourly(t, 4))

	oil := energysystem.NewBus("oil")
	lig := energysystem.NewBus("lignite")
	el := energysystem.NewBus("b_el")
	assert.NilError(t, es.Add(oil, lig, el))

	sink := energysystem.NewSink("demand").
		Input(el, energysystem.NewFlow(energysystem.NominalValue(40), energysystem.Fix(0.5, 0.4, 0.3, 1)))
	ppOil := energysystem.NewConverter("pp_oil").
		Input(oil, energysystem.NewFlow()).
		Output(el, energysystem.NewFlow(energysystem.NominalValue(50), energysystem.VariableCosts(25)), energysystem.Scalar(0.39))
	ppLig := energysystem.NewConverter("pp_lig").
		Input(lig, energysystem.NewFlow()).
		Output(el, energysystem.NewFlow(energysystem.NominalValue(50), energysystem.VariableCosts(10)), energysystem.Scalar(0.41))
	oilSource := energysystem.NewSource("oil source").Output(oil, energysystem.NewFlow())
	ligSource := energysystem.NewSource("lignite source").Output(lig, energysystem.NewFlow())
	assert.NilError(t, es.Add(sink, ppOil, ppLig, oilSource, ligSource))
	return es
}

func key(from, to string) energysystem.FlowKey {
	return energysystem.FlowKey{From: from, To: to}
}

func flowSeries(t *testing.T, m *Model, k energysystem.FlowKey) []float64 {
	t.Helper()
	vs, err := m.FlowValues(k)
	assert.NilError(t, err)
	return vs
}

func total(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum
}

func TestNewVariableSpace(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)

	assert.Equal(t, len(m.FlowKeys()), 7)
	assert.Equal(t, m.NumVars(), 7*4)
	assert.DeepEqual(t, m.Timesteps(), []int{0, 1, 2, 3})

	seen := make(map[Var]bool)
	for _, k := range m.FlowKeys() {
		for _, ts := range m.Timesteps() {
			v, err := m.FlowVar(k, ts)
			assert.NilError(t, err)
			assert.Assert(t, !seen[v], "variable %d reused", v)
			seen[v] = true
		}
	}
	assert.Equal(t, len(seen), m.NumVars())

	v, err := m.Flow("pp_lig", "b_el", 2)
	assert.NilError(t, err)
	assert.Equal(t, m.VarName(v), "flow(pp_lig,b_el,2)")
	assert.Equal(t, m.Cost(v), 10.0)
}

func TestNewStructuralConstraints(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)

	counts := make(map[string]int)
	for _, c := range m.Constraints() {
		counts[c.Name[:strings.Index(c.Name, "(")]]++
	}
	assert.Equal(t, counts["balance"], 3*4)
	assert.Equal(t, counts["conversion"], 2*4)
	assert.Equal(t, len(m.Constraints()), 20)
}

func TestNewFlowBounds(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)

	for ts, want := range demand {
		v, err := m.Flow("b_el", "demand", ts)
		assert.NilError(t, err)
		lo, up := m.Bounds(v)
		assert.Equal(t, lo, want)
		assert.Equal(t, up, want)
	}

	v, err := m.Flow("pp_oil", "b_el", 0)
	assert.NilError(t, err)
	lo, up := m.Bounds(v)
	assert.Equal(t, lo, 0.0)
	assert.Equal(t, up, 50.0)

	v, err = m.Flow("oil source", "oil", 0)
	assert.NilError(t, err)
	_, up = m.Bounds(v)
	assert.Assert(t, math.IsInf(up, 1))
}

func TestNewProfileMinAndSummedMax(t *testing.T) {
	es := energysystem.New(hourly(t, 3))
	el := energysystem.NewBus("el")
	pv := energysystem.NewSource("pv").Output(el, energysystem.NewFlow(
		energysystem.NominalValue(10),
		energysystem.Profile(0.2, 0.8, 0),
		energysystem.SummedMax(0.5)))
	gen := energysystem.NewSource("gen").Output(el, energysystem.NewFlow(
		energysystem.NominalValue(5),
		energysystem.Min(0.1, 0.1, 0.1),
		energysystem.VariableCostSeries(1, 2, 3)))
	load := energysystem.NewSink("load").Input(el, energysystem.NewFlow(
		energysystem.NominalValue(4), energysystem.Fix(1, 1, 1)))
	assert.NilError(t, es.Add(el, pv, gen, load))

	m, err := New(es)
	assert.NilError(t, err)

	v, _ := m.Flow("pv", "el", 1)
	lo, up := m.Bounds(v)
	assert.Equal(t, lo, 0.0)
	assert.Equal(t, up, 8.0)

	v, _ = m.Flow("gen", "el", 2)
	lo, up = m.Bounds(v)
	assert.Assert(t, math.Abs(lo-0.5) < eps)
	assert.Equal(t, up, 5.0)
	assert.Equal(t, m.Cost(v), 3.0)

	var summed []Constraint
	for _, c := range m.Constraints() {
		if strings.HasPrefix(c.Name, "summed_max") {
			summed = append(summed, c)
		}
	}
	assert.Equal(t, len(summed), 1)
	assert.Equal(t, summed[0].Rhs, 5.0)
	assert.Equal(t, summed[0].Sense, LE)
}

func TestNewMissingFlowBounds(t *testing.T) {
	es := energysystem.New(hourly(t, 2))
	src := energysystem.NewSource("src")
	snk := energysystem.NewSink("snk").Input(src, energysystem.NewFlow())
	assert.NilError(t, es.Add(src, snk))

	_, err := New(es)
	var missing MissingFlowBoundsError
	assert.Assert(t, errors.As(err, &missing))
	assert.Equal(t, missing.Flow, key("src", "snk"))

	es = energysystem.New(hourly(t, 2))
	src = energysystem.NewSource("src")
	snk = energysystem.NewSink("snk").Input(src, energysystem.NewFlow(energysystem.NominalValue(math.Inf(1))))
	assert.NilError(t, es.Add(src, snk))
	_, err = New(es)
	assert.NilError(t, err)
}

func TestNewDimensionMismatch(t *testing.T) {
	tests := []struct {
		name  string
		flow  *energysystem.Flow
		field string
	}{
		{"fix", energysystem.NewFlow(energysystem.NominalValue(1), energysystem.Fix(1, 1)), "series"},
		{"min", energysystem.NewFlow(energysystem.NominalValue(1), energysystem.Min(0, 0, 0, 0, 0)), "min"},
		{"costs", energysystem.NewFlow(energysystem.NominalValue(1), energysystem.VariableCostSeries(1)), "variable_costs"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			es := energysystem.New(hourly(t, 3))
			el := energysystem.NewBus("el")
			src := energysystem.NewSource("src").Output(el, tc.flow)
			assert.NilError(t, es.Add(el, src))

			_, err := New(es)
			var mismatch energysystem.DimensionMismatchError
			assert.Assert(t, errors.As(err, &mismatch))
			assert.Equal(t, mismatch.Field, tc.field)
			assert.Equal(t, mismatch.Want, 3)
		})
	}
}

func TestNewConversionFactorMismatch(t *testing.T) {
	es := energysystem.New(hourly(t, 3))
	in := energysystem.NewBus("in")
	out := energysystem.NewBus("out")
	conv := energysystem.NewConverter("conv").
		Input(in, energysystem.NewFlow()).
		Output(out, energysystem.NewFlow(), energysystem.Series(0.5, 0.5))
	assert.NilError(t, es.Add(in, out, conv))

	_, err := New(es)
	var mismatch energysystem.DimensionMismatchError
	assert.Assert(t, errors.As(err, &mismatch))
	assert.Equal(t, mismatch.Flow, key("conv", "out"))
}

func TestFlowVarErrors(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)

	_, err = m.Flow("oil", "b_el", 0)
	var unknown UnknownFlowKeyError
	assert.Assert(t, errors.As(err, &unknown))

	_, err = m.Flow("pp_oil", "b_el", 4)
	var step TimestepError
	assert.Assert(t, errors.As(err, &step))
	assert.Equal(t, step.Len, 4)
}

func TestObjectiveWeighting(t *testing.T) {
	ti, err := timeindex.FromTimes([]time.Time{
		time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2017, 1, 1, 2, 0, 0, 0, time.UTC),
	})
	assert.NilError(t, err)
	es := energysystem.New(ti)
	el := energysystem.NewBus("el")
	src := energysystem.NewSource("src").Output(el, energysystem.NewFlow(energysystem.NominalValue(1), energysystem.VariableCosts(3)))
	assert.NilError(t, es.Add(el, src))

	m, err := New(es)
	assert.NilError(t, err)
	v, _ := m.Flow("src", "el", 0)
	assert.Equal(t, m.Cost(v), 6.0)

	m, err = New(es, WithObjectiveWeighting(false))
	assert.NilError(t, err)
	v, _ = m.Flow("src", "el", 0)
	assert.Equal(t, m.Cost(v), 3.0)
}

func TestSolveMeritOrder(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)

	_, err = m.FlowValues(key("pp_lig", "b_el"))
	assert.Assert(t, errors.Is(err, ErrNotSolved))

	status, err := m.Solve(context.Background(), "simplex")
	assert.NilError(t, err)
	assert.Equal(t, status, lp.Optimal)
	assert.Assert(t, m.Solved())

	lig := flowSeries(t, m, key("pp_lig", "b_el"))
	oil := flowSeries(t, m, key("pp_oil", "b_el"))
	for ts, want := range demand {
		assert.Assert(t, math.Abs(lig[ts]-want) < eps, "step %d: %v", ts, lig)
		assert.Assert(t, math.Abs(oil[ts]) < eps, "step %d: %v", ts, oil)
	}

	fuel := flowSeries(t, m, key("lignite", "pp_lig"))
	for ts := range demand {
		assert.Assert(t, math.Abs(fuel[ts]*0.41-lig[ts]) < eps)
	}

	obj, err := m.Objective()
	assert.NilError(t, err)
	assert.Assert(t, math.Abs(obj-880) < eps)

	_, err = m.Solve(context.Background(), "simplex")
	assert.Assert(t, errors.Is(err, ErrAlreadySolved))
	assert.Assert(t, errors.Is(m.AddBlock(NewBlock("late")), ErrAlreadySolved))
}

func TestSolveAllConstraintsHold(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)
	_, err = m.Solve(context.Background(), "simplex")
	assert.NilError(t, err)

	for _, c := range m.Constraints() {
		ok, err := m.Satisfied(c, eps)
		assert.NilError(t, err)
		assert.Assert(t, ok, c.String())
	}
}

func TestSolveSingleStep(t *testing.T) {
	es := energysystem.New(hourly(t, 1))
	el := energysystem.NewBus("el")
	a := energysystem.NewSource("a").Output(el, energysystem.NewFlow(energysystem.NominalValue(10), energysystem.VariableCosts(2)))
	b := energysystem.NewSource("b").Output(el, energysystem.NewFlow(energysystem.NominalValue(10), energysystem.VariableCosts(1)))
	load := energysystem.NewSink("load").Input(el, energysystem.NewFlow(energysystem.NominalValue(15), energysystem.Fix(1)))
	assert.NilError(t, es.Add(el, a, b, load))

	m, err := New(es)
	assert.NilError(t, err)
	_, err = m.Solve(context.Background(), "simplex")
	assert.NilError(t, err)

	assert.Equal(t, len(flowSeries(t, m, key("a", "el"))), 1)
	assert.Assert(t, math.Abs(flowSeries(t, m, key("a", "el"))[0]-5) < eps)
	assert.Assert(t, math.Abs(flowSeries(t, m, key("b", "el"))[0]-10) < eps)
}

func TestSolveUnknownSolver(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)

	status, err := m.Solve(context.Background(), "no-such-solver")
	assert.ErrorContains(t, err, "no-such-solver")
	assert.Equal(t, status, lp.NotSolved)
	assert.Assert(t, !m.Solved())
}

func TestWriteLP(t *testing.T) {
	m, err := New(newPowerPlants(t))
	assert.NilError(t, err)

	var buf bytes.Buffer
	assert.NilError(t, m.WriteLP(&buf))
	out := buf.String()
	assert.Assert(t, strings.HasPrefix(out, "Minimize"))
	assert.Assert(t, strings.Contains(out, "+ 25 flow(pp_oil,b_el,0)"))
	assert.Assert(t, strings.Contains(out, " balance(b_el,3):"))
	assert.Assert(t, strings.HasSuffix(strings.TrimSpace(out), "End"))
}
