package model

import (
	"fmt"
	"io"
	"log"
	"math"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
)

type variable struct {
	name  string
	lower float64
	upper float64
	cost  float64
}

// Model is the solver-ready form of one EnergySystem: one variable per
// (flow, time step), the structural constraints and any registered blocks.
// A Model serves exactly one solve.
type Model struct {
	pid        uuid.UUID
	es         *energysystem.EnergySystem
	steps      int
	flowKeys   []energysystem.FlowKey
	flowBase   map[energysystem.FlowKey]int
	vars       []variable
	cons       []Constraint
	components map[string]*Component
	order      []string
	weighting  bool
	solution   *lp.Solution
	status     lp.Status
}

// Option configures the model builder.
type Option func(*Model)

// WithObjectiveWeighting toggles weighting of variable costs by the length
// of each time step in hours. On by default.
func WithObjectiveWeighting(on bool) Option {
	return func(m *Model) {
		m.weighting = on
	}
}

// New builds the model of es. Series lengths and flow bounds are checked
// before anything is generated.
func New(es *energysystem.EnergySystem, opts ...Option) (*Model, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	m := &Model{
		pid:        pid,
		es:         es,
		steps:      es.TimeIndex().Len(),
		flowKeys:   es.FlowKeys(),
		flowBase:   make(map[energysystem.FlowKey]int),
		components: make(map[string]*Component),
		weighting:  true,
		status:     lp.NotSolved,
	}
	for _, opt := range opts {
		opt(m)
	}

	if err := m.checkDimensions(); err != nil {
		return nil, err
	}
	if err := m.checkBounds(); err != nil {
		return nil, err
	}
	if err := m.addFlowVariables(); err != nil {
		return nil, err
	}
	m.addBusBalance()
	m.addConverterRatios()
	m.addSummedMax()

	log.Printf("[Model] %v: %d flows, %d time steps, %d variables, %d constraints\n",
		m.pid, len(m.flowKeys), m.steps, len(m.vars), len(m.cons))
	return m, nil
}

func (m *Model) checkDimensions() error {
	for _, key := range m.flowKeys {
		f, _ := m.es.Flow(key)
		if s := f.Series(); s != nil && len(s) != m.steps {
			return energysystem.DimensionMismatchError{Flow: key, Field: "series", Got: len(s), Want: m.steps}
		}
		if s := f.MinSeries(); s != nil && len(s) != m.steps {
			return energysystem.DimensionMismatchError{Flow: key, Field: "min", Got: len(s), Want: m.steps}
		}
		if err := energysystem.CheckValue(key, "variable_costs", f.VariableCosts(), m.steps); err != nil {
			return err
		}
	}

	for _, n := range m.es.Nodes() {
		c, ok := n.(*energysystem.Converter)
		if !ok {
			continue
		}
		for _, key := range m.converterFlows(c) {
			peer := key.From
			if peer == c.Label() {
				peer = key.To
			}
			if err := energysystem.CheckValue(key, "conversion_factor", c.ConversionFactor(peer), m.steps); err != nil {
				return err
			}
		}
	}
	return nil
}

// checkBounds rejects flows without a nominal value that take part in no
// bus balance and no converter relation.
func (m *Model) checkBounds() error {
	tied := make(map[energysystem.FlowKey]bool)
	for _, n := range m.es.Nodes() {
		switch n.Kind() {
		case energysystem.KindBus:
			for _, key := range m.es.Inflows(n.Label()) {
				tied[key] = true
			}
			for _, key := range m.es.Outflows(n.Label()) {
				tied[key] = true
			}
		case energysystem.KindConverter:
			in, out := m.es.Inflows(n.Label()), m.es.Outflows(n.Label())
			if len(in) == 0 || len(out) == 0 {
				continue
			}
			for _, key := range append(in, out...) {
				tied[key] = true
			}
		}
	}

	for _, key := range m.flowKeys {
		f, _ := m.es.Flow(key)
		if _, ok := f.NominalValue(); !ok && !tied[key] {
			return MissingFlowBoundsError{Flow: key}
		}
	}
	return nil
}

func (m *Model) addFlowVariables() error {
	ti := m.es.TimeIndex()
	for _, key := range m.flowKeys {
		f, _ := m.es.Flow(key)
		m.flowBase[key] = len(m.vars)
		for t := 0; t < m.steps; t++ {
			lo, up := flowBounds(f, t)
			if lo > up {
				return energysystem.InvalidFlowError{
					Flow:   key,
					Reason: fmt.Sprintf("lower bound %g above upper bound %g at step %d", lo, up, t),
				}
			}
			cost := f.VariableCosts().At(t)
			if m.weighting {
				cost *= ti.Increment(t)
			}
			m.vars = append(m.vars, variable{
				name:  fmt.Sprintf("flow(%s,%s,%d)", key.From, key.To, t),
				lower: lo,
				upper: up,
				cost:  cost,
			})
		}
	}
	return nil
}

// flowBounds returns the column bounds of f at step t. A fixed flow gets
// equal bounds.
func flowBounds(f *energysystem.Flow, t int) (float64, float64) {
	lo, up := 0.0, math.Inf(1)
	nominal, ok := f.NominalValue()
	if !ok || math.IsInf(nominal, 1) {
		return lo, up
	}

	up = nominal
	if s := f.Series(); s != nil {
		up = nominal * s[t]
	}
	if s := f.MinSeries(); s != nil {
		lo = nominal * s[t]
	}
	if f.Fixed() {
		lo = up
	}
	return lo, up
}

func (m *Model) addBusBalance() {
	for _, n := range m.es.Nodes() {
		if n.Kind() != energysystem.KindBus {
			continue
		}
		in, out := m.es.Inflows(n.Label()), m.es.Outflows(n.Label())
		if len(in) == 0 && len(out) == 0 {
			continue
		}
		for t := 0; t < m.steps; t++ {
			var e Expr
			for _, key := range in {
				e = e.Plus(m.mustVar(key, t), 1)
			}
			for _, key := range out {
				e = e.Plus(m.mustVar(key, t), -1)
			}
			m.cons = append(m.cons, Equal(fmt.Sprintf("balance(%s,%d)", n.Label(), t), e, 0))
		}
	}
}

// addConverterRatios ties every input/output pair of a converter:
// input_i · factor(o) = output_o · factor(i).
func (m *Model) addConverterRatios() {
	for _, n := range m.es.Nodes() {
		c, ok := n.(*energysystem.Converter)
		if !ok {
			continue
		}
		for _, in := range m.es.Inflows(c.Label()) {
			for _, out := range m.es.Outflows(c.Label()) {
				cfIn := c.ConversionFactor(in.From)
				cfOut := c.ConversionFactor(out.To)
				for t := 0; t < m.steps; t++ {
					e := Expr{}.
						Plus(m.mustVar(in, t), cfOut.At(t)).
						Plus(m.mustVar(out, t), -cfIn.At(t))
					name := fmt.Sprintf("conversion(%s,%s,%s,%d)", c.Label(), in.From, out.To, t)
					m.cons = append(m.cons, Equal(name, e, 0))
				}
			}
		}
	}
}

func (m *Model) addSummedMax() {
	ti := m.es.TimeIndex()
	for _, key := range m.flowKeys {
		f, _ := m.es.Flow(key)
		limit, ok := f.SummedMax()
		if !ok {
			continue
		}
		nominal, _ := f.NominalValue()
		var e Expr
		for t := 0; t < m.steps; t++ {
			e = e.Plus(m.mustVar(key, t), ti.Increment(t))
		}
		m.cons = append(m.cons, LessEqual(fmt.Sprintf("summed_max(%s,%s)", key.From, key.To), e, limit*nominal))
	}
}

func (m *Model) converterFlows(c *energysystem.Converter) []energysystem.FlowKey {
	return append(m.es.Inflows(c.Label()), m.es.Outflows(c.Label())...)
}

func (m *Model) mustVar(key energysystem.FlowKey, t int) Var {
	return Var(m.flowBase[key] + t)
}

// PID identifies this model run.
func (m *Model) PID() uuid.UUID {
	return m.pid
}

// EnergySystem returns the system the model was built from.
func (m *Model) EnergySystem() *energysystem.EnergySystem {
	return m.es
}

// Timesteps returns the index domain 0..N-1.
func (m *Model) Timesteps() []int {
	return m.es.TimeIndex().Timesteps()
}

// FlowKeys returns the flow keys of the variable space in build order.
func (m *Model) FlowKeys() []energysystem.FlowKey {
	return append([]energysystem.FlowKey(nil), m.flowKeys...)
}

// Flows maps every flow key to its live Flow, so extension attributes can be
// read and attached.
func (m *Model) Flows() map[energysystem.FlowKey]*energysystem.Flow {
	flows := make(map[energysystem.FlowKey]*energysystem.Flow, len(m.flowKeys))
	for _, key := range m.flowKeys {
		flows[key], _ = m.es.Flow(key)
	}
	return flows
}

// FlowOf returns the Flow behind key.
func (m *Model) FlowOf(key energysystem.FlowKey) (*energysystem.Flow, error) {
	if _, ok := m.flowBase[key]; !ok {
		return nil, UnknownFlowKeyError{Flow: key}
	}
	f, _ := m.es.Flow(key)
	return f, nil
}

// Flow returns the variable of the flow from -> to at step t.
func (m *Model) Flow(from, to string, t int) (Var, error) {
	return m.FlowVar(energysystem.FlowKey{From: from, To: to}, t)
}

// FlowVar returns the variable of key at step t.
func (m *Model) FlowVar(key energysystem.FlowKey, t int) (Var, error) {
	base, ok := m.flowBase[key]
	if !ok {
		return 0, UnknownFlowKeyError{Flow: key}
	}
	if t < 0 || t >= m.steps {
		return 0, TimestepError{Step: t, Len: m.steps}
	}
	return Var(base + t), nil
}

// Inflows returns the keys of the flows ending at label.
func (m *Model) Inflows(label string) []energysystem.FlowKey {
	return m.es.Inflows(label)
}

// Outflows returns the keys of the flows starting at label.
func (m *Model) Outflows(label string) []energysystem.FlowKey {
	return m.es.Outflows(label)
}

// Aux is only meaningful inside a block; see Block.Variable.
func (m *Model) Aux(name string) (Var, error) {
	return 0, UnknownVariableError{Name: name}
}

// NumVars returns the number of columns.
func (m *Model) NumVars() int {
	return len(m.vars)
}

// VarName returns the name of v.
func (m *Model) VarName(v Var) string {
	return m.vars[v].name
}

// Bounds returns the column bounds of v.
func (m *Model) Bounds(v Var) (float64, float64) {
	return m.vars[v].lower, m.vars[v].upper
}

// Cost returns the objective coefficient of v.
func (m *Model) Cost(v Var) float64 {
	return m.vars[v].cost
}

// Constraints returns every constraint, structural ones first.
func (m *Model) Constraints() []Constraint {
	return append([]Constraint(nil), m.cons...)
}

// Problem translates the model into canonical LP form.
func (m *Model) Problem() *lp.Problem {
	p := &lp.Problem{}
	for _, v := range m.vars {
		p.AddColumn(v.name, v.cost, v.lower, v.upper)
	}
	for _, c := range m.cons {
		cols, vals := c.Expr.merged()
		lo, up := c.bounds()
		p.AddRow(c.Name, lo, cols, vals, up)
	}
	return p
}

// WriteLP writes the model in LP file format with readable names.
func (m *Model) WriteLP(w io.Writer) error {
	return lp.WriteLP(w, m.Problem(), lp.ProblemNames)
}
