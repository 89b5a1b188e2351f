package model

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
)

// VariableSpace is the view of a model that selectors and generators work
// against.
type VariableSpace interface {
	Timesteps() []int
	FlowKeys() []energysystem.FlowKey
	FlowOf(key energysystem.FlowKey) (*energysystem.Flow, error)
	FlowVar(key energysystem.FlowKey, t int) (Var, error)
	Inflows(label string) []energysystem.FlowKey
	Outflows(label string) []energysystem.FlowKey
	Aux(name string) (Var, error)
}

// Selector picks a subset of the model's flows.
type Selector func(vs VariableSpace) ([]energysystem.FlowKey, error)

// HasAttribute selects every flow carrying the extension attribute name.
func HasAttribute(name string) Selector {
	return Where(func(_ energysystem.FlowKey, f *energysystem.Flow) bool {
		return f.HasAttribute(name)
	})
}

// Where selects every flow for which pred holds, in build order.
func Where(pred func(energysystem.FlowKey, *energysystem.Flow) bool) Selector {
	return func(vs VariableSpace) ([]energysystem.FlowKey, error) {
		var keys []energysystem.FlowKey
		for _, key := range vs.FlowKeys() {
			f, err := vs.FlowOf(key)
			if err != nil {
				return nil, err
			}
			if pred(key, f) {
				keys = append(keys, key)
			}
		}
		return keys, nil
	}
}

// Keys selects exactly the given flows. Every key must exist.
func Keys(keys ...energysystem.FlowKey) Selector {
	return func(vs VariableSpace) ([]energysystem.FlowKey, error) {
		for _, key := range keys {
			if _, err := vs.FlowOf(key); err != nil {
				return nil, err
			}
		}
		return append([]energysystem.FlowKey(nil), keys...), nil
	}
}

// Sets holds the evaluated flow sets of a block.
type Sets struct {
	block string
	sets  map[string][]energysystem.FlowKey
}

// Get returns the set declared as name.
func (s Sets) Get(name string) ([]energysystem.FlowKey, error) {
	keys, ok := s.sets[name]
	if !ok {
		return nil, UnknownSetError{Block: s.block, Set: name}
	}
	return append([]energysystem.FlowKey(nil), keys...), nil
}

// Names returns the declared set names, sorted.
func (s Sets) Names() []string {
	names := make([]string, 0, len(s.sets))
	for name := range s.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generator produces the constraints of one named block constraint.
type Generator func(vs VariableSpace, sets Sets) ([]Constraint, error)

// FlowStepRule returns the constraint for flow key at step t. Returning
// false skips the index.
type FlowStepRule func(vs VariableSpace, key energysystem.FlowKey, t int) (Constraint, bool, error)

// ForEachFlowStep indexes rule over set x TIMESTEPS.
func ForEachFlowStep(set string, rule FlowStepRule) Generator {
	return func(vs VariableSpace, sets Sets) ([]Constraint, error) {
		keys, err := sets.Get(set)
		if err != nil {
			return nil, err
		}
		var cons []Constraint
		for _, key := range keys {
			for _, t := range vs.Timesteps() {
				c, ok, err := rule(vs, key, t)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
				if c.Name == "" {
					c.Name = fmt.Sprintf("(%s,%s,%d)", key.From, key.To, t)
				}
				cons = append(cons, c)
			}
		}
		return cons, nil
	}
}

type namedSet struct {
	name string
	sel  Selector
}

type auxVar struct {
	name  string
	lower float64
	upper float64
	cost  float64
}

type namedGenerator struct {
	name string
	gen  Generator
}

// Block groups user-defined sets, auxiliary variables and constraints that
// are added to a model in one step.
type Block struct {
	name string
	sets []namedSet
	vars []auxVar
	cons []namedGenerator
}

func NewBlock(name string) *Block {
	return &Block{name: name}
}

// Name returns the block name.
func (b *Block) Name() string {
	return b.name
}

// Set declares a flow set evaluated once when the block is added.
func (b *Block) Set(name string, sel Selector) *Block {
	b.sets = append(b.sets, namedSet{name: name, sel: sel})
	return b
}

// Variable declares an auxiliary column with the given bounds and objective
// coefficient.
func (b *Block) Variable(name string, lower, upper, cost float64) *Block {
	b.vars = append(b.vars, auxVar{name: name, lower: lower, upper: upper, cost: cost})
	return b
}

// Constraint declares a named constraint family.
func (b *Block) Constraint(name string, gen Generator) *Block {
	b.cons = append(b.cons, namedGenerator{name: name, gen: gen})
	return b
}

// Component is a block after registration: its evaluated sets, auxiliary
// variables and generated constraints.
type Component struct {
	Name        string
	Sets        map[string][]energysystem.FlowKey
	Variables   map[string]Var
	Constraints []Constraint
}

type blockSpace struct {
	*Model
	block string
	aux   map[string]Var
}

func (bs blockSpace) FlowOf(key energysystem.FlowKey) (*energysystem.Flow, error) {
	f, err := bs.Model.FlowOf(key)
	return f, bs.tag(err)
}

func (bs blockSpace) FlowVar(key energysystem.FlowKey, t int) (Var, error) {
	v, err := bs.Model.FlowVar(key, t)
	return v, bs.tag(err)
}

func (bs blockSpace) Aux(name string) (Var, error) {
	v, ok := bs.aux[name]
	if !ok {
		return 0, UnknownVariableError{Block: bs.block, Name: name}
	}
	return v, nil
}

func (bs blockSpace) tag(err error) error {
	var unknown UnknownFlowKeyError
	if errors.As(err, &unknown) && unknown.Block == "" {
		unknown.Block = bs.block
		return unknown
	}
	return err
}

// AddBlock evaluates the selectors of b once, runs its generators and adds
// the result to the model. On error the model is left unchanged.
func (m *Model) AddBlock(b *Block) error {
	if m.status != lp.NotSolved {
		return ErrAlreadySolved
	}
	if b == nil || b.name == "" {
		return errors.New("model: block needs a name")
	}
	if _, exists := m.components[b.name]; exists {
		return DuplicateBlockError{Name: b.name}
	}

	bs := blockSpace{Model: m, block: b.name, aux: make(map[string]Var)}
	newVars := make([]variable, 0, len(b.vars))
	for _, av := range b.vars {
		if _, exists := bs.aux[av.name]; exists {
			return fmt.Errorf("model: block %q declares variable %q twice", b.name, av.name)
		}
		if math.IsNaN(av.lower) || math.IsNaN(av.upper) || av.lower > av.upper {
			return fmt.Errorf("model: block %q variable %q has bounds [%g, %g]", b.name, av.name, av.lower, av.upper)
		}
		bs.aux[av.name] = Var(len(m.vars) + len(newVars))
		newVars = append(newVars, variable{
			name:  fmt.Sprintf("%s.%s", b.name, av.name),
			lower: av.lower,
			upper: av.upper,
			cost:  av.cost,
		})
	}

	sets := Sets{block: b.name, sets: make(map[string][]energysystem.FlowKey)}
	for _, ns := range b.sets {
		if _, exists := sets.sets[ns.name]; exists {
			return fmt.Errorf("model: block %q declares set %q twice", b.name, ns.name)
		}
		keys, err := ns.sel(bs)
		if err != nil {
			return bs.tag(err)
		}
		sets.sets[ns.name] = keys
	}

	numVars := len(m.vars) + len(newVars)
	var cons []Constraint
	for _, ng := range b.cons {
		generated, err := ng.gen(bs, sets)
		if err != nil {
			return bs.tag(err)
		}
		for i, c := range generated {
			if err := checkConstraint(c, numVars); err != nil {
				return fmt.Errorf("model: block %q constraint %q: %w", b.name, ng.name, err)
			}
			suffix := c.Name
			if suffix == "" && len(generated) > 1 {
				suffix = fmt.Sprintf("[%d]", i)
			}
			c.Name = fmt.Sprintf("%s.%s%s", b.name, ng.name, suffix)
			cons = append(cons, c)
		}
	}

	m.vars = append(m.vars, newVars...)
	m.cons = append(m.cons, cons...)
	m.components[b.name] = &Component{
		Name:        b.name,
		Sets:        sets.sets,
		Variables:   bs.aux,
		Constraints: cons,
	}
	m.order = append(m.order, b.name)

	log.Printf("[Model] block %s: %d variables, %d constraints\n", b.name, len(newVars), len(cons))
	return nil
}

func checkConstraint(c Constraint, numVars int) error {
	if math.IsNaN(c.Rhs) || math.IsInf(c.Rhs, 0) || math.IsNaN(c.Expr.Constant) {
		return fmt.Errorf("right hand side %g is not finite", c.Rhs-c.Expr.Constant)
	}
	for _, t := range c.Expr.Terms {
		if t.Var < 0 || int(t.Var) >= numVars {
			return fmt.Errorf("variable %d out of range", t.Var)
		}
		if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
			return fmt.Errorf("coefficient %g of variable %d is not finite", t.Coef, t.Var)
		}
	}
	return nil
}

// Block returns the registered block name.
func (m *Model) Block(name string) (*Component, bool) {
	c, ok := m.components[name]
	return c, ok
}

// Blocks returns the registered block names in registration order.
func (m *Model) Blocks() []string {
	return append([]string(nil), m.order...)
}
