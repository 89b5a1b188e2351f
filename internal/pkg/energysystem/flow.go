package energysystem

import (
	"fmt"
	"sort"
)

// FlowKey identifies a flow by its ordered pair of node labels.
type FlowKey struct {
	From string
	To   string
}

func (k FlowKey) String() string {
	return fmt.Sprintf("(%s, %s)", k.From, k.To)
}

// Flow is a directed, time-indexed edge between two nodes. Static attributes
// are set through FlowOptions at construction; extension attributes may be
// attached at any time afterwards.
type Flow struct {
	nominalValue  float64
	hasNominal    bool
	series        []float64
	fixed         bool
	min           []float64
	summedMax     float64
	hasSummedMax  bool
	variableCosts Value
	attributes    map[string]Value
}

// FlowOption configures a Flow.
type FlowOption func(*Flow)

// NewFlow returns a Flow configured by opts.
func NewFlow(opts ...FlowOption) *Flow {
	f := &Flow{
		variableCosts: Scalar(0),
		attributes:    make(map[string]Value),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NominalValue sets the flow's capacity. math.Inf(1) declares it unbounded.
func NominalValue(v float64) FlowOption {
	return func(f *Flow) {
		f.nominalValue = v
		f.hasNominal = true
	}
}

// Fix pins the flow to nominal value times series at every step.
func Fix(series ...float64) FlowOption {
	return func(f *Flow) {
		f.series = append([]float64(nil), series...)
		f.fixed = true
	}
}

// Profile bounds the flow by nominal value times series at every step.
func Profile(series ...float64) FlowOption {
	return func(f *Flow) {
		f.series = append([]float64(nil), series...)
		f.fixed = false
	}
}

// Min sets a lower bound of nominal value times series at every step.
func Min(series ...float64) FlowOption {
	return func(f *Flow) {
		f.min = append([]float64(nil), series...)
	}
}

// SummedMax limits the flow's energy over the horizon to v times the nominal
// value.
func SummedMax(v float64) FlowOption {
	return func(f *Flow) {
		f.summedMax = v
		f.hasSummedMax = true
	}
}

// VariableCosts sets a cost per unit of flow, equal at every step.
func VariableCosts(v float64) FlowOption {
	return func(f *Flow) {
		f.variableCosts = Scalar(v)
	}
}

// VariableCostSeries sets a cost per unit of flow for each step.
func VariableCostSeries(vs ...float64) FlowOption {
	return func(f *Flow) {
		f.variableCosts = Series(vs...)
	}
}

// NominalValue returns the capacity and whether one was set.
func (f *Flow) NominalValue() (float64, bool) {
	return f.nominalValue, f.hasNominal
}

// Series returns the per-step target series, nil when absent.
func (f *Flow) Series() []float64 {
	return f.series
}

// Fixed reports whether the flow is pinned rather than bounded.
func (f *Flow) Fixed() bool {
	return f.fixed
}

// MinSeries returns the relative lower bound series, nil when absent.
func (f *Flow) MinSeries() []float64 {
	return f.min
}

// SummedMax returns the relative integral limit and whether one was set.
func (f *Flow) SummedMax() (float64, bool) {
	return f.summedMax, f.hasSummedMax
}

// VariableCosts returns the per-step variable cost.
func (f *Flow) VariableCosts() Value {
	return f.variableCosts
}

// SetAttribute attaches an extension attribute. Nothing about its meaning is
// checked here.
func (f *Flow) SetAttribute(name string, v Value) {
	if f.attributes == nil {
		f.attributes = make(map[string]Value)
	}
	f.attributes[name] = v
}

// Attribute returns the named extension attribute.
func (f *Flow) Attribute(name string) (Value, bool) {
	v, ok := f.attributes[name]
	return v, ok
}

// HasAttribute reports whether the named extension attribute is attached.
func (f *Flow) HasAttribute(name string) bool {
	_, ok := f.attributes[name]
	return ok
}

// Attributes returns a copy of the extension attributes.
func (f *Flow) Attributes() map[string]Value {
	cp := make(map[string]Value, len(f.attributes))
	for k, v := range f.attributes {
		cp[k] = v
	}
	return cp
}

// AttributeNames returns the sorted names of the extension attributes.
func (f *Flow) AttributeNames() []string {
	names := make([]string, 0, len(f.attributes))
	for k := range f.attributes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
