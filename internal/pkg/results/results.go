// Package results turns a solved model into per-flow time series.
package results

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/lp"
	"github.com/ohowland/cgc_energymodel/internal/pkg/model"
)

// FlowResult is the solved sequence of one flow plus a copy of its
// attributes.
type FlowResult struct {
	Sequence   []float64
	Attributes map[string]energysystem.Value
}

// Result holds the outcome of one model run.
type Result struct {
	PID        uuid.UUID
	Status     lp.Status
	Objective  float64
	Timestamps []time.Time
	Flows      map[energysystem.FlowKey]FlowResult
}

// Extract reads the solution of m. It fails with model.ErrNotSolved unless
// m holds an optimal solution.
func Extract(m *model.Model) (Result, error) {
	if !m.Solved() {
		return Result{}, model.ErrNotSolved
	}
	obj, err := m.Objective()
	if err != nil {
		return Result{}, err
	}

	r := Result{
		PID:        m.PID(),
		Status:     m.Status(),
		Objective:  obj,
		Timestamps: m.EnergySystem().TimeIndex().Times(),
		Flows:      make(map[energysystem.FlowKey]FlowResult),
	}
	for key, f := range m.Flows() {
		seq, err := m.FlowValues(key)
		if err != nil {
			return Result{}, err
		}
		r.Flows[key] = FlowResult{Sequence: seq, Attributes: f.Attributes()}
	}
	return r, nil
}

// Keys returns the flow keys ordered by source then target label.
func (r Result) Keys() []energysystem.FlowKey {
	keys := make([]energysystem.FlowKey, 0, len(r.Flows))
	for k := range r.Flows {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].From != keys[j].From {
			return keys[i].From < keys[j].From
		}
		return keys[i].To < keys[j].To
	})
	return keys
}

// Flow returns the result of key.
func (r Result) Flow(key energysystem.FlowKey) (FlowResult, bool) {
	fr, ok := r.Flows[key]
	return fr, ok
}

// Sum returns the sum of key's sequence, or 0 for an unknown key.
func (r Result) Sum(key energysystem.FlowKey) float64 {
	total := 0.0
	for _, v := range r.Flows[key].Sequence {
		total += v
	}
	return total
}

// FromNode returns the results of every flow leaving label.
func (r Result) FromNode(label string) map[energysystem.FlowKey]FlowResult {
	return r.filter(func(k energysystem.FlowKey) bool { return k.From == label })
}

// ToNode returns the results of every flow entering label.
func (r Result) ToNode(label string) map[energysystem.FlowKey]FlowResult {
	return r.filter(func(k energysystem.FlowKey) bool { return k.To == label })
}

func (r Result) filter(keep func(energysystem.FlowKey) bool) map[energysystem.FlowKey]FlowResult {
	out := make(map[energysystem.FlowKey]FlowResult)
	for k, fr := range r.Flows {
		if keep(k) {
			out[k] = fr
		}
	}
	return out
}

// WeightedSum returns Σ_t flow[t] * attr[t] over every flow carrying attr.
func (r Result) WeightedSum(attr string) float64 {
	total := 0.0
	for _, fr := range r.Flows {
		total += fr.weighted(attr)
	}
	return total
}

// Emissions returns the attr-weighted sum of the flows leaving from.
func (r Result) Emissions(attr, from string) float64 {
	total := 0.0
	for _, fr := range r.FromNode(from) {
		total += fr.weighted(attr)
	}
	return total
}

func (fr FlowResult) weighted(attr string) float64 {
	v, ok := fr.Attributes[attr]
	if !ok {
		return 0
	}
	total := 0.0
	for t, x := range fr.Sequence {
		if v.IsSeries() && t >= v.Len() {
			break
		}
		total += x * v.At(t)
	}
	return total
}
