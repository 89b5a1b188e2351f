// Package constraints holds reusable blocks for the model's constraint
// extension API.
package constraints

import (
	"fmt"

	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/model"
)

// MissingAttributeError reports a flow in a constraint set that lacks the
// attribute the constraint reads.
type MissingAttributeError struct {
	Flow      energysystem.FlowKey
	Attribute string
}

func (e MissingAttributeError) Error() string {
	return fmt.Sprintf("constraints: flow %v has no attribute %q", e.Flow, e.Attribute)
}

func attribute(vs model.VariableSpace, key energysystem.FlowKey, name string) (energysystem.Value, error) {
	f, err := vs.FlowOf(key)
	if err != nil {
		return energysystem.Value{}, err
	}
	v, ok := f.Attribute(name)
	if !ok {
		return energysystem.Value{}, MissingAttributeError{Flow: key, Attribute: name}
	}
	if err := energysystem.CheckValue(key, name, v, len(vs.Timesteps())); err != nil {
		return energysystem.Value{}, err
	}
	return v, nil
}

// InflowShare forces every flow (s, e) in set to carry at least attr[t] of
// the total inflow into e:
//
//	flow[s,e,t] >= attr[t] * Σ_i flow[i,e,t]
func InflowShare(set, attr string) model.Generator {
	return model.ForEachFlowStep(set, func(vs model.VariableSpace, key energysystem.FlowKey, t int) (model.Constraint, bool, error) {
		share, err := attribute(vs, key, attr)
		if err != nil {
			return model.Constraint{}, false, err
		}
		v, err := vs.FlowVar(key, t)
		if err != nil {
			return model.Constraint{}, false, err
		}
		e := model.Expr{}.Plus(v, 1)
		for _, in := range vs.Inflows(key.To) {
			iv, err := vs.FlowVar(in, t)
			if err != nil {
				return model.Constraint{}, false, err
			}
			e = e.Plus(iv, -share.At(t))
		}
		return model.GreaterEqual("", e, 0), true, nil
	})
}

// IntegralLimit caps the attr-weighted sum of the flows in set over all
// time steps:
//
//	Σ_{k in set, t} flow[k,t] * attr_k[t] <= limit
func IntegralLimit(set, attr string, limit float64) model.Generator {
	return func(vs model.VariableSpace, sets model.Sets) ([]model.Constraint, error) {
		keys, err := sets.Get(set)
		if err != nil {
			return nil, err
		}
		var e model.Expr
		for _, key := range keys {
			weight, err := attribute(vs, key, attr)
			if err != nil {
				return nil, err
			}
			for _, t := range vs.Timesteps() {
				v, err := vs.FlowVar(key, t)
				if err != nil {
					return nil, err
				}
				e = e.Plus(v, weight.At(t))
			}
		}
		return []model.Constraint{model.LessEqual("", e, limit)}, nil
	}
}

// EmissionLimitBlock limits the emissions of every flow carrying attr.
func EmissionLimitBlock(name, attr string, limit float64) *model.Block {
	return model.NewBlock(name).
		Set("COMMODITYFLOWS", model.HasAttribute(attr)).
		Constraint("emission_limit", IntegralLimit("COMMODITYFLOWS", attr, limit))
}

// InflowShareBlock applies InflowShare to every flow carrying attr.
func InflowShareBlock(name, attr string) *model.Block {
	return model.NewBlock(name).
		Set("SHAREFLOWS", model.HasAttribute(attr)).
		Constraint("inflow_share", InflowShare("SHAREFLOWS", attr))
}
