// Package config reads JSON scenario and run files.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ohowland/cgc_energymodel/internal/pkg/energysystem"
	"github.com/ohowland/cgc_energymodel/internal/pkg/timeindex"
)

// Value is a number or a list of numbers.
type Value struct {
	Scalar float64
	Series []float64
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var scalar float64
	if err := json.Unmarshal(data, &scalar); err == nil {
		*v = Value{Scalar: scalar}
		return nil
	}
	var series []float64
	if err := json.Unmarshal(data, &series); err != nil {
		return fmt.Errorf("config: value must be a number or a list of numbers: %s", data)
	}
	*v = Value{Series: series}
	return nil
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.Series != nil {
		return json.Marshal(v.Series)
	}
	return json.Marshal(v.Scalar)
}

func (v Value) value() energysystem.Value {
	if v.Series != nil {
		return energysystem.Series(v.Series...)
	}
	return energysystem.Scalar(v.Scalar)
}

// Duration is a time.Duration written as "1h", "15m".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type TimeIndex struct {
	Start   time.Time `json:"Start"`
	Periods int       `json:"Periods"`
	Freq    Duration  `json:"Freq"`
}

type Flow struct {
	NominalValue  *float64  `json:"NominalValue"`
	Unbounded     bool      `json:"Unbounded"`
	Fix           []float64 `json:"Fix"`
	Profile       []float64 `json:"Profile"`
	Min           []float64 `json:"Min"`
	SummedMax     *float64  `json:"SummedMax"`
	VariableCosts *Value    `json:"VariableCosts"`
}

func (f Flow) build() *energysystem.Flow {
	var opts []energysystem.FlowOption
	switch {
	case f.Unbounded:
		opts = append(opts, energysystem.NominalValue(math.Inf(1)))
	case f.NominalValue != nil:
		opts = append(opts, energysystem.NominalValue(*f.NominalValue))
	}
	if f.Fix != nil {
		opts = append(opts, energysystem.Fix(f.Fix...))
	}
	if f.Profile != nil {
		opts = append(opts, energysystem.Profile(f.Profile...))
	}
	if f.Min != nil {
		opts = append(opts, energysystem.Min(f.Min...))
	}
	if f.SummedMax != nil {
		opts = append(opts, energysystem.SummedMax(*f.SummedMax))
	}
	if f.VariableCosts != nil {
		if f.VariableCosts.Series != nil {
			opts = append(opts, energysystem.VariableCostSeries(f.VariableCosts.Series...))
		} else {
			opts = append(opts, energysystem.VariableCosts(f.VariableCosts.Scalar))
		}
	}
	return energysystem.NewFlow(opts...)
}

// Edge connects a node to Peer. Factor is read for converter edges only and
// defaults to 1.
type Edge struct {
	Peer   string `json:"Peer"`
	Flow   Flow   `json:"Flow"`
	Factor *Value `json:"Factor"`
}

type Node struct {
	Label   string `json:"Label"`
	Inputs  []Edge `json:"Inputs"`
	Outputs []Edge `json:"Outputs"`
}

// Attribute attaches an extension attribute to the flow From -> To.
type Attribute struct {
	From  string `json:"From"`
	To    string `json:"To"`
	Name  string `json:"Name"`
	Value Value  `json:"Value"`
}

// Scenario describes an energy system.
type Scenario struct {
	TimeIndex  TimeIndex   `json:"TimeIndex"`
	Buses      []string    `json:"Buses"`
	Sources    []Node      `json:"Sources"`
	Sinks      []Node      `json:"Sinks"`
	Converters []Node      `json:"Converters"`
	Attributes []Attribute `json:"Attributes"`
}

// Load reads a scenario file.
func Load(path string) (Scenario, error) {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, err
	}
	s, err := Parse(jsonConfig)
	if err != nil {
		return Scenario{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a scenario document.
func Parse(jsonConfig []byte) (Scenario, error) {
	s := Scenario{}
	err := json.Unmarshal(jsonConfig, &s)
	return s, err
}

// Build creates the energy system the scenario describes.
func (s Scenario) Build() (*energysystem.EnergySystem, error) {
	ti, err := timeindex.New(s.TimeIndex.Start, s.TimeIndex.Periods, time.Duration(s.TimeIndex.Freq))
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]energysystem.Node)
	var order []energysystem.Node
	add := func(n energysystem.Node) error {
		if n.Label() == "" {
			return energysystem.ErrEmptyLabel
		}
		if _, ok := nodes[n.Label()]; ok {
			return energysystem.DuplicateLabelError{Label: n.Label()}
		}
		nodes[n.Label()] = n
		order = append(order, n)
		return nil
	}

	for _, label := range s.Buses {
		if err := add(energysystem.NewBus(label)); err != nil {
			return nil, err
		}
	}
	sources := make([]*energysystem.Source, len(s.Sources))
	for i, n := range s.Sources {
		sources[i] = energysystem.NewSource(n.Label)
		if err := add(sources[i]); err != nil {
			return nil, err
		}
	}
	sinks := make([]*energysystem.Sink, len(s.Sinks))
	for i, n := range s.Sinks {
		sinks[i] = energysystem.NewSink(n.Label)
		if err := add(sinks[i]); err != nil {
			return nil, err
		}
	}
	converters := make([]*energysystem.Converter, len(s.Converters))
	for i, n := range s.Converters {
		converters[i] = energysystem.NewConverter(n.Label)
		if err := add(converters[i]); err != nil {
			return nil, err
		}
	}

	peer := func(label string, key energysystem.FlowKey) (energysystem.Node, error) {
		n, ok := nodes[label]
		if !ok {
			return nil, energysystem.UnknownNodeError{Label: label, Flow: key}
		}
		return n, nil
	}

	for i, n := range s.Sources {
		if len(n.Inputs) > 0 {
			return nil, fmt.Errorf("config: source %q declares inputs", n.Label)
		}
		for _, e := range n.Outputs {
			p, err := peer(e.Peer, energysystem.FlowKey{From: n.Label, To: e.Peer})
			if err != nil {
				return nil, err
			}
			sources[i].Output(p, e.Flow.build())
		}
	}
	for i, n := range s.Sinks {
		if len(n.Outputs) > 0 {
			return nil, fmt.Errorf("config: sink %q declares outputs", n.Label)
		}
		for _, e := range n.Inputs {
			p, err := peer(e.Peer, energysystem.FlowKey{From: e.Peer, To: n.Label})
			if err != nil {
				return nil, err
			}
			sinks[i].Input(p, e.Flow.build())
		}
	}
	for i, n := range s.Converters {
		c := converters[i]
		for _, e := range n.Inputs {
			p, err := peer(e.Peer, energysystem.FlowKey{From: e.Peer, To: n.Label})
			if err != nil {
				return nil, err
			}
			c.Input(p, e.Flow.build())
			if e.Factor != nil {
				c.InputFactor(p, e.Factor.value())
			}
		}
		for _, e := range n.Outputs {
			p, err := peer(e.Peer, energysystem.FlowKey{From: n.Label, To: e.Peer})
			if err != nil {
				return nil, err
			}
			factor := energysystem.Scalar(1)
			if e.Factor != nil {
				factor = e.Factor.value()
			}
			c.Output(p, e.Flow.build(), factor)
		}
	}

	es := energysystem.New(ti)
	if err := es.Add(order...); err != nil {
		return nil, err
	}

	for _, a := range s.Attributes {
		key := energysystem.FlowKey{From: a.From, To: a.To}
		f, ok := es.Flow(key)
		if !ok {
			return nil, fmt.Errorf("config: attribute %q: %w", a.Name, UnknownFlowError{Flow: key})
		}
		if a.Name == "" {
			return nil, errors.New("config: attribute without a name on flow " + key.String())
		}
		f.SetAttribute(a.Name, a.Value.value())
	}
	return es, nil
}

// UnknownFlowError reports an attribute on a flow the scenario does not
// declare.
type UnknownFlowError struct {
	Flow energysystem.FlowKey
}

func (e UnknownFlowError) Error() string {
	return fmt.Sprintf("unknown flow %v", e.Flow)
}
