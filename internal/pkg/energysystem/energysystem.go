package energysystem

import (
	"math"

	"github.com/ohowland/cgc_energymodel/internal/pkg/timeindex"
)

// EnergySystem owns the time index and the node/flow graph handed to the
// model builder. Nodes and flows are append-only.
type EnergySystem struct {
	timeIndex timeindex.TimeIndex
	nodes     []Node
	index     map[string]Node
	flowKeys  []FlowKey
	flows     map[FlowKey]*Flow
	graph     graph
}

// New returns an empty EnergySystem over ti.
func New(ti timeindex.TimeIndex) *EnergySystem {
	return &EnergySystem{
		timeIndex: ti,
		index:     make(map[string]Node),
		flows:     make(map[FlowKey]*Flow),
		graph:     newGraph(),
	}
}

// TimeIndex returns the system's time index.
func (es *EnergySystem) TimeIndex() timeindex.TimeIndex {
	return es.timeIndex
}

type pendingFlow struct {
	key  FlowKey
	flow *Flow
}

// Add registers nodes and the flows they declare. The batch is validated as
// a whole; on error nothing is added. Flows may reference nodes registered
// earlier or in the same call.
func (es *EnergySystem) Add(nodes ...Node) error {
	batch := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		if n == nil || n.Label() == "" {
			return ErrEmptyLabel
		}
		label := n.Label()
		if _, exists := es.index[label]; exists {
			return DuplicateLabelError{Label: label}
		}
		if _, exists := batch[label]; exists {
			return DuplicateLabelError{Label: label}
		}
		batch[label] = n
	}

	lookup := func(label string) (Node, bool) {
		if n, ok := es.index[label]; ok {
			return n, true
		}
		n, ok := batch[label]
		return n, ok
	}

	pending := make([]pendingFlow, 0)
	seen := make(map[FlowKey]bool)
	collect := func(key FlowKey, peer string, f *Flow) error {
		if _, ok := lookup(peer); !ok {
			return UnknownNodeError{Label: peer, Flow: key}
		}
		if err := validateFlow(key, f, lookup); err != nil {
			return err
		}
		if _, exists := es.flows[key]; exists || seen[key] {
			return DuplicateFlowError{Flow: key}
		}
		seen[key] = true
		pending = append(pending, pendingFlow{key, f})
		return nil
	}

	for _, n := range nodes {
		for _, e := range n.Inputs() {
			if err := collect(FlowKey{From: e.Peer, To: n.Label()}, e.Peer, e.Flow); err != nil {
				return err
			}
		}
		for _, e := range n.Outputs() {
			if err := collect(FlowKey{From: n.Label(), To: e.Peer}, e.Peer, e.Flow); err != nil {
				return err
			}
		}
	}

	for _, n := range nodes {
		if err := es.graph.addNode(n.Label()); err != nil {
			return err
		}
		es.index[n.Label()] = n
		es.nodes = append(es.nodes, n)
	}
	for _, p := range pending {
		if err := es.graph.addDirectedEdge(p.key.From, p.key.To); err != nil {
			return err
		}
		es.flows[p.key] = p.flow
		es.flowKeys = append(es.flowKeys, p.key)
	}
	return nil
}

func validateFlow(key FlowKey, f *Flow, lookup func(string) (Node, bool)) error {
	if f == nil {
		return InvalidFlowError{Flow: key, Reason: "nil flow"}
	}
	if key.From == key.To {
		return InvalidFlowError{Flow: key, Reason: "self loop"}
	}
	if from, _ := lookup(key.From); from != nil && from.Kind() == KindSink {
		return InvalidFlowError{Flow: key, Reason: "a sink has no outgoing flows"}
	}
	if to, _ := lookup(key.To); to != nil && to.Kind() == KindSource {
		return InvalidFlowError{Flow: key, Reason: "a source has no incoming flows"}
	}
	if v, ok := f.NominalValue(); ok && (math.IsNaN(v) || v < 0) {
		return InvalidFlowError{Flow: key, Reason: "nominal value must be >= 0"}
	}
	if f.Fixed() {
		if v, ok := f.NominalValue(); !ok || math.IsInf(v, 0) {
			return InvalidFlowError{Flow: key, Reason: "a fixed flow needs a finite nominal value"}
		}
	}
	if f.Series() != nil && !f.Fixed() {
		if v, ok := f.NominalValue(); !ok || math.IsInf(v, 0) {
			return InvalidFlowError{Flow: key, Reason: "a profile needs a finite nominal value"}
		}
	}
	if f.MinSeries() != nil {
		if v, ok := f.NominalValue(); !ok || math.IsInf(v, 0) {
			return InvalidFlowError{Flow: key, Reason: "a min series needs a finite nominal value"}
		}
	}
	if _, ok := f.SummedMax(); ok {
		if v, ok := f.NominalValue(); !ok || math.IsInf(v, 0) {
			return InvalidFlowError{Flow: key, Reason: "summed max needs a finite nominal value"}
		}
	}
	return nil
}

// Node returns the node registered under label.
func (es *EnergySystem) Node(label string) (Node, bool) {
	n, ok := es.index[label]
	return n, ok
}

// Nodes returns the nodes in insertion order.
func (es *EnergySystem) Nodes() []Node {
	return append([]Node(nil), es.nodes...)
}

// Flow returns the flow registered under key.
func (es *EnergySystem) Flow(key FlowKey) (*Flow, bool) {
	f, ok := es.flows[key]
	return f, ok
}

// FlowKeys returns every flow key in insertion order.
func (es *EnergySystem) FlowKeys() []FlowKey {
	return append([]FlowKey(nil), es.flowKeys...)
}

// Inflows returns the keys of the flows ending at label.
func (es *EnergySystem) Inflows(label string) []FlowKey {
	froms := es.graph.reverseEdges(label)
	keys := make([]FlowKey, len(froms))
	for i, from := range froms {
		keys[i] = FlowKey{From: from, To: label}
	}
	return keys
}

// Outflows returns the keys of the flows starting at label.
func (es *EnergySystem) Outflows(label string) []FlowKey {
	tos := es.graph.edges(label)
	keys := make([]FlowKey, len(tos))
	for i, to := range tos {
		keys[i] = FlowKey{From: label, To: to}
	}
	return keys
}
