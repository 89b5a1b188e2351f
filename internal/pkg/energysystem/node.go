package energysystem

// Kind enumerates the node variants.
type Kind int

const (
	KindBus Kind = iota
	KindSource
	KindSink
	KindConverter
)

func (k Kind) String() string {
	switch k {
	case KindBus:
		return "Bus"
	case KindSource:
		return "Source"
	case KindSink:
		return "Sink"
	case KindConverter:
		return "Converter"
	default:
		return "Unknown"
	}
}

// Edge is one declared flow of a node together with the label of the node on
// the other end.
type Edge struct {
	Peer string
	Flow *Flow
}

// Node is a labelled vertex of the energy system graph.
type Node interface {
	Label() string
	Kind() Kind
	// Inputs are the flows ending at this node.
	Inputs() []Edge
	// Outputs are the flows starting at this node.
	Outputs() []Edge
}

// Bus balances all incident flows at every time step. Its flows are declared
// by the nodes on the other end.
type Bus struct {
	label string
}

func NewBus(label string) *Bus {
	return &Bus{label: label}
}

func (b *Bus) Label() string   { return b.label }
func (b *Bus) Kind() Kind      { return KindBus }
func (b *Bus) Inputs() []Edge  { return nil }
func (b *Bus) Outputs() []Edge { return nil }

// Source only has outgoing flows.
type Source struct {
	label   string
	outputs []Edge
}

func NewSource(label string) *Source {
	return &Source{label: label}
}

// Output declares a flow from the source to peer.
func (s *Source) Output(peer Node, f *Flow) *Source {
	s.outputs = append(s.outputs, Edge{Peer: labelOf(peer), Flow: f})
	return s
}

func (s *Source) Label() string   { return s.label }
func (s *Source) Kind() Kind      { return KindSource }
func (s *Source) Inputs() []Edge  { return nil }
func (s *Source) Outputs() []Edge { return s.outputs }

// Sink only has incoming flows.
type Sink struct {
	label  string
	inputs []Edge
}

func NewSink(label string) *Sink {
	return &Sink{label: label}
}

// Input declares a flow from peer into the sink.
func (s *Sink) Input(peer Node, f *Flow) *Sink {
	s.inputs = append(s.inputs, Edge{Peer: labelOf(peer), Flow: f})
	return s
}

func (s *Sink) Label() string   { return s.label }
func (s *Sink) Kind() Kind      { return KindSink }
func (s *Sink) Inputs() []Edge  { return s.inputs }
func (s *Sink) Outputs() []Edge { return nil }

// Converter relates its input and output flows through fixed conversion
// factors: input_i * factor(o) = output_o * factor(i) at every step.
type Converter struct {
	label   string
	inputs  []Edge
	outputs []Edge
	factors map[string]Value
}

func NewConverter(label string) *Converter {
	return &Converter{label: label, factors: make(map[string]Value)}
}

// Input declares a flow from peer into the converter.
func (c *Converter) Input(peer Node, f *Flow) *Converter {
	c.inputs = append(c.inputs, Edge{Peer: labelOf(peer), Flow: f})
	return c
}

// Output declares a flow from the converter to peer with its conversion
// factor.
func (c *Converter) Output(peer Node, f *Flow, factor Value) *Converter {
	label := labelOf(peer)
	c.outputs = append(c.outputs, Edge{Peer: label, Flow: f})
	c.factors[label] = factor
	return c
}

// InputFactor overrides the default factor of 1 for the input from peer.
func (c *Converter) InputFactor(peer Node, factor Value) *Converter {
	c.factors[labelOf(peer)] = factor
	return c
}

// ConversionFactor returns the factor attached to the flow to or from peer.
func (c *Converter) ConversionFactor(peer string) Value {
	if v, ok := c.factors[peer]; ok {
		return v
	}
	return Scalar(1)
}

func (c *Converter) Label() string   { return c.label }
func (c *Converter) Kind() Kind      { return KindConverter }
func (c *Converter) Inputs() []Edge  { return c.inputs }
func (c *Converter) Outputs() []Edge { return c.outputs }

func labelOf(n Node) string {
	if n == nil {
		return ""
	}
	return n.Label()
}
