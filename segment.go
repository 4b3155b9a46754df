package gencomo

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
)

// Segment and junction attribute keys.
const (
	AttrSurfaceArea      = "surface_area"      // µm²
	AttrVolume           = "volume"            // µm³
	AttrInitialPotential = "initial_potential" // mV
	AttrCentroid         = "centroid"          // "x y z" in µm
	AttrConductance      = "conductance"       // S
	AttrLength           = "length"            // µm
)

// Segment is a node of a SegmentGraph, i.e. one piece of a segmented neuron mesh.
type Segment struct {
	id    int64
	name  string
	attrs encoding.Attributes
}

// ID implements graph.Node.
func (s *Segment) ID() int64 { return s.id }

// DOTID returns the segment name.
func (s *Segment) DOTID() string { return s.name }

// SetDOTID sets the segment name, as done when decoding a DOT file.
func (s *Segment) SetDOTID(id string) { s.name = id }

// Attributes implements encoding.Attributer.
func (s *Segment) Attributes() []encoding.Attribute { return s.attrs }

// SetAttribute implements encoding.AttributeSetter.
func (s *Segment) SetAttribute(attr encoding.Attribute) error { return s.attrs.SetAttribute(attr) }

// Attribute returns the value of the given attribute and whether it is set.
func (s *Segment) Attribute(key string) (string, bool) {
	return lookup(s.attrs, key)
}

func (s *Segment) String() string {
	return s.name
}

// Junction is an edge of a SegmentGraph, i.e. the interface between two segments.
type Junction struct {
	F, T  graph.Node
	attrs encoding.Attributes
}

// From implements graph.Edge.
func (j *Junction) From() graph.Node { return j.F }

// To implements graph.Edge.
func (j *Junction) To() graph.Node { return j.T }

// ReversedEdge implements graph.Edge.
func (j *Junction) ReversedEdge() graph.Edge {
	return &Junction{F: j.T, T: j.F, attrs: j.attrs}
}

// Attributes implements encoding.Attributer.
func (j *Junction) Attributes() []encoding.Attribute { return j.attrs }

// SetAttribute implements encoding.AttributeSetter.
func (j *Junction) SetAttribute(attr encoding.Attribute) error { return j.attrs.SetAttribute(attr) }

// Attribute returns the value of the given attribute and whether it is set.
func (j *Junction) Attribute(key string) (string, bool) {
	return lookup(j.attrs, key)
}

// SegmentGraph is the undirected graph produced by mesh segmentation.
// It remembers the order in which segments and junctions were added, which is the
// order compartments are laid out in the state vector.
type SegmentGraph struct {
	*simple.UndirectedGraph
	name   string
	nodes  []*Segment
	edges  []*Junction
	byName map[string]*Segment
	// Graph wide attributes, and node and edge defaults (DOT `node [...]` and `edge [...]`).
	graphAttrs, nodeAttrs, edgeAttrs encoding.Attributes
}

// NewSegmentGraph returns an empty segment graph.
func NewSegmentGraph(name string) *SegmentGraph {
	return &SegmentGraph{UndirectedGraph: simple.NewUndirectedGraph(), name: name, byName: make(map[string]*Segment)}
}

// DOTID returns the graph name.
func (g *SegmentGraph) DOTID() string { return g.name }

// SetDOTID sets the graph name.
func (g *SegmentGraph) SetDOTID(id string) { g.name = id }

// DOTAttributers implements dot.Attributers.
func (g *SegmentGraph) DOTAttributers() (gr, node, edge encoding.Attributer) {
	return &g.graphAttrs, &g.nodeAttrs, &g.edgeAttrs
}

// DOTAttributeSetters implements dot.AttributeSetters.
func (g *SegmentGraph) DOTAttributeSetters() (gr, node, edge encoding.AttributeSetter) {
	return &g.graphAttrs, &g.nodeAttrs, &g.edgeAttrs
}

// SetDefault sets a default node (or edge) attribute, used by segments (or junctions) which do not set it.
func (g *SegmentGraph) SetDefault(edge bool, attr encoding.Attribute) {
	if edge {
		g.edgeAttrs.SetAttribute(attr)
		return
	}
	g.nodeAttrs.SetAttribute(attr)
}

// NewNode implements graph.NodeAdder.
func (g *SegmentGraph) NewNode() graph.Node {
	return &Segment{id: g.UndirectedGraph.NewNode().ID()}
}

// AddNode implements graph.NodeAdder. It panics if n is not a *Segment or if its name is already used.
func (g *SegmentGraph) AddNode(n graph.Node) {
	s, ok := n.(*Segment)
	if !ok {
		panic(fmt.Errorf("gencomo: segment graph node must be a *Segment, got %T", n))
	}
	if s.name == "" {
		s.name = strconv.FormatInt(s.id, 10)
	}
	if _, dup := g.byName[s.name]; dup {
		panic(&ValidationError{Element: "node", Key: s.name, Reason: "duplicate segment"})
	}
	g.UndirectedGraph.AddNode(s)
	g.nodes = append(g.nodes, s)
	g.byName[s.name] = s
}

// NewEdge implements graph.Builder.
func (g *SegmentGraph) NewEdge(from, to graph.Node) graph.Edge {
	return &Junction{F: from, T: to}
}

// SetEdge implements graph.Builder. Setting an existing junction replaces it in place.
// It panics with a *ValidationError on self-loops.
func (g *SegmentGraph) SetEdge(e graph.Edge) {
	j, ok := e.(*Junction)
	if !ok {
		panic(fmt.Errorf("gencomo: segment graph edge must be a *Junction, got %T", e))
	}
	if j.F.ID() == j.T.ID() {
		panic(&ValidationError{Element: "edge", Key: edgeKey(j.F, j.T), Reason: "self-loop"})
	}
	for _, n := range []graph.Node{j.F, j.T} {
		if g.Node(n.ID()) == nil {
			g.AddNode(n)
		}
	}
	replaced := false
	if g.HasEdgeBetween(j.F.ID(), j.T.ID()) {
		for i, old := range g.edges {
			if samePair(old, j) {
				g.edges[i] = j
				replaced = true
				break
			}
		}
	}
	if !replaced {
		g.edges = append(g.edges, j)
	}
	g.UndirectedGraph.SetEdge(j)
}

// AddSegment adds a named segment with the provided attributes.
func (g *SegmentGraph) AddSegment(name string, attrs ...encoding.Attribute) (*Segment, error) {
	if name == "" {
		return nil, &ValidationError{Element: "node", Key: name, Reason: "empty segment name"}
	}
	if _, dup := g.byName[name]; dup {
		return nil, &ValidationError{Element: "node", Key: name, Reason: "duplicate segment"}
	}
	s := g.NewNode().(*Segment)
	s.name = name
	for _, a := range attrs {
		s.SetAttribute(a)
	}
	g.AddNode(s)
	return s, nil
}

// Connect adds a junction between two existing segments.
func (g *SegmentGraph) Connect(a, b string, attrs ...encoding.Attribute) (*Junction, error) {
	key := a + "--" + b
	sa, ok := g.byName[a]
	if !ok {
		return nil, &ValidationError{Element: "edge", Key: key, Reason: "unknown segment " + strconv.Quote(a)}
	}
	sb, ok := g.byName[b]
	if !ok {
		return nil, &ValidationError{Element: "edge", Key: key, Reason: "unknown segment " + strconv.Quote(b)}
	}
	if sa == sb {
		return nil, &ValidationError{Element: "edge", Key: key, Reason: "self-loop"}
	}
	if g.HasEdgeBetween(sa.id, sb.id) {
		return nil, &ValidationError{Element: "edge", Key: key, Reason: "duplicate junction"}
	}
	j := g.NewEdge(sa, sb).(*Junction)
	for _, at := range attrs {
		j.SetAttribute(at)
	}
	g.SetEdge(j)
	return j, nil
}

// Segment returns the segment with the provided name, or nil.
func (g *SegmentGraph) Segment(name string) *Segment {
	return g.byName[name]
}

// Segments returns the segments in insertion order.
func (g *SegmentGraph) Segments() []*Segment {
	return append([]*Segment(nil), g.nodes...)
}

// Junctions returns the junctions in insertion order.
func (g *SegmentGraph) Junctions() []*Junction {
	return append([]*Junction(nil), g.edges...)
}

// OrderedNodes implements SegmentSource.
func (g *SegmentGraph) OrderedNodes() []graph.Node {
	nodes := make([]graph.Node, len(g.nodes))
	for i, s := range g.nodes {
		nodes[i] = s
	}
	return nodes
}

// OrderedEdges implements SegmentSource.
func (g *SegmentGraph) OrderedEdges() []graph.Edge {
	edges := make([]graph.Edge, len(g.edges))
	for i, j := range g.edges {
		edges[i] = j
	}
	return edges
}

// MarshalDOT encodes the graph in the Graphviz DOT format.
func (g *SegmentGraph) MarshalDOT() ([]byte, error) {
	return dot.Marshal(g, g.name, "", "\t")
}

// ReadSegmentGraph decodes a DOT graph. Node identifiers become compartment identifiers.
func ReadSegmentGraph(r io.Reader) (*SegmentGraph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	g := NewSegmentGraph("")
	if err := dot.Unmarshal(data, g); err != nil {
		return nil, err
	}
	return g, nil
}

// SegmentAttributes returns the node attributes of a segment.
func SegmentAttributes(area, volume, v0 float64, centroid [3]float64) []encoding.Attribute {
	return []encoding.Attribute{
		{Key: AttrSurfaceArea, Value: formatFloat(area)},
		{Key: AttrVolume, Value: formatFloat(volume)},
		{Key: AttrInitialPotential, Value: formatFloat(v0)},
		{Key: AttrCentroid, Value: formatFloat(centroid[0]) + " " + formatFloat(centroid[1]) + " " + formatFloat(centroid[2])},
	}
}

// JunctionAttributes returns the edge attributes of a junction.
func JunctionAttributes(conductance, length float64) []encoding.Attribute {
	return []encoding.Attribute{
		{Key: AttrConductance, Value: formatFloat(conductance)},
		{Key: AttrLength, Value: formatFloat(length)},
	}
}

func lookup(attrs []encoding.Attribute, key string) (string, bool) {
	for _, a := range attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// nodeKey returns the DOT identifier of a node if it has one, else its numerical ID.
func nodeKey(n graph.Node) string {
	if d, ok := n.(dot.Node); ok && d.DOTID() != "" {
		return d.DOTID()
	}
	return strconv.FormatInt(n.ID(), 10)
}

func edgeKey(from, to graph.Node) string {
	return nodeKey(from) + "--" + nodeKey(to)
}

func samePair(a, b graph.Edge) bool {
	af, at := a.From().ID(), a.To().ID()
	bf, bt := b.From().ID(), b.To().ID()
	return (af == bf && at == bt) || (af == bt && at == bf)
}

// parseVector parses space or comma separated numbers.
func parseVector(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' })
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
