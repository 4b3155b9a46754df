package gencomo

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"
)

// SegmentSource is an undirected graph which enumerates its nodes and edges in a stable order.
// Nodes and edges should implement encoding.Attributer, and nodes should implement dot.Node.
type SegmentSource interface {
	graph.Undirected
	OrderedNodes() []graph.Node
	OrderedEdges() []graph.Edge
}

// Compartment is an isopotential piece of the neuron.
type Compartment struct {
	ID               string
	Index            int        // Position in the state vector, in units of StateWidth.
	SurfaceArea      float64    // µm²
	Volume           float64    // µm³
	InitialPotential float64    // mV
	Centroid         [3]float64 // µm
	Neighbors        []int
}

// Coupling is the conductive link between compartments A and B.
type Coupling struct {
	A, B        int
	Conductance float64 // S
	Length      float64 // µm
}

// CompartmentGraph is a validated, read-only snapshot of a segment graph.
type CompartmentGraph struct {
	compartments []Compartment
	couplings    []Coupling
	index        map[string]int
	lengths      *simple.WeightedUndirectedGraph
}

// NewCompartmentGraph validates the source graph and assigns each compartment its index, in
// the order the source enumerates its nodes.
func NewCompartmentGraph(src SegmentSource) (*CompartmentGraph, error) {
	if src == nil {
		return nil, &ValidationError{Element: "graph", Reason: "nil graph"}
	}
	var nodeDefaults, edgeDefaults encoding.Attributer
	if a, ok := src.(dot.Attributers); ok {
		_, nodeDefaults, edgeDefaults = a.DOTAttributers()
	}

	nodes := src.OrderedNodes()
	g := &CompartmentGraph{
		compartments: make([]Compartment, 0, len(nodes)),
		index:        make(map[string]int, len(nodes)),
		lengths:      simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
	}
	byNodeID := make(map[int64]int, len(nodes))
	for _, n := range nodes {
		id := nodeKey(n)
		if _, dup := g.index[id]; dup {
			return nil, &ValidationError{Element: "node", Key: id, Reason: "duplicate compartment identifier"}
		}
		if _, dup := byNodeID[n.ID()]; dup {
			return nil, &ValidationError{Element: "node", Key: id, Reason: "node enumerated twice"}
		}
		attrs := attributes(n, nodeDefaults)
		c := Compartment{ID: id, Index: len(g.compartments)}
		var err error
		if c.SurfaceArea, err = positiveAttr("node", id, AttrSurfaceArea, attrs); err != nil {
			return nil, err
		}
		if c.Volume, err = positiveAttr("node", id, AttrVolume, attrs); err != nil {
			return nil, err
		}
		if c.InitialPotential, err = finiteAttr("node", id, AttrInitialPotential, attrs); err != nil {
			return nil, err
		}
		if c.Centroid, err = centroidAttr(id, attrs); err != nil {
			return nil, err
		}
		g.index[id] = c.Index
		byNodeID[n.ID()] = c.Index
		g.compartments = append(g.compartments, c)
		g.lengths.AddNode(simple.Node(c.Index))
	}

	for _, e := range src.OrderedEdges() {
		key := edgeKey(e.From(), e.To())
		a, okA := byNodeID[e.From().ID()]
		b, okB := byNodeID[e.To().ID()]
		if !okA || !okB {
			return nil, &ValidationError{Element: "edge", Key: key, Reason: "endpoint is not an enumerated node"}
		}
		if a == b {
			return nil, &ValidationError{Element: "edge", Key: key, Reason: "self-loop"}
		}
		if g.lengths.HasEdgeBetween(int64(a), int64(b)) {
			return nil, &ValidationError{Element: "edge", Key: key, Reason: "duplicate coupling"}
		}
		attrs := attributes(e, edgeDefaults)
		cpl := Coupling{A: a, B: b}
		var err error
		if cpl.Conductance, err = positiveAttr("edge", key, AttrConductance, attrs); err != nil {
			return nil, err
		}
		if cpl.Length, err = finiteAttr("edge", key, AttrLength, attrs); err != nil {
			return nil, err
		}
		if cpl.Length < 0 {
			return nil, &ValidationError{Element: "edge", Key: key, Attribute: AttrLength, Reason: "must be >= 0"}
		}
		g.couplings = append(g.couplings, cpl)
		g.compartments[a].Neighbors = append(g.compartments[a].Neighbors, b)
		g.compartments[b].Neighbors = append(g.compartments[b].Neighbors, a)
		g.lengths.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(a), T: simple.Node(b), W: cpl.Length})
	}
	return g, nil
}

// Len returns the number of compartments.
func (g *CompartmentGraph) Len() int {
	return len(g.compartments)
}

// IDs returns the compartment identifiers in index order.
func (g *CompartmentGraph) IDs() []string {
	ids := make([]string, len(g.compartments))
	for i, c := range g.compartments {
		ids[i] = c.ID
	}
	return ids
}

// Index returns the index of the given compartment.
func (g *CompartmentGraph) Index(id string) (int, error) {
	i, ok := g.index[id]
	if !ok {
		return -1, &UnknownCompartmentError{ID: id}
	}
	return i, nil
}

// At returns a copy of the compartment at index i.
func (g *CompartmentGraph) At(i int) Compartment {
	c := g.compartments[i]
	c.Neighbors = append([]int(nil), c.Neighbors...)
	return c
}

// Compartment returns a copy of the compartment with the given identifier.
func (g *CompartmentGraph) Compartment(id string) (Compartment, error) {
	i, err := g.Index(id)
	if err != nil {
		return Compartment{}, err
	}
	return g.At(i), nil
}

// Neighbors returns the identifiers of the compartments coupled to id.
func (g *CompartmentGraph) Neighbors(id string) ([]string, error) {
	i, err := g.Index(id)
	if err != nil {
		return nil, err
	}
	nbrs := make([]string, len(g.compartments[i].Neighbors))
	for k, j := range g.compartments[i].Neighbors {
		nbrs[k] = g.compartments[j].ID
	}
	return nbrs, nil
}

// Couplings returns a copy of the couplings, in the order of the source edges.
func (g *CompartmentGraph) Couplings() []Coupling {
	return append([]Coupling(nil), g.couplings...)
}

// Components returns the connected components, each sorted by index, and ordered by their first index.
func (g *CompartmentGraph) Components() [][]string {
	cc := topo.ConnectedComponents(g.lengths)
	idx := make([][]int, len(cc))
	for i, comp := range cc {
		for _, n := range comp {
			idx[i] = append(idx[i], int(n.ID()))
		}
		sort.Ints(idx[i])
	}
	sort.Slice(idx, func(i, j int) bool { return idx[i][0] < idx[j][0] })
	out := make([][]string, len(idx))
	for i, comp := range idx {
		for _, c := range comp {
			out[i] = append(out[i], g.compartments[c].ID)
		}
	}
	return out
}

// PathLength returns the shortest path length (µm) along couplings between two compartments,
// and the compartments on that path. The length is +Inf if they are not connected.
func (g *CompartmentGraph) PathLength(from, to string) (float64, []string, error) {
	a, err := g.Index(from)
	if err != nil {
		return 0, nil, err
	}
	b, err := g.Index(to)
	if err != nil {
		return 0, nil, err
	}
	nodes, weight := path.DijkstraFrom(simple.Node(a), g.lengths).To(int64(b))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = g.compartments[n.ID()].ID
	}
	return weight, ids, nil
}

// Distance returns the euclidean distance (µm) between the centroids of two compartments.
func (g *CompartmentGraph) Distance(from, to string) (float64, error) {
	a, err := g.Compartment(from)
	if err != nil {
		return 0, err
	}
	b, err := g.Compartment(to)
	if err != nil {
		return 0, err
	}
	return distance(a.Centroid[:], b.Centroid[:]), nil
}

// ConductanceMatrix returns the weighted graph Laplacian of the couplings, in µS.
// Multiplying it by the vector of potentials yields the negated axial currents (nA).
func (g *CompartmentGraph) ConductanceMatrix() *mat.SymDense {
	n := len(g.compartments)
	if n == 0 {
		return nil
	}
	m := mat.NewSymDense(n, nil)
	for _, c := range g.couplings {
		gc := c.Conductance * siemensToMicro
		m.SetSym(c.A, c.A, m.At(c.A, c.A)+gc)
		m.SetSym(c.B, c.B, m.At(c.B, c.B)+gc)
		m.SetSym(c.A, c.B, m.At(c.A, c.B)-gc)
	}
	return m
}

func (g *CompartmentGraph) String() string {
	return fmt.Sprintf("%d compartments, %d couplings", len(g.compartments), len(g.couplings))
}

// attributes returns the attributes of a node or edge, followed by the defaults it does not override.
func attributes(v interface{}, defaults encoding.Attributer) []encoding.Attribute {
	var own []encoding.Attribute
	if a, ok := v.(encoding.Attributer); ok {
		own = a.Attributes()
	}
	if defaults == nil {
		return own
	}
	out := append([]encoding.Attribute(nil), own...)
	for _, d := range defaults.Attributes() {
		if _, set := lookup(own, d.Key); !set {
			out = append(out, d)
		}
	}
	return out
}

func finiteAttr(element, key, attr string, attrs []encoding.Attribute) (float64, error) {
	raw, ok := lookup(attrs, attr)
	if !ok {
		return 0, &ValidationError{Element: element, Key: key, Attribute: attr, Reason: "missing"}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &ValidationError{Element: element, Key: key, Attribute: attr, Reason: fmt.Sprintf("not a number: %q", raw)}
	}
	if !isFinite(v) {
		return 0, &ValidationError{Element: element, Key: key, Attribute: attr, Reason: "not finite"}
	}
	return v, nil
}

func positiveAttr(element, key, attr string, attrs []encoding.Attribute) (float64, error) {
	v, err := finiteAttr(element, key, attr, attrs)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, &ValidationError{Element: element, Key: key, Attribute: attr, Reason: fmt.Sprintf("must be > 0, got %s", formatFloat(v))}
	}
	return v, nil
}

func centroidAttr(key string, attrs []encoding.Attribute) ([3]float64, error) {
	var c [3]float64
	raw, ok := lookup(attrs, AttrCentroid)
	if !ok {
		return c, &ValidationError{Element: "node", Key: key, Attribute: AttrCentroid, Reason: "missing"}
	}
	v, err := parseVector(raw)
	if err != nil || len(v) != 3 {
		return c, &ValidationError{Element: "node", Key: key, Attribute: AttrCentroid, Reason: fmt.Sprintf("expected three numbers, got %q", raw)}
	}
	for i := range c {
		if !isFinite(v[i]) {
			return c, &ValidationError{Element: "node", Key: key, Attribute: AttrCentroid, Reason: "not finite"}
		}
		c[i] = v[i]
	}
	return c, nil
}
