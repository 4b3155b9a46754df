package gencomo

import (
	"fmt"
	"os"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ODESystem is a neuron model: a compartment graph, its parameters and its stimuli.
// It is not safe for concurrent use.
type ODESystem struct {
	Name       string
	graph      *CompartmentGraph
	params     *ParameterStore
	stimuli    *StimulusRegistry
	precedence ClampPrecedence
	last       []float64 // Final state of the latest successful run.
	logger     kitlog.Logger
}

// NewODESystem validates the segment graph and returns a new system with the default parameters.
func NewODESystem(name string, src SegmentSource) (*ODESystem, error) {
	g, err := NewCompartmentGraph(src)
	if err != nil {
		return nil, err
	}
	klog := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	klog = level.NewFilter(klog, level.AllowWarn())
	sys := &ODESystem{Name: name, graph: g, params: NewParameterStore(), stimuli: NewStimulusRegistry(g)}
	sys.SetLogger(klog)
	if cc := g.Components(); len(cc) > 1 {
		level.Warn(sys.logger).Log("subsys", "graph", "components", len(cc), "message", "compartment graph is disconnected")
	}
	return sys, nil
}

// SetLogger sets the logger of this system. Use kitlog.NewNopLogger() to silence it.
func (s *ODESystem) SetLogger(logger kitlog.Logger) {
	s.logger = kitlog.With(logger, "system", s.Name)
}

// Graph returns the compartment graph.
func (s *ODESystem) Graph() *CompartmentGraph {
	return s.graph
}

// Parameters returns a copy of the active parameters.
func (s *ODESystem) Parameters() Parameters {
	return s.params.Snapshot()
}

// SetParameters applies parameter overrides atomically. Equations built before the change are not updated.
func (s *ODESystem) SetParameters(overrides map[string]float64) error {
	if err := s.params.Set(overrides); err != nil {
		level.Error(s.logger).Log("subsys", "params", "err", err)
		return err
	}
	keyvals := []interface{}{"subsys", "params"}
	for k, v := range overrides {
		keyvals = append(keyvals, k, v)
	}
	level.Info(s.logger).Log(keyvals...)
	return nil
}

// ResetParameters restores the default parameters.
func (s *ODESystem) ResetParameters() {
	s.params.Reset()
}

// AddStimulus registers a stimulus on a compartment: a current injection (pA) or a voltage clamp (mV)
// active over [start, start+duration) ms.
func (s *ODESystem) AddStimulus(id string, start, duration, amplitude float64, kind StimulusKind) error {
	if err := s.stimuli.Add(id, start, duration, amplitude, kind); err != nil {
		return err
	}
	level.Debug(s.logger).Log("subsys", "stimuli", "compartment", id, "kind", kind, "start", start, "duration", duration, "amplitude", amplitude)
	return nil
}

// Stimuli returns the registered stimuli in arrival order.
func (s *ODESystem) Stimuli() []Stimulus {
	return s.stimuli.All()
}

// ActiveStimuli returns the stimuli active at time t (ms).
func (s *ODESystem) ActiveStimuli(t float64) []Stimulus {
	return s.stimuli.Active(t)
}

// ClearStimuli removes all stimuli.
func (s *ODESystem) ClearStimuli() {
	s.stimuli.Clear()
}

// SetClampPrecedence sets the rule used when a current and a clamp are active on the same compartment.
func (s *ODESystem) SetClampPrecedence(p ClampPrecedence) {
	s.precedence = p
}

// Build assembles new equations from the current graph, parameters and stimuli.
func (s *ODESystem) Build() (*Equations, error) {
	if s.graph == nil {
		return nil, &AssemblyError{Reason: "no validated compartment graph"}
	}
	if s.graph.Len() == 0 {
		return nil, &AssemblyError{Reason: "graph has no compartments"}
	}
	p := s.params.Snapshot()
	if err := p.Validate(); err != nil {
		return nil, &AssemblyError{Reason: err.Error()}
	}
	eq := newEquations(s.graph, p, s.stimuli.stimuli, s.precedence)
	level.Debug(s.logger).Log("subsys", "assembly", "dim", eq.Dim(), "couplings", len(eq.couplings), "stimuli", len(eq.stimuli), "phi", eq.phi)
	return eq, nil
}

// Run builds fresh equations and integrates them over [t0, t1] (ms).
func (s *ODESystem) Run(t0, t1 float64, m Method) (*Trajectory, error) {
	eq, err := s.Build()
	if err != nil {
		return nil, err
	}
	level.Info(s.logger).Log("subsys", "integrator", "method", MethodName(m), "start", t0, "end", t1)
	start := time.Now()
	traj, err := eq.Run(t0, t1, m)
	if err != nil {
		level.Error(s.logger).Log("subsys", "integrator", "status", "failed", "err", err)
		return nil, err
	}
	s.last = traj.Final()
	level.Info(s.logger).Log("subsys", "integrator", "status", "finished", "samples", traj.Len(), "steps", traj.Steps, "rejected", traj.Rejected, "duration", time.Since(start))
	return traj, nil
}

// CompartmentInfo is a read only snapshot of a compartment.
type CompartmentInfo struct {
	ID          string
	Index       int
	SurfaceArea float64 // µm²
	Volume      float64 // µm³
	Potential   float64 // mV, of the latest run or the initial potential
	Neighbors   []string
	Centroid    [3]float64 // µm
}

func (c CompartmentInfo) String() string {
	return fmt.Sprintf("%s (#%d): V=%.3f mV area=%g µm² volume=%g µm³ centroid=%v neighbors=%v", c.ID, c.Index, c.Potential, c.SurfaceArea, c.Volume, c.Centroid, c.Neighbors)
}

// CompartmentInfo returns a snapshot of the given compartment.
func (s *ODESystem) CompartmentInfo(id string) (CompartmentInfo, error) {
	c, err := s.graph.Compartment(id)
	if err != nil {
		return CompartmentInfo{}, err
	}
	nbrs, _ := s.graph.Neighbors(id)
	info := CompartmentInfo{ID: c.ID, Index: c.Index, SurfaceArea: c.SurfaceArea, Volume: c.Volume, Potential: c.InitialPotential, Neighbors: nbrs, Centroid: c.Centroid}
	if s.last != nil {
		info.Potential = s.last[StateWidth*c.Index+OffsetV]
	}
	return info, nil
}

// Summary returns a human readable description of the system.
func (s *ODESystem) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", s)
	fmt.Fprintf(&b, "parameters: %s\n", s.params.Snapshot())
	fmt.Fprintf(&b, "precedence: %s\n", s.precedence)
	for _, id := range s.graph.IDs() {
		info, _ := s.CompartmentInfo(id)
		fmt.Fprintf(&b, "  %s\n", info)
	}
	for _, st := range s.stimuli.stimuli {
		fmt.Fprintf(&b, "  stimulus: %s\n", st)
	}
	return b.String()
}

func (s *ODESystem) String() string {
	return fmt.Sprintf("%s: %s, %d stimuli", s.Name, s.graph, s.stimuli.Len())
}
