package gencomo

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// State vector layout: compartment i owns y[StateWidth*i : StateWidth*(i+1)].
const (
	StateWidth = 4
	OffsetV    = 0 // membrane potential, mV
	OffsetM    = 1 // Na activation
	OffsetH    = 2 // Na inactivation
	OffsetN    = 3 // K activation
)

var offsetNames = [StateWidth]string{"V", "m", "h", "n"}

// Equations is the assembled right hand side of the compartment system. It is immutable:
// changing the parameters or the stimuli of the system requires building new equations.
type Equations struct {
	graph      *CompartmentGraph
	params     Parameters
	stimuli    []Stimulus
	precedence ClampPrecedence
	phi        float64
	// Per compartment absolute values: capacitance (nF) and maximal conductances (µS).
	capacitance, gNa, gK, gLeak []float64
	couplings                   []Coupling
	gAxial                      []float64 // µS, per coupling
	y0                          []float64
}

func newEquations(g *CompartmentGraph, p Parameters, stimuli []Stimulus, precedence ClampPrecedence) *Equations {
	n := g.Len()
	e := &Equations{
		graph:       g,
		params:      p,
		stimuli:     append([]Stimulus(nil), stimuli...),
		precedence:  precedence,
		phi:         p.TemperatureFactor(),
		capacitance: make([]float64, n),
		gNa:         make([]float64, n),
		gK:          make([]float64, n),
		gLeak:       make([]float64, n),
		couplings:   g.Couplings(),
		y0:          make([]float64, StateWidth*n),
	}
	for i, c := range g.compartments {
		scale := c.SurfaceArea * densityToAbsolute
		e.capacitance[i] = p.Cm * scale
		e.gNa[i] = p.GNa * scale
		e.gK[i] = p.GK * scale
		e.gLeak[i] = p.GLeak * scale
		m, h, nGate := steadyState(c.InitialPotential)
		e.y0[StateWidth*i+OffsetV] = c.InitialPotential
		e.y0[StateWidth*i+OffsetM] = m
		e.y0[StateWidth*i+OffsetH] = h
		e.y0[StateWidth*i+OffsetN] = nGate
	}
	e.gAxial = make([]float64, len(e.couplings))
	for k, c := range e.couplings {
		e.gAxial[k] = c.Conductance * siemensToMicro
	}
	return e
}

// Dim returns the dimension of the state vector.
func (e *Equations) Dim() int {
	return len(e.y0)
}

// Initial returns a copy of the initial state: the initial potential of each compartment and
// the steady state gates at that potential.
func (e *Equations) Initial() []float64 {
	return append([]float64(nil), e.y0...)
}

// Parameters returns the parameters the equations were built with.
func (e *Equations) Parameters() Parameters {
	return e.params
}

// Layout returns the label of each state vector component, e.g. "soma_V".
func (e *Equations) Layout() []string {
	labels := make([]string, 0, len(e.y0))
	for _, id := range e.graph.IDs() {
		for _, name := range offsetNames {
			labels = append(labels, id+"_"+name)
		}
	}
	return labels
}

// Slot returns the position in the state vector of the given component of a compartment.
func (e *Equations) Slot(id string, offset int) (int, error) {
	if offset < 0 || offset >= StateWidth {
		return -1, fmt.Errorf("gencomo: invalid state offset %d", offset)
	}
	i, err := e.graph.Index(id)
	if err != nil {
		return -1, err
	}
	return StateWidth*i + offset, nil
}

// drive returns the injected currents (nA) and the clamped potentials (mV) at time t, keyed by compartment index.
func (e *Equations) drive(t float64) (injected, clamped map[int]float64) {
	for _, s := range e.stimuli {
		if !s.ActiveAt(t) {
			continue
		}
		switch s.Kind {
		case CurrentStimulus:
			if injected == nil {
				injected = make(map[int]float64)
			}
			injected[s.index] += s.Amplitude * picoToNano
		case VoltageStimulus:
			if clamped == nil {
				clamped = make(map[int]float64)
			}
			// Last registered clamp wins.
			clamped[s.index] = s.Amplitude
		}
	}
	if e.precedence == CurrentOverridesClamp {
		for i := range injected {
			delete(clamped, i)
		}
	}
	return
}

// Clamped returns the clamped potential of each compartment under voltage clamp at time t.
func (e *Equations) Clamped(t float64) map[int]float64 {
	_, clamped := e.drive(t)
	if clamped == nil {
		return map[int]float64{}
	}
	return clamped
}

// Func writes dy/dt at (t, y) into dy. It only reads y.
func (e *Equations) Func(t float64, y, dy []float64) {
	injected, clamped := e.drive(t)
	n := len(e.capacitance)
	v := make([]float64, n)
	for i := range v {
		v[i] = y[StateWidth*i+OffsetV]
		if c, ok := clamped[i]; ok {
			v[i] = c
		}
	}
	axial := e.axial(v)
	for i := 0; i < n; i++ {
		base := StateWidth * i
		m, h, nGate := y[base+OffsetM], y[base+OffsetH], y[base+OffsetN]
		r := rateConstants(v[i], e.phi)
		dy[base+OffsetM] = gateDerivative(m, r.am, r.bm)
		dy[base+OffsetH] = gateDerivative(h, r.ah, r.bh)
		dy[base+OffsetN] = gateDerivative(nGate, r.an, r.bn)
		if _, ok := clamped[i]; ok {
			dy[base+OffsetV] = 0
			continue
		}
		m3 := m * m * m
		n2 := nGate * nGate
		ionic := e.gNa[i]*m3*h*(v[i]-e.params.ENa) + e.gK[i]*n2*n2*(v[i]-e.params.EK) + e.gLeak[i]*(v[i]-e.params.ELeak)
		dy[base+OffsetV] = (injected[i] + axial[i] - ionic) / e.capacitance[i]
	}
}

// axial returns the current (nA) flowing into each compartment from its neighbors.
func (e *Equations) axial(v []float64) []float64 {
	out := make([]float64, len(v))
	for k, c := range e.couplings {
		i := e.gAxial[k] * (v[c.B] - v[c.A])
		out[c.A] += i
		out[c.B] -= i
	}
	return out
}

// AxialCurrents returns the current (nA) flowing into each compartment from its neighbors for the state y.
// A positive value depolarizes the compartment.
func (e *Equations) AxialCurrents(y []float64) []float64 {
	v := make([]float64, len(e.capacitance))
	for i := range v {
		v[i] = y[StateWidth*i+OffsetV]
	}
	return e.axial(v)
}

// CouplingMatrix returns the conductance Laplacian L (µS) such that L·V = -AxialCurrents.
func (e *Equations) CouplingMatrix() *mat.SymDense {
	return e.graph.ConductanceMatrix()
}

// impose enforces the active clamps on s and clips the gating variables to [0, 1]. Potentials are never clipped.
func (e *Equations) impose(t float64, s []float64) {
	_, clamped := e.drive(t)
	for i, c := range clamped {
		s[StateWidth*i+OffsetV] = c
	}
	for i := 0; i < len(e.capacitance); i++ {
		base := StateWidth * i
		s[base+OffsetM] = clip01(s[base+OffsetM])
		s[base+OffsetH] = clip01(s[base+OffsetH])
		s[base+OffsetN] = clip01(s[base+OffsetN])
	}
}
