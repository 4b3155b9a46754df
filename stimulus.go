package gencomo

import (
	"fmt"
	"sort"
	"strings"
)

// StimulusKind defines the kind of stimulus.
type StimulusKind uint8

const (
	// CurrentStimulus injects a current, amplitude in pA; positive amplitudes depolarize.
	CurrentStimulus StimulusKind = iota + 1
	// VoltageStimulus clamps the membrane potential, amplitude in mV.
	VoltageStimulus
)

func (k StimulusKind) String() string {
	switch k {
	case CurrentStimulus:
		return "current"
	case VoltageStimulus:
		return "voltage"
	default:
		return fmt.Sprintf("StimulusKind(%d)", k)
	}
}

// ParseStimulusKind returns the stimulus kind from its name.
func ParseStimulusKind(name string) (StimulusKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "current":
		return CurrentStimulus, nil
	case "voltage":
		return VoltageStimulus, nil
	default:
		return 0, &InvalidStimulusError{Field: "kind", Value: name, Reason: "must be current or voltage"}
	}
}

// ClampPrecedence decides what happens when a current and a voltage stimulus are both active on one compartment.
type ClampPrecedence uint8

const (
	// ClampOverridesCurrent ignores the current injections while a clamp is active.
	ClampOverridesCurrent ClampPrecedence = iota
	// CurrentOverridesClamp ignores the clamp while a current injection is active.
	CurrentOverridesClamp
)

func (p ClampPrecedence) String() string {
	if p == CurrentOverridesClamp {
		return "current-overrides-clamp"
	}
	return "clamp-overrides-current"
}

// ParseClampPrecedence returns the precedence from its name, as returned by String.
func ParseClampPrecedence(name string) (ClampPrecedence, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "clamp-overrides-current", "clamp":
		return ClampOverridesCurrent, nil
	case "current-overrides-clamp", "current":
		return CurrentOverridesClamp, nil
	default:
		return 0, fmt.Errorf("gencomo: unknown clamp precedence %q", name)
	}
}

// Stimulus is a time windowed perturbation of one compartment.
type Stimulus struct {
	Compartment string
	Start       float64 // ms
	Duration    float64 // ms
	Amplitude   float64 // pA or mV depending on Kind
	Kind        StimulusKind
	index       int // compartment index
}

// End returns the end of the active window, which is excluded.
func (s Stimulus) End() float64 {
	return s.Start + s.Duration
}

// ActiveAt returns whether t is in [Start, Start+Duration).
func (s Stimulus) ActiveAt(t float64) bool {
	return t >= s.Start && t < s.End()
}

func (s Stimulus) String() string {
	unit := "pA"
	if s.Kind == VoltageStimulus {
		unit = "mV"
	}
	return fmt.Sprintf("%s %s %g %s [%g, %g) ms", s.Kind, s.Compartment, s.Amplitude, unit, s.Start, s.End())
}

// StimulusRegistry stores the stimuli of a system in arrival order.
type StimulusRegistry struct {
	graph   *CompartmentGraph
	stimuli []Stimulus
}

// NewStimulusRegistry returns an empty registry for the given compartments.
func NewStimulusRegistry(g *CompartmentGraph) *StimulusRegistry {
	return &StimulusRegistry{graph: g}
}

// Add validates and appends a stimulus. Nothing is stored if an error is returned.
func (r *StimulusRegistry) Add(id string, start, duration, amplitude float64, kind StimulusKind) error {
	if r.graph == nil {
		return &UnknownCompartmentError{ID: id}
	}
	idx, err := r.graph.Index(id)
	if err != nil {
		return err
	}
	if kind != CurrentStimulus && kind != VoltageStimulus {
		return &InvalidStimulusError{Field: "kind", Value: fmt.Sprintf("%d", kind), Reason: "must be current or voltage"}
	}
	for _, f := range []struct {
		name string
		val  float64
	}{{"start", start}, {"duration", duration}, {"amplitude", amplitude}} {
		if !isFinite(f.val) {
			return &InvalidStimulusError{Field: f.name, Value: formatFloat(f.val), Reason: "must be finite"}
		}
	}
	if duration <= 0 {
		return &InvalidStimulusError{Field: "duration", Value: formatFloat(duration), Reason: "must be > 0"}
	}
	r.stimuli = append(r.stimuli, Stimulus{Compartment: id, Start: start, Duration: duration, Amplitude: amplitude, Kind: kind, index: idx})
	return nil
}

// Active returns the stimuli active at time t, in arrival order.
func (r *StimulusRegistry) Active(t float64) []Stimulus {
	return activeAt(r.stimuli, t)
}

// All returns a copy of every stimulus in arrival order.
func (r *StimulusRegistry) All() []Stimulus {
	return append([]Stimulus(nil), r.stimuli...)
}

// Len returns the number of registered stimuli.
func (r *StimulusRegistry) Len() int {
	return len(r.stimuli)
}

// Clear removes all stimuli.
func (r *StimulusRegistry) Clear() {
	r.stimuli = nil
}

// Breakpoints returns the sorted, unique start and end times strictly inside (t0, t1).
// The right hand side is discontinuous there.
func (r *StimulusRegistry) Breakpoints(t0, t1 float64) []float64 {
	return breakpoints(r.stimuli, t0, t1)
}

func activeAt(stimuli []Stimulus, t float64) []Stimulus {
	var active []Stimulus
	for _, s := range stimuli {
		if s.ActiveAt(t) {
			active = append(active, s)
		}
	}
	return active
}

func breakpoints(stimuli []Stimulus, t0, t1 float64) []float64 {
	var bps []float64
	for _, s := range stimuli {
		for _, b := range []float64{s.Start, s.End()} {
			if b > t0 && b < t1 {
				bps = append(bps, b)
			}
		}
	}
	sort.Float64s(bps)
	uniq := bps[:0]
	for _, b := range bps {
		if len(uniq) == 0 || b != uniq[len(uniq)-1] {
			uniq = append(uniq, b)
		}
	}
	return uniq
}
