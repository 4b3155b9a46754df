package gencomo

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Trajectory is the sampled solution of a run. States[k] is the full state vector at Times[k].
type Trajectory struct {
	Times  []float64
	States [][]float64
	// Integration statistics.
	Steps, Rejected, Evaluations uint64
	graph                        *CompartmentGraph
}

// CompartmentSeries is the time series of one compartment.
type CompartmentSeries struct {
	ID         string
	V, M, H, N []float64
}

// VoltageStats summarizes the membrane potential of one compartment.
type VoltageStats struct {
	Mean, StdDev float64 // mV
	Min, Max     float64 // mV
	PeakTime     float64 // ms, time of Max
}

func (s VoltageStats) String() string {
	return fmt.Sprintf("V=%.3f±%.3f mV [%.3f, %.3f] peak@%.3f ms", s.Mean, s.StdDev, s.Min, s.Max, s.PeakTime)
}

// Len returns the number of samples.
func (t *Trajectory) Len() int {
	return len(t.Times)
}

// Final returns a copy of the last state vector, or nil if there are no samples.
func (t *Trajectory) Final() []float64 {
	if len(t.States) == 0 {
		return nil
	}
	return append([]float64(nil), t.States[len(t.States)-1]...)
}

func (t *Trajectory) column(id string, offset int) ([]float64, error) {
	if t.graph == nil {
		return nil, &UnknownCompartmentError{ID: id}
	}
	i, err := t.graph.Index(id)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(t.States))
	for k, s := range t.States {
		out[k] = s[StateWidth*i+offset]
	}
	return out, nil
}

// Voltage returns the membrane potential (mV) of a compartment at each sample.
func (t *Trajectory) Voltage(id string) ([]float64, error) {
	return t.column(id, OffsetV)
}

// Gating returns the m, h and n gating variables of a compartment at each sample.
func (t *Trajectory) Gating(id string) (m, h, n []float64, err error) {
	if m, err = t.column(id, OffsetM); err != nil {
		return
	}
	h, _ = t.column(id, OffsetH)
	n, _ = t.column(id, OffsetN)
	return
}

// Series returns all the time series of a compartment.
func (t *Trajectory) Series(id string) (CompartmentSeries, error) {
	v, err := t.Voltage(id)
	if err != nil {
		return CompartmentSeries{}, err
	}
	m, h, n, _ := t.Gating(id)
	return CompartmentSeries{ID: id, V: v, M: m, H: h, N: n}, nil
}

// AllSeries returns the time series of every compartment keyed by identifier.
func (t *Trajectory) AllSeries() map[string]CompartmentSeries {
	out := make(map[string]CompartmentSeries)
	if t.graph == nil {
		return out
	}
	for _, id := range t.graph.IDs() {
		out[id], _ = t.Series(id)
	}
	return out
}

// Stats returns the statistics of the membrane potential of a compartment, weighing samples equally.
func (t *Trajectory) Stats(id string) (VoltageStats, error) {
	v, err := t.Voltage(id)
	if err != nil {
		return VoltageStats{}, err
	}
	if len(v) == 0 {
		return VoltageStats{}, errors.New("gencomo: empty trajectory")
	}
	var s VoltageStats
	s.Mean, s.StdDev = stat.MeanStdDev(v, nil)
	if len(v) == 1 {
		s.StdDev = 0
	}
	s.Min, s.Max = floats.Min(v), floats.Max(v)
	s.PeakTime = t.Times[floats.MaxIdx(v)]
	return s, nil
}

// SpikeTimes returns the times (ms) at which the membrane potential of a compartment crosses the
// threshold (mV) upwards, linearly interpolated between samples.
func (t *Trajectory) SpikeTimes(id string, threshold float64) ([]float64, error) {
	v, err := t.Voltage(id)
	if err != nil {
		return nil, err
	}
	var spikes []float64
	for k := 1; k < len(v); k++ {
		if v[k-1] < threshold && v[k] >= threshold {
			frac := (threshold - v[k-1]) / (v[k] - v[k-1])
			spikes = append(spikes, t.Times[k-1]+frac*(t.Times[k]-t.Times[k-1]))
		}
	}
	return spikes, nil
}

// ConductionVelocity returns the propagation speed (m/s) of the first spike from one compartment
// to another, along the shortest coupling path.
func (t *Trajectory) ConductionVelocity(from, to string, threshold float64) (float64, error) {
	if t.graph == nil {
		return 0, &UnknownCompartmentError{ID: from}
	}
	length, _, err := t.graph.PathLength(from, to)
	if err != nil {
		return 0, err
	}
	if math.IsInf(length, 1) {
		return 0, fmt.Errorf("gencomo: %s and %s are not connected", from, to)
	}
	first := func(id string) (float64, error) {
		spikes, err := t.SpikeTimes(id, threshold)
		if err != nil {
			return 0, err
		}
		if len(spikes) == 0 {
			return 0, fmt.Errorf("gencomo: no spike above %g mV in %s", threshold, id)
		}
		return spikes[0], nil
	}
	t0, err := first(from)
	if err != nil {
		return 0, err
	}
	t1, err := first(to)
	if err != nil {
		return 0, err
	}
	if t1 <= t0 {
		return 0, fmt.Errorf("gencomo: spike reached %s at %g ms, not after %s at %g ms", to, t1, from, t0)
	}
	// µm/ms to m/s.
	return length / (t1 - t0) * 1e-3, nil
}

func (t *Trajectory) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d samples", len(t.Times))
	if len(t.Times) > 0 {
		fmt.Fprintf(&b, " over [%g, %g] ms", t.Times[0], t.Times[len(t.Times)-1])
	}
	fmt.Fprintf(&b, ", %d steps", t.Steps)
	if t.Rejected > 0 {
		fmt.Fprintf(&b, " (%d rejected)", t.Rejected)
	}
	return b.String()
}
