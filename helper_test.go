package gencomo

import (
	"fmt"
	"testing"

	kitlog "github.com/go-kit/log"
	"gonum.org/v1/gonum/floats"
)

// chain returns an unbranched cable of n identical segments named c0, c1, ...
func chain(t *testing.T, n int, area, conductance float64) *SegmentGraph {
	t.Helper()
	g := NewSegmentGraph("chain")
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("c%d", i)
		if _, err := g.AddSegment(name, SegmentAttributes(area, 400, -65, [3]float64{20 * float64(i), 0, 0})...); err != nil {
			t.Fatal(err)
		}
		if i > 0 {
			if _, err := g.Connect(fmt.Sprintf("c%d", i-1), name, JunctionAttributes(conductance, 20)...); err != nil {
				t.Fatal(err)
			}
		}
	}
	return g
}

func quietSystem(t *testing.T, src SegmentSource) *ODESystem {
	t.Helper()
	sys, err := NewODESystem("test", src)
	if err != nil {
		t.Fatal(err)
	}
	sys.SetLogger(kitlog.NewNopLogger())
	return sys
}

func vectorsEqual(a, b []float64) bool {
	return floats.EqualApprox(a, b, 1e-12)
}

// sampleAt returns the index of the sample closest to time tq.
func sampleAt(traj *Trajectory, tq float64) int {
	best := 0
	for k, ti := range traj.Times {
		if abs(ti-tq) < abs(traj.Times[best]-tq) {
			best = k
		}
	}
	return best
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
