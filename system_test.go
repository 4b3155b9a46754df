package gencomo

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/ChristopherRabotin/gencomo/integrator"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// chainScenario is a four compartment cable stimulated at one end.
func chainScenario(t *testing.T) *ODESystem {
	sys := quietSystem(t, chain(t, 4, 500, 5e-9))
	if err := sys.AddStimulus("c0", 10, 5, 50, CurrentStimulus); err != nil {
		t.Fatal(err)
	}
	return sys
}

func TestPropagationChain(t *testing.T) {
	sys := chainScenario(t)
	traj, err := sys.Run(0, 30, ForwardEuler{Dt: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	if traj.Len() != 3001 || traj.Times[0] != 0 || traj.Times[traj.Len()-1] != 30 || traj.Steps != 3000 {
		t.Fatalf("unexpected sampling: %s", traj)
	}
	v0, _ := traj.Voltage("c0")
	if v := v0[sampleAt(traj, 9.9)]; math.Abs(v+65) > 0.5 {
		t.Fatalf("c0 drifted to %f mV before the stimulus", v)
	}
	if v := v0[sampleAt(traj, 12)]; v <= -60 {
		t.Fatalf("c0 is not depolarized by the stimulus: %f mV", v)
	}
	prevPeak := 0.0
	for _, id := range sys.Graph().IDs() {
		st, err := traj.Stats(id)
		if err != nil {
			t.Fatal(err)
		}
		if st.Max < -40 {
			t.Fatalf("%s does not spike: %s", id, st)
		}
		if st.PeakTime <= prevPeak {
			t.Fatalf("%s peaks at %f ms, not after its upstream neighbor at %f ms", id, st.PeakTime, prevPeak)
		}
		prevPeak = st.PeakTime
		v, _ := traj.Voltage(id)
		if final := v[len(v)-1]; math.Abs(final+65) > 2 {
			t.Fatalf("%s did not recover: %f mV at 30 ms", id, final)
		}
	}
	vel, err := traj.ConductionVelocity("c0", "c3", 0)
	if err != nil {
		t.Fatal(err)
	}
	if vel <= 0 {
		t.Fatalf("conduction velocity %f m/s", vel)
	}
	info, err := sys.CompartmentInfo("c3")
	if err != nil {
		t.Fatal(err)
	}
	if info.Potential != traj.Final()[3*StateWidth+OffsetV] || !reflect.DeepEqual(info.Neighbors, []string{"c2"}) {
		t.Fatalf("unexpected info %s", info)
	}
}

func TestMethodsAgree(t *testing.T) {
	euler, err := chainScenario(t).Run(0, 30, ForwardEuler{Dt: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	rk4, err := chainScenario(t).Run(0, 30, RungeKutta4{Dt: 0.01})
	if err != nil {
		t.Fatal(err)
	}
	dopri, err := chainScenario(t).Run(0, 30, DormandPrince{AbsTol: 1e-6, RelTol: 1e-6, OutputDt: 0.05})
	if err != nil {
		t.Fatal(err)
	}
	if dopri.Len() != 601 || dopri.Times[200] != 200*0.05 || dopri.Times[600] != 30 {
		t.Fatalf("adaptive run is not sampled on the output grid: %s", dopri)
	}
	if dopri.Evaluations == 0 || dopri.Steps == 0 {
		t.Fatalf("missing statistics: %s", dopri)
	}
	for _, id := range []string{"c0", "c3"} {
		ref, _ := rk4.Stats(id)
		refV, _ := rk4.Voltage(id)
		for name, traj := range map[string]*Trajectory{"euler": euler, "dopri": dopri} {
			st, _ := traj.Stats(id)
			if math.Abs(st.PeakTime-ref.PeakTime) > 0.15 {
				t.Fatalf("%s: %s peaks at %f ms, rk4 at %f ms", id, name, st.PeakTime, ref.PeakTime)
			}
			v, _ := traj.Voltage(id)
			if !scalar.EqualWithinAbs(v[len(v)-1], refV[len(refV)-1], 0.5) {
				t.Fatalf("%s: %s ends at %f mV, rk4 at %f mV", id, name, v[len(v)-1], refV[len(refV)-1])
			}
		}
	}
}

func TestDeterminism(t *testing.T) {
	for _, m := range []Method{ForwardEuler{Dt: 0.02}, DormandPrince{AbsTol: 1e-6, RelTol: 1e-4}} {
		a, err := chainScenario(t).Run(0, 20, m)
		if err != nil {
			t.Fatal(err)
		}
		b, err := chainScenario(t).Run(0, 20, m)
		if err != nil {
			t.Fatal(err)
		}
		if !floats.Equal(a.Times, b.Times) || a.Len() != b.Len() {
			t.Fatalf("%s: sampling differs between identical runs", MethodName(m))
		}
		for k := range a.States {
			if !floats.Equal(a.States[k], b.States[k]) {
				t.Fatalf("%s: states differ at %f ms", MethodName(m), a.Times[k])
			}
		}
	}
}

func TestVoltageClamp(t *testing.T) {
	for _, m := range []Method{ForwardEuler{Dt: 0.01}, RungeKutta4{Dt: 0.025}, DormandPrince{AbsTol: 1e-6, RelTol: 1e-4}} {
		sys := quietSystem(t, chain(t, 2, 500, 5e-9))
		if err := sys.AddStimulus("c0", 5, 5, -20, VoltageStimulus); err != nil {
			t.Fatal(err)
		}
		traj, err := sys.Run(0, 15, m)
		if err != nil {
			t.Fatalf("%s: %s", MethodName(m), err)
		}
		v0, _ := traj.Voltage("c0")
		m0, _, _, _ := traj.Gating("c0")
		inside := 0
		for k, ti := range traj.Times {
			if ti >= 5 && ti < 10 {
				inside++
				if v0[k] != -20 {
					t.Fatalf("%s: c0 at %f mV at %f ms while clamped", MethodName(m), v0[k], ti)
				}
			}
		}
		if inside == 0 {
			t.Fatalf("%s: no sample in the clamp window", MethodName(m))
		}
		if k := sampleAt(traj, 9.9); m0[k] <= m0[0] {
			t.Fatalf("%s: Na activation did not follow the clamp", MethodName(m))
		}
		st, _ := traj.Stats("c1")
		if st.Max <= -60 {
			t.Fatalf("%s: clamp did not depolarize the neighbor: %s", MethodName(m), st)
		}
	}
}

func TestGatingBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 10; trial++ {
		sys := quietSystem(t, chain(t, 3, 500, 5e-9))
		for s := 0; s < 4; s++ {
			id := sys.Graph().IDs()[rng.Intn(3)]
			start, duration := rng.Float64()*20, 0.5+rng.Float64()*8
			var err error
			if rng.Intn(2) == 0 {
				err = sys.AddStimulus(id, start, duration, -200+rng.Float64()*500, CurrentStimulus)
			} else {
				err = sys.AddStimulus(id, start, duration, -90+rng.Float64()*120, VoltageStimulus)
			}
			if err != nil {
				t.Fatal(err)
			}
		}
		if trial%2 == 1 {
			sys.SetClampPrecedence(CurrentOverridesClamp)
		}
		traj, err := sys.Run(0, 30, ForwardEuler{Dt: 0.01})
		if err != nil {
			t.Fatalf("trial %d: %s\n%s", trial, err, sys.Summary())
		}
		for k, s := range traj.States {
			for i := 0; i < 3; i++ {
				for off := OffsetM; off < StateWidth; off++ {
					if x := s[StateWidth*i+off]; x < 0 || x > 1 {
						t.Fatalf("trial %d: gate %d of c%d is %f at %f ms", trial, off, i, x, traj.Times[k])
					}
				}
			}
			if i := allFinite(s); i >= 0 {
				t.Fatalf("trial %d: non finite state at %f ms", trial, traj.Times[k])
			}
		}
	}
}

func TestRunErrors(t *testing.T) {
	sys := chainScenario(t)
	for _, tc := range []struct {
		t0, t1 float64
		m      Method
		exp    error
	}{
		{0, 10, ForwardEuler{Dt: 0}, integrator.ErrInvalidStep},
		{0, 10, RungeKutta4{Dt: -0.1}, integrator.ErrInvalidStep},
		{10, 10, ForwardEuler{Dt: 0.01}, integrator.ErrInvalidSpan},
		{0, math.NaN(), ForwardEuler{Dt: 0.01}, integrator.ErrInvalidSpan},
		{0, 10, DormandPrince{AbsTol: 0, RelTol: 1e-3}, integrator.ErrInvalidTolerance},
		{0, 10, DormandPrince{AbsTol: 1e-6, RelTol: 1e-3, OutputDt: -1}, integrator.ErrInvalidStep},
	} {
		traj, err := sys.Run(tc.t0, tc.t1, tc.m)
		var ierr *IntegrationError
		if traj != nil || !errors.As(err, &ierr) || !errors.Is(err, tc.exp) {
			t.Fatalf("%s [%f, %f]: expected %v, got %v", MethodName(tc.m), tc.t0, tc.t1, tc.exp, err)
		}
		if ierr.Partial != nil {
			t.Fatalf("%s: invalid configurations must not integrate", MethodName(tc.m))
		}
	}
	if _, err := sys.Run(0, 10, nil); err == nil {
		t.Fatal("expected an error without a method")
	}

	_, err := sys.Run(0, 30, DormandPrince{AbsTol: 1e-6, RelTol: 1e-4, MaxSteps: 5})
	var ierr *IntegrationError
	if !errors.As(err, &ierr) || !errors.Is(err, integrator.ErrMaxSteps) {
		t.Fatalf("expected a step budget error, got %v", err)
	}
	if ierr.Partial == nil || ierr.Partial.Len() < 1 || ierr.Partial.Times[0] != 0 || ierr.Time >= 30 {
		t.Fatalf("partial trajectory not returned: %+v", ierr)
	}
	if !strings.Contains(ierr.Error(), "dopri") {
		t.Fatalf("error does not name the method: %s", ierr)
	}
}

func TestAssemblyErrors(t *testing.T) {
	sys := quietSystem(t, NewSegmentGraph("empty"))
	var aerr *AssemblyError
	if _, err := sys.Build(); !errors.As(err, &aerr) {
		t.Fatalf("expected an assembly error, got %v", err)
	}
	if _, err := sys.Run(0, 1, ForwardEuler{Dt: 0.1}); !errors.As(err, &aerr) {
		t.Fatalf("expected an assembly error, got %v", err)
	}
	if _, err := NewODESystem("nil", nil); err == nil {
		t.Fatal("expected a validation error without a graph")
	}
}

func TestSystemAccessors(t *testing.T) {
	sys := chainScenario(t)
	info, err := sys.CompartmentInfo("c1")
	if err != nil {
		t.Fatal(err)
	}
	if info.Potential != -65 || info.Index != 1 || info.SurfaceArea != 500 || !reflect.DeepEqual(info.Neighbors, []string{"c0", "c2"}) {
		t.Fatalf("unexpected info %s", info)
	}
	if _, err := sys.CompartmentInfo("c7"); err == nil {
		t.Fatal("expected an unknown compartment error")
	}
	if err := sys.AddStimulus("c7", 0, 1, 1, CurrentStimulus); err == nil || len(sys.Stimuli()) != 1 {
		t.Fatal("stimulus on an unknown compartment accepted")
	}
	if len(sys.ActiveStimuli(12)) != 1 || len(sys.ActiveStimuli(15)) != 0 {
		t.Fatal("unexpected active stimuli")
	}

	params := sys.Parameters()
	summary := sys.Summary()
	for _, exp := range []string{"test", "c3", "g_na=120", "current c0 50 pA [10, 15) ms", "clamp-overrides-current"} {
		if !strings.Contains(summary, exp) {
			t.Fatalf("summary misses %q:\n%s", exp, summary)
		}
	}
	if sys.Parameters() != params || len(sys.Stimuli()) != 1 {
		t.Fatal("summary modified the system")
	}

	if err := sys.SetParameters(map[string]float64{"g_k": -1}); err == nil || sys.Parameters() != params {
		t.Fatal("invalid parameters applied")
	}
	if err := sys.SetParameters(map[string]float64{"g_k": 30}); err != nil || sys.Parameters().GK != 30 {
		t.Fatalf("parameters not applied: %v", err)
	}
	sys.ResetParameters()
	if sys.Parameters() != DefaultParameters() {
		t.Fatal("parameters not reset")
	}
	sys.ClearStimuli()
	if len(sys.Stimuli()) != 0 {
		t.Fatal("stimuli not cleared")
	}
}

func TestStimulusWindowOpensAtStart(t *testing.T) {
	for _, m := range []Method{ForwardEuler{Dt: 0.05}, RungeKutta4{Dt: 0.05}, DormandPrince{AbsTol: 1e-6, RelTol: 1e-4}} {
		for _, kind := range []StimulusKind{VoltageStimulus, CurrentStimulus} {
			free, err := quietSystem(t, chain(t, 2, 500, 5e-9)).Run(0, 5, m)
			if err != nil {
				t.Fatal(err)
			}
			sys := quietSystem(t, chain(t, 2, 500, 5e-9))
			if err := sys.AddStimulus("c0", 5, 2, 20, kind); err != nil {
				t.Fatal(err)
			}
			driven, err := sys.Run(0, 5, m)
			if err != nil {
				t.Fatal(err)
			}
			name := MethodName(m) + "/" + kind.String()
			if !floats.Equal(free.Times, driven.Times) || free.Rejected != driven.Rejected {
				t.Fatalf("%s: stepping changed by a stimulus starting at the end (rejected %d vs %d)", name, driven.Rejected, free.Rejected)
			}
			last := free.Len() - 1
			for k := 0; k < last; k++ {
				if !floats.Equal(free.States[k], driven.States[k]) {
					t.Fatalf("%s: state at %f ms changed before the stimulus starts", name, free.Times[k])
				}
			}
			// Only the clamp itself may show at its start.
			end, want := driven.States[last], free.States[last]
			if !floats.Equal(end[OffsetM:], want[OffsetM:]) {
				t.Fatalf("%s: stimulus leaked into the step ending at its start", name)
			}
			if kind == CurrentStimulus && end[OffsetV] != want[OffsetV] || kind == VoltageStimulus && end[OffsetV] != 20 {
				t.Fatalf("%s: c0 at %f mV at 5 ms", name, end[OffsetV])
			}
		}
	}
}

func TestNonFiniteAbort(t *testing.T) {
	// The sodium current overflows the first derivative of the potential.
	sys := quietSystem(t, chain(t, 1, 500, 5e-9))
	if err := sys.SetParameters(map[string]float64{"g_na": 1e6, "e_na": math.MaxFloat64}); err != nil {
		t.Fatal(err)
	}
	_, err := sys.Run(0, 1, ForwardEuler{Dt: 0.01})
	var ierr *IntegrationError
	if !errors.As(err, &ierr) || !strings.Contains(ierr.Error(), "non finite c0_V") {
		t.Fatalf("expected a non finite state error, got %v", err)
	}
	if ierr.Partial == nil || ierr.Partial.Len() == 0 {
		t.Fatalf("partial trajectory not returned: %+v", ierr)
	}
	last := ierr.Partial.Len() - 1
	for k, s := range ierr.Partial.States {
		if allFinite(s) >= 0 {
			t.Fatalf("non finite sample recorded at %f ms", ierr.Partial.Times[k])
		}
	}
	if ierr.Time <= ierr.Partial.Times[last] || ierr.Time >= 1 {
		t.Fatalf("failed at %f ms, last sample at %f ms", ierr.Time, ierr.Partial.Times[last])
	}
	if ierr.Partial.Steps != uint64(last+1) {
		t.Fatalf("integration went on after the failure: %d steps for %d samples", ierr.Partial.Steps, last+1)
	}
}
