package gencomo

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestDefaultParameters(t *testing.T) {
	p := DefaultParameters()
	if err := p.Validate(); err != nil {
		t.Fatalf("default parameters are invalid: %s", err)
	}
	exp := map[string]float64{"g_na": 120, "g_k": 36, "g_leak": 0.3, "e_na": 50, "e_k": -77, "e_leak": -54.387, "c_m": 1, "q10": 3}
	for key, val := range exp {
		got, err := p.Get(key)
		if err != nil {
			t.Fatal(err)
		}
		if got != val {
			t.Fatalf("%s=%f, expected %f", key, got, val)
		}
	}
	if len(ParameterKeys()) != len(p.Map()) || ParameterKeys()[0] != "g_na" {
		t.Fatalf("inconsistent keys %v", ParameterKeys())
	}
	if _, err := p.Get("g_ca"); err == nil {
		t.Fatal("expected an unknown parameter error")
	}
	if p.TemperatureFactor() != 1 {
		t.Fatalf("phi at the reference temperature is %f", p.TemperatureFactor())
	}
	p.Temperature += 10
	if !scalar.EqualWithinAbs(p.TemperatureFactor(), 3, 1e-12) {
		t.Fatalf("phi ten degrees above the reference is %f", p.TemperatureFactor())
	}
}

func TestParameterStore(t *testing.T) {
	s := NewParameterStore()
	if err := s.Set(map[string]float64{"g_na": 100, "temperature": 300}); err != nil {
		t.Fatal(err)
	}
	if p := s.Snapshot(); p.GNa != 100 || p.Temperature != 300 || p.GK != 36 {
		t.Fatalf("overrides not applied: %s", p)
	}
	s.Reset()
	if s.Snapshot() != DefaultParameters() {
		t.Fatal("reset did not restore the defaults")
	}

	for _, tc := range []struct {
		name      string
		overrides map[string]float64
		key       string
		unknown   bool
	}{
		{"negative conductance", map[string]float64{"g_na": 100, "g_k": -1}, "g_k", false},
		{"zero capacitance", map[string]float64{"g_na": 100, "c_m": 0}, "c_m", false},
		{"zero temperature", map[string]float64{"temperature": 0}, "temperature", false},
		{"negative temperature", map[string]float64{"temperature": -3}, "temperature", false},
		{"nan potential", map[string]float64{"e_na": math.NaN()}, "e_na", false},
		{"infinite q10", map[string]float64{"q10": math.Inf(1)}, "q10", false},
		{"unknown key", map[string]float64{"g_na": 100, "nope": 1}, "nope", true},
	} {
		err := s.Set(tc.overrides)
		if tc.unknown {
			var uerr *UnknownParameterError
			if !errors.As(err, &uerr) || uerr.Key != tc.key {
				t.Fatalf("%s: expected an unknown parameter error, got %v", tc.name, err)
			}
		} else {
			var rerr *ParameterRangeError
			if !errors.As(err, &rerr) || rerr.Key != tc.key {
				t.Fatalf("%s: expected a range error on %s, got %v", tc.name, tc.key, err)
			}
		}
		if s.Snapshot() != DefaultParameters() {
			t.Fatalf("%s: failed override modified the parameters: %s", tc.name, s.Snapshot())
		}
	}
	// A zero conductance is valid.
	if err := s.Set(map[string]float64{"g_na": 0}); err != nil {
		t.Fatal(err)
	}
}

func TestRestingPotential(t *testing.T) {
	v, err := RestingPotential(DefaultParameters())
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinAbs(v, -65, 0.01) {
		t.Fatalf("resting potential %f mV", v)
	}
	m, h, n := steadyState(v)
	if i := ionicCurrentDensity(DefaultParameters(), v, m, h, n); math.Abs(i) > 1e-9 {
		t.Fatalf("net ionic current at rest: %g", i)
	}
	bad := DefaultParameters()
	bad.Cm = -1
	if _, err := RestingPotential(bad); err == nil {
		t.Fatal("expected an error with invalid parameters")
	}
}

func TestRateConstants(t *testing.T) {
	// Removable singularities of αm and αn.
	r := rateConstants(-40, 1)
	if !scalar.EqualWithinAbs(r.am, 1, 1e-9) {
		t.Fatalf("αm(-40) = %f", r.am)
	}
	r = rateConstants(-55, 1)
	if !scalar.EqualWithinAbs(r.an, 0.1, 1e-9) {
		t.Fatalf("αn(-55) = %f", r.an)
	}
	for _, v := range []float64{-40 - 1e-9, -40 + 1e-9} {
		if !scalar.EqualWithinAbs(rateConstants(v, 1).am, 1, 1e-6) {
			t.Fatalf("αm is discontinuous around -40 mV")
		}
	}
	r2 := rateConstants(-30, 2)
	r1 := rateConstants(-30, 1)
	if !scalar.EqualWithinAbs(r2.bh, 2*r1.bh, 1e-12) || !scalar.EqualWithinAbs(r2.an, 2*r1.an, 1e-12) {
		t.Fatal("rates are not scaled by the temperature factor")
	}
	for v := -100.0; v <= 50; v += 5 {
		m, h, n := steadyState(v)
		for _, x := range []float64{m, h, n} {
			if x < 0 || x > 1 {
				t.Fatalf("steady state out of [0, 1] at %f mV", v)
			}
		}
	}
}
