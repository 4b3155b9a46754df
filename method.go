package gencomo

import (
	"fmt"
	"strings"
)

// Method selects the integration scheme. It is one of ForwardEuler, RungeKutta4 or DormandPrince.
type Method interface {
	method() string
}

// ForwardEuler is the explicit first order method with a fixed step (ms).
type ForwardEuler struct {
	Dt float64
}

func (ForwardEuler) method() string { return "euler" }

// RungeKutta4 is the classical fourth order method with a fixed step (ms).
type RungeKutta4 struct {
	Dt float64
}

func (RungeKutta4) method() string { return "rk4" }

// DormandPrince is the adaptive 5(4) Runge-Kutta method.
type DormandPrince struct {
	AbsTol, RelTol float64
	// OutputDt, if > 0, samples the trajectory on a uniform grid (ms) instead of at every accepted step.
	OutputDt float64
	// Optional step controls (ms). Zero values select the defaults of integrator.Config.
	InitialStep, MaxStep float64
	MaxSteps             uint64
}

func (DormandPrince) method() string { return "dopri" }

// MethodName returns the short name of the method, as accepted by ParseMethod.
func MethodName(m Method) string {
	if m == nil {
		return "none"
	}
	return m.method()
}

// ParseMethod returns the method of the given name. The step (ms) is used by the fixed step methods,
// the tolerances by the adaptive one.
func ParseMethod(name string, dt, atol, rtol float64) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "euler", "forward-euler":
		return ForwardEuler{Dt: dt}, nil
	case "rk4", "runge-kutta":
		return RungeKutta4{Dt: dt}, nil
	case "dopri", "dopri5", "dormand-prince", "adaptive":
		return DormandPrince{AbsTol: atol, RelTol: rtol}, nil
	default:
		return nil, fmt.Errorf("gencomo: unknown integration method %q", name)
	}
}
