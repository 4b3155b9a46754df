package integrator

import (
	"errors"
	"math"
)

// Integrable defines something which can be integrated, i.e. has a state vector.
// WARNING: Implementation must manage its own state based on the iteration. The
// integrators only read the slice returned by GetState and always hand a newly
// allocated slice to SetState.
type Integrable interface {
	GetState() []float64               // Get the latest state of this integrable.
	SetState(t float64, s []float64)   // Set the state s reached at time t.
	Stop(t float64) bool               // Return whether to stop the integration at time t.
	Func(t float64, s, fDot []float64) // ODE function from time t and state s, writes ds/dt into fDot.
}

var (
	// ErrInvalidStep is returned when a fixed step size is not strictly positive.
	ErrInvalidStep = errors.New("integrator: step size must be positive and finite")
	// ErrInvalidSpan is returned when the end of the integration is not after its start.
	ErrInvalidSpan = errors.New("integrator: end must be after start")
	// ErrInvalidTolerance is returned when an adaptive tolerance is not strictly positive.
	ErrInvalidTolerance = errors.New("integrator: tolerances must be positive and finite")
	// ErrStepTooSmall is returned when the adaptive step falls below the minimum step.
	ErrStepTooSmall = errors.New("integrator: adaptive step below minimum")
	// ErrMaxSteps is returned when the adaptive integrator exhausts its step budget.
	ErrMaxSteps = errors.New("integrator: maximum number of steps reached")
)

// stepCount returns the number of steps of size h needed to cover [x0, x1].
// A span which is a multiple of h, up to rounding, does not get a trailing sliver step.
func stepCount(x0, x1, h float64) uint64 {
	r := (x1 - x0) / h
	n := math.Round(r)
	if math.Abs(r-n) > 1e-9*math.Max(1, r) {
		n = math.Ceil(r)
	}
	if n < 1 {
		n = 1
	}
	return uint64(n)
}

// gridPoint returns the abscissa of step k out of n. The last one is exactly x1.
func gridPoint(x0, x1, h float64, k, n uint64) float64 {
	if k >= n {
		return x1
	}
	return x0 + float64(k)*h
}

// leftOf returns the float just before x1 when coming from x0. Stages at the end of a step are
// evaluated there: a discontinuity of Func at x1 only affects the steps starting from x1.
func leftOf(x1, x0 float64) float64 {
	return math.Nextafter(x1, x0)
}

func checkFixed(x0, x1, h float64) error {
	if !(h > 0) || math.IsInf(h, 0) {
		return ErrInvalidStep
	}
	if !(x1 > x0) || math.IsInf(x1-x0, 0) {
		return ErrInvalidSpan
	}
	return nil
}
