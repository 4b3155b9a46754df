package integrator

import (
	"math"
	"sort"
)

// Dormand-Prince 5(4) tableau.
const (
	c2 = 1 / 5.
	c3 = 3 / 10.
	c4 = 4 / 5.
	c5 = 8 / 9.

	a21 = 1 / 5.
	a31 = 3 / 40.
	a32 = 9 / 40.
	a41 = 44 / 45.
	a42 = -56 / 15.
	a43 = 32 / 9.
	a51 = 19372 / 6561.
	a52 = -25360 / 2187.
	a53 = 64448 / 6561.
	a54 = -212 / 729.
	a61 = 9017 / 3168.
	a62 = -355 / 33.
	a63 = 46732 / 5247.
	a64 = 49 / 176.
	a65 = -5103 / 18656.

	// Fifth order weights, also the seventh stage (FSAL) row.
	b1 = 35 / 384.
	b3 = 500 / 1113.
	b4 = 125 / 192.
	b5 = -2187 / 6784.
	b6 = 11 / 84.

	// Difference between the fifth and fourth order weights.
	e1 = 71 / 57600.
	e3 = -71 / 16695.
	e4 = 71 / 1920.
	e5 = -17253 / 339200.
	e6 = 22 / 525.
	e7 = -1 / 40.
)

// Step size control.
const (
	safety       = 0.9
	minStepScale = 0.2
	maxStepScale = 5.0
	errExponent  = 1 / 5.
)

// Config configures the adaptive integrator.
type Config struct {
	AbsTol, RelTol float64 // Error tolerances, both must be positive.
	// InitialStep, if > 0, is the first attempted step. Otherwise it is estimated.
	InitialStep float64
	// MinStep, if > 0, is the smallest step allowed before giving up. Defaults to 1e-12 of the span.
	MinStep float64
	// MaxStep, if > 0, caps the step size. Defaults to the whole span.
	MaxStep float64
	// MaxSteps, if > 0, is the maximum number of attempted steps. Defaults to one million.
	MaxSteps uint64
	// Breakpoints are abscissae the integration must land on exactly, e.g. discontinuities of Func.
	Breakpoints []float64
}

// DefaultConfig returns the default adaptive configuration.
func DefaultConfig() Config {
	return Config{AbsTol: 1e-6, RelTol: 1e-3, MaxSteps: 1000000}
}

// Stats stores the statistics of the latest adaptive solve.
type Stats struct {
	Accepted, Rejected uint64 // Number of accepted and rejected steps.
	Evaluations        uint64 // Number of calls to Func.
	LastStep           float64
}

// DormandPrince is an adaptive fifth order Runge-Kutta integrator with an embedded fourth order error estimate.
type DormandPrince struct {
	X0, X1     float64
	Config     Config
	Integrable Integrable
	stats      Stats
}

// NewDormandPrince returns a new adaptive integrator instance.
func NewDormandPrince(x0, x1 float64, conf Config, inte Integrable) *DormandPrince {
	return &DormandPrince{X0: x0, X1: x1, Config: conf, Integrable: inte}
}

// Stats returns the statistics of the latest call to Solve.
func (d *DormandPrince) Stats() Stats {
	return d.stats
}

// Solve integrates from X0 to X1. SetState is only called on accepted steps.
// Returns the number of accepted steps and the last X_i, or an error.
func (d *DormandPrince) Solve() (uint64, float64, error) {
	d.stats = Stats{}
	conf := d.Config
	if !(conf.AbsTol > 0) || !(conf.RelTol > 0) || math.IsInf(conf.AbsTol, 0) || math.IsInf(conf.RelTol, 0) {
		return 0, d.X0, ErrInvalidTolerance
	}
	span := d.X1 - d.X0
	if !(span > 0) || math.IsInf(span, 0) {
		return 0, d.X0, ErrInvalidSpan
	}
	minStep := conf.MinStep
	if minStep <= 0 {
		minStep = 1e-12 * span
	}
	maxStep := conf.MaxStep
	if maxStep <= 0 || maxStep > span {
		maxStep = span
	}
	maxSteps := conf.MaxSteps
	if maxSteps == 0 {
		maxSteps = 1000000
	}
	targets := landings(d.X0, d.X1, conf.Breakpoints)

	xi := d.X0
	h := conf.InitialStep
	if h <= 0 {
		h = d.initialStep(xi, d.Integrable.GetState())
	}
	h = math.Min(h, maxStep)

	ti := 0
	attempts := uint64(0)
	for xi < d.X1 && !d.Integrable.Stop(xi) {
		if attempts >= maxSteps {
			return d.stats.Accepted, xi, ErrMaxSteps
		}
		attempts++
		for targets[ti] <= xi {
			ti++
		}
		target := targets[ti]
		step, landing := h, false
		if xi+step >= target || target-(xi+step) < minStep {
			step, landing = target-xi, true
		}

		next := xi + step
		if landing {
			next = target
		}
		state := d.Integrable.GetState()
		newState, errNorm := d.step(xi, next, state, step)
		if errNorm <= 1 {
			xi = next
			d.stats.Accepted++
			d.stats.LastStep = step
			d.Integrable.SetState(xi, newState)

			factor := maxStepScale
			if errNorm > 0 {
				factor = math.Min(maxStepScale, math.Max(minStepScale, safety*math.Pow(errNorm, -errExponent)))
			}
			if landing {
				// A shortened step says little about the step the dynamics allow.
				h = math.Max(h, step*factor)
			} else {
				h = step * factor
			}
			h = math.Min(h, maxStep)
			if h < minStep {
				return d.stats.Accepted, xi, ErrStepTooSmall
			}
			continue
		}

		// Rejected, NaN included.
		d.stats.Rejected++
		factor := minStepScale
		if !math.IsNaN(errNorm) && !math.IsInf(errNorm, 0) {
			factor = math.Max(minStepScale, safety*math.Pow(errNorm, -errExponent))
		}
		h = step * factor
		if h < minStep {
			return d.stats.Accepted, xi, ErrStepTooSmall
		}
	}
	return d.stats.Accepted, xi, nil
}

// step performs one trial step of size h from (x, y) to next and returns the fifth order
// solution along with the scaled RMS norm of the embedded error estimate.
// The last stages are evaluated just before next.
func (d *DormandPrince) step(x, next float64, y []float64, h float64) ([]float64, float64) {
	n := len(y)
	k1 := make([]float64, n)
	k2 := make([]float64, n)
	k3 := make([]float64, n)
	k4 := make([]float64, n)
	k5 := make([]float64, n)
	k6 := make([]float64, n)
	k7 := make([]float64, n)
	tmp := make([]float64, n)
	f := d.Integrable.Func

	f(x, y, k1)
	for i := range y {
		tmp[i] = y[i] + h*a21*k1[i]
	}
	f(x+c2*h, tmp, k2)
	for i := range y {
		tmp[i] = y[i] + h*(a31*k1[i]+a32*k2[i])
	}
	f(x+c3*h, tmp, k3)
	for i := range y {
		tmp[i] = y[i] + h*(a41*k1[i]+a42*k2[i]+a43*k3[i])
	}
	f(x+c4*h, tmp, k4)
	for i := range y {
		tmp[i] = y[i] + h*(a51*k1[i]+a52*k2[i]+a53*k3[i]+a54*k4[i])
	}
	f(x+c5*h, tmp, k5)
	for i := range y {
		tmp[i] = y[i] + h*(a61*k1[i]+a62*k2[i]+a63*k3[i]+a64*k4[i]+a65*k5[i])
	}
	end := leftOf(next, x)
	f(end, tmp, k6)
	newState := make([]float64, n)
	for i := range y {
		newState[i] = y[i] + h*(b1*k1[i]+b3*k3[i]+b4*k4[i]+b5*k5[i]+b6*k6[i])
	}
	f(end, newState, k7)
	d.stats.Evaluations += 7

	var sum float64
	for i := range y {
		errI := h * (e1*k1[i] + e3*k3[i] + e4*k4[i] + e5*k5[i] + e6*k6[i] + e7*k7[i])
		sc := d.Config.AbsTol + d.Config.RelTol*math.Max(math.Abs(y[i]), math.Abs(newState[i]))
		sum += (errI / sc) * (errI / sc)
	}
	if n == 0 {
		return newState, 0
	}
	return newState, math.Sqrt(sum / float64(n))
}

// initialStep estimates a first step from the scaled norms of the state and its derivative.
func (d *DormandPrince) initialStep(x float64, y []float64) float64 {
	fDot := make([]float64, len(y))
	d.Integrable.Func(x, y, fDot)
	d.stats.Evaluations++
	var d0, d1 float64
	for i := range y {
		sc := d.Config.AbsTol + d.Config.RelTol*math.Abs(y[i])
		d0 += (y[i] / sc) * (y[i] / sc)
		d1 += (fDot[i] / sc) * (fDot[i] / sc)
	}
	d0, d1 = math.Sqrt(d0), math.Sqrt(d1)
	if d0 < 1e-5 || d1 < 1e-5 || math.IsNaN(d1) {
		return 1e-6 * (d.X1 - d.X0)
	}
	return 0.01 * d0 / d1
}

// landings returns the sorted unique breakpoints strictly inside (x0, x1), followed by x1.
func landings(x0, x1 float64, breakpoints []float64) []float64 {
	out := make([]float64, 0, len(breakpoints)+1)
	for _, b := range breakpoints {
		if b > x0 && b < x1 {
			out = append(out, b)
		}
	}
	sort.Float64s(out)
	uniq := out[:0]
	for _, b := range out {
		if len(uniq) == 0 || b != uniq[len(uniq)-1] {
			uniq = append(uniq, b)
		}
	}
	return append(uniq, x1)
}
