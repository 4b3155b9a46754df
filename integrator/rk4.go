package integrator

// RK4 defines a classical fourth order Runge-Kutta integrator with a fixed step.
type RK4 struct {
	X0, X1     float64    // The integration span.
	StepSize   float64    // The step size.
	Integrable Integrable // What is to be integrated.
}

// NewRK4 returns a new RK4 integrator instance.
func NewRK4(x0, x1, stepSize float64, inte Integrable) *RK4 {
	return &RK4{X0: x0, X1: x1, StepSize: stepSize, Integrable: inte}
}

// Solve solves the configured RK4.
// Returns the number of iterations performed and the last X_i, or an error.
func (r *RK4) Solve() (uint64, float64, error) {
	const (
		half     = 1 / 2.0
		oneSixth = 1 / 6.0
		oneThird = 1 / 3.0
	)
	if err := checkFixed(r.X0, r.X1, r.StepSize); err != nil {
		return 0, r.X0, err
	}

	n := stepCount(r.X0, r.X1, r.StepSize)
	iterNum := uint64(0)
	xi := r.X0
	var k1, k2, k3, k4, tState, fDot []float64
	for iterNum < n && !r.Integrable.Stop(xi) {
		state := r.Integrable.GetState()
		if k1 == nil {
			k1 = make([]float64, len(state))
			// k2, k3, k4 are used as buffers AND result variables.
			k2 = make([]float64, len(state))
			k3 = make([]float64, len(state))
			k4 = make([]float64, len(state))
			tState = make([]float64, len(state))
			fDot = make([]float64, len(state))
		}
		next := gridPoint(r.X0, r.X1, r.StepSize, iterNum+1, n)
		h := next - xi
		halfStep := h * half

		// Compute the k's.
		r.Integrable.Func(xi, state, fDot)
		for i, y := range fDot {
			k1[i] = y * h
			tState[i] = state[i] + k1[i]*half
		}
		r.Integrable.Func(xi+halfStep, tState, fDot)
		for i, y := range fDot {
			k2[i] = y * h
			tState[i] = state[i] + k2[i]*half
		}
		r.Integrable.Func(xi+halfStep, tState, fDot)
		for i, y := range fDot {
			k3[i] = y * h
			tState[i] = state[i] + k3[i]
		}
		r.Integrable.Func(leftOf(next, xi), tState, fDot)
		newState := make([]float64, len(state))
		for i, y := range fDot {
			k4[i] = y * h
			newState[i] = state[i] + oneSixth*(k1[i]+k4[i]) + oneThird*(k2[i]+k3[i])
		}

		iterNum++ // Don't forget to increment the number of iterations.
		xi = next
		r.Integrable.SetState(xi, newState)
	}

	return iterNum, xi, nil
}
