package integrator

// Euler defines a first order, fixed step, explicit integrator.
type Euler struct {
	X0, X1     float64    // The integration span.
	StepSize   float64    // The step size.
	Integrable Integrable // What is to be integrated.
}

// NewEuler returns a new Euler integrator instance.
func NewEuler(x0, x1, stepSize float64, inte Integrable) *Euler {
	return &Euler{X0: x0, X1: x1, StepSize: stepSize, Integrable: inte}
}

// Solve solves the configured Euler integration.
// Returns the number of iterations performed and the last X_i, or an error.
func (e *Euler) Solve() (uint64, float64, error) {
	if err := checkFixed(e.X0, e.X1, e.StepSize); err != nil {
		return 0, e.X0, err
	}
	n := stepCount(e.X0, e.X1, e.StepSize)
	iterNum := uint64(0)
	xi := e.X0
	var fDot []float64
	for iterNum < n && !e.Integrable.Stop(xi) {
		state := e.Integrable.GetState()
		if fDot == nil {
			fDot = make([]float64, len(state))
		}
		next := gridPoint(e.X0, e.X1, e.StepSize, iterNum+1, n)
		h := next - xi
		e.Integrable.Func(xi, state, fDot)
		newState := make([]float64, len(state))
		for i, y := range state {
			newState[i] = y + h*fDot[i]
		}
		iterNum++
		xi = next
		e.Integrable.SetState(xi, newState)
	}
	return iterNum, xi, nil
}
