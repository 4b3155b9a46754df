package gencomo

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/gencomo/integrator"
)

// propagation drives one integration of the equations and records the trajectory.
// It implements integrator.Integrable.
type propagation struct {
	eq    *Equations
	state []float64
	t     float64
	traj  *Trajectory
	grid  []float64 // Output grid, nil to record every step.
	next  int       // Next grid point to record.
	err   error
}

func newPropagation(eq *Equations, t0 float64, grid []float64) *propagation {
	s0 := eq.Initial()
	eq.impose(t0, s0)
	p := &propagation{eq: eq, state: s0, t: t0, grid: grid, traj: &Trajectory{graph: eq.graph}}
	p.record(t0, s0)
	return p
}

// GetState returns the latest state of the compartments.
func (p *propagation) GetState() []float64 {
	return p.state
}

// SetState sets the updated state, enforcing the clamps and the gating bounds before recording it.
func (p *propagation) SetState(t float64, s []float64) {
	p.eq.impose(t, s)
	p.t, p.state = t, s
	p.traj.Steps++
	if i := allFinite(s); i >= 0 {
		p.err = fmt.Errorf("non finite %s", p.eq.Layout()[i])
		return
	}
	p.record(t, s)
}

// Stop implements the stop call of the integrator: it aborts once the state is no longer finite.
func (p *propagation) Stop(t float64) bool {
	return p.err != nil
}

// Func implements the ODE function of the integrator.
func (p *propagation) Func(t float64, s, fDot []float64) {
	p.eq.Func(t, s, fDot)
}

func (p *propagation) record(t float64, s []float64) {
	if p.grid == nil {
		p.traj.Times = append(p.traj.Times, t)
		p.traj.States = append(p.traj.States, s)
		return
	}
	for p.next < len(p.grid) && p.grid[p.next] <= t {
		if p.grid[p.next] == t {
			p.traj.Times = append(p.traj.Times, t)
			p.traj.States = append(p.traj.States, s)
		}
		p.next++
	}
}

// Run integrates the equations over [t0, t1] (ms) with the given method.
// On failure, the returned *IntegrationError holds the samples computed until then.
func (e *Equations) Run(t0, t1 float64, m Method) (*Trajectory, error) {
	name := MethodName(m)
	invalid := func(err error) error {
		return &IntegrationError{Method: name, Time: t0, Err: err}
	}
	if !isFinite(t0) || !isFinite(t1) || !(t1 > t0) {
		return nil, invalid(integrator.ErrInvalidSpan)
	}

	var p *propagation
	var solve func() (uint64, float64, error)
	switch m := m.(type) {
	case ForwardEuler:
		if !(m.Dt > 0) || math.IsInf(m.Dt, 0) {
			return nil, invalid(integrator.ErrInvalidStep)
		}
		p = newPropagation(e, t0, nil)
		solve = integrator.NewEuler(t0, t1, m.Dt, p).Solve
	case RungeKutta4:
		if !(m.Dt > 0) || math.IsInf(m.Dt, 0) {
			return nil, invalid(integrator.ErrInvalidStep)
		}
		p = newPropagation(e, t0, nil)
		solve = integrator.NewRK4(t0, t1, m.Dt, p).Solve
	case DormandPrince:
		if !(m.AbsTol > 0) || !(m.RelTol > 0) || math.IsInf(m.AbsTol, 0) || math.IsInf(m.RelTol, 0) {
			return nil, invalid(integrator.ErrInvalidTolerance)
		}
		if math.IsNaN(m.OutputDt) || m.OutputDt < 0 || math.IsInf(m.OutputDt, 0) {
			return nil, invalid(integrator.ErrInvalidStep)
		}
		conf := integrator.DefaultConfig()
		conf.AbsTol, conf.RelTol = m.AbsTol, m.RelTol
		conf.InitialStep, conf.MaxStep = m.InitialStep, m.MaxStep
		if m.MaxSteps > 0 {
			conf.MaxSteps = m.MaxSteps
		}
		var grid []float64
		if m.OutputDt > 0 {
			grid = outputGrid(t0, t1, m.OutputDt)
		}
		conf.Breakpoints = append(breakpoints(e.stimuli, t0, t1), grid...)
		p = newPropagation(e, t0, grid)
		dp := integrator.NewDormandPrince(t0, t1, conf, p)
		solve = func() (uint64, float64, error) {
			n, xi, err := dp.Solve()
			st := dp.Stats()
			p.traj.Rejected, p.traj.Evaluations = st.Rejected, st.Evaluations
			return n, xi, err
		}
	case nil:
		return nil, invalid(fmt.Errorf("no integration method"))
	default:
		return nil, invalid(fmt.Errorf("unsupported integration method %T", m))
	}

	_, xi, err := solve()
	if err == nil && p.err != nil {
		err, xi = p.err, p.t
	}
	if err != nil {
		return nil, &IntegrationError{Method: name, Time: xi, Err: err, Partial: p.traj}
	}
	return p.traj, nil
}

// outputGrid returns t0, t0+dt, ... up to and including t1.
func outputGrid(t0, t1, dt float64) []float64 {
	r := (t1 - t0) / dt
	n := math.Round(r)
	if math.Abs(r-n) > 1e-9*math.Max(1, r) {
		n = math.Ceil(r)
	}
	if n < 1 {
		n = 1
	}
	grid := make([]float64, int(n)+1)
	for k := range grid {
		grid[k] = t0 + float64(k)*dt
	}
	grid[len(grid)-1] = t1
	return grid
}
