package gencomo

import (
	"errors"
	"math"
)

// rates holds the opening (α) and closing (β) rate constants of the HH gates, in 1/ms.
type rates struct {
	am, bm, ah, bh, an, bn float64
}

// rateConstants returns the HH rate constants at potential v (mV), scaled by the temperature factor phi.
// The formulas use the modern convention of a -65 mV resting potential.
func rateConstants(v, phi float64) rates {
	return rates{
		am: phi * 0.1 * vtrap(-(v+40), 10),
		bm: phi * 4 * math.Exp(-(v+65)/18),
		ah: phi * 0.07 * math.Exp(-(v+65)/20),
		bh: phi / (1 + math.Exp(-(v+35)/10)),
		an: phi * 0.01 * vtrap(-(v+55), 10),
		bn: phi * 0.125 * math.Exp(-(v+65)/80),
	}
}

// steadyState returns the steady state values of m, h and n at potential v.
// They do not depend on temperature since the Q10 factor scales α and β alike.
func steadyState(v float64) (m, h, n float64) {
	r := rateConstants(v, 1)
	return r.am / (r.am + r.bm), r.ah / (r.ah + r.bh), r.an / (r.an + r.bn)
}

// gateDerivative returns dx/dt = α(1-x) - βx.
func gateDerivative(x, alpha, beta float64) float64 {
	return alpha*(1-x) - beta*x
}

// ionicCurrentDensity returns I_Na + I_K + I_leak in µA/cm² for the given gates.
func ionicCurrentDensity(p Parameters, v, m, h, n float64) float64 {
	m3 := m * m * m
	n2 := n * n
	return p.GNa*m3*h*(v-p.ENa) + p.GK*n2*n2*(v-p.EK) + p.GLeak*(v-p.ELeak)
}

// RestingPotential returns the potential (mV) at which an isolated compartment with steady state
// gates carries no net ionic current.
func RestingPotential(p Parameters) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	f := func(v float64) float64 {
		m, h, n := steadyState(v)
		return ionicCurrentDensity(p, v, m, h, n)
	}
	lo, hi := -120.0, 40.0
	flo, fhi := f(lo), f(hi)
	if flo == 0 {
		return lo, nil
	}
	if fhi == 0 {
		return hi, nil
	}
	if flo*fhi > 0 {
		return 0, errors.New("gencomo: no resting potential between -120 and 40 mV")
	}
	for i := 0; i < 200 && hi-lo > 1e-12; i++ {
		mid := (lo + hi) / 2
		fmid := f(mid)
		if fmid == 0 {
			return mid, nil
		}
		if (fmid < 0) == (flo < 0) {
			lo, flo = mid, fmid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2, nil
}
