package gencomo

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// Unit conversions to the internal µS, nF, nA system.
const (
	densityToAbsolute = 1e-5 // (mS/cm² or µF/cm²) × µm² to µS or nF.
	siemensToMicro    = 1e6  // S to µS.
	picoToNano        = 1e-3 // pA to nA.
)

// distance returns the euclidean distance between two vectors.
func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

// isFinite returns whether v is neither NaN nor infinite.
func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// allFinite returns the index of the first non finite value, or -1.
func allFinite(s []float64) int {
	for i, v := range s {
		if !isFinite(v) {
			return i
		}
	}
	return -1
}

// clip01 clips a gating variable to [0, 1].
func clip01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// vtrap returns x / (exp(x/y) - 1), continued at x/y -> 0.
func vtrap(x, y float64) float64 {
	if scalar.EqualWithinAbs(x/y, 0, 1e-6) {
		return y * (1 - x/y/2)
	}
	return x / math.Expm1(x/y)
}
