// Package beliefstats computes Shannon-entropy diagnostics over a BP
// engine's beliefs.
//
// A converged belief near 0 or 1 has entropy near zero (the engine is
// confident). A belief still near 0.5 after convergence has entropy near
// its maximum (1 bit for a binary variable) — a signal that the variable
// is underdetermined by the evidence rather than genuinely uncertain by
// design. Averaged across all variables, this gives a single number a
// caller can use to flag numerically degenerate or evidence-starved runs
// without inspecting every belief by hand.
//
// Formula:
//
//	H(p) = -p log2(p) - (1-p) log2(1-p)
package beliefstats

import "math"

// BinaryEntropy computes H(p) in bits for a Bernoulli(p) variable.
// Returns 0 at p=0 or p=1 (by convention, 0*log(0) = 0).
func BinaryEntropy(p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return -p*math.Log2(p) - (1-p)*math.Log2(1-p)
}

// MeanEntropy averages BinaryEntropy over a set of P(x=1) beliefs.
// Returns 0 for an empty slice.
func MeanEntropy(p1 []float64) float64 {
	if len(p1) == 0 {
		return 0
	}
	var sum float64
	for _, p := range p1 {
		sum += BinaryEntropy(p)
	}
	return sum / float64(len(p1))
}

// LowInformationFraction returns the fraction of beliefs whose entropy
// exceeds threshold bits — variables BP left close to 0.5 after
// convergence. A high fraction suggests the evidence under-constrains the
// graph rather than that the engine failed to converge.
func LowInformationFraction(p1 []float64, threshold float64) float64 {
	if len(p1) == 0 {
		return 0
	}
	var n int
	for _, p := range p1 {
		if BinaryEntropy(p) > threshold {
			n++
		}
	}
	return float64(n) / float64(len(p1))
}
