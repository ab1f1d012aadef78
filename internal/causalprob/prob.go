// Package causalprob implements the length-2 probability arithmetic shared
// by every message update in the causal BP engine: normalisation, numerical
// rescaling, entropy, and the L1 distance between per-cause "on"
// probabilities used to track factor-belief convergence.
package causalprob

import (
	"fmt"
	"math"
)

// Normalize2 rescales (x, y) so that x+y = 1 in the linear domain, or
// logaddexp(x,y) = 0 in the log domain. In log domain it uses
// x' = -log(1+exp(y-x)), y' = -log(1+exp(x-y)), which is numerically stable
// for large |x-y| since exp never overflows on the dominant side.
//
// Returns an error if both inputs are -Inf (log domain) or if the sum is
// non-positive (linear domain) — both indicate the caller handed in an
// already-degenerate pair rather than something this function can rescale.
func Normalize2(x, y float64, logDomain bool) (float64, float64, error) {
	if logDomain {
		if math.IsInf(x, -1) && math.IsInf(y, -1) {
			return 0, 0, fmt.Errorf("causalprob: normalize2: both log-domain inputs are -Inf")
		}
		e := y - x
		if math.IsNaN(e) {
			return 0, 0, fmt.Errorf("causalprob: normalize2: NaN exponent (x=%v, y=%v)", x, y)
		}
		nx := -math.Log1p(math.Exp(e))
		ny := -math.Log1p(math.Exp(-e))
		return nx, ny, nil
	}
	s := x + y
	if s <= 0 {
		return 0, 0, fmt.Errorf("causalprob: normalize2: non-positive sum %v", s)
	}
	return x / s, y / s, nil
}

// Scale2 divides both x and y by max(|x|,|y|) to keep a long running product
// bounded. If the max magnitude is infinite, each infinite component
// collapses to its sign and each finite component collapses to 0 — these
// inputs are already saturated and further scaling cannot recover them.
func Scale2(x, y float64) (float64, float64) {
	m := math.Max(math.Abs(x), math.Abs(y))
	if m == 0 {
		return x, y
	}
	if math.IsInf(m, 0) {
		nx, ny := 0.0, 0.0
		if math.IsInf(x, 0) {
			if x < 0 {
				nx = -1
			} else {
				nx = 1
			}
		}
		if math.IsInf(y, 0) {
			if y < 0 {
				ny = -1
			} else {
				ny = 1
			}
		}
		return nx, ny
	}
	return x / m, y / m
}

// Scale2Log subtracts max(x,y) from both, the log-domain analogue of Scale2
// for a running log-sum. If the max is +Inf, the non-infinite side collapses
// to log(0) (-Inf) and the infinite side(s) collapse to 0.
func Scale2Log(x, y float64) (float64, float64) {
	m := math.Max(x, y)
	if math.IsInf(m, 0) {
		if m > 0 {
			nx, ny := x, y
			if math.IsInf(x, 1) {
				nx = 0
			} else {
				nx = math.Inf(-1)
			}
			if math.IsInf(y, 1) {
				ny = 0
			} else {
				ny = math.Inf(-1)
			}
			return nx, ny
		}
		return x, y
	}
	return x - m, y - m
}

// Entropy returns the Shannon entropy (in nats) of a binary distribution
// given the probability of state 1. Used by logZ's Bethe approximation.
func Entropy(p1 float64) float64 {
	p0 := 1 - p1
	var h float64
	if p0 > 0 {
		h -= p0 * math.Log(p0)
	}
	if p1 > 0 {
		h -= p1 * math.Log(p1)
	}
	return h
}

// L1Dist returns the L1 distance between two equal-length probability
// slices, averaged over the slice length — the mean-L1 factor-belief
// distance used by the BP convergence test for And/Or factors.
func L1Dist(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("causalprob: L1Dist: length mismatch %d != %d", len(a), len(b))
	}
	if len(a) == 0 {
		return 0, nil
	}
	var d float64
	for i := range a {
		d += math.Abs(a[i] - b[i])
	}
	return d / float64(len(a)), nil
}
