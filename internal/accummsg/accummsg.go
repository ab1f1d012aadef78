// Package accummsg implements AccumulatedVarMessage: the running
// product (or log-sum) of every factor-to-variable message incident on one
// variable, for one state, together with the set of incident factors whose
// contribution was exactly zero — so that a "leave-one-out" product can be
// reconstructed exactly even when the full product collapses to zero.
package accummsg

import "math"

// zeroSet is a flat, unsorted container for the rare set of factor indices
// whose incoming message was exactly zero. In practice it holds 0 or 1
// elements almost always, so a linear-scan slice beats a map.
type zeroSet struct {
	ids []int
}

func (z *zeroSet) insert(id int) {
	for _, x := range z.ids {
		if x == id {
			return
		}
	}
	z.ids = append(z.ids, id)
}

func (z *zeroSet) erase(id int) bool {
	for i, x := range z.ids {
		if x == id {
			z.ids = append(z.ids[:i], z.ids[i+1:]...)
			return true
		}
	}
	return false
}

func (z *zeroSet) len() int { return len(z.ids) }

func (z *zeroSet) contains(id int) bool {
	for _, x := range z.ids {
		if x == id {
			return true
		}
	}
	return false
}

func (z *zeroSet) clear() { z.ids = z.ids[:0] }

// Accumulator is one AccumulatedVarMessage (σ_i[s] for a fixed variable i
// and state s).
type Accumulator struct {
	msg   float64
	zeros zeroSet
}

// NewAccumulator returns an Accumulator at its multiplicative identity
// (1 in linear domain, 0 in log domain).
func NewAccumulator(logDomain bool) Accumulator {
	a := Accumulator{}
	a.Reset(logDomain)
	return a
}

// Reset sets msg to the multiplicative identity and clears the zero set.
func (a *Accumulator) Reset(logDomain bool) {
	if logDomain {
		a.msg = 0
	} else {
		a.msg = 1
	}
	a.zeros.clear()
}

// ResetEdge removes factor id's old contribution (origMsg) from the running
// product: if id was recorded as a zero contributor it is simply un-marked;
// otherwise origMsg is divided out (linear) or subtracted (log). This is
// the incremental counterpart to Reset used by SEQFIX/SEQRND commits.
func (a *Accumulator) ResetEdge(id int, origMsg float64, logDomain bool) {
	if a.zeros.erase(id) {
		return
	}
	if logDomain {
		a.msg -= origMsg
	} else {
		a.msg /= origMsg
	}
}

// Accumulate folds factor id's message m into the running product. A zero
// (linear) or -Inf (log) contribution is recorded in the zero set instead
// of being multiplied/added in directly, since it would otherwise make the
// running product unrecoverable for leave-one-out queries.
func (a *Accumulator) Accumulate(id int, m float64, logDomain bool) {
	if logDomain {
		if math.IsInf(m, -1) {
			a.zeros.insert(id)
		} else {
			a.msg += m
		}
	} else {
		if m == 0 {
			a.zeros.insert(id)
		} else {
			a.msg *= m
		}
	}
}

// LeaveOneOut returns the product (or log-sum) of every incoming message
// except the one from factor i, given i's current contribution m:
//
//   - if |zeros| >= 2, or |zeros| == 1 and that element isn't i: the result
//     is exactly zero (another factor's zero contribution survives).
//   - if zeros == {i}: msg already excludes i's (zero) contribution.
//   - otherwise: divide out (linear) or subtract (log) i's contribution m.
func (a *Accumulator) LeaveOneOut(i int, m float64, logDomain bool) float64 {
	if a.zeros.len() > 1 {
		if logDomain {
			return math.Inf(-1)
		}
		return 0
	}
	if a.zeros.len() == 1 {
		if a.zeros.contains(i) {
			return a.msg
		}
		if logDomain {
			return math.Inf(-1)
		}
		return 0
	}
	if logDomain {
		return a.msg - m
	}
	return a.msg / m
}

// Total returns the running product, or zero/-Inf if any factor's
// contribution was exactly zero.
func (a *Accumulator) Total(logDomain bool) float64 {
	if a.zeros.len() == 0 {
		return a.msg
	}
	if logDomain {
		return math.Inf(-1)
	}
	return 0
}

// Msg exposes the raw running product for callers (BP's PARALL sweep) that
// need to rescale it in place with causalprob.Scale2/Scale2Log.
func (a *Accumulator) Msg() float64 { return a.msg }

// SetMsg overwrites the raw running product, used after an in-place rescale.
func (a *Accumulator) SetMsg(v float64) { a.msg = v }
