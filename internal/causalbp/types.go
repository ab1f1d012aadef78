// Package causalbp implements loopy belief propagation specialised for
// causal factor graphs: closed-form factor-to-variable messages exploiting
// the determinism of the And/Or gates, three update schedules, damping,
// and the extended run loop with its convergence-fraction termination rule.
package causalbp

import (
	"fmt"
	"time"
)

// UpdateType selects the message-passing schedule.
type UpdateType int

const (
	// Parall updates every edge's message from the previous sweep's
	// values, commits them all, then rebuilds every accumulator — three
	// globally-ordered phases, safe to parallelise within each phase.
	Parall UpdateType = iota
	// SeqFix visits edges in a fixed order, committing (and updating the
	// accumulator) immediately after each edge is recomputed.
	SeqFix
	// SeqRnd is SeqFix with the edge order reshuffled before each sweep.
	SeqRnd
)

func (u UpdateType) String() string {
	switch u {
	case Parall:
		return "PARALL"
	case SeqFix:
		return "SEQFIX"
	case SeqRnd:
		return "SEQRND"
	default:
		return fmt.Sprintf("UpdateType(%d)", int(u))
	}
}

// InfType selects the inference objective. Only SumProd (marginal belief
// propagation) is implemented; the type is kept so Options mirrors the
// teacher's full property set.
type InfType int

const (
	SumProd InfType = iota
)

func (t InfType) String() string {
	switch t {
	case SumProd:
		return "SUMPROD"
	default:
		return fmt.Sprintf("InfType(%d)", int(t))
	}
}

// TermReason reports why RunExtended stopped.
type TermReason int

const (
	AllConverged TermReason = iota
	BigFracConverged
	Diverged
)

func (r TermReason) String() string {
	switch r {
	case AllConverged:
		return "ALL_CONVERGED"
	case BigFracConverged:
		return "BIG_FRAC_CONVERGED"
	case Diverged:
		return "DIVERGED"
	default:
		return fmt.Sprintf("TermReason(%d)", int(r))
	}
}

// Options controls one Engine's numerical and scheduling behaviour.
type Options struct {
	Tol        float64
	MaxIter    int
	MaxTime    time.Duration
	Verbose    int
	LogDomain  bool
	Damping    float64
	Updates    UpdateType
	Inference  InfType
	FastCausal bool
}

// DefaultOptions returns the baseline engine configuration used when a
// config file omits an optional key.
func DefaultOptions() Options {
	return Options{
		Tol:       1e-9,
		MaxIter:   10000,
		MaxTime:   0, // zero means unbounded, checked specially in Run
		Verbose:   0,
		LogDomain: false,
		Damping:   0.0,
		Updates:   Parall,
		Inference: SumProd,
	}
}
