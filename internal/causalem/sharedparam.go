package causalem

import (
	"fmt"

	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
)

// SharedParameter is a set of Singleton factors, scattered across the
// graph, whose P(head=1) is tied to one estimated value. Each EM round it
// collects the current belief of every tied factor's head across every
// sample (CollectExpectations), then folds them into a new shared value
// (Maximize) via a pluggable ParameterEstimation strategy.
type SharedParameter struct {
	factorIDs  []int
	estimation ParameterEstimation
	exp        Expectation
}

// NewSharedParameter ties together the Singleton factors at factorIDs
// (global indices into the graph) under one estimation strategy.
func NewSharedParameter(factorIDs []int, estimation ParameterEstimation) *SharedParameter {
	return &SharedParameter{factorIDs: append([]int(nil), factorIDs...), estimation: estimation}
}

// CollectExpectations adds one sample's belief for every tied factor's
// head variable into the running expectation.
func (sp *SharedParameter) CollectExpectations(g *causalgraph.Graph, e *causalbp.Engine) error {
	for _, fi := range sp.factorIDs {
		f := g.Factor(fi)
		if f.Type != causalfactor.Singleton {
			return fmt.Errorf("causalem: shared parameter factor %d is not a Singleton", fi)
		}
		vi, err := g.FindVar(f.Head)
		if err != nil {
			return err
		}
		_, p1, err := e.Belief(vi)
		if err != nil {
			return err
		}
		sp.exp.Add(p1)
	}
	return nil
}

// Maximize re-estimates the shared value from the accumulated
// expectation and writes it back onto every tied factor in g, then clears
// the expectation for the next round.
func (sp *SharedParameter) Maximize(g *causalgraph.Graph) error {
	p, err := sp.estimation.Estimate(sp.exp)
	if err != nil {
		return err
	}
	for _, fi := range sp.factorIDs {
		head := g.Factor(fi).Head
		if err := g.SetFactor(fi, causalfactor.NewSingleton(head, p), false); err != nil {
			return err
		}
	}
	sp.Clear()
	return nil
}

// Clear resets the accumulated expectation without touching the graph.
func (sp *SharedParameter) Clear() { sp.exp = Expectation{} }

// Value reports the estimator's current best guess without mutating
// anything (Count==0 with a zero pseudocount reports an error, matching
// Maximize's guard).
func (sp *SharedParameter) Value() (float64, error) { return sp.estimation.Estimate(sp.exp) }

// MaximizationStep is an ordered collection of SharedParameters re-estimated
// together once per EM round.
type MaximizationStep struct {
	Params []*SharedParameter
}

// AddExpectations folds one sample's engine into every tied parameter.
func (m *MaximizationStep) AddExpectations(g *causalgraph.Graph, e *causalbp.Engine) error {
	for _, p := range m.Params {
		if err := p.CollectExpectations(g, e); err != nil {
			return err
		}
	}
	return nil
}

// Maximize re-estimates every tied parameter and writes the new values
// back onto g.
func (m *MaximizationStep) Maximize(g *causalgraph.Graph) error {
	for _, p := range m.Params {
		if err := p.Maximize(g); err != nil {
			return err
		}
	}
	return nil
}

// Clear resets every parameter's accumulated expectation.
func (m *MaximizationStep) Clear() {
	for _, p := range m.Params {
		p.Clear()
	}
}
