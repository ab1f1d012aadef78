package causalem

import (
	"math"
	"testing"

	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/evidence"
	"github.com/causalbp/causalbp/internal/variable"
)

func TestSharedParameterReestimatesTowardObservedFrequency(t *testing.T) {
	// A single tied Singleton factor observed as 1 in 3 of 4 samples
	// should re-estimate toward 0.75 (before smoothing).
	f := causalfactor.NewSingleton(0, 0.5)
	g := causalgraph.New([]causalfactor.Factor{f}, nil)

	est := NewConditionalProbability(0) // no smoothing, for an exact check
	sp := NewSharedParameter([]int{0}, est)

	obs := []int{1, 1, 1, 0}
	for _, v := range obs {
		gc := g.Clone()
		vi, _ := gc.FindVar(0)
		if err := gc.Clamp(vi, v, false); err != nil {
			t.Fatalf("Clamp: %v", err)
		}
		eng := newTestEngine(gc)
		if err := sp.CollectExpectations(gc, eng); err != nil {
			t.Fatalf("CollectExpectations: %v", err)
		}
	}
	if err := sp.Maximize(g); err != nil {
		t.Fatalf("Maximize: %v", err)
	}
	if !almostEqual(g.Factor(0).P, 0.75, 1e-9) {
		t.Fatalf("re-estimated P = %v, want 0.75", g.Factor(0).P)
	}
}

func TestReadMaxStepsParsesGroups(t *testing.T) {
	input := "1\n\n1\nconditional-probability\n2\n0 1\n"
	steps, err := ReadMaxSteps(stringsReader(input))
	if err != nil {
		t.Fatalf("ReadMaxSteps: %v", err)
	}
	if len(steps) != 1 || len(steps[0].Params) != 1 {
		t.Fatalf("unexpected step structure: %+v", steps)
	}
	if len(steps[0].Params[0].factorIDs) != 2 {
		t.Fatalf("expected 2 tied factors, got %d", len(steps[0].Params[0].factorIDs))
	}
}

func TestEMRunKeepsEstimateInRange(t *testing.T) {
	f := causalfactor.NewSingleton(0, 0.5)
	g := causalgraph.New([]causalfactor.Factor{f}, nil)

	tbl := evidence.Table{
		Vars: []variable.Label{0},
		Samples: []evidence.Sample{
			{{Var: 0, Value: 1}},
			{{Var: 0, Value: 1}},
			{{Var: 0, Value: 0}},
		},
	}

	mstep := &MaximizationStep{Params: []*SharedParameter{NewSharedParameter([]int{0}, NewConditionalProbability(1.0))}}
	opts := DefaultOptions()
	opts.MaxIters = 5
	opts.MaxJobs = 2

	em := New(g, tbl, []*MaximizationStep{mstep}, opts, nil)
	if err := em.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if em.Iterations() == 0 {
		t.Fatalf("expected at least one EM iteration")
	}
	p := g.Factor(0).P
	if math.IsNaN(p) || p < 0 || p > 1 {
		t.Fatalf("re-estimated P out of range: %v", p)
	}
}

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }
