package causalbp

import (
	"math"
	"testing"

	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/variable"
)

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestSingletonBelief(t *testing.T) {
	g := causalgraph.New([]causalfactor.Factor{causalfactor.NewSingleton(0, 0.3)}, nil)
	e := New(g, DefaultOptions(), nil)
	e.Init()
	if err := e.sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	p0, p1, err := e.Belief(0)
	if err != nil {
		t.Fatalf("Belief: %v", err)
	}
	if !almostEqual(p0, 0.7, 1e-9) || !almostEqual(p1, 0.3, 1e-9) {
		t.Fatalf("belief(0) = (%v, %v), want (0.7, 0.3)", p0, p1)
	}
}

func TestDeterministicAndConverges(t *testing.T) {
	// var0, var1: Singleton priors. var2 = AND(var0, var1), leak p=1, default=0.
	f0 := causalfactor.NewSingleton(0, 1.0)
	f1 := causalfactor.NewSingleton(1, 1.0)
	f2 := causalfactor.NewAnd(2, variable.NewSet(0, 1), 1, 0)
	g := causalgraph.New([]causalfactor.Factor{f0, f1, f2}, nil)
	e := New(g, DefaultOptions(), nil)
	e.Init()
	maxDiff, err := e.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if maxDiff > e.opts.Tol {
		t.Fatalf("did not converge: maxDiff=%v", maxDiff)
	}
	vi2, _ := g.FindVar(2)
	_, p1, err := e.Belief(vi2)
	if err != nil {
		t.Fatalf("Belief: %v", err)
	}
	if !almostEqual(p1, 1.0, 1e-6) {
		t.Fatalf("belief(AND head) = %v, want ~1 (both causes certain)", p1)
	}
}

func TestDeterministicOrBothOff(t *testing.T) {
	f0 := causalfactor.NewSingleton(0, 0.0)
	f1 := causalfactor.NewSingleton(1, 0.0)
	f2 := causalfactor.NewOr(2, variable.NewSet(0, 1), 1, 0)
	g := causalgraph.New([]causalfactor.Factor{f0, f1, f2}, nil)
	e := New(g, DefaultOptions(), nil)
	e.Init()
	if _, err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	vi2, _ := g.FindVar(2)
	_, p1, err := e.Belief(vi2)
	if err != nil {
		t.Fatalf("Belief: %v", err)
	}
	if !almostEqual(p1, 0.0, 1e-6) {
		t.Fatalf("belief(OR head) = %v, want ~0 (both causes absent)", p1)
	}
}

func TestClampForcesHeadState(t *testing.T) {
	f0 := causalfactor.NewSingleton(0, 0.5)
	g := causalgraph.New([]causalfactor.Factor{f0}, nil)
	if err := g.Clamp(0, 1, false); err != nil {
		t.Fatalf("Clamp: %v", err)
	}
	e := New(g, DefaultOptions(), nil)
	e.Init()
	if _, err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	_, p1, err := e.Belief(0)
	if err != nil {
		t.Fatalf("Belief: %v", err)
	}
	if !almostEqual(p1, 1.0, 1e-9) {
		t.Fatalf("belief after clamp to 1 = %v, want 1", p1)
	}
}

func TestSeqFixAndParallAgree(t *testing.T) {
	f0 := causalfactor.NewSingleton(0, 0.4)
	f1 := causalfactor.NewSingleton(1, 0.6)
	f2 := causalfactor.NewOr(2, variable.NewSet(0, 1), 0.8, 0.05)

	optsParall := DefaultOptions()
	optsParall.Updates = Parall
	gP := causalgraph.New([]causalfactor.Factor{f0, f1, f2}, nil)
	eP := New(gP, optsParall, nil)
	eP.Init()
	if _, err := eP.Run(); err != nil {
		t.Fatalf("parall Run: %v", err)
	}

	optsSeq := DefaultOptions()
	optsSeq.Updates = SeqFix
	gS := causalgraph.New([]causalfactor.Factor{f0, f1, f2}, nil)
	eS := New(gS, optsSeq, nil)
	eS.Init()
	if _, err := eS.Run(); err != nil {
		t.Fatalf("seqfix Run: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, pP, _ := eP.Belief(i)
		_, pS, _ := eS.Belief(i)
		if !almostEqual(pP, pS, 1e-6) {
			t.Fatalf("var %d belief diverges between schedules: parall=%v seqfix=%v", i, pP, pS)
		}
	}
}

func TestRunExtendedRejectsBadBudget(t *testing.T) {
	f0 := causalfactor.NewSingleton(0, 0.5)
	g := causalgraph.New([]causalfactor.Factor{f0}, nil)
	e := New(g, DefaultOptions(), nil)
	e.Init()
	if _, _, err := e.RunExtended(1e-9, 10, 5, 1); err == nil {
		t.Fatalf("expected error for minIters > maxIters")
	}
}

func TestRunExtendedConverges(t *testing.T) {
	f0 := causalfactor.NewSingleton(0, 1.0)
	f1 := causalfactor.NewSingleton(1, 1.0)
	f2 := causalfactor.NewAnd(2, variable.NewSet(0, 1), 1, 0)
	g := causalgraph.New([]causalfactor.Factor{f0, f1, f2}, nil)
	e := New(g, DefaultOptions(), nil)
	e.Init()
	reason, _, err := e.RunExtended(1e-9, 3, 50, 2)
	if err != nil {
		t.Fatalf("RunExtended: %v", err)
	}
	if reason != AllConverged {
		t.Fatalf("reason = %v, want AllConverged", reason)
	}
}
