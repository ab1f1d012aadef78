package causalem

import (
	"math"
	"testing"
)

func TestConditionalProbabilityEstimate(t *testing.T) {
	c := NewConditionalProbability(1.0)
	exp := Expectation{Sum: 7, Count: 10}
	p, err := c.Estimate(exp)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	want := (7.0 + 1.0) / (10.0 + 2.0)
	if math.Abs(p-want) > 1e-12 {
		t.Fatalf("Estimate() = %v, want %v", p, want)
	}
}

func TestConditionalProbabilityZeroSamplesWithPseudocountIsUniform(t *testing.T) {
	c := NewConditionalProbability(1.0)
	p, err := c.Estimate(Expectation{})
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if p != 0.5 {
		t.Fatalf("Estimate(zero samples, pseudocount=1) = %v, want 0.5", p)
	}
}

func TestConditionalProbabilityRejectsZeroSamplesNoPseudocount(t *testing.T) {
	c := NewConditionalProbability(0)
	if _, err := c.Estimate(Expectation{}); err == nil {
		t.Fatalf("expected error for zero samples with no pseudocount")
	}
}

func TestRegistryLookup(t *testing.T) {
	est, err := GetEstimation("conditional-probability")
	if err != nil {
		t.Fatalf("GetEstimation: %v", err)
	}
	if est.Name() != "conditional-probability" {
		t.Fatalf("Name() = %v", est.Name())
	}
	names := ListEstimations()
	found := false
	for _, n := range names {
		if n == "conditional-probability" {
			found = true
		}
	}
	if !found {
		t.Fatalf("ListEstimations() = %v, missing built-in strategy", names)
	}
}

func TestRegistryPanicsOnDuplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	RegisterEstimation(NewConditionalProbability(1.0))
}
