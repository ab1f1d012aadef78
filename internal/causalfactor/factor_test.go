package causalfactor

import (
	"testing"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/variable"
)

func TestGenClampedSingletonHead(t *testing.T) {
	f := NewSingleton(1, 0.3)
	clamped := f.GenClamped(zap.NewNop(), 1, 1)
	if clamped.P != 1 {
		t.Fatalf("P = %v, want 1", clamped.P)
	}
}

func TestGenClampedSingletonUnrelated(t *testing.T) {
	f := NewSingleton(1, 0.3)
	clamped := f.GenClamped(zap.NewNop(), 2, 1)
	if clamped.P != f.P {
		t.Fatalf("P = %v, want unchanged %v", clamped.P, f.P)
	}
}

func TestGenClampedAndHead(t *testing.T) {
	body := variable.NewSet(2, 3)
	f := NewAnd(1, body, 1, 0)
	clamped := f.GenClamped(zap.NewNop(), 1, 1)
	if !clamped.HeadClamped {
		t.Fatalf("expected HeadClamped = true")
	}
	if clamped.HeadMask != [2]float64{0, 1} {
		t.Fatalf("HeadMask = %v, want [0 1]", clamped.HeadMask)
	}
}

func TestGenClampedAndDuplicateHeadConflict(t *testing.T) {
	body := variable.NewSet(2, 3)
	f := NewAnd(1, body, 1, 0)
	once := f.GenClamped(zap.NewNop(), 1, 1)
	twice := once.GenClamped(zap.NewNop(), 1, 0)
	if twice.HeadMask != [2]float64{0, 0} {
		t.Fatalf("conflicting clamp should collapse mask to zero, got %v", twice.HeadMask)
	}
}

func TestGenClampedAndBodyVar(t *testing.T) {
	body := variable.NewSet(2, 3)
	f := NewAnd(1, body, 1, 0)
	clamped := f.GenClamped(zap.NewNop(), 2, 1)
	if clamped.Body.Contains(2) {
		t.Fatalf("expected var 2 removed from body")
	}
	if !clamped.Body.Contains(3) {
		t.Fatalf("expected var 3 to remain in body")
	}
	// original factor must be unmodified (value semantics).
	if !f.Body.Contains(2) {
		t.Fatalf("original factor body mutated by GenClamped")
	}
}

func TestVars(t *testing.T) {
	body := variable.NewSet(2, 3)
	f := NewOr(1, body, 0.9, 0.05)
	vs := f.Vars()
	if vs.Len() != 3 || !vs.Contains(1) || !vs.Contains(2) || !vs.Contains(3) {
		t.Fatalf("Vars() = %v, want {1,2,3}", vs.Labels())
	}
}
