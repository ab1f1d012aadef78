package accummsg

import (
	"math"
	"testing"
)

func TestAccumulateNoZeros(t *testing.T) {
	a := NewAccumulator(false)
	a.Accumulate(0, 0.5, false)
	a.Accumulate(1, 0.2, false)
	if got := a.Total(false); math.Abs(got-0.1) > 1e-12 {
		t.Fatalf("Total() = %v, want 0.1", got)
	}
	lo := a.LeaveOneOut(0, 0.5, false)
	if math.Abs(lo-0.2) > 1e-12 {
		t.Fatalf("LeaveOneOut(0) = %v, want 0.2", lo)
	}
}

func TestAccumulateSingleZero(t *testing.T) {
	a := NewAccumulator(false)
	a.Accumulate(0, 0, false)
	a.Accumulate(1, 0.3, false)
	if got := a.Total(false); got != 0 {
		t.Fatalf("Total() = %v, want 0", got)
	}
	// leave-one-out of the zero contributor recovers the rest of the product.
	if lo := a.LeaveOneOut(0, 0, false); math.Abs(lo-0.3) > 1e-12 {
		t.Fatalf("LeaveOneOut(0) = %v, want 0.3", lo)
	}
	// leave-one-out of any other factor is still zero.
	if lo := a.LeaveOneOut(1, 0.3, false); lo != 0 {
		t.Fatalf("LeaveOneOut(1) = %v, want 0", lo)
	}
}

func TestAccumulateMultipleZeros(t *testing.T) {
	a := NewAccumulator(false)
	a.Accumulate(0, 0, false)
	a.Accumulate(1, 0, false)
	if lo := a.LeaveOneOut(0, 0, false); lo != 0 {
		t.Fatalf("LeaveOneOut(0) = %v, want 0 (still another zero contributor)", lo)
	}
}

func TestResetEdgeUndoesContribution(t *testing.T) {
	a := NewAccumulator(false)
	a.Accumulate(0, 0.5, false)
	a.Accumulate(1, 0.4, false)
	a.ResetEdge(0, 0.5, false)
	if got := a.Total(false); math.Abs(got-0.4) > 1e-12 {
		t.Fatalf("Total() after ResetEdge = %v, want 0.4", got)
	}
}

func TestResetEdgeUndoesZeroContribution(t *testing.T) {
	a := NewAccumulator(false)
	a.Accumulate(0, 0, false)
	a.Accumulate(1, 0.4, false)
	a.ResetEdge(0, 0, false)
	if got := a.Total(false); math.Abs(got-0.4) > 1e-12 {
		t.Fatalf("Total() after ResetEdge = %v, want 0.4", got)
	}
}

func TestLogDomain(t *testing.T) {
	a := NewAccumulator(true)
	a.Accumulate(0, math.Log(0.5), true)
	a.Accumulate(1, math.Log(0.2), true)
	want := math.Log(0.1)
	if got := a.Total(true); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Total() = %v, want %v", got, want)
	}
}

func TestLogDomainZero(t *testing.T) {
	a := NewAccumulator(true)
	a.Accumulate(0, math.Inf(-1), true)
	if got := a.Total(true); !math.IsInf(got, -1) {
		t.Fatalf("Total() = %v, want -Inf", got)
	}
}
