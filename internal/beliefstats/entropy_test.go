package beliefstats

import "testing"

func TestBinaryEntropyBounds(t *testing.T) {
	if h := BinaryEntropy(0); h != 0 {
		t.Fatalf("BinaryEntropy(0) = %v, want 0", h)
	}
	if h := BinaryEntropy(1); h != 0 {
		t.Fatalf("BinaryEntropy(1) = %v, want 0", h)
	}
	if h := BinaryEntropy(0.5); h < 0.999 || h > 1.001 {
		t.Fatalf("BinaryEntropy(0.5) = %v, want ~1.0", h)
	}
}

func TestMeanEntropyEmpty(t *testing.T) {
	if h := MeanEntropy(nil); h != 0 {
		t.Fatalf("MeanEntropy(nil) = %v, want 0", h)
	}
}

func TestLowInformationFraction(t *testing.T) {
	beliefs := []float64{0.01, 0.5, 0.49, 0.99}
	frac := LowInformationFraction(beliefs, 0.5)
	if frac != 0.5 {
		t.Fatalf("LowInformationFraction = %v, want 0.5", frac)
	}
}
