package evidence

import (
	"strings"
	"testing"
)

func TestReadWriteRoundTrip(t *testing.T) {
	input := "0\t1\t2\n1\t0\t1\n0\t0\t0\n"
	tbl, err := ReadFrom(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if tbl.NrSamples() != 2 {
		t.Fatalf("NrSamples() = %d, want 2", tbl.NrSamples())
	}
	if tbl.Samples[0][0].Value != 1 || tbl.Samples[1][2].Value != 0 {
		t.Fatalf("unexpected values: %+v", tbl.Samples)
	}

	var sb strings.Builder
	if err := tbl.WriteTo(&sb); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	tbl2, err := ReadFrom(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("round-trip ReadFrom: %v", err)
	}
	if tbl2.NrSamples() != tbl.NrSamples() {
		t.Fatalf("round trip sample count mismatch")
	}
}

func TestReadRejectsNonBinary(t *testing.T) {
	input := "0\n2\n"
	if _, err := ReadFrom(strings.NewReader(input)); err == nil {
		t.Fatalf("expected error for non-binary value")
	}
}

func TestReadRejectsColumnMismatch(t *testing.T) {
	input := "0\t1\n1\n"
	if _, err := ReadFrom(strings.NewReader(input)); err == nil {
		t.Fatalf("expected error for column count mismatch")
	}
}

func TestReadSkipsCommentsAndBlankLines(t *testing.T) {
	input := "# header comment\n0\t1\n\n1\t0\n# trailing\n"
	tbl, err := ReadFrom(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if tbl.NrSamples() != 1 {
		t.Fatalf("NrSamples() = %d, want 1", tbl.NrSamples())
	}
}
