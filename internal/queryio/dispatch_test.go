package queryio

import (
	"math"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
)

func testGraph() *causalgraph.Graph {
	f := causalfactor.NewSingleton(0, 0.3)
	return causalgraph.New([]causalfactor.Factor{f}, nil)
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	g := testGraph()
	e := causalbp.New(g, causalbp.DefaultOptions(), nil)
	e.Init()
	if _, err := e.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	return New(e, nil)
}

func TestQReturnsBelief(t *testing.T) {
	d := newTestDispatcher(t)
	var out strings.Builder
	if err := d.Run(strings.NewReader("Q 0\n"), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, perr := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if perr != nil || math.Abs(v-0.3) > 1e-9 {
		t.Fatalf("Q 0 reply = %q, want belief near 0.3", out.String())
	}
}

func TestFQReturnsFactorBelief(t *testing.T) {
	d := newTestDispatcher(t)
	var out strings.Builder
	if err := d.Run(strings.NewReader("FQ 0 1\n"), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	v, perr := strconv.ParseFloat(strings.TrimSpace(out.String()), 64)
	if perr != nil || math.Abs(v-0.3) > 1e-9 {
		t.Fatalf("FQ 0 1 reply = %q, want belief near 0.3", out.String())
	}
}

func TestOEchoesAndAppliesAtNextBP(t *testing.T) {
	d := newTestDispatcher(t)
	var out strings.Builder
	script := "O 0 true\nBP 1e-9 5 100 2\nQ 0\n"
	if err := d.Run(strings.NewReader(script), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 reply lines, got %d: %v", len(lines), lines)
	}
	if lines[0] != "O 0 true" {
		t.Fatalf("O echo = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], "1") {
		t.Fatalf("Q after clamp-to-true = %q, want belief near 1", lines[2])
	}
}

func TestNLWritesEmptyLine(t *testing.T) {
	d := newTestDispatcher(t)
	var out strings.Builder
	if err := d.Run(strings.NewReader("NL\n"), &out); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "\n" {
		t.Fatalf("NL reply = %q, want a single blank line", out.String())
	}
}

func TestUnknownCommandIsArgumentError(t *testing.T) {
	d := newTestDispatcher(t)
	var out strings.Builder
	err := d.Run(strings.NewReader("ZZ\n"), &out)
	if err == nil {
		t.Fatalf("expected error for unknown command")
	}
}

func TestQRejectsWrongArgCount(t *testing.T) {
	d := newTestDispatcher(t)
	var out strings.Builder
	err := d.Run(strings.NewReader("Q\n"), &out)
	if err == nil {
		t.Fatalf("expected error for missing var_index")
	}
}

func TestBPBudgetExhaustionRejectsFurtherRuns(t *testing.T) {
	d := newTestDispatcher(t).WithBPBudget(1, time.Hour)
	var out strings.Builder
	script := "BP 1e-9 5 100 2\nBP 1e-9 5 100 2\n"
	err := d.Run(strings.NewReader(script), &out)
	if err == nil {
		t.Fatalf("expected second BP command to be rejected by the rate limit")
	}
}
