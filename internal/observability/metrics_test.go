package observability

import "testing"

func TestNewMetricsRegistersWithoutPanic(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
	m.ObserveSweep(0.01, 0.2)
	m.ObserveRun("ALL_CONVERGED", 12)
	m.ObserveEMIteration(-3.5, false)
	m.ObserveEMIteration(-3.6, true)
}

func TestBuildLoggerRejectsBadLevel(t *testing.T) {
	if _, err := BuildLogger("not-a-level", "json"); err == nil {
		t.Fatal("expected error for invalid log level")
	}
}

func TestBuildLoggerAcceptsConsoleAndJSON(t *testing.T) {
	if _, err := BuildLogger("info", "console"); err != nil {
		t.Fatalf("console format: %v", err)
	}
	if _, err := BuildLogger("debug", "json"); err != nil {
		t.Fatalf("json format: %v", err)
	}
}
