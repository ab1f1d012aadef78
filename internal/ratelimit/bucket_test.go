package ratelimit

import (
	"testing"
	"time"
)

func TestConsumeRespectsCapacity(t *testing.T) {
	b := New(3, time.Hour)
	defer b.Close()

	if !b.Consume(2) {
		t.Fatal("expected first consume of 2 to succeed")
	}
	if b.Remaining() != 1 {
		t.Fatalf("Remaining() = %d, want 1", b.Remaining())
	}
	if b.Consume(2) {
		t.Fatal("expected second consume of 2 to fail (only 1 token left)")
	}
	if b.ConsumedTotal() != 2 {
		t.Fatalf("ConsumedTotal() = %d, want 2", b.ConsumedTotal())
	}
}

func TestRefillRestoresCapacity(t *testing.T) {
	b := New(2, 10*time.Millisecond)
	defer b.Close()

	if !b.Consume(2) {
		t.Fatal("expected initial consume to succeed")
	}
	time.Sleep(50 * time.Millisecond)
	if !b.Consume(1) {
		t.Fatal("expected consume after refill to succeed")
	}
}

func TestNewPanicsOnInvalidArgs(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for non-positive capacity")
		}
	}()
	New(0, time.Second)
}
