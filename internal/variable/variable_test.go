package variable

import "testing"

func TestSetAddDedupSorted(t *testing.T) {
	s := NewSet(3, 1, 2, 1)
	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}
	want := []Label{1, 2, 3}
	got := s.Labels()
	for i, l := range want {
		if got[i] != l {
			t.Fatalf("Labels() = %v, want %v", got, want)
		}
	}
}

func TestSetRemove(t *testing.T) {
	s := NewSet(1, 2, 3)
	s.Remove(2)
	if s.Contains(2) {
		t.Fatalf("expected 2 removed")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestSetUnionAndIntersects(t *testing.T) {
	a := NewSet(1, 2)
	b := NewSet(2, 3)
	u := a.Union(b)
	if u.Len() != 3 {
		t.Fatalf("Union Len() = %d, want 3", u.Len())
	}
	if !a.Intersects(b) {
		t.Fatalf("expected intersection")
	}
	c := NewSet(4, 5)
	if a.Intersects(c) {
		t.Fatalf("expected no intersection")
	}
}

func TestSetEqual(t *testing.T) {
	a := NewSet(1, 2, 3)
	b := NewSet(3, 2, 1)
	if !a.Equal(b) {
		t.Fatalf("expected equal sets regardless of insertion order")
	}
	c := NewSet(1, 2)
	if a.Equal(c) {
		t.Fatalf("expected sets of different size to differ")
	}
}

func TestSetCloneIndependent(t *testing.T) {
	a := NewSet(1, 2)
	b := a.Clone()
	b.Add(3)
	if a.Contains(3) {
		t.Fatalf("mutating clone should not affect original")
	}
}
