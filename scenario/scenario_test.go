package scenario

import (
	"math"
	"testing"
)

func TestArithmetic(t *testing.T) {
	t.Parallel()

	a := Vector{1, 2, 3}
	b := Vector{4, 5, 6}

	if got := Add(a, b); got[2] != 9 {
		t.Fatalf("Add = %v", got)
	}
	if got := Sub(b, a); got[0] != 3 {
		t.Fatalf("Sub = %v", got)
	}
	if got := Div(Mul(a, b), b); got[1] != 2 {
		t.Fatalf("Mul/Div = %v", got)
	}
	if got := AddScalar(Scale(2, a), -1); got[2] != 5 {
		t.Fatalf("Scale/AddScalar = %v", got)
	}
	if got := a.Mean(); got != 2 {
		t.Fatalf("Mean = %v", got)
	}
	if got, want := a.StdErr(), 1/math.Sqrt(3); math.Abs(got-want) > 1e-15 {
		t.Fatalf("StdErr = %v, want %v", got, want)
	}
	if a[0] != 1 {
		t.Fatalf("inputs must not be mutated")
	}
}

func TestSelectAndFilters(t *testing.T) {
	t.Parallel()

	a := Vector{1, -1, 2, -2}
	neg := LessThan(a, 0)
	if neg.Count() != 2 {
		t.Fatalf("Count = %d", neg.Count())
	}
	got := Select(neg, Zeros(4), a)
	want := Vector{1, 0, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Select = %v, want %v", got, want)
		}
	}
	if And(neg, Not(neg)).Any() {
		t.Fatalf("f && !f must be empty")
	}
	if Or(neg, Not(neg)).Count() != 4 {
		t.Fatalf("f || !f must be full")
	}
	if Greater(a, Zeros(4)).Count() != 2 {
		t.Fatalf("Greater")
	}
}

func TestSizeMismatchPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	Add(Vector{1}, Vector{1, 2})
}
