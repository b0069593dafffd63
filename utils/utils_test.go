package utils

import (
	"math"
	"testing"
	"time"
)

func TestYearFraction(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)

	if got := YearFraction(start, end, Act365F); math.Abs(got-366.0/365.0) > 1e-14 {
		t.Fatalf("ACT/365F = %.16f", got)
	}
	if got := YearFraction(start, end, Act360); math.Abs(got-366.0/360.0) > 1e-14 {
		t.Fatalf("ACT/360 = %.16f", got)
	}
	if got := YearFraction(start, end, Thirty); got != 1 {
		t.Fatalf("30E/360 = %.16f", got)
	}
}

func TestAddMonthClampsToMonthEnd(t *testing.T) {
	t.Parallel()

	d := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	if got := AddMonth(d, 1); !got.Equal(time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("AddMonth(Jan31, 1) = %s", got)
	}
	if got := AddMonth(d, 12); !got.Equal(time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("AddMonth(Jan31, 12) = %s", got)
	}
}

func TestTimeSet(t *testing.T) {
	t.Parallel()

	s := NewTimeSet(2, 1, 1+TinyTime/2, 3, 2)
	if len(s) != 3 {
		t.Fatalf("len = %d, want 3 (%v)", len(s), s)
	}
	if i, ok := s.Index(2 + TinyTime/4); !ok || i != 1 {
		t.Fatalf("Index(2) = %d, %v", i, ok)
	}
	if s.Contains(2.5) {
		t.Fatalf("2.5 should not be a member")
	}
	if got := s.UpTo(2); len(got) != 2 {
		t.Fatalf("UpTo(2) = %v", got)
	}
	u := Union(s, NewTimeSet(0.5, 3))
	if len(u) != 4 || u[0] != 0.5 {
		t.Fatalf("Union = %v", u)
	}
}

func TestInterpolateExtrapolates(t *testing.T) {
	t.Parallel()

	xs := []float64{0, 1, 2}
	ys := []float64{0, 0.5, 1.5}
	cases := []struct{ x, want float64 }{
		{0.5, 0.25},
		{1.5, 1.0},
		{3, 2.5},
		{-1, -0.5},
	}
	for _, c := range cases {
		if got := Interpolate(xs, ys, c.x); math.Abs(got-c.want) > 1e-15 {
			t.Fatalf("Interpolate(%v) = %v, want %v", c.x, got, c.want)
		}
	}
}
