package curve

import (
	"math"
	"testing"
	"time"
)

func TestInterpolatedMatchesFlatForward(t *testing.T) {
	t.Parallel()

	flat := FlatForward{Rate: 0.03}
	times := []float64{1, 2, 5, 10}
	dfs := make([]float64, len(times))
	for i, tt := range times {
		dfs[i] = flat.Discount(tt)
	}
	c, err := NewInterpolated(times, dfs)
	if err != nil {
		t.Fatalf("NewInterpolated: %v", err)
	}
	for _, tt := range []float64{0, 0.25, 1, 3.7, 10, 15} {
		if got, want := c.Discount(tt), flat.Discount(tt); math.Abs(got-want) > 1e-14 {
			t.Fatalf("Discount(%v) = %.16f, want %.16f", tt, got, want)
		}
	}
}

func TestInterpolatedPiecewiseForward(t *testing.T) {
	t.Parallel()

	c, err := NewInterpolated([]float64{1, 2}, []float64{math.Exp(-0.01), math.Exp(-0.03)})
	if err != nil {
		t.Fatalf("NewInterpolated: %v", err)
	}
	// forward on (1,2] is 2%
	if got, want := c.Discount(1.5), math.Exp(-0.02); math.Abs(got-want) > 1e-15 {
		t.Fatalf("Discount(1.5) = %v, want %v", got, want)
	}
	if got := ZeroRate(c, 2); math.Abs(got-0.015) > 1e-15 {
		t.Fatalf("ZeroRate(2) = %v", got)
	}
}

func TestNewInterpolatedRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, err := NewInterpolated([]float64{1}, []float64{1, 2}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if _, err := NewInterpolated([]float64{1, 1}, []float64{0.9, 0.8}); err == nil {
		t.Fatalf("expected duplicate pillar error")
	}
	if _, err := NewInterpolated([]float64{1}, []float64{-0.1}); err == nil {
		t.Fatalf("expected non-positive value error")
	}
}

func TestCurveFromDFs(t *testing.T) {
	t.Parallel()

	today := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	c, err := NewCurveFromDFs(today, map[time.Time]float64{
		today.AddDate(0, 0, 365): 0.97,
	})
	if err != nil {
		t.Fatalf("NewCurveFromDFs: %v", err)
	}
	if got := c.Discount(1); math.Abs(got-0.97) > 1e-15 {
		t.Fatalf("Discount(1) = %v", got)
	}
}

func TestEffectiveBondDiscount(t *testing.T) {
	t.Parallel()

	ref := FlatForward{Rate: 0.02}
	credit := FlatHazard{Rate: 0.01}

	full := EffectiveBondDiscount{Reference: ref, Credit: credit, Recovery: 1}
	if got, want := full.Discount(3), ref.Discount(3); math.Abs(got-want) > 1e-15 {
		t.Fatalf("full recovery should leave reference unchanged: %v vs %v", got, want)
	}

	risky := EffectiveBondDiscount{Reference: ref, Credit: credit, Spread: 0.005, Recovery: 0.4}
	want := math.Exp(-(0.02 + 0.005 + 0.6*0.01) * 3)
	if got := risky.Discount(3); math.Abs(got-want) > 1e-15 {
		t.Fatalf("risky discount = %v, want %v", got, want)
	}

	spreaded := ZeroSpreaded{Base: ref, Spread: 0.01}
	if got, want := spreaded.Discount(2), math.Exp(-0.06); math.Abs(got-want) > 1e-15 {
		t.Fatalf("spreaded discount = %v, want %v", got, want)
	}
}
