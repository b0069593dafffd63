package bond

import (
	"fmt"
	"math"
)

// Yield solves for the annually compounded yield y such that
//
//	price = Σ CF_k / (1+y)^t_k
//
// with t_k in years from the valuation date. The solver uses Newton-Raphson
// with analytic first derivative and returns the iterations taken.
func Yield(times, amounts []float64, price float64) (float64, int, error) {
	if len(times) == 0 || len(times) != len(amounts) {
		return 0, 0, fmt.Errorf("Yield: need matching, non-empty times and amounts")
	}
	if price <= 0 {
		return 0, 0, fmt.Errorf("Yield: price must be positive, got %v", price)
	}

	// Initial guess: mid-range (2.5 %).
	y := clamp(0.025, yieldFloor, yieldCeiling)

	for iter := 0; iter < yieldMaxIter; iter++ {
		pv, dPdy := priceAndDeriv(y, times, amounts)
		f := pv - price

		if math.Abs(f) < yieldTolerance*price {
			return y, iter + 1, nil
		}
		if math.Abs(dPdy) < 1e-15 {
			return y, iter + 1, fmt.Errorf("Yield: derivative too small at iter %d", iter)
		}

		y = clamp(y-f/dPdy, yieldFloor, yieldCeiling)
	}

	return y, yieldMaxIter, fmt.Errorf("Yield: did not converge after %d iterations", yieldMaxIter)
}

// ---------------------------------------------------------------------------
// Newton-Raphson helpers (unexported)
// ---------------------------------------------------------------------------

const (
	yieldTolerance = 1e-12
	yieldMaxIter   = 100
	yieldFloor     = -0.05
	yieldCeiling   = 0.50
)

// priceAndDeriv returns (price, dPrice/dy).
//
//	price = Σ CF_k / (1+y)^t_k
//	dP/dy = Σ −t_k · CF_k / (1+y)^(t_k+1)
func priceAndDeriv(y float64, times, amounts []float64) (float64, float64) {
	var price, deriv float64
	for k, t := range times {
		disc := math.Pow(1.0+y, t)
		price += amounts[k] / disc
		deriv += -t * amounts[k] / (disc * (1.0 + y))
	}
	return price, deriv
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
