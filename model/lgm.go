// Package model implements the Gaussian cross-asset model the Monte Carlo
// engines simulate: one LGM factor per currency, log-normal FX and equity
// spots and Gaussian credit factors, with correlated drivers.
package model

import (
	"math"

	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/scenario"
)

// kappaCutoff is the mean reversion below which the zero-reversion limits are used.
const kappaCutoff = 1e-8

// LGM is a one-factor linear Gauss Markov model in Hull-White parametrisation:
//
//	H(t) = (1 - exp(-κt)) / κ
//	ζ(t) = σ² (exp(2κt) - 1) / (2κ)
//
// The state x is a driftless Gaussian with variance ζ(t) under the LGM measure.
type LGM struct {
	Currency string
	Curve    curve.YieldCurve
	Kappa    float64
	Sigma    float64
}

func (m LGM) H(t float64) float64 {
	if math.Abs(m.Kappa) < kappaCutoff {
		return t
	}
	return (1 - math.Exp(-m.Kappa*t)) / m.Kappa
}

func (m LGM) Zeta(t float64) float64 {
	if math.Abs(m.Kappa) < kappaCutoff {
		return m.Sigma * m.Sigma * t
	}
	return m.Sigma * m.Sigma * (math.Exp(2*m.Kappa*t) - 1) / (2 * m.Kappa)
}

func (m LGM) discount(d curve.YieldCurve) curve.YieldCurve {
	if d == nil {
		return m.Curve
	}
	return d
}

// LogNumeraire returns ln N(t, x) with N(t, x) = exp(Hx + H²ζ/2) / P(0, t).
// A nil discount curve means the model's own curve.
func (m LGM) LogNumeraire(t, x float64, d curve.YieldCurve) float64 {
	h := m.H(t)
	return h*x + 0.5*h*h*m.Zeta(t) - math.Log(m.discount(d).Discount(t))
}

// Numeraire evaluates N(t, x) on every scenario.
func (m LGM) Numeraire(t float64, x scenario.Vector, d curve.YieldCurve) scenario.Vector {
	h, z := m.H(t), m.Zeta(t)
	p := m.discount(d).Discount(t)
	out := make(scenario.Vector, len(x))
	for i, xi := range x {
		out[i] = math.Exp(h*xi+0.5*h*h*z) / p
	}
	return out
}

// DiscountBond is the model zero bond P(t, T | x).
func (m LGM) DiscountBond(t, maturity, x float64, d curve.YieldCurve) float64 {
	if maturity <= t {
		return 1
	}
	c := m.discount(d)
	ht, hT := m.H(t), m.H(maturity)
	return c.Discount(maturity) / c.Discount(t) * math.Exp(-(hT-ht)*x-0.5*(hT*hT-ht*ht)*m.Zeta(t))
}

// DiscountBonds evaluates DiscountBond on every scenario.
func (m LGM) DiscountBonds(t, maturity float64, x scenario.Vector, d curve.YieldCurve) scenario.Vector {
	out := make(scenario.Vector, len(x))
	for i, xi := range x {
		out[i] = m.DiscountBond(t, maturity, xi, d)
	}
	return out
}
