package model

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mathext/prng"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/scenario"
)

func TestLGMZeroReversionLimits(t *testing.T) {
	t.Parallel()

	m := LGM{Kappa: 0, Sigma: 0.01}
	near := LGM{Kappa: 1e-6, Sigma: 0.01}
	for _, tt := range []float64{0.5, 2, 10} {
		if got, want := near.H(tt), m.H(tt); math.Abs(got-want) > 1e-5*tt {
			t.Fatalf("H(%v) = %v, want %v", tt, got, want)
		}
		if got, want := near.Zeta(tt), m.Zeta(tt); math.Abs(got-want) > 2e-5*want {
			t.Fatalf("Zeta(%v) = %v, want %v", tt, got, want)
		}
	}
}

func TestLGMDiscountBondConsistency(t *testing.T) {
	t.Parallel()

	m := LGM{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.03}, Kappa: 0.02, Sigma: 0.01}
	// P(t,T)/N(t) must equal P(0,T) exp(-H_T x - H_T² ζ_t / 2) for any x
	tt, maturity, x := 2.0, 7.0, 0.013
	lhs := m.DiscountBond(tt, maturity, x, nil) / math.Exp(m.LogNumeraire(tt, x, nil))
	hT := m.H(maturity)
	rhs := m.Curve.Discount(maturity) * math.Exp(-hT*x-0.5*hT*hT*m.Zeta(tt))
	if math.Abs(lhs-rhs) > 1e-15 {
		t.Fatalf("deflated bond %v, want %v", lhs, rhs)
	}
	if got := m.DiscountBond(3, 3, x, nil); got != 1 {
		t.Fatalf("P(t,t) = %v", got)
	}
	if got := m.Numeraire(0, scenario.Vector{0}, nil); got[0] != 1 {
		t.Fatalf("N(0) = %v", got[0])
	}
}

func testModel(t *testing.T, corr [][]float64) *CrossAsset {
	t.Helper()
	ir := []LGM{
		{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.02}, Kappa: 0.01, Sigma: 0.01},
		{Currency: "USD", Curve: curve.FlatForward{Rate: 0.04}, Kappa: 0.03, Sigma: 0.008},
	}
	fx := []FXComponent{{Foreign: 1, Spot: 0.9, Sigma: 0.1}}
	eq := []EQComponent{{Name: "SX5E", Spot: 100, Sigma: 0.2, Dividend: curve.FlatForward{Rate: 0.01}}}
	cr := []CRComponent{{Name: "ISSUER", Curve: curve.FlatHazard{Rate: 0.02}, Kappa: 0.05, Sigma: 0.01}}
	m, err := NewCrossAsset(ir, fx, eq, cr, corr)
	if err != nil {
		t.Fatalf("NewCrossAsset: %v", err)
	}
	return m
}

func TestCrossAssetLayout(t *testing.T) {
	t.Parallel()

	m := testModel(t, nil)
	if m.Dimension() != 5 {
		t.Fatalf("Dimension = %d", m.Dimension())
	}
	if m.Index(FX, 0) != 2 || m.Index(EQ, 0) != 3 || m.Index(CR, 0) != 4 {
		t.Fatalf("unexpected layout %v %v %v", m.Index(FX, 0), m.Index(EQ, 0), m.Index(CR, 0))
	}
	if ccy, _ := m.CurrencyIndex("USD"); ccy != 1 {
		t.Fatalf("CurrencyIndex(USD) = %d", ccy)
	}
	x0 := m.InitialState()
	if math.Abs(x0[2]-math.Log(0.9)) > 1e-15 || math.Abs(x0[3]-math.Log(100)) > 1e-15 {
		t.Fatalf("InitialState = %v", x0)
	}
}

func TestCrossAssetRejectsBadCorrelation(t *testing.T) {
	t.Parallel()

	ir := []LGM{{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.02}, Sigma: 0.01}}
	cr := []CRComponent{{Curve: curve.FlatHazard{Rate: 0.01}, Sigma: 0.01}}
	if _, err := NewCrossAsset(ir, nil, nil, cr, [][]float64{{1, 1.2}, {1.2, 1}}); err == nil {
		t.Fatalf("expected non positive definite error")
	}
	if _, err := NewCrossAsset(ir, nil, nil, cr, [][]float64{{1, 0.2}, {0.3, 1}}); err == nil {
		t.Fatalf("expected asymmetry error")
	}
	if _, err := NewCrossAsset(nil, nil, nil, nil, nil); err == nil {
		t.Fatalf("expected missing IR error")
	}
}

func TestCorrelateReproducesMatrix(t *testing.T) {
	t.Parallel()

	ir := []LGM{{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.02}, Sigma: 0.01}}
	cr := []CRComponent{{Curve: curve.FlatHazard{Rate: 0.01}, Sigma: 0.01}}
	m, err := NewCrossAsset(ir, nil, nil, cr, [][]float64{{1, 0.6}, {0.6, 1}})
	if err != nil {
		t.Fatalf("NewCrossAsset: %v", err)
	}
	dz := make([]float64, 2)
	m.Correlate(dz, []float64{1, 0})
	if math.Abs(dz[0]-1) > 1e-15 || math.Abs(dz[1]-0.6) > 1e-15 {
		t.Fatalf("Correlate(e1) = %v", dz)
	}
	m.Correlate(dz, []float64{0, 1})
	if dz[0] != 0 || math.Abs(dz[1]-0.8) > 1e-15 {
		t.Fatalf("Correlate(e2) = %v", dz)
	}
}

func TestMartingales(t *testing.T) {
	t.Parallel()

	m := testModel(t, nil)
	const n = 100000
	times := []float64{0.5, 1.5, 3}
	horizon := times[len(times)-1]

	src := prng.NewMT19937()
	src.Seed(42)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	deflatedBond := make(scenario.Vector, n)
	deflatedFX := make(scenario.Vector, n)
	deflatedEQ := make(scenario.Vector, n)
	survival := make(scenario.Vector, n)

	dw := make([]float64, m.Dimension())
	dz := make([]float64, m.Dimension())
	for k := 0; k < n; k++ {
		x := m.InitialState()
		t0 := 0.0
		for _, t1 := range times {
			for i := range dw {
				dw[i] = normal.Rand()
			}
			m.Correlate(dz, dw)
			m.Evolve(t0, t1, x, dz)
			t0 = t1
		}
		invN := 1 / m.IRModel(0).Numeraire(horizon, scenario.Vector{x[0]}, nil)[0]
		deflatedBond[k] = invN
		deflatedFX[k] = math.Exp(x[2]) * invN
		deflatedEQ[k] = math.Exp(x[3]) * invN
		survival[k] = m.Survival(0, horizon, scenario.Vector{x[4]})[0]
	}

	check := func(name string, v scenario.Vector, want float64) {
		t.Helper()
		if d := math.Abs(v.Mean() - want); d > 4*v.StdErr()+1e-12 {
			t.Fatalf("%s: mean %v, want %v (stderr %v)", name, v.Mean(), want, v.StdErr())
		}
	}
	check("domestic bond", deflatedBond, m.IRModel(0).Curve.Discount(horizon))
	check("fx forward", deflatedFX, 0.9*m.IRModel(1).Curve.Discount(horizon))
	check("equity forward", deflatedEQ, 100*math.Exp(-0.01*horizon))
	check("survival", survival, math.Exp(-0.02*horizon))
}
