package model

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/scenario"
)

// ErrNotPositiveDefinite is returned for correlation matrices without a Cholesky factor.
var ErrNotPositiveDefinite = errors.New("correlation matrix is not positive definite")

// AssetType labels a block of model factors.
type AssetType int

const (
	IR AssetType = iota
	FX
	EQ
	CR
)

func (a AssetType) String() string {
	switch a {
	case IR:
		return "IR"
	case FX:
		return "FX"
	case EQ:
		return "EQ"
	case CR:
		return "CR"
	default:
		return fmt.Sprintf("AssetType(%d)", int(a))
	}
}

// FXComponent is the log-normal spot of foreign currency Foreign (an IR
// component index ≥ 1) in units of the domestic currency.
type FXComponent struct {
	Foreign int
	Spot    float64
	Sigma   float64
}

// EQComponent is a domestic-currency equity with a dividend discount curve
// (nil for no dividends).
type EQComponent struct {
	Name     string
	Spot     float64
	Sigma    float64
	Dividend curve.YieldCurve
}

// CRComponent is a Gaussian credit factor z with survival probability
// s(t, z) = S(0, t) exp(-H(t) z - H(t)² ζ(t) / 2).
type CRComponent struct {
	Name  string
	Curve curve.DefaultCurve
	Kappa float64
	Sigma float64
}

func (c CRComponent) lgm() LGM { return LGM{Kappa: c.Kappa, Sigma: c.Sigma} }

// CrossAsset is the joint model. Factors are laid out as IR, FX, EQ, CR
// blocks, each in component order. The first IR component is domestic.
//
// FX and equity spots are driven by log-normal martingale factors on top of
// the LGM numeraires,
//
//	X(t) = X(0) N_d(t) / N_f(t) exp(σW(t) - σ²t/2)
//	S(t) = S(0) D_q(t) N_d(t) exp(σW(t) - σ²t/2)
//
// which is arbitrage free for drivers uncorrelated with the rate factors.
type CrossAsset struct {
	ir []LGM
	fx []FXComponent
	eq []EQComponent
	cr []CRComponent

	offsets [4]int
	dim     int
	chol    [][]float64
}

// NewCrossAsset validates the components and factorises the correlation
// matrix. A nil correlation means independent factors.
func NewCrossAsset(ir []LGM, fx []FXComponent, eq []EQComponent, cr []CRComponent, correlation [][]float64) (*CrossAsset, error) {
	if len(ir) == 0 {
		return nil, fmt.Errorf("NewCrossAsset: at least one IR component is required")
	}
	seen := map[string]bool{}
	for i, m := range ir {
		if m.Curve == nil {
			return nil, fmt.Errorf("NewCrossAsset: IR component %d: %w", i, curve.ErrNilCurve)
		}
		if m.Sigma < 0 {
			return nil, fmt.Errorf("NewCrossAsset: IR component %d: negative volatility", i)
		}
		if m.Currency == "" || seen[m.Currency] {
			return nil, fmt.Errorf("NewCrossAsset: IR component %d: missing or duplicate currency %q", i, m.Currency)
		}
		seen[m.Currency] = true
	}
	if len(fx) != len(ir)-1 {
		return nil, fmt.Errorf("NewCrossAsset: %d IR components need %d FX components, got %d", len(ir), len(ir)-1, len(fx))
	}
	for i, c := range fx {
		if c.Foreign != i+1 {
			return nil, fmt.Errorf("NewCrossAsset: FX component %d must link IR component %d", i, i+1)
		}
		if c.Spot <= 0 || c.Sigma < 0 {
			return nil, fmt.Errorf("NewCrossAsset: FX component %d: invalid spot or volatility", i)
		}
	}
	for i, c := range eq {
		if c.Spot <= 0 || c.Sigma < 0 {
			return nil, fmt.Errorf("NewCrossAsset: EQ component %d: invalid spot or volatility", i)
		}
	}
	for i, c := range cr {
		if c.Curve == nil {
			return nil, fmt.Errorf("NewCrossAsset: CR component %d: %w", i, curve.ErrNilCurve)
		}
		if c.Sigma < 0 {
			return nil, fmt.Errorf("NewCrossAsset: CR component %d: negative volatility", i)
		}
	}

	m := &CrossAsset{ir: ir, fx: fx, eq: eq, cr: cr}
	m.offsets = [4]int{0, len(ir), len(ir) + len(fx), len(ir) + len(fx) + len(eq)}
	m.dim = len(ir) + len(fx) + len(eq) + len(cr)

	chol, err := choleskyFactor(correlation, m.dim)
	if err != nil {
		return nil, fmt.Errorf("NewCrossAsset: %w", err)
	}
	m.chol = chol
	return m, nil
}

func choleskyFactor(corr [][]float64, n int) ([][]float64, error) {
	if corr == nil {
		return nil, nil
	}
	if len(corr) != n {
		return nil, fmt.Errorf("correlation matrix has %d rows, want %d", len(corr), n)
	}
	data := make([]float64, 0, n*n)
	for i, row := range corr {
		if len(row) != n {
			return nil, fmt.Errorf("correlation row %d has %d entries, want %d", i, len(row), n)
		}
		if math.Abs(row[i]-1) > 1e-12 {
			return nil, fmt.Errorf("correlation diagonal entry %d is %v", i, row[i])
		}
		for j := range row {
			if math.Abs(row[j]-corr[j][i]) > 1e-12 {
				return nil, fmt.Errorf("correlation matrix is not symmetric at (%d,%d)", i, j)
			}
		}
		data = append(data, row...)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(n, data)); !ok {
		return nil, ErrNotPositiveDefinite
	}
	var l mat.TriDense
	chol.LTo(&l)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, i+1)
		for j := 0; j <= i; j++ {
			out[i][j] = l.At(i, j)
		}
	}
	return out, nil
}

// Dimension is the number of state variables, equal to the number of drivers.
func (m *CrossAsset) Dimension() int { return m.dim }

// Components returns the number of components of type a.
func (m *CrossAsset) Components(a AssetType) int {
	switch a {
	case IR:
		return len(m.ir)
	case FX:
		return len(m.fx)
	case EQ:
		return len(m.eq)
	case CR:
		return len(m.cr)
	}
	return 0
}

// Index returns the state index of component i of type a.
func (m *CrossAsset) Index(a AssetType, i int) int {
	if i < 0 || i >= m.Components(a) {
		panic(fmt.Sprintf("model: %s component %d out of range", a, i))
	}
	return m.offsets[a] + i
}

// Indices lists the state indices of all components of type a.
func (m *CrossAsset) Indices(a AssetType) []int {
	out := make([]int, m.Components(a))
	for i := range out {
		out[i] = m.offsets[a] + i
	}
	return out
}

// IRModel returns the LGM of IR component i.
func (m *CrossAsset) IRModel(i int) LGM { return m.ir[i] }

// Currencies lists the IR currencies, domestic first.
func (m *CrossAsset) Currencies() []string {
	out := make([]string, len(m.ir))
	for i, c := range m.ir {
		out[i] = c.Currency
	}
	return out
}

// CurrencyIndex returns the IR component of ccy.
func (m *CrossAsset) CurrencyIndex(ccy string) (int, bool) {
	for i, c := range m.ir {
		if c.Currency == ccy {
			return i, true
		}
	}
	return 0, false
}

// InitialState is the state at t=0.
func (m *CrossAsset) InitialState() []float64 {
	x := make([]float64, m.dim)
	for i, c := range m.fx {
		x[m.offsets[FX]+i] = math.Log(c.Spot)
	}
	for i, c := range m.eq {
		x[m.offsets[EQ]+i] = math.Log(c.Spot)
	}
	return x
}

// Numeraire is the domestic numeraire evaluated against discount curve d
// (nil for the model curve).
func (m *CrossAsset) Numeraire(t float64, x scenario.Vector, d curve.YieldCurve) scenario.Vector {
	return m.ir[0].Numeraire(t, x, d)
}

// Survival evaluates the survival probability s(t, z) of credit component i.
func (m *CrossAsset) Survival(i int, t float64, z scenario.Vector) scenario.Vector {
	c := m.cr[i]
	l := c.lgm()
	h, zeta := l.H(t), l.Zeta(t)
	s0 := c.Curve.SurvivalProbability(t)
	out := make(scenario.Vector, len(z))
	for k, zk := range z {
		out[k] = s0 * math.Exp(-h*zk-0.5*h*h*zeta)
	}
	return out
}

// Correlate maps independent standard normals dw onto correlated drivers dz.
func (m *CrossAsset) Correlate(dz, dw []float64) {
	if m.chol == nil {
		copy(dz, dw[:m.dim])
		return
	}
	for i, row := range m.chol {
		var s float64
		for j, l := range row {
			s += l * dw[j]
		}
		dz[i] = s
	}
}

// Evolve advances state from t0 to t1 given correlated standard normal
// drivers dz. The Gaussian factors are sampled exactly.
func (m *CrossAsset) Evolve(t0, t1 float64, state, dz []float64) {
	dt := t1 - t0
	var logN0 []float64
	if len(m.fx)+len(m.eq) > 0 {
		logN0 = make([]float64, len(m.ir))
		for i, c := range m.ir {
			logN0[i] = c.LogNumeraire(t0, state[i], nil)
		}
	}

	for i, c := range m.ir {
		state[i] += math.Sqrt(math.Max(c.Zeta(t1)-c.Zeta(t0), 0)) * dz[i]
	}
	for i, c := range m.cr {
		k := m.offsets[CR] + i
		l := c.lgm()
		state[k] += math.Sqrt(math.Max(l.Zeta(t1)-l.Zeta(t0), 0)) * dz[k]
	}
	if logN0 == nil {
		return
	}

	dLogN := func(i int) float64 {
		return m.ir[i].LogNumeraire(t1, state[i], nil) - logN0[i]
	}
	dDom := dLogN(0)
	for i, c := range m.fx {
		k := m.offsets[FX] + i
		state[k] += dDom - dLogN(c.Foreign) + c.Sigma*math.Sqrt(dt)*dz[k] - 0.5*c.Sigma*c.Sigma*dt
	}
	for i, c := range m.eq {
		k := m.offsets[EQ] + i
		var dDiv float64
		if c.Dividend != nil {
			dDiv = math.Log(c.Dividend.Discount(t1) / c.Dividend.Discount(t0))
		}
		state[k] += dDiv + dDom + c.Sigma*math.Sqrt(dt)*dz[k] - 0.5*c.Sigma*c.Sigma*dt
	}
}
