// Package lgmgrid prices callable bonds with fixed cashflows on a one factor
// LGM model by backward convolution of the deflated values. Expectations
// over each step are taken with Gauss-Hermite quadrature on a state grid
// scaled to the model standard deviation.
package lgmgrid

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/integrate/quad"

	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/model"
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/utils"
)

// ErrFloatingCoupon is returned for bonds whose coupons are not fixed.
var ErrFloatingCoupon = errors.New("lgmgrid: floating coupons are not supported")

// Options configure the state grid.
type Options struct {
	// Discount is the bond discount curve; nil means the model curve.
	Discount curve.YieldCurve
	// GridPoints is the number of states per time, StdDevs the half width of
	// the grid in standard deviations.
	GridPoints int
	StdDevs    float64
	// QuadraturePoints is the Gauss-Hermite order of each step.
	QuadraturePoints int
	// TimeStepsPerYear refines the grid for FromThisDateOn callabilities.
	TimeStepsPerYear int
}

func (o *Options) setDefaults() {
	if o.GridPoints == 0 {
		o.GridPoints = 201
	}
	if o.StdDevs == 0 {
		o.StdDevs = 7
	}
	if o.QuadraturePoints == 0 {
		o.QuadraturePoints = 32
	}
}

// Engine is a reference pricer for Bermudan callable and putable bonds.
type Engine struct {
	today  time.Time
	model  model.LGM
	opts   Options
	nodes  []float64
	weight []float64
}

// New returns an engine for m as seen from today.
func New(today time.Time, m model.LGM, opts Options) (*Engine, error) {
	opts.setDefaults()
	if m.Curve == nil {
		return nil, fmt.Errorf("lgmgrid.New: %w", curve.ErrNilCurve)
	}
	if opts.GridPoints < 3 || opts.QuadraturePoints < 2 || opts.StdDevs <= 0 || opts.TimeStepsPerYear < 0 {
		return nil, fmt.Errorf("lgmgrid.New: invalid options %+v", opts)
	}
	e := &Engine{
		today:  today,
		model:  m,
		opts:   opts,
		nodes:  make([]float64, opts.QuadraturePoints),
		weight: make([]float64, opts.QuadraturePoints),
	}
	// nodes and weights for ∫ f(x) exp(-x²) dx
	quad.Hermite{}.FixedLocations(e.nodes, e.weight, math.Inf(-1), math.Inf(1))
	for k := range e.weight {
		e.weight[k] /= math.SqrtPi
	}
	return e, nil
}

// Result holds the grid prices.
type Result struct {
	UnderlyingNPV float64
	OptionNPV     float64
	NPV           float64
}

// layer is the deflated value of the underlying and of the embedded option
// on the state grid of one time.
type layer struct {
	t        float64
	x        []float64
	und, opt []float64
}

func (e *Engine) newLayer(t float64) *layer {
	sd := math.Sqrt(e.model.Zeta(t))
	m := e.opts.GridPoints
	if sd == 0 {
		m = 1
	}
	l := &layer{t: t, x: make([]float64, m), und: make([]float64, m), opt: make([]float64, m)}
	if m == 1 {
		return l
	}
	width := e.opts.StdDevs * sd
	for j := range l.x {
		l.x[j] = -width + 2*width*float64(j)/float64(m-1)
	}
	return l
}

// convolve sets the values of cur to the expectation of next given the
// state of cur, the state increment having variance dZeta.
func (e *Engine) convolve(cur, next *layer, dZeta float64) {
	scale := math.Sqrt(2 * math.Max(dZeta, 0))
	for j, x := range cur.x {
		var u, o float64
		for k, z := range e.nodes {
			y := x + scale*z
			u += e.weight[k] * interpolate(next.x, next.und, y)
			o += e.weight[k] * interpolate(next.x, next.opt, y)
		}
		cur.und[j], cur.opt[j] = u, o
	}
}

// interpolate is linear on the grid and flat beyond it.
func interpolate(xs, ys []float64, x float64) float64 {
	n := len(xs)
	if n == 1 || x <= xs[0] {
		return ys[0]
	}
	if x >= xs[n-1] {
		return ys[n-1]
	}
	// uniform grid
	h := (xs[n-1] - xs[0]) / float64(n-1)
	i := min(int((x-xs[0])/h), n-2)
	w := (x - xs[i]) / h
	return ys[i]*(1-w) + ys[i+1]*w
}

// Calculate prices b.
func (e *Engine) Calculate(ctx context.Context, b *bond.CallableBond) (*Result, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("lgmgrid.Calculate: %w", err)
	}
	for _, cf := range b.Cashflows {
		if cf.Floating != nil {
			return nil, ErrFloatingCoupon
		}
	}
	toTime := utils.ModelTime(e.today)
	events := bond.NewEvents(e.today, b)
	times := events.Times()
	if len(times) == 0 {
		return nil, fmt.Errorf("lgmgrid.Calculate: bond has no live events")
	}
	steps := 0
	if e.opts.TimeStepsPerYear > 0 {
		steps = max(int(math.Round(float64(e.opts.TimeStepsPerYear)*times[len(times)-1]+0.5)), 1)
	}
	grid, err := montecarlo.NewTimeGrid(times, steps)
	if err != nil {
		return nil, fmt.Errorf("lgmgrid.Calculate: %w", err)
	}
	if err := events.Finalise(grid); err != nil {
		return nil, fmt.Errorf("lgmgrid.Calculate: %w", err)
	}
	accrual := bond.NewNotionalAccrual(toTime, b.Cashflows, func(cf bond.Cashflow) float64 { return cf.Coupon })

	var next *layer
	for i := len(grid) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := grid[i]
		cur := e.newLayer(t)
		if next != nil {
			e.convolve(cur, next, e.model.Zeta(next.t)-e.model.Zeta(t))
		}

		invN := make([]float64, len(cur.x))
		for j, x := range cur.x {
			invN[j] = math.Exp(-e.model.LogNumeraire(t, x, e.opts.Discount))
		}
		notional, acc := accrual.Notional(t), accrual.Accrual(t)
		if events.HasCall(i) {
			amount := events.CallData(i).Amount(notional, acc)
			for j := range cur.x {
				cur.opt[j] = math.Min(cur.opt[j], amount*invN[j]-cur.und[j])
			}
		}
		if events.HasPut(i) {
			amount := events.PutData(i).Amount(notional, acc)
			for j := range cur.x {
				cur.opt[j] = math.Max(cur.opt[j], amount*invN[j]-cur.und[j])
			}
		}
		// flows paid at t are received whether or not the bond is exercised
		for _, c := range events.CashflowsAt(i) {
			amount := b.Cashflows[c].Amount()
			for j := range cur.x {
				cur.und[j] += amount * invN[j]
			}
		}
		next = cur
	}

	n0 := math.Exp(e.model.LogNumeraire(0, 0, e.opts.Discount))
	res := &Result{UnderlyingNPV: next.und[0] * n0, OptionNPV: next.opt[0] * n0}
	res.NPV = res.UnderlyingNPV + res.OptionNPV
	return res, nil
}
