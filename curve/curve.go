// Package curve provides the term structures used by the models and engines:
// discount curves, default curves and their spreaded combinations. All curves
// are indexed by model time in years (ACT/365F from the valuation date).
package curve

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/meenmo/amc/utils"
)

// ErrNilCurve is returned when a required curve is missing.
var ErrNilCurve = errors.New("nil curve")

// YieldCurve returns discount factors P(0, t).
type YieldCurve interface {
	Discount(t float64) float64
}

// DefaultCurve returns survival probabilities S(0, t).
type DefaultCurve interface {
	SurvivalProbability(t float64) float64
}

// FlatForward is a continuously compounded flat zero curve.
type FlatForward struct {
	Rate float64
}

func (c FlatForward) Discount(t float64) float64 {
	return math.Exp(-c.Rate * t)
}

// Interpolated is a pillar curve with log-linear interpolation of the pillar
// values, i.e. piecewise flat instantaneous forwards. The node at t=0 is 1.
// Beyond the last pillar the last forward is extended.
type Interpolated struct {
	times  []float64
	values []float64
}

// NewInterpolated builds a curve from pillar times and values. A value of 1
// at t=0 is prepended when absent.
func NewInterpolated(times, values []float64) (*Interpolated, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("NewInterpolated: %d times but %d values", len(times), len(values))
	}
	type node struct{ t, v float64 }
	nodes := make([]node, 0, len(times)+1)
	for i, t := range times {
		if t < 0 {
			return nil, fmt.Errorf("NewInterpolated: negative pillar time %v", t)
		}
		if values[i] <= 0 || math.IsNaN(values[i]) {
			return nil, fmt.Errorf("NewInterpolated: non-positive value %v at t=%v", values[i], t)
		}
		nodes = append(nodes, node{t, values[i]})
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].t < nodes[j].t })
	if len(nodes) == 0 || nodes[0].t > 0 {
		nodes = append([]node{{0, 1}}, nodes...)
	}

	c := &Interpolated{}
	for _, n := range nodes {
		if k := len(c.times); k > 0 && n.t-c.times[k-1] <= utils.TinyTime {
			return nil, fmt.Errorf("NewInterpolated: duplicate pillar time %v", n.t)
		}
		c.times = append(c.times, n.t)
		c.values = append(c.values, n.v)
	}
	return c, nil
}

// NewCurveFromDFs builds a discount curve from dated discount factors.
func NewCurveFromDFs(today time.Time, dfs map[time.Time]float64) (*Interpolated, error) {
	toTime := utils.ModelTime(today)
	times := make([]float64, 0, len(dfs))
	values := make([]float64, 0, len(dfs))
	for d, df := range dfs {
		times = append(times, toTime(d))
		values = append(values, df)
	}
	return NewInterpolated(times, values)
}

func (c *Interpolated) value(t float64) float64 {
	n := len(c.times)
	if n == 1 || t <= 0 {
		return 1
	}
	// Find brackets using binary search (extrapolate with the last segment)
	i := sort.SearchFloat64s(c.times, t)
	if i >= n {
		i = n - 1
	}
	t1, t2 := c.times[i-1], c.times[i]
	v1, v2 := c.values[i-1], c.values[i]

	forwardRate := math.Log(v1/v2) / (t2 - t1)
	return v1 * math.Exp(-forwardRate*(t-t1))
}

func (c *Interpolated) Discount(t float64) float64 {
	return c.value(t)
}

// SurvivalProbability lets an Interpolated built from survival probabilities
// act as a default curve (piecewise flat hazard rates).
func (c *Interpolated) SurvivalProbability(t float64) float64 {
	return c.value(t)
}

// ZeroRate returns the continuously compounded zero rate to t.
func ZeroRate(c YieldCurve, t float64) float64 {
	if t <= 0 {
		t = 1e-4
	}
	return -math.Log(c.Discount(t)) / t
}
