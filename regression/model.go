// Package regression implements the least-squares continuation value models
// of the American Monte Carlo engine: polynomial regressions of a per
// scenario regressand on model states observed at and before a time.
package regression

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/meenmo/amc/scenario"
	"github.com/meenmo/amc/utils"
)

var (
	// ErrDegenerate is returned when the training problem has no stable solution.
	ErrDegenerate = errors.New("degenerate regression")
	// ErrNotTrained is returned when an untrained model is applied.
	ErrNotTrained = errors.New("regression model is not trained")
)

// RegressorModel chooses the regressors beyond the state at observation time.
type RegressorModel string

const (
	// Simple uses the full model state at the observation time only.
	Simple RegressorModel = "Simple"
	// LaggedIR adds past IR states at observation times of live cashflows.
	LaggedIR RegressorModel = "LaggedIR"
	// LaggedFX adds past FX states.
	LaggedFX RegressorModel = "LaggedFX"
	// LaggedEQ adds past EQ states.
	LaggedEQ RegressorModel = "LaggedEQ"
	// Lagged adds past IR, FX and EQ states.
	Lagged RegressorModel = "Lagged"
)

// VarGroupMode controls cross terms of the polynomial basis.
type VarGroupMode string

const (
	// Global builds the full tensor basis over all regressors.
	Global VarGroupMode = "Global"
	// Trivial puts every regressor in its own group, so there are no cross terms.
	Trivial VarGroupMode = "Trivial"
)

// StateLayout tells the model which state indices belong to which asset class.
type StateLayout struct {
	Dimension int
	IR        []int
	FX        []int
	EQ        []int
}

// Requirement lists the model states a cashflow observes: Indices[j] are
// observed at Times[j].
type Requirement struct {
	Times   []float64
	Indices [][]int
}

// Options configure regressor selection.
type Options struct {
	RegressorModel RegressorModel
	// VarianceCutoff in (0,1] enables a PCA of the regressors keeping the
	// leading components that explain this share of the variance.
	VarianceCutoff float64
	MaxSimTimesIR  int
	MaxSimTimesFX  int
	MaxSimTimesEQ  int
	VarGroupMode   VarGroupMode
}

// Regressor is the state index Index observed at Time.
type Regressor struct {
	Time  float64
	Index int
}

// Paths is a view on simulated states, States[time][factor][scenario].
type Paths struct {
	Times  utils.TimeSet
	States [][]scenario.Vector
}

func (p Paths) samples() int {
	if len(p.States) == 0 || len(p.States[0]) == 0 {
		return 0
	}
	return len(p.States[0][0])
}

// Model is one trained (or trainable) regression.
type Model struct {
	observationTime float64
	regressors      []Regressor
	varianceCutoff  float64
	varGroupMode    VarGroupMode

	transform    [][]float64
	family       Family
	order        int
	coefficients []float64
	basis        *basis
	trained      bool
}

// NewModel selects the regressors for a regression at observationTime. live
// marks the requirements of cashflows still to be paid.
func NewModel(observationTime float64, reqs []Requirement, live []bool, layout StateLayout, opts Options) (*Model, error) {
	if len(live) != len(reqs) {
		return nil, fmt.Errorf("NewModel: %d requirements but %d live flags", len(reqs), len(live))
	}
	if opts.VarianceCutoff < 0 || opts.VarianceCutoff > 1 {
		return nil, fmt.Errorf("NewModel: variance cutoff %v outside [0,1]", opts.VarianceCutoff)
	}
	mode := opts.VarGroupMode
	if mode == "" {
		mode = Global
	}
	if mode != Global && mode != Trivial {
		return nil, fmt.Errorf("NewModel: unknown var group mode %q", mode)
	}

	m := &Model{observationTime: observationTime, varianceCutoff: opts.VarianceCutoff, varGroupMode: mode}
	set := map[Regressor]bool{}
	for i := 0; i < layout.Dimension; i++ {
		set[Regressor{observationTime, i}] = true
	}

	lagged := func(idx []int, asset RegressorModel, maxTimes int) {
		if opts.RegressorModel != asset && opts.RegressorModel != Lagged {
			return
		}
		wanted := map[int]bool{}
		for _, i := range idx {
			wanted[i] = true
		}
		byTime := map[float64][]int{}
		var times []float64
		for c, r := range reqs {
			if !live[c] {
				continue
			}
			for j, st := range r.Times {
				t := math.Min(observationTime, st)
				if t <= utils.TinyTime {
					continue
				}
				for _, i := range r.Indices[j] {
					if !wanted[i] {
						continue
					}
					if _, ok := byTime[t]; !ok {
						times = append(times, t)
					}
					byTime[t] = append(byTime[t], i)
				}
			}
		}
		sort.Float64s(times)
		for _, t := range thin(times, maxTimes) {
			for _, i := range byTime[t] {
				set[Regressor{t, i}] = true
			}
		}
	}
	switch opts.RegressorModel {
	case Simple, "":
	case LaggedIR, LaggedFX, LaggedEQ, Lagged:
		lagged(layout.IR, LaggedIR, opts.MaxSimTimesIR)
		lagged(layout.FX, LaggedFX, opts.MaxSimTimesFX)
		lagged(layout.EQ, LaggedEQ, opts.MaxSimTimesEQ)
	default:
		return nil, fmt.Errorf("NewModel: unknown regressor model %q", opts.RegressorModel)
	}

	for r := range set {
		m.regressors = append(m.regressors, r)
	}
	sort.Slice(m.regressors, func(i, j int) bool {
		a, b := m.regressors[i], m.regressors[j]
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.Index < b.Index
	})
	return m, nil
}

// thin keeps at most maxTimes entries of times, evenly spread and always
// including the last one. maxTimes <= 0 keeps all.
func thin(times []float64, maxTimes int) []float64 {
	if maxTimes <= 0 || len(times) <= maxTimes {
		return times
	}
	step := max(len(times)/maxTimes, 1)
	var out []float64
	for j := 0; j < len(times)-1 && len(out) < maxTimes-1; j += step {
		out = append(out, times[j])
	}
	return append(out, times[len(times)-1])
}

// ObservationTime returns the time the regression conditions on.
func (m *Model) ObservationTime() float64 { return m.observationTime }

// Regressors returns the selected regressors ordered by time and index.
func (m *Model) Regressors() []Regressor { return append([]Regressor(nil), m.regressors...) }

// IsTrained reports whether Train succeeded.
func (m *Model) IsTrained() bool { return m.trained }

// IsZero reports whether the model is trained to the zero function.
func (m *Model) IsZero() bool { return m.trained && m.coefficients == nil }

// Train fits the regressand on the scenarios selected by filter (nil for all).
// An identically zero regressand or an empty selection yields the zero model.
func (m *Model) Train(order int, family Family, regressand scenario.Vector, initialState []float64, paths Paths, filter scenario.Filter) error {
	if m.trained {
		return fmt.Errorf("Train: model at t=%v is already trained", m.observationTime)
	}
	if _, err := ParseFamily(string(family)); err != nil {
		return fmt.Errorf("Train: %w", err)
	}
	n := len(regressand)
	if filter != nil && len(filter) != n {
		return fmt.Errorf("Train: filter has %d entries for %d samples", len(filter), n)
	}
	if s := paths.samples(); s != n {
		return fmt.Errorf("Train: paths have %d samples, regressand %d", s, n)
	}
	m.family, m.order = family, order

	if regressand.IsZero(0) || (filter != nil && !filter.Any()) {
		m.trained = true
		return nil
	}

	x, err := m.regressorValues(initialState, paths)
	if err != nil {
		return fmt.Errorf("Train: %w", err)
	}
	var rows []int
	for k := 0; k < n; k++ {
		if filter == nil || filter[k] {
			rows = append(rows, k)
		}
	}

	if m.varianceCutoff > 0 && len(x) > 0 {
		m.transform = principalComponents(x, rows, m.varianceCutoff)
		x = applyTransform(m.transform, x)
	}

	b, err := newBasis(family, order, len(x), m.groups(len(x)))
	if err != nil {
		return fmt.Errorf("Train: %w", err)
	}
	cols := b.size()
	if len(rows) < cols {
		return fmt.Errorf("Train: %w: %d training samples for %d basis functions at t=%v", ErrDegenerate, len(rows), cols, m.observationTime)
	}

	design := mat.NewDense(len(rows), cols, nil)
	target := mat.NewVecDense(len(rows), nil)
	ev := b.evaluator()
	point := make([]float64, len(x))
	for r, k := range rows {
		for v := range x {
			point[v] = x[v][k]
		}
		ev.row(point, design.RawRowView(r))
		target.SetVec(r, regressand[k])
	}

	var qr mat.QR
	qr.Factorize(design)
	var coef mat.VecDense
	if err := qr.SolveVecTo(&coef, false, target); err != nil {
		return fmt.Errorf("Train: %w at t=%v: %v", ErrDegenerate, m.observationTime, err)
	}
	m.coefficients = make([]float64, cols)
	for j := range m.coefficients {
		c := coef.AtVec(j)
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("Train: %w: non-finite coefficient at t=%v", ErrDegenerate, m.observationTime)
		}
		m.coefficients[j] = c
	}
	m.basis = b
	m.trained = true
	return nil
}

// Apply evaluates the trained model on every scenario of paths. Regressor
// times missing from the path grid are linearly interpolated.
func (m *Model) Apply(initialState []float64, paths Paths) (scenario.Vector, error) {
	if !m.trained {
		return nil, fmt.Errorf("Apply: %w (t=%v)", ErrNotTrained, m.observationTime)
	}
	n := paths.samples()
	if m.coefficients == nil {
		return scenario.Zeros(n), nil
	}
	x, err := m.regressorValues(initialState, paths)
	if err != nil {
		return nil, fmt.Errorf("Apply: %w", err)
	}
	if m.transform != nil {
		x = applyTransform(m.transform, x)
	}
	out := make(scenario.Vector, n)
	ev := m.basis.evaluator()
	point := make([]float64, len(x))
	row := make([]float64, m.basis.size())
	for k := 0; k < n; k++ {
		for v := range x {
			point[v] = x[v][k]
		}
		ev.row(point, row)
		var s float64
		for j, c := range m.coefficients {
			s += c * row[j]
		}
		out[k] = s
	}
	return out, nil
}

func (m *Model) groups(dim int) [][]int {
	if dim == 0 {
		return nil
	}
	if m.varGroupMode == Trivial {
		g := make([][]int, dim)
		for i := range g {
			g[i] = []int{i}
		}
		return g
	}
	all := make([]int, dim)
	for i := range all {
		all[i] = i
	}
	return [][]int{all}
}

func (m *Model) regressorValues(initialState []float64, paths Paths) ([]scenario.Vector, error) {
	n := paths.samples()
	out := make([]scenario.Vector, len(m.regressors))
	for r, reg := range m.regressors {
		if reg.Index < 0 || reg.Index >= len(initialState) {
			return nil, fmt.Errorf("regressor state index %d outside model dimension %d", reg.Index, len(initialState))
		}
		out[r] = stateAt(reg.Time, reg.Index, initialState, paths, n)
	}
	return out, nil
}

// stateAt returns factor f at time t, interpolating between path times, using
// the initial state before the first path time and flat extrapolation after
// the last.
func stateAt(t float64, f int, initialState []float64, paths Paths, n int) scenario.Vector {
	if i, ok := paths.Times.Index(t); ok {
		return paths.States[i][f]
	}
	if t <= utils.TinyTime || len(paths.Times) == 0 {
		return scenario.Const(n, initialState[f])
	}
	i := sort.SearchFloat64s(paths.Times, t)
	if i >= len(paths.Times) {
		return paths.States[len(paths.Times)-1][f]
	}
	t1, right := paths.Times[i], paths.States[i][f]
	var t0 float64
	var left scenario.Vector
	if i == 0 {
		left = scenario.Const(n, initialState[f])
	} else {
		t0, left = paths.Times[i-1], paths.States[i-1][f]
	}
	w := (t - t0) / (t1 - t0)
	out := make(scenario.Vector, n)
	for k := range out {
		out[k] = (1-w)*left[k] + w*right[k]
	}
	return out
}

// principalComponents returns the leading eigenvectors of the regressor
// covariance (on rows) explaining at least cutoff of the total variance.
func principalComponents(x []scenario.Vector, rows []int, cutoff float64) [][]float64 {
	dim := len(x)
	data := mat.NewDense(len(rows), dim, nil)
	for r, k := range rows {
		for v := range x {
			data.Set(r, v, x[v][k])
		}
	}
	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, data, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return identity(dim)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	order := make([]int, dim)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool { return values[order[i]] > values[order[j]] })

	var total float64
	for _, v := range values {
		total += math.Max(v, 0)
	}
	if total <= 0 {
		return identity(dim)
	}
	var out [][]float64
	var explained float64
	for _, j := range order {
		if explained >= cutoff*total {
			break
		}
		row := make([]float64, dim)
		for i := range row {
			row[i] = vectors.At(i, j)
		}
		out = append(out, row)
		explained += math.Max(values[j], 0)
	}
	return out
}

func identity(dim int) [][]float64 {
	out := make([][]float64, dim)
	for i := range out {
		out[i] = make([]float64, dim)
		out[i][i] = 1
	}
	return out
}

func applyTransform(t [][]float64, x []scenario.Vector) []scenario.Vector {
	n := 0
	if len(x) > 0 {
		n = len(x[0])
	}
	out := make([]scenario.Vector, len(t))
	for i, row := range t {
		y := make(scenario.Vector, n)
		for v, w := range row {
			if w == 0 {
				continue
			}
			for k := range y {
				y[k] += w * x[v][k]
			}
		}
		out[i] = y
	}
	return out
}
