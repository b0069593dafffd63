package amc

import (
	"encoding"
	"fmt"

	"github.com/meenmo/amc/regression"
	"github.com/meenmo/amc/scenario"
	"github.com/meenmo/amc/utils"
)

// Calculator evaluates a trained instrument on externally simulated paths.
type Calculator interface {
	// Evaluate returns the value at the valuation date followed by the
	// value at every requested exposure time.
	Evaluate(p Path) (*Evaluation, error)
	Currency() string
	encoding.BinaryMarshaler
}

// Path is one external simulation. States[i][f] holds factor f of the
// external model at Times[i]. RelevantPathIndex[k] selects the state row
// used for the k-th exposure time; it differs from RelevantTimeIndex[k] in
// a sticky close-out run, where rows are pinned to earlier realisations.
type Path struct {
	Times             []float64
	States            [][]scenario.Vector
	RelevantPathIndex []int
	RelevantTimeIndex []int
	// Prior holds the decisions of the preceding valuation run. A sticky
	// run reuses them unless the calculator re-evaluates exercise.
	Prior *ExerciseDecisions
}

// ExerciseDecisions are the per scenario exercise flags at each exercise
// time. For every scenario at most one flag is set over all times.
type ExerciseDecisions struct {
	Times []float64
	Call  []scenario.Filter
	Put   []scenario.Filter
}

// Evaluation is the outcome of Calculator.Evaluate. Values[0] is the NPV of
// the calibration run, Values[k+1] the value at the k-th exposure time.
type Evaluation struct {
	Values    []scenario.Vector
	Decisions *ExerciseDecisions
}

type exerciseFlag struct {
	Time    float64
	HasCall bool
	HasPut  bool
}

// CallableBondCalculator replays the exercise policy of a callable bond. It
// is immutable and safe for concurrent use.
type CallableBondCalculator struct {
	currency               string
	externalModelIndices   []int
	exerciseXvaTimes       utils.TimeSet
	xvaTimes               utils.TimeSet
	exercises              []exerciseFlag
	models                 [2]*modelSet
	resultValue            float64
	initialState           []float64
	reevaluateExercise     bool
	includeTodaysCashflows bool

	hasCalls, hasPuts bool
	// exerciseIndex maps exerciseXvaTimes onto exercises, -1 for none.
	exerciseIndex []int
}

var _ Calculator = (*CallableBondCalculator)(nil)

func newCalculator(ccy string, external []int, s *schedule, models [2]*modelSet, npv float64, x0 []float64, reevaluate, includeToday bool) *CallableBondCalculator {
	c := &CallableBondCalculator{
		currency:               ccy,
		externalModelIndices:   append([]int(nil), external...),
		exerciseXvaTimes:       s.exerciseXvaTimes,
		xvaTimes:               s.xvaTimes,
		models:                 models,
		resultValue:            npv,
		initialState:           append([]float64(nil), x0...),
		reevaluateExercise:     reevaluate,
		includeTodaysCashflows: includeToday,
	}
	for _, ex := range s.exercises {
		c.exercises = append(c.exercises, exerciseFlag{Time: ex.Time, HasCall: ex.Call != nil, HasPut: ex.Put != nil})
	}
	c.index()
	return c
}

func (c *CallableBondCalculator) index() {
	c.hasCalls, c.hasPuts = false, false
	c.exerciseIndex = make([]int, len(c.exerciseXvaTimes))
	for i := range c.exerciseIndex {
		c.exerciseIndex[i] = -1
	}
	for e, ex := range c.exercises {
		c.hasCalls = c.hasCalls || ex.HasCall
		c.hasPuts = c.hasPuts || ex.HasPut
		if i, ok := c.exerciseXvaTimes.Index(ex.Time); ok {
			c.exerciseIndex[i] = e
		}
	}
}

func (c *CallableBondCalculator) Currency() string { return c.currency }

// ExposureTimes returns the model times of the exposure dates, in the order
// of the evaluated values.
func (c *CallableBondCalculator) ExposureTimes() []float64 {
	return append([]float64(nil), c.xvaTimes...)
}

// ExerciseTimes returns the exercise times of the decisions.
func (c *CallableBondCalculator) ExerciseTimes() []float64 {
	out := make([]float64, len(c.exercises))
	for i, ex := range c.exercises {
		out[i] = ex.Time
	}
	return out
}

// Evaluate replays the trained models on p. A sticky close-out run uses the
// models trained on the close-out grid.
func (c *CallableBondCalculator) Evaluate(p Path) (*Evaluation, error) {
	paths, n, sticky, err := c.effectivePaths(p)
	if err != nil {
		return nil, fmt.Errorf("CallableBondCalculator.Evaluate: %w", err)
	}
	set := c.models[0]
	if sticky {
		set = c.models[1]
	}
	apply := func(m *regression.Model, t float64) (scenario.Vector, error) {
		if m == nil {
			return nil, fmt.Errorf("CallableBondCalculator.Evaluate: %w: no model at t=%v", ErrInternalConsistency, t)
		}
		v, err := m.Apply(c.initialState, paths)
		if err != nil {
			return nil, fmt.Errorf("CallableBondCalculator.Evaluate: %w: %w", ErrInternalConsistency, err)
		}
		return v, nil
	}

	values := make([]scenario.Vector, len(p.RelevantPathIndex)+1)
	values[0] = scenario.Const(n, c.resultValue)
	for k := 1; k < len(values); k++ {
		values[k] = scenario.Zeros(n)
	}
	if len(c.xvaTimes) == 0 {
		return &Evaluation{Values: values}, nil
	}

	if len(c.exercises) == 0 {
		for k, t := range c.xvaTimes {
			i, ok := c.exerciseXvaTimes.Index(t)
			if !ok {
				return nil, fmt.Errorf("CallableBondCalculator.Evaluate: %w: exposure time %v not found", ErrInternalConsistency, t)
			}
			if values[k+1], err = apply(set.undDirty[i], t); err != nil {
				return nil, err
			}
		}
		return &Evaluation{Values: values}, nil
	}

	// exercise prices: regressed exercise value plus regressed underlying
	callPrices := make([]scenario.Vector, len(c.exercises))
	putPrices := make([]scenario.Vector, len(c.exercises))
	decide := !sticky || c.reevaluateExercise
	decisions := &ExerciseDecisions{
		Times: c.ExerciseTimes(),
		Call:  make([]scenario.Filter, len(c.exercises)),
		Put:   make([]scenario.Filter, len(c.exercises)),
	}
	was := scenario.ConstFilter(n, false)
	for e, ex := range c.exercises {
		i, ok := c.exerciseXvaTimes.Index(ex.Time)
		if !ok {
			return nil, fmt.Errorf("CallableBondCalculator.Evaluate: %w: exercise time %v not found", ErrInternalConsistency, ex.Time)
		}
		und, err := apply(set.undDirty[i], ex.Time)
		if err != nil {
			return nil, err
		}
		decisions.Call[e] = scenario.ConstFilter(n, false)
		decisions.Put[e] = scenario.ConstFilter(n, false)
		if ex.HasCall {
			exVal, err := apply(set.callExercise[i], ex.Time)
			if err != nil {
				return nil, err
			}
			callPrices[e] = scenario.Add(exVal, und)
			if decide {
				cont, err := apply(set.contCall[i], ex.Time)
				if err != nil {
					return nil, err
				}
				f := scenario.Less(exVal, cont)
				if !c.hasPuts {
					f = scenario.And(f, scenario.LessThan(exVal, 0))
				}
				decisions.Call[e] = scenario.And(f, scenario.Not(was))
			}
		}
		if ex.HasPut {
			exVal, err := apply(set.putExercise[i], ex.Time)
			if err != nil {
				return nil, err
			}
			putPrices[e] = scenario.Add(exVal, und)
			if decide {
				cont, err := apply(set.contPut[i], ex.Time)
				if err != nil {
					return nil, err
				}
				f := scenario.Greater(exVal, cont)
				if !c.hasCalls {
					f = scenario.And(f, scenario.GreaterThan(exVal, 0))
				}
				decisions.Put[e] = scenario.And(f, scenario.Not(was))
			}
		}
		if decide {
			decisions.Call[e] = scenario.And(decisions.Call[e], scenario.Not(decisions.Put[e]))
			was = scenario.Or(was, scenario.Or(decisions.Call[e], decisions.Put[e]))
		}
	}
	if !decide {
		if decisions, err = c.priorDecisions(p.Prior, n); err != nil {
			return nil, fmt.Errorf("CallableBondCalculator.Evaluate: %w", err)
		}
	}

	was = scenario.ConstFilter(n, false)
	last := -1
	k := 0
	for i, t := range c.exerciseXvaTimes {
		payment := scenario.Zeros(n)
		if e := c.exerciseIndex[i]; e >= 0 {
			last = e
			call, put := decisions.Call[e], decisions.Put[e]
			was = scenario.Or(was, scenario.Or(call, put))
			if callPrices[e] != nil {
				payment = scenario.Select(call, callPrices[e], payment)
			}
			if putPrices[e] != nil {
				payment = scenario.Select(put, putPrices[e], payment)
			}
		}
		if !c.xvaTimes.Contains(t) {
			continue
		}
		future := scenario.Zeros(n)
		if last+1 < len(c.exercises) {
			if future, err = apply(set.option[i], t); err != nil {
				return nil, err
			}
		}
		und, err := apply(set.undDirty[i], t)
		if err != nil {
			return nil, err
		}
		values[k+1] = scenario.Select(was, payment, scenario.Add(und, future))
		k++
	}
	return &Evaluation{Values: values, Decisions: decisions}, nil
}

// effectivePaths extracts the model factors at the exposure times from p and
// reports whether p is a sticky close-out run.
func (c *CallableBondCalculator) effectivePaths(p Path) (regression.Paths, int, bool, error) {
	if len(p.States) == 0 || len(p.States[0]) == 0 {
		return regression.Paths{}, 0, false, fmt.Errorf("%w: path has no states", ErrConfiguration)
	}
	if len(p.Times) != len(p.States) {
		return regression.Paths{}, 0, false, fmt.Errorf("%w: %d path times for %d state rows", ErrConfiguration, len(p.Times), len(p.States))
	}
	if len(p.RelevantPathIndex) < len(c.xvaTimes) {
		return regression.Paths{}, 0, false, fmt.Errorf("%w: %d relevant path indices for %d exposure times", ErrConfiguration, len(p.RelevantPathIndex), len(c.xvaTimes))
	}
	if len(p.RelevantTimeIndex) != len(p.RelevantPathIndex) {
		return regression.Paths{}, 0, false, fmt.Errorf("%w: %d relevant time indices for %d path indices", ErrConfiguration, len(p.RelevantTimeIndex), len(p.RelevantPathIndex))
	}
	sticky := false
	for i, pi := range p.RelevantPathIndex {
		if pi != p.RelevantTimeIndex[i] {
			sticky = true
			break
		}
	}

	n := len(p.States[0][0])
	states := make([][]scenario.Vector, len(c.xvaTimes))
	for i := range c.xvaTimes {
		pi := p.RelevantPathIndex[i]
		if pi < 0 || pi >= len(p.States) {
			return regression.Paths{}, 0, false, fmt.Errorf("%w: relevant path index %d outside %d rows", ErrConfiguration, pi, len(p.States))
		}
		row := p.States[pi]
		states[i] = make([]scenario.Vector, len(c.externalModelIndices))
		for j, ext := range c.externalModelIndices {
			if ext >= len(row) {
				return regression.Paths{}, 0, false, fmt.Errorf("%w: external factor %d outside %d factors", ErrConfiguration, ext, len(row))
			}
			if len(row[ext]) != n {
				return regression.Paths{}, 0, false, fmt.Errorf("%w: factor %d has %d samples, want %d", ErrConfiguration, ext, len(row[ext]), n)
			}
			states[i][j] = row[ext]
		}
	}
	return regression.Paths{Times: c.xvaTimes, States: states}, n, sticky, nil
}

func (c *CallableBondCalculator) priorDecisions(prior *ExerciseDecisions, n int) (*ExerciseDecisions, error) {
	if prior == nil {
		return nil, fmt.Errorf("%w: sticky run without prior exercise decisions", ErrConfiguration)
	}
	if len(prior.Call) != len(c.exercises) || len(prior.Put) != len(c.exercises) {
		return nil, fmt.Errorf("%w: prior decisions cover %d/%d exercise times, want %d", ErrConfiguration, len(prior.Call), len(prior.Put), len(c.exercises))
	}
	out := &ExerciseDecisions{Times: c.ExerciseTimes(), Call: make([]scenario.Filter, len(c.exercises)), Put: make([]scenario.Filter, len(c.exercises))}
	for e := range c.exercises {
		for _, side := range []struct {
			in  scenario.Filter
			out *scenario.Filter
		}{{prior.Call[e], &out.Call[e]}, {prior.Put[e], &out.Put[e]}} {
			switch len(side.in) {
			case 0:
				*side.out = scenario.ConstFilter(n, false)
			case n:
				*side.out = side.in
			default:
				return nil, fmt.Errorf("%w: prior decisions have %d samples, want %d", ErrConfiguration, len(side.in), n)
			}
		}
	}
	return out, nil
}
