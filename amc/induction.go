package amc

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/metrics"
	"github.com/meenmo/amc/model"
	"github.com/meenmo/amc/regression"
	"github.com/meenmo/amc/scenario"
	"github.com/meenmo/amc/utils"
)

// modelSet holds the regressions trained on one path grid, indexed like the
// exercise-or-exposure times. Entries of the call and put slices are nil at
// times without the corresponding event.
type modelSet struct {
	undDirty     []*regression.Model
	contCall     []*regression.Model
	contPut      []*regression.Model
	option       []*regression.Model
	callExercise []*regression.Model
	putExercise  []*regression.Model
}

func newModelSet(n int) *modelSet {
	return &modelSet{
		undDirty:     make([]*regression.Model, n),
		contCall:     make([]*regression.Model, n),
		contPut:      make([]*regression.Model, n),
		option:       make([]*regression.Model, n),
		callExercise: make([]*regression.Model, n),
		putExercise:  make([]*regression.Model, n),
	}
}

// induction is the backward pass of one calculation over a fixed schedule.
type induction struct {
	model     *model.CrossAsset
	cfg       Config
	sched     *schedule
	cashflows []CashflowInfo
	reqs      []regression.Requirement
	accrual   *bond.NotionalAccrual
	discount  curve.YieldCurve
	recovery  float64
	layout    regression.StateLayout
	stats     *metrics.Stats
}

func (in *induction) tolerance() float64 {
	if in.cfg.IncludeTodaysCashflows {
		return utils.TinyTime
	}
	return 0
}

// isUnderlying reports whether a cashflow paying at payTime is part of the
// underlying as seen from t.
func (in *induction) isUnderlying(payTime, t float64) bool {
	return payTime > t-in.tolerance()
}

func timeIndex(paths regression.Paths, t float64) (int, error) {
	i, ok := paths.Times.Index(t)
	if !ok {
		return 0, fmt.Errorf("%w: time %v not found in simulation times", ErrInternalConsistency, t)
	}
	return i, nil
}

func samples(paths regression.Paths) int { return len(paths.States[0][0]) }

// creditFactor is S(t)^(1-R) for the first credit component, or 1 without
// one. Scaling a survival probability by the loss given default in the
// exponent is an approximation of a recovery-adjusted default numeraire.
func (in *induction) creditFactor(paths regression.Paths, ti int, t float64) scenario.Vector {
	n := samples(paths)
	if in.model.Components(model.CR) == 0 {
		return scenario.Const(n, 1)
	}
	z := paths.States[ti][in.model.Index(model.CR, 0)]
	return scenario.Pow(in.model.Survival(0, t, z), 1-in.recovery)
}

func (in *induction) numeraire(paths regression.Paths, ti int, t float64) scenario.Vector {
	return in.model.Numeraire(t, paths.States[ti][in.model.Index(model.IR, 0)], in.discount)
}

// cashflowPathValue is the numeraire-deflated, FX-converted and credit
// discounted amount of cf on every scenario.
func (in *induction) cashflowPathValue(cf CashflowInfo, paths regression.Paths) (scenario.Vector, error) {
	n := samples(paths)
	pay, err := timeIndex(paths, cf.PayTime)
	if err != nil {
		return nil, fmt.Errorf("cashflowPathValue: %w", err)
	}
	x0 := in.model.InitialState()
	states := make([][]scenario.Vector, len(cf.SimulationTimes))
	for i, st := range cf.SimulationTimes {
		states[i] = make([]scenario.Vector, len(cf.ModelIndices[i]))
		if st <= utils.TinyTime {
			for j, f := range cf.ModelIndices[i] {
				states[i][j] = scenario.Const(n, x0[f])
			}
			continue
		}
		si, err := timeIndex(paths, st)
		if err != nil {
			return nil, fmt.Errorf("cashflowPathValue: %w", err)
		}
		for j, f := range cf.ModelIndices[i] {
			states[i][j] = paths.States[si][f]
		}
	}

	amount := scenario.Div(cf.Amount(n, states), in.numeraire(paths, pay, cf.PayTime))
	if cf.PayCcyIndex > 0 {
		fx := paths.States[pay][in.model.Index(model.FX, cf.PayCcyIndex-1)]
		amount = scenario.Mul(amount, scenario.Exp(fx))
	}
	v := scenario.Mul(amount, in.creditFactor(paths, pay, cf.PayTime))
	if cf.Payer {
		v = scenario.Scale(-1, v)
	}
	return v, nil
}

func (in *induction) train(t float64, done []bool, regressand scenario.Vector, paths regression.Paths, filter scenario.Filter) (*regression.Model, error) {
	m, err := regression.NewModel(t, in.reqs, done, in.layout, in.cfg.regressionOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if err := m.Train(in.cfg.PolynomOrder, in.cfg.PolynomFamily, regressand, in.model.InitialState(), paths, filter); err != nil {
		if errors.Is(err, regression.ErrDegenerate) {
			return nil, fmt.Errorf("%w: %w", ErrNumericalDegeneracy, err)
		}
		return nil, err
	}
	in.stats.RecordRegression(m.IsZero())
	return m, nil
}

func (in *induction) apply(m *regression.Model, paths regression.Paths) (scenario.Vector, error) {
	v, err := m.Apply(in.model.InitialState(), paths)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternalConsistency, err)
	}
	return v, nil
}

// calculateModels runs the backward pass on paths and returns the trained
// models together with the deflated underlying and option path values.
func (in *induction) calculateModels(ctx context.Context, paths regression.Paths) (*modelSet, scenario.Vector, scenario.Vector, error) {
	var (
		times = in.sched.exerciseXvaTimes
		n     = samples(paths)
		set   = newModelSet(len(times))
		done  = make([]bool, len(in.cashflows))
		und   = scenario.Zeros(n)
		opt   = scenario.Zeros(n)
	)

	for c := len(times) - 1; c >= 0; c-- {
		if err := ctx.Err(); err != nil {
			return nil, nil, nil, err
		}
		t := times[c]
		for i, cf := range in.cashflows {
			if done[i] || !in.isUnderlying(cf.PayTime, t) {
				continue
			}
			v, err := in.cashflowPathValue(cf, paths)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("calculateModels: %w", err)
			}
			und.AddInPlace(v)
			done[i] = true
		}

		ti, err := timeIndex(paths, t)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("calculateModels: %w", err)
		}
		survival := in.creditFactor(paths, ti, t)

		if set.undDirty[c], err = in.train(t, done, scenario.Div(und, survival), paths, nil); err != nil {
			return nil, nil, nil, fmt.Errorf("calculateModels: underlying at t=%v: %w", t, err)
		}

		if e, ok := in.sched.exerciseAt(t); ok {
			ex := in.sched.exercises[e]
			num := in.numeraire(paths, ti, t)
			underlying, err := in.apply(set.undDirty[c], paths)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("calculateModels: %w", err)
			}
			notional, accrual := in.accrual.Notional(t), in.accrual.Accrual(t)

			if ex.Call != nil {
				amount := scenario.Div(scenario.Const(n, ex.Call.Amount(notional, accrual)), num)
				if set.callExercise[c], err = in.train(t, done, scenario.Sub(amount, und), paths, nil); err != nil {
					return nil, nil, nil, fmt.Errorf("calculateModels: call exercise value at t=%v: %w", t, err)
				}
				exVal := scenario.Sub(amount, underlying)
				if set.contCall[c], err = in.train(t, done, scenario.Div(opt, survival), paths, scenario.LessThan(exVal, 0)); err != nil {
					return nil, nil, nil, fmt.Errorf("calculateModels: call continuation value at t=%v: %w", t, err)
				}
				cont, err := in.apply(set.contCall[c], paths)
				if err != nil {
					return nil, nil, nil, fmt.Errorf("calculateModels: %w", err)
				}
				f := scenario.Less(exVal, cont)
				if !in.sched.hasPuts {
					f = scenario.And(f, scenario.LessThan(exVal, 0))
				}
				opt = scenario.Select(f, scenario.Mul(exVal, survival), opt)
			}

			if ex.Put != nil {
				amount := scenario.Div(scenario.Const(n, ex.Put.Amount(notional, accrual)), num)
				if set.putExercise[c], err = in.train(t, done, scenario.Sub(amount, und), paths, nil); err != nil {
					return nil, nil, nil, fmt.Errorf("calculateModels: put exercise value at t=%v: %w", t, err)
				}
				exVal := scenario.Sub(amount, underlying)
				if set.contPut[c], err = in.train(t, done, scenario.Div(opt, survival), paths, scenario.GreaterThan(exVal, 0)); err != nil {
					return nil, nil, nil, fmt.Errorf("calculateModels: put continuation value at t=%v: %w", t, err)
				}
				cont, err := in.apply(set.contPut[c], paths)
				if err != nil {
					return nil, nil, nil, fmt.Errorf("calculateModels: %w", err)
				}
				f := scenario.Greater(exVal, cont)
				if !in.sched.hasCalls {
					f = scenario.And(f, scenario.GreaterThan(exVal, 0))
				}
				opt = scenario.Select(f, scenario.Mul(exVal, survival), opt)
			}
		}

		if set.option[c], err = in.train(t, done, scenario.Div(opt, survival), paths, nil); err != nil {
			return nil, nil, nil, fmt.Errorf("calculateModels: option value at t=%v: %w", t, err)
		}
	}

	// cashflows paid before the first exercise or exposure time
	for i, cf := range in.cashflows {
		if done[i] {
			continue
		}
		v, err := in.cashflowPathValue(cf, paths)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("calculateModels: %w", err)
		}
		und.AddInPlace(v)
	}
	return set, und, opt, nil
}

// priceForward applies the trained exercise policy of set forward in time on
// an independent batch and returns the deflated realised value per scenario.
func (in *induction) priceForward(ctx context.Context, set *modelSet, paths regression.Paths) (scenario.Vector, error) {
	n := samples(paths)
	exercised := scenario.ConstFilter(n, false)
	exerciseTime := scenario.Const(n, math.Inf(1))
	payment := scenario.Zeros(n)

	for _, ex := range in.sched.exercises {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t := ex.Time
		c, ok := in.sched.exerciseXvaTimes.Index(t)
		if !ok {
			return nil, fmt.Errorf("priceForward: %w: exercise time %v not found", ErrInternalConsistency, t)
		}
		ti, err := timeIndex(paths, t)
		if err != nil {
			return nil, fmt.Errorf("priceForward: %w", err)
		}
		survival := in.creditFactor(paths, ti, t)
		num := in.numeraire(paths, ti, t)
		underlying, err := in.apply(set.undDirty[c], paths)
		if err != nil {
			return nil, fmt.Errorf("priceForward: %w", err)
		}
		notional, accrual := in.accrual.Notional(t), in.accrual.Accrual(t)

		callF, putF := scenario.ConstFilter(n, false), scenario.ConstFilter(n, false)
		var callPay, putPay scenario.Vector
		if ex.Call != nil {
			amount := scenario.Div(scenario.Const(n, ex.Call.Amount(notional, accrual)), num)
			exVal := scenario.Sub(amount, underlying)
			cont, err := in.apply(set.contCall[c], paths)
			if err != nil {
				return nil, fmt.Errorf("priceForward: %w", err)
			}
			callF = scenario.Less(exVal, cont)
			if !in.sched.hasPuts {
				callF = scenario.And(callF, scenario.LessThan(exVal, 0))
			}
			callPay = scenario.Mul(amount, survival)
		}
		if ex.Put != nil {
			amount := scenario.Div(scenario.Const(n, ex.Put.Amount(notional, accrual)), num)
			exVal := scenario.Sub(amount, underlying)
			cont, err := in.apply(set.contPut[c], paths)
			if err != nil {
				return nil, fmt.Errorf("priceForward: %w", err)
			}
			putF = scenario.Greater(exVal, cont)
			if !in.sched.hasCalls {
				putF = scenario.And(putF, scenario.GreaterThan(exVal, 0))
			}
			putPay = scenario.Mul(amount, survival)
		}

		alive := scenario.Not(exercised)
		callF = scenario.And(scenario.And(callF, scenario.Not(putF)), alive)
		putF = scenario.And(putF, alive)
		if callPay != nil {
			payment = scenario.Select(callF, callPay, payment)
		}
		if putPay != nil {
			payment = scenario.Select(putF, putPay, payment)
		}
		now := scenario.Or(callF, putF)
		exerciseTime = scenario.Select(now, scenario.Const(n, t), exerciseTime)
		exercised = scenario.Or(exercised, now)
	}

	value := payment
	for _, cf := range in.cashflows {
		v, err := in.cashflowPathValue(cf, paths)
		if err != nil {
			return nil, fmt.Errorf("priceForward: %w", err)
		}
		for k := range value {
			if !exercised[k] || !in.isUnderlying(cf.PayTime, exerciseTime[k]) {
				value[k] += v[k]
			}
		}
	}
	return value, nil
}
