// Package amc prices callable and putable bonds by least-squares Monte Carlo
// and produces a calculator that replays the trained exercise policy on
// externally simulated paths.
package amc

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/metrics"
	"github.com/meenmo/amc/model"
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/regression"
	"github.com/meenmo/amc/scenario"
	"github.com/meenmo/amc/utils"
)

// Engine prices callable bonds on a cross asset model. An Engine holds no
// per-calculation state and may be shared between goroutines.
type Engine struct {
	today    time.Time
	model    *model.CrossAsset
	market   Market
	cfg      Config
	toTime   utils.TimeFunc
	external []int
	log      zerolog.Logger
	recorder *metrics.Recorder
}

// NewEngine validates the configuration against the model. The model needs
// one or two IR components; the first is the bond currency.
func NewEngine(today time.Time, m *model.CrossAsset, market Market, cfg Config, opts ...Option) (*Engine, error) {
	if m == nil {
		return nil, fmt.Errorf("NewEngine: %w: model is required", ErrConfiguration)
	}
	if n := m.Components(model.IR); n < 1 || n > 2 {
		return nil, fmt.Errorf("NewEngine: %w: model needs one or two IR components, got %d", ErrModelMismatch, n)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("NewEngine: %w", err)
	}
	if err := market.validate(); err != nil {
		return nil, fmt.Errorf("NewEngine: %w", err)
	}

	external := cfg.ExternalModelIndices
	if len(external) == 0 {
		external = make([]int, m.Dimension())
		for i := range external {
			external[i] = i
		}
	}
	if len(external) != m.Dimension() {
		return nil, fmt.Errorf("NewEngine: %w: %d external model indices for model dimension %d", ErrConfiguration, len(external), m.Dimension())
	}
	for _, i := range external {
		if i < 0 {
			return nil, fmt.Errorf("NewEngine: %w: negative external model index %d", ErrConfiguration, i)
		}
	}

	e := &Engine{
		today:    today,
		model:    m,
		market:   market,
		cfg:      cfg,
		toTime:   utils.ModelTime(today),
		external: append([]int(nil), external...),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// effectiveCurves returns the discount and income curves the bond is valued
// on. A simulated credit component replaces the credit curve in discounting.
func (e *Engine) effectiveCurves() (discount, income curve.YieldCurve) {
	ref := e.market.Reference
	if ref == nil {
		ref = e.model.IRModel(0).Curve
	}
	credit := e.market.Credit
	if credit == nil || e.model.Components(model.CR) > 0 {
		credit = curve.FlatHazard{}
	}
	income = e.market.Income
	if income == nil {
		income = ref
	}
	if e.cfg.SpreadOnIncome && e.market.DiscountingSpread != 0 {
		income = curve.ZeroSpreaded{Base: income, Spread: e.market.DiscountingSpread}
	}
	discount = curve.EffectiveBondDiscount{
		Reference: ref,
		Credit:    credit,
		Spread:    e.market.DiscountingSpread,
		Recovery:  e.market.RecoveryRate,
	}
	return discount, income
}

func (e *Engine) layout() regression.StateLayout {
	return regression.StateLayout{
		Dimension: e.model.Dimension(),
		IR:        e.model.Indices(model.IR),
		FX:        e.model.Indices(model.FX),
		EQ:        e.model.Indices(model.EQ),
	}
}

// Calculate prices b. Timings and regression counts are added to stats,
// which may be nil.
func (e *Engine) Calculate(ctx context.Context, stats *metrics.Stats, b *bond.CallableBond) (*Result, error) {
	run := metrics.NewStats()
	res, err := e.calculate(ctx, run, b)
	stats.Add(run)
	e.recorder.Observe(run)
	e.recorder.RecordCalculation(err)
	if err != nil {
		e.log.Error().Err(err).Msg("calculation failed")
		return nil, err
	}
	return res, nil
}

func (e *Engine) calculate(ctx context.Context, stats *metrics.Stats, b *bond.CallableBond) (*Result, error) {
	stopOther := stats.Track(metrics.PhaseOther)
	if err := b.Validate(); err != nil {
		stopOther()
		return nil, fmt.Errorf("Calculate: %w: %w", ErrConfiguration, err)
	}
	if dom := e.model.Currencies()[0]; b.Currency != dom {
		stopOther()
		return nil, fmt.Errorf("Calculate: %w: bond currency %s differs from model currency %s", ErrModelMismatch, b.Currency, dom)
	}

	discount, income := e.effectiveCurves()
	infos, sched, err := e.plan(b)
	if err != nil {
		stopOther()
		return nil, fmt.Errorf("Calculate: %w", err)
	}
	accrual := bond.NewNotionalAccrual(e.toTime, b.Cashflows, func(cf bond.Cashflow) float64 {
		return couponAmount(cf, e.model, b.PayCurrency(cf), e.toTime)
	})
	reqs := make([]regression.Requirement, len(infos))
	for i, c := range infos {
		reqs[i] = c.requirement()
	}
	in := &induction{
		model:     e.model,
		cfg:       e.cfg,
		sched:     sched,
		cashflows: infos,
		reqs:      reqs,
		accrual:   accrual,
		discount:  discount,
		recovery:  e.market.RecoveryRate,
		layout:    e.layout(),
		stats:     stats,
	}
	stopOther()
	e.log.Debug().
		Int("cashflows", len(infos)).
		Int("exerciseTimes", len(sched.exercises)).
		Int("exposureTimes", len(sched.xvaTimes)).
		Int("simulationTimes", len(sched.simulationTimes)).
		Msg("schedule built")

	stopPath := stats.Track(metrics.PhasePath)
	paths, err := e.generate(ctx, stats, sched.simulationTimes, sched.simulationTimes, e.cfg.calibrationPaths())
	var closeOut *regression.Paths
	if err == nil {
		if lagged := sched.laggedTimes(); lagged != nil {
			var co regression.Paths
			co, err = e.generate(ctx, stats, sched.simulationTimes, lagged, e.cfg.closeOutPaths())
			closeOut = &co
		}
	}
	stopPath()
	if err != nil {
		return nil, fmt.Errorf("Calculate: %w", err)
	}

	stopCalc := stats.Track(metrics.PhaseCalc)
	set, und, opt, err := in.calculateModels(ctx, paths)
	if err != nil {
		stopCalc()
		return nil, fmt.Errorf("Calculate: %w", err)
	}
	closeOutSet := set
	if closeOut != nil {
		if closeOutSet, _, _, err = in.calculateModels(ctx, *closeOut); err != nil {
			stopCalc()
			return nil, fmt.Errorf("Calculate: close-out grid: %w", err)
		}
	}

	n0 := e.model.IRModel(0).Numeraire(0, scenario.Vector{0}, discount)[0]
	res := &Result{
		UnderlyingNPV: und.Mean() * n0,
		OptionNPV:     opt.Mean() * n0,
	}
	res.NPV = res.UnderlyingNPV + res.OptionNPV
	settle := b.SettlementDate
	if settle.IsZero() {
		settle = e.today
	}
	ts := e.toTime(settle)
	res.UnderlyingSettlementValue = res.UnderlyingNPV / income.Discount(ts)
	res.SettlementValue = res.NPV / income.Discount(ts)
	stopCalc()

	if e.cfg.PricingSamples > 0 {
		stopPath := stats.Track(metrics.PhasePath)
		pricing, err := e.generate(ctx, stats, sched.simulationTimes, sched.simulationTimes, e.cfg.pricingPaths())
		stopPath()
		if err != nil {
			return nil, fmt.Errorf("Calculate: pricing run: %w", err)
		}
		stopCalc := stats.Track(metrics.PhaseCalc)
		v, err := in.priceForward(ctx, set, pricing)
		stopCalc()
		if err != nil {
			return nil, fmt.Errorf("Calculate: pricing run: %w", err)
		}
		res.pricingRunNPV = v.Mean() * n0
		res.pricingRunStdError = v.StdErr() * n0
		res.hasPricingRun = true
	}

	stopOther = stats.Track(metrics.PhaseOther)
	defer stopOther()
	res.Calculator = newCalculator(b.Currency, e.external, sched, [2]*modelSet{set, closeOutSet}, res.NPV,
		e.model.InitialState(), e.cfg.ReevaluateExerciseInStickyRun, e.cfg.IncludeTodaysCashflows)

	if e.cfg.GenerateAdditionalResults {
		res.Additional = additionalResults(res, sched, accrual, infos, und, scenario.Add(und, opt), n0)
	}
	e.log.Debug().
		Float64("underlyingNpv", res.UnderlyingNPV).
		Float64("optionNpv", res.OptionNPV).
		Float64("npv", res.NPV).
		Msg("calculation done")
	return res, nil
}

// plan builds the live cashflow records of b and the time sets they are
// simulated on.
func (e *Engine) plan(b *bond.CallableBond) ([]CashflowInfo, *schedule, error) {
	var infos []CashflowInfo
	for _, cf := range liveCashflows(b, e.today, e.cfg.IncludeTodaysCashflows) {
		info, err := buildCashflowInfo(cf, b, e.model, e.toTime)
		if err != nil {
			return nil, nil, err
		}
		infos = append(infos, info)
	}
	exercises, err := exerciseSchedule(e.today, b, e.cfg.AmericanExerciseTimeStepsPerYear)
	if err != nil {
		return nil, nil, err
	}
	sched := newSchedule(exercises, infos, e.cfg.SimulationDates, e.cfg.StickyCloseOutDates, e.toTime, e.cfg.RecalibrateOnStickyCloseOutDates)
	if len(sched.simulationTimes) == 0 {
		return nil, nil, fmt.Errorf("%w: no simulation times", ErrInternalConsistency)
	}
	return infos, sched, nil
}

// generate simulates the model on simTimes and returns paths labelled by
// labels, which must have the same length. Entries of simTimes may repeat.
func (e *Engine) generate(ctx context.Context, stats *metrics.Stats, labels utils.TimeSet, simTimes []float64, cfg montecarlo.Config) (regression.Paths, error) {
	batch, err := montecarlo.Generate(ctx, e.model, simTimes, cfg)
	if err != nil {
		return regression.Paths{}, err
	}
	stats.RecordPaths(cfg.Samples)
	states := make([][]scenario.Vector, len(labels))
	for i, t := range simTimes {
		j, ok := batch.Times.Index(t)
		if !ok {
			return regression.Paths{}, fmt.Errorf("%w: simulated time %v missing from path batch", ErrInternalConsistency, t)
		}
		states[i] = batch.Values[j]
	}
	return regression.Paths{Times: labels, States: states}, nil
}
