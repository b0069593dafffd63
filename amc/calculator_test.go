package amc

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/meenmo/amc/internal/wire"
	"github.com/meenmo/amc/metrics"
	"github.com/meenmo/amc/model"
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/scenario"
)

// replayPath simulates m on the exposure times of c with an independent seed.
func replayPath(t *testing.T, m *model.CrossAsset, c *CallableBondCalculator, samples int) Path {
	t.Helper()
	times := c.ExposureTimes()
	batch, err := montecarlo.Generate(context.Background(), m, times, montecarlo.Config{
		Sequence: montecarlo.MersenneTwister,
		Seed:     7,
		Samples:  samples,
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	p := Path{Times: times, States: batch.Values}
	for i := range times {
		p.RelevantPathIndex = append(p.RelevantPathIndex, i)
		p.RelevantTimeIndex = append(p.RelevantTimeIndex, i)
	}
	return p
}

func trainedCalculator(t *testing.T, cfg Config, call, put bool) (*model.CrossAsset, *Result, *CallableBondCalculator) {
	t.Helper()
	m := testModel(t, 0.01)
	cfg.SimulationDates = exposureDates()
	coupon := 0.05
	if put && !call {
		coupon = 0.01
	}
	res := calculate(t, m, Market{}, cfg, testBond(t, coupon, call, put))
	c, ok := res.Calculator.(*CallableBondCalculator)
	if !ok {
		t.Fatalf("calculator is %T", res.Calculator)
	}
	return m, res, c
}

func TestEvaluateStartsWithNPV(t *testing.T) {
	t.Parallel()

	m, res, c := trainedCalculator(t, testConfig(2048), true, false)
	if c.Currency() != "EUR" {
		t.Fatalf("currency = %q", c.Currency())
	}
	if got := len(c.ExposureTimes()); got != len(exposureDates()) {
		t.Fatalf("%d exposure times, want %d", got, len(exposureDates()))
	}
	p := replayPath(t, m, c, 500)
	ev, err := c.Evaluate(p)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if len(ev.Values) != len(p.RelevantPathIndex)+1 {
		t.Fatalf("%d values, want %d", len(ev.Values), len(p.RelevantPathIndex)+1)
	}
	for k, v := range ev.Values[0] {
		if v != res.NPV {
			t.Fatalf("values[0][%d] = %v, want NPV %v", k, v, res.NPV)
		}
	}
	// the first exposure precedes any call: the bond is alive and worth more than par
	if mean := ev.Values[1].Mean(); mean < 95 || mean > 115 {
		t.Fatalf("mean exposure at 6M = %v", mean)
	}
}

func TestEvaluateExercisesAtMostOnce(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name      string
		call, put bool
	}{{"call", true, false}, {"put", false, true}, {"call and put", true, true}} {
		m, _, c := trainedCalculator(t, testConfig(1024), tc.call, tc.put)
		p := replayPath(t, m, c, 400)
		ev, err := c.Evaluate(p)
		if err != nil {
			t.Fatalf("%s: Evaluate: %v", tc.name, err)
		}
		d := ev.Decisions
		if d == nil || len(d.Call) != len(c.ExerciseTimes()) {
			t.Fatalf("%s: missing decisions", tc.name)
		}
		exercised := 0
		for k := 0; k < 400; k++ {
			count := 0
			for e := range d.Times {
				if d.Call[e][k] {
					count++
				}
				if d.Put[e][k] {
					count++
				}
			}
			if count > 1 {
				t.Fatalf("%s: scenario %d exercised %d times", tc.name, k, count)
			}
			exercised += count
		}
		if exercised == 0 {
			t.Fatalf("%s: no scenario exercised", tc.name)
		}
	}
}

func TestEvaluateCalibrationBatchReproducesNPV(t *testing.T) {
	t.Parallel()

	m := testModel(t, 0.01)
	for _, tc := range []struct {
		name      string
		coupon    float64
		call, put bool
	}{
		{"straight", 0.05, false, false},
		{"call", 0.05, true, false},
		{"put", 0.01, false, true},
		{"call and put", 0.03, true, true},
	} {
		cfg := testConfig(1024)
		cfg.SimulationDates = exposureDates()
		e, err := NewEngine(testToday, m, Market{}, cfg)
		if err != nil {
			t.Fatalf("%s: NewEngine: %v", tc.name, err)
		}
		b := testBond(t, tc.coupon, tc.call, tc.put)
		res, err := e.Calculate(context.Background(), nil, b)
		if err != nil {
			t.Fatalf("%s: Calculate: %v", tc.name, err)
		}

		_, sched, err := e.plan(b)
		if err != nil {
			t.Fatalf("%s: plan: %v", tc.name, err)
		}
		batch, err := e.generate(context.Background(), metrics.NewStats(), sched.simulationTimes, sched.simulationTimes, cfg.calibrationPaths())
		if err != nil {
			t.Fatalf("%s: generate: %v", tc.name, err)
		}
		p := Path{Times: batch.Times, States: batch.States}
		for _, x := range sched.xvaTimes {
			i, ok := batch.Times.Index(x)
			if !ok {
				t.Fatalf("%s: exposure time %v not simulated", tc.name, x)
			}
			p.RelevantPathIndex = append(p.RelevantPathIndex, i)
			p.RelevantTimeIndex = append(p.RelevantTimeIndex, i)
		}

		ev, err := res.Calculator.Evaluate(p)
		if err != nil {
			t.Fatalf("%s: Evaluate: %v", tc.name, err)
		}
		// nothing is paid before the first exposure date, so the regressed
		// value there averages back to the NPV on the training paths
		if got := ev.Values[1].Mean(); math.Abs(got-res.NPV) > 1e-10 {
			t.Fatalf("%s: mean value at 6M = %v, NPV %v", tc.name, got, res.NPV)
		}
	}
}

func TestEvaluateRoundTrip(t *testing.T) {
	t.Parallel()

	m, _, c := trainedCalculator(t, testConfig(1024), true, false)
	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := DecodeCalculator(data)
	if err != nil {
		t.Fatalf("DecodeCalculator: %v", err)
	}
	var direct CallableBondCalculator
	if err := direct.UnmarshalBinary(data); err != nil {
		t.Fatalf("UnmarshalBinary: %v", err)
	}

	p := replayPath(t, m, c, 300)
	want, err := c.Evaluate(p)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	for _, calc := range []Calculator{decoded, &direct} {
		got, err := calc.Evaluate(p)
		if err != nil {
			t.Fatalf("Evaluate decoded: %v", err)
		}
		for i := range want.Values {
			for k := range want.Values[i] {
				if got.Values[i][k] != want.Values[i][k] {
					t.Fatalf("value [%d][%d] = %v, want %v", i, k, got.Values[i][k], want.Values[i][k])
				}
			}
		}
	}
	again, err := decoded.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary decoded: %v", err)
	}
	if string(again) != string(data) {
		t.Fatalf("re-encoding differs")
	}
}

func TestDecodeRejectsNewerSchema(t *testing.T) {
	t.Parallel()

	var env wire.Builder
	env.Uint(envVersion, schemaVersion+1)
	env.String(envKind, kindCallableBond)
	if _, err := DecodeCalculator(env.Bytes()); !errors.Is(err, ErrIncompatibleVersion) {
		t.Fatalf("got %v, want ErrIncompatibleVersion", err)
	}

	var unversioned wire.Builder
	unversioned.String(envKind, kindCallableBond)
	if _, err := DecodeCalculator(unversioned.Bytes()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}

	var other wire.Builder
	other.Uint(envVersion, schemaVersion)
	other.String(envKind, "Swaption")
	if _, err := DecodeCalculator(other.Bytes()); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
}

func TestStickyRunReusesPriorDecisions(t *testing.T) {
	t.Parallel()

	m, _, c := trainedCalculator(t, testConfig(1024), true, false)
	p := replayPath(t, m, c, 200)
	base, err := c.Evaluate(p)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	sticky := p
	sticky.RelevantPathIndex = append([]int(nil), p.RelevantPathIndex...)
	for i := 1; i < len(sticky.RelevantPathIndex); i++ {
		sticky.RelevantPathIndex[i] = i - 1
	}
	if _, err := c.Evaluate(sticky); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("sticky run without prior: got %v, want ErrConfiguration", err)
	}

	sticky.Prior = base.Decisions
	ev, err := c.Evaluate(sticky)
	if err != nil {
		t.Fatalf("Evaluate sticky: %v", err)
	}
	for e := range base.Decisions.Times {
		for k := range base.Decisions.Call[e] {
			if ev.Decisions.Call[e][k] != base.Decisions.Call[e][k] {
				t.Fatalf("decision %d/%d changed in sticky run", e, k)
			}
		}
	}

	short := sticky
	short.Prior = &ExerciseDecisions{Call: base.Decisions.Call[:1], Put: base.Decisions.Put[:1]}
	if _, err := c.Evaluate(short); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("short prior: got %v, want ErrConfiguration", err)
	}
}

func TestStickyRunReevaluatesWhenConfigured(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1024)
	cfg.ReevaluateExerciseInStickyRun = true
	m, _, c := trainedCalculator(t, cfg, true, false)
	p := replayPath(t, m, c, 200)
	for i := 1; i < len(p.RelevantPathIndex); i++ {
		p.RelevantPathIndex[i] = i - 1
	}
	ev, err := c.Evaluate(p)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Decisions == nil {
		t.Fatalf("no decisions")
	}
}

func TestCloseOutRecalibration(t *testing.T) {
	t.Parallel()

	cfg := testConfig(1024)
	cfg.SimulationDates = exposureDates()
	for _, d := range cfg.SimulationDates {
		cfg.StickyCloseOutDates = append(cfg.StickyCloseOutDates, d.AddDate(0, 0, 14))
	}
	cfg.RecalibrateOnStickyCloseOutDates = true
	cfg.ReevaluateExerciseInStickyRun = true
	m := testModel(t, 0.01)
	res := calculate(t, m, Market{}, cfg, testBond(t, 0.05, true, false))
	c := res.Calculator.(*CallableBondCalculator)
	if c.models[0] == c.models[1] {
		t.Fatalf("close-out models not recalibrated")
	}
	data, err := c.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	decoded, err := DecodeCalculator(data)
	if err != nil {
		t.Fatalf("DecodeCalculator: %v", err)
	}

	p := replayPath(t, m, c, 100)
	for i := 1; i < len(p.RelevantPathIndex); i++ {
		p.RelevantPathIndex[i] = i - 1
	}
	want, err := c.Evaluate(p)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	got, err := decoded.Evaluate(p)
	if err != nil {
		t.Fatalf("Evaluate decoded: %v", err)
	}
	for i := range want.Values {
		for k := range want.Values[i] {
			if got.Values[i][k] != want.Values[i][k] {
				t.Fatalf("value [%d][%d] = %v, want %v", i, k, got.Values[i][k], want.Values[i][k])
			}
		}
	}
}

func TestEvaluateStraightBondFollowsUnderlying(t *testing.T) {
	t.Parallel()

	m := testModel(t, 0.001)
	cfg := testConfig(1024)
	cfg.SimulationDates = exposureDates()
	b := testBond(t, 0.05, false, false)
	res := calculate(t, m, Market{}, cfg, b)
	c := res.Calculator.(*CallableBondCalculator)
	p := replayPath(t, m, c, 50)
	ev, err := c.Evaluate(p)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if ev.Decisions != nil {
		t.Fatalf("straight bond produced decisions")
	}
	// nothing is paid before the first coupon at 1Y, so the deflated value at
	// 6M averages back to the NPV
	if got := ev.Values[1].Mean(); math.Abs(got-res.NPV) > 0.5 {
		t.Fatalf("exposure at 6M = %v, NPV %v", got, res.NPV)
	}
}

func TestEvaluateRejectsMalformedPaths(t *testing.T) {
	t.Parallel()

	m, _, c := trainedCalculator(t, testConfig(256), true, false)
	good := replayPath(t, m, c, 10)
	for name, mutate := range map[string]func(*Path){
		"no states":     func(p *Path) { p.States = nil },
		"short indices": func(p *Path) { p.RelevantPathIndex = p.RelevantPathIndex[:1]; p.RelevantTimeIndex = p.RelevantTimeIndex[:1] },
		"time index":    func(p *Path) { p.RelevantTimeIndex = p.RelevantTimeIndex[1:] },
		"row":           func(p *Path) { p.RelevantPathIndex = append([]int{99}, p.RelevantPathIndex[1:]...) },
		"samples": func(p *Path) {
			p.States = append([][]scenario.Vector(nil), p.States...)
			p.States[0] = []scenario.Vector{scenario.Zeros(3)}
		},
	} {
		p := good
		mutate(&p)
		if _, err := c.Evaluate(p); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: got %v, want ErrConfiguration", name, err)
		}
	}
}
