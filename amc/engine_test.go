package amc

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/instruments/bonds"
	"github.com/meenmo/amc/metrics"
	"github.com/meenmo/amc/model"
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/utils"
)

var testToday = time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

func testModel(t *testing.T, sigma float64) *model.CrossAsset {
	t.Helper()
	m, err := model.NewCrossAsset([]model.LGM{{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.03}, Sigma: sigma}}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewCrossAsset: %v", err)
	}
	return m
}

func testConfig(samples int) Config {
	cfg := DefaultConfig()
	cfg.CalibrationSamples = samples
	cfg.PolynomOrder = 2
	return cfg
}

// testBond is a 5Y annual 5% bond on 100, callable at par from year two
// when call is set and putable at par from year two when put is set.
func testBond(t *testing.T, coupon float64, call, put bool) *bond.CallableBond {
	t.Helper()
	p := bonds.FixedRateParams{
		Currency:     "EUR",
		IssueDate:    testToday,
		MaturityDate: testToday.AddDate(5, 0, 0),
		Frequency:    1,
		Coupon:       coupon,
		Notional:     100,
	}
	if call {
		p.Call = &bonds.Schedule{First: testToday.AddDate(2, 0, 0), Price: 1}
	}
	if put {
		p.Put = &bonds.Schedule{First: testToday.AddDate(2, 0, 0), Price: 1}
	}
	b, err := bonds.FixedRate(p)
	if err != nil {
		t.Fatalf("FixedRate: %v", err)
	}
	return b
}

func exposureDates() []time.Time {
	var out []time.Time
	for m := 6; m < 60; m += 6 {
		out = append(out, testToday.AddDate(0, m, 0))
	}
	return out
}

func calculate(t *testing.T, m *model.CrossAsset, market Market, cfg Config, b *bond.CallableBond) *Result {
	t.Helper()
	e, err := NewEngine(testToday, m, market, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	res, err := e.Calculate(context.Background(), nil, b)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	return res
}

func discountedCashflows(b *bond.CallableBond, d curve.YieldCurve) float64 {
	toTime := utils.ModelTime(testToday)
	v := 0.0
	for _, cf := range b.Cashflows {
		v += cf.Amount() * d.Discount(toTime(cf.Date))
	}
	return v
}

func TestCalculateStraightBondMatchesDiscountedCashflows(t *testing.T) {
	t.Parallel()

	b := testBond(t, 0.05, false, false)
	res := calculate(t, testModel(t, 0.001), Market{}, testConfig(2048), b)

	want := discountedCashflows(b, curve.FlatForward{Rate: 0.03})
	if math.Abs(res.NPV-want) > 0.02 {
		t.Fatalf("NPV = %v, want %v", res.NPV, want)
	}
	if res.OptionNPV != 0 {
		t.Fatalf("option NPV = %v, want 0", res.OptionNPV)
	}
	if res.SettlementValue != res.NPV {
		t.Fatalf("settlement value %v differs from NPV %v on the valuation date", res.SettlementValue, res.NPV)
	}
}

func TestCalculateDiscountsOnRiskyCurve(t *testing.T) {
	t.Parallel()

	b := testBond(t, 0.05, false, false)
	market := Market{Credit: curve.FlatHazard{Rate: 0.02}, RecoveryRate: 0.4, DiscountingSpread: 0.001}
	res := calculate(t, testModel(t, 0.001), market, testConfig(2048), b)

	want := discountedCashflows(b, curve.EffectiveBondDiscount{
		Reference: curve.FlatForward{Rate: 0.03}, Credit: market.Credit, Spread: 0.001, Recovery: 0.4,
	})
	if math.Abs(res.NPV-want) > 0.02 {
		t.Fatalf("NPV = %v, want %v", res.NPV, want)
	}
}

func TestFullRecoveryIgnoresCredit(t *testing.T) {
	t.Parallel()

	b := testBond(t, 0.05, true, false)
	m := testModel(t, 0.01)
	riskFree := calculate(t, m, Market{}, testConfig(1024), b)
	risky := calculate(t, m, Market{Credit: curve.FlatHazard{Rate: 0.05}, RecoveryRate: 1}, testConfig(1024), b)
	if math.Abs(risky.NPV-riskFree.NPV) > 1e-10 {
		t.Fatalf("NPV with full recovery %v, without credit %v", risky.NPV, riskFree.NPV)
	}
}

func TestSimulatedCreditMatchesCurveCredit(t *testing.T) {
	t.Parallel()

	hazard := curve.FlatHazard{Rate: 0.02}
	market := Market{RecoveryRate: 0.4}
	ir := []model.LGM{{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.03}, Sigma: 0.005}}
	simulated, err := model.NewCrossAsset(ir, nil, nil, []model.CRComponent{{Name: "ISSUER", Curve: hazard}}, nil)
	if err != nil {
		t.Fatalf("NewCrossAsset: %v", err)
	}
	b := testBond(t, 0.05, true, false)
	cfg := testConfig(4096)

	// without volatility the credit factor is a constant regressor and the
	// singular basis is reported, not retried
	e, err := NewEngine(testToday, simulated, market, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if _, err := e.Calculate(context.Background(), nil, b); !errors.Is(err, ErrNumericalDegeneracy) {
		t.Fatalf("constant credit regressor: got %v, want ErrNumericalDegeneracy", err)
	}

	cfg.RegressionVarianceCutoff = 0.999999
	got := calculate(t, simulated, market, cfg, b)
	want := calculate(t, testModel(t, 0.005), Market{Credit: hazard, RecoveryRate: 0.4}, cfg, b)
	if math.Abs(got.NPV-want.NPV) > 0.05 {
		t.Fatalf("simulated credit NPV %v, curve credit NPV %v", got.NPV, want.NPV)
	}
	riskFree := calculate(t, testModel(t, 0.005), Market{}, cfg, b)
	if got.UnderlyingNPV >= riskFree.UnderlyingNPV-1 {
		t.Fatalf("risky underlying %v not below risk free %v", got.UnderlyingNPV, riskFree.UnderlyingNPV)
	}
}

func TestForeignCashflowConvertsAtSpot(t *testing.T) {
	t.Parallel()

	eur, usd := curve.FlatForward{Rate: 0.03}, curve.FlatForward{Rate: 0.04}
	m, err := model.NewCrossAsset(
		[]model.LGM{{Currency: "EUR", Curve: eur, Sigma: 0.001}, {Currency: "USD", Curve: usd, Sigma: 0.001}},
		[]model.FXComponent{{Foreign: 1, Spot: 0.9, Sigma: 0.1}}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewCrossAsset: %v", err)
	}
	b := testBond(t, 0.05, false, false)
	b.Cashflows[0].Currency = "USD"
	res := calculate(t, m, Market{}, testConfig(4096), b)

	foreign := b.Cashflows[0]
	domestic := &bond.CallableBond{Currency: "EUR", Cashflows: b.Cashflows[1:]}
	toTime := utils.ModelTime(testToday)
	want := discountedCashflows(domestic, eur) + 0.9*foreign.Amount()*usd.Discount(toTime(foreign.Date))
	if math.Abs(res.NPV-want) > 0.03 {
		t.Fatalf("NPV = %v, want %v", res.NPV, want)
	}
	if allDomestic := discountedCashflows(b, eur); math.Abs(res.NPV-allDomestic) < 0.1 {
		t.Fatalf("NPV %v does not reflect the USD coupon, all-EUR value %v", res.NPV, allDomestic)
	}
}

func TestStandardErrorShrinksWithSamples(t *testing.T) {
	t.Parallel()

	m := testModel(t, 0.01)
	b := testBond(t, 0.05, true, false)
	stdErr := func(samples int) float64 {
		cfg := testConfig(samples)
		cfg.CalibrationSequence = montecarlo.MersenneTwister
		cfg.GenerateAdditionalResults = true
		res := calculate(t, m, Market{}, cfg, b)
		v, ok := res.Additional["totalNpvStdError"].(float64)
		if !ok || v <= 0 {
			t.Fatalf("totalNpvStdError = %v", res.Additional["totalNpvStdError"])
		}
		return v
	}
	// four times the samples halve the standard error
	if r := stdErr(4000) / stdErr(1000); r < 0.4 || r > 0.6 {
		t.Fatalf("standard error ratio %v, want about 0.5", r)
	}
}

func TestCallReducesValue(t *testing.T) {
	t.Parallel()

	m := testModel(t, 0.01)
	res := calculate(t, m, Market{}, testConfig(4096), testBond(t, 0.05, true, false))
	if res.OptionNPV >= 0 {
		t.Fatalf("issuer call option NPV = %v, want negative", res.OptionNPV)
	}
	if math.Abs(res.UnderlyingNPV+res.OptionNPV-res.NPV) > 1e-12 {
		t.Fatalf("NPV %v is not underlying %v plus option %v", res.NPV, res.UnderlyingNPV, res.OptionNPV)
	}
	// a deterministic call after two years is worth about 103.7
	if res.NPV < 101 || res.NPV > 104.5 {
		t.Fatalf("callable NPV = %v, want in [101, 104.5]", res.NPV)
	}
}

func TestPutIncreasesValue(t *testing.T) {
	t.Parallel()

	res := calculate(t, testModel(t, 0.01), Market{}, testConfig(4096), testBond(t, 0.01, false, true))
	if res.OptionNPV <= 0 {
		t.Fatalf("holder put option NPV = %v, want positive", res.OptionNPV)
	}
	if res.NPV <= res.UnderlyingNPV {
		t.Fatalf("putable NPV %v not above underlying %v", res.NPV, res.UnderlyingNPV)
	}
	// a deterministic put after two years is worth about 96.1
	if res.NPV < 95 || res.NPV > 98 {
		t.Fatalf("putable NPV = %v, want in [95, 98]", res.NPV)
	}
}

func TestCalculateAdditionalResults(t *testing.T) {
	t.Parallel()

	cfg := testConfig(2048)
	cfg.GenerateAdditionalResults = true
	cfg.PricingSamples = 2048
	res := calculate(t, testModel(t, 0.01), Market{}, cfg, testBond(t, 0.05, true, false))

	for _, key := range []string{
		"exerciseTimes", "callPrices", "strippedBondNpv", "optionValue", "totalNpvStdError",
		"pricingRunTotalNpv", "pricingRunStdError", "strippedBondYield", "callableBondYield",
	} {
		if _, ok := res.Additional[key]; !ok {
			t.Fatalf("additional result %q missing", key)
		}
	}
	prices := res.Additional["callPrices"].([]float64)
	if len(prices) != 4 || math.Abs(prices[0]-100) > 1e-9 {
		t.Fatalf("call prices = %v, want four calls at 100", prices)
	}
	// annually compounded equivalent of 3% continuous
	if y := res.Additional["strippedBondYield"].(float64); math.Abs(y-(math.Exp(0.03)-1)) > 1e-3 {
		t.Fatalf("stripped bond yield = %v", y)
	}
	if y, strip := res.Additional["callableBondYield"].(float64), res.Additional["strippedBondYield"].(float64); y <= strip {
		t.Fatalf("callable yield %v not above stripped yield %v", y, strip)
	}
	if v := res.Additional["pricingRunTotalNpv"].(float64); math.Abs(v-res.NPV) > 1 {
		t.Fatalf("pricing run NPV %v far from calibration NPV %v", v, res.NPV)
	}
}

func TestCalculateRecordsStats(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	e, err := NewEngine(testToday, testModel(t, 0.01), Market{}, testConfig(512), WithRecorder(metrics.New(reg)))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	stats := metrics.NewStats()
	if _, err := e.Calculate(context.Background(), stats, testBond(t, 0.05, true, false)); err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if trained, _ := stats.Regressions(); trained == 0 {
		t.Fatalf("no regressions recorded")
	}
	if stats.Paths() != 512 {
		t.Fatalf("paths = %d, want 512", stats.Paths())
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		found = found || f.GetName() == "amc_calculations_total"
	}
	if !found {
		t.Fatalf("amc_calculations_total not registered")
	}
}

func TestNewEngineRejectsBadSetup(t *testing.T) {
	t.Parallel()

	m := testModel(t, 0.01)
	three, err := model.NewCrossAsset([]model.LGM{
		{Currency: "EUR", Curve: curve.FlatForward{Rate: 0.03}},
		{Currency: "USD", Curve: curve.FlatForward{Rate: 0.04}},
		{Currency: "GBP", Curve: curve.FlatForward{Rate: 0.04}},
	}, []model.FXComponent{{Foreign: 1, Spot: 1}, {Foreign: 2, Spot: 1}}, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewCrossAsset: %v", err)
	}

	badSamples := testConfig(0)
	badIndices := testConfig(10)
	badIndices.ExternalModelIndices = []int{0, 1}
	badSticky := testConfig(10)
	badSticky.SimulationDates = exposureDates()
	badSticky.StickyCloseOutDates = exposureDates()[:2]

	for _, tc := range []struct {
		name   string
		m      *model.CrossAsset
		market Market
		cfg    Config
		want   error
	}{
		{"nil model", nil, Market{}, testConfig(10), ErrConfiguration},
		{"three currencies", three, Market{}, testConfig(10), ErrModelMismatch},
		{"samples", m, Market{}, badSamples, ErrConfiguration},
		{"recovery", m, Market{RecoveryRate: 1.5}, testConfig(10), ErrConfiguration},
		{"external indices", m, Market{}, badIndices, ErrConfiguration},
		{"close-out dates", m, Market{}, badSticky, ErrConfiguration},
	} {
		if _, err := NewEngine(testToday, tc.m, tc.market, tc.cfg); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}
}

func TestCalculateRejectsForeignBond(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(testToday, testModel(t, 0.01), Market{}, testConfig(10))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	b := testBond(t, 0.05, false, false)
	b.Currency = "USD"
	if _, err := e.Calculate(context.Background(), nil, b); !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("got %v, want ErrModelMismatch", err)
	}

	matured := testBond(t, 0.05, false, false)
	for i := range matured.Cashflows {
		matured.Cashflows[i].Date = testToday.AddDate(-1, 0, -i)
	}
	if _, err := e.Calculate(context.Background(), nil, matured); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
}

func TestCalculateHonoursCancellation(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(testToday, testModel(t, 0.01), Market{}, testConfig(256))
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Calculate(ctx, nil, testBond(t, 0.05, true, false)); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
