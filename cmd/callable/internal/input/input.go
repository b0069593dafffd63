// Package input holds the JSON request shared by the callable subcommands and
// the environment (config, logger, metrics, store) they run in.
package input

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/meenmo/amc/amc"
	"github.com/meenmo/amc/bond"
	"github.com/meenmo/amc/calendar"
	"github.com/meenmo/amc/config"
	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/instruments/bonds"
	"github.com/meenmo/amc/logging"
	"github.com/meenmo/amc/metrics"
	"github.com/meenmo/amc/model"
	"github.com/meenmo/amc/store"
	"github.com/meenmo/amc/utils"
)

// Request is one valuation.
//
// Conventions:
// - rates and prices are in percent (e.g., 5.0 means 5%, 100 means par)
// - spreads and hazard rates are in bp
type Request struct {
	TaskID        string `json:"task_id,omitempty"`
	ValuationDate string `json:"valuation_date"`

	Bond   BondJSON   `json:"bond"`
	Model  ModelJSON  `json:"model"`
	Market MarketJSON `json:"market"`

	// Samples overrides the configured calibration samples when positive.
	Samples int `json:"samples,omitempty"`
	// SimulationDates overrides the configured exposure dates when set.
	SimulationDates []string `json:"simulation_dates,omitempty"`
}

type BondJSON struct {
	Currency     string  `json:"currency"`
	IssueDate    string  `json:"issue_date"`
	MaturityDate string  `json:"maturity_date"`
	Frequency    int     `json:"frequency"`
	CouponPct    float64 `json:"coupon"`
	Notional     float64 `json:"notional"`
	DayCount     string  `json:"day_count,omitempty"`
	// Calendar (WEEKENDS or TARGET) and PaymentConvention roll payment dates.
	Calendar          string        `json:"calendar,omitempty"`
	PaymentConvention string        `json:"payment_convention,omitempty"`
	Call              *ScheduleJSON `json:"call,omitempty"`
	Put               *ScheduleJSON `json:"put,omitempty"`
}

type ScheduleJSON struct {
	FirstDate      string  `json:"first_date"`
	PricePct       float64 `json:"price"`
	PriceType      string  `json:"price_type,omitempty"`    // Clean (default) or Dirty
	ExerciseType   string  `json:"exercise_type,omitempty"` // OnThisDate (default) or FromThisDateOn
	IncludeAccrual bool    `json:"include_accrual,omitempty"`
}

// ModelJSON is a one factor LGM on a flat or pillar curve.
type ModelJSON struct {
	RatePct float64 `json:"rate"`
	// Discounts maps YYYY-MM-DD pillars onto discount factors and takes
	// precedence over RatePct.
	Discounts map[string]float64 `json:"discounts,omitempty"`
	Kappa     float64            `json:"kappa"`
	Sigma     float64            `json:"sigma"`
}

type MarketJSON struct {
	DiscountingSpreadBP float64 `json:"discounting_spread_bp,omitempty"`
	HazardRateBP        float64 `json:"hazard_rate_bp,omitempty"`
	RecoveryRate        float64 `json:"recovery_rate,omitempty"`
}

// Valuation is a decoded request.
type Valuation struct {
	Today  time.Time
	Bond   *bond.CallableBond
	LGM    model.LGM
	Model  *model.CrossAsset
	Market amc.Market
}

// Build validates r and assembles the valuation objects.
func (r Request) Build() (*Valuation, error) {
	today, err := utils.ParseDate(r.ValuationDate)
	if err != nil {
		return nil, fmt.Errorf("invalid valuation_date: %v", err)
	}
	b, err := r.Bond.build()
	if err != nil {
		return nil, err
	}

	var yc curve.YieldCurve = curve.FlatForward{Rate: r.Model.RatePct / 100}
	if len(r.Model.Discounts) > 0 {
		dfs := make(map[time.Time]float64, len(r.Model.Discounts))
		for s, df := range r.Model.Discounts {
			d, err := utils.ParseDate(s)
			if err != nil {
				return nil, fmt.Errorf("invalid discount pillar %q: %v", s, err)
			}
			dfs[d] = df
		}
		if yc, err = curve.NewCurveFromDFs(today, dfs); err != nil {
			return nil, fmt.Errorf("discount curve: %w", err)
		}
	}
	lgm := model.LGM{Currency: b.Currency, Curve: yc, Kappa: r.Model.Kappa, Sigma: r.Model.Sigma}
	m, err := model.NewCrossAsset([]model.LGM{lgm}, nil, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	market := amc.Market{
		DiscountingSpread: r.Market.DiscountingSpreadBP / 1e4,
		RecoveryRate:      r.Market.RecoveryRate,
	}
	if r.Market.HazardRateBP != 0 {
		market.Credit = curve.FlatHazard{Rate: r.Market.HazardRateBP / 1e4}
	}
	return &Valuation{Today: today, Bond: b, LGM: lgm, Model: m, Market: market}, nil
}

// Discount is the risky curve the grid engine discounts on.
func (v *Valuation) Discount() curve.YieldCurve {
	return curve.EffectiveBondDiscount{
		Reference: v.LGM.Curve,
		Credit:    v.Market.Credit,
		Spread:    v.Market.DiscountingSpread,
		Recovery:  v.Market.RecoveryRate,
	}
}

func (j BondJSON) build() (*bond.CallableBond, error) {
	issue, err := utils.ParseDate(j.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid issue_date: %v", err)
	}
	maturity, err := utils.ParseDate(j.MaturityDate)
	if err != nil {
		return nil, fmt.Errorf("invalid maturity_date: %v", err)
	}
	cal, err := calendar.Parse(strings.ToUpper(j.Calendar))
	if err != nil {
		return nil, err
	}
	conv, err := calendar.ParseConvention(j.PaymentConvention)
	if err != nil {
		return nil, err
	}
	p := bonds.FixedRateParams{
		Currency:          strings.ToUpper(strings.TrimSpace(j.Currency)),
		IssueDate:         issue,
		MaturityDate:      maturity,
		Frequency:         j.Frequency,
		Coupon:            j.CouponPct / 100,
		Notional:          j.Notional,
		DayCount:          j.DayCount,
		Calendar:          cal,
		PaymentConvention: conv,
	}
	if p.Call, err = j.Call.build("call"); err != nil {
		return nil, err
	}
	if p.Put, err = j.Put.build("put"); err != nil {
		return nil, err
	}
	return bonds.FixedRate(p)
}

func (j *ScheduleJSON) build(side string) (*bonds.Schedule, error) {
	if j == nil {
		return nil, nil
	}
	first, err := utils.ParseDate(j.FirstDate)
	if err != nil {
		return nil, fmt.Errorf("invalid %s first_date: %v", side, err)
	}
	s := &bonds.Schedule{First: first, Price: j.PricePct / 100, IncludeAccrual: j.IncludeAccrual}
	switch strings.ToLower(j.PriceType) {
	case "", "clean":
	case "dirty":
		s.PriceType = bond.PriceDirty
	default:
		return nil, fmt.Errorf("invalid %s price_type %q (use Clean or Dirty)", side, j.PriceType)
	}
	switch strings.ToLower(j.ExerciseType) {
	case "", "onthisdate":
	case "fromthisdateon":
		s.ExerciseType = bond.FromThisDateOn
	default:
		return nil, fmt.Errorf("invalid %s exercise_type %q (use OnThisDate or FromThisDateOn)", side, j.ExerciseType)
	}
	return s, nil
}

// Parse decodes a single request or an array of requests.
func Parse[T any](raw []byte) ([]T, bool, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false, fmt.Errorf("empty input")
	}
	if trimmed[0] == '[' {
		var inputs []T
		if err := json.Unmarshal(trimmed, &inputs); err != nil {
			return nil, true, err
		}
		if len(inputs) == 0 {
			return nil, true, fmt.Errorf("empty input array")
		}
		return inputs, true, nil
	}
	var in T
	if err := json.Unmarshal(trimmed, &in); err != nil {
		return nil, false, err
	}
	return []T{in}, false, nil
}

// Read returns the contents of path, or stdin when path is empty.
func Read(stdin io.Reader, path string) ([]byte, error) {
	if path != "" {
		return os.ReadFile(path)
	}
	return io.ReadAll(stdin)
}

// Interactive reports whether stdin is a terminal.
func Interactive(stdin io.Reader) bool {
	f, ok := stdin.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	return err == nil && (stat.Mode()&os.ModeCharDevice) != 0
}

// Env is what a subcommand runs with.
type Env struct {
	Config   *config.File
	Log      zerolog.Logger
	Store    store.Store
	Recorder *metrics.Recorder

	registry *prometheus.Registry
	closers  []io.Closer
}

// Setup loads the configuration at path (defaults when empty) and opens the
// logger, the metrics registry and the calculator store.
func Setup(ctx context.Context, path string) (*Env, error) {
	var (
		cfg *config.File
		err error
	)
	if path == "" {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(path)
	}
	if err != nil {
		return nil, err
	}
	log, closer, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	env := &Env{Config: cfg, Log: log, closers: []io.Closer{closer}}
	if cfg.Metrics.Enabled {
		env.registry = prometheus.NewRegistry()
		env.Recorder = metrics.New(env.registry)
	}
	if env.Store, err = store.New(ctx, cfg.Store); err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, env.Store)
	return env, nil
}

// EngineConfig returns the engine parameters with the overrides of r.
func (e *Env) EngineConfig(r Request) (amc.Config, error) {
	cfg, err := e.Config.Engine.AMC()
	if err != nil {
		return amc.Config{}, err
	}
	if r.Samples > 0 {
		cfg.CalibrationSamples = r.Samples
	}
	if len(r.SimulationDates) > 0 {
		if cfg.SimulationDates, err = utils.ParseDates(r.SimulationDates); err != nil {
			return amc.Config{}, fmt.Errorf("invalid simulation_dates: %v", err)
		}
		cfg.StickyCloseOutDates = nil
	}
	return cfg, nil
}

// Close writes the metrics text file, if configured, and releases the
// logger output and the store.
func (e *Env) Close() error {
	var first error
	if e.registry != nil {
		if err := prometheus.WriteToTextfile(e.Config.Metrics.Textfile, e.registry); err != nil {
			first = fmt.Errorf("write metrics: %w", err)
		}
	}
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
