package amc

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/meenmo/amc/curve"
	"github.com/meenmo/amc/metrics"
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/regression"
)

// Config holds the engine parameters.
type Config struct {
	// Path generation for the calibration run.
	CalibrationSequence montecarlo.SequenceType
	CalibrationSamples  int
	CalibrationSeed     uint64

	// PricingSamples > 0 adds an out-of-sample forward run of the trained
	// exercise policy on an independent batch.
	PricingSequence montecarlo.SequenceType
	PricingSamples  int
	PricingSeed     uint64

	PolynomOrder      int
	PolynomFamily     regression.Family
	Ordering          montecarlo.Ordering
	DirectionIntegers montecarlo.DirectionIntegers

	// SpreadOnIncome applies the discounting spread to the income curve as well.
	SpreadOnIncome bool
	// AmericanExerciseTimeStepsPerYear refines the grid on which
	// FromThisDateOn callabilities become exercise times; 0 keeps the event
	// dates only.
	AmericanExerciseTimeStepsPerYear int
	GenerateAdditionalResults        bool

	// SimulationDates are the exposure dates an external simulation will
	// evaluate the calculator on. StickyCloseOutDates, if set, pairs every
	// simulation date with its close-out date.
	SimulationDates                  []time.Time
	StickyCloseOutDates              []time.Time
	RecalibrateOnStickyCloseOutDates bool
	ReevaluateExerciseInStickyRun    bool
	// ExternalModelIndices maps model state index j to the factor index of
	// the external simulation. Empty means identity.
	ExternalModelIndices []int

	// IncludeTodaysCashflows keeps cashflows paid on the valuation date.
	IncludeTodaysCashflows bool

	RegressorModel           regression.RegressorModel
	RegressionVarianceCutoff float64
	RegressionMaxSimTimesIR  int
	RegressionMaxSimTimesFX  int
	RegressionMaxSimTimesEQ  int
	RegressionVarGroupMode   regression.VarGroupMode

	// PathBlockSize and PathWorkers shard path generation, see montecarlo.Config.
	PathBlockSize int
	PathWorkers   int
}

// DefaultConfig returns the parameters used when a field is not configured.
func DefaultConfig() Config {
	return Config{
		CalibrationSequence:    montecarlo.SobolBrownianBridge,
		CalibrationSamples:     10000,
		CalibrationSeed:        42,
		PricingSequence:        montecarlo.SobolBrownianBridge,
		PricingSeed:            17,
		PolynomOrder:           4,
		PolynomFamily:          regression.Monomial,
		Ordering:               montecarlo.OrderingSteps,
		DirectionIntegers:      montecarlo.DirectionUnit,
		RegressorModel:         regression.Simple,
		RegressionVarGroupMode: regression.Global,
		PathBlockSize:          4096,
	}
}

func (c Config) validate() error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("Config: %w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
	}
	if c.CalibrationSamples <= 0 {
		return fail("calibration samples must be positive, got %d", c.CalibrationSamples)
	}
	if c.PricingSamples < 0 {
		return fail("pricing samples must be non-negative, got %d", c.PricingSamples)
	}
	if _, err := montecarlo.ParseSequenceType(string(c.CalibrationSequence)); err != nil {
		return fail("calibration sequence: %v", err)
	}
	if c.PricingSamples > 0 {
		if _, err := montecarlo.ParseSequenceType(string(c.PricingSequence)); err != nil {
			return fail("pricing sequence: %v", err)
		}
	}
	if c.PolynomOrder <= 0 {
		return fail("polynom order must be positive, got %d", c.PolynomOrder)
	}
	if _, err := regression.ParseFamily(string(c.PolynomFamily)); err != nil {
		return fail("%v", err)
	}
	switch c.Ordering {
	case montecarlo.OrderingFactors, montecarlo.OrderingSteps, montecarlo.OrderingDiagonal:
	default:
		return fail("unknown ordering %q", c.Ordering)
	}
	switch c.DirectionIntegers {
	case montecarlo.DirectionUnit, montecarlo.DirectionRandom:
	default:
		return fail("unknown direction integers %q", c.DirectionIntegers)
	}
	if c.AmericanExerciseTimeStepsPerYear < 0 {
		return fail("american exercise time steps must be non-negative, got %d", c.AmericanExerciseTimeStepsPerYear)
	}
	if len(c.StickyCloseOutDates) > 0 && len(c.StickyCloseOutDates) != len(c.SimulationDates) {
		return fail("%d sticky close-out dates for %d simulation dates", len(c.StickyCloseOutDates), len(c.SimulationDates))
	}
	for i := 1; i < len(c.StickyCloseOutDates); i++ {
		if c.StickyCloseOutDates[i].Before(c.StickyCloseOutDates[i-1]) {
			return fail("sticky close-out dates must be non-decreasing")
		}
	}
	switch c.RegressorModel {
	case regression.Simple, regression.LaggedIR, regression.LaggedFX, regression.LaggedEQ, regression.Lagged:
	default:
		return fail("unknown regressor model %q", c.RegressorModel)
	}
	switch c.RegressionVarGroupMode {
	case regression.Global, regression.Trivial:
	default:
		return fail("unknown var group mode %q", c.RegressionVarGroupMode)
	}
	if c.RegressionVarianceCutoff < 0 || c.RegressionVarianceCutoff > 1 {
		return fail("variance cutoff %v outside [0,1]", c.RegressionVarianceCutoff)
	}
	if c.RegressionMaxSimTimesIR < 0 || c.RegressionMaxSimTimesFX < 0 || c.RegressionMaxSimTimesEQ < 0 {
		return fail("regression max sim times must be non-negative")
	}
	if c.PathBlockSize < 0 || c.PathWorkers < 0 {
		return fail("path block size and workers must be non-negative")
	}
	return nil
}

func (c Config) regressionOptions() regression.Options {
	return regression.Options{
		RegressorModel: c.RegressorModel,
		VarianceCutoff: c.RegressionVarianceCutoff,
		MaxSimTimesIR:  c.RegressionMaxSimTimesIR,
		MaxSimTimesFX:  c.RegressionMaxSimTimesFX,
		MaxSimTimesEQ:  c.RegressionMaxSimTimesEQ,
		VarGroupMode:   c.RegressionVarGroupMode,
	}
}

func (c Config) calibrationPaths() montecarlo.Config {
	return montecarlo.Config{
		Sequence:          c.CalibrationSequence,
		Seed:              c.CalibrationSeed,
		Samples:           c.CalibrationSamples,
		Ordering:          c.Ordering,
		DirectionIntegers: c.DirectionIntegers,
		BlockSize:         c.PathBlockSize,
		Workers:           c.PathWorkers,
	}
}

func (c Config) pricingPaths() montecarlo.Config {
	p := c.calibrationPaths()
	p.Sequence, p.Seed, p.Samples = c.PricingSequence, c.PricingSeed, c.PricingSamples
	return p
}

// closeOutSeedOffset separates the close-out draws from the calibration draws.
const closeOutSeedOffset = 0x9e3779b97f4a7c15

func (c Config) closeOutPaths() montecarlo.Config {
	p := c.calibrationPaths()
	p.Seed = c.CalibrationSeed + closeOutSeedOffset
	return p
}

// Market holds the curves the bond is discounted on.
type Market struct {
	// Reference is the benchmark curve; nil means the model's domestic curve.
	Reference curve.YieldCurve
	// DiscountingSpread is a continuously compounded spread over Reference.
	DiscountingSpread float64
	// Credit is the issuer survival curve; ignored when the model simulates credit.
	Credit curve.DefaultCurve
	// Income is the curve settlement values are forwarded on; nil means Reference.
	Income       curve.YieldCurve
	RecoveryRate float64
}

func (m Market) validate() error {
	if m.RecoveryRate < 0 || m.RecoveryRate > 1 {
		return fmt.Errorf("Market: %w: recovery rate %v outside [0,1]", ErrConfiguration, m.RecoveryRate)
	}
	return nil
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger; the default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRecorder publishes the statistics of every calculation to r.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}
