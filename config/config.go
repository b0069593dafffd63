// Package config loads the YAML configuration of the callable bond tools.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/meenmo/amc/amc"
	"github.com/meenmo/amc/logging"
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/regression"
	"github.com/meenmo/amc/store"
	"github.com/meenmo/amc/utils"
)

type File struct {
	Engine  Engine         `yaml:"engine"`
	Logging logging.Config `yaml:"logging"`
	Metrics Metrics        `yaml:"metrics"`
	Store   store.Config   `yaml:"store"`
}

type Calibration struct {
	Sequence string `yaml:"sequence" default:"SobolBrownianBridge" validate:"oneof=MersenneTwister MersenneTwisterAntithetic Sobol SobolBrownianBridge"`
	Samples  int    `yaml:"samples" default:"10000" validate:"gt=0"`
	Seed     uint64 `yaml:"seed" default:"42"`
}

// Pricing configures the optional out-of-sample run; zero samples skip it.
type Pricing struct {
	Sequence string `yaml:"sequence" default:"SobolBrownianBridge" validate:"oneof=MersenneTwister MersenneTwisterAntithetic Sobol SobolBrownianBridge"`
	Samples  int    `yaml:"samples" validate:"gte=0"`
	Seed     uint64 `yaml:"seed" default:"17"`
}

type Regression struct {
	RegressorModel string  `yaml:"regressor_model" default:"Simple" validate:"oneof=Simple LaggedIR LaggedFX LaggedEQ Lagged"`
	VarianceCutoff float64 `yaml:"variance_cutoff" validate:"gte=0,lte=1"`
	MaxSimTimesIR  int     `yaml:"max_sim_times_ir" validate:"gte=0"`
	MaxSimTimesFX  int     `yaml:"max_sim_times_fx" validate:"gte=0"`
	MaxSimTimesEQ  int     `yaml:"max_sim_times_eq" validate:"gte=0"`
	VarGroupMode   string  `yaml:"var_group_mode" default:"Global" validate:"oneof=Global Trivial"`
}

// Engine mirrors amc.Config with dates as YYYY-MM-DD strings.
type Engine struct {
	Calibration Calibration `yaml:"calibration"`
	Pricing     Pricing     `yaml:"pricing"`

	PolynomOrder      int    `yaml:"polynom_order" default:"4" validate:"gte=1,lte=8"`
	PolynomFamily     string `yaml:"polynom_family" default:"Monomial" validate:"oneof=Monomial Laguerre Hermite Legendre Chebyshev Chebyshev2nd"`
	Ordering          string `yaml:"ordering" default:"Steps" validate:"oneof=Factors Steps Diagonal"`
	DirectionIntegers string `yaml:"direction_integers" default:"Unit" validate:"oneof=Unit Random"`

	SpreadOnIncome                   bool `yaml:"spread_on_income"`
	AmericanExerciseTimeStepsPerYear int  `yaml:"american_exercise_time_steps_per_year" validate:"gte=0"`
	GenerateAdditionalResults        bool `yaml:"generate_additional_results"`

	SimulationDates                  []string `yaml:"simulation_dates"`
	StickyCloseOutDates              []string `yaml:"sticky_close_out_dates"`
	RecalibrateOnStickyCloseOutDates bool     `yaml:"recalibrate_on_sticky_close_out_dates"`
	ReevaluateExerciseInStickyRun    bool     `yaml:"reevaluate_exercise_in_sticky_run"`
	ExternalModelIndices             []int    `yaml:"external_model_indices" validate:"dive,gte=0"`
	IncludeTodaysCashflows           bool     `yaml:"include_todays_cashflows"`

	Regression Regression `yaml:"regression"`

	PathBlockSize int `yaml:"path_block_size" default:"4096" validate:"gte=0"`
	PathWorkers   int `yaml:"path_workers" validate:"gte=0"`
}

// Metrics configures the Prometheus text file written after every run, for
// collection by a node exporter.
type Metrics struct {
	Enabled  bool   `yaml:"enabled"`
	Textfile string `yaml:"textfile" default:"amc.prom" validate:"required_if=Enabled true"`
}

var validate = validator.New()

// Default returns the configuration of an empty file.
func Default() (*File, error) {
	var f File
	if err := setDefaults(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func setDefaults(f *File) error {
	if err := defaults.Set(f); err != nil {
		return fmt.Errorf("set defaults: %w", err)
	}
	return nil
}

// Load reads, defaults and validates a YAML configuration file.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML document over the defaults, so keys set explicitly to
// zero stay zero. Unknown keys are rejected.
func Parse(b []byte) (*File, error) {
	var f File
	if err := setDefaults(&f); err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate.Struct(&f); err != nil {
		return nil, fmt.Errorf("validate config: %w", describe(err))
	}
	return &f, nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		if e.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s=%s", e.Namespace(), e.Tag(), e.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: %s", e.Namespace(), e.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// AMC converts the engine section for amc.NewEngine.
func (e Engine) AMC() (amc.Config, error) {
	sim, err := utils.ParseDates(e.SimulationDates)
	if err != nil {
		return amc.Config{}, fmt.Errorf("simulation_dates: %w", err)
	}
	closeOut, err := utils.ParseDates(e.StickyCloseOutDates)
	if err != nil {
		return amc.Config{}, fmt.Errorf("sticky_close_out_dates: %w", err)
	}
	return amc.Config{
		CalibrationSequence:              montecarlo.SequenceType(e.Calibration.Sequence),
		CalibrationSamples:               e.Calibration.Samples,
		CalibrationSeed:                  e.Calibration.Seed,
		PricingSequence:                  montecarlo.SequenceType(e.Pricing.Sequence),
		PricingSamples:                   e.Pricing.Samples,
		PricingSeed:                      e.Pricing.Seed,
		PolynomOrder:                     e.PolynomOrder,
		PolynomFamily:                    regression.Family(e.PolynomFamily),
		Ordering:                         montecarlo.Ordering(e.Ordering),
		DirectionIntegers:                montecarlo.DirectionIntegers(e.DirectionIntegers),
		SpreadOnIncome:                   e.SpreadOnIncome,
		AmericanExerciseTimeStepsPerYear: e.AmericanExerciseTimeStepsPerYear,
		GenerateAdditionalResults:        e.GenerateAdditionalResults,
		SimulationDates:                  sim,
		StickyCloseOutDates:              closeOut,
		RecalibrateOnStickyCloseOutDates: e.RecalibrateOnStickyCloseOutDates,
		ReevaluateExerciseInStickyRun:    e.ReevaluateExerciseInStickyRun,
		ExternalModelIndices:             e.ExternalModelIndices,
		IncludeTodaysCashflows:           e.IncludeTodaysCashflows,
		RegressorModel:                   regression.RegressorModel(e.Regression.RegressorModel),
		RegressionVarianceCutoff:         e.Regression.VarianceCutoff,
		RegressionMaxSimTimesIR:          e.Regression.MaxSimTimesIR,
		RegressionMaxSimTimesFX:          e.Regression.MaxSimTimesFX,
		RegressionMaxSimTimesEQ:          e.Regression.MaxSimTimesEQ,
		RegressionVarGroupMode:           regression.VarGroupMode(e.Regression.VarGroupMode),
		PathBlockSize:                    e.PathBlockSize,
		PathWorkers:                      e.PathWorkers,
	}, nil
}
