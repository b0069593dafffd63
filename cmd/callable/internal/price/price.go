package price

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/meenmo/amc/amc"
	"github.com/meenmo/amc/cmd/callable/internal/input"
	"github.com/meenmo/amc/lgmgrid"
	"github.com/meenmo/amc/metrics"
	"github.com/meenmo/amc/store"
)

type Output struct {
	TaskID          string         `json:"task_id,omitempty"`
	Engine          string         `json:"engine,omitempty"`
	NPV             float64        `json:"npv"`
	UnderlyingNPV   float64        `json:"underlying_npv"`
	OptionNPV       float64        `json:"option_npv"`
	SettlementValue float64        `json:"settlement_value,omitempty"`
	CalculatorID    string         `json:"calculator_id,omitempty"`
	Calculator      string         `json:"calculator,omitempty"` // base64
	Additional      map[string]any `json:"additional,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("price", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inputPath := fs.String("input", "", "JSON input path (optional; if set, ignores stdin)")
	configPath := fs.String("config", "", "YAML config path (optional)")
	engine := fs.String("engine", "amc", "Pricing engine: amc or grid")
	save := fs.Bool("save", false, "Store the calculator and report its id")
	emit := fs.Bool("emit-calculator", false, "Include the serialized calculator in the output")
	help := fs.Bool("h", false, "Show help")
	fs.BoolVar(help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage(stderr)
		return 0
	}
	kind := strings.ToLower(strings.TrimSpace(*engine))
	if kind != "amc" && kind != "grid" {
		fmt.Fprintf(stderr, "unknown engine %q\n", *engine)
		return 2
	}

	path := strings.TrimSpace(*inputPath)
	if path == "" && input.Interactive(stdin) {
		usage(stderr)
		return 2
	}
	raw, err := input.Read(stdin, path)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("failed to read input: %v", err))
	}
	reqs, isArray, err := input.Parse[input.Request](raw)
	if err != nil {
		return writeError(stdout, fmt.Sprintf("failed to parse JSON input: %v", err))
	}

	ctx := context.Background()
	env, err := input.Setup(ctx, *configPath)
	if err != nil {
		return writeError(stdout, err.Error())
	}
	defer func() {
		if err := env.Close(); err != nil {
			fmt.Fprintln(stderr, err)
		}
	}()

	hadError := false
	outputs := make([]Output, 0, len(reqs))
	stats := metrics.NewStats()
	for _, req := range reqs {
		out, err := price(ctx, env, stats, req, kind, *save, *emit)
		if err != nil {
			hadError = true
			env.Log.Error().Err(err).Str("task", req.TaskID).Msg("pricing failed")
			outputs = append(outputs, Output{TaskID: req.TaskID, Error: err.Error()})
			continue
		}
		outputs = append(outputs, *out)
	}
	env.Log.Info().
		Int("requests", len(reqs)).
		Dur("paths", stats.Elapsed(metrics.PhasePath)).
		Dur("calc", stats.Elapsed(metrics.PhaseCalc)).
		Msg("pricing done")

	var b []byte
	if isArray {
		b, _ = json.Marshal(outputs)
	} else {
		b, _ = json.Marshal(outputs[0])
	}
	fmt.Fprintln(stdout, string(b))
	if hadError {
		return 1
	}
	return 0
}

func price(ctx context.Context, env *input.Env, stats *metrics.Stats, req input.Request, kind string, save, emit bool) (*Output, error) {
	v, err := req.Build()
	if err != nil {
		return nil, err
	}

	if kind == "grid" {
		e, err := lgmgrid.New(v.Today, v.LGM, lgmgrid.Options{
			Discount:         v.Discount(),
			TimeStepsPerYear: env.Config.Engine.AmericanExerciseTimeStepsPerYear,
		})
		if err != nil {
			return nil, err
		}
		res, err := e.Calculate(ctx, v.Bond)
		if err != nil {
			return nil, err
		}
		return &Output{TaskID: req.TaskID, Engine: kind, NPV: res.NPV, UnderlyingNPV: res.UnderlyingNPV, OptionNPV: res.OptionNPV}, nil
	}

	cfg, err := env.EngineConfig(req)
	if err != nil {
		return nil, err
	}
	e, err := amc.NewEngine(v.Today, v.Model, v.Market, cfg, amc.WithLogger(env.Log), amc.WithRecorder(env.Recorder))
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, stats, v.Bond)
	if err != nil {
		return nil, err
	}
	out := &Output{
		TaskID:          req.TaskID,
		Engine:          kind,
		NPV:             res.NPV,
		UnderlyingNPV:   res.UnderlyingNPV,
		OptionNPV:       res.OptionNPV,
		SettlementValue: res.SettlementValue,
		Additional:      res.Additional,
	}
	if save {
		if out.CalculatorID, err = store.SaveCalculator(ctx, env.Store, res.Calculator); err != nil {
			return nil, err
		}
	}
	if emit {
		data, err := res.Calculator.MarshalBinary()
		if err != nil {
			return nil, err
		}
		out.Calculator = base64.StdEncoding.EncodeToString(data)
	}
	return out, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  callable price [-engine amc|grid] [-config amc.yaml] < input.json")
	fmt.Fprintln(w, "  callable price -input /path/to/input.json -save")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Read JSON input, price the callable bond, output JSON to stdout.")
}

func writeError(stdout io.Writer, msg string) int {
	b, _ := json.Marshal(Output{Error: msg})
	fmt.Fprintln(stdout, string(b))
	return 1
}
