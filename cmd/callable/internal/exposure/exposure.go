package exposure

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
	"github.com/meenmo/amc/montecarlo"
	"github.com/meenmo/amc/store"
)

// Input is a valuation request plus the calculator to replay. Without
// calculator_id or calculator the bond is trained first.
type Input struct {
	input.Request
	CalculatorID string `json:"calculator_id,omitempty"`
	Calculator   string `json:"calculator,omitempty"` // base64
	Paths        int    `json:"paths,omitempty"`
	Seed         uint64 `json:"seed,omitempty"`
}

type Point struct {
	Time              float64 `json:"time"`
	DiscountedEPE     float64 `json:"discounted_epe"`
	DiscountedENE     float64 `json:"discounted_ene"`
	ExercisedFraction float64 `json:"exercised_fraction"`
}

type Output struct {
	TaskID  string  `json:"task_id,omitempty"`
	NPV     float64 `json:"npv"`
	Profile []Point `json:"profile"`
	Error   string  `json:"error,omitempty"`
}

const defaultPaths = 1000

func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("exposure", flag.ContinueOnError)
	fs.SetOutput(stderr)
	inputPath := fs.String("input", "", "JSON input path (optional; if set, ignores stdin)")
	configPath := fs.String("config", "", "YAML config path (optional)")
	help := fs.Bool("h", false, "Show help")
	fs.BoolVar(help, "help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *help {
		usage(stderr)
		return 0
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
	reqs, isArray, err := input.Parse[Input](raw)
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
	for _, req := range reqs {
		out, err := profile(ctx, env, req)
		if err != nil {
			hadError = true
			env.Log.Error().Err(err).Str("task", req.TaskID).Msg("exposure failed")
			outputs = append(outputs, Output{TaskID: req.TaskID, Error: err.Error()})
			continue
		}
		outputs = append(outputs, *out)
	}

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

func calculator(ctx context.Context, env *input.Env, req Input, v *input.Valuation) (amc.Calculator, error) {
	switch {
	case req.CalculatorID != "":
		return store.LoadCalculator(ctx, env.Store, req.CalculatorID)
	case req.Calculator != "":
		data, err := base64.StdEncoding.DecodeString(req.Calculator)
		if err != nil {
			return nil, fmt.Errorf("invalid calculator: %v", err)
		}
		return amc.DecodeCalculator(data)
	}
	cfg, err := env.EngineConfig(req.Request)
	if err != nil {
		return nil, err
	}
	e, err := amc.NewEngine(v.Today, v.Model, v.Market, cfg, amc.WithLogger(env.Log), amc.WithRecorder(env.Recorder))
	if err != nil {
		return nil, err
	}
	res, err := e.Calculate(ctx, nil, v.Bond)
	if err != nil {
		return nil, err
	}
	return res.Calculator, nil
}

func profile(ctx context.Context, env *input.Env, req Input) (*Output, error) {
	v, err := req.Build()
	if err != nil {
		return nil, err
	}
	calc, err := calculator(ctx, env, req, v)
	if err != nil {
		return nil, err
	}
	cb, ok := calc.(*amc.CallableBondCalculator)
	if !ok {
		return nil, fmt.Errorf("unsupported calculator %T", calc)
	}
	times := cb.ExposureTimes()
	if len(times) == 0 {
		return nil, fmt.Errorf("calculator has no exposure times; set simulation_dates")
	}

	n := req.Paths
	if n <= 0 {
		n = defaultPaths
	}
	batch, err := montecarlo.Generate(ctx, v.Model, times, montecarlo.Config{
		Sequence: montecarlo.MersenneTwister,
		Seed:     req.Seed,
		Samples:  n,
	})
	if err != nil {
		return nil, err
	}
	p := amc.Path{Times: times, States: batch.Values}
	for i := range times {
		p.RelevantPathIndex = append(p.RelevantPathIndex, i)
		p.RelevantTimeIndex = append(p.RelevantTimeIndex, i)
	}
	ev, err := cb.Evaluate(p)
	if err != nil {
		return nil, err
	}

	out := &Output{TaskID: req.TaskID, NPV: ev.Values[0].Mean()}
	exercised := make([]bool, n)
	next := 0
	for k, t := range times {
		if d := ev.Decisions; d != nil {
			for ; next < len(d.Times) && d.Times[next] <= t; next++ {
				for s := range exercised {
					exercised[s] = exercised[s] || d.Call[next][s] || d.Put[next][s]
				}
			}
		}
		pt := Point{Time: t}
		count := 0
		for s, x := range ev.Values[k+1] {
			if x > 0 {
				pt.DiscountedEPE += x
			} else {
				pt.DiscountedENE += x
			}
			if exercised[s] {
				count++
			}
		}
		pt.DiscountedEPE /= float64(n)
		pt.DiscountedENE /= float64(n)
		pt.ExercisedFraction = float64(count) / float64(n)
		out.Profile = append(out.Profile, pt)
	}
	return out, nil
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  callable exposure [-config amc.yaml] < input.json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Replay a trained calculator on simulated paths and output the exposure profile.")
}

func writeError(stdout io.Writer, msg string) int {
	b, _ := json.Marshal(Output{Error: msg})
	fmt.Fprintln(stdout, string(b))
	return 1
}
