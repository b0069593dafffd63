package main

import (
	"bytes"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const request = `{
  "task_id": "t1",
  "valuation_date": "2025-01-15",
  "samples": 512,
  "simulation_dates": ["2025-07-15", "2026-01-15", "2027-07-15"],
  "bond": {
    "currency": "EUR", "issue_date": "2025-01-15", "maturity_date": "2030-01-15",
    "frequency": 1, "coupon": 5, "notional": 100,
    "call": {"first_date": "2027-01-15", "price": 100}
  },
  "model": {"rate": 3, "sigma": 0.01}
}`

func quietConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "amc.yaml")
	if err := os.WriteFile(path, []byte("logging:\n  level: disabled\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func decode(t *testing.T, out *bytes.Buffer, v any) {
	t.Helper()
	if err := json.Unmarshal(out.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", out.String(), err)
	}
}

func TestPriceGridAndMonteCarlo(t *testing.T) {
	t.Parallel()

	cfg := quietConfig(t)
	npv := map[string]float64{}
	for _, engine := range []string{"grid", "amc"} {
		var stdout, stderr bytes.Buffer
		code := run([]string{"price", "-engine", engine, "-config", cfg}, strings.NewReader(request), &stdout, &stderr)
		if code != 0 {
			t.Fatalf("%s: exit %d: %s %s", engine, code, stdout.String(), stderr.String())
		}
		var out struct {
			TaskID    string  `json:"task_id"`
			NPV       float64 `json:"npv"`
			OptionNPV float64 `json:"option_npv"`
		}
		decode(t, &stdout, &out)
		if out.TaskID != "t1" || out.OptionNPV >= 0 {
			t.Fatalf("%s: unexpected output %+v", engine, out)
		}
		npv[engine] = out.NPV
	}
	if math.Abs(npv["grid"]-npv["amc"]) > 1.5 {
		t.Fatalf("grid %v and Monte Carlo %v disagree", npv["grid"], npv["amc"])
	}
}

func TestExposureReplaysEmittedCalculator(t *testing.T) {
	t.Parallel()

	cfg := quietConfig(t)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"price", "-emit-calculator", "-config", cfg}, strings.NewReader(request), &stdout, &stderr); code != 0 {
		t.Fatalf("price: exit %d: %s", code, stdout.String())
	}
	var priced struct {
		NPV        float64 `json:"npv"`
		Calculator string  `json:"calculator"`
	}
	decode(t, &stdout, &priced)

	var req map[string]any
	if err := json.Unmarshal([]byte(request), &req); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	req["calculator"] = priced.Calculator
	req["paths"] = 200
	body, _ := json.Marshal(req)

	stdout.Reset()
	if code := run([]string{"exposure", "-config", cfg}, bytes.NewReader(body), &stdout, &stderr); code != 0 {
		t.Fatalf("exposure: exit %d: %s", code, stdout.String())
	}
	var out struct {
		NPV     float64 `json:"npv"`
		Profile []struct {
			Time          float64 `json:"time"`
			DiscountedEPE float64 `json:"discounted_epe"`
		} `json:"profile"`
	}
	decode(t, &stdout, &out)
	if math.Abs(out.NPV-priced.NPV) > 1e-9 {
		t.Fatalf("replayed NPV %v, priced %v", out.NPV, priced.NPV)
	}
	if len(out.Profile) != 3 || out.Profile[0].DiscountedEPE <= 0 {
		t.Fatalf("unexpected profile %+v", out.Profile)
	}
}

func TestUnknownCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	if code := run([]string{"swap"}, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Fatalf("exit %d, want 2", code)
	}
	if code := run([]string{"price", "-engine", "tree"}, strings.NewReader(request), &stdout, &stderr); code != 2 {
		t.Fatalf("exit %d, want 2", code)
	}
	stdout.Reset()
	if code := run([]string{"price", "-config", quietConfig(t)}, strings.NewReader("{"), &stdout, &stderr); code != 1 {
		t.Fatalf("exit %d, want 1", code)
	}
	if !strings.Contains(stdout.String(), "error") {
		t.Fatalf("no error in %q", stdout.String())
	}
}
